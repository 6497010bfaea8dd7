package engine

import (
	"testing"

	"github.com/fulldump/cursordb/binding"
	"github.com/fulldump/cursordb/logging"
)

var peopleColumns = []binding.ColumnDef{
	{Name: "name", Type: binding.ColumnText},
	{Name: "visits", Type: binding.ColumnInt64, Escrow: true},
}

// Environment opens an engine over a temp dir with a "people" table and
// hands a fresh session to f.
func Environment(t *testing.T, codec string, f func(e *Engine, s *Session)) {
	e, err := Open(Config{
		Dir:     t.TempDir(),
		Journal: codec,
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	s, err := e.BeginSession()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.CreateTable("people", peopleColumns...); err != nil {
		t.Fatal(err)
	}

	f(e, s)
}

func insertName(t *testing.T, table *Table, name string) []byte {
	if err := table.PrepareUpdate(binding.PrepInsert); err != nil {
		t.Fatal(err)
	}
	if err := table.SetColumn(1, []byte(name), binding.SetColumnNone); err != nil {
		t.Fatal(err)
	}
	bookmark, err := table.Update()
	if err != nil {
		t.Fatal(err)
	}
	return bookmark
}

func currentName(table *Table) string {
	v, _ := table.RetrieveColumn(1, binding.RetrieveNone)
	return string(v)
}

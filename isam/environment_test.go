package isam

import (
	"testing"

	"github.com/fulldump/cursordb/binding"
	"github.com/fulldump/cursordb/engine"
	"github.com/fulldump/cursordb/logging"
)

const (
	colA      binding.ColumnID = 1
	colEscrow binding.ColumnID = 2
)

// Environment gives f an isam session over a fresh engine holding an empty
// "table" with a text column and an escrow column.
func Environment(t *testing.T, f func(e *engine.Engine, s *Session)) {
	e, err := engine.Open(engine.Config{
		Dir:    t.TempDir(),
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	es, err := e.BeginSession()
	if err != nil {
		t.Fatal(err)
	}
	if err := es.CreateTable("table", columnsForTest()...); err != nil {
		t.Fatal(err)
	}

	s := NewSession(es, WithLogger(logging.Discard()))
	defer s.Close()

	f(e, s)
}

func columnsForTest() []binding.ColumnDef {
	return []binding.ColumnDef{
		{Name: "a", Type: binding.ColumnText},
		{Name: "escrow", Type: binding.ColumnInt64, Escrow: true},
	}
}

func openCursor(t *testing.T, s *Session) *Cursor {
	c, err := s.OpenCursor("table")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func insert(t *testing.T, c *Cursor, value string) Bookmark {
	if err := c.PrepareUpdate(binding.PrepInsert); err != nil {
		t.Fatal(err)
	}
	if err := c.SetColumn(colA, []byte(value), binding.SetColumnNone); err != nil {
		t.Fatal(err)
	}
	b, err := c.Update()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func retrieveA(c *Cursor) string {
	v, _ := c.RetrieveColumn(colA, binding.RetrieveNone)
	return string(v)
}

package engine

import (
	"errors"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/cursordb/binding"
)

func TestTable_Navigation(t *testing.T) {
	Environment(t, JournalJSON, func(e *Engine, s *Session) {

		table, err := s.OpenTableHandle("people")
		AssertNil(err)
		defer table.Close()

		AssertTrue(errors.Is(table.Move(binding.MoveFirst), binding.ErrNoCurrentRecord))

		for _, name := range []string{"ana", "bob", "eve"} {
			insertName(t, table, name)
		}

		// insert does not move the cursor
		_, err = table.GetBookmark()
		AssertTrue(errors.Is(err, binding.ErrNoCurrentRecord))

		names := []string{}
		for table.Move(binding.MoveNext) == nil {
			names = append(names, currentName(table))
		}
		AssertEqual(names, []string{"ana", "bob", "eve"})

		// after last, previous comes back to the last record
		AssertNil(table.Move(binding.MovePrevious))
		AssertEqual(currentName(table), "eve")

		AssertNil(table.MoveBeforeFirst())
		AssertTrue(errors.Is(table.Move(binding.MovePrevious), binding.ErrNoCurrentRecord))
		AssertNil(table.Move(binding.MoveNext))
		AssertEqual(currentName(table), "ana")

		AssertNil(table.Move(binding.MoveLast))
		AssertEqual(currentName(table), "eve")
	})
}

func TestTable_Bookmarks(t *testing.T) {
	Environment(t, JournalJSON, func(e *Engine, s *Session) {

		table, _ := s.OpenTableHandle("people")
		defer table.Close()

		ana := insertName(t, table, "ana")
		bob := insertName(t, table, "bob")

		AssertNil(table.GotoBookmark(bob))
		AssertEqual(currentName(table), "bob")

		AssertNil(table.GotoBookmark(ana))
		bookmark, err := table.GetBookmark()
		AssertNil(err)
		AssertEqual(bookmark, ana)

		AssertTrue(errors.Is(table.GotoBookmark([]byte{1, 2}), ErrInvalidBookmark))
		AssertTrue(errors.Is(table.GotoBookmark(encodeID(99)), binding.ErrRecordNotFound))
	})
}

func TestTable_Delete(t *testing.T) {
	Environment(t, JournalJSON, func(e *Engine, s *Session) {

		table, _ := s.OpenTableHandle("people")
		defer table.Close()

		insertName(t, table, "ana")
		bob := insertName(t, table, "bob")
		insertName(t, table, "eve")

		AssertNil(table.GotoBookmark(bob))
		AssertNil(table.Delete())

		_, err := table.RetrieveColumn(1, binding.RetrieveNone)
		AssertTrue(errors.Is(err, binding.ErrNoCurrentRecord))

		AssertNil(table.Move(binding.MoveNext))
		AssertEqual(currentName(table), "eve")

		count, _ := e.Count("people")
		AssertEqual(count, 2)
	})
}

func TestTable_SecondaryIndex(t *testing.T) {
	Alternative("Index by name", func(a *A) {
		Environment(t, JournalJSON, func(e *Engine, s *Session) {

			AssertNil(s.CreateIndex("people", IndexDef{Name: "by-name", Column: "name", Unique: true}))

			table, _ := s.OpenTableHandle("people")
			defer table.Close()

			for _, name := range []string{"mia", "ana", "zoe"} {
				insertName(t, table, name)
			}

			// sparse: records without a name are not indexed
			AssertNil(table.PrepareUpdate(binding.PrepInsert))
			anonymous, err := table.Update()
			AssertNil(err)

			AssertNil(table.SetCurrentIndex("by-name"))

			a.Alternative("Ordered traversal", func(a *A) {
				names := []string{}
				for table.Move(binding.MoveNext) == nil {
					names = append(names, currentName(table))
				}
				a.AssertEqual(names, []string{"ana", "mia", "zoe"})
				a.AssertTrue(errors.Is(table.GotoBookmark(anonymous), binding.ErrRecordNotFound))
			})
			a.Alternative("Seek exact", func(a *A) {
				a.AssertNil(table.MakeKey([]byte("mia"), binding.NewKey))
				a.AssertNil(table.Seek(binding.SeekEQ))
				a.AssertEqual(currentName(table), "mia")
			})
			a.Alternative("Seek greater or equal", func(a *A) {
				a.AssertNil(table.MakeKey([]byte("b"), binding.NewKey))
				a.AssertNil(table.Seek(binding.SeekGE))
				a.AssertEqual(currentName(table), "mia")
			})
			a.Alternative("Seek less than", func(a *A) {
				a.AssertNil(table.MakeKey([]byte("mia"), binding.NewKey))
				a.AssertNil(table.Seek(binding.SeekLT))
				a.AssertEqual(currentName(table), "ana")
			})
			a.Alternative("Seek miss keeps position", func(a *A) {
				a.AssertNil(table.Move(binding.MoveLast))
				a.AssertNil(table.MakeKey([]byte("bob"), binding.NewKey))
				a.AssertTrue(errors.Is(table.Seek(binding.SeekEQ), binding.ErrRecordNotFound))
				a.AssertEqual(currentName(table), "zoe")
			})
			a.Alternative("Key in parts", func(a *A) {
				a.AssertNil(table.MakeKey([]byte("z"), binding.NewKey))
				a.AssertNil(table.MakeKey([]byte("oe"), binding.MakeKeyNone))
				a.AssertNil(table.Seek(binding.SeekEQ))
				a.AssertEqual(currentName(table), "zoe")
			})
			a.Alternative("Seek without key", func(a *A) {
				a.AssertTrue(errors.Is(table.Seek(binding.SeekEQ), ErrKeyNotMade))
			})
			a.Alternative("Duplicate key", func(a *A) {
				a.AssertNil(table.PrepareUpdate(binding.PrepInsert))
				a.AssertNil(table.SetColumn(1, []byte("ana"), binding.SetColumnNone))
				_, err := table.Update()
				a.AssertTrue(errors.Is(err, ErrKeyDuplicate))
				a.AssertNil(table.PrepareUpdate(binding.PrepCancel))
			})
		})
	})
}

func TestTable_Replace(t *testing.T) {
	Environment(t, JournalJSON, func(e *Engine, s *Session) {

		table, _ := s.OpenTableHandle("people")
		defer table.Close()

		bookmark := insertName(t, table, "ana")
		AssertNil(table.GotoBookmark(bookmark))

		AssertNil(table.PrepareUpdate(binding.PrepReplace))
		AssertTrue(errors.Is(table.PrepareUpdate(binding.PrepReplace), ErrAlreadyPrepared))

		AssertNil(table.SetColumn(1, []byte("-maria"), binding.SetColumnAppend))
		copied, err := table.RetrieveColumn(1, binding.RetrieveCopy)
		AssertNil(err)
		AssertEqual(string(copied), "ana-maria")
		AssertEqual(currentName(table), "ana")

		updated, err := table.Update()
		AssertNil(err)
		AssertEqual(updated, bookmark)
		AssertEqual(currentName(table), "ana-maria")

		AssertTrue(errors.Is(table.SetColumn(1, nil, binding.SetColumnNone), ErrNotInUpdate))
	})
}

func TestTable_InvalidColumnData(t *testing.T) {
	Environment(t, JournalJSON, func(e *Engine, s *Session) {

		table, _ := s.OpenTableHandle("people")
		defer table.Close()

		AssertNil(table.PrepareUpdate(binding.PrepInsert))
		err := table.SetColumn(2, []byte{1, 2, 3}, binding.SetColumnNone)
		AssertTrue(errors.Is(err, ErrInvalidColumnData))

		err = table.SetColumn(7, []byte("x"), binding.SetColumnNone)
		AssertTrue(errors.Is(err, ErrColumnNotFound))
	})
}

func TestTable_AddColumnDefault(t *testing.T) {
	Environment(t, JournalJSON, func(e *Engine, s *Session) {

		table, _ := s.OpenTableHandle("people")
		defer table.Close()

		id, err := table.AddColumn(binding.ColumnDef{Name: "country", Type: binding.ColumnText}, []byte("es"))
		AssertNil(err)
		AssertEqual(id, binding.ColumnID(3))

		_, err = table.AddColumn(binding.ColumnDef{Name: "country", Type: binding.ColumnText}, nil)
		AssertTrue(errors.Is(err, ErrColumnExists))

		bookmark := insertName(t, table, "ana")
		AssertNil(table.GotoBookmark(bookmark))
		v, _ := table.RetrieveColumn(id, binding.RetrieveNone)
		AssertEqual(string(v), "es")

		columns, _ := table.Columns()
		AssertEqual(len(columns), 3)
		AssertEqual(columns[2].Name, "country")
	})
}

func TestTable_Escrow(t *testing.T) {
	Environment(t, JournalJSON, func(e *Engine, s *Session) {

		table, _ := s.OpenTableHandle("people")
		defer table.Close()

		bookmark := insertName(t, table, "ana")
		AssertNil(table.GotoBookmark(bookmark))

		previous, err := table.EscrowUpdate(2, 5)
		AssertNil(err)
		AssertEqual(previous, int64(0))

		previous, err = table.EscrowUpdate(2, -2)
		AssertNil(err)
		AssertEqual(previous, int64(5))

		v, _ := table.RetrieveColumn(2, binding.RetrieveNone)
		AssertEqual(DecodeInt64(v), int64(3))

		_, err = table.EscrowUpdate(1, 1)
		AssertTrue(errors.Is(err, ErrNotEscrow))
	})
}

func TestTable_Closed(t *testing.T) {
	Environment(t, JournalJSON, func(e *Engine, s *Session) {

		table, _ := s.OpenTableHandle("people")
		AssertNil(table.Close())
		AssertNil(table.Close())

		AssertTrue(errors.Is(table.Move(binding.MoveFirst), ErrTableClosed))
	})
}

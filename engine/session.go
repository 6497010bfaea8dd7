package engine

import (
	"fmt"

	"github.com/fulldump/cursordb/binding"
)

type lockRef struct {
	table *tableData
	id    uint64
}

type savepoint struct {
	undo []func()
	redo []*Command
}

// Session is a flat stack of savepoints. A commit of an inner level merges
// its work into the enclosing one; only the outermost commit reaches the
// journal. Sessions are not goroutine safe, the engine mutex only protects
// shared table state.
type Session struct {
	ID     string
	engine *Engine
	stack  []*savepoint
	locks  []lockRef
	tables map[*Table]struct{}
	closed bool
}

var _ binding.Session = (*Session)(nil)

func (s *Session) check() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.engine.closed {
		return ErrEngineClosed
	}
	return nil
}

// Level is the current transaction depth, 0 when outside any transaction.
func (s *Session) Level() int {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return len(s.stack)
}

func (s *Session) BeginTransaction() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	s.stack = append(s.stack, &savepoint{})
	return nil
}

func (s *Session) CommitTransaction(durable bool) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	return s.commit(durable)
}

func (s *Session) commit(durable bool) error {
	n := len(s.stack)
	if n == 0 {
		return ErrNotInTransaction
	}

	top := s.stack[n-1]

	if n > 1 {
		s.stack = s.stack[:n-1]
		parent := s.stack[n-2]
		parent.undo = append(parent.undo, top.undo...)
		parent.redo = append(parent.redo, top.redo...)
		return nil
	}

	// A failed journal write keeps the savepoint open so it can be rolled back.
	if err := s.engine.writeJournal(top.redo, durable); err != nil {
		return err
	}
	s.stack = s.stack[:0]
	s.releaseLocks()
	return nil
}

func (s *Session) RollbackTransaction() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	return s.rollback()
}

func (s *Session) rollback() error {
	n := len(s.stack)
	if n == 0 {
		return ErrNotInTransaction
	}

	top := s.stack[n-1]
	s.stack = s.stack[:n-1]

	for i := len(top.undo) - 1; i >= 0; i-- {
		top.undo[i]()
	}

	if n == 1 {
		s.releaseLocks()
	}
	return nil
}

func (s *Session) releaseLocks() {
	for _, l := range s.locks {
		if l.table.locks[l.id] == s {
			delete(l.table.locks, l.id)
		}
	}
	s.locks = nil
}

// write runs f inside the current savepoint, or inside an implicit
// transaction when the session has none. Callers hold the engine mutex.
func (s *Session) write(f func(sp *savepoint) error) error {
	if len(s.stack) > 0 {
		return f(s.stack[len(s.stack)-1])
	}

	s.stack = append(s.stack, &savepoint{})
	if err := f(s.stack[0]); err != nil {
		s.rollback()
		return err
	}
	if err := s.commit(s.engine.config.DurableAutoCommit); err != nil {
		s.rollback()
		return err
	}
	return nil
}

// Close closes open tables and rolls back every open level.
func (s *Session) Close() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if s.closed {
		return nil
	}

	for t := range s.tables {
		t.close()
	}
	for len(s.stack) > 0 {
		s.rollback()
	}
	s.closed = true
	delete(s.engine.open, s)

	return nil
}

func (s *Session) OpenTable(name string) (binding.Table, error) {
	return s.OpenTableHandle(name)
}

// OpenTableHandle is OpenTable returning the concrete type.
func (s *Session) OpenTableHandle(name string) (*Table, error) {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.check(); err != nil {
		return nil, err
	}
	data, err := s.engine.table(name)
	if err != nil {
		return nil, err
	}

	t := &Table{
		session: s,
		data:    data,
		index:   data.primary,
		state:   beforeFirst,
	}
	data.openTables++
	s.tables[t] = struct{}{}

	return t, nil
}

// CreateTable creates a table with its initial columns. DDL is applied and
// journaled immediately, it does not take part in transactions.
func (s *Session) CreateTable(name string, columns ...binding.ColumnDef) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}

	payload := &tablePayload{}
	for _, c := range columns {
		payload.Columns = append(payload.Columns, columnPayload{Column: newColumnDefPayload(c)})
	}
	if err := s.engine.createTable(name, payload); err != nil {
		return err
	}

	return s.journalDDL(CommandCreateTable, name, payload)
}

func (s *Session) DeleteTable(name string) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	t, err := s.engine.table(name)
	if err != nil {
		return err
	}
	if t.openTables > 0 {
		return fmt.Errorf("table '%s' has %d open handles: %w", name, t.openTables, ErrTableInUse)
	}
	if len(t.locks) > 0 {
		return fmt.Errorf("table '%s' has uncommitted changes: %w", name, ErrTableInUse)
	}

	t.dropped = true
	delete(s.engine.tables, name)

	return s.journalDDL(CommandDeleteTable, name, struct{}{})
}

func (s *Session) CreateIndex(table string, def IndexDef) error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	t, err := s.engine.table(table)
	if err != nil {
		return err
	}
	if err := t.addIndex(def); err != nil {
		return err
	}

	return s.journalDDL(CommandCreateIndex, table, def)
}

func (s *Session) addColumn(t *tableData, def binding.ColumnDef, defaultValue []byte) (binding.ColumnID, error) {
	id, err := t.addColumn(def, defaultValue)
	if err != nil {
		return 0, err
	}
	payload := &columnPayload{Column: newColumnDefPayload(def), Default: defaultValue}
	return id, s.journalDDL(CommandAddColumn, t.name, payload)
}

func (s *Session) journalDDL(name, table string, payload any) error {
	command, err := newCommand(name, table, 0, payload)
	if err != nil {
		return err
	}
	return s.engine.writeJournal([]*Command{command}, true)
}

package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/fulldump/cursordb/binding"
)

type position int

const (
	beforeFirst position = iota
	onEntry
	afterLast
)

type pendingUpdate struct {
	prep    binding.Prep
	id      uint64 // record being replaced
	columns map[binding.ColumnID][]byte
}

// Table is an engine cursor over one table. Inserting does not move it.
// Deleting the record under it leaves it on a deleted position: Next and
// Previous still work, retrieval fails with binding.ErrNoCurrentRecord.
type Table struct {
	session    *Session
	data       *tableData
	index      *index
	state      position
	pos        indexEntry
	key        []byte
	keyMade    bool
	update     *pendingUpdate
	sequential bool
	closed     bool
}

var _ binding.Table = (*Table)(nil)

func (t *Table) lock() error {
	t.session.engine.mu.Lock()
	if t.closed {
		t.session.engine.mu.Unlock()
		return fmt.Errorf("table '%s': %w", t.data.name, ErrTableClosed)
	}
	if err := t.session.check(); err != nil {
		t.session.engine.mu.Unlock()
		return err
	}
	return nil
}

func (t *Table) unlock() {
	t.session.engine.mu.Unlock()
}

func (t *Table) Name() string {
	return t.data.name
}

func (t *Table) Columns() ([]binding.ColumnInfo, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	defer t.unlock()

	return t.data.columnInfos(), nil
}

func (t *Table) AddColumn(def binding.ColumnDef, defaultValue []byte) (binding.ColumnID, error) {
	if err := t.lock(); err != nil {
		return 0, err
	}
	defer t.unlock()

	return t.session.addColumn(t.data, def, defaultValue)
}

// ColumnID resolves a column name.
func (t *Table) ColumnID(name string) (binding.ColumnID, error) {
	if err := t.lock(); err != nil {
		return 0, err
	}
	defer t.unlock()

	c, exists := t.data.byName[name]
	if !exists {
		return 0, fmt.Errorf("column '%s' of table '%s': %w", name, t.data.name, ErrColumnNotFound)
	}
	return c.info.ID, nil
}

// SetCurrentIndex switches the navigation order and positions the cursor
// before the first entry.
func (t *Table) SetCurrentIndex(name string) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	ix, err := t.data.index(name)
	if err != nil {
		return err
	}
	t.index = ix
	t.state = beforeFirst
	t.pos = indexEntry{}
	t.keyMade = false
	return nil
}

// SetSequential is only a hint, the in-memory engine has no prefetch.
func (t *Table) SetSequential(sequential bool) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	t.sequential = sequential
	return nil
}

func (t *Table) Move(m binding.Move) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	var e indexEntry
	var found bool

	switch m {
	case binding.MoveFirst:
		e, found = t.index.first()
		if !found {
			t.state = beforeFirst
		}
	case binding.MoveLast:
		e, found = t.index.last()
		if !found {
			t.state = afterLast
		}
	case binding.MoveNext:
		switch t.state {
		case beforeFirst:
			e, found = t.index.first()
		case onEntry:
			e, found = t.index.next(t.pos)
		}
		if !found {
			t.state = afterLast
		}
	case binding.MovePrevious:
		switch t.state {
		case afterLast:
			e, found = t.index.last()
		case onEntry:
			e, found = t.index.previous(t.pos)
		}
		if !found {
			t.state = beforeFirst
		}
	default:
		return fmt.Errorf("unknown move %d", m)
	}

	if !found {
		return binding.ErrNoCurrentRecord
	}
	t.state = onEntry
	t.pos = e
	return nil
}

func (t *Table) MoveBeforeFirst() error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	t.state = beforeFirst
	return nil
}

func (t *Table) MoveAfterLast() error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	t.state = afterLast
	return nil
}

// current returns the record under the cursor.
func (t *Table) current() (*record, error) {
	if t.state != onEntry {
		return nil, binding.ErrNoCurrentRecord
	}
	r, exists := t.data.records[t.pos.id]
	if !exists {
		return nil, binding.ErrNoCurrentRecord
	}
	return r, nil
}

func (t *Table) GetBookmark() ([]byte, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	defer t.unlock()

	r, err := t.current()
	if err != nil {
		return nil, err
	}
	return encodeID(r.id), nil
}

func (t *Table) GotoBookmark(bookmark []byte) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	id, ok := decodeID(bookmark)
	if !ok {
		return ErrInvalidBookmark
	}
	r, exists := t.data.records[id]
	if !exists {
		return fmt.Errorf("bookmark %d: %w", id, binding.ErrRecordNotFound)
	}
	e, indexed := t.index.entryOf(r)
	if !indexed {
		return fmt.Errorf("bookmark %d is not in index '%s': %w", id, t.index.def.Name, binding.ErrRecordNotFound)
	}
	t.state = onEntry
	t.pos = e
	return nil
}

func (t *Table) MakeKey(data []byte, grbit binding.MakeKeyGrbit) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	if grbit&binding.NewKey != 0 || !t.keyMade {
		t.key = t.key[:0]
	}
	t.key = append(t.key, data...)
	t.keyMade = true
	return nil
}

// Seek consumes the search key. A miss leaves the position untouched.
func (t *Table) Seek(grbit binding.SeekGrbit) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	if !t.keyMade {
		return ErrKeyNotMade
	}
	key := append([]byte(nil), t.key...)
	t.keyMade = false

	e, found := t.index.seek(key, grbit)
	if !found {
		return binding.ErrRecordNotFound
	}
	t.state = onEntry
	t.pos = e
	return nil
}

func (t *Table) PrepareUpdate(prep binding.Prep) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	switch prep {
	case binding.PrepCancel:
		if t.update == nil {
			return ErrNotInUpdate
		}
		t.update = nil
		return nil

	case binding.PrepInsert:
		if t.update != nil {
			return ErrAlreadyPrepared
		}
		u := &pendingUpdate{
			prep:    prep,
			columns: map[binding.ColumnID][]byte{},
		}
		for _, c := range t.data.columns {
			if c.defaultValue != nil {
				u.columns[c.info.ID] = append([]byte(nil), c.defaultValue...)
			}
		}
		t.update = u
		return nil

	case binding.PrepReplace:
		if t.update != nil {
			return ErrAlreadyPrepared
		}
		r, err := t.current()
		if err != nil {
			return err
		}
		if owner, locked := t.data.locks[r.id]; locked && owner != t.session {
			return fmt.Errorf("record %d of table '%s': %w", r.id, t.data.name, ErrWriteConflict)
		}
		t.update = &pendingUpdate{
			prep:    prep,
			id:      r.id,
			columns: r.clone().columns,
		}
		return nil
	}

	return fmt.Errorf("unknown prep %d", prep)
}

func (t *Table) SetColumn(id binding.ColumnID, data []byte, grbit binding.SetColumnGrbit) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	if t.update == nil {
		return ErrNotInUpdate
	}
	c, err := t.data.column(id)
	if err != nil {
		return err
	}

	if data == nil {
		delete(t.update.columns, id)
		return nil
	}

	value := append([]byte(nil), data...)
	if grbit&binding.SetColumnAppend != 0 {
		value = append(append([]byte(nil), t.update.columns[id]...), data...)
	}
	if err := checkColumnValue(c.info.Type, value); err != nil {
		return fmt.Errorf("column '%s': %w", c.info.Name, err)
	}
	t.update.columns[id] = value

	return nil
}

// Update saves the pending insert or replace and returns the bookmark of
// the written record. The pending update survives a failed save.
func (t *Table) Update() ([]byte, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	defer t.unlock()

	if t.update == nil {
		return nil, ErrNotInUpdate
	}

	u := t.update
	var id uint64
	err := t.session.write(func(sp *savepoint) error {
		var err error
		if u.prep == binding.PrepInsert {
			id, err = t.insert(sp, u)
		} else {
			id, err = t.replace(sp, u)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	t.update = nil
	return encodeID(id), nil
}

func (t *Table) insert(sp *savepoint, u *pendingUpdate) (uint64, error) {
	data := t.data
	r := &record{
		id:      data.nextID,
		columns: u.columns,
	}
	if err := data.checkUnique(r); err != nil {
		return 0, err
	}

	r = r.clone()
	command, err := newCommand(CommandInsert, data.name, r.id, newRecordPayload(r))
	if err != nil {
		return 0, err
	}

	data.allocID()
	data.insertRecord(r)
	data.lock(t.session, r.id)

	sp.undo = append(sp.undo, func() {
		if current, exists := data.records[r.id]; exists {
			data.removeRecord(current)
		}
	})
	sp.redo = append(sp.redo, command)

	return r.id, nil
}

func (t *Table) replace(sp *savepoint, u *pendingUpdate) (uint64, error) {
	data := t.data
	old, exists := data.records[u.id]
	if !exists {
		return 0, fmt.Errorf("record %d: %w", u.id, binding.ErrNoCurrentRecord)
	}
	if err := data.lock(t.session, u.id); err != nil {
		return 0, err
	}

	r := &record{
		id:      u.id,
		columns: u.columns,
	}
	if err := data.checkUnique(r); err != nil {
		return 0, err
	}

	r = r.clone()
	command, err := newCommand(CommandReplace, data.name, r.id, newRecordPayload(r))
	if err != nil {
		return 0, err
	}

	data.replaceRecord(old, r)

	sp.undo = append(sp.undo, func() {
		if current, exists := data.records[old.id]; exists {
			data.replaceRecord(current, old)
		}
	})
	sp.redo = append(sp.redo, command)

	return r.id, nil
}

func (t *Table) Delete() error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	r, err := t.current()
	if err != nil {
		return err
	}
	data := t.data

	return t.session.write(func(sp *savepoint) error {
		if err := data.lock(t.session, r.id); err != nil {
			return err
		}
		command, err := newCommand(CommandDelete, data.name, r.id, struct{}{})
		if err != nil {
			return err
		}

		data.removeRecord(r)

		sp.undo = append(sp.undo, func() {
			data.insertRecord(r)
		})
		sp.redo = append(sp.redo, command)
		return nil
	})
}

// EscrowUpdate adds delta to an escrow column of the current record and
// returns the previous value. It ignores record write locks; the undo is
// logical (subtracts delta) so concurrent escrow updates compose.
func (t *Table) EscrowUpdate(id binding.ColumnID, delta int64) (int64, error) {
	if err := t.lock(); err != nil {
		return 0, err
	}
	defer t.unlock()

	r, err := t.current()
	if err != nil {
		return 0, err
	}
	c, err := t.data.column(id)
	if err != nil {
		return 0, err
	}
	if !c.info.Escrow {
		return 0, fmt.Errorf("column '%s': %w", c.info.Name, ErrNotEscrow)
	}

	data := t.data
	var previous int64
	err = t.session.write(func(sp *savepoint) error {
		command, err := newCommand(CommandEscrow, data.name, r.id, escrowPayload{Column: uint32(id), Delta: delta})
		if err != nil {
			return err
		}

		previous = decodeInt64(r.columns[id])
		r.columns[id] = encodeInt64(previous + delta)

		sp.undo = append(sp.undo, func() {
			if current, exists := data.records[r.id]; exists {
				current.columns[id] = encodeInt64(decodeInt64(current.columns[id]) - delta)
			}
		})
		sp.redo = append(sp.redo, command)
		return nil
	})

	return previous, err
}

func (t *Table) RetrieveColumn(id binding.ColumnID, grbit binding.RetrieveColumnGrbit) ([]byte, error) {
	if err := t.lock(); err != nil {
		return nil, err
	}
	defer t.unlock()

	if _, err := t.data.column(id); err != nil {
		return nil, err
	}

	if grbit&binding.RetrieveCopy != 0 && t.update != nil {
		v, exists := t.update.columns[id]
		if !exists {
			return nil, nil
		}
		return append([]byte(nil), v...), nil
	}

	r, err := t.current()
	if err != nil {
		return nil, err
	}
	v, exists := r.columns[id]
	if !exists {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t *Table) Close() error {
	t.session.engine.mu.Lock()
	defer t.session.engine.mu.Unlock()

	t.close()
	return nil
}

func (t *Table) close() {
	if t.closed {
		return
	}
	t.closed = true
	t.update = nil
	t.data.openTables--
	delete(t.session.tables, t)
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// EncodeInt64 is the wire form of int64 column values.
func EncodeInt64(v int64) []byte {
	return encodeInt64(v)
}

// DecodeInt64 reverses EncodeInt64; anything but 8 bytes decodes to 0.
func DecodeInt64(b []byte) int64 {
	return decodeInt64(b)
}

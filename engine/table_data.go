package engine

import (
	"fmt"
	"sort"

	"github.com/fulldump/cursordb/binding"
)

type record struct {
	id      uint64
	columns map[binding.ColumnID][]byte
}

func (r *record) clone() *record {
	c := &record{
		id:      r.id,
		columns: make(map[binding.ColumnID][]byte, len(r.columns)),
	}
	for k, v := range r.columns {
		c.columns[k] = append([]byte(nil), v...)
	}
	return c
}

type column struct {
	info         binding.ColumnInfo
	defaultValue []byte
}

// tableData is the shared state of one table. Every field is guarded by the
// engine mutex.
type tableData struct {
	name       string
	columns    []*column
	byName     map[string]*column
	records    map[uint64]*record
	primary    *index
	indexes    map[string]*index
	nextID     uint64
	locks      map[uint64]*Session
	openTables int
	dropped    bool
}

func newTableData(name string) *tableData {
	return &tableData{
		name:    name,
		byName:  map[string]*column{},
		records: map[uint64]*record{},
		primary: newIndex(IndexDef{Name: PrimaryIndex, Unique: true}, 0),
		indexes: map[string]*index{},
		nextID:  1,
		locks:   map[uint64]*Session{},
	}
}

func (t *tableData) addColumn(def binding.ColumnDef, defaultValue []byte) (binding.ColumnID, error) {
	if def.Name == "" {
		return 0, fmt.Errorf("column name is empty: %w", ErrInvalidColumnData)
	}
	if _, exists := t.byName[def.Name]; exists {
		return 0, fmt.Errorf("column '%s': %w", def.Name, ErrColumnExists)
	}
	if def.Escrow && def.Type != binding.ColumnInt64 {
		return 0, fmt.Errorf("column '%s' must be int64 to be escrow: %w", def.Name, ErrInvalidColumnData)
	}
	if err := checkColumnValue(def.Type, defaultValue); err != nil {
		return 0, fmt.Errorf("default of column '%s': %w", def.Name, err)
	}

	c := &column{
		info: binding.ColumnInfo{
			ID:        binding.ColumnID(len(t.columns) + 1),
			ColumnDef: def,
		},
		defaultValue: append([]byte(nil), defaultValue...),
	}
	if defaultValue == nil {
		c.defaultValue = nil
	}
	t.columns = append(t.columns, c)
	t.byName[def.Name] = c

	return c.info.ID, nil
}

func (t *tableData) column(id binding.ColumnID) (*column, error) {
	if id == 0 || int(id) > len(t.columns) {
		return nil, fmt.Errorf("column %d of table '%s': %w", id, t.name, ErrColumnNotFound)
	}
	return t.columns[id-1], nil
}

func (t *tableData) columnInfos() []binding.ColumnInfo {
	result := make([]binding.ColumnInfo, 0, len(t.columns))
	for _, c := range t.columns {
		result = append(result, c.info)
	}
	return result
}

func (t *tableData) addIndex(def IndexDef) error {
	if def.Name == "" || def.Name == PrimaryIndex {
		return fmt.Errorf("index name '%s' is reserved: %w", def.Name, ErrIndexExists)
	}
	if _, exists := t.indexes[def.Name]; exists {
		return fmt.Errorf("index '%s': %w", def.Name, ErrIndexExists)
	}
	c, exists := t.byName[def.Column]
	if !exists {
		return fmt.Errorf("index '%s' over column '%s': %w", def.Name, def.Column, ErrColumnNotFound)
	}

	ix := newIndex(def, c.info.ID)
	for _, id := range t.sortedIDs() {
		r := t.records[id]
		if ix.conflicts(r) {
			return fmt.Errorf("index '%s', record %d: %w", def.Name, id, ErrKeyDuplicate)
		}
		ix.insert(r)
	}
	t.indexes[def.Name] = ix

	return nil
}

func (t *tableData) index(name string) (*index, error) {
	if name == "" || name == PrimaryIndex {
		return t.primary, nil
	}
	ix, exists := t.indexes[name]
	if !exists {
		return nil, fmt.Errorf("index '%s' of table '%s': %w", name, t.name, ErrIndexNotFound)
	}
	return ix, nil
}

func (t *tableData) sortedIDs() []uint64 {
	ids := make([]uint64, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *tableData) checkUnique(r *record) error {
	for name, ix := range t.indexes {
		if ix.conflicts(r) {
			return fmt.Errorf("index '%s' of table '%s': %w", name, t.name, ErrKeyDuplicate)
		}
	}
	return nil
}

func (t *tableData) insertRecord(r *record) {
	t.records[r.id] = r
	t.primary.insert(r)
	for _, ix := range t.indexes {
		ix.insert(r)
	}
	if r.id >= t.nextID {
		t.nextID = r.id + 1
	}
}

func (t *tableData) removeRecord(r *record) {
	delete(t.records, r.id)
	t.primary.remove(r)
	for _, ix := range t.indexes {
		ix.remove(r)
	}
}

// replaceRecord swaps old for r, both sharing the same id.
func (t *tableData) replaceRecord(old, r *record) {
	for _, ix := range t.indexes {
		ix.remove(old)
	}
	t.records[r.id] = r
	for _, ix := range t.indexes {
		ix.insert(r)
	}
}

func (t *tableData) allocID() uint64 {
	id := t.nextID
	t.nextID++
	return id
}

func (t *tableData) lock(s *Session, id uint64) error {
	owner, locked := t.locks[id]
	if locked && owner != s {
		return fmt.Errorf("record %d of table '%s': %w", id, t.name, ErrWriteConflict)
	}
	if !locked {
		t.locks[id] = s
		s.locks = append(s.locks, lockRef{table: t, id: id})
	}
	return nil
}

func checkColumnValue(t binding.ColumnType, data []byte) error {
	if data == nil {
		return nil
	}
	if t == binding.ColumnInt64 && len(data) != 8 {
		return fmt.Errorf("int64 column needs 8 bytes, got %d: %w", len(data), ErrInvalidColumnData)
	}
	return nil
}

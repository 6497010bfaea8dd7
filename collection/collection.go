package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SierraSoftworks/connor"
	jsonv2 "github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fulldump/cursordb/binding"
	"github.com/fulldump/cursordb/engine"
	"github.com/fulldump/cursordb/isam"
	"github.com/fulldump/cursordb/logging"
)

var (
	ErrCollectionNotFound      = errors.New("collection not found")
	ErrCollectionAlreadyExists = errors.New("collection already exists")
	ErrReservedName            = errors.New("collection name is reserved")
	ErrNotFound                = errors.New("document not found")
	ErrKeyConflict             = errors.New("document key already exists")
	ErrNoKeyField              = errors.New("collection has no key field")
)

const (
	IndexByID  = "by-id"
	IndexByKey = "by-key"
)

const (
	columnID binding.ColumnID = iota + 1
	columnPayload
	columnCounter
	columnKey
)

var columns = []binding.ColumnDef{
	{Name: "id", Type: binding.ColumnInt64},
	{Name: "payload", Type: binding.ColumnLongBinary},
	{Name: "counter", Type: binding.ColumnInt64, Escrow: true},
	{Name: "key", Type: binding.ColumnText},
}

type Options struct {
	// KeyField is a gjson path whose value must be unique in the
	// collection. Only used on Create.
	KeyField string
	// CacheSize is the number of pooled cursors used to reach documents
	// by id.
	CacheSize int
	// DurableCommit syncs the journal on every outermost commit.
	DurableCommit bool
	Logger        *slog.Logger
}

func (o *Options) orDefault() *Options {
	result := Options{CacheSize: 8, DurableCommit: true}
	if o != nil {
		result = *o
	}
	if result.CacheSize < 1 {
		result.CacheSize = 1
	}
	return &result
}

type Row struct {
	ID      int64           `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Counter int64           `json:"counter"`
}

// Collection is a set of JSON documents stored in one engine table. Every
// method is goroutine safe; they are serialised on one isam session.
type Collection struct {
	Name     string
	KeyField string
	Defaults map[string]any

	engine  *engine.Engine
	es      *engine.Session
	session *isam.Session
	cursor  *isam.Cursor
	byKey   *isam.Cursor
	cache   *isam.CursorCache[*isam.Cursor]
	durable bool
	logger  *slog.Logger

	mutex sync.Mutex
	maxID int64
}

// Create creates the table and the indexes of a new collection and opens it.
func Create(e *engine.Engine, name string, options *Options) (*Collection, error) {
	options = options.orDefault()

	if name == "" {
		return nil, fmt.Errorf("collection name is empty")
	}
	if reservedName(name) {
		return nil, fmt.Errorf("collection '%s': %w", name, ErrReservedName)
	}

	es, err := e.BeginSession()
	if err != nil {
		return nil, err
	}

	err = createTable(es, name, options.KeyField)
	if err != nil {
		es.Close()
		return nil, err
	}

	s := isam.NewSession(es, isam.WithLogger(options.Logger))
	m := &meta{Name: name, KeyField: options.KeyField}
	if err := writeMeta(s, m, options.DurableCommit); err != nil {
		s.Close()
		return nil, fmt.Errorf("write collection meta: %w", err)
	}

	return open(e, es, s, m, options)
}

func createTable(es *engine.Session, name, keyField string) error {
	if err := ensureMeta(es); err != nil {
		return err
	}

	err := es.CreateTable(name, columns...)
	if errors.Is(err, engine.ErrTableExists) {
		return fmt.Errorf("collection '%s': %w", name, ErrCollectionAlreadyExists)
	}
	if err != nil {
		return err
	}

	err = es.CreateIndex(name, engine.IndexDef{Name: IndexByID, Column: "id", Unique: true})
	if err != nil {
		return err
	}

	if keyField == "" {
		return nil
	}
	return es.CreateIndex(name, engine.IndexDef{Name: IndexByKey, Column: "key", Unique: true})
}

// Open opens an existing collection.
func Open(e *engine.Engine, name string, options *Options) (*Collection, error) {
	options = options.orDefault()

	es, err := e.BeginSession()
	if err != nil {
		return nil, err
	}
	s := isam.NewSession(es, isam.WithLogger(options.Logger))

	m, err := readMeta(s, name)
	if err != nil {
		s.Close()
		return nil, err
	}

	return open(e, es, s, m, options)
}

func open(e *engine.Engine, es *engine.Session, s *isam.Session, m *meta, options *Options) (*Collection, error) {
	c := &Collection{
		Name:     m.Name,
		KeyField: m.KeyField,
		Defaults: m.Defaults,
		engine:   e,
		es:       es,
		session:  s,
		durable:  options.DurableCommit,
		logger:   logging.OrDefault(options.Logger).With("collection", m.Name),
	}

	err := c.openCursors(options.CacheSize)
	if err != nil {
		c.closeCursors()
		s.Close()
		return nil, err
	}

	found, err := c.cursor.TryMoveLast()
	if err != nil {
		c.closeCursors()
		s.Close()
		return nil, err
	}
	if found {
		c.maxID, err = c.retrieveInt64(c.cursor, columnID)
		if err != nil {
			c.closeCursors()
			s.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Collection) openByID() (*isam.Cursor, error) {
	cursor, err := c.session.OpenCursor(c.Name)
	if err != nil {
		return nil, err
	}
	if err := cursor.SetCurrentIndex(IndexByID); err != nil {
		cursor.Close()
		return nil, err
	}
	return cursor, nil
}

func (c *Collection) openCursors(cacheSize int) error {
	var err error

	c.cursor, err = c.openByID()
	if err != nil {
		return err
	}

	if c.KeyField != "" {
		c.byKey, err = c.session.OpenCursor(c.Name)
		if err != nil {
			return err
		}
		if err := c.byKey.SetCurrentIndex(IndexByKey); err != nil {
			return err
		}
	}

	c.cache, err = isam.NewCursorCache(c.openByID, func(cursor *isam.Cursor) error {
		return cursor.Close()
	}, c.Name, cacheSize, isam.CacheLogger(c.logger))

	return err
}

func (c *Collection) closeCursors() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if c.cache != nil {
		keep(c.cache.Close())
	}
	if c.byKey != nil {
		keep(c.byKey.Close())
	}
	if c.cursor != nil {
		keep(c.cursor.Close())
	}
	return first
}

// Tx gives access to the collection inside Collection.Transaction.
type Tx struct {
	c *Collection
}

func (tx *Tx) Insert(item map[string]any) (*Row, error) {
	return tx.c.insert(item)
}

func (tx *Tx) Get(id int64) (*Row, error) {
	return tx.c.get(id)
}

func (tx *Tx) FindByKey(value string) (*Row, error) {
	return tx.c.findByKey(value)
}

func (tx *Tx) Patch(id int64, diff map[string]any) (*Row, error) {
	return tx.c.patch(id, diff)
}

func (tx *Tx) Remove(id int64) (*Row, error) {
	return tx.c.remove(id)
}

func (tx *Tx) Incr(id int64, delta int64) (int64, error) {
	return tx.c.incr(id, delta)
}

func (tx *Tx) Traverse(options TraverseOptions, f func(row *Row) bool) error {
	return tx.c.traverse(options, f)
}

// Transaction runs f in one transaction, committed when f returns nil and
// rolled back otherwise. The collection stays locked until it is resolved,
// so f must only use tx.
func (c *Collection) Transaction(f func(tx *Tx) error) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	t, err := c.session.Begin()
	if err != nil {
		return err
	}
	defer t.Dispose()

	maxID := c.maxID
	t.OnRollback(func() {
		c.maxID = maxID
	})

	if err := f(&Tx{c: c}); err != nil {
		return err
	}
	return t.Commit(c.durable)
}

// write runs f joined to the current transaction, or in its own one.
func (c *Collection) write(f func() error) error {
	tx, err := c.session.Join()
	if err != nil {
		return err
	}
	defer tx.Dispose()

	if err := f(); err != nil {
		return err
	}
	return tx.Commit(c.durable)
}

func (c *Collection) retrieveInt64(cursor *isam.Cursor, column binding.ColumnID) (int64, error) {
	v, err := cursor.RetrieveColumn(column, binding.RetrieveNone)
	if err != nil {
		return 0, err
	}
	return engine.DecodeInt64(v), nil
}

func (c *Collection) readRow(cursor *isam.Cursor) (*Row, error) {
	id, err := c.retrieveInt64(cursor, columnID)
	if err != nil {
		return nil, err
	}
	payload, err := cursor.RetrieveColumn(columnPayload, binding.RetrieveNone)
	if err != nil {
		return nil, err
	}
	counter, err := c.retrieveInt64(cursor, columnCounter)
	if err != nil {
		return nil, err
	}
	return &Row{
		ID:      id,
		Payload: payload,
		Counter: counter,
	}, nil
}

func seekID(cursor *isam.Cursor, id int64) (bool, error) {
	if err := cursor.MakeKey(engine.EncodeInt64(id), binding.NewKey); err != nil {
		return false, err
	}
	return cursor.TrySeek(binding.SeekEQ)
}

// position returns a cursor standing on document id. A cached cursor is
// reused when it still stands on it, otherwise it is sought again.
func (c *Collection) position(id int64) (*isam.Cursor, error) {
	if id == 0 {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}

	var cursor *isam.Cursor
	if c.cache.HasCachedCursor(id) {
		cursor = c.cache.GetCachedCursor(id)
		if cursor.HasCurrency() {
			current, err := c.retrieveInt64(cursor, columnID)
			if err == nil && current == id {
				return cursor, nil
			}
		}
	} else {
		cursor = c.cache.GetNewCursor(id)
	}

	found, err := seekID(cursor, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return cursor, nil
}

func (c *Collection) keyOf(payload []byte) []byte {
	if c.KeyField == "" {
		return nil
	}
	result := gjson.GetBytes(payload, c.KeyField)
	if !result.Exists() || result.Type == gjson.Null {
		return nil
	}
	return []byte(result.String())
}

func translateKeyError(err error) error {
	if errors.Is(err, engine.ErrKeyDuplicate) {
		return fmt.Errorf("%w: %s", ErrKeyConflict, err.Error())
	}
	return err
}

func (c *Collection) applyDefaults(item map[string]any, id int64) {
	for k, v := range c.Defaults {
		if item[k] != nil {
			continue
		}
		var value any
		switch v {
		case "uuid()":
			value = uuid.NewString()
		case "unixnano()":
			value = time.Now().UnixNano()
		case "auto()":
			value = id
		default:
			value = v
		}
		item[k] = value
	}
}

func (c *Collection) Insert(item map[string]any) (*Row, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.insert(item)
}

func (c *Collection) insert(item map[string]any) (*Row, error) {
	if item == nil {
		item = map[string]any{}
	}

	id := c.maxID + 1
	c.applyDefaults(item, id)

	payload, err := jsonv2.Marshal(item, jsonv2.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("json encode payload: %w", err)
	}

	var row *Row
	err = c.write(func() error {
		if err := c.cursor.PrepareUpdate(binding.PrepInsert); err != nil {
			return err
		}
		if err := c.cursor.SetColumn(columnID, engine.EncodeInt64(id), binding.SetColumnNone); err != nil {
			return err
		}
		if err := c.cursor.SetColumn(columnPayload, payload, binding.SetColumnNone); err != nil {
			return err
		}
		if err := c.cursor.SetColumn(columnKey, c.keyOf(payload), binding.SetColumnNone); err != nil {
			return err
		}
		if _, err := c.cursor.Update(); err != nil {
			c.cursor.CancelUpdate()
			return translateKeyError(err)
		}
		row, err = c.readRow(c.cursor)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.maxID = id
	return row, nil
}

func (c *Collection) Get(id int64) (*Row, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.get(id)
}

func (c *Collection) get(id int64) (*Row, error) {
	cursor, err := c.position(id)
	if err != nil {
		return nil, err
	}
	return c.readRow(cursor)
}

// FindByKey looks a document up by the value of the key field.
func (c *Collection) FindByKey(value string) (*Row, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.findByKey(value)
}

func (c *Collection) findByKey(value string) (*Row, error) {
	if c.byKey == nil {
		return nil, fmt.Errorf("collection '%s': %w", c.Name, ErrNoKeyField)
	}

	if err := c.byKey.MakeKey([]byte(value), binding.NewKey); err != nil {
		return nil, err
	}
	found, err := c.byKey.TrySeek(binding.SeekEQ)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("key '%s': %w", value, ErrNotFound)
	}
	return c.readRow(c.byKey)
}

// Patch sets every path of diff in the document; a nil value deletes the
// path.
func (c *Collection) Patch(id int64, diff map[string]any) (*Row, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.patch(id, diff)
}

func (c *Collection) patch(id int64, diff map[string]any) (*Row, error) {
	var row *Row
	err := c.write(func() error {
		cursor, err := c.position(id)
		if err != nil {
			return err
		}
		payload, err := cursor.RetrieveColumn(columnPayload, binding.RetrieveNone)
		if err != nil {
			return err
		}

		for path, value := range diff {
			if value == nil {
				payload, err = sjson.DeleteBytes(payload, path)
			} else {
				payload, err = sjson.SetBytes(payload, path, value)
			}
			if err != nil {
				return fmt.Errorf("patch '%s': %w", path, err)
			}
		}

		if err := cursor.PrepareUpdate(binding.PrepReplace); err != nil {
			return err
		}
		if err := cursor.SetColumn(columnPayload, payload, binding.SetColumnNone); err != nil {
			return err
		}
		if err := cursor.SetColumn(columnKey, c.keyOf(payload), binding.SetColumnNone); err != nil {
			return err
		}
		if _, err := cursor.Update(); err != nil {
			cursor.CancelUpdate()
			return translateKeyError(err)
		}

		row, err = c.readRow(cursor)
		return err
	})

	return row, err
}

// Remove deletes a document and returns it.
func (c *Collection) Remove(id int64) (*Row, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.remove(id)
}

func (c *Collection) remove(id int64) (*Row, error) {
	var row *Row
	err := c.write(func() error {
		cursor, err := c.position(id)
		if err != nil {
			return err
		}
		row, err = c.readRow(cursor)
		if err != nil {
			return err
		}
		return cursor.Delete()
	})

	return row, err
}

// Incr adds delta to the counter of a document without taking its write
// lock, and returns the new value.
func (c *Collection) Incr(id int64, delta int64) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.incr(id, delta)
}

func (c *Collection) incr(id int64, delta int64) (int64, error) {
	var value int64
	err := c.write(func() error {
		cursor, err := c.position(id)
		if err != nil {
			return err
		}
		previous, err := cursor.EscrowUpdate(columnCounter, delta)
		if err != nil {
			return err
		}
		value = previous + delta
		return nil
	})

	return value, err
}

type TraverseOptions struct {
	Filter  map[string]any
	Skip    int64
	Limit   int64 // 0 means no limit
	Reverse bool
}

// Traverse walks documents in id order calling f until it returns false.
// f must not call back into the collection.
func (c *Collection) Traverse(options TraverseOptions, f func(row *Row) bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.traverse(options, f)
}

func (c *Collection) traverse(options TraverseOptions, f func(row *Row) bool) error {
	cursor := c.cursor
	if err := cursor.SetSequential(); err != nil {
		return err
	}
	defer cursor.ResetSequential()

	move := cursor.TryMoveNext
	if options.Reverse {
		move = cursor.TryMovePrevious
		if err := cursor.MoveAfterLast(); err != nil {
			return err
		}
	} else if err := cursor.MoveBeforeFirst(); err != nil {
		return err
	}

	hasFilter := len(options.Filter) > 0
	skip := options.Skip
	limit := options.Limit

	for {
		found, err := move()
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		row, err := c.readRow(cursor)
		if err != nil {
			return err
		}

		if hasFilter {
			document := map[string]any{}
			if err := jsonv2.Unmarshal(row.Payload, &document); err != nil {
				return fmt.Errorf("decode document %d: %w", row.ID, err)
			}
			match, err := connor.Match(options.Filter, document)
			if err != nil {
				return fmt.Errorf("match: %w", err)
			}
			if !match {
				continue
			}
		}

		if skip > 0 {
			skip--
			continue
		}

		if !f(row) {
			return nil
		}

		if limit > 0 {
			limit--
			if limit == 0 {
				return nil
			}
		}
	}
}

// Count is the number of stored documents.
func (c *Collection) Count() (int, error) {
	return c.engine.Count(c.Name)
}

// GetDefaults returns a copy of the defaults applied on insert.
func (c *Collection) GetDefaults() map[string]any {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.Defaults == nil {
		return nil
	}
	result := make(map[string]any, len(c.Defaults))
	for k, v := range c.Defaults {
		result[k] = v
	}
	return result
}

func (c *Collection) SetDefaults(defaults map[string]any) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	m := &meta{
		Name:     c.Name,
		KeyField: c.KeyField,
		Defaults: defaults,
	}
	if err := writeMeta(c.session, m, c.durable); err != nil {
		return err
	}
	c.Defaults = defaults
	return nil
}

func (c *Collection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.closeCursors()
	if closeErr := c.session.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Drop closes the collection and deletes its table and settings.
func (c *Collection) Drop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.closeCursors(); err != nil {
		c.logger.Error("close cursors", "err", err)
	}
	defer c.session.Close()

	if err := deleteMeta(c.session, c.Name, c.durable); err != nil {
		return err
	}
	return c.es.DeleteTable(c.Name)
}

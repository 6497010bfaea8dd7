// Package engine is an in-memory record engine with btree tables, secondary
// indexes, nested transactions and an append only journal. It implements the
// binding contract consumed by the isam package.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	"github.com/fulldump/cursordb/binding"
	"github.com/fulldump/cursordb/logging"
)

type Config struct {
	// Dir holds the journal. Empty means memory only.
	Dir string
	// Journal codec: json or xz.
	Journal string
	// DurableAutoCommit is the durability of the implicit transaction
	// wrapped around writes issued outside any transaction.
	DurableAutoCommit bool
	Logger            *slog.Logger
}

type Engine struct {
	config  Config
	logger  *slog.Logger
	mu      sync.Mutex
	tables  map[string]*tableData
	journal *Journal
	open    map[*Session]struct{}
	closed  bool
}

func Open(config Config) (*Engine, error) {
	e := &Engine{
		config: config,
		logger: logging.OrDefault(config.Logger).With("component", "engine"),
		tables: map[string]*tableData{},
		open:   map[*Session]struct{}{},
	}

	if config.Dir == "" {
		return e, nil
	}

	err := os.MkdirAll(config.Dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("create engine dir: %w", err)
	}

	replayed := 0
	err = LoadJournal(config.Dir, config.Journal, func(command *Command) error {
		replayed++
		return e.replay(command)
	})
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}

	e.journal, err = OpenJournal(config.Dir, config.Journal)
	if err != nil {
		return nil, err
	}

	e.logger.Info("engine opened", "dir", config.Dir, "tables", len(e.tables), "commands", replayed)

	return e, nil
}

func (e *Engine) BeginSession() (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}

	s := &Session{
		engine: e,
		ID:     uuid.NewString(),
		tables: map[*Table]struct{}{},
	}
	e.open[s] = struct{}{}

	return s, nil
}

// Tables lists table names in lexical order.
func (e *Engine) Tables() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of records currently stored in a table,
// including uncommitted ones.
func (e *Engine) Count(table string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, exists := e.tables[table]
	if !exists {
		return 0, fmt.Errorf("table '%s': %w", table, ErrTableNotFound)
	}
	return len(t.records), nil
}

// Close ends every open session, rolling back their pending work, and
// flushes the journal.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	sessions := make([]*Session, 0, len(e.open))
	for s := range e.open {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			e.logger.Error("close session", "session", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true

	if e.journal == nil {
		return nil
	}
	return e.journal.Close()
}

func (e *Engine) table(name string) (*tableData, error) {
	t, exists := e.tables[name]
	if !exists {
		return nil, fmt.Errorf("table '%s': %w", name, ErrTableNotFound)
	}
	return t, nil
}

// writeJournal appends committed commands; durable forces them to disk.
func (e *Engine) writeJournal(commands []*Command, durable bool) error {
	if e.journal == nil {
		return nil
	}
	if len(commands) > 0 {
		if err := e.journal.Append(commands...); err != nil {
			return err
		}
	}
	if durable {
		return e.journal.Sync()
	}
	return nil
}

func (e *Engine) replay(command *Command) error {
	switch command.Name {
	case CommandCreateTable:
		payload := &tablePayload{}
		if err := json.Unmarshal(command.Payload, payload); err != nil {
			return err
		}
		return e.createTable(command.Table, payload)

	case CommandDeleteTable:
		delete(e.tables, command.Table)
		return nil

	case CommandAddColumn:
		payload := &columnPayload{}
		if err := json.Unmarshal(command.Payload, payload); err != nil {
			return err
		}
		t, err := e.table(command.Table)
		if err != nil {
			return err
		}
		_, err = t.addColumn(payload.Column.def(), payload.Default)
		return err

	case CommandCreateIndex:
		def := IndexDef{}
		if err := json.Unmarshal(command.Payload, &def); err != nil {
			return err
		}
		t, err := e.table(command.Table)
		if err != nil {
			return err
		}
		return t.addIndex(def)

	case CommandInsert, CommandReplace:
		payload := &recordPayload{}
		if err := json.Unmarshal(command.Payload, payload); err != nil {
			return err
		}
		t, err := e.table(command.Table)
		if err != nil {
			return err
		}
		r, err := payload.record(command.ID)
		if err != nil {
			return err
		}
		if old, exists := t.records[r.id]; exists {
			t.replaceRecord(old, r)
			return nil
		}
		t.insertRecord(r)
		return nil

	case CommandDelete:
		t, err := e.table(command.Table)
		if err != nil {
			return err
		}
		if r, exists := t.records[command.ID]; exists {
			t.removeRecord(r)
		}
		return nil

	case CommandEscrow:
		payload := &escrowPayload{}
		if err := json.Unmarshal(command.Payload, payload); err != nil {
			return err
		}
		t, err := e.table(command.Table)
		if err != nil {
			return err
		}
		r, exists := t.records[command.ID]
		if !exists {
			return nil
		}
		r.columns[binding.ColumnID(payload.Column)] = encodeInt64(decodeInt64(r.columns[binding.ColumnID(payload.Column)]) + payload.Delta)
		return nil
	}

	return fmt.Errorf("unknown command '%s'", command.Name)
}

func (e *Engine) createTable(name string, payload *tablePayload) error {
	if name == "" {
		return fmt.Errorf("table name is empty")
	}
	if _, exists := e.tables[name]; exists {
		return fmt.Errorf("table '%s': %w", name, ErrTableExists)
	}
	t := newTableData(name)
	for _, c := range payload.Columns {
		if _, err := t.addColumn(c.Column.def(), c.Default); err != nil {
			return err
		}
	}
	e.tables[name] = t
	return nil
}

func (c columnDefPayload) def() binding.ColumnDef {
	return binding.ColumnDef{
		Name:   c.Name,
		Type:   binding.ColumnType(c.Type),
		Escrow: c.Escrow,
	}
}

func newColumnDefPayload(def binding.ColumnDef) columnDefPayload {
	return columnDefPayload{
		Name:   def.Name,
		Type:   int(def.Type),
		Escrow: def.Escrow,
	}
}

func newRecordPayload(r *record) *recordPayload {
	p := &recordPayload{
		Columns: make(map[string][]byte, len(r.columns)),
	}
	for id, v := range r.columns {
		p.Columns[strconv.FormatUint(uint64(id), 10)] = v
	}
	return p
}

func (p *recordPayload) record(id uint64) (*record, error) {
	r := &record{
		id:      id,
		columns: make(map[binding.ColumnID][]byte, len(p.Columns)),
	}
	for k, v := range p.Columns {
		c, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("column id '%s': %w", k, err)
		}
		r.columns[binding.ColumnID(c)] = v
	}
	return r, nil
}

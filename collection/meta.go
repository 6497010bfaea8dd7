package collection

import (
	"errors"
	"fmt"
	"strings"

	jsonv2 "github.com/go-json-experiment/json"

	"github.com/fulldump/cursordb/binding"
	"github.com/fulldump/cursordb/engine"
	"github.com/fulldump/cursordb/isam"
)

// MetaTable holds one record per collection with its settings.
const MetaTable = "_collections"

const metaIndexByName = "by-name"

const (
	metaColumnName binding.ColumnID = iota + 1
	metaColumnKeyField
	metaColumnDefaults
)

var metaColumns = []binding.ColumnDef{
	{Name: "name", Type: binding.ColumnText},
	{Name: "key_field", Type: binding.ColumnText},
	{Name: "defaults", Type: binding.ColumnLongBinary},
}

type meta struct {
	Name     string
	KeyField string
	Defaults map[string]any
}

func ensureMeta(es *engine.Session) error {
	err := es.CreateTable(MetaTable, metaColumns...)
	if errors.Is(err, engine.ErrTableExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return es.CreateIndex(MetaTable, engine.IndexDef{Name: metaIndexByName, Column: "name", Unique: true})
}

func reservedName(name string) bool {
	return strings.HasPrefix(name, "_")
}

func openMetaCursor(s *isam.Session) (*isam.Cursor, error) {
	c, err := s.OpenCursor(MetaTable)
	if err != nil {
		return nil, err
	}
	if err := c.SetCurrentIndex(metaIndexByName); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func seekMeta(c *isam.Cursor, name string) (bool, error) {
	if err := c.MakeKey([]byte(name), binding.NewKey); err != nil {
		return false, err
	}
	return c.TrySeek(binding.SeekEQ)
}

func readMeta(s *isam.Session, name string) (*meta, error) {
	c, err := openMetaCursor(s)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	found, err := seekMeta(c, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("collection '%s': %w", name, ErrCollectionNotFound)
	}

	return retrieveMeta(c)
}

func retrieveMeta(c *isam.Cursor) (*meta, error) {
	m := &meta{}

	name, err := c.RetrieveColumn(metaColumnName, binding.RetrieveNone)
	if err != nil {
		return nil, err
	}
	m.Name = string(name)

	keyField, err := c.RetrieveColumn(metaColumnKeyField, binding.RetrieveNone)
	if err != nil {
		return nil, err
	}
	m.KeyField = string(keyField)

	defaults, err := c.RetrieveColumn(metaColumnDefaults, binding.RetrieveNone)
	if err != nil {
		return nil, err
	}
	if len(defaults) > 0 {
		if err := jsonv2.Unmarshal(defaults, &m.Defaults); err != nil {
			return nil, fmt.Errorf("decode defaults of '%s': %w", m.Name, err)
		}
	}

	return m, nil
}

// writeMeta inserts or replaces the meta record of m.Name.
func writeMeta(s *isam.Session, m *meta, durable bool) error {
	c, err := openMetaCursor(s)
	if err != nil {
		return err
	}
	defer c.Close()

	var defaults []byte
	if len(m.Defaults) > 0 {
		defaults, err = jsonv2.Marshal(m.Defaults, jsonv2.Deterministic(true))
		if err != nil {
			return fmt.Errorf("encode defaults: %w", err)
		}
	}

	tx, err := s.Join()
	if err != nil {
		return err
	}
	defer tx.Dispose()

	found, err := seekMeta(c, m.Name)
	if err != nil {
		return err
	}
	prep := binding.PrepInsert
	if found {
		prep = binding.PrepReplace
	}
	if err := c.PrepareUpdate(prep); err != nil {
		return err
	}
	if err := c.SetColumn(metaColumnName, []byte(m.Name), binding.SetColumnNone); err != nil {
		return err
	}
	var keyField []byte
	if m.KeyField != "" {
		keyField = []byte(m.KeyField)
	}
	if err := c.SetColumn(metaColumnKeyField, keyField, binding.SetColumnNone); err != nil {
		return err
	}
	if err := c.SetColumn(metaColumnDefaults, defaults, binding.SetColumnNone); err != nil {
		return err
	}
	if _, err := c.Update(); err != nil {
		return err
	}

	return tx.Commit(durable)
}

func deleteMeta(s *isam.Session, name string, durable bool) error {
	c, err := openMetaCursor(s)
	if err != nil {
		return err
	}
	defer c.Close()

	tx, err := s.Join()
	if err != nil {
		return err
	}
	defer tx.Dispose()

	found, err := seekMeta(c, name)
	if err != nil {
		return err
	}
	if found {
		if err := c.Delete(); err != nil {
			return err
		}
	}

	return tx.Commit(durable)
}

// List returns the names of every collection stored in the engine, in
// lexical order.
func List(e *engine.Engine) ([]string, error) {
	names := []string{}

	tables := e.Tables()
	hasMeta := false
	for _, table := range tables {
		if table == MetaTable {
			hasMeta = true
		}
	}
	if !hasMeta {
		return names, nil
	}

	es, err := e.BeginSession()
	if err != nil {
		return nil, err
	}
	s := isam.NewSession(es)
	defer s.Close()

	c, err := openMetaCursor(s)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	for {
		found, err := c.TryMoveNext()
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		name, err := c.RetrieveColumn(metaColumnName, binding.RetrieveNone)
		if err != nil {
			return nil, err
		}
		names = append(names, string(name))
	}

	return names, nil
}

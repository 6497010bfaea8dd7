package database

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fulldump/cursordb/collection"
	"github.com/fulldump/cursordb/engine"
	"github.com/fulldump/cursordb/logging"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

var (
	ErrNotLoaded = errors.New("database not loaded")
	ErrStopped   = errors.New("database stopped while loading")
)

type Config struct {
	Dir           string
	Journal       string
	CacheSize     int
	DurableCommit bool
	Logger        *slog.Logger
}

type Database struct {
	config      *Config
	logger      *slog.Logger
	status      string
	engine      *engine.Engine
	collections map[string]*collection.Collection
	mutex       sync.RWMutex
	exit        chan struct{}
	stopOnce    sync.Once
}

func NewDatabase(config *Config) *Database {
	return &Database{
		config:      config,
		logger:      logging.OrDefault(config.Logger).With("component", "database"),
		status:      StatusOpening,
		collections: map[string]*collection.Collection{},
		exit:        make(chan struct{}),
	}
}

func (db *Database) GetStatus() string {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.status
}

func (db *Database) setStatus(status string) {
	db.mutex.Lock()
	db.status = status
	db.mutex.Unlock()
}

func (db *Database) collectionOptions() *collection.Options {
	return &collection.Options{
		CacheSize:     db.config.CacheSize,
		DurableCommit: db.config.DurableCommit,
		Logger:        db.config.Logger,
	}
}

// Load opens the engine and every collection found in it.
func (db *Database) Load() error {

	db.logger.Info("loading database", "dir", db.config.Dir)

	e, err := engine.Open(engine.Config{
		Dir:               db.config.Dir,
		Journal:           db.config.Journal,
		DurableAutoCommit: db.config.DurableCommit,
		Logger:            db.config.Logger,
	})
	if err != nil {
		db.setStatus(StatusClosing)
		return err
	}

	names, err := collection.List(e)
	if err != nil {
		e.Close()
		db.setStatus(StatusClosing)
		return err
	}

	collections := map[string]*collection.Collection{}
	for _, name := range names {
		t0 := time.Now()
		col, err := collection.Open(e, name, db.collectionOptions())
		if err != nil {
			db.logger.Error("open collection", "collection", name, "err", err)
			for _, opened := range collections {
				opened.Close()
			}
			e.Close()
			db.setStatus(StatusClosing)
			return fmt.Errorf("open collection '%s': %w", name, err)
		}
		count, _ := col.Count()
		db.logger.Info("collection loaded", "collection", name, "documents", count, "took", time.Since(t0))
		collections[name] = col
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.status == StatusClosing {
		for _, col := range collections {
			col.Close()
		}
		e.Close()
		return ErrStopped
	}

	db.engine = e
	db.collections = collections
	db.status = StatusOperating

	return nil
}

func (db *Database) Start() error {

	go func() {
		if err := db.Load(); err != nil {
			db.logger.Error("load database", "err", err)
		}
	}()

	<-db.exit

	return nil
}

func (db *Database) Stop() error {

	var lastErr error
	db.stopOnce.Do(func() {
		defer close(db.exit)

		db.mutex.Lock()
		defer db.mutex.Unlock()

		db.status = StatusClosing

		for name, col := range db.collections {
			db.logger.Info("closing collection", "collection", name)
			if err := col.Close(); err != nil {
				db.logger.Error("close collection", "collection", name, "err", err)
				lastErr = err
			}
		}
		db.collections = map[string]*collection.Collection{}

		if db.engine == nil {
			return
		}
		if err := db.engine.Close(); err != nil {
			db.logger.Error("close engine", "err", err)
			lastErr = err
		}
	})

	return lastErr
}

func (db *Database) CreateCollection(name, keyField string) (*collection.Collection, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.engine == nil {
		return nil, ErrNotLoaded
	}

	if _, exists := db.collections[name]; exists {
		return nil, fmt.Errorf("collection '%s': %w", name, collection.ErrCollectionAlreadyExists)
	}

	options := db.collectionOptions()
	options.KeyField = keyField
	col, err := collection.Create(db.engine, name, options)
	if err != nil {
		return nil, err
	}

	db.collections[name] = col
	db.logger.Info("collection created", "collection", name, "key_field", keyField)

	return col, nil
}

func (db *Database) GetCollection(name string) (*collection.Collection, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	col, exists := db.collections[name]
	if !exists {
		return nil, fmt.Errorf("collection '%s': %w", name, collection.ErrCollectionNotFound)
	}
	return col, nil
}

func (db *Database) DropCollection(name string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	col, exists := db.collections[name]
	if !exists {
		return fmt.Errorf("collection '%s': %w", name, collection.ErrCollectionNotFound)
	}

	if err := col.Drop(); err != nil {
		return err
	}
	delete(db.collections, name)
	db.logger.Info("collection dropped", "collection", name)

	return nil
}

// ListCollections returns the open collections sorted by name.
func (db *Database) ListCollections() []*collection.Collection {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	result := make([]*collection.Collection, 0, len(db.collections))
	for _, col := range db.collections {
		result = append(result, col)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Package isam is the cursor layer over a binding.Session: checked cursors,
// a bounded LRU cursor cache and nested savepoint transactions.
//
// Cursors, caches and transactions belong to one goroutine at a time. Only
// the savepoint bookkeeping of a Session is guarded by its own mutex.
package isam

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fulldump/cursordb/binding"
	"github.com/fulldump/cursordb/logging"
)

type Session struct {
	engine binding.Session
	logger *slog.Logger

	mu     sync.Mutex
	level  int
	ids    []int64 // ids[d] changes every time depth d is closed
	closed bool
}

type Option func(s *Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func NewSession(engine binding.Session, options ...Option) *Session {
	s := &Session{
		engine: engine,
		ids:    []int64{0},
	}
	for _, option := range options {
		option(s)
	}
	s.logger = logging.OrDefault(s.logger).With("component", "isam")
	return s
}

// Binding is the underlying engine session.
func (s *Session) Binding() binding.Session {
	return s.engine
}

func (s *Session) Logger() *slog.Logger {
	return s.logger
}

func (s *Session) check() error {
	if s.closed {
		return fmt.Errorf("session: %w", ErrDisposed)
	}
	return nil
}

func (s *Session) BeginTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin()
}

func (s *Session) begin() error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.engine.BeginTransaction(); err != nil {
		return err
	}
	s.level++
	if len(s.ids) <= s.level {
		s.ids = append(s.ids, 0)
	}
	s.logger.Debug("savepoint begin", "level", s.level, "id", s.ids[s.level])
	return nil
}

func (s *Session) CommitTransaction(durable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(durable)
}

func (s *Session) commit(durable bool) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.level == 0 {
		return ErrNotInTransaction
	}
	if err := s.engine.CommitTransaction(durable); err != nil {
		s.logger.Error("savepoint commit", "level", s.level, "err", err)
		return err
	}
	s.logger.Debug("savepoint commit", "level", s.level, "durable", durable)
	s.ids[s.level]++
	s.level--
	return nil
}

func (s *Session) RollbackTransaction() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollback()
}

func (s *Session) rollback() error {
	if err := s.check(); err != nil {
		return err
	}
	if s.level == 0 {
		return ErrNotInTransaction
	}
	if err := s.engine.RollbackTransaction(); err != nil {
		s.logger.Error("savepoint rollback", "level", s.level, "err", err)
		return err
	}
	s.logger.Debug("savepoint rollback", "level", s.level)
	s.ids[s.level]++
	s.level--
	return nil
}

// rollbackTo rolls back every open level deeper than or equal to level.
func (s *Session) rollbackTo(level int) error {
	for s.level >= level && s.level > 0 {
		if err := s.rollback(); err != nil {
			return err
		}
	}
	return nil
}

// TransactionLevel is the current savepoint depth, 0 outside transactions.
func (s *Session) TransactionLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// TransactionLevelID is the identifier of the given depth. It changes every
// time that depth is committed or rolled back.
func (s *Session) TransactionLevelID(level int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levelID(level)
}

func (s *Session) levelID(level int) int64 {
	if level < 0 || level >= len(s.ids) {
		return 0
	}
	return s.ids[level]
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Begin opens a new savepoint owned by the returned transaction.
func (s *Session) Begin() (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(); err != nil {
		return nil, err
	}
	return &Transaction{
		session: s,
		level:   s.level,
		levelID: s.ids[s.level],
		cleanup: true,
	}, nil
}

// Join attaches to the current savepoint without owning it, or begins a new
// one when the session is not in a transaction.
func (s *Session) Join() (*Transaction, error) {
	s.mu.Lock()
	if s.level == 0 || s.closed {
		s.mu.Unlock()
		return s.Begin()
	}
	defer s.mu.Unlock()

	return &Transaction{
		session: s,
		level:   s.level,
		levelID: s.ids[s.level],
		joined:  true,
	}, nil
}

// OpenCursor opens a table of the engine session as a Cursor.
func (s *Session) OpenCursor(table string) (*Cursor, error) {
	s.mu.Lock()
	err := s.check()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	t, err := s.engine.OpenTable(table)
	if err != nil {
		return nil, err
	}
	return newCursor(s, t), nil
}

// Close rolls back every open level and ends the engine session. Closing
// twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	err := s.rollbackTo(1)
	if err != nil {
		s.logger.Error("close session rollback", "err", err)
	}
	s.closed = true

	if closeErr := s.engine.Close(); err == nil {
		err = closeErr
	}
	return err
}

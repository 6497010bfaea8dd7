package isam

import "fmt"

// Transaction is one savepoint of a Session. An owning transaction that is
// never committed rolls back on Dispose:
//
//	tx, err := session.Begin()
//	if err != nil {
//		return err
//	}
//	defer tx.Dispose()
//	...
//	return tx.Commit(true)
//
// Transactions obtained with Join do not own their savepoint: Commit and
// Rollback only dispose them.
type Transaction struct {
	session  *Session
	level    int
	levelID  int64
	cleanup  bool
	joined   bool
	disposed bool

	onCommit   []func()
	onRollback []func()
}

// isDisposed must be called holding the session mutex.
func (t *Transaction) isDisposed() bool {
	if t.disposed || t.session.closed {
		return true
	}
	return t.cleanup && t.session.levelID(t.level) != t.levelID
}

func (t *Transaction) Disposed() bool {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	return t.isDisposed()
}

// Level is the savepoint depth this transaction represents.
func (t *Transaction) Level() (int, error) {
	t.session.mu.Lock()
	defer t.session.mu.Unlock()

	if t.isDisposed() {
		return 0, fmt.Errorf("transaction: %w", ErrDisposed)
	}
	return t.level, nil
}

func (t *Transaction) Joined() bool {
	return t.joined
}

// OnCommit registers f to run after a successful Commit.
func (t *Transaction) OnCommit(f func()) {
	t.onCommit = append(t.onCommit, f)
}

// OnRollback registers f to run when the transaction is disposed without
// being committed.
func (t *Transaction) OnRollback(f func()) {
	t.onRollback = append(t.onRollback, f)
}

// Commit promotes the work of this savepoint to the enclosing one. Work is
// only permanent once depth 0 is reached; durable forces it to disk then.
// Savepoints opened above this one and still open are rolled back first.
func (t *Transaction) Commit(durable bool) error {
	s := t.session
	s.mu.Lock()

	if t.isDisposed() {
		s.mu.Unlock()
		return fmt.Errorf("transaction: %w", ErrDisposed)
	}

	if t.cleanup {
		if s.level > t.level {
			s.logger.Warn("rolling back savepoints left open", "level", t.level, "open", s.level)
			if err := s.rollbackTo(t.level + 1); err != nil {
				s.mu.Unlock()
				return err
			}
		}
		if err := s.commit(durable); err != nil {
			s.mu.Unlock()
			return err
		}
		t.cleanup = false
	}
	t.disposed = true
	s.mu.Unlock()

	for _, f := range t.onCommit {
		f()
	}
	return nil
}

// Rollback discards the work of this savepoint and of every savepoint
// opened above it.
func (t *Transaction) Rollback() error {
	t.session.mu.Lock()
	if t.isDisposed() {
		t.session.mu.Unlock()
		return fmt.Errorf("transaction: %w", ErrDisposed)
	}
	t.session.mu.Unlock()

	return t.Dispose()
}

// Abort is Rollback.
func (t *Transaction) Abort() error {
	return t.Rollback()
}

// Dispose rolls back the savepoint if it is still owned and unresolved.
// It is always safe to call, any number of times.
func (t *Transaction) Dispose() error {
	s := t.session
	s.mu.Lock()

	if t.isDisposed() {
		s.mu.Unlock()
		return nil
	}

	var err error
	if t.cleanup {
		err = s.rollbackTo(t.level)
		t.cleanup = false
	}
	t.disposed = true
	s.mu.Unlock()

	for _, f := range t.onRollback {
		f()
	}
	return err
}

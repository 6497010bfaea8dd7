package isam

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fulldump/cursordb/binding"
)

// Cursor wraps one engine table handle and checks the sequencing of
// navigation and updates. Any navigation cancels a pending update.
type Cursor struct {
	session *Session
	table   binding.Table
	name    string
	logger  *slog.Logger

	hasCurrency bool
	inUpdate    bool
	closing     bool
	closed      bool

	onClose []func(c *Cursor)
}

func newCursor(s *Session, table binding.Table) *Cursor {
	return &Cursor{
		session: s,
		table:   table,
		name:    table.Name(),
		logger:  s.logger.With("table", table.Name()),
	}
}

// NewCursor wraps an already opened engine table.
func NewCursor(s *Session, table binding.Table) *Cursor {
	return newCursor(s, table)
}

func (c *Cursor) TableName() string {
	return c.name
}

func (c *Cursor) Session() *Session {
	return c.session
}

func (c *Cursor) HasCurrency() bool {
	return c.hasCurrency
}

func (c *Cursor) InUpdate() bool {
	return c.inUpdate
}

func (c *Cursor) Closed() bool {
	return c.closed
}

// OnClose registers f to run during Close, before the table handle is
// released. Observers run in registration order.
func (c *Cursor) OnClose(f func(c *Cursor)) {
	c.onClose = append(c.onClose, f)
}

func (c *Cursor) check() error {
	if c.closed {
		return fmt.Errorf("cursor on '%s': %w", c.name, ErrDisposed)
	}
	return nil
}

func (c *Cursor) checkCurrency() error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.hasCurrency {
		return fmt.Errorf("cursor on '%s': %w", c.name, ErrNoCurrency)
	}
	return nil
}

func (c *Cursor) Columns() ([]binding.ColumnInfo, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.table.Columns()
}

// Column looks up a column by name.
func (c *Cursor) Column(name string) (binding.ColumnInfo, bool, error) {
	columns, err := c.Columns()
	if err != nil {
		return binding.ColumnInfo{}, false, err
	}
	for _, column := range columns {
		if column.Name == name {
			return column, true, nil
		}
	}
	return binding.ColumnInfo{}, false, nil
}

func (c *Cursor) AddColumn(def binding.ColumnDef, defaultValue []byte) (binding.ColumnID, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.table.AddColumn(def, defaultValue)
}

// SetSequential hints the engine that the cursor is about to scan.
func (c *Cursor) SetSequential() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.table.SetSequential(true)
}

func (c *Cursor) ResetSequential() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.table.SetSequential(false)
}

// cancelPending drops a pending update before navigating.
func (c *Cursor) cancelPending() error {
	if !c.inUpdate {
		return nil
	}
	c.logger.Warn("pending update cancelled by navigation")
	return c.cancelUpdate()
}

func (c *Cursor) tryMove(m binding.Move) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	if err := c.cancelPending(); err != nil {
		return false, err
	}

	err := c.table.Move(m)
	if errors.Is(err, binding.ErrNoCurrentRecord) {
		c.hasCurrency = false
		c.logger.Debug("move", "move", m, "found", false)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.hasCurrency = true
	c.logger.Debug("move", "move", m, "found", true)
	return true, nil
}

func (c *Cursor) TryMoveFirst() (bool, error) {
	return c.tryMove(binding.MoveFirst)
}

func (c *Cursor) TryMoveLast() (bool, error) {
	return c.tryMove(binding.MoveLast)
}

func (c *Cursor) TryMoveNext() (bool, error) {
	return c.tryMove(binding.MoveNext)
}

func (c *Cursor) TryMovePrevious() (bool, error) {
	return c.tryMove(binding.MovePrevious)
}

func (c *Cursor) move(m binding.Move) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.cancelPending(); err != nil {
		return err
	}

	err := c.table.Move(m)
	c.hasCurrency = err == nil
	if err != nil {
		return fmt.Errorf("move %s on '%s': %w", m, c.name, err)
	}
	return nil
}

// MoveFirst fails with binding.ErrNoCurrentRecord on an empty table.
func (c *Cursor) MoveFirst() error {
	return c.move(binding.MoveFirst)
}

// MoveLast fails with binding.ErrNoCurrentRecord on an empty table.
func (c *Cursor) MoveLast() error {
	return c.move(binding.MoveLast)
}

func (c *Cursor) MoveBeforeFirst() error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.cancelPending(); err != nil {
		return err
	}
	c.hasCurrency = false
	return c.table.MoveBeforeFirst()
}

func (c *Cursor) MoveAfterLast() error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.cancelPending(); err != nil {
		return err
	}
	c.hasCurrency = false
	return c.table.MoveAfterLast()
}

func (c *Cursor) GetBookmark() (Bookmark, error) {
	if err := c.checkCurrency(); err != nil {
		return Bookmark{}, err
	}
	b, err := c.table.GetBookmark()
	if err != nil {
		return Bookmark{}, err
	}
	return NewBookmark(b), nil
}

func (c *Cursor) GotoBookmark(bookmark Bookmark) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.cancelPending(); err != nil {
		return err
	}
	if err := c.table.GotoBookmark(bookmark.Bytes()); err != nil {
		c.hasCurrency = false
		return err
	}
	c.hasCurrency = true
	return nil
}

// SetCurrentIndex changes the navigation order. The cursor loses currency
// and sits before the first entry of the new index.
func (c *Cursor) SetCurrentIndex(index string) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.cancelPending(); err != nil {
		return err
	}
	c.hasCurrency = false
	return c.table.SetCurrentIndex(index)
}

func (c *Cursor) MakeKey(data []byte, grbit binding.MakeKeyGrbit) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.table.MakeKey(data, grbit)
}

// Seek positions the cursor with the key made so far. A miss returns the
// engine error and leaves currency untouched.
func (c *Cursor) Seek(grbit binding.SeekGrbit) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.cancelPending(); err != nil {
		return err
	}
	if err := c.table.Seek(grbit); err != nil {
		return err
	}
	c.hasCurrency = true
	return nil
}

// TrySeek is Seek reporting a miss as false.
func (c *Cursor) TrySeek(grbit binding.SeekGrbit) (bool, error) {
	err := c.Seek(grbit)
	if errors.Is(err, binding.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *Cursor) PrepareUpdate(prep binding.Prep) error {
	if err := c.check(); err != nil {
		return err
	}
	if prep != binding.PrepInsert && prep != binding.PrepReplace {
		return fmt.Errorf("prepare %s on '%s': %w", prep, c.name, ErrInvalidPrep)
	}
	if err := c.table.PrepareUpdate(prep); err != nil {
		return err
	}
	c.inUpdate = true
	return nil
}

// SetColumn sets a column of the pending update. Nil data clears it.
func (c *Cursor) SetColumn(column binding.ColumnID, data []byte, grbit binding.SetColumnGrbit) error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.inUpdate {
		return fmt.Errorf("set column %d on '%s': %w", column, c.name, ErrNotInUpdate)
	}
	return c.table.SetColumn(column, data, grbit)
}

// Update saves the pending update and moves the cursor onto the written
// record. When the current index does not hold the record the save still
// succeeds and the cursor is left without currency.
func (c *Cursor) Update() (Bookmark, error) {
	if err := c.check(); err != nil {
		return Bookmark{}, err
	}
	if !c.inUpdate {
		return Bookmark{}, fmt.Errorf("update on '%s': %w", c.name, ErrNotInUpdate)
	}

	b, err := c.table.Update()
	if err != nil {
		return Bookmark{}, err
	}
	c.inUpdate = false

	bookmark := NewBookmark(b)

	if err := c.table.GotoBookmark(b); err != nil {
		c.hasCurrency = false
		c.logger.Debug("update saved off the current index", "bookmark", bookmark, "err", err)
		return bookmark, nil
	}
	c.hasCurrency = true

	c.logger.Debug("update", "bookmark", bookmark)
	return bookmark, nil
}

// CancelUpdate discards the pending update, if any.
func (c *Cursor) CancelUpdate() error {
	if err := c.check(); err != nil {
		return err
	}
	if !c.inUpdate {
		return nil
	}
	return c.cancelUpdate()
}

func (c *Cursor) cancelUpdate() error {
	if err := c.table.PrepareUpdate(binding.PrepCancel); err != nil {
		return err
	}
	c.inUpdate = false
	return nil
}

// EscrowUpdate atomically adds delta to an escrow column of the current
// record and returns the value it had before.
func (c *Cursor) EscrowUpdate(column binding.ColumnID, delta int64) (int64, error) {
	if err := c.checkCurrency(); err != nil {
		return 0, err
	}
	return c.table.EscrowUpdate(column, delta)
}

func (c *Cursor) Delete() error {
	if err := c.checkCurrency(); err != nil {
		return err
	}
	if err := c.cancelPending(); err != nil {
		return err
	}
	if err := c.table.Delete(); err != nil {
		return err
	}
	c.hasCurrency = false
	return nil
}

// RetrieveColumn reads a column of the current record, or of the pending
// update with binding.RetrieveCopy. A null column is nil.
func (c *Cursor) RetrieveColumn(column binding.ColumnID, grbit binding.RetrieveColumnGrbit) ([]byte, error) {
	if grbit&binding.RetrieveCopy == 0 {
		if err := c.checkCurrency(); err != nil {
			return nil, err
		}
	} else if err := c.check(); err != nil {
		return nil, err
	}
	return c.table.RetrieveColumn(column, grbit)
}

// Close cancels a pending update, notifies the observers and releases the
// table handle. Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.closed || c.closing {
		return nil
	}
	c.closing = true

	if c.inUpdate {
		if err := c.cancelUpdate(); err != nil {
			c.logger.Error("cancel update on close", "err", err)
		}
	}
	for _, f := range c.onClose {
		f(c)
	}
	c.closed = true
	c.hasCurrency = false

	return c.table.Close()
}

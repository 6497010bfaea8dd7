package engine

import "errors"

var (
	ErrEngineClosed      = errors.New("engine closed")
	ErrSessionClosed     = errors.New("session closed")
	ErrTableClosed       = errors.New("table closed")
	ErrTableNotFound     = errors.New("table not found")
	ErrTableExists       = errors.New("table already exists")
	ErrTableInUse        = errors.New("table in use")
	ErrColumnNotFound    = errors.New("column not found")
	ErrColumnExists      = errors.New("column already exists")
	ErrIndexNotFound     = errors.New("index not found")
	ErrIndexExists       = errors.New("index already exists")
	ErrKeyDuplicate      = errors.New("duplicate key")
	ErrKeyNotMade        = errors.New("search key not made")
	ErrWriteConflict     = errors.New("write conflict")
	ErrNotInTransaction  = errors.New("not in transaction")
	ErrNotInUpdate       = errors.New("not in update")
	ErrAlreadyPrepared   = errors.New("update already prepared")
	ErrInvalidBookmark   = errors.New("invalid bookmark")
	ErrInvalidColumnData = errors.New("invalid column data")
	ErrNotEscrow         = errors.New("column is not an escrow column")
	ErrChecksum          = errors.New("journal checksum mismatch")
)

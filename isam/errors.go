package isam

import "errors"

var (
	ErrNoCurrency       = errors.New("cursor is not positioned on a record")
	ErrNotInUpdate      = errors.New("cursor is not in an update")
	ErrInvalidPrep      = errors.New("invalid prepare update kind")
	ErrDisposed         = errors.New("object is disposed")
	ErrNotInTransaction = errors.New("session is not in a transaction")
)

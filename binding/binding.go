// Package binding is the contract between the cursor layer and a record
// oriented storage engine. Engines implement Session and Table; the isam
// package only talks to these interfaces.
package binding

import "errors"

var (
	// ErrNoCurrentRecord is returned by navigation and retrieval primitives
	// when the handle is not positioned on a record.
	ErrNoCurrentRecord = errors.New("no current record")

	// ErrRecordNotFound is returned by Seek when no index entry matches the key.
	ErrRecordNotFound = errors.New("record not found")
)

type ColumnID uint32

type ColumnType int

const (
	ColumnBinary ColumnType = iota
	ColumnLongBinary
	ColumnText
	ColumnInt64
)

func (t ColumnType) String() string {
	switch t {
	case ColumnBinary:
		return "binary"
	case ColumnLongBinary:
		return "long_binary"
	case ColumnText:
		return "text"
	case ColumnInt64:
		return "int64"
	}
	return "unknown"
}

type ColumnDef struct {
	Name   string     `json:"name"`
	Type   ColumnType `json:"type"`
	Escrow bool       `json:"escrow"` // only valid for ColumnInt64
}

type ColumnInfo struct {
	ID ColumnID `json:"id"`
	ColumnDef
}

type Move int

const (
	MoveFirst Move = iota
	MoveLast
	MoveNext
	MovePrevious
)

func (m Move) String() string {
	switch m {
	case MoveFirst:
		return "first"
	case MoveLast:
		return "last"
	case MoveNext:
		return "next"
	case MovePrevious:
		return "previous"
	}
	return "unknown"
}

type Prep int

const (
	PrepInsert Prep = iota
	PrepReplace
	PrepCancel
)

func (p Prep) String() string {
	switch p {
	case PrepInsert:
		return "insert"
	case PrepReplace:
		return "replace"
	case PrepCancel:
		return "cancel"
	}
	return "unknown"
}

type MakeKeyGrbit int

const (
	MakeKeyNone MakeKeyGrbit = 0
	NewKey      MakeKeyGrbit = 1 << iota
)

type SeekGrbit int

const (
	SeekEQ SeekGrbit = iota
	SeekGE
	SeekGT
	SeekLE
	SeekLT
)

type SetColumnGrbit int

const (
	SetColumnNone SetColumnGrbit = 0
	// SetColumnAppend appends data to the current value of a long column.
	SetColumnAppend SetColumnGrbit = 1 << iota
)

type RetrieveColumnGrbit int

const (
	RetrieveNone RetrieveColumnGrbit = 0
	// RetrieveCopy reads from the copy buffer of a pending update instead of
	// the stored record, so it works in the middle of an insert.
	RetrieveCopy RetrieveColumnGrbit = 1 << iota
)

// Session is one engine session: a flat begin/commit/rollback stack plus
// the ability to open table handles bound to it.
type Session interface {
	OpenTable(name string) (Table, error)
	BeginTransaction() error
	CommitTransaction(durable bool) error
	RollbackTransaction() error
	Close() error
}

// Table is a raw table handle (an engine cursor). Implementations are not
// goroutine safe.
type Table interface {
	Name() string

	Columns() ([]ColumnInfo, error)
	AddColumn(def ColumnDef, defaultValue []byte) (ColumnID, error)

	SetCurrentIndex(index string) error
	SetSequential(sequential bool) error

	Move(m Move) error
	MoveBeforeFirst() error
	MoveAfterLast() error
	GetBookmark() ([]byte, error)
	GotoBookmark(bookmark []byte) error
	MakeKey(data []byte, grbit MakeKeyGrbit) error
	Seek(grbit SeekGrbit) error

	PrepareUpdate(prep Prep) error
	SetColumn(column ColumnID, data []byte, grbit SetColumnGrbit) error
	Update() ([]byte, error)
	Delete() error
	EscrowUpdate(column ColumnID, delta int64) (int64, error)
	RetrieveColumn(column ColumnID, grbit RetrieveColumnGrbit) ([]byte, error)

	Close() error
}

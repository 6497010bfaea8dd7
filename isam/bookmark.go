package isam

import "encoding/hex"

// Bookmark identifies one record of one table. It is an immutable value and
// can be compared with ==.
type Bookmark struct {
	data string
}

func NewBookmark(b []byte) Bookmark {
	return Bookmark{data: string(b)}
}

// Bytes returns a copy of the engine bookmark.
func (b Bookmark) Bytes() []byte {
	return []byte(b.data)
}

func (b Bookmark) IsZero() bool {
	return b.data == ""
}

func (b Bookmark) String() string {
	return hex.EncodeToString([]byte(b.data))
}

package engine

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/google/btree"

	"github.com/fulldump/cursordb/binding"
)

// PrimaryIndex is the name of the clustered index, ordered by record id.
const PrimaryIndex = "primary"

type IndexDef struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Unique bool   `json:"unique"`
}

type indexEntry struct {
	key []byte
	id  uint64
}

func entryLess(a, b indexEntry) bool {
	c := bytes.Compare(a.key, b.key)
	if c != 0 {
		return c < 0
	}
	return a.id < b.id
}

// index keeps one entry per record. Records with a null key column are not
// indexed (sparse).
type index struct {
	def    IndexDef
	column binding.ColumnID // 0 for the primary index
	tree   *btree.BTreeG[indexEntry]
}

func newIndex(def IndexDef, column binding.ColumnID) *index {
	return &index{
		def:    def,
		column: column,
		tree:   btree.NewG(32, entryLess),
	}
}

func (ix *index) primary() bool {
	return ix.column == 0
}

func (ix *index) keyOf(r *record) ([]byte, bool) {
	if ix.primary() {
		return encodeID(r.id), true
	}
	v, ok := r.columns[ix.column]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (ix *index) entryOf(r *record) (indexEntry, bool) {
	key, ok := ix.keyOf(r)
	if !ok {
		return indexEntry{}, false
	}
	return indexEntry{key: key, id: r.id}, true
}

// conflicts reports whether inserting r would break uniqueness.
func (ix *index) conflicts(r *record) bool {
	if !ix.def.Unique || ix.primary() {
		return false
	}
	key, ok := ix.keyOf(r)
	if !ok {
		return false
	}
	conflict := false
	ix.tree.AscendGreaterOrEqual(indexEntry{key: key}, func(e indexEntry) bool {
		if !bytes.Equal(e.key, key) {
			return false
		}
		if e.id != r.id {
			conflict = true
			return false
		}
		return true
	})
	return conflict
}

func (ix *index) insert(r *record) {
	if e, ok := ix.entryOf(r); ok {
		ix.tree.ReplaceOrInsert(e)
	}
}

func (ix *index) remove(r *record) {
	if e, ok := ix.entryOf(r); ok {
		ix.tree.Delete(e)
	}
}

func (ix *index) first() (indexEntry, bool) {
	return ix.tree.Min()
}

func (ix *index) last() (indexEntry, bool) {
	return ix.tree.Max()
}

func (ix *index) next(from indexEntry) (result indexEntry, found bool) {
	ix.tree.AscendGreaterOrEqual(from, func(e indexEntry) bool {
		if e.id == from.id && bytes.Equal(e.key, from.key) {
			return true
		}
		result, found = e, true
		return false
	})
	return
}

func (ix *index) previous(from indexEntry) (result indexEntry, found bool) {
	ix.tree.DescendLessOrEqual(from, func(e indexEntry) bool {
		if e.id == from.id && bytes.Equal(e.key, from.key) {
			return true
		}
		result, found = e, true
		return false
	})
	return
}

// seek finds the entry matching key under grbit. Record ids start at 1, so
// id 0 and MaxUint64 work as bounds below and above every real entry.
func (ix *index) seek(key []byte, grbit binding.SeekGrbit) (result indexEntry, found bool) {
	low := indexEntry{key: key, id: 0}
	high := indexEntry{key: key, id: math.MaxUint64}

	switch grbit {
	case binding.SeekEQ:
		ix.tree.AscendGreaterOrEqual(low, func(e indexEntry) bool {
			if bytes.Equal(e.key, key) {
				result, found = e, true
			}
			return false
		})
	case binding.SeekGE:
		ix.tree.AscendGreaterOrEqual(low, func(e indexEntry) bool {
			result, found = e, true
			return false
		})
	case binding.SeekGT:
		ix.tree.AscendGreaterOrEqual(high, func(e indexEntry) bool {
			result, found = e, true
			return false
		})
	case binding.SeekLE:
		ix.tree.DescendLessOrEqual(high, func(e indexEntry) bool {
			result, found = e, true
			return false
		})
	case binding.SeekLT:
		ix.tree.DescendLessOrEqual(low, func(e indexEntry) bool {
			result, found = e, true
			return false
		})
	}
	return
}

func encodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeID(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	id := binary.BigEndian.Uint64(b)
	return id, id != 0
}

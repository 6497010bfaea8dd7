package isam

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/cursordb/engine"
	"github.com/fulldump/cursordb/logging"
)

type fakeCursor struct {
	n      int
	closed bool
}

func newFakeCache(t *testing.T, capacity int) (*CursorCache[*fakeCursor], []*fakeCursor) {
	opened := []*fakeCursor{}
	cache, err := NewCursorCache(func() (*fakeCursor, error) {
		c := &fakeCursor{n: len(opened)}
		opened = append(opened, c)
		return c, nil
	}, func(c *fakeCursor) error {
		c.closed = true
		return nil
	}, "fake", capacity)
	if err != nil {
		t.Fatal(err)
	}
	return cache, opened
}

func TestCursorCache_FillAndEvict(t *testing.T) {
	cache, opened := newFakeCache(t, 3)
	defer cache.Close()

	AssertEqual(cache.Capacity(), 3)
	AssertEqual(len(opened), 3)

	for key := int64(1); key <= 3; key++ {
		cache.GetNewCursor(key)
	}
	for key := int64(1); key <= 3; key++ {
		AssertTrue(cache.HasCachedCursor(key))
	}

	// touch 1 so that 2 becomes the least recently used
	cache.GetCachedCursor(1)

	cursor := cache.GetNewCursor(4)
	AssertEqual(cursor.n, 1)
	AssertFalse(cache.HasCachedCursor(2))
	AssertTrue(cache.HasCachedCursor(1))
	AssertTrue(cache.HasCachedCursor(3))
	AssertTrue(cache.HasCachedCursor(4))
}

func TestCursorCache_FirstAccessesUsePoolOrder(t *testing.T) {
	cache, _ := newFakeCache(t, 3)
	defer cache.Close()

	AssertEqual(cache.GetNewCursor(10).n, 0)
	AssertEqual(cache.GetNewCursor(20).n, 1)
	AssertEqual(cache.GetNewCursor(30).n, 2)

	// every entry has been stamped once, so 10 is evicted first
	AssertEqual(cache.GetNewCursor(40).n, 0)
	AssertFalse(cache.HasCachedCursor(10))
}

func TestCursorCache_CachedCursorIsTheAssignedOne(t *testing.T) {
	cache, _ := newFakeCache(t, 2)
	defer cache.Close()

	assigned := cache.GetNewCursor(7)
	AssertEqual(cache.GetCachedCursor(7), assigned)
	AssertFalse(cache.HasCachedCursor(0))
}

func TestCursorCache_Assertions(t *testing.T) {
	cache, _ := newFakeCache(t, 2)
	defer cache.Close()

	cache.GetNewCursor(1)

	AssertTrue(panics(func() { cache.GetCachedCursor(2) }))
	AssertTrue(panics(func() { cache.GetNewCursor(1) }))
	AssertTrue(panics(func() { cache.GetNewCursor(0) }))
}

func TestCursorCache_Close(t *testing.T) {
	cache, opened := newFakeCache(t, 3)

	AssertNil(cache.Close())
	AssertNil(cache.Close())

	for _, c := range opened {
		AssertTrue(c.closed)
	}
	AssertTrue(panics(func() { cache.GetNewCursor(1) }))
}

func TestCursorCache_OpenFailure(t *testing.T) {
	opened := []*fakeCursor{}
	_, err := NewCursorCache(func() (*fakeCursor, error) {
		if len(opened) == 2 {
			return nil, errors.New("too many open tables")
		}
		c := &fakeCursor{n: len(opened)}
		opened = append(opened, c)
		return c, nil
	}, func(c *fakeCursor) error {
		c.closed = true
		return nil
	}, "failing", 4)

	AssertNotNil(err)
	AssertEqual(len(opened), 2)
	for _, c := range opened {
		AssertTrue(c.closed)
	}
}

func TestCursorCache_CloseReturnsFirstError(t *testing.T) {
	n := 0
	cache, err := NewCursorCache(func() (int, error) {
		n++
		return n, nil
	}, func(c int) error {
		return fmt.Errorf("close %d", c)
	}, "errors", 2)
	AssertNil(err)

	AssertEqual(cache.Close().Error(), "close 1")
}

func TestCursorCache_Logger(t *testing.T) {
	out := &bytes.Buffer{}
	cache, err := NewCursorCache(func() (int, error) {
		return 0, nil
	}, func(int) error {
		return nil
	}, "traced", 1, CacheLogger(logging.New(out, "debug", logging.FormatText)))
	AssertNil(err)
	defer cache.Close()

	cache.GetNewCursor(1)
	cache.GetCachedCursor(1)
	cache.GetNewCursor(2)

	AssertTrue(strings.Contains(out.String(), "msg=hit component=cursor_cache cache=traced key=1"))
	AssertTrue(strings.Contains(out.String(), "msg=evict component=cursor_cache cache=traced key=1 for=2"))
}

func TestCursorCache_WithCursors(t *testing.T) {
	Environment(t, func(e *engine.Engine, s *Session) {

		writer := openCursor(t, s)
		defer writer.Close()

		bookmarks := map[int64]Bookmark{}
		for key := int64(1); key <= 5; key++ {
			bookmarks[key] = insert(t, writer, fmt.Sprintf("row-%d", key))
		}

		cache, err := NewCursorCache(func() (*Cursor, error) {
			return s.OpenCursor("table")
		}, func(c *Cursor) error {
			return c.Close()
		}, "table", 2)
		AssertNil(err)

		position := func(key int64) *Cursor {
			if cache.HasCachedCursor(key) {
				return cache.GetCachedCursor(key)
			}
			c := cache.GetNewCursor(key)
			AssertNil(c.GotoBookmark(bookmarks[key]))
			return c
		}

		for _, key := range []int64{1, 2, 1, 3, 4, 1, 5} {
			AssertEqual(retrieveA(position(key)), fmt.Sprintf("row-%d", key))
		}

		AssertNil(cache.Close())
	})
}

func panics(f func()) (panicked bool) {
	defer func() {
		panicked = recover() != nil
	}()
	f()
	return
}

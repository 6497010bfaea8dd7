package isam

import (
	"fmt"
	"log/slog"

	"github.com/fulldump/cursordb/logging"
)

type cachedCursor[T any] struct {
	key      int64 // 0 while unassigned
	cursor   T
	lastUsed int64
}

// CursorCache is a fixed pool of cursors shared by many logical keys with
// least recently used eviction. It is not goroutine safe.
type CursorCache[T any] struct {
	name    string
	entries []*cachedCursor[T]
	clock   int64
	close   func(T) error
	closed  bool
	logger  *slog.Logger
}

type cacheConfig struct {
	logger *slog.Logger
}

type CacheOption func(o *cacheConfig)

// CacheLogger sets the logger for hit and eviction traces. The default is
// the slog default logger.
func CacheLogger(l *slog.Logger) CacheOption {
	return func(o *cacheConfig) {
		o.logger = l
	}
}

// NewCursorCache opens capacity cursors up front. If one of them fails to
// open the ones already opened are closed.
func NewCursorCache[T any](open func() (T, error), close func(T) error, name string, capacity int, options ...CacheOption) (*CursorCache[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cursor cache '%s': capacity must be positive, got %d", name, capacity)
	}

	config := &cacheConfig{}
	for _, option := range options {
		option(config)
	}

	c := &CursorCache[T]{
		name:    name,
		entries: make([]*cachedCursor[T], 0, capacity),
		close:   close,
		logger:  logging.OrDefault(config.logger).With("component", "cursor_cache", "cache", name),
	}

	for i := 0; i < capacity; i++ {
		cursor, err := open()
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("cursor cache '%s': open cursor %d: %w", name, i, err)
		}
		c.entries = append(c.entries, &cachedCursor[T]{cursor: cursor})
	}

	return c, nil
}

func (c *CursorCache[T]) Name() string {
	return c.name
}

func (c *CursorCache[T]) Capacity() int {
	return len(c.entries)
}

func (c *CursorCache[T]) find(key int64) *cachedCursor[T] {
	if key == 0 {
		return nil
	}
	for _, e := range c.entries {
		if e.key == key {
			return e
		}
	}
	return nil
}

func (c *CursorCache[T]) tick() int64 {
	c.clock++
	return c.clock
}

func (c *CursorCache[T]) HasCachedCursor(key int64) bool {
	return c.find(key) != nil
}

// GetCachedCursor returns the cursor assigned to key. Asking for a key that
// is not cached is a programming error and panics.
func (c *CursorCache[T]) GetCachedCursor(key int64) T {
	c.mustBeOpen()
	e := c.find(key)
	if e == nil {
		panic(fmt.Sprintf("cursor cache '%s': key %d is not cached", c.name, key))
	}
	e.lastUsed = c.tick()
	c.logger.Debug("hit", "key", key)
	return e.cursor
}

// GetNewCursor assigns the least recently used cursor to key and returns
// it with no positioning guarantee. Ties go to the lowest pool index. The
// key must be non zero and not cached yet, otherwise it panics.
func (c *CursorCache[T]) GetNewCursor(key int64) T {
	c.mustBeOpen()
	if key == 0 {
		panic(fmt.Sprintf("cursor cache '%s': key 0 is reserved", c.name))
	}
	if c.find(key) != nil {
		panic(fmt.Sprintf("cursor cache '%s': key %d is already cached", c.name, key))
	}

	victim := c.entries[0]
	for _, e := range c.entries[1:] {
		if e.lastUsed < victim.lastUsed {
			victim = e
		}
	}

	if victim.key != 0 {
		c.logger.Debug("evict", "key", victim.key, "for", key)
	}
	victim.key = key
	victim.lastUsed = c.tick()
	return victim.cursor
}

func (c *CursorCache[T]) mustBeOpen() {
	if c.closed {
		panic(fmt.Sprintf("cursor cache '%s' is closed", c.name))
	}
}

// Close runs the close function on every pooled cursor and returns the
// first error. Closing twice is a no-op.
func (c *CursorCache[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var first error
	for _, e := range c.entries {
		if err := c.close(e.cursor); err != nil && first == nil {
			first = err
		}
	}
	c.entries = nil

	return first
}

package collection

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/fulldump/biff"
	jsonv2 "github.com/go-json-experiment/json"

	"github.com/fulldump/cursordb/engine"
	"github.com/fulldump/cursordb/logging"
)

func Environment(t *testing.T, f func(e *engine.Engine)) {
	e, err := engine.Open(engine.Config{
		Dir:    t.TempDir(),
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	f(e)
}

var testOptions = &Options{
	KeyField:  "email",
	CacheSize: 2,
	Logger:    logging.Discard(),
}

func TestInsertAndGet(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, err := Create(e, "users", testOptions)
		AssertNil(err)
		defer c.Close()

		row, err := c.Insert(map[string]any{"email": "ana@example.com", "name": "Ana"})
		AssertNil(err)
		AssertEqual(row.ID, int64(1))
		AssertEqual(string(row.Payload), `{"email":"ana@example.com","name":"Ana"}`)

		got, err := c.Get(1)
		AssertNil(err)
		AssertEqual(got, row)

		_, err = c.Get(99)
		AssertTrue(errors.Is(err, ErrNotFound))
	})
}

func TestFindByKey(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "users", testOptions)
		defer c.Close()

		c.Insert(map[string]any{"email": "ana@example.com"})
		c.Insert(map[string]any{"email": "bob@example.com"})
		c.Insert(map[string]any{"name": "no email"})

		row, err := c.FindByKey("bob@example.com")
		AssertNil(err)
		AssertEqual(row.ID, int64(2))

		_, err = c.FindByKey("eve@example.com")
		AssertTrue(errors.Is(err, ErrNotFound))

		_, err = c.Insert(map[string]any{"email": "ana@example.com"})
		AssertTrue(errors.Is(err, ErrKeyConflict))

		count, _ := c.Count()
		AssertEqual(count, 3)
	})
}

func TestFindByKey_WithoutKeyField(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "logs", &Options{Logger: logging.Discard()})
		defer c.Close()

		_, err := c.FindByKey("x")
		AssertTrue(errors.Is(err, ErrNoKeyField))
	})
}

func TestPatch(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "users", testOptions)
		defer c.Close()

		c.Insert(map[string]any{"email": "ana@example.com", "age": 30, "city": "Madrid"})

		row, err := c.Patch(1, map[string]any{
			"age":     31,
			"city":    nil,
			"address": map[string]any{"zip": "28001"},
		})
		AssertNil(err)
		AssertEqualJson(row.Payload, map[string]any{
			"email":   "ana@example.com",
			"age":     31,
			"address": map[string]any{"zip": "28001"},
		})

		// the key follows the payload
		_, err = c.Patch(1, map[string]any{"email": "ana@new.com"})
		AssertNil(err)
		row, err = c.FindByKey("ana@new.com")
		AssertNil(err)
		AssertEqual(row.ID, int64(1))

		_, err = c.Patch(7, map[string]any{"a": 1})
		AssertTrue(errors.Is(err, ErrNotFound))
	})
}

func TestRemove(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "users", testOptions)
		defer c.Close()

		c.Insert(map[string]any{"email": "ana@example.com"})
		c.Insert(map[string]any{"email": "bob@example.com"})

		c.Get(1) // cache a cursor on document 1

		row, err := c.Remove(1)
		AssertNil(err)
		AssertEqual(row.ID, int64(1))

		_, err = c.Get(1)
		AssertTrue(errors.Is(err, ErrNotFound))
		_, err = c.Remove(1)
		AssertTrue(errors.Is(err, ErrNotFound))

		count, _ := c.Count()
		AssertEqual(count, 1)
	})
}

func TestIncr(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "counters", testOptions)
		defer c.Close()

		c.Insert(map[string]any{"email": "ana@example.com"})

		value, err := c.Incr(1, 5)
		AssertNil(err)
		AssertEqual(value, int64(5))

		value, err = c.Incr(1, -2)
		AssertNil(err)
		AssertEqual(value, int64(3))

		row, _ := c.Get(1)
		AssertEqual(row.Counter, int64(3))
	})
}

func TestTraverse(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "numbers", &Options{Logger: logging.Discard()})
		defer c.Close()

		for i := 1; i <= 10; i++ {
			c.Insert(map[string]any{"n": i, "even": i%2 == 0})
		}

		collect := func(options TraverseOptions) []int64 {
			ids := []int64{}
			err := c.Traverse(options, func(row *Row) bool {
				ids = append(ids, row.ID)
				return true
			})
			AssertNil(err)
			return ids
		}

		AssertEqual(len(collect(TraverseOptions{})), 10)
		AssertEqual(collect(TraverseOptions{Skip: 2, Limit: 3}), []int64{3, 4, 5})
		AssertEqual(collect(TraverseOptions{Reverse: true, Limit: 2}), []int64{10, 9})
		AssertEqual(collect(TraverseOptions{
			Filter: map[string]any{"even": true},
			Limit:  2,
		}), []int64{2, 4})
		AssertEqual(collect(TraverseOptions{
			Filter: map[string]any{"n": map[string]any{"$gt": 8}},
		}), []int64{9, 10})

		stopped := 0
		c.Traverse(TraverseOptions{}, func(row *Row) bool {
			stopped++
			return stopped < 4
		})
		AssertEqual(stopped, 4)
	})
}

func TestDefaults(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "things", &Options{Logger: logging.Discard()})
		defer c.Close()

		AssertNil(c.SetDefaults(map[string]any{
			"id":      "uuid()",
			"created": "unixnano()",
			"seq":     "auto()",
			"kind":    "thing",
		}))

		AssertEqual(len(c.GetDefaults()), 4)

		row, err := c.Insert(map[string]any{"kind": "special"})
		AssertNil(err)

		document := map[string]any{}
		AssertNil(jsonv2.Unmarshal(row.Payload, &document))
		AssertEqual(len(document["id"].(string)), 36)
		AssertNotNil(document["created"])
		AssertEqual(document["seq"], float64(1))
		AssertEqual(document["kind"], "special")
	})
}

func TestTransaction(t *testing.T) {
	Alternative("Transaction", func(a *A) {
		Environment(t, func(e *engine.Engine) {

			c, _ := Create(e, "users", testOptions)
			defer c.Close()

			insertTwo := func(tx *Tx) error {
				if _, err := tx.Insert(map[string]any{"email": "ana@example.com"}); err != nil {
					return err
				}
				_, err := tx.Insert(map[string]any{"email": "bob@example.com"})
				return err
			}

			a.Alternative("Commit", func(a *A) {
				a.AssertNil(c.Transaction(insertTwo))
				count, _ := c.Count()
				a.AssertEqual(count, 2)
			})

			a.Alternative("Rollback", func(a *A) {
				abort := errors.New("abort")
				err := c.Transaction(func(tx *Tx) error {
					a.AssertNil(insertTwo(tx))
					return abort
				})
				a.AssertEqual(err, abort)

				count, _ := c.Count()
				a.AssertEqual(count, 0)

				row, err := c.Insert(map[string]any{"email": "carol@example.com"})
				a.AssertNil(err)
				a.AssertEqual(row.ID, int64(1))
			})
		})
	})
}

func TestTransaction_IsolatedFromOtherGoroutines(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "users", testOptions)
		defer c.Close()

		type result struct {
			row *Row
			err error
		}
		done := make(chan result, 1)

		abort := errors.New("abort")
		err := c.Transaction(func(tx *Tx) error {
			go func() {
				row, err := c.Insert(map[string]any{"email": "outside@example.com"})
				done <- result{row, err}
			}()

			_, err := tx.Insert(map[string]any{"email": "inside@example.com"})
			AssertNil(err)

			select {
			case <-done:
				t.Fatal("insert from another goroutine ran inside the transaction")
			case <-time.After(50 * time.Millisecond):
			}
			return abort
		})
		AssertEqual(err, abort)

		outside := <-done
		AssertNil(outside.err)
		AssertEqual(outside.row.ID, int64(1))

		count, _ := c.Count()
		AssertEqual(count, 1)

		row, err := c.Get(1)
		AssertNil(err)
		AssertEqual(string(row.Payload), `{"email":"outside@example.com"}`)
	})
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	config := engine.Config{Dir: dir, Journal: engine.JournalXZ, Logger: logging.Discard()}

	{
		e, err := engine.Open(config)
		AssertNil(err)
		c, err := Create(e, "users", testOptions)
		AssertNil(err)
		c.SetDefaults(map[string]any{"role": "user"})
		c.Insert(map[string]any{"email": "ana@example.com"})
		c.Insert(map[string]any{"email": "bob@example.com"})
		c.Incr(2, 7)
		AssertNil(c.Close())
		AssertNil(e.Close())
	}

	{
		e, err := engine.Open(config)
		AssertNil(err)
		defer e.Close()

		names, err := List(e)
		AssertNil(err)
		AssertEqual(names, []string{"users"})

		c, err := Open(e, "users", testOptions)
		AssertNil(err)
		defer c.Close()

		AssertEqual(c.KeyField, "email")
		AssertEqual(c.Defaults, map[string]any{"role": "user"})

		row, err := c.FindByKey("bob@example.com")
		AssertNil(err)
		AssertEqual(row.Counter, int64(7))

		row, err = c.Insert(map[string]any{"email": "eve@example.com"})
		AssertNil(err)
		AssertEqual(row.ID, int64(3))
	}
}

func TestCreateErrors(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, err := Create(e, "users", testOptions)
		AssertNil(err)
		defer c.Close()

		_, err = Create(e, "users", testOptions)
		AssertTrue(errors.Is(err, ErrCollectionAlreadyExists))

		_, err = Create(e, "_private", testOptions)
		AssertTrue(errors.Is(err, ErrReservedName))

		_, err = Open(e, "ghost", testOptions)
		AssertTrue(errors.Is(err, ErrCollectionNotFound))
	})
}

func TestDrop(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "users", testOptions)
		c.Insert(map[string]any{"email": "ana@example.com"})

		AssertNil(c.Drop())

		names, _ := List(e)
		AssertEqual(names, []string{})

		c, err := Create(e, "users", testOptions)
		AssertNil(err)
		defer c.Close()
		count, _ := c.Count()
		AssertEqual(count, 0)
	})
}

func TestConcurrentInserts(t *testing.T) {
	Environment(t, func(e *engine.Engine) {

		c, _ := Create(e, "users", &Options{CacheSize: 4, Logger: logging.Discard()})
		defer c.Close()

		n := 50
		wg := &sync.WaitGroup{}
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				row, err := c.Insert(map[string]any{"i": i})
				if err != nil {
					panic(err)
				}
				if _, err := c.Incr(row.ID, 1); err != nil {
					panic(fmt.Sprint(row.ID, err))
				}
			}(i)
		}
		wg.Wait()

		count, _ := c.Count()
		AssertEqual(count, n)

		total := int64(0)
		c.Traverse(TraverseOptions{}, func(row *Row) bool {
			total += row.Counter
			return true
		})
		AssertEqual(total, int64(n))
	})
}

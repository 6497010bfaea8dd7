package main

import (
	"bytes"
	"testing"

	. "github.com/fulldump/biff"

	"github.com/fulldump/cursordb/collection"
	"github.com/fulldump/cursordb/engine"
	"github.com/fulldump/cursordb/logging"
)

func TestCLI(t *testing.T) {

	dir := t.TempDir()

	e, err := engine.Open(engine.Config{Dir: dir, Journal: "json", DurableAutoCommit: true, Logger: logging.Discard()})
	AssertNil(err)
	users, err := collection.Create(e, "users", &collection.Options{DurableCommit: true, Logger: logging.Discard()})
	AssertNil(err)
	_, err = users.Insert(map[string]any{"name": "Ana"})
	AssertNil(err)
	_, err = users.Incr(1, 3)
	AssertNil(err)
	AssertNil(users.Close())
	AssertNil(e.Close())

	run := func(verb, table string) (string, error) {
		out := &bytes.Buffer{}
		cli := &CLI{Verb: verb, Table: table, Dir: dir, Journal: "json"}
		err := cli.Run(out)
		return out.String(), err
	}

	Alternative("Tables", func(a *A) {
		out, err := run("TABLES", "")
		AssertNil(err)
		AssertEqual(out, "_collections\nusers\n")
	})

	Alternative("Count", func(a *A) {
		out, err := run("count", "users")
		AssertNil(err)
		AssertEqual(out, "1\n")
	})

	Alternative("Columns", func(a *A) {
		out, err := run("columns", "users")
		AssertNil(err)
		AssertEqual(out, "1\tid\tint64\n2\tpayload\tlong_binary\n3\tcounter\tint64 escrow\n4\tkey\ttext\n")
	})

	Alternative("Dump", func(a *A) {
		out, err := run("Dump", "users")
		AssertNil(err)
		AssertEqual(out, `{"counter":3,"id":1,"key":null,"payload":{"name":"Ana"}}`+"\n")
	})

	Alternative("Missing table", func(a *A) {
		_, err := run("count", "")
		AssertNotNil(err)
		AssertEqual(err.Error(), "verb 'count' needs a table")
	})

	Alternative("Unknown verb", func(a *A) {
		_, err := run("drop", "users")
		AssertNotNil(err)
		AssertEqual(err.Error(), "unknown verb 'drop', expected one of columns, count, dump, tables")
	})
}

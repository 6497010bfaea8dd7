package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/cursordb/binding"
	"github.com/fulldump/cursordb/engine"
	"github.com/fulldump/cursordb/isam"
	"github.com/fulldump/cursordb/logging"
	"github.com/fulldump/cursordb/utils"
)

// CLI inspects a data directory offline. The server must not be running.
type CLI struct {
	Verb    string `arg:"" help:"One of: tables, count, columns, dump."`
	Table   string `arg:"" optional:"" help:"Table name, required by count, columns and dump."`
	Dir     string `name:"dir" default:"data" help:"Data directory."`
	Journal string `name:"journal" default:"json" enum:"json,xz" help:"Journal codec."`
	Verbose bool   `name:"verbose" short:"v" help:"Log engine activity to stderr."`
}

type verb struct {
	needsTable bool
	run        func(e *engine.Engine, table string, w io.Writer) error
}

var verbs = map[string]verb{
	"tables":  {run: listTables},
	"count":   {needsTable: true, run: countRecords},
	"columns": {needsTable: true, run: listColumns},
	"dump":    {needsTable: true, run: dumpRecords},
}

func (c *CLI) Run(w io.Writer) error {

	v, exists := verbs[strings.ToLower(c.Verb)]
	if !exists {
		return fmt.Errorf("unknown verb '%s', expected one of %s", c.Verb, strings.Join(utils.GetKeys(verbs), ", "))
	}
	if v.needsTable && c.Table == "" {
		return fmt.Errorf("verb '%s' needs a table", c.Verb)
	}

	logger := logging.Discard()
	if c.Verbose {
		logger = logging.New(os.Stderr, "debug", logging.FormatText)
	}

	e, err := engine.Open(engine.Config{
		Dir:     c.Dir,
		Journal: c.Journal,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	return v.run(e, c.Table, w)
}

func listTables(e *engine.Engine, _ string, w io.Writer) error {
	for _, name := range e.Tables() {
		fmt.Fprintln(w, name)
	}
	return nil
}

func countRecords(e *engine.Engine, table string, w io.Writer) error {
	n, err := e.Count(table)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, n)
	return nil
}

func withCursor(e *engine.Engine, table string, f func(c *isam.Cursor) error) error {
	s, err := e.BeginSession()
	if err != nil {
		return err
	}
	session := isam.NewSession(s)
	defer session.Close()

	c, err := session.OpenCursor(table)
	if err != nil {
		return err
	}
	defer c.Close()

	return f(c)
}

func listColumns(e *engine.Engine, table string, w io.Writer) error {
	return withCursor(e, table, func(c *isam.Cursor) error {
		columns, err := c.Columns()
		if err != nil {
			return err
		}
		for _, column := range columns {
			escrow := ""
			if column.Escrow {
				escrow = " escrow"
			}
			fmt.Fprintf(w, "%d\t%s\t%s%s\n", column.ID, column.Name, column.Type, escrow)
		}
		return nil
	})
}

// dumpRecords writes one JSON object per record, keyed by column name.
func dumpRecords(e *engine.Engine, table string, w io.Writer) error {
	return withCursor(e, table, func(c *isam.Cursor) error {
		columns, err := c.Columns()
		if err != nil {
			return err
		}

		found, err := c.TryMoveFirst()
		for ; found && err == nil; found, err = c.TryMoveNext() {
			item := map[string]any{}
			for _, column := range columns {
				data, err := c.RetrieveColumn(column.ID, binding.RetrieveNone)
				if err != nil {
					return err
				}
				item[column.Name] = columnValue(column, data)
			}
			if err := jsonv2.MarshalWrite(w, item, jsonv2.Deterministic(true)); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
		return err
	})
}

func columnValue(column binding.ColumnInfo, data []byte) any {
	if data == nil {
		return nil
	}
	switch column.Type {
	case binding.ColumnInt64:
		return engine.DecodeInt64(data)
	case binding.ColumnText:
		return string(data)
	}
	if v := jsontext.Value(data); v.IsValid() {
		return v
	}
	return data
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("cursordbutil"),
		kong.Description("Offline inspection of a cursordb data directory"),
		kong.UsageOnError(),
		kong.BindTo(io.Writer(os.Stdout), (*io.Writer)(nil)),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fulldump/cursordb/bootstrap"
	"github.com/fulldump/cursordb/configuration"
	"github.com/fulldump/cursordb/logging"
)

type JSON = map[string]any

func Parallel(workers int, f func()) {
	wg := &sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}
	wg.Wait()
}

func TempDir() (string, func()) {
	dir, err := os.MkdirTemp("", "cursordb_bench_*")
	if err != nil {
		panic("Could not create temp directory: " + err.Error())
	}

	cleanup := func() {
		os.RemoveAll(dir)
	}

	return dir, cleanup
}

func Post(base, path string, body any) *http.Response {
	payload, _ := json.Marshal(body)

	resp, err := http.Post(base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		panic(err)
	}
	return resp
}

func CreateCollection(base string) string {

	name := "col-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	resp := Post(base, "/v1/collections", JSON{"name": name})
	defer resp.Body.Close()

	io.Copy(os.Stdout, resp.Body)
	fmt.Println()

	return name
}

// WaitOperating polls the server until the database accepts requests.
func WaitOperating(base string) {
	for {
		resp, err := http.Get(base + "/v1/collections")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func CreateServer(c *Config) (start, stop func()) {
	dir, cleanup := TempDir()
	cleanups = append(cleanups, cleanup)

	conf := configuration.Default()
	conf.Dir = dir
	conf.DurableCommit = false
	c.Base = "http://" + conf.HttpAddr

	start, stop, err := bootstrap.Bootstrap(&conf, logging.New(os.Stderr, "warn", "text"))
	if err != nil {
		panic(err)
	}
	return start, stop
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// TestIncr hammers the counter of a single document from every worker and
// checks no increment is lost.
func TestIncr(c Config) {

	if c.Base == "" {
		start, stop := CreateServer(&c)
		defer stop()
		go start()
	}
	WaitOperating(c.Base)

	collection := CreateCollection(c.Base)
	path := "/v1/collections/" + collection

	resp := Post(c.Base, path+":insert", JSON{"name": "hot document"})
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	pending := c.N
	failures := int64(0)

	t0 := time.Now()
	Parallel(c.Workers, func() {
		for atomic.AddInt64(&pending, -1) >= 0 {
			resp := Post(c.Base, path+":incr", JSON{"id": 1, "delta": 1})
			if resp.StatusCode != 200 {
				atomic.AddInt64(&failures, 1)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	})
	took := time.Since(t0)

	resp = Post(c.Base, path+":find", JSON{"limit": 1})
	defer resp.Body.Close()
	row := struct {
		Counter int64 `json:"counter"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		fmt.Println("ERROR: decode row:", err.Error())
		os.Exit(5)
	}

	fmt.Println("sent:", c.N)
	fmt.Println("failures:", failures)
	fmt.Println("counter:", row.Counter)
	fmt.Println("took:", took)
	fmt.Printf("Throughput: %.2f incr/sec\n", float64(c.N)/took.Seconds())

	if row.Counter != c.N-failures {
		fmt.Println("ERROR: lost increments")
		os.Exit(6)
	}
}

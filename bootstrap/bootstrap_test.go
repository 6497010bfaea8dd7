package bootstrap

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	. "github.com/fulldump/biff"

	"github.com/fulldump/cursordb/configuration"
	"github.com/fulldump/cursordb/logging"
)

func TestBootstrap(t *testing.T) {

	c := configuration.Default()
	c.HttpAddr = "127.0.0.1:0"
	c.Dir = "" // memory only

	logs := &bytes.Buffer{}
	start, stop, err := Bootstrap(&c, logging.New(logs, "info", logging.FormatJSON))
	AssertNil(err)

	listening := struct {
		Msg  string `json:"msg"`
		Addr string `json:"addr"`
	}{}
	AssertNil(json.Unmarshal([]byte(strings.SplitN(logs.String(), "\n", 2)[0]), &listening))
	AssertEqual(listening.Msg, "listening")
	base := "http://" + listening.Addr

	done := make(chan struct{})
	go func() {
		start()
		close(done)
	}()

	status := 0
	for i := 0; i < 100 && status != http.StatusOK; i++ {
		resp, err := http.Get(base + "/v1/collections")
		if err == nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		if status != http.StatusOK {
			time.Sleep(10 * time.Millisecond)
		}
	}
	AssertEqual(status, http.StatusOK)

	resp, err := http.Post(base+"/v1/collections/people:insert", "application/json", strings.NewReader(`{"name":"Ana"}`))
	AssertNil(err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	AssertEqual(resp.StatusCode, http.StatusCreated)
	AssertEqual(string(body), `{"id":1,"payload":{"name":"Ana"},"counter":0}`+"\n")

	resp, err = http.Get(base + "/release")
	AssertNil(err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	AssertEqual(strings.TrimSpace(string(body)), `"dev"`)

	stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("start did not return after stop")
	}
}

package bootstrap

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fulldump/box"

	"github.com/fulldump/cursordb/api"
	"github.com/fulldump/cursordb/configuration"
	"github.com/fulldump/cursordb/database"
	"github.com/fulldump/cursordb/service"
)

var VERSION = "dev"

// Bootstrap wires the database and the HTTP API. start blocks until stop
// is called or the process receives SIGTERM/SIGINT.
func Bootstrap(c *configuration.Configuration, logger *slog.Logger) (start, stop func(), err error) {

	db := database.NewDatabase(&database.Config{
		Dir:           c.Dir,
		Journal:       c.Journal,
		CacheSize:     c.CacheSize,
		DurableCommit: c.DurableCommit,
		Logger:        logger,
	})

	b := api.Build(service.NewService(db), VERSION, c.ApiKey, c.ApiSecret)
	b.WithInterceptors(
		api.AccessLog(log.New(os.Stdout, "ACCESS: ", log.Lshortfile)),
		api.PrettyErrorInterceptor,
		api.RecoverFromPanic,
		api.InterceptorUnavailable(db),
	)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("listening", "addr", ln.Addr().String())

	stopOnce := &sync.Once{}
	stop = func() {
		stopOnce.Do(func() {
			if err := s.Shutdown(context.Background()); err != nil {
				logger.Error("shutdown http server", "err", err)
			}
			if err := db.Stop(); err != nil {
				logger.Error("stop database", "err", err)
			}
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logger.Info("signal received", "signal", sig.String())
		stop()
	}()

	start = func() {

		wg := &sync.WaitGroup{}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := db.Start(); err != nil {
				logger.Error("database", "err", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "err", err)
			}
		}()

		wg.Wait()
	}

	return
}

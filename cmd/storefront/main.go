// Command storefront runs a mock storefront receipt validation API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/oklog/run"
	flag "github.com/spf13/pflag"

	"github.com/fmitra/iap/internal/config"
	"github.com/fmitra/iap/internal/storefront"
)

func main() {
	var logger log.Logger
	{
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	cfg, err := config.Load(os.Args[1:], config.Storefront)
	if err == flag.ErrHelp {
		os.Exit(0)
	}
	if err != nil {
		logger.Log("message", "failed to load config", "error", err, "source", "cmd/storefront")
		os.Exit(1)
	}

	if cfg.Debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	server := http.Server{
		Addr:         cfg.StorefrontHTTPAddr,
		Handler:      storefront.NewHandler(storefront.WithLogger(logger)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var g run.Group
	{
		sig := make(chan os.Signal, 1)
		g.Add(func() error {
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			s, ok := <-sig
			if !ok {
				return nil
			}
			return fmt.Errorf("signal received: %v", s)
		}, func(err error) {
			signal.Stop(sig)
			close(sig)
		})
	}
	{
		g.Add(func() error {
			logger.Log(
				"message", "storefront is starting",
				"address", server.Addr,
				"source", "cmd/storefront",
			)
			return server.ListenAndServe()
		}, func(err error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Log(
				"message", "storefront shut down",
				"error", server.Shutdown(ctx),
				"source", "cmd/storefront",
			)
		})
	}

	err = g.Run()
	logger.Log("message", "actors stopped", "error", err, "source", "cmd/storefront")
}

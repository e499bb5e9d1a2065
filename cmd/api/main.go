// Command api exposes the device registration and purchase HTTP API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	redisLib "github.com/go-redis/redis/v8"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/fmitra/iap/internal/config"
	"github.com/fmitra/iap/internal/deviceapi"
	"github.com/fmitra/iap/internal/httpapi"
	"github.com/fmitra/iap/internal/metrics"
	"github.com/fmitra/iap/internal/postgres"
	"github.com/fmitra/iap/internal/purchaseapi"
	"github.com/fmitra/iap/internal/receipt"
	"github.com/fmitra/iap/internal/redis"
	"github.com/fmitra/iap/internal/subscription"
	"github.com/fmitra/iap/internal/token"
)

func main() {
	var err error

	var logger log.Logger
	{
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	cfg, err := config.Load(os.Args[1:], config.API)
	if err == flag.ErrHelp {
		os.Exit(0)
	}
	if err != nil {
		logger.Log("message", "failed to load config", "error", err, "source", "cmd/api")
		os.Exit(1)
	}

	if cfg.Debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	var pgDB *sql.DB
	{
		pgDB, err = sql.Open("postgres", cfg.PGConnString)
		if err != nil {
			logger.Log(
				"message", "postgres connection failed",
				"error", err,
				"source", "cmd/api",
			)
			os.Exit(1)
		}
		if err = pgDB.Ping(); err != nil {
			logger.Log("message", "postgres did not respond", "error", err, "source", "cmd/api")
			os.Exit(1)
		}
		defer func() {
			if err = pgDB.Close(); err != nil {
				logger.Log(
					"message", "failed to close postgres connection",
					"error", err,
					"source", "cmd/api",
				)
			}
		}()
	}

	var redisDB *redisLib.Client
	{
		redisConf, err := redisLib.ParseURL(cfg.RedisConnString)
		if err != nil {
			logger.Log("message", "invalid redis configuration", "error", err, "source", "cmd/api")
			os.Exit(1)
		}
		redisDB = redisLib.NewClient(redisConf)
		closeRedis := func() {
			if err = redisDB.Close(); err != nil {
				logger.Log(
					"message", "failed to close redis connection",
					"error", err,
					"source", "cmd/api",
				)
			}
		}

		if _, err = redisDB.Ping(context.Background()).Result(); err != nil {
			logger.Log("message", "redis connection failed", "error", err, "source", "cmd/api")
			closeRedis()
			os.Exit(1)
		}
		defer closeRedis()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	repoMngr := postgres.NewClient(
		postgres.WithLogger(logger),
		postgres.WithDB(pgDB),
	)

	cache := redis.NewCache(
		redis.WithLogger(logger),
		redis.WithDB(redisDB),
		redis.WithTTL(cfg.CacheTTL),
	)

	tokenSvc := token.NewService(
		token.WithLogger(logger),
		token.WithSecret(cfg.TokenSecret),
	)

	receiptSvc := receipt.NewClient(
		receipt.WithLogger(logger),
		receipt.WithBaseURL(cfg.StorefrontAddr),
		receipt.WithTimeout(cfg.StorefrontTimeout),
		receipt.WithMetrics(recorder),
	)

	subscriptionSvc := subscription.NewService(
		subscription.WithLogger(logger),
		subscription.WithRepoManager(repoMngr),
		subscription.WithCache(cache),
		subscription.WithMetrics(recorder),
		subscription.WithRenewalCooldown(cfg.RenewalCooldown),
	)

	deviceAPI := deviceapi.NewService(
		deviceapi.WithLogger(logger),
		deviceapi.WithTokenService(tokenSvc),
		deviceapi.WithRepoManager(repoMngr),
	)

	purchaseAPI := purchaseapi.NewService(
		purchaseapi.WithLogger(logger),
		purchaseapi.WithReceiptValidator(receiptSvc),
		purchaseapi.WithSubscriptionService(subscriptionSvc),
		purchaseapi.WithRepoManager(repoMngr),
		purchaseapi.WithCache(cache),
	)

	router := mux.NewRouter()
	router.HandleFunc("/health", httpapi.ToHandlerFunc(httpapi.Health, http.StatusOK)).Methods("Get")
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("Get")

	deviceapi.SetupHTTPHandler(deviceAPI, router, logger, cfg.RegisterPerSecond)
	purchaseapi.SetupHTTPHandler(
		purchaseAPI,
		router,
		tokenSvc,
		logger,
		httpapi.NewRateLimiter(redisDB),
		cfg.PurchasePerMinute,
	)

	server := http.Server{
		Addr: cfg.HTTPAddr,
		Handler: handlers.CORS(
			handlers.AllowedOrigins(cfg.AllowedOrigins),
			handlers.AllowedHeaders([]string{
				"X-Requested-With",
				"Content-Type",
				"Authorization",
			}),
			handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS", "HEAD"}),
		)(router),
		ReadTimeout: 5 * time.Second,
		// Purchases wait on the storefront.
		WriteTimeout: cfg.StorefrontTimeout + 5*time.Second,
		IdleTimeout:  30 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())

	var g run.Group
	{
		g.Add(func() error {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case s := <-sig:
				return fmt.Errorf("signal received: %v", s)
			case <-ctx.Done():
				return ctx.Err()
			}
		}, func(err error) {
			logger.Log("message", "program was interrupted", "error", err, "source", "cmd/api")
			cancel()
		})
	}
	{
		g.Add(func() error {
			logger.Log(
				"message", "API server is starting",
				"address", server.Addr,
				"source", "cmd/api",
			)
			return server.ListenAndServe()
		}, func(err error) {
			logger.Log(
				"message", "API server was interrupted",
				"error", err,
				"source", "cmd/api",
			)
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			logger.Log(
				"message", "API server shut down",
				"error", server.Shutdown(shutdownCtx),
				"source", "cmd/api",
			)
		})
	}

	err = g.Run()
	logger.Log("message", "actors stopped", "error", err, "source", "cmd/api")
}

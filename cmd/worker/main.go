// Command worker renews lapsed subscriptions and delivers subscription
// events to webhooks.
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
	"github.com/gorilla/mux"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/config"
	"github.com/fmitra/iap/internal/httpapi"
	"github.com/fmitra/iap/internal/kafka"
	"github.com/fmitra/iap/internal/metrics"
	"github.com/fmitra/iap/internal/msgconsumer"
	"github.com/fmitra/iap/internal/msgpublisher"
	"github.com/fmitra/iap/internal/postgres"
	"github.com/fmitra/iap/internal/queue"
	"github.com/fmitra/iap/internal/rabbitmq"
	"github.com/fmitra/iap/internal/receipt"
	"github.com/fmitra/iap/internal/redis"
	"github.com/fmitra/iap/internal/renewal"
	"github.com/fmitra/iap/internal/subscription"
)

func main() {
	var err error

	var logger log.Logger
	{
		logger = log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	cfg, err := config.Load(os.Args[1:], config.Worker)
	if err == flag.ErrHelp {
		os.Exit(0)
	}
	if err != nil {
		logger.Log("message", "failed to load config", "error", err, "source", "cmd/worker")
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
			logger.Log("message", "postgres connection failed", "error", err, "source", "cmd/worker")
			os.Exit(1)
		}
		if err = pgDB.Ping(); err != nil {
			logger.Log("message", "postgres did not respond", "error", err, "source", "cmd/worker")
			os.Exit(1)
		}
		defer func() {
			if err = pgDB.Close(); err != nil {
				logger.Log(
					"message", "failed to close postgres connection",
					"error", err,
					"source", "cmd/worker",
				)
			}
		}()
	}

	// The worker only invalidates cached subscriptions, so redis is
	// optional.
	var cache iap.SubscriptionCache
	if cfg.RedisConnString != "" {
		redisConf, err := redisLib.ParseURL(cfg.RedisConnString)
		if err != nil {
			logger.Log("message", "invalid redis configuration", "error", err, "source", "cmd/worker")
			os.Exit(1)
		}
		redisDB := redisLib.NewClient(redisConf)
		defer redisDB.Close()

		cache = redis.NewCache(
			redis.WithLogger(logger),
			redis.WithDB(redisDB),
			redis.WithTTL(cfg.CacheTTL),
		)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	processor := queue.NewProcessor(queue.WithLogger(logger))

	var q iap.Queue
	switch cfg.QueueDriver {
	case config.DriverRabbitMQ:
		q, err = rabbitmq.NewQueue(
			cfg.RabbitMQURL,
			rabbitmq.WithLogger(logger),
			rabbitmq.WithProcessor(processor),
		)
		if err != nil {
			logger.Log("message", "rabbitmq connection failed", "error", err, "source", "cmd/worker")
			os.Exit(1)
		}
	default:
		q = kafka.NewQueue(
			cfg.KafkaBrokers,
			kafka.WithLogger(logger),
			kafka.WithGroupID(cfg.KafkaGroupID),
			kafka.WithProcessor(processor),
		)
	}
	defer func() {
		if err = q.Close(); err != nil {
			logger.Log("message", "failed to close queue", "error", err, "source", "cmd/worker")
		}
	}()

	repoMngr := postgres.NewClient(
		postgres.WithLogger(logger),
		postgres.WithDB(pgDB),
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

	publisher := msgpublisher.NewService(
		q,
		msgpublisher.WithLogger(logger),
		msgpublisher.WithTopic(cfg.QueueTopic),
	)

	renewalWorker := renewal.NewWorker(
		repoMngr,
		receiptSvc,
		subscriptionSvc,
		publisher,
		renewal.WithLogger(logger),
		renewal.WithInterval(cfg.RenewalInterval),
		renewal.WithBatchSize(cfg.RenewalBatchSize),
		renewal.WithCooldown(cfg.RenewalCooldown),
	)

	notifier := msgconsumer.NewService(
		q,
		repoMngr,
		msgconsumer.WithLogger(logger),
		msgconsumer.WithTopic(cfg.QueueTopic),
		msgconsumer.WithTimeout(cfg.NotifierTimeout),
		msgconsumer.WithWorkers(cfg.NotifierWorkers),
		msgconsumer.WithMetrics(recorder),
	)

	router := mux.NewRouter()
	router.HandleFunc("/health", httpapi.ToHandlerFunc(httpapi.Health, http.StatusOK)).Methods("Get")
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("Get")
	server := http.Server{
		Addr:         cfg.WorkerHTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
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
			logger.Log("message", "program was interrupted", "error", err, "source", "cmd/worker")
			cancel()
		})
	}
	{
		g.Add(func() error {
			logger.Log(
				"message", "renewal worker is starting",
				"interval", cfg.RenewalInterval,
				"source", "cmd/worker",
			)
			return renewalWorker.Run(ctx)
		}, func(err error) {
			logger.Log("message", "renewal worker was shut down", "error", err, "source", "cmd/worker")
			cancel()
		})
	}
	{
		g.Add(func() error {
			logger.Log(
				"message", "webhook notifier is starting",
				"driver", cfg.QueueDriver,
				"topic", cfg.QueueTopic,
				"source", "cmd/worker",
			)
			return notifier.Run(ctx)
		}, func(err error) {
			logger.Log("message", "webhook notifier was shut down", "error", err, "source", "cmd/worker")
			cancel()
		})
	}
	{
		g.Add(func() error {
			logger.Log(
				"message", "metrics server is starting",
				"address", server.Addr,
				"source", "cmd/worker",
			)
			return server.ListenAndServe()
		}, func(err error) {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			logger.Log(
				"message", "metrics server shut down",
				"error", server.Shutdown(shutdownCtx),
				"source", "cmd/worker",
			)
		})
	}

	err = g.Run()
	logger.Log("message", "actors stopped", "error", err, "source", "cmd/worker")
}

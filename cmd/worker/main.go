// Command worker consumes queued screening runs, executes the
// prioritization pipeline, and persists the resulting rankings.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/MorphoScreen/internal/application/runs"
	"github.com/turtacn/MorphoScreen/internal/application/screening"
	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/database/postgres"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/database/redis"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/metrics"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/storage/minio"
)

func main() {
	if err := run(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default: MSCREEN_* environment)")
	metricsAddr := flag.String("metrics-addr", ":9091", "listen address for /metrics and /healthz")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logConfig(cfg.Log))
	if err != nil {
		return err
	}
	logger = logger.Named("worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	producer := kafka.NewProducer(cfg.Kafka, "worker", logger)
	defer producer.Close()

	store, err := minio.NewClient(ctx, cfg.MinIO, logger)
	if err != nil {
		return err
	}

	m := metrics.MustNew()
	svc := runs.NewService(runs.Dependencies{
		Runs:        repositories.NewRunRepository(db.Pool(), logger),
		Scores:      repositories.NewScoreRepository(db.Pool(), logger),
		Profiles:    minio.NewProfileStore(store),
		Events:      producer,
		Cache:       redis.NewCache(rdb, cfg.Redis.DefaultTTL, logger),
		Leaderboard: redis.NewLeaderboard(rdb),
		Pipeline: screening.NewService(logger.Named("pipeline"),
			screening.WithMetrics(m),
			screening.WithConcurrency(cfg.Worker.Concurrency),
		),
		Defaults: cfg.Pipeline,
		Logger:   logger,
		Metrics:  m,
	})

	go serveMetrics(*metricsAddr, m, logger)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Worker, kafka.TopicRunRequested, logger)
	defer consumer.Close()

	logger.Info("worker consuming",
		logging.String("topic", kafka.TopicRunRequested),
		logging.String("group", cfg.Kafka.GroupID),
		logging.Int("concurrency", cfg.Worker.Concurrency),
	)
	return consumer.Run(ctx, func(ctx context.Context, envelope *kafka.EventEnvelope) error {
		var payload kafka.RunRequestedPayload
		if err := envelope.DecodePayload(&payload); err != nil {
			return err
		}
		execCtx, cancel := context.WithTimeout(ctx, cfg.Worker.HandlerTimeout)
		defer cancel()
		return svc.Execute(execCtx, payload.RunID)
	})
}

func serveMetrics(addr string, m *metrics.Metrics, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", logging.Err(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("configs/config.yaml"); err == nil {
		return config.Load("configs/config.yaml")
	}
	return config.LoadFromEnv()
}

func logConfig(cfg config.LogConfig) logging.LogConfig {
	out := []string{"stdout"}
	if cfg.Output != "" {
		out = []string{cfg.Output}
	}
	return logging.LogConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: out,
	}
}

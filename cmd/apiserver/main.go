// Command apiserver runs the MorphoScreen HTTP API. It accepts run
// submissions, hands them to the workers over Kafka, and serves stored
// rankings.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

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
	httpiface "github.com/turtacn/MorphoScreen/internal/interfaces/http"
	"github.com/turtacn/MorphoScreen/internal/interfaces/http/handlers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default: MSCREEN_* environment)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logConfig(cfg.Log))
	if err != nil {
		return err
	}
	logger = logger.Named("apiserver")

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

	producer := kafka.NewProducer(cfg.Kafka, "apiserver", logger)
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
		Pipeline:    screening.NewService(logger.Named("pipeline"), screening.WithMetrics(m)),
		Defaults:    cfg.Pipeline,
		Logger:      logger,
		Metrics:     m,
	})

	router := httpiface.NewRouter(httpiface.RouterConfig{
		Mode:           cfg.Server.Mode,
		Logger:         logger,
		MetricsHandler: m.Handler(),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthChecker{
			"postgres": db,
			"redis":    rdb,
		}),
		Runs:     handlers.NewRunHandler(svc),
		Rankings: handlers.NewRankingHandler(svc),
	})
	server := httpiface.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
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

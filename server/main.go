package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/meikuraledutech/pipegraph"
	"github.com/meikuraledutech/pipegraph/api"
	"github.com/meikuraledutech/pipegraph/catalog"
	"github.com/meikuraledutech/pipegraph/config"
	"github.com/meikuraledutech/pipegraph/logging"
	"github.com/meikuraledutech/pipegraph/memory"
	"github.com/meikuraledutech/pipegraph/metrics"
	"github.com/meikuraledutech/pipegraph/natskv"
	"github.com/meikuraledutech/pipegraph/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a pipegraph.yaml file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open backend", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer closeBackend()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		logger.Error("register metrics", "error", err)
		os.Exit(1)
	}

	h := api.NewHandler(backend, catalog.Default(), logger, m)
	app := api.NewApp(h, api.Options{
		Token:      cfg.Server.Token,
		Gatherer:   reg,
		RequestLog: cfg.Server.RequestLog,
	})

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdown); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("pipe backend listening", "addr", cfg.Server.Addr, "driver", cfg.Storage.Driver)
	if err := app.Listen(cfg.Server.Addr); err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}
}

// openBackend wires the storage driver named in cfg behind pipegraph.Backend.
// The returned func releases its connections.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pipegraph.Backend, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		store := postgres.New(pool)
		if err := store.CreateSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("schema: %w", err)
		}
		return store, pool.Close, nil

	case config.DriverNATS:
		nc, err := nats.Connect(cfg.Storage.NATSURL, nats.Name("pipegraph-server"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("jetstream: %w", err)
		}
		store, err := natskv.New(ctx, js)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return store, func() { _ = nc.Drain() }, nil
	}

	logger.Warn("using in-memory storage, pipes are lost on restart")
	return memory.New(), func() {}, nil
}

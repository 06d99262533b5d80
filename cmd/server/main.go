package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cpumon/internal/adapters/observability"
	"cpumon/internal/adapters/redis"
	"cpumon/internal/application/series"
	"cpumon/internal/chart"
	"cpumon/internal/collector/cpu"
	"cpumon/internal/config"
	"cpumon/internal/core/event"
	"cpumon/internal/domain"
	"cpumon/internal/logger"
	"cpumon/internal/metrics"
	"cpumon/internal/storage"
	"cpumon/internal/transport/rest"
	"cpumon/internal/transport/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		var missing *domain.MissingConfigError
		if errors.As(err, &missing) {
			fmt.Fprintf(os.Stderr, "FATAL: %s is mandatory for cpumon\n", missing.Key)
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		}
		os.Exit(1)
	}
	log := logger.New(cfg)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	repo, err := storage.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	if err := repo.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	obs := observability.NewPromObs(reg)

	if _, err := metrics.NewBackfill(cfg, log, repo, obs).Run(ctx); err != nil {
		log.Error("backfill: failed, continuing without it", "error", err)
	}

	bus := event.New(log)

	var (
		mirror    rest.LatestReader
		mirrorRun func(context.Context) error
	)
	if cfg.Redis.Address != "" {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("redis: mirror disabled", "address", cfg.Redis.Address, "error", err)
		} else {
			defer client.Close()
			m := redis.NewMirror(cfg.Redis, redis.NewRegistry(client), log)
			m.Register(bus)
			mirror = m
			mirrorRun = m.Run
			log.Info("redis: mirroring samples", "stream", cfg.Redis.Stream)
		}
	}

	hub := websocket.NewHub(log)
	hub.Register(bus)

	seriesService := series.NewService(repo, obs)
	dashboard, err := rest.NewDashboardHandler(cfg, log, seriesService, chart.NewRenderer(), obs)
	if err != nil {
		return err
	}

	router := rest.NewRouter(cfg, log, &rest.RouterDeps{
		Dashboard: dashboard,
		CPU:       rest.NewCPUHandler(cfg, log, seriesService, mirror, seriesService),
		WsSamples: websocket.NewHandler(hub, log, cfg.AllowedOrigins).Serve,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	srv := rest.NewServer(router, cfg.Address, log)

	collector := metrics.NewCollector(cfg, log, repo, cpu.NewMonitor(), bus, obs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })
	if mirrorRun != nil {
		g.Go(func() error { return mirrorRun(gctx) })
	}
	g.Go(func() error {
		err := collector.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

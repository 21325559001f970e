// /apps/sinusoid/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	influx "github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/influxdb"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/metadata"
	mysqlclient "github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/mysql"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/observability"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/server"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/simulation"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/sinusoid"
	"github.com/Resanso/minerva-ericsson/apps/sinusoid/internal/timescale"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not loaded", "error", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: levelFromEnv()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	category, err := simulation.CategoryFromEnv()
	if err != nil {
		slog.Error("load plugin category", "error", err)
		os.Exit(1)
	}

	pluginOpts := []sinusoid.Option{sinusoid.WithLogger(logger)}
	if seed, ok := simulation.SeedFromEnv(); ok {
		pluginOpts = append(pluginOpts, sinusoid.WithSeed(seed))
	}

	deps := server.Dependencies{Gatherer: reg}
	simOpts := []simulation.Option{
		simulation.WithInterval(simulation.IntervalFromEnv()),
		simulation.WithMetrics(metrics),
		simulation.WithLogger(logger),
	}
	if !simulation.EnabledFromEnv() {
		simOpts = append(simOpts, simulation.WithDisabled())
	}

	if influxClient := connectInflux(ctx); influxClient != nil {
		defer influxClient.Close()
		simOpts = append(simOpts, simulation.WithSinks(influxClient))
		deps.Readings = influxClient
	}

	if sink := connectTimescale(ctx); sink != nil {
		simOpts = append(simOpts, simulation.WithSinks(sink))
	}

	var store simulation.Store
	if repo := connectMySQL(ctx); repo != nil {
		store = repo
		deps.Events = repo
	}

	simulator := simulation.New(sinusoid.New(pluginOpts...), category, simOpts...)
	coordinator := simulation.NewCoordinator(simulator, store,
		simulation.WithCoordinatorPollInterval(simulation.CoordinatorIntervalFromEnv()),
		simulation.WithCategoryName(simulation.CategoryNameFromEnv()),
		simulation.WithCoordinatorLogger(logger),
	)
	coordinator.Start(ctx)
	simulator.Start(ctx)

	deps.Simulator = simulator
	deps.Coordinator = coordinator
	router := server.NewRouter(deps)

	addr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "error", err)
		}
	}()

	slog.Info("starting sinusoid admin API", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server", "error", err)
		os.Exit(1)
	}
}

func connectInflux(ctx context.Context) *influx.Client {
	cfg, err := influx.FromEnv()
	if err != nil {
		slog.Warn("influx sink disabled", "error", err)
		return nil
	}
	client, err := influx.New(ctx, cfg)
	if err != nil {
		slog.Warn("influx sink disabled", "error", err)
		return nil
	}
	slog.Info("influx sink enabled", "url", cfg.URL, "bucket", cfg.Bucket)
	return client
}

func connectTimescale(ctx context.Context) *timescale.Sink {
	cfg, err := timescale.FromEnv()
	if err != nil {
		if !errors.Is(err, timescale.ErrNotConfigured) {
			slog.Warn("timescale sink disabled", "error", err)
		}
		return nil
	}
	db, err := timescale.Open(ctx, cfg)
	if err != nil {
		slog.Warn("timescale sink disabled", "error", err)
		return nil
	}
	sink := timescale.NewSink(db, cfg.Table)
	if err := sink.EnsureSchema(ctx); err != nil {
		slog.Warn("timescale schema", "table", cfg.Table, "error", err)
	}
	slog.Info("timescale sink enabled", "table", cfg.Table)
	return sink
}

func connectMySQL(ctx context.Context) *metadata.Repository {
	cfg, err := mysqlclient.FromEnv()
	if err != nil {
		slog.Warn("mysql store disabled, configuration lives in memory", "error", err)
		return nil
	}
	db, err := mysqlclient.New(ctx, cfg)
	if err != nil {
		slog.Warn("mysql store disabled, configuration lives in memory", "error", err)
		return nil
	}
	repo := metadata.NewRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		slog.Warn("mysql schema", "error", err)
	}
	slog.Info("mysql store enabled", "host", cfg.Host, "database", cfg.Database)
	return repo
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

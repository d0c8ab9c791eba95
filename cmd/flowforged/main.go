// Command flowforged runs the full engine in one process: the REST API, the
// job worker and the cron scheduler, backed by SQLite and dispatching through
// either the embedded queue or Redis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"flowforge/api"
	"flowforge/backend"
	redisbroker "flowforge/backend/redis"
	"flowforge/backend/sqlite"
	"flowforge/client"
	"flowforge/config"
	"flowforge/registry"
	"flowforge/scheduler"
	"flowforge/tasks"
	"flowforge/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	traceToStdout := flag.Bool("trace", false, "emit traces to stdout")
	flag.Parse()

	if err := run(*configPath, *traceToStdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, traceToStdout bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	tp, shutdownTracing, err := newTracerProvider(traceToStdout)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	opts := []backend.BackendOption{
		backend.WithLogger(logger),
		backend.WithTracerProvider(tp),
	}

	store, err := sqlite.NewBackend(cfg.Database.Path, opts...)
	if err != nil {
		return err
	}
	defer store.Close()

	var broker backend.Broker = store
	if cfg.Broker.Kind == "redis" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.Broker.RedisAddr},
			DB:    cfg.Broker.RedisDB,
		})

		broker, err = redisbroker.NewBroker(rdb, opts...)
		if err != nil {
			return err
		}
		defer broker.Close()
	}

	reg := registry.New()
	if err := tasks.RegisterAll(reg); err != nil {
		return err
	}

	c := client.New(store, broker, opts...)
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	w := worker.New(store, broker, reg, &worker.Options{
		Pollers:         cfg.Worker.Pollers,
		PollingInterval: cfg.Worker.PollingInterval,
	}, opts...)
	if err := w.Start(ctx); err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(store, c, nil, opts...)
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	server := api.NewServer(c, opts...)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr())
		serverErr <- server.Start(cfg.Server.Addr())
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	cancel()
	if sched != nil {
		_ = sched.WaitForCompletion()
	}
	_ = w.WaitForCompletion()

	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func newTracerProvider(toStdout bool) (trace.TracerProvider, func(), error) {
	if !toStdout {
		return noop.NewTracerProvider(), func() {}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))

	return tp, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

package backend

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"flowforge/metrics"
)

// TracerName is the instrumentation name used for spans emitted by the
// engine.
const TracerName = "flowforge"

type Options struct {
	Logger *slog.Logger

	Metrics metrics.Client

	TracerProvider trace.TracerProvider

	// JobLockTimeout determines how long a dequeued job stays locked. If the
	// job is not completed within that timeframe it is considered abandoned
	// and another worker may pick it up. Long-running jobs combine this with
	// Extend.
	JobLockTimeout time.Duration
}

var DefaultOptions Options = Options{
	Logger:         slog.Default(),
	Metrics:        metrics.NewNoopClient(),
	TracerProvider: noop.NewTracerProvider(),
	JobLockTimeout: time.Minute * 2,
}

type BackendOption func(*Options)

func WithLogger(logger *slog.Logger) BackendOption {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) BackendOption {
	return func(o *Options) {
		o.Metrics = client
	}
}

func WithTracerProvider(tp trace.TracerProvider) BackendOption {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

func WithJobLockTimeout(timeout time.Duration) BackendOption {
	return func(o *Options) {
		o.JobLockTimeout = timeout
	}
}

func ApplyOptions(opts ...BackendOption) Options {
	options := DefaultOptions

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return options
}

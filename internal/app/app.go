package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/ctxlog"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/metrics"
	"github.com/dlr-gtlab/intelligraph-module-sub000/internal/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	registry   *registry.Registry
	config     *Config
	metrics    *prometheus.Registry
	collector  *metrics.Collector
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, registry and
// metrics registry. Without modules the core modules are registered.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules(outW)
	}
	reg.Load(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "types", reg.Types())

	if err := reg.ValidateRegistry(ctx); err != nil {
		// a node type that does not match its registration is a programmer error
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		ctx:       ctx,
		outW:      outW,
		logger:    logger,
		registry:  reg,
		config:    cfg,
		metrics:   promReg,
		collector: metrics.New(promReg),
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Metrics returns the Prometheus registry served on /metrics.
func (a *App) Metrics() *prometheus.Registry {
	return a.metrics
}

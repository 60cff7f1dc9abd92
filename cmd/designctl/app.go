package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"designcore/internal/cache"
	"designcore/internal/config"
	"designcore/internal/core"
	"designcore/internal/logging"
)

// Metrics modes accepted by --metrics.
const (
	metricsNone       = "none"
	metricsExpvar     = "expvar"
	metricsPrometheus = "prometheus"
)

// app holds the flags shared by every command and the service they build.
// A service assigned before execution is used as is.
type app struct {
	configPath  string
	owner       string
	metricsMode string
	metricsFile string
	traceFile   string

	svc      *core.Service
	logger   *logging.Logger
	expvar   *core.ExpvarMetricsRecorder
	registry *prometheus.Registry
	closers  []io.Closer
}

func newApp() *app { return &app{} }

func (a *app) actor() core.Actor { return core.Actor{OwnerID: a.owner} }

// auditLog writes audit entries through the structured logger.
type auditLog struct {
	logger *logging.Logger
}

func (l auditLog) Record(_ context.Context, e core.AuditEntry) {
	kv := []any{
		"operation", e.Operation,
		"status", string(e.Status),
		"actor", e.Actor,
		"entity_id", e.EntityID,
		"duration", e.Duration,
	}
	if e.Error != "" {
		kv = append(kv, "error", e.Error, "error_kind", e.ErrorKind)
	}
	l.logger.Info("audit", kv...)
}

func (a *app) open(ctx context.Context) error {
	if a.svc != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return err
	}
	a.logger = logger

	store, storeCloser, err := core.OpenPersistentStore(ctx, cfg.Storage, nil, logger.Zap())
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	a.closers = append(a.closers, storeCloser)

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithAuditRecorder(auditLog{logger: logger}),
		core.WithComposeLimits(cfg.Compose.MaxDepth, cfg.Compose.Concurrency),
	}
	blobs, err := core.OpenBlobStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	if blobs != nil {
		opts = append(opts, core.WithBlobStore(blobs))
	}
	trees, cacheCloser, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open %s cache: %w", cfg.Cache.Driver, err)
	}
	if cacheCloser != nil {
		a.closers = append(a.closers, cacheCloser)
	}
	if trees != nil {
		opts = append(opts, core.WithCache(trees))
	}
	metrics, err := a.metricsRecorder()
	if err != nil {
		return err
	}
	if metrics != nil {
		opts = append(opts, core.WithMetricsRecorder(metrics))
	}
	if a.traceFile != "" {
		f, err := os.OpenFile(filepath.Clean(a.traceFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f, 0)))
	}

	a.svc = core.NewService(store, opts...)
	logger.Debug("service ready",
		"storage", cfg.Storage.Driver,
		"blob", cfg.Blob.Driver,
		"cache", cfg.Cache.Driver,
		"metrics", a.metricsMode,
	)
	return nil
}

func (a *app) metricsRecorder() (core.MetricsRecorder, error) {
	switch a.metricsMode {
	case "", metricsNone:
		return nil, nil
	case metricsExpvar:
		a.expvar = core.NewExpvarMetricsRecorder("designctl")
		return a.expvar, nil
	case metricsPrometheus:
		a.registry = prometheus.NewRegistry()
		return core.NewPrometheusMetricsRecorder(a.registry), nil
	}
	return nil, fmt.Errorf("unknown metrics mode %q", a.metricsMode)
}

// openCache builds the tree cache selected by cfg. The closer is nil for
// caches without resources to release.
func openCache(ctx context.Context, cfg config.CacheConfig) (core.TreeCache, io.Closer, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil, nil
	case "lru":
		return cache.NewLRU(cfg.Size, cfg.TTL), nil, nil
	case "redis":
		c, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
	return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
}

// flushMetrics reports collected metrics: expvar stats go to the debug log,
// prometheus families to --metrics-file in text exposition format.
func (a *app) flushMetrics() error {
	if a.expvar != nil && a.logger != nil {
		for op, stats := range a.expvar.Snapshot() {
			a.logger.Debug("operation stats", "operation", op, "success", stats.Success, "errors", stats.Errors, "total_ms", stats.TotalMS)
		}
	}
	if a.registry == nil || a.metricsFile == "" {
		return nil
	}
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	f, err := os.Create(filepath.Clean(a.metricsFile))
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			_ = f.Close()
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return f.Close()
}

// close releases everything open built, newest first.
func (a *app) close() error {
	errs := []error{a.flushMetrics()}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	if a.logger != nil {
		a.logger.Sync()
	}
	return errors.Join(errs...)
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"

	"github.com/acronis/go-appkit/httpserver"
	"github.com/acronis/go-appkit/log"
	"github.com/acronis/go-appkit/profserver"
	"github.com/acronis/go-appkit/restapi"
	"github.com/acronis/go-appkit/service"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LimJW/go-large-file-uploader/adminapi"
	"github.com/LimJW/go-large-file-uploader/filestate"
	"github.com/LimJW/go-large-file-uploader/internal/buildinfo"
	"github.com/LimJW/go-large-file-uploader/limiter"
	"github.com/LimJW/go-large-file-uploader/lrucache"
)

const (
	serviceNameInURL = "upload_limiter"
	metricsNamespace = "upload_limiter"
)

// App holds all components of the daemon wired together.
type App struct {
	Registry   *limiter.OperationRegistry
	Store      *limiter.RequestConfigStore
	Master     *limiter.MasterRateConfig
	Propagator *limiter.Propagator
	HTTPServer *httpserver.HTTPServer

	Unit service.Unit

	closeFileState func() error
}

// NewApp creates all components and combines them into a single service unit.
func NewApp(cfg *AppConfig, logger log.FieldLogger) (*App, error) {
	states, closeFileState, err := filestate.NewProvider(cfg.FileState)
	if err != nil {
		return nil, fmt.Errorf("create file state provider: %w", err)
	}

	metrics := newAppMetrics()

	propagator := limiter.NewPropagator(logger)
	propagator.Register(limiter.InactivityListenerFunc(func(clientID uuid.UUID, windowSeconds int) {
		logger.Warn("client stopped uploading before completion",
			log.String("client_id", clientID.String()), log.Int("inactivity_window_seconds", windowSeconds))
	}))

	detector := limiter.NewInactivityDetectorWithOpts(states, propagator, logger, limiter.InactivityDetectorOpts{
		LookupTimeout:    cfg.RateLimiter.FileStateLookupTimeout,
		MetricsCollector: metrics.limiter,
	})
	store, err := limiter.NewRequestConfigStore(detector, logger, limiter.RequestConfigStoreOpts{
		EvictionTime:          cfg.RateLimiter.ClientEvictionTime(),
		MaxRequests:           cfg.RateLimiter.MaxRequests,
		CacheMetricsCollector: metrics.cache,
	})
	if err != nil {
		_ = closeFileState()
		return nil, fmt.Errorf("create request configuration store: %w", err)
	}
	registry := limiter.NewOperationRegistryWithOpts(limiter.OperationRegistryOpts{MetricsCollector: metrics.limiter})
	master := limiter.NewMasterRateConfig(
		cfg.RateLimiter.MaximumRatePerClientInKiloBytes, cfg.RateLimiter.MaximumOverAllRateInKiloBytes)
	allocator := limiter.NewRateAllocator(registry, store, master, logger)

	httpServer, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: serviceNameInURL,
		ErrorDomain:      adminapi.ErrorDomain,
		APIRoutes: map[httpserver.APIVersion]httpserver.APIRoute{
			1: adminapi.NewHandler(registry, store, master, logger).Routes,
		},
		HealthCheckContext: makeHealthCheck(states),
	})
	if err != nil {
		_ = closeFileState()
		return nil, fmt.Errorf("create HTTP server: %w", err)
	}

	cleanupWorker := service.WorkerFunc(func(ctx context.Context) error {
		store.RunPeriodicCleanup(ctx, cfg.RateLimiter.CleanupInterval)
		store.WaitForPendingHooks()
		return nil
	})
	units := []service.Unit{
		httpServer,
		service.NewWorkerUnitWithOpts(cleanupWorker, service.WorkerUnitOpts{MetricsRegisterer: metrics}),
		service.NewWorkerUnit(service.NewPeriodicWorker(allocator, cfg.RateLimiter.AllocationInterval, logger)),
	}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}

	return &App{
		Registry:       registry,
		Store:          store,
		Master:         master,
		Propagator:     propagator,
		HTTPServer:     httpServer,
		Unit:           service.NewCompositeUnit(units...),
		closeFileState: closeFileState,
	}, nil
}

// Close releases resources which are not owned by service units.
// It must be called after Unit is stopped, so no new inactivity detections are started.
func (a *App) Close() error {
	a.Store.WaitForPendingHooks()
	return a.closeFileState()
}

type pinger interface {
	Ping(ctx context.Context) error
}

func makeHealthCheck(states filestate.Provider) httpserver.HealthCheckContext {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		res := httpserver.HealthCheckResult{"fileState": httpserver.HealthCheckStatusOK}
		if p, ok := states.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				res["fileState"] = httpserver.HealthCheckStatusFail
			}
		}
		return res, nil
	}
}

type appMetrics struct {
	limiter   *limiter.PrometheusMetrics
	cache     *lrucache.PrometheusMetrics
	buildInfo prometheus.Gauge
}

var _ service.MetricsRegisterer = (*appMetrics)(nil)

func newAppMetrics() *appMetrics {
	return &appMetrics{
		limiter: limiter.NewPrometheusMetrics(metricsNamespace),
		cache: lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{
			Namespace:   metricsNamespace,
			ConstLabels: prometheus.Labels{"cache": "request_configs"},
		}),
		buildInfo: buildinfo.NewPrometheusGauge(metricsNamespace),
	}
}

func (m *appMetrics) MustRegisterMetrics() {
	m.limiter.MustRegister()
	m.cache.MustRegister()
	prometheus.MustRegister(m.buildInfo)
	restapi.MustInitAndRegisterMetrics(metricsNamespace)
}

func (m *appMetrics) UnregisterMetrics() {
	m.limiter.Unregister()
	m.cache.Unregister()
	prometheus.Unregister(m.buildInfo)
	restapi.UnregisterMetrics()
}

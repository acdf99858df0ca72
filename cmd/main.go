package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/proctor/internal/adapters/http/api"
	"github.com/okian/proctor/internal/adapters/http/swagger"
	"github.com/okian/proctor/internal/adapters/ws"
	service "github.com/okian/proctor/internal/app"
	"github.com/okian/proctor/internal/config"
	"github.com/okian/proctor/internal/domain/scoring"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Custom system metrics replace the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

// run loads configuration, starts the service and serves HTTP until ctx ends.
func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := newService(cfg, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	hub := ws.NewHub(svc,
		ws.WithMaxClients(cfg.WSMaxClients),
		ws.WithReadLimit(cfg.WSReadLimitBytes),
		ws.WithLogger(log.Named("ws")),
	)
	go hub.Run(ctx)

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc, hub)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, hub),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newScorer builds the scoring engine: the external scorer when a URL is
// configured, always backed by the tuned fallback heuristic.
func newScorer(cfg *config.Config, log logger.Logger) *scoring.Engine {
	fallback := scoring.NewFallbackScorer(
		scoring.WithWindow(cfg.FallbackWindow),
		scoring.WithWeights(cfg.FallbackTabSwitchWeight, cfg.FallbackBlurWeight),
		scoring.WithLowMousePenalty(cfg.FallbackLowMousePenalty, cfg.FallbackLowMouseThreshold),
	)
	opts := []scoring.EngineOption{
		scoring.WithFallback(fallback),
		scoring.WithLogger(log.Named("scoring")),
	}
	if cfg.ScoringURL != "" {
		opts = append(opts, scoring.WithPrimary(
			scoring.NewExternalScorer(cfg.ScoringURL,
				scoring.WithTimeout(cfg.ScoringTimeout()),
				scoring.WithHTTPClient(newScoringClient(cfg)),
			),
		))
	}
	return scoring.NewEngine(opts...)
}

// newScoringClient keeps one idle connection per worker to the scoring host.
func newScoringClient(cfg *config.Config) *http.Client {
	t, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}
	t = t.Clone()
	t.MaxIdleConnsPerHost = cfg.WorkerCount
	t.MaxConnsPerHost = cfg.WorkerCount
	return &http.Client{Transport: t}
}

func newService(cfg *config.Config, log logger.Logger) *service.Service {
	return service.New(
		service.WithLogger(log),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxBoardLimit(cfg.MaxRiskBoardLimit),
		service.WithScorer(newScorer(cfg, log)),
	)
}

// serverStats is the /stats document.
type serverStats struct {
	service.Stats
	WebSocket map[string]int64 `json:"websocket"`
}

// newMux registers the documentation, telemetry and business routes.
func newMux(ctx context.Context, svc *service.Service, hub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)
	mux.Handle("GET /ws", hub)

	stats := func(ctx context.Context) any {
		return serverStats{Stats: svc.GetStats(ctx), WebSocket: hub.Stats()}
	}
	api.NewServer(svc, stats).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service, hub *ws.Hub) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc, hub)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics publishes gauges derived from service and hub state.
func updateServiceMetrics(ctx context.Context, svc *service.Service, hub *ws.Hub) {
	stats := svc.GetStats(ctx)
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueCapacity)
	metrics.UpdateWorkerCount(stats.Workers)
	metrics.UpdateSessions(stats.Sessions, stats.ActiveSessions)
	metrics.UpdateWebSocketClients(hub.Clients())
}

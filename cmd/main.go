package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/internal/adapters/http/api"
	"github.com/okian/connect-extensions/internal/adapters/http/site"
	"github.com/okian/connect-extensions/internal/adapters/http/swagger"
	app "github.com/okian/connect-extensions/internal/app"
	"github.com/okian/connect-extensions/internal/config"
	"github.com/okian/connect-extensions/internal/domain/chat"
	"github.com/okian/connect-extensions/pkg/logger"
	"github.com/okian/connect-extensions/pkg/metrics"
	"github.com/okian/connect-extensions/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants. Writes are unbounded: chat replies stream
// and publishing waits for the deploy task.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 0
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	loggerInstance := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if cfg.OTelEndpoint != "" {
		shutdown, err := tracing.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
		if err != nil {
			loggerInstance.Warn(ctx, "tracing disabled", logger.String("endpoint", cfg.OTelEndpoint), logger.Error(err))
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					loggerInstance.Warn(ctx, "tracing shutdown failed", logger.Error(err))
				}
			}()
		}
	}

	platform, err := newPlatform(cfg)
	if err != nil {
		os.Stderr.WriteString("failed to create platform client: " + err.Error() + "\n")
		return
	}
	if platform == nil {
		loggerInstance.Warn(ctx, "CONNECT_SERVER not set; platform extensions are disabled")
	}

	streamer, err := newStreamer(ctx, cfg)
	if err != nil {
		loggerInstance.Warn(ctx, "chat disabled", logger.Error(err))
	}

	svc := app.New(serviceOptions(cfg, platform, streamer, loggerInstance)...)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop(context.Background())

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	srv := newHTTPServer(cfg.Addr, routes(ctx, svc))

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// newPlatform returns the service identity client, or nil when no server
// is configured.
func newPlatform(cfg *config.Config) (*connect.Client, error) {
	if cfg.ConnectServer == "" {
		return nil, nil
	}
	return connect.New(cfg.ConnectServer, cfg.ConnectAPIKey, connect.WithTimeout(cfg.HTTPTimeout()))
}

// newStreamer returns the chat backend, or nil when no LLM credentials are
// configured.
func newStreamer(ctx context.Context, cfg *config.Config) (chat.Streamer, error) {
	switch {
	case !cfg.ChatEnabled():
		return nil, nil
	case cfg.BedrockChat():
		s, err := chat.NewBedrockStreamer(ctx, cfg.AWSRegion, cfg.AnthropicBaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return chat.NewAnthropicStreamer(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL), nil
	}
}

func serviceOptions(cfg *config.Config, platform *connect.Client, streamer chat.Streamer, log logger.Logger) []app.Option {
	opts := []app.Option{
		app.WithLogger(log),
		app.WithDataDir(cfg.DataDir),
		app.WithChat(chat.SelectModel(cfg.ClaudeModel, cfg.BedrockChat()), cfg.ChatMaxTokens),
		app.WithVisitorCache(cfg.VisitorCacheTTL(), cfg.VisitorCacheMaxEntries),
		app.WithChatSessionTTL(cfg.ChatSessionTTL()),
		app.WithCleanupInterval(cfg.CacheCleanupInterval()),
		app.WithKillPolling(cfg.KillPollAttempts, cfg.KillPollInterval()),
		app.WithDeployPolling(cfg.DeployPollAttempts, cfg.DeployPollInterval()),
		app.WithKillWorkers(cfg.KillQueueSize, cfg.KillWorkerCount),
		app.WithListConcurrency(cfg.ListConcurrency),
		app.WithHealthCheck(cfg.MonitoredContentGUID, cfg.HealthTimeout()),
	}
	if platform != nil {
		opts = append(opts, app.WithPlatform(platform))
	}
	if streamer != nil {
		opts = append(opts, app.WithStreamer(streamer))
	}
	return opts
}

// routes builds the HTTP mux: API docs, every extension API, and the
// landing page for anything else.
func routes(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc).Register(ctx, mux)
	site.Register(ctx, mux)
	return mux
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
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
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
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

// updateServiceMetrics refreshes the gauges that only change on traffic,
// so idle periods still report current values.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	metrics.UpdateQueueSize(stats.KillQueueDepth)
	metrics.UpdateCacheSize("visitor_clients", stats.VisitorClients)
	metrics.UpdateCacheSize("chat_sessions", stats.ChatSessions)
}

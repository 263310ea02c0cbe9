package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"media-converter/internal/cache"
	"media-converter/internal/database"
	"media-converter/internal/delivery"
	"media-converter/internal/engine"
	"media-converter/internal/filesystem"
	"media-converter/internal/handlers"
	"media-converter/internal/logging"
	"media-converter/internal/memory"
	"media-converter/internal/metrics"
	"media-converter/internal/middleware"
	"media-converter/internal/pdf"
	"media-converter/internal/startup"
	"media-converter/internal/transcoder"
	"media-converter/internal/usage"

	"github.com/gorilla/mux"
)

const (
	shutdownTimeout        = 30 * time.Second
	metricsInterval        = time.Minute
	cacheCleanupInterval   = 15 * time.Minute
	historyCleanupInterval = time.Hour
)

// components holds everything that has to be stopped on shutdown.
type components struct {
	converter   *transcoder.Converter
	closeEngine func(context.Context) error
	usage       *usage.Tracker
	cache       *cache.Cache
	history     *database.Database
	delivery    delivery.Backend
	memory      *memory.Monitor
	collector   *metrics.Collector
	stop        chan struct{}
}

type closer struct {
	name  string
	close func() error
}

func main() {
	startTime := time.Now()

	// Must run before anything allocates much.
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"work":   config.WorkDir,
		"data":   config.DataDir,
		"output": config.Delivery.LocalDir,
	}))
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	ctx := context.Background()
	c := &components{stop: make(chan struct{})}

	// Engine
	eng, closeEngine, err := setupEngine(ctx, config)
	if err != nil {
		startup.LogFatal("Failed to initialize %s engine: %v", config.Engine, err)
	}
	c.closeEngine = closeEngine

	invoker := engine.NewInvoker(eng, engine.InvokerConfig{
		Timeout:        config.ConversionTimeout,
		MaxOutputBytes: config.MaxOutputBuffer,
		Observer:       metrics.NewEngineObserver(),
	})
	c.converter, err = transcoder.New(invoker, transcoder.Config{
		WorkDir:       config.WorkDir,
		MaxInputBytes: config.MaxUploadSize,
		MaxImages:     config.MaxImages,
		Timeout:       config.ConversionTimeout,
		FrameWorkers:  config.ConvertWorkers,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize converter: %v", err)
	}

	dispatcher := pdf.NewDispatcher(pdf.Config{
		MaxInputBytes: config.MaxUploadSize,
		MaxInputs:     config.MaxImages,
	})

	// Stores
	c.history = setupHistory(ctx, config, c.stop)
	c.cache = setupCache(config, c.stop)
	c.usage = setupUsage(ctx, config)
	c.delivery = setupDelivery(ctx, config)

	// Memory backpressure
	c.memory = memory.NewMonitor(memory.DefaultConfig())
	c.memory.Start()

	// Metrics
	metrics.InitializeMetrics(eng.Name())
	buildInfo := startup.GetBuildInfo()
	metrics.SetAppInfo(buildInfo.Version, buildInfo.Commit, runtime.Version(), eng.Name())
	c.collector = metrics.NewCollector(&statsAdapter{usage: c.usage, history: c.history, cache: c.cache}, metricsInterval)
	c.collector.Start()

	h := handlers.New(handlers.Dependencies{
		Converter: c.converter,
		PDF:       dispatcher,
		Usage:     c.usage,
		Cache:     c.cache,
		History:   c.history,
		Memory:    c.memory,
		Delivery:  c.delivery,
	}, config)

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.RequestID(middleware.Logger(loggingConfig)(router)),
	)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Bodies are bounded by MaxBytesReader, conversions by CONVERSION_TIMEOUT.
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(config.MetricsPort, h.MetricsHandler())
	}

	done := make(chan struct{})
	go func() {
		handleShutdown(srv, metricsSrv, c)
		close(done)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

// setupEngine builds the engine selected by ENGINE and logs what it can run.
func setupEngine(ctx context.Context, config *startup.Config) (engine.Engine, func(context.Context) error, error) {
	if config.Engine == startup.EngineWasm {
		w, err := engine.NewWasmEngine(ctx, config.FFmpegWasmPath, config.WasmCacheDir)
		if err != nil {
			return nil, nil, err
		}
		startup.LogEngineInit(w.Name(), map[string]string{engine.ProgramFFmpeg: config.FFmpegWasmPath}, nil)
		return w, w.Close, nil
	}

	p := engine.NewProcessEngine(map[string]string{
		engine.ProgramFFmpeg:   config.FFmpegPath,
		engine.ProgramGifsicle: config.GifsiclePath,
	}, metrics.NewEngineObserver())

	versions := make(map[string]string)
	errs := make(map[string]error)
	versionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, program := range []string{engine.ProgramFFmpeg, engine.ProgramGifsicle} {
		v, err := p.Version(versionCtx, program)
		if err != nil {
			errs[program] = err
			continue
		}
		versions[program] = v
	}
	startup.LogEngineInit(p.Name(), versions, errs)

	return p, func(context.Context) error {
		p.Cleanup()
		return nil
	}, nil
}

func setupHistory(ctx context.Context, config *startup.Config, stop <-chan struct{}) *database.Database {
	if !config.HistoryEnabled || !config.HistoryAvailable {
		logging.Info("Conversion history disabled")
		return nil
	}

	start := time.Now()
	db, err := database.New(ctx, config.HistoryPath)
	startup.LogHistoryInit(time.Since(start), err)
	if err != nil {
		return nil
	}
	db.StartCleanup(config.HistoryRetention, historyCleanupInterval, stop)
	return db
}

func setupCache(config *startup.Config, stop <-chan struct{}) *cache.Cache {
	if !config.CacheEnabled || !config.CacheAvailable {
		logging.Info("Result cache disabled")
		return nil
	}

	c, err := cache.Open(config.CacheDir, cache.Options{TTL: config.CacheTTL})
	if err != nil {
		startup.LogCacheInit(0, err)
		return nil
	}
	entries, err := c.Len()
	startup.LogCacheInit(entries, err)

	c.StartCleanup(cacheCleanupInterval, stop)
	return c
}

// setupUsage uses redis when configured and reachable, in-memory counters
// otherwise.
func setupUsage(ctx context.Context, config *startup.Config) *usage.Tracker {
	opts := []usage.Option{usage.WithLocation(config.UsageTimezone)}

	if config.UsageRedisURL != "" {
		store, err := usage.NewRedisStore(ctx, config.UsageRedisURL)
		if err == nil {
			logging.Info("  [OK] Usage counters stored in redis")
			return usage.NewTracker(store, opts...)
		}
		logging.Warn("  Usage redis unavailable: %v", err)
		logging.Warn("  Falling back to in-memory usage counters")
	}
	return usage.NewTracker(usage.NewMemoryStore(), opts...)
}

func setupDelivery(ctx context.Context, config *startup.Config) delivery.Backend {
	backend, err := delivery.New(ctx, config.Delivery)
	startup.LogDeliveryInit(config.Delivery.Backend, err)
	if err != nil {
		return delivery.Direct{}
	}
	return backend
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health checks
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Conversions
	api.HandleFunc("/convert", h.Convert).Methods("POST")
	api.HandleFunc("/gif", h.GIF).Methods("POST")
	api.HandleFunc("/pdf", h.PDF).Methods("POST")
	api.HandleFunc("/pdf/pages", h.PageCount).Methods("POST")

	// Registry
	api.HandleFunc("/formats", h.GetFormats).Methods("GET")
	api.HandleFunc("/check-conversion", h.CheckConversion).Methods("POST")

	// Bookkeeping
	api.HandleFunc("/usage", h.GetUsage).Methods("GET")
	api.HandleFunc("/history", h.GetHistory).Methods("GET")
	api.HandleFunc("/cache/clear", h.ClearCache).Methods("POST")
	api.HandleFunc("/version", h.GetVersion).Methods("GET")

	return r
}

func startMetricsServer(port string, handler http.Handler) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

func handleShutdown(srv, metricsSrv *http.Server, c *components) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	shutdown(srv, metricsSrv, c)
}

func shutdown(srv, metricsSrv *http.Server, c *components) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Stopping engine processes")
	c.converter.Cleanup()
	startup.LogShutdownStepComplete("Engine processes stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownStep("Stopping background workers")
	close(c.stop)
	c.collector.Stop()
	c.memory.Stop()
	startup.LogShutdownStepComplete("Background workers stopped")

	startup.LogShutdownStep("Closing stores")
	closers := []closer{
		{"usage", c.usage.Close},
		{"delivery", c.delivery.Close},
	}
	if c.history != nil {
		closers = append(closers, closer{"history", c.history.Close})
	}
	if c.cache != nil {
		closers = append(closers, closer{"cache", c.cache.Close})
	}
	for _, cl := range closers {
		if err := cl.close(); err != nil {
			logging.Warn("Failed to close %s: %v", cl.name, err)
		}
	}
	startup.LogShutdownStepComplete("Stores closed")

	if c.closeEngine != nil {
		if err := c.closeEngine(ctx); err != nil {
			logging.Warn("Failed to close engine: %v", err)
		}
	}

	startup.LogShutdownComplete()
}

// statsAdapter feeds the metrics collector from the stores.
type statsAdapter struct {
	usage   *usage.Tracker
	history *database.Database
	cache   *cache.Cache
}

func (a *statsAdapter) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var s metrics.Stats
	if a.usage != nil {
		if snap, err := a.usage.Snapshot(ctx); err == nil {
			s.ConversionsToday = snap.Conversions
			s.BytesToday = snap.Bytes
		} else {
			logging.Debug("usage snapshot failed: %v", err)
		}
	}
	if a.history != nil {
		if n, err := a.history.Count(ctx); err == nil {
			s.HistoryRows = n
		}
	}
	if a.cache != nil {
		if n, err := a.cache.Len(); err == nil {
			s.CacheEntries = n
		}
	}
	return s
}

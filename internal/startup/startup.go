package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-converter/internal/delivery"
	"media-converter/internal/logging"
	"media-converter/internal/memory"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/disk"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Engine names accepted in ENGINE.
const (
	EngineProcess = "process"
	EngineWasm    = "wasm"
)

// ErrInsufficientDisk is returned by CheckDisk when free space is below the
// configured minimum.
var ErrInsufficientDisk = errors.New("insufficient free disk space")

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool

	WorkDir           string
	DataDir           string
	MaxUploadSize     int64
	MaxImages         int
	ConversionTimeout time.Duration
	MaxOutputBuffer   int64
	MinFreeDisk       int64

	Engine         string
	FFmpegPath     string
	FFmpegWasmPath string
	GifsiclePath   string

	CacheEnabled     bool
	CacheTTL         time.Duration
	HistoryEnabled   bool
	HistoryRetention time.Duration
	UsageRedisURL    string
	UsageTimezone    *time.Location

	Delivery delivery.Config

	LogHealthChecks bool
	ConvertWorkers  int

	// Derived paths
	HistoryPath  string
	CacheDir     string
	WasmCacheDir string

	// Feature flags based on directory availability
	CacheAvailable   bool
	HistoryAvailable bool
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		MetricsPort:       getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		WorkDir:           getEnv("WORK_DIR", filepath.Join(os.TempDir(), "media-converter")),
		DataDir:           getEnv("DATA_DIR", "/data"),
		MaxUploadSize:     getEnvBytes("MAX_UPLOAD_SIZE", 100*1024*1024),
		MaxImages:         getEnvInt("MAX_IMAGES", 50),
		ConversionTimeout: getEnvDuration("CONVERSION_TIMEOUT", 5*time.Minute),
		MaxOutputBuffer:   getEnvBytes("MAX_OUTPUT_BUFFER", 10*1024*1024),
		MinFreeDisk:       getEnvBytes("MIN_FREE_DISK", 512*1024*1024),
		Engine:            strings.ToLower(getEnv("ENGINE", EngineProcess)),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		FFmpegWasmPath:    getEnv("FFMPEG_WASM_PATH", ""),
		GifsiclePath:      getEnv("GIFSICLE_PATH", "gifsicle"),
		CacheEnabled:      getEnvBool("CACHE_ENABLED", true),
		CacheTTL:          getEnvDuration("CACHE_TTL", 24*time.Hour),
		HistoryEnabled:    getEnvBool("HISTORY_ENABLED", true),
		HistoryRetention:  getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour),
		UsageRedisURL:     getEnv("USAGE_REDIS_URL", ""),
		LogHealthChecks:   getEnvBool("LOG_HEALTH_CHECKS", false),
		ConvertWorkers:    getEnvInt("CONVERT_WORKERS", 0),
		Delivery:          loadDeliveryConfig(),
	}

	tz := getEnv("USAGE_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logging.Warn("  Invalid USAGE_TIMEZONE %q, using Local", tz)
		loc = time.Local
	}
	cfg.UsageTimezone = loc

	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  WORK_DIR:            %s", cfg.WorkDir)
	logging.Info("  DATA_DIR:            %s", cfg.DataDir)
	logging.Info("  MAX_UPLOAD_SIZE:     %s", memory.FormatBytes(cfg.MaxUploadSize))
	logging.Info("  MAX_IMAGES:          %d", cfg.MaxImages)
	logging.Info("  CONVERSION_TIMEOUT:  %v", cfg.ConversionTimeout)
	logging.Info("  MAX_OUTPUT_BUFFER:   %s", memory.FormatBytes(cfg.MaxOutputBuffer))
	logging.Info("  MIN_FREE_DISK:       %s", memory.FormatBytes(cfg.MinFreeDisk))
	logging.Info("  ENGINE:              %s", cfg.Engine)
	logging.Info("  FFMPEG_PATH:         %s", cfg.FFmpegPath)
	logging.Info("  FFMPEG_WASM_PATH:    %s", cfg.FFmpegWasmPath)
	logging.Info("  GIFSICLE_PATH:       %s", cfg.GifsiclePath)
	logging.Info("  CACHE_ENABLED:       %v", cfg.CacheEnabled)
	logging.Info("  CACHE_TTL:           %v", cfg.CacheTTL)
	logging.Info("  HISTORY_ENABLED:     %v", cfg.HistoryEnabled)
	logging.Info("  HISTORY_RETENTION:   %v", cfg.HistoryRetention)
	logging.Info("  USAGE_REDIS_URL:     %s", redact(cfg.UsageRedisURL))
	logging.Info("  USAGE_TIMEZONE:      %s", cfg.UsageTimezone)
	logging.Info("  OUTPUT_BACKEND:      %s", cfg.Delivery.Backend)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if cfg.WorkDir, err = filepath.Abs(cfg.WorkDir); err != nil {
		return nil, fmt.Errorf("failed to resolve work directory path: %w", err)
	}
	logging.Info("  Work directory (absolute): %s", cfg.WorkDir)

	if cfg.DataDir, err = filepath.Abs(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	logging.Info("  Data directory (absolute): %s", cfg.DataDir)

	cfg.HistoryPath = filepath.Join(cfg.DataDir, "history.db")
	cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	cfg.WasmCacheDir = filepath.Join(cfg.DataDir, "wasm-cache")

	// Work directory is required: every conversion stages files there.
	if err := ensureDirectory(cfg.WorkDir, "work"); err != nil {
		return nil, fmt.Errorf("work directory error: %w", err)
	}
	logging.Debug("  Testing work directory write access...")
	if err := testWriteAccess(cfg.WorkDir); err != nil {
		return nil, fmt.Errorf("work directory is not writable (required for conversions): %w", err)
	}
	logging.Info("  [OK] Work directory is writable")

	if free, err := CheckDisk(cfg.WorkDir, cfg.MinFreeDisk); err != nil {
		logging.Warn("  Work directory disk check: %v", err)
	} else {
		logging.Info("  [OK] Work directory has %s free", memory.FormatBytes(int64(free)))
	}

	dataReady := false
	if cfg.CacheEnabled || cfg.HistoryEnabled {
		dataReady = setupOptionalDir(cfg.DataDir, "data")
	}
	cfg.HistoryAvailable = cfg.HistoryEnabled && dataReady
	cfg.CacheAvailable = cfg.CacheEnabled && dataReady && setupOptionalDir(cfg.CacheDir, "cache")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Conversions: ENABLED (required)")
	logging.Info("    Cache:       %s", enabledString(cfg.CacheAvailable))
	logging.Info("    History:     %s", enabledString(cfg.HistoryAvailable))
	logging.Info("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineProcess:
	case EngineWasm:
		if c.FFmpegWasmPath == "" {
			return fmt.Errorf("ENGINE=wasm requires FFMPEG_WASM_PATH")
		}
	default:
		return fmt.Errorf("unknown ENGINE %q (expected %s or %s)", c.Engine, EngineProcess, EngineWasm)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if c.ConversionTimeout <= 0 {
		return fmt.Errorf("CONVERSION_TIMEOUT must be positive")
	}
	return nil
}

func loadDeliveryConfig() delivery.Config {
	return delivery.Config{
		Backend:  strings.ToLower(getEnv("OUTPUT_BACKEND", delivery.BackendDirect)),
		LocalDir: getEnv("OUTPUT_LOCAL_DIR", "/output"),
		S3: delivery.S3Config{
			Bucket:    getEnv("S3_BUCKET", ""),
			Region:    getEnv("S3_REGION", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Prefix:    getEnv("S3_PREFIX", ""),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
		},
		GCS: delivery.GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			Prefix:          getEnv("GCS_PREFIX", ""),
		},
		SFTP: delivery.SFTPConfig{
			Host:           getEnv("SFTP_HOST", ""),
			Port:           getEnvInt("SFTP_PORT", 22),
			User:           getEnv("SFTP_USER", ""),
			Password:       getEnv("SFTP_PASSWORD", ""),
			KeyFile:        getEnv("SFTP_KEY_FILE", ""),
			KnownHostsFile: getEnv("SFTP_KNOWN_HOSTS", ""),
			Dir:            getEnv("SFTP_DIR", ""),
		},
	}
}

// CheckDisk returns the free bytes on the filesystem holding path, and
// ErrInsufficientDisk when that is below minFree. A minFree of zero only
// reports.
func CheckDisk(path string, minFree int64) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	if minFree > 0 && usage.Free < uint64(minFree) {
		return usage.Free, fmt.Errorf("%w: %s free on %s, need %s", ErrInsufficientDisk,
			memory.FormatBytes(int64(usage.Free)), path, memory.FormatBytes(minFree))
	}
	return usage.Free, nil
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// redact hides the password in a connection URL.
func redact(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	creds := raw[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return raw[:scheme+3] + creds + raw[at:]
}

// LogHistoryInit logs history database initialization
func LogHistoryInit(duration time.Duration, err error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HISTORY INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if err != nil {
		logging.Warn("  History database unavailable: %v", err)
		logging.Warn("  Conversions will not be recorded")
		return
	}
	logging.Info("  [OK] History database initialized in %v", duration)
}

// LogCacheInit logs result cache initialization
func LogCacheInit(entries int64, err error) {
	if err != nil {
		logging.Warn("  Result cache unavailable: %v", err)
		return
	}
	logging.Info("  [OK] Result cache opened (%d entries)", entries)
}

// LogEngineInit logs the engine selection and the detected program versions.
// A missing optional program is a warning, not a failure.
func LogEngineInit(name string, versions map[string]string, errs map[string]error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("ENGINE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Engine: %s", name)

	programs := make([]string, 0, len(versions)+len(errs))
	for p := range versions {
		programs = append(programs, p)
	}
	for p := range errs {
		if _, ok := versions[p]; !ok {
			programs = append(programs, p)
		}
	}
	sort.Strings(programs)

	for _, p := range programs {
		if err := errs[p]; err != nil {
			logging.Warn("  %s check failed: %v", p, err)
			continue
		}
		logging.Info("  [OK] %s: %s", p, versions[p])
	}
}

// LogDeliveryInit logs the output backend selection
func LogDeliveryInit(backend string, err error) {
	if err != nil {
		logging.Warn("  Output backend %s unavailable: %v", backend, err)
		logging.Warn("  Falling back to direct responses")
		return
	}
	logging.Info("  [OK] Output backend: %s", backend)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route has no method matcher
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Local access:")
	logging.Info("    API:           http://localhost:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___          ______                           __
   /  |/  /__  ____/ (_)___ _   / ____/___  ____ _   _____  _____/ /____  _____
  / /|_/ / _ \/ __  / / __ '/  / /   / __ \/ __ \ | / / _ \/ ___/ __/ _ \/ ___/
 / /  / /  __/ /_/ / / /_/ /  / /___/ /_/ / / / / |/ /  __/ /  / /_/  __/ /
/_/  /_/\___/\__,_/_/\__,_/   \____/\____/_/ /_/|___/\___/_/   \__/\___/_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvBytes(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := memory.ParseBytes(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid size value for %s: %q, using default: %s", key, value, memory.FormatBytes(defaultValue))
		return defaultValue
	}
	return parsed
}

package handlers

import (
	"time"

	"media-converter/internal/cache"
	"media-converter/internal/database"
	"media-converter/internal/delivery"
	"media-converter/internal/logging"
	"media-converter/internal/memory"
	"media-converter/internal/pdf"
	"media-converter/internal/startup"
	"media-converter/internal/streaming"
	"media-converter/internal/transcoder"
	"media-converter/internal/usage"
)

var logger = logging.For("handlers")

// multipartOverhead is allowed on top of MaxUploadSize for form fields and
// part headers.
const multipartOverhead = 1 << 20

// Dependencies are the components the handlers call into. Cache, History,
// Memory and Delivery may be nil.
type Dependencies struct {
	Converter *transcoder.Converter
	PDF       *pdf.Dispatcher
	Usage     *usage.Tracker
	Cache     *cache.Cache
	History   *database.Database
	Memory    *memory.Monitor
	Delivery  delivery.Backend
}

// Handlers serves the conversion API and the health checks.
type Handlers struct {
	converter *transcoder.Converter
	pdf       *pdf.Dispatcher
	usage     *usage.Tracker
	cache     *cache.Cache
	history   *database.Database
	memory    *memory.Monitor
	delivery  delivery.Backend

	engineName    string
	maxUploadSize int64
	workDir       string
	minFreeDisk   int64
	streaming     streaming.Config
	startTime     time.Time
}

// New creates the handlers. A nil Usage tracker is replaced by an in-memory
// one and a nil Delivery by direct responses.
func New(deps Dependencies, config *startup.Config) *Handlers {
	if deps.Usage == nil {
		deps.Usage = usage.NewTracker(usage.NewMemoryStore())
	}
	if deps.Delivery == nil {
		deps.Delivery = delivery.Direct{}
	}
	return &Handlers{
		converter:     deps.Converter,
		pdf:           deps.PDF,
		usage:         deps.Usage,
		cache:         deps.Cache,
		history:       deps.History,
		memory:        deps.Memory,
		delivery:      deps.Delivery,
		engineName:    config.Engine,
		maxUploadSize: config.MaxUploadSize,
		workDir:       config.WorkDir,
		minFreeDisk:   config.MinFreeDisk,
		streaming:     streaming.DefaultConfig(),
		startTime:     time.Now(),
	}
}

package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-converter/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics
type Stats struct {
	ConversionsToday int64
	BytesToday       int64
	HistoryRows      int64
	CacheEntries     int64
}

// StatsFunc adapts a function to StatsProvider.
type StatsFunc func() Stats

// GetStats calls f.
func (f StatsFunc) GetStats() Stats { return f() }

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	doneChan      chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
	started       bool
	mu            sync.Mutex
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop. Calls after the first are no-ops.
func (c *Collector) Start() {
	c.startOnce.Do(func() {
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()
		go c.collectLoop()
	})
}

// Stop stops the metrics collection and waits for the loop to exit. It is
// safe to call more than once, or without Start.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.doneChan
	}
}

func (c *Collector) collectLoop() {
	defer close(c.doneChan)

	// Collect immediately on start
	c.collect()

	interval := c.interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	collectRuntime()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	DailyConversions.Set(float64(stats.ConversionsToday))
	DailyBytes.Set(float64(stats.BytesToday))
	HistoryRows.Set(float64(stats.HistoryRows))
	CacheEntries.Set(float64(stats.CacheEntries))

	logging.Debug("Metrics collected: conversions_today=%d, bytes_today=%d, history=%d, cache=%d",
		stats.ConversionsToday, stats.BytesToday, stats.HistoryRows, stats.CacheEntries)
}

func collectRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	GoMemAllocBytes.Set(float64(m.Alloc))
	GoMemSysBytes.Set(float64(m.Sys))
	GoGCRuns.Set(float64(m.NumGC))

	if limit := debug.SetMemoryLimit(-1); limit > 0 {
		GoMemLimit.Set(float64(limit))
	}
}

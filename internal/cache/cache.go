package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"media-converter/internal/logging"
	"media-converter/internal/metrics"
)

// DefaultMaxEntryBytes is the largest output stored when Options leaves it
// unset.
const DefaultMaxEntryBytes = 64 << 20

// ErrClosed is returned by operations on a closed Cache.
var ErrClosed = errors.New("cache is closed")

var (
	metaPrefix = []byte("m/")
	dataPrefix = []byte("d/")
)

// Entry describes a cached output.
type Entry struct {
	Key       string    `json:"key"`
	OutputExt string    `json:"output_ext"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Options configures a Cache.
type Options struct {
	TTL           time.Duration
	MaxEntryBytes int64
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// Cache stores converted outputs in pebble keyed by a digest of the input
// and the conversion parameters.
type Cache struct {
	db   *pebble.DB
	opts Options
	log  logging.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the cache at dir.
func Open(dir string, opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.MaxEntryBytes <= 0 {
		opts.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open result cache: %w", err)
	}

	c := &Cache{db: db, opts: opts, log: logging.For("cache")}
	if n, err := c.Len(); err == nil {
		metrics.CacheEntries.Set(float64(n))
	}
	return c, nil
}

// Key derives a cache key from the input bytes and every parameter that
// affects the output.
func Key(data []byte, params ...string) string {
	h := sha256.New()
	for _, p := range params {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func metaKey(key string) []byte { return append(append([]byte(nil), metaPrefix...), key...) }
func dataKey(key string) []byte { return append(append([]byte(nil), dataPrefix...), key...) }

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Get returns the cached output for key. A miss returns (nil, nil, nil).
// Expired entries are deleted on read.
func (c *Cache) Get(key string) ([]byte, *Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, nil, ErrClosed
	}

	raw, closer, err := c.db.Get(metaKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			metrics.CacheMisses.Inc()
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var entry Entry
	err = json.Unmarshal(raw, &entry)
	_ = closer.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	if !c.opts.Now().Before(entry.ExpiresAt) {
		metrics.CacheMisses.Inc()
		if err := c.delete(key); err != nil {
			c.log.Warn("failed to drop expired entry %s: %v", key, err)
		} else {
			metrics.CacheEvictions.Inc()
			metrics.CacheEntries.Dec()
		}
		return nil, nil, nil
	}

	value, closer, err := c.db.Get(dataKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			metrics.CacheMisses.Inc()
			return nil, nil, nil
		}
		return nil, nil, err
	}
	data := append([]byte(nil), value...)
	_ = closer.Close()

	metrics.CacheHits.Inc()
	return data, &entry, nil
}

// Put stores data under key. Outputs above the size limit are skipped.
func (c *Cache) Put(key, outputExt, mimeType string, data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	if int64(len(data)) > c.opts.MaxEntryBytes {
		c.log.Debug("skipping %d byte output for %s", len(data), key)
		return nil
	}

	now := c.opts.Now()
	entry := Entry{
		Key:       key,
		OutputExt: outputExt,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: now,
		ExpiresAt: now.Add(c.opts.TTL),
	}
	meta, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	_, closer, err := c.db.Get(metaKey(key))
	existed := err == nil
	if existed {
		_ = closer.Close()
	}

	batch := c.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(dataKey(key), data, nil); err != nil {
		return err
	}
	if err := batch.Set(metaKey(key), meta, nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	if !existed {
		metrics.CacheEntries.Inc()
	}
	return nil
}

func (c *Cache) delete(key string) error {
	batch := c.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(metaKey(key), nil); err != nil {
		return err
	}
	if err := batch.Delete(dataKey(key), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// entries visits every metadata record.
func (c *Cache) entries(fn func(Entry)) error {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: metaPrefix,
		UpperBound: prefixEnd(metaPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var entry Entry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			continue
		}
		fn(entry)
	}
	return iter.Error()
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}

	var n int64
	err := c.entries(func(Entry) { n++ })
	return n, err
}

// CleanupExpired removes expired entries and returns how many were removed.
func (c *Cache) CleanupExpired() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}

	now := c.opts.Now()
	var expired []string
	if err := c.entries(func(e Entry) {
		if !now.Before(e.ExpiresAt) {
			expired = append(expired, e.Key)
		}
	}); err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range expired {
		if err := c.delete(key); err != nil {
			c.log.Warn("failed to delete expired entry %s: %v", key, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		metrics.CacheEvictions.Add(float64(removed))
		metrics.CacheEntries.Sub(float64(removed))
		c.log.Info("removed %d expired cache entries", removed)
	}
	return removed, nil
}

// Clear removes every entry and returns the number of bytes of output freed.
func (c *Cache) Clear() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}

	var freed int64
	if err := c.entries(func(e Entry) { freed += e.Size }); err != nil {
		return 0, err
	}

	batch := c.db.NewBatch()
	defer batch.Close()
	for _, prefix := range [][]byte{metaPrefix, dataPrefix} {
		if err := batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	metrics.CacheEntries.Set(0)
	return freed, nil
}

// StartCleanup runs CleanupExpired every interval until stop is closed.
func (c *Cache) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := c.CleanupExpired(); err != nil && !errors.Is(err, ErrClosed) {
					c.log.Error("cache cleanup failed: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Close closes the store. Further calls return ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the minimum response size in bytes before compression is applied
	MinSize int
	// Level is the gzip compression level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// CompressibleTypes lists the media types worth compressing. Anything
	// else, including every converted output, is streamed untouched.
	CompressibleTypes []string
}

// DefaultCompressionConfig compresses JSON and text API bodies of 1KB or more.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"text/plain",
			"application/json",
			"application/problem+json",
		},
	}
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

// compressWriter holds back the first MinSize bytes of a compressible
// response so small bodies go out as-is. Binary outputs are recognised by
// their Content-Type on the first write and never buffered.
type compressWriter struct {
	http.ResponseWriter
	config     CompressionConfig
	gz         *gzip.Writer
	buffer     []byte
	statusCode int
	decided    bool
}

func newCompressWriter(w http.ResponseWriter, config CompressionConfig) *compressWriter {
	return &compressWriter{
		ResponseWriter: w,
		config:         config,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code until the encoding is decided.
func (c *compressWriter) WriteHeader(statusCode int) {
	if c.decided {
		return
	}
	c.statusCode = statusCode
}

func (c *compressWriter) Write(data []byte) (int, error) {
	if !c.decided {
		if !c.compressible() {
			c.passthrough()
		} else {
			c.buffer = append(c.buffer, data...)
			if len(c.buffer) > c.config.MinSize {
				if err := c.decide(); err != nil {
					return 0, err
				}
			}
			return len(data), nil
		}
	}

	if c.gz != nil {
		return c.gz.Write(data)
	}
	return c.ResponseWriter.Write(data)
}

// compressible reports whether the response may be gzipped, judged from
// the headers set so far.
func (c *compressWriter) compressible() bool {
	if c.Header().Get("Content-Encoding") != "" {
		return false
	}
	contentType := c.Header().Get("Content-Type")
	if contentType == "" {
		return false
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	for _, t := range c.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func (c *compressWriter) passthrough() {
	c.decided = true
	c.ResponseWriter.WriteHeader(c.statusCode)
}

// decide flushes the buffer, compressed when it reached MinSize.
func (c *compressWriter) decide() error {
	if len(c.buffer) < c.config.MinSize {
		c.passthrough()
		_, err := c.ResponseWriter.Write(c.buffer)
		c.buffer = nil
		return err
	}

	c.decided = true
	c.Header().Del("Content-Length")
	c.Header().Set("Content-Encoding", "gzip")
	c.Header().Add("Vary", "Accept-Encoding")

	c.gz = gzipWriterPool.Get().(*gzip.Writer)
	c.gz.Reset(c.ResponseWriter)
	c.ResponseWriter.WriteHeader(c.statusCode)

	_, err := c.gz.Write(c.buffer)
	c.buffer = nil
	return err
}

// Close finalizes the response and returns the gzip writer to the pool
func (c *compressWriter) Close() error {
	if !c.decided {
		if err := c.decide(); err != nil {
			return err
		}
	}
	if c.gz == nil {
		return nil
	}
	err := c.gz.Close()
	gzipWriterPool.Put(c.gz)
	c.gz = nil
	return err
}

// Flush implements http.Flusher
func (c *compressWriter) Flush() {
	if !c.decided {
		_ = c.decide()
	}
	if c.gz != nil {
		_ = c.gz.Flush()
	}
	if flusher, ok := c.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (c *compressWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

// Compression returns a middleware that gzips API responses for clients
// that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
				r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			cw := newCompressWriter(w, config)
			defer cw.Close()

			next.ServeHTTP(cw, r)
		})
	}
}

package mw

import (
	"bytes"
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"line-status-backend/internal/model"
)

// CacheStatusHeader reports whether a response was served from the cache.
const CacheStatusHeader = "X-Cache"

// ResponseCache keeps successful GET responses in memory, keyed on the
// request URI including the query string. Reports derive from line state,
// so every committed status change drops all entries.
type ResponseCache struct {
	entries *cache.Cache
	ttl     time.Duration
	// generation is bumped on every flush; a response computed across a
	// flush is not stored.
	generation atomic.Uint64
	log        *zap.Logger
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// NewResponseCache creates a cache whose entries live for ttl. A
// non-positive ttl disables caching.
func NewResponseCache(ttl time.Duration, log *zap.Logger) *ResponseCache {
	return &ResponseCache{entries: cache.New(ttl, 2*ttl), ttl: ttl, log: log}
}

// Middleware serves cached responses and records fresh 2xx ones.
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rc.ttl <= 0 || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if v, found := rc.entries.Get(key); found {
			rc.serve(c, v.(cachedResponse))
			return
		}

		gen := rc.generation.Load()
		c.Header(CacheStatusHeader, "MISS")
		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		if code := w.Status(); code < 200 || code >= 300 || rc.generation.Load() != gen {
			return
		}
		rc.entries.Set(key, cachedResponse{
			status:  w.Status(),
			headers: w.Header().Clone(),
			body:    bytes.Clone(w.body.Bytes()),
		}, cache.DefaultExpiration)
	}
}

func (rc *ResponseCache) serve(c *gin.Context, resp cachedResponse) {
	header := c.Writer.Header()
	for k, v := range resp.headers {
		header[k] = v
	}
	header.Set(CacheStatusHeader, "HIT")
	c.Writer.WriteHeader(resp.status)
	_, _ = c.Writer.Write(resp.body)
	c.Abort()
}

// Flush drops every cached response.
func (rc *ResponseCache) Flush() {
	rc.generation.Add(1)
	rc.entries.Flush()
}

// LineStatusChanged flushes the cache after a committed status change.
func (rc *ResponseCache) LineStatusChanged(_ context.Context, change model.StatusChange) {
	if !change.Changed() {
		return
	}
	rc.Flush()
	rc.log.Debug("response cache flushed",
		zap.String("line_id", change.LineID),
		zap.String("status", string(change.Status)))
}

// Package ratelimit implements fixed-window request limits keyed by client.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/gin-gonic/gin"
	"github.com/receiptdesk/receiptdesk/internal/cache"
	"github.com/receiptdesk/receiptdesk/internal/metrics"
)

const (
	MsgTooManyRequests = "Too many requests from this IP, please try again later."
	MsgTooManyLogins   = "Too many login attempts, please try again later."
)

type window struct {
	Count int       `json:"count"`
	Reset time.Time `json:"reset"`
}

// Result is the state of a client's window after a check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter allows limit hits per period for each key.
// Counting is serialized per process only; with a shared redis cache several
// instances may briefly overshoot the limit.
type Limiter struct {
	name   string
	store  *cache.PrefixedCache[window]
	limit  int
	period time.Duration

	mu  sync.Mutex
	now func() time.Time
}

// New creates a limiter storing its windows in c.
func New(name string, c *gocache.Cache[[]byte], limit int, period time.Duration) *Limiter {
	return &Limiter{
		name:   name,
		store:  cache.NewPrefixedCache[window](c, "ratelimit-"+name+"-"),
		limit:  limit,
		period: period,
		now:    time.Now,
	}
}

// Name identifies the limiter in logs and metrics.
func (l *Limiter) Name() string {
	return l.name
}

func (l *Limiter) current(ctx context.Context, key string) window {
	w, err := l.store.Get(ctx, key)
	// a miss and an expired window both start fresh
	if err != nil || !l.now().Before(w.Reset) {
		return window{Reset: l.now().Add(l.period)}
	}
	return w
}

func (l *Limiter) result(w window, allowed bool) Result {
	return Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: max(l.limit-w.Count, 0),
		Reset:     w.Reset,
	}
}

// Hit counts one request for key and reports whether it is within the limit.
func (l *Limiter) Hit(ctx context.Context, key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.current(ctx, key)
	w.Count++
	ttl := w.Reset.Sub(l.now())
	if err := l.store.Set(ctx, key, w, store.WithExpiration(ttl)); err != nil {
		// fail open, a broken cache must not lock everyone out
		log.Error("failed to store rate limit window", "limiter", l.name, "error", err)
	}
	return l.result(w, w.Count <= l.limit)
}

// Undo takes back one counted request of key, as long as its window is still open.
func (l *Limiter) Undo(ctx context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, err := l.store.Get(ctx, key)
	if err != nil || !l.now().Before(w.Reset) || w.Count == 0 {
		return
	}
	w.Count--
	if w.Count == 0 {
		if err := l.store.Delete(ctx, key); err != nil {
			log.Debug("failed to drop rate limit window", "limiter", l.name, "error", err)
		}
		return
	}
	ttl := w.Reset.Sub(l.now())
	if err := l.store.Set(ctx, key, w, store.WithExpiration(ttl)); err != nil {
		log.Error("failed to store rate limit window", "limiter", l.name, "error", err)
	}
}

func setHeaders(c *gin.Context, r Result, now time.Time) {
	c.Header("RateLimit-Limit", strconv.Itoa(r.Limit))
	c.Header("RateLimit-Remaining", strconv.Itoa(r.Remaining))
	c.Header("RateLimit-Reset", strconv.Itoa(secondsUntil(now, r.Reset)))
}

func secondsUntil(now, t time.Time) int {
	return int(math.Ceil(max(t.Sub(now), 0).Seconds()))
}

func reject(c *gin.Context, l *Limiter, r Result, message string, m *metrics.Metrics) {
	m.ObserveRateLimited(l.name)
	log.Warn("rate limit exceeded", "limiter", l.name, "client", c.ClientIP())
	c.Header("Retry-After", strconv.Itoa(secondsUntil(l.now(), r.Reset)))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message})
}

// Middleware counts every request of a client against l.
func Middleware(l *Limiter, message string, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := l.Hit(c.Request.Context(), c.ClientIP())
		setHeaders(c, r, l.now())
		if !r.Allowed {
			reject(c, l, r, message, m)
			return
		}
		c.Next()
	}
}

// FailureMiddleware counts every request up front and takes the hit back once
// the request succeeds, so only failures use up the allowance.
func FailureMiddleware(l *Limiter, message string, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		r := l.Hit(c.Request.Context(), key)
		if !r.Allowed {
			setHeaders(c, r, l.now())
			reject(c, l, r, message, m)
			return
		}

		c.Next()

		if c.Writer.Status() < http.StatusBadRequest {
			l.Undo(c.Request.Context(), key)
		}
	}
}

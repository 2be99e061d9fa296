package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimitStore counts hits per key in fixed windows. Incr returns the
// count in the current window and the time until it resets.
type RateLimitStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimit allows limit requests per window for each caller. Callers are keyed
// by user id when authenticated, else by remote address. A store failure lets
// the request through.
func RateLimit(store RateLimitStore, scope string, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + callerKey(r)

			count, resetIn, err := store.Incr(r.Context(), key, window)
			if err != nil {
				logger.Warn("rate limit store unavailable", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := int64(limit) - count
			if remaining < 0 {
				remaining = 0
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(limit) {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(resetIn.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if userID, ok := UserIDFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(userID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryRateLimitStore keeps windows in process. Expired windows are swept
// until Close.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryRateLimitStore(sweepEvery time.Duration) *MemoryRateLimitStore {
	s := &MemoryRateLimitStore{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *MemoryRateLimitStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	win, ok := s.windows[key]
	if !ok || !now.Before(win.resetAt) {
		win = &memoryWindow{resetAt: now.Add(window)}
		s.windows[key] = win
	}
	win.count++
	return win.count, win.resetAt.Sub(now), nil
}

func (s *MemoryRateLimitStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryRateLimitStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, win := range s.windows {
		if !now.Before(win.resetAt) {
			delete(s.windows, key)
		}
	}
}

func (s *MemoryRateLimitStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

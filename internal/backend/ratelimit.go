package backend

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// GenerationLimiter throttles generation requests per user across every
// route that starts a generation. Idle limiters expire so the set of tracked
// users stays bounded.
type GenerationLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	every    rate.Limit
	burst    int
}

// NewGenerationLimiter returns nil when interval is not positive, which
// disables throttling.
func NewGenerationLimiter(interval time.Duration, burst int) *GenerationLimiter {
	if interval <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	idle := interval * time.Duration(burst+1)
	return &GenerationLimiter{
		limiters: gocache.New(idle, 2*idle),
		every:    rate.Every(interval),
		burst:    burst,
	}
}

func (l *GenerationLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.lookup(userID)
	if !ok {
		limiter = rate.NewLimiter(l.every, l.burst)
	}
	// refresh the expiry on every request
	l.limiters.SetDefault(userID, limiter)
	return limiter.Allow()
}

func (l *GenerationLimiter) lookup(userID string) (*rate.Limiter, bool) {
	value, ok := l.limiters.Get(userID)
	if !ok {
		return nil, false
	}
	limiter, ok := value.(*rate.Limiter)
	return limiter, ok
}

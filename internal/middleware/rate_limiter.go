package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"clinic-booking-server/internal/utils"
)

const (
	visitorIdle   = 3 * time.Minute
	sweepInterval = time.Minute
)

// IPRateLimiter keeps one token bucket per caller.
type IPRateLimiter struct {
	mu   sync.Mutex
	ips  map[string]*visitor
	r    rate.Limit
	b    int
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter starts a background sweep that forgets idle callers.
// Call Stop to end it.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	i := &IPRateLimiter{
		ips:  make(map[string]*visitor),
		r:    r,
		b:    b,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go i.cleanupVisitors()
	return i
}

// GetLimiter returns the limiter for key, creating it on first use.
func (i *IPRateLimiter) GetLimiter(key string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, exists := i.ips[key]
	if !exists {
		limiter := rate.NewLimiter(i.r, i.b)
		i.ips[key] = &visitor{limiter, i.now()}
		return limiter
	}

	v.lastSeen = i.now()
	return v.limiter
}

func (i *IPRateLimiter) Stop() {
	i.once.Do(func() { close(i.stop) })
}

func (i *IPRateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-i.stop:
			return
		case <-ticker.C:
			i.sweep()
		}
	}
}

func (i *IPRateLimiter) sweep() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for key, v := range i.ips {
		if i.now().Sub(v.lastSeen) > visitorIdle {
			delete(i.ips, key)
		}
	}
}

// RateLimitMiddleware throttles by authenticated user, falling back to the
// client IP for anonymous requests.
func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetUserIDFromContext(c)
		if !ok {
			key = c.ClientIP()
		}
		if !limiter.GetLimiter(key).Allow() {
			utils.TooManyRequests(c, "Too many requests, please slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}

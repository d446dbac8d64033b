package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle client keeps its token bucket before it is
// evicted.
const visitorTTL = 10 * time.Minute

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// visitors tracks one token bucket per client IP.
type visitors struct {
	mu      sync.Mutex
	buckets map[string]*visitor
	rps     rate.Limit
	burst   int
}

func newVisitors(rps, burst int) *visitors {
	v := &visitors{
		buckets: make(map[string]*visitor),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go v.evictLoop()
	return v
}

func (v *visitors) get(ip string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	vis, ok := v.buckets[ip]
	if !ok {
		vis = &visitor{bucket: rate.NewLimiter(v.rps, v.burst)}
		v.buckets[ip] = vis
	}
	vis.lastSeen = time.Now()
	return vis.bucket
}

func (v *visitors) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		v.mu.Lock()
		for ip, vis := range v.buckets {
			if time.Since(vis.lastSeen) > visitorTTL {
				delete(v.buckets, ip)
			}
		}
		v.mu.Unlock()
	}
}

// RateLimiter returns a Gin middleware enforcing a per-client-IP token
// bucket: rps steady-state requests per second with the given burst.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	v := newVisitors(rps, burst)
	return func(c *gin.Context) {
		if !v.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

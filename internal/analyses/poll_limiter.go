package analyses

import (
	"math"
	"sync"
	"time"
)

const pollLimitWindow = 250 * time.Millisecond

// pollLimiter throttles status polling per client and analysis.
type pollLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *pollLimiter) Allow(clientKey, analysisID string) bool {
	if l == nil {
		return true
	}
	key := clientKey + "|" + analysisID
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[key]; ok && now.Sub(last) < l.window {
		return false
	}
	l.lastHit[key] = now
	if len(l.lastHit) > 10000 {
		for k, t := range l.lastHit {
			if now.Sub(t) >= l.window {
				delete(l.lastHit, k)
			}
		}
	}
	return true
}

// RetryAfterSeconds rounds the window up to whole seconds for Retry-After.
func (l *pollLimiter) RetryAfterSeconds() int {
	window := pollLimitWindow
	if l != nil {
		window = l.window
	}
	return int(math.Max(1, math.Ceil(window.Seconds())))
}

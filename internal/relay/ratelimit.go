package relay

import (
	"sync"
	"time"
)

// commandLimit is a fixed-window counter of the commands one client may
// relay upstream. A zero rate disables it.
type commandLimit struct {
	rate   int
	window time.Duration

	mu      sync.Mutex
	count   int
	started time.Time
}

func newCommandLimit(rate int, window time.Duration) *commandLimit {
	return &commandLimit{rate: rate, window: window}
}

// allow counts one command and reports whether it fits in the current
// window.
func (l *commandLimit) allow(now time.Time) bool {
	if l == nil || l.rate <= 0 || l.window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.started) >= l.window {
		l.count = 0
		l.started = now
	}
	if l.count >= l.rate {
		return false
	}
	l.count++
	return true
}

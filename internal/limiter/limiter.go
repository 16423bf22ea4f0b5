package limiter

import (
	"runtime"
	"sync"
	"time"
)

// defaultWindow is how long work runs before the limiter considers sleeping
const defaultWindow = 10 * time.Millisecond

// CPULimiter throttles a busy loop to roughly maxPercent of one CPU by
// sleeping between units of work. It is meant to be called between entries.
type CPULimiter struct {
	mu          sync.Mutex
	maxPercent  float64
	window      time.Duration
	windowStart time.Time
	now         func() time.Time
	sleep       func(time.Duration)
}

// NewCPULimiter creates a new CPU limiter; 0 or >= 100 disables throttling
func NewCPULimiter(maxPercent float64) *CPULimiter {
	return &CPULimiter{
		maxPercent:  maxPercent,
		window:      defaultWindow,
		windowStart: time.Now(),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// Enabled reports whether Throttle can sleep at all
func (l *CPULimiter) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled()
}

func (l *CPULimiter) enabled() bool {
	return l.maxPercent > 0 && l.maxPercent < 100
}

// Throttle sleeps once the current work window is used up, for as long as
// keeps work at maxPercent of wall time.
func (l *CPULimiter) Throttle() {
	l.mu.Lock()
	if !l.enabled() {
		l.mu.Unlock()
		return
	}

	worked := l.now().Sub(l.windowStart)
	if worked < l.window {
		l.mu.Unlock()
		runtime.Gosched()
		return
	}

	pause := time.Duration(float64(worked) * (100 - l.maxPercent) / l.maxPercent)
	sleep := l.sleep
	l.mu.Unlock()

	sleep(pause)

	l.mu.Lock()
	l.windowStart = l.now()
	l.mu.Unlock()
}

// SetMaxPercent updates the maximum CPU percentage
func (l *CPULimiter) SetMaxPercent(maxPercent float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxPercent = maxPercent
}

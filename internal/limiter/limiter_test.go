package limiter

import (
	"testing"
	"time"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) install(l *CPULimiter) {
	l.now = func() time.Time { return c.now }
	l.sleep = func(d time.Duration) {
		c.slept = append(c.slept, d)
		c.now = c.now.Add(d)
	}
	l.windowStart = c.now
}

func TestThrottleSleepsProportionally(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		worked  time.Duration
		want    time.Duration
	}{
		{name: "half", percent: 50, worked: 20 * time.Millisecond, want: 20 * time.Millisecond},
		{name: "quarter", percent: 25, worked: 10 * time.Millisecond, want: 30 * time.Millisecond},
		{name: "ninety", percent: 90, worked: 90 * time.Millisecond, want: 10 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: time.Unix(1000, 0)}
			l := NewCPULimiter(tt.percent)
			clock.install(l)

			clock.now = clock.now.Add(tt.worked)
			l.Throttle()

			if len(clock.slept) != 1 || clock.slept[0] != tt.want {
				t.Errorf("slept %v, want [%v]", clock.slept, tt.want)
			}
		})
	}
}

func TestThrottleWithinWindowDoesNotSleep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewCPULimiter(50)
	clock.install(l)

	clock.now = clock.now.Add(time.Millisecond)
	l.Throttle()

	if len(clock.slept) != 0 {
		t.Errorf("slept %v inside the work window", clock.slept)
	}
}

func TestThrottleStartsNewWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := NewCPULimiter(50)
	clock.install(l)

	clock.now = clock.now.Add(defaultWindow)
	l.Throttle()
	clock.now = clock.now.Add(time.Millisecond)
	l.Throttle()

	if len(clock.slept) != 1 {
		t.Errorf("slept %d times, want 1", len(clock.slept))
	}
}

func TestDisabledLimiter(t *testing.T) {
	for _, percent := range []float64{0, 100, 150, -5} {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		l := NewCPULimiter(percent)
		clock.install(l)

		clock.now = clock.now.Add(time.Second)
		l.Throttle()

		if l.Enabled() || len(clock.slept) != 0 {
			t.Errorf("percent %v: enabled=%v slept=%v, want disabled", percent, l.Enabled(), clock.slept)
		}
	}
}

func TestSetMaxPercent(t *testing.T) {
	l := NewCPULimiter(0)
	l.SetMaxPercent(20)
	if !l.Enabled() {
		t.Error("limiter should be enabled after SetMaxPercent(20)")
	}
}

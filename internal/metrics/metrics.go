package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Notifications counts what happened to incoming gateway notifications.
type Notifications struct {
	Received  Counter
	Applied   Counter
	Duplicate Counter
	Rejected  Counter
}

func (n *Notifications) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"received":  n.Received.Load(),
		"applied":   n.Applied.Load(),
		"duplicate": n.Duplicate.Load(),
		"rejected":  n.Rejected.Load(),
	}
}

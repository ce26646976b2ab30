// Package pipeline drives a captured utterance through enrichment, the
// conversation log, and delivery to the other party's inbox channel, and
// consumes the notifications arriving from the other side.
package pipeline

import (
	"sync"
	"time"
)

// State is the externally observable phase of the most recent send attempt.
type State string

const (
	StateIdle      State = "idle"
	StateCaptured  State = "captured"
	StateEnriching State = "enriching"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
)

// Receipt summarizes a completed send attempt.
type Receipt struct {
	State     State
	Message   string // human-readable outcome, shown to the sender
	Delivered string // audio reference published to the other party, if any
}

// msClock issues millisecond timestamps that never decrease within a
// context, even if the wall clock steps backwards.
type msClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func newMSClock(now func() time.Time) *msClock {
	if now == nil {
		now = time.Now
	}
	return &msClock{now: now}
}

func (c *msClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms < c.last {
		ms = c.last
	}
	c.last = ms
	return time.UnixMilli(ms)
}

package adapter

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blewatch/internal/ringchan"
)

// DefaultSubscriberBuffer is the per-subscriber notification buffer.
const DefaultSubscriberBuffer = 16

// Transition is a change of adapter state. Seq numbers the changes of one
// tracker consecutively from 1, so a subscriber that lost transitions sees
// a gap.
type Transition struct {
	From State
	To   State
	At   time.Time
	Seq  uint64
}

// Tracker holds the current adapter state and fans state changes out to
// subscribers. Any state may follow any other; the tracker never validates
// transitions because the platform may report them in arbitrary order.
type Tracker struct {
	mu     sync.RWMutex
	state  State
	seq    uint64
	subs   []*ringchan.RingChannel[Transition]
	closed bool
	logger *logrus.Logger
}

// NewTracker returns a tracker in the Unknown state.
func NewTracker(logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{state: Unknown, logger: logger}
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Set records a state reported by the radio. Subscribers are notified only
// when the value actually changes; the returned bool reports that.
func (t *Tracker) Set(s State, at time.Time) (Transition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s == t.state {
		return Transition{From: s, To: s, At: at}, false
	}

	t.seq++
	tr := Transition{From: t.state, To: s, At: at, Seq: t.seq}
	t.state = s

	t.logger.WithFields(logrus.Fields{
		"from": tr.From.String(),
		"to":   tr.To.String(),
	}).Info("Adapter state changed")

	for _, sub := range t.subs {
		if sub.Send(tr) {
			t.logger.WithField("dropped_before", tr.To.String()).Warn("Adapter state subscriber is lagging")
		}
	}
	return tr, true
}

// Subscribe returns a channel receiving every subsequent transition. A slow
// subscriber loses the oldest transitions first, never the latest.
func (t *Tracker) Subscribe() <-chan Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := ringchan.New[Transition](DefaultSubscriberBuffer)
	if t.closed {
		sub.Close()
		return sub.C()
	}
	t.subs = append(t.subs, sub)
	return sub.C()
}

// Close closes every subscriber channel.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for _, sub := range t.subs {
		sub.Close()
	}
	t.subs = nil
}

// Package registry keeps the live set of observed BLE devices.
//
// Each device lives behind its own atomic pointer to an immutable Entry.
// Observations build a new Entry and swap it in, so readers see either the
// previous or the next version of a device and never a mix of both.
// Snapshot walks the lock-free map without blocking ingestion.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blewatch/internal/advert"
	"github.com/srg/blewatch/internal/freshness"
	"github.com/srg/blewatch/internal/ringchan"
)

// DefaultChangeBuffer is the per-subscriber change notification buffer.
const DefaultChangeBuffer = 256

// ChangeType marks what happened to an entry.
type ChangeType int

const (
	ChangeNone ChangeType = iota
	ChangeAdded
	ChangeUpdated
	ChangePruned
)

func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangePruned:
		return "pruned"
	default:
		return "none"
	}
}

// Change is a registry mutation notification.
type Change struct {
	Type ChangeType
	ID   string
	At   time.Time
}

type record struct {
	entry atomic.Pointer[Entry]
}

// Registry is a concurrency-safe store of device entries keyed by identifier.
type Registry struct {
	entries *hashmap.Map[string, *record]
	policy  freshness.Policy
	logger  *logrus.Logger

	// pruneMu is held shared by writers and exclusively by Prune, so an
	// entry cannot be refreshed while it is being evicted. Readers never take it.
	pruneMu sync.RWMutex

	subsMu       sync.RWMutex
	subs         []*ringchan.RingChannel[Change]
	changeBuffer int
	closed       bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithChangeBuffer sets the notification buffer per subscriber.
func WithChangeBuffer(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.changeBuffer = n
		}
	}
}

// New creates an empty registry classifying entries with policy.
func New(policy freshness.Policy, logger *logrus.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	if policy.CurrentThreshold() <= 0 {
		policy = freshness.DefaultPolicy()
	}

	r := &Registry{
		entries:      hashmap.New[string, *record](),
		policy:       policy,
		logger:       logger,
		changeBuffer: DefaultChangeBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the classification policy.
func (r *Registry) Policy() freshness.Policy {
	return r.policy
}

// Observe records a sighting of id at now. An unknown id creates an entry
// with FirstSeen = LastSeen = now; a known id gets LastSeen, RSSI and the
// advertised data replaced. An empty local name does not erase a name seen
// earlier, since scan responses and plain advertisements alternate.
func (r *Registry) Observe(id string, rssi int, payload advert.Payload, now time.Time) ChangeType {
	if id == "" {
		r.logger.Debug("Ignoring observation without identifier")
		return ChangeNone
	}

	r.pruneMu.RLock()
	defer r.pruneMu.RUnlock()

	rec, ok := r.entries.Get(id)
	if !ok {
		fresh := &record{}
		fresh.entry.Store(&Entry{
			ID:        id,
			FirstSeen: now,
			LastSeen:  now,
			RSSI:      rssi,
			Payload:   payload.Clone(),
		})

		var loaded bool
		rec, loaded = r.entries.GetOrInsert(id, fresh)
		if !loaded {
			r.logger.WithFields(logrus.Fields{
				"device":   id,
				"name":     payload.LocalName,
				"rssi":     rssi,
				"services": payload.Services,
			}).Info("Discovered new device")
			r.publish(Change{Type: ChangeAdded, ID: id, At: now})
			return ChangeAdded
		}
	}

	for {
		old := rec.entry.Load()
		next := *old
		next.LastSeen = now
		next.RSSI = rssi
		name := old.LocalName
		next.Payload = payload.Clone()
		if next.LocalName == "" {
			next.LocalName = name
		}
		if rec.entry.CompareAndSwap(old, &next) {
			break
		}
	}

	r.logger.WithFields(logrus.Fields{
		"device": id,
		"rssi":   rssi,
	}).Debug("Updated device")
	r.publish(Change{Type: ChangeUpdated, ID: id, At: now})
	return ChangeUpdated
}

// Update refreshes LastSeen and RSSI of a known entry without touching its
// advertised data. Unknown identifiers are ignored; the result reports
// whether an entry was updated.
func (r *Registry) Update(id string, rssi int, now time.Time) bool {
	r.pruneMu.RLock()
	defer r.pruneMu.RUnlock()

	rec, ok := r.entries.Get(id)
	if !ok {
		r.logger.WithField("device", id).Debug("Ignoring update for unknown device")
		return false
	}

	for {
		old := rec.entry.Load()
		next := *old
		next.LastSeen = now
		next.RSSI = rssi
		if rec.entry.CompareAndSwap(old, &next) {
			break
		}
	}
	r.publish(Change{Type: ChangeUpdated, ID: id, At: now})
	return true
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	rec, ok := r.entries.Get(id)
	if !ok {
		return Entry{}, false
	}
	return rec.entry.Load().clone(), true
}

// Snapshot returns copies of all entries classified against now, ordered
// current first and then by identifier.
func (r *Registry) Snapshot(now time.Time) []View {
	views := make([]View, 0, r.entries.Len())
	r.entries.Range(func(_ string, rec *record) bool {
		e := rec.entry.Load()
		c := r.policy.Classify(e.LastSeen, now)
		views = append(views, View{
			Entry:   e.clone(),
			Current: c.Current,
			Expired: c.Expired,
		})
		return true
	})
	Sort(views)
	return views
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// Prune removes entries whose last sighting is more than olderThan before
// now and returns how many were removed. It is not called by the registry
// itself; without it the registry grows with every identifier ever seen.
func (r *Registry) Prune(now time.Time, olderThan time.Duration) int {
	r.pruneMu.Lock()
	defer r.pruneMu.Unlock()

	var stale []string
	r.entries.Range(func(id string, rec *record) bool {
		if now.Sub(rec.entry.Load().LastSeen) > olderThan {
			stale = append(stale, id)
		}
		return true
	})

	for _, id := range stale {
		r.entries.Del(id)
		r.publish(Change{Type: ChangePruned, ID: id, At: now})
	}

	if len(stale) > 0 {
		r.logger.WithFields(logrus.Fields{
			"pruned":    len(stale),
			"remaining": r.entries.Len(),
		}).Info("Pruned stale devices")
	}
	return len(stale)
}

// Changes returns a channel receiving every subsequent change. A slow
// subscriber loses its oldest notifications.
func (r *Registry) Changes() <-chan Change {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	sub := ringchan.New[Change](r.changeBuffer)
	if r.closed {
		sub.Close()
		return sub.C()
	}
	r.subs = append(r.subs, sub)
	return sub.C()
}

// Close closes all subscriber channels. The registry stays readable.
func (r *Registry) Close() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, sub := range r.subs {
		sub.Close()
	}
	r.subs = nil
}

func (r *Registry) publish(c Change) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()

	for _, sub := range r.subs {
		sub.Send(c)
	}
}

package registry

import (
	"sort"
	"time"

	"github.com/srg/blewatch/internal/advert"
)

// Entry is one observed device. Values returned by the registry are copies;
// the stored version is replaced as a whole on every observation, never
// edited field by field.
type Entry struct {
	ID        string    `json:"id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	RSSI      int       `json:"rssi"`

	advert.Payload
}

// Advertises reports whether the device announced the given service.
func (e Entry) Advertises(service string) bool {
	return e.HasService(service)
}

func (e Entry) clone() Entry {
	e.Payload = e.Payload.Clone()
	return e
}

// View is an entry classified against a particular "now".
// Current and Expired are computed at read time and never stored.
type View struct {
	Entry
	Current bool `json:"current"`
	Expired bool `json:"expired"`
}

// Less orders current entries first, then by identifier ascending.
// Identifiers are unique, so the order is total.
func Less(a, b View) bool {
	if a.Current != b.Current {
		return a.Current
	}
	return a.ID < b.ID
}

// Sort orders views in place using Less.
func Sort(views []View) {
	sort.Slice(views, func(i, j int) bool { return Less(views[i], views[j]) })
}

// Partition splits an ordered snapshot into current and other entries,
// preserving order within each part.
func Partition(views []View) (current, other []View) {
	for _, v := range views {
		if v.Current {
			current = append(current, v)
		} else {
			other = append(other, v)
		}
	}
	return current, other
}

// WithoutExpired drops expired views, preserving order.
func WithoutExpired(views []View) []View {
	out := make([]View, 0, len(views))
	for _, v := range views {
		if !v.Expired {
			out = append(out, v)
		}
	}
	return out
}

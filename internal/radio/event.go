// Package radio defines the typed events a radio adapter delivers to the core.
package radio

import (
	"time"

	"github.com/srg/blewatch/internal/adapter"
	"github.com/srg/blewatch/internal/advert"
)

// Event is one of DeviceObserved or AdapterStateChanged.
type Event interface {
	event()
}

// DeviceObserved reports one received advertisement. A zero At means the
// consumer stamps it with its own clock on receipt.
type DeviceObserved struct {
	ID      string
	RSSI    int
	Payload advert.Payload
	At      time.Time
}

// AdapterStateChanged reports the radio's operational state.
type AdapterStateChanged struct {
	State adapter.State
	At    time.Time
}

func (DeviceObserved) event()      {}
func (AdapterStateChanged) event() {}

// Source produces radio events. The channel is closed when the source stops.
type Source interface {
	Events() <-chan Event
}

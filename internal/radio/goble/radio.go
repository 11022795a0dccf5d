// Package goble turns go-ble scanning callbacks into typed radio events.
package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blewatch/internal/adapter"
	"github.com/srg/blewatch/internal/advert"
	"github.com/srg/blewatch/internal/groutine"
	"github.com/srg/blewatch/internal/radio"
	"github.com/srg/blewatch/internal/ringchan"
	"github.com/srg/blewatch/scancontrol"
)

// DefaultEventBuffer is the event queue size between the radio callback and the core.
const DefaultEventBuffer = 256

// ScanningDevice is the part of ble.Device the radio uses.
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
}

// DeviceFactory creates the platform device. It is a variable so tests can
// substitute a fake.
//
//nolint:gochecknoglobals // overridden in tests
var DeviceFactory = func() (ScanningDevice, error) {
	dev, err := platformDevice()
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Radio is both the event source and the scanner used by the scan controller.
type Radio struct {
	logger *logrus.Logger
	events *ringchan.RingChannel[radio.Event]
	now    func() time.Time

	mu       sync.Mutex
	dev      ScanningDevice
	cancel   context.CancelFunc
	scanGen  uint64
	scanning bool
	scanDone chan struct{}
	closed   bool
	workers  groutine.Group
}

var (
	_ radio.Source        = (*Radio)(nil)
	_ scancontrol.Scanner = (*Radio)(nil)
)

// Option configures a Radio.
type Option func(*Radio)

// WithEventBuffer sets the event queue size.
func WithEventBuffer(n int) Option {
	return func(r *Radio) {
		if n > 0 {
			r.events = ringchan.New[radio.Event](n)
		}
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(r *Radio) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a radio. Call Open before scanning.
func New(logger *logrus.Logger, opts ...Option) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Radio{
		logger: logger,
		events: ringchan.New[radio.Event](DefaultEventBuffer),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events returns the event stream. It is closed by Close.
func (r *Radio) Events() <-chan radio.Event {
	return r.events.C()
}

// Open initializes the platform device and reports the resulting adapter
// state as an event. The error is returned for logging only; the state
// event is what drives the rest of the system.
func (r *Radio) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		state := StateForError(err)
		r.logger.WithError(err).WithField("state", state.String()).Warn("BLE adapter unavailable")
		r.emitState(state)
		return err
	}

	r.mu.Lock()
	r.dev = dev
	r.mu.Unlock()

	r.logger.Debug("BLE adapter opened")
	r.emitState(adapter.PoweredOn)
	return nil
}

// StartScan begins discovery in the background. It returns immediately;
// a scan that later fails is reported as an adapter state event. Starting
// while a scan is running is a no-op. A scan started right after StopScan
// waits for the stopped one to wind down before touching the device.
func (r *Radio) StartScan(ctx context.Context, opts scancontrol.Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.dev == nil {
		return ErrNotOpen
	}
	if r.scanning {
		return nil
	}

	scanCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.scanning = true
	r.scanGen++
	gen := r.scanGen
	prev := r.scanDone
	done := make(chan struct{})
	r.scanDone = done
	dev := r.dev
	handler := r.handler(advert.NormalizeServices(opts.ServiceFilter))

	r.logger.WithField("allow_duplicates", opts.AllowDuplicates).Info("Starting BLE scan")

	r.workers.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				r.scanFinished(gen)
				return
			}
		}

		err := dev.Scan(ctx, opts.AllowDuplicates, handler)
		if !r.scanFinished(gen) {
			r.logger.Debug("Stopped BLE scan finished")
			return
		}

		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.logger.Debug("BLE scan stopped")
			return
		}
		err = NormalizeError(err)
		state := StateForError(err)
		r.logger.WithError(err).WithField("state", state.String()).Warn("BLE scan failed")
		r.emitState(state)
	})
	return nil
}

// StopScan cancels the running scan. Stopping an idle radio is a no-op.
// The radio counts as idle immediately; the cancelled scan finishes in the
// background.
func (r *Radio) StopScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	return nil
}

// Scanning reports whether a scan has been started and not stopped or failed.
func (r *Radio) Scanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanning
}

// Close stops scanning, waits for the scan goroutine and closes Events.
func (r *Radio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.stopLocked()
	r.mu.Unlock()

	r.workers.Wait()
	r.events.Close()
	return nil
}

func (r *Radio) stopLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.scanning {
		r.scanning = false
		r.scanGen++
	}
}

// scanFinished clears the scanning state if gen is still the live scan and
// reports whether it was.
func (r *Radio) scanFinished(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.scanGen {
		return false
	}
	r.scanning = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return true
}

func (r *Radio) handler(filter []string) ble.AdvHandler {
	return func(a ble.Advertisement) {
		payload := PayloadFromAdvertisement(a)
		if !matchesFilter(payload, filter) {
			return
		}
		ev := radio.DeviceObserved{
			ID:      a.Addr().String(),
			RSSI:    a.RSSI(),
			Payload: payload,
			At:      r.now(),
		}
		if r.events.Send(ev) {
			r.logger.Debug("Event queue full, dropped oldest event")
		}
	}
}

func (r *Radio) emitState(s adapter.State) {
	r.events.Send(radio.AdapterStateChanged{State: s, At: r.now()})
}

func matchesFilter(p advert.Payload, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, svc := range filter {
		if p.HasService(svc) {
			return true
		}
	}
	return false
}

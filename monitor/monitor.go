// Package monitor wires a radio event source to the device registry, the
// adapter state tracker and the scan controller.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blewatch/internal/adapter"
	"github.com/srg/blewatch/internal/groutine"
	"github.com/srg/blewatch/internal/radio"
	"github.com/srg/blewatch/pkg/config"
	"github.com/srg/blewatch/registry"
	"github.com/srg/blewatch/scancontrol"
)

// ErrNoSource is returned by New when no event source is supplied.
var ErrNoSource = errors.New("monitor requires an event source")

// Monitor consumes radio events until its source closes or Run's context ends.
type Monitor struct {
	cfg    config.Config
	source radio.Source
	logger *logrus.Logger
	now    func() time.Time

	pruneInterval time.Duration

	registry   *registry.Registry
	tracker    *adapter.Tracker
	controller *scancontrol.Controller
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock used for events without a timestamp and for pruning.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPruneInterval overrides how often the pruner runs. It defaults to the
// max age threshold.
func WithPruneInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.pruneInterval = d
		}
	}
}

// New validates cfg and builds the components.
func New(cfg *config.Config, source radio.Source, scanner scancontrol.Scanner, logger *logrus.Logger, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrNoSource
	}
	if logger == nil {
		logger = logrus.New()
	}

	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	controller, err := scancontrol.New(scanner, logger, scancontrol.WithStopOnPowerLoss(cfg.StopScanOnPowerLoss))
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:           *cfg,
		source:        source,
		logger:        logger,
		now:           time.Now,
		pruneInterval: cfg.MaxAgeThreshold,
		registry:      registry.New(policy, logger),
		tracker:       adapter.NewTracker(logger),
		controller:    controller,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Registry returns the device registry.
func (m *Monitor) Registry() *registry.Registry { return m.registry }

// Tracker returns the adapter state tracker.
func (m *Monitor) Tracker() *adapter.Tracker { return m.tracker }

// Controller returns the scan controller.
func (m *Monitor) Controller() *scancontrol.Controller { return m.controller }

// Run processes events and must be called at most once. It returns nil when the source closes and ctx.Err()
// when ctx ends first. The tracker and registry subscriptions are closed on
// return; the registry stays readable.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var workers groutine.Group
	defer func() {
		cancel()
		m.tracker.Close()
		workers.Wait()
		m.registry.Close()
	}()

	transitions := m.tracker.Subscribe()
	workers.Go(ctx, "scan-controller", func(ctx context.Context) {
		_ = m.controller.Run(ctx, transitions)
	})

	if m.cfg.PruneAfter > 0 {
		workers.Go(ctx, "registry-pruner", m.pruneLoop)
	}

	events := m.source.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				m.logger.Debug("Radio event source closed")
				return nil
			}
			m.Dispatch(ctx, ev)
		}
	}
}

// Dispatch applies a single event.
func (m *Monitor) Dispatch(ctx context.Context, ev radio.Event) {
	switch e := ev.(type) {
	case radio.DeviceObserved:
		m.registry.Observe(e.ID, e.RSSI, e.Payload, m.stamp(e.At))
	case radio.AdapterStateChanged:
		m.tracker.Set(e.State, m.stamp(e.At))
	default:
		m.logger.WithField("event", fmt.Sprintf("%T", ev)).Debug("Ignoring unknown radio event")
	}
}

func (m *Monitor) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return m.now()
	}
	return at
}

func (m *Monitor) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.registry.Prune(m.now(), m.cfg.PruneAfter)
		}
	}
}

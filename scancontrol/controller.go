// Package scancontrol keeps a device discovery request active exactly while
// the radio adapter is powered on.
package scancontrol

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blewatch/internal/adapter"
)

// ErrNoScanner is returned by New when no scanner is supplied.
var ErrNoScanner = errors.New("scan controller requires a scanner")

// Options describes the discovery request sent to the radio.
type Options struct {
	// AllowDuplicates asks the radio to report every advertisement instead of
	// the first one per device; freshness tracking depends on it.
	AllowDuplicates bool
	// ServiceFilter restricts discovery to devices advertising these services.
	// Empty means every advertisement.
	ServiceFilter []string
}

// DefaultOptions requests every advertisement with duplicates.
func DefaultOptions() Options {
	return Options{AllowDuplicates: true}
}

// Scanner is the outbound side of the radio.
type Scanner interface {
	StartScan(ctx context.Context, opts Options) error
	StopScan() error
}

// Stats counts requests issued to the scanner.
type Stats struct {
	Starts int
	Stops  int
	Failed int
}

// Controller reacts to adapter transitions. A start request is issued once
// per entry into PoweredOn; leaving PoweredOn marks the scan inactive and,
// when configured, issues one stop request.
type Controller struct {
	scanner     Scanner
	logger      *logrus.Logger
	opts        Options
	stopOnLeave bool

	mu      sync.Mutex
	active  bool
	lastSeq uint64
	stats   Stats
}

// Option configures a Controller.
type Option func(*Controller)

// WithScanOptions overrides DefaultOptions.
func WithScanOptions(opts Options) Option {
	return func(c *Controller) { c.opts = opts }
}

// WithStopOnPowerLoss makes the controller issue StopScan when the adapter
// leaves PoweredOn. The radio stops on its own otherwise.
func WithStopOnPowerLoss(enabled bool) Option {
	return func(c *Controller) { c.stopOnLeave = enabled }
}

// New returns a controller driving scanner.
func New(scanner Scanner, logger *logrus.Logger, opts ...Option) (*Controller, error) {
	if scanner == nil {
		return nil, ErrNoScanner
	}
	if logger == nil {
		logger = logrus.New()
	}

	c := &Controller{
		scanner: scanner,
		logger:  logger,
		opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle applies one transition. Start failures are logged and not retried;
// the radio reports the cause as a later state change.
//
// A gap in Seq means the subscription dropped transitions. Dropped
// transitions are always older than tr, so a PoweredOn arriving after a gap
// while a scan is active is a fresh power-on: the adapter left PoweredOn in
// between and the previous scan is gone.
func (c *Controller) Handle(ctx context.Context, tr adapter.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var missed uint64
	if tr.Seq != 0 {
		if c.lastSeq != 0 && tr.Seq > c.lastSeq+1 {
			missed = tr.Seq - c.lastSeq - 1
		}
		c.lastSeq = tr.Seq
	}
	if missed > 0 && c.active && tr.To == adapter.PoweredOn {
		c.logger.WithField("missed", missed).Warn("Missed adapter state changes, restarting scan")
		c.leave()
	}

	if tr.To == adapter.PoweredOn {
		if c.active {
			return
		}
		c.logger.WithFields(logrus.Fields{
			"allow_duplicates": c.opts.AllowDuplicates,
			"service_filter":   c.opts.ServiceFilter,
		}).Info("Adapter powered on, starting scan")

		c.stats.Starts++
		if err := c.scanner.StartScan(ctx, c.opts); err != nil {
			c.stats.Failed++
			c.logger.WithError(err).Warn("Scan request failed")
			return
		}
		c.active = true
		return
	}

	if !c.active {
		return
	}
	c.logger.WithField("state", tr.To.String()).Info("Adapter left poweredOn, scan inactive")
	c.leave()
}

// leave marks the scan inactive and issues the optional stop. c.mu is held.
func (c *Controller) leave() {
	c.active = false
	if !c.stopOnLeave {
		return
	}
	c.stats.Stops++
	if err := c.scanner.StopScan(); err != nil {
		c.logger.WithError(err).Debug("Stop scan request failed")
	}
}

// Run applies transitions from ch until ctx is done or ch is closed.
func (c *Controller) Run(ctx context.Context, ch <-chan adapter.Transition) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr, ok := <-ch:
			if !ok {
				return nil
			}
			c.Handle(ctx, tr)
		}
	}
}

// Active reports whether a scan request is believed to be running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Stats returns request counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

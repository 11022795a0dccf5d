package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/blewatch/internal/adapter"
	"github.com/srg/blewatch/internal/advert"
	"github.com/srg/blewatch/internal/radio"
	"github.com/srg/blewatch/internal/testutils"
	"github.com/srg/blewatch/pkg/config"
	"github.com/srg/blewatch/scancontrol"
	"github.com/stretchr/testify/suite"
)

type chanSource struct {
	ch chan radio.Event
}

func (s *chanSource) Events() <-chan radio.Event { return s.ch }

type countingScanner struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (c *countingScanner) StartScan(context.Context, scancontrol.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return nil
}

func (c *countingScanner) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *countingScanner) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

type MonitorTestSuite struct {
	suite.Suite
	helper  *testutils.TestHelper
	clock   *testutils.FakeClock
	source  *chanSource
	scanner *countingScanner
	cfg     *config.Config
}

func (s *MonitorTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.clock = testutils.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s.source = &chanSource{ch: make(chan radio.Event, 64)}
	s.scanner = &countingScanner{}
	s.cfg = config.DefaultConfig()
}

func (s *MonitorTestSuite) newMonitor(opts ...Option) *Monitor {
	opts = append([]Option{WithClock(s.clock.Now)}, opts...)
	m, err := New(s.cfg, s.source, s.scanner, s.helper.Logger, opts...)
	s.Require().NoError(err)
	return m
}

func (s *MonitorTestSuite) start(m *Monitor) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	return cancel, done
}

func (s *MonitorTestSuite) TestRejectsInvalidConfig() {
	s.cfg.CurrentThreshold = 100 * time.Second
	s.cfg.MaxAgeThreshold = 50 * time.Second

	_, err := New(s.cfg, s.source, s.scanner, s.helper.Logger)
	s.ErrorIs(err, config.ErrInvalidConfig)
}

func (s *MonitorTestSuite) TestRequiresScanner() {
	_, err := New(s.cfg, s.source, nil, s.helper.Logger)
	s.ErrorIs(err, scancontrol.ErrNoScanner)
}

func (s *MonitorTestSuite) TestScanRestartsOnEveryPowerOn() {
	m := s.newMonitor()
	cancel, done := s.start(m)
	defer cancel()

	for _, st := range []adapter.State{adapter.PoweredOn, adapter.PoweredOff, adapter.PoweredOn} {
		s.source.ch <- radio.AdapterStateChanged{State: st}
	}

	s.Eventually(func() bool { return s.scanner.Starts() == 2 }, time.Second, 5*time.Millisecond)
	s.Eventually(m.Controller().Active, time.Second, 5*time.Millisecond)
	s.Equal(adapter.PoweredOn, m.Tracker().State())

	close(s.source.ch)
	s.NoError(<-done)
	s.Equal(2, s.scanner.Starts())
}

func (s *MonitorTestSuite) TestObservationsReachRegistry() {
	m := s.newMonitor()
	cancel, done := s.start(m)
	defer cancel()

	t0 := s.clock.Now()
	s.source.ch <- radio.DeviceObserved{ID: "aa:aa", RSSI: -40, Payload: advert.New(advert.Fields{LocalName: "A"})}
	s.source.ch <- radio.DeviceObserved{ID: "bb:bb", RSSI: -70, At: t0.Add(-2 * time.Minute)}
	s.source.ch <- radio.DeviceObserved{ID: "aa:aa", RSSI: -42, At: t0.Add(time.Second)}
	close(s.source.ch)
	s.Require().NoError(<-done)

	a, ok := m.Registry().Get("aa:aa")
	s.Require().True(ok)
	s.Equal(t0, a.FirstSeen)
	s.Equal(t0.Add(time.Second), a.LastSeen)
	s.Equal(-42, a.RSSI)
	s.Equal("A", a.LocalName)

	views := m.Registry().Snapshot(t0.Add(time.Second))
	s.Require().Len(views, 2)
	s.Equal("aa:aa", views[0].ID)
	s.True(views[0].Current)
	s.Equal("bb:bb", views[1].ID)
	s.False(views[1].Current)
}

func (s *MonitorTestSuite) TestRunStopsOnCancel() {
	m := s.newMonitor()
	cancel, done := s.start(m)

	cancel()
	s.ErrorIs(<-done, context.Canceled)

	_, open := <-m.Registry().Changes()
	s.False(open)
}

func (s *MonitorTestSuite) TestPruner() {
	s.cfg.CurrentThreshold = time.Second
	s.cfg.MaxAgeThreshold = time.Minute
	s.cfg.PruneAfter = time.Minute
	m := s.newMonitor(WithPruneInterval(5 * time.Millisecond))
	cancel, done := s.start(m)

	s.source.ch <- radio.DeviceObserved{ID: "old"}
	s.Eventually(func() bool { return m.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)

	s.clock.Advance(2 * time.Minute)
	s.Eventually(func() bool { return m.Registry().Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	s.True(errors.Is(<-done, context.Canceled))
}

func (s *MonitorTestSuite) TestDispatchStampsWithClock() {
	m := s.newMonitor()

	m.Dispatch(context.Background(), radio.AdapterStateChanged{State: adapter.PoweredOff})
	m.Dispatch(context.Background(), radio.DeviceObserved{ID: "x", RSSI: -50})

	s.Equal(adapter.PoweredOff, m.Tracker().State())
	e, ok := m.Registry().Get("x")
	s.Require().True(ok)
	s.Equal(s.clock.Now(), e.LastSeen)
}

func TestMonitorTestSuite(t *testing.T) {
	suite.Run(t, new(MonitorTestSuite))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blewatch/internal/groutine"
	"github.com/srg/blewatch/internal/radio/goble"
	"github.com/srg/blewatch/monitor"
	"github.com/srg/blewatch/pkg/config"
	"github.com/srg/blewatch/registry"
	"golang.org/x/term"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously list nearby BLE devices",
	Long: `Scan for BLE advertisements and redraw the device list on every refresh.

Devices seen within the current threshold are listed under "Current", the
rest under "Other". Devices advertising the target service are marked.`,
	Example: `  blewatch watch
  blewatch watch --current 30s --max-age 5m --target fd6f
  blewatch watch --format json --duration 20s
  blewatch watch --config ~/.config/blewatch.yaml`,
	RunE: runWatch,
}

var (
	watchConfigPath  string
	watchCurrent     time.Duration
	watchMaxAge      time.Duration
	watchTarget      string
	watchRefresh     time.Duration
	watchPruneAfter  time.Duration
	watchFormat      string
	watchDuration    time.Duration
	watchStopOnLoss  bool
	watchHideExpired bool
	watchVerbose     bool
)

func init() {
	defaults := config.DefaultConfig()

	watchCmd.Flags().StringVarP(&watchConfigPath, "config", "c", "", "YAML configuration file")
	watchCmd.Flags().DurationVar(&watchCurrent, "current", defaults.CurrentThreshold, "How long a device counts as current after its last advertisement")
	watchCmd.Flags().DurationVar(&watchMaxAge, "max-age", defaults.MaxAgeThreshold, "Age after which a device is considered expired")
	watchCmd.Flags().StringVarP(&watchTarget, "target", "t", defaults.TargetService, "Service UUID to highlight (empty for none)")
	watchCmd.Flags().DurationVarP(&watchRefresh, "refresh", "r", defaults.RefreshInterval, "Display refresh interval")
	watchCmd.Flags().DurationVar(&watchPruneAfter, "prune-after", defaults.PruneAfter, "Forget devices not seen for this long (0 keeps them)")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", defaults.OutputFormat, "Output format (table, json)")
	watchCmd.Flags().DurationVarP(&watchDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
	watchCmd.Flags().BoolVar(&watchStopOnLoss, "stop-on-power-loss", defaults.StopScanOnPowerLoss, "Stop scanning explicitly when the adapter powers off")
	watchCmd.Flags().BoolVar(&watchHideExpired, "hide-expired", false, "Do not list expired devices")
	watchCmd.Flags().BoolVar(&watchVerbose, "verbose", false, "Enable debug logging")
}

// resolveConfig loads the optional file and applies explicitly set flags on top.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if watchConfigPath != "" {
		var err error
		if cfg, err = config.Load(watchConfigPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("current") {
		cfg.CurrentThreshold = watchCurrent
	}
	if flags.Changed("max-age") {
		cfg.MaxAgeThreshold = watchMaxAge
	}
	if flags.Changed("target") {
		cfg.TargetService = watchTarget
	}
	if flags.Changed("refresh") {
		cfg.RefreshInterval = watchRefresh
	}
	if flags.Changed("prune-after") {
		cfg.PruneAfter = watchPruneAfter
	}
	if flags.Changed("format") {
		switch watchFormat {
		case config.FormatTable, config.FormatJSON:
			cfg.OutputFormat = watchFormat
		default:
			return nil, fmt.Errorf("%w '%s': must be one of [%s %s]", ErrInvalidFormat, watchFormat, config.FormatTable, config.FormatJSON)
		}
	}
	if flags.Changed("stop-on-power-loss") {
		cfg.StopScanOnPowerLoss = watchStopOnLoss
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// Warnings only unless asked otherwise; logs share the terminal with the table.
	logger, err := configureLogger(cmd, "verbose", logrus.WarnLevel)
	if err != nil {
		return err
	}
	if watchConfigPath != "" && !cmd.Flags().Changed("log-level") && !watchVerbose {
		logger.SetLevel(cfg.LogLevel)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if watchDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, watchDuration)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	out := cmd.OutOrStdout()
	interactive := isTerminal(out)

	r := goble.New(logger, goble.WithEventBuffer(cfg.EventBuffer))
	m, err := monitor.New(cfg, r, r, logger)
	if err != nil {
		return err
	}

	view := newRenderer(out, cfg, watchHideExpired, interactive)
	return watchLoop(ctx, m, r, view, cfg.RefreshInterval, interactive && cfg.OutputFormat == config.FormatTable)
}

// radioDevice is the part of goble.Radio the watch loop drives.
type radioDevice interface {
	Open(ctx context.Context) error
	Close() error
}

// watchLoop runs the monitor until ctx ends and prints the final snapshot.
// With redraw set the screen is also refreshed on every tick and as soon as
// a new device appears.
func watchLoop(ctx context.Context, m *monitor.Monitor, dev radioDevice, view *renderer, refresh time.Duration, redraw bool) error {
	changes := m.Registry().Changes()

	var workers groutine.Group
	runErr := make(chan error, 1)
	workers.Go(ctx, "monitor", func(ctx context.Context) {
		runErr <- m.Run(ctx)
	})

	// An unavailable adapter is reported as a state event and shown in the
	// table; it is not fatal.
	_ = dev.Open(ctx)

	draw := func() error {
		if redraw {
			clearScreen(view.out)
		}
		now := time.Now()
		return view.Render(m.Tracker().State(), m.Registry().Snapshot(now), now)
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = dev.Close()
			workers.Wait()
			if err := <-runErr; err != nil && !isStopErr(err) {
				return err
			}
			return draw()
		case <-ticker.C:
			if !redraw {
				continue
			}
			if err := draw(); err != nil {
				return err
			}
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if !redraw || change.Type != registry.ChangeAdded {
				continue
			}
			if err := draw(); err != nil {
				return err
			}
		}
	}
}

func isStopErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

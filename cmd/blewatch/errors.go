package main

import (
	"errors"
	"fmt"

	"github.com/srg/blewatch/internal/freshness"
	"github.com/srg/blewatch/internal/radio/goble"
	"github.com/srg/blewatch/pkg/config"
)

// Command-level errors
var (
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrInvalidFormat   = errors.New("invalid output format")
)

// FormatUserError turns an error chain into a one-line message with a hint
// for the conditions a user can fix.
func FormatUserError(err error) string {
	var verr *config.ValidationError

	switch {
	case errors.As(err, &verr) && errors.Is(err, freshness.ErrInvalidThresholds):
		return fmt.Sprintf("%v (the current threshold must be positive and not exceed the max age)", verr.Err)
	case errors.As(err, &verr):
		return fmt.Sprintf("invalid %s: %v", verr.Field, verr.Err)
	case errors.Is(err, goble.ErrUnauthorized):
		return "Bluetooth access denied; grant Bluetooth permission to this terminal (or run with the required capabilities)"
	case errors.Is(err, goble.ErrUnsupported):
		return "no usable Bluetooth adapter found"
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off"
	default:
		return err.Error()
	}
}

package goble

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/srg/blewatch/internal/adapter"
)

// Radio errors. They are classified into adapter states rather than
// returned to the core.
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnauthorized = errors.New("bluetooth access is not authorized")
	ErrUnsupported  = errors.New("bluetooth is not supported")
	ErrResetting    = errors.New("bluetooth is resetting")
	ErrNotOpen      = errors.New("radio is not open")
)

// CoreBluetooth reports "central manager has invalid state: have=N want=5";
// N follows CBManagerState, which has the same order as adapter.State.
var invalidStateRe = regexp.MustCompile(`invalid state: have=(\d+)`)

// NormalizeError maps known go-ble error messages to the sentinels above,
// wrapping the original so its text is kept.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrBluetoothOff, ErrUnauthorized, ErrUnsupported, ErrResetting, ErrNotOpen} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	msg := err.Error()
	if m := invalidStateRe.FindStringSubmatch(msg); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			switch adapter.State(n) {
			case adapter.Resetting:
				return fmt.Errorf("%w: %v", ErrResetting, err)
			case adapter.Unsupported:
				return fmt.Errorf("%w: %v", ErrUnsupported, err)
			case adapter.Unauthorized:
				return fmt.Errorf("%w: %v", ErrUnauthorized, err)
			case adapter.PoweredOff:
				return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
			}
		}
	}

	switch {
	case containsIgnoreCase(msg, "bluetooth is turned off"), containsIgnoreCase(msg, "powered off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "operation not permitted"), containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "not authorized"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case containsIgnoreCase(msg, "no devices available"), containsIgnoreCase(msg, "not supported"):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	default:
		return err
	}
}

// StateForError classifies a radio error as the adapter state it implies.
// Unrecognized errors map to Unknown.
func StateForError(err error) adapter.State {
	err = NormalizeError(err)
	switch {
	case err == nil:
		return adapter.PoweredOn
	case errors.Is(err, ErrBluetoothOff):
		return adapter.PoweredOff
	case errors.Is(err, ErrUnauthorized):
		return adapter.Unauthorized
	case errors.Is(err, ErrUnsupported):
		return adapter.Unsupported
	case errors.Is(err, ErrResetting):
		return adapter.Resetting
	default:
		return adapter.Unknown
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

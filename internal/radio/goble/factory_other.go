//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func platformDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: no BLE backend for %s", ErrUnsupported, runtime.GOOS)
}

// Package advert holds the structured subset of a BLE advertisement that the
// registry keeps per device.
package advert

import (
	"encoding/binary"
	"slices"
	"strings"
)

// TxPowerUnavailable is the sentinel radios report when no TX power level was advertised.
const TxPowerUnavailable = 127

const (
	minTxPower = -127
	maxTxPower = 20
)

// Payload is the parsed advertisement data. Fields are extracted once at
// ingest; malformed values are dropped instead of failing the observation.
type Payload struct {
	LocalName        string   `json:"local_name,omitempty"`
	Services         []string `json:"services"`
	ManufacturerData []byte   `json:"manufacturer_data,omitempty"`
	TxPower          *int     `json:"tx_power,omitempty"`
	Connectable      bool     `json:"connectable"`
}

// Fields is the raw input to New. It mirrors what a radio callback hands over.
type Fields struct {
	LocalName        string
	Services         []string
	ManufacturerData []byte
	TxPower          int
	Connectable      bool
}

// New builds a Payload from raw fields:
//   - the local name is trimmed and invalid UTF-8 replaced;
//   - service identifiers are normalized, deduplicated and sorted;
//   - manufacturer data shorter than a company identifier is ignored;
//   - TX power outside the valid range (including 127) is treated as absent.
func New(f Fields) Payload {
	p := Payload{
		LocalName:   strings.TrimSpace(strings.ToValidUTF8(f.LocalName, "�")),
		Services:    NormalizeServices(f.Services),
		Connectable: f.Connectable,
	}
	if len(f.ManufacturerData) >= 2 {
		p.ManufacturerData = slices.Clone(f.ManufacturerData)
	}
	if f.TxPower != TxPowerUnavailable && f.TxPower >= minTxPower && f.TxPower <= maxTxPower {
		tx := f.TxPower
		p.TxPower = &tx
	}
	return p
}

// CompanyID returns the Bluetooth SIG company identifier that prefixes the
// manufacturer data (little endian).
func (p Payload) CompanyID() (uint16, bool) {
	if len(p.ManufacturerData) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(p.ManufacturerData), true
}

// HasService reports whether the payload advertises the given service.
// The argument is normalized before comparison.
func (p Payload) HasService(service string) bool {
	n := NormalizeUUID(service)
	if n == "" {
		return false
	}
	_, found := slices.BinarySearch(p.Services, n)
	return found
}

// Clone returns a deep copy so callers can hold it without sharing slices.
func (p Payload) Clone() Payload {
	c := p
	c.Services = slices.Clone(p.Services)
	if c.Services == nil {
		c.Services = []string{}
	}
	c.ManufacturerData = slices.Clone(p.ManufacturerData)
	if p.TxPower != nil {
		tx := *p.TxPower
		c.TxPower = &tx
	}
	return c
}

package testutils

import (
	"github.com/go-ble/ble"
)

// FakeAdvertisement is a static ble.Advertisement for tests.
type FakeAdvertisement struct {
	Name          string
	Address       string
	Signal        int
	ServiceIDs    []ble.UUID
	Overflow      []ble.UUID
	ManufData     []byte
	SvcData       []ble.ServiceData
	TxPower       int
	IsConnectable bool
}

var _ ble.Advertisement = (*FakeAdvertisement)(nil)

func (a *FakeAdvertisement) LocalName() string { return a.Name }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.ManufData }
func (a *FakeAdvertisement) ServiceData() []ble.ServiceData { return a.SvcData }
func (a *FakeAdvertisement) Services() []ble.UUID { return a.ServiceIDs }
func (a *FakeAdvertisement) OverflowService() []ble.UUID { return a.Overflow }
func (a *FakeAdvertisement) TxPowerLevel() int { return a.TxPower }
func (a *FakeAdvertisement) Connectable() bool { return a.IsConnectable }
func (a *FakeAdvertisement) SolicitedService() []ble.UUID { return nil }
func (a *FakeAdvertisement) RSSI() int { return a.Signal }
func (a *FakeAdvertisement) Addr() ble.Addr { return ble.NewAddr(a.Address) }

// AdvertisementBuilder builds FakeAdvertisement values with a fluent API.
//
//	adv := testutils.NewAdvertisementBuilder().
//	    WithAddress("aa:bb:cc:dd:ee:ff").
//	    WithRSSI(-45).
//	    WithServices("FD6F").
//	    Build()
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

// NewAdvertisementBuilder starts a connectable advertisement without TX power.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{
		TxPower:       127,
		IsConnectable: true,
	}}
}

// WithName sets the local name.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

// WithAddress sets the peer address (used as the device identifier).
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

// WithRSSI sets the signal strength.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Signal = rssi
	return b
}

// WithServices adds service UUIDs in short ("180D") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.ServiceIDs = append(b.adv.ServiceIDs, ble.MustParse(u))
	}
	return b
}

// WithOverflowServices adds UUIDs reported in the overflow area.
func (b *AdvertisementBuilder) WithOverflowServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.Overflow = append(b.adv.Overflow, ble.MustParse(u))
	}
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.ManufData = data
	return b
}

// WithTxPower sets the TX power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.TxPower = power
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnectable = c
	return b
}

// Build returns a copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() ble.Advertisement {
	adv := b.adv
	return &adv
}

package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blewatch/internal/advert"
)

// PayloadFromAdvertisement extracts the fields the registry keeps. Overflow
// services are advertised services too and are merged in.
func PayloadFromAdvertisement(a ble.Advertisement) advert.Payload {
	var services []string
	for _, list := range [][]ble.UUID{a.Services(), a.OverflowService()} {
		for _, u := range list {
			services = append(services, u.String())
		}
	}

	return advert.New(advert.Fields{
		LocalName:        a.LocalName(),
		Services:         services,
		ManufacturerData: a.ManufacturerData(),
		TxPower:          a.TxPowerLevel(),
		Connectable:      a.Connectable(),
	})
}

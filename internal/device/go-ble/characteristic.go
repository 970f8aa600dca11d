package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blestream/internal/device"
)

// BLECharacteristic wraps a discovered *ble.Characteristic.
type BLECharacteristic struct {
	BLEChar *ble.Characteristic
}

func (c *BLECharacteristic) UUID() string {
	return c.BLEChar.UUID.String()
}

func (c *BLECharacteristic) Properties() device.Property {
	return NewProperties(c.BLEChar.Property)
}

// useIndication selects indications only when notifications are not offered.
func (c *BLECharacteristic) useIndication() bool {
	p := c.Properties()
	return !p.Has(device.PropNotify) && p.Has(device.PropIndicate)
}

// characteristicsFromProfile flattens the profile in service then characteristic order.
func characteristicsFromProfile(p *ble.Profile) []device.Characteristic {
	if p == nil {
		return nil
	}
	var out []device.Characteristic
	for _, svc := range p.Services {
		for _, c := range svc.Characteristics {
			out = append(out, &BLECharacteristic{BLEChar: c})
		}
	}
	return out
}

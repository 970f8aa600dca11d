package goble

import (
	"sync"

	"github.com/go-ble/ble"
)

// blePeripheral is a device.Peripheral assembled from advertisements.
// Name and RSSI are refreshed as further advertisements and scan responses arrive.
type blePeripheral struct {
	addr ble.Addr

	mu   sync.RWMutex
	name string
	rssi int
}

func newPeripheral(adv ble.Advertisement) *blePeripheral {
	p := &blePeripheral{addr: adv.Addr()}
	p.update(adv)
	return p
}

// update keeps the last non-empty local name; some peripherals only send it in the scan response.
func (p *blePeripheral) update(adv ble.Advertisement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if name := adv.LocalName(); name != "" {
		p.name = name
	}
	p.rssi = adv.RSSI()
}

func (p *blePeripheral) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *blePeripheral) Address() string { return p.addr.String() }

func (p *blePeripheral) RSSI() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rssi
}

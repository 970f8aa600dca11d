package testutils

import (
	"sync"
	"sync/atomic"

	"github.com/srg/blestream/internal/device"
)

// Characteristic is a static GATT characteristic.
type Characteristic struct {
	ID    string
	Props device.Property
}

func (c Characteristic) UUID() string                { return c.ID }
func (c Characteristic) Properties() device.Property { return c.Props }

// FakeLink is a device.Link driven by the test: fragments are pushed with
// Notify and a remote disconnect is simulated with Drop.
type FakeLink struct {
	peripheral   device.Peripheral
	chars        []device.Characteristic
	subscribeErr error
	replay       [][]byte

	connected   atomic.Bool
	disconnects atomic.Int32

	mu         sync.Mutex
	handler    func([]byte)
	subscribed device.Characteristic
}

func (l *FakeLink) Peripheral() device.Peripheral            { return l.peripheral }
func (l *FakeLink) Characteristics() []device.Characteristic { return l.chars }
func (l *FakeLink) IsConnected() bool                        { return l.connected.Load() }

// Subscribe records the handler. Fragments configured with WithFragments are
// then delivered from a separate goroutine, as a radio callback would.
func (l *FakeLink) Subscribe(c device.Characteristic, handler func([]byte)) error {
	if l.subscribeErr != nil {
		return l.subscribeErr
	}
	l.mu.Lock()
	l.subscribed = c
	l.handler = handler
	replay := l.replay
	l.mu.Unlock()

	if len(replay) > 0 {
		go func() {
			for _, f := range replay {
				handler(f)
			}
		}()
	}
	return nil
}

// Disconnect marks the link down. Every call is counted.
func (l *FakeLink) Disconnect() error {
	l.disconnects.Add(1)
	l.connected.Store(false)
	return nil
}

// Notify delivers data to the subscribed handler. Returns false if nothing is subscribed.
func (l *FakeLink) Notify(data []byte) bool {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Drop simulates the peripheral going away without a local Disconnect.
func (l *FakeLink) Drop() {
	l.connected.Store(false)
}

// Disconnects returns how many times Disconnect was called.
func (l *FakeLink) Disconnects() int {
	return int(l.disconnects.Load())
}

// Subscribed returns the characteristic passed to Subscribe, or nil.
func (l *FakeLink) Subscribed() device.Characteristic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subscribed
}

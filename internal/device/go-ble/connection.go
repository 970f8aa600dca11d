package goble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/device"
	"github.com/srg/blestream/internal/groutine"
)

// BLELink is a device.Link backed by a go-ble client.
type BLELink struct {
	client     ble.Client
	peripheral device.Peripheral
	chars      []device.Characteristic
	logger     *logrus.Logger

	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func newLink(client ble.Client, p device.Peripheral, chars []device.Characteristic, logger *logrus.Logger) *BLELink {
	l := &BLELink{
		client:     client,
		peripheral: p,
		chars:      chars,
		logger:     logger,
		done:       make(chan struct{}),
	}
	l.connected.Store(true)

	// go-ble closes Disconnected() when the controller reports the link is gone.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-link-monitor", func(context.Context) {
			select {
			case <-dc.Disconnected():
				if l.connected.Swap(false) {
					l.logger.WithField("address", p.Address()).Warn("Link reported disconnection")
				}
			case <-l.done:
			}
		})
	} else {
		l.logger.Debug("Client does not support Disconnected() channel")
	}
	return l
}

func (l *BLELink) Peripheral() device.Peripheral { return l.peripheral }

func (l *BLELink) Characteristics() []device.Characteristic { return l.chars }

// Subscribe enables notifications (or indications when that is all c offers) and routes payloads to handler.
func (l *BLELink) Subscribe(c device.Characteristic, handler func(data []byte)) error {
	if !l.IsConnected() {
		return device.ErrNotConnected
	}
	bc, ok := c.(*BLECharacteristic)
	if !ok {
		return fmt.Errorf("%w: characteristic %s does not belong to this link", device.ErrSubscribe, c.UUID())
	}
	if !device.SupportsNotification(bc) {
		return fmt.Errorf("%w: characteristic %s has no notify or indicate property", device.ErrSubscribe, bc.UUID())
	}

	ind := bc.useIndication()
	if err := l.client.Subscribe(bc.BLEChar, ind, func(req []byte) { handler(req) }); err != nil {
		return fmt.Errorf("%w: %s: %w", device.ErrSubscribe, bc.UUID(), NormalizeError(err))
	}

	l.logger.WithFields(logrus.Fields{
		"charUUID":   bc.UUID(),
		"indication": ind,
	}).Info("Successfully subscribed to characteristic notifications")
	return nil
}

func (l *BLELink) IsConnected() bool {
	return l.connected.Load()
}

// Disconnect drops subscriptions and cancels the connection. Safe to call more than once.
func (l *BLELink) Disconnect() error {
	var err error
	l.closeOnce.Do(func() {
		l.connected.Store(false)
		close(l.done)

		if clearErr := l.client.ClearSubscriptions(); clearErr != nil {
			l.logger.WithField("error", clearErr).Debug("Failed to clear subscriptions during disconnect")
		}
		err = NormalizeError(l.client.CancelConnection())
		if err != nil {
			l.logger.WithField("error", err).Warn("BLE device disconnected with errors")
			return
		}
		l.logger.WithField("address", l.peripheral.Address()).Info("BLE device disconnected successfully")
	})
	return err
}

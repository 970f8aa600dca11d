package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultConnectTimeout bounds a single Dial + profile discovery.
const DefaultConnectTimeout = 30 * time.Second

// Radio implements device.Radio on top of a go-ble host device.
type Radio struct {
	dev            hostDevice
	logger         *logrus.Logger
	connectTimeout time.Duration
}

// NewRadio opens the platform BLE adapter.
func NewRadio(logger *logrus.Logger, connectTimeout time.Duration) (*Radio, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	return newRadio(dev, logger, connectTimeout), nil
}

func newRadio(dev hostDevice, logger *logrus.Logger, connectTimeout time.Duration) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Radio{dev: dev, logger: logger, connectTimeout: connectTimeout}
}

// Close releases the adapter.
func (r *Radio) Close() error {
	return NormalizeError(r.dev.Stop())
}

// discovery collects peripherals for one scan window, remembering first-seen order.
// Repeat advertisements hit seen without taking the lock; first sightings are
// recorded in order under mu.
type discovery struct {
	seen  *hashmap.Map[string, *blePeripheral]
	mu    sync.Mutex
	order *orderedmap.OrderedMap[string, *blePeripheral]
}

func newDiscovery() *discovery {
	return &discovery{
		seen:  hashmap.New[string, *blePeripheral](),
		order: orderedmap.New[string, *blePeripheral](),
	}
}

func (d *discovery) handle(adv ble.Advertisement) {
	addr := adv.Addr().String()
	if p, ok := d.seen.Get(addr); ok {
		p.update(adv)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.order.Get(addr); ok {
		p.update(adv)
		return
	}
	p := newPeripheral(adv)
	d.order.Set(addr, p)
	d.seen.Set(addr, p)
}

func (d *discovery) peripherals() []device.Peripheral {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]device.Peripheral, 0, d.order.Len())
	for pair := d.order.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Scan listens for dwell and returns every peripheral heard, in discovery order.
func (r *Radio) Scan(ctx context.Context, dwell time.Duration) ([]device.Peripheral, error) {
	d := newDiscovery()

	scanCtx, cancel := context.WithTimeout(ctx, dwell)
	defer cancel()

	r.logger.WithField("dwell", dwell).Debug("Starting BLE scan...")
	err := r.dev.Scan(scanCtx, true, d.handle)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("scan failed: %w", NormalizeError(err))
	}

	found := d.peripherals()
	r.logger.WithField("device_count", len(found)).Debug("BLE scan completed")
	return found, nil
}

// Connect dials p, discovers its GATT profile and returns the live link.
func (r *Radio) Connect(ctx context.Context, p device.Peripheral) (device.Link, error) {
	addr := ble.NewAddr(p.Address())
	if bp, ok := p.(*blePeripheral); ok {
		addr = bp.addr
	}

	r.logger.WithFields(logrus.Fields{
		"address": p.Address(),
		"timeout": r.connectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	client, err := r.dev.Dial(connCtx, addr)
	if err != nil {
		return nil, &device.ConnectionError{
			State: device.DialFailed,
			Msg:   fmt.Sprintf("address %q", p.Address()),
			Err:   NormalizeError(err),
		}
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			r.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	link := newLink(client, p, characteristicsFromProfile(profile), r.logger)
	r.logger.WithFields(logrus.Fields{
		"address":         p.Address(),
		"characteristics": len(link.chars),
	}).Info("BLE device connected successfully")
	return link, nil
}

package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/srg/blestream/internal/device"
)

// ErrNoLinkQueued is returned by FakeRadio.Connect when no outcome was queued.
var ErrNoLinkQueued = errors.New("no link queued")

type connectOutcome struct {
	link *FakeLink
	err  error
}

// FakeRadio is a device.Radio whose scans return a fixed list and whose
// connections are served, in order, from queued outcomes.
type FakeRadio struct {
	mu       sync.Mutex
	seen     []device.Peripheral
	scanErr  error
	outcomes []connectOutcome
	dialed   []device.Peripheral
	scans    int
	closed   bool
}

// NewFakeRadio creates a radio that hears seen on every scan.
func NewFakeRadio(seen ...device.Peripheral) *FakeRadio {
	return &FakeRadio{seen: seen}
}

// WithScanError makes every scan fail with err.
func (r *FakeRadio) WithScanError(err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanErr = err
	return r
}

// QueueLink makes the next Connect succeed with l.
func (r *FakeRadio) QueueLink(l *FakeLink) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, connectOutcome{link: l})
	return r
}

// QueueConnectError makes the next Connect fail with err.
func (r *FakeRadio) QueueConnectError(err error) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, connectOutcome{err: err})
	return r
}

func (r *FakeRadio) Scan(ctx context.Context, _ time.Duration) ([]device.Peripheral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.seen, r.scanErr
}

func (r *FakeRadio) Connect(ctx context.Context, p device.Peripheral) (device.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialed = append(r.dialed, p)
	if len(r.outcomes) == 0 {
		return nil, ErrNoLinkQueued
	}
	next := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	if next.err != nil {
		return nil, next.err
	}
	if next.link.peripheral == nil {
		next.link.peripheral = p
	}
	return next.link, nil
}

// Close marks the radio released.
func (r *FakeRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Dialed returns the peripherals passed to Connect, in call order.
func (r *FakeRadio) Dialed() []device.Peripheral {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.Peripheral(nil), r.dialed...)
}

// Scans returns how many scans were run.
func (r *FakeRadio) Scans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

// Closed reports whether Close was called.
func (r *FakeRadio) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

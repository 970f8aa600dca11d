// Package scanner finds the configured sensor among advertising peripherals.
package scanner

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/device"
)

// Options configures the discovery loop.
type Options struct {
	Dwell   time.Duration // how long each scan listens for advertisements
	Backoff time.Duration // pause after a scan cycle without a match
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		Dwell:   5 * time.Second,
		Backoff: 30 * time.Second,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	radio  device.Radio
	opts   Options
	logger *logrus.Logger
}

// NewScanner creates a scanner on top of radio.
func NewScanner(radio device.Radio, opts Options, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultOptions()
	if opts.Dwell <= 0 {
		opts.Dwell = def.Dwell
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	return &Scanner{radio: radio, opts: opts, logger: logger}
}

// Discover runs a single scan cycle and returns everything heard.
func (s *Scanner) Discover(ctx context.Context) ([]device.Peripheral, error) {
	return s.radio.Scan(ctx, s.opts.Dwell)
}

// Find blocks until a peripheral whose advertised name contains nameSubstring
// is seen. When several match, the first one discovered in the cycle wins.
// It only returns an error when ctx is done.
func (s *Scanner) Find(ctx context.Context, nameSubstring string) (device.Peripheral, error) {
	log := s.logger.WithField("device", nameSubstring)
	for {
		log.Info("Scanning for device...")

		found, err := s.Discover(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			log.WithError(err).Warn("Scan failed")
		} else if p := Match(found, nameSubstring); p != nil {
			log.WithFields(logrus.Fields{
				"address": p.Address(),
				"name":    p.Name(),
				"rssi":    p.RSSI(),
			}).Info("Found device")
			return p, nil
		}

		log.WithFields(logrus.Fields{
			"seen":  len(found),
			"retry": s.opts.Backoff,
		}).Info("Device not found, retrying")
		if err := Sleep(ctx, s.opts.Backoff); err != nil {
			return nil, err
		}
	}
}

// Match returns the first peripheral whose name contains nameSubstring, or nil.
func Match(peripherals []device.Peripheral, nameSubstring string) device.Peripheral {
	for _, p := range peripherals {
		if name := p.Name(); name != "" && strings.Contains(name, nameSubstring) {
			return p
		}
	}
	return nil
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

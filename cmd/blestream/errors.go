package main

import (
	"errors"
	"strings"

	"github.com/srg/blestream/internal/config"
	"github.com/srg/blestream/internal/device"
)

// formatUserError turns well-known failures into short, actionable messages.
func formatUserError(err error) string {
	var cerr *config.Error
	switch {
	case errors.As(err, &cerr):
		return "configuration:\n  - " + strings.Join(cerr.Problems, "\n  - ")
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, device.ErrNoAdapter):
		return "no Bluetooth adapter found (on Linux the agent needs CAP_NET_ADMIN or root)"
	default:
		return err.Error()
	}
}

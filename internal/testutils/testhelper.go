// Package testutils provides in-memory radios, links and peripherals for
// exercising the agent without Bluetooth hardware.
package testutils

import (
	"io"

	"github.com/sirupsen/logrus"
)

// QuietLogger returns a debug-level logger that writes nowhere.
func QuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // still evaluates every log call
	logger.SetOutput(io.Discard)
	return logger
}

// Peripheral is a static advertising device.
type Peripheral struct {
	LocalName string `json:"name"`
	Addr      string `json:"address"`
	Rssi      int    `json:"rssi"`
}

// NewPeripheral creates a Peripheral.
func NewPeripheral(name, address string, rssi int) Peripheral {
	return Peripheral{LocalName: name, Addr: address, Rssi: rssi}
}

func (p Peripheral) Name() string    { return p.LocalName }
func (p Peripheral) Address() string { return p.Addr }
func (p Peripheral) RSSI() int       { return p.Rssi }

package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string // "peripheral", "characteristic"
	Where    string // peripheral that was searched, if any
}

func (e *NotFoundError) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found on %q", e.Resource, e.Where)
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	DialFailed       ConnectionState = "dial_failed"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
	Err   error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.State)
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", e.State, e.Msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying radio error.
func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrDialFailed       = &ConnectionError{State: DialFailed}
)

// Radio errors
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrNoAdapter    = errors.New("no bluetooth adapter available")
	ErrSubscribe    = errors.New("subscribe failed")
)

// NormalizeError maps known go-ble error strings to the sentinel errors above.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"), containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "no such device"), containsIgnoreCase(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", ErrNoAdapter, err)
	case containsIgnoreCase(msg, "device not connected"), containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Peripheral is an advertising device seen during a scan.
type Peripheral interface {
	Name() string
	Address() string
	RSSI() int
}

// Radio is the host-side adapter: discovery and connection establishment.
type Radio interface {
	// Scan listens for advertisements for the given dwell time and returns
	// the peripherals seen, in the order they were first discovered.
	Scan(ctx context.Context, dwell time.Duration) ([]Peripheral, error)

	// Connect opens a link to p and discovers its GATT profile.
	Connect(ctx context.Context, p Peripheral) (Link, error)
}

// Link is one physical connection to a peripheral. It is never reused once
// disconnected.
type Link interface {
	Peripheral() Peripheral
	Characteristics() []Characteristic
	Subscribe(c Characteristic, handler func(data []byte)) error
	IsConnected() bool
	Disconnect() error
}

// Property is a GATT characteristic property bit set.
type Property uint8

// GATT characteristic property bits.
const (
	PropBroadcast Property = 0x01
	PropRead      Property = 0x02
	PropWriteNR   Property = 0x04
	PropWrite     Property = 0x08
	PropNotify    Property = 0x10
	PropIndicate  Property = 0x20
)

// Has reports whether all bits of f are set.
func (p Property) Has(f Property) bool {
	return p&f == f
}

func (p Property) String() string {
	names := []struct {
		bit  Property
		name string
	}{
		{PropBroadcast, "broadcast"},
		{PropRead, "read"},
		{PropWriteNR, "write-without-response"},
		{PropWrite, "write"},
		{PropNotify, "notify"},
		{PropIndicate, "indicate"},
	}
	var parts []string
	for _, n := range names {
		if p.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// Characteristic is a GATT data endpoint on a connected peripheral.
type Characteristic interface {
	UUID() string
	Properties() Property
}

// SupportsNotification reports whether c can push values via notify or indicate.
func SupportsNotification(c Characteristic) bool {
	p := c.Properties()
	return p.Has(PropNotify) || p.Has(PropIndicate)
}

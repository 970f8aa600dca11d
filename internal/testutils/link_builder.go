package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/blestream/internal/device"
)

// CharacteristicConfig describes a characteristic for LinkBuilder.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,notify"
}

// LinkConfig is the JSON form accepted by LinkBuilder.FromJSON.
type LinkConfig struct {
	Peripheral      *Peripheral            `json:"peripheral,omitempty"`
	Characteristics []CharacteristicConfig `json:"characteristics"`
}

// LinkBuilder builds FakeLink instances.
type LinkBuilder struct {
	config       LinkConfig
	fragments    [][]byte
	subscribeErr error
}

// NewLinkBuilder creates a builder for a connected link without characteristics.
func NewLinkBuilder() *LinkBuilder {
	return &LinkBuilder{}
}

// WithPeripheral sets the peripheral the link belongs to.
func (b *LinkBuilder) WithPeripheral(name, address string, rssi int) *LinkBuilder {
	p := NewPeripheral(name, address, rssi)
	b.config.Peripheral = &p
	return b
}

// WithCharacteristic appends a characteristic in enumeration order.
func (b *LinkBuilder) WithCharacteristic(uuid, properties string) *LinkBuilder {
	b.config.Characteristics = append(b.config.Characteristics, CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// WithFragments makes the link deliver frags right after Subscribe.
func (b *LinkBuilder) WithFragments(frags ...[]byte) *LinkBuilder {
	b.fragments = append(b.fragments, frags...)
	return b
}

// WithSubscribeError makes Subscribe fail with err.
func (b *LinkBuilder) WithSubscribeError(err error) *LinkBuilder {
	b.subscribeErr = err
	return b
}

// FromJSON fills the link configuration from JSON
func (b *LinkBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *LinkBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config LinkConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("LinkBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.config = config
	return b
}

// Build creates the FakeLink. It panics on an unknown property name.
func (b *LinkBuilder) Build() *FakeLink {
	l := &FakeLink{
		subscribeErr: b.subscribeErr,
		replay:       b.fragments,
	}
	if b.config.Peripheral != nil {
		l.peripheral = *b.config.Peripheral
	}
	for _, c := range b.config.Characteristics {
		props, err := ParseProperties(c.Properties)
		if err != nil {
			panic(fmt.Sprintf("LinkBuilder.Build: characteristic %s: %v", c.UUID, err))
		}
		l.chars = append(l.chars, Characteristic{ID: c.UUID, Props: props})
	}
	l.connected.Store(true)
	return l
}

var propertyNames = map[string]device.Property{
	"broadcast":              device.PropBroadcast,
	"read":                   device.PropRead,
	"write-without-response": device.PropWriteNR,
	"write":                  device.PropWrite,
	"notify":                 device.PropNotify,
	"indicate":               device.PropIndicate,
}

// ParseProperties converts a comma-separated list such as "read,notify" to
// property bits, using the names produced by device.Property.String.
func ParseProperties(s string) (device.Property, error) {
	var p device.Property
	if strings.TrimSpace(s) == "" {
		return p, nil
	}
	for _, name := range strings.Split(s, ",") {
		bit, ok := propertyNames[strings.TrimSpace(name)]
		if !ok {
			return 0, fmt.Errorf("unknown property %q", name)
		}
		p |= bit
	}
	return p, nil
}

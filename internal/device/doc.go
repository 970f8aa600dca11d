// Package device defines the radio capabilities the streaming agent relies on:
// discovering advertising peripherals, connecting to one, enumerating its GATT
// characteristics and subscribing to notifications.
//
// The go-ble subpackage provides the hardware-backed implementation.
package device

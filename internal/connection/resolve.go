package connection

import "github.com/srg/blestream/internal/device"

// ResolveCharacteristic returns the first characteristic, in enumeration
// order, that can push values by notify or indicate.
func ResolveCharacteristic(link device.Link) (device.Characteristic, error) {
	for _, c := range link.Characteristics() {
		if device.SupportsNotification(c) {
			return c, nil
		}
	}
	nf := &device.NotFoundError{Resource: "characteristic"}
	if p := link.Peripheral(); p != nil {
		nf.Where = p.Name()
	}
	return nil, nf
}

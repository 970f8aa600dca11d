// Package decode turns raw sample bytes received from the sensor into
// floating point values.
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Width is the number of bytes that encode one sample on the wire.
type Width int

const (
	WidthUint8   Width = 1 // unsigned byte
	WidthUint16  Width = 2 // little-endian unsigned 16-bit integer
	WidthFloat32 Width = 4 // little-endian IEEE-754 single precision
)

var (
	// ErrUnsupportedWidth is matched by every *UnsupportedWidthError via errors.Is.
	ErrUnsupportedWidth = errors.New("unsupported sample width")
	// ErrShortChunk is returned when a chunk does not hold exactly one sample.
	ErrShortChunk = errors.New("chunk length does not match sample width")
)

// UnsupportedWidthError reports a sample width outside {1, 2, 4}.
type UnsupportedWidthError struct {
	Width Width
}

func (e *UnsupportedWidthError) Error() string {
	return fmt.Sprintf("unsupported sample width: %d byte(s), must be 1, 2 or 4", int(e.Width))
}

// Is allows errors.Is(err, ErrUnsupportedWidth).
func (e *UnsupportedWidthError) Is(target error) bool {
	return target == ErrUnsupportedWidth
}

// Validate reports whether w is one of the supported widths.
func (w Width) Validate() error {
	switch w {
	case WidthUint8, WidthUint16, WidthFloat32:
		return nil
	default:
		return &UnsupportedWidthError{Width: w}
	}
}

func (w Width) String() string {
	switch w {
	case WidthUint8:
		return "uint8"
	case WidthUint16:
		return "uint16le"
	case WidthFloat32:
		return "float32le"
	default:
		return fmt.Sprintf("width(%d)", int(w))
	}
}

// Decode interprets chunk as a single sample of the given width.
// Integer encodings are widened; float32 bits are reinterpreted as is.
func Decode(chunk []byte, width Width) (float32, error) {
	if err := width.Validate(); err != nil {
		return 0, err
	}
	if len(chunk) != int(width) {
		return 0, fmt.Errorf("%w: got %d byte(s), want %d", ErrShortChunk, len(chunk), int(width))
	}

	switch width {
	case WidthUint8:
		return float32(chunk[0]), nil
	case WidthUint16:
		return float32(binary.LittleEndian.Uint16(chunk)), nil
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(chunk)), nil
	}
}

// DecodeAll splits data into width-sized chunks and decodes each of them.
// len(data) must be a multiple of width.
func DecodeAll(data []byte, width Width) ([]float32, error) {
	if err := width.Validate(); err != nil {
		return nil, err
	}
	w := int(width)
	if len(data)%w != 0 {
		return nil, fmt.Errorf("%w: %d byte(s) is not a multiple of %d", ErrShortChunk, len(data), w)
	}

	samples := make([]float32, 0, len(data)/w)
	for off := 0; off < len(data); off += w {
		v, err := Decode(data[off:off+w], width)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", off/w, err)
		}
		samples = append(samples, v)
	}
	return samples, nil
}

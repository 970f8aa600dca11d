package decode

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_SupportedWidths(t *testing.T) {
	f := make([]byte, 4)
	binary.LittleEndian.PutUint32(f, math.Float32bits(1.5))

	tests := []struct {
		name  string
		chunk []byte
		width Width
		want  float32
	}{
		{name: "width 1 unsigned byte", chunk: []byte{0xFF}, width: WidthUint8, want: 255},
		{name: "width 1 zero", chunk: []byte{0x00}, width: WidthUint8, want: 0},
		{name: "width 2 little-endian one", chunk: []byte{0x01, 0x00}, width: WidthUint16, want: 1},
		{name: "width 2 little-endian high byte", chunk: []byte{0x00, 0x01}, width: WidthUint16, want: 256},
		{name: "width 2 max", chunk: []byte{0xFF, 0xFF}, width: WidthUint16, want: 65535},
		{name: "width 4 float 1.5", chunk: f, width: WidthFloat32, want: 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.chunk, tt.width)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := Decode(tt.chunk, tt.width)
			require.NoError(t, err)
			assert.Equal(t, got, again, "decode MUST be deterministic")
		})
	}
}

func TestDecode_Float32IsReinterpretedNotWidened(t *testing.T) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(-273.15))

	got, err := Decode(b, WidthFloat32)
	require.NoError(t, err)
	assert.Equal(t, float32(-273.15), got)
}

func TestDecode_UnsupportedWidth(t *testing.T) {
	for _, w := range []Width{0, 3, 8, -1} {
		_, err := Decode([]byte{1, 2, 3}, w)
		require.Error(t, err, "width %d MUST be rejected", w)
		assert.ErrorIs(t, err, ErrUnsupportedWidth)

		var uwErr *UnsupportedWidthError
		require.ErrorAs(t, err, &uwErr)
		assert.Equal(t, w, uwErr.Width)
	}
}

func TestDecode_ChunkLengthMismatch(t *testing.T) {
	_, err := Decode([]byte{0x01}, WidthUint16)
	assert.ErrorIs(t, err, ErrShortChunk)
}

func TestDecodeAll(t *testing.T) {
	got, err := DecodeAll([]byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}, WidthUint16)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, got)

	_, err = DecodeAll([]byte{0x01, 0x00, 0x02}, WidthUint16)
	assert.ErrorIs(t, err, ErrShortChunk)

	_, err = DecodeAll([]byte{0x01}, Width(3))
	assert.ErrorIs(t, err, ErrUnsupportedWidth)
}

func TestWidth_String(t *testing.T) {
	assert.Equal(t, "uint16le", WidthUint16.String())
	assert.Equal(t, "width(3)", Width(3).String())
}

// Package reassembly rebuilds fixed-size sample packets from a stream of
// notification fragments.
//
// Packets are not framed on the wire. A packet is complete as soon as the
// session buffer holds PacketLength*SampleWidth bytes; anything that arrived
// in the same fragment beyond that point is discarded together with the
// flush. Correct output therefore depends on fragments arriving in order and
// on the peripheral aligning packet boundaries with notification boundaries.
package reassembly

import (
	"fmt"
	"time"

	"github.com/srg/blestream/internal/decode"
)

// Packet is one decoded unit of PacketLength samples.
type Packet struct {
	Seq        uint64
	ReceivedAt time.Time
	Samples    []float32
}

// Reassembler holds the immutable packet geometry. Session state lives in Buffer.
type Reassembler struct {
	width        decode.Width
	packetLength int
	threshold    int
	now          func() time.Time
}

// NewReassembler validates the geometry and computes the byte threshold.
func NewReassembler(packetLength int, width decode.Width) (*Reassembler, error) {
	if err := width.Validate(); err != nil {
		return nil, err
	}
	if packetLength < 1 {
		return nil, fmt.Errorf("packet length must be positive, got %d", packetLength)
	}
	return &Reassembler{
		width:        width,
		packetLength: packetLength,
		threshold:    packetLength * int(width),
		now:          time.Now,
	}, nil
}

// Threshold returns the packet size in bytes.
func (r *Reassembler) Threshold() int {
	return r.threshold
}

// PacketLength returns the number of samples per packet.
func (r *Reassembler) PacketLength() int {
	return r.packetLength
}

// Width returns the configured sample width.
func (r *Reassembler) Width() decode.Width {
	return r.width
}

// NewBuffer returns an empty buffer sized for this reassembler.
func (r *Reassembler) NewBuffer() *Buffer {
	return NewBuffer(r.threshold)
}

// OnFragment appends fragment to buf. It returns nil until the threshold is
// reached, then decodes the first Threshold bytes into a Packet and clears buf.
// Bytes beyond the threshold are lost.
func (r *Reassembler) OnFragment(buf *Buffer, fragment []byte) (*Packet, error) {
	if buf.Cap() != r.threshold {
		return nil, fmt.Errorf("buffer capacity %d does not match threshold %d", buf.Cap(), r.threshold)
	}
	if err := buf.append(fragment); err != nil {
		return nil, err
	}
	if !buf.Full() {
		return nil, nil
	}

	raw, err := buf.drain()
	if err != nil {
		return nil, err
	}
	samples, err := decode.DecodeAll(raw, r.width)
	if err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}
	return &Packet{ReceivedAt: r.now(), Samples: samples}, nil
}

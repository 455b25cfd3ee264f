// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"soundloc/internal/geometry"
	applog "soundloc/internal/log"
	"soundloc/internal/transport"
)

// PacketSize is the encoded length of one position packet.
const PacketSize = 4 + 8 + 8 + 1 + 8 + 8

// Packet flags.
const (
	FlagDetected uint8 = 1 << iota // X and Y hold a position.
	FlagInside                     // The position lies within the boundary.
)

// ErrShortPacket is returned when decoding fewer than PacketSize bytes.
var ErrShortPacket = errors.New("udp packet too short")

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Start Sample      | int64          | 8            | First sample of chunk   |
| Flags             | uint8          | 1            | Detected, Inside        |
| X                 | float64        | 8            | Metres, 0 if undetected |
| Y                 | float64        | 8            | Metres, 0 if undetected |
+-----------------------------------------------------------------------------+

Visual Layout:

|<- 4 Bytes ->|<- 8 Bytes ->|<- 8 Bytes ->|<- 1 ->|<- 8 Bytes ->|<- 8 Bytes ->|
+-------------+-------------+-------------+-------+-------------+-------------+
|  Sequence   |  Timestamp  | StartSample | Flags |      X      |      Y      |
|  (uint32)   |   (int64)   |   (int64)   | (u8)  |  (float64)  |  (float64)  |
+-------------+-------------+-------------+-------+-------------+-------------+
*/

// Packet is the decoded form of one datagram.
type Packet struct {
	Sequence    uint32
	Timestamp   int64
	StartSample int64
	Flags       uint8
	X, Y        float64
}

// Detected reports whether the packet carries a position.
func (p Packet) Detected() bool { return p.Flags&FlagDetected != 0 }

// Position returns the position, nil when nothing was detected.
func (p Packet) Position() *geometry.Point {
	if !p.Detected() {
		return nil
	}
	pt := geometry.Pt(p.X, p.Y)
	return &pt
}

// Publisher encodes transport.Fix values into packets and sends them with
// a Sender. It implements transport.Transport.
type Publisher struct {
	sender *Sender
	now    func() time.Time

	mu           sync.Mutex // Guards sequenceNum and packetBuffer.
	sequenceNum  uint32
	packetBuffer *bytes.Buffer
}

// NewPublisher wraps sender.
func NewPublisher(sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	applog.Debugf("UDPPublisher: Publishing to %s", sender.Target())
	return &Publisher{
		sender:       sender,
		now:          time.Now,
		packetBuffer: bytes.NewBuffer(make([]byte, 0, PacketSize)),
	}, nil
}

// Dial creates a Sender for targetAddress and a Publisher on top of it.
func Dial(targetAddress string) (*Publisher, error) {
	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return NewPublisher(sender)
}

// Send encodes and transmits a transport.Fix (or *transport.Fix).
func (p *Publisher) Send(data any) error {
	var fix transport.Fix
	switch v := data.(type) {
	case transport.Fix:
		fix = v
	case *transport.Fix:
		fix = *v
	default:
		return fmt.Errorf("UDPPublisher: unsupported payload %T", data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sequenceNum++
	pkt := Packet{
		Sequence:    p.sequenceNum,
		Timestamp:   p.now().UnixNano(),
		StartSample: int64(fix.StartSample),
	}
	if fix.Position != nil {
		pkt.Flags |= FlagDetected
		pkt.X, pkt.Y = fix.Position.X, fix.Position.Y
	}
	if fix.Inside {
		pkt.Flags |= FlagInside
	}

	p.packetBuffer.Reset()
	if err := binary.Write(p.packetBuffer, binary.BigEndian, pkt); err != nil {
		return fmt.Errorf("UDPPublisher: packing packet %d: %w", pkt.Sequence, err)
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		return err
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", pkt.Sequence, p.packetBuffer.Len())
	return nil
}

// Close closes the underlying sender.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

// DecodePacket parses a datagram produced by Publisher.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d < %d bytes", ErrShortPacket, len(b), PacketSize)
	}
	return Packet{
		Sequence:    binary.BigEndian.Uint32(b[0:4]),
		Timestamp:   int64(binary.BigEndian.Uint64(b[4:12])),
		StartSample: int64(binary.BigEndian.Uint64(b[12:20])),
		Flags:       b[20],
		X:           math.Float64frombits(binary.BigEndian.Uint64(b[21:29])),
		Y:           math.Float64frombits(binary.BigEndian.Uint64(b[29:37])),
	}, nil
}

var _ transport.Transport = (*Publisher)(nil)

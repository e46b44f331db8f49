// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

// Package packet implements the wire format of siridb connections: a fixed
// 16 byte little-endian header followed by the payload. The header carries
// the payload length, a packet id used to correlate requests with responses,
// and a type tag. The framing layer treats id and type as opaque.
package packet

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// HeaderSize is the fixed byte length of the wire header:
// length (8) + pid (4) + type (4).
const HeaderSize = 16

// Client protocol type tags. Only the constants live here, their semantics
// are handled above the framing layer.
const (
	TypeQuery uint32 = iota
	TypeInsert
	TypeAuth
	TypePing
	TypeAuthSuccess
	TypeAuthError
	TypeAck
	TypeError
)

// Header is the decoded form of the fixed-size packet prefix.
type Header struct {
	Length uint64 // payload bytes following the header
	PID    uint32 // correlation token, chosen by the sender
	TP     uint32 // type tag
}

// DecodeHeader reads the three header fields from the front of b. It returns
// an error when b holds fewer than HeaderSize bytes and never reads past
// them.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Errorf("packet: short header: %d of %d bytes", len(b), HeaderSize)
	}
	return Header{
		Length: binary.LittleEndian.Uint64(b[0:8]),
		PID:    binary.LittleEndian.Uint32(b[8:12]),
		TP:     binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// TotalSize is the full byte length of the packet on the wire.
func (h Header) TotalSize() uint64 {
	return HeaderSize + h.Length
}

// EncodeHeader writes h into the first HeaderSize bytes of dst.
func EncodeHeader(h Header, dst []byte) {
	_ = dst[HeaderSize-1]
	binary.LittleEndian.PutUint64(dst[0:8], h.Length)
	binary.LittleEndian.PutUint32(dst[8:12], h.PID)
	binary.LittleEndian.PutUint32(dst[12:16], h.TP)
}

// Packet is one reassembled unit: header plus payload. Packets handed to a
// dispatch callback borrow the connection's buffer; the payload is only
// valid for the duration of the call. Use Copy to retain one.
type Packet struct {
	Header
	Payload []byte
}

// New builds an outgoing packet around payload. The payload is not copied.
func New(pid, tp uint32, payload []byte) *Packet {
	return &Packet{
		Header:  Header{Length: uint64(len(payload)), PID: pid, TP: tp},
		Payload: payload,
	}
}

// Encode serializes the packet for transmission.
func (p *Packet) Encode() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))
	EncodeHeader(p.Header, buf)
	copy(buf[HeaderSize:], p.Payload)
	return buf
}

// Copy returns a packet with its own payload allocation, safe to retain
// after the dispatch callback returned.
func (p *Packet) Copy() *Packet {
	dup := *p
	dup.Payload = make([]byte, len(p.Payload))
	copy(dup.Payload, p.Payload)
	return &dup
}

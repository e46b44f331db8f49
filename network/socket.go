// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"io"
	"net"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	siridb "github.com/db4u/siridb-server"
	"github.com/db4u/siridb-server/packet"
)

// DefaultMaxPacketSize bounds how large a buffer a single connection may ask
// for. Requests beyond it degrade the read and fail the connection with a
// siridb.AllocError.
const DefaultMaxPacketSize = 1 << 30

// DispatchFunc handles one fully reassembled packet. The packet borrows the
// connection's buffer: it is valid only until the callback returns, after
// which the buffer is released regardless of what the callback did. Use
// packet.Copy to retain one.
type DispatchFunc func(s *Socket, pkg *packet.Packet)

// Socket is the per-connection reassembly state. A transport drives it with
// three hooks, strictly in sequence: AllocBuffer to get the destination for
// the next read, OnRead once the read finished, and Close exactly once after
// the transport is done with the connection.
//
// All three must be called from the same goroutine; Socket does no locking
// of its own. Entities reachable through the origin are shared and safe.
type Socket struct {
	role   siridb.SocketRole
	onData DispatchFunc

	// reassembly state. buf is the retained partial packet, nil while idle.
	// n counts the accumulated bytes of the current packet. chunk is the
	// window handed out by the last AllocBuffer call while idle.
	buf   []byte
	n     int
	chunk []byte

	origin siridb.Origin

	maxSize  uint64
	allocErr error

	remote net.Addr
	log    kitlog.Logger
}

// NewSocket creates connection state for one accepted or dialed stream. Role
// and dispatch callback are fixed for the lifetime of the connection.
func NewSocket(role siridb.SocketRole, cb DispatchFunc) *Socket {
	return &Socket{
		role:    role,
		onData:  cb,
		maxSize: DefaultMaxPacketSize,
		log:     kitlog.NewNopLogger(),
	}
}

func (s *Socket) SetLogger(log kitlog.Logger) { s.log = log }

// SetMaxPacketSize adjusts the allocation bound for this connection.
func (s *Socket) SetMaxPacketSize(n uint64) { s.maxSize = n }

// SetRemote records the peer address, used in log lines only.
func (s *Socket) SetRemote(addr net.Addr) { s.remote = addr }

func (s *Socket) Role() siridb.SocketRole { return s.role }

func (s *Socket) RemoteAddr() net.Addr { return s.remote }

// Origin returns the entity this connection is currently associated with.
func (s *Socket) Origin() siridb.Origin { return s.origin }

// SetOrigin associates the connection with an entity, usually once the
// authentication handshake completed. A previously attached origin is
// released first so the connection never holds more than one reference.
func (s *Socket) SetOrigin(o siridb.Origin) {
	s.origin.Release()
	s.origin = o
}

// AllocBuffer returns the destination for the next transport read.
//
// With no packet in progress it hands out a fresh chunk of the suggested
// size. Once enough of the current packet arrived to know its total size,
// the window covers exactly the remaining bytes and never more, so the
// transport cannot read past the packet boundary. While the header is still
// incomplete the window keeps filling the retained chunk.
//
// A zero-length window signals a degraded read: the size bound was exceeded
// and the next OnRead call will surface the AllocError.
func (s *Socket) AllocBuffer(suggested int) []byte {
	if s.buf == nil {
		if uint64(suggested) > s.maxSize {
			s.allocErr = siridb.AllocError{Requested: uint64(suggested), Limit: s.maxSize}
			return nil
		}
		s.chunk = make([]byte, suggested)
		return s.chunk
	}

	if s.n > packet.HeaderSize {
		hdr, err := packet.DecodeHeader(s.buf)
		if err != nil {
			s.allocErr = err
			return nil
		}
		return s.buf[s.n:hdr.TotalSize()]
	}

	if suggested > len(s.buf) {
		suggested = len(s.buf)
	}
	return s.buf[s.n:suggested]
}

// OnRead consumes the result of one transport read into the window returned
// by the previous AllocBuffer call: n newly arrived bytes, or a read error /
// io.EOF. It updates the reassembly state and dispatches every packet that
// completed.
//
// A non-nil return means the connection is finished and the caller must stop
// reading and perform teardown (Close). OnRead itself releases no origin
// state, only the read-side buffers.
func (s *Socket) OnRead(n int, readErr error) error {
	if readErr != nil {
		if !errors.Is(readErr, io.EOF) {
			level.Error(s.log).Log("event", "read error", "err", readErr, "remote", s.remote)
		}
		s.chunk = nil
		return readErr
	}

	if s.allocErr != nil {
		err := s.allocErr
		s.allocErr = nil
		level.Error(s.log).Log("event", "alloc failed", "err", err, "remote", s.remote)
		return err
	}

	if s.buf == nil {
		return s.onIdleRead(n)
	}

	if s.n < packet.HeaderSize {
		s.n += n
		if s.n < packet.HeaderSize {
			return nil // still HeaderPartial
		}
		hdr, err := packet.DecodeHeader(s.buf)
		if err != nil {
			return err
		}
		if total := hdr.TotalSize(); uint64(len(s.buf)) < total {
			if err := s.grow(total); err != nil {
				return err
			}
		}
	} else {
		s.n += n
	}

	return s.finishPacket()
}

// onIdleRead handles a chunk that arrived with no packet in progress.
func (s *Socket) onIdleRead(n int) error {
	chunk := s.chunk
	s.chunk = nil

	if n >= packet.HeaderSize {
		hdr, err := packet.DecodeHeader(chunk[:n])
		if err != nil {
			return err
		}
		total := hdr.TotalSize()

		if uint64(n) == total {
			// exact fit: dispatch straight out of the transient chunk,
			// nothing is carried over
			s.onData(s, &packet.Packet{Header: hdr, Payload: chunk[packet.HeaderSize:n]})
			return nil
		}

		if uint64(n) > total {
			level.Error(s.log).Log("event", "invalid read",
				"msg", "got more bytes than expected, ignore package",
				"pid", hdr.PID, "len", hdr.Length, "tp", hdr.TP, "remote", s.remote)
			return nil
		}

		if uint64(len(chunk)) < total {
			if total > s.maxSize {
				return siridb.AllocError{Requested: total, Limit: s.maxSize}
			}
			grown := make([]byte, total)
			copy(grown, chunk[:n])
			chunk = grown
		}
	}

	s.buf = chunk
	s.n = n
	return nil
}

// finishPacket applies the completion check once the header is known.
func (s *Socket) finishPacket() error {
	hdr, err := packet.DecodeHeader(s.buf)
	if err != nil {
		return err
	}
	total := hdr.TotalSize()

	if uint64(s.n) < total {
		return nil // BodyPartial
	}

	if uint64(s.n) == total {
		s.onData(s, &packet.Packet{Header: hdr, Payload: s.buf[packet.HeaderSize:total]})
	} else {
		level.Error(s.log).Log("event", "invalid read",
			"msg", "got more bytes than expected, ignore package",
			"pid", hdr.PID, "len", hdr.Length, "tp", hdr.TP, "remote", s.remote)
	}

	s.buf = nil
	s.n = 0
	return nil
}

// grow reallocates the retained buffer to exactly total bytes, keeping the
// accumulated prefix. Called at most twice per packet.
func (s *Socket) grow(total uint64) error {
	if total > s.maxSize {
		return siridb.AllocError{Requested: total, Limit: s.maxSize}
	}
	grown := make([]byte, total)
	copy(grown, s.buf[:s.n])
	s.buf = grown
	return nil
}

// Close tears the connection state down: it drops any retained buffer and
// releases the origin reference with the role-specific bookkeeping (see
// siridb.Origin.Release). It must be called exactly once, only after the
// transport confirmed full closure; there is no guard against calling it
// twice.
func (s *Socket) Close() error {
	level.Debug(s.log).Log("event", "free socket", "role", s.role, "remote", s.remote)
	s.buf = nil
	s.chunk = nil
	s.n = 0
	s.origin.Release()
	s.origin = siridb.Origin{}
	return nil
}

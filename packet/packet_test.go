// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeHeaderTooShort(t *testing.T) {
	r := require.New(t)

	for _, n := range []int{0, 1, 8, HeaderSize - 1} {
		_, err := DecodeHeader(make([]byte, n))
		r.Error(err, "%d bytes must not decode", n)
	}
}

func TestHeaderRoundtrip(t *testing.T) {
	r := require.New(t)

	h := Header{Length: 260, PID: 77, TP: TypeInsert}
	buf := make([]byte, HeaderSize)
	EncodeHeader(h, buf)

	got, err := DecodeHeader(buf)
	r.NoError(err)
	r.Equal(h, got)
	r.Equal(uint64(HeaderSize+260), got.TotalSize())
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	r := require.New(t)

	wire := New(12, TypeQuery, []byte("select now()")).Encode()
	wire = append(wire, 0xff, 0xff)

	h, err := DecodeHeader(wire)
	r.NoError(err)
	r.Equal(uint64(12), h.Length)
	r.Equal(uint32(12), h.PID)
	r.Equal(TypeQuery, h.TP)
}

func TestEncode(t *testing.T) {
	r := require.New(t)

	p := New(5, TypePing, nil)
	wire := p.Encode()
	r.Len(wire, HeaderSize)

	p = New(6, TypeInsert, []byte("abc"))
	wire = p.Encode()
	r.Len(wire, HeaderSize+3)
	r.Equal("abc", string(wire[HeaderSize:]))
}

func TestCopyDetachesPayload(t *testing.T) {
	r := require.New(t)

	backing := []byte("mutable")
	p := New(1, TypeQuery, backing)
	dup := p.Copy()

	backing[0] = 'X'
	r.Equal("mutable", string(dup.Payload))
	r.Equal(p.Header, dup.Header)
}

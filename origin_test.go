// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package siridb

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubConn struct{ role SocketRole }

func (c stubConn) Role() SocketRole     { return c.role }
func (c stubConn) RemoteAddr() net.Addr { return nil }

func TestOriginZeroValue(t *testing.T) {
	r := require.New(t)

	var o Origin
	r.False(o.Attached())
	o.Release() // must be a no-op, not a panic
}

func TestClientOriginRefCount(t *testing.T) {
	r := require.New(t)

	u := NewUser("iris", AccessFull)
	r.Equal(int32(1), u.Refcount())

	o := ClientOrigin(u)
	r.True(o.Attached())
	r.Equal(RoleClient, o.Role())
	r.Equal(u, o.User())
	r.Equal(int32(2), u.Refcount())

	o.Release()
	r.Equal(int32(1), u.Refcount())
}

func TestBackendOriginRefCount(t *testing.T) {
	r := require.New(t)

	s := NewServer("peer0", "localhost:9010")
	o := BackendOrigin(s)
	r.Equal(int32(2), s.Refcount())
	r.Equal(s, o.Server())

	// a backend origin leaves conn state and flags alone
	s.AttachConn(stubConn{role: RoleBackend})
	s.SetFlags(FlagRunning)
	o.Release()

	r.Equal(int32(1), s.Refcount())
	r.NotNil(s.Conn())
	r.Equal(FlagRunning, s.Flags())
}

func TestServerOriginReleaseClearsConn(t *testing.T) {
	r := require.New(t)

	s := NewServer("peer1", "localhost:9010")
	s.AttachConn(stubConn{role: RoleServer})
	s.SetFlags(FlagRunning | FlagSynchronizing)

	o := ServerOrigin(s)
	r.Equal(int32(2), s.Refcount())

	o.Release()
	r.Equal(int32(1), s.Refcount())
	r.Nil(s.Conn())
	r.Equal(ServerFlags(0), s.Flags())
}

func TestRoleString(t *testing.T) {
	r := require.New(t)
	r.Equal("client", RoleClient.String())
	r.Equal("backend", RoleBackend.String())
	r.Equal("server", RoleServer.String())
	r.Contains(SocketRole(9).String(), "invalid")
}

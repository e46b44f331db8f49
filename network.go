// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package siridb

import (
	"context"
	"io"
	"net"
	"time"
)

// Network is the listening/dialing side of a server node. Serve accepts
// client and backend connections until the context is done; Connect dials
// another server of the cluster and drives the same per-connection loop.
type Network interface {
	Connect(ctx context.Context, addr net.Addr) error
	Serve(context.Context) error
	GetListenAddr() net.Addr

	GetConnTracker() ConnTracker

	io.Closer
}

// Connection is the read-only view of a live connection that entities may
// hold. A Server keeps one as back-reference while a cluster peer is
// connected to this node.
type Connection interface {
	Role() SocketRole
	RemoteAddr() net.Addr
}

type ConnTracker interface {
	Active(net.Addr) bool
	OnAccept(conn net.Conn) bool
	OnClose(conn net.Conn) time.Duration
	Count() uint
	CloseAll()
}

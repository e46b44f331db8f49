// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package siridb

import "fmt"

// SocketRole classifies a connection. The role is fixed when the connection
// state is created and determines which origin entity the connection may be
// associated with, as well as the bookkeeping performed at teardown.
type SocketRole uint8

const (
	// RoleClient is a connection from a database client. Its origin, once
	// authentication completed, is a User.
	RoleClient SocketRole = iota + 1

	// RoleBackend is a connection dialed to another server of the cluster.
	// Its origin is that Server.
	RoleBackend

	// RoleServer is a connection accepted from another server of the
	// cluster. Its origin is that Server, which also keeps a back-reference
	// to the connection while it is up.
	RoleServer
)

func (r SocketRole) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleBackend:
		return "backend"
	case RoleServer:
		return "server"
	}
	return fmt.Sprintf("invalid role (%d)", uint8(r))
}

// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package siridb

// Origin is the entity a connection acts on behalf of. It is a tagged
// variant: a client connection originates from a User, a backend or server
// connection from a Server. Constructing an origin takes one reference on
// the entity; Release gives it back, exactly once, with the role-specific
// bookkeeping applied.
//
// The zero Origin is valid and means "not attached yet" (a connection before
// authentication); releasing it does nothing.
type Origin struct {
	role   SocketRole
	user   *User
	server *Server
}

// ClientOrigin associates a connection with an authenticated user.
func ClientOrigin(u *User) Origin {
	u.Incref()
	return Origin{role: RoleClient, user: u}
}

// BackendOrigin associates a dialed connection with the cluster peer it
// reaches.
func BackendOrigin(s *Server) Origin {
	s.Incref()
	return Origin{role: RoleBackend, server: s}
}

// ServerOrigin associates an accepted connection with the cluster peer
// behind it.
func ServerOrigin(s *Server) Origin {
	s.Incref()
	return Origin{role: RoleServer, server: s}
}

// Attached reports whether the origin refers to an entity.
func (o Origin) Attached() bool { return o.role != 0 }

// Role returns the role the origin was constructed for.
func (o Origin) Role() SocketRole { return o.role }

// User returns the user entity of a client origin, nil otherwise.
func (o Origin) User() *User { return o.user }

// Server returns the server entity of a backend or server origin, nil otherwise.
func (o Origin) Server() *Server { return o.server }

// Release drops the reference taken at construction. For a server-role
// origin the peer's connection back-reference and flags are cleared first.
func (o Origin) Release() {
	switch o.role {
	case RoleClient:
		o.user.Decref()
	case RoleBackend:
		o.server.Decref()
	case RoleServer:
		o.server.DetachConn()
		o.server.Decref()
	}
}

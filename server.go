// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package siridb

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ServerFlags describe the state of a cluster peer as far as this node knows.
type ServerFlags uint8

const (
	FlagRunning ServerFlags = 1 << iota
	FlagSynchronizing
	FlagReindexing
	FlagBackupMode
	FlagAuthenticated
)

// Server is another node of the cluster. Like User it is refcounted: the
// registry holds one reference and every connection associated with the
// server (dialed or accepted) holds one more.
//
// While a peer is connected to this node, the Server keeps a back-reference
// to that connection together with the connection flags. Both are cleared
// when the connection is torn down.
type Server struct {
	refs int32

	Name    string
	Address string

	mu    sync.Mutex
	conn  Connection
	flags ServerFlags
}

// NewServer returns a server entity with a single reference, held by the creator.
func NewServer(name, address string) *Server {
	return &Server{refs: 1, Name: name, Address: address}
}

func (s *Server) Incref() {
	atomic.AddInt32(&s.refs, 1)
}

func (s *Server) Decref() {
	atomic.AddInt32(&s.refs, -1)
}

// Refcount returns the current number of references.
func (s *Server) Refcount() int32 {
	return atomic.LoadInt32(&s.refs)
}

// AttachConn stores the back-reference to the connection this server is
// currently reachable over.
func (s *Server) AttachConn(c Connection) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

// DetachConn clears the connection back-reference and the connection flags.
func (s *Server) DetachConn() {
	s.mu.Lock()
	s.conn = nil
	s.flags = 0
	s.mu.Unlock()
}

// Conn returns the connection back-reference, nil when the peer is not connected.
func (s *Server) Conn() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Server) Flags() ServerFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

func (s *Server) SetFlags(f ServerFlags) {
	s.mu.Lock()
	s.flags = f
	s.mu.Unlock()
}

func (s *Server) String() string {
	return fmt.Sprintf("server %q (%s)", s.Name, s.Address)
}

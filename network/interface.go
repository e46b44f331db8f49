package network

import (
	"net"
)

// MakeHandler returns the dispatch callback for one freshly accepted or
// dialed connection. Returning an error refuses the connection.
type MakeHandler func(conn net.Conn) (DispatchFunc, error)

// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package network

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	siridb "github.com/db4u/siridb-server"
	"github.com/db4u/siridb-server/internal/testutils"
	"github.com/db4u/siridb-server/packet"
)

type dispatched struct {
	role siridb.SocketRole
	pkg  *packet.Packet
}

func chanHandler(ch chan<- dispatched) MakeHandler {
	return func(conn net.Conn) (DispatchFunc, error) {
		return func(s *Socket, pkg *packet.Packet) {
			ch <- dispatched{role: s.Role(), pkg: pkg.Copy()}
		}, nil
	}
}

func localhostAddr(t *testing.T) *net.TCPAddr {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return addr
}

func awaitDispatch(t *testing.T, ch <-chan dispatched) dispatched {
	select {
	case d := <-ch:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("no packet dispatched in time")
		return dispatched{}
	}
}

func TestServeDispatchesClientPackets(t *testing.T) {
	r := require.New(t)

	ch := make(chan dispatched, 4)
	n, err := New(Options{
		ListenAddr:  localhostAddr(t),
		MakeHandler: chanHandler(ch),
		Logger:      testutils.Quiet(t),
	})
	r.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- n.Serve(ctx) }()

	conn, err := net.Dial("tcp", n.GetListenAddr().String())
	r.NoError(err)

	// write one packet in two raggedy pieces
	wire := packet.New(1, packet.TypeQuery, []byte("select * from /.*/")).Encode()
	_, err = conn.Write(wire[:7])
	r.NoError(err)
	time.Sleep(50 * time.Millisecond)
	_, err = conn.Write(wire[7:])
	r.NoError(err)

	d := awaitDispatch(t, ch)
	r.Equal(siridb.RoleClient, d.role)
	r.Equal(uint32(1), d.pkg.PID)
	r.Equal("select * from /.*/", string(d.pkg.Payload))

	// a second, exact-fit packet on the same connection
	_, err = conn.Write(packet.New(2, packet.TypePing, nil).Encode())
	r.NoError(err)
	d = awaitDispatch(t, ch)
	r.Equal(uint32(2), d.pkg.PID)

	r.NoError(conn.Close())
	cancel()
	r.NoError(n.Close())

	select {
	case err := <-serveErr:
		if err != nil && !strings.Contains(err.Error(), context.Canceled.Error()) {
			t.Errorf("unexpected serve error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("serve did not exit")
	}
}

func TestConnectDispatchesBackendPackets(t *testing.T) {
	r := require.New(t)

	// a bare peer that pushes one packet at whoever dials it
	peer, err := net.Listen("tcp", "127.0.0.1:0")
	r.NoError(err)
	defer peer.Close()
	go func() {
		c, err := peer.Accept()
		if err != nil {
			return
		}
		c.Write(packet.New(9, packet.TypeAck, []byte("pong")).Encode())
		c.Close()
	}()

	ch := make(chan dispatched, 1)
	n, err := New(Options{
		ListenAddr:  localhostAddr(t),
		MakeHandler: chanHandler(ch),
		Logger:      testutils.Quiet(t),
	})
	r.NoError(err)
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.NoError(n.Connect(ctx, peer.Addr()))

	d := awaitDispatch(t, ch)
	r.Equal(siridb.RoleBackend, d.role)
	r.Equal("pong", string(d.pkg.Payload))
}

func TestWebsocketFeedsSameStateMachine(t *testing.T) {
	r := require.New(t)

	ch := make(chan dispatched, 2)
	nw, err := New(Options{
		ListenAddr:  localhostAddr(t),
		MakeHandler: chanHandler(ch),
		Logger:      testutils.Quiet(t),
	})
	r.NoError(err)
	defer nw.Close()

	srv := httptest.NewServer(http.HandlerFunc(websockHandler(nw.(*node))))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	wsc, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	r.NoError(err)
	defer wsc.Close()

	// one packet split across two binary messages, cut inside the header
	wire := packet.New(3, packet.TypeInsert, []byte("ws-series")).Encode()
	r.NoError(wsc.WriteMessage(websocket.BinaryMessage, wire[:11]))
	r.NoError(wsc.WriteMessage(websocket.BinaryMessage, wire[11:]))

	d := awaitDispatch(t, ch)
	r.Equal(siridb.RoleClient, d.role)
	r.Equal("ws-series", string(d.pkg.Payload))

	// two messages may also carry one packet each
	r.NoError(wsc.WriteMessage(websocket.BinaryMessage, packet.New(4, packet.TypePing, nil).Encode()))
	d = awaitDispatch(t, ch)
	r.Equal(uint32(4), d.pkg.PID)
}

package network

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	siridb "github.com/db4u/siridb-server"
)

// websockHandler upgrades requests and runs the regular client connection
// loop over the websocket stream. Each binary websocket message carries an
// arbitrary slice of the packet stream; framing still happens in the socket
// state machine, so packets may span messages and messages may carry several
// packets worth of bytes.
func websockHandler(n *node) http.HandlerFunc {
	var upgrader = websocket.Upgrader{
		ReadBufferSize:  1024 * 4,
		WriteBufferSize: 1024 * 4,
		CheckOrigin: func(_ *http.Request) bool {
			return true
		},
		EnableCompression: false,
	}
	return func(w http.ResponseWriter, req *http.Request) {
		remoteAddr, err := net.ResolveTCPAddr("tcp", req.RemoteAddr)
		if err != nil {
			n.log.Log("warning", "failed to resolve remote", "err", err, "remote", req.RemoteAddr)
			return
		}
		wsConn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			n.log.Log("warning", "failed upgrade", "err", err, "remote", remoteAddr)
			return
		}

		level.Info(n.log).Log("event", "new ws conn", "r", remoteAddr)

		wc := &wrappedConn{
			remote: remoteAddr,
			local:  &net.TCPAddr{Port: DefaultPort},
			wsc:    wsConn,
		}

		n.handleConnection(req.Context(), wc, siridb.RoleClient)
	}
}

// wrappedConn lets the byte-oriented read loop treat a websocket like any
// other stream transport.
type wrappedConn struct {
	remote net.Addr
	local  net.Addr

	r   io.Reader
	wsc *websocket.Conn
}

func (conn *wrappedConn) Read(data []byte) (int, error) {
	if conn.r == nil {
		if err := conn.renewReader(); err != nil {
			return 0, err
		}
	}
	n, err := conn.r.Read(data)
	if err == io.EOF {
		conn.r = nil
		if n > 0 {
			return n, nil
		}
		return conn.Read(data)
	}

	return n, err
}

func (wc *wrappedConn) renewReader() error {
	mt, r, err := wc.wsc.NextReader()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return io.EOF
		}
		return errors.Wrap(err, "wsConn: failed to get reader")
	}

	if mt != websocket.BinaryMessage {
		return errors.Errorf("wsConn: not binary message: %v", mt)
	}
	wc.r = r
	return nil
}

func (conn *wrappedConn) Write(data []byte) (int, error) {
	writeCloser, err := conn.wsc.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return 0, errors.Wrap(err, "wsConn: failed to create writer")
	}

	n, err := io.Copy(writeCloser, bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, "wsConn: failed to copy data")
	}
	return int(n), writeCloser.Close()
}

func (conn *wrappedConn) Close() error {
	return conn.wsc.Close()
}

func (c *wrappedConn) LocalAddr() net.Addr  { return c.local }
func (c *wrappedConn) RemoteAddr() net.Addr { return c.remote }

func (c *wrappedConn) SetDeadline(t time.Time) error {
	if err := c.wsc.SetReadDeadline(t); err != nil {
		return err
	}
	return c.wsc.SetWriteDeadline(t)
}

func (c *wrappedConn) SetReadDeadline(t time.Time) error {
	return c.wsc.SetReadDeadline(t)
}

func (c *wrappedConn) SetWriteDeadline(t time.Time) error {
	return c.wsc.SetWriteDeadline(t)
}

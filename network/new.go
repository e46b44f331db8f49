package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics/prometheus"
	multierror "github.com/hashicorp/go-multierror"
	reuseport "github.com/libp2p/go-reuseport"
	"github.com/pkg/errors"
	luigi "github.com/ssbc/go-luigi"
	"golang.org/x/sync/errgroup"

	siridb "github.com/db4u/siridb-server"
	"github.com/db4u/siridb-server/internal/ctxutils"
)

// DefaultPort is the default client listening port for siridb.
const DefaultPort = 9000

// DefaultReadBufferSize is the chunk size suggested to idle connections.
const DefaultReadBufferSize = 64 * 1024

type Options struct {
	// ListenAddr accepts client connections (RoleClient).
	ListenAddr net.Addr

	// BackendAddr, when set, accepts connections from other servers of the
	// cluster (RoleServer).
	BackendAddr net.Addr

	// WebsocketAddr, when set, serves the client protocol over websocket.
	WebsocketAddr string

	MakeHandler MakeHandler
	Logger      log.Logger

	MaxPacketSize  uint64
	ReadBufferSize int

	Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

	EventCounter *prometheus.Counter
	SystemGauge  *prometheus.Gauge
	Latency      *prometheus.Summary
}

type node struct {
	opts Options

	l           net.Listener
	backendL    net.Listener
	wsSrv       *http.Server
	connTracker siridb.ConnTracker
	log         log.Logger

	dialer  func(ctx context.Context, network, addr string) (net.Conn, error)
	bufSize int
	maxPkg  uint64

	evtCtr   *prometheus.Counter
	sysGauge *prometheus.Gauge
	latency  *prometheus.Summary
}

func New(opts Options) (siridb.Network, error) {
	if opts.MakeHandler == nil {
		return nil, errors.New("network: missing MakeHandler")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	n := &node{
		opts:        opts,
		log:         opts.Logger,
		connTracker: NewConnTracker(opts.Logger),
		bufSize:     opts.ReadBufferSize,
		maxPkg:      opts.MaxPacketSize,
	}

	if n.bufSize <= 0 {
		n.bufSize = DefaultReadBufferSize
	}
	if n.maxPkg == 0 {
		n.maxPkg = DefaultMaxPacketSize
	}

	if opts.Dialer != nil {
		n.dialer = opts.Dialer
	} else {
		var d net.Dialer
		n.dialer = d.DialContext
	}

	var err error
	n.l, err = reuseport.Listen("tcp", opts.ListenAddr.String())
	if err != nil {
		return nil, errors.Wrap(err, "network: error creating client listener")
	}

	if opts.BackendAddr != nil {
		n.backendL, err = reuseport.Listen("tcp", opts.BackendAddr.String())
		if err != nil {
			n.l.Close()
			return nil, errors.Wrap(err, "network: error creating backend listener")
		}
	}

	n.evtCtr = opts.EventCounter
	n.sysGauge = opts.SystemGauge
	n.latency = opts.Latency

	if n.sysGauge != nil {
		n.sysGauge.With("part", "conns").Set(0)
		n.connTracker = NewInstrumentedConnTracker(n.connTracker, n.sysGauge, n.latency)
	}

	level.Info(n.log).Log("event", "listening",
		"addr", n.l.Addr().String(),
		"readbuf", humanize.Bytes(uint64(n.bufSize)),
		"maxpkg", humanize.Bytes(n.maxPkg))

	return n, nil
}

func (n *node) handleConnection(ctx context.Context, conn net.Conn, role siridb.SocketRole) {
	ok := n.connTracker.OnAccept(conn)
	if !ok {
		err := conn.Close()
		n.log.Log("conn", "ignored", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	ctx, cls := ctxutils.WithError(ctx, luigi.EOS{})

	cb, err := n.opts.MakeHandler(conn)
	if err != nil {
		n.connTracker.OnClose(conn)
		conn.Close()
		n.log.Log("conn", "mkHandler", "err", err, "peer", conn.RemoteAddr())
		cls()
		return
	}

	sock := NewSocket(role, cb)
	sock.SetLogger(n.log)
	sock.SetMaxPacketSize(n.maxPkg)
	sock.SetRemote(conn.RemoteAddr())

	defer func() {
		durr := n.connTracker.OnClose(conn)
		err := multierror.Append(
			errors.Wrap(conn.Close(), "direct conn closing"),
			errors.Wrap(sock.Close(), "socket teardown"),
		).ErrorOrNil()
		if err != nil && !strings.Contains(err.Error(), "use of closed") {
			n.log.Log("conn", "closing", "err", err, "durr", fmt.Sprintf("%v", durr))
		}
		cls()
	}()

	if n.evtCtr != nil {
		n.evtCtr.With("event", "connection").Add(1)
	}

	n.readLoop(ctx, conn, sock)
}

// readLoop drives the socket's three hooks in sequence until the connection
// is done. It is the only goroutine touching sock.
func (n *node) readLoop(ctx context.Context, conn net.Conn, sock *Socket) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		window := sock.AllocBuffer(n.bufSize)
		if len(window) == 0 {
			// degraded read, OnRead surfaces the cause
			if err := sock.OnRead(0, nil); err != nil {
				level.Warn(n.log).Log("event", "read degraded", "err", err, "remote", conn.RemoteAddr())
			}
			return
		}

		nread, err := conn.Read(window)
		if nread > 0 {
			if derr := sock.OnRead(nread, nil); derr != nil {
				level.Warn(n.log).Log("event", "conn failed", "err", derr, "remote", conn.RemoteAddr())
				return
			}
		}
		if err != nil {
			sock.OnRead(0, err)
			return
		}
	}
}

func (n *node) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.acceptLoop(ctx, n.l, siridb.RoleClient)
	})

	if n.backendL != nil {
		g.Go(func() error {
			return n.acceptLoop(ctx, n.backendL, siridb.RoleServer)
		})
	}

	if n.opts.WebsocketAddr != "" {
		g.Go(func() error {
			n.wsSrv = &http.Server{
				Addr:    n.opts.WebsocketAddr,
				Handler: websockHandler(n),
			}
			err := n.wsSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "network: websocket listener exited")
		})
	}

	return g.Wait()
}

func (n *node) acceptLoop(ctx context.Context, l net.Listener, role siridb.SocketRole) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		conn, err := l.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				// listener gone, shutting down
				return nil
			}
			n.log.Log("msg", "node/Serve: failed to accept connection", "err", err)
			continue
		}

		go func(c net.Conn) {
			n.handleConnection(ctx, c, role)
		}(conn)
	}
}

// Connect dials another server of the cluster and runs the read loop on the
// resulting backend-role connection.
func (n *node) Connect(ctx context.Context, addr net.Addr) error {
	conn, err := n.dialer(ctx, "tcp", addr.String())
	if err != nil {
		return errors.Wrap(err, "node/connect: error dialing")
	}

	go func(c net.Conn) {
		n.handleConnection(ctx, c, siridb.RoleBackend)
	}(conn)
	return nil
}

func (n *node) GetListenAddr() net.Addr {
	return n.l.Addr()
}

func (n *node) GetConnTracker() siridb.ConnTracker {
	return n.connTracker
}

func (n *node) Close() error {
	var merr *multierror.Error

	if n.wsSrv != nil {
		merr = multierror.Append(merr, n.wsSrv.Close())
	}
	if n.backendL != nil {
		merr = multierror.Append(merr, n.backendL.Close())
	}
	merr = multierror.Append(merr, n.l.Close())

	n.connTracker.CloseAll()

	err := merr.ErrorOrNil()
	if err != nil {
		return errors.Wrap(err, "network: closing down")
	}
	return nil
}

var _ io.Closer = (*node)(nil)

// SPDX-License-Identifier: MIT

// siridb-server accepts client and cluster connections and feeds every
// reassembled packet to the request handler.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/log/term"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"

	siridb "github.com/db4u/siridb-server"
	config "github.com/db4u/siridb-server/internal/config-reader"
	"github.com/db4u/siridb-server/network"
	"github.com/db4u/siridb-server/packet"
	"github.com/db4u/siridb-server/userstore"
)

// Version and Build are set by ldflags
var (
	Version = "snapshot"
	Build   = ""
)

var log kitlog.Logger

func colorFn(keyvals ...interface{}) term.FgBgColor {
	for i := 0; i < len(keyvals)-1; i += 2 {
		if keyvals[i] != "level" {
			continue
		}
		switch fmt.Sprint(keyvals[i+1]) {
		case "debug":
			return term.FgBgColor{Fg: term.Gray}
		case "warn":
			return term.FgBgColor{Fg: term.Yellow}
		case "error":
			return term.FgBgColor{Fg: term.Red}
		}
	}
	return term.FgBgColor{}
}

var app = cli.App{
	Name:    "siridb-server",
	Usage:   "time series database server",
	Version: "alpha1",

	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Value: "siridb.toml", Usage: "path to the server config file"},
		&cli.StringFlag{Name: "lis", Value: fmt.Sprintf(":%d", network.DefaultPort), Usage: "client listen address"},
		&cli.StringFlag{Name: "backendlis", Value: "", Usage: "server-to-server listen address"},
		&cli.StringFlag{Name: "wslis", Value: "", Usage: "websocket listen address"},
		&cli.StringFlag{Name: "debuglis", Value: "localhost:6078", Usage: "metrics endpoint address, empty to disable"},
		&cli.UintFlag{Name: "maxpkgsize", Value: 0, Usage: "largest accepted packet in bytes (0 = default)"},
		&cli.UintFlag{Name: "readbuf", Value: 0, Usage: "read buffer size in bytes (0 = default)"},
		&cli.StringFlag{Name: "userdb", Value: "", Usage: "path of the user database (empty = in memory)"},
		&cli.BoolFlag{Name: "debug", Usage: "print debug level log messages"},
	},

	Action: runServer,
}

func main() {
	log = term.NewColorLogger(os.Stderr, kitlog.NewLogfmtLogger, colorFn)

	if Version != "snapshot" {
		app.Version = fmt.Sprintf("%s (build: %s)", Version, Build)
	}

	if err := app.Run(os.Args); err != nil {
		level.Error(log).Log("event", "run exited", "err", err)
		os.Exit(1)
	}
}

// mergeConfig lets the config file fill in every flag the user did not pass
// on the command line.
func mergeConfig(c *cli.Context, cfg config.ServerConfig) {
	maybe := func(flag, val string) {
		if !c.IsSet(flag) && cfg.Has(flag) {
			c.Set(flag, val)
		}
	}
	maybe("lis", cfg.ListenAddress)
	maybe("backendlis", cfg.BackendAddress)
	maybe("wslis", cfg.WebsocketAddress)
	maybe("debuglis", cfg.MetricsAddress)
	maybe("userdb", cfg.UserDBPath)
	maybe("maxpkgsize", fmt.Sprint(cfg.MaxPacketSize))
	maybe("readbuf", fmt.Sprint(cfg.ReadBufferSize))
	if !c.IsSet("debug") && cfg.Has("debug") {
		c.Set("debug", fmt.Sprint(bool(cfg.Debug)))
	}
}

func runServer(c *cli.Context) error {
	if cfg, ok := config.ReadConfigServer(c.String("config")); ok {
		mergeConfig(c, cfg)
	}

	if !c.Bool("debug") {
		log = level.NewFilter(log, level.AllowInfo())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	users, err := userstore.Open(c.String("userdb"))
	if err != nil {
		return err
	}
	defer users.Close()

	if err := users.EnsureDefault(); err != nil {
		return err
	}

	laddr, err := net.ResolveTCPAddr("tcp", c.String("lis"))
	if err != nil {
		return errors.Wrap(err, "invalid client listen address")
	}

	opts := network.Options{
		ListenAddr:     laddr,
		WebsocketAddr:  c.String("wslis"),
		Logger:         log,
		MaxPacketSize:  uint64(c.Uint("maxpkgsize")),
		ReadBufferSize: int(c.Uint("readbuf")),
		MakeHandler:    makeHandler(users),
	}

	if backend := c.String("backendlis"); backend != "" {
		opts.BackendAddr, err = net.ResolveTCPAddr("tcp", backend)
		if err != nil {
			return errors.Wrap(err, "invalid backend listen address")
		}
	}

	if debugLis := c.String("debuglis"); debugLis != "" {
		opts.EventCounter = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: "siridb", Subsystem: "network", Name: "events_total",
			Help: "number of network events",
		}, []string{"event"})
		opts.SystemGauge = kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: "siridb", Subsystem: "network", Name: "system",
			Help: "connection gauges",
		}, []string{"part"})
		opts.Latency = kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
			Namespace: "siridb", Subsystem: "network", Name: "durration_seconds",
			Help: "connection durations",
		}, []string{"part"})

		go func() {
			level.Debug(log).Log("event", "metrics listening", "addr", debugLis)
			err := http.ListenAndServe(debugLis, promhttp.Handler())
			level.Error(log).Log("event", "metrics exited", "err", err)
		}()
	}

	node, err := network.New(opts)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		level.Info(log).Log("event", "shutting down", "signal", sig.String())
		cancel()
		node.Close()
	}()

	err = node.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// makeHandler builds the per-connection dispatcher. It answers pings and
// authentication requests; everything else is acknowledged with an error
// packet until the query layer lands.
func makeHandler(users *userstore.Store) network.MakeHandler {
	return func(conn net.Conn) (network.DispatchFunc, error) {
		return func(s *network.Socket, pkg *packet.Packet) {
			switch pkg.TP {
			case packet.TypePing:
				reply(conn, pkg.PID, packet.TypeAck, nil)

			case packet.TypeAuth:
				// payload is just the account name for now
				user, err := users.User(string(pkg.Payload))
				if err != nil {
					level.Warn(log).Log("event", "auth failed", "err", err, "remote", conn.RemoteAddr())
					reply(conn, pkg.PID, packet.TypeAuthError, nil)
					return
				}
				s.SetOrigin(siridb.ClientOrigin(user))
				reply(conn, pkg.PID, packet.TypeAuthSuccess, nil)

			default:
				level.Debug(log).Log("event", "unhandled package",
					"pid", pkg.PID, "tp", pkg.TP, "len", pkg.Length)
				reply(conn, pkg.PID, packet.TypeError, nil)
			}
		}, nil
	}
}

func reply(conn net.Conn, pid, tp uint32, payload []byte) {
	if _, err := conn.Write(packet.New(pid, tp, payload).Encode()); err != nil {
		level.Warn(log).Log("event", "write failed", "err", err, "remote", conn.RemoteAddr())
	}
}

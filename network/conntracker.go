package network

import (
	"net"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"

	siridb "github.com/db4u/siridb-server"
)

// a single peer host gets at most this many simultaneous connections
const maxConnsPerHost = 4

type instrumentedConnTracker struct {
	root siridb.ConnTracker

	count     metrics.Gauge
	durration metrics.Histogram
}

func NewInstrumentedConnTracker(r siridb.ConnTracker, ct metrics.Gauge, h metrics.Histogram) siridb.ConnTracker {
	i := instrumentedConnTracker{root: r, count: ct, durration: h}
	return &i
}

func (ict instrumentedConnTracker) Count() uint {
	n := ict.root.Count()
	ict.count.With("part", "tracked_count").Set(float64(n))
	return n
}

func (ict instrumentedConnTracker) CloseAll() {
	ict.root.CloseAll()
}

func (ict instrumentedConnTracker) Active(a net.Addr) bool {
	return ict.root.Active(a)
}

func (ict instrumentedConnTracker) OnAccept(conn net.Conn) bool {
	ok := ict.root.OnAccept(conn)
	if ok {
		ict.count.With("part", "tracked_conns").Add(1)
	}
	return ok
}

func (ict instrumentedConnTracker) OnClose(conn net.Conn) time.Duration {
	durr := ict.root.OnClose(conn)
	if durr > 0 {
		ict.count.With("part", "tracked_conns").Add(-1)
		ict.durration.With("part", "tracked_conns").Observe(durr.Seconds())
	}
	return durr
}

type connEntry struct {
	c       net.Conn
	started time.Time
}

// remote host -> local addr -> entry
type connLookupMap map[string]map[string]connEntry

func NewConnTracker(log log.Logger) siridb.ConnTracker {
	return &connTracker{active: make(connLookupMap), log: log}
}

// tracks open connections per remote host and refuses hosts that already
// have too many
type connTracker struct {
	activeLock sync.Mutex
	active     connLookupMap
	log        log.Logger
}

func (ct *connTracker) CloseAll() {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()
	for k, conns := range ct.active {
		for _, c := range conns {
			if err := c.c.Close(); err != nil {
				ct.log.Log("event", "failed to close", "host", k, "err", err)
			}
		}
	}
}

func (ct *connTracker) Count() uint {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()
	return uint(len(ct.active))
}

func toActive(a net.Addr) string {
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	return host
}

func (ct *connTracker) Active(a net.Addr) bool {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()
	k := toActive(a)
	_, ok := ct.active[k]
	return ok
}

func (ct *connTracker) OnAccept(conn net.Conn) bool {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()
	k := toActive(conn.RemoteAddr())
	conns, ok := ct.active[k]
	if !ok {
		ct.active[k] = make(map[string]connEntry)
	}
	if len(conns) >= maxConnsPerHost {
		return false
	}
	ct.active[k][conn.LocalAddr().String()] = connEntry{
		c:       conn,
		started: time.Now(),
	}
	return true
}

func (ct *connTracker) OnClose(conn net.Conn) time.Duration {
	ct.activeLock.Lock()
	defer ct.activeLock.Unlock()

	k := toActive(conn.RemoteAddr())
	conns, ok := ct.active[k]
	if !ok {
		return 0
	}

	lkey := conn.LocalAddr().String()
	who, ok := conns[lkey]
	if !ok {
		return 0
	}
	delete(conns, lkey)
	if len(conns) == 0 {
		delete(ct.active, k)
	}

	return time.Since(who.started)
}

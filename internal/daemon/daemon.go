// Package daemon wires the protocol engine packages (lsdb, neighbor, iface,
// spf, rt, fib) into a running OSPFv2 router: it owns every timer and
// goroutine the FSM packages themselves stay free of, drives packet I/O
// over *ospf.Conn, and exposes the operator-facing Queryable surface.
//
// Concurrency follows spec section 5's two-lock discipline: each Interface
// has its own lock (held by internal/iface), and the Daemon additionally
// guards its own fields (areas, routing table, ASBR bookkeeping) with a
// single process-global mutex. Any goroutine that must mutate more than
// one interface releases whichever interface lock it holds and instead
// calls lockAll, which acquires every interface lock in a fixed order
// before the caller touches cross-interface state.
package daemon

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/config"
	"github.com/ospfd/ospfd/internal/fib"
	"github.com/ospfd/ospfd/internal/iface"
	"github.com/ospfd/ospfd/internal/lsdb"
	"github.com/ospfd/ospfd/internal/neighbor"
	"github.com/ospfd/ospfd/internal/ospferr"
	"github.com/ospfd/ospfd/internal/rt"
	"github.com/ospfd/ospfd/internal/spf"
)

// transport lists the socket operations a per-interface runtime performs.
// Nothing implements it: runtimeIface holds a concrete *ospf.Conn, whose
// ReadFrom returns *ipv4.ControlMessage rather than *ipv4ControlMessage.
type transport interface {
	ReadFrom() (ospf.Packet, *ipv4ControlMessage, *net.IPAddr, error)
	WriteTo(p ospf.Packet, dst *net.IPAddr) error
	Close() error
}

// ipv4ControlMessage is a local alias so this file does not need to import
// golang.org/x/net/ipv4 solely for the transport interface's signature.
// It is a distinct type from ipv4.ControlMessage.
type ipv4ControlMessage = struct{ IfIndex int }

// runtimeIface bundles the protocol-engine *iface.Interface with the
// daemon-owned resources it does not carry itself: the raw socket, the
// per-neighbor/per-interface goroutine cancel handles, and the capture
// channel that preserves receive order (spec section 5).
type runtimeIface struct {
	fsm  *iface.Interface
	conn *ospf.Conn

	helloCancel context.CancelFunc
	waitCancel  context.CancelFunc

	recv chan recvPacket

	// ddCancel/lsrCancel are keyed by neighbor IP, one retransmit chain
	// each, matching the Rust source's per-neighbor abort handles.
	mu        sync.Mutex
	ddCancel  map[ospf.ID]context.CancelFunc
	lsrCancel map[ospf.ID]context.CancelFunc
}

// recvPacket is one decoded packet handed from a capture goroutine to its
// owning interface's own goroutine.
type recvPacket struct {
	pkt ospf.Packet
	src net.IP
}

// area bundles one area's LSDB table with the SPF tree last computed for
// it.
type area struct {
	id    ospf.ID
	stub  bool
	extRt bool
	lsas  *lsdb.Table
	tree  *spf.Tree
}

// Daemon is the running OSPF router: every interface it speaks on, the
// link-state database, the routing table, and the kernel FIB adapter it
// reconciles routes into.
type Daemon struct {
	log      *zap.Logger
	routerID ospf.ID

	mu         sync.Mutex
	interfaces map[string]*runtimeIface
	areas      map[ospf.ID]*area
	db         *lsdb.DB
	routes     *rt.Table
	extRoutes  []rt.ExternalRoute
	fibTable   fib.FIB

	// originLimiters enforces MinLSInterval per LSA: a self-originated
	// instance can be rebuilt from local state far more often than RFC
	// 2328 section 12.4 allows it to actually be re-sent.
	originLimiters   map[lsdb.Key]*rate.Limiter
	originLimitersMu sync.Mutex

	metrics *metrics
}

// New constructs a Daemon from cfg. Interfaces are registered but left in
// the Down state; call Run to bring them up and start serving.
func New(cfg *config.Config, f fib.FIB, log *zap.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{
		log:            log,
		routerID:       cfg.ID(),
		interfaces:     make(map[string]*runtimeIface),
		areas:          make(map[ospf.ID]*area),
		routes:         rt.New(),
		fibTable:       f,
		originLimiters: make(map[lsdb.Key]*rate.Limiter),
		metrics:        newMetrics(),
	}
	d.db = lsdb.NewDB(d.onExternalRefresh)

	for _, a := range cfg.Areas {
		id := a.AreaID()
		d.areas[id] = &area{
			id:    id,
			stub:  a.Stub,
			extRt: a.ExternalRoutingCapability,
			lsas:  d.db.AddArea(id, d.onAreaRefresh(id)),
		}
	}

	for _, ic := range cfg.Interfaces {
		areaID := ic.InterfaceAreaID()
		if _, ok := d.areas[areaID]; !ok {
			return nil, fmt.Errorf("daemon: interface %q references unregistered area %s", ic.Name, areaID)
		}

		netIfi, err := net.InterfaceByName(ic.Name)
		if err != nil {
			return nil, fmt.Errorf("daemon: look up interface %q: %w", ic.Name, err)
		}
		addr, mask, err := interfaceIPv4(netIfi)
		if err != nil {
			return nil, fmt.Errorf("daemon: interface %q: %w", ic.Name, err)
		}

		fsm := iface.New(ic.Name, addr, mask, areaID, ic.Priority)
		if ic.Cost > 0 {
			fsm.Cost = ic.Cost
		}
		if ic.HelloInterval > 0 {
			fsm.HelloInterval = ic.HelloInterval
		}
		if ic.DeadInterval > 0 {
			fsm.DeadInterval = ic.DeadInterval
		}
		if ic.RxmtInterval > 0 {
			fsm.RxmtInterval = ic.RxmtInterval
		}
		if ic.InfTransDelay > 0 {
			fsm.InfTransDelay = ic.InfTransDelay
		}
		fsm.ExternalRouting = d.areas[areaID].extRt

		d.interfaces[ic.Name] = &runtimeIface{
			fsm:       fsm,
			recv:      make(chan recvPacket, 64),
			ddCancel:  make(map[ospf.ID]context.CancelFunc),
			lsrCancel: make(map[ospf.ID]context.CancelFunc),
		}
	}

	return d, nil
}

// interfaceIPv4 extracts the first IPv4 address and its mask from a
// system network interface.
func interfaceIPv4(ifi *net.Interface) (ospf.ID, net.IPMask, error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return ospf.ID{}, nil, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		v4 := ipnet.IP.To4()
		if v4 == nil {
			continue
		}
		var id ospf.ID
		copy(id[:], v4)
		return id, ipnet.Mask, nil
	}
	return ospf.ID{}, nil, fmt.Errorf("no IPv4 address configured")
}

// netTypeOf derives a neighbor.NetType from the kernel's interface flags;
// spec's non-goals keep this detection thin (no NBMA poll-interval
// modeling), so anything not flagged point-to-point is treated as
// Broadcast.
func netTypeOf(flags net.Flags) neighbor.NetType {
	if flags&net.FlagPointToPoint != 0 {
		return neighbor.PointToPoint
	}
	return neighbor.Broadcast
}

// InterfacesGuard is the "upgrade" lock path spec section 5 describes: a
// coroutine that must mutate more than one interface releases whichever
// single interface lock it held, then calls lockAll to acquire every
// interface's lock in a fixed (IP-ascending) order before touching
// cross-interface state. Me names the interface the operation originated
// on, if any.
type InterfacesGuard struct {
	Interfaces []*runtimeIface
	Me         *runtimeIface
}

// lockAll acquires every interface's FSM lock in ascending IP order and
// returns a guard plus an unlock closure. meName, if non-empty, must name
// one of the daemon's interfaces; Guard.Me is set to it.
func (d *Daemon) lockAll(meName string) (*InterfacesGuard, func()) {
	d.mu.Lock()
	all := make([]*runtimeIface, 0, len(d.interfaces))
	for _, ri := range d.interfaces {
		all = append(all, ri)
	}
	d.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].fsm.Addr, all[j].fsm.Addr
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})

	for _, ri := range all {
		ri.fsm.Lock()
	}

	g := &InterfacesGuard{Interfaces: all}
	if meName != "" {
		if ri, ok := d.interfaces[meName]; ok {
			g.Me = ri
		}
	}

	return g, func() {
		for _, ri := range all {
			ri.fsm.Unlock()
		}
	}
}

// Run brings every configured interface up and serves until ctx is
// canceled or an InternalInvariantViolation occurs, at which point it
// propagates out of the errgroup per spec section 7.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for name, ri := range d.interfaces {
		name, ri := name, ri
		g.Go(func() error { return d.runInterface(ctx, name, ri) })
	}

	g.Go(func() error { return d.runRefreshLoop(ctx) })

	return g.Wait()
}

// runRefreshLoop periodically re-originates this router's Router-LSA even
// absent a topology change, satisfying the LSRefreshTime upper bound spec
// section 4.5 requires.
func (d *Daemon) runRefreshLoop(ctx context.Context) error {
	t := time.NewTicker(ospf.LSRefreshTime)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			d.regenerateRouterLSAs()
		}
	}
}

// fatal wraps err as an InternalInvariantViolation and logs it; callers in
// goroutines that cannot return an error to Run funnel through here and
// then return the wrapped error so the owning errgroup sees it.
func (d *Daemon) fatal(msg string, err error) error {
	wrapped := &ospferr.InternalInvariantViolation{Err: fmt.Errorf("%s: %w", msg, err)}
	d.log.Error("internal invariant violation", zap.Error(wrapped))
	return wrapped
}

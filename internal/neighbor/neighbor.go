// Package neighbor implements the eight-state OSPF neighbor finite state
// machine (RFC 2328 section 10) and the adjacency bookkeeping it drives:
// the LS retransmission list, the database summary list, and the LS
// request list. The FSM here is deliberately free of I/O and timers — it
// is a pure function of (state, event) to the next state plus a
// description of which side effects the caller (internal/daemon) owes as a
// result, so it can be tested in isolation against the RFC's transition
// table without a running network.
package neighbor

import (
	"sync"
	"time"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/lsdb"
)

// A State is one of the eight neighbor states from RFC 2328 section 10.1,
// ordered so that State comparison operators implement the "≥ TwoWay"
// style conditions the RFC's transition table uses.
type State int

const (
	Down State = iota
	Attempt
	Init
	TwoWay
	ExStart
	Exchange
	Loading
	Full
)

func (s State) String() string {
	switch s {
	case Down:
		return "Down"
	case Attempt:
		return "Attempt"
	case Init:
		return "Init"
	case TwoWay:
		return "TwoWay"
	case ExStart:
		return "ExStart"
	case Exchange:
		return "Exchange"
	case Loading:
		return "Loading"
	case Full:
		return "Full"
	default:
		return "State(invalid)"
	}
}

// An Event is one of the thirteen neighbor events from RFC 2328 section
// 10.3.
type Event int

const (
	HelloReceived Event = iota
	Start
	TwoWayReceived
	NegotiationDone
	ExchangeDone
	BadLSReq
	LoadingDone
	AdjOK
	SeqNumberMismatch
	OneWayReceived
	KillNbr
	InactivityTimer
	LLDown
)

// NetType mirrors the interface network types that matter to the
// adjacency-needed decision (RFC 2328 section 10.4). It is redeclared here
// rather than imported from internal/iface to keep this package free of
// any dependency on the interface engine: iface depends on neighbor, not
// the other way around.
type NetType int

const (
	Broadcast NetType = iota
	NBMA
	PointToPoint
	PointToMultipoint
	Virtual
)

// AdjacencyContext carries the interface-derived facts the FSM needs to
// decide whether an adjacency should form, without neighbor holding a
// pointer to the owning interface.
type AdjacencyContext struct {
	NetType  NetType
	SelfIsDR bool
	SelfIsBDR bool
}

// A DDCache remembers the last Database Description exchange parameters,
// used to detect and answer duplicate DD packets from the peer.
type DDCache struct {
	Seq uint32
	I, M, MS bool
}

// A Neighbor is this router's view of one OSPF neighbor: its negotiated
// identity, its FSM state, and the three adjacency-formation lists RFC
// 2328 section 10 defines. The zero value is not usable; construct with
// New.
type Neighbor struct {
	mu sync.Mutex

	RouterID ospf.ID
	IP       ospf.ID // neighbor's IPv4 address, reusing the 4-byte ID type
	Priority uint8
	Options  ospf.Options
	DR, BDR  ospf.ID

	State  State
	Master bool
	DDSeq  uint32
	DDLast DDCache

	lsRetransmission map[lsdb.Key]struct{}
	dbSummary        []ospf.LSAHeader
	lsRequest        []ospf.LSAHeader

	InactiveTimer *time.Timer
}

// New returns a Neighbor in the Down state for the peer identified by
// routerID/ip.
func New(routerID ospf.ID, ip ospf.ID, priority uint8) *Neighbor {
	return &Neighbor{
		RouterID:         routerID,
		IP:               ip,
		Priority:         priority,
		State:            Down,
		lsRetransmission: make(map[lsdb.Key]struct{}),
	}
}

// IsDR reports whether this neighbor's last Hello declared itself the
// Designated Router.
func (n *Neighbor) IsDR() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.DR == n.IP
}

// IsBDR reports whether this neighbor's last Hello declared itself the
// Backup Designated Router.
func (n *Neighbor) IsBDR() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.BDR == n.IP
}

// AdjacencyNeeded implements the "adjacency needed" test from RFC 2328
// section 10.4: always true on point-to-point, point-to-multipoint, and
// virtual links; on broadcast/NBMA links, true only if this router or the
// neighbor is DR or BDR. It reads n's fields without taking n.mu, since
// Dispatch calls it with n.mu already held.
func (n *Neighbor) AdjacencyNeeded(ctx AdjacencyContext) bool {
	switch ctx.NetType {
	case PointToPoint, PointToMultipoint, Virtual:
		return true
	}
	return ctx.SelfIsDR || ctx.SelfIsBDR || n.DR == n.IP || n.BDR == n.IP
}

// A Result describes a Dispatch call's outcome: the state transition that
// occurred and which side effects (owned by internal/daemon, which holds
// the timers and the transport) the caller must now perform.
type Result struct {
	From, To State

	// ResetInactivity is true when the caller must (re)arm the
	// RouterDeadInterval inactivity timer.
	ResetInactivity bool

	// ListsCleared is true when Dispatch reset the adjacency lists
	// (ls_retransmission_list, db_summary_list, ls_request_list) as a
	// side effect of the transition.
	ListsCleared bool

	// EnterExStart is true when the caller must begin (or restart) the
	// ExStart negotiation: choose dd_seq, set Master false, and start
	// sending empty DD(I=M=MS=1) packets every RxmtInterval.
	EnterExStart bool

	// FillSummaryList is true when the caller must populate the
	// neighbor's database summary list from the LSDB (NegotiationDone).
	FillSummaryList bool

	// BeginLoading is true when the caller must start (or the list was
	// already nonempty and loading continues) the LS request loop.
	BeginLoading bool
}

// reset clears the three adjacency lists, matching RFC 2328's requirement
// that tearing down past TwoWay discards in-flight exchange state.
func (n *Neighbor) reset() {
	n.lsRetransmission = make(map[lsdb.Key]struct{})
	n.dbSummary = nil
	n.lsRequest = nil
}

// Dispatch advances the FSM by event and returns the resulting transition
// and owed side effects. Event/state combinations RFC 2328's table does
// not mention are no-ops: the function is total, but an unspecified event
// simply leaves the state unchanged.
func (n *Neighbor) Dispatch(event Event, ctx AdjacencyContext) Result {
	n.mu.Lock()
	defer n.mu.Unlock()

	from := n.State
	r := Result{From: from, To: from}

	switch event {
	case HelloReceived:
		if n.State <= Attempt {
			n.State = Init
		}
		r.ResetInactivity = true

	case TwoWayReceived:
		if n.State != Init {
			break
		}
		if n.AdjacencyNeeded(ctx) {
			n.State = ExStart
			r.EnterExStart = true
		} else {
			n.State = TwoWay
		}

	case NegotiationDone:
		if n.State != ExStart {
			break
		}
		n.State = Exchange
		r.FillSummaryList = true

	case ExchangeDone:
		if n.State != Exchange {
			break
		}
		if len(n.lsRequest) == 0 {
			n.State = Full
		} else {
			n.State = Loading
			r.BeginLoading = true
		}

	case LoadingDone:
		if n.State != Loading {
			break
		}
		n.State = Full

	case OneWayReceived:
		if n.State < TwoWay {
			break
		}
		n.reset()
		n.State = Init
		r.ListsCleared = true

	case BadLSReq, SeqNumberMismatch:
		if n.State < Exchange {
			break
		}
		n.reset()
		n.State = ExStart
		r.ListsCleared = true
		r.EnterExStart = true

	case AdjOK:
		switch {
		case n.State == TwoWay:
			if n.AdjacencyNeeded(ctx) {
				n.State = ExStart
				r.EnterExStart = true
			}
		case n.State >= ExStart:
			if !n.AdjacencyNeeded(ctx) {
				n.State = TwoWay
				n.reset()
				r.ListsCleared = true
			}
		}

	case KillNbr, LLDown:
		n.reset()
		n.State = Down
		r.ListsCleared = true

	case InactivityTimer:
		n.reset()
		n.State = Down
		r.ListsCleared = true

	case Start:
		// NBMA-only event; this implementation does not model NBMA
		// neighbor discovery (spec non-goal), so Start is a no-op.
	}

	r.To = n.State
	return r
}

// BeginExStart sets the fields an ExStart entry establishes: a fresh DD
// sequence number derived from the low 16 bits of the current Unix time,
// and Master false (this router provisionally believes itself master
// until negotiation says otherwise).
func (n *Neighbor) BeginExStart(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.DDSeq = uint32(uint16(now.Unix()))
	n.Master = false
}

// LSRetransmissionAdd adds key to the LS retransmission list.
func (n *Neighbor) LSRetransmissionAdd(key lsdb.Key) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lsRetransmission[key] = struct{}{}
}

// LSRetransmissionRemove removes key from the LS retransmission list and
// reports whether it had been present.
func (n *Neighbor) LSRetransmissionRemove(key lsdb.Key) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.lsRetransmission[key]
	delete(n.lsRetransmission, key)
	return ok
}

// LSRetransmissionContains reports whether key is queued for
// retransmission to this neighbor.
func (n *Neighbor) LSRetransmissionContains(key lsdb.Key) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.lsRetransmission[key]
	return ok
}

// LSRetransmissionKeys returns every key currently queued for
// retransmission, in no particular order.
func (n *Neighbor) LSRetransmissionKeys() []lsdb.Key {
	n.mu.Lock()
	defer n.mu.Unlock()
	keys := make([]lsdb.Key, 0, len(n.lsRetransmission))
	for k := range n.lsRetransmission {
		keys = append(keys, k)
	}
	return keys
}

// SummaryListFill appends headers to the database summary list; used once
// at NegotiationDone per RFC 2328 section 10.3.
func (n *Neighbor) SummaryListFill(headers []ospf.LSAHeader) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dbSummary = append(n.dbSummary, headers...)
}

// SummaryListPopFront removes and returns up to max headers from the front
// of the database summary list, for inclusion in the next DD packet. The
// bool is false if the list was already empty.
func (n *Neighbor) SummaryListPopFront(max int) ([]ospf.LSAHeader, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.dbSummary) == 0 {
		return nil, false
	}
	if max > len(n.dbSummary) {
		max = len(n.dbSummary)
	}
	out := n.dbSummary[:max]
	n.dbSummary = n.dbSummary[max:]
	return out, true
}

// SummaryListEmpty reports whether the database summary list has been
// fully drained; the DD exchange's More bit clears when this is true.
func (n *Neighbor) SummaryListEmpty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dbSummary) == 0
}

// LSRequestListSet replaces the LS request list wholesale, built by the
// caller from comparing this neighbor's database summary against the
// local LSDB during Exchange.
func (n *Neighbor) LSRequestListSet(headers []ospf.LSAHeader) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lsRequest = headers
}

// LSRequestListAppend adds headers to the back of the LS request list,
// used while comparing a DD packet's summary against the local LSDB
// during Exchange (entries already requested are left alone).
func (n *Neighbor) LSRequestListAppend(headers []ospf.LSAHeader) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lsRequest = append(n.lsRequest, headers...)
}

// LSRequestListFront returns the header at the front of the LS request
// list without removing it, for retransmission.
func (n *Neighbor) LSRequestListFront() (ospf.LSAHeader, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.lsRequest) == 0 {
		return ospf.LSAHeader{}, false
	}
	return n.lsRequest[0], true
}

// LSRequestListPopMatching removes the front entry if its key matches key,
// reporting whether it did.
func (n *Neighbor) LSRequestListPopMatching(key lsdb.Key) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.lsRequest) == 0 {
		return false
	}
	if lsdb.KeyOf(n.lsRequest[0]) != key {
		return false
	}
	n.lsRequest = n.lsRequest[1:]
	return true
}

// LSRequestListEmpty reports whether the LS request list has been fully
// drained; callers raise LoadingDone when this becomes true.
func (n *Neighbor) LSRequestListEmpty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.lsRequest) == 0
}

// Snapshot is a read-only view of a Neighbor, used for the operator-facing
// per-interface neighbor listing (daemon.Queryable.Neighbors).
type Snapshot struct {
	RouterID ospf.ID
	IP       ospf.ID
	Priority uint8
	State    State
	DR, BDR  ospf.ID
}

// Snapshot returns a point-in-time copy of n's externally visible fields.
func (n *Neighbor) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Snapshot{
		RouterID: n.RouterID,
		IP:       n.IP,
		Priority: n.Priority,
		State:    n.State,
		DR:       n.DR,
		BDR:      n.BDR,
	}
}

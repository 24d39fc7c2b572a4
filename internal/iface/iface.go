// Package iface implements the seven-state OSPF interface finite state
// machine (RFC 2328 section 9.1), Designated Router/Backup Designated
// Router election (RFC 2328 section 9.4), and the per-interface neighbor
// table. Like internal/neighbor, the FSM methods here return a Result
// describing owed side effects (arm this timer, run an election, send a
// Hello) rather than performing I/O themselves; the daemon package owns
// the timers and the transport and drives these methods from received
// packets and timer fires.
package iface

import (
	"net"
	"sort"
	"sync"
	"time"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/neighbor"
)

// A State is one of the seven interface states from RFC 2328 section 9.1.
type State int

const (
	Down State = iota
	Loopback
	Waiting
	PointToPoint
	DROther
	Backup
	DR
)

func (s State) String() string {
	switch s {
	case Down:
		return "Down"
	case Loopback:
		return "Loopback"
	case Waiting:
		return "Waiting"
	case PointToPoint:
		return "PointToPoint"
	case DROther:
		return "DROther"
	case Backup:
		return "Backup"
	case DR:
		return "DR"
	default:
		return "State(invalid)"
	}
}

// Result describes the side effects owed by the caller after a state
// machine method returns.
type Result struct {
	From, To State

	StartHelloTimer bool
	StartWaitTimer  bool
	StopTimers      bool
	RunElection     bool
}

// An Interface is this router's configuration and runtime state for one
// network interface: its identity and timers (spec section 3), the
// interface FSM, the elected DR/BDR, and the table of neighbors discovered
// on it. The zero value is not usable; construct with New.
type Interface struct {
	mu sync.Mutex

	Name   string
	Addr   ospf.ID
	Mask   net.IPMask
	AreaID ospf.ID

	NetType neighbor.NetType
	State   State

	HelloInterval  time.Duration
	DeadInterval   time.Duration
	RxmtInterval   time.Duration
	InfTransDelay  time.Duration
	RouterPriority uint8
	Cost           uint16

	ExternalRouting bool

	DR, BDR ospf.ID

	Neighbors map[ospf.ID]*neighbor.Neighbor
}

// New returns an Interface in the Down state with no neighbors.
func New(name string, addr ospf.ID, mask net.IPMask, areaID ospf.ID, priority uint8) *Interface {
	return &Interface{
		Name:           name,
		Addr:           addr,
		Mask:           mask,
		AreaID:         areaID,
		State:          Down,
		RouterPriority: priority,
		HelloInterval:  ospf.DefaultHelloInterval,
		DeadInterval:   ospf.DefaultRouterDeadInterval,
		RxmtInterval:   ospf.DefaultRxmtInterval,
		InfTransDelay:  ospf.DefaultInfTransDelay,
		Neighbors:      make(map[ospf.ID]*neighbor.Neighbor),
	}
}

// Lock acquires the interface's lock directly, for callers that must hold
// it across several otherwise-independent FSM calls (the daemon's
// InterfacesGuard upgrade path, spec section 5). Every other exported
// method already takes and releases the lock itself.
func (i *Interface) Lock() { i.mu.Lock() }

// Unlock releases a lock taken with Lock.
func (i *Interface) Unlock() { i.mu.Unlock() }

// IsDR reports whether this interface is currently the Designated Router.
func (i *Interface) IsDR() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.DR == i.Addr
}

// IsBDR reports whether this interface is currently the Backup Designated
// Router.
func (i *Interface) IsBDR() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.BDR == i.Addr
}

// reset aborts all per-interface state as InterfaceDown/LoopInd require:
// the neighbor table is emptied (each neighbor's own timers are the
// caller's responsibility to cancel, since Interface does not hold them).
func (i *Interface) reset() {
	i.Neighbors = make(map[ospf.ID]*neighbor.Neighbor)
	i.DR = ospf.ID{}
	i.BDR = ospf.ID{}
}

// Up implements the InterfaceUp event. netType is supplied by the caller,
// derived from the kernel's own notion of the link (point-to-point,
// broadcast, NBMA, ...); spec explicitly keeps that detection a
// collaborator's job (capture/transport), not this package's.
func (i *Interface) Up(netType neighbor.NetType) Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.State
	if from != Down {
		return Result{From: from, To: from}
	}

	i.NetType = netType
	r := Result{From: from, StartHelloTimer: true}

	switch netType {
	case neighbor.PointToPoint, neighbor.PointToMultipoint, neighbor.Virtual:
		i.State = PointToPoint
	default:
		if i.RouterPriority == 0 {
			i.State = DROther
		} else {
			i.State = Waiting
			r.StartWaitTimer = true
		}
	}

	r.To = i.State
	return r
}

// WaitTimerFired implements the WaitTimer event.
func (i *Interface) WaitTimerFired() Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.State
	r := Result{From: from, To: from}
	if from != Waiting {
		return r
	}
	r.RunElection = true
	return r
}

// BackupSeen implements the BackupSeen event (a Hello was received that
// names a BDR, or a neighbor declared itself DR/BDR, while still Waiting).
func (i *Interface) BackupSeen() Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.State
	r := Result{From: from, To: from}
	if from != Waiting {
		return r
	}
	r.RunElection = true
	return r
}

// NeighborChange implements the NeighborChange event: a neighbor
// transitioned to or from state ≥ TwoWay, or changed its declared
// priority/DR/BDR. Only meaningful once this interface already knows its
// own DR/BDR membership.
func (i *Interface) NeighborChange() Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.State
	r := Result{From: from, To: from}
	switch from {
	case DROther, Backup, DR:
		r.RunElection = true
	}
	return r
}

// LoopInd implements the LoopInd event: the link looped back.
func (i *Interface) LoopInd() Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.State
	i.reset()
	i.State = Loopback
	return Result{From: from, To: Loopback, StopTimers: true}
}

// UnloopInd implements the UnloopInd event.
func (i *Interface) UnloopInd() Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.State
	r := Result{From: from, To: from}
	if from != Loopback {
		return r
	}
	i.State = Down
	r.To = Down
	return r
}

// InterfaceDown implements the InterfaceDown event.
func (i *Interface) InterfaceDown() Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := i.State
	i.reset()
	i.State = Down
	return Result{From: from, To: Down, StopTimers: true}
}

// candidate is one contender in the DR/BDR election, RFC 2328 section 9.4.
type candidate struct {
	id         ospf.ID
	priority   uint8
	declaredDR ospf.ID
	declaredBDR ospf.ID
}

func higherPriority(a, b candidate) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return idGreater(a.id, b.id)
}

func idGreater(a, b ospf.ID) bool {
	for k := range a {
		if a[k] != b[k] {
			return a[k] > b[k]
		}
	}
	return false
}

// candidates builds the election candidate list: this router (if its
// priority is nonzero) plus every neighbor in state ≥ TwoWay with nonzero
// priority.
func (i *Interface) candidates() []candidate {
	var cands []candidate
	if i.RouterPriority > 0 {
		cands = append(cands, candidate{id: i.Addr, priority: i.RouterPriority, declaredDR: i.DR, declaredBDR: i.BDR})
	}
	ids := make([]ospf.ID, 0, len(i.Neighbors))
	for id := range i.Neighbors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return idGreater(ids[a], ids[b]) })
	for _, id := range ids {
		n := i.Neighbors[id]
		snap := n.Snapshot()
		if snap.State < neighbor.TwoWay || snap.Priority == 0 {
			continue
		}
		cands = append(cands, candidate{id: id, priority: snap.Priority, declaredDR: snap.DR, declaredBDR: snap.BDR})
	}
	return cands
}

// electOnce runs one pass of steps 2-3 of RFC 2328 section 9.4 over
// cands, given the current dr/bdr, and returns the newly elected dr/bdr.
func electOnce(cands []candidate, dr, bdr ospf.ID) (ospf.ID, ospf.ID) {
	// Step 2: select BDR among candidates not declaring themselves DR.
	var bdrCands []candidate
	for _, c := range cands {
		if c.declaredDR == c.id {
			continue
		}
		bdrCands = append(bdrCands, c)
	}
	var newBDR ospf.ID
	if len(bdrCands) > 0 {
		// Prefer those declaring themselves BDR; fall back to the full set.
		var decl []candidate
		for _, c := range bdrCands {
			if c.declaredBDR == c.id {
				decl = append(decl, c)
			}
		}
		pool := bdrCands
		if len(decl) > 0 {
			pool = decl
		}
		best := pool[0]
		for _, c := range pool[1:] {
			if higherPriority(c, best) {
				best = c
			}
		}
		newBDR = best.id
	}

	// Step 3: select DR among candidates declaring themselves DR.
	var drCands []candidate
	for _, c := range cands {
		if c.declaredDR == c.id {
			drCands = append(drCands, c)
		}
	}
	var newDR ospf.ID
	if len(drCands) == 0 {
		newDR = newBDR
		newBDR = ospf.ID{}
	} else {
		best := drCands[0]
		for _, c := range drCands[1:] {
			if higherPriority(c, best) {
				best = c
			}
		}
		newDR = best.id
	}

	_ = dr
	_ = bdr
	return newDR, newBDR
}

// Elect runs the full RFC 2328 section 9.4 DR/BDR election algorithm,
// including the re-run-once-if-self-changed rule (step 4), updates DR/BDR
// and the interface's resulting state, and returns whether the elected DR
// or BDR changed (the caller must then raise AdjOK on every neighbor).
func (i *Interface) Elect() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	cands := i.candidates()
	oldDR, oldBDR := i.DR, i.BDR
	wasDR, wasBDR := i.DR == i.Addr, i.BDR == i.Addr

	newDR, newBDR := electOnce(cands, i.DR, i.BDR)
	isDR, isBDR := newDR == i.Addr, newBDR == i.Addr
	if isDR != wasDR || isBDR != wasBDR {
		// Step 4: this router's own membership changed (e.g. promoted
		// from BDR to DR); rerun with its own entry in cands updated to
		// the new self-declaration.
		for idx := range cands {
			if cands[idx].id == i.Addr {
				cands[idx].declaredDR = newDR
				cands[idx].declaredBDR = newBDR
			}
		}
		newDR, newBDR = electOnce(cands, newDR, newBDR)
	}

	i.DR, i.BDR = newDR, newBDR

	switch {
	case i.NetType == neighbor.PointToPoint || i.NetType == neighbor.PointToMultipoint || i.NetType == neighbor.Virtual:
		// Election does not apply; state was already set by Up.
	case i.DR == i.Addr:
		i.State = DR
	case i.BDR == i.Addr:
		i.State = Backup
	default:
		i.State = DROther
	}

	return oldDR != i.DR || oldBDR != i.BDR
}

// Summary is a read-only view of an Interface for operator-facing
// display; the real listing of neighbors is obtained separately via
// Neighbors, since each is keyed by IP.
type Summary struct {
	Name    string
	Addr    ospf.ID
	AreaID  ospf.ID
	State   State
	DR, BDR ospf.ID
}

func (i *Interface) Summary() Summary {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Summary{Name: i.Name, Addr: i.Addr, AreaID: i.AreaID, State: i.State, DR: i.DR, BDR: i.BDR}
}

// NeighborSnapshots returns a Snapshot of every known neighbor, in no
// particular order.
func (i *Interface) NeighborSnapshots() []neighbor.Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]neighbor.Snapshot, 0, len(i.Neighbors))
	for _, n := range i.Neighbors {
		out = append(out, n.Snapshot())
	}
	return out
}

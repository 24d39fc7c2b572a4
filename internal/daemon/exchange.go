package daemon

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/lsdb"
	"github.com/ospfd/ospfd/internal/neighbor"
)

// dispatchPacket routes one received packet to the handler for its type.
// It runs on the owning interface's own goroutine, so it is free to call
// the interface's self-locking FSM methods without risk of the
// InterfacesGuard's cross-interface lock ordering.
func (d *Daemon) dispatchPacket(ctx context.Context, ri *runtimeIface, rp recvPacket) {
	switch p := rp.pkt.(type) {
	case *ospf.Hello:
		d.handleHello(ctx, ri, rp.src, p)
	case *ospf.DatabaseDescription:
		d.handleDD(ctx, ri, rp.src, p)
	case *ospf.LinkStateRequest:
		d.handleLSR(ri, rp.src, p)
	case *ospf.LinkStateUpdate:
		d.handleLSU(ctx, ri, rp.src, p)
	case *ospf.LinkStateAcknowledgement:
		d.handleLSAck(ri, rp.src, p)
	}
}

// lookupNeighbor returns the Neighbor for src, creating it (in the Down
// state) if this is the first time it's been heard from.
func lookupNeighbor(ri *runtimeIface, src net.IP, routerID ospf.ID, priority uint8) *neighbor.Neighbor {
	var ip ospf.ID
	copy(ip[:], src.To4())

	ri.fsm.Lock()
	defer ri.fsm.Unlock()
	n, ok := ri.fsm.Neighbors[ip]
	if !ok {
		n = neighbor.New(routerID, ip, priority)
		ri.fsm.Neighbors[ip] = n
	}
	return n
}

func adjContext(ri *runtimeIface) neighbor.AdjacencyContext {
	ri.fsm.Lock()
	defer ri.fsm.Unlock()
	return neighbor.AdjacencyContext{
		NetType:   ri.fsm.NetType,
		SelfIsDR:  ri.fsm.DR == ri.fsm.Addr,
		SelfIsBDR: ri.fsm.BDR == ri.fsm.Addr,
	}
}

// handleHello implements the neighbor-discovery half of spec section 4.3:
// it updates the neighbor's declared state, raises HelloReceived, and then
// TwoWayReceived/OneWayReceived depending on whether the neighbor's own
// Hello lists this router, finally re-running the election if the
// neighbor's priority or declared DR/BDR changed.
func (d *Daemon) handleHello(ctx context.Context, ri *runtimeIface, src net.IP, h *ospf.Hello) {
	n := lookupNeighbor(ri, src, h.Header.RouterID, h.RouterPriority)

	priorPriority := n.Priority
	priorDR, priorBDR := n.DR, n.BDR

	n.Priority = h.RouterPriority
	n.Options = h.Options
	n.DR = h.DesignatedRouterID
	n.BDR = h.BackupDesignatedRouterID

	res := n.Dispatch(neighbor.HelloReceived, adjContext(ri))
	d.rearmInactivity(ctx, ri, n, res)

	seenSelf := false
	for _, id := range h.NeighborIDs {
		if id == d.routerID {
			seenSelf = true
			break
		}
	}

	var evRes neighbor.Result
	if seenSelf {
		evRes = n.Dispatch(neighbor.TwoWayReceived, adjContext(ri))
	} else {
		evRes = n.Dispatch(neighbor.OneWayReceived, adjContext(ri))
	}
	d.applyNeighborResult(ctx, ri, n, evRes)

	if priorPriority != n.Priority || priorDR != n.DR || priorBDR != n.BDR {
		d.runElection(ri)
	} else {
		res := ri.fsm.NeighborChange()
		d.applyInterfaceResult(ctx, ri, res)
	}
}

// rearmInactivity (re)starts the per-neighbor RouterDeadInterval timer
// when Dispatch reports ResetInactivity.
func (d *Daemon) rearmInactivity(ctx context.Context, ri *runtimeIface, n *neighbor.Neighbor, res neighbor.Result) {
	if !res.ResetInactivity {
		return
	}
	if n.InactiveTimer != nil {
		n.InactiveTimer.Stop()
	}
	dead := ri.fsm.DeadInterval
	n.InactiveTimer = time.AfterFunc(dead, func() {
		r := n.Dispatch(neighbor.InactivityTimer, adjContext(ri))
		d.applyNeighborResult(ctx, ri, n, r)
	})
}

// applyNeighborResult performs the side effects a neighbor.Result names:
// beginning ExStart negotiation, filling the summary list, or starting
// the LSR loop.
func (d *Daemon) applyNeighborResult(ctx context.Context, ri *runtimeIface, n *neighbor.Neighbor, res neighbor.Result) {
	if res.From != res.To {
		d.metrics.neighborStateChanges.Inc()
	}

	if res.EnterExStart {
		n.BeginExStart(time.Now())
		d.startDDRetransmit(ctx, ri, n)
	}
	if res.FillSummaryList {
		n.SummaryListFill(d.summaryListFor(ri))
	}
	if res.BeginLoading {
		d.startLSRLoop(ctx, ri, n)
	}
}

// summaryListFor builds the database summary list for NegotiationDone: all
// of this area's LSA headers, plus the AS-external table's headers if the
// interface carries external routing.
func (d *Daemon) summaryListFor(ri *runtimeIface) []ospf.LSAHeader {
	d.mu.Lock()
	a := d.areas[ri.fsm.AreaID]
	d.mu.Unlock()
	if a == nil {
		return nil
	}

	var headers []ospf.LSAHeader
	for _, l := range a.lsas.All() {
		headers = append(headers, l.Header)
	}
	if ri.fsm.ExternalRouting {
		for _, l := range d.db.External().All() {
			headers = append(headers, l.Header)
		}
	}
	return headers
}

// startDDRetransmit (re)starts the periodic DD send for n, canceling any
// previous chain, matching the Rust source's per-neighbor abort handle.
func (d *Daemon) startDDRetransmit(ctx context.Context, ri *runtimeIface, n *neighbor.Neighbor) {
	ri.mu.Lock()
	if cancel, ok := ri.ddCancel[n.IP]; ok {
		cancel()
	}
	dctx, cancel := context.WithCancel(ctx)
	ri.ddCancel[n.IP] = cancel
	ri.mu.Unlock()

	go func() {
		t := time.NewTicker(ri.fsm.RxmtInterval)
		defer t.Stop()
		d.sendDD(ri, n)
		for {
			select {
			case <-dctx.Done():
				return
			case <-t.C:
				d.sendDD(ri, n)
			}
		}
	}()
}

func (d *Daemon) stopDDRetransmit(ri *runtimeIface, ip ospf.ID) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if cancel, ok := ri.ddCancel[ip]; ok {
		cancel()
		delete(ri.ddCancel, ip)
	}
}

// sendDD sends the next Database Description packet for n: either the
// empty ExStart negotiation packet, or the next chunk of the summary list
// once Exchange has begun. Master-directed DDs may carry up to 12
// headers, slave-directed up to 8, per spec section 4.3's implementation
// budget.
func (d *Daemon) sendDD(ri *runtimeIface, n *neighbor.Neighbor) {
	max := 12
	if !n.Master {
		max = 8
	}

	headers, _ := n.SummaryListPopFront(max)
	flags := ospf.IBit | ospf.MBit | ospf.MSBit
	if n.State != neighbor.ExStart {
		flags = 0
		if !n.SummaryListEmpty() {
			flags |= ospf.MBit
		}
		if !n.Master {
			flags |= ospf.MSBit
		}
	}

	dd := &ospf.DatabaseDescription{
		Header:         ospf.Header{RouterID: d.routerID, AreaID: ri.fsm.AreaID},
		InterfaceMTU:   uint16(1500),
		Options:        ospf.Options(0),
		Flags:          flags,
		SequenceNumber: n.DDSeq,
		LSAs:           headers,
	}
	dst := &net.IPAddr{IP: net.IP(n.IP[:])}
	if err := ri.conn.WriteTo(dd, dst); err != nil {
		d.log.Warn("failed to send DD", zap.String("iface", ri.fsm.Name), zap.Error(err))
	}
}

// handleDD implements the Database Description exchange (spec section
// 4.3): ExStart negotiation decides master/slave by router-ID comparison,
// then Exchange drains each side's summary list while building the local
// LS request list from whichever of the peer's headers are newer than
// this router's own LSDB copy.
func (d *Daemon) handleDD(ctx context.Context, ri *runtimeIface, src net.IP, dd *ospf.DatabaseDescription) {
	n := lookupNeighbor(ri, src, dd.Header.RouterID, 0)

	switch n.State {
	case neighbor.ExStart:
		negotiationI := dd.Flags&ospf.IBit != 0
		negotiationM := dd.Flags&ospf.MBit != 0
		negotiationMS := dd.Flags&ospf.MSBit != 0
		if negotiationI && negotiationM && negotiationMS && len(dd.LSAs) == 0 {
			if greaterID(dd.Header.RouterID, d.routerID) {
				n.Master = true
				n.DDSeq = dd.SequenceNumber
			} else {
				n.Master = false
			}
			res := n.Dispatch(neighbor.NegotiationDone, adjContext(ri))
			d.applyNeighborResult(ctx, ri, n, res)
			d.stopDDRetransmit(ri, n.IP)
			d.processSummary(ri, n, dd)
			if n.Master {
				d.sendDD(ri, n)
			}
		}

	case neighbor.Exchange:
		if !n.Master && dd.SequenceNumber != n.DDSeq+1 {
			d.resetNeighborToExStart(ctx, ri, n)
			return
		}
		if n.Master && dd.SequenceNumber != n.DDSeq {
			d.resetNeighborToExStart(ctx, ri, n)
			return
		}
		if !n.Master {
			n.DDSeq = dd.SequenceNumber
		}
		d.processSummary(ri, n, dd)

		more := dd.Flags&ospf.MBit != 0
		if !n.Master {
			d.sendDD(ri, n)
		} else {
			n.DDSeq++
			d.sendDD(ri, n)
		}
		if !more && n.SummaryListEmpty() {
			res := n.Dispatch(neighbor.ExchangeDone, adjContext(ri))
			d.applyNeighborResult(ctx, ri, n, res)
		}

	case neighbor.Loading, neighbor.Full:
		// Duplicate DD: master silently drops, slave resends its last.
		if n.Master {
			d.sendDD(ri, n)
		}
	}
}

func greaterID(a, b ospf.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// resetNeighborToExStart raises SeqNumberMismatch, per spec section 4.3's
// rule that any of {MS mismatch, unexpected I, option change, seq
// mismatch} during Exchange restarts negotiation.
func (d *Daemon) resetNeighborToExStart(ctx context.Context, ri *runtimeIface, n *neighbor.Neighbor) {
	res := n.Dispatch(neighbor.SeqNumberMismatch, adjContext(ri))
	d.applyNeighborResult(ctx, ri, n, res)
}

// processSummary compares each header in dd against the local LSDB,
// appending anything strictly newer (or wholly unknown) to n's LS request
// list.
func (d *Daemon) processSummary(ri *runtimeIface, n *neighbor.Neighbor, dd *ospf.DatabaseDescription) {
	d.mu.Lock()
	a := d.areas[ri.fsm.AreaID]
	d.mu.Unlock()
	if a == nil {
		return
	}

	var toRequest []ospf.LSAHeader
	for _, h := range dd.LSAs {
		if d.db.NeedUpdate(ri.fsm.AreaID, h) {
			toRequest = append(toRequest, h)
		}
	}
	if len(toRequest) > 0 {
		n.LSRequestListAppend(toRequest)
	}
}

// startLSRLoop drives the LS request loop: send an LSR for the front
// entry, retransmit every RxmtInterval, stopping once the list empties
// (LoadingDone is raised by handleLSU when the corresponding LSU pops the
// front entry).
func (d *Daemon) startLSRLoop(ctx context.Context, ri *runtimeIface, n *neighbor.Neighbor) {
	ri.mu.Lock()
	if cancel, ok := ri.lsrCancel[n.IP]; ok {
		cancel()
	}
	lctx, cancel := context.WithCancel(ctx)
	ri.lsrCancel[n.IP] = cancel
	ri.mu.Unlock()

	go func() {
		t := time.NewTicker(ri.fsm.RxmtInterval)
		defer t.Stop()
		d.sendLSR(ri, n)
		for {
			select {
			case <-lctx.Done():
				return
			case <-t.C:
				if n.LSRequestListEmpty() {
					return
				}
				d.sendLSR(ri, n)
			}
		}
	}()
}

func (d *Daemon) stopLSRLoop(ri *runtimeIface, ip ospf.ID) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if cancel, ok := ri.lsrCancel[ip]; ok {
		cancel()
		delete(ri.lsrCancel, ip)
	}
}

func (d *Daemon) sendLSR(ri *runtimeIface, n *neighbor.Neighbor) {
	h, ok := n.LSRequestListFront()
	if !ok {
		return
	}
	req := &ospf.LinkStateRequest{
		Header: ospf.Header{RouterID: d.routerID, AreaID: ri.fsm.AreaID},
		LSAs: []ospf.LSAID{{
			Type:              uint32(h.Type),
			LinkStateID:       h.LinkStateID,
			AdvertisingRouter: h.AdvertisingRouter,
		}},
	}
	dst := &net.IPAddr{IP: net.IP(n.IP[:])}
	if err := ri.conn.WriteTo(req, dst); err != nil {
		d.log.Warn("failed to send LSR", zap.String("iface", ri.fsm.Name), zap.Error(err))
	}
}

// handleLSR answers a Link State Request with the requested LSAs, read
// straight from the local LSDB.
func (d *Daemon) handleLSR(ri *runtimeIface, src net.IP, req *ospf.LinkStateRequest) {
	var lsas []*ospf.LSA
	for _, id := range req.LSAs {
		key := lsdb.Key{Type: ospf.LSType(id.Type), LinkStateID: id.LinkStateID, AdvertisingRouter: id.AdvertisingRouter}
		lsa, _, _, ok := d.db.Get(ri.fsm.AreaID, key)
		if !ok {
			continue
		}
		lsas = append(lsas, &lsa)
	}
	if len(lsas) == 0 {
		return
	}
	lsu := &ospf.LinkStateUpdate{Header: ospf.Header{RouterID: d.routerID, AreaID: ri.fsm.AreaID}, LSAs: lsas}
	dst := &net.IPAddr{IP: src}
	if err := ri.conn.WriteTo(lsu, dst); err != nil {
		d.log.Warn("failed to send LSU", zap.String("iface", ri.fsm.Name), zap.Error(err))
	}
}

// handleLSAck removes each acknowledged key from the sending neighbor's LS
// retransmission list (explicit ack, spec section 4.5).
func (d *Daemon) handleLSAck(ri *runtimeIface, src net.IP, ack *ospf.LinkStateAcknowledgement) {
	var ip ospf.ID
	copy(ip[:], src.To4())

	ri.fsm.Lock()
	n, ok := ri.fsm.Neighbors[ip]
	ri.fsm.Unlock()
	if !ok {
		return
	}
	for _, h := range ack.LSAs {
		n.LSRetransmissionRemove(lsdb.KeyOf(h))
	}
}

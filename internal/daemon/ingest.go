package daemon

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/iface"
	"github.com/ospfd/ospfd/internal/lsdb"
	"github.com/ospfd/ospfd/internal/neighbor"
)

// handleLSU implements the authoritative LSU receive path, spec section
// 4.6's nine steps, for each embedded LSA in order, stopping early on
// BadLSReq.
func (d *Daemon) handleLSU(ctx context.Context, ri *runtimeIface, src net.IP, lsu *ospf.LinkStateUpdate) {
	var ip ospf.ID
	copy(ip[:], src.To4())

	ri.fsm.Lock()
	n := ri.fsm.Neighbors[ip]
	area := ri.fsm.AreaID
	ri.fsm.Unlock()
	if n == nil {
		return
	}

	var delayedAcks []ospf.LSAHeader

	for _, lsa := range lsu.LSAs {
		if ok, err := ospf.VerifyLSAChecksum(lsa); err != nil || !ok {
			continue // step 1
		}
		switch lsa.Header.Type {
		case ospf.RouterLSA, ospf.NetworkLSA, ospf.SummaryIPLSA, ospf.SummaryASBRLSA, ospf.ASExternalLSA:
		default:
			continue // step 2
		}
		if lsa.Header.Type == ospf.ASExternalLSA && !ri.fsm.ExternalRouting {
			continue // step 3
		}

		key := lsdb.KeyOf(lsa.Header)

		if h, ok := n.LSRequestListFront(); ok && lsdb.KeyOf(h) == key {
			// step 4: treat as the LSR response it is.
			n.LSRequestListPopMatching(key)
			d.db.Insert(area, lsa)
			if n.LSRequestListEmpty() {
				d.stopLSRLoop(ri, n.IP)
				res := n.Dispatch(neighbor.LoadingDone, adjContext(ri))
				d.applyNeighborResult(ctx, ri, n, res)
			}
			continue
		}

		existing, createdAt, _, ok := d.db.Get(area, key)

		if lsa.Header.Age >= ospf.MaxAge && !ok && !d.anyNeighborExchanging(ri.fsm.AreaID) {
			// step 5: no LSDB copy, nobody mid-exchange; ack and drop.
			d.sendDirectAck(ri, n, lsa.Header)
			continue
		}

		if !ok || existing.Header.Compare(lsa.Header) > 0 {
			// step 6: new or strictly newer.
			if ok && time.Since(createdAt) < ospf.MinLSArrival {
				continue
			}

			g, unlock := d.lockAll(ri.fsm.Name)
			floodedOutThisIface := d.floodAndInstall(g, area, lsa, ri.fsm.Name, ip)
			unlock()

			if !floodedOutThisIface {
				delayedAcks = append(delayedAcks, lsa.Header)
			}

			if lsa.Header.AdvertisingRouter == d.routerID {
				d.regenerateRouterLSAs()
			}
			continue
		}

		if h, ok := n.LSRequestListFront(); ok && lsdb.KeyOf(h) == key {
			// step 7: still on the request list despite not being newer
			// (a peer out of sync with us) — BadLSReq, stop processing.
			res := n.Dispatch(neighbor.BadLSReq, adjContext(ri))
			d.applyNeighborResult(ctx, ri, n, res)
			break
		}

		if existing.Header.Compare(lsa.Header) == 0 {
			// step 8: same instance.
			if n.LSRetransmissionRemove(key) {
				if n.DR == n.IP && ri.fsm.BDR == ri.fsm.Addr {
					delayedAcks = append(delayedAcks, lsa.Header)
				}
			} else {
				d.sendDirectAck(ri, n, lsa.Header)
			}
			continue
		}

		// step 9: local LSDB copy is newer.
		if existing.Header.Age >= ospf.MaxAge && existing.Header.SequenceNumber == ospf.MaxSequenceNumber {
			continue
		}
		d.db.MarkSent(area, key)
		d.sendLSUDirect(ri, n, &existing)
	}

	if len(delayedAcks) > 0 {
		d.sendDelayedAck(ri, delayedAcks)
	}
}

// anyNeighborExchanging reports whether any neighbor on any interface in
// area is in Exchange or Loading, used by step 5's direct-ack-and-drop
// rule.
func (d *Daemon) anyNeighborExchanging(area ospf.ID) bool {
	d.mu.Lock()
	ifaces := make([]*runtimeIface, 0, len(d.interfaces))
	for _, ri := range d.interfaces {
		ifaces = append(ifaces, ri)
	}
	d.mu.Unlock()

	for _, ri := range ifaces {
		if ri.fsm.AreaID != area {
			continue
		}
		for _, n := range ri.fsm.NeighborSnapshots() {
			if n.State == neighbor.Exchange || n.State == neighbor.Loading {
				return true
			}
		}
	}
	return false
}

// floodAndInstall performs step 6's flood-then-install sequence while g
// holds every interface's lock: remove the stale copy from every
// neighbor's retransmission list, insert the new copy, and flood it.
// Returns whether the LSA was flooded back out the interface it arrived
// on (srcIfaceName), used to decide whether a delayed ack is still owed.
func (d *Daemon) floodAndInstall(g *InterfacesGuard, area ospf.ID, lsa *ospf.LSA, srcIfaceName string, srcIP ospf.ID) bool {
	key := lsdb.KeyOf(lsa.Header)
	for _, ri := range g.Interfaces {
		for _, n := range ri.fsm.Neighbors {
			n.LSRetransmissionRemove(key)
		}
	}

	d.db.Insert(area, lsa)

	_, floodedOut := d.flood(g, area, lsa.Header.Type, lsa, srcIfaceName, srcIP)
	d.recomputeArea(area)
	return floodedOut
}

func (d *Daemon) sendDirectAck(ri *runtimeIface, n *neighbor.Neighbor, h ospf.LSAHeader) {
	ack := &ospf.LinkStateAcknowledgement{
		Header: ospf.Header{RouterID: d.routerID, AreaID: ri.fsm.AreaID},
		LSAs:   []ospf.LSAHeader{h},
	}
	dst := &net.IPAddr{IP: net.IP(n.IP[:])}
	if err := ri.conn.WriteTo(ack, dst); err != nil {
		d.log.Warn("failed to send direct ack", zap.String("iface", ri.fsm.Name), zap.Error(err))
	}
}

func (d *Daemon) sendDelayedAck(ri *runtimeIface, headers []ospf.LSAHeader) {
	ack := &ospf.LinkStateAcknowledgement{
		Header: ospf.Header{RouterID: d.routerID, AreaID: ri.fsm.AreaID},
		LSAs:   headers,
	}
	dst := ospf.AllSPFRouters
	ri.fsm.Lock()
	if ri.fsm.State == iface.DROther {
		dst = ospf.AllDRouters
	}
	ri.fsm.Unlock()
	if err := ri.conn.WriteTo(ack, &net.IPAddr{IP: dst}); err != nil {
		d.log.Warn("failed to send delayed ack", zap.String("iface", ri.fsm.Name), zap.Error(err))
	}
}

func (d *Daemon) sendLSUDirect(ri *runtimeIface, n *neighbor.Neighbor, lsa *ospf.LSA) {
	lsu := &ospf.LinkStateUpdate{
		Header: ospf.Header{RouterID: d.routerID, AreaID: ri.fsm.AreaID},
		LSAs:   []*ospf.LSA{lsa},
	}
	dst := &net.IPAddr{IP: net.IP(n.IP[:])}
	if err := ri.conn.WriteTo(lsu, dst); err != nil {
		d.log.Warn("failed to send LSU", zap.String("iface", ri.fsm.Name), zap.Error(err))
	}
}

package daemon

import (
	"net"

	"go.uber.org/zap"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/iface"
	"github.com/ospfd/ospfd/internal/lsdb"
	"github.com/ospfd/ospfd/internal/neighbor"
)

// flood implements the reliable flooding algorithm (spec section 4.5,
// grounded on ospfd/flooding.rs): for every eligible interface (same-area
// for types 1-4, every external-routing interface for type 5), queue the
// LSA on each qualifying neighbor's retransmission list, then transmit it
// once out the interface unless the suppression rule applies. srcIfaceName is
// the name of the interface the LSA arrived on (empty for self-originated
// LSAs), srcIP the sender's address. Returns whether the LSA was queued
// for retransmission on at least one neighbor anywhere, and whether
// srcIfaceName itself (if it is one of the eligible interfaces) counted as
// flooded — the single source of truth callers need to decide whether a
// delayed ack is still owed on the interface the LSA arrived on, so that
// no caller needs to flood that interface a second time itself.
func (d *Daemon) flood(g *InterfacesGuard, area ospf.ID, lsType ospf.LSType, lsa *ospf.LSA, srcIfaceName string, srcIP ospf.ID) (any, floodedOutSrc bool) {
	for _, ri := range g.Interfaces {
		eligible := ri.fsm.AreaID == area
		if lsType == ospf.ASExternalLSA {
			eligible = ri.fsm.ExternalRouting
		}
		if !eligible {
			continue
		}
		if d.floodOn(ri, srcIfaceName, srcIP, lsa) {
			any = true
			if ri.fsm.Name == srcIfaceName {
				floodedOutSrc = true
			}
		}
	}
	d.metrics.lsasFlooded.Inc()
	return any, floodedOutSrc
}

// floodOn runs the per-interface body of the flooding algorithm.
func (d *Daemon) floodOn(ri *runtimeIface, srcIfaceName string, srcIP ospf.ID, lsa *ospf.LSA) bool {
	key := lsdb.KeyOf(lsa.Header)
	queuedAny := false

	for _, n := range ri.fsm.Neighbors {
		if n.State < neighbor.Exchange {
			continue
		}
		if h, ok := n.LSRequestListFront(); ok && lsdb.KeyOf(h) == key {
			switch h.Compare(lsa.Header) {
			case -1:
				// The new LSA is older than the copy already requested;
				// this neighbor does not need it.
				continue
			case 0:
				// Same instance: the neighbor already has it queued for
				// request. Remove it and move on without retransmitting.
				n.LSRequestListPopMatching(key)
				continue
			default:
				// The new LSA is newer than the requested copy: drop the
				// stale request and fall through to retransmission.
				n.LSRequestListPopMatching(key)
			}
		}
		if n.IP == srcIP {
			continue
		}
		n.LSRetransmissionAdd(key)
		queuedAny = true
	}

	if !queuedAny {
		return false
	}

	if ri.fsm.Name == srcIfaceName && ri.fsm.Addr != srcIP {
		if n, ok := ri.fsm.Neighbors[srcIP]; ok && (n.DR == n.IP || n.BDR == n.IP) {
			return true
		}
		if ri.fsm.BDR == ri.fsm.Addr {
			return true
		}
	}

	toSend := *lsa
	h := toSend.Header
	h.Age += ri.fsm.InfTransDelay
	if h.Age > ospf.MaxAge {
		h.Age = ospf.MaxAge
	}
	toSend.Header = h

	dst := ospf.AllSPFRouters
	if ri.fsm.State == iface.DROther {
		dst = ospf.AllDRouters
	}

	lsu := &ospf.LinkStateUpdate{
		Header: ospf.Header{RouterID: d.routerID, AreaID: ri.fsm.AreaID},
		LSAs:   []*ospf.LSA{&toSend},
	}
	if err := ri.conn.WriteTo(lsu, &net.IPAddr{IP: dst}); err != nil {
		d.log.Warn("failed to flood LSA", zap.String("iface", ri.fsm.Name), zap.Error(err))
	}
	return true
}

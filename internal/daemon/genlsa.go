package daemon

import (
	"bytes"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/iface"
	"github.com/ospfd/ospfd/internal/lsdb"
	"github.com/ospfd/ospfd/internal/neighbor"
	"github.com/ospfd/ospfd/internal/rt"
)

// regenerateRouterLSAs re-originates this router's Router-LSA for every
// area it has an interface in, and the Network-LSA for every interface it
// is DR on, then re-originates Summary-LSAs across area boundaries (spec
// section 4.9). It is the single entry point the rest of the daemon calls
// whenever local topology might have changed: a DR/BDR election outcome,
// a neighbor reaching or leaving Full, or the periodic LSRefreshTime
// ticker.
func (d *Daemon) regenerateRouterLSAs() {
	g, unlock := d.lockAll("")
	defer unlock()

	byArea := make(map[ospf.ID][]*runtimeIface)
	for _, ri := range g.Interfaces {
		byArea[ri.fsm.AreaID] = append(byArea[ri.fsm.AreaID], ri)
	}

	for areaID, ifaces := range byArea {
		d.genRouterLSA(g, areaID, ifaces)
	}
	for _, ri := range g.Interfaces {
		d.genNetworkLSA(g, ri)
	}
	if len(byArea) > 1 {
		d.genSummaryLSAs(g)
	}
}

// genRouterLSA builds areaID's Router-LSA from its own interfaces, per
// RFC 2328 section 12.4.1: one link per interface that is not Down, a
// transit link naming the DR when fully adjacent to it (or self-DR with
// at least one neighbor), a stub link for the interface's own prefix otherwise.
func (d *Daemon) genRouterLSA(g *InterfacesGuard, areaID ospf.ID, ifaces []*runtimeIface) {
	d.mu.Lock()
	multiArea := len(d.areas) > 1
	hasExternal := len(d.extRoutes) > 0
	d.mu.Unlock()

	body := &ospf.RouterLSABody{
		Bit:  multiArea,
		EBit: hasExternal,
	}

	for _, ri := range ifaces {
		if ri.fsm.State == iface.Down {
			continue
		}

		fullyAdjacentToDR := false
		if n, ok := ri.fsm.Neighbors[ri.fsm.DR]; ok && n.State == neighbor.Full {
			fullyAdjacentToDR = true
		}
		selfIsDRWithNeighbor := ri.fsm.DR == ri.fsm.Addr && len(ri.fsm.Neighbors) > 0

		if fullyAdjacentToDR || selfIsDRWithNeighbor {
			body.Links = append(body.Links, ospf.RouterLink{
				ID:     ri.fsm.DR,
				Data:   ri.fsm.Addr,
				Type:   ospf.LinkTransit,
				Metric: ri.fsm.Cost,
			})
		} else {
			mask := maskToID(ri.fsm.Mask)
			var prefix ospf.ID
			for k := range prefix {
				prefix[k] = ri.fsm.Addr[k] & mask[k]
			}
			body.Links = append(body.Links, ospf.RouterLink{
				ID:     prefix,
				Data:   mask,
				Type:   ospf.LinkStub,
				Metric: ri.fsm.Cost,
			})
		}
	}

	d.originate(g, areaID, ospf.RouterLSA, d.routerID, d.routerID, body)
}

// genNetworkLSA originates ri's Network-LSA if this router is DR on it
// and at least two routers (counting itself) are fully adjacent, per RFC
// 2328 section 12.4.2. A DR with no other attached routers withdraws any
// previously originated Network-LSA by simply not re-originating it; it
// ages out naturally via LSRefreshTime/MaxAge.
func (d *Daemon) genNetworkLSA(g *InterfacesGuard, ri *runtimeIface) {
	if ri.fsm.DR != ri.fsm.Addr {
		return
	}

	attached := []ospf.ID{d.routerID}
	for _, n := range ri.fsm.Neighbors {
		if n.State == neighbor.Full {
			attached = append(attached, n.RouterID)
		}
	}
	if len(attached) < 2 {
		return
	}

	body := &ospf.NetworkLSABody{
		NetworkMask:     maskToID(ri.fsm.Mask),
		AttachedRouters: attached,
	}
	d.originate(g, ri.fsm.AreaID, ospf.NetworkLSA, ri.fsm.Addr, d.routerID, body)
}

// genSummaryLSAs re-originates a Summary-LSA into every area this router
// borders for each of its own routing table entries that qualifies, per
// RFC 2328 section 12.4.3: area-internal or inter-area path type, finite
// cost, not native to the destination area, and (when the destination
// area is the backbone) only area-internal entries. An entry
// against an ASBR is only summarized into an area where external routing
// actually matters.
func (d *Daemon) genSummaryLSAs(g *InterfacesGuard) {
	d.mu.Lock()
	items := d.routes.Items()
	d.mu.Unlock()

	for _, ri := range g.Interfaces {
		for _, item := range items {
			if item.PathType != rt.AreaInternal && item.PathType != rt.AreaExternal {
				continue
			}
			if item.Cost >= ospf.LSInfinity {
				continue
			}
			if ri.fsm.AreaID == item.AreaID {
				continue
			}
			if ri.fsm.AreaID == ospf.BackboneArea && item.PathType != rt.AreaInternal {
				continue
			}

			body := &ospf.SummaryLSABody{NetworkMask: item.Mask, Metric: item.Cost}

			switch item.DestType {
			case rt.NetworkDest:
				body.Type = ospf.SummaryIPLSA
				d.originate(g, ri.fsm.AreaID, ospf.SummaryIPLSA, item.DestID, d.routerID, body)
			case rt.RouterDest:
				if !ri.fsm.ExternalRouting {
					continue
				}
				body.Type = ospf.SummaryASBRLSA
				d.originate(g, ri.fsm.AreaID, ospf.SummaryASBRLSA, item.DestID, d.routerID, body)
			}
		}
	}
}

// originate is the shared template every self-origination path funnels
// through: it builds a header, advances the sequence number from any
// instance already in the LSDB (flushing and restarting numbering rather
// than silently reusing MaxSequenceNumber), suppresses re-origination of
// an unchanged LSA that is still within LSRefreshTime of when it was last
// originated, installs the result, floods it, and triggers a routing
// recompute.
func (d *Daemon) originate(g *InterfacesGuard, areaID ospf.ID, lsType ospf.LSType, linkStateID, advertisingRouter ospf.ID, body ospf.LSABody) {
	d.mu.Lock()
	a := d.areas[areaID]
	d.mu.Unlock()
	if a == nil {
		return
	}

	table := a.lsas
	if lsType == ospf.ASExternalLSA {
		table = d.db.External()
	}

	key := lsdb.Key{Type: lsType, LinkStateID: linkStateID, AdvertisingRouter: advertisingRouter}

	header := ospf.LSAHeader{
		Type:              lsType,
		LinkStateID:       linkStateID,
		AdvertisingRouter: advertisingRouter,
		SequenceNumber:    ospf.InitialSequenceNumber,
	}

	old, createdAt, _, hasOld := table.Get(key)
	if hasOld {
		if old.Header.SequenceNumber != ospf.MaxSequenceNumber {
			header.SequenceNumber = old.Header.SequenceNumber + 1
		} else {
			flushed := old
			flushed.Header.Age = ospf.MaxAge
			d.flood(g, areaID, lsType, &flushed, "", ospf.ID{})
			table.Remove(key)
			hasOld = false
		}
	}

	if hasOld && time.Since(createdAt) < ospf.LSRefreshTime && sameBody(old.Body, body) {
		return
	}

	if !d.limiterFor(key).Allow() {
		// MinLSInterval not yet elapsed since this LSA was last actually
		// sent; drop this rebuild rather than violate RFC 2328 section
		// 12.4's minimum origination interval.
		return
	}

	lsa := &ospf.LSA{Header: header, Body: body}
	if _, err := ospf.MarshalLSA(lsa); err != nil {
		d.log.Warn("failed to marshal self-originated LSA", zap.Error(err))
		return
	}

	table.Insert(lsa)
	d.metrics.lsasOriginated.WithLabelValues(lsType.String()).Inc()
	d.flood(g, areaID, lsType, lsa, "", ospf.ID{})
	d.recomputeArea(areaID)
}

// limiterFor returns the rate.Limiter tracking key's origination rate,
// creating one capped at one event per MinLSInterval (with a single
// token of burst, so the very first origination is never held back) if
// this is the first time key has been originated.
func (d *Daemon) limiterFor(key lsdb.Key) *rate.Limiter {
	d.originLimitersMu.Lock()
	defer d.originLimitersMu.Unlock()
	l, ok := d.originLimiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(ospf.MinLSInterval), 1)
		d.originLimiters[key] = l
	}
	return l
}

// sameBody reports whether two LSA bodies are of the same type and marshal
// to identical bytes, used by originate's re-origination suppression rule.
func sameBody(a, b ospf.LSABody) bool {
	if typeOf(a) != typeOf(b) {
		return false
	}
	ha := ospf.LSAHeader{Type: typeOf(a), SequenceNumber: ospf.InitialSequenceNumber}
	hb := ospf.LSAHeader{Type: typeOf(b), SequenceNumber: ospf.InitialSequenceNumber}
	ba, err1 := ospf.MarshalLSA(&ospf.LSA{Header: ha, Body: a})
	bb, err2 := ospf.MarshalLSA(&ospf.LSA{Header: hb, Body: b})
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(ba[lsaBodyOffset:], bb[lsaBodyOffset:])
}

// lsaBodyOffset is the fixed length of an LSAHeader's on-wire encoding,
// skipped so sameBody compares only the type-specific payload.
const lsaBodyOffset = 20

func typeOf(b ospf.LSABody) ospf.LSType {
	switch v := b.(type) {
	case *ospf.RouterLSABody:
		return ospf.RouterLSA
	case *ospf.NetworkLSABody:
		return ospf.NetworkLSA
	case *ospf.SummaryLSABody:
		return v.Type
	case *ospf.ASExternalLSABody:
		return ospf.ASExternalLSA
	default:
		return 0
	}
}

// onExternalRefresh and onAreaRefresh are the lsdb.RefreshFunc callbacks
// invoked when a stored LSA's age reaches MaxAge: a self-originated entry
// is re-originated fresh; anything else is simply removed, relying on
// flooding's own MaxAge propagation (RFC 2328 section 14) to have already
// told every neighbor.
func (d *Daemon) onAreaRefresh(areaID ospf.ID) lsdb.RefreshFunc {
	return func(key lsdb.Key) { d.handleLSAExpiry(areaID, key) }
}

func (d *Daemon) onExternalRefresh(key lsdb.Key) {
	d.handleLSAExpiry(ospf.ID{}, key)
}

func (d *Daemon) handleLSAExpiry(areaID ospf.ID, key lsdb.Key) {
	if key.AdvertisingRouter == d.routerID {
		d.regenerateRouterLSAs()
		return
	}

	table := d.areaTable(areaID, key.Type)
	if table == nil {
		return
	}
	if lsa, ok := table.Remove(key); ok {
		d.log.Debug("removed expired LSA",
			zap.Stringer("type", key.Type),
			zap.Stringer("linkStateID", key.LinkStateID),
			zap.Stringer("advertisingRouter", key.AdvertisingRouter),
			zap.Int32("sequenceNumber", lsa.Header.SequenceNumber))
	}
	d.recomputeArea(areaID)
}

func (d *Daemon) areaTable(areaID ospf.ID, lsType ospf.LSType) *lsdb.Table {
	if lsType == ospf.ASExternalLSA {
		return d.db.External()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.areas[areaID]; ok {
		return a.lsas
	}
	return nil
}

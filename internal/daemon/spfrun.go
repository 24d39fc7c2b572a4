package daemon

import (
	"time"

	"go.uber.org/zap"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/rt"
	"github.com/ospfd/ospfd/internal/spf"
)

// recomputeArea reruns SPF for area, then rebuilds the whole routing
// table from every area's tree plus the backbone's summary LSAs and the
// AS-wide external LSAs, and reconciles the result into the kernel FIB.
// Spec section 4.7's route preference (area-internal, then inter-area,
// then external type 1, then type 2) falls out of rt.Item.Better, so
// derivation order here only needs to respect data dependency:
// area-internal trees for every area before any inter-area summary, and
// inter-area routes before AS-external routes (which resolve forwarding
// addresses through them).
func (d *Daemon) recomputeArea(area ospf.ID) {
	d.mu.Lock()
	a, ok := d.areas[area]
	if ok {
		start := time.Now()
		lsas := a.lsas.All()
		a.tree = spf.Run(d.routerID, lsas)
		d.metrics.spfRuns.WithLabelValues(area.String()).Inc()
		d.metrics.spfDuration.WithLabelValues(area.String()).Observe(time.Since(start).Seconds())
	}
	areas := make([]*area, 0, len(d.areas))
	for _, ar := range d.areas {
		areas = append(areas, ar)
	}
	db := d.db
	fibTable := d.fibTable
	oldItems := d.routes.Items()
	d.mu.Unlock()
	if !ok {
		return
	}

	table := rt.New()
	for _, ar := range areas {
		if ar.tree == nil {
			continue
		}
		table.BuildAreaInternal(ar.id, ar.tree, asbrRouters(ar.lsas.All()))
	}

	var backboneSummaries []rt.SummaryRoute
	if bb := db.Area(ospf.BackboneArea); bb != nil {
		backboneSummaries = summaryRoutesFrom(bb)
	}
	for _, ar := range areas {
		if ar.id == ospf.BackboneArea || ar.stub {
			continue
		}
		table.DeriveInterArea(ar.id, backboneSummaries)
	}

	extRoutes := externalRoutesFrom(db.External())
	table.DeriveExternal(extRoutes, func(addr ospf.ID) (rt.Item, bool) {
		// The most specific network entry covering addr.
		var best rt.Item
		found := false
		for _, it := range table.Items() {
			covers := it.DestType == rt.NetworkDest
			for k := range addr {
				covers = covers && addr[k]&it.Mask[k] == it.DestID[k]
			}
			if covers && (!found || greaterID(it.Mask, best.Mask)) {
				best, found = it, true
			}
		}
		return best, found
	})

	d.mu.Lock()
	d.routes = table
	newItems := table.Items()
	d.mu.Unlock()

	if fibTable != nil {
		if err := rt.Reconcile(oldItems, newItems, fibTable); err != nil {
			d.log.Warn("FIB reconciliation error", zap.Error(err))
		}
	}

	installed := 0
	for _, i := range newItems {
		if i.DestType == rt.NetworkDest {
			installed++
		}
	}
	d.metrics.routesInstalled.Set(float64(installed))
}

// asbrRouters returns the set of router IDs whose Router-LSA within lsas
// sets the e-bit, used to decide which SPF RouterNode vertices become
// RouterDest routing table entries (spec section 4.7).
func asbrRouters(lsas []ospf.LSA) map[ospf.ID]bool {
	out := make(map[ospf.ID]bool)
	for _, l := range lsas {
		if l.Header.Type != ospf.RouterLSA {
			continue
		}
		if body, ok := l.Body.(*ospf.RouterLSABody); ok && body.EBit {
			out[l.Header.AdvertisingRouter] = true
		}
	}
	return out
}

// summaryRoutesFrom reads t's type-3 and type-4 Summary-LSAs into the
// shape internal/rt's inter-area derivation wants. t is nil when the
// backbone area has not been registered, in which case there is nothing
// to derive from.
func summaryRoutesFrom(t interface {
	All() []ospf.LSA
}) []rt.SummaryRoute {
	if t == nil {
		return nil
	}
	var out []rt.SummaryRoute
	for _, l := range t.All() {
		body, ok := l.Body.(*ospf.SummaryLSABody)
		if !ok {
			continue
		}
		out = append(out, rt.SummaryRoute{
			AdvertisingRouter: l.Header.AdvertisingRouter,
			Type:              l.Header.Type,
			LinkStateID:       l.Header.LinkStateID,
			NetworkMask:       body.NetworkMask,
			Metric:            body.Metric,
		})
	}
	return out
}

// externalRoutesFrom reads every AS-External-LSA in the AS-wide table.
func externalRoutesFrom(t interface {
	All() []ospf.LSA
}) []rt.ExternalRoute {
	var out []rt.ExternalRoute
	for _, l := range t.All() {
		body, ok := l.Body.(*ospf.ASExternalLSABody)
		if !ok {
			continue
		}
		out = append(out, rt.ExternalRoute{
			AdvertisingRouter: l.Header.AdvertisingRouter,
			LinkStateID:       l.Header.LinkStateID,
			NetworkMask:       body.NetworkMask,
			EBit:              body.EBit,
			Metric:            body.Metric,
			ForwardingAddress: body.ForwardingAddress,
		})
	}
	return out
}

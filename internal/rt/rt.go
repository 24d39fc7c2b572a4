// Package rt implements the OSPF routing table: the per-destination best
// route selection across area-internal (SPF), inter-area (Summary-LSA),
// and AS-external (AS-External-LSA) sources, and reconciliation of the
// resulting table against a kernel FIB.
package rt

import (
	"fmt"
	"net"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/fib"
	"github.com/ospfd/ospfd/internal/spf"
)

// DestType distinguishes a network destination (installed to the kernel
// FIB) from an ASBR destination (kept only to resolve AS-external
// forwarding addresses, per spec section 3).
type DestType int

const (
	NetworkDest DestType = iota
	RouterDest
)

// PathType orders routing table items by OSPF's route preference (RFC
// 2328 section 11): area-internal routes beat inter-area routes beat
// type-1 external routes beat type-2 external routes.
type PathType int

const (
	AreaInternal PathType = iota
	AreaExternal
	AsExternalT1
	AsExternalT2
)

// Key identifies a routing table destination: a (network, mask) pair, or
// an ASBR router ID.
type Key struct {
	DestType DestType
	DestID   ospf.ID
	Mask     ospf.ID
}

// An Item is one routing table entry.
type Item struct {
	DestType    DestType
	DestID      ospf.ID
	Mask        ospf.ID
	AreaID      ospf.ID
	PathType    PathType
	Cost        uint32
	CostT2      uint32
	NextHop     net.IP // nil means directly attached (0.0.0.0)
	Iface       string
	AdRouter    ospf.ID
	ExternalCap bool
}

// Key returns i's destination key.
func (i Item) Key() Key { return Key{DestType: i.DestType, DestID: i.DestID, Mask: i.Mask} }

// Better reports whether i is strictly preferred over other under RFC
// 2328 section 11's ordering: PathType ascending, then CostT2 ascending,
// then Cost ascending.
func (i Item) Better(other Item) bool {
	if i.PathType != other.PathType {
		return i.PathType < other.PathType
	}
	if i.CostT2 != other.CostT2 {
		return i.CostT2 < other.CostT2
	}
	return i.Cost < other.Cost
}

// Table is a routing table keyed by destination, always holding the best
// Item seen for each key.
type Table struct {
	items map[Key]Item
}

// New returns an empty Table.
func New() *Table {
	return &Table{items: make(map[Key]Item)}
}

// Offer inserts candidate if no item exists yet for its key, or replaces
// the existing one if candidate is Better.
func (t *Table) Offer(candidate Item) {
	k := candidate.Key()
	if existing, ok := t.items[k]; !ok || candidate.Better(existing) {
		t.items[k] = candidate
	}
}

// Get returns the item stored for key, if any.
func (t *Table) Get(key Key) (Item, bool) {
	i, ok := t.items[key]
	return i, ok
}

// Items returns every item in the table, in no particular order.
func (t *Table) Items() []Item {
	out := make([]Item, 0, len(t.items))
	for _, i := range t.items {
		out = append(out, i)
	}
	return out
}

// BuildAreaInternal offers an AreaInternal Item for two kinds of settled
// vertex in tree: a StubNode becomes a network destination at the
// vertex's own cost, and a RouterNode whose advertised LSA sets the e-bit
// becomes an ASBR destination so AS-external route derivation can resolve
// forwarding addresses through it. NetworkNode vertices (transit
// networks) and routers without the e-bit produce no Item.
func (t *Table) BuildAreaInternal(areaID ospf.ID, tree *spf.Tree, asbrs map[ospf.ID]bool) {
	for key, v := range tree.Vertices {
		switch key.Kind {
		case spf.StubNode:
			t.Offer(Item{
				DestType: NetworkDest,
				DestID:   key.ID,
				Mask:     key.Mask,
				AreaID:   areaID,
				PathType: AreaInternal,
				Cost:     v.Cost,
				NextHop:  firstOrNil(v.NextHops),
				AdRouter: key.ID,
			})
		case spf.RouterNode:
			if asbrs[key.ID] {
				t.Offer(Item{
					DestType: RouterDest,
					DestID:   key.ID,
					AreaID:   areaID,
					PathType: AreaInternal,
					Cost:     v.Cost,
					NextHop:  firstOrNil(v.NextHops),
					AdRouter: key.ID,
				})
			}
		}
	}
}

func firstOrNil(ips []net.IP) net.IP {
	if len(ips) == 0 {
		return nil
	}
	return ips[0]
}

// SummaryRoute is the subset of a Summary-LSA (type 3 or 4) that route
// derivation needs.
type SummaryRoute struct {
	AdvertisingRouter ospf.ID
	Type              ospf.LSType // SummaryIPLSA or SummaryASBRLSA
	LinkStateID       ospf.ID     // network address, or the ASBR's router ID for type 4
	NetworkMask       ospf.ID
	Metric            uint32
}

// DeriveInterArea offers one AreaExternal Item per SummaryRoute whose
// advertising router is reachable (as an AreaInternal ASBR or, for type
// 3, simply present in the table already) with finite cost, per spec
// section 4.7's inter-area rule. targetArea is the area these summaries
// were received in; the backbone's own inter-area routes additionally
// exclude re-deriving AreaExternal entries, handled by the caller
// skipping backbone summaries before calling this.
func (t *Table) DeriveInterArea(targetArea ospf.ID, summaries []SummaryRoute) {
	for _, s := range summaries {
		br, ok := t.Get(Key{DestType: RouterDest, DestID: s.AdvertisingRouter})
		if !ok || br.Cost >= ospf.LSInfinity {
			continue
		}
		cost := br.Cost + s.Metric
		if cost >= ospf.LSInfinity {
			continue
		}

		switch s.Type {
		case ospf.SummaryIPLSA:
			t.Offer(Item{
				DestType: NetworkDest,
				DestID:   s.LinkStateID,
				Mask:     s.NetworkMask,
				AreaID:   targetArea,
				PathType: AreaExternal,
				Cost:     cost,
				NextHop:  br.NextHop,
				Iface:    br.Iface,
				AdRouter: s.AdvertisingRouter,
			})
		case ospf.SummaryASBRLSA:
			t.Offer(Item{
				DestType: RouterDest,
				DestID:   s.LinkStateID,
				AreaID:   targetArea,
				PathType: AreaExternal,
				Cost:     cost,
				NextHop:  br.NextHop,
				Iface:    br.Iface,
				AdRouter: s.AdvertisingRouter,
			})
		}
	}
}

// ExternalRoute is the subset of an AS-External-LSA route derivation
// needs.
type ExternalRoute struct {
	AdvertisingRouter ospf.ID
	LinkStateID       ospf.ID // network address
	NetworkMask       ospf.ID
	EBit              bool // type 2 (non-comparable) metric
	Metric            uint32
	ForwardingAddress ospf.ID
}

// DeriveExternal offers one AS-external Item per ExternalRoute whose
// forwarding router (the ASBR itself, or the table entry covering a
// nonzero forwarding address) is reachable with finite cost, per spec
// section 4.7's external-route rule. AS-external routes are always
// recorded against the backbone area.
func (t *Table) DeriveExternal(routes []ExternalRoute, resolveForwarding func(addr ospf.ID) (Item, bool)) {
	for _, e := range routes {
		var forwarding Item
		var ok bool
		if e.ForwardingAddress != (ospf.ID{}) {
			forwarding, ok = resolveForwarding(e.ForwardingAddress)
		} else {
			forwarding, ok = t.Get(Key{DestType: RouterDest, DestID: e.AdvertisingRouter})
		}
		if !ok || forwarding.Cost >= ospf.LSInfinity {
			continue
		}

		item := Item{
			DestType: NetworkDest,
			DestID:   e.LinkStateID,
			Mask:     e.NetworkMask,
			AreaID:   ospf.BackboneArea,
			NextHop:  forwarding.NextHop,
			Iface:    forwarding.Iface,
			AdRouter: e.AdvertisingRouter,
		}
		if e.EBit {
			item.PathType = AsExternalT2
			item.Cost = forwarding.Cost
			item.CostT2 = e.Metric
		} else {
			item.PathType = AsExternalT1
			item.Cost = forwarding.Cost + e.Metric
			item.CostT2 = 0
		}
		if item.Cost >= ospf.LSInfinity {
			continue
		}
		t.Offer(item)
	}
}

// toRoute converts a NetworkDest Item to the fib.Route used to install
// it, resolving a nil NextHop to the unspecified address.
func toRoute(i Item) fib.Route {
	nh := i.NextHop
	if nh == nil {
		nh = net.IPv4zero
	}
	return fib.Route{
		Dest:    net.IP(i.DestID[:]),
		Mask:    net.IPMask(i.Mask[:]),
		NextHop: nh,
		Iface:   i.Iface,
		Metric:  i.Cost,
	}
}

func routeEqual(a, b fib.Route) bool {
	return a.Dest.Equal(b.Dest) && string(a.Mask) == string(b.Mask) && a.NextHop.Equal(b.NextHop)
}

// Reconcile diffs oldItems against newItems, keyed by destination, and
// installs the difference into f: items only in newItems are added
// (AlreadyExists is resolved by f.Add itself, per spec section 4.8);
// items only in oldItems are deleted (NotFound is not an error, also
// resolved by f.Delete); items in both with an identical route are left
// alone. Only NetworkDest items are installed; RouterDest entries exist
// solely to resolve forwarding addresses and have no kernel route of
// their own.
func Reconcile(oldItems, newItems []Item, f fib.FIB) error {
	oldByKey := make(map[Key]Item, len(oldItems))
	for _, i := range oldItems {
		if i.DestType == NetworkDest {
			oldByKey[i.Key()] = i
		}
	}
	newByKey := make(map[Key]Item, len(newItems))
	for _, i := range newItems {
		if i.DestType == NetworkDest {
			newByKey[i.Key()] = i
		}
	}

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for k, ni := range newByKey {
		nr := toRoute(ni)
		if oi, ok := oldByKey[k]; ok && routeEqual(toRoute(oi), nr) {
			continue
		}
		if err := f.Add(nr); err != nil {
			note(fmt.Errorf("rt: add %s: %w", nr, err))
		}
	}

	for k, oi := range oldByKey {
		if _, stillWanted := newByKey[k]; stillWanted {
			continue
		}
		if err := f.Delete(toRoute(oi)); err != nil {
			note(fmt.Errorf("rt: delete %s: %w", toRoute(oi), err))
		}
	}

	return firstErr
}

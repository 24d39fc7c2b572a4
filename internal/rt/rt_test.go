package rt

import (
	"net"
	"testing"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/fib"
)

func TestItemBetterOrdering(t *testing.T) {
	internal := Item{PathType: AreaInternal, Cost: 100}
	external := Item{PathType: AreaExternal, Cost: 1}
	if !internal.Better(external) {
		t.Fatalf("AreaInternal should beat AreaExternal regardless of cost")
	}

	t1 := Item{PathType: AsExternalT1, Cost: 50}
	t2 := Item{PathType: AsExternalT2, CostT2: 1, Cost: 1}
	if !t1.Better(t2) {
		t.Fatalf("type-1 external should beat type-2 external")
	}

	cheap := Item{PathType: AreaInternal, Cost: 5}
	expensive := Item{PathType: AreaInternal, Cost: 10}
	if !cheap.Better(expensive) {
		t.Fatalf("lower cost should win within the same path type")
	}
}

func TestTableOfferKeepsBest(t *testing.T) {
	tbl := New()
	dest := ospf.ID{10, 0, 0, 0}
	mask := ospf.ID{255, 255, 255, 0}

	tbl.Offer(Item{DestType: NetworkDest, DestID: dest, Mask: mask, PathType: AreaExternal, Cost: 20})
	tbl.Offer(Item{DestType: NetworkDest, DestID: dest, Mask: mask, PathType: AreaInternal, Cost: 100})

	got, ok := tbl.Get(Key{DestType: NetworkDest, DestID: dest, Mask: mask})
	if !ok {
		t.Fatalf("expected an entry")
	}
	if got.PathType != AreaInternal {
		t.Fatalf("expected AreaInternal to win despite higher cost, got %v", got.PathType)
	}
}

func TestReconcileAddsAndDeletes(t *testing.T) {
	f := fib.NewMemFIB()

	old := []Item{
		{DestType: NetworkDest, DestID: ospf.ID{10, 0, 0, 0}, Mask: ospf.ID{255, 255, 255, 0}, NextHop: nil, Iface: "eth0", Cost: 1},
	}
	for _, i := range old {
		if err := f.Add(toRoute(i)); err != nil {
			t.Fatalf("seed Add: %v", err)
		}
	}

	next := []Item{
		{DestType: NetworkDest, DestID: ospf.ID{10, 0, 0, 0}, Mask: ospf.ID{255, 255, 255, 0}, NextHop: nil, Iface: "eth0", Cost: 1},
		{DestType: NetworkDest, DestID: ospf.ID{10, 0, 1, 0}, Mask: ospf.ID{255, 255, 255, 0}, NextHop: net.IPv4(10, 0, 0, 2), Iface: "eth0", Cost: 11},
	}

	if err := Reconcile(old, next, f); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	routes, err := f.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes after reconcile, got %d: %v", len(routes), routes)
	}
}

func TestReconcileRemovesStale(t *testing.T) {
	f := fib.NewMemFIB()

	old := []Item{
		{DestType: NetworkDest, DestID: ospf.ID{10, 0, 0, 0}, Mask: ospf.ID{255, 255, 255, 0}, Iface: "eth0", Cost: 1},
	}
	for _, i := range old {
		if err := f.Add(toRoute(i)); err != nil {
			t.Fatalf("seed Add: %v", err)
		}
	}

	if err := Reconcile(old, nil, f); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	routes, err := f.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(routes) != 0 {
		t.Fatalf("expected route to be removed, got %v", routes)
	}
}

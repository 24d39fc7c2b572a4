package daemon

import (
	"context"
	"net"
	"testing"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/iface"
)

func TestAsbrRouters(t *testing.T) {
	asbr := ospf.ID{1, 1, 1, 1}
	notASBR := ospf.ID{2, 2, 2, 2}

	lsas := []ospf.LSA{
		{
			Header: ospf.LSAHeader{Type: ospf.RouterLSA, AdvertisingRouter: asbr},
			Body:   &ospf.RouterLSABody{EBit: true},
		},
		{
			Header: ospf.LSAHeader{Type: ospf.RouterLSA, AdvertisingRouter: notASBR},
			Body:   &ospf.RouterLSABody{EBit: false},
		},
		{
			Header: ospf.LSAHeader{Type: ospf.NetworkLSA, AdvertisingRouter: asbr},
			Body:   &ospf.NetworkLSABody{},
		},
	}

	got := asbrRouters(lsas)
	if !got[asbr] {
		t.Fatalf("expected %s to be recognized as an ASBR", asbr)
	}
	if got[notASBR] {
		t.Fatalf("%s has e-bit unset, should not be an ASBR", notASBR)
	}
}

func TestSummaryRoutesFromFiltersByType(t *testing.T) {
	table := []ospf.LSA{
		{
			Header: ospf.LSAHeader{Type: ospf.SummaryIPLSA, LinkStateID: ospf.ID{10, 0, 0, 0}, AdvertisingRouter: ospf.ID{1, 1, 1, 1}},
			Body:   &ospf.SummaryLSABody{Type: ospf.SummaryIPLSA, NetworkMask: ospf.ID{255, 255, 255, 0}, Metric: 10},
		},
		{
			Header: ospf.LSAHeader{Type: ospf.RouterLSA, AdvertisingRouter: ospf.ID{1, 1, 1, 1}},
			Body:   &ospf.RouterLSABody{},
		},
	}

	got := summaryRoutesFrom(wrapTable(table))
	if len(got) != 1 {
		t.Fatalf("expected exactly one summary route, got %d", len(got))
	}
	if got[0].Metric != 10 {
		t.Fatalf("unexpected metric %d", got[0].Metric)
	}
}

func TestSummaryRoutesFromNilTable(t *testing.T) {
	if got := summaryRoutesFrom(nil); got != nil {
		t.Fatalf("expected nil result for a nil table, got %v", got)
	}
}

func TestExternalRoutesFrom(t *testing.T) {
	table := []ospf.LSA{
		{
			Header: ospf.LSAHeader{Type: ospf.ASExternalLSA, LinkStateID: ospf.ID{192, 168, 1, 0}, AdvertisingRouter: ospf.ID{3, 3, 3, 3}},
			Body: &ospf.ASExternalLSABody{
				NetworkMask:       ospf.ID{255, 255, 255, 0},
				EBit:              true,
				Metric:            20,
				ForwardingAddress: ospf.ID{},
			},
		},
	}

	got := externalRoutesFrom(wrapTable(table))
	if len(got) != 1 {
		t.Fatalf("expected one external route, got %d", len(got))
	}
	if !got[0].EBit || got[0].Metric != 20 {
		t.Fatalf("unexpected external route %+v", got[0])
	}
}

// wrapTable adapts a plain slice to the interface{ All() []ospf.LSA } shape
// summaryRoutesFrom/externalRoutesFrom accept, without pulling in a real
// *lsdb.Table for what is otherwise pure filtering logic.
type fakeTable []ospf.LSA

func (f fakeTable) All() []ospf.LSA { return []ospf.LSA(f) }

func wrapTable(lsas []ospf.LSA) fakeTable { return fakeTable(lsas) }

func TestLockAllOrdersByAddress(t *testing.T) {
	d := &Daemon{interfaces: map[string]*runtimeIface{
		"eth1": newTestIface("eth1", ospf.ID{10, 0, 0, 2}),
		"eth0": newTestIface("eth0", ospf.ID{10, 0, 0, 1}),
		"eth2": newTestIface("eth2", ospf.ID{10, 0, 0, 3}),
	}}

	g, unlock := d.lockAll("eth1")
	defer unlock()

	if len(g.Interfaces) != 3 {
		t.Fatalf("expected 3 interfaces, got %d", len(g.Interfaces))
	}
	for i := 1; i < len(g.Interfaces); i++ {
		prev, cur := g.Interfaces[i-1].fsm.Addr, g.Interfaces[i].fsm.Addr
		if bytesCompare(prev[:], cur[:]) > 0 {
			t.Fatalf("interfaces not in ascending address order: %v before %v", prev, cur)
		}
	}
	if g.Me == nil || g.Me.fsm.Name != "eth1" {
		t.Fatalf("expected Me to resolve to eth1")
	}
}

func bytesCompare(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func newTestIface(name string, addr ospf.ID) *runtimeIface {
	return &runtimeIface{
		fsm:       iface.New(name, addr, net.CIDRMask(24, 32), ospf.BackboneArea, 1),
		ddCancel:  make(map[ospf.ID]context.CancelFunc),
		lsrCancel: make(map[ospf.ID]context.CancelFunc),
	}
}

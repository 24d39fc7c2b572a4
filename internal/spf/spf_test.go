package spf

import (
	"net"
	"testing"

	"github.com/ospfd/ospfd"
)

// TestRunS1 models spec scenario S1: R1 (1.1.1.1) and R2 (2.2.2.2) on a
// shared Ethernet 10.0.0.0/24, DR = R2. Each router's Router-LSA carries
// one transit link to the network (link ID = DR address 10.0.0.2, link
// data = the router's own interface address), and the Network-LSA lists
// both routers as attached. R2's Router-LSA sets the V bit, so the
// network should settle as transit capable. Expected: R1 settles the
// network at cost 10 (the advertised link metric) with no next hop
// (directly attached).
func TestRunS1(t *testing.T) {
	r1 := ospf.ID{1, 1, 1, 1}
	r2 := ospf.ID{2, 2, 2, 2}
	dr := ospf.ID{10, 0, 0, 2}

	lsas := []ospf.LSA{
		{
			Header: ospf.LSAHeader{Type: ospf.RouterLSA, AdvertisingRouter: r1, LinkStateID: r1},
			Body: &ospf.RouterLSABody{Links: []ospf.RouterLink{
				{ID: dr, Data: ospf.ID{10, 0, 0, 1}, Type: ospf.LinkTransit, Metric: 10},
			}},
		},
		{
			Header: ospf.LSAHeader{Type: ospf.RouterLSA, AdvertisingRouter: r2, LinkStateID: r2},
			Body: &ospf.RouterLSABody{
				VBit: true,
				Links: []ospf.RouterLink{
					{ID: dr, Data: ospf.ID{10, 0, 0, 2}, Type: ospf.LinkTransit, Metric: 10},
				},
			},
		},
		{
			Header: ospf.LSAHeader{Type: ospf.NetworkLSA, AdvertisingRouter: r2, LinkStateID: dr},
			Body: &ospf.NetworkLSABody{
				NetworkMask:     ospf.ID{255, 255, 255, 0},
				AttachedRouters: []ospf.ID{r1, r2},
			},
		},
	}

	tree := Run(r1, lsas)

	netKey := NodeKey{Kind: NetworkNode, ID: dr}
	v, ok := tree.Vertices[netKey]
	if !ok {
		t.Fatalf("network vertex not settled")
	}
	if v.Cost != 10 {
		t.Fatalf("cost = %d, want 10", v.Cost)
	}
	if len(v.NextHops) != 0 {
		t.Fatalf("expected directly attached network to have no next hop, got %v", v.NextHops)
	}
	if !v.TransitCapable {
		t.Fatalf("expected network whose DR set the V bit to be transit capable")
	}

	r2Key := NodeKey{Kind: RouterNode, ID: r2}
	rv, ok := tree.Vertices[r2Key]
	if !ok {
		t.Fatalf("router R2 vertex not settled")
	}
	if rv.Cost != 10 {
		t.Fatalf("R2 cost = %d, want 10", rv.Cost)
	}
	want := net.IP(ospf.ID{10, 0, 0, 2}[:])
	if len(rv.NextHops) != 1 || !rv.NextHops[0].Equal(want) {
		t.Fatalf("R2 next hops = %v, want [%v]", rv.NextHops, want)
	}
}

func TestRunAsymmetricLinkNotCredited(t *testing.T) {
	r1 := ospf.ID{1, 1, 1, 1}
	r2 := ospf.ID{2, 2, 2, 2}

	lsas := []ospf.LSA{
		{
			Header: ospf.LSAHeader{Type: ospf.RouterLSA, AdvertisingRouter: r1, LinkStateID: r1},
			Body: &ospf.RouterLSABody{Links: []ospf.RouterLink{
				{ID: r2, Data: ospf.ID{10, 0, 0, 1}, Type: ospf.LinkPointToPoint, Metric: 5},
			}},
		},
		{
			Header: ospf.LSAHeader{Type: ospf.RouterLSA, AdvertisingRouter: r2, LinkStateID: r2},
			Body:   &ospf.RouterLSABody{Links: nil},
		},
	}

	tree := Run(r1, lsas)
	if _, ok := tree.Vertices[NodeKey{Kind: RouterNode, ID: r2}]; ok {
		t.Fatalf("R2 should not be reachable: R1's link to it is not confirmed by a reverse link")
	}
}

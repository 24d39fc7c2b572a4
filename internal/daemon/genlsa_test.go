package daemon

import (
	"testing"

	"golang.org/x/time/rate"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/lsdb"
)

func TestSameBodyDetectsIdenticalRouterLSA(t *testing.T) {
	a := &ospf.RouterLSABody{
		EBit: true,
		Links: []ospf.RouterLink{
			{ID: ospf.ID{10, 0, 0, 1}, Data: ospf.ID{255, 255, 255, 0}, Type: ospf.LinkStub, Metric: 10},
		},
	}
	b := &ospf.RouterLSABody{
		EBit: true,
		Links: []ospf.RouterLink{
			{ID: ospf.ID{10, 0, 0, 1}, Data: ospf.ID{255, 255, 255, 0}, Type: ospf.LinkStub, Metric: 10},
		},
	}
	if !sameBody(a, b) {
		t.Fatalf("expected identical Router-LSA bodies to compare equal")
	}
}

func TestSameBodyDetectsChangedMetric(t *testing.T) {
	a := &ospf.RouterLSABody{Links: []ospf.RouterLink{{Metric: 10}}}
	b := &ospf.RouterLSABody{Links: []ospf.RouterLink{{Metric: 20}}}
	if sameBody(a, b) {
		t.Fatalf("expected bodies with different metrics to compare unequal")
	}
}

func TestSameBodyRejectsDifferentTypes(t *testing.T) {
	a := &ospf.RouterLSABody{}
	b := &ospf.NetworkLSABody{NetworkMask: ospf.ID{255, 255, 255, 0}}
	if sameBody(a, b) {
		t.Fatalf("bodies of different LSA types must never compare equal")
	}
}

func TestTypeOf(t *testing.T) {
	cases := []struct {
		body ospf.LSABody
		want ospf.LSType
	}{
		{&ospf.RouterLSABody{}, ospf.RouterLSA},
		{&ospf.NetworkLSABody{}, ospf.NetworkLSA},
		{&ospf.SummaryLSABody{Type: ospf.SummaryASBRLSA}, ospf.SummaryASBRLSA},
		{&ospf.ASExternalLSABody{}, ospf.ASExternalLSA},
	}
	for _, c := range cases {
		if got := typeOf(c.body); got != c.want {
			t.Fatalf("typeOf(%T) = %v, want %v", c.body, got, c.want)
		}
	}
}

func TestLimiterForReusesLimiterPerKey(t *testing.T) {
	d := &Daemon{originLimiters: make(map[lsdb.Key]*rate.Limiter)}
	key := lsdb.Key{Type: ospf.RouterLSA, AdvertisingRouter: ospf.ID{1, 1, 1, 1}}

	first := d.limiterFor(key)
	second := d.limiterFor(key)
	if first != second {
		t.Fatalf("expected the same limiter instance to be reused for an identical key")
	}

	other := d.limiterFor(lsdb.Key{Type: ospf.RouterLSA, AdvertisingRouter: ospf.ID{2, 2, 2, 2}})
	if first == other {
		t.Fatalf("expected distinct keys to get distinct limiters")
	}
}

package daemon

import (
	"testing"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/rt"
)

func TestQueryableInterfaceSatisfied(t *testing.T) {
	var _ Queryable = (*Daemon)(nil)
}

func TestRoutingTableReturnsCurrentItems(t *testing.T) {
	d := &Daemon{routes: rt.New()}
	if got := d.RoutingTable(); len(got) != 0 {
		t.Fatalf("expected an empty routing table, got %d items", len(got))
	}
}

func TestFIBWithoutAdapterReturnsError(t *testing.T) {
	d := &Daemon{}
	if _, err := d.FIB(); err == nil {
		t.Fatalf("expected an error when no FIB adapter is configured")
	}
}

func TestNeighborsUnknownInterfaceReturnsEmpty(t *testing.T) {
	d := &Daemon{interfaces: map[string]*runtimeIface{}}
	if got := d.Neighbors("eth9"); got != nil {
		t.Fatalf("expected nil for an unknown interface, got %v", got)
	}
}

func TestSetInterfaceAreaRejectsUnknownInterface(t *testing.T) {
	d := &Daemon{interfaces: map[string]*runtimeIface{}, areas: map[ospf.ID]*area{}}
	if err := d.SetInterfaceArea("eth9", ospf.BackboneArea); err == nil {
		t.Fatalf("expected an error for an unknown interface")
	}
}

func TestSetInterfaceCostRejectsUnknownInterface(t *testing.T) {
	d := &Daemon{interfaces: map[string]*runtimeIface{}}
	if err := d.SetInterfaceCost("eth9", 5); err == nil {
		t.Fatalf("expected an error for an unknown interface")
	}
}

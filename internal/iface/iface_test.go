package iface

import (
	"net"
	"testing"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/neighbor"
)

func TestUpPointToPoint(t *testing.T) {
	i := New("eth0", ospf.ID{10, 0, 0, 1}, net.CIDRMask(24, 32), ospf.BackboneArea, 1)
	r := i.Up(neighbor.PointToPoint)
	if r.To != PointToPoint {
		t.Fatalf("got %v, want PointToPoint", r.To)
	}
	if !r.StartHelloTimer || r.StartWaitTimer {
		t.Fatalf("unexpected timer flags: %+v", r)
	}
}

func TestUpBroadcastPriorityZero(t *testing.T) {
	i := New("eth0", ospf.ID{10, 0, 0, 1}, net.CIDRMask(24, 32), ospf.BackboneArea, 0)
	r := i.Up(neighbor.Broadcast)
	if r.To != DROther {
		t.Fatalf("got %v, want DROther", r.To)
	}
}

func TestUpBroadcastGoesWaiting(t *testing.T) {
	i := New("eth0", ospf.ID{10, 0, 0, 1}, net.CIDRMask(24, 32), ospf.BackboneArea, 1)
	r := i.Up(neighbor.Broadcast)
	if r.To != Waiting || !r.StartWaitTimer {
		t.Fatalf("got %+v, want Waiting with StartWaitTimer", r)
	}
}

// TestElectionS1 models spec scenario S1: R1 (10.0.0.1, id 1.1.1.1) and
// R2 (10.0.0.2, id 2.2.2.2), both priority 1, on a shared broadcast
// network where both have heard each other in Hellos and R2, having run
// its own election, already declares itself DR. Expected: DR = 2.2.2.2
// (higher router ID), BDR = 1.1.1.1.
func TestElectionS1(t *testing.T) {
	self := ospf.ID{1, 1, 1, 1}
	i := New("eth0", self, net.CIDRMask(24, 32), ospf.BackboneArea, 1)
	i.NetType = neighbor.Broadcast
	i.State = Waiting

	peer := ospf.ID{2, 2, 2, 2}
	n := neighbor.New(peer, peer, 1)
	n.Dispatch(neighbor.HelloReceived, neighbor.AdjacencyContext{})
	n.State = neighbor.TwoWay
	n.DR = peer
	i.Neighbors[peer] = n

	changed := i.Elect()
	if !changed {
		t.Fatalf("expected election to change DR/BDR from empty")
	}
	if i.DR != peer {
		t.Fatalf("DR = %v, want %v (higher router id)", i.DR, peer)
	}
	if i.BDR != self {
		t.Fatalf("BDR = %v, want %v (self)", i.BDR, self)
	}
	if i.State != Backup {
		t.Fatalf("interface state = %v, want Backup", i.State)
	}
}

func TestElectionNoCandidatesStaysEmpty(t *testing.T) {
	i := New("eth0", ospf.ID{1, 1, 1, 1}, net.CIDRMask(24, 32), ospf.BackboneArea, 0)
	i.NetType = neighbor.Broadcast
	changed := i.Elect()
	if changed {
		t.Fatalf("expected no change with zero-priority self and no neighbors")
	}
	if i.DR != (ospf.ID{}) || i.BDR != (ospf.ID{}) {
		t.Fatalf("expected DR/BDR to remain unset")
	}
	if i.State != DROther {
		t.Fatalf("got state %v, want DROther", i.State)
	}
}

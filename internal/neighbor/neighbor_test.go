package neighbor

import (
	"testing"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/lsdb"
)

func TestDispatchTotal(t *testing.T) {
	states := []State{Down, Attempt, Init, TwoWay, ExStart, Exchange, Loading, Full}
	events := []Event{
		HelloReceived, Start, TwoWayReceived, NegotiationDone, ExchangeDone, BadLSReq,
		LoadingDone, AdjOK, SeqNumberMismatch, OneWayReceived, KillNbr, InactivityTimer, LLDown,
	}

	for _, s := range states {
		for _, e := range events {
			n := New(ospf.ID{1, 1, 1, 1}, ospf.ID{10, 0, 0, 2}, 1)
			n.State = s
			// Must not panic, and must always land in a valid state.
			r := n.Dispatch(e, AdjacencyContext{NetType: Broadcast})
			if r.To < Down || r.To > Full {
				t.Fatalf("state %v + event %v produced invalid state %v", s, e, r.To)
			}
		}
	}
}

func TestHelloReceivedFromDownGoesToInit(t *testing.T) {
	n := New(ospf.ID{1, 1, 1, 1}, ospf.ID{10, 0, 0, 2}, 1)
	r := n.Dispatch(HelloReceived, AdjacencyContext{})
	if r.To != Init {
		t.Fatalf("got %v, want Init", r.To)
	}
	if !r.ResetInactivity {
		t.Fatalf("expected ResetInactivity")
	}
}

func TestTwoWayReceivedP2PGoesToExStart(t *testing.T) {
	n := New(ospf.ID{1, 1, 1, 1}, ospf.ID{10, 0, 0, 2}, 1)
	n.State = Init
	r := n.Dispatch(TwoWayReceived, AdjacencyContext{NetType: PointToPoint})
	if r.To != ExStart || !r.EnterExStart {
		t.Fatalf("got %+v, want ExStart with EnterExStart", r)
	}
}

func TestTwoWayReceivedBroadcastDROtherStaysTwoWay(t *testing.T) {
	n := New(ospf.ID{1, 1, 1, 1}, ospf.ID{10, 0, 0, 2}, 1)
	n.State = Init
	r := n.Dispatch(TwoWayReceived, AdjacencyContext{NetType: Broadcast})
	if r.To != TwoWay {
		t.Fatalf("got %v, want TwoWay", r.To)
	}
}

func TestExchangeDoneWithPendingRequestsGoesToLoading(t *testing.T) {
	n := New(ospf.ID{1, 1, 1, 1}, ospf.ID{10, 0, 0, 2}, 1)
	n.State = Exchange
	n.LSRequestListSet([]ospf.LSAHeader{{Type: ospf.RouterLSA}})
	r := n.Dispatch(ExchangeDone, AdjacencyContext{})
	if r.To != Loading || !r.BeginLoading {
		t.Fatalf("got %+v, want Loading with BeginLoading", r)
	}
}

func TestExchangeDoneEmptyGoesToFull(t *testing.T) {
	n := New(ospf.ID{1, 1, 1, 1}, ospf.ID{10, 0, 0, 2}, 1)
	n.State = Exchange
	r := n.Dispatch(ExchangeDone, AdjacencyContext{})
	if r.To != Full {
		t.Fatalf("got %v, want Full", r.To)
	}
}

func TestInactivityTimerAlwaysGoesDown(t *testing.T) {
	n := New(ospf.ID{1, 1, 1, 1}, ospf.ID{10, 0, 0, 2}, 1)
	n.State = Full
	key := lsdb.Key{Type: ospf.RouterLSA}
	n.LSRetransmissionAdd(key)
	r := n.Dispatch(InactivityTimer, AdjacencyContext{})
	if r.To != Down {
		t.Fatalf("got %v, want Down", r.To)
	}
	if n.LSRetransmissionContains(key) {
		t.Fatalf("retransmission list not cleared on InactivityTimer")
	}
}

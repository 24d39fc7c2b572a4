package daemon

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/iface"
	"github.com/ospfd/ospfd/internal/neighbor"
)

// runInterface is the goroutine-per-interface this daemon runs for the
// lifetime of ctx: it opens the raw socket, raises InterfaceUp, starts the
// Hello emitter, and then alternates between feeding its own capture loop
// and draining the resulting channel in receive order (spec section 5).
func (d *Daemon) runInterface(ctx context.Context, name string, ri *runtimeIface) error {
	netIfi, err := net.InterfaceByName(name)
	if err != nil {
		return d.fatal("look up interface "+name, err)
	}

	conn, err := ospf.Listen(netIfi)
	if err != nil {
		return d.fatal("listen on interface "+name, err)
	}
	ri.conn = conn
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	netType := netTypeOf(netIfi.Flags)
	res := ri.fsm.Up(netType)
	d.applyInterfaceResult(ctx, ri, res)

	go d.captureLoop(ctx, ri)

	for {
		select {
		case <-ctx.Done():
			ri.fsm.InterfaceDown()
			return nil
		case rp := <-ri.recv:
			d.dispatchPacket(ctx, ri, rp)
		}
	}
}

// captureLoop reads decoded packets off the wire and hands them to the
// owning interface's goroutine over a buffered channel, holding no locks
// itself (spec section 5's demultiplexer rule).
func (d *Daemon) captureLoop(ctx context.Context, ri *runtimeIface) {
	for {
		if ctx.Err() != nil {
			return
		}
		ri.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		pkt, _, src, err := ri.conn.ReadFrom()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			d.log.Warn("transport read error", zap.String("iface", ri.fsm.Name), zap.Error(err))
			continue
		}
		select {
		case ri.recv <- recvPacket{pkt: pkt, src: src.IP}:
		case <-ctx.Done():
			return
		}
	}
}

// applyInterfaceResult performs the side effects an iface.Result names:
// arming or stopping the Hello/Wait timers and running an election.
func (d *Daemon) applyInterfaceResult(ctx context.Context, ri *runtimeIface, res iface.Result) {
	if res.StartHelloTimer && ri.helloCancel == nil {
		hctx, cancel := context.WithCancel(ctx)
		ri.helloCancel = cancel
		go d.helloLoop(hctx, ri)
	}
	if res.StartWaitTimer && ri.waitCancel == nil {
		wctx, cancel := context.WithCancel(ctx)
		ri.waitCancel = cancel
		go d.waitTimer(wctx, ri)
	}
	if res.StopTimers {
		if ri.helloCancel != nil {
			ri.helloCancel()
			ri.helloCancel = nil
		}
		if ri.waitCancel != nil {
			ri.waitCancel()
			ri.waitCancel = nil
		}
	}
	if res.RunElection {
		d.runElection(ri)
	}
}

// helloLoop sends a Hello out ri every HelloInterval until ctx is
// canceled.
func (d *Daemon) helloLoop(ctx context.Context, ri *runtimeIface) {
	t := time.NewTicker(ri.fsm.HelloInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.sendHello(ri)
		}
	}
}

// waitTimer fires once after DeadInterval and raises the interface FSM's
// WaitTimer event, which runs the initial DR/BDR election.
func (d *Daemon) waitTimer(ctx context.Context, ri *runtimeIface) {
	timer := time.NewTimer(ri.fsm.DeadInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		res := ri.fsm.WaitTimerFired()
		ri.waitCancel = nil
		d.applyInterfaceResult(ctx, ri, res)
	}
}

// sendHello builds and transmits a Hello packet per spec section 4.4's
// emission rule: neighbor list is every known neighbor in state ≥ Init.
func (d *Daemon) sendHello(ri *runtimeIface) {
	ri.fsm.Lock()
	ids := make([]ospf.ID, 0, len(ri.fsm.Neighbors))
	for _, n := range ri.fsm.Neighbors {
		if n.State >= neighbor.Init {
			ids = append(ids, n.RouterID)
		}
	}
	opts := ospf.Options(0)
	if ri.fsm.ExternalRouting {
		opts |= ospf.EBit
	}
	hello := &ospf.Hello{
		Header:                   ospf.Header{RouterID: d.routerID, AreaID: ri.fsm.AreaID},
		NetworkMask:              ospf.ID(maskToID(ri.fsm.Mask)),
		HelloInterval:            uint16(ri.fsm.HelloInterval / time.Second),
		Options:                  opts,
		RouterPriority:           ri.fsm.RouterPriority,
		RouterDeadInterval:       ri.fsm.DeadInterval,
		DesignatedRouterID:       ri.fsm.DR,
		BackupDesignatedRouterID: ri.fsm.BDR,
		NeighborIDs:              ids,
	}
	ri.fsm.Unlock()

	if err := ri.conn.WriteTo(hello, &net.IPAddr{IP: ospf.AllSPFRouters}); err != nil {
		d.log.Warn("failed to send hello", zap.String("iface", ri.fsm.Name), zap.Error(err))
	}
}

func maskToID(m net.IPMask) ospf.ID {
	var id ospf.ID
	copy(id[:], m)
	return id
}

// runElection runs the DR/BDR election and, if the elected DR or BDR
// changed, raises AdjOK on every neighbor per RFC 2328 section 9.4 step 6.
func (d *Daemon) runElection(ri *runtimeIface) {
	changed := ri.fsm.Elect()
	if !changed {
		return
	}
	ri.fsm.Lock()
	ctx := neighbor.AdjacencyContext{
		NetType:   ri.fsm.NetType,
		SelfIsDR:  ri.fsm.DR == ri.fsm.Addr,
		SelfIsBDR: ri.fsm.BDR == ri.fsm.Addr,
	}
	for _, n := range ri.fsm.Neighbors {
		n.Dispatch(neighbor.AdjOK, ctx)
	}
	ri.fsm.Unlock()
	d.regenerateRouterLSAs()
}

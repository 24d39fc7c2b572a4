package daemon

import (
	"fmt"

	"github.com/ospfd/ospfd"
	"github.com/ospfd/ospfd/internal/fib"
	"github.com/ospfd/ospfd/internal/lsdb"
	"github.com/ospfd/ospfd/internal/neighbor"
	"github.com/ospfd/ospfd/internal/rt"
)

// Queryable is the read/write surface an operator-facing collaborator
// (a CLI, an API server) binds to; this package's own job stops at
// implementing it; nothing here renders output.
type Queryable interface {
	RoutingTable() []rt.Item
	Neighbors(ifaceName string) []neighbor.Snapshot
	LSDBSummary(areaID ospf.ID) []lsdb.Summary
	FIB() ([]fib.Route, error)
	SetInterfaceArea(name string, areaID ospf.ID) error
	SetInterfaceCost(name string, cost uint16) error
}

var _ Queryable = (*Daemon)(nil)

// RoutingTable returns every item in the current routing table.
func (d *Daemon) RoutingTable() []rt.Item {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.routes.Items()
}

// Neighbors returns a snapshot of every neighbor known on ifaceName, or
// every neighbor on every interface if ifaceName is empty.
func (d *Daemon) Neighbors(ifaceName string) []neighbor.Snapshot {
	d.mu.Lock()
	var ifaces []*runtimeIface
	if ifaceName == "" {
		for _, ri := range d.interfaces {
			ifaces = append(ifaces, ri)
		}
	} else if ri, ok := d.interfaces[ifaceName]; ok {
		ifaces = append(ifaces, ri)
	}
	d.mu.Unlock()

	var out []neighbor.Snapshot
	for _, ri := range ifaces {
		out = append(out, ri.fsm.NeighborSnapshots()...)
	}
	return out
}

// LSDBSummary returns a Summary of every LSA stored for areaID, followed,
// when that area carries external routing, by the AS-wide external
// table's entries.
func (d *Daemon) LSDBSummary(areaID ospf.ID) []lsdb.Summary {
	d.mu.Lock()
	a, ok := d.areas[areaID]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	out := a.lsas.Summarize()
	if a.extRt {
		out = append(out, d.db.External().Summarize()...)
	}
	return out
}

// FIB returns every route currently installed in the kernel forwarding
// table this daemon manages.
func (d *Daemon) FIB() ([]fib.Route, error) {
	d.mu.Lock()
	f := d.fibTable
	d.mu.Unlock()
	if f == nil {
		return nil, fmt.Errorf("daemon: no FIB adapter configured")
	}
	return f.Enumerate()
}

// SetInterfaceArea moves the named interface into areaID, which must
// already be registered, and triggers a regeneration of self-originated
// LSAs to reflect the new area membership.
func (d *Daemon) SetInterfaceArea(name string, areaID ospf.ID) error {
	d.mu.Lock()
	ri, ok := d.interfaces[name]
	_, areaOK := d.areas[areaID]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("daemon: no such interface %q", name)
	}
	if !areaOK {
		return fmt.Errorf("daemon: area %s is not registered", areaID)
	}

	ri.fsm.Lock()
	ri.fsm.AreaID = areaID
	ri.fsm.Unlock()

	d.regenerateRouterLSAs()
	return nil
}

// SetInterfaceCost updates the named interface's outgoing cost and
// triggers a regeneration of self-originated LSAs to propagate it.
func (d *Daemon) SetInterfaceCost(name string, cost uint16) error {
	d.mu.Lock()
	ri, ok := d.interfaces[name]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("daemon: no such interface %q", name)
	}

	ri.fsm.Lock()
	ri.fsm.Cost = cost
	ri.fsm.Unlock()

	d.regenerateRouterLSAs()
	return nil
}

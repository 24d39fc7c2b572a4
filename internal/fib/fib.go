// Package fib defines the kernel forwarding table collaborator interface
// described by this daemon's external interfaces: a destination is added,
// deleted, or enumerated without the routing computation caring how that
// is actually carried out. A netlink-backed implementation lives in
// fib_linux.go; a trivial in-memory double for tests lives in memfib.go.
package fib

import (
	"fmt"
	"net"
)

// A Route is a single kernel routing table entry this daemon wants
// installed: Dest/Mask identify the destination network, NextHop and
// Iface name the outgoing path, and Metric carries the OSPF cost so route
// preference ties break the way the kernel's own table expects.
type Route struct {
	Dest    net.IP
	Mask    net.IPMask
	NextHop net.IP
	Iface   string
	Metric  uint32
}

func (r Route) String() string {
	ones, _ := r.Mask.Size()
	return fmt.Sprintf("%s/%d via %s dev %s metric %d", r.Dest, ones, r.NextHop, r.Iface, r.Metric)
}

// FIB is the three-operation kernel forwarding table interface this
// daemon's routing computation depends on.
type FIB interface {
	// Add installs r. Implementations resolve a route that already exists
	// with different parameters by deleting the stale entry first, then
	// retrying the add.
	Add(r Route) error

	// Delete removes r. Deleting a route that is not present is not an
	// error.
	Delete(r Route) error

	// Enumerate lists every route this daemon has installed.
	Enumerate() ([]Route, error)
}

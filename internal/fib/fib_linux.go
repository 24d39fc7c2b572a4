//go:build linux

package fib

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/vishvananda/netlink"
)

var _ FIB = (*NetlinkFIB)(nil)

// NetlinkFIB is a FIB implementation backed by the Linux kernel's routing
// table via github.com/vishvananda/netlink.
type NetlinkFIB struct {
	// ProtocolID distinguishes this daemon's routes from the kernel's own
	// and from other routing daemons sharing the same table.
	ProtocolID int
}

// NewNetlinkFIB returns a NetlinkFIB that tags every route it installs with
// protocolID, a value out of the RTPROT_* reserved-for-daemons range.
func NewNetlinkFIB(protocolID int) *NetlinkFIB {
	return &NetlinkFIB{ProtocolID: protocolID}
}

func (f *NetlinkFIB) toNetlinkRoute(r Route) (*netlink.Route, error) {
	link, err := netlink.LinkByName(r.Iface)
	if err != nil {
		return nil, fmt.Errorf("fib: failed to look up interface %q: %w", r.Iface, err)
	}

	return &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       &net.IPNet{IP: r.Dest, Mask: r.Mask},
		Gw:        r.NextHop,
		Priority:  int(r.Metric),
		Protocol:  netlink.RouteProtocol(f.ProtocolID),
	}, nil
}

// Add implements FIB. A route that already exists with conflicting
// parameters is deleted and re-added, matching the reconciliation policy
// described by this daemon's routing table component.
func (f *NetlinkFIB) Add(r Route) error {
	nr, err := f.toNetlinkRoute(r)
	if err != nil {
		return err
	}

	if err := netlink.RouteAdd(nr); err != nil {
		if errors.Is(err, syscall.EEXIST) {
			if delErr := netlink.RouteDel(nr); delErr != nil && !errors.Is(delErr, syscall.ESRCH) {
				return fmt.Errorf("fib: failed to delete conflicting route %s: %w", r, delErr)
			}
			if err := netlink.RouteAdd(nr); err != nil {
				return fmt.Errorf("fib: failed to re-add route %s: %w", r, err)
			}
			return nil
		}
		return fmt.Errorf("fib: failed to add route %s: %w", r, err)
	}

	return nil
}

// Delete implements FIB. Deleting an already-absent route is not an error.
func (f *NetlinkFIB) Delete(r Route) error {
	nr, err := f.toNetlinkRoute(r)
	if err != nil {
		return err
	}

	if err := netlink.RouteDel(nr); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("fib: failed to delete route %s: %w", r, err)
	}

	return nil
}

// Enumerate implements FIB, listing every route this daemon has installed
// (identified by ProtocolID) across all interfaces.
func (f *NetlinkFIB) Enumerate() ([]Route, error) {
	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4, &netlink.Route{
		Protocol: netlink.RouteProtocol(f.ProtocolID),
	}, netlink.RT_FILTER_PROTOCOL)
	if err != nil {
		return nil, fmt.Errorf("fib: failed to list routes: %w", err)
	}

	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		link, err := netlink.LinkByIndex(r.LinkIndex)
		if err != nil {
			return nil, fmt.Errorf("fib: failed to look up interface for route: %w", err)
		}

		var dest net.IP
		var mask net.IPMask
		if r.Dst != nil {
			dest, mask = r.Dst.IP, r.Dst.Mask
		}

		out = append(out, Route{
			Dest:    dest,
			Mask:    mask,
			NextHop: r.Gw,
			Iface:   link.Attrs().Name,
			Metric:  uint32(r.Priority),
		})
	}

	return out, nil
}

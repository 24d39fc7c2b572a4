package ospf

import (
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// Fixed IPv4 header parameters for Conn use. Every packet a Conn sends
// carries this TTL; Conn has no way to send with a different hop count,
// so it does not carry virtual-link traffic.
const ttl = 1

// A Conn can send and receive OSPFv2 packets which implement the Packet
// interface.
type Conn struct {
	c      *ipv4.PacketConn
	ifi    *net.Interface
	groups []net.IP
}

// Listen creates a *Conn using the specified network interface.
func Listen(ifi *net.Interface) (*Conn, error) {
	// IP protocol number 89 is OSPF.
	conn, err := net.ListenPacket("ip4:89", "0.0.0.0")
	if err != nil {
		return nil, err
	}
	c := ipv4.NewPacketConn(conn)

	// Return all possible control message information to the caller so they
	// can make more informed choices.
	if err := c.SetControlMessage(^ipv4.ControlFlags(0), true); err != nil {
		return nil, err
	}

	if err := c.SetTTL(ttl); err != nil {
		return nil, err
	}
	if err := c.SetMulticastTTL(ttl); err != nil {
		return nil, err
	}

	// Join the appropriate multicast groups. Point-to-point links don't use
	// DR/BDR election and can skip joining AllDRouters.
	if err := c.SetMulticastInterface(ifi); err != nil {
		return nil, err
	}

	groups := []net.IP{AllSPFRouters}
	if ifi.Flags&net.FlagPointToPoint == 0 {
		groups = append(groups, AllDRouters)
	}

	for _, g := range groups {
		if err := c.JoinGroup(ifi, &net.IPAddr{IP: g}); err != nil {
			return nil, err
		}
	}

	// Don't read our own multicast packets during concurrent read/write.
	if err := c.SetMulticastLoopback(false); err != nil {
		return nil, err
	}

	return &Conn{
		c:      c,
		ifi:    ifi,
		groups: groups,
	}, nil
}

// Close closes the Conn's underlying network connection.
func (c *Conn) Close() error {
	for _, g := range c.groups {
		if err := c.c.LeaveGroup(c.ifi, &net.IPAddr{IP: g}); err != nil {
			return err
		}
	}

	return c.c.Close()
}

// SetReadDeadline sets the read deadline associated with the Conn.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.c.SetReadDeadline(t)
}

// ReadFrom reads a single OSPFv2 packet and returns a Packet along with its
// associated IPv4 control message and source address. ReadFrom blocks until
// a timeout occurs or a valid OSPFv2 packet is read; malformed datagrams are
// silently discarded and reading continues.
func (c *Conn) ReadFrom() (Packet, *ipv4.ControlMessage, *net.IPAddr, error) {
	b := make([]byte, c.ifi.MTU)
	for {
		n, cm, src, err := c.c.ReadFrom(b)
		if err != nil {
			return nil, nil, nil, err
		}

		p, err := ParsePacket(b[:n])
		if err != nil {
			// Assume invalid OSPFv2 data, keep reading.
			continue
		}

		return p, cm, src.(*net.IPAddr), nil
	}
}

// WriteTo writes a single OSPFv2 Packet to the specified destination
// address or multicast group.
func (c *Conn) WriteTo(p Packet, dst *net.IPAddr) error {
	b, err := MarshalPacket(p)
	if err != nil {
		return err
	}

	_, err = c.c.WriteTo(b, nil, dst)
	return err
}

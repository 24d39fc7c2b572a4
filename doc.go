// Package ospf implements OSPF version 2 (OSPF for IPv4) as described in
// RFC 2328: the wire packet and LSA formats, their checksums, and the raw
// IP transport used to exchange them. The protocol engine built on top of
// this package (neighbor/interface state machines, the link-state
// database, flooding, and route computation) lives under internal/.
package ospf

//go:generate stringer -type=PacketType,LSType -output=string.go

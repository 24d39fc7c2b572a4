package ospf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// version is the OSPF version supported by this package (OSPFv2).
	version = 2

	// Fixed length structures. Messages with only trailing variable length
	// data have no len constant of their own.
	headerLen    = 24
	lsaLen       = 12
	lsaHeaderLen = 20
	helloLen     = 20 // No trailing array of neighbor IDs.
	ddLen        = 8  // No trailing array of LSA headers.
	luLen        = 4  // No trailing array of LSAs.
)

// Sentinel errors used to differentiate various types of errors in tests
// and by callers that need to distinguish malformed input from other
// failures.
var (
	errMarshal = errors.New("failed to marshal bytes")
	errParse   = errors.New("failed to parse bytes")
)

// A PacketType is the type of an OSPFv2 packet as described in RFC 2328,
// appendix A.3.1.
type PacketType uint8

// Possible OSPFv2 packet types.
const (
	PacketHello                    PacketType = 1
	PacketDatabaseDescription      PacketType = 2
	PacketLinkStateRequest         PacketType = 3
	PacketLinkStateUpdate          PacketType = 4
	PacketLinkStateAcknowledgement PacketType = 5
)

// An ID is a four byte identifier typically used for OSPFv2 router and/or
// area IDs in a dotted-decimal IPv4 format.
type ID [4]byte

func (id ID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", id[0], id[1], id[2], id[3])
}

// Options is a bitmask of OSPFv2 options as described in RFC 2328, appendix
// A.2. Unlike OSPFv3, the OSPFv2 Options field is a single byte and never
// crosses a byte boundary with an adjacent field.
type Options uint8

// Possible OSPFv2 options bits. Bit 0 is unused/reserved for the historical
// TOS-routing capability bit and is always zero on the wire.
const (
	EBit  Options = 1 << 1 // External routing capability.
	MCBit Options = 1 << 2 // Multicast (MOSPF) capability.
	NPBit Options = 1 << 3 // NSSA capability.
	EABit Options = 1 << 4 // External attributes LSA capability.
	DCBit Options = 1 << 5 // Demand circuit capability.
)

// String returns the string representation of an Options bitmask.
func (o Options) String() string {
	return flagsString(uint(o), []string{
		"",
		"E-bit",
		"MC-bit",
		"NP-bit",
		"EA-bit",
		"DC-bit",
	})
}

// A Header is the OSPFv2 common packet header as described in RFC 2328,
// appendix A.3.1. Header only carries fields that are not calculated
// programmatically; version, packet type, and packet length are set
// automatically when calling MarshalPacket, and Checksum is computed and
// filled in at that time as well.
type Header struct {
	RouterID ID
	AreaID   ID
	AuType   uint16
	Auth     [8]byte
}

// marshal packs a Header's bytes into b while also setting packet type and
// length. It assumes b has allocated enough space for a Header to avoid a
// panic. The checksum field is left zeroed; MarshalPacket fills it in once
// the entire packet has been serialized.
func (h *Header) marshal(b []byte, ptyp PacketType, plen uint16) {
	b[0] = version
	b[1] = byte(ptyp)
	binary.BigEndian.PutUint16(b[2:4], plen)
	copy(b[4:8], h.RouterID[:])
	copy(b[8:12], h.AreaID[:])
	// b[12:14] is the checksum, filled in by MarshalPacket.
	binary.BigEndian.PutUint16(b[14:16], h.AuType)
	copy(b[16:24], h.Auth[:])
}

// parseHeader parses an OSPFv2 Header and the offset of the end of an OSPF
// packet from bytes.
func parseHeader(b []byte) (Header, PacketType, uint16, int, error) {
	if l := len(b); l < headerLen {
		return Header{}, 0, 0, 0, fmt.Errorf("not enough bytes for OSPFv2 header: %d: %w", l, errParse)
	}

	if v := b[0]; v != version {
		return Header{}, 0, 0, 0, fmt.Errorf("unrecognized OSPF version: %d: %w", v, errParse)
	}

	h := Header{
		AuType: binary.BigEndian.Uint16(b[14:16]),
	}
	copy(h.RouterID[:], b[4:8])
	copy(h.AreaID[:], b[8:12])
	copy(h.Auth[:], b[16:24])

	checksum := binary.BigEndian.Uint16(b[12:14])

	plen := binary.BigEndian.Uint16(b[2:4])
	if int(plen) < headerLen {
		return Header{}, 0, 0, 0, fmt.Errorf("header packet length %d is too short for a valid packet: %w", plen, errParse)
	}
	if l := len(b); l < int(plen) {
		return Header{}, 0, 0, 0, fmt.Errorf("header packet length is %d bytes but only %d bytes are available: %w",
			plen, l, errParse)
	}

	return h, PacketType(b[1]), checksum, int(plen), nil
}

// A Packet is an OSPFv2 packet.
type Packet interface {
	len() int
	marshal(b []byte) error
	unmarshal(b []byte) error
}

// MarshalPacket turns a Packet into OSPFv2 packet bytes, computing and
// filling in the standard 16-bit one's-complement checksum described in
// RFC 2328, appendix D.4.3.
func MarshalPacket(m Packet) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("ospf: cannot marshal nil Packet: %w", errMarshal)
	}

	b := make([]byte, m.len())
	if err := m.marshal(b); err != nil {
		return nil, fmt.Errorf("ospf: failed to marshal Packet: %w", err)
	}

	binary.BigEndian.PutUint16(b[12:14], packetChecksum(b))
	return b, nil
}

// ParsePacket parses an OSPFv2 Header and trailing Packet from bytes. The
// packet checksum is verified; a mismatch produces an error wrapping
// errParse so MalformedPacket handling can distinguish it.
func ParsePacket(b []byte) (Packet, error) {
	h, ptyp, checksum, plen, err := parseHeader(b)
	if err != nil {
		return nil, fmt.Errorf("ospf: failed to parse Header: %w", err)
	}

	if got := packetChecksum(b[:plen]); got != checksum {
		return nil, fmt.Errorf("ospf: packet checksum mismatch: got %#04x, want %#04x: %w", got, checksum, errParse)
	}

	var m Packet
	switch ptyp {
	case PacketHello:
		m = &Hello{Header: h}
	case PacketDatabaseDescription:
		m = &DatabaseDescription{Header: h}
	case PacketLinkStateRequest:
		m = &LinkStateRequest{Header: h}
	case PacketLinkStateUpdate:
		m = &LinkStateUpdate{Header: h}
	case PacketLinkStateAcknowledgement:
		m = &LinkStateAcknowledgement{Header: h}
	default:
		return nil, fmt.Errorf("ospf: parsing not implemented packet type: %d", ptyp)
	}

	if err := m.unmarshal(b[headerLen:plen]); err != nil {
		return nil, fmt.Errorf("ospf: failed to parse Packet: %w", err)
	}

	return m, nil
}

var _ Packet = &Hello{}

// A Hello is an OSPFv2 Hello packet as described in RFC 2328, appendix
// A.3.2.
type Hello struct {
	Header                   Header
	NetworkMask              ID
	HelloInterval            time.Duration
	Options                  Options
	RouterPriority           uint8
	RouterDeadInterval       time.Duration
	DesignatedRouterID       ID
	BackupDesignatedRouterID ID
	NeighborIDs              []ID
}

// len implements Packet.
func (h *Hello) len() int {
	return headerLen + helloLen + (4 * len(h.NeighborIDs))
}

// marshal implements Packet.
func (h *Hello) marshal(b []byte) error {
	const n = headerLen
	h.Header.marshal(b[:n], PacketHello, uint16(h.len()))

	copy(b[n:n+4], h.NetworkMask[:])
	putUint16Seconds(b[n+4:n+6], h.HelloInterval)
	b[n+6] = byte(h.Options)
	b[n+7] = h.RouterPriority
	binary.BigEndian.PutUint32(b[n+8:n+12], uint32(h.RouterDeadInterval/time.Second))
	copy(b[n+12:n+16], h.DesignatedRouterID[:])
	copy(b[n+16:n+20], h.BackupDesignatedRouterID[:])

	nn := n + helloLen
	for i := range h.NeighborIDs {
		copy(b[nn:nn+4], h.NeighborIDs[i][:])
		nn += 4
	}

	return nil
}

// unmarshal implements Packet.
func (h *Hello) unmarshal(b []byte) error {
	if l := len(b); l < helloLen {
		return fmt.Errorf("not enough bytes for Hello: %d: %w", l, errParse)
	}
	if l := len(b); l%4 != 0 {
		return fmt.Errorf("Hello packet must end on a 4 byte boundary, got %d bytes: %w", l, errParse)
	}

	copy(h.NetworkMask[:], b[0:4])
	h.HelloInterval = uint16Seconds(b[4:6])
	h.Options = Options(b[6])
	h.RouterPriority = b[7]
	h.RouterDeadInterval = time.Duration(binary.BigEndian.Uint32(b[8:12])) * time.Second
	copy(h.DesignatedRouterID[:], b[12:16])
	copy(h.BackupDesignatedRouterID[:], b[16:20])

	h.NeighborIDs = make([]ID, 0, len(b[helloLen:])/4)
	for i := helloLen; i < len(b); i += 4 {
		var id ID
		copy(id[:], b[i:i+4])
		h.NeighborIDs = append(h.NeighborIDs, id)
	}

	return nil
}

// DDFlags are the I/M/MS flags carried in a Database Description packet as
// described in RFC 2328, appendix A.3.3. All three bits live in the low
// order bits of a single byte.
type DDFlags uint8

// Possible DDFlags values.
const (
	MSBit DDFlags = 1 << 0
	MBit  DDFlags = 1 << 1
	IBit  DDFlags = 1 << 2
)

// String returns the string representation of a DDFlags bitmask.
func (f DDFlags) String() string {
	return flagsString(uint(f), []string{
		"MS-bit",
		"M-bit",
		"I-bit",
	})
}

var _ Packet = &DatabaseDescription{}

// A DatabaseDescription is an OSPFv2 Database Description packet as
// described in RFC 2328, appendix A.3.3.
type DatabaseDescription struct {
	Header         Header
	InterfaceMTU   uint16
	Options        Options
	Flags          DDFlags
	SequenceNumber uint32
	LSAs           []LSAHeader
}

// len implements Packet.
func (dd *DatabaseDescription) len() int {
	return headerLen + ddLen + (lsaHeaderLen * len(dd.LSAs))
}

// marshal implements Packet.
func (dd *DatabaseDescription) marshal(b []byte) error {
	const n = headerLen
	dd.Header.marshal(b[:n], PacketDatabaseDescription, uint16(dd.len()))

	binary.BigEndian.PutUint16(b[n:n+2], dd.InterfaceMTU)
	b[n+2] = byte(dd.Options)
	b[n+3] = byte(dd.Flags)
	binary.BigEndian.PutUint32(b[n+4:n+8], dd.SequenceNumber)

	nn := n + ddLen
	for i := range dd.LSAs {
		dd.LSAs[i].marshal(b[nn : nn+lsaHeaderLen])
		nn += lsaHeaderLen
	}

	return nil
}

// unmarshal implements Packet.
func (dd *DatabaseDescription) unmarshal(b []byte) error {
	if l := len(b); l < ddLen {
		return fmt.Errorf("not enough bytes for DatabaseDescription: %d: %w", l, errParse)
	}

	dd.InterfaceMTU = binary.BigEndian.Uint16(b[0:2])
	dd.Options = Options(b[2])
	dd.Flags = DDFlags(b[3])
	dd.SequenceNumber = binary.BigEndian.Uint32(b[4:8])

	const lsaOff = ddLen
	if l := len(b[lsaOff:]); l%lsaHeaderLen != 0 {
		return fmt.Errorf("DatabaseDescription packet must end on a 20 byte boundary for trailing LSA headers, got %d bytes: %w", l, errParse)
	}

	n := len(b[lsaOff:]) / lsaHeaderLen
	dd.LSAs = make([]LSAHeader, 0, n)
	for i := 0; i < n; i++ {
		start := lsaOff + (i * lsaHeaderLen)
		end := start + lsaHeaderLen
		dd.LSAs = append(dd.LSAs, parseLSAHeader(b[start:end]))
	}

	return nil
}

var _ Packet = &LinkStateRequest{}

// An LSAID identifies an LSA instance within a Link State Request. Unlike the LSA header's own encoding, the LSR
// entry spells the LS type out as a full 32-bit field (RFC 2328, appendix
// A.3.4) rather than a single byte.
type LSAID struct {
	Type              uint32
	LinkStateID       ID
	AdvertisingRouter ID
}

func (l LSAID) marshal(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], l.Type)
	copy(b[4:8], l.LinkStateID[:])
	copy(b[8:12], l.AdvertisingRouter[:])
}

func parseLSAID(b []byte) LSAID {
	return LSAID{
		Type:              binary.BigEndian.Uint32(b[0:4]),
		LinkStateID:       idFrom(b[4:8]),
		AdvertisingRouter: idFrom(b[8:12]),
	}
}

// A LinkStateRequest is an OSPFv2 Link State Request packet as described in
// RFC 2328, appendix A.3.4.
type LinkStateRequest struct {
	Header Header
	LSAs   []LSAID
}

// len implements Packet.
func (lsr *LinkStateRequest) len() int {
	return headerLen + (lsaLen * len(lsr.LSAs))
}

// marshal implements Packet.
func (lsr *LinkStateRequest) marshal(b []byte) error {
	const n = headerLen
	lsr.Header.marshal(b[:n], PacketLinkStateRequest, uint16(lsr.len()))

	nn := n
	for i := range lsr.LSAs {
		lsr.LSAs[i].marshal(b[nn : nn+lsaLen])
		nn += lsaLen
	}

	return nil
}

// unmarshal implements Packet.
func (lsr *LinkStateRequest) unmarshal(b []byte) error {
	if l := len(b); l%lsaLen != 0 {
		return fmt.Errorf("LinkStateRequest packet must end on a 12 byte boundary for trailing entries, got %d bytes: %w", l, errParse)
	}

	n := len(b) / lsaLen
	lsr.LSAs = make([]LSAID, 0, n)
	for i := 0; i < n; i++ {
		start := i * lsaLen
		end := start + lsaLen
		lsr.LSAs = append(lsr.LSAs, parseLSAID(b[start:end]))
	}

	return nil
}

var _ Packet = &LinkStateAcknowledgement{}

// A LinkStateAcknowledgement is an OSPFv2 Link State Acknowledgement packet
// as described in RFC 2328, appendix A.3.6.
type LinkStateAcknowledgement struct {
	Header Header
	LSAs   []LSAHeader
}

// len implements Packet.
func (ack *LinkStateAcknowledgement) len() int {
	return headerLen + (lsaHeaderLen * len(ack.LSAs))
}

// marshal implements Packet.
func (ack *LinkStateAcknowledgement) marshal(b []byte) error {
	const n = headerLen
	ack.Header.marshal(b[:n], PacketLinkStateAcknowledgement, uint16(ack.len()))

	nn := n
	for i := range ack.LSAs {
		ack.LSAs[i].marshal(b[nn : nn+lsaHeaderLen])
		nn += lsaHeaderLen
	}

	return nil
}

// unmarshal implements Packet.
func (ack *LinkStateAcknowledgement) unmarshal(b []byte) error {
	if l := len(b); l%lsaHeaderLen != 0 {
		return fmt.Errorf("LinkStateAcknowledgement packet must end on a 20 byte boundary for trailing LSA headers, got %d bytes: %w", l, errParse)
	}

	n := len(b) / lsaHeaderLen
	ack.LSAs = make([]LSAHeader, 0, n)
	for i := 0; i < n; i++ {
		start := i * lsaHeaderLen
		end := start + lsaHeaderLen
		ack.LSAs = append(ack.LSAs, parseLSAHeader(b[start:end]))
	}

	return nil
}

// idFrom copies a 4 byte slice into an ID.
func idFrom(b []byte) ID {
	var id ID
	copy(id[:], b)
	return id
}

// uint16Seconds interprets big endian uint16 bytes as a number of seconds.
func uint16Seconds(b []byte) time.Duration {
	return time.Duration(binary.BigEndian.Uint16(b)) * time.Second
}

// putUint16Seconds stores d in b as big endian uint16 bytes, rounded to the
// nearest whole second.
func putUint16Seconds(b []byte, d time.Duration) {
	binary.BigEndian.PutUint16(b, uint16(d.Round(time.Second).Seconds()))
}

// flagsString generates a pretty-printed flags bitmask using the input
// value and sequence of bit names. An empty name at a given bit position is
// skipped, which lets callers document reserved/unused bits without
// printing anything for them.
func flagsString(f uint, names []string) string {
	var s string
	left := f
	for i, name := range names {
		if name == "" {
			continue
		}
		if f&(1<<uint(i)) != 0 {
			if s != "" {
				s += "|"
			}
			s += name
			left ^= (1 << uint(i))
		}
	}

	if s == "" && left == 0 {
		s = "0"
	}

	if left > 0 {
		if s != "" {
			s += "|"
		}
		s += fmt.Sprintf("%#x", left)
	}

	return s
}

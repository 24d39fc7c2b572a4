package ospf

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func merge(bs ...[]byte) []byte {
	var out []byte
	for _, b := range bs {
		out = append(out, b...)
	}
	return out
}

var (
	bufHello = []byte{
		0x02, 0x01, 0x00, 0x34, // Version, Type, Length
		192, 0, 2, 1, // Router ID
		0, 0, 0, 0, // Area ID
		0x32, 0x8a, // Checksum
		0x00, 0x00, // AuType
		0, 0, 0, 0, 0, 0, 0, 0, // Auth

		255, 255, 255, 0, // Network mask
		0x00, 0x0a, // Hello interval
		0x02, // Options
		0x01, // Router priority
		0x00, 0x00, 0x00, 0x28, // Router dead interval
		192, 0, 2, 1, // Designated router
		192, 0, 2, 2, // Backup designated router
		192, 0, 2, 2, // Neighbor
		192, 0, 2, 3, // Neighbor
	}

	pktHello = &Hello{
		Header: Header{
			RouterID: ID{192, 0, 2, 1},
		},
		NetworkMask:              ID{255, 255, 255, 0},
		HelloInterval:            10 * time.Second,
		Options:                  EBit,
		RouterPriority:           1,
		RouterDeadInterval:       40 * time.Second,
		DesignatedRouterID:       ID{192, 0, 2, 1},
		BackupDesignatedRouterID: ID{192, 0, 2, 2},
		NeighborIDs: []ID{
			{192, 0, 2, 2},
			{192, 0, 2, 3},
		},
	}

	lsaHeader1 = []byte{
		0x00, 0x01, // Age
		0x00,       // Options
		0x01,       // Type
		192, 0, 2, 1, // Link state ID
		192, 0, 2, 1, // Advertising router
		0x00, 0x00, 0x00, 0xff, // Sequence number
		0x12, 0x34, // Checksum
		0x00, 0x14, // Length
	}

	lsaHeader2 = []byte{
		0x00, 0x02,
		0x00,
		0x02,
		192, 0, 2, 1,
		192, 0, 2, 1,
		0x00, 0x00, 0x01, 0xff,
		0x56, 0x78,
		0x00, 0x18,
	}

	pktLSAHeader1 = LSAHeader{
		Age:               1 * time.Second,
		Type:              RouterLSA,
		LinkStateID:       ID{192, 0, 2, 1},
		AdvertisingRouter: ID{192, 0, 2, 1},
		SequenceNumber:    255,
		Checksum:          0x1234,
		Length:            20,
	}

	pktLSAHeader2 = LSAHeader{
		Age:               2 * time.Second,
		Type:              NetworkLSA,
		LinkStateID:       ID{192, 0, 2, 1},
		AdvertisingRouter: ID{192, 0, 2, 1},
		SequenceNumber:    511,
		Checksum:          0x5678,
		Length:            24,
	}

	bufDatabaseDescription = merge(
		[]byte{
			0x02, 0x02, 0x00, 0x48,
			192, 0, 2, 1,
			0, 0, 0, 0,
			0xbf, 0xec,
			0x00, 0x00,
			0, 0, 0, 0, 0, 0, 0, 0,

			0x05, 0xdc, // Interface MTU
			0x02,       // Options
			0x07,       // Flags: I|M|MS
			0x00, 0x00, 0x00, 0x01, // Sequence number
		},
		lsaHeader1,
		lsaHeader2,
	)

	pktDatabaseDescription = &DatabaseDescription{
		Header: Header{
			RouterID: ID{192, 0, 2, 1},
		},
		InterfaceMTU:   1500,
		Options:        EBit,
		Flags:          IBit | MBit | MSBit,
		SequenceNumber: 1,
		LSAs:           []LSAHeader{pktLSAHeader1, pktLSAHeader2},
	}

	bufLinkStateRequest = []byte{
		0x02, 0x03, 0x00, 0x30,
		192, 0, 2, 1,
		0, 0, 0, 0,
		0x33, 0xc1,
		0x00, 0x00,
		0, 0, 0, 0, 0, 0, 0, 0,

		0x00, 0x00, 0x00, 0x01, // Type (Router-LSA)
		192, 0, 2, 1,
		192, 0, 2, 1,
		0x00, 0x00, 0x00, 0x02, // Type (Network-LSA)
		192, 0, 2, 1,
		192, 0, 2, 1,
	}

	pktLinkStateRequest = &LinkStateRequest{
		Header: Header{
			RouterID: ID{192, 0, 2, 1},
		},
		LSAs: []LSAID{
			{
				Type:              uint32(RouterLSA),
				LinkStateID:       ID{192, 0, 2, 1},
				AdvertisingRouter: ID{192, 0, 2, 1},
			},
			{
				Type:              uint32(NetworkLSA),
				LinkStateID:       ID{192, 0, 2, 1},
				AdvertisingRouter: ID{192, 0, 2, 1},
			},
		},
	}

	bufLinkStateAcknowledgement = merge(
		[]byte{
			0x02, 0x05, 0x00, 0x40,
			192, 0, 2, 1,
			0, 0, 0, 0,
			0xc7, 0xd5,
			0x00, 0x00,
			0, 0, 0, 0, 0, 0, 0, 0,
		},
		lsaHeader1,
		lsaHeader2,
	)

	pktLinkStateAcknowledgement = &LinkStateAcknowledgement{
		Header: Header{
			RouterID: ID{192, 0, 2, 1},
		},
		LSAs: []LSAHeader{pktLSAHeader1, pktLSAHeader2},
	}
)

func TestParsePacketErrors(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
	}{
		{
			name: "empty",
		},
		{
			name: "bad version",
			b:    append([]byte{0x03}, make([]byte, 23)...),
		},
		{
			name: "unknown packet type",
			b: append([]byte{
				0x02, 0xff,
				0x00, 0x18, // Length: exactly headerLen.
				0, 0, 0, 0,
				0, 0, 0, 0,
				0xfc, 0xe8, // Valid checksum, so parsing reaches the type check.
			}, make([]byte, 10)...),
		},
		{
			name: "short header",
			b:    []byte{0x02, 0x01, 0x00, 0x00},
		},
		{
			name: "bad packet length",
			b: append([]byte{
				0x02, 0x01,
				0xff, 0xff, // Way too long for the available bytes.
			}, make([]byte, 20)...),
		},
		{
			name: "short hello",
			b: append([]byte{
				0x02, 0x01,
				0x00, 25, // Header + 1 trailing byte.
				192, 0, 2, 1,
				0, 0, 0, 0,
				0x3c, 0xe3, // Valid checksum, so parsing reaches the Hello body.
				0x00, 0x00,
				0, 0, 0, 0, 0, 0, 0, 0,
				0xff,
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.b)
			if err == nil {
				t.Fatal("expected an error, got none")
			}
			t.Logf("err: %v", err)
		})
	}
}

func TestMarshalPacketErrors(t *testing.T) {
	_, err := MarshalPacket(nil)
	if diff := cmp.Diff(errMarshal, err, cmpopts.EquateErrors()); diff != "" {
		t.Fatalf("unexpected error (-want +got):\n%s", diff)
	}
}

var roundTripTests = []struct {
	name string
	b    []byte
	p    Packet
}{
	{
		name: "hello",
		b:    bufHello,
		p:    pktHello,
	},
	{
		name: "database description",
		b:    bufDatabaseDescription,
		p:    pktDatabaseDescription,
	},
	{
		name: "link state request",
		b:    bufLinkStateRequest,
		p:    pktLinkStateRequest,
	},
	{
		name: "link state acknowledgement",
		b:    bufLinkStateAcknowledgement,
		p:    pktLinkStateAcknowledgement,
	},
}

func TestPacketRoundTrip(t *testing.T) {
	for _, tt := range roundTripTests {
		t.Run(tt.name, func(t *testing.T) {
			p1, err := ParsePacket(tt.b)
			if err != nil {
				t.Fatalf("failed to parse first Packet: %v", err)
			}

			if diff := cmp.Diff(tt.p, p1); diff != "" {
				t.Fatalf("unexpected initial Packet (-want +got):\n%s", diff)
			}

			b, err := MarshalPacket(p1)
			if err != nil {
				t.Fatalf("failed to marshal: %v", err)
			}

			if diff := cmp.Diff(tt.b, b); diff != "" {
				t.Fatalf("unexpected bytes (-want +got):\n%s", diff)
			}

			p2, err := ParsePacket(b)
			if err != nil {
				t.Fatalf("failed to parse second Packet: %v", err)
			}

			if diff := cmp.Diff(p1, p2); diff != "" {
				t.Fatalf("unexpected final Packet (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_flagsString(t *testing.T) {
	tests := []struct {
		name  string
		f     uint
		names []string
		s     string
	}{
		{
			name: "empty",
			f:    1,
			s:    "0x1",
		},
		{
			name:  "known",
			f:     1<<0 | 1<<1 | 1<<2,
			names: []string{"A", "B", "C"},
			s:     "A|B|C",
		},
		{
			name:  "unknown",
			f:     1<<1 | 1<<3 | 1<<10,
			names: []string{"foo", "bar", "baz", "qux"},
			s:     "bar|qux|0x400",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.s, flagsString(tt.f, tt.names)); diff != "" {
				t.Fatalf("unexpected string (-want +got):\n%s", diff)
			}
		})
	}
}

func BenchmarkMarshalPacket(b *testing.B) {
	for _, tt := range roundTripTests {
		b.Run(tt.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := MarshalPacket(tt.p); err != nil {
					b.Fatalf("failed to marshal: %v", err)
				}
			}
		})
	}
}

func BenchmarkParsePacket(b *testing.B) {
	for _, tt := range roundTripTests {
		b.Run(tt.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := ParsePacket(tt.b); err != nil {
					b.Fatalf("failed to parse: %v", err)
				}
			}
		})
	}
}

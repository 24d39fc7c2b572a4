package ospf

import (
	"encoding/binary"
	"testing"
)

func TestPacketChecksumSelfConsistent(t *testing.T) {
	for _, tt := range roundTripTests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := MarshalPacket(tt.p)
			if err != nil {
				t.Fatalf("failed to marshal: %v", err)
			}

			got := binary.BigEndian.Uint16(b[12:14])
			want := packetChecksum(b)
			if got != want {
				t.Fatalf("checksum field %#04x does not match computed checksum %#04x", got, want)
			}
		})
	}
}

func TestIPChecksumPartsMatchesWhole(t *testing.T) {
	whole := []byte{0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x06}

	for split := 0; split <= len(whole); split++ {
		got := ipChecksumParts(whole[:split], whole[split:])
		want := ipChecksumParts(whole)
		if got != want {
			t.Fatalf("split at %d: got %#04x, want %#04x", split, got, want)
		}
	}
}

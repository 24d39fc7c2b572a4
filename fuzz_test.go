package ospf

import "testing"

// FuzzPacketRoundTrip seeds the corpus from the same fixed packets
// message_test.go's table-driven round-trip test already exercises, then
// hands everything the fuzzer generates to fuzz, which checks parse ->
// marshal -> parse -> marshal for the two-way invariant TestPacketRoundTrip
// checks in message_test.go and fuzz.go was written to police.
func FuzzPacketRoundTrip(f *testing.F) {
	for _, tt := range roundTripTests {
		f.Add(tt.b)
	}

	f.Fuzz(func(t *testing.T, b []byte) {
		fuzz(b)
	})
}

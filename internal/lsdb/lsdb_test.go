package lsdb

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ospfd/ospfd"
)

func testLSA(seq int32, age time.Duration, checksum uint16) *ospf.LSA {
	return &ospf.LSA{
		Header: ospf.LSAHeader{
			Age:               age,
			Type:              ospf.RouterLSA,
			LinkStateID:       ospf.ID{1, 1, 1, 1},
			AdvertisingRouter: ospf.ID{1, 1, 1, 1},
			SequenceNumber:    seq,
			Checksum:          checksum,
		},
	}
}

func TestTableInsertGetContains(t *testing.T) {
	tb := New(nil)
	key := KeyOf(testLSA(1, 0, 1).Header)

	if tb.Contains(key) {
		t.Fatalf("empty table reports Contains true")
	}

	lsa := testLSA(1, 0, 1)
	tb.Insert(lsa)

	if !tb.Contains(key) {
		t.Fatalf("Contains false after Insert")
	}

	got, _, _, ok := tb.Get(key)
	if !ok {
		t.Fatalf("Get false after Insert")
	}
	if diff := cmp.Diff(lsa.Header.SequenceNumber, got.Header.SequenceNumber); diff != "" {
		t.Fatalf("sequence number mismatch (-want +got):\n%s", diff)
	}
}

func TestTableNeedUpdate(t *testing.T) {
	tb := New(nil)
	tb.Insert(testLSA(5, 0, 10))

	// Same seq, same checksum: not an update.
	if tb.NeedUpdate(testLSA(5, 0, 10).Header) {
		t.Fatalf("identical instance reported as needing update")
	}

	// Higher sequence number: needs update.
	if !tb.NeedUpdate(testLSA(6, 0, 10).Header) {
		t.Fatalf("higher sequence number not reported as needing update")
	}

	// Lower sequence number: does not need update.
	if tb.NeedUpdate(testLSA(4, 0, 10).Header) {
		t.Fatalf("lower sequence number reported as needing update")
	}
}

func TestTableRemove(t *testing.T) {
	tb := New(nil)
	lsa := testLSA(1, 0, 1)
	key := KeyOf(lsa.Header)
	tb.Insert(lsa)

	removed, ok := tb.Remove(key)
	if !ok || removed == nil {
		t.Fatalf("Remove reported false for present key")
	}
	if tb.Contains(key) {
		t.Fatalf("entry still present after Remove")
	}

	if _, ok := tb.Remove(key); ok {
		t.Fatalf("Remove of absent key reported true")
	}
}

func TestTableRefreshFires(t *testing.T) {
	fired := make(chan Key, 1)
	tb := New(func(k Key) { fired <- k })

	lsa := testLSA(1, ospf.MaxAge-20*time.Millisecond, 1)
	tb.Insert(lsa)

	select {
	case k := <-fired:
		if k != KeyOf(lsa.Header) {
			t.Fatalf("refresh fired for wrong key: %+v", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("refresh did not fire in time")
	}
}

func TestDBRoutesByType(t *testing.T) {
	db := NewDB(nil)
	area := ospf.ID{0, 0, 0, 0}
	db.AddArea(area, nil)

	routerLSA := testLSA(1, 0, 1)
	if err := db.Insert(area, routerLSA); err != nil {
		t.Fatalf("Insert area LSA: %v", err)
	}
	if !db.Contains(area, KeyOf(routerLSA.Header)) {
		t.Fatalf("area table missing inserted router LSA")
	}

	external := &ospf.LSA{Header: ospf.LSAHeader{
		Type:              ospf.ASExternalLSA,
		LinkStateID:       ospf.ID{10, 0, 0, 0},
		AdvertisingRouter: ospf.ID{1, 1, 1, 1},
		SequenceNumber:    1,
	}}
	if err := db.Insert(area, external); err != nil {
		t.Fatalf("Insert external LSA: %v", err)
	}
	if !db.Contains(ospf.ID{9, 9, 9, 9}, KeyOf(external.Header)) {
		t.Fatalf("type-5 LSA not visible regardless of area argument")
	}

	if db.Contains(ospf.ID{9, 9, 9, 9}, KeyOf(routerLSA.Header)) {
		t.Fatalf("area LSA visible under an unregistered area")
	}
}

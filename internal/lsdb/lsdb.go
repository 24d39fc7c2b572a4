// Package lsdb implements the link-state database: the per-area and
// AS-wide maps of LSAs that the neighbor and interface engines synchronize
// and that the SPF computation reads. It owns aging (the effective age of
// a stored LSA grows with wall-clock time from the moment it was learned)
// and the refresh timer that fires when an entry reaches MaxAge.
package lsdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/ospfd/ospfd"
)

// A Key uniquely identifies an LSA within its scope: the per-area map for
// types 1-4, the single AS-wide map for type 5.
type Key struct {
	Type              ospf.LSType
	LinkStateID       ospf.ID
	AdvertisingRouter ospf.ID
}

// KeyOf extracts the Key carried by an LSA header.
func KeyOf(h ospf.LSAHeader) Key {
	return Key{Type: h.Type, LinkStateID: h.LinkStateID, AdvertisingRouter: h.AdvertisingRouter}
}

// An Entry is a stored LSA plus the bookkeeping the aging and rate-limiting
// rules need: when it was learned, when it was last sent to a neighbor,
// and the timer that will fire when its effective age reaches MaxAge.
type Entry struct {
	LSA        *ospf.LSA
	CreatedAt  time.Time
	LastSentAt time.Time

	refresh *time.Timer
}

// effectiveAge returns the LSA's age as of now: the age it carried at
// CreatedAt plus elapsed wall-clock time, capped at MaxAge. RFC 2328
// requires the cap; a prior revision of this logic floored instead, which
// is the bug spec's design notes warn about — this package always caps.
func (e *Entry) effectiveAge(now time.Time) time.Duration {
	age := e.LSA.Header.Age + now.Sub(e.CreatedAt)
	if age > ospf.MaxAge {
		age = ospf.MaxAge
	}
	if age < 0 {
		age = 0
	}
	return age
}

// headerAt returns e's header with Age refreshed to its effective value at
// now; the rest of the header is unchanged.
func (e *Entry) headerAt(now time.Time) ospf.LSAHeader {
	h := e.LSA.Header
	h.Age = e.effectiveAge(now)
	return h
}

// RefreshFunc is invoked on the entry's time.AfterFunc timer goroutine,
// with no Table lock held, when an entry's age reaches MaxAge. The callback decides the fate of the entry (withdraw it,
// or for a self-originated LSA, re-originate a fresher instance); it does
// not need to remove the entry itself, as Table.Remove is safe to call
// from within the callback.
type RefreshFunc func(key Key)

// A Table is the LSA map for a single scope: one per area for types 1-4,
// or the single AS-wide table for type 5 entries. The zero value is not
// usable; construct with New.
type Table struct {
	mu      sync.Mutex
	entries map[Key]*Entry
	onRefresh RefreshFunc
}

// New returns an empty Table that calls onRefresh (if non-nil) when an
// entry's refresh timer fires.
func New(onRefresh RefreshFunc) *Table {
	return &Table{entries: make(map[Key]*Entry), onRefresh: onRefresh}
}

// Get returns a copy of the stored LSA for key with its age refreshed to
// the current effective age, along with the entry's creation and
// last-sent timestamps. The second return is false if no entry exists.
func (t *Table) Get(key Key) (lsa ospf.LSA, createdAt, lastSentAt time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, found := t.entries[key]
	if !found {
		return ospf.LSA{}, time.Time{}, time.Time{}, false
	}

	now := time.Now()
	lsa = *e.LSA
	lsa.Header = e.headerAt(now)
	return lsa, e.CreatedAt, e.LastSentAt, true
}

// Contains reports whether key has a stored entry.
func (t *Table) Contains(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// NeedUpdate reports whether h describes an LSA strictly newer (per
// ospf.LSAHeader.Compare) than whatever is currently stored for h's key,
// or whether nothing is stored at all.
func (t *Table) NeedUpdate(h ospf.LSAHeader) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[KeyOf(h)]
	if !ok {
		return true
	}

	stored := e.headerAt(time.Now())
	return stored.Compare(h) > 0
}

// Insert replaces any existing entry for lsa's key. Callers must have
// already established NeedUpdate for lsa's header; Insert does not
// re-check it, so that callers can make the freshness decision and the
// insertion atomic under their own lock if needed. The previous entry's
// refresh timer, if any, is canceled and a new one scheduled for
// CreatedAt + (MaxAge - stored age).
func (t *Table) Insert(lsa *ospf.LSA) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := KeyOf(lsa.Header)
	if old, ok := t.entries[key]; ok && old.refresh != nil {
		old.refresh.Stop()
	}

	now := time.Now()
	e := &Entry{LSA: lsa, CreatedAt: now, LastSentAt: now}

	remaining := ospf.MaxAge - lsa.Header.Age
	if remaining < 0 {
		remaining = 0
	}
	if t.onRefresh != nil {
		e.refresh = time.AfterFunc(remaining, func() { t.onRefresh(key) })
	}

	t.entries[key] = e
}

// Remove deletes key's entry, canceling its refresh timer, and returns the
// LSA that was stored (with its age unrefreshed) and whether anything was
// removed. Callers are responsible for the cascading removal from every
// neighbor's LS retransmission list that spec section 3 requires.
func (t *Table) Remove(key Key) (*ospf.LSA, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	if e.refresh != nil {
		e.refresh.Stop()
	}
	delete(t.entries, key)
	return e.LSA, true
}

// MarkSent updates the last-sent timestamp for key, which Get reports
// back. Table itself applies no throttling based on it.
func (t *Table) MarkSent(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		e.LastSentAt = time.Now()
	}
}

// Keys returns every key currently stored, in no particular order.
func (t *Table) Keys() []Key {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}

// All returns a copy of every stored LSA, with ages refreshed to their
// current effective value, in no particular order. Used by the SPF
// computation to build its graph from a whole area's table.
func (t *Table) All() []ospf.LSA {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	out := make([]ospf.LSA, 0, len(t.entries))
	for _, e := range t.entries {
		lsa := *e.LSA
		lsa.Header = e.headerAt(now)
		out = append(out, lsa)
	}
	return out
}

// A Summary is a read-only snapshot of one stored LSA, suitable for the
// operator-facing LSDB listing (daemon.Queryable.LSDBSummary).
type Summary struct {
	Type              ospf.LSType
	LinkStateID       ospf.ID
	AdvertisingRouter ospf.ID
	SequenceNumber    int32
	Age               time.Duration
}

// Summarize returns a Summary for every stored entry.
func (t *Table) Summarize() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	out := make([]Summary, 0, len(t.entries))
	for k, e := range t.entries {
		out = append(out, Summary{
			Type:              k.Type,
			LinkStateID:       k.LinkStateID,
			AdvertisingRouter: k.AdvertisingRouter,
			SequenceNumber:    e.LSA.Header.SequenceNumber,
			Age:               e.effectiveAge(now),
		})
	}
	return out
}

// A DB is the full link-state database: one Table per area plus the
// single AS-wide table for AS-External LSAs, as spec section 4.2's scope
// rule requires.
type DB struct {
	mu       sync.Mutex
	areas    map[ospf.ID]*Table
	external *Table
}

// NewDB returns a DB with no areas registered yet and an empty AS-external
// table. onExternalRefresh is wired the same way an area's onRefresh is;
// use AddArea to register each area's own callback.
func NewDB(onExternalRefresh RefreshFunc) *DB {
	return &DB{
		areas:    make(map[ospf.ID]*Table),
		external: New(onExternalRefresh),
	}
}

// AddArea registers area with its own Table if not already present, and
// returns it.
func (d *DB) AddArea(area ospf.ID, onRefresh RefreshFunc) *Table {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.areas[area]; ok {
		return t
	}
	t := New(onRefresh)
	d.areas[area] = t
	return t
}

// Area returns area's Table, or nil if area has not been registered.
func (d *DB) Area(area ospf.ID) *Table {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.areas[area]
}

// External returns the single AS-wide Table holding type-5 LSAs.
func (d *DB) External() *Table {
	return d.external
}

// tableFor routes by LSA type: type 5 always goes to the AS-wide table
// regardless of the area argument, per spec section 4.2's scope rule.
func (d *DB) tableFor(area ospf.ID, lsType ospf.LSType) (*Table, error) {
	if lsType == ospf.ASExternalLSA {
		return d.external, nil
	}
	d.mu.Lock()
	t, ok := d.areas[area]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("lsdb: area %s is not registered", area)
	}
	return t, nil
}

// Get, Contains, NeedUpdate, Insert, Remove, and MarkSent mirror the
// corresponding Table methods, dispatching to the AS-wide table for type-5
// LSAs and to area's own table otherwise.

func (d *DB) Get(area ospf.ID, key Key) (ospf.LSA, time.Time, time.Time, bool) {
	t, err := d.tableFor(area, key.Type)
	if err != nil {
		return ospf.LSA{}, time.Time{}, time.Time{}, false
	}
	return t.Get(key)
}

func (d *DB) Contains(area ospf.ID, key Key) bool {
	t, err := d.tableFor(area, key.Type)
	if err != nil {
		return false
	}
	return t.Contains(key)
}

func (d *DB) NeedUpdate(area ospf.ID, h ospf.LSAHeader) bool {
	t, err := d.tableFor(area, h.Type)
	if err != nil {
		return false
	}
	return t.NeedUpdate(h)
}

func (d *DB) Insert(area ospf.ID, lsa *ospf.LSA) error {
	t, err := d.tableFor(area, lsa.Header.Type)
	if err != nil {
		return err
	}
	t.Insert(lsa)
	return nil
}

func (d *DB) Remove(area ospf.ID, key Key) (*ospf.LSA, bool) {
	t, err := d.tableFor(area, key.Type)
	if err != nil {
		return nil, false
	}
	return t.Remove(key)
}

func (d *DB) MarkSent(area ospf.ID, key Key) {
	if t, err := d.tableFor(area, key.Type); err == nil {
		t.MarkSent(key)
	}
}

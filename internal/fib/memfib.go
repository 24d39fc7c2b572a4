package fib

import (
	"fmt"
	"sync"
)

var _ FIB = (*MemFIB)(nil)

// MemFIB is an in-memory FIB used by tests in place of a real kernel
// forwarding table.
type MemFIB struct {
	mu     sync.Mutex
	routes map[string]Route
}

// NewMemFIB returns an empty MemFIB.
func NewMemFIB() *MemFIB {
	return &MemFIB{routes: make(map[string]Route)}
}

func routeKey(r Route) string {
	return fmt.Sprintf("%s/%s", r.Dest, r.Mask)
}

// Add implements FIB, overwriting any existing route to the same
// destination, matching the delete-then-add semantics a real kernel table
// enforces via EEXIST.
func (m *MemFIB) Add(r Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.routes[routeKey(r)] = r
	return nil
}

// Delete implements FIB. Deleting an absent route is not an error.
func (m *MemFIB) Delete(r Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.routes, routeKey(r))
	return nil
}

// Enumerate implements FIB.
func (m *MemFIB) Enumerate() ([]Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Route, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r)
	}
	return out, nil
}

package fib

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFIB(t *testing.T) {
	f := NewMemFIB()

	r := Route{
		Dest:    net.IPv4(10, 0, 0, 0),
		Mask:    net.CIDRMask(24, 32),
		NextHop: net.IPv4(192, 0, 2, 1),
		Iface:   "eth0",
		Metric:  10,
	}

	require.NoError(t, f.Add(r))

	got, err := f.Enumerate()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r, got[0])

	// Re-adding with a different metric overwrites rather than duplicating.
	r.Metric = 20
	require.NoError(t, f.Add(r))

	got, err = f.Enumerate()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(20), got[0].Metric)

	require.NoError(t, f.Delete(r))
	got, err = f.Enumerate()
	require.NoError(t, err)
	assert.Empty(t, got)

	// Deleting an absent route is not an error.
	require.NoError(t, f.Delete(r))
}

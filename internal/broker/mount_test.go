package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountTableRejectsCollision(t *testing.T) {
	mt := NewMountTable()
	a, b := &Peer{ID: 1}, &Peer{ID: 2}
	require.True(t, mt.Mount("devices/sensor1", a))
	assert.False(t, mt.Mount("devices/sensor1", b))
}

func TestMountTableLookupLongestPrefix(t *testing.T) {
	mt := NewMountTable()
	outer, inner := &Peer{ID: 1}, &Peer{ID: 2}
	require.True(t, mt.Mount("devices", outer))
	require.True(t, mt.Mount("devices/sensor1", inner))

	peer, prefix, rest, ok := mt.Lookup("devices/sensor1/temperature")
	require.True(t, ok)
	assert.Same(t, inner, peer)
	assert.Equal(t, "devices/sensor1", prefix)
	assert.Equal(t, "temperature", rest)

	peer, prefix, rest, ok = mt.Lookup("devices/other")
	require.True(t, ok)
	assert.Same(t, outer, peer)
	assert.Equal(t, "devices", prefix)
	assert.Equal(t, "other", rest)
}

func TestMountTableUnmountFreesPrefix(t *testing.T) {
	mt := NewMountTable()
	p := &Peer{ID: 1}
	require.True(t, mt.Mount("devices/sensor1", p))
	mt.Unmount("devices/sensor1")
	assert.False(t, mt.Occupied("devices/sensor1"))
	assert.True(t, mt.Mount("devices/sensor1", &Peer{ID: 2}))
}

func TestMountTableAllReturnsIndependentCopy(t *testing.T) {
	mt := NewMountTable()
	require.True(t, mt.Mount("devices/sensor1", &Peer{ID: 1}))
	all := mt.All()
	delete(all, "devices/sensor1")
	assert.True(t, mt.Occupied("devices/sensor1"))
}

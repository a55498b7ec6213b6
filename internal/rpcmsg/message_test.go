package rpcmsg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shv.dev/broker/internal/rtypes"
)

func TestRequestResponseSignalKind(t *testing.T) {
	req := NewRequest("test/device", "get", 1, rtypes.NewList(nil))
	kind, err := req.Kind()
	require.NoError(t, err)
	assert.Equal(t, KindRequest, kind)
	assert.NoError(t, req.Validate())

	resp := NewResponse(1, rtypes.NewInt(42))
	kind, err = resp.Kind()
	require.NoError(t, err)
	assert.Equal(t, KindResponse, kind)
	assert.NoError(t, resp.Validate())
	assert.False(t, resp.IsError())

	sig := NewSignal("test/device/track/1", "get", "chng", rtypes.NewList([]rtypes.Value{rtypes.NewInt(1)}))
	kind, err = sig.Kind()
	require.NoError(t, err)
	assert.Equal(t, KindSignal, kind)
	assert.NoError(t, sig.Validate())
	assert.Equal(t, DefaultSignalName, sig.SignalName())
}

func TestErrorResponse(t *testing.T) {
	resp := NewErrorResponse(7, ErrMethodCallException, "destination disconnected")
	assert.True(t, resp.IsError())
	assert.Equal(t, ErrMethodCallException, resp.ErrorCode())
	assert.Equal(t, "destination disconnected", resp.ErrorMessage())
	id, ok := resp.RequestID()
	assert.True(t, ok)
	assert.EqualValues(t, 7, id)
}

func TestInvalidMessageDropped(t *testing.T) {
	// Neither request_id nor method: not a valid message at all.
	bare := Message{Value: rtypes.NewInt(5)}
	_, err := bare.Kind()
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestCallerIDStacking(t *testing.T) {
	req := NewRequest("a/b", "get", 1, rtypes.NewList(nil))
	stacked := req.WithCallerIDs([]int64{3})
	stacked = stacked.WithCallerIDs(append(stacked.CallerIDs(), 7))
	assert.Equal(t, []int64{3, 7}, stacked.CallerIDs())

	unwound := stacked.WithCallerIDs(stacked.CallerIDs()[:len(stacked.CallerIDs())-1])
	assert.Equal(t, []int64{3}, unwound.CallerIDs())
}

func TestWithAccessGrantSetsAndOverwritesLevel(t *testing.T) {
	req := NewRequest("a", "get", 1, rtypes.NewList(nil)).WithAccessGrant(16)
	level, ok := req.AccessGrant()
	require.True(t, ok)
	assert.Equal(t, 16, level)

	lowered := req.WithAccessGrant(8)
	level, _ = lowered.AccessGrant()
	assert.Equal(t, 8, level)
}

func TestIDGeneratorMonotonicWithinWindow(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := &IDGenerator{windowStart: fixed, next: 1, now: func() time.Time { return fixed }}
	var last int64
	for i := 0; i < 100; i++ {
		id := g.Next()
		assert.Greater(t, id, last)
		last = id
	}
}

func TestIDGeneratorRollsOverAfterWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := start
	g := &IDGenerator{windowStart: start, next: 1, now: func() time.Time { return cur }}
	for i := 0; i < 5; i++ {
		g.Next()
	}
	cur = start.Add(16 * time.Minute)
	id := g.Next()
	assert.EqualValues(t, 1, id)
}

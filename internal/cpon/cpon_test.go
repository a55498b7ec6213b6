package cpon

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shv.dev/broker/internal/chainpack"
	"shv.dev/broker/internal/rtypes"
)

func roundtrip(t *testing.T, v rtypes.Value) rtypes.Value {
	t.Helper()
	b, err := Marshal(v)
	require.NoError(t, err)
	got, err := Unmarshal(b)
	require.NoError(t, err)
	return got
}

func TestRoundtripScalars(t *testing.T) {
	values := []rtypes.Value{
		rtypes.Null(),
		rtypes.NewBool(true),
		rtypes.NewBool(false),
		rtypes.NewInt(0),
		rtypes.NewInt(-42),
		rtypes.NewUInt(123),
		rtypes.NewDouble(3.5),
		rtypes.NewDouble(-2),
		rtypes.NewDecimal(rtypes.Decimal{Mantissa: 1234, Exponent: -2}),
		rtypes.NewBytes([]byte{0, 1, 2, 0xff}),
		rtypes.NewString("hello \"world\"\n"),
	}
	for _, v := range values {
		got := roundtrip(t, v)
		assert.True(t, v.Equal(got), "roundtrip mismatch for %v -> %v (cpon=%s)", v, got, mustMarshal(t, v))
	}
}

func mustMarshal(t *testing.T, v rtypes.Value) string {
	t.Helper()
	b, err := Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestRoundtripContainersAndMeta(t *testing.T) {
	meta := rtypes.NewMeta()
	meta.IMap[1] = rtypes.NewInt(2)
	meta.Map["tag"] = rtypes.NewString("v1")
	v := rtypes.NewList([]rtypes.Value{
		rtypes.NewInt(3),
		rtypes.NewMap(map[string]rtypes.Value{"a": rtypes.NewBool(false)}),
		rtypes.NewIMap(map[int]rtypes.Value{1: rtypes.NewString("x")}),
	}).WithMeta(meta)

	got := roundtrip(t, v)
	assert.True(t, v.Equal(got))
}

func TestDateTimeRoundtrip(t *testing.T) {
	dt := rtypes.NewDateTimeFromEpochMillis(123456789, 90)
	v := rtypes.NewDateTime(dt)
	got := roundtrip(t, v)
	assert.True(t, v.Equal(got))
}

// TestCrossAgreementWithChainPack asserts both codecs parse/produce the
// same abstract Value for a value carrying meta, a list, and a map.
func TestCrossAgreementWithChainPack(t *testing.T) {
	meta := rtypes.NewMeta()
	meta.IMap[1] = rtypes.NewInt(2)
	v := rtypes.NewList([]rtypes.Value{
		rtypes.NewInt(3),
		rtypes.NewMap(map[string]rtypes.Value{"a": rtypes.NewBool(false)}),
	}).WithMeta(meta)

	cponBytes, err := Marshal(v)
	require.NoError(t, err)
	fromCpon, err := Unmarshal(cponBytes)
	require.NoError(t, err)

	var cpBuf bytes.Buffer
	require.NoError(t, chainpack.NewEncoder(&cpBuf).Encode(v))
	fromChainPack, err := chainpack.NewDecoder(&cpBuf).Decode()
	require.NoError(t, err)

	assert.True(t, fromCpon.Equal(fromChainPack))
}

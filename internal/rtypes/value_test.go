package rtypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualityNoImplicitCoercion(t *testing.T) {
	d := NewDecimal(Decimal{Mantissa: 150, Exponent: -1})
	f := NewDouble(15.0)
	assert.False(t, d.Equal(f), "Decimal must never compare equal to a Double")
}

func TestCloneIsIndependent(t *testing.T) {
	orig := NewList([]Value{NewInt(1), NewString("a")})
	clone := orig.Clone()
	require.True(t, orig.Equal(clone))

	// mutating the clone's backing slice must not affect the original
	clone.list[0] = NewInt(99)
	assert.True(t, orig.List()[0].Equal(NewInt(1)))
}

func TestMetaEmptyIsAbsent(t *testing.T) {
	v1 := Null()
	v2 := Null().WithMeta(NewMeta())
	assert.True(t, v1.Equal(v2), "empty meta must be indistinguishable from absent meta")
}

func TestMetaRoundtripAttributes(t *testing.T) {
	m := NewMeta()
	m.IMap[1] = NewUInt(1)
	m.IMap[8] = NewUInt(42)
	m.Map["x"] = NewString("y")
	v := NewString("hello").WithMeta(m)

	got, ok := v.MetaInt(8)
	require.True(t, ok)
	assert.True(t, got.Equal(NewUInt(42)))

	_, ok = v.MetaInt(99)
	assert.False(t, ok)

	str, ok := v.MetaStr("x")
	require.True(t, ok)
	assert.Equal(t, "y", str.String())
}

func TestDateTimeEpochRoundtrip(t *testing.T) {
	cases := []int64{0, 1000, -1000, -86400000, 86400000}
	for _, msec := range cases {
		dt := NewDateTimeFromEpochMillis(msec, 60)
		assert.Equal(t, msec, dt.EpochMillis())
	}
}

func TestDateTimePreEpochDefect(t *testing.T) {
	// An instant well before the 2018-02-02 epoch must still round-trip.
	before := time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)
	msec := before.Sub(Epoch).Milliseconds()
	dt := NewDateTimeFromEpochMillis(msec, 0)
	assert.True(t, dt.Time.Equal(before))
}

func TestMapOrderIrrelevant(t *testing.T) {
	a := NewMap(map[string]Value{"a": NewInt(1), "b": NewInt(2)})
	b := NewMap(map[string]Value{"b": NewInt(2), "a": NewInt(1)})
	assert.True(t, a.Equal(b))
}

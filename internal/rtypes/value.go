// Package rtypes implements the SHV dynamic value model shared by the
// ChainPack and CPON codecs: a tagged union with an optional Meta side-car.
package rtypes

import (
	"fmt"
	"math/big"
	"time"
)

// Kind identifies the variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUInt
	KindDouble
	KindDecimal
	KindBytes
	KindString
	KindDateTime
	KindList
	KindMap
	KindIMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindUInt:
		return "UInt"
	case KindDouble:
		return "Double"
	case KindDecimal:
		return "Decimal"
	case KindBytes:
		return "Bytes"
	case KindString:
		return "String"
	case KindDateTime:
		return "DateTime"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindIMap:
		return "IMap"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Decimal is an int64 mantissa with a signed 8-bit base-10 exponent:
// value = Mantissa * 10^Exponent. Mantissas outside the int64 range are not
// representable.
type Decimal struct {
	Mantissa int64
	Exponent int8
}

// Float64 converts the decimal to its nearest double approximation.
func (d Decimal) Float64() float64 {
	r := new(big.Float).SetInt64(d.Mantissa)
	exp := new(big.Float).SetFloat64(1)
	ten := big.NewFloat(10)
	if d.Exponent >= 0 {
		for i := int8(0); i < d.Exponent; i++ {
			exp.Mul(exp, ten)
		}
		r.Mul(r, exp)
	} else {
		for i := int8(0); i > d.Exponent; i-- {
			exp.Mul(exp, ten)
		}
		r.Quo(r, exp)
	}
	f, _ := r.Float64()
	return f
}

// DateTime is an absolute instant with millisecond precision and a UTC
// offset recorded in minutes, matching the codecs' wire representation.
type DateTime struct {
	// Time holds the instant; its Location is not used by the codecs.
	// OffsetMin is the UTC offset, in minutes, that round-trips through them.
	Time       time.Time
	OffsetMin  int16
}

// Value is a tagged SHV value. The zero Value is Null.
type Value struct {
	kind Kind

	b    bool
	i    int64
	u    uint64
	d    float64
	dec  Decimal
	bs   []byte
	str  string
	dt   DateTime
	list []Value
	// smap holds a Map (string-keyed) payload, imap an IMap (int-keyed) one.
	smap map[string]Value
	imap map[int]Value

	meta *Meta
}

// Meta is the optional attribute side-car carried by any Value: an IMap of
// integer-keyed attributes (used for RPC message fields) plus an optional
// String-keyed Map of auxiliary attributes.
type Meta struct {
	IMap map[int]Value
	Map  map[string]Value
}

// NewMeta returns an empty, non-nil Meta whose IMap and Map are ready to be
// filled.
func NewMeta() *Meta {
	return &Meta{IMap: make(map[int]Value), Map: make(map[string]Value)}
}

// IsEmpty reports whether the meta carries no attributes at all -- an empty
// Meta is indistinguishable from an absent one on the wire.
func (m *Meta) IsEmpty() bool {
	return m == nil || (len(m.IMap) == 0 && len(m.Map) == 0)
}

// Clone deep-copies the meta.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return nil
	}
	nm := &Meta{IMap: make(map[int]Value, len(m.IMap)), Map: make(map[string]Value, len(m.Map))}
	for k, v := range m.IMap {
		nm.IMap[k] = v.Clone()
	}
	for k, v := range m.Map {
		nm.Map[k] = v.Clone()
	}
	return nm
}

// Equal reports structural equality between two metas, with an empty and a
// nil meta considered equal.
func (m *Meta) Equal(o *Meta) bool {
	aEmpty, bEmpty := m.IsEmpty(), o.IsEmpty()
	if aEmpty || bEmpty {
		return aEmpty == bEmpty
	}
	if len(m.IMap) != len(o.IMap) || len(m.Map) != len(o.Map) {
		return false
	}
	for k, v := range m.IMap {
		ov, ok := o.IMap[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	for k, v := range m.Map {
		ov, ok := o.Map[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Null returns the Null value.
func Null() Value { return Value{kind: KindNull} }

// NewBool constructs a Bool value.
func NewBool(b bool) Value { return Value{kind: KindBool, b: b} }

// NewInt constructs a signed-integer value.
func NewInt(i int64) Value { return Value{kind: KindInt, i: i} }

// NewUInt constructs an unsigned-integer value.
func NewUInt(u uint64) Value { return Value{kind: KindUInt, u: u} }

// NewDouble constructs a Double value.
func NewDouble(d float64) Value { return Value{kind: KindDouble, d: d} }

// NewDecimal constructs a Decimal value.
func NewDecimal(dec Decimal) Value { return Value{kind: KindDecimal, dec: dec} }

// NewBytes constructs a Bytes value, copying the input.
func NewBytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bs: cp}
}

// NewString constructs a String value.
func NewString(s string) Value { return Value{kind: KindString, str: s} }

// NewDateTime constructs a DateTime value.
func NewDateTime(dt DateTime) Value { return Value{kind: KindDateTime, dt: dt} }

// NewList constructs a List value, copying the input slice header (elements
// are immutable Values, so a shallow copy is sufficient for API purposes).
func NewList(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// NewMap constructs a String-keyed Map value.
func NewMap(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, smap: cp}
}

// NewIMap constructs an int-keyed IMap value. An empty dictionary literal
// with no further type information decodes as an IMap.
func NewIMap(m map[int]Value) Value {
	cp := make(map[int]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindIMap, imap: cp}
}

// Kind returns the value's variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the Bool payload; panics if Kind() != KindBool.
func (v Value) Bool() bool { v.mustBe(KindBool); return v.b }

// Int returns the Int payload; panics if Kind() != KindInt.
func (v Value) Int() int64 { v.mustBe(KindInt); return v.i }

// UInt returns the UInt payload; panics if Kind() != KindUInt.
func (v Value) UInt() uint64 { v.mustBe(KindUInt); return v.u }

// Double returns the Double payload; panics if Kind() != KindDouble.
func (v Value) Double() float64 { v.mustBe(KindDouble); return v.d }

// DecimalValue returns the Decimal payload; panics if Kind() != KindDecimal.
func (v Value) DecimalValue() Decimal { v.mustBe(KindDecimal); return v.dec }

// Bytes returns the Bytes payload; panics if Kind() != KindBytes.
func (v Value) Bytes() []byte { v.mustBe(KindBytes); return v.bs }

// String returns the String payload; for any other kind it returns the kind
// name in angle brackets (e.g. "<Int>") instead of panicking.
func (v Value) String() string {
	if v.kind != KindString {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return v.str
}

// DateTimeValue returns the DateTime payload; panics if Kind() != KindDateTime.
func (v Value) DateTimeValue() DateTime { v.mustBe(KindDateTime); return v.dt }

// List returns the List payload; panics if Kind() != KindList.
func (v Value) List() []Value { v.mustBe(KindList); return v.list }

// Map returns the Map payload; panics if Kind() != KindMap.
func (v Value) Map() map[string]Value { v.mustBe(KindMap); return v.smap }

// IMap returns the IMap payload; panics if Kind() != KindIMap.
func (v Value) IMap() map[int]Value { v.mustBe(KindIMap); return v.imap }

func (v Value) mustBe(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("rtypes: value is %s, not %s", v.kind, k))
	}
}

// Meta returns the value's meta side-car, or nil if absent.
func (v Value) Meta() *Meta { return v.meta }

// WithMeta returns a copy of v carrying the given meta.
func (v Value) WithMeta(m *Meta) Value {
	v.meta = m
	return v
}

// MetaInt returns the IMap attribute at key and whether it was present.
func (v Value) MetaInt(key int) (Value, bool) {
	if v.meta == nil {
		return Value{}, false
	}
	vv, ok := v.meta.IMap[key]
	return vv, ok
}

// MetaStr returns the Map attribute at key and whether it was present.
func (v Value) MetaStr(key string) (Value, bool) {
	if v.meta == nil {
		return Value{}, false
	}
	vv, ok := v.meta.Map[key]
	return vv, ok
}

// Clone deep-copies v, including its meta.
func (v Value) Clone() Value {
	nv := Value{kind: v.kind, b: v.b, i: v.i, u: v.u, d: v.d, dec: v.dec, str: v.str, dt: v.dt}
	if v.bs != nil {
		nv.bs = append([]byte(nil), v.bs...)
	}
	if v.list != nil {
		nv.list = make([]Value, len(v.list))
		for i, e := range v.list {
			nv.list[i] = e.Clone()
		}
	}
	if v.smap != nil {
		nv.smap = make(map[string]Value, len(v.smap))
		for k, e := range v.smap {
			nv.smap[k] = e.Clone()
		}
	}
	if v.imap != nil {
		nv.imap = make(map[int]Value, len(v.imap))
		for k, e := range v.imap {
			nv.imap[k] = e.Clone()
		}
	}
	nv.meta = v.meta.Clone()
	return nv
}

// Equal reports structural equality: same kind, payload, and meta. No
// implicit numeric coercion is performed -- a Decimal is never equal to a
// Double even with the same numeric magnitude.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	if !v.meta.Equal(o.meta) {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindUInt:
		return v.u == o.u
	case KindDouble:
		return v.d == o.d
	case KindDecimal:
		return v.dec == o.dec
	case KindBytes:
		return string(v.bs) == string(o.bs)
	case KindString:
		return v.str == o.str
	case KindDateTime:
		return v.dt.Time.Equal(o.dt.Time) && v.dt.OffsetMin == o.dt.OffsetMin
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.smap) != len(o.smap) {
			return false
		}
		for k, vv := range v.smap {
			ov, ok := o.smap[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	case KindIMap:
		if len(v.imap) != len(o.imap) {
			return false
		}
		for k, vv := range v.imap {
			ov, ok := o.imap[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

package chainpack

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"shv.dev/broker/internal/rtypes"
)

// Encoder streams Values onto an io.Writer as ChainPack bytes.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes v, then flushes the underlying writer.
func (e *Encoder) Encode(v rtypes.Value) error {
	if err := e.encodeValue(v); err != nil {
		return err
	}
	return e.w.Flush()
}

func (e *Encoder) encodeValue(v rtypes.Value) error {
	if m := v.Meta(); !m.IsEmpty() {
		if err := e.w.WriteByte(tagMeta); err != nil {
			return err
		}
		if err := e.encodeMetaEntries(m); err != nil {
			return err
		}
	}
	switch v.Kind() {
	case rtypes.KindNull:
		return e.w.WriteByte(tagNull)
	case rtypes.KindBool:
		if v.Bool() {
			return e.w.WriteByte(tagTrue)
		}
		return e.w.WriteByte(tagFalse)
	case rtypes.KindInt:
		return e.encodeInt(v.Int())
	case rtypes.KindUInt:
		if err := e.w.WriteByte(tagUInt); err != nil {
			return err
		}
		return writeUVarInt(e.w, v.UInt())
	case rtypes.KindDouble:
		return e.encodeDouble(v.Double())
	case rtypes.KindDecimal:
		return e.encodeDecimal(v.DecimalValue())
	case rtypes.KindBytes:
		return e.encodeBlob(v.Bytes())
	case rtypes.KindString:
		return e.encodeString(v.String())
	case rtypes.KindDateTime:
		return e.encodeDateTime(v.DateTimeValue())
	case rtypes.KindList:
		return e.encodeList(v.List())
	case rtypes.KindMap:
		return e.encodeMap(v.Map())
	case rtypes.KindIMap:
		return e.encodeIMap(v.IMap())
	default:
		return fmt.Errorf("chainpack: unknown kind %v", v.Kind())
	}
}

// encodeInt emits the compact single-byte form for small non-negative
// values, and the tagged form otherwise.
func (e *Encoder) encodeInt(i int64) error {
	if i >= 0 && i <= compactMax {
		return e.w.WriteByte(byte(i))
	}
	if err := e.w.WriteByte(tagInt); err != nil {
		return err
	}
	return writeSignedVarInt(e.w, i)
}

func (e *Encoder) encodeDouble(d float64) error {
	if err := e.w.WriteByte(tagDouble); err != nil {
		return err
	}
	bits := math.Float64bits(d)
	for i := 0; i < 8; i++ {
		if err := e.w.WriteByte(byte(bits >> uint(8*i))); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeDecimal(d rtypes.Decimal) error {
	if err := e.w.WriteByte(tagDecimal); err != nil {
		return err
	}
	if err := writeSignedVarInt(e.w, d.Mantissa); err != nil {
		return err
	}
	return writeSignedVarInt(e.w, int64(d.Exponent))
}

func (e *Encoder) encodeBlob(b []byte) error {
	if err := e.w.WriteByte(tagBlob); err != nil {
		return err
	}
	if err := writeUVarInt(e.w, uint64(len(b))); err != nil {
		return err
	}
	_, err := e.w.Write(b)
	return err
}

func (e *Encoder) encodeString(s string) error {
	if err := e.w.WriteByte(tagString); err != nil {
		return err
	}
	return e.encodeRawString(s)
}

// encodeRawString writes a length-prefixed UTF-8 string with no leading
// type tag -- used for Map keys, which carry no independent Kind.
func (e *Encoder) encodeRawString(s string) error {
	if err := writeUVarInt(e.w, uint64(len(s))); err != nil {
		return err
	}
	_, err := e.w.WriteString(s)
	return err
}

func (e *Encoder) encodeDateTime(dt rtypes.DateTime) error {
	if err := e.w.WriteByte(tagDateTime); err != nil {
		return err
	}
	if err := writeSignedVarInt(e.w, dt.EpochMillis()); err != nil {
		return err
	}
	return writeSignedVarInt(e.w, int64(dt.OffsetMin))
}

func (e *Encoder) encodeList(items []rtypes.Value) error {
	if err := e.w.WriteByte(tagListBegin); err != nil {
		return err
	}
	for _, it := range items {
		if err := e.encodeValue(it); err != nil {
			return err
		}
	}
	return e.w.WriteByte(tagTerminator)
}

func (e *Encoder) encodeMap(m map[string]rtypes.Value) error {
	if err := e.w.WriteByte(tagMapBegin); err != nil {
		return err
	}
	for k, v := range m {
		if err := e.encodeRawString(k); err != nil {
			return err
		}
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return e.w.WriteByte(tagTerminator)
}

func (e *Encoder) encodeIMap(m map[int]rtypes.Value) error {
	if err := e.w.WriteByte(tagIMapBegin); err != nil {
		return err
	}
	for k, v := range m {
		if err := writeUVarInt(e.w, uint64(k)); err != nil {
			return err
		}
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return e.w.WriteByte(tagTerminator)
}

// encodeMetaEntries writes the merged int-keyed/string-keyed meta sequence:
// each entry's key is either a tagUInt-prefixed varint (IMap attribute) or a
// length-prefixed string introduced by tagString (Map attribute). The
// explicit tagUInt prefix (rather than a bare varint) keeps int keys from
// ever colliding with the tagString marker byte -- a bare multi-byte varint
// can legally start with 0x87. The sequence ends with the shared terminator,
// after which the real value follows (written by the caller).
func (e *Encoder) encodeMetaEntries(m *rtypes.Meta) error {
	for k, v := range m.IMap {
		if err := e.w.WriteByte(tagUInt); err != nil {
			return err
		}
		if err := writeUVarInt(e.w, uint64(k)); err != nil {
			return err
		}
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	for k, v := range m.Map {
		if err := e.w.WriteByte(tagString); err != nil {
			return err
		}
		if err := e.encodeRawString(k); err != nil {
			return err
		}
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return e.w.WriteByte(tagTerminator)
}

package cpon

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"shv.dev/broker/internal/rtypes"
)

// Encoder streams Values onto an io.Writer as CPON text.
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
		if err := e.encodeMeta(m); err != nil {
			return err
		}
	}
	switch v.Kind() {
	case rtypes.KindNull:
		_, err := e.w.WriteString("null")
		return err
	case rtypes.KindBool:
		if v.Bool() {
			_, err := e.w.WriteString("true")
			return err
		}
		_, err := e.w.WriteString("false")
		return err
	case rtypes.KindInt:
		_, err := e.w.WriteString(strconv.FormatInt(v.Int(), 10))
		return err
	case rtypes.KindUInt:
		_, err := fmt.Fprintf(e.w, "%du", v.UInt())
		return err
	case rtypes.KindDouble:
		return e.encodeDouble(v.Double())
	case rtypes.KindDecimal:
		return e.encodeDecimal(v.DecimalValue())
	case rtypes.KindBytes:
		return e.encodeBlob(v.Bytes())
	case rtypes.KindString:
		return e.encodeQuotedString(v.String(), '"')
	case rtypes.KindDateTime:
		return e.encodeDateTime(v.DateTimeValue())
	case rtypes.KindList:
		return e.encodeList(v.List())
	case rtypes.KindMap:
		return e.encodeMap(v.Map())
	case rtypes.KindIMap:
		return e.encodeIMap(v.IMap())
	default:
		return fmt.Errorf("cpon: unknown kind %v", v.Kind())
	}
}

func (e *Encoder) encodeDouble(d float64) error {
	s := strconv.FormatFloat(d, 'g', -1, 64)
	hasDotOrExp := false
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			hasDotOrExp = true
			break
		}
	}
	if !hasDotOrExp {
		s += "."
	}
	_, err := e.w.WriteString(s)
	return err
}

// encodeDecimal writes a Decimal as mantissa digits with a trailing "d"
// suffix and an explicit exponent, e.g. "1234e-2d" for 12.34.
func (e *Encoder) encodeDecimal(d rtypes.Decimal) error {
	_, err := fmt.Fprintf(e.w, "%de%dd", d.Mantissa, d.Exponent)
	return err
}

func (e *Encoder) encodeBlob(b []byte) error {
	if _, err := e.w.WriteString(`b"`); err != nil {
		return err
	}
	for _, c := range b {
		if c >= 0x20 && c < 0x7f && c != '"' && c != '\\' {
			if err := e.w.WriteByte(c); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(e.w, `\x%02x`, c); err != nil {
			return err
		}
	}
	return e.w.WriteByte('"')
}

func (e *Encoder) encodeQuotedString(s string, quote byte) error {
	if err := e.w.WriteByte(quote); err != nil {
		return err
	}
	for _, r := range s {
		switch r {
		case '\\':
			if _, err := e.w.WriteString(`\\`); err != nil {
				return err
			}
		case rune(quote):
			if _, err := fmt.Fprintf(e.w, `\%c`, quote); err != nil {
				return err
			}
		case '\n':
			if _, err := e.w.WriteString(`\n`); err != nil {
				return err
			}
		case '\t':
			if _, err := e.w.WriteString(`\t`); err != nil {
				return err
			}
		case '\r':
			if _, err := e.w.WriteString(`\r`); err != nil {
				return err
			}
		default:
			if r < 0x20 {
				if _, err := fmt.Fprintf(e.w, `\x%02x`, r); err != nil {
					return err
				}
				continue
			}
			if _, err := e.w.WriteRune(r); err != nil {
				return err
			}
		}
	}
	return e.w.WriteByte(quote)
}

func (e *Encoder) encodeDateTime(dt rtypes.DateTime) error {
	if _, err := e.w.WriteString(`d"`); err != nil {
		return err
	}
	s := dt.Time.In(time.FixedZone("", int(dt.OffsetMin)*60)).Format("2006-01-02T15:04:05.000")
	if _, err := e.w.WriteString(s); err != nil {
		return err
	}
	if dt.OffsetMin == 0 {
		if _, err := e.w.WriteString("Z"); err != nil {
			return err
		}
	} else {
		sign := byte('+')
		off := dt.OffsetMin
		if off < 0 {
			sign = '-'
			off = -off
		}
		if _, err := fmt.Fprintf(e.w, "%c%02d%02d", sign, off/60, off%60); err != nil {
			return err
		}
	}
	return e.w.WriteByte('"')
}

func (e *Encoder) encodeList(items []rtypes.Value) error {
	if err := e.w.WriteByte('['); err != nil {
		return err
	}
	for i, it := range items {
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := e.encodeValue(it); err != nil {
			return err
		}
	}
	return e.w.WriteByte(']')
}

func (e *Encoder) encodeMap(m map[string]rtypes.Value) error {
	if err := e.w.WriteByte('{'); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := e.encodeQuotedString(k, '"'); err != nil {
			return err
		}
		if err := e.w.WriteByte(':'); err != nil {
			return err
		}
		if err := e.encodeValue(m[k]); err != nil {
			return err
		}
	}
	return e.w.WriteByte('}')
}

func (e *Encoder) encodeIMap(m map[int]rtypes.Value) error {
	if _, err := e.w.WriteString("i{"); err != nil {
		return err
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for i, k := range keys {
		if i > 0 {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(e.w, "%d:", k); err != nil {
			return err
		}
		if err := e.encodeValue(m[k]); err != nil {
			return err
		}
	}
	return e.w.WriteByte('}')
}

func (e *Encoder) encodeMeta(m *rtypes.Meta) error {
	if err := e.w.WriteByte('<'); err != nil {
		return err
	}
	ikeys := make([]int, 0, len(m.IMap))
	for k := range m.IMap {
		ikeys = append(ikeys, k)
	}
	sort.Ints(ikeys)
	skeys := make([]string, 0, len(m.Map))
	for k := range m.Map {
		skeys = append(skeys, k)
	}
	sort.Strings(skeys)

	first := true
	for _, k := range ikeys {
		if !first {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		first = false
		if _, err := fmt.Fprintf(e.w, "%d:", k); err != nil {
			return err
		}
		if err := e.encodeValue(m.IMap[k]); err != nil {
			return err
		}
	}
	for _, k := range skeys {
		if !first {
			if err := e.w.WriteByte(','); err != nil {
				return err
			}
		}
		first = false
		if err := e.encodeQuotedString(k, '"'); err != nil {
			return err
		}
		if err := e.w.WriteByte(':'); err != nil {
			return err
		}
		if err := e.encodeValue(m.Map[k]); err != nil {
			return err
		}
	}
	return e.w.WriteByte('>')
}

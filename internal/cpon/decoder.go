package cpon

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"shv.dev/broker/internal/rtypes"
)

// Decoder reads Values from an io.Reader containing CPON text.
type Decoder struct {
	r   *bufio.Reader
	pos int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode parses exactly one Value, ignoring surrounding whitespace.
func (d *Decoder) Decode() (rtypes.Value, error) {
	d.skipSpace()
	return d.parseValue()
}

func (d *Decoder) errf(format string, args ...interface{}) error {
	return &ErrSyntax{Pos: d.pos, Msg: fmt.Sprintf(format, args...)}
}

func (d *Decoder) peek() (byte, error) {
	b, err := d.r.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err == nil {
		d.pos++
	}
	return b, err
}

func (d *Decoder) skipSpace() {
	for {
		b, err := d.peek()
		if err != nil {
			return
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			d.readByte()
			continue
		}
		return
	}
}

func (d *Decoder) expect(c byte) error {
	b, err := d.readByte()
	if err != nil {
		return err
	}
	if b != c {
		return d.errf("expected %q, got %q", c, b)
	}
	return nil
}

func (d *Decoder) parseValue() (rtypes.Value, error) {
	var meta *rtypes.Meta
	b, err := d.peek()
	if err != nil {
		return rtypes.Value{}, err
	}
	if b == '<' {
		meta, err = d.parseMeta()
		if err != nil {
			return rtypes.Value{}, err
		}
		d.skipSpace()
	}

	v, err := d.parseUnmeta()
	if err != nil {
		return rtypes.Value{}, err
	}
	if meta != nil {
		v = v.WithMeta(meta)
	}
	return v, nil
}

func (d *Decoder) parseUnmeta() (rtypes.Value, error) {
	b, err := d.peek()
	if err != nil {
		return rtypes.Value{}, err
	}
	switch {
	case b == 'n':
		return rtypes.Null(), d.expectWord("null")
	case b == 't':
		return rtypes.NewBool(true), d.expectWord("true")
	case b == 'f':
		return rtypes.NewBool(false), d.expectWord("false")
	case b == '"':
		s, err := d.parseQuotedString('"')
		if err != nil {
			return rtypes.Value{}, err
		}
		return rtypes.NewString(s), nil
	case b == 'b':
		return d.parseBlob()
	case b == 'd' && d.secondByteIs('"'):
		return d.parseDateTime()
	case b == 'i':
		return d.parseIMap()
	case b == '[':
		return d.parseList()
	case b == '{':
		return d.parseMap()
	case b == '-' || (b >= '0' && b <= '9'):
		return d.parseNumber()
	default:
		return rtypes.Value{}, d.errf("unexpected byte %q", b)
	}
}

func (d *Decoder) secondByteIs(c byte) bool {
	b, err := d.r.Peek(2)
	return err == nil && len(b) == 2 && b[1] == c
}

func (d *Decoder) expectWord(w string) error {
	for i := 0; i < len(w); i++ {
		if err := d.expect(w[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) parseQuotedString(quote byte) (string, error) {
	if err := d.expect(quote); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		b, err := d.readByte()
		if err != nil {
			return "", err
		}
		if b == quote {
			return sb.String(), nil
		}
		if b != '\\' {
			sb.WriteByte(b)
			continue
		}
		esc, err := d.readByte()
		if err != nil {
			return "", err
		}
		switch esc {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '\\':
			sb.WriteByte('\\')
		case '"':
			sb.WriteByte('"')
		case '\'':
			sb.WriteByte('\'')
		case 'x':
			hi, err := d.readByte()
			if err != nil {
				return "", err
			}
			lo, err := d.readByte()
			if err != nil {
				return "", err
			}
			n, err := strconv.ParseUint(string([]byte{hi, lo}), 16, 8)
			if err != nil {
				return "", d.errf("bad \\x escape: %v", err)
			}
			sb.WriteByte(byte(n))
		default:
			sb.WriteByte(esc)
		}
	}
}

func (d *Decoder) parseBlob() (rtypes.Value, error) {
	if err := d.expect('b'); err != nil {
		return rtypes.Value{}, err
	}
	if err := d.expect('"'); err != nil {
		return rtypes.Value{}, err
	}
	var buf []byte
	for {
		b, err := d.readByte()
		if err != nil {
			return rtypes.Value{}, err
		}
		if b == '"' {
			return rtypes.NewBytes(buf), nil
		}
		if b != '\\' {
			buf = append(buf, b)
			continue
		}
		esc, err := d.readByte()
		if err != nil {
			return rtypes.Value{}, err
		}
		if esc != 'x' {
			buf = append(buf, esc)
			continue
		}
		hi, err := d.readByte()
		if err != nil {
			return rtypes.Value{}, err
		}
		lo, err := d.readByte()
		if err != nil {
			return rtypes.Value{}, err
		}
		n, err := strconv.ParseUint(string([]byte{hi, lo}), 16, 8)
		if err != nil {
			return rtypes.Value{}, d.errf("bad \\x escape: %v", err)
		}
		buf = append(buf, byte(n))
	}
}

func (d *Decoder) parseDateTime() (rtypes.Value, error) {
	if err := d.expect('d'); err != nil {
		return rtypes.Value{}, err
	}
	s, err := d.parseQuotedString('"')
	if err != nil {
		return rtypes.Value{}, err
	}
	var offsetMin int16
	layout := "2006-01-02T15:04:05.000Z0700"
	body := s
	if idx := strings.LastIndexAny(body, "+-"); idx > 10 {
		sign := int16(1)
		if body[idx] == '-' {
			sign = -1
		}
		offStr := body[idx+1:]
		if len(offStr) == 4 {
			h, _ := strconv.Atoi(offStr[:2])
			m, _ := strconv.Atoi(offStr[2:])
			offsetMin = sign * int16(h*60+m)
		}
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return rtypes.Value{}, d.errf("bad datetime %q: %v", s, err)
		}
	}
	dt := rtypes.DateTime{Time: t.UTC(), OffsetMin: offsetMin}
	return rtypes.NewDateTime(dt), nil
}

func (d *Decoder) parseList() (rtypes.Value, error) {
	if err := d.expect('['); err != nil {
		return rtypes.Value{}, err
	}
	var items []rtypes.Value
	d.skipSpace()
	for {
		b, err := d.peek()
		if err != nil {
			return rtypes.Value{}, err
		}
		if b == ']' {
			d.readByte()
			return rtypes.NewList(items), nil
		}
		v, err := d.parseValue()
		if err != nil {
			return rtypes.Value{}, err
		}
		items = append(items, v)
		d.skipSpace()
		if err := d.consumeCommaOrEnd(']'); err != nil {
			return rtypes.Value{}, err
		}
	}
}

func (d *Decoder) consumeCommaOrEnd(end byte) error {
	b, err := d.peek()
	if err != nil {
		return err
	}
	if b == ',' {
		d.readByte()
		d.skipSpace()
		return nil
	}
	if b == end {
		return nil
	}
	return d.errf("expected ',' or %q, got %q", end, b)
}

func (d *Decoder) parseMap() (rtypes.Value, error) {
	if err := d.expect('{'); err != nil {
		return rtypes.Value{}, err
	}
	m := make(map[string]rtypes.Value)
	d.skipSpace()
	for {
		b, err := d.peek()
		if err != nil {
			return rtypes.Value{}, err
		}
		if b == '}' {
			d.readByte()
			if len(m) == 0 {
				return rtypes.NewIMap(nil), nil
			}
			return rtypes.NewMap(m), nil
		}
		k, err := d.parseQuotedString('"')
		if err != nil {
			return rtypes.Value{}, err
		}
		d.skipSpace()
		if err := d.expect(':'); err != nil {
			return rtypes.Value{}, err
		}
		d.skipSpace()
		v, err := d.parseValue()
		if err != nil {
			return rtypes.Value{}, err
		}
		m[k] = v
		d.skipSpace()
		if err := d.consumeCommaOrEnd('}'); err != nil {
			return rtypes.Value{}, err
		}
	}
}

func (d *Decoder) parseIMap() (rtypes.Value, error) {
	if err := d.expect('i'); err != nil {
		return rtypes.Value{}, err
	}
	if err := d.expect('{'); err != nil {
		return rtypes.Value{}, err
	}
	m := make(map[int]rtypes.Value)
	d.skipSpace()
	for {
		b, err := d.peek()
		if err != nil {
			return rtypes.Value{}, err
		}
		if b == '}' {
			d.readByte()
			return rtypes.NewIMap(m), nil
		}
		k, err := d.parseIntLiteral()
		if err != nil {
			return rtypes.Value{}, err
		}
		d.skipSpace()
		if err := d.expect(':'); err != nil {
			return rtypes.Value{}, err
		}
		d.skipSpace()
		v, err := d.parseValue()
		if err != nil {
			return rtypes.Value{}, err
		}
		m[int(k)] = v
		d.skipSpace()
		if err := d.consumeCommaOrEnd('}'); err != nil {
			return rtypes.Value{}, err
		}
	}
}

func (d *Decoder) parseMeta() (*rtypes.Meta, error) {
	if err := d.expect('<'); err != nil {
		return nil, err
	}
	m := rtypes.NewMeta()
	d.skipSpace()
	for {
		b, err := d.peek()
		if err != nil {
			return nil, err
		}
		if b == '>' {
			d.readByte()
			return m, nil
		}
		if b == '"' {
			k, err := d.parseQuotedString('"')
			if err != nil {
				return nil, err
			}
			d.skipSpace()
			if err := d.expect(':'); err != nil {
				return nil, err
			}
			d.skipSpace()
			v, err := d.parseValue()
			if err != nil {
				return nil, err
			}
			m.Map[k] = v
		} else {
			k, err := d.parseIntLiteral()
			if err != nil {
				return nil, err
			}
			d.skipSpace()
			if err := d.expect(':'); err != nil {
				return nil, err
			}
			d.skipSpace()
			v, err := d.parseValue()
			if err != nil {
				return nil, err
			}
			m.IMap[int(k)] = v
		}
		d.skipSpace()
		if err := d.consumeCommaOrEnd('>'); err != nil {
			return nil, err
		}
	}
}

func (d *Decoder) parseIntLiteral() (int64, error) {
	var sb strings.Builder
	b, err := d.peek()
	if err != nil {
		return 0, err
	}
	if b == '-' {
		sb.WriteByte(b)
		d.readByte()
	}
	for {
		b, err := d.peek()
		if err != nil {
			break
		}
		if b < '0' || b > '9' {
			break
		}
		sb.WriteByte(b)
		d.readByte()
	}
	if sb.Len() == 0 {
		return 0, d.errf("expected integer")
	}
	return strconv.ParseInt(sb.String(), 10, 64)
}

// parseNumber parses Int, UInt ("u" suffix), Double (contains '.' or
// exponent with no trailing 'd'), and Decimal ("e<exp>d" suffix) literals.
func (d *Decoder) parseNumber() (rtypes.Value, error) {
	var sb strings.Builder
	b, err := d.peek()
	if err != nil {
		return rtypes.Value{}, err
	}
	if b == '-' {
		sb.WriteByte(b)
		d.readByte()
	}
	for {
		b, err := d.peek()
		if err != nil {
			break
		}
		if b >= '0' && b <= '9' {
			sb.WriteByte(b)
			d.readByte()
			continue
		}
		break
	}

	isDouble := false
	if b2, err := d.peek(); err == nil && b2 == '.' {
		isDouble = true
		sb.WriteByte('.')
		d.readByte()
		for {
			b, err := d.peek()
			if err != nil {
				break
			}
			if b >= '0' && b <= '9' {
				sb.WriteByte(b)
				d.readByte()
				continue
			}
			break
		}
	}

	var expPart strings.Builder
	hasExp := false
	if b2, err := d.peek(); err == nil && (b2 == 'e' || b2 == 'E') {
		hasExp = true
		d.readByte()
		if b3, err := d.peek(); err == nil && (b3 == '+' || b3 == '-') {
			expPart.WriteByte(b3)
			d.readByte()
		}
		for {
			b, err := d.peek()
			if err != nil {
				break
			}
			if b >= '0' && b <= '9' {
				expPart.WriteByte(b)
				d.readByte()
				continue
			}
			break
		}
	}

	suffix, err := d.peek()
	if err == nil {
		switch suffix {
		case 'u':
			d.readByte()
			n, err := strconv.ParseUint(sb.String(), 10, 64)
			if err != nil {
				return rtypes.Value{}, d.errf("bad uint literal: %v", err)
			}
			return rtypes.NewUInt(n), nil
		case 'd':
			d.readByte()
			mantissa, err := strconv.ParseInt(sb.String(), 10, 64)
			if err != nil {
				return rtypes.Value{}, d.errf("bad decimal literal: %v", err)
			}
			exp := int64(0)
			if hasExp {
				exp, err = strconv.ParseInt(expPart.String(), 10, 64)
				if err != nil {
					return rtypes.Value{}, d.errf("bad decimal exponent: %v", err)
				}
			}
			return rtypes.NewDecimal(rtypes.Decimal{Mantissa: mantissa, Exponent: int8(exp)}), nil
		}
	}

	if isDouble || hasExp {
		full := sb.String()
		if hasExp {
			full += "e" + expPart.String()
		}
		f, err := strconv.ParseFloat(full, 64)
		if err != nil {
			return rtypes.Value{}, d.errf("bad double literal: %v", err)
		}
		return rtypes.NewDouble(f), nil
	}

	i, err := strconv.ParseInt(sb.String(), 10, 64)
	if err != nil {
		return rtypes.Value{}, d.errf("bad int literal: %v", err)
	}
	return rtypes.NewInt(i), nil
}

package chainpack

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"shv.dev/broker/internal/rtypes"
)

// ErrInvalidTag is returned when a control byte does not correspond to any
// known ChainPack tag at the position where it was read.
var ErrInvalidTag = errors.New("chainpack: invalid control byte")

// Decoder reads Values from an io.Reader containing ChainPack bytes.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads exactly one Value.
func (d *Decoder) Decode() (rtypes.Value, error) {
	return d.decodeValue()
}

func (d *Decoder) decodeValue() (rtypes.Value, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return rtypes.Value{}, err
	}

	if b < 0x40 {
		return rtypes.NewInt(int64(b)), nil
	}

	var meta *rtypes.Meta
	if b == tagMeta {
		meta, err = d.decodeMetaEntries()
		if err != nil {
			return rtypes.Value{}, err
		}
		b, err = d.r.ReadByte()
		if err != nil {
			return rtypes.Value{}, err
		}
	}

	var v rtypes.Value
	if b < 0x40 {
		v = rtypes.NewInt(int64(b))
	} else {
		v, err = d.decodeTagged(b)
		if err != nil {
			return rtypes.Value{}, err
		}
	}
	if meta != nil {
		v = v.WithMeta(meta)
	}
	return v, nil
}

func (d *Decoder) decodeTagged(b byte) (rtypes.Value, error) {
	switch b {
	case tagFalse, tagFalseLegacy:
		return rtypes.NewBool(false), nil
	case tagTrue:
		return rtypes.NewBool(true), nil
	case tagNull:
		return rtypes.Null(), nil
	case tagInt:
		i, err := readSignedVarInt(d.r)
		if err != nil {
			return rtypes.Value{}, err
		}
		return rtypes.NewInt(i), nil
	case tagUInt:
		u, _, err := readUVarInt(d.r)
		if err != nil {
			return rtypes.Value{}, err
		}
		return rtypes.NewUInt(u), nil
	case tagDouble:
		return d.decodeDouble()
	case tagDecimal:
		return d.decodeDecimal()
	case tagBlob:
		return d.decodeBlob()
	case tagString:
		s, err := d.decodeRawString()
		if err != nil {
			return rtypes.Value{}, err
		}
		return rtypes.NewString(s), nil
	case tagCString:
		s, err := d.decodeCString()
		if err != nil {
			return rtypes.Value{}, err
		}
		return rtypes.NewString(s), nil
	case tagDateTime:
		return d.decodeDateTime()
	case tagListBegin:
		return d.decodeList()
	case tagMapBegin:
		return d.decodeMap()
	case tagIMapBegin:
		return d.decodeIMap()
	default:
		return rtypes.Value{}, fmt.Errorf("%w: 0x%02x", ErrInvalidTag, b)
	}
}

func (d *Decoder) decodeDouble() (rtypes.Value, error) {
	var bits uint64
	for i := 0; i < 8; i++ {
		b, err := d.r.ReadByte()
		if err != nil {
			return rtypes.Value{}, err
		}
		bits |= uint64(b) << uint(8*i)
	}
	return rtypes.NewDouble(math.Float64frombits(bits)), nil
}

func (d *Decoder) decodeDecimal() (rtypes.Value, error) {
	mantissa, err := readSignedVarInt(d.r)
	if err != nil {
		return rtypes.Value{}, err
	}
	exp, err := readSignedVarInt(d.r)
	if err != nil {
		return rtypes.Value{}, err
	}
	return rtypes.NewDecimal(rtypes.Decimal{Mantissa: mantissa, Exponent: int8(exp)}), nil
}

func (d *Decoder) decodeBlob() (rtypes.Value, error) {
	n, _, err := readUVarInt(d.r)
	if err != nil {
		return rtypes.Value{}, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return rtypes.Value{}, err
	}
	return rtypes.NewBytes(buf), nil
}

func (d *Decoder) decodeRawString() (string, error) {
	n, _, err := readUVarInt(d.r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *Decoder) decodeCString() (string, error) {
	var buf []byte
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

func (d *Decoder) decodeDateTime() (rtypes.Value, error) {
	msec, err := readSignedVarInt(d.r)
	if err != nil {
		return rtypes.Value{}, err
	}
	off, err := readSignedVarInt(d.r)
	if err != nil {
		return rtypes.Value{}, err
	}
	return rtypes.NewDateTime(rtypes.NewDateTimeFromEpochMillis(msec, int16(off))), nil
}

func (d *Decoder) decodeList() (rtypes.Value, error) {
	var items []rtypes.Value
	for {
		peek, err := d.r.Peek(1)
		if err != nil {
			return rtypes.Value{}, err
		}
		if peek[0] == tagTerminator {
			d.r.ReadByte()
			return rtypes.NewList(items), nil
		}
		v, err := d.decodeValue()
		if err != nil {
			return rtypes.Value{}, err
		}
		items = append(items, v)
	}
}

func (d *Decoder) decodeMap() (rtypes.Value, error) {
	m := make(map[string]rtypes.Value)
	for {
		peek, err := d.r.Peek(1)
		if err != nil {
			return rtypes.Value{}, err
		}
		if peek[0] == tagTerminator {
			d.r.ReadByte()
			return rtypes.NewMap(m), nil
		}
		k, err := d.decodeRawString()
		if err != nil {
			return rtypes.Value{}, err
		}
		v, err := d.decodeValue()
		if err != nil {
			return rtypes.Value{}, err
		}
		m[k] = v
	}
}

func (d *Decoder) decodeIMap() (rtypes.Value, error) {
	m := make(map[int]rtypes.Value)
	for {
		peek, err := d.r.Peek(1)
		if err != nil {
			return rtypes.Value{}, err
		}
		if peek[0] == tagTerminator {
			d.r.ReadByte()
			return rtypes.NewIMap(m), nil
		}
		k, _, err := readUVarInt(d.r)
		if err != nil {
			return rtypes.Value{}, err
		}
		v, err := d.decodeValue()
		if err != nil {
			return rtypes.Value{}, err
		}
		m[int(k)] = v
	}
}

// decodeMetaEntries reads the merged int-keyed/string-keyed meta sequence
// written by Encoder.encodeMetaEntries, up to its terminator. Each entry is
// unambiguously introduced by either tagString (string-keyed, Map attribute)
// or tagUInt (int-keyed, IMap attribute) -- see encodeMetaEntries.
func (d *Decoder) decodeMetaEntries() (*rtypes.Meta, error) {
	m := rtypes.NewMeta()
	for {
		peek, err := d.r.Peek(1)
		if err != nil {
			return nil, err
		}
		switch peek[0] {
		case tagTerminator:
			d.r.ReadByte()
			return m, nil
		case tagString:
			d.r.ReadByte()
			k, err := d.decodeRawString()
			if err != nil {
				return nil, err
			}
			v, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			m.Map[k] = v
		case tagUInt:
			d.r.ReadByte()
			k, _, err := readUVarInt(d.r)
			if err != nil {
				return nil, err
			}
			v, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			m.IMap[int(k)] = v
		default:
			return nil, fmt.Errorf("%w: 0x%02x in meta entry", ErrInvalidTag, peek[0])
		}
	}
}

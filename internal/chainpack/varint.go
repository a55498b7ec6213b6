package chainpack

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"
)

// capacity of each self-describing byte-length class, indexed by the count
// of leading one-bits in the header byte: class c occupies c+1
// bytes and carries 7+7c payload bits, except class 7 (header 0b11111110)
// which carries 0 bits in its header byte plus 7 more data bytes (56 bits).
// The sentinel 0xFF (8 leading ones, no trailing zero) signals an extended
// 9-byte form carrying a full 64-bit value with no header bits consumed.
func classCapacity(c int) int { return 7 + 7*c }

// classFor returns the smallest class whose capacity can hold n significant
// bits, or -1 if n exceeds even the natural classes (the caller should use
// the extended sentinel form in that case).
func classFor(n int) int {
	for c := 0; c <= 7; c++ {
		if classCapacity(c) >= n {
			return c
		}
	}
	return -1
}

// writeUVarInt writes value using the minimal natural class that holds it,
// or the extended sentinel form if value needs more than 56 bits.
func writeUVarInt(w io.ByteWriter, value uint64) error {
	n := bits.Len64(value)
	c := classFor(n)
	if c < 0 {
		if err := w.WriteByte(0xFF); err != nil {
			return err
		}
		return writeBigEndian(w, value, 8)
	}
	return writeClassed(w, c, value)
}

// writeSignedVarInt writes value with a sign bit reserved at the top of
// the payload field: signed integers use the same class scheme as
// unsigned ones, with a sign bit at the most significant payload position.
func writeSignedVarInt(w io.ByteWriter, value int64) error {
	neg := value < 0
	var mag uint64
	if neg {
		mag = uint64(-(value + 1)) + 1 // avoids overflow for math.MinInt64
	} else {
		mag = uint64(value)
	}
	n := bits.Len64(mag) + 1
	c := classFor(n)
	if c < 0 {
		// No natural class has room for a dedicated sign bit at this
		// magnitude: fall back to a direct two's-complement 64-bit write,
		// which is bijective over the full int64 range.
		if err := w.WriteByte(0xFF); err != nil {
			return err
		}
		return writeBigEndian(w, uint64(value), 8)
	}
	full := mag
	if neg {
		full |= 1 << uint(classCapacity(c)-1)
	}
	return writeClassed(w, c, full)
}

func writeClassed(w io.ByteWriter, c int, value uint64) error {
	byteCount := c + 1
	firstDataBits := 7 - c
	if firstDataBits < 0 {
		firstDataBits = 0
	}
	// header: c one-bits then (if c<7) a zero bit, occupying the top c+1
	// bits of the first byte (c==7 has no room for a trailing zero, its
	// header is the full byte 0b11111110).
	var header byte
	for i := 0; i < c; i++ {
		header |= 1 << uint(7-i)
	}
	remaining := byteCount - 1 // trailing full bytes after the first
	firstByte := header
	if firstDataBits > 0 {
		topData := (value >> uint(8*remaining)) & ((1 << uint(firstDataBits)) - 1)
		firstByte |= byte(topData)
	}
	if err := w.WriteByte(firstByte); err != nil {
		return err
	}
	return writeBigEndian(w, value, remaining)
}

func writeBigEndian(w io.ByteWriter, value uint64, n int) error {
	for i := n - 1; i >= 0; i-- {
		if err := w.WriteByte(byte(value >> uint(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrameLength writes n using the same variable-length UInt encoding as
// UInt values, for use as a Block-framing length prefix.
func WriteFrameLength(w io.ByteWriter, n uint64) error { return writeUVarInt(w, n) }

// ReadFrameLength reads a length prefix written by WriteFrameLength.
func ReadFrameLength(r *bufio.Reader) (uint64, error) {
	n, _, err := readUVarInt(r)
	return n, err
}

// readUVarInt reads a value written by writeUVarInt and returns it along
// with the class used (7 means the 56-bit natural class; -1 means the
// extended 64-bit sentinel form was used).
func readUVarInt(r *bufio.Reader) (value uint64, class int, err error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	if b0 == 0xFF {
		v, err := readBigEndian(r, 8)
		return v, -1, err
	}
	c := 0
	for c < 8 && b0&(0x80>>uint(c)) != 0 {
		c++
	}
	firstDataBits := 7 - c
	var mask byte
	if firstDataBits > 0 {
		mask = 0xFF >> uint(8-firstDataBits)
	}
	value = uint64(b0 & mask)
	rest, err := readBigEndian(r, c)
	if err != nil {
		return 0, 0, err
	}
	value = value<<uint(8*c) | rest
	return value, c, nil
}

// readSignedVarInt reads a value written by writeSignedVarInt.
func readSignedVarInt(r *bufio.Reader) (int64, error) {
	value, class, err := readUVarInt(r)
	if err != nil {
		return 0, err
	}
	if class < 0 {
		// Extended form: value is the direct two's-complement bit pattern.
		return int64(value), nil
	}
	capBits := classCapacity(class)
	signBit := uint64(1) << uint(capBits-1)
	neg := value&signBit != 0
	mag := value &^ signBit
	if neg {
		return -int64(mag), nil
	}
	return int64(mag), nil
}

func readBigEndian(r *bufio.Reader, n int) (uint64, error) {
	var v uint64
	for i := 0; i < n; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("chainpack: truncated varint: %w", err)
		}
		v = v<<8 | uint64(b)
	}
	return v, nil
}

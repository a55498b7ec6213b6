package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shv.dev/broker/internal/chainpack"
)

func TestBlockFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewBlockWriter(&buf)
	msgs := [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0xAB}, 300)}
	for _, m := range msgs {
		require.NoError(t, w.WriteFrame(m))
	}
	r := NewBlockReader(&buf)
	for _, want := range msgs {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSerialFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewSerialWriter(&buf)
	msgs := [][]byte{
		[]byte("plain"),
		{stx, etx, atx, esc, 0x00, 0xff},
	}
	for _, m := range msgs {
		require.NoError(t, w.WriteFrame(m))
	}
	r := NewSerialReader(&buf)
	for _, want := range msgs {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSerialResetSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewSerialWriter(&buf)
	require.NoError(t, w.WriteReset())
	r := NewSerialReader(&buf)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrReset)
}

func TestSerialCRCRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewSerialCRCWriter(&buf)
	msgs := [][]byte{[]byte("hello world"), {0x01, 0x02, stx, etx}}
	for _, m := range msgs {
		require.NoError(t, w.WriteFrame(m))
	}
	r := NewSerialCRCReader(&buf)
	for _, want := range msgs {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

// TestSerialCRCReaderResyncsAfterCorruptFrame verifies that a corrupted
// frame (last byte before its ETX flipped, invalidating the CRC) is
// silently dropped, and the next valid frame is still read without
// desynchronization.
func TestSerialCRCReaderResyncsAfterCorruptFrame(t *testing.T) {
	var firstBuf, secondBuf bytes.Buffer
	require.NoError(t, NewSerialCRCWriter(&firstBuf).WriteFrame([]byte("corrupt-me")))
	require.NoError(t, NewSerialCRCWriter(&secondBuf).WriteFrame([]byte("second-frame")))

	first := firstBuf.Bytes()
	require.Equal(t, byte(etx), first[len(first)-1])
	first[len(first)-2] ^= 0xFF // corrupt the escaped CRC trailer

	raw := append(first, secondBuf.Bytes()...)
	r := NewSerialCRCReader(bytes.NewReader(raw))
	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("second-frame"), got)
}

func TestBlockFrameOversizeRejected(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, chainpack.WriteFrameLength(&buf, MaxFrameSize+1))
	r := NewBlockReader(&buf)
	_, err := r.ReadFrame()
	var tooLarge *ErrFrameTooLarge
	assert.ErrorAs(t, err, &tooLarge)
}

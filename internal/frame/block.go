package frame

import (
	"bufio"
	"fmt"
	"io"

	"shv.dev/broker/internal/chainpack"
)

// BlockReader reads length-prefixed frames: a ChainPack-style UInt varint
// giving the payload length, followed by that many bytes.
type BlockReader struct {
	r *bufio.Reader
}

// NewBlockReader wraps r for block-framed reading.
func NewBlockReader(r io.Reader) *BlockReader {
	return &BlockReader{r: bufio.NewReader(r)}
}

func (b *BlockReader) ReadFrame() ([]byte, error) {
	for {
		n, err := chainpack.ReadFrameLength(b.r)
		if err != nil {
			return nil, err
		}
		if n > MaxFrameSize {
			// Resynchronization is not meaningful for Block framing (there
			// is no byte-stuffed boundary to hunt for): a bad length means
			// the stream itself is unrecoverable.
			return nil, &ErrFrameTooLarge{Size: n}
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(b.r, buf); err != nil {
			return nil, fmt.Errorf("frame: short block payload: %w", err)
		}
		return buf, nil
	}
}

// BlockWriter writes length-prefixed frames.
type BlockWriter struct {
	w *bufio.Writer
}

// NewBlockWriter wraps w for block-framed writing.
func NewBlockWriter(w io.Writer) *BlockWriter {
	return &BlockWriter{w: bufio.NewWriter(w)}
}

func (b *BlockWriter) WriteFrame(payload []byte) error {
	if err := chainpack.WriteFrameLength(b.w, uint64(len(payload))); err != nil {
		return err
	}
	if _, err := b.w.Write(payload); err != nil {
		return err
	}
	return b.w.Flush()
}

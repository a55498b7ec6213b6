package transport

import (
	"io"

	"shv.dev/broker/internal/frame"
)

// Conn is a framed, bidirectional connection: a transport stream plus the
// framing strategy selected by the endpoint's scheme (Block, except serial
// schemes which use Serial+CRC).
type Conn struct {
	Endpoint *Endpoint
	stream   io.ReadWriteCloser
	reader   frame.Reader
	writer   frame.Writer
}

func newConn(ep *Endpoint, stream io.ReadWriteCloser) *Conn {
	c := &Conn{Endpoint: ep, stream: stream}
	if ep.UsesSerialFraming() {
		c.reader = frame.NewSerialCRCReader(stream)
		c.writer = frame.NewSerialCRCWriter(stream)
	} else {
		c.reader = frame.NewBlockReader(stream)
		c.writer = frame.NewBlockWriter(stream)
	}
	return c
}

// ReadFrame reads one message payload.
func (c *Conn) ReadFrame() ([]byte, error) { return c.reader.ReadFrame() }

// WriteFrame writes one message payload.
func (c *Conn) WriteFrame(payload []byte) error { return c.writer.WriteFrame(payload) }

// Close closes the underlying stream.
func (c *Conn) Close() error { return c.stream.Close() }

package broker

import (
	"bytes"

	"shv.dev/broker/internal/chainpack"
	"shv.dev/broker/internal/rpcmsg"
	"shv.dev/broker/internal/transport"
)

// decodeMessage decodes one ChainPack-encoded frame payload into a
// validated RPC message.
func decodeMessage(raw []byte) (rpcmsg.Message, error) {
	v, err := chainpack.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		return rpcmsg.Message{}, err
	}
	msg := rpcmsg.FromValue(v)
	if err := msg.Validate(); err != nil {
		return rpcmsg.Message{}, err
	}
	return msg, nil
}

func encodeMessage(msg rpcmsg.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := chainpack.NewEncoder(&buf).Encode(msg.Value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeMessage(conn *transport.Conn, msg rpcmsg.Message) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return conn.WriteFrame(raw)
}

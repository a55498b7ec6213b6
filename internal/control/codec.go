package control

import (
	"bytes"
	"fmt"

	"shv.dev/broker/internal/chainpack"
	"shv.dev/broker/internal/rpcmsg"
)

func encode(m rpcmsg.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := chainpack.NewEncoder(&buf).Encode(m.Value); err != nil {
		return nil, fmt.Errorf("control: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) (rpcmsg.Message, error) {
	v, err := chainpack.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		return rpcmsg.Message{}, fmt.Errorf("control: decode: %w", err)
	}
	m := rpcmsg.FromValue(v)
	if err := m.Validate(); err != nil {
		return rpcmsg.Message{}, err
	}
	return m, nil
}

// Package control implements the broker's process-level admin plane: a
// Unix domain socket exchanging ChainPack-framed RPC requests for status,
// config reload, and graceful shutdown. It is not part of the SHV wire
// protocol -- it is a second, local-only listener reusing the same codec
// and framing rather than a separate RPC stack.
package control

import (
	"context"
	"fmt"

	"shv.dev/broker/internal/rpcmsg"
	"shv.dev/broker/internal/rtypes"
	"shv.dev/broker/internal/transport"
)

// Method names recognized on the control path.
const (
	MethodStatus   = "status"
	MethodReload   = "reload"
	MethodShutdown = "shutdown"
)

// Status is the broker snapshot returned by MethodStatus.
type Status struct {
	Version       string
	UptimeSeconds int64
	PeerCount     int
	ListenAddrs   []string
}

// ToValue encodes s as an rtypes.Value map, the control channel's result
// body.
func (s Status) ToValue() rtypes.Value {
	addrs := make([]rtypes.Value, len(s.ListenAddrs))
	for i, a := range s.ListenAddrs {
		addrs[i] = rtypes.NewString(a)
	}
	return rtypes.NewMap(map[string]rtypes.Value{
		"version":     rtypes.NewString(s.Version),
		"uptime":      rtypes.NewInt(s.UptimeSeconds),
		"peerCount":   rtypes.NewInt(int64(s.PeerCount)),
		"listenAddrs": rtypes.NewList(addrs),
	})
}

// StatusFromValue decodes a ToValue result back into a Status.
func StatusFromValue(v rtypes.Value) (Status, error) {
	if v.Kind() != rtypes.KindMap {
		return Status{}, fmt.Errorf("control: status result is not a map")
	}
	m := v.Map()
	var s Status
	if vv, ok := m["version"]; ok {
		s.Version = vv.String()
	}
	if vv, ok := m["uptime"]; ok && vv.Kind() == rtypes.KindInt {
		s.UptimeSeconds = vv.Int()
	}
	if vv, ok := m["peerCount"]; ok && vv.Kind() == rtypes.KindInt {
		s.PeerCount = int(vv.Int())
	}
	if vv, ok := m["listenAddrs"]; ok && vv.Kind() == rtypes.KindList {
		for _, e := range vv.List() {
			s.ListenAddrs = append(s.ListenAddrs, e.String())
		}
	}
	return s, nil
}

// call performs one request/response exchange over a freshly dialed
// control socket: write the request frame, read the matching response.
func call(ctx context.Context, socket, method string, params rtypes.Value) (rpcmsg.Message, error) {
	conn, err := transport.Dial(ctx, "unix://"+socket)
	if err != nil {
		return rpcmsg.Message{}, fmt.Errorf("control: dial %s: %w", socket, err)
	}
	defer conn.Close()

	req := rpcmsg.NewRequest("", method, 1, params)
	payload, err := encode(req)
	if err != nil {
		return rpcmsg.Message{}, err
	}
	if err := conn.WriteFrame(payload); err != nil {
		return rpcmsg.Message{}, fmt.Errorf("control: write request: %w", err)
	}

	raw, err := conn.ReadFrame()
	if err != nil {
		return rpcmsg.Message{}, fmt.Errorf("control: read response: %w", err)
	}
	return decode(raw)
}

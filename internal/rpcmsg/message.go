// Package rpcmsg interprets rtypes.Value as the typed RPC message layer of
// the wire protocol: requests, responses, and signals, each identified by
// the Meta attributes they carry.
package rpcmsg

import (
	"errors"
	"fmt"

	"shv.dev/broker/internal/rtypes"
)

// Meta attribute keys carried by RPC messages.
const (
	MetaKeyType       = 1
	MetaKeyRequestID  = 8
	MetaKeyPath       = 9
	MetaKeyMethod     = 10
	MetaKeySignal     = 11
	MetaKeyCallerIDs  = 14
	MetaKeyAccessGrant = 17
	MetaKeyUserID     = 18
	MetaKeyAccessLegacy = 19
)

// ChainPackTypeTag is the versioned major-type-tag constant for messages
// carried over the ChainPack wire encoding.
const ChainPackTypeTag = 1

// DefaultSignalName is substituted when a signal carries no explicit name.
const DefaultSignalName = "chng"

// Kind classifies a decoded Message.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindSignal
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// ErrInvalidMessage is wrapped by Validate failures; these are
// dropped-with-log events, never raised as protocol errors to a peer.
var ErrInvalidMessage = errors.New("rpcmsg: invalid message")

// Message wraps an rtypes.Value known to carry RPC Meta attributes.
type Message struct {
	Value rtypes.Value
}

// FromValue wraps v without validating it; call Validate before acting on
// the result of decoding untrusted input.
func FromValue(v rtypes.Value) Message { return Message{Value: v} }

// RequestID returns the request-id attribute and whether it was present.
func (m Message) RequestID() (int64, bool) {
	v, ok := m.Value.MetaInt(MetaKeyRequestID)
	if !ok {
		return 0, false
	}
	return asInt(v), true
}

// Path returns the SHV path attribute, defaulting to "".
func (m Message) Path() string {
	v, ok := m.Value.MetaInt(MetaKeyPath)
	if !ok {
		return ""
	}
	return v.String()
}

// Method returns the method-name attribute and whether it was present.
func (m Message) Method() (string, bool) {
	v, ok := m.Value.MetaInt(MetaKeyMethod)
	if !ok {
		return "", false
	}
	return v.String(), true
}

// SignalName returns the signal-name attribute, defaulting to "chng".
func (m Message) SignalName() string {
	v, ok := m.Value.MetaInt(MetaKeySignal)
	if !ok {
		return DefaultSignalName
	}
	return v.String()
}

// CallerIDs returns the stacked caller-id list, outermost caller last.
func (m Message) CallerIDs() []int64 {
	v, ok := m.Value.MetaInt(MetaKeyCallerIDs)
	if !ok {
		return nil
	}
	if v.Kind() != rtypes.KindList {
		return nil
	}
	ids := make([]int64, 0, len(v.List()))
	for _, e := range v.List() {
		ids = append(ids, asInt(e))
	}
	return ids
}

// WithCallerIDs returns a copy of m with its caller-id stack replaced.
func (m Message) WithCallerIDs(ids []int64) Message {
	meta := m.Value.Meta().Clone()
	if meta == nil {
		meta = rtypes.NewMeta()
	}
	items := make([]rtypes.Value, len(ids))
	for i, id := range ids {
		items[i] = rtypes.NewInt(id)
	}
	meta.IMap[MetaKeyCallerIDs] = rtypes.NewList(items)
	return Message{Value: m.Value.WithMeta(meta)}
}

// AccessGrant returns the granted-access-level attribute, if present.
func (m Message) AccessGrant() (int, bool) {
	v, ok := m.Value.MetaInt(MetaKeyAccessGrant)
	if !ok {
		v, ok = m.Value.MetaInt(MetaKeyAccessLegacy)
		if !ok {
			return 0, false
		}
	}
	return int(asInt(v)), true
}

// WithAccessGrant returns a copy of m with its granted-access attribute set.
func (m Message) WithAccessGrant(level int) Message {
	meta := m.Value.Meta().Clone()
	if meta == nil {
		meta = rtypes.NewMeta()
	}
	meta.IMap[MetaKeyAccessGrant] = rtypes.NewInt(int64(level))
	return Message{Value: m.Value.WithMeta(meta)}
}

// UserID returns the opaque user-id attribute, if present.
func (m Message) UserID() (string, bool) {
	v, ok := m.Value.MetaInt(MetaKeyUserID)
	if !ok {
		return "", false
	}
	return v.String(), true
}

// Kind classifies the message: request ⇒ (request_id, method) present;
// response ⇒ request_id present, method absent; signal ⇒ method present,
// request_id absent.
func (m Message) Kind() (Kind, error) {
	_, hasID := m.RequestID()
	_, hasMethod := m.Method()
	switch {
	case hasID && hasMethod:
		return KindRequest, nil
	case hasID && !hasMethod:
		return KindResponse, nil
	case !hasID && hasMethod:
		return KindSignal, nil
	default:
		return 0, fmt.Errorf("%w: neither request_id nor method present", ErrInvalidMessage)
	}
}

// IsError reports whether a response carries an error body (a Map with
// keys "code" and "message").
func (m Message) IsError() bool {
	if m.Value.Kind() != rtypes.KindMap {
		return false
	}
	mp := m.Value.Map()
	_, hasCode := mp[errKeyCode]
	_, hasMsg := mp[errKeyMessage]
	return hasCode && hasMsg
}

// ErrorCode and ErrorMessage extract the error body fields; callers must
// first check IsError.
func (m Message) ErrorCode() int {
	return int(asInt(m.Value.Map()[errKeyCode]))
}

func (m Message) ErrorMessage() string {
	return m.Value.Map()[errKeyMessage].String()
}

// Validate enforces the message-kind invariants, returning ErrInvalidMessage
// (never panicking) on violation so callers can drop-with-log instead of
// propagating a malformed message further.
func (m Message) Validate() error {
	kind, err := m.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case KindRequest:
		if _, ok := m.Method(); !ok {
			return fmt.Errorf("%w: request missing method", ErrInvalidMessage)
		}
	case KindResponse:
		if _, hasMethod := m.Method(); hasMethod {
			return fmt.Errorf("%w: response carries method", ErrInvalidMessage)
		}
		if m.IsError() {
			return nil
		}
	case KindSignal:
		if _, ok := m.Method(); !ok {
			return fmt.Errorf("%w: signal missing method", ErrInvalidMessage)
		}
	}
	return nil
}

func asInt(v rtypes.Value) int64 {
	switch v.Kind() {
	case rtypes.KindInt:
		return v.Int()
	case rtypes.KindUInt:
		return int64(v.UInt())
	default:
		return 0
	}
}

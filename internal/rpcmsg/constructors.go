package rpcmsg

import "shv.dev/broker/internal/rtypes"

// Error code table for response error bodies.
const (
	ErrInvalidRequest      = 1
	ErrMethodNotFound      = 2
	ErrInvalidParam        = 3
	ErrMethodCallException = 5
	ErrLoginRequired       = 6
	ErrUserIDRequired      = 7
	ErrNotImplemented      = 8
	ErrTryAgainLater       = 9
	ErrRequestInvalid      = 10
)

const (
	errKeyCode    = "code"
	errKeyMessage = "message"
)

func baseMeta() *rtypes.Meta {
	meta := rtypes.NewMeta()
	meta.IMap[MetaKeyType] = rtypes.NewInt(ChainPackTypeTag)
	return meta
}

// NewRequest builds a request message for method on path, with the given
// request id and parameter body.
func NewRequest(path, method string, requestID int64, params rtypes.Value) Message {
	meta := baseMeta()
	meta.IMap[MetaKeyPath] = rtypes.NewString(path)
	meta.IMap[MetaKeyMethod] = rtypes.NewString(method)
	meta.IMap[MetaKeyRequestID] = rtypes.NewInt(requestID)
	return Message{Value: params.WithMeta(meta)}
}

// NewResponse builds a successful response carrying result as its body.
func NewResponse(requestID int64, result rtypes.Value) Message {
	meta := baseMeta()
	meta.IMap[MetaKeyRequestID] = rtypes.NewInt(requestID)
	return Message{Value: result.WithMeta(meta)}
}

// NewErrorResponse builds a response whose body is the error map. Its two
// fields are named "code" and "message" rather than assigned numeric keys,
// so the body is a String-keyed Map rather than an IMap.
func NewErrorResponse(requestID int64, code int, message string) Message {
	meta := baseMeta()
	meta.IMap[MetaKeyRequestID] = rtypes.NewInt(requestID)
	errBody := map[string]rtypes.Value{
		errKeyCode:    rtypes.NewInt(int64(code)),
		errKeyMessage: rtypes.NewString(message),
	}
	return Message{Value: rtypes.NewMap(errBody).WithMeta(meta)}
}

// NewSignal builds a signal message for method's signal on path.
func NewSignal(path, method, signal string, params rtypes.Value) Message {
	meta := baseMeta()
	meta.IMap[MetaKeyPath] = rtypes.NewString(path)
	meta.IMap[MetaKeyMethod] = rtypes.NewString(method)
	if signal != "" && signal != DefaultSignalName {
		meta.IMap[MetaKeySignal] = rtypes.NewString(signal)
	}
	return Message{Value: params.WithMeta(meta)}
}

package control

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/tevino/abool"

	"shv.dev/broker/internal/rpcmsg"
	"shv.dev/broker/internal/rtypes"
	"shv.dev/broker/internal/transport"
)

// Handlers wires the control server to the running broker without an
// import cycle: cmd/serve.go supplies the broker's own Status/Reload/
// Shutdown methods as closures.
type Handlers struct {
	Status   func() Status
	Reload   func() error
	Shutdown func()
}

// Server is the UDS admin listener. Ready() reports, lock-free, whether
// Serve has finished binding.
type Server struct {
	socket   string
	handlers Handlers
	ready    *abool.AtomicBool
	ln       transport.Listener
}

// NewServer returns a control server that will listen on socket once Serve
// runs.
func NewServer(socket string, h Handlers) *Server {
	return &Server{socket: socket, handlers: h, ready: abool.New()}
}

// Ready reports whether the server has finished binding its socket.
func (s *Server) Ready() bool { return s.ready.IsSet() }

// Serve binds the control socket and accepts connections until ctx is
// canceled or Stop is called. One connection serves exactly one
// request/response exchange, matching the one-shot call() client in
// control.go.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := transport.Listen("unix://" + s.socket)
	if err != nil {
		return err
	}
	s.ln = ln
	s.ready.Set()
	defer s.ready.UnSet()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("control: accept failed", "error", err)
			continue
		}
		go s.serveOne(conn)
	}
}

func (s *Server) serveOne(conn *transport.Conn) {
	defer conn.Close()

	raw, err := conn.ReadFrame()
	if err != nil {
		slog.Warn("control: read request failed", "error", err)
		return
	}
	req, err := decode(raw)
	if err != nil {
		slog.Warn("control: invalid request, dropped", "error", err)
		return
	}
	requestID, _ := req.RequestID()
	method, _ := req.Method()

	resp := s.dispatch(requestID, method)
	payload, err := encode(resp)
	if err != nil {
		slog.Warn("control: encode response failed", "error", err)
		return
	}
	if err := conn.WriteFrame(payload); err != nil {
		slog.Warn("control: write response failed", "error", err)
	}
}

func (s *Server) dispatch(requestID int64, method string) rpcmsg.Message {
	switch method {
	case MethodStatus:
		if s.handlers.Status == nil {
			return rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrNotImplemented, "status not available")
		}
		return rpcmsg.NewResponse(requestID, s.handlers.Status().ToValue())
	case MethodReload:
		if s.handlers.Reload == nil {
			return rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrNotImplemented, "reload not available")
		}
		if err := s.handlers.Reload(); err != nil {
			return rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrMethodCallException, err.Error())
		}
		return rpcmsg.NewResponse(requestID, rtypes.NewBool(true))
	case MethodShutdown:
		if s.handlers.Shutdown == nil {
			return rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrNotImplemented, "shutdown not available")
		}
		go s.handlers.Shutdown()
		return rpcmsg.NewResponse(requestID, rtypes.NewBool(true))
	default:
		return rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrMethodNotFound, "unknown control method "+method)
	}
}

// Stop closes the listener, if bound.
func (s *Server) Stop() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

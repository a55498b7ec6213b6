package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"

	"golang.org/x/net/websocket"
)

// Listener accepts framed connections on one listen URL.
type Listener interface {
	Accept() (*Conn, error)
	Close() error
	Addr() string
}

// Listen binds raw and returns a Listener that yields framed connections
// as peers accept onto it.
func Listen(raw string) (Listener, error) {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return nil, err
	}
	switch ep.Scheme {
	case SchemeTCP:
		ln, err := net.Listen("tcp", ep.Addr())
		if err != nil {
			return nil, fmt.Errorf("transport: listen %q: %w", raw, err)
		}
		return &netListener{ep: ep, ln: ln}, nil
	case SchemeTCPS:
		cert, ok := ep.Option("cert")
		key, _ := ep.Option("key")
		if !ok {
			return nil, fmt.Errorf("transport: tcps listen %q requires a cert option", raw)
		}
		pair, err := tls.LoadX509KeyPair(cert, key)
		if err != nil {
			return nil, fmt.Errorf("transport: load cert for %q: %w", raw, err)
		}
		ln, err := tls.Listen("tcp", ep.Addr(), &tls.Config{Certificates: []tls.Certificate{pair}})
		if err != nil {
			return nil, fmt.Errorf("transport: listen %q: %w", raw, err)
		}
		return &netListener{ep: ep, ln: ln}, nil
	case SchemeUnix, SchemeLocalSock:
		_ = os.Remove(ep.Path)
		ln, err := net.Listen("unix", ep.Path)
		if err != nil {
			return nil, fmt.Errorf("transport: listen %q: %w", raw, err)
		}
		return &netListener{ep: ep, ln: ln}, nil
	case SchemeWS, SchemeWSS:
		return newWSListener(ep, raw)
	case SchemeSerial, SchemeSerialPort, SchemeTTY, SchemePipe:
		return nil, fmt.Errorf("transport: %q cannot be listened on, only dialed (point-to-point device)", ep.Scheme)
	default:
		return nil, fmt.Errorf("transport: unsupported listen scheme %q", ep.Scheme)
	}
}

// netListener adapts a net.Listener (tcp, tcps, unix) to Listener.
type netListener struct {
	ep *Endpoint
	ln net.Listener
}

func (l *netListener) Accept() (*Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newConn(l.ep, c), nil
}

func (l *netListener) Close() error { return l.ln.Close() }
func (l *netListener) Addr() string { return l.ln.Addr().String() }

// wsListener runs an http.Server exposing one websocket.Handler and
// funnels accepted sockets through a channel, so Accept() can present the
// same blocking interface as a net.Listener.
type wsListener struct {
	ep       *Endpoint
	ln       net.Listener
	srv      *http.Server
	accepted chan *websocket.Conn
}

func newWSListener(ep *Endpoint, raw string) (Listener, error) {
	ln, err := net.Listen("tcp", ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", raw, err)
	}
	l := &wsListener{ep: ep, ln: ln, accepted: make(chan *websocket.Conn, 16)}

	mux := http.NewServeMux()
	mux.Handle(wsPath(ep), websocket.Handler(func(ws *websocket.Conn) {
		l.accepted <- ws
		// Block the handler goroutine alive until the socket is closed by
		// the broker side; websocket.Handler closes ws when this returns.
		<-ws.Request().Context().Done()
	}))
	l.srv = &http.Server{Handler: mux}

	if ep.Scheme == SchemeWSS {
		cert, ok := ep.Option("cert")
		key, _ := ep.Option("key")
		if !ok {
			return nil, fmt.Errorf("transport: wss listen %q requires a cert option", raw)
		}
		go l.srv.ServeTLS(ln, cert, key)
	} else {
		go l.srv.Serve(ln)
	}
	return l, nil
}

func (l *wsListener) Accept() (*Conn, error) {
	ws, ok := <-l.accepted
	if !ok {
		return nil, fmt.Errorf("transport: websocket listener closed")
	}
	return newConn(l.ep, ws), nil
}

func (l *wsListener) Close() error {
	close(l.accepted)
	return l.srv.Close()
}

func (l *wsListener) Addr() string { return l.ln.Addr().String() }

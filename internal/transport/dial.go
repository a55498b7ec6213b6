package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"

	"golang.org/x/net/websocket"
)

// Dial resolves raw and opens a framed connection to it.
func Dial(ctx context.Context, raw string) (*Conn, error) {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return nil, err
	}
	stream, err := dialStream(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %q: %w", raw, err)
	}
	return newConn(ep, stream), nil
}

func dialStream(ctx context.Context, ep *Endpoint) (netReadWriteCloser, error) {
	switch ep.Scheme {
	case SchemeTCP:
		var d net.Dialer
		return d.DialContext(ctx, "tcp", ep.Addr())
	case SchemeTCPS:
		tlsCfg, err := tlsConfig(ep)
		if err != nil {
			return nil, err
		}
		var d tls.Dialer
		d.Config = tlsCfg
		return d.DialContext(ctx, "tcp", ep.Addr())
	case SchemeUnix, SchemeLocalSock:
		var d net.Dialer
		return d.DialContext(ctx, "unix", ep.Path)
	case SchemeWS:
		return websocket.Dial(fmt.Sprintf("ws://%s%s", ep.Addr(), wsPath(ep)), "", fmt.Sprintf("http://%s", ep.Addr()))
	case SchemeWSS:
		cfg, err := websocket.NewConfig(fmt.Sprintf("wss://%s%s", ep.Addr(), wsPath(ep)), fmt.Sprintf("https://%s", ep.Addr()))
		if err != nil {
			return nil, err
		}
		tlsCfg, err := tlsConfig(ep)
		if err != nil {
			return nil, err
		}
		cfg.TlsConfig = tlsCfg
		return websocket.DialConfig(cfg)
	case SchemeSerial, SchemeSerialPort, SchemeTTY:
		// Baud rate and line discipline would be set via a termios ioctl on
		// the opened file descriptor; no such library is wired in, so the
		// device is opened as a plain character file at whatever rate it is
		// already configured.
		if _, err := ep.BaudRate(); err != nil {
			return nil, fmt.Errorf("invalid baudrate: %w", err)
		}
		return os.OpenFile(ep.Path, os.O_RDWR, 0)
	case SchemePipe:
		return openPipe(ep.Path)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", ep.Scheme)
	}
}

func wsPath(ep *Endpoint) string {
	if ep.Path == "" {
		return "/ws"
	}
	return ep.Path
}

func tlsConfig(ep *Endpoint) (*tls.Config, error) {
	cfg := &tls.Config{ServerName: ep.Host}
	ca, ok := ep.Option("ca")
	if !ok {
		return cfg, nil
	}
	pem, err := os.ReadFile(ca)
	if err != nil {
		return nil, fmt.Errorf("read ca %q: %w", ca, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("ca %q: no certificates found", ca)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// openPipe opens path as a named pipe, or as an already-open file
// descriptor if path is a bare integer.
func openPipe(path string) (netReadWriteCloser, error) {
	if fd, err := strconv.Atoi(path); err == nil {
		return os.NewFile(uintptr(fd), "pipe"), nil
	}
	return os.OpenFile(path, os.O_RDWR, 0)
}

// netReadWriteCloser is the minimal surface Conn needs from a dialed
// stream; net.Conn, *os.File, and *websocket.Conn all satisfy it.
type netReadWriteCloser interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}

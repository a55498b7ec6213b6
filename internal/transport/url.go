// Package transport resolves a connection URL to a concrete dial or
// listen operation: scheme selects the underlying stream (TCP, WebSocket,
// Unix domain socket, serial device, OS pipe) and the framing strategy
// layered on top of it (Block for everything except serial, which uses
// Serial+CRC).
package transport

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Scheme identifies the transport selected by a URL.
type Scheme string

const (
	SchemeTCP        Scheme = "tcp"
	SchemeTCPS       Scheme = "tcps"
	SchemeWS         Scheme = "ws"
	SchemeWSS        Scheme = "wss"
	SchemeUnix       Scheme = "unix"
	SchemeLocalSock  Scheme = "localsocket"
	SchemeSerial     Scheme = "serial"
	SchemeSerialPort Scheme = "serialport"
	SchemeTTY        Scheme = "tty"
	SchemePipe       Scheme = "pipe"
)

// DefaultPort is the broker's well-known port when a tcp/tcps/ws/wss URL
// carries no explicit port.
const DefaultPort = 3755

// Endpoint is a parsed connection URL: scheme, authority, path, and options.
type Endpoint struct {
	Scheme  Scheme
	User    string
	Host    string
	Port    int
	Path    string
	Options map[string]string
}

// ParseEndpoint parses raw as
// scheme://[user@]authority[/path][?options].
func ParseEndpoint(raw string) (*Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("transport: parse %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("transport: %q has no scheme", raw)
	}

	ep := &Endpoint{
		Scheme:  Scheme(strings.ToLower(u.Scheme)),
		Options: make(map[string]string),
	}
	if !isKnownScheme(ep.Scheme) {
		return nil, fmt.Errorf("transport: unknown scheme %q", u.Scheme)
	}
	if u.User != nil {
		ep.User = u.User.Username()
	}

	switch ep.Scheme {
	case SchemeTCP, SchemeTCPS, SchemeWS, SchemeWSS:
		ep.Host = u.Hostname()
		if p := u.Port(); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("transport: invalid port in %q: %w", raw, err)
			}
			ep.Port = port
		} else {
			ep.Port = DefaultPort
		}
		ep.Path = u.Path
	case SchemeUnix, SchemeLocalSock, SchemeSerial, SchemeSerialPort, SchemeTTY, SchemePipe:
		// These schemes carry a filesystem path, not host:port authority;
		// url.Parse puts it in either Opaque or Host+Path depending on
		// whether the raw string used "scheme:///path" or "scheme://path".
		switch {
		case u.Opaque != "":
			ep.Path = u.Opaque
		case u.Host != "" && u.Path != "":
			ep.Path = u.Host + u.Path
		case u.Path != "":
			ep.Path = u.Path
		default:
			ep.Path = u.Host
		}
	}

	for k, v := range u.Query() {
		if len(v) > 0 {
			ep.Options[k] = v[0]
		}
	}
	return ep, nil
}

func isKnownScheme(s Scheme) bool {
	switch s {
	case SchemeTCP, SchemeTCPS, SchemeWS, SchemeWSS, SchemeUnix, SchemeLocalSock,
		SchemeSerial, SchemeSerialPort, SchemeTTY, SchemePipe:
		return true
	default:
		return false
	}
}

// Addr returns the host:port authority for stream-socket schemes.
func (e *Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// UsesSerialFraming reports whether e's scheme frames messages with
// Serial+CRC instead of Block.
func (e *Endpoint) UsesSerialFraming() bool {
	switch e.Scheme {
	case SchemeSerial, SchemeSerialPort, SchemeTTY:
		return true
	default:
		return false
	}
}

// Option looks up a query option from the parsed URL.
func (e *Endpoint) Option(name string) (string, bool) {
	v, ok := e.Options[name]
	return v, ok
}

// BaudRate parses the serial-only "baudrate" option, defaulting to 9600.
func (e *Endpoint) BaudRate() (int, error) {
	v, ok := e.Option("baudrate")
	if !ok {
		return 9600, nil
	}
	return strconv.Atoi(v)
}

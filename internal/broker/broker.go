// Package broker implements the Silicon Heaven RPC broker: the
// single-threaded router plus the goroutines that feed it from accepted
// and outbound ("connect") peer connections.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"shv.dev/broker/internal/config"
	"shv.dev/broker/internal/transport"
)

// brokerVersion is reported on .app:version and over the control socket;
// it tracks the CLI's own Version string (cmd/root.go).
const brokerVersion = "0.1.0"

// ListenError wraps a failure to bind one of the configured listen URLs,
// distinguished from other Run failures so the CLI can exit with a
// dedicated code rather than a generic one.
type ListenError struct {
	URL string
	Err error
}

func (e *ListenError) Error() string { return fmt.Sprintf("listen %q: %v", e.URL, e.Err) }
func (e *ListenError) Unwrap() error { return e.Err }

// StatusInfo is the broker's runtime snapshot, surfaced over the control
// socket (internal/control) and by `shvbrokerd status`.
type StatusInfo struct {
	Version       string
	UptimeSeconds int64
	PeerCount     int
	ListenAddrs   []string
}

// Broker owns the router and every goroutine that feeds it: one accept
// loop per listen URL, one reconnect loop per connect entry, and a
// reader/writer pair per live peer.
type Broker struct {
	mu      sync.RWMutex
	cfg     *config.GlobalConfig
	router  *Router
	started time.Time

	peerSeq atomic.Int64
	conns   sync.Map // peerID int64 -> *transport.Conn, for shutdown teardown

	listeners   []transport.Listener
	listenAddrs []string
}

// New validates nothing beyond what config.Load already enforced and
// builds a Broker ready for Run.
func New(cfg *config.GlobalConfig) (*Broker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("broker: nil config")
	}
	return &Broker{
		cfg:     cfg,
		router:  NewRouter(cfg, brokerVersion),
		started: time.Now(),
	}, nil
}

// Status reports a point-in-time snapshot for the control plane.
func (b *Broker) Status() StatusInfo {
	b.mu.RLock()
	addrs := append([]string(nil), b.listenAddrs...)
	b.mu.RUnlock()
	return StatusInfo{
		Version:       brokerVersion,
		UptimeSeconds: int64(time.Since(b.started).Seconds()),
		PeerCount:     b.router.PeerCount(),
		ListenAddrs:   addrs,
	}
}

// Reload swaps the running configuration. Already-connected peers keep
// their resolved roles and access tables until they reconnect.
func (b *Broker) Reload(cfg *config.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("broker: nil config")
	}
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	b.router.SetConfig(cfg)
	return nil
}

// Run binds every configured listener, starts the router and every
// connect-peer loop, and blocks until ctx is cancelled. A listen bind
// failure is returned as *ListenError so the caller can distinguish it
// from a runtime error and map each to its own exit code.
func (b *Broker) Run(ctx context.Context) error {
	b.mu.Lock()
	cfg := b.cfg
	for _, raw := range cfg.Listen {
		ln, err := transport.Listen(raw)
		if err != nil {
			b.mu.Unlock()
			return &ListenError{URL: raw, Err: err}
		}
		b.listeners = append(b.listeners, ln)
		b.listenAddrs = append(b.listenAddrs, ln.Addr())
	}
	listeners := append([]transport.Listener(nil), b.listeners...)
	connectCfgs := append([]config.ConnectConfig(nil), cfg.Connect...)
	b.mu.Unlock()

	var wg conc.WaitGroup
	wg.Go(func() { b.router.Run(ctx.Done()) })
	for _, ln := range listeners {
		ln := ln
		wg.Go(func() { b.acceptLoop(ctx, ln, &wg) })
	}
	for _, cc := range connectCfgs {
		cc := cc
		wg.Go(func() { b.runConnectPeer(ctx, cc) })
	}

	<-ctx.Done()

	var closeErr error
	b.mu.Lock()
	for _, ln := range b.listeners {
		closeErr = multierr.Append(closeErr, ln.Close())
	}
	b.mu.Unlock()
	b.closeAllConns()

	wg.Wait()
	return closeErr
}

func (b *Broker) allocatePeerID() int64 { return b.peerSeq.Inc() }

func (b *Broker) registerConn(id int64, c *transport.Conn) { b.conns.Store(id, c) }
func (b *Broker) unregisterConn(id int64)                  { b.conns.Delete(id) }

// closeAllConns force-closes every live connection so blocking reader
// goroutines unwind during shutdown even though their net.Conn.Read is
// not context-aware.
func (b *Broker) closeAllConns() {
	b.conns.Range(func(key, value any) bool {
		value.(*transport.Conn).Close()
		return true
	})
}

func (b *Broker) acceptLoop(ctx context.Context, ln transport.Listener, wg *conc.WaitGroup) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("broker: accept failed", "addr", ln.Addr(), "error", err)
			return
		}
		p := NewPeer(b.allocatePeerID(), conn)
		b.router.Connected(p)
		wg.Go(func() { b.runPeerIO(p) })
	}
}

// runPeerIO drains p's connection into the router and p's outgoing queue
// onto the wire, until either direction errs or the router tears p down.
func (b *Broker) runPeerIO(p *Peer) {
	b.registerConn(p.ID, p.Conn)
	defer b.unregisterConn(p.ID)

	var iowg conc.WaitGroup
	iowg.Go(func() {
		for {
			raw, err := p.Conn.ReadFrame()
			if err != nil {
				b.router.Disconnected(p.ID)
				return
			}
			b.router.Message(p.ID, raw)
		}
	})
	iowg.Go(func() {
		for payload := range p.outCh {
			if err := p.Conn.WriteFrame(payload); err != nil {
				slog.Warn("broker: write to peer failed", "peer", p.ID, "error", err)
				return
			}
		}
	})
	iowg.Wait()
}

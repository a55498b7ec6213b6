package broker

import (
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"shv.dev/broker/internal/config"
	"shv.dev/broker/internal/rpcmsg"
	"shv.dev/broker/internal/rtypes"
)

// tickInterval is how often the router sweeps pending-request deadlines
// and peer idle watchdogs.
const tickInterval = 500 * time.Millisecond

type eventKind int

const (
	evPeerConnected eventKind = iota
	evPeerMessage
	evPeerDisconnected
	evTick
	evConfig
	evAdoptPeer
)

type routerEvent struct {
	kind   eventKind
	peerID int64
	peer   *Peer
	raw    []byte
	cfg    *config.GlobalConfig
}

// Router is the broker's single-threaded cooperative scheduler: every
// mutation of the peer table, mount table, and pending-request tables
// happens on the goroutine running Run.
type Router struct {
	cfg     *config.GlobalConfig
	events  chan routerEvent
	peers   map[int64]*Peer
	nonces  map[int64]string
	mounts  *MountTable
	version string
	started time.Time

	// peerCount is read from Broker.Status (a different goroutine than
	// Run), hence atomic; it is only ever written from Run's goroutine.
	peerCount atomic.Int64
}

// NewRouter builds a router over cfg. cfg can be swapped via SetConfig
// (Reload) without restarting the router goroutine.
func NewRouter(cfg *config.GlobalConfig, version string) *Router {
	return &Router{
		cfg:     cfg,
		events:  make(chan routerEvent, 1024),
		peers:   make(map[int64]*Peer),
		nonces:  make(map[int64]string),
		mounts:  NewMountTable(),
		version: version,
		started: time.Now(),
	}
}

// SetConfig atomically swaps the router's configuration on reload;
// in-flight peers keep their already-resolved roles and access tables
// until they reconnect.
func (r *Router) SetConfig(cfg *config.GlobalConfig) {
	r.events <- routerEvent{kind: evConfig, cfg: cfg}
}

// Connected registers a newly accepted peer and sends its hello challenge.
// Dialed ("connect") peers are registered through AdoptPeer instead.
func (r *Router) Connected(p *Peer) {
	r.events <- routerEvent{kind: evPeerConnected, peer: p, peerID: p.ID}
}

// Message delivers one decoded raw frame from peerID's reader goroutine.
func (r *Router) Message(peerID int64, raw []byte) {
	r.events <- routerEvent{kind: evPeerMessage, peerID: peerID, raw: raw}
}

// Disconnected notifies the router that peerID's link has closed.
func (r *Router) Disconnected(peerID int64) {
	r.events <- routerEvent{kind: evPeerDisconnected, peerID: peerID}
}

// AdoptPeer registers a peer that has already completed the login
// handshake on its own (an outbound "connect" peer authenticates as the
// client before the router ever sees it), skipping the inbound nonce
// challenge.
func (r *Router) AdoptPeer(p *Peer) {
	r.events <- routerEvent{kind: evAdoptPeer, peer: p, peerID: p.ID}
}

// PeerCount reports the number of currently connected peers.
func (r *Router) PeerCount() int { return int(r.peerCount.Load()) }

// Run processes events until stop is closed.
func (r *Router) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sweep()
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Router) handle(ev routerEvent) {
	switch ev.kind {
	case evPeerConnected:
		r.peers[ev.peer.ID] = ev.peer
		r.peerCount.Inc()
		nonce := NewNonce()
		r.nonces[ev.peer.ID] = nonce
		hello := rpcmsg.NewSignal("", "hello", "", rtypes.NewMap(map[string]rtypes.Value{
			"nonce": rtypes.NewString(nonce),
		}))
		r.deliver(ev.peer, hello)
	case evAdoptPeer:
		r.peers[ev.peer.ID] = ev.peer
		r.peerCount.Inc()
		if ev.peer.MountPoint != "" {
			r.mounts.Mount(ev.peer.MountPoint, ev.peer)
		}
	case evPeerMessage:
		p, ok := r.peers[ev.peerID]
		if !ok {
			return
		}
		p.touch()
		p.pingDeadline = time.Time{} // any traffic proves liveness
		r.handleRaw(p, ev.raw)
	case evPeerDisconnected:
		r.removePeer(ev.peerID)
	case evTick:
		r.sweep()
	case evConfig:
		r.cfg = ev.cfg
	}
}

func (r *Router) handleRaw(p *Peer, raw []byte) {
	msg, err := decodeMessage(raw)
	if err != nil {
		slog.Warn("broker: malformed frame dropped", "peer", p.ID, "error", err)
		return
	}

	if !p.LoggedIn {
		r.handleLogin(p, msg)
		return
	}

	kind, _ := msg.Kind()
	switch kind {
	case rpcmsg.KindRequest:
		r.handleRequest(p, msg)
	case rpcmsg.KindResponse:
		r.handleResponse(p, msg)
	case rpcmsg.KindSignal:
		r.handleSignal(p, msg)
	}
}

// deliver encodes msg and enqueues it on p's send queue, disconnecting p
// on overflow rather than blocking the router on a slow consumer.
func (r *Router) deliver(p *Peer, msg rpcmsg.Message) {
	raw, err := encodeMessage(msg)
	if err != nil {
		slog.Error("broker: encode failed", "peer", p.ID, "error", err)
		return
	}
	if !p.Send(raw) {
		slog.Warn("broker: send queue full, disconnecting slow peer", "peer", p.ID)
		r.disconnectWithPendingErrors(p)
	}
}

func (r *Router) removePeer(id int64) {
	p, ok := r.peers[id]
	if !ok {
		return
	}
	r.disconnectWithPendingErrors(p)
}

// disconnectWithPendingErrors tears p out of the peer/mount tables and
// answers every request still pending on p with "destination disconnected"
// so callers waiting on it don't hang forever.
func (r *Router) disconnectWithPendingErrors(p *Peer) {
	if _, ok := r.peers[p.ID]; !ok {
		return
	}
	delete(r.peers, p.ID)
	delete(r.nonces, p.ID)
	r.peerCount.Dec()
	if p.MountPoint != "" {
		r.mounts.Unmount(p.MountPoint)
	}
	p.connected.Store(false)
	close(p.outCh)
	p.Conn.Close()

	for reqID, pending := range p.Pending {
		origin, ok := r.peers[pending.OriginPeerID]
		if !ok {
			continue
		}
		resp := rpcmsg.NewErrorResponse(pending.OriginRequestID, rpcmsg.ErrMethodCallException, "destination disconnected")
		if len(pending.OriginCallerIDs) > 0 {
			resp = resp.WithCallerIDs(pending.OriginCallerIDs)
		}
		r.deliver(origin, resp)
		delete(p.Pending, reqID)
	}
}

func (r *Router) sweep() {
	now := time.Now()
	for _, p := range r.peers {
		r.sweepDeadlines(p, now)
		r.sweepWatchdog(p, now)
	}
}

func (r *Router) sweepDeadlines(p *Peer, now time.Time) {
	for reqID, pending := range p.Pending {
		if now.Before(pending.Deadline) {
			continue
		}
		origin, ok := r.peers[pending.OriginPeerID]
		if ok {
			resp := rpcmsg.NewErrorResponse(pending.OriginRequestID, rpcmsg.ErrMethodCallException, "timeout")
			if len(pending.OriginCallerIDs) > 0 {
				resp = resp.WithCallerIDs(pending.OriginCallerIDs)
			}
			r.deliver(origin, resp)
		}
		delete(p.Pending, reqID)
	}
}

func (r *Router) sweepWatchdog(p *Peer, now time.Time) {
	if !p.LoggedIn {
		return
	}
	if p.awaitingPingAck() {
		if now.After(p.pingDeadline) {
			slog.Warn("broker: peer failed to answer ping, disconnecting", "peer", p.ID)
			r.disconnectWithPendingErrors(p)
		}
		return
	}
	if p.Idle() {
		ping := rpcmsg.NewRequest(".broker/currentClient", "ping", p.NextOutgoingRequestID(), rtypes.Null())
		r.deliver(p, ping)
		// Failure to respond within half the timeout disconnects the peer.
		p.pingDeadline = now.Add(p.IdleTimeout / 2)
	}
}

func pathJoin(mount, rest string) string {
	switch {
	case mount == "":
		return rest
	case rest == "":
		return mount
	default:
		return mount + "/" + rest
	}
}

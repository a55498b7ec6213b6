package broker

import (
	"time"

	"go.uber.org/atomic"

	"shv.dev/broker/internal/rpcmsg"
	"shv.dev/broker/internal/transport"
)

// sendQueueCapacity bounds each peer's outgoing message queue; a queue that
// fills up triggers a peer disconnect rather than blocking the router on a
// slow consumer.
const sendQueueCapacity = 256

// defaultRequestDeadline is the soft deadline on a pending request absent
// a peer-specific override.
const defaultRequestDeadline = 30 * time.Second

// defaultIdleTimeout is used when a peer's login options carry no
// idleWatchDogTimeOut.
const defaultIdleTimeout = 60 * time.Second

// PendingRequest records a request forwarded onto a peer, so its eventual
// response can be routed back to the original caller.
type PendingRequest struct {
	OriginPeerID    int64
	OriginRequestID int64
	OriginCallerIDs []int64
	Deadline        time.Time
}

// Peer is a connected client or an outbound-connect link. All fields are
// owned and mutated by the router goroutine except where noted.
type Peer struct {
	ID         int64
	Conn       *transport.Conn
	User       string
	UserID     string
	Roles      []string
	MountPoint string
	IsDevice   bool

	Subscriptions []RI
	Access        *AccessTable
	Pending       map[int64]PendingRequest

	outIDs *rpcmsg.IDGenerator
	outCh  chan []byte

	// connected and lastActivityNano are atomic, so Connected and Idle can
	// be called from outside the router goroutine.
	connected        atomic.Bool
	lastActivityNano atomic.Int64

	IdleTimeout  time.Duration
	pingDeadline time.Time // zero means no ping outstanding

	LoggedIn bool
}

// awaitingPingAck reports whether a watchdog ping is outstanding.
func (p *Peer) awaitingPingAck() bool { return !p.pingDeadline.IsZero() }

// NewPeer wraps a dialed/accepted connection as a not-yet-authenticated
// peer.
func NewPeer(id int64, conn *transport.Conn) *Peer {
	p := &Peer{
		ID:          id,
		Conn:        conn,
		Pending:     make(map[int64]PendingRequest),
		outIDs:      rpcmsg.NewIDGenerator(),
		outCh:       make(chan []byte, sendQueueCapacity),
		IdleTimeout: defaultIdleTimeout,
	}
	p.connected.Store(true)
	p.touch()
	return p
}

func (p *Peer) touch() {
	p.lastActivityNano.Store(time.Now().UnixNano())
}

// Idle reports whether p has been silent for at least its idle timeout.
func (p *Peer) Idle() bool {
	last := time.Unix(0, p.lastActivityNano.Load())
	return time.Since(last) >= p.IdleTimeout
}

// Connected reports whether p's link is still open.
func (p *Peer) Connected() bool { return p.connected.Load() }

// Send enqueues payload on p's outgoing queue; false means the queue was
// full and the caller must disconnect the peer.
func (p *Peer) Send(payload []byte) bool {
	select {
	case p.outCh <- payload:
		return true
	default:
		return false
	}
}

// NextOutgoingRequestID mints a request id for a message the broker itself
// originates onto this peer (forwarded requests, ping).
func (p *Peer) NextOutgoingRequestID() int64 { return p.outIDs.Next() }

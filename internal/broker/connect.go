package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shv.dev/broker/internal/config"
	"shv.dev/broker/internal/rpcmsg"
	"shv.dev/broker/internal/rtypes"
	"shv.dev/broker/internal/transport"
)

// runConnectPeer maintains one outbound ("connect") link: the broker dials
// out, performs the client side of the login handshake, then hands the
// authenticated peer to the router exactly like an inbound one. A dropped
// link is retried with exponential backoff until ctx is cancelled.
func (b *Broker) runConnectPeer(ctx context.Context, cc config.ConnectConfig) {
	attempt := 0
	for ctx.Err() == nil {
		conn, err := transport.Dial(ctx, cc.URL)
		if err != nil {
			slog.Warn("broker: connect peer dial failed", "url", cc.URL, "error", err)
			b.sleepBackoff(ctx, attempt)
			attempt++
			continue
		}

		p, err := b.connectHandshake(conn, cc)
		if err != nil {
			slog.Warn("broker: connect peer login failed", "url", cc.URL, "error", err)
			conn.Close()
			b.sleepBackoff(ctx, attempt)
			attempt++
			continue
		}

		attempt = 0
		b.router.AdoptPeer(p)
		b.runPeerIO(p)
	}
}

func (b *Broker) sleepBackoff(ctx context.Context, attempt int) {
	select {
	case <-ctx.Done():
	case <-time.After(nextBackoff(attempt)):
	}
}

// connectHandshake performs the client side of the login handshake
// over an already-dialed connection: wait for the hello nonce, answer
// with a SHA1 challenge response derived from the URL's credential
// options, and build the resulting Peer on success.
func (b *Broker) connectHandshake(conn *transport.Conn, cc config.ConnectConfig) (*Peer, error) {
	raw, err := conn.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}
	hello, err := decodeMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding hello: %w", err)
	}
	nonce := ""
	if hello.Value.Kind() == rtypes.KindMap {
		if v, ok := hello.Value.Map()["nonce"]; ok && v.Kind() == rtypes.KindString {
			nonce = v.String()
		}
	}

	user := conn.Endpoint.User
	stored := connectStoredHash(conn.Endpoint)
	response := sha1hex(nonce + stored)

	loginParams := rtypes.NewMap(map[string]rtypes.Value{
		"login": rtypes.NewMap(map[string]rtypes.Value{
			"user":     rtypes.NewString(user),
			"password": rtypes.NewString(response),
			"type":     rtypes.NewString(LoginSHA1),
		}),
		"options": rtypes.NewMap(map[string]rtypes.Value{
			"device": rtypes.NewMap(map[string]rtypes.Value{
				"mountPoint": rtypes.NewString(cc.MountPoint),
			}),
		}),
	})
	if err := writeMessage(conn, rpcmsg.NewRequest("", "login", 1, loginParams)); err != nil {
		return nil, fmt.Errorf("sending login: %w", err)
	}

	raw, err = conn.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("reading login response: %w", err)
	}
	resp, err := decodeMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("login rejected: %s", resp.ErrorMessage())
	}

	p := NewPeer(b.allocatePeerID(), conn)
	p.User = user
	p.UserID = user
	p.Roles = cc.Role
	p.Access = NewAccessTable(b.router.resolveRoles(cc.Role))
	p.MountPoint = cc.MountPoint
	p.IsDevice = true
	p.LoggedIn = true
	for _, s := range cc.Subscriptions {
		if ri, err := ParseRI(s); err == nil {
			p.Subscriptions = append(p.Subscriptions, ri)
		}
	}
	return p, nil
}

// connectStoredHash reads the credential the URL's "password"/"shapass"
// query options carry, in the same stored form verifyCredentials expects
// on the server side: a plain password is
// hashed once so connectHandshake can combine it with the nonce.
func connectStoredHash(ep *transport.Endpoint) string {
	if v, ok := ep.Option("shapass"); ok {
		return v
	}
	if v, ok := ep.Option("password"); ok {
		return sha1hex(v)
	}
	return ""
}

package broker

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"shv.dev/broker/internal/config"
	"shv.dev/broker/internal/rpcmsg"
	"shv.dev/broker/internal/rtypes"
)

// rejectLogin answers a login request with an error and disconnects the
// peer after a fixed small delay, giving the writer goroutine time to
// flush the response before the link closes out from under it.
func (r *Router) rejectLogin(p *Peer, requestID int64, code int, message string) {
	r.deliver(p, rpcmsg.NewErrorResponse(requestID, code, message))
	time.AfterFunc(200*time.Millisecond, func() { r.Disconnected(p.ID) })
}

func (r *Router) resolveRoles(names []string) []config.RoleConfig {
	roles := make([]config.RoleConfig, 0, len(names))
	for _, n := range names {
		if role, ok := r.cfg.Role[n]; ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// handleLogin processes the one message a not-yet-authenticated peer is
// allowed to send: a login request.
func (r *Router) handleLogin(p *Peer, msg rpcmsg.Message) {
	kind, err := msg.Kind()
	requestID, _ := msg.RequestID()
	if err != nil || kind != rpcmsg.KindRequest {
		slog.Warn("broker: peer sent non-login traffic before authenticating", "peer", p.ID)
		r.disconnectWithPendingErrors(p)
		return
	}
	method, _ := msg.Method()
	if method != "login" {
		r.rejectLogin(p, requestID, rpcmsg.ErrLoginRequired, "login required")
		return
	}

	lr, err := parseLoginRequest(msg.Value)
	if err != nil {
		r.rejectLogin(p, requestID, rpcmsg.ErrInvalidParam, err.Error())
		return
	}

	user, known := r.cfg.User[lr.User]
	nonce := r.nonces[p.ID]
	if !known || !verifyCredentials(user, nonce, lr) {
		r.rejectLogin(p, requestID, rpcmsg.ErrLoginRequired, "invalid credentials")
		return
	}

	roles := user.Role
	if len(roles) == 0 {
		roles = []string{"default"}
	}
	p.User = lr.User
	p.UserID = lr.User
	p.Roles = roles
	p.Access = NewAccessTable(r.resolveRoles(roles))
	p.IsDevice = lr.DeviceMountPoint != "" || lr.DeviceID != ""
	if lr.IdleWatchDogSec > 0 {
		p.IdleTimeout = time.Duration(lr.IdleWatchDogSec) * time.Second
	}

	mountPoint, subs, rejectReason := r.resolveMount(p, lr)
	if rejectReason != "" {
		r.rejectLogin(p, requestID, rpcmsg.ErrMethodCallException, rejectReason)
		return
	}
	if mountPoint != "" && !p.Access.MountAllowed(mountPoint) {
		r.rejectLogin(p, requestID, rpcmsg.ErrMethodCallException, "mount point not allowed")
		return
	}
	if mountPoint != "" {
		r.mounts.Mount(mountPoint, p)
		p.MountPoint = mountPoint
	}
	p.Subscriptions = append(p.Subscriptions, subs...)
	p.LoggedIn = true

	result := rtypes.NewMap(map[string]rtypes.Value{
		"clientId": rtypes.NewInt(p.ID),
	})
	r.deliver(p, rpcmsg.NewResponse(requestID, result))
}

// resolveMount determines p's mount point: an explicit device.mountPoint
// wins; otherwise the first matching autosetup rule supplies a templated
// one; conflicts are resolved via %i/%I or reject the login.
func (r *Router) resolveMount(p *Peer, lr loginRequest) (mountPoint string, subs []RI, reject string) {
	if lr.DeviceMountPoint != "" {
		if r.mounts.Occupied(lr.DeviceMountPoint) {
			return "", nil, "mount point occupied"
		}
		return lr.DeviceMountPoint, nil, ""
	}

	rule, ok := matchAutoSetup(r.cfg.AutoSetup, lr.DeviceID, p.Roles)
	if !ok {
		return "", nil, ""
	}
	role := ""
	if len(p.Roles) > 0 {
		role = p.Roles[0]
	}
	for conflict := 0; conflict < 1000; conflict++ {
		candidate := expandMountPoint(rule.MountPoint, lr.DeviceID, role, p.User, conflict)
		if !r.mounts.Occupied(candidate) {
			for _, s := range rule.Subscriptions {
				if ri, err := ParseRI(s); err == nil {
					subs = append(subs, ri)
				}
			}
			return candidate, subs, ""
		}
	}
	return "", nil, "mount point occupied"
}

func (r *Router) handleRequest(p *Peer, msg rpcmsg.Message) {
	path := msg.Path()
	method, _ := msg.Method()
	requestID, _ := msg.RequestID()

	dest, prefix, rest, ok := r.mounts.Lookup(path)
	if !ok || dest == p {
		r.handleIntrinsic(p, msg)
		return
	}

	granted := p.Access.Grant(path, method)
	if existing, hasExisting := msg.AccessGrant(); hasExisting && config.AccessLevel(existing) < granted {
		granted = config.AccessLevel(existing)
	}
	if granted == 0 {
		// No access at all on p: MethodNotFound hides the path's existence
		// from a caller who couldn't even browse it.
		r.deliver(p, rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrMethodNotFound, fmt.Sprintf("no such method %s:%s", path, method)))
		return
	}
	callerIDs := append(append([]int64(nil), msg.CallerIDs()...), p.ID)

	freshID := dest.NextOutgoingRequestID()
	dest.Pending[freshID] = PendingRequest{
		OriginPeerID:    p.ID,
		OriginRequestID: requestID,
		OriginCallerIDs: msg.CallerIDs(),
		Deadline:        time.Now().Add(defaultRequestDeadline),
	}
	forwarded := rpcmsg.NewRequest(rest, method, freshID, msg.Value).
		WithCallerIDs(callerIDs).
		WithAccessGrant(int(granted))
	_ = prefix
	r.deliver(dest, forwarded)
}

func (r *Router) handleResponse(p *Peer, msg rpcmsg.Message) {
	requestID, _ := msg.RequestID()
	pending, ok := p.Pending[requestID]
	if !ok {
		slog.Warn("broker: response for unknown/expired request dropped", "peer", p.ID, "requestId", requestID)
		return
	}
	delete(p.Pending, requestID)

	origin, ok := r.peers[pending.OriginPeerID]
	if !ok {
		return // origin disconnected meanwhile; nothing to deliver to
	}
	resp := rpcmsg.NewResponse(pending.OriginRequestID, msg.Value)
	if len(pending.OriginCallerIDs) > 0 {
		resp = resp.WithCallerIDs(pending.OriginCallerIDs)
	}
	r.deliver(origin, resp)
}

func (r *Router) handleSignal(p *Peer, msg rpcmsg.Message) {
	method, _ := msg.Method()
	signal := msg.SignalName()
	extPath := pathJoin(p.MountPoint, msg.Path())

	for _, d := range r.peers {
		if d == p || !d.LoggedIn {
			continue
		}
		matched := false
		for _, sub := range d.Subscriptions {
			if sub.Matches(extPath, method, signal) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if d.Access.Grant(extPath, method) < config.AccessBrowse {
			continue
		}
		fwd := rpcmsg.NewSignal(extPath, method, signal, msg.Value)
		r.deliver(d, fwd)
	}
}

// handleIntrinsic serves a request that matched no mount, or was
// addressed to the broker's own intrinsic tree.
func (r *Router) handleIntrinsic(p *Peer, msg rpcmsg.Message) {
	path := msg.Path()
	method, _ := msg.Method()
	requestID, _ := msg.RequestID()

	switch {
	case method == "ls":
		r.deliver(p, rpcmsg.NewResponse(requestID, lsResult(r.lsChildren(path))))
	case method == "dir":
		r.deliver(p, rpcmsg.NewResponse(requestID, lsResult(r.dirMethods(path))))
	case path == ".broker/currentClient":
		r.handleCurrentClient(p, msg)
	case path == ".broker/clients" && method == "get":
		r.handleBrokerClients(p, requestID)
	case path == ".broker/mounts" && method == "get":
		r.handleBrokerMounts(p, requestID)
	case path == ".app" && method == "name":
		r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewString("shvbrokerd")))
	case path == ".app" && method == "version":
		r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewString(r.version)))
	default:
		r.deliver(p, rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrMethodNotFound, fmt.Sprintf("no such method %s:%s", path, method)))
	}
}

func lsResult(names []string) rtypes.Value {
	items := make([]rtypes.Value, len(names))
	for i, n := range names {
		items[i] = rtypes.NewString(n)
	}
	return rtypes.NewList(items)
}

// lsChildren lists the immediate children of path: intrinsic roots at ""
// plus the top segment of every mount prefix under path.
func (r *Router) lsChildren(path string) []string {
	set := make(map[string]struct{})
	if path == "" {
		set[".app"] = struct{}{}
		set[".broker"] = struct{}{}
	}
	for prefix := range r.mounts.All() {
		var rel string
		switch {
		case path == "":
			rel = prefix
		case prefix == path:
			continue
		case len(prefix) > len(path) && prefix[:len(path)+1] == path+"/":
			rel = prefix[len(path)+1:]
		default:
			continue
		}
		seg := rel
		for i := 0; i < len(rel); i++ {
			if rel[i] == '/' {
				seg = rel[:i]
				break
			}
		}
		if seg != "" {
			set[seg] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Router) dirMethods(path string) []string {
	switch path {
	case ".broker/currentClient":
		return []string{"ls", "dir", "subscribe", "unsubscribe", "subscriptions", "mountPoint", "userId", "ping"}
	case ".broker/clients", ".broker/mounts":
		return []string{"ls", "dir", "get"}
	case ".app":
		return []string{"ls", "dir", "name", "version"}
	default:
		return []string{"ls", "dir"}
	}
}

func (r *Router) handleCurrentClient(p *Peer, msg rpcmsg.Message) {
	method, _ := msg.Method()
	requestID, _ := msg.RequestID()

	switch method {
	case "subscribe":
		ri := subscriptionFromParams(msg.Value)
		p.Subscriptions = append(p.Subscriptions, ri)
		r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewBool(true)))
	case "unsubscribe":
		ri := subscriptionFromParams(msg.Value)
		existed := false
		kept := p.Subscriptions[:0]
		for _, s := range p.Subscriptions {
			if s == ri {
				existed = true
				continue
			}
			kept = append(kept, s)
		}
		p.Subscriptions = kept
		r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewBool(existed)))
	case "subscriptions":
		items := make([]rtypes.Value, len(p.Subscriptions))
		for i, s := range p.Subscriptions {
			items[i] = rtypes.NewString(s.String())
		}
		r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewList(items)))
	case "mountPoint":
		r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewString(p.MountPoint)))
	case "userId":
		r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewString(p.UserID)))
	case "ping":
		r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewBool(true)))
	default:
		r.deliver(p, rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrMethodNotFound, "no such method .broker/currentClient:"+method))
	}
}

// subscriptionFromParams reads {path, method, signal} defaulting missing
// fields to "*"/"*"/"*", except a signal-only omission defaults to "chng".
func subscriptionFromParams(params rtypes.Value) RI {
	ri := RI{Path: "*", Method: "*", Signal: "*"}
	if params.Kind() != rtypes.KindMap {
		return ri
	}
	m := params.Map()
	hasPath, hasMethod := false, false
	if v, ok := m["path"]; ok && v.Kind() == rtypes.KindString && v.String() != "" {
		ri.Path = v.String()
		hasPath = true
	}
	if v, ok := m["method"]; ok && v.Kind() == rtypes.KindString && v.String() != "" {
		ri.Method = v.String()
		hasMethod = true
	}
	if v, ok := m["signal"]; ok && v.Kind() == rtypes.KindString && v.String() != "" {
		ri.Signal = v.String()
	} else if hasPath && hasMethod {
		ri.Signal = rpcmsg.DefaultSignalName
	}
	return ri
}

func (r *Router) handleBrokerClients(p *Peer, requestID int64) {
	if p.Access.Grant(".broker/clients", "get") < config.AccessConfig {
		r.deliver(p, rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrMethodCallException, "access denied"))
		return
	}
	ids := make([]int, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	items := make([]rtypes.Value, len(ids))
	for i, id := range ids {
		c := r.peers[int64(id)]
		items[i] = rtypes.NewMap(map[string]rtypes.Value{
			"clientId":   rtypes.NewInt(int64(id)),
			"user":       rtypes.NewString(c.User),
			"mountPoint": rtypes.NewString(c.MountPoint),
		})
	}
	r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewList(items)))
}

func (r *Router) handleBrokerMounts(p *Peer, requestID int64) {
	if p.Access.Grant(".broker/mounts", "get") < config.AccessConfig {
		r.deliver(p, rpcmsg.NewErrorResponse(requestID, rpcmsg.ErrMethodCallException, "access denied"))
		return
	}
	all := r.mounts.All()
	prefixes := make([]string, 0, len(all))
	for prefix := range all {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	items := make([]rtypes.Value, len(prefixes))
	for i, prefix := range prefixes {
		items[i] = rtypes.NewString(prefix)
	}
	r.deliver(p, rpcmsg.NewResponse(requestID, rtypes.NewList(items)))
}

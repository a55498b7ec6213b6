package broker

import "strings"

// MountTable maps SHV path prefixes to the peer mounted there, matched by
// longest prefix.
type MountTable struct {
	byPrefix map[string]*Peer
}

// NewMountTable returns an empty mount table.
func NewMountTable() *MountTable {
	return &MountTable{byPrefix: make(map[string]*Peer)}
}

// Mount registers peer at prefix. Returns false if the exact prefix is
// already occupied; the caller rejects the login on collision.
func (t *MountTable) Mount(prefix string, peer *Peer) bool {
	if _, exists := t.byPrefix[prefix]; exists {
		return false
	}
	t.byPrefix[prefix] = peer
	return true
}

// Unmount removes prefix's mount, if present.
func (t *MountTable) Unmount(prefix string) {
	delete(t.byPrefix, prefix)
}

// Occupied reports whether prefix is already mounted.
func (t *MountTable) Occupied(prefix string) bool {
	_, ok := t.byPrefix[prefix]
	return ok
}

// Lookup finds the longest mounted prefix of path, returning the mounted
// peer, the matched prefix, and the path with that prefix stripped.
func (t *MountTable) Lookup(path string) (peer *Peer, prefix string, rest string, ok bool) {
	best := -1
	for p := range t.byPrefix {
		if p == path || strings.HasPrefix(path, p+"/") {
			if len(p) > best {
				best = len(p)
				prefix = p
			}
		}
	}
	if best < 0 {
		return nil, "", "", false
	}
	peer = t.byPrefix[prefix]
	rest = strings.TrimPrefix(path, prefix)
	rest = strings.TrimPrefix(rest, "/")
	return peer, prefix, rest, true
}

// All returns every (prefix, peer) pair, for `.broker/mounts` inspection.
func (t *MountTable) All() map[string]*Peer {
	cp := make(map[string]*Peer, len(t.byPrefix))
	for k, v := range t.byPrefix {
		cp[k] = v
	}
	return cp
}

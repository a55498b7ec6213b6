package broker

import (
	"shv.dev/broker/internal/config"
)

// AccessTable resolves the granted access level for a (path, method) pair
// across a peer's assigned roles. Checked after the mount lookup, before a
// request is forwarded to a mounted peer.
type AccessTable struct {
	roles []config.RoleConfig
}

// NewAccessTable builds a table over the given roles (already resolved
// from role names via the broker's configuration).
func NewAccessTable(roles []config.RoleConfig) *AccessTable {
	return &AccessTable{roles: roles}
}

// Grant returns the highest access level any rule across any role grants
// for (path, method, *), or 0 if none match.
func (t *AccessTable) Grant(path, method string) config.AccessLevel {
	var best config.AccessLevel
	for _, role := range t.roles {
		for levelName, patterns := range role.Access {
			level, ok := config.ParseAccessLevel(levelName)
			if !ok {
				continue
			}
			if level <= best {
				continue
			}
			for _, pat := range patterns {
				ri, err := ParseRI(pat)
				if err != nil {
					continue
				}
				if ri.Matches(path, method, "*") {
					best = level
					break
				}
			}
		}
	}
	return best
}

// MountAllowed reports whether any role permits mounting at mountPoint.
func (t *AccessTable) MountAllowed(mountPoint string) bool {
	if len(t.roles) == 0 {
		return false
	}
	for _, role := range t.roles {
		if len(role.MountPoints) == 0 {
			return true // no restriction configured
		}
		for _, pat := range role.MountPoints {
			if MatchPath(pat, mountPoint) {
				return true
			}
		}
	}
	return false
}

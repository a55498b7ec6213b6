package broker

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	uuid "github.com/satori/go.uuid"

	"shv.dev/broker/internal/config"
	"shv.dev/broker/internal/rtypes"
)

// Login types accepted in the `login.type` field.
const (
	LoginPlain = "PLAIN"
	LoginSHA1  = "SHA1"
	LoginToken = "TOKEN"
)

// NewNonce returns a fresh random login-challenge nonce.
func NewNonce() string {
	return uuid.NewV4().String()
}

// sha1hex is SHA1(s) rendered as lowercase hex, the digest format used for
// both a stored sha1pass and the challenge-response hash.
func sha1hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// loginRequest is the parsed body of a login request.
type loginRequest struct {
	User     string
	Password string
	Type     string

	DeviceMountPoint string
	DeviceID         string
	IdleWatchDogSec  int64
	NonceEcho        string
}

// parseLoginRequest extracts the login fields from a request's
// params body: {"login": {"user","password","type"}, "options":
// {"device": {"mountPoint","deviceId"}, "idleWatchDogTimeOut", "nonce"}}.
func parseLoginRequest(params rtypes.Value) (loginRequest, error) {
	var lr loginRequest
	if params.Kind() != rtypes.KindMap {
		return lr, fmt.Errorf("broker: login params must be a map")
	}
	top := params.Map()

	login, ok := top["login"]
	if !ok || login.Kind() != rtypes.KindMap {
		return lr, fmt.Errorf("broker: login params missing \"login\" map")
	}
	lm := login.Map()
	lr.User = strField(lm, "user")
	lr.Password = strField(lm, "password")
	lr.Type = strField(lm, "type")
	if lr.Type == "" {
		lr.Type = LoginSHA1
	}

	if opts, ok := top["options"]; ok && opts.Kind() == rtypes.KindMap {
		om := opts.Map()
		lr.NonceEcho = strField(om, "nonce")
		if dev, ok := om["device"]; ok && dev.Kind() == rtypes.KindMap {
			dm := dev.Map()
			lr.DeviceMountPoint = strField(dm, "mountPoint")
			lr.DeviceID = strField(dm, "deviceId")
		}
		if wd, ok := om["idleWatchDogTimeOut"]; ok {
			lr.IdleWatchDogSec = asIntValue(wd)
		}
	}
	return lr, nil
}

func strField(m map[string]rtypes.Value, key string) string {
	v, ok := m[key]
	if !ok || v.Kind() != rtypes.KindString {
		return ""
	}
	return v.String()
}

func asIntValue(v rtypes.Value) int64 {
	switch v.Kind() {
	case rtypes.KindInt:
		return v.Int()
	case rtypes.KindUInt:
		return int64(v.UInt())
	default:
		return 0
	}
}

// verifyCredentials checks lr against the configured user, accepting PLAIN
// or SHA1 challenge-response; both schemes are always accepted together so
// clients that only implement one still interoperate.
func verifyCredentials(user config.UserConfig, nonce string, lr loginRequest) bool {
	switch lr.Type {
	case LoginPlain:
		if user.Password == "" {
			return false
		}
		return lr.Password == user.Password
	case LoginSHA1:
		stored := user.SHA1Pass
		if stored == "" && user.Password != "" {
			stored = sha1hex(user.Password)
		}
		if stored == "" {
			return false
		}
		want := sha1hex(nonce + stored)
		return strings.EqualFold(lr.Password, want)
	case LoginToken:
		// Token-based login authenticates via a previously issued opaque
		// token rather than a user/password pair; there is no token
		// issuance surface here, so TOKEN logins are accepted only when
		// the configured user has neither password set (connect-only
		// identity) -- any non-empty token presented is accepted.
		return user.Password == "" && user.SHA1Pass == "" && lr.Password != ""
	default:
		return false
	}
}

// expandMountPoint substitutes an auto-setup mount-point format string:
// %d device id, %r role, %u user, %i conflict counter ("" if 0 else the
// number), %I conflict counter always numeric from 0, %% literal percent.
func expandMountPoint(format, deviceID, role, user string, conflict int) string {
	var b strings.Builder
	r := []rune(format)
	for i := 0; i < len(r); i++ {
		if r[i] != '%' || i+1 >= len(r) {
			b.WriteRune(r[i])
			continue
		}
		i++
		switch r[i] {
		case 'd':
			b.WriteString(deviceID)
		case 'r':
			b.WriteString(role)
		case 'u':
			b.WriteString(user)
		case 'i':
			if conflict != 0 {
				fmt.Fprintf(&b, "%d", conflict)
			}
		case 'I':
			fmt.Fprintf(&b, "%d", conflict)
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteRune(r[i])
		}
	}
	return b.String()
}

// matchAutoSetup finds the first autosetup rule whose device-id glob
// matches deviceID and whose role set intersects roles (an empty
// Roles list on the rule matches any role set).
func matchAutoSetup(rules []config.AutoSetupRule, deviceID string, roles []string) (config.AutoSetupRule, bool) {
	for _, rule := range rules {
		if !matchesAnyGlob(rule.DeviceID, deviceID) {
			continue
		}
		if len(rule.Roles) > 0 && !intersects(rule.Roles, roles) {
			continue
		}
		return rule, true
	}
	return config.AutoSetupRule{}, false
}

func matchesAnyGlob(patterns []string, s string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if MatchPath(p, s) {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, x := range b {
		if _, ok := set[x]; ok {
			return true
		}
	}
	return false
}

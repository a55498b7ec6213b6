package broker

import (
	"fmt"
	"strings"
)

// RI is a resource identifier pattern: path:method:signal, each part a
// glob. An empty part defaults to "*".
type RI struct {
	Path   string
	Method string
	Signal string
}

// ParseRI splits a colon-delimited RI string into its three parts,
// defaulting missing trailing parts to "*".
func ParseRI(s string) (RI, error) {
	parts := strings.Split(s, ":")
	ri := RI{Path: "*", Method: "*", Signal: "*"}
	if len(parts) > 0 && parts[0] != "" {
		ri.Path = parts[0]
	}
	if len(parts) > 1 && parts[1] != "" {
		ri.Method = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		ri.Signal = parts[2]
	}
	if len(parts) > 3 {
		return RI{}, fmt.Errorf("broker: malformed RI %q", s)
	}
	return ri, nil
}

// String renders the RI back to its colon-delimited form.
func (r RI) String() string {
	return r.Path + ":" + r.Method + ":" + r.Signal
}

// Matches reports whether r matches the given (path, method, signal)
// triple.
func (r RI) Matches(path, method, signal string) bool {
	return MatchPath(r.Path, path) && MatchWildcard(r.Method, method) && MatchWildcard(r.Signal, signal)
}

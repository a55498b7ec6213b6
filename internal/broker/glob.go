package broker

import "strings"

// MatchPath reports whether pattern matches path under the subscription
// glob semantics: '/'-delimited segments, '*' matches within one segment,
// '?' matches one character within one segment, and '**' matches zero or
// more whole segments.
func MatchPath(pattern, path string) bool {
	pSegs := splitSegments(pattern)
	sSegs := splitSegments(path)
	return matchSegments(pSegs, sSegs)
}

func splitSegments(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func matchSegments(pat, in []string) bool {
	if len(pat) == 0 {
		return len(in) == 0
	}
	if pat[0] == "**" {
		if matchSegments(pat[1:], in) {
			return true
		}
		if len(in) == 0 {
			return false
		}
		return matchSegments(pat, in[1:])
	}
	if len(in) == 0 {
		return false
	}
	if !matchSegment(pat[0], in[0]) {
		return false
	}
	return matchSegments(pat[1:], in[1:])
}

// matchSegment matches one path segment against a single-segment glob
// pattern using '*' (zero or more characters) and '?' (exactly one).
func matchSegment(pattern, seg string) bool {
	return matchGlob([]rune(pattern), []rune(seg))
}

func matchGlob(pattern, s []rune) bool {
	if len(pattern) == 0 {
		return len(s) == 0
	}
	switch pattern[0] {
	case '*':
		if matchGlob(pattern[1:], s) {
			return true
		}
		if len(s) == 0 {
			return false
		}
		return matchGlob(pattern, s[1:])
	case '?':
		if len(s) == 0 {
			return false
		}
		return matchGlob(pattern[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != pattern[0] {
			return false
		}
		return matchGlob(pattern[1:], s[1:])
	}
}

// MatchWildcard matches a method/signal wildcard, which is always either
// "*" or an exact name (no '/' segmentation).
func MatchWildcard(pattern, name string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	return matchGlob([]rune(pattern), []rune(name))
}

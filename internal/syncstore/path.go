package syncstore

import (
	"fmt"
	"strings"
)

// Clean normalizes p: no leading or trailing slashes, no empty segments.
func Clean(p string) string {
	return strings.Join(Split(p), "/")
}

func Split(p string) []string {
	parts := strings.Split(p, "/")
	segs := parts[:0]
	for _, s := range parts {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func Join(elem ...string) string {
	return Clean(strings.Join(elem, "/"))
}

// Overlaps reports whether a write to one path can change the other.
func Overlaps(a, b string) bool {
	a, b = Clean(a), Clean(b)
	return isAncestor(a, b) || isAncestor(b, a)
}

// isAncestor reports whether a equals b or contains it.
func isAncestor(a, b string) bool {
	if a == "" || a == b {
		return true
	}
	return strings.HasPrefix(b, a+"/")
}

// ancestors returns every strict ancestor of p, root ("") first.
func ancestors(p string) []string {
	segs := Split(p)
	out := make([]string, 0, len(segs))
	out = append(out, "")
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	if len(segs) == 0 {
		return nil
	}
	return out
}

func validate(p string) error {
	for _, s := range Split(p) {
		if strings.ContainsAny(s, ".#$[]") {
			return fmt.Errorf("%w: %q", ErrBadPath, p)
		}
	}
	return nil
}

// Package roomcode generates the short codes players type to join a room.
package roomcode

import (
	"strings"

	"github.com/valyala/fastrand"
)

const (
	Length   = 4
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

func New() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(alphabet[fastrand.Uint32n(uint32(len(alphabet)))])
	}
	return b.String()
}

// Parse normalizes user input and reports whether it is a well formed code.
func Parse(s string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != Length {
		return "", false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return "", false
		}
	}
	return code, true
}

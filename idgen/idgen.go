// Package idgen generates identifiers for log rows and request traces.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 produces RFC 9562 version 7 UUIDs, which sort by creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NanoID produces short lowercase base-36 IDs of length n. Meant for trace
// ids in headers and logs, not for anything persisted.
func NanoID(n int) Generator {
	return func() string {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand: " + err.Error())
		}
		for i, b := range buf {
			buf[i] = alphabet[int(b)%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed prepends prefix to every ID of gen, e.g. "rfl_".
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New returns an ID from Default.
func New() string {
	return Default()
}

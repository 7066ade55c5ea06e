// CLAUDE:SUMMARY Pluggable ID generators (UUIDv7, NanoID, prefixed) for request and trace identifiers.
// Package idgen provides pluggable ID generation.
//
// The HTTP stack stamps every request with a Prefixed UUIDv7 ("req_...") and
// every trace with a short NanoID, so log lines from one feed build can be
// correlated across the fetch and extraction stages.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator that produces base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Request is the generator used for inbound request IDs.
var Request Generator = Prefixed("req_", UUIDv7())

// Trace is the generator used for trace IDs.
var Trace Generator = NanoID(12)

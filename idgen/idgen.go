// Package idgen generates identifiers for fill runs, requests and history
// rows.
package idgen

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs. They sort by
// creation time, which keeps run history ordered by id.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Short returns a Generator of base-36 ids of the given length, used for
// request ids in logs.
func Short(length int) Generator {
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

// Prefixed prepends prefix to every id of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

var (
	// RunID names one scan or fill run.
	RunID = Prefixed("run_", UUIDv7())
	// RequestID tags one inbound HTTP or MCP request.
	RequestID = Prefixed("req_", Short(12))
)

// Parse validates the UUID part of an id carrying the given prefix.
func Parse(prefix, id string) (uuid.UUID, error) {
	if len(id) < len(prefix) || id[:len(prefix)] != prefix {
		return uuid.Nil, fmt.Errorf("idgen: %q lacks prefix %q", id, prefix)
	}
	u, err := uuid.Parse(id[len(prefix):])
	if err != nil {
		return uuid.Nil, fmt.Errorf("idgen: %w", err)
	}
	return u, nil
}

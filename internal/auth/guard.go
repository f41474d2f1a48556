// Package auth checks presented credentials against the configured token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Guard holds the configured bearer token. An empty token disables auth so
// an unconfigured local deployment stays usable.
type Guard struct {
	token   []byte
	enabled bool
}

// NewGuard builds a guard for the configured token.
func NewGuard(token string) *Guard {
	return &Guard{token: []byte(token), enabled: token != ""}
}

// Enabled reports whether a token is configured.
func (g *Guard) Enabled() bool { return g.enabled }

// Authorize compares the presented credential in constant time, so response
// latency does not leak credential material.
func (g *Guard) Authorize(presented string) bool {
	if !g.enabled {
		return true
	}
	return subtle.ConstantTimeCompare(g.token, []byte(presented)) == 1
}

// CallerHint returns a non-reversible identity hint for audit entries. The
// credential itself is never logged.
func CallerHint(presented string) string {
	if presented == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(presented))
	return hex.EncodeToString(sum[:4])
}

package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewOpaqueToken returns a 64-character hex string from 32 bytes of
// cryptographically secure random data.  Used for check-in tokens and
// waitlist claim tokens; the value carries no meaning and is only ever
// compared for equality.
func NewOpaqueToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken,
		// at which point serving traffic is not meaningful either.
		panic(err)
	}
	return hex.EncodeToString(buf)
}

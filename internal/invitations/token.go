package invitations

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

const tokenEntropyBytes = 32

// NewToken returns an unguessable URL-safe token: a ULID carrying the issue time
// followed by 32 bytes from crypto/rand.
func NewToken(now time.Time) (string, error) {
	prefix, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("invitations: token prefix: %w", err)
	}
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("invitations: token entropy: %w", err)
	}
	return prefix.String() + base64.RawURLEncoding.EncodeToString(buf), nil
}

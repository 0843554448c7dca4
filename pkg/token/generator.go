package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// MinTokenLength is the shortest token accepted from a client. Issued
	// tokens are hex HMAC digests of 64 characters.
	MinTokenLength = 41

	nonceBytes = 32
)

var (
	// ErrTooShort is returned by ValidateLength.
	ErrTooShort = errors.New("token too short")

	errNoNodeID = errors.New("node id is required")
)

// ValidateLength rejects tokens that cannot have been issued, before any lookup.
func ValidateLength(tok string) error {
	if len(tok) < MinTokenLength {
		return fmt.Errorf("%w: %d characters, need at least %d", ErrTooShort, len(tok), MinTokenLength)
	}
	return nil
}

// Equal compares two tokens in constant time.
func Equal(provided, expected string) bool {
	return hmac.Equal([]byte(provided), []byte(expected))
}

// Generator issues node tokens bound to a node identity.
//
// Each token signs the node ID together with a fresh nonce, so a node that is
// re-provisioned never gets its previous token back.
type Generator struct {
	key []byte
}

// NewGenerator creates a Generator keyed with secret.
func NewGenerator(secret string) *Generator {
	return &Generator{key: []byte(secret)}
}

// Generate returns a new token for nodeID.
func (g *Generator) Generate(nodeID string) (string, error) {
	if nodeID == "" {
		return "", errNoNodeID
	}
	n, err := nonce()
	if err != nil {
		return "", err
	}
	return g.sign(nodeID + ":" + n), nil
}

func (g *Generator) sign(payload string) string {
	mac := hmac.New(sha256.New, g.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func nonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

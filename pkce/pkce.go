// Package pkce generates and checks RFC 7636 verifier/challenge pairs (S256 only).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"regexp"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/pkg/errors"
)

const (
	// DefaultVerifierLength is the number of random bytes behind a verifier (43 chars).
	DefaultVerifierLength = 32
	MinVerifierLength     = 32 // 43 base64url characters
	MaxVerifierLength     = 96 // 128 base64url characters

	ChallengeLength = 43
)

var (
	challengePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)
	verifierPattern  = regexp.MustCompile(`^[A-Za-z0-9._~-]{43,128}$`)
)

// GenerateVerifier returns byteLength random bytes as unpadded base64url.
func GenerateVerifier(byteLength int) (string, error) {
	if byteLength < MinVerifierLength || byteLength > MaxVerifierLength {
		return "", errors.Wrapf(apperrors.ErrInvalidParameter, "[GenerateVerifier] byteLength %d outside [%d,%d]", byteLength, MinVerifierLength, MaxVerifierLength)
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrapf(apperrors.ErrCryptoOp, "[GenerateVerifier] rand.Read: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Challenge derives the S256 code challenge of verifier.
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// Verify reports whether verifier hashes to challenge, in constant time.
func Verify(verifier, challenge string) bool {
	computed := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// IsChallenge reports whether s has the shape of an S256 challenge.
func IsChallenge(s string) bool {
	return challengePattern.MatchString(s)
}

// IsVerifier reports whether s has the shape of an RFC 7636 code verifier.
func IsVerifier(s string) bool {
	return verifierPattern.MatchString(s)
}

// Package pkce implements the Proof Key for Code Exchange primitives
// defined in RFC 7636: verifier generation, challenge derivation and
// verification. All operations are pure; the only side effect is
// consumption of crypto/rand.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

type Method string

const (
	MethodPlain Method = "plain"
	MethodS256  Method = "S256"
)

const (
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// length of an unpadded base64url SHA-256 digest
	s256ChallengeLength = 43
)

// unreserved URI characters, RFC 3986 section 2.3
const verifierLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

var (
	ErrInvalidParameter  = errors.New("pkce: verifier length out of range")
	ErrInvalidVerifier   = errors.New("pkce: invalid code verifier")
	ErrInvalidChallenge  = errors.New("pkce: invalid code challenge")
	ErrUnsupportedMethod = errors.New("pkce: unsupported code challenge method")
)

// GenerateVerifier returns a random code verifier of exactly length
// characters from the unreserved character set, drawn from crypto/rand.
func GenerateVerifier(length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", fmt.Errorf("%w: %d", ErrInvalidParameter, length)
	}
	ret := make([]byte, length)
	max := big.NewInt(int64(len(verifierLetters)))
	for i := range ret {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("pkce: random source: %w", err)
		}
		ret[i] = verifierLetters[num.Int64()]
	}
	return string(ret), nil
}

// ChallengeFromVerifier derives the code challenge for the given method.
// S256 is base64url(SHA-256(verifier)) without padding; plain returns the
// verifier unchanged. The verifier is validated first.
func ChallengeFromVerifier(verifier string, method Method) (string, error) {
	if err := ValidateVerifier(verifier); err != nil {
		return "", err
	}
	switch method {
	case MethodS256:
		hash := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(hash[:]), nil
	case MethodPlain:
		return verifier, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

// VerifyChallenge reports whether the verifier matches the challenge. It
// never returns an error: malformed input and a genuine mismatch are both
// false, so callers cannot be used as a format oracle. The comparison is
// constant-time.
func VerifyChallenge(verifier, challenge string, method Method) bool {
	if err := ValidateChallenge(challenge, method); err != nil {
		return false
	}
	expected, err := ChallengeFromVerifier(verifier, method)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}

// ValidateVerifier enforces the RFC 7636 length bounds and character set.
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return fmt.Errorf("%w: length %d", ErrInvalidVerifier, len(verifier))
	}
	for i := 0; i < len(verifier); i++ {
		if !isVerifierChar(verifier[i]) {
			return fmt.Errorf("%w: character %q", ErrInvalidVerifier, verifier[i])
		}
	}
	return nil
}

// ValidateChallenge enforces the challenge format for the given method.
// An S256 challenge is exactly 43 characters of the base64url alphabet;
// a plain challenge must be a well-formed verifier.
func ValidateChallenge(challenge string, method Method) error {
	switch method {
	case MethodS256:
		if len(challenge) != s256ChallengeLength {
			return fmt.Errorf("%w: length %d", ErrInvalidChallenge, len(challenge))
		}
		for i := 0; i < len(challenge); i++ {
			if !isBase64URLChar(challenge[i]) {
				return fmt.Errorf("%w: character %q", ErrInvalidChallenge, challenge[i])
			}
		}
		return nil
	case MethodPlain:
		if err := ValidateVerifier(challenge); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}

func isVerifierChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}

func isBase64URLChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	}
	return false
}

// Package auth implements the identity protocol of the service: deriving
// account lookup keys from credentials, issuing and verifying bearer
// tokens, and the HTTP gate that protects per-user routes.
//
// TOKEN STRUCTURE (three base64url segments separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   the user's credential as canonical JSON (sorted keys)
//	- Signature: HMAC-SHA256(header + "." + payload, signingKey)
//
// DETERMINISM:
// Tokens carry no iat/exp/jti claims. Issuing a token twice for the same
// credential yields the same string, and the collections handlers rely on
// that: the token string is the partition key for a user's inventory and
// favorites. Adding a nonce or timestamp here would orphan stored data.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	minSecretLen = 16
	algorithm    = "HS256"
	hkdfInfo     = "gat-accounts token signing"
)

// ErrInvalidToken is the category shared by every verification failure.
// Callers that only need "valid or not" check errors.Is(err, ErrInvalidToken).
var ErrInvalidToken = errors.New("auth: invalid token")

var (
	ErrMalformedToken       = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrSignatureMismatch    = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported algorithm", ErrInvalidToken)
)

// TokenService issues and verifies tokens.
//
// The signing key is derived once, at construction, from the process-wide
// secret and never changes afterwards, so a single TokenService is safe to
// share between all request goroutines without locking.
type TokenService struct {
	key    []byte
	parser *jwt.Parser
}

// NewTokenService creates a TokenService from the configured secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
//
// The HMAC key is not the secret itself: it is expanded from it with
// HKDF-SHA256, so the raw secret is never fed directly to the MAC.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLen)
	}

	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("auth: deriving signing key: %w", err)
	}

	return &TokenService{
		key: key,
		parser: jwt.NewParser(
			// The payload is an opaque credential, not registered claims:
			// a user field named "exp" must not be read as an expiry.
			jwt.WithoutClaimsValidation(),
			// Reject non-canonical base64 so that every character of the
			// signature segment matters.
			jwt.WithStrictDecoding(),
			// Numbers stay exact; float64 would merge 2^53 and 2^53+1.
			jwt.WithJSONNumber(),
		),
	}, nil
}

// Issue creates the token for a credential.
//
// Returns an *EncodingError if the credential has no canonical form.
func (s *TokenService) Issue(cred Credential) (string, error) {
	norm, err := normalize(cred)
	if err != nil {
		return "", err
	}

	// jwt.MapClaims marshals with encoding/json, which sorts map keys, and
	// numbers print as canonical decimals, so the payload segment is canonical.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(norm))
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify checks a token and returns the credential it carries.
//
// Numbers come back as float64 when that is exact and as json.Number
// otherwise, so Verify(Issue(c)) keeps every digit of c.
//
// An invalid token is an expected outcome, reported as one of
// ErrMalformedToken, ErrUnsupportedAlgorithm or ErrSignatureMismatch
// (all matching ErrInvalidToken).
//
// ALGORITHM CONFUSION:
// The header's "alg" is attacker-controlled. Anything other than HS256,
// including "none", is rejected before the signature is looked at.
// The signature itself is compared with hmac.Equal inside golang-jwt,
// which runs in constant time.
func (s *TokenService) Verify(tokenStr string) (Credential, error) {
	if strings.Count(tokenStr, ".") != 2 {
		return nil, ErrMalformedToken
	}

	token, err := s.parser.ParseWithClaims(tokenStr, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != algorithm {
			return nil, ErrUnsupportedAlgorithm
		}
		return s.key, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformedToken
	}

	norm, err := normalize(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	cred, _ := plain(norm).(map[string]any)
	return Credential(cred), nil
}

// classify maps golang-jwt's error chain onto this package's sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return ErrUnsupportedAlgorithm
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureMismatch
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Missing or unknown "alg" header.
		return ErrUnsupportedAlgorithm
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

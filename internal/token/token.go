package token

import (
	"errors"
	"fmt"
	"time"

	"videoverse/video-api/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// --- Error Definitions ---
var (
	// ErrMalformed means the token is structurally unparseable.
	ErrMalformed = fmt.Errorf("%w: malformed capability token", domain.ErrSecurity)
	// ErrBadSignature means the payload was tampered with or signed with a
	// different key.
	ErrBadSignature = fmt.Errorf("%w: capability token signature invalid", domain.ErrSecurity)
	// ErrExpired means the embedded expiry passed or the token outlived the
	// caller's maxAge.
	ErrExpired = fmt.Errorf("%w: capability token expired", domain.ErrNotFound)
)

// Service issues and verifies capability tokens: compact signed values
// binding one asset id to an expiry instant. Tokens are self-contained; no
// server-side state backs them, so a leaked token can only be revoked by
// rotating the signing key, which invalidates every outstanding token.
type Service interface {
	// Issue binds assetID to an expiry of now+ttl under the process-wide key.
	Issue(assetID string, ttl time.Duration) (string, error)
	// Verify returns the asset id carried by a valid token. maxAge <= 0
	// disables the age cap; the embedded expiry is always enforced.
	Verify(tokenString string, maxAge time.Duration) (string, error)
}

// capabilityClaims is the signed payload: asset id plus the registered
// expiry/issued-at instants.
type capabilityClaims struct {
	AssetID string `json:"aid"`
	jwt.RegisteredClaims
}

// tokenService implements Service with HMAC-SHA256 signatures.
type tokenService struct {
	secret []byte
	now    func() time.Time
}

// NewService creates the capability token service. The secret is process-wide
// configuration, shared between issuance and verification.
func NewService(secret string) Service {
	if secret == "" {
		panic("capability token secret cannot be empty") // Critical configuration
	}
	return &tokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue creates a signed token granting retrieval of assetID until now+ttl.
func (s *tokenService) Issue(assetID string, ttl time.Duration) (string, error) {
	if assetID == "" {
		return "", domain.ValidationErrorf("asset id is required")
	}
	if ttl <= 0 {
		return "", domain.ValidationErrorf("ttl must be positive")
	}

	now := s.now()
	claims := &capabilityClaims{
		AssetID: assetID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   assetID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "videoverse",
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates the signature and expiry. Verification is a pure function
// of the token and the shared key.
func (s *tokenService) Verify(tokenString string, maxAge time.Duration) (string, error) {
	claims := &capabilityClaims{}
	parser := jwt.NewParser(jwt.WithTimeFunc(s.now))
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrBadSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", ErrMalformed
		default:
			return "", ErrBadSignature
		}
	}
	if !parsed.Valid || claims.AssetID == "" {
		return "", ErrMalformed
	}

	// The embedded expiry already passed the library check; additionally cap
	// the total token age from its issued-at instant.
	if maxAge > 0 {
		if claims.IssuedAt == nil || s.now().Sub(claims.IssuedAt.Time) > maxAge {
			return "", ErrExpired
		}
	}

	return claims.AssetID, nil
}

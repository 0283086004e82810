package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"evcharge/internal/model"
)

// TokenLifetime is how long an issued token stays valid.
const TokenLifetime = 24 * time.Hour

var (
	// ErrTokenMalformed is returned when a token cannot be decoded or carries bad claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenBadSignature is returned when the signature does not match.
	ErrTokenBadSignature = errors.New("token signature invalid")
	// ErrTokenExpired is returned once the recorded expiration has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Claims represents JWT claims.
type Claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims

	userID uuid.UUID
}

// Principal returns the snapshot embedded in the token.
func (c *Claims) Principal() Principal {
	return Principal{ID: c.userID, Email: c.Email, Role: c.Role}
}

// TokenCodec handles token issuance and verification with a single HMAC secret.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a codec signing with the given secret.
func NewTokenCodec(secret string, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue signs a token for p that expires TokenLifetime from now.
func (c *TokenCodec) Issue(p Principal) (string, error) {
	if !p.Role.Valid() {
		return "", fmt.Errorf("issue token: unknown role %q", p.Role)
	}
	now := c.now()
	claims := &Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks signature and expiry and returns the claims.
//
// An expired token reports ErrTokenExpired even when its signature is also
// wrong.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return c.secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			if token != nil {
				if claims, ok := token.Claims.(*Claims); ok && c.expired(claims) {
					return nil, ErrTokenExpired
				}
			}
			return nil, ErrTokenBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if !canonicalSignature(tokenString) {
		if c.expired(claims) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenBadSignature
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	if c.expired(claims) {
		return nil, ErrTokenExpired
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrTokenMalformed)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenMalformed, claims.Role)
	}
	claims.userID = userID

	return claims, nil
}

// canonicalSignature rejects signature text whose unused trailing bits are
// set. The parser decodes leniently, so such text still yields the same MAC.
func canonicalSignature(tokenString string) bool {
	i := strings.LastIndexByte(tokenString, '.')
	if i < 0 {
		return false
	}
	_, err := base64.RawURLEncoding.Strict().DecodeString(tokenString[i+1:])
	return err == nil
}

func (c *TokenCodec) expired(claims *Claims) bool {
	return claims.ExpiresAt != nil && !c.now().Before(claims.ExpiresAt.Time)
}

// TTL returns how long the token has left before it expires.
func (c *TokenCodec) TTL(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	if d := claims.ExpiresAt.Time.Sub(c.now()); d > 0 {
		return d
	}
	return 0
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
)

// Scopes a token may carry
const (
	ScopeValidate = "validate"
	ScopeSanitize = "sanitize"
)

// ErrMissingSecret is returned when the service has no signing key
var ErrMissingSecret = errors.New("jwt secret is required")

// Claims are the claims of a pathsec API token
type Claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope. A token without scopes
// grants every scope.
func (c *Claims) HasScope(scope string) bool {
	return len(c.Scopes) == 0 || lo.Contains(c.Scopes, scope)
}

// TokenService issues and validates HS256 API tokens
type TokenService struct {
	secretKey []byte
	tokenTTL  time.Duration
	issuer    string
}

// NewTokenService creates a TokenService with the given secret key and token TTL
func NewTokenService(secretKey string, tokenTTL time.Duration) (*TokenService, error) {
	if secretKey == "" {
		return nil, ErrMissingSecret
	}
	return &TokenService{
		secretKey: []byte(secretKey),
		tokenTTL:  tokenTTL,
		issuer:    "pathsec",
	}, nil
}

// GenerateToken issues a token for subject limited to scopes
func (s *TokenService) GenerateToken(subject string, scopes []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken validates a token and returns its claims
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify exact signing method to prevent algorithm confusion attacks
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}

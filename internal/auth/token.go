// Package auth issues and validates the HS256 bearer tokens that carry
// tenant and actor context into the sync handlers. Verifying the upstream
// identity provider's credentials is out of scope; this package only handles
// the backend's own tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 30 * time.Minute

var (
	// ErrMissingSigningSecret indicates the manager was constructed without a secret.
	ErrMissingSigningSecret = errors.New("auth: signing secret must be provided")
	// ErrMissingSubjectClaim indicates a token without a user subject.
	ErrMissingSubjectClaim = errors.New("auth: subject claim must be provided")
	// ErrMissingTenantClaim indicates a token without a tenant identifier.
	ErrMissingTenantClaim = errors.New("auth: tenant claim must be provided")
)

// AccessClaims is the JWT payload carried by backend access tokens. Subject
// holds the stable user id.
type AccessClaims struct {
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManagerConfig configures the backend JWT manager.
type TokenManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenManager signs and validates backend access tokens.
type TokenManager struct {
	config TokenManagerConfig
	clock  func() time.Time
}

// NewTokenManager constructs a TokenManager with sane defaults.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{
		config: TokenManagerConfig{
			SigningSecret: append([]byte(nil), cfg.SigningSecret...),
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// Issue produces a signed access token and its expiry in seconds.
func (m *TokenManager) Issue(_ context.Context, claims AccessClaims) (string, int64, error) {
	if len(m.config.SigningSecret) == 0 {
		return "", 0, ErrMissingSigningSecret
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", 0, ErrMissingSubjectClaim
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		return "", 0, ErrMissingTenantClaim
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.config.TokenTTL).UTC()

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.Subject,
		Issuer:    m.config.Issuer,
		Audience:  []string{m.config.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// Validate ensures the token is well formed and returns its claims.
func (m *TokenManager) Validate(tokenString string) (AccessClaims, error) {
	if len(m.config.SigningSecret) == 0 {
		return AccessClaims{}, ErrMissingSigningSecret
	}

	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(
		strings.TrimSpace(tokenString),
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return m.config.SigningSecret, nil
		},
		jwt.WithAudience(m.config.Audience),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.clock),
	)
	if err != nil {
		return AccessClaims{}, err
	}
	if claims.Subject == "" {
		return AccessClaims{}, ErrMissingSubjectClaim
	}
	if claims.TenantID == "" {
		return AccessClaims{}, ErrMissingTenantClaim
	}
	return *claims, nil
}

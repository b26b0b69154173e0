package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maplecart/api/internal/domain"
)

const (
	defaultTokenTTL   = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour

	refreshTokenUse = "refresh"
)

var (
	// ErrTokenExpired signals that the provided access token has expired.
	ErrTokenExpired = errors.New("auth: access token expired")
	// ErrTokenInvalid signals that the provided access token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: access token invalid")
)

// Claims is the JWT payload carried by access and refresh tokens. Use is
// empty for access tokens and "refresh" for refresh tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	Use   string `json:"use,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	secret     []byte
	ttl        time.Duration
	refreshTTL time.Duration
	clock      func() time.Time
}

// IssuerOption customises TokenIssuer behaviour.
type IssuerOption func(*TokenIssuer)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) IssuerOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) IssuerOption {
	return func(t *TokenIssuer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer from the shared signing secret.
func NewTokenIssuer(secret string, opts ...IssuerOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	issuer := &TokenIssuer{
		secret:     []byte(secret),
		ttl:        defaultTokenTTL,
		refreshTTL: defaultRefreshTTL,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	return issuer, nil
}

// Issue signs an access token for the given user.
func (t *TokenIssuer) Issue(userID string, email string, role domain.Role) (string, time.Time, error) {
	now := t.clock()
	expires := now.Add(t.ttl)
	claims := Claims{
		Email: email,
		Role:  string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// IssueRefresh signs a long-lived refresh token. It carries no role; the
// refresh flow re-reads the account, so role changes take effect on the
// next refresh.
func (t *TokenIssuer) IssueRefresh(userID string, email string) (string, time.Time, error) {
	now := t.clock()
	expires := now.Add(t.refreshTTL)
	claims := Claims{
		Email: email,
		Use:   refreshTokenUse,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign refresh token: %w", err)
	}
	return signed, expires, nil
}

// VerifyRefresh validates a refresh token and returns the user id and email
// it was issued for. Access tokens are rejected.
func (t *TokenIssuer) VerifyRefresh(tokenStr string) (string, string, error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return "", "", err
	}
	if claims.Use != refreshTokenUse || claims.Subject == "" {
		return "", "", ErrTokenInvalid
	}
	return claims.Subject, claims.Email, nil
}

// Verify parses and validates an access token, returning the identity it carries.
func (t *TokenIssuer) Verify(tokenStr string) (*Identity, error) {
	claims, err := t.parse(tokenStr)
	if err != nil {
		return nil, err
	}

	role := domain.Role(claims.Role)
	if claims.Use != "" || claims.Subject == "" || !domain.ValidRole(role) {
		return nil, ErrTokenInvalid
	}
	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

func (t *TokenIssuer) parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock),
	)
	_, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

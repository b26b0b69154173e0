package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/maplecart/api/internal/domain"
)

const defaultGuestHeader = "X-Guest-Session"

// Verifier validates an access token and returns the identity it carries.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// Authenticator wires access-token verification into HTTP middleware.
type Authenticator struct {
	verifier    Verifier
	guestHeader string
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithGuestHeader overrides the header carrying the guest session identifier.
func WithGuestHeader(header string) Option {
	return func(a *Authenticator) {
		header = strings.TrimSpace(header)
		if header != "" {
			a.guestHeader = header
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier Verifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:    verifier,
		guestHeader: defaultGuestHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireAuth verifies the Authorization bearer token and, when roles are
// given, ensures the identity holds one of them. Missing or invalid tokens
// produce 401; a valid token without the required role produces 403.
func (a *Authenticator) RequireAuth(allowedRoles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.authenticate(r)
			if err != nil {
				respondUnauthenticated(w, err)
				return
			}
			if len(allowedRoles) > 0 && !identity.HasAnyRole(allowedRoles...) {
				respondAuthError(w, http.StatusForbidden, "forbidden", "identity does not have required role")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuth attaches the identity when a valid bearer token is present and
// otherwise records the guest session header. Invalid tokens are still
// rejected so a caller never silently degrades to guest access.
func (a *Authenticator) OptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if guestID := strings.TrimSpace(r.Header.Get(a.guestHeader)); guestID != "" {
				ctx = WithGuestID(ctx, guestID)
			}

			if _, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
				identity, err := a.authenticate(r)
				if err != nil {
					respondUnauthenticated(w, err)
					return
				}
				ctx = WithIdentity(ctx, identity)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) authenticate(r *http.Request) (*Identity, error) {
	tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, ErrTokenInvalid
	}
	if a == nil || a.verifier == nil {
		return nil, errors.New("auth: verifier unavailable")
	}
	return a.verifier.Verify(tokenStr)
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondUnauthenticated(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "access token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
	}
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

package auth

import (
	"context"
	"strings"

	"github.com/maplecart/api/internal/domain"
)

// Identity captures the authenticated principal extracted from an access token.
type Identity struct {
	UserID string
	Email  string
	Role   domain.Role
}

// HasRole reports whether the identity holds the requested role. Admin
// satisfies every role check.
func (i *Identity) HasRole(role domain.Role) bool {
	if i == nil {
		return false
	}
	if i.Role == domain.RoleAdmin {
		return true
	}
	return i.Role == role
}

// HasAnyRole reports whether the identity holds any of the provided roles.
func (i *Identity) HasAnyRole(roles ...domain.Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type contextKey string

const (
	identityContextKey contextKey = "github.com/maplecart/api/internal/platform/auth/identity"
	guestContextKey    contextKey = "github.com/maplecart/api/internal/platform/auth/guest"
)

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// WithGuestID stores the guest session identifier within the context.
func WithGuestID(ctx context.Context, guestID string) context.Context {
	guestID = strings.TrimSpace(guestID)
	if guestID == "" {
		return ctx
	}
	return context.WithValue(ctx, guestContextKey, guestID)
}

// GuestIDFromContext retrieves the guest session identifier, if any.
func GuestIDFromContext(ctx context.Context) (string, bool) {
	guestID, ok := ctx.Value(guestContextKey).(string)
	if !ok || guestID == "" {
		return "", false
	}
	return guestID, true
}

// CartOwnerFromContext resolves the cart principal for the request,
// preferring the authenticated user over a guest session.
func CartOwnerFromContext(ctx context.Context) (domain.CartOwner, bool) {
	if identity, ok := IdentityFromContext(ctx); ok {
		return domain.UserCartOwner(identity.UserID), true
	}
	if guestID, ok := GuestIDFromContext(ctx); ok {
		return domain.GuestCartOwner(guestID), true
	}
	return domain.CartOwner{}, false
}

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

// MeHandlers exposes the authenticated user's profile and wishlist.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
	clock func() time.Time
}

// NewMeHandlers constructs handlers for the /me endpoints.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{
		authn: authn,
		users: users,
		clock: time.Now,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getProfile)
	r.Patch("/", h.patchProfile)
	r.Get("/wishlist", h.listWishlist)
	r.Post("/wishlist", h.addWishlist)
	r.Delete("/wishlist/{productId}", h.removeWishlist)
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(ctx, identity.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

type patchProfileRequest struct {
	Name      *string          `json:"name"`
	Addresses *[]addressPayload `json:"addresses"`
}

func (h *MeHandlers) patchProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req patchProfileRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpdateProfileCommand{UserID: identity.UserID, Name: req.Name}
	if req.Addresses != nil {
		addresses := make([]domain.Address, 0, len(*req.Addresses))
		for _, address := range *req.Addresses {
			addresses = append(addresses, address.toDomain())
		}
		cmd.Addresses = &addresses
	}

	user, err := h.users.UpdateProfile(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

func (h *MeHandlers) listWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	products, err := h.users.ListWishlist(ctx, identity.UserID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	now := h.clock().UTC()
	items := make([]productPayload, 0, len(products))
	for _, product := range products {
		items = append(items, buildProductPayload(product, now))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type wishlistRequest struct {
	ProductID string `json:"product_id"`
}

func (h *MeHandlers) addWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req wishlistRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	user, err := h.users.AddWishlist(ctx, identity.UserID, req.ProductID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

func (h *MeHandlers) removeWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	user, err := h.users.RemoveWishlist(ctx, identity.UserID, chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

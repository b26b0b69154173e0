package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

// AdminUserHandlers lets administrators manage account roles.
type AdminUserHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

func NewAdminUserHandlers(authn *auth.Authenticator, users services.UserService) *AdminUserHandlers {
	return &AdminUserHandlers{authn: authn, users: users}
}

// Routes wires /admin/users onto the provided router.
func (h *AdminUserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.RoleAdmin))
	}
	r.Get("/{userId}", h.getUser)
	r.Patch("/{userId}/role", h.setRole)
}

func (h *AdminUserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.users.Get(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (h *AdminUserHandlers) setRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req setRoleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	user, err := h.users.SetRole(ctx, services.SetRoleCommand{
		UserID: chi.URLParam(r, "userId"),
		Role:   domain.Role(req.Role),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildUserPayload(user))
}

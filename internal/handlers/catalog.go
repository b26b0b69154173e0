package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

// CatalogHandlers exposes the public product catalog and reviews.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	clock   func() time.Time
}

// NewCatalogHandlers constructs handlers for the public /products endpoints.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{
		authn:   authn,
		catalog: catalog,
		clock:   time.Now,
	}
}

// Routes wires the /products endpoints onto the provided router. Listing and
// reading are public; posting a review requires authentication.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(public chi.Router) {
		// Optional auth so managers see hidden products on the public reads.
		if h.authn != nil {
			public.Use(h.authn.OptionalAuth())
		}
		public.Get("/", h.listProducts)
		public.Get("/{productId}", h.getProduct)
		public.Get("/{productId}/reviews", h.listReviews)
	})

	r.Group(func(protected chi.Router) {
		if h.authn != nil {
			protected.Use(h.authn.RequireAuth())
		}
		protected.Post("/{productId}/reviews", h.postReview)
	})
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.ProductListFilter{Pagination: parsePagination(r)}
	if category := strings.TrimSpace(query.Get("category")); category != "" {
		filter.Category = &category
	}
	if raw := strings.TrimSpace(query.Get("min_price")); raw != "" {
		min, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed min_price", http.StatusBadRequest))
			return
		}
		filter.PriceRange.From = &min
	}
	if raw := strings.TrimSpace(query.Get("max_price")); raw != "" {
		max, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed max_price", http.StatusBadRequest))
			return
		}
		filter.PriceRange.To = &max
	}

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	now := h.clock().UTC()
	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product, now))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Managers may inspect inactive products.
	includeHidden := false
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		includeHidden = identity.HasAnyRole(domain.RoleProductManager, domain.RoleSalesManager)
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productId"), includeHidden)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product, h.clock().UTC()))
}

func (h *CatalogHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := h.catalog.ListReviews(ctx, chi.URLParam(r, "productId"), parsePagination(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]reviewPayload, 0, len(page.Items))
	for _, review := range page.Items {
		items = append(items, buildReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

type postReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *CatalogHandlers) postReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req postReviewRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	review, err := h.catalog.AddReview(ctx, services.AddReviewCommand{
		ProductID: chi.URLParam(r, "productId"),
		UserID:    identity.UserID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildReviewPayload(review))
}

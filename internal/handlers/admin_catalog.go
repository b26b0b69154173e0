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

// AdminCatalogHandlers exposes catalog management for product managers.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	clock   func() time.Time
}

// NewAdminCatalogHandlers constructs the /admin/products handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{
		authn:   authn,
		catalog: catalog,
		clock:   time.Now,
	}
}

// Routes wires the /admin/products endpoints onto the provided router.
// Catalog maintenance belongs to product managers while price and
// discount changes belong to sales managers; admin passes both checks.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	passthrough := func(next http.Handler) http.Handler { return next }
	catalog, pricing, either := passthrough, passthrough, passthrough
	if h.authn != nil {
		catalog = h.authn.RequireAuth(domain.RoleProductManager)
		pricing = h.authn.RequireAuth(domain.RoleSalesManager)
		either = h.authn.RequireAuth(domain.RoleProductManager, domain.RoleSalesManager)
	}
	r.With(either).Get("/", h.listProducts)
	r.With(catalog).Post("/", h.createProduct)
	r.With(catalog).Patch("/{productId}", h.updateProduct)
	r.With(catalog).Delete("/{productId}", h.deleteProduct)
	r.With(catalog).Post("/{productId}/stock", h.adjustStock)
	r.With(pricing).Post("/{productId}/price", h.setPrice)
	r.With(pricing).Post("/{productId}/discount", h.setDiscount)
}

func (h *AdminCatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		IncludeHidden: true,
		Pagination:    parsePagination(r),
	})
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

type createProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	Stock       int    `json:"stock"`
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createProductRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Currency:    req.Currency,
		Stock:       req.Stock,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product, h.clock().UTC()))
}

type updateProductRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Price       *int64  `json:"price"`
	Status      *string `json:"status"`
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateProductRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:   chi.URLParam(r, "productId"),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
	}
	if req.Status != nil {
		status := domain.ProductStatus(*req.Status)
		cmd.Status = &status
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product, h.clock().UTC()))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productId")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPriceRequest struct {
	Price int64 `json:"price"`
}

func (h *AdminCatalogHandlers) setPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req setPriceRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID: chi.URLParam(r, "productId"),
		Price:     &req.Price,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product, h.clock().UTC()))
}

type setDiscountRequest struct {
	Percent   int        `json:"percent"`
	ExpiresAt *time.Time `json:"expires_at"`
	Clear     bool       `json:"clear"`
}

func (h *AdminCatalogHandlers) setDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req setDiscountRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.SetDiscount(ctx, services.SetDiscountCommand{
		ProductID: chi.URLParam(r, "productId"),
		Percent:   req.Percent,
		ExpiresAt: req.ExpiresAt,
		Clear:     req.Clear,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product, h.clock().UTC()))
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

func (h *AdminCatalogHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adjustStockRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.AdjustStock(ctx, chi.URLParam(r, "productId"), req.Delta)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product, h.clock().UTC()))
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/services"
)

func TestCatalogHandlersListProductsAppliesFilters(t *testing.T) {
	service := &stubCatalogService{
		listProductsFunc: func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			if filter.Category == nil || *filter.Category != "mugs" {
				t.Fatalf("expected category filter, got %+v", filter.Category)
			}
			if filter.PriceRange.From == nil || *filter.PriceRange.From != 1000 {
				t.Fatalf("expected min price 1000, got %+v", filter.PriceRange.From)
			}
			if filter.PriceRange.To == nil || *filter.PriceRange.To != 5000 {
				t.Fatalf("expected max price 5000, got %+v", filter.PriceRange.To)
			}
			if filter.IncludeHidden {
				t.Fatalf("public listing must not include hidden products")
			}
			return domain.CursorPage[services.Product]{
				Items: []services.Product{{
					ID:       "prd_1",
					Name:     "Maple Mug",
					Category: "mugs",
					Price:    1500,
					Currency: "EUR",
					Status:   domain.ProductStatusActive,
				}},
				NextPageToken: "next",
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/products", NewCatalogHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodGet, "/products?category=mugs&min_price=1000&max_price=5000", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Items         []productPayload `json:"items"`
		NextPageToken string           `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "prd_1" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
	if resp.NextPageToken != "next" {
		t.Fatalf("expected next page token, got %q", resp.NextPageToken)
	}
}

func TestCatalogHandlersListProductsRejectsMalformedPrice(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/products", NewCatalogHandlers(nil, &stubCatalogService{}).Routes)

	req := httptest.NewRequest(http.MethodGet, "/products?min_price=abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr, "invalid_request")
}

func TestCatalogHandlersGetProductHiddenForManagers(t *testing.T) {
	discountExpiry := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	service := &stubCatalogService{
		getProductFunc: func(ctx context.Context, productID string, includeHidden bool) (services.Product, error) {
			if productID != "prd_1" {
				t.Fatalf("unexpected product id %q", productID)
			}
			if !includeHidden {
				return services.Product{}, services.ErrCatalogNotFound
			}
			return services.Product{
				ID:       "prd_1",
				Name:     "Maple Mug",
				Price:    10000,
				Currency: "EUR",
				Status:   domain.ProductStatusInactive,
				Discount: &domain.Discount{Percent: 20, ExpiresAt: &discountExpiry},
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/products", NewCatalogHandlers(nil, service).Routes)

	// Anonymous callers cannot see an inactive product.
	req := httptest.NewRequest(http.MethodGet, "/products/prd_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for anonymous caller, got %d", rr.Code)
	}

	// A product manager sees it, discount applied to the effective price.
	req = httptest.NewRequest(http.MethodGet, "/products/prd_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UserID: "usr_pm", Role: domain.RoleProductManager}))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 for manager, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp productPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "inactive" {
		t.Fatalf("expected inactive status, got %q", resp.Status)
	}
}

func TestCatalogHandlersPostReviewRequiresIdentity(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/products", NewCatalogHandlers(nil, &stubCatalogService{}).Routes)

	req := httptest.NewRequest(http.MethodPost, "/products/prd_1/reviews", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCatalogHandlersPostReviewSuccess(t *testing.T) {
	service := &stubCatalogService{
		addReviewFunc: func(ctx context.Context, cmd services.AddReviewCommand) (services.Review, error) {
			if cmd.ProductID != "prd_1" || cmd.UserID != "usr_1" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			if cmd.Rating != 4 {
				t.Fatalf("unexpected rating %d", cmd.Rating)
			}
			return services.Review{ID: "rev_1", ProductID: cmd.ProductID, UserID: cmd.UserID, Rating: cmd.Rating, Comment: cmd.Comment}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/products", NewCatalogHandlers(nil, service).Routes)

	req := authedRequest(http.MethodPost, "/products/prd_1/reviews", `{"rating":4,"comment":"solid mug"}`, &auth.Identity{UserID: "usr_1", Role: domain.RoleCustomer})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp reviewPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "rev_1" || resp.Rating != 4 {
		t.Fatalf("unexpected payload %+v", resp)
	}
}

func TestCatalogHandlersListReviews(t *testing.T) {
	service := &stubCatalogService{
		listReviewsFunc: func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[services.Review], error) {
			if pager.PageSize != 10 || pager.PageToken != "tok" {
				t.Fatalf("unexpected pagination %+v", pager)
			}
			return domain.CursorPage[services.Review]{
				Items: []services.Review{{ID: "rev_1", ProductID: productID, Rating: 5}},
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/products", NewCatalogHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodGet, "/products/prd_1/reviews?page_size=10&page_token=tok", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

type stubCatalogService struct {
	listProductsFunc  func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error)
	getProductFunc    func(ctx context.Context, productID string, includeHidden bool) (services.Product, error)
	createProductFunc func(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error)
	updateProductFunc func(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error)
	deleteProductFunc func(ctx context.Context, productID string) error
	setDiscountFunc   func(ctx context.Context, cmd services.SetDiscountCommand) (services.Product, error)
	adjustStockFunc   func(ctx context.Context, productID string, delta int) (services.Product, error)
	addReviewFunc     func(ctx context.Context, cmd services.AddReviewCommand) (services.Review, error)
	listReviewsFunc   func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[services.Review], error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFunc != nil {
		return s.listProductsFunc(ctx, filter)
	}
	return domain.CursorPage[services.Product]{}, errStubNotConfigured
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string, includeHidden bool) (services.Product, error) {
	if s.getProductFunc != nil {
		return s.getProductFunc(ctx, productID, includeHidden)
	}
	return services.Product{}, errStubNotConfigured
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createProductFunc != nil {
		return s.createProductFunc(ctx, cmd)
	}
	return services.Product{}, errStubNotConfigured
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateProductFunc != nil {
		return s.updateProductFunc(ctx, cmd)
	}
	return services.Product{}, errStubNotConfigured
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteProductFunc != nil {
		return s.deleteProductFunc(ctx, productID)
	}
	return errStubNotConfigured
}

func (s *stubCatalogService) SetDiscount(ctx context.Context, cmd services.SetDiscountCommand) (services.Product, error) {
	if s.setDiscountFunc != nil {
		return s.setDiscountFunc(ctx, cmd)
	}
	return services.Product{}, errStubNotConfigured
}

func (s *stubCatalogService) AdjustStock(ctx context.Context, productID string, delta int) (services.Product, error) {
	if s.adjustStockFunc != nil {
		return s.adjustStockFunc(ctx, productID, delta)
	}
	return services.Product{}, errStubNotConfigured
}

func (s *stubCatalogService) AddReview(ctx context.Context, cmd services.AddReviewCommand) (services.Review, error) {
	if s.addReviewFunc != nil {
		return s.addReviewFunc(ctx, cmd)
	}
	return services.Review{}, errStubNotConfigured
}

func (s *stubCatalogService) ListReviews(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[services.Review], error) {
	if s.listReviewsFunc != nil {
		return s.listReviewsFunc(ctx, productID, pager)
	}
	return domain.CursorPage[services.Review]{}, errStubNotConfigured
}

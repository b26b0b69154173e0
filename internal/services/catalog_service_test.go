package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

func newTestCatalogService(t *testing.T, deps CatalogServiceDeps) CatalogService {
	t.Helper()
	if deps.Products == nil {
		deps.Products = &stubProductRepo{}
	}
	if deps.Reviews == nil {
		deps.Reviews = &stubReviewRepo{}
	}
	svc, err := NewCatalogService(deps)
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc
}

func TestCatalogServiceCreateProductDefaults(t *testing.T) {
	now := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	var inserted domain.Product
	products := &stubProductRepo{insertFn: func(_ context.Context, product domain.Product) error {
		inserted = product
		return nil
	}}

	svc := newTestCatalogService(t, CatalogServiceDeps{
		Products:    products,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "testid" },
	})

	product, err := svc.CreateProduct(context.Background(), CreateProductCommand{
		Name:  "Mechanical Keyboard",
		Price: 12000,
		Stock: 5,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.ID != "prd_testid" {
		t.Fatalf("unexpected id %s", product.ID)
	}
	if inserted.Status != domain.ProductStatusActive {
		t.Fatalf("new products must start active, got %s", inserted.Status)
	}
	if inserted.Currency != "EUR" {
		t.Fatalf("expected default currency EUR, got %s", inserted.Currency)
	}
}

func TestCatalogServiceCreateProductValidates(t *testing.T) {
	svc := newTestCatalogService(t, CatalogServiceDeps{})

	cases := []CreateProductCommand{
		{Name: "", Price: 100},
		{Name: "X", Price: 0},
		{Name: "X", Price: 100, Stock: -1},
	}
	for _, cmd := range cases {
		if _, err := svc.CreateProduct(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("cmd %+v: expected invalid input, got %v", cmd, err)
		}
	}
}

func TestCatalogServiceGetProductHidesInactive(t *testing.T) {
	products := &stubProductRepo{findByIDFn: func(_ context.Context, productID string) (domain.Product, error) {
		return domain.Product{ID: productID, Status: domain.ProductStatusInactive}, nil
	}}
	svc := newTestCatalogService(t, CatalogServiceDeps{Products: products})

	if _, err := svc.GetProduct(context.Background(), "prd_1", false); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found for public caller, got %v", err)
	}

	product, err := svc.GetProduct(context.Background(), "prd_1", true)
	if err != nil {
		t.Fatalf("managers must see hidden products: %v", err)
	}
	if product.Status != domain.ProductStatusInactive {
		t.Fatalf("unexpected status %s", product.Status)
	}
}

func TestCatalogServiceDeleteProductSoftDeletesOrdered(t *testing.T) {
	ordered := true
	var deleted, deactivated bool
	products := &stubProductRepo{
		findByIDFn: func(_ context.Context, productID string) (domain.Product, error) {
			return domain.Product{ID: productID, Ordered: ordered, Status: domain.ProductStatusActive}, nil
		},
		deleteFn: func(context.Context, string) error {
			deleted = true
			return nil
		},
		markInactiveFn: func(context.Context, string, time.Time) error {
			deactivated = true
			return nil
		},
	}
	svc := newTestCatalogService(t, CatalogServiceDeps{Products: products})

	if err := svc.DeleteProduct(context.Background(), "prd_1"); err != nil {
		t.Fatalf("delete ordered product: %v", err)
	}
	if deleted || !deactivated {
		t.Fatalf("ordered products must be deactivated, not deleted (deleted=%v deactivated=%v)", deleted, deactivated)
	}

	ordered = false
	deleted, deactivated = false, false
	if err := svc.DeleteProduct(context.Background(), "prd_1"); err != nil {
		t.Fatalf("delete unordered product: %v", err)
	}
	if !deleted || deactivated {
		t.Fatalf("unordered products must be removed (deleted=%v deactivated=%v)", deleted, deactivated)
	}
}

func TestCatalogServiceSetDiscountBounds(t *testing.T) {
	now := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	products := &stubProductRepo{findByIDFn: func(_ context.Context, productID string) (domain.Product, error) {
		return domain.Product{ID: productID, Price: 10000, Status: domain.ProductStatusActive}, nil
	}}
	svc := newTestCatalogService(t, CatalogServiceDeps{
		Products: products,
		Clock:    func() time.Time { return now },
	})

	for _, percent := range []int{0, -5, 91, 200} {
		_, err := svc.SetDiscount(context.Background(), SetDiscountCommand{ProductID: "prd_1", Percent: percent})
		if !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("percent %d: expected invalid input, got %v", percent, err)
		}
	}

	past := now.Add(-time.Hour)
	_, err := svc.SetDiscount(context.Background(), SetDiscountCommand{ProductID: "prd_1", Percent: 20, ExpiresAt: &past})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for past expiry, got %v", err)
	}

	future := now.Add(48 * time.Hour)
	product, err := svc.SetDiscount(context.Background(), SetDiscountCommand{ProductID: "prd_1", Percent: 20, ExpiresAt: &future})
	if err != nil {
		t.Fatalf("set discount: %v", err)
	}
	if product.EffectivePrice(now) != 8000 {
		t.Fatalf("expected discounted price 8000, got %d", product.EffectivePrice(now))
	}

	cleared, err := svc.SetDiscount(context.Background(), SetDiscountCommand{ProductID: "prd_1", Clear: true})
	if err != nil {
		t.Fatalf("clear discount: %v", err)
	}
	if cleared.Discount != nil {
		t.Fatalf("expected discount removed")
	}
}

func TestCatalogServiceAdjustStockMapsErrors(t *testing.T) {
	products := &stubProductRepo{adjustStockFn: func(context.Context, string, int, time.Time) (domain.Product, error) {
		return domain.Product{}, repositories.NewStockError(repositories.StockErrorInsufficient, "stock would go negative", nil)
	}}
	svc := newTestCatalogService(t, CatalogServiceDeps{Products: products})

	if _, err := svc.AdjustStock(context.Background(), "prd_1", -10); !errors.Is(err, ErrCatalogInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := svc.AdjustStock(context.Background(), "prd_1", 0); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for zero delta, got %v", err)
	}
}

func TestCatalogServiceAddReviewSanitizesComment(t *testing.T) {
	var stored domain.Review
	reviews := &stubReviewRepo{upsertFn: func(_ context.Context, review domain.Review) (domain.Review, error) {
		stored = review
		return review, nil
	}}
	svc := newTestCatalogService(t, CatalogServiceDeps{Reviews: reviews})

	_, err := svc.AddReview(context.Background(), AddReviewCommand{
		ProductID: "prd_1",
		UserID:    "usr_1",
		Rating:    4,
		Comment:   `Great keyboard <script>alert("x")</script> would buy again`,
	})
	if err != nil {
		t.Fatalf("add review: %v", err)
	}
	if strings.Contains(stored.Comment, "<script>") || strings.Contains(stored.Comment, "alert") {
		t.Fatalf("markup must be stripped, got %q", stored.Comment)
	}
	if !strings.Contains(stored.Comment, "Great keyboard") {
		t.Fatalf("text content must survive, got %q", stored.Comment)
	}
}

func TestCatalogServiceAddReviewValidatesRating(t *testing.T) {
	svc := newTestCatalogService(t, CatalogServiceDeps{})

	for _, rating := range []int{0, 6, -1} {
		_, err := svc.AddReview(context.Background(), AddReviewCommand{ProductID: "prd_1", UserID: "usr_1", Rating: rating})
		if !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("rating %d: expected invalid input, got %v", rating, err)
		}
	}
}

func TestCatalogServiceAddReviewMapsMissingProduct(t *testing.T) {
	reviews := &stubReviewRepo{upsertFn: func(context.Context, domain.Review) (domain.Review, error) {
		return domain.Review{}, repositories.NewStockError(repositories.StockErrorProductNotFound, "no such product", nil)
	}}
	svc := newTestCatalogService(t, CatalogServiceDeps{Reviews: reviews})

	_, err := svc.AddReview(context.Background(), AddReviewCommand{ProductID: "prd_missing", UserID: "usr_1", Rating: 3})
	if !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

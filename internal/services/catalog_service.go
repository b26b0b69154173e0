package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	productIDPrefix = "prd_"

	maxDiscountPercent = 90
	maxReviewComment   = 2000
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product could not be located.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates duplicates or concurrent modification.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogInvalidState indicates the operation is not allowed in the
	// product's current state.
	ErrCatalogInvalidState = errors.New("catalog: invalid state")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products        repositories.ProductRepository
	Reviews         repositories.ReviewRepository
	DefaultCurrency string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	reviews  repositories.ReviewRepository
	currency string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	sanitize *bluemonday.Policy
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		products: deps.Products,
		reviews:  deps.Reviews,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		logger:   logger,
		sanitize: bluemonday.StrictPolicy(),
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// GetProduct loads a product. Inactive products are hidden from public
// callers but remain visible to managers via includeHidden.
func (s *catalogService) GetProduct(ctx context.Context, productID string, includeHidden bool) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if product.Status != domain.ProductStatusActive && !includeHidden {
		return Product{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, productID)
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	now := s.clock()
	product := domain.Product{
		ID:          productIDPrefix + s.newID(),
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Category:    strings.TrimSpace(cmd.Category),
		Price:       cmd.Price,
		Currency:    currency,
		Stock:       cmd.Stock,
		Status:      domain.ProductStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "catalog.product.created", map[string]any{"product": product.ID})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: name cannot be empty", ErrCatalogInvalidInput)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		product.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Category != nil {
		product.Category = strings.TrimSpace(*cmd.Category)
	}
	if cmd.Price != nil {
		if *cmd.Price <= 0 {
			return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Status != nil {
		switch *cmd.Status {
		case domain.ProductStatusActive, domain.ProductStatusInactive:
			product.Status = *cmd.Status
		default:
			return Product{}, fmt.Errorf("%w: unknown status %q", ErrCatalogInvalidInput, *cmd.Status)
		}
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

// DeleteProduct removes a product that was never ordered. Products referenced
// by past orders are marked inactive instead so order lines keep resolving.
func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	if product.Ordered {
		if err := s.products.MarkInactive(ctx, productID, s.clock()); err != nil {
			return s.mapRepositoryError(err)
		}
		s.logger(ctx, "catalog.product.deactivated", map[string]any{"product": productID})
		return nil
	}

	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "catalog.product.deleted", map[string]any{"product": productID})
	return nil
}

func (s *catalogService) SetDiscount(ctx context.Context, cmd SetDiscountCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	if cmd.Clear {
		product.Discount = nil
	} else {
		if cmd.Percent < 1 || cmd.Percent > maxDiscountPercent {
			return Product{}, fmt.Errorf("%w: discount percent must be between 1 and %d", ErrCatalogInvalidInput, maxDiscountPercent)
		}
		if cmd.ExpiresAt != nil && !cmd.ExpiresAt.After(s.clock()) {
			return Product{}, fmt.Errorf("%w: discount expiry must be in the future", ErrCatalogInvalidInput)
		}
		product.Discount = &domain.Discount{Percent: cmd.Percent, ExpiresAt: cmd.ExpiresAt}
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) AdjustStock(ctx context.Context, productID string, delta int) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if delta == 0 {
		return Product{}, fmt.Errorf("%w: stock delta cannot be zero", ErrCatalogInvalidInput)
	}

	product, err := s.products.AdjustStock(ctx, productID, delta, s.clock())
	if err != nil {
		return Product{}, s.mapStockError(err)
	}
	return product, nil
}

func (s *catalogService) AddReview(ctx context.Context, cmd AddReviewCommand) (Review, error) {
	if s.reviews == nil {
		return Review{}, errors.New("catalog service: review repository not configured")
	}
	productID := strings.TrimSpace(cmd.ProductID)
	userID := strings.TrimSpace(cmd.UserID)
	if productID == "" || userID == "" {
		return Review{}, fmt.Errorf("%w: product id and user id are required", ErrCatalogInvalidInput)
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrCatalogInvalidInput)
	}

	comment := strings.TrimSpace(s.sanitize.Sanitize(cmd.Comment))
	if len(comment) > maxReviewComment {
		return Review{}, fmt.Errorf("%w: comment exceeds %d characters", ErrCatalogInvalidInput, maxReviewComment)
	}

	now := s.clock()
	review, err := s.reviews.Upsert(ctx, domain.Review{
		ProductID: productID,
		UserID:    userID,
		UserName:  strings.TrimSpace(cmd.UserName),
		Rating:    cmd.Rating,
		Comment:   comment,
		UpdatedAt: now,
	})
	if err != nil {
		return Review{}, s.mapStockError(err)
	}
	return review, nil
}

func (s *catalogService) ListReviews(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[Review], error) {
	if s.reviews == nil {
		return domain.CursorPage[Review]{}, errors.New("catalog service: review repository not configured")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	page, err := s.reviews.ListByProduct(ctx, productID, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// mapStockError translates typed stock errors ahead of the generic mapping.
func (s *catalogService) mapStockError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %v", ErrCatalogInvalidState, err)
		default:
			return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	return err
}

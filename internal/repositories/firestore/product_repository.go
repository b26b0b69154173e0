package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalog entries. Stock mutations run inside
// Firestore transactions so concurrent orders never drive stock negative.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{provider: provider, base: base}, nil
}

// Insert creates a new product document, failing if the ID already exists.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product insert: id is required")
	}

	doc := fromDomainProduct(product)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		return tx.Create(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update overwrites an existing product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product update: id is required")
	}

	doc := fromDomainProduct(product)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("products.update", err)
	}
	return nil
}

// Delete removes the product document entirely.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product delete: id is required")
	}
	return r.base.Delete(ctx, id, firestore.Exists)
}

// MarkInactive flips the product to the inactive status without touching stock.
func (r *ProductRepository) MarkInactive(ctx context.Context, productID string, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product mark inactive: id is required")
	}
	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "status", Value: string(domain.ProductStatusInactive)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product find: id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs batch-loads products. Missing IDs are absent from the result map.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("products.findByIds", err)
	}

	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(productCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.findByIds", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		result[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return result, nil
}

// List returns a page of products matching the filter. When a price range is
// present the page is ordered by price, otherwise by document ID.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	query := client.Collection(productCollection).Query

	statuses := filter.Status
	if len(statuses) == 0 && !filter.IncludeHidden {
		statuses = []domain.ProductStatus{domain.ProductStatusActive}
	}
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		query = query.Where("status", "in", values)
	}
	if filter.Category != nil && strings.TrimSpace(*filter.Category) != "" {
		query = query.Where("category", "==", strings.TrimSpace(*filter.Category))
	}

	priced := filter.PriceRange.From != nil || filter.PriceRange.To != nil
	if priced {
		if filter.PriceRange.From != nil {
			query = query.Where("price", ">=", *filter.PriceRange.From)
		}
		if filter.PriceRange.To != nil {
			query = query.Where("price", "<=", *filter.PriceRange.To)
		}
		query = query.OrderBy("price", firestore.Asc)
	}
	query = query.OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeProductPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		if priced {
			query = query.StartAfter(decoded.Price, decoded.ID)
		} else {
			query = query.StartAfter(decoded.ID)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(products) > pageSize
	if hasMore {
		products = products[:pageSize]
	}
	var nextToken string
	if hasMore && len(products) > 0 {
		last := products[len(products)-1]
		encoded, err := encodeProductPageToken(productPageToken{ID: last.ID, Price: last.Price})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Product]{Items: products, NextPageToken: nextToken}, nil
}

// AdjustStock atomically changes the stock level by delta. Negative results
// are rejected with a typed stock error.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int, now time.Time) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product adjust stock: id is required")
	}

	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", id), err).WithProduct(id)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", id, err)
		}
		next := doc.Stock + delta
		if next < 0 {
			return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", id), nil).WithProduct(id)
		}
		doc.Stock = next
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Product{}, wrapStockError("products.adjustStock", err)
	}
	return updated, nil
}

// Document mapping ----------------------------------------------------------

type productDocument struct {
	Name              string     `firestore:"name"`
	Description       string     `firestore:"description"`
	Category          string     `firestore:"category"`
	Price             int64      `firestore:"price"`
	Currency          string     `firestore:"currency"`
	Stock             int        `firestore:"stock"`
	Status            string     `firestore:"status"`
	DiscountPercent   int        `firestore:"discountPercent"`
	DiscountExpiresAt *time.Time `firestore:"discountExpiresAt,omitempty"`
	RatingAverage     float64    `firestore:"ratingAverage"`
	RatingCount       int        `firestore:"ratingCount"`
	Ordered           bool       `firestore:"ordered"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func fromDomainProduct(p domain.Product) productDocument {
	doc := productDocument{
		Name:          strings.TrimSpace(p.Name),
		Description:   strings.TrimSpace(p.Description),
		Category:      strings.TrimSpace(p.Category),
		Price:         p.Price,
		Currency:      strings.ToUpper(strings.TrimSpace(p.Currency)),
		Stock:         p.Stock,
		Status:        string(p.Status),
		RatingAverage: p.RatingAverage,
		RatingCount:   p.RatingCount,
		Ordered:       p.Ordered,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
	if p.Discount != nil {
		doc.DiscountPercent = p.Discount.Percent
		if p.Discount.ExpiresAt != nil {
			expires := p.Discount.ExpiresAt.UTC()
			doc.DiscountExpiresAt = &expires
		}
	}
	return doc
}

func (d productDocument) toDomain(id string) domain.Product {
	p := domain.Product{
		ID:            id,
		Name:          d.Name,
		Description:   d.Description,
		Category:      d.Category,
		Price:         d.Price,
		Currency:      d.Currency,
		Stock:         d.Stock,
		Status:        domain.ProductStatus(d.Status),
		RatingAverage: d.RatingAverage,
		RatingCount:   d.RatingCount,
		Ordered:       d.Ordered,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.DiscountPercent > 0 {
		p.Discount = &domain.Discount{Percent: d.DiscountPercent, ExpiresAt: d.DiscountExpiresAt}
	}
	return p
}

type productPageToken struct {
	ID    string
	Price int64
}

func encodeProductPageToken(token productPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode product page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeProductPageToken(encoded string) (*productPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode product page token: %w", err)
	}
	var token productPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode product page token json: %w", err)
	}
	return &token, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}

package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
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

const reviewCollection = "reviews"

// ReviewRepository stores one review per (product, user). Writes keep the
// product's rating aggregate in step inside the same transaction.
type ReviewRepository struct {
	provider *pfirestore.Provider
	reviews  *pfirestore.BaseRepository[reviewDocument]
	products *pfirestore.BaseRepository[productDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		provider: provider,
		reviews:  pfirestore.NewBaseRepository[reviewDocument](provider, reviewCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
	}, nil
}

// Upsert writes the user's review for the product. The review document key is
// derived from the pair so a second submission replaces the first, and the
// product's rating average is recomputed from the aggregate.
func (r *ReviewRepository) Upsert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	productID := strings.TrimSpace(review.ProductID)
	userID := strings.TrimSpace(review.UserID)
	if productID == "" || userID == "" {
		return domain.Review{}, errors.New("review upsert: product id and user id are required")
	}

	docID := reviewDocID(productID, userID)
	var saved domain.Review

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		reviewRef, err := r.reviews.DocumentRef(ctx, docID)
		if err != nil {
			return err
		}
		productRef, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}

		productSnap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err).WithProduct(productID)
			}
			return err
		}
		var product productDocument
		if err := productSnap.DataTo(&product); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}

		previousRating := 0
		isUpdate := false
		if snap, err := tx.Get(reviewRef); err == nil {
			var previous reviewDocument
			if err := snap.DataTo(&previous); err != nil {
				return fmt.Errorf("decode review %s: %w", docID, err)
			}
			previousRating = previous.Rating
			isUpdate = true
			review.CreatedAt = previous.CreatedAt
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		sum := product.RatingAverage * float64(product.RatingCount)
		if isUpdate {
			sum += float64(review.Rating - previousRating)
		} else {
			sum += float64(review.Rating)
			product.RatingCount++
		}
		if product.RatingCount > 0 {
			product.RatingAverage = math.Round(sum/float64(product.RatingCount)*100) / 100
		}
		product.UpdatedAt = review.UpdatedAt.UTC()

		doc := fromDomainReview(review)
		if err := tx.Set(reviewRef, doc); err != nil {
			return err
		}
		if err := tx.Set(productRef, product); err != nil {
			return err
		}
		saved = doc.toDomain(docID)
		return nil
	})
	if err != nil {
		return domain.Review{}, wrapStockError("reviews.upsert", err)
	}
	return saved, nil
}

// ListByProduct returns the product's reviews, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review list: product id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("reviews.list", err)
	}

	query := client.Collection(reviewCollection).Query.
		Where("productId", "==", productID).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("reviews.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var reviews []domain.Review
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("reviews.list", err)
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("decode review %s: %w", snap.Ref.ID, err)
		}
		reviews = append(reviews, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(reviews) > pageSize
	if hasMore {
		reviews = reviews[:pageSize]
	}
	var nextToken string
	if hasMore && len(reviews) > 0 {
		last := reviews[len(reviews)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: reviewDocID(last.ProductID, last.UserID), CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("reviews.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Review]{Items: reviews, NextPageToken: nextToken}, nil
}

func reviewDocID(productID, userID string) string {
	return productID + "_" + userID
}

// Document mapping ----------------------------------------------------------

type reviewDocument struct {
	ProductID string    `firestore:"productId"`
	UserID    string    `firestore:"userId"`
	UserName  string    `firestore:"userName"`
	Rating    int       `firestore:"rating"`
	Comment   string    `firestore:"comment,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func fromDomainReview(review domain.Review) reviewDocument {
	createdAt := review.CreatedAt.UTC()
	if review.CreatedAt.IsZero() {
		createdAt = review.UpdatedAt.UTC()
	}
	return reviewDocument{
		ProductID: strings.TrimSpace(review.ProductID),
		UserID:    strings.TrimSpace(review.UserID),
		UserName:  strings.TrimSpace(review.UserName),
		Rating:    review.Rating,
		Comment:   strings.TrimSpace(review.Comment),
		CreatedAt: createdAt,
		UpdatedAt: review.UpdatedAt.UTC(),
	}
}

func (d reviewDocument) toDomain(id string) domain.Review {
	return domain.Review{
		ID:        id,
		ProductID: d.ProductID,
		UserID:    d.UserID,
		UserName:  d.UserName,
		Rating:    d.Rating,
		Comment:   d.Comment,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

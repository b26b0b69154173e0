package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
)

const cartCollection = "carts"

// CartRepository persists carts keyed by the encoded owner so each principal,
// user or guest, holds at most one cart document.
type CartRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{provider: provider, base: base}, nil
}

// Get loads the owner's cart. A missing document is an empty cart, not an error.
func (r *CartRepository) Get(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if owner.IsZero() {
		return domain.Cart{}, errors.New("cart get: owner is required")
	}

	doc, err := r.base.Get(ctx, owner.Key())
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{Owner: owner}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(owner), nil
}

// ReplaceItems overwrites the cart's contents. An empty item list clears the
// cart but keeps the owner's document deletable via Delete.
func (r *CartRepository) ReplaceItems(ctx context.Context, owner domain.CartOwner, items []domain.CartItem, now time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if owner.IsZero() {
		return domain.Cart{}, errors.New("cart replace: owner is required")
	}

	cart := domain.Cart{Owner: owner, Items: items, UpdatedAt: now.UTC()}
	if _, err := r.base.Set(ctx, owner.Key(), fromDomainCart(cart)); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// MergeInto moves the guest cart into the user cart, summing quantities for
// shared products, and removes the guest document in the same transaction.
func (r *CartRepository) MergeInto(ctx context.Context, guest domain.CartOwner, user domain.CartOwner, now time.Time) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	if guest.IsZero() || user.IsZero() {
		return domain.Cart{}, errors.New("cart merge: both owners are required")
	}

	merged := domain.Cart{Owner: user, UpdatedAt: now.UTC()}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		guestRef, err := r.base.DocumentRef(ctx, guest.Key())
		if err != nil {
			return err
		}
		userRef, err := r.base.DocumentRef(ctx, user.Key())
		if err != nil {
			return err
		}

		guestDoc, guestExists, err := readCartDoc(tx, guestRef)
		if err != nil {
			return err
		}
		userDoc, _, err := readCartDoc(tx, userRef)
		if err != nil {
			return err
		}

		merged.Items = domain.MergeCartItems(userDoc.toDomain(user).Items, guestDoc.toDomain(guest).Items)
		if err := tx.Set(userRef, fromDomainCart(merged)); err != nil {
			return err
		}
		if guestExists {
			return tx.Delete(guestRef)
		}
		return nil
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.merge", err)
	}
	return merged, nil
}

// Delete removes the owner's cart document. Absent carts are not an error.
func (r *CartRepository) Delete(ctx context.Context, owner domain.CartOwner) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	if owner.IsZero() {
		return errors.New("cart delete: owner is required")
	}
	if err := r.base.Delete(ctx, owner.Key()); err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return err
	}
	return nil
}

func readCartDoc(tx *firestore.Transaction, ref *firestore.DocumentRef) (cartDocument, bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return cartDocument{}, false, nil
		}
		return cartDocument{}, false, err
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return cartDocument{}, false, fmt.Errorf("decode cart %s: %w", ref.ID, err)
	}
	return doc, true, nil
}

// Document mapping ----------------------------------------------------------

type cartDocument struct {
	UserID    string             `firestore:"userId,omitempty"`
	GuestID   string             `firestore:"guestId,omitempty"`
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"qty"`
}

func fromDomainCart(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}
	return cartDocument{
		UserID:    cart.Owner.UserID,
		GuestID:   cart.Owner.GuestID,
		Items:     items,
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
}

func (d cartDocument) toDomain(owner domain.CartOwner) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return domain.Cart{Owner: owner, Items: items, UpdatedAt: d.UpdatedAt}
}

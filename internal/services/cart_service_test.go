package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

func activeProduct(id string, price int64, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    price,
		Currency: "EUR",
		Stock:    stock,
		Status:   domain.ProductStatusActive,
	}
}

func newTestCartService(t *testing.T, deps CartServiceDeps) CartService {
	t.Helper()
	if deps.Carts == nil {
		deps.Carts = &stubCartRepo{}
	}
	if deps.Products == nil {
		deps.Products = &stubProductRepo{}
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func TestCartServiceAddItemChecksCombinedQuantity(t *testing.T) {
	owner := domain.GuestCartOwner("guest-1")
	carts := &stubCartRepo{getFn: func(_ context.Context, o domain.CartOwner) (domain.Cart, error) {
		return domain.Cart{Owner: o, Items: []domain.CartItem{{ProductID: "prd_1", Quantity: 3}}}, nil
	}}
	products := &stubProductRepo{
		findByIDFn: func(_ context.Context, productID string) (domain.Product, error) {
			return activeProduct(productID, 12000, 4), nil
		},
		findByIDsFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			return map[string]domain.Product{"prd_1": activeProduct("prd_1", 12000, 4)}, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts, Products: products})

	// 3 in the cart plus 2 more exceeds the 4 in stock.
	_, err := svc.AddItem(context.Background(), CartItemCommand{Owner: owner, ProductID: "prd_1", Quantity: 2})
	if !errors.Is(err, ErrCartInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	view, err := svc.AddItem(context.Background(), CartItemCommand{Owner: owner, ProductID: "prd_1", Quantity: 1})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].Quantity != 4 {
		t.Fatalf("expected merged quantity 4, got %+v", view.Lines)
	}
	if view.Total != 48000 {
		t.Fatalf("unexpected total %d", view.Total)
	}
}

func TestCartServiceAddItemRejectsInactiveProduct(t *testing.T) {
	products := &stubProductRepo{findByIDFn: func(_ context.Context, productID string) (domain.Product, error) {
		product := activeProduct(productID, 1000, 10)
		product.Status = domain.ProductStatusInactive
		return product, nil
	}}
	svc := newTestCartService(t, CartServiceDeps{Products: products})

	_, err := svc.AddItem(context.Background(), CartItemCommand{
		Owner:     domain.GuestCartOwner("g1"),
		ProductID: "prd_1",
		Quantity:  1,
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCartServiceUpdateItemZeroRemovesLine(t *testing.T) {
	owner := domain.UserCartOwner("usr_1")
	var replaced []domain.CartItem
	carts := &stubCartRepo{
		getFn: func(_ context.Context, o domain.CartOwner) (domain.Cart, error) {
			return domain.Cart{Owner: o, Items: []domain.CartItem{
				{ProductID: "prd_1", Quantity: 2},
				{ProductID: "prd_2", Quantity: 1},
			}}, nil
		},
		replaceItemsFn: func(_ context.Context, o domain.CartOwner, items []domain.CartItem, now time.Time) (domain.Cart, error) {
			replaced = items
			return domain.Cart{Owner: o, Items: items, UpdatedAt: now}, nil
		},
	}
	products := &stubProductRepo{findByIDsFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
		return map[string]domain.Product{"prd_2": activeProduct("prd_2", 500, 10)}, nil
	}}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts, Products: products})

	view, err := svc.UpdateItem(context.Background(), CartItemCommand{Owner: owner, ProductID: "prd_1", Quantity: 0})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if len(replaced) != 1 || replaced[0].ProductID != "prd_2" {
		t.Fatalf("expected prd_1 removed, got %+v", replaced)
	}
	if len(view.Lines) != 1 {
		t.Fatalf("unexpected view %+v", view.Lines)
	}
}

func TestCartServiceGetCartDropsVanishedProductsAndAppliesDiscounts(t *testing.T) {
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	owner := domain.UserCartOwner("usr_1")
	carts := &stubCartRepo{getFn: func(_ context.Context, o domain.CartOwner) (domain.Cart, error) {
		return domain.Cart{Owner: o, Items: []domain.CartItem{
			{ProductID: "prd_1", Quantity: 2},
			{ProductID: "prd_gone", Quantity: 1},
		}}, nil
	}}
	expires := now.Add(24 * time.Hour)
	discounted := activeProduct("prd_1", 10000, 10)
	discounted.Discount = &domain.Discount{Percent: 25, ExpiresAt: &expires}
	products := &stubProductRepo{findByIDsFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
		return map[string]domain.Product{"prd_1": discounted}, nil
	}}

	svc := newTestCartService(t, CartServiceDeps{
		Carts:    carts,
		Products: products,
		Clock:    func() time.Time { return now },
	})

	view, err := svc.GetCart(context.Background(), owner)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(view.Lines) != 1 {
		t.Fatalf("vanished products must be dropped, got %+v", view.Lines)
	}
	if view.Lines[0].UnitPrice != 7500 || view.Total != 15000 {
		t.Fatalf("expected discounted pricing, got unit=%d total=%d", view.Lines[0].UnitPrice, view.Total)
	}
}

func TestCartServiceMergeGuestCartSkipsEmptyGuest(t *testing.T) {
	merged := false
	carts := &stubCartRepo{
		getFn: func(_ context.Context, o domain.CartOwner) (domain.Cart, error) {
			return domain.Cart{Owner: o}, nil
		},
		mergeIntoFn: func(_ context.Context, guest, user domain.CartOwner, _ time.Time) (domain.Cart, error) {
			merged = true
			return domain.Cart{Owner: user}, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts})

	if err := svc.MergeGuestCart(context.Background(), "guest-1", "usr_1"); err != nil {
		t.Fatalf("merge empty guest cart: %v", err)
	}
	if merged {
		t.Fatalf("empty guest carts must not trigger a merge")
	}
}

func TestCartServiceMergeGuestCartMergesItems(t *testing.T) {
	carts := &stubCartRepo{
		getFn: func(_ context.Context, o domain.CartOwner) (domain.Cart, error) {
			return domain.Cart{Owner: o, Items: []domain.CartItem{{ProductID: "prd_1", Quantity: 1}}}, nil
		},
		mergeIntoFn: func(_ context.Context, guest, user domain.CartOwner, _ time.Time) (domain.Cart, error) {
			if guest.Key() != "guest:guest-1" || user.Key() != "user:usr_1" {
				return domain.Cart{}, errors.New("wrong owners")
			}
			return domain.Cart{Owner: user}, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts})

	if err := svc.MergeGuestCart(context.Background(), "guest-1", "usr_1"); err != nil {
		t.Fatalf("merge guest cart: %v", err)
	}
}

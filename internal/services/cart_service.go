package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartNotFound indicates a referenced product could not be located.
	ErrCartNotFound = errors.New("cart: not found")
	// ErrCartInsufficientStock indicates the requested quantity exceeds stock.
	ErrCartInsufficientStock = errors.New("cart: insufficient stock")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Products        repositories.ProductRepository
	DefaultCurrency string
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	currency string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetCart renders the owner's cart at current catalog prices. Lines whose
// product disappeared from the catalog are dropped from the view.
func (s *cartService) GetCart(ctx context.Context, owner domain.CartOwner) (CartView, error) {
	if owner.IsZero() {
		return CartView{}, fmt.Errorf("%w: cart owner is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	return s.renderCart(ctx, cart)
}

// AddItem merges the quantity into an existing line or appends a new one.
// The combined quantity is checked against current stock.
func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (CartView, error) {
	if err := validateCartItemCommand(cmd, false); err != nil {
		return CartView{}, err
	}

	cart, err := s.carts.Get(ctx, cmd.Owner)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}

	quantity := cmd.Quantity
	for _, item := range cart.Items {
		if item.ProductID == cmd.ProductID {
			quantity += item.Quantity
			break
		}
	}

	if err := s.checkOrderable(ctx, cmd.ProductID, quantity); err != nil {
		return CartView{}, err
	}

	items := domain.MergeCartItems(cart.Items, []domain.CartItem{{ProductID: cmd.ProductID, Quantity: cmd.Quantity}})
	return s.saveAndRender(ctx, cmd.Owner, items)
}

// UpdateItem sets the line's quantity outright. A quantity of zero removes it.
func (s *cartService) UpdateItem(ctx context.Context, cmd CartItemCommand) (CartView, error) {
	if err := validateCartItemCommand(cmd, true); err != nil {
		return CartView{}, err
	}
	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, cmd.Owner, cmd.ProductID)
	}

	cart, err := s.carts.Get(ctx, cmd.Owner)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}

	if err := s.checkOrderable(ctx, cmd.ProductID, cmd.Quantity); err != nil {
		return CartView{}, err
	}

	found := false
	items := make([]domain.CartItem, 0, len(cart.Items)+1)
	for _, item := range cart.Items {
		if item.ProductID == cmd.ProductID {
			item.Quantity = cmd.Quantity
			found = true
		}
		items = append(items, item)
	}
	if !found {
		items = append(items, domain.CartItem{ProductID: cmd.ProductID, Quantity: cmd.Quantity})
	}
	return s.saveAndRender(ctx, cmd.Owner, items)
}

func (s *cartService) RemoveItem(ctx context.Context, owner domain.CartOwner, productID string) (CartView, error) {
	if owner.IsZero() {
		return CartView{}, fmt.Errorf("%w: cart owner is required", ErrCartInvalidInput)
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, owner)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}

	items := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.ProductID != productID {
			items = append(items, item)
		}
	}
	return s.saveAndRender(ctx, owner, items)
}

func (s *cartService) ClearCart(ctx context.Context, owner domain.CartOwner) error {
	if owner.IsZero() {
		return fmt.Errorf("%w: cart owner is required", ErrCartInvalidInput)
	}
	if err := s.carts.Delete(ctx, owner); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// MergeGuestCart folds the guest cart into the user cart. Absent or empty
// guest carts make this a no-op, so repeated logins stay idempotent.
func (s *cartService) MergeGuestCart(ctx context.Context, guestID string, userID string) error {
	guestID = strings.TrimSpace(guestID)
	userID = strings.TrimSpace(userID)
	if guestID == "" || userID == "" {
		return fmt.Errorf("%w: guest id and user id are required", ErrCartInvalidInput)
	}

	guest := domain.GuestCartOwner(guestID)
	guestCart, err := s.carts.Get(ctx, guest)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if len(guestCart.Items) == 0 {
		return nil
	}

	if _, err := s.carts.MergeInto(ctx, guest, domain.UserCartOwner(userID), s.clock()); err != nil {
		return s.mapRepositoryError(err)
	}
	s.logger(ctx, "cart.merged", map[string]any{"user": userID})
	return nil
}

func (s *cartService) saveAndRender(ctx context.Context, owner domain.CartOwner, items []domain.CartItem) (CartView, error) {
	cart, err := s.carts.ReplaceItems(ctx, owner, items, s.clock())
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}
	return s.renderCart(ctx, cart)
}

func (s *cartService) renderCart(ctx context.Context, cart domain.Cart) (CartView, error) {
	view := CartView{
		Owner:     cart.Owner,
		Lines:     []domain.CartLineView{},
		Currency:  s.currency,
		UpdatedAt: cart.UpdatedAt,
	}
	if len(cart.Items) == 0 {
		return view, nil
	}

	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return CartView{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			continue
		}
		unit := product.EffectivePrice(now)
		view.Lines = append(view.Lines, domain.CartLineView{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   unit,
			Quantity:    item.Quantity,
			LineTotal:   unit * int64(item.Quantity),
		})
		view.Total += unit * int64(item.Quantity)
		if product.Currency != "" {
			view.Currency = product.Currency
		}
	}
	return view, nil
}

// checkOrderable verifies the product exists, is active, and has enough stock
// for the requested total quantity.
func (s *cartService) checkOrderable(ctx context.Context, productID string, quantity int) error {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return fmt.Errorf("%w: product %s does not exist", ErrCartInvalidInput, productID)
		}
		return s.mapRepositoryError(err)
	}
	if product.Status != domain.ProductStatusActive {
		return fmt.Errorf("%w: product %s is not available", ErrCartInvalidInput, productID)
	}
	if quantity > product.Stock {
		return fmt.Errorf("%w: product %s has %d in stock", ErrCartInsufficientStock, productID, product.Stock)
	}
	return nil
}

func validateCartItemCommand(cmd CartItemCommand, allowZero bool) error {
	if cmd.Owner.IsZero() {
		return fmt.Errorf("%w: cart owner is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	min := 1
	if allowZero {
		min = 0
	}
	if cmd.Quantity < min {
		return fmt.Errorf("%w: quantity must be at least %d", ErrCartInvalidInput, min)
	}
	return nil
}

func (s *cartService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("cart: repository unavailable: %w", err)
		}
	}

	return err
}

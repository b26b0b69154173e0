package services

import (
	"context"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

// Domain aliases keep handler signatures terse.
type (
	User          = domain.User
	Address       = domain.Address
	Product       = domain.Product
	Review        = domain.Review
	Cart          = domain.Cart
	CartView      = domain.CartView
	Order         = domain.Order
	RefundRequest = domain.RefundRequest
	Payment       = domain.Payment
	RevenueReport = domain.RevenueReport
)

// Event is a lifecycle notification published to downstream consumers.
type Event struct {
	Name       string
	OrderID    string
	UserID     string
	OccurredAt time.Time
	Payload    map[string]any
}

// EventPublisher delivers lifecycle events. Publishing is best-effort;
// services log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// UserService covers registration, authentication, profile, and wishlist.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (User, error)
	Login(ctx context.Context, cmd LoginCommand) (LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Get(ctx context.Context, userID string) (User, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error)
	SetRole(ctx context.Context, cmd SetRoleCommand) (User, error)
	AddWishlist(ctx context.Context, userID string, productID string) (User, error)
	RemoveWishlist(ctx context.Context, userID string, productID string) (User, error)
	ListWishlist(ctx context.Context, userID string) ([]Product, error)
}

// CatalogService maintains products, pricing, stock, and reviews.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string, includeHidden bool) (Product, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	SetDiscount(ctx context.Context, cmd SetDiscountCommand) (Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) (Product, error)
	AddReview(ctx context.Context, cmd AddReviewCommand) (Review, error)
	ListReviews(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[Review], error)
}

// CartService manages guest and authenticated carts.
type CartService interface {
	GetCart(ctx context.Context, owner domain.CartOwner) (CartView, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (CartView, error)
	UpdateItem(ctx context.Context, cmd CartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, owner domain.CartOwner, productID string) (CartView, error)
	ClearCart(ctx context.Context, owner domain.CartOwner) error
	MergeGuestCart(ctx context.Context, guestID string, userID string) error
}

// OrderService covers placement, lifecycle, refunds, and reporting.
type OrderService interface {
	Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	RequestRefund(ctx context.Context, cmd RequestRefundCommand) (Order, error)
	ResolveRefund(ctx context.Context, cmd ResolveRefundCommand) (Order, error)
	ListRefunds(ctx context.Context, filter RefundListFilter) ([]RefundEntry, error)
	Revenue(ctx context.Context, cmd RevenueCommand) (RevenueReport, error)
	DeliveredOrders(ctx context.Context, cmd DeliveredOrdersCommand) ([]Order, error)
}

// PaymentService captures mock payments against orders.
type PaymentService interface {
	Capture(ctx context.Context, cmd CapturePaymentCommand) (Payment, error)
	FindByOrder(ctx context.Context, orderID string) (Payment, error)
}

// InvoiceService renders, archives, and emails order invoices. Deliver and
// RefundDecision are best-effort notifications; failures are logged, never
// surfaced to the order flow.
type InvoiceService interface {
	Render(ctx context.Context, order Order) ([]byte, error)
	Deliver(ctx context.Context, order Order, email string)
	RefundDecision(ctx context.Context, order Order, refund RefundRequest, email string)
}

// SystemService reports dependency health for probes.
type SystemService interface {
	Health(ctx context.Context) (repositories.HealthReport, error)
}

// Command and filter DTOs ----------------------------------------------------

type RegisterCommand struct {
	Email    string
	Name     string
	Password string
}

type LoginCommand struct {
	Email    string
	Password string
	// GuestID, when set, merges the guest cart into the user cart on success.
	GuestID string
}

// LoginResult carries the issued tokens alongside the authenticated profile.
// The refresh token is meant for an HTTP-only cookie, never the JSON body.
type LoginResult struct {
	User             User
	Token            string
	ExpiresAt        time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type UpdateProfileCommand struct {
	UserID    string
	Name      *string
	Addresses *[]Address
}

type SetRoleCommand struct {
	UserID string
	Role   domain.Role
}

type ProductListFilter = repositories.ProductListFilter

type CreateProductCommand struct {
	Name        string
	Description string
	Category    string
	Price       int64
	Currency    string
	Stock       int
}

type UpdateProductCommand struct {
	ProductID   string
	Name        *string
	Description *string
	Category    *string
	Price       *int64
	Status      *domain.ProductStatus
}

type SetDiscountCommand struct {
	ProductID string
	Percent   int
	ExpiresAt *time.Time
	// Clear removes any active discount.
	Clear bool
}

type AddReviewCommand struct {
	ProductID string
	UserID    string
	UserName  string
	Rating    int
	Comment   string
}

type CartItemCommand struct {
	Owner     domain.CartOwner
	ProductID string
	Quantity  int
}

type PlaceOrderCommand struct {
	UserID          string
	ShippingAddress Address
}

type OrderListFilter = repositories.OrderListFilter

type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

type CancelOrderCommand struct {
	OrderID string
	UserID  string
}

type RequestRefundCommand struct {
	OrderID   string
	UserID    string
	ProductID string
	Quantity  int
	Reason    string
}

type ResolveRefundCommand struct {
	OrderID     string
	RefundID    string
	Approve     bool
	ManagerNote string
	ActorID     string
}

type RefundListFilter = repositories.RefundListFilter

// RefundEntry is a refund request joined with its order context.
type RefundEntry = repositories.RefundListEntry

type RevenueCommand struct {
	From time.Time
	To   time.Time
}

type DeliveredOrdersCommand struct {
	From time.Time
	To   time.Time
}

type CapturePaymentCommand struct {
	OrderID    string
	UserID     string
	CardNumber string
	CardHolder string
}

package repositories

import (
	"context"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Products() ProductRepository
	Reviews() ReviewRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository stores user accounts. Insert enforces email uniqueness
// atomically through the email index.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	Update(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByRefreshToken(ctx context.Context, token string) (domain.User, error)
	SetRefreshToken(ctx context.Context, userID string, token string, updatedAt time.Time) error
	SetRole(ctx context.Context, userID string, role domain.Role, updatedAt time.Time) (domain.User, error)
	AddWishlist(ctx context.Context, userID string, productID string, updatedAt time.Time) (domain.User, error)
	RemoveWishlist(ctx context.Context, userID string, productID string, updatedAt time.Time) (domain.User, error)
}

// ProductRepository persists catalog entries. Stock mutations are transactional
// and never let stock go negative.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	MarkInactive(ctx context.Context, productID string, updatedAt time.Time) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	AdjustStock(ctx context.Context, productID string, delta int, now time.Time) (domain.Product, error)
}

// ReviewRepository stores product reviews; writes keep the product's rating
// aggregate consistent in the same transaction.
type ReviewRepository interface {
	Upsert(ctx context.Context, review domain.Review) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
}

// CartRepository owns cart persistence keyed by the encoded cart owner.
type CartRepository interface {
	Get(ctx context.Context, owner domain.CartOwner) (domain.Cart, error)
	ReplaceItems(ctx context.Context, owner domain.CartOwner, items []domain.CartItem, now time.Time) (domain.Cart, error)
	MergeInto(ctx context.Context, guest domain.CartOwner, user domain.CartOwner, now time.Time) (domain.Cart, error)
	Delete(ctx context.Context, owner domain.CartOwner) error
}

// OrderRepository persists orders and runs every stock-coupled lifecycle
// mutation inside a single transaction.
type OrderRepository interface {
	Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) (domain.Order, error)
	Cancel(ctx context.Context, orderID string, now time.Time) (domain.Order, error)
	AppendRefund(ctx context.Context, orderID string, refund domain.RefundRequest) (domain.Order, error)
	ResolveRefund(ctx context.Context, req ResolveRefundRequest) (domain.Order, error)
	RecordCapture(ctx context.Context, payment domain.Payment) (domain.Order, error)
	ListRefunds(ctx context.Context, filter RefundListFilter) ([]RefundListEntry, error)
}

// PlaceOrderRequest carries the prepared order and the cart to consume.
// The repository re-reads products inside the transaction, decrements stock,
// prices the lines and empties the cart atomically.
type PlaceOrderRequest struct {
	OrderID         string
	OrderNumber     string
	UserID          string
	Owner           domain.CartOwner
	ShippingAddress domain.Address
	Currency        string
	Now             time.Time
}

// ResolveRefundRequest moves a pending refund request to its terminal state.
// Approvals restore stock and bump the order's refunded aggregate.
type ResolveRefundRequest struct {
	OrderID     string
	RefundID    string
	Approve     bool
	ManagerNote string
	Now         time.Time
}

// RefundListEntry joins an embedded refund request with its order context.
type RefundListEntry struct {
	Order  domain.Order
	Refund domain.RefundRequest
}

// PaymentRepository reads mock payment captures. Writes happen through
// OrderRepository.RecordCapture so the capture and the order share one
// transaction.
type PaymentRepository interface {
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (HealthReport, error)
}

// HealthReport summarises dependency health for readiness probes.
type HealthReport struct {
	Healthy    bool
	Components map[string]string
	CheckedAt  time.Time
}

// Filter DTOs shared across repositories ------------------------------------

type ProductListFilter struct {
	Category      *string
	Status        []domain.ProductStatus
	PriceRange    domain.RangeQuery[int64]
	IncludeHidden bool
	Pagination    domain.Pagination
}

type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type RefundListFilter struct {
	Status    []domain.RefundStatus
	DateRange domain.RangeQuery[time.Time]
	Limit     int
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

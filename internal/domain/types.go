package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role enumerates the access levels a user account can hold.
type Role string

const (
	// RoleCustomer is the default role for registered shoppers.
	RoleCustomer Role = "customer"
	// RoleProductManager maintains the catalog.
	RoleProductManager Role = "product_manager"
	// RoleSalesManager handles pricing, order status and refunds.
	RoleSalesManager Role = "sales_manager"
	// RoleAdmin has every permission.
	RoleAdmin Role = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleProductManager, RoleSalesManager, RoleAdmin:
		return true
	}
	return false
}

// User is a registered account. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	// RefreshToken is the single active refresh token. Login rotates it,
	// logout clears it.
	RefreshToken string
	Role         Role
	Wishlist     []string
	Addresses    []Address
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Address is a shipping destination. Every field is required.
type Address struct {
	Recipient  string
	Street     string
	City       string
	PostalCode string
	Country    string
}

// ProductStatus describes catalog visibility.
type ProductStatus string

const (
	// ProductStatusActive makes the product publicly listed and orderable.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive hides the product from the public catalog.
	ProductStatusInactive ProductStatus = "inactive"
)

// Discount is a percentage reduction applied until ExpiresAt.
type Discount struct {
	Percent   int
	ExpiresAt *time.Time
}

// Product is a catalog entry. Price is in minor currency units.
type Product struct {
	ID            string
	Name          string
	Description   string
	Category      string
	Price         int64
	Currency      string
	Stock         int
	Status        ProductStatus
	Discount      *Discount
	RatingAverage float64
	RatingCount   int
	Ordered       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectivePrice returns the unit price after any unexpired discount.
// Discounted amounts round down.
func (p Product) EffectivePrice(now time.Time) int64 {
	d := p.Discount
	if d == nil || d.Percent <= 0 {
		return p.Price
	}
	if d.ExpiresAt != nil && d.ExpiresAt.Before(now) {
		return p.Price
	}
	return p.Price - p.Price*int64(d.Percent)/100
}

// Review is a per-user product rating with an optional sanitized comment.
type Review struct {
	ID        string
	ProductID string
	UserID    string
	UserName  string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartOwner identifies the principal a cart belongs to, either a registered
// user or an anonymous guest session. The encoded form doubles as the cart
// document key so each principal holds at most one cart.
type CartOwner struct {
	UserID  string
	GuestID string
}

// UserCartOwner returns the owner tag for a registered user.
func UserCartOwner(userID string) CartOwner { return CartOwner{UserID: userID} }

// GuestCartOwner returns the owner tag for a guest session.
func GuestCartOwner(guestID string) CartOwner { return CartOwner{GuestID: guestID} }

// Key encodes the owner as a stable document key.
func (o CartOwner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "guest:" + o.GuestID
}

// IsZero reports whether no principal is set.
func (o CartOwner) IsZero() bool { return o.UserID == "" && o.GuestID == "" }

// CartItem is one product line in a cart.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Cart holds the items a principal intends to order.
type Cart struct {
	Owner     CartOwner
	Items     []CartItem
	UpdatedAt time.Time
}

// CartLineView is a cart item joined with its current catalog snapshot.
type CartLineView struct {
	ProductID   string
	ProductName string
	UnitPrice   int64
	Quantity    int
	LineTotal   int64
}

// CartView is a priced rendering of a cart at current catalog prices.
type CartView struct {
	Owner     CartOwner
	Lines     []CartLineView
	Total     int64
	Currency  string
	UpdatedAt time.Time
}

// OrderStatus tracks the forward-only order lifecycle.
type OrderStatus string

const (
	// OrderStatusProcessing is the initial state after placement.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusInTransit means the order left the warehouse.
	OrderStatusInTransit OrderStatus = "in-transit"
	// OrderStatusDelivered means the customer received the order.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCanceled is reachable only from processing.
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusRefunded means every line was fully refunded.
	OrderStatusRefunded OrderStatus = "refunded"
)

// OrderLine is a priced snapshot of a cart line captured at placement.
// UnitPrice is the effective catalog price at that moment and never changes.
type OrderLine struct {
	ProductID        string
	ProductName      string
	UnitPrice        int64
	Quantity         int
	LineTotal        int64
	RefundedQuantity int
}

// RefundStatus tracks the refund request workflow.
type RefundStatus string

const (
	// RefundStatusPending awaits a manager decision.
	RefundStatusPending RefundStatus = "pending"
	// RefundStatusApproved restored stock and credited the amount.
	RefundStatusApproved RefundStatus = "approved"
	// RefundStatusRejected closed the request without credit.
	RefundStatusRejected RefundStatus = "rejected"
)

// RefundRequest is an append-only entry embedded in its order. UnitPrice and
// Amount are captured from the order line, not the live catalog.
type RefundRequest struct {
	ID          string
	ProductID   string
	Quantity    int
	UnitPrice   int64
	Amount      int64
	Status      RefundStatus
	Reason      string
	ManagerNote string
	RequestedAt time.Time
	ResolvedAt  *time.Time
}

// Order is the aggregate root of the purchase lifecycle. TotalAmount is
// fixed at placement; refunds accumulate in RefundedAmount instead.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Lines           []OrderLine
	ShippingAddress Address
	Status          OrderStatus
	TotalAmount     int64
	RefundedAmount  int64
	Currency        string
	PaymentID       string
	Refunds         []RefundRequest
	StatusUpdatedAt time.Time
	CreatedAt       time.Time
}

// Payment records a mock capture against an order.
type Payment struct {
	ID             string
	OrderID        string
	UserID         string
	Amount         int64
	Currency       string
	CardLast4      string
	CardHolder     string
	TransactionRef string
	CapturedAt     time.Time
}

// RevenueBucket aggregates one day of the revenue report.
type RevenueBucket struct {
	Day      string
	Revenue  int64
	Refunded int64
	Orders   int
}

// RevenueReport summarizes orders placed inside an inclusive window.
// Cost is a fixed 70% estimate of revenue.
type RevenueReport struct {
	From     time.Time
	To       time.Time
	Currency string
	Revenue  int64
	Refunded int64
	Cost     int64
	Profit   int64
	Orders   int
	Buckets  []RevenueBucket
}

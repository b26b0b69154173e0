package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status_changed"
	orderEventCanceled      = "order.canceled"
	refundEventRequested    = "refund.requested"
	refundEventApproved     = "refund.approved"
	refundEventRejected     = "refund.rejected"

	orderIDPrefix  = "ord_"
	refundIDPrefix = "rfn_"

	orderNumberCounter = "orders"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order or refund could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the order's status forbids the operation.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict indicates duplicates or concurrent modification.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderRefundWindowClosed indicates the 30 day refund window has passed.
	ErrOrderRefundWindowClosed = errors.New("order: refund window closed")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Counters        repositories.CounterRepository
	Users           repositories.UserRepository
	Invoices        InvoiceService
	DefaultCurrency string
	Clock           func() time.Time
	IDGenerator     func() string
	Events          EventPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	users    repositories.UserRepository
	invoices InvoiceService
	currency string
	clock    func() time.Time
	newID    func() string
	events   EventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
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

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	return &orderService{
		orders:   deps.Orders,
		counters: deps.Counters,
		users:    deps.Users,
		invoices: deps.Invoices,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Place converts the caller's cart into an order. The repository performs the
// stock checks, price capture, and cart consumption in one transaction.
func (s *orderService) Place(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if err := cmd.ShippingAddress.Validate(); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	now := s.clock()
	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		OrderID:         orderIDPrefix + s.newID(),
		OrderNumber:     number,
		UserID:          userID,
		Owner:           domain.UserCartOwner(userID),
		ShippingAddress: cmd.ShippingAddress,
		Currency:        s.currency,
		Now:             now,
	})
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}

	s.publish(ctx, Event{
		Name:       orderEventCreated,
		OrderID:    order.ID,
		UserID:     order.UserID,
		OccurredAt: now,
		Payload: map[string]any{
			"number": order.Number,
			"total":  order.TotalAmount,
			"lines":  len(order.Lines),
		},
	})
	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapOrderError(err)
	}
	return page, nil
}

// UpdateStatus moves the order forward. Only processing, in-transit, and
// delivered may be assigned directly; canceled and refunded are reached
// through their own flows. Delivery triggers best-effort invoice delivery.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.TrimSpace(cmd.Status))
	if !domain.AssignableOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: invalid status %q", ErrOrderInvalidInput, cmd.Status)
	}

	now := s.clock()
	order, err := s.orders.UpdateStatus(ctx, orderID, target, now)
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}

	s.publish(ctx, Event{
		Name:       orderEventStatusChanged,
		OrderID:    order.ID,
		UserID:     order.UserID,
		OccurredAt: now,
		Payload: map[string]any{
			"status": string(order.Status),
			"actor":  strings.TrimSpace(cmd.ActorID),
		},
	})

	if order.Status == domain.OrderStatusDelivered {
		s.deliverInvoice(ctx, order)
	}
	return order, nil
}

// Cancel closes a processing order and restores its stock. Only the owner may
// cancel.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}

	now := s.clock()
	canceled, err := s.orders.Cancel(ctx, orderID, now)
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}

	s.publish(ctx, Event{
		Name:       orderEventCanceled,
		OrderID:    canceled.ID,
		UserID:     canceled.UserID,
		OccurredAt: now,
	})
	return canceled, nil
}

// RequestRefund files a pending per-line refund request. The 30 day window is
// measured from placement and is inclusive; the line and quantity checks run
// again inside the repository transaction.
func (s *orderService) RequestRefund(ctx context.Context, cmd RequestRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if orderID == "" || productID == "" {
		return Order{}, fmt.Errorf("%w: order id and product id are required", ErrOrderInvalidInput)
	}
	if cmd.Quantity < 1 {
		return Order{}, fmt.Errorf("%w: quantity must be at least 1", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, orderID)
	}

	now := s.clock()
	if !order.WithinRefundWindow(now) {
		return Order{}, fmt.Errorf("%w: order %s was placed more than %d days ago", ErrOrderRefundWindowClosed, orderID, int(domain.RefundWindow.Hours()/24))
	}

	updated, err := s.orders.AppendRefund(ctx, orderID, domain.RefundRequest{
		ID:          refundIDPrefix + s.newID(),
		ProductID:   productID,
		Quantity:    cmd.Quantity,
		Reason:      strings.TrimSpace(cmd.Reason),
		RequestedAt: now,
	})
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}

	s.publish(ctx, Event{
		Name:       refundEventRequested,
		OrderID:    updated.ID,
		UserID:     updated.UserID,
		OccurredAt: now,
		Payload: map[string]any{
			"product":  productID,
			"quantity": cmd.Quantity,
		},
	})
	return updated, nil
}

// ResolveRefund approves or rejects a pending request. Approval restores
// stock and credits the order's refunded aggregate inside the repository
// transaction; the decision email is best-effort.
func (s *orderService) ResolveRefund(ctx context.Context, cmd ResolveRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	refundID := strings.TrimSpace(cmd.RefundID)
	if orderID == "" || refundID == "" {
		return Order{}, fmt.Errorf("%w: order id and refund id are required", ErrOrderInvalidInput)
	}

	now := s.clock()
	order, err := s.orders.ResolveRefund(ctx, repositories.ResolveRefundRequest{
		OrderID:     orderID,
		RefundID:    refundID,
		Approve:     cmd.Approve,
		ManagerNote: strings.TrimSpace(cmd.ManagerNote),
		Now:         now,
	})
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}

	eventName := refundEventRejected
	if cmd.Approve {
		eventName = refundEventApproved
	}
	s.publish(ctx, Event{
		Name:       eventName,
		OrderID:    order.ID,
		UserID:     order.UserID,
		OccurredAt: now,
		Payload: map[string]any{
			"refund": refundID,
			"actor":  strings.TrimSpace(cmd.ActorID),
		},
	})

	if refund, ok := order.Refund(refundID); ok {
		s.sendRefundDecision(ctx, order, refund)
	}
	return order, nil
}

func (s *orderService) ListRefunds(ctx context.Context, filter RefundListFilter) ([]RefundEntry, error) {
	entries, err := s.orders.ListRefunds(ctx, filter)
	if err != nil {
		return nil, s.mapOrderError(err)
	}
	return entries, nil
}

// Revenue aggregates orders placed inside the inclusive window. Canceled
// orders are excluded; cost is a fixed estimate of revenue.
func (s *orderService) Revenue(ctx context.Context, cmd RevenueCommand) (RevenueReport, error) {
	if cmd.From.IsZero() || cmd.To.IsZero() {
		return RevenueReport{}, fmt.Errorf("%w: from and to are required", ErrOrderInvalidInput)
	}
	if cmd.To.Before(cmd.From) {
		return RevenueReport{}, fmt.Errorf("%w: to must not precede from", ErrOrderInvalidInput)
	}

	from := cmd.From.UTC()
	to := cmd.To.UTC()
	report := RevenueReport{From: from, To: to}
	buckets := make(map[string]*domain.RevenueBucket)

	err := s.scanOrders(ctx, repositories.OrderListFilter{
		Status: []domain.OrderStatus{
			domain.OrderStatusProcessing,
			domain.OrderStatusInTransit,
			domain.OrderStatusDelivered,
			domain.OrderStatusRefunded,
		},
		DateRange: domain.RangeQuery[time.Time]{From: &from, To: &to},
	}, func(order Order) {
		report.Revenue += order.TotalAmount
		report.Refunded += order.RefundedAmount
		report.Orders++
		if report.Currency == "" {
			report.Currency = order.Currency
		}

		day := order.CreatedAt.UTC().Format("2006-01-02")
		bucket, ok := buckets[day]
		if !ok {
			bucket = &domain.RevenueBucket{Day: day}
			buckets[day] = bucket
		}
		bucket.Revenue += order.TotalAmount
		bucket.Refunded += order.RefundedAmount
		bucket.Orders++
	})
	if err != nil {
		return RevenueReport{}, err
	}

	report.Cost = domain.EstimatedCost(report.Revenue)
	report.Profit = report.Revenue - report.Refunded - report.Cost

	report.Buckets = make([]domain.RevenueBucket, 0, len(buckets))
	for _, bucket := range buckets {
		report.Buckets = append(report.Buckets, *bucket)
	}
	sort.Slice(report.Buckets, func(i, j int) bool {
		return report.Buckets[i].Day < report.Buckets[j].Day
	})
	return report, nil
}

// DeliveredOrders lists orders delivered inside the window for fulfilment
// follow-up.
func (s *orderService) DeliveredOrders(ctx context.Context, cmd DeliveredOrdersCommand) ([]Order, error) {
	if cmd.From.IsZero() || cmd.To.IsZero() {
		return nil, fmt.Errorf("%w: from and to are required", ErrOrderInvalidInput)
	}
	if cmd.To.Before(cmd.From) {
		return nil, fmt.Errorf("%w: to must not precede from", ErrOrderInvalidInput)
	}

	from := cmd.From.UTC()
	to := cmd.To.UTC()
	var orders []Order
	err := s.scanOrders(ctx, repositories.OrderListFilter{
		Status:    []domain.OrderStatus{domain.OrderStatusDelivered, domain.OrderStatusRefunded},
		DateRange: domain.RangeQuery[time.Time]{From: &from, To: &to},
	}, func(order Order) {
		orders = append(orders, order)
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// scanOrders walks every page of the filtered listing.
func (s *orderService) scanOrders(ctx context.Context, filter repositories.OrderListFilter, visit func(Order)) error {
	filter.Pagination.PageSize = 100
	for {
		page, err := s.orders.List(ctx, filter)
		if err != nil {
			return s.mapOrderError(err)
		}
		for _, order := range page.Items {
			visit(order)
		}
		if page.NextPageToken == "" {
			return nil
		}
		filter.Pagination.PageToken = page.NextPageToken
	}
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		return "", fmt.Errorf("order: next order number: %w", err)
	}
	return fmt.Sprintf("MC-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) deliverInvoice(ctx context.Context, order Order) {
	if s.invoices == nil {
		return
	}
	email := s.ownerEmail(ctx, order.UserID)
	s.invoices.Deliver(ctx, order, email)
}

func (s *orderService) sendRefundDecision(ctx context.Context, order Order, refund RefundRequest) {
	if s.invoices == nil {
		return
	}
	email := s.ownerEmail(ctx, order.UserID)
	if email == "" {
		return
	}
	s.invoices.RefundDecision(ctx, order, refund, email)
}

func (s *orderService) ownerEmail(ctx context.Context, userID string) string {
	if s.users == nil || strings.TrimSpace(userID) == "" {
		return ""
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger(ctx, "order.owner.lookup.failed", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
		return ""
	}
	return user.Email
}

func (s *orderService) publish(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"event": event.Name,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

// mapOrderError translates typed stock errors ahead of the generic mapping.
func (s *orderService) mapOrderError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInvalidState:
			return fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
		case repositories.StockErrorEmptyCart, repositories.StockErrorProductNotFound,
			repositories.StockErrorInsufficient, repositories.StockErrorUnknown:
			return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
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

const orderCollection = "orders"

// OrderRepository persists orders. Every stock-coupled lifecycle mutation,
// placement, cancellation, and refund approval, runs inside a single
// Firestore transaction with all reads performed before the first write.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
	carts    *pfirestore.BaseRepository[cartDocument]
	payments *pfirestore.BaseRepository[paymentDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
		carts:    pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
		payments: pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil),
	}, nil
}

// Place converts the owner's cart into an order. Inside one transaction it
// re-reads the cart and every product, verifies status and stock, prices the
// lines at the current effective price, decrements stock, creates the order
// document, and empties the cart without deleting its document.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Order{}, errors.New("order place: order id is required")
	}
	if req.Owner.IsZero() {
		return domain.Order{}, errors.New("order place: cart owner is required")
	}

	now := req.Now.UTC()
	var placed domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, req.OrderID)
		if err != nil {
			return err
		}
		cartRef, err := r.carts.DocumentRef(ctx, req.Owner.Key())
		if err != nil {
			return err
		}

		cartDoc, cartExists, err := readCartDoc(tx, cartRef)
		if err != nil {
			return err
		}
		cart := cartDoc.toDomain(req.Owner)
		if !cartExists || len(cart.Items) == 0 {
			return repositories.NewStockError(repositories.StockErrorEmptyCart, "cart is empty", nil)
		}

		// All reads happen before the first write.
		type pendingLine struct {
			ref  *firestore.DocumentRef
			doc  productDocument
			item domain.CartItem
		}
		pending := make([]pendingLine, 0, len(cart.Items))
		for _, item := range cart.Items {
			if item.Quantity <= 0 {
				return repositories.NewStockError(repositories.StockErrorUnknown, fmt.Sprintf("quantity for %s must be > 0", item.ProductID), nil).WithProduct(item.ProductID)
			}
			productRef, err := r.products.DocumentRef(ctx, item.ProductID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", item.ProductID), err).WithProduct(item.ProductID)
				}
				return err
			}
			var productDoc productDocument
			if err := snap.DataTo(&productDoc); err != nil {
				return fmt.Errorf("decode product %s: %w", item.ProductID, err)
			}
			if domain.ProductStatus(productDoc.Status) != domain.ProductStatusActive {
				return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("product %s is not orderable", item.ProductID), nil).WithProduct(item.ProductID)
			}
			if productDoc.Stock < item.Quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", item.ProductID), nil).WithProduct(item.ProductID)
			}
			pending = append(pending, pendingLine{ref: productRef, doc: productDoc, item: item})
		}

		lines := make([]domain.OrderLine, 0, len(pending))
		for _, p := range pending {
			p.doc.Stock -= p.item.Quantity
			p.doc.Ordered = true
			p.doc.UpdatedAt = now
			if err := tx.Set(p.ref, p.doc); err != nil {
				return err
			}
			lines = append(lines, domain.BuildOrderLine(p.doc.toDomain(p.item.ProductID), p.item.Quantity, now))
		}

		placed = domain.Order{
			ID:              req.OrderID,
			Number:          strings.TrimSpace(req.OrderNumber),
			UserID:          strings.TrimSpace(req.UserID),
			Lines:           lines,
			ShippingAddress: req.ShippingAddress,
			Status:          domain.OrderStatusProcessing,
			TotalAmount:     domain.OrderTotal(lines),
			Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
			StatusUpdatedAt: now,
			CreatedAt:       now,
		}

		if err := tx.Create(orderRef, fromDomainOrder(placed)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("order %s already exists", req.OrderID), err)
			}
			return err
		}

		// The cart document survives placement with its items cleared, so
		// the owner keeps the same cart for the next purchase.
		cartDoc.Items = []cartItemDocument{}
		cartDoc.UpdatedAt = now
		return tx.Set(cartRef, cartDoc)
	})
	if err != nil {
		return domain.Order{}, wrapStockError("orders.place", err)
	}
	return placed, nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of orders, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	query := client.Collection(orderCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	if len(filter.Status) > 0 {
		values := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			values = append(values, string(s))
		}
		query = query.Where("status", "in", values)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// UpdateStatus advances the order along the forward-only lifecycle. Backward
// and sideways transitions are rejected with a typed invalid state error.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order update status: id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.readOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		order := doc.toDomain(id)
		if !domain.CanTransition(order.Status, newStatus) {
			return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("order %s cannot move from %s to %s", id, order.Status, newStatus), nil)
		}
		doc.Status = string(newStatus)
		doc.StatusUpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapStockError("orders.updateStatus", err)
	}
	return updated, nil
}

// Cancel moves a processing order to canceled and restores the stock of every
// line in the same transaction. Orders past processing cannot be canceled.
func (r *OrderRepository) Cancel(ctx context.Context, orderID string, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order cancel: id is required")
	}

	utc := now.UTC()
	var canceled domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.readOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		order := doc.toDomain(id)
		if !order.Cancelable() {
			return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("order %s is %s and cannot be canceled", id, order.Status), nil)
		}

		restores, err := r.readLineProducts(ctx, tx, order.Lines)
		if err != nil {
			return err
		}

		for i, restore := range restores {
			if restore.ref == nil {
				continue
			}
			restore.doc.Stock += order.Lines[i].Quantity
			restore.doc.UpdatedAt = utc
			if err := tx.Set(restore.ref, restore.doc); err != nil {
				return err
			}
		}

		doc.Status = string(domain.OrderStatusCanceled)
		doc.StatusUpdatedAt = utc
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		canceled = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapStockError("orders.cancel", err)
	}
	return canceled, nil
}

// AppendRefund adds a pending refund request to a delivered order. The line's
// refundable quantity and the one-pending-per-product rule are re-checked
// inside the transaction so concurrent requests cannot oversubscribe a line.
func (r *OrderRepository) AppendRefund(ctx context.Context, orderID string, refund domain.RefundRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order append refund: order id is required")
	}
	if strings.TrimSpace(refund.ID) == "" {
		return domain.Order{}, errors.New("order append refund: refund id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.readOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		order := doc.toDomain(id)

		if order.Status != domain.OrderStatusDelivered {
			return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("order %s is %s; refunds require delivery", id, order.Status), nil)
		}
		line, ok := order.Line(refund.ProductID)
		if !ok {
			return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("order %s has no line for product %s", id, refund.ProductID), nil).WithProduct(refund.ProductID)
		}
		if order.HasPendingRefund(refund.ProductID) {
			return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("product %s already has a pending refund", refund.ProductID), nil).WithProduct(refund.ProductID)
		}
		if refund.Quantity <= 0 || refund.Quantity > order.RefundableQuantity(refund.ProductID) {
			return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("refund quantity %d exceeds refundable amount for %s", refund.Quantity, refund.ProductID), nil).WithProduct(refund.ProductID)
		}

		refund.Status = domain.RefundStatusPending
		refund.UnitPrice = line.UnitPrice
		refund.Amount = line.UnitPrice * int64(refund.Quantity)
		refund.RequestedAt = refund.RequestedAt.UTC()
		refund.ResolvedAt = nil

		doc.Refunds = append(doc.Refunds, fromDomainRefund(refund))
		doc.RefundStates = refundStates(doc.Refunds)
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapStockError("orders.appendRefund", err)
	}
	return updated, nil
}

// ResolveRefund moves a pending refund to approved or rejected. Approval
// restores stock for the refunded quantity, bumps the order's refunded
// aggregate, and flips the order to refunded once every line is returned.
func (r *OrderRepository) ResolveRefund(ctx context.Context, req repositories.ResolveRefundRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(req.OrderID)
	if id == "" {
		return domain.Order{}, errors.New("order resolve refund: order id is required")
	}
	refundID := strings.TrimSpace(req.RefundID)
	if refundID == "" {
		return domain.Order{}, errors.New("order resolve refund: refund id is required")
	}

	now := req.Now.UTC()
	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.readOrder(ctx, tx, id)
		if err != nil {
			return err
		}

		refundIdx := -1
		for i, rd := range doc.Refunds {
			if rd.ID == refundID {
				refundIdx = i
				break
			}
		}
		if refundIdx < 0 {
			return status.Errorf(codes.NotFound, "refund %s not found on order %s", refundID, id)
		}
		refund := doc.Refunds[refundIdx]
		if domain.RefundStatus(refund.Status) != domain.RefundStatusPending {
			return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("refund %s is already %s", refundID, refund.Status), nil)
		}

		if !req.Approve {
			refund.Status = string(domain.RefundStatusRejected)
			refund.ManagerNote = strings.TrimSpace(req.ManagerNote)
			refund.ResolvedAt = &now
			doc.Refunds[refundIdx] = refund
			doc.RefundStates = refundStates(doc.Refunds)
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			updated = doc.toDomain(id)
			return nil
		}

		// Approval path: read the product before any write so stock
		// restitution stays inside the transaction's read set.
		var productRef *firestore.DocumentRef
		var productDoc productDocument
		productFound := false
		productRef, err = r.products.DocumentRef(ctx, refund.ProductID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(productRef)
		if err == nil {
			if err := snap.DataTo(&productDoc); err != nil {
				return fmt.Errorf("decode product %s: %w", refund.ProductID, err)
			}
			productFound = true
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		lineIdx := -1
		for i, line := range doc.Lines {
			if line.ProductID == refund.ProductID {
				lineIdx = i
				break
			}
		}
		if lineIdx < 0 {
			return repositories.NewStockError(repositories.StockErrorProductNotFound, fmt.Sprintf("order %s has no line for product %s", id, refund.ProductID), nil).WithProduct(refund.ProductID)
		}

		refund.Status = string(domain.RefundStatusApproved)
		refund.ManagerNote = strings.TrimSpace(req.ManagerNote)
		refund.ResolvedAt = &now
		doc.Refunds[refundIdx] = refund
		doc.RefundStates = refundStates(doc.Refunds)
		doc.Lines[lineIdx].RefundedQuantity += refund.Quantity
		doc.RefundedAmount += refund.Amount

		order := doc.toDomain(id)
		if order.FullyRefunded() {
			doc.Status = string(domain.OrderStatusRefunded)
			doc.StatusUpdatedAt = now
		}

		if productFound {
			productDoc.Stock += refund.Quantity
			productDoc.UpdatedAt = now
			if err := tx.Set(productRef, productDoc); err != nil {
				return err
			}
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapStockError("orders.resolveRefund", err)
	}
	return updated, nil
}

// RecordCapture writes the payment document and stamps its id on the order
// in one transaction. The order must still be processing and unpaid at
// commit time, so a concurrent cancel or a second capture loses the race
// cleanly instead of leaving an orphaned payment.
func (r *OrderRepository) RecordCapture(ctx context.Context, payment domain.Payment) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(payment.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order record capture: order id is required")
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		return domain.Order{}, errors.New("order record capture: payment id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.readOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if domain.OrderStatus(doc.Status) != domain.OrderStatusProcessing {
			return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("order %s is %s", orderID, doc.Status), nil)
		}
		if doc.PaymentID != "" {
			return repositories.NewStockError(repositories.StockErrorInvalidState, fmt.Sprintf("order %s already has payment %s", orderID, doc.PaymentID), nil)
		}

		paymentRef, err := r.payments.DocumentRef(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := tx.Create(paymentRef, fromDomainPayment(payment)); err != nil {
			return err
		}
		doc.PaymentID = paymentID
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapStockError("orders.recordCapture", err)
	}
	return updated, nil
}

// ListRefunds returns refund entries joined with their orders, newest request
// first. The status filter is pushed to Firestore through the per-order
// refundStates index; the date range is applied per refund entry.
func (r *OrderRepository) ListRefunds(ctx context.Context, filter repositories.RefundListFilter) ([]repositories.RefundListEntry, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("orders.listRefunds", err)
	}

	query := client.Collection(orderCollection).Query
	if len(filter.Status) > 0 {
		values := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			values = append(values, string(s))
		}
		query = query.Where("refundStates", "array-contains-any", values)
	} else {
		all := []string{
			string(domain.RefundStatusPending),
			string(domain.RefundStatusApproved),
			string(domain.RefundStatusRejected),
		}
		query = query.Where("refundStates", "array-contains-any", all)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	wanted := make(map[domain.RefundStatus]bool, len(filter.Status))
	for _, s := range filter.Status {
		wanted[s] = true
	}

	var entries []repositories.RefundListEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("orders.listRefunds", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		order := doc.toDomain(snap.Ref.ID)
		for _, refund := range order.Refunds {
			if len(wanted) > 0 && !wanted[refund.Status] {
				continue
			}
			if filter.DateRange.From != nil && refund.RequestedAt.Before(*filter.DateRange.From) {
				continue
			}
			if filter.DateRange.To != nil && refund.RequestedAt.After(*filter.DateRange.To) {
				continue
			}
			entries = append(entries, repositories.RefundListEntry{Order: order, Refund: refund})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Refund.RequestedAt.After(entries[j].Refund.RequestedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Transaction helpers -------------------------------------------------------

func (r *OrderRepository) readOrder(ctx context.Context, tx *firestore.Transaction, orderID string) (*firestore.DocumentRef, orderDocument, error) {
	ref, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, orderDocument{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		return nil, orderDocument{}, err
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, orderDocument{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return ref, doc, nil
}

type lineProduct struct {
	ref *firestore.DocumentRef
	doc productDocument
}

// readLineProducts fetches the product behind each order line. Products that
// were hard-deleted after placement yield a nil ref and are skipped by callers.
func (r *OrderRepository) readLineProducts(ctx context.Context, tx *firestore.Transaction, lines []domain.OrderLine) ([]lineProduct, error) {
	out := make([]lineProduct, len(lines))
	for i, line := range lines {
		ref, err := r.products.DocumentRef(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return nil, err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", line.ProductID, err)
		}
		out[i] = lineProduct{ref: ref, doc: doc}
	}
	return out, nil
}

// Document mapping ----------------------------------------------------------

type orderDocument struct {
	Number          string               `firestore:"number"`
	UserID          string               `firestore:"userId"`
	Lines           []orderLineDocument  `firestore:"lines"`
	Shipping        addressDocument      `firestore:"shipping"`
	Status          string               `firestore:"status"`
	TotalAmount     int64                `firestore:"totalAmount"`
	RefundedAmount  int64                `firestore:"refundedAmount"`
	Currency        string               `firestore:"currency"`
	PaymentID       string               `firestore:"paymentId,omitempty"`
	Refunds         []refundDocument     `firestore:"refunds"`
	RefundStates    []string             `firestore:"refundStates"`
	StatusUpdatedAt time.Time            `firestore:"statusUpdatedAt"`
	CreatedAt       time.Time            `firestore:"createdAt"`
}

type orderLineDocument struct {
	ProductID        string `firestore:"productId"`
	ProductName      string `firestore:"productName"`
	UnitPrice        int64  `firestore:"unitPrice"`
	Quantity         int    `firestore:"qty"`
	LineTotal        int64  `firestore:"lineTotal"`
	RefundedQuantity int    `firestore:"refundedQty"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type refundDocument struct {
	ID          string     `firestore:"id"`
	ProductID   string     `firestore:"productId"`
	Quantity    int        `firestore:"qty"`
	UnitPrice   int64      `firestore:"unitPrice"`
	Amount      int64      `firestore:"amount"`
	Status      string     `firestore:"status"`
	Reason      string     `firestore:"reason,omitempty"`
	ManagerNote string     `firestore:"managerNote,omitempty"`
	RequestedAt time.Time  `firestore:"requestedAt"`
	ResolvedAt  *time.Time `firestore:"resolvedAt,omitempty"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = orderLineDocument{
			ProductID:        line.ProductID,
			ProductName:      line.ProductName,
			UnitPrice:        line.UnitPrice,
			Quantity:         line.Quantity,
			LineTotal:        line.LineTotal,
			RefundedQuantity: line.RefundedQuantity,
		}
	}
	refunds := make([]refundDocument, len(order.Refunds))
	for i, refund := range order.Refunds {
		refunds[i] = fromDomainRefund(refund)
	}
	doc := orderDocument{
		Number:          order.Number,
		UserID:          order.UserID,
		Lines:           lines,
		Shipping:        fromDomainAddress(order.ShippingAddress),
		Status:          string(order.Status),
		TotalAmount:     order.TotalAmount,
		RefundedAmount:  order.RefundedAmount,
		Currency:        order.Currency,
		PaymentID:       order.PaymentID,
		Refunds:         refunds,
		StatusUpdatedAt: order.StatusUpdatedAt.UTC(),
		CreatedAt:       order.CreatedAt.UTC(),
	}
	doc.RefundStates = refundStates(doc.Refunds)
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.OrderLine{
			ProductID:        line.ProductID,
			ProductName:      line.ProductName,
			UnitPrice:        line.UnitPrice,
			Quantity:         line.Quantity,
			LineTotal:        line.LineTotal,
			RefundedQuantity: line.RefundedQuantity,
		}
	}
	refunds := make([]domain.RefundRequest, len(d.Refunds))
	for i, refund := range d.Refunds {
		refunds[i] = refund.toDomain()
	}
	return domain.Order{
		ID:              id,
		Number:          d.Number,
		UserID:          d.UserID,
		Lines:           lines,
		ShippingAddress: d.Shipping.toDomain(),
		Status:          domain.OrderStatus(d.Status),
		TotalAmount:     d.TotalAmount,
		RefundedAmount:  d.RefundedAmount,
		Currency:        d.Currency,
		PaymentID:       d.PaymentID,
		Refunds:         refunds,
		StatusUpdatedAt: d.StatusUpdatedAt,
		CreatedAt:       d.CreatedAt,
	}
}

func fromDomainRefund(refund domain.RefundRequest) refundDocument {
	return refundDocument{
		ID:          refund.ID,
		ProductID:   refund.ProductID,
		Quantity:    refund.Quantity,
		UnitPrice:   refund.UnitPrice,
		Amount:      refund.Amount,
		Status:      string(refund.Status),
		Reason:      strings.TrimSpace(refund.Reason),
		ManagerNote: strings.TrimSpace(refund.ManagerNote),
		RequestedAt: refund.RequestedAt.UTC(),
		ResolvedAt:  refund.ResolvedAt,
	}
}

func (d refundDocument) toDomain() domain.RefundRequest {
	return domain.RefundRequest{
		ID:          d.ID,
		ProductID:   d.ProductID,
		Quantity:    d.Quantity,
		UnitPrice:   d.UnitPrice,
		Amount:      d.Amount,
		Status:      domain.RefundStatus(d.Status),
		Reason:      d.Reason,
		ManagerNote: d.ManagerNote,
		RequestedAt: d.RequestedAt,
		ResolvedAt:  d.ResolvedAt,
	}
}

func fromDomainAddress(a domain.Address) addressDocument {
	return addressDocument{
		Recipient:  strings.TrimSpace(a.Recipient),
		Street:     strings.TrimSpace(a.Street),
		City:       strings.TrimSpace(a.City),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		Recipient:  d.Recipient,
		Street:     d.Street,
		City:       d.City,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

// refundStates keeps a distinct status index per order so pending refund
// queues can be queried without unpacking every order document.
func refundStates(refunds []refundDocument) []string {
	seen := make(map[string]struct{}, len(refunds))
	states := make([]string, 0, len(refunds))
	for _, refund := range refunds {
		if _, ok := seen[refund.Status]; ok {
			continue
		}
		seen[refund.Status] = struct{}{}
		states = append(states, refund.Status)
	}
	sort.Strings(states)
	return states
}

type orderPageToken struct {
	ID        string
	CreatedAt time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode order page token json: %w", err)
	}
	return &token, nil
}

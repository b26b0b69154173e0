package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

// repoErr is a categorised repository failure for exercising error mapping.
type repoErr struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoErr) Error() string       { return e.msg }
func (e *repoErr) IsNotFound() bool    { return e.notFound }
func (e *repoErr) IsConflict() bool    { return e.conflict }
func (e *repoErr) IsUnavailable() bool { return e.unavailable }

var errNotImplemented = errors.New("not implemented")

type stubUserRepo struct {
	insertFn         func(ctx context.Context, user domain.User) error
	updateFn         func(ctx context.Context, user domain.User) error
	findByIDFn       func(ctx context.Context, userID string) (domain.User, error)
	findByEmailFn    func(ctx context.Context, email string) (domain.User, error)
	findByRefreshFn  func(ctx context.Context, token string) (domain.User, error)
	setRefreshFn     func(ctx context.Context, userID, token string, updatedAt time.Time) error
	setRoleFn        func(ctx context.Context, userID string, role domain.Role, updatedAt time.Time) (domain.User, error)
	addWishlistFn    func(ctx context.Context, userID, productID string, updatedAt time.Time) (domain.User, error)
	removeWishlistFn func(ctx context.Context, userID, productID string, updatedAt time.Time) (domain.User, error)
}

func (s *stubUserRepo) Insert(ctx context.Context, user domain.User) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, user)
	}
	return nil
}

func (s *stubUserRepo) Update(ctx context.Context, user domain.User) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, user)
	}
	return nil
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, userID)
	}
	return domain.User{}, errNotImplemented
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if s.findByEmailFn != nil {
		return s.findByEmailFn(ctx, email)
	}
	return domain.User{}, errNotImplemented
}

func (s *stubUserRepo) FindByRefreshToken(ctx context.Context, token string) (domain.User, error) {
	if s.findByRefreshFn != nil {
		return s.findByRefreshFn(ctx, token)
	}
	return domain.User{}, errNotImplemented
}

func (s *stubUserRepo) SetRefreshToken(ctx context.Context, userID, token string, updatedAt time.Time) error {
	if s.setRefreshFn != nil {
		return s.setRefreshFn(ctx, userID, token, updatedAt)
	}
	return nil
}

func (s *stubUserRepo) SetRole(ctx context.Context, userID string, role domain.Role, updatedAt time.Time) (domain.User, error) {
	if s.setRoleFn != nil {
		return s.setRoleFn(ctx, userID, role, updatedAt)
	}
	return domain.User{}, errNotImplemented
}

func (s *stubUserRepo) AddWishlist(ctx context.Context, userID, productID string, updatedAt time.Time) (domain.User, error) {
	if s.addWishlistFn != nil {
		return s.addWishlistFn(ctx, userID, productID, updatedAt)
	}
	return domain.User{}, errNotImplemented
}

func (s *stubUserRepo) RemoveWishlist(ctx context.Context, userID, productID string, updatedAt time.Time) (domain.User, error) {
	if s.removeWishlistFn != nil {
		return s.removeWishlistFn(ctx, userID, productID, updatedAt)
	}
	return domain.User{}, errNotImplemented
}

type stubProductRepo struct {
	insertFn       func(ctx context.Context, product domain.Product) error
	updateFn       func(ctx context.Context, product domain.Product) error
	deleteFn       func(ctx context.Context, productID string) error
	markInactiveFn func(ctx context.Context, productID string, updatedAt time.Time) error
	findByIDFn     func(ctx context.Context, productID string) (domain.Product, error)
	findByIDsFn    func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	listFn         func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
	adjustStockFn  func(ctx context.Context, productID string, delta int, now time.Time) (domain.Product, error)
}

func (s *stubProductRepo) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Delete(ctx context.Context, productID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, productID)
	}
	return nil
}

func (s *stubProductRepo) MarkInactive(ctx context.Context, productID string, updatedAt time.Time) error {
	if s.markInactiveFn != nil {
		return s.markInactiveFn(ctx, productID, updatedAt)
	}
	return nil
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, productID)
	}
	return domain.Product{}, errNotImplemented
}

func (s *stubProductRepo) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findByIDsFn != nil {
		return s.findByIDsFn(ctx, productIDs)
	}
	return map[string]domain.Product{}, nil
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func (s *stubProductRepo) AdjustStock(ctx context.Context, productID string, delta int, now time.Time) (domain.Product, error) {
	if s.adjustStockFn != nil {
		return s.adjustStockFn(ctx, productID, delta, now)
	}
	return domain.Product{}, errNotImplemented
}

type stubReviewRepo struct {
	upsertFn func(ctx context.Context, review domain.Review) (domain.Review, error)
	listFn   func(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
}

func (s *stubReviewRepo) Upsert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, review)
	}
	return review, nil
}

func (s *stubReviewRepo) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listFn != nil {
		return s.listFn(ctx, productID, pager)
	}
	return domain.CursorPage[domain.Review]{}, nil
}

type stubCartRepo struct {
	getFn          func(ctx context.Context, owner domain.CartOwner) (domain.Cart, error)
	replaceItemsFn func(ctx context.Context, owner domain.CartOwner, items []domain.CartItem, now time.Time) (domain.Cart, error)
	mergeIntoFn    func(ctx context.Context, guest, user domain.CartOwner, now time.Time) (domain.Cart, error)
	deleteFn       func(ctx context.Context, owner domain.CartOwner) error
}

func (s *stubCartRepo) Get(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, owner)
	}
	return domain.Cart{Owner: owner}, nil
}

func (s *stubCartRepo) ReplaceItems(ctx context.Context, owner domain.CartOwner, items []domain.CartItem, now time.Time) (domain.Cart, error) {
	if s.replaceItemsFn != nil {
		return s.replaceItemsFn(ctx, owner, items, now)
	}
	return domain.Cart{Owner: owner, Items: items, UpdatedAt: now}, nil
}

func (s *stubCartRepo) MergeInto(ctx context.Context, guest, user domain.CartOwner, now time.Time) (domain.Cart, error) {
	if s.mergeIntoFn != nil {
		return s.mergeIntoFn(ctx, guest, user, now)
	}
	return domain.Cart{Owner: user}, nil
}

func (s *stubCartRepo) Delete(ctx context.Context, owner domain.CartOwner) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, owner)
	}
	return nil
}

type stubOrderRepo struct {
	placeFn         func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error)
	findByIDFn      func(ctx context.Context, orderID string) (domain.Order, error)
	listFn          func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateStatusFn  func(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) (domain.Order, error)
	cancelFn        func(ctx context.Context, orderID string, now time.Time) (domain.Order, error)
	appendRefundFn  func(ctx context.Context, orderID string, refund domain.RefundRequest) (domain.Order, error)
	resolveRefundFn func(ctx context.Context, req repositories.ResolveRefundRequest) (domain.Order, error)
	recordCaptureFn func(ctx context.Context, payment domain.Payment) (domain.Order, error)
	listRefundsFn   func(ctx context.Context, filter repositories.RefundListFilter) ([]repositories.RefundListEntry, error)
}

func (s *stubOrderRepo) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, req)
	}
	return domain.Order{}, errNotImplemented
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID)
	}
	return domain.Order{}, errNotImplemented
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, orderID, status, now)
	}
	return domain.Order{}, errNotImplemented
}

func (s *stubOrderRepo) Cancel(ctx context.Context, orderID string, now time.Time) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, orderID, now)
	}
	return domain.Order{}, errNotImplemented
}

func (s *stubOrderRepo) AppendRefund(ctx context.Context, orderID string, refund domain.RefundRequest) (domain.Order, error) {
	if s.appendRefundFn != nil {
		return s.appendRefundFn(ctx, orderID, refund)
	}
	return domain.Order{}, errNotImplemented
}

func (s *stubOrderRepo) ResolveRefund(ctx context.Context, req repositories.ResolveRefundRequest) (domain.Order, error) {
	if s.resolveRefundFn != nil {
		return s.resolveRefundFn(ctx, req)
	}
	return domain.Order{}, errNotImplemented
}

func (s *stubOrderRepo) RecordCapture(ctx context.Context, payment domain.Payment) (domain.Order, error) {
	if s.recordCaptureFn != nil {
		return s.recordCaptureFn(ctx, payment)
	}
	return domain.Order{}, errNotImplemented
}

func (s *stubOrderRepo) ListRefunds(ctx context.Context, filter repositories.RefundListFilter) ([]repositories.RefundListEntry, error) {
	if s.listRefundsFn != nil {
		return s.listRefundsFn(ctx, filter)
	}
	return nil, nil
}

type stubPaymentRepo struct {
	findByIDFn    func(ctx context.Context, paymentID string) (domain.Payment, error)
	findByOrderFn func(ctx context.Context, orderID string) (domain.Payment, error)
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, paymentID)
	}
	return domain.Payment{}, errNotImplemented
}

func (s *stubPaymentRepo) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	if s.findByOrderFn != nil {
		return s.findByOrderFn(ctx, orderID)
	}
	return domain.Payment{}, errNotImplemented
}

type stubCounterRepo struct {
	nextFn func(ctx context.Context, counterID string, step int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	return nil
}

// captureEvents records published events for assertions.
type captureEvents struct {
	events []Event
	err    error
}

func (c *captureEvents) Publish(_ context.Context, event Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

type stubTokenIssuer struct {
	issueFn         func(userID, email string, role domain.Role) (string, time.Time, error)
	issueRefreshFn  func(userID, email string) (string, time.Time, error)
	verifyRefreshFn func(token string) (string, string, error)
}

func (s *stubTokenIssuer) Issue(userID, email string, role domain.Role) (string, time.Time, error) {
	if s.issueFn != nil {
		return s.issueFn(userID, email, role)
	}
	return "token", time.Time{}, nil
}

func (s *stubTokenIssuer) IssueRefresh(userID, email string) (string, time.Time, error) {
	if s.issueRefreshFn != nil {
		return s.issueRefreshFn(userID, email)
	}
	return "refresh-token", time.Time{}, nil
}

func (s *stubTokenIssuer) VerifyRefresh(token string) (string, string, error) {
	if s.verifyRefreshFn != nil {
		return s.verifyRefreshFn(token)
	}
	return "", "", errNotImplemented
}

type stubPasswordHasher struct {
	hashFn    func(password string) (string, error)
	compareFn func(hash, password string) error
}

func (s *stubPasswordHasher) Hash(password string) (string, error) {
	if s.hashFn != nil {
		return s.hashFn(password)
	}
	return "hashed:" + password, nil
}

func (s *stubPasswordHasher) Compare(hash, password string) error {
	if s.compareFn != nil {
		return s.compareFn(hash, password)
	}
	return nil
}

type stubCartMerger struct {
	mergeFn func(ctx context.Context, guestID, userID string) error
	calls   int
}

func (s *stubCartMerger) MergeGuestCart(ctx context.Context, guestID, userID string) error {
	s.calls++
	if s.mergeFn != nil {
		return s.mergeFn(ctx, guestID, userID)
	}
	return nil
}

// captureInvoices records invoice delivery attempts for assertions.
type captureInvoices struct {
	delivered []string
	decisions []string
}

func (c *captureInvoices) Render(_ context.Context, order Order) ([]byte, error) {
	return []byte("%PDF"), nil
}

func (c *captureInvoices) Deliver(_ context.Context, order Order, email string) {
	c.delivered = append(c.delivered, order.ID+":"+email)
}

func (c *captureInvoices) RefundDecision(_ context.Context, order Order, refund RefundRequest, email string) {
	c.decisions = append(c.decisions, refund.ID+":"+email)
}

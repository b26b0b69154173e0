package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const paymentIDPrefix = "pay_"

var (
	// ErrPaymentInvalidInput signals invalid card data or parameters.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the order or payment does not exist.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentInvalidState indicates the order cannot be paid.
	ErrPaymentInvalidState = errors.New("payment: invalid state")
	// ErrPaymentDeclined indicates the card number failed validation.
	ErrPaymentDeclined = errors.New("payment: card declined")
	// ErrPaymentForbidden indicates the caller does not own the order.
	ErrPaymentForbidden = errors.New("payment: forbidden")
)

// PaymentServiceDeps bundles collaborators for the mock payment gateway.
type PaymentServiceDeps struct {
	Payments    repositories.PaymentRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Events      EventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments repositories.PaymentRepository
	orders   repositories.OrderRepository
	clock    func() time.Time
	newID    func() string
	events   EventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
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

	return &paymentService{
		payments: deps.Payments,
		orders:   deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// Capture runs the mock charge. The card number only has to pass the Luhn
// check; no external processor is involved. An order accepts exactly one
// payment and must still be processing; the repository re-verifies both
// inside the transaction that commits the capture.
func (s *paymentService) Capture(ctx context.Context, cmd CapturePaymentCommand) (Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	holder := strings.TrimSpace(cmd.CardHolder)
	if holder == "" {
		return Payment{}, fmt.Errorf("%w: card holder is required", ErrPaymentInvalidInput)
	}
	if !domain.LuhnValid(cmd.CardNumber) {
		return Payment{}, fmt.Errorf("%w: card number failed validation", ErrPaymentDeclined)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Payment{}, s.mapPaymentError(err)
	}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
		return Payment{}, fmt.Errorf("%w: order %s", ErrPaymentForbidden, orderID)
	}
	if order.Status != domain.OrderStatusProcessing {
		return Payment{}, fmt.Errorf("%w: order %s is %s", ErrPaymentInvalidState, orderID, order.Status)
	}
	if order.PaymentID != "" {
		return Payment{}, fmt.Errorf("%w: order %s is already paid", ErrPaymentInvalidState, orderID)
	}

	now := s.clock()
	payment := domain.Payment{
		ID:             paymentIDPrefix + s.newID(),
		OrderID:        order.ID,
		UserID:         order.UserID,
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		CardLast4:      domain.CardLast4(cmd.CardNumber),
		CardHolder:     holder,
		TransactionRef: "TXN-" + s.newID(),
		CapturedAt:     now,
	}

	if _, err := s.orders.RecordCapture(ctx, payment); err != nil {
		return Payment{}, s.mapPaymentError(err)
	}

	s.publish(ctx, Event{
		Name:       "payment.captured",
		OrderID:    order.ID,
		UserID:     order.UserID,
		OccurredAt: now,
		Payload: map[string]any{
			"payment": payment.ID,
			"amount":  payment.Amount,
		},
	})
	return payment, nil
}

func (s *paymentService) FindByOrder(ctx context.Context, orderID string) (Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return Payment{}, s.mapPaymentError(err)
	}
	return payment, nil
}

func (s *paymentService) publish(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"event": event.Name,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *paymentService) mapPaymentError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInvalidState:
			return fmt.Errorf("%w: %v", ErrPaymentInvalidState, err)
		default:
			return fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentInvalidState, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

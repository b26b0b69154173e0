package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

func processingOrder() domain.Order {
	return domain.Order{
		ID:          "ord_1",
		Number:      "MC-2026-000001",
		UserID:      "usr_1",
		Status:      domain.OrderStatusProcessing,
		TotalAmount: 36000,
		Currency:    "EUR",
	}
}

func newTestPaymentService(t *testing.T, deps PaymentServiceDeps) PaymentService {
	t.Helper()
	if deps.Payments == nil {
		deps.Payments = &stubPaymentRepo{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func TestPaymentServiceCaptureStoresMaskedCard(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	order := processingOrder()

	var recorded domain.Payment
	orders := &stubOrderRepo{
		findByIDFn: func(context.Context, string) (domain.Order, error) { return order, nil },
		recordCaptureFn: func(_ context.Context, payment domain.Payment) (domain.Order, error) {
			recorded = payment
			order.PaymentID = payment.ID
			return order, nil
		},
	}
	events := &captureEvents{}

	svc := newTestPaymentService(t, PaymentServiceDeps{
		Orders:      orders,
		Events:      events,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "testid" },
	})

	payment, err := svc.Capture(context.Background(), CapturePaymentCommand{
		OrderID:    "ord_1",
		UserID:     "usr_1",
		CardNumber: "4242 4242 4242 4242",
		CardHolder: "Maria Keller",
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if payment.ID != "pay_testid" {
		t.Fatalf("unexpected payment id %s", payment.ID)
	}
	if payment.CardLast4 != "4242" {
		t.Fatalf("unexpected masked card %s", payment.CardLast4)
	}
	if payment.Amount != 36000 || payment.Currency != "EUR" {
		t.Fatalf("payment must charge the order total, got %+v", payment)
	}
	if payment.TransactionRef != "TXN-testid" {
		t.Fatalf("unexpected transaction ref %s", payment.TransactionRef)
	}
	if recorded.ID != payment.ID || recorded.OrderID != order.ID {
		t.Fatalf("payment must be recorded on the order, got %+v", recorded)
	}
	if len(events.events) != 1 || events.events[0].Name != "payment.captured" {
		t.Fatalf("expected capture event, got %+v", events.events)
	}
}

func TestPaymentServiceCaptureDeclinesLuhnFailures(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{})

	_, err := svc.Capture(context.Background(), CapturePaymentCommand{
		OrderID:    "ord_1",
		CardNumber: "4242 4242 4242 4241",
		CardHolder: "Maria Keller",
	})
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected declined, got %v", err)
	}
}

func TestPaymentServiceCaptureRejectsWrongState(t *testing.T) {
	order := processingOrder()
	order.Status = domain.OrderStatusCanceled
	orders := &stubOrderRepo{findByIDFn: func(context.Context, string) (domain.Order, error) { return order, nil }}

	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	_, err := svc.Capture(context.Background(), CapturePaymentCommand{
		OrderID:    "ord_1",
		UserID:     "usr_1",
		CardNumber: "4242424242424242",
		CardHolder: "Maria Keller",
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestPaymentServiceCaptureRejectsDoublePayment(t *testing.T) {
	order := processingOrder()
	order.PaymentID = "pay_existing"
	orders := &stubOrderRepo{findByIDFn: func(context.Context, string) (domain.Order, error) { return order, nil }}

	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	_, err := svc.Capture(context.Background(), CapturePaymentCommand{
		OrderID:    "ord_1",
		UserID:     "usr_1",
		CardNumber: "4242424242424242",
		CardHolder: "Maria Keller",
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestPaymentServiceCaptureSurfacesCommitTimeStateChange(t *testing.T) {
	// The order still reads as processing, but a cancel wins the race
	// before the capture transaction commits.
	orders := &stubOrderRepo{
		findByIDFn: func(context.Context, string) (domain.Order, error) { return processingOrder(), nil },
		recordCaptureFn: func(_ context.Context, payment domain.Payment) (domain.Order, error) {
			return domain.Order{}, repositories.NewStockError(repositories.StockErrorInvalidState, "order ord_1 is canceled", nil)
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	_, err := svc.Capture(context.Background(), CapturePaymentCommand{
		OrderID:    "ord_1",
		UserID:     "usr_1",
		CardNumber: "4242424242424242",
		CardHolder: "Maria Keller",
	})
	if !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestPaymentServiceCaptureChecksOwnership(t *testing.T) {
	orders := &stubOrderRepo{findByIDFn: func(context.Context, string) (domain.Order, error) {
		return processingOrder(), nil
	}}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	_, err := svc.Capture(context.Background(), CapturePaymentCommand{
		OrderID:    "ord_1",
		UserID:     "usr_other",
		CardNumber: "4242424242424242",
		CardHolder: "Maria Keller",
	})
	if !errors.Is(err, ErrPaymentForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestPaymentServiceFindByOrderMapsNotFound(t *testing.T) {
	payments := &stubPaymentRepo{findByOrderFn: func(context.Context, string) (domain.Payment, error) {
		return domain.Payment{}, &repoErr{msg: "no payment", notFound: true}
	}}
	svc := newTestPaymentService(t, PaymentServiceDeps{Payments: payments})

	_, err := svc.FindByOrder(context.Background(), "ord_1")
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

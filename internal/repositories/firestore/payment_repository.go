package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
)

const paymentCollection = "payments"

// PaymentRepository reads mock payment captures. The documents themselves
// are created by OrderRepository.RecordCapture inside the order transaction.
type PaymentRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection, nil, nil)
	return &PaymentRepository{provider: provider, base: base}, nil
}

// FindByID loads a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return domain.Payment{}, errors.New("payment find: id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByOrder returns the capture recorded against the order.
func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	if r == nil || r.provider == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Payment{}, errors.New("payment find by order: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.findByOrder", err)
	}

	iter := client.Collection(paymentCollection).Query.
		Where("orderId", "==", orderID).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Payment{}, pfirestore.WrapError("payments.findByOrder", status.Errorf(codes.NotFound, "no payment for order %s", orderID))
	}
	if err != nil {
		return domain.Payment{}, pfirestore.WrapError("payments.findByOrder", err)
	}

	var doc paymentDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Payment{}, fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Document mapping ----------------------------------------------------------

type paymentDocument struct {
	OrderID        string    `firestore:"orderId"`
	UserID         string    `firestore:"userId"`
	Amount         int64     `firestore:"amount"`
	Currency       string    `firestore:"currency"`
	CardLast4      string    `firestore:"cardLast4"`
	CardHolder     string    `firestore:"cardHolder"`
	TransactionRef string    `firestore:"transactionRef"`
	CapturedAt     time.Time `firestore:"capturedAt"`
}

func fromDomainPayment(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:        strings.TrimSpace(payment.OrderID),
		UserID:         strings.TrimSpace(payment.UserID),
		Amount:         payment.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(payment.Currency)),
		CardLast4:      payment.CardLast4,
		CardHolder:     strings.TrimSpace(payment.CardHolder),
		TransactionRef: payment.TransactionRef,
		CapturedAt:     payment.CapturedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:             id,
		OrderID:        d.OrderID,
		UserID:         d.UserID,
		Amount:         d.Amount,
		Currency:       d.Currency,
		CardLast4:      d.CardLast4,
		CardHolder:     d.CardHolder,
		TransactionRef: d.TransactionRef,
		CapturedAt:     d.CapturedAt,
	}
}

package handlers

import (
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

type addressPayload struct {
	Recipient  string `json:"recipient"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func buildAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
		Recipient:  a.Recipient,
		Street:     a.Street,
		City:       a.City,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Recipient:  p.Recipient,
		Street:     p.Street,
		City:       p.City,
		PostalCode: p.PostalCode,
		Country:    p.Country,
	}
}

type userPayload struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	Role      string           `json:"role"`
	Wishlist  []string         `json:"wishlist,omitempty"`
	Addresses []addressPayload `json:"addresses,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func buildUserPayload(user domain.User) userPayload {
	payload := userPayload{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		Wishlist:  user.Wishlist,
		CreatedAt: user.CreatedAt,
	}
	for _, address := range user.Addresses {
		payload.Addresses = append(payload.Addresses, buildAddressPayload(address))
	}
	return payload
}

type discountPayload struct {
	Percent   int        `json:"percent"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type productPayload struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	Category       string           `json:"category,omitempty"`
	Price          int64            `json:"price"`
	EffectivePrice int64            `json:"effective_price"`
	Currency       string           `json:"currency"`
	Stock          int              `json:"stock"`
	Status         string           `json:"status"`
	Discount       *discountPayload `json:"discount,omitempty"`
	RatingAverage  float64          `json:"rating_average"`
	RatingCount    int              `json:"rating_count"`
	CreatedAt      time.Time        `json:"created_at"`
}

func buildProductPayload(product domain.Product, now time.Time) productPayload {
	payload := productPayload{
		ID:             product.ID,
		Name:           product.Name,
		Description:    product.Description,
		Category:       product.Category,
		Price:          product.Price,
		EffectivePrice: product.EffectivePrice(now),
		Currency:       product.Currency,
		Stock:          product.Stock,
		Status:         string(product.Status),
		RatingAverage:  product.RatingAverage,
		RatingCount:    product.RatingCount,
		CreatedAt:      product.CreatedAt,
	}
	if product.Discount != nil {
		payload.Discount = &discountPayload{
			Percent:   product.Discount.Percent,
			ExpiresAt: product.Discount.ExpiresAt,
		}
	}
	return payload
}

type reviewPayload struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func buildReviewPayload(review domain.Review) reviewPayload {
	return reviewPayload{
		ID:        review.ID,
		ProductID: review.ProductID,
		UserID:    review.UserID,
		UserName:  review.UserName,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt,
		UpdatedAt: review.UpdatedAt,
	}
}

type cartLinePayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	LineTotal   int64  `json:"line_total"`
}

type cartPayload struct {
	Lines     []cartLinePayload `json:"lines"`
	Total     int64             `json:"total"`
	Currency  string            `json:"currency"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func buildCartPayload(view domain.CartView) cartPayload {
	payload := cartPayload{
		Lines:     []cartLinePayload{},
		Total:     view.Total,
		Currency:  view.Currency,
		UpdatedAt: view.UpdatedAt,
	}
	for _, line := range view.Lines {
		payload.Lines = append(payload.Lines, cartLinePayload{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			LineTotal:   line.LineTotal,
		})
	}
	return payload
}

type orderLinePayload struct {
	ProductID        string `json:"product_id"`
	ProductName      string `json:"product_name"`
	UnitPrice        int64  `json:"unit_price"`
	Quantity         int    `json:"quantity"`
	LineTotal        int64  `json:"line_total"`
	RefundedQuantity int    `json:"refunded_quantity,omitempty"`
}

type refundPayload struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unit_price"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	ManagerNote string     `json:"manager_note,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func buildRefundPayload(refund domain.RefundRequest) refundPayload {
	return refundPayload{
		ID:          refund.ID,
		ProductID:   refund.ProductID,
		Quantity:    refund.Quantity,
		UnitPrice:   refund.UnitPrice,
		Amount:      refund.Amount,
		Status:      string(refund.Status),
		Reason:      refund.Reason,
		ManagerNote: refund.ManagerNote,
		RequestedAt: refund.RequestedAt,
		ResolvedAt:  refund.ResolvedAt,
	}
}

type orderPayload struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	UserID          string             `json:"user_id"`
	Lines           []orderLinePayload `json:"lines"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	Status          string             `json:"status"`
	TotalAmount     int64              `json:"total_amount"`
	RefundedAmount  int64              `json:"refunded_amount"`
	Currency        string             `json:"currency"`
	PaymentID       string             `json:"payment_id,omitempty"`
	Refunds         []refundPayload    `json:"refunds,omitempty"`
	StatusUpdatedAt time.Time          `json:"status_updated_at"`
	CreatedAt       time.Time          `json:"created_at"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		Number:          order.Number,
		UserID:          order.UserID,
		Lines:           []orderLinePayload{},
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		Status:          string(order.Status),
		TotalAmount:     order.TotalAmount,
		RefundedAmount:  order.RefundedAmount,
		Currency:        order.Currency,
		PaymentID:       order.PaymentID,
		StatusUpdatedAt: order.StatusUpdatedAt,
		CreatedAt:       order.CreatedAt,
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ProductID:        line.ProductID,
			ProductName:      line.ProductName,
			UnitPrice:        line.UnitPrice,
			Quantity:         line.Quantity,
			LineTotal:        line.LineTotal,
			RefundedQuantity: line.RefundedQuantity,
		})
	}
	for _, refund := range order.Refunds {
		payload.Refunds = append(payload.Refunds, buildRefundPayload(refund))
	}
	return payload
}

type paymentPayload struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	CardLast4      string    `json:"card_last4"`
	CardHolder     string    `json:"card_holder"`
	TransactionRef string    `json:"transaction_ref"`
	CapturedAt     time.Time `json:"captured_at"`
}

func buildPaymentPayload(payment domain.Payment) paymentPayload {
	return paymentPayload{
		ID:             payment.ID,
		OrderID:        payment.OrderID,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		CardLast4:      payment.CardLast4,
		CardHolder:     payment.CardHolder,
		TransactionRef: payment.TransactionRef,
		CapturedAt:     payment.CapturedAt,
	}
}

type refundEntryPayload struct {
	OrderID     string        `json:"order_id"`
	OrderNumber string        `json:"order_number"`
	UserID      string        `json:"user_id"`
	Refund      refundPayload `json:"refund"`
}

func buildRefundEntryPayload(entry repositories.RefundListEntry) refundEntryPayload {
	return refundEntryPayload{
		OrderID:     entry.Order.ID,
		OrderNumber: entry.Order.Number,
		UserID:      entry.Order.UserID,
		Refund:      buildRefundPayload(entry.Refund),
	}
}

type revenueBucketPayload struct {
	Day      string `json:"day"`
	Revenue  int64  `json:"revenue"`
	Refunded int64  `json:"refunded"`
	Orders   int    `json:"orders"`
}

type revenueReportPayload struct {
	From     time.Time              `json:"from"`
	To       time.Time              `json:"to"`
	Currency string                 `json:"currency,omitempty"`
	Revenue  int64                  `json:"revenue"`
	Refunded int64                  `json:"refunded"`
	Cost     int64                  `json:"cost"`
	Profit   int64                  `json:"profit"`
	Orders   int                    `json:"orders"`
	Buckets  []revenueBucketPayload `json:"buckets"`
}

func buildRevenueReportPayload(report domain.RevenueReport) revenueReportPayload {
	payload := revenueReportPayload{
		From:     report.From,
		To:       report.To,
		Currency: report.Currency,
		Revenue:  report.Revenue,
		Refunded: report.Refunded,
		Cost:     report.Cost,
		Profit:   report.Profit,
		Orders:   report.Orders,
		Buckets:  []revenueBucketPayload{},
	}
	for _, bucket := range report.Buckets {
		payload.Buckets = append(payload.Buckets, revenueBucketPayload{
			Day:      bucket.Day,
			Revenue:  bucket.Revenue,
			Refunded: bucket.Refunded,
			Orders:   bucket.Orders,
		})
	}
	return payload
}

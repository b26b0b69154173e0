package domain

import (
	"time"
)

// RefundWindow is how long after placement a delivered order stays
// refundable. The boundary day is inclusive.
const RefundWindow = 30 * 24 * time.Hour

// CostRate is the fixed cost estimate used by revenue reporting,
// expressed in percent of gross revenue.
const CostRate = 70

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusInTransit, OrderStatusCanceled},
	OrderStatusInTransit:  {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusRefunded},
	OrderStatusCanceled:   {},
	OrderStatusRefunded:   {},
}

// CanTransition reports whether an order may move from one status to the
// next. The lifecycle is forward-only; no edge ever re-enters an earlier
// state.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidOrderStatus reports whether s names a known lifecycle state.
func ValidOrderStatus(s OrderStatus) bool {
	_, ok := orderStatusTransitions[s]
	return ok
}

// AssignableOrderStatus reports whether s may be supplied to the status
// update operation. Cancellation and terminal refund go through their own
// flows, so only the fulfilment states are assignable directly.
func AssignableOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusProcessing, OrderStatusInTransit, OrderStatusDelivered:
		return true
	}
	return false
}

// Cancelable reports whether the order may still be canceled by its owner.
func (o Order) Cancelable() bool {
	return o.Status == OrderStatusProcessing
}

// Line returns the order line for a product, if present.
func (o Order) Line(productID string) (OrderLine, bool) {
	for _, line := range o.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return OrderLine{}, false
}

// Refund returns the embedded refund request with the given ID, if present.
func (o Order) Refund(refundID string) (RefundRequest, bool) {
	for _, r := range o.Refunds {
		if r.ID == refundID {
			return r, true
		}
	}
	return RefundRequest{}, false
}

// PendingRefundQuantity sums the quantity held by pending refund requests
// for one product line.
func (o Order) PendingRefundQuantity(productID string) int {
	total := 0
	for _, r := range o.Refunds {
		if r.ProductID == productID && r.Status == RefundStatusPending {
			total += r.Quantity
		}
	}
	return total
}

// HasPendingRefund reports whether a pending request already exists for the
// product. At most one pending request per line is allowed.
func (o Order) HasPendingRefund(productID string) bool {
	for _, r := range o.Refunds {
		if r.ProductID == productID && r.Status == RefundStatusPending {
			return true
		}
	}
	return false
}

// WithinRefundWindow reports whether a refund may still be requested at the
// given instant. The window starts at placement and the last day counts.
func (o Order) WithinRefundWindow(now time.Time) bool {
	return !now.After(o.CreatedAt.Add(RefundWindow))
}

// RefundableQuantity is how many units of a line can still be claimed,
// excluding already refunded units and units tied up in pending requests.
func (o Order) RefundableQuantity(productID string) int {
	line, ok := o.Line(productID)
	if !ok {
		return 0
	}
	remaining := line.Quantity - line.RefundedQuantity - o.PendingRefundQuantity(productID)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FullyRefunded reports whether every unit of every line has been refunded.
func (o Order) FullyRefunded() bool {
	for _, line := range o.Lines {
		if line.RefundedQuantity < line.Quantity {
			return false
		}
	}
	return len(o.Lines) > 0
}

// Paid reports whether a payment was captured for the order.
func (o Order) Paid() bool { return o.PaymentID != "" }

// BuildOrderLine snapshots a cart line against the product at placement
// time. The effective price is captured once and becomes immutable.
func BuildOrderLine(p Product, quantity int, now time.Time) OrderLine {
	unit := p.EffectivePrice(now)
	return OrderLine{
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   unit,
		Quantity:    quantity,
		LineTotal:   unit * int64(quantity),
	}
}

// OrderTotal sums line totals.
func OrderTotal(lines []OrderLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.LineTotal
	}
	return total
}

// EstimatedCost applies the fixed cost rate to gross revenue, rounding down.
func EstimatedCost(revenue int64) int64 {
	return revenue * CostRate / 100
}

// Validate checks that every address field is present.
func (a Address) Validate() error {
	switch {
	case a.Recipient == "":
		return &FieldError{Field: "recipient"}
	case a.Street == "":
		return &FieldError{Field: "street"}
	case a.City == "":
		return &FieldError{Field: "city"}
	case a.PostalCode == "":
		return &FieldError{Field: "postalCode"}
	case a.Country == "":
		return &FieldError{Field: "country"}
	}
	return nil
}

// FieldError names a missing or malformed input field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string { return "missing field " + e.Field }

// LuhnValid reports whether the digit string passes the Luhn checksum. Spaces
// and dashes are tolerated; any other non-digit fails.
func LuhnValid(number string) bool {
	digits := make([]int, 0, len(number))
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	if len(digits) < 12 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// CardLast4 extracts the last four digits of a card number for receipts.
func CardLast4(number string) string {
	digits := make([]byte, 0, len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits = append(digits, byte(r))
		}
	}
	if len(digits) < 4 {
		return string(digits)
	}
	return string(digits[len(digits)-4:])
}

// MergeCartItems folds source lines into destination lines, summing
// quantities when the same product appears on both sides. Destination
// ordering is preserved; new products append in source order.
func MergeCartItems(dst, src []CartItem) []CartItem {
	merged := make([]CartItem, len(dst))
	copy(merged, dst)
	index := make(map[string]int, len(merged))
	for i, item := range merged {
		index[item.ProductID] = i
	}
	for _, item := range src {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

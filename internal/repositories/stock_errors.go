package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock-coupled operations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorProductNotFound indicates the product has no catalog record.
	StockErrorProductNotFound StockErrorCode = "stock_product_not_found"
	// StockErrorEmptyCart indicates placement was attempted with no cart lines.
	StockErrorEmptyCart StockErrorCode = "stock_empty_cart"
	// StockErrorInvalidState indicates the order status forbids the operation.
	StockErrorInvalidState StockErrorCode = "stock_invalid_state"
)

// StockError wraps stock-specific failures with machine readable codes.
// ProductID names the offending product when the failure is line-scoped.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithProduct attaches the offending product to the error.
func (e *StockError) WithProduct(productID string) *StockError {
	if e == nil {
		return nil
	}
	e.ProductID = productID
	return e
}

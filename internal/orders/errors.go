package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrAmountMismatch     = errors.New("total amount mismatch")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidSignature   = errors.New("invalid payment signature")
	ErrAlreadyProcessed   = errors.New("payment already processed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrConflict           = errors.New("concurrent update")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// StockError names the first product that cannot cover the request.
type StockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s. available: %d, requested: %d", name, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

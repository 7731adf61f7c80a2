package core

import (
	"fmt"
	"strings"
)

// Machine-readable error codes rendered to callers alongside the human
// description. Expected business-rule violations are returned as values;
// panics are reserved for genuine programming errors.
const (
	CodeValidation        = "Validation.Invalid"
	CodeNotFound          = "NotFound"
	CodeInsufficientStock = "StockTransfer.InsufficientStock"
	CodeNoStock           = "Fulfillment.NoStock"
	CodeNoLocation        = "Fulfillment.NoLocation"
	CodeEmptyPlan         = "Fulfillment.Empty"
)

// DomainError is an expected business-rule violation with a stable code.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError reports a locally detectable bad input. Never retried.
func NewValidationError(format string, args ...any) *DomainError {
	return &DomainError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports an unknown variant, location, or transfer id.
// kind is the PascalCase entity name, e.g. "Variant" or "StockLocation".
func NewNotFoundError(kind, id string) *DomainError {
	return &DomainError{Code: CodeNotFound + "." + kind, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// InsufficientStockError reports a requested quantity exceeding the
// available (or on-hand) quantity of a non-backorderable stock item. It
// carries both figures so the caller can offer backorder or substitution.
type InsufficientStockError struct {
	VariantID string
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: variant %s has %d available, %d requested",
		CodeInsufficientStock, e.VariantID, e.Available, e.Requested)
}

// ErrorList accumulates per-item errors from multi-item operations such
// as transfers. It is returned whole rather than stopping at the first
// failure.
type ErrorList []error

func (l ErrorList) Error() string {
	msgs := make([]string, len(l))
	for i, err := range l {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the accumulated errors to errors.Is / errors.As.
func (l ErrorList) Unwrap() []error { return l }

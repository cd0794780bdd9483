package checkout

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrValidationFailed matches every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")
	// ErrShippingThresholdUnmet matches every *ShippingThresholdError.
	ErrShippingThresholdUnmet = errors.New("free shipping threshold not met")
	// ErrSubmissionFailed matches every *SubmissionError.
	ErrSubmissionFailed = errors.New("order submission failed")
	// ErrSessionClosed is returned by any operation on a session whose order was placed.
	ErrSessionClosed = errors.New("checkout session closed")
	// ErrInvalidStep is returned for navigation the step machine does not allow.
	ErrInvalidStep = errors.New("invalid checkout step")
	// ErrUnknownShippingMethod is returned when a shipping method name is not configured.
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
)

// ValidationError lists the required fields of a step that are missing.
type ValidationError struct {
	Step   Step
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s step incomplete: missing %s", e.Step, strings.Join(e.Fields, ", "))
}

// Is reports whether target is ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ShippingThresholdError reports a free-shipping selection below its threshold.
type ShippingThresholdError struct {
	Method    string
	MinFree   decimal.Decimal
	Subtotal  decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *ShippingThresholdError) Error() string {
	return fmt.Sprintf("%s requires a subtotal of at least %s: add %s more",
		e.Method, e.MinFree.StringFixed(2), e.Shortfall.StringFixed(2))
}

// Is reports whether target is ErrShippingThresholdUnmet.
func (e *ShippingThresholdError) Is(target error) bool {
	return target == ErrShippingThresholdUnmet
}

// SubmissionError wraps a failure of the order submission backend. The
// session stays at review and can be submitted again.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "submit order: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSubmissionFailed.
func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionFailed
}

package checkout

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/minimercado-till/internal/money"
)

// GenericSubmissionFailure is reported when a submission fails without a
// reason from the commerce service.
const GenericSubmissionFailure = "sale submission failed"

// Sentinel errors for payment flow validation.
var (
	ErrCartNotReady        = errors.New("cart not ready for payment")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrAlreadySubmitting   = errors.New("sale submission already in progress")
	ErrPaymentNotStarted   = errors.New("payment not started")
	ErrInvalidAmount       = errors.New("amount tendered must not be negative")
	ErrClosed              = errors.New("session closed")
)

// CartNotReadyError lists every unmet precondition for entering payment.
type CartNotReadyError struct {
	EmptyCart       bool
	MissingCustomer bool
}

func (e *CartNotReadyError) Error() string {
	var reasons []string
	if e.EmptyCart {
		reasons = append(reasons, "cart is empty")
	}
	if e.MissingCustomer {
		reasons = append(reasons, "customer id not set")
	}
	return "cart not ready for payment: " + strings.Join(reasons, ", ")
}

// Is reports ErrCartNotReady as the matching sentinel.
func (e *CartNotReadyError) Is(target error) bool {
	return target == ErrCartNotReady
}

// InsufficientPaymentError indicates the amount tendered does not cover the
// cart total.
type InsufficientPaymentError struct {
	Tendered decimal.Decimal
	Total    decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: tendered %s, total %s",
		money.Format(e.Tendered), money.Format(e.Total))
}

// Is reports ErrInsufficientPayment as the matching sentinel.
func (e *InsufficientPaymentError) Is(target error) bool {
	return target == ErrInsufficientPayment
}

// DetailError is implemented by submitter errors that carry a human-readable
// reason from the commerce service.
type DetailError interface {
	error
	RemoteDetail() string
}

// SubmissionError is returned when the commerce service did not accept a
// sale. Its message is the remote reason, unmodified.
type SubmissionError struct {
	Detail string
	Err    error
}

func (e *SubmissionError) Error() string {
	return e.Detail
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func newSubmissionError(err error) *SubmissionError {
	detail := GenericSubmissionFailure
	var de DetailError
	if errors.As(err, &de) && de.RemoteDetail() != "" {
		detail = de.RemoteDetail()
	}
	return &SubmissionError{Detail: detail, Err: err}
}

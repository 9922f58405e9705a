package checkout

import (
	"github.com/shopspring/decimal"
)

// Status is the payment step of a checkout session.
type Status int

const (
	// StatusIdle means the cashier is still building the cart.
	StatusIdle Status = iota
	// StatusAwaitingAmount means the payment step is open and the amount
	// tendered can be edited.
	StatusAwaitingAmount
	// StatusSubmitting means a sale is in flight to the commerce service.
	StatusSubmitting
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusAwaitingAmount:
		return "awaiting_amount"
	case StatusSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// PaymentState is the payment sub-flow of a checkout session.
type PaymentState struct {
	Status         Status
	AmountTendered decimal.Decimal
}

// ChangeDue returns AmountTendered minus total. Negative means the amount
// does not cover the sale.
func (p PaymentState) ChangeDue(total decimal.Decimal) decimal.Decimal {
	return p.AmountTendered.Sub(total)
}

func idlePayment() PaymentState {
	return PaymentState{Status: StatusIdle, AmountTendered: decimal.Zero}
}

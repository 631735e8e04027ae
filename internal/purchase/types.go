package purchase

import (
	"errors"
	"fmt"
)

// Product is the catalog's view of the item being purchased. It is fetched
// once at the start of a run and never mutated afterwards.
type Product struct {
	ID    int
	Name  string
	Price float64
}

// StepKind identifies a saga step that leaves an external effect behind.
// Product lookup is read-only and therefore has no StepKind.
type StepKind string

const (
	StepPayment      StepKind = "payment"
	StepInventory    StepKind = "inventory"
	StepRegistration StepKind = "registration"
)

// StepData carries what the compensation of one completed step needs.
// Only the fields for the entry's kind are set: payment uses PaymentRef and
// Amount, inventory uses ProductID and Quantity, registration uses
// PurchaseRef and User.
type StepData struct {
	PaymentRef  string
	Amount      float64
	ProductID   int
	Quantity    int
	PurchaseRef string
	User        string
}

// CompletedStep is one ledger entry: a step that finished successfully
// together with the data needed to reverse it.
type CompletedStep struct {
	Kind StepKind
	Data StepData
}

// Outcome is the single result of one saga run. Success carries the purchase
// details; failure carries the triggering reason and how many ledger entries
// the compensation sweep processed.
type Outcome struct {
	Success          bool
	Message          string
	Reason           string
	Product          string
	Quantity         int
	TotalAmount      float64
	PaymentRef       string
	PurchaseRef      string
	StepsCompensated int
}

// RejectionError is an explicit business-level decline from a remote service,
// e.g. a declined payment or insufficient stock.
type RejectionError struct {
	Service string
	Reason  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Service, e.Reason)
}

// UnavailableError means a remote call could not be completed: connection
// failure, timeout, unexpected status, or a malformed response payload.
type UnavailableError struct {
	Service string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Precondition errors are detected before any remote call is made and never
// trigger compensation.
var (
	ErrUserRequired    = errors.New("user is required")
	ErrInvalidProduct  = errors.New("product id must be positive")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// IsPreconditionError reports whether err is an input validation failure
// rather than a saga failure.
func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrUserRequired) ||
		errors.Is(err, ErrInvalidProduct) ||
		errors.Is(err, ErrInvalidQuantity)
}

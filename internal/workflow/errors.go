package workflow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrUnauthorized           = errors.New("not authorized")
	ErrMissingReason          = errors.New("a reason is required")
	ErrOverReceipt            = errors.New("received quantity exceeds ordered quantity")
	ErrNoSelectableQuotation  = errors.New("no selected quotation or preferred supplier")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
)

// TransitionError reports a status change that the transition table does not allow.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// OverReceiptError carries the quantities of a rejected receipt.
type OverReceiptError struct {
	ItemID    uuid.UUID
	Ordered   decimal.Decimal
	Received  decimal.Decimal
	Requested decimal.Decimal
}

func (e *OverReceiptError) Error() string {
	return fmt.Sprintf("item %s: receiving %s would exceed ordered %s (already received %s)",
		e.ItemID, e.Requested, e.Ordered, e.Received)
}

func (e *OverReceiptError) Is(target error) bool {
	return target == ErrOverReceipt
}

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with the missing entity description.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

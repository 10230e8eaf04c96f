// Package billing is the client of the subscription provider: catalog,
// purchase, restore and status checks. It holds no state.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
)

// FailureReason explains why a purchase did not go through.
type FailureReason string

const (
	ReasonUserCancelled   FailureReason = "user_cancelled"
	ReasonPaymentDeclined FailureReason = "payment_declined"
	ReasonUnknown         FailureReason = "unknown"
)

// ErrPurchaseFailed is matched by every *PurchaseError.
var ErrPurchaseFailed = errors.New("purchase failed")

// PurchaseError is a failed purchase with a displayable reason.
type PurchaseError struct {
	Reason FailureReason
	Err    error
}

func (e *PurchaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("purchase failed: %s", e.Reason)
	}
	return fmt.Sprintf("purchase failed: %s: %v", e.Reason, e.Err)
}

func (e *PurchaseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPurchaseFailed}
	}
	return []error{ErrPurchaseFailed, e.Err}
}

// ParseReason maps a provider error code to a FailureReason.
func ParseReason(code string) FailureReason {
	switch FailureReason(code) {
	case ReasonUserCancelled, ReasonPaymentDeclined:
		return FailureReason(code)
	}
	return ReasonUnknown
}

// Provider is the opaque subscription service.
type Provider interface {
	Products(ctx context.Context) ([]models.Offer, error)
	Purchase(ctx context.Context, userID, offerID string) error
	Restore(ctx context.Context, userID string) (bool, error)
	Status(ctx context.Context, userID string) (bool, error)
}

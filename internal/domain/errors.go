package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrStockIsNotBookable           = errors.New("stock is not bookable")
	ErrOfferIsAlreadyBooked         = errors.New("offer is already booked by this user")
	ErrUserHasInsufficientFunds     = errors.New("user has insufficient funds")
	ErrQuantityIsInvalid            = errors.New("booking quantity is invalid")
	ErrNoActivationCodeAvailable    = errors.New("no activation code available")
	ErrBookingIsAlreadyUsed         = errors.New("booking is already used")
	ErrBookingIsAlreadyCancelled    = errors.New("booking is already cancelled")
	ErrBookingIsAlreadyRefunded     = errors.New("booking is already refunded")
	ErrBookingIsCancelled           = errors.New("booking is cancelled")
	ErrBookingIsNotConfirmed        = errors.New("booking is not confirmed")
	ErrCannotCancelConfirmedBooking = errors.New("booking can no longer be cancelled")
	ErrBookingDoesntExist           = errors.New("booking does not exist")
	ErrActivationCodeIrreversible   = errors.New("booking consumed by activation code cannot be unused")
	ErrProviderDisabled             = errors.New("external provider is disabled")
	ErrFeatureDisabled              = errors.New("feature is disabled")

	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")

	// ErrRetryable surfaces database lock/serialization failures. The core
	// never retries a locked transaction itself; the client must retry.
	ErrRetryable = errors.New("transient database conflict, retry")
)

// ExternalBookingError normalizes any external provider failure: network,
// provider 4xx/5xx or business rejection. Callers only distinguish
// succeeded vs failed, never the provider subtype.
type ExternalBookingError struct {
	Provider ProviderKind
	Reason   string
	// BarcodeErrors carries per-barcode failures for batched cancellations.
	BarcodeErrors map[string]string
}

func (e *ExternalBookingError) Error() string {
	if len(e.BarcodeErrors) == 0 {
		return fmt.Sprintf("external booking failed (%s): %s", e.Provider, e.Reason)
	}
	parts := make([]string, 0, len(e.BarcodeErrors))
	for barcode, reason := range e.BarcodeErrors {
		parts = append(parts, barcode+": "+reason)
	}
	sort.Strings(parts)
	return fmt.Sprintf("external cancellation failed (%s): %s", e.Provider, strings.Join(parts, ", "))
}

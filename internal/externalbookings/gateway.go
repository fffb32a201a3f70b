// Package externalbookings abstracts the cinema/ticketing providers that
// fulfill some offers (CDS, Boost, CGR, EMS). The bookings core only ever
// sees the Gateway contract and normalized errors; provider wire formats
// stay behind it.
package externalbookings

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/cultpass/bookings/internal/domain"
)

// Ticket is one physical ticket issued by a provider.
type Ticket struct {
	Barcode        string
	SeatNumber     string
	AdditionalInfo map[string]string
}

// Gateway books and cancels tickets with one provider. Book must return a
// *domain.ExternalBookingError on any failure, whatever the cause, because
// the caller aborts the local transaction identically regardless. Cancel may
// fail partially; the error then lists every failing barcode.
type Gateway interface {
	Book(ctx context.Context, stock domain.Stock, quantity int, token string) ([]Ticket, error)
	Cancel(ctx context.Context, venueID uuid.UUID, barcodes []string) error
}

// Registry resolves a provider kind to its gateway. Dispatch is by typed
// enum, never by provider class-name strings.
type Registry struct {
	gateways map[domain.ProviderKind]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[domain.ProviderKind]Gateway)}
}

func (r *Registry) Register(kind domain.ProviderKind, gw Gateway) {
	r.gateways[kind] = gw
}

func (r *Registry) For(kind domain.ProviderKind) (Gateway, error) {
	gw, ok := r.gateways[kind]
	if !ok {
		return nil, errors.Newf("no gateway registered for provider %q", kind)
	}
	return gw, nil
}

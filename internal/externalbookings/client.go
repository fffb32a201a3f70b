package externalbookings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/observability"
)

// HTTPGateway talks to one provider's ticketing API. All four supported
// providers share the same normalized JSON surface on our side of the
// connector; per-provider translation lives in the connector deployment.
type HTTPGateway struct {
	kind    domain.ProviderKind
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway builds a gateway with a bounded timeout. The timeout is
// mandatory: gateway calls happen while the stock row lock is held, so an
// unresponsive provider must not hold the lock indefinitely.
func NewHTTPGateway(kind domain.ProviderKind, baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		kind:    kind,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type bookRequest struct {
	StockID  uuid.UUID `json:"stock_id"`
	VenueID  uuid.UUID `json:"venue_id"`
	Quantity int       `json:"quantity"`
	Token    string    `json:"token"`
}

type bookResponse struct {
	Tickets []struct {
		Barcode        string            `json:"barcode"`
		SeatNumber     string            `json:"seat_number"`
		AdditionalInfo map[string]string `json:"additional_information"`
	} `json:"tickets"`
}

func (g *HTTPGateway) Book(ctx context.Context, stock domain.Stock, quantity int, token string) ([]Ticket, error) {
	start := time.Now()
	ctx, span := otel.Tracer("externalbookings").Start(ctx, "gateway.book")
	span.SetAttributes(attribute.String("provider", string(g.kind)))
	defer span.End()

	payload, err := json.Marshal(bookRequest{
		StockID:  stock.ID,
		VenueID:  stock.VenueID,
		Quantity: quantity,
		Token:    token,
	})
	if err != nil {
		return nil, g.failure("book", err.Error())
	}

	body, err := g.post(ctx, "/bookings", payload)
	observability.GatewayCallDuration.WithLabelValues(string(g.kind), "book").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	var resp bookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, g.failure("book", "malformed provider response: "+err.Error())
	}
	if len(resp.Tickets) == 0 {
		return nil, g.failure("book", "provider returned no tickets")
	}
	tickets := make([]Ticket, len(resp.Tickets))
	for i, t := range resp.Tickets {
		tickets[i] = Ticket{Barcode: t.Barcode, SeatNumber: t.SeatNumber, AdditionalInfo: t.AdditionalInfo}
	}
	return tickets, nil
}

type cancelRequest struct {
	VenueID  uuid.UUID `json:"venue_id"`
	Barcodes []string  `json:"barcodes"`
}

type cancelResponse struct {
	// Failures maps barcode to a provider reason for every ticket the
	// provider refused to cancel. Empty means full success.
	Failures map[string]string `json:"failures"`
}

func (g *HTTPGateway) Cancel(ctx context.Context, venueID uuid.UUID, barcodes []string) error {
	start := time.Now()
	ctx, span := otel.Tracer("externalbookings").Start(ctx, "gateway.cancel")
	span.SetAttributes(attribute.String("provider", string(g.kind)))
	defer span.End()

	payload, err := json.Marshal(cancelRequest{VenueID: venueID, Barcodes: barcodes})
	if err != nil {
		return g.failure("cancel", err.Error())
	}

	body, err := g.post(ctx, "/bookings/cancel", payload)
	observability.GatewayCallDuration.WithLabelValues(string(g.kind), "cancel").Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	var resp cancelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return g.failure("cancel", "malformed provider response: "+err.Error())
	}
	if len(resp.Failures) > 0 {
		observability.GatewayFailures.WithLabelValues(string(g.kind), "cancel").Inc()
		return &domain.ExternalBookingError{Provider: g.kind, BarcodeErrors: resp.Failures}
	}
	return nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, g.failure("post", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		// Timeouts and network errors are indistinguishable from any other
		// failure for the caller.
		observability.GatewayFailures.WithLabelValues(string(g.kind), "post").Inc()
		return nil, g.failure("post", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, g.failure("post", err.Error())
	}
	if resp.StatusCode >= 400 {
		observability.GatewayFailures.WithLabelValues(string(g.kind), "post").Inc()
		return nil, g.failure("post", fmt.Sprintf("provider returned %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	return body, nil
}

func (g *HTTPGateway) failure(op, reason string) *domain.ExternalBookingError {
	return &domain.ExternalBookingError{Provider: g.kind, Reason: op + ": " + reason}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

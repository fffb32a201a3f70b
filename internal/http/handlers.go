// Package http is the thin chi boundary over the bookings service: decode,
// call, map domain errors to status codes. No business rules live here.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cultpass/bookings/internal/bookings"
	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/observability"
)

type Handlers struct {
	svc    *bookings.Service
	logger observability.Logger
}

func NewHandlers(svc *bookings.Service, logger observability.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

type createBookingRequest struct {
	StockID  uuid.UUID `json:"stock_id"`
	Quantity int       `json:"quantity"`
}

type bookingResponse struct {
	ID                    uuid.UUID  `json:"id"`
	StockID               uuid.UUID  `json:"stock_id"`
	OfferID               uuid.UUID  `json:"offer_id"`
	Quantity              int        `json:"quantity"`
	Amount                string     `json:"amount"`
	Total                 string     `json:"total"`
	Status                string     `json:"status"`
	Token                 string     `json:"token"`
	DateCreated           time.Time  `json:"date_created"`
	DateUsed              *time.Time `json:"date_used,omitempty"`
	CancellationLimitDate *time.Time `json:"cancellation_limit_date,omitempty"`
	ActivationCode        *string    `json:"activation_code,omitempty"`
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:                    b.ID,
		StockID:               b.StockID,
		OfferID:               b.OfferID,
		Quantity:              b.Quantity,
		Amount:                b.Amount.String(),
		Total:                 b.Total().String(),
		Status:                string(b.Status),
		Token:                 b.Token,
		DateCreated:           b.DateCreated,
		DateUsed:              b.DateUsed,
		CancellationLimitDate: b.CancellationLimitDate,
		ActivationCode:        b.ActivationCode,
	}
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StockID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "stock_id is required")
		return
	}

	booking, err := h.svc.BookOffer(r.Context(), userID, req.StockID, req.Quantity)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(booking))
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	if err := h.svc.CancelByBeneficiary(r.Context(), userID, bookingID); err != nil {
		h.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CancelBookingByOfferer(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	if err := h.svc.CancelByOfferer(r.Context(), bookingID); err != nil {
		h.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CancelStockBookings(w http.ResponseWriter, r *http.Request) {
	stockID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stock id")
		return
	}
	cancelled, err := h.svc.CancelBookingsFromStockByOfferer(r.Context(), stockID)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": len(cancelled)})
}

func (h *Handlers) CancelBookingForFraud(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	if err := h.svc.CancelForFraud(r.Context(), bookingID); err != nil {
		h.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetBookingByToken(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.GetBookingByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(booking))
}

func (h *Handlers) UseBookingByToken(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.GetBookingByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	if err := h.svc.MarkAsUsed(r.Context(), booking.ID); err != nil {
		h.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) UnuseBookingByToken(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.GetBookingByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	if err := h.svc.MarkAsUnused(r.Context(), booking.ID); err != nil {
		h.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UseBookingWithUncancel is the administrative correction path: it
// re-validates a cancelled booking, taking the inventory back.
func (h *Handlers) UseBookingWithUncancel(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	if err := h.svc.MarkAsUsedWithUncancelling(r.Context(), bookingID); err != nil {
		h.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// domainError translates a domain error to an HTTP status. Unknown errors
// are logged and reported as 500 without leaking internals.
func (h *Handlers) domainError(w http.ResponseWriter, r *http.Request, err error) {
	var extErr *domain.ExternalBookingError
	if errors.As(err, &extErr) {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":          extErr.Error(),
			"provider":       extErr.Provider,
			"barcode_errors": extErr.BarcodeErrors,
		})
		return
	}
	if status, ok := statusFor(err); ok {
		writeError(w, status, err.Error())
		return
	}
	h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrBookingDoesntExist), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, domain.ErrQuantityIsInvalid),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrStockIsNotBookable),
		errors.Is(err, domain.ErrUserHasInsufficientFunds):
		return http.StatusBadRequest, true
	case errors.Is(err, domain.ErrOfferIsAlreadyBooked),
		errors.Is(err, domain.ErrNoActivationCodeAvailable),
		errors.Is(err, domain.ErrBookingIsAlreadyUsed),
		errors.Is(err, domain.ErrBookingIsAlreadyCancelled),
		errors.Is(err, domain.ErrBookingIsAlreadyRefunded),
		errors.Is(err, domain.ErrBookingIsCancelled),
		errors.Is(err, domain.ErrBookingIsNotConfirmed),
		errors.Is(err, domain.ErrCannotCancelConfirmedBooking),
		errors.Is(err, domain.ErrActivationCodeIrreversible),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, true
	case errors.Is(err, domain.ErrProviderDisabled),
		errors.Is(err, domain.ErrRetryable):
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

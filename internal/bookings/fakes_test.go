package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cultpass/bookings/internal/cancelqueue"
	"github.com/cultpass/bookings/internal/config"
	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/externalbookings"
	"github.com/cultpass/bookings/internal/observability"
)

// memState is the in-memory dataset the fake store runs transactions on.
// Everything is stored by value so a cloned state shares nothing mutable
// with its parent.
type memState struct {
	stocks   map[uuid.UUID]domain.Stock
	users    map[uuid.UUID]domain.User
	deposits map[uuid.UUID]domain.Deposit // keyed by user
	bookings map[uuid.UUID]domain.Booking
	codes    []domain.ActivationCode
	external map[uuid.UUID][]domain.ExternalBooking
	events   []domain.FinanceEvent
	pricings []domain.Pricing
	outbox   []string
}

func newMemState() *memState {
	return &memState{
		stocks:   make(map[uuid.UUID]domain.Stock),
		users:    make(map[uuid.UUID]domain.User),
		deposits: make(map[uuid.UUID]domain.Deposit),
		bookings: make(map[uuid.UUID]domain.Booking),
		external: make(map[uuid.UUID][]domain.ExternalBooking),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.stocks {
		c.stocks[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.deposits {
		c.deposits[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	c.codes = append([]domain.ActivationCode(nil), s.codes...)
	for k, v := range s.external {
		c.external[k] = append([]domain.ExternalBooking(nil), v...)
	}
	c.events = append([]domain.FinanceEvent(nil), s.events...)
	c.pricings = append([]domain.Pricing(nil), s.pricings...)
	c.outbox = append([]string(nil), s.outbox...)
	return c
}

// memStore gives every transaction a clone of the state and only swaps it in
// when the callback succeeds, so a failed transaction persists nothing.
type memStore struct {
	state *memState
}

func (s *memStore) InTransaction(ctx context.Context, fn func(tx Tx) error) error {
	working := s.state.clone()
	if err := fn(&memTx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

type memTx struct {
	state *memState
}

var _ Tx = (*memTx)(nil)

func (t *memTx) GetStockForUpdate(ctx context.Context, stockID uuid.UUID) (*domain.Stock, error) {
	return t.GetStock(ctx, stockID)
}

func (t *memTx) GetStock(ctx context.Context, stockID uuid.UUID) (*domain.Stock, error) {
	stock, ok := t.state.stocks[stockID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &stock, nil
}

func (t *memTx) GetUserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := t.state.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (t *memTx) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	b, ok := t.state.bookings[bookingID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (t *memTx) GetBookingByToken(ctx context.Context, token string) (*domain.Booking, error) {
	for _, b := range t.state.bookings {
		if b.Token == token {
			b := b
			return &b, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) HasActiveBookingOnOffer(ctx context.Context, userID, offerID uuid.UUID) (bool, error) {
	for _, b := range t.state.bookings {
		if b.UserID == userID && b.OfferID == offerID && b.Status != domain.BookingStatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ActiveDeposit(ctx context.Context, userID uuid.UUID) (*domain.Deposit, error) {
	deposit, ok := t.state.deposits[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &deposit, nil
}

func (t *memTx) DepositExpenses(ctx context.Context, depositID uuid.UUID) (domain.Expenses, error) {
	var expenses domain.Expenses
	for _, b := range t.state.bookings {
		if b.DepositID == nil || *b.DepositID != depositID || b.Status == domain.BookingStatusCancelled {
			continue
		}
		total := b.Total()
		expenses.Total = expenses.Total.Add(total)
		switch t.state.stocks[b.StockID].ExpenseCategory {
		case domain.ExpenseCategoryDigital:
			expenses.Digital = expenses.Digital.Add(total)
		case domain.ExpenseCategoryPhysical:
			expenses.Physical = expenses.Physical.Add(total)
		}
	}
	return expenses, nil
}

func (t *memTx) TokenExists(ctx context.Context, token string) (bool, error) {
	for _, b := range t.state.bookings {
		if b.Token == token {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ClaimActivationCode(ctx context.Context, stockID, bookingID uuid.UUID, now time.Time) (*domain.ActivationCode, error) {
	best := -1
	for i, code := range t.state.codes {
		if code.StockID != stockID || !code.IsClaimable(now) {
			continue
		}
		if best == -1 || code.DateCreated.Before(t.state.codes[best].DateCreated) {
			best = i
		}
	}
	if best == -1 {
		return nil, domain.ErrNoActivationCodeAvailable
	}
	t.state.codes[best].BookingID = &bookingID
	claimed := t.state.codes[best]
	return &claimed, nil
}

func (t *memTx) VenueHasNonFreeBookings(ctx context.Context, venueID uuid.UUID) (bool, error) {
	for _, b := range t.state.bookings {
		if b.VenueID == venueID && b.Amount.IsPositive() && b.Status != domain.BookingStatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *domain.Booking) error {
	t.state.bookings[b.ID] = *b
	return nil
}

func (t *memTx) InsertExternalBookings(ctx context.Context, tickets []domain.ExternalBooking) error {
	for _, ticket := range tickets {
		t.state.external[ticket.BookingID] = append(t.state.external[ticket.BookingID], ticket)
	}
	return nil
}

func (t *memTx) ExternalBookingsFor(ctx context.Context, bookingID uuid.UUID) ([]domain.ExternalBooking, error) {
	return append([]domain.ExternalBooking(nil), t.state.external[bookingID]...), nil
}

func (t *memTx) AdjustStockBookedQuantity(ctx context.Context, stockID uuid.UUID, delta int) error {
	stock, ok := t.state.stocks[stockID]
	if !ok {
		return domain.ErrStockIsNotBookable
	}
	next := stock.BookedQuantity + delta
	if next < 0 {
		return domain.ErrStockIsNotBookable
	}
	if delta > 0 && stock.Quantity != nil && next > *stock.Quantity {
		return domain.ErrStockIsNotBookable
	}
	stock.BookedQuantity = next
	t.state.stocks[stockID] = stock
	return nil
}

func (t *memTx) MarkBookingCancelled(ctx context.Context, bookingID uuid.UUID, reason domain.CancellationReason, at time.Time, fromUsed bool) (bool, error) {
	b, ok := t.state.bookings[bookingID]
	if !ok {
		return false, nil
	}
	if b.Status != domain.BookingStatusConfirmed && !(fromUsed && b.Status == domain.BookingStatusUsed) {
		return false, nil
	}
	b.Status = domain.BookingStatusCancelled
	b.CancellationReason = &reason
	b.CancellationDate = &at
	b.DateUsed = nil
	t.state.bookings[bookingID] = b
	return true, nil
}

func (t *memTx) MarkBookingUsed(ctx context.Context, bookingID uuid.UUID, at time.Time) (bool, error) {
	b, ok := t.state.bookings[bookingID]
	if !ok || b.Status != domain.BookingStatusConfirmed {
		return false, nil
	}
	b.Status = domain.BookingStatusUsed
	b.DateUsed = &at
	t.state.bookings[bookingID] = b
	return true, nil
}

func (t *memTx) MarkBookingUnused(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	b, ok := t.state.bookings[bookingID]
	if !ok || b.Status != domain.BookingStatusUsed {
		return false, nil
	}
	b.Status = domain.BookingStatusConfirmed
	b.DateUsed = nil
	t.state.bookings[bookingID] = b
	return true, nil
}

func (t *memTx) UncancelBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	b, ok := t.state.bookings[bookingID]
	if !ok || b.Status != domain.BookingStatusCancelled {
		return false, nil
	}
	b.Status = domain.BookingStatusConfirmed
	b.CancellationReason = nil
	b.CancellationDate = nil
	t.state.bookings[bookingID] = b
	return true, nil
}

func (t *memTx) HasProcessedPricing(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	for _, p := range t.state.pricings {
		if p.BookingID == bookingID && p.Status == domain.PricingStatusProcessed {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ListCancellableBookingsByStock(ctx context.Context, stockID uuid.UUID) ([]domain.Booking, error) {
	var result []domain.Booking
	for _, b := range t.state.bookings {
		if b.StockID == stockID && b.Status == domain.BookingStatusConfirmed {
			result = append(result, b)
		}
	}
	return result, nil
}

func (t *memTx) SelectBookingsToAutoValidate(ctx context.Context, beganBefore time.Time) ([]domain.Booking, error) {
	var result []domain.Booking
	for _, b := range t.state.bookings {
		if b.Status != domain.BookingStatusConfirmed {
			continue
		}
		stock := t.state.stocks[b.StockID]
		if stock.BeginningDatetime != nil && !stock.BeginningDatetime.After(beganBefore) {
			result = append(result, b)
		}
	}
	return result, nil
}

func (t *memTx) ArchiveEndedBookings(ctx context.Context, olderThan time.Time) (int64, error) {
	var archived int64
	for id, b := range t.state.bookings {
		if b.UsedByActivationCode && b.DateCreated.Before(olderThan) && !b.DisplayAsEnded {
			b.DisplayAsEnded = true
			t.state.bookings[id] = b
			archived++
		}
	}
	return archived, nil
}

func (t *memTx) InsertOutboxEvent(ctx context.Context, eventType string, bookingID uuid.UUID, payload []byte) error {
	t.state.outbox = append(t.state.outbox, eventType)
	return nil
}

func (t *memTx) InsertFinanceEvent(ctx context.Context, event *domain.FinanceEvent) error {
	t.state.events = append(t.state.events, *event)
	return nil
}

func (t *memTx) LatestUseFinanceEvent(ctx context.Context, bookingID uuid.UUID) (*domain.FinanceEvent, error) {
	for i := len(t.state.events) - 1; i >= 0; i-- {
		e := t.state.events[i]
		if e.BookingID != bookingID || e.Status == domain.FinanceEventStatusCancelled {
			continue
		}
		if e.Motive == domain.MotiveBookingUsed || e.Motive == domain.MotiveBookingUsedAfterCancellation {
			return &e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memTx) SetFinanceEventStatus(ctx context.Context, eventID uuid.UUID, status domain.FinanceEventStatus) error {
	for i := range t.state.events {
		if t.state.events[i].ID == eventID {
			t.state.events[i].Status = status
		}
	}
	return nil
}

func (t *memTx) CancelPricingsForBooking(ctx context.Context, bookingID uuid.UUID) error {
	for i := range t.state.pricings {
		p := &t.state.pricings[i]
		if p.BookingID == bookingID && p.Status != domain.PricingStatusProcessed {
			p.Status = domain.PricingStatusCancelled
		}
	}
	return nil
}

type recordingNotifier struct {
	confirmations            []uuid.UUID
	offererNotices           []bool
	beneficiaryCancellations []uuid.UUID
	offererCancellations     []uuid.UUID
}

func (n *recordingNotifier) SendBookingConfirmationToBeneficiary(ctx context.Context, b *domain.Booking) {
	n.confirmations = append(n.confirmations, b.ID)
}

func (n *recordingNotifier) SendBookingNotificationToOfferer(ctx context.Context, b *domain.Booking, firstVenueBooking bool) {
	n.offererNotices = append(n.offererNotices, firstVenueBooking)
}

func (n *recordingNotifier) SendBeneficiaryCancellation(ctx context.Context, b *domain.Booking) {
	n.beneficiaryCancellations = append(n.beneficiaryCancellations, b.ID)
}

func (n *recordingNotifier) SendOffererCancellationToBeneficiary(ctx context.Context, b *domain.Booking) {
	n.offererCancellations = append(n.offererCancellations, b.ID)
}

type recordingAnalytics struct {
	events []string
}

func (a *recordingAnalytics) Track(ctx context.Context, event string, userID uuid.UUID, properties map[string]interface{}) {
	a.events = append(a.events, event)
}

type recordingPush struct {
	updates int
}

func (p *recordingPush) UpdateBookingAttributes(ctx context.Context, b *domain.Booking) {
	p.updates++
}

type recordingSearch struct {
	offers []uuid.UUID
}

func (s *recordingSearch) ReindexOffer(ctx context.Context, offerID uuid.UUID) {
	s.offers = append(s.offers, offerID)
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) RecordTransition(ctx context.Context, b *domain.Booking, action string) {
	a.actions = append(a.actions, action)
}

type recordingQueue struct {
	entries []cancelqueue.Entry
}

func (q *recordingQueue) Push(ctx context.Context, entry cancelqueue.Entry) error {
	q.entries = append(q.entries, entry)
	return nil
}

type stubGateway struct {
	tickets     []externalbookings.Ticket
	bookErr     error
	cancelErr   error
	bookCalls   int
	cancelCalls int
}

func (g *stubGateway) Book(ctx context.Context, stock domain.Stock, quantity int, token string) ([]externalbookings.Ticket, error) {
	g.bookCalls++
	if g.bookErr != nil {
		return nil, g.bookErr
	}
	return g.tickets, nil
}

func (g *stubGateway) Cancel(ctx context.Context, venueID uuid.UUID, barcodes []string) error {
	g.cancelCalls++
	return g.cancelErr
}

type stubResolver struct {
	gw externalbookings.Gateway
}

func (r *stubResolver) For(kind domain.ProviderKind) (externalbookings.Gateway, error) {
	return r.gw, nil
}

type nopLogger struct{}

func (nopLogger) Info(args ...interface{})                            {}
func (nopLogger) Error(args ...interface{})                           {}
func (nopLogger) Debug(args ...interface{})                           {}
func (nopLogger) Warn(args ...interface{})                            {}
func (l nopLogger) WithField(string, interface{}) observability.Logger { return l }
func (l nopLogger) WithError(error) observability.Logger               { return l }

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// fixture wires a service against the in-memory store with one beneficiary
// holding a fresh deposit and one bookable physical stock.
type fixture struct {
	svc       *Service
	store     *memStore
	notifier  *recordingNotifier
	analytics *recordingAnalytics
	push      *recordingPush
	search    *recordingSearch
	audit     *recordingAudit
	queue     *recordingQueue
	gateway   *stubGateway

	userID    uuid.UUID
	depositID uuid.UUID
	stockID   uuid.UUID
	offerID   uuid.UUID
	venueID   uuid.UUID
}

func allProvidersEnabled() config.Features {
	return config.Features{EnableCDS: true, EnableBoost: true, EnableCGR: true, EnableEMS: true}
}

func newFixture() *fixture {
	return newFixtureWithFeatures(allProvidersEnabled())
}

func newFixtureWithFeatures(features config.Features) *fixture {
	state := newMemState()
	f := &fixture{
		store:     &memStore{state: state},
		notifier:  &recordingNotifier{},
		analytics: &recordingAnalytics{},
		push:      &recordingPush{},
		search:    &recordingSearch{},
		audit:     &recordingAudit{},
		queue:     &recordingQueue{},
		gateway:   &stubGateway{},
		userID:    uuid.New(),
		depositID: uuid.New(),
		stockID:   uuid.New(),
		offerID:   uuid.New(),
		venueID:   uuid.New(),
	}

	state.users[f.userID] = domain.User{ID: f.userID, Email: "beneficiary@example.com", Role: domain.RoleBeneficiary}
	state.deposits[f.userID] = domain.Deposit{
		ID:     f.depositID,
		UserID: f.userID,
		Amount: decimal.NewFromInt(300),
	}
	f.setStock(domain.Stock{
		ID:              f.stockID,
		OfferID:         f.offerID,
		OfferName:       "Concert debout",
		VenueID:         f.venueID,
		OffererID:       uuid.New(),
		Price:           decimal.NewFromInt(20),
		Quantity:        intPtr(10),
		OfferActive:     true,
		OffererActive:   true,
		ExpenseCategory: domain.ExpenseCategoryPhysical,
	})

	f.svc = NewService(f.store, &stubResolver{gw: f.gateway}, f.notifier, f.analytics, f.push, f.search, f.audit, f.queue, features, nopLogger{})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) setStock(stock domain.Stock) {
	f.store.state.stocks[stock.ID] = stock
}

func (f *fixture) stock() domain.Stock {
	return f.store.state.stocks[f.stockID]
}

func (f *fixture) booking(id uuid.UUID) domain.Booking {
	return f.store.state.bookings[id]
}

// addUser registers another beneficiary with their own deposit.
func (f *fixture) addUser() uuid.UUID {
	userID := uuid.New()
	f.store.state.users[userID] = domain.User{ID: userID, Email: userID.String() + "@example.com", Role: domain.RoleBeneficiary}
	f.store.state.deposits[userID] = domain.Deposit{ID: uuid.New(), UserID: userID, Amount: decimal.NewFromInt(300)}
	return userID
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

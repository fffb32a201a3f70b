package cancelqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/externalbookings"
	"github.com/cultpass/bookings/internal/observability"
)

type GatewayResolver interface {
	For(kind domain.ProviderKind) (externalbookings.Gateway, error)
}

// Worker periodically drains ready entries and replays cancellations, one
// batched provider call per venue. Failed batches go back to the queue.
type Worker struct {
	queue    *Queue
	gateways GatewayResolver
	logger   observability.Logger
	minAge   time.Duration
	batch    int
}

func NewWorker(queue *Queue, gateways GatewayResolver, logger observability.Logger, minAge time.Duration) *Worker {
	return &Worker{queue: queue, gateways: gateways, logger: logger, minAge: minAge, batch: 100}
}

func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := w.RunOnce(ctx, now); err != nil {
				w.logger.WithError(err).Error("cancel queue pass failed")
			}
		}
	}
}

type venueBatch struct {
	venueID  uuid.UUID
	provider domain.ProviderKind
	entries  []Entry
}

func (w *Worker) RunOnce(ctx context.Context, now time.Time) error {
	entries, err := w.queue.PopReady(ctx, w.minAge, w.batch, now)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	batches := map[uuid.UUID]*venueBatch{}
	for _, entry := range entries {
		b, ok := batches[entry.VenueID]
		if !ok {
			b = &venueBatch{venueID: entry.VenueID, provider: entry.Provider}
			batches[entry.VenueID] = b
		}
		b.entries = append(b.entries, entry)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			w.cancelBatch(gctx, b)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) cancelBatch(ctx context.Context, b *venueBatch) {
	gw, err := w.gateways.For(b.provider)
	if err != nil {
		w.logger.WithError(err).WithField("venue_id", b.venueID).Error("no gateway for queued cancellation")
		return
	}
	barcodes := make([]string, len(b.entries))
	for i, entry := range b.entries {
		barcodes[i] = entry.Barcode
	}
	if err := gw.Cancel(ctx, b.venueID, barcodes); err != nil {
		observability.GatewayFailures.WithLabelValues(string(b.provider), "deferred_cancel").Inc()
		w.logger.WithError(err).WithField("venue_id", b.venueID).Warn("deferred cancellation failed, requeueing")
		if err := w.queue.Requeue(ctx, b.entries); err != nil {
			w.logger.WithError(err).Error("requeue after failed cancellation")
		}
		return
	}
	w.logger.WithField("venue_id", b.venueID).WithField("count", len(barcodes)).Info("deferred cancellations replayed")
}

// Package cancelqueue holds the deferred external cancellation queue: when a
// provider-side cancellation cannot be confirmed synchronously, the ticket
// barcode is parked here and replayed after a cooldown. Local booking state
// is authoritative and never waits on a provider.
package cancelqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cultpass/bookings/internal/domain"
	"github.com/cultpass/bookings/internal/observability"
)

const queueKey = "external_bookings:cancel"

// Entry is one barcode awaiting provider-side cancellation.
type Entry struct {
	Barcode   string              `json:"barcode"`
	VenueID   uuid.UUID           `json:"venue_id"`
	Provider  domain.ProviderKind `json:"provider"`
	Timestamp time.Time           `json:"timestamp"`
}

// Queue is a durable FIFO of Entry records on a redis list. Pushes append to
// the tail, so the head is always the oldest entry.
type Queue struct {
	client *redis.Client
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Push(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal cancel entry")
	}
	if err := q.client.RPush(ctx, queueKey, data).Err(); err != nil {
		return errors.Wrap(err, "push cancel entry")
	}
	q.updateDepth(ctx)
	return nil
}

// PopReady pops up to max entries older than minAge. Entries younger than
// minAge stay queued: the first young entry stops the scan and is pushed
// back at the head, preserving FIFO order. A ticket must not be cancelled at
// the provider before the booking transaction that created it has settled
// upstream, hence the age floor.
func (q *Queue) PopReady(ctx context.Context, minAge time.Duration, max int, now time.Time) ([]Entry, error) {
	cutoff := now.Add(-minAge)
	var ready []Entry
	for len(ready) < max {
		data, err := q.client.LPop(ctx, queueKey).Bytes()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return ready, errors.Wrap(err, "pop cancel entry")
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			// Unreadable entries are dropped rather than wedging the queue.
			continue
		}
		if entry.Timestamp.After(cutoff) {
			if err := q.client.LPush(ctx, queueKey, data).Err(); err != nil {
				return ready, errors.Wrap(err, "requeue young entry")
			}
			break
		}
		ready = append(ready, entry)
	}
	q.updateDepth(ctx)
	return ready, nil
}

// Requeue puts entries back at the tail after a failed replay attempt.
func (q *Queue) Requeue(ctx context.Context, entries []Entry) error {
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		if err := q.client.RPush(ctx, queueKey, data).Err(); err != nil {
			return errors.Wrap(err, "requeue cancel entry")
		}
	}
	q.updateDepth(ctx)
	return nil
}

func (q *Queue) updateDepth(ctx context.Context) {
	if depth, err := q.client.LLen(ctx, queueKey).Result(); err == nil {
		observability.CancelQueueDepth.Set(float64(depth))
	}
}

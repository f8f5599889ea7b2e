// Package worker consumes the order-event journal from JetStream and persists
// it to the audit database. It is idempotent: replayed entries are dropped by
// a redis marker first and by the event-id primary key second.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradefront/fixdesk/pkg/oms/journal"
	"github.com/tradefront/fixdesk/pkg/oms/repo"
)

const (
	fetchBatch   = 10
	fetchMaxWait = 2 * time.Second
	dedupTTL     = 24 * time.Hour
)

type Worker struct {
	order      repo.IOrder
	orderEvent repo.IOrderEvent
	rdb        *redis.Client // nil disables the fast dedup path

	log *zap.SugaredLogger
}

func NewWorker(r repo.IRepo, rdb *redis.Client) *Worker {
	return &Worker{
		order:      r.Order(),
		orderEvent: r.OrderEvent(),
		rdb:        rdb,
		log:        zap.S().With("component", "audit_worker"),
	}
}

// StartConsumer pulls journal entries from the durable subscription until ctx
// is cancelled.
func (w *Worker) StartConsumer(ctx context.Context, js nats.JetStreamContext, subject, durable string) error {
	cons, err := js.PullSubscribe(subject, durable)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := cons.Fetch(fetchBatch, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if err != nats.ErrTimeout {
				w.log.Warnw("fetch failed", "err", err)
			}
			continue
		}

		w.consume(ctx, msgs)
	}
}

// consume persists one fetched batch. Nothing is acked on a persist failure,
// so the whole batch is redelivered.
func (w *Worker) consume(ctx context.Context, msgs []*nats.Msg) {
	entries := make([]*journal.Entry, 0, len(msgs))
	pending := make([]*nats.Msg, 0, len(msgs))
	for _, msg := range msgs {
		var e journal.Entry
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			w.log.Warnw("bad journal entry dropped", "err", err)
			_ = msg.Ack()
			continue
		}
		if w.seen(ctx, e.EventID) {
			_ = msg.Ack()
			continue
		}
		entries = append(entries, &e)
		pending = append(pending, msg)
	}
	if len(entries) == 0 {
		return
	}

	if err := w.persistBatch(ctx, entries); err != nil {
		w.log.Warnw("persist failed", "count", len(entries), "err", err)
		return
	}
	for i, msg := range pending {
		w.mark(ctx, entries[i].EventID)
		_ = msg.Ack()
	}
}

// persistBatch stores the events and refreshes the order projections. Replays
// are dropped by the event-id conflict clause.
func (w *Worker) persistBatch(ctx context.Context, entries []*journal.Entry) error {
	if err := w.orderEvent.BulkCreate(ctx, entries); err != nil {
		return err
	}
	for _, e := range entries {
		err := w.order.Upsert(ctx, &repo.OrderRow{
			ClOrdID:         e.ClientOrderID,
			ExchangeOrderID: e.ExchangeOrderID,
			Status:          e.Status,
			FilledQuantity:  e.FilledQuantity,
			LastSeq:         e.SequenceNumber,
			UpdatedAt:       e.Timestamp,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// seen reports whether the event id is already marked in redis. Redis being
// down just means the database conflict clause does the work.
func (w *Worker) seen(ctx context.Context, eventID string) bool {
	if w.rdb == nil || eventID == "" {
		return false
	}
	n, err := w.rdb.Exists(ctx, dedupKey(eventID)).Result()
	return err == nil && n > 0
}

// mark remembers a persisted event id; only persisted ids are marked so a
// crash between persist and ack cannot drop an unpersisted redelivery.
func (w *Worker) mark(ctx context.Context, eventID string) {
	if w.rdb == nil || eventID == "" {
		return
	}
	w.rdb.Set(ctx, dedupKey(eventID), 1, dedupTTL)
}

func dedupKey(id string) string {
	return "fixdesk:event:" + id
}

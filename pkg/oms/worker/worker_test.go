package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tradefront/fixdesk/pkg/oms/journal"
	"github.com/tradefront/fixdesk/pkg/oms/repo"
)

type fakeOrderRepo struct {
	upserts []*repo.OrderRow
	err     error
}

func (f *fakeOrderRepo) Upsert(_ context.Context, record *repo.OrderRow) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, record)
	return nil
}

type fakeEventRepo struct {
	batches [][]*journal.Entry
	err     error
}

func (f *fakeEventRepo) BulkCreate(_ context.Context, records []*journal.Entry) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, records)
	return nil
}

func newTestWorker(fo *fakeOrderRepo, fe *fakeEventRepo) *Worker {
	return &Worker{
		order:      fo,
		orderEvent: fe,
		log:        zap.S().With("component", "audit_worker"),
	}
}

func entry(clOrdID string, seq int64, status string, filled int64) *journal.Entry {
	return &journal.Entry{
		EventID:        fmt.Sprintf("%s-%d", clOrdID, seq),
		ClientOrderID:  clOrdID,
		ExecType:       "PARTIAL_FILL",
		SequenceNumber: seq,
		Status:         status,
		FilledQuantity: filled,
		Timestamp:      time.Now(),
	}
}

func TestPersistBatch(t *testing.T) {
	fo := &fakeOrderRepo{}
	fe := &fakeEventRepo{}
	w := newTestWorker(fo, fe)

	batch := []*journal.Entry{
		entry("c1", 1, "PARTIALLY_FILLED", 3),
		entry("c1", 2, "FILLED", 10),
		entry("c2", 3, "NEW", 0),
	}
	if err := w.persistBatch(context.Background(), batch); err != nil {
		t.Fatalf("persist: %v", err)
	}

	if len(fe.batches) != 1 || len(fe.batches[0]) != 3 {
		t.Fatalf("expected one bulk insert of 3 entries, got %+v", fe.batches)
	}
	if len(fo.upserts) != 3 {
		t.Fatalf("expected 3 projection upserts, got %d", len(fo.upserts))
	}
	// the later entry for the same order lands last, so the projection is
	// the most recent state
	last := fo.upserts[1]
	if last.ClOrdID != "c1" || last.Status != "FILLED" || last.FilledQuantity != 10 || last.LastSeq != 2 {
		t.Errorf("unexpected projection row: %+v", last)
	}
}

func TestPersistBatchPropagatesErrors(t *testing.T) {
	fe := &fakeEventRepo{err: errors.New("db down")}
	w := newTestWorker(&fakeOrderRepo{}, fe)

	if err := w.persistBatch(context.Background(), []*journal.Entry{entry("c1", 1, "NEW", 0)}); err == nil {
		t.Fatal("expected bulk insert error")
	}

	fo := &fakeOrderRepo{err: errors.New("db down")}
	w = newTestWorker(fo, &fakeEventRepo{})
	if err := w.persistBatch(context.Background(), []*journal.Entry{entry("c1", 1, "NEW", 0)}); err == nil {
		t.Fatal("expected upsert error")
	}
}

func TestSeenWithoutRedis(t *testing.T) {
	w := newTestWorker(&fakeOrderRepo{}, &fakeEventRepo{})

	// no redis: dedup falls back entirely to the database conflict clause
	if w.seen(context.Background(), "c1-1") {
		t.Error("seen must report false without redis")
	}
	w.mark(context.Background(), "c1-1") // must not panic
}

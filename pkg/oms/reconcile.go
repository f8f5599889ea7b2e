package oms

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradefront/fixdesk/pkg/oms/journal"
	"github.com/tradefront/fixdesk/pkg/oms/ledger"
	"github.com/tradefront/fixdesk/pkg/oms/model"
)

const (
	defaultTickInterval = 5 * time.Second
	defaultFetchTimeout = 4 * time.Second
)

// ReconcilerConfig tunes the pull loop.
type ReconcilerConfig struct {
	// Interval between ticks; the fetch timeout should stay below it.
	Interval     time.Duration
	FetchTimeout time.Duration
}

// Reconciler periodically pulls snapshots and execution events from the
// remote gateway, normalizes and de-duplicates them, and applies them to the
// ledger. A tick is all-or-nothing: if either fetch fails nothing is applied
// and the next tick retries. Ticks never run concurrently with themselves.
type Reconciler struct {
	ledger  *ledger.Ledger
	gateway RemoteOrderGateway
	journal journal.Publisher

	interval     time.Duration
	fetchTimeout time.Duration

	ticking atomic.Bool
	// advisory fetch cursor; advances only past events attributed to an
	// order, per-order gating still applies
	highSeq atomic.Int64

	sessionMu sync.RWMutex
	session   model.SessionInfo

	log *zap.SugaredLogger
}

func NewReconciler(l *ledger.Ledger, gw RemoteOrderGateway, jr journal.Publisher, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultTickInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if jr == nil {
		jr = journal.Noop{}
	}
	return &Reconciler{
		ledger:       l,
		gateway:      gw,
		journal:      jr,
		interval:     cfg.Interval,
		fetchTimeout: cfg.FetchTimeout,
		session:      model.SessionInfo{Status: model.SessionDisconnected},
		log:          zap.S().With("component", "reconciler"),
	}
}

// Start runs the tick loop until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Reconciler) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// skip, never overlap, a tick still in flight
			if !r.ticking.CompareAndSwap(false, true) {
				mtxTicks.WithLabelValues("skipped").Inc()
				continue
			}
			go func() {
				defer r.ticking.Store(false)
				if err := r.Tick(ctx); err != nil {
					mtxTicks.WithLabelValues("error").Inc()
					r.log.Warnw("tick failed, will retry next interval", "err", err)
				} else {
					mtxTicks.WithLabelValues("ok").Inc()
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one reconciliation pass. Exported so callers with their own
// scheduling (and tests) can drive it directly.
func (r *Reconciler) Tick(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	now := time.Now()
	if info, err := r.gateway.FetchSessionStatus(cctx); err != nil {
		observeGatewayError("fetch_session", err)
		r.setSession(model.SessionInfo{Status: model.SessionDisconnected, UpdatedAt: now})
	} else {
		info.UpdatedAt = now
		r.setSession(info)
	}

	// fetch everything before applying anything
	snaps, err := r.gateway.FetchOrders(cctx)
	if err != nil {
		observeGatewayError("fetch_orders", err)
		return err
	}
	events, err := r.gateway.FetchExecutions(cctx, r.highSeq.Load())
	if err != nil {
		observeGatewayError("fetch_executions", err)
		return err
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].SequenceNumber < events[j].SequenceNumber
	})

	high := r.highSeq.Load()
	pinned := false
	for _, ev := range events {
		if ev.ClientOrderID == "" && ev.ExchangeOrderID != "" {
			if id, ok := r.ledger.ResolveExchangeOrderID(ev.ExchangeOrderID); ok {
				ev.ClientOrderID = id
			}
		}
		// an event we cannot attribute yet may belong to an order whose
		// exchange id binds on a later ack or snapshot; the cursor stays
		// behind it so the next fetch window re-delivers it
		if ev.ClientOrderID == "" {
			pinned = true
		}
		if !pinned && ev.SequenceNumber > high {
			high = ev.SequenceNumber
		}
		order, applied := r.ledger.ApplyEvent(ev)
		if !applied {
			mtxEventsDiscarded.Inc()
			continue
		}
		mtxEventsApplied.WithLabelValues(string(ev.ExecType)).Inc()
		if err := r.journal.Publish(ctx, journal.NewEntry(order, ev)); err != nil {
			r.log.Warnw("journal publish failed", "clOrdId", order.ClientOrderID, "err", err)
		}
	}
	r.highSeq.Store(high)

	for _, snap := range snaps {
		r.ledger.ApplySnapshot(snap)
	}
	return nil
}

// Session returns the last observed remote session state.
func (r *Reconciler) Session() model.SessionInfo {
	r.sessionMu.RLock()
	defer r.sessionMu.RUnlock()
	return r.session
}

func (r *Reconciler) setSession(info model.SessionInfo) {
	r.sessionMu.Lock()
	r.session = info
	r.sessionMu.Unlock()
}

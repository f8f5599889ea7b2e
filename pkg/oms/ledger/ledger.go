// Package ledger holds the authoritative local state of every order submitted
// in the session. Orders are created by the command service, mutated only by
// applying execution events and remote snapshots, and never removed; terminal
// orders stay for history views.
package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradefront/fixdesk/pkg/oms/model"
)

// View is the presentation-facing copy of one order.
type View struct {
	model.Order
	Cancellable bool
}

// Stats are the per-status counts shown on the blotter header.
type Stats struct {
	Total           int
	Working         int
	PartiallyFilled int
	Filled          int
	Cancelled       int
	Rejected        int
}

// Ledger is safe for concurrent use. A single RWMutex serializes the two
// writers (command service, reconciliation engine); reads copy under a
// short-lived read lock and never observe a half-applied update.
type Ledger struct {
	mu           sync.RWMutex
	orders       map[string]*model.Order // ClientOrderID -> order
	byExchangeID map[string]string       // ExchangeOrderID -> ClientOrderID
	sequence     []string                // ClientOrderIDs in submit order
	history      []model.ExecutionEvent  // applied events, append-only

	log *zap.SugaredLogger
}

func New() *Ledger {
	return &Ledger{
		orders:       make(map[string]*model.Order),
		byExchangeID: make(map[string]string),
		log:          zap.S().With("component", "ledger"),
	}
}

// Create records a fresh order. The ClientOrderID must be new for the session.
func (l *Ledger) Create(order model.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.orders[order.ClientOrderID]; ok {
		return ErrDuplicateOrder
	}

	o := order
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	l.orders[o.ClientOrderID] = &o
	l.sequence = append(l.sequence, o.ClientOrderID)
	if o.ExchangeOrderID != "" {
		l.byExchangeID[o.ExchangeOrderID] = o.ClientOrderID
	}
	return nil
}

// Get returns a copy of the order, if known.
func (l *Ledger) Get(clientOrderID string) (model.Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	o, ok := l.orders[clientOrderID]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// ResolveExchangeOrderID maps a remote-only identifier back to the
// clientOrderId, when the binding is already known.
func (l *Ledger) ResolveExchangeOrderID(exchangeOrderID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, ok := l.byExchangeID[exchangeOrderID]
	return id, ok
}

// Transition moves an order to a locally initiated pending status
// (PENDING_CANCEL, PENDING_REPLACE). The legality check and the mutation run
// under one lock so a reconciliation tick cannot interleave.
func (l *Ledger) Transition(clientOrderID string, to model.OrderStatus) (model.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[clientOrderID]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	if o.Status == to {
		// already pending, the caller is retrying the remote call
		return *o, nil
	}
	if !o.CanCancel() {
		return *o, ErrInvalidOrderStatus
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return *o, nil
}

// MarkRejected records a permanent remote rejection of the submit. It is a
// no-op once the order is terminal or has fills.
func (l *Ledger) MarkRejected(clientOrderID, reason string) (model.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[clientOrderID]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	if o.IsTerminal() || o.FilledQuantity > 0 {
		return *o, ErrInvalidOrderStatus
	}
	o.Status = model.OrderStatusRejected
	o.RejectReason = reason
	o.UpdatedAt = time.Now()
	return *o, nil
}

// BindExchangeOrderID sets the exchange-side identifier the first time it is
// observed. Rebinding the same value is a no-op; a conflicting value is
// logged and ignored.
func (l *Ledger) BindExchangeOrderID(clientOrderID, exchangeOrderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[clientOrderID]
	if !ok {
		return
	}
	l.bindLocked(o, exchangeOrderID)
}

func (l *Ledger) bindLocked(o *model.Order, exchangeOrderID string) {
	if exchangeOrderID == "" {
		return
	}
	if o.ExchangeOrderID == "" {
		o.ExchangeOrderID = exchangeOrderID
		l.byExchangeID[exchangeOrderID] = o.ClientOrderID
		return
	}
	if o.ExchangeOrderID != exchangeOrderID {
		l.log.Warnw("conflicting exchange order id ignored",
			"clOrdId", o.ClientOrderID,
			"bound", o.ExchangeOrderID,
			"got", exchangeOrderID)
	}
}

// ApplyEvent merges one execution event. It returns the updated order and
// whether the event was applied; stale or duplicate sequence numbers, events
// for terminal or unknown orders, rejects after a fill and unknown exec types
// are discarded without touching order state or history. Discards are not
// errors, the remote side retransmits by design.
func (l *Ledger) ApplyEvent(ev model.ExecutionEvent) (model.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o := l.resolveLocked(ev.ClientOrderID, ev.ExchangeOrderID)
	if o == nil {
		l.log.Debugw("event for unknown order discarded",
			"clOrdId", ev.ClientOrderID, "orderId", ev.ExchangeOrderID, "seq", ev.SequenceNumber)
		return model.Order{}, false
	}
	if ev.SequenceNumber <= o.LastEventSeq {
		l.log.Debugw("stale or duplicate event discarded",
			"clOrdId", o.ClientOrderID, "seq", ev.SequenceNumber, "lastSeq", o.LastEventSeq)
		return *o, false
	}
	if o.IsTerminal() {
		l.log.Debugw("event for terminal order discarded",
			"clOrdId", o.ClientOrderID, "status", o.Status, "seq", ev.SequenceNumber)
		return *o, false
	}

	l.bindLocked(o, ev.ExchangeOrderID)

	switch ev.ExecType {
	case model.ExecTypeNew:
		if o.Status == model.OrderStatusPendingNew {
			o.Status = model.OrderStatusNew
		}

	case model.ExecTypePartialFill, model.ExecTypeFill:
		l.applyFillLocked(o, ev)

	case model.ExecTypeCancelled:
		o.Status = model.OrderStatusCancelled

	case model.ExecTypeReplaced:
		l.applyReplaceLocked(o, ev)

	case model.ExecTypeRejected:
		// a reject can no longer apply once quantity has traded; the order
		// and its history stay untouched
		if o.FilledQuantity > 0 {
			l.log.Warnw("reject after fill discarded",
				"clOrdId", o.ClientOrderID, "filled", o.FilledQuantity, "seq", ev.SequenceNumber)
			return *o, false
		}
		o.Status = model.OrderStatusRejected
		o.RejectReason = ev.Text

	default:
		l.log.Warnw("unknown exec type discarded",
			"clOrdId", o.ClientOrderID, "execType", ev.ExecType, "seq", ev.SequenceNumber)
		return *o, false
	}

	o.LastEventSeq = ev.SequenceNumber
	if ev.Timestamp.IsZero() {
		o.UpdatedAt = time.Now()
	} else {
		o.UpdatedAt = ev.Timestamp
	}

	applied := ev
	applied.ClientOrderID = o.ClientOrderID
	applied.ExchangeOrderID = o.ExchangeOrderID
	l.history = append(l.history, applied)

	return *o, true
}

// applyFillLocked adds traded quantity, clamped so filled never exceeds the
// order quantity. A fill observed while a cancel or replace is pending wins
// the race: the pending intent is void once the order is fully filled.
func (l *Ledger) applyFillLocked(o *model.Order, ev model.ExecutionEvent) {
	fill := ev.FillQuantity
	if leaves := o.Quantity - o.FilledQuantity; fill > leaves {
		l.log.Warnw("overfill clamped",
			"clOrdId", o.ClientOrderID, "fill", fill, "leaves", leaves, "seq", ev.SequenceNumber)
		fill = leaves
	}
	if fill > 0 && ev.LastPrice.IsPositive() {
		traded := o.AvgPrice.Mul(decimal.NewFromInt(o.FilledQuantity)).
			Add(ev.LastPrice.Mul(decimal.NewFromInt(fill)))
		o.AvgPrice = traded.Div(decimal.NewFromInt(o.FilledQuantity + fill))
	}
	o.FilledQuantity += fill

	switch {
	case o.FilledQuantity == o.Quantity:
		o.Status = model.OrderStatusFilled
	case o.Status == model.OrderStatusPendingCancel,
		o.Status == model.OrderStatusPendingReplace:
		// keep the pending status, only the quantity advanced
	default:
		o.Status = model.OrderStatusPartiallyFilled
	}
}

func (l *Ledger) applyReplaceLocked(o *model.Order, ev model.ExecutionEvent) {
	if ev.NewQuantity > 0 {
		o.Quantity = ev.NewQuantity
		if o.FilledQuantity > o.Quantity {
			o.Quantity = o.FilledQuantity
		}
	}
	if ev.NewPrice.IsPositive() {
		o.LimitPrice = ev.NewPrice
	}
	switch {
	case o.FilledQuantity == o.Quantity:
		o.Status = model.OrderStatusFilled
	case o.FilledQuantity > 0:
		o.Status = model.OrderStatusPartiallyFilled
	default:
		o.Status = model.OrderStatusNew
	}
}

// statusRank orders statuses by lifecycle progress so a snapshot can never
// move an order backwards.
func statusRank(s model.OrderStatus) int {
	switch s {
	case model.OrderStatusPendingNew:
		return 0
	case model.OrderStatusNew:
		return 1
	case model.OrderStatusPartiallyFilled, model.OrderStatusPendingReplace:
		return 2
	case model.OrderStatusPendingCancel:
		return 3
	case model.OrderStatusFilled, model.OrderStatusCancelled, model.OrderStatusRejected:
		return 4
	}
	return -1
}

// ApplySnapshot reconciles one remote order snapshot. Snapshots always bind
// the exchange order id; status and fills advance only when the snapshot
// proves it has seen later events than we have (a reported LastEventSeq
// beyond ours) and never roll back an order. Snapshots for ids this session
// never submitted are ignored.
func (l *Ledger) ApplySnapshot(snap model.OrderSnapshot) (model.Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o := l.resolveLocked(snap.ClientOrderID, snap.ExchangeOrderID)
	if o == nil {
		return model.Order{}, false
	}

	l.bindLocked(o, snap.ExchangeOrderID)

	if snap.LastEventSeq <= o.LastEventSeq || o.IsTerminal() {
		return *o, true
	}

	changed := false
	if snap.FilledQuantity > o.FilledQuantity {
		o.FilledQuantity = snap.FilledQuantity
		if o.FilledQuantity > o.Quantity {
			o.FilledQuantity = o.Quantity
		}
		if snap.AvgPrice.IsPositive() {
			o.AvgPrice = snap.AvgPrice
		}
		changed = true
	}
	if statusRank(snap.Status) > statusRank(o.Status) {
		o.Status = snap.Status
		changed = true
	}
	o.LastEventSeq = snap.LastEventSeq
	if changed {
		o.UpdatedAt = time.Now()
		l.log.Infow("order recovered from snapshot",
			"clOrdId", o.ClientOrderID, "status", o.Status, "filled", o.FilledQuantity)
	}
	return *o, true
}

func (l *Ledger) resolveLocked(clientOrderID, exchangeOrderID string) *model.Order {
	if clientOrderID != "" {
		if o, ok := l.orders[clientOrderID]; ok {
			return o
		}
	}
	if exchangeOrderID != "" {
		if id, ok := l.byExchangeID[exchangeOrderID]; ok {
			return l.orders[id]
		}
	}
	return nil
}

// Orders returns all orders of the session, most recent first.
func (l *Ledger) Orders() []View {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]View, 0, len(l.sequence))
	for i := len(l.sequence) - 1; i >= 0; i-- {
		o := l.orders[l.sequence[i]]
		out = append(out, View{Order: *o, Cancellable: o.CanCancel()})
	}
	return out
}

// OpenOrders returns only the cancellable orders, most recent first.
func (l *Ledger) OpenOrders() []View {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []View
	for i := len(l.sequence) - 1; i >= 0; i-- {
		o := l.orders[l.sequence[i]]
		if o.CanCancel() {
			out = append(out, View{Order: *o, Cancellable: true})
		}
	}
	return out
}

// Executions returns up to limit applied events, most recent first.
// limit <= 0 means no limit.
func (l *Ledger) Executions(limit int) []model.ExecutionEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.ExecutionEvent, 0, n)
	for i := len(l.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.history[i])
	}
	return out
}

// Stats counts orders per status bucket.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s Stats
	for _, o := range l.orders {
		s.Total++
		switch o.Status {
		case model.OrderStatusFilled:
			s.Filled++
		case model.OrderStatusCancelled:
			s.Cancelled++
		case model.OrderStatusRejected:
			s.Rejected++
		default:
			if o.Status == model.OrderStatusPartiallyFilled {
				s.PartiallyFilled++
			}
			s.Working++
		}
	}
	return s
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExecType string

const (
	ExecTypeNew         ExecType = "NEW"
	ExecTypePartialFill ExecType = "PARTIAL_FILL"
	ExecTypeFill        ExecType = "FILL"
	ExecTypeCancelled   ExecType = "CANCELLED"
	ExecTypeReplaced    ExecType = "REPLACED"
	ExecTypeRejected    ExecType = "REJECTED"
)

// ExecutionEvent is one asynchronous update about an order as reported by the
// remote service. Events for the same order are totally ordered by
// SequenceNumber; the remote side may deliver them out of order or more than
// once.
type ExecutionEvent struct {
	SequenceNumber  int64
	ClientOrderID   string
	ExchangeOrderID string // lookup fallback when ClientOrderID is empty
	ExecType        ExecType
	FillQuantity    int64
	LastPrice       decimal.Decimal
	NewQuantity     int64           // REPLACED only
	NewPrice        decimal.Decimal // REPLACED only
	Text            string          // reject/cancel reason, free-form
	Timestamp       time.Time
}

// IsFill reports whether the event carries traded quantity.
func (e *ExecutionEvent) IsFill() bool {
	return e.ExecType == ExecTypePartialFill || e.ExecType == ExecTypeFill
}

// OrderSnapshot is the remote side's best-effort current view of one order.
// Snapshots are secondary to events: they bind identifiers and may catch up
// missed events, but never roll a status back.
type OrderSnapshot struct {
	ClientOrderID   string
	ExchangeOrderID string
	Status          OrderStatus
	FilledQuantity  int64
	AvgPrice        decimal.Decimal
	LastEventSeq    int64 // 0 when the venue does not report one
}

type SessionStatus string

const (
	SessionConnected    SessionStatus = "CONNECTED"
	SessionDisconnected SessionStatus = "DISCONNECTED"
)

// SessionInfo is the display-only remote session state.
type SessionInfo struct {
	Status       SessionStatus
	SenderCompID string
	TargetCompID string
	UpdatedAt    time.Time
}

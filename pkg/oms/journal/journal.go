// Package journal streams every applied execution event to an external audit
// consumer. Publishing is fire-and-forget: in-session order state never
// depends on the journal.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/tradefront/fixdesk/pkg/oms/model"
)

// Entry is one applied event plus the order state that resulted from it.
type Entry struct {
	EventID         string    `json:"eventId" gorm:"primaryKey;column:event_id"`
	ClientOrderID   string    `json:"clOrdId" gorm:"column:cl_ord_id"`
	ExchangeOrderID string    `json:"orderId,omitempty" gorm:"column:exchange_order_id"`
	ExecType        string    `json:"execType" gorm:"column:exec_type"`
	SequenceNumber  int64     `json:"seqNum" gorm:"column:seq_num"`
	FillQuantity    int64     `json:"fillQty,omitempty" gorm:"column:fill_qty"`
	LastPrice       string    `json:"lastPrice,omitempty" gorm:"column:last_price"`
	Status          string    `json:"status" gorm:"column:status"`
	FilledQuantity  int64     `json:"filledQty" gorm:"column:filled_qty"`
	Timestamp       time.Time `json:"timestamp" gorm:"column:ts"`
}

func (Entry) TableName() string { return "order_events" }

// NewEntry builds the audit entry for an event just applied to order.
func NewEntry(order model.Order, ev model.ExecutionEvent) Entry {
	e := Entry{
		EventID:         fmt.Sprintf("%s-%d", order.ClientOrderID, ev.SequenceNumber),
		ClientOrderID:   order.ClientOrderID,
		ExchangeOrderID: order.ExchangeOrderID,
		ExecType:        string(ev.ExecType),
		SequenceNumber:  ev.SequenceNumber,
		FillQuantity:    ev.FillQuantity,
		Status:          string(order.Status),
		FilledQuantity:  order.FilledQuantity,
		Timestamp:       ev.Timestamp,
	}
	if ev.LastPrice.IsPositive() {
		e.LastPrice = ev.LastPrice.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e
}

// Publisher pushes entries toward the audit store.
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
}

// Noop drops entries; used when no audit pipeline is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Entry) error { return nil }

package repo

import (
	"context"
	"time"

	"github.com/tradefront/fixdesk/pkg/oms/journal"
)

// OrderRow is the audit-store projection of one order, kept current by the
// worker as journal entries arrive.
type OrderRow struct {
	ClOrdID         string    `gorm:"primaryKey;column:cl_ord_id"`
	ExchangeOrderID string    `gorm:"column:exchange_order_id"`
	Status          string    `gorm:"column:status"`
	FilledQuantity  int64     `gorm:"column:filled_qty"`
	LastSeq         int64     `gorm:"column:last_seq"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (OrderRow) TableName() string { return "orders" }

type IOrder interface {
	Upsert(ctx context.Context, record *OrderRow) error
}

type IOrderEvent interface {
	BulkCreate(ctx context.Context, records []*journal.Entry) error
}

package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderSQLRepo struct {
	db *gorm.DB
}

func NewOrderSQLRepo(db *gorm.DB) *OrderSQLRepo {
	return &OrderSQLRepo{
		db: db,
	}
}

func (s *OrderSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *OrderSQLRepo) Upsert(ctx context.Context, record *OrderRow) error {
	return s.dbWithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cl_ord_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"exchange_order_id", "status", "filled_qty", "last_seq", "updated_at",
		}),
	}).Create(record).Error
}

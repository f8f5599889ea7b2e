package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tradefront/fixdesk/pkg/oms/journal"
)

type OrderEventSQLRepo struct {
	db *gorm.DB
}

func NewOrderEventSQLRepo(db *gorm.DB) *OrderEventSQLRepo {
	return &OrderEventSQLRepo{
		db: db,
	}
}

func (s *OrderEventSQLRepo) dbWithContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// BulkCreate inserts journal entries; replays of an already stored event id
// are ignored so the audit consumer stays idempotent.
func (s *OrderEventSQLRepo) BulkCreate(ctx context.Context, records []*journal.Entry) error {
	return s.dbWithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(records).Error
}

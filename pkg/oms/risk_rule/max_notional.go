package riskrule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradefront/fixdesk/pkg/oms/model"
)

// MaxNotionalRule caps quantity * limit price. Market orders have no price to
// check and pass through.
type MaxNotionalRule struct {
	Max decimal.Decimal
}

func (r *MaxNotionalRule) Check(order *model.Order) error {
	if !r.Max.IsPositive() || order.Type != model.OrderTypeLimit {
		return nil
	}
	notional := order.LimitPrice.Mul(decimal.NewFromInt(order.Quantity))
	if notional.GreaterThan(r.Max) {
		return fmt.Errorf("notional %s exceeds per-order limit %s", notional, r.Max)
	}
	return nil
}

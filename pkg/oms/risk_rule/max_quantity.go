package riskrule

import (
	"fmt"

	"github.com/tradefront/fixdesk/pkg/oms/model"
)

type MaxQuantityRule struct {
	Max int64
}

func (r *MaxQuantityRule) Check(order *model.Order) error {
	if r.Max > 0 && order.Quantity > r.Max {
		return fmt.Errorf("quantity %d exceeds per-order limit %d", order.Quantity, r.Max)
	}
	return nil
}

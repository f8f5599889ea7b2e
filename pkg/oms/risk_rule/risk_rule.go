// Package riskrule holds pre-trade checks run by the command service after
// field validation and before anything reaches the remote gateway.
package riskrule

import "github.com/tradefront/fixdesk/pkg/oms/model"

type RiskRule interface {
	Check(order *model.Order) error
}

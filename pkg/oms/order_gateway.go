package oms

import (
	"context"

	"github.com/tradefront/fixdesk/pkg/oms/model"
)

// SubmitAck is the synchronous acknowledgement of a submit. The exchange
// order id may be absent here and arrive later via events or snapshots.
type SubmitAck struct {
	ExchangeOrderID string
}

// RemoteOrderGateway abstracts the external order-routing service. Submit,
// Cancel and Amend use the order's clientOrderId as the idempotency key and
// are safe to retry after a transient GatewayError. FetchOrders and
// FetchExecutions return best-effort, possibly overlapping results across
// calls; de-duplication is the reconciliation engine's job.
type RemoteOrderGateway interface {
	Submit(ctx context.Context, order model.Order) (*SubmitAck, error)
	Cancel(ctx context.Context, order model.Order) error
	Amend(ctx context.Context, order model.Order, amend model.AmendOrder) error

	FetchOrders(ctx context.Context) ([]model.OrderSnapshot, error)
	// FetchExecutions returns events with sequence numbers greater than
	// afterSeq. The bound is advisory; callers must still gate per order.
	FetchExecutions(ctx context.Context, afterSeq int64) ([]model.ExecutionEvent, error)
	FetchSessionStatus(ctx context.Context) (model.SessionInfo, error)
}

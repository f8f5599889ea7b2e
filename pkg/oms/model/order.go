package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingNew      OrderStatus = "PENDING_NEW"
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPendingCancel   OrderStatus = "PENDING_CANCEL"
	OrderStatusPendingReplace  OrderStatus = "PENDING_REPLACE"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further event may mutate an order in this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// IsWorking reports whether the order still has a live remote side.
func (s OrderStatus) IsWorking() bool {
	return s != "" && !s.IsTerminal()
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// Order is one trading intent and its local lifecycle. The ledger owns every
// Order of the session; everything outside the ledger works on copies.
type Order struct {
	// identity
	ClientOrderID   string
	ExchangeOrderID string // set once, on first ack/snapshot that carries it

	// init info
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   int64
	LimitPrice decimal.Decimal

	// derived info
	Status         OrderStatus
	FilledQuantity int64
	AvgPrice       decimal.Decimal
	LastEventSeq   int64 // highest applied remote sequence number
	RejectReason   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanCancel reports whether a cancel request is currently legal.
func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}

// CanAmend mirrors CanCancel; an order with an in-flight cancel or replace
// cannot take another one.
func (o *Order) CanAmend() bool {
	return o.CanCancel()
}

func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// LeavesQuantity is the open remainder of the order.
func (o *Order) LeavesQuantity() int64 {
	if o.IsTerminal() && o.Status != OrderStatusFilled {
		return 0
	}
	return o.Quantity - o.FilledQuantity
}

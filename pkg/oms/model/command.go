package model

import "github.com/shopspring/decimal"

// SubmitOrder is the inbound intent to create a new order.
type SubmitOrder struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   int64
	LimitPrice decimal.Decimal // required iff Type == LIMIT
}

// CancelOrder is the inbound intent to cancel a working order.
type CancelOrder struct {
	ClientOrderID string
}

// AmendOrder is the inbound intent to replace quantity and/or price of a
// working order. Zero values leave the corresponding field untouched.
type AmendOrder struct {
	ClientOrderID string
	NewQuantity   int64
	NewPrice      decimal.Decimal
}

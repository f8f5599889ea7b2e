package ledger

import "errors"

var (
	ErrDuplicateOrder     = errors.New("duplicate order")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidOrderStatus = errors.New("invalid order status")
)

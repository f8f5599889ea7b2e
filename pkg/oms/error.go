package oms

import (
	"errors"
	"fmt"

	"github.com/tradefront/fixdesk/pkg/oms/ledger"
)

// Re-exported so callers of the command service depend on one package.
var (
	ErrOrderNotFound      = ledger.ErrOrderNotFound
	ErrInvalidOrderStatus = ledger.ErrInvalidOrderStatus
	ErrDuplicateOrder     = ledger.ErrDuplicateOrder
)

// ValidationError reports a bad field on an inbound command. Validation
// failures are surfaced verbatim and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GatewayError wraps a failed RemoteOrderGateway call. A transient failure
// (network error, timeout, 5xx) is safe to retry with the same clientOrderId;
// a permanent failure must not be retried.
type GatewayError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("gateway %s: %s: %v", e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a gateway failure that may be retried.
func IsTransient(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient
}

// IsPermanent reports whether err is a gateway failure that must not be retried.
func IsPermanent(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && !ge.Transient
}

package oms

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradefront/fixdesk/pkg/oms/ledger"
	"github.com/tradefront/fixdesk/pkg/oms/model"
	riskrule "github.com/tradefront/fixdesk/pkg/oms/risk_rule"
)

const defaultCommandTimeout = 5 * time.Second

// CommandService validates and dispatches submit/cancel/amend intents. It
// assigns the clientOrderId, records the order in the ledger before any
// remote call, and keeps all remote calls retryable with that same id.
type CommandService struct {
	ledger  *ledger.Ledger
	gateway RemoteOrderGateway
	timeout time.Duration
	rules   []riskrule.RiskRule

	log *zap.SugaredLogger
}

func NewCommandService(l *ledger.Ledger, gw RemoteOrderGateway, timeout time.Duration, rules ...riskrule.RiskRule) *CommandService {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &CommandService{
		ledger:  l,
		gateway: gw,
		timeout: timeout,
		rules:   rules,
		log:     zap.S().With("component", "command_service"),
	}
}

// Submit validates the request, records a PENDING_NEW order and dispatches it.
// On a transient gateway failure the order stays PENDING_NEW and the returned
// error satisfies IsTransient; the caller may hand the returned order's
// ClientOrderID to Retry. On a permanent failure the order is REJECTED.
func (s *CommandService) Submit(ctx context.Context, req model.SubmitOrder) (model.Order, error) {
	if err := validateSubmit(req); err != nil {
		return model.Order{}, err
	}

	order := model.Order{
		ClientOrderID: uuid.NewString(),
		Symbol:        strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		Status:        model.OrderStatusPendingNew,
	}
	for _, rule := range s.rules {
		if err := rule.Check(&order); err != nil {
			return model.Order{}, &ValidationError{Field: "risk", Reason: err.Error()}
		}
	}
	if err := s.ledger.Create(order); err != nil {
		return model.Order{}, err
	}
	mtxSubmits.WithLabelValues(string(order.Side)).Inc()

	return s.dispatchSubmit(ctx, order.ClientOrderID)
}

// Retry re-sends a submit that previously failed transiently. The remote side
// dedups on clientOrderId, so re-sending an already accepted order is safe.
func (s *CommandService) Retry(ctx context.Context, clientOrderID string) (model.Order, error) {
	o, ok := s.ledger.Get(clientOrderID)
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	if o.Status != model.OrderStatusPendingNew {
		return o, ErrInvalidOrderStatus
	}
	return s.dispatchSubmit(ctx, clientOrderID)
}

func (s *CommandService) dispatchSubmit(ctx context.Context, clientOrderID string) (model.Order, error) {
	o, ok := s.ledger.Get(clientOrderID)
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ack, err := s.gateway.Submit(cctx, o)
	if err != nil {
		observeGatewayError("submit", err)
		if IsTransient(err) {
			s.log.Warnw("submit failed transiently, order stays pending",
				"clOrdId", clientOrderID, "err", err)
			return o, err
		}
		rejected, lerr := s.ledger.MarkRejected(clientOrderID, err.Error())
		if lerr != nil {
			// a fill or terminal event landed between dispatch and reject
			s.log.Warnw("submit rejected remotely but order already advanced",
				"clOrdId", clientOrderID, "status", rejected.Status)
			return rejected, err
		}
		return rejected, err
	}

	if ack != nil && ack.ExchangeOrderID != "" {
		s.ledger.BindExchangeOrderID(clientOrderID, ack.ExchangeOrderID)
	}
	o, _ = s.ledger.Get(clientOrderID)
	return o, nil
}

// Cancel moves a working order to PENDING_CANCEL and asks the remote side to
// cancel. On a transient failure the order stays PENDING_CANCEL and Cancel may
// be called again. A permanent refusal is tolerated: the remote side has
// typically resolved the order concurrently (for example a racing fill) and
// the reconciled state will reflect the true outcome.
func (s *CommandService) Cancel(ctx context.Context, clientOrderID string) (model.Order, error) {
	o, err := s.ledger.Transition(clientOrderID, model.OrderStatusPendingCancel)
	if err != nil {
		return o, err
	}
	mtxCancels.Inc()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.gateway.Cancel(cctx, o); err != nil {
		observeGatewayError("cancel", err)
		if IsTransient(err) {
			s.log.Warnw("cancel failed transiently, order stays pending cancel",
				"clOrdId", clientOrderID, "err", err)
			return o, err
		}
		s.log.Warnw("cancel refused remotely, awaiting reconciliation",
			"clOrdId", clientOrderID, "err", err)
	}

	o, _ = s.ledger.Get(clientOrderID)
	return o, nil
}

// Amend moves a working order to PENDING_REPLACE and asks the remote side to
// replace quantity and/or price. Failure handling mirrors Cancel.
func (s *CommandService) Amend(ctx context.Context, req model.AmendOrder) (model.Order, error) {
	if err := validateAmend(req); err != nil {
		return model.Order{}, err
	}

	o, err := s.ledger.Transition(req.ClientOrderID, model.OrderStatusPendingReplace)
	if err != nil {
		return o, err
	}
	mtxAmends.Inc()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.gateway.Amend(cctx, o, req); err != nil {
		observeGatewayError("amend", err)
		if IsTransient(err) {
			s.log.Warnw("amend failed transiently, order stays pending replace",
				"clOrdId", req.ClientOrderID, "err", err)
			return o, err
		}
		s.log.Warnw("amend refused remotely, awaiting reconciliation",
			"clOrdId", req.ClientOrderID, "err", err)
	}

	o, _ = s.ledger.Get(req.ClientOrderID)
	return o, nil
}

func validateSubmit(req model.SubmitOrder) error {
	if strings.TrimSpace(req.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	switch req.Side {
	case model.OrderSideBuy, model.OrderSideSell:
	default:
		return &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	switch req.Type {
	case model.OrderTypeLimit, model.OrderTypeMarket:
	default:
		return &ValidationError{Field: "orderType", Reason: "must be LIMIT or MARKET"}
	}
	if req.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if req.Type == model.OrderTypeLimit && !req.LimitPrice.IsPositive() {
		return &ValidationError{Field: "limitPrice", Reason: "required and positive for LIMIT orders"}
	}
	return nil
}

func validateAmend(req model.AmendOrder) error {
	if req.ClientOrderID == "" {
		return &ValidationError{Field: "clientOrderId", Reason: "must not be empty"}
	}
	if req.NewQuantity == 0 && !req.NewPrice.IsPositive() {
		return &ValidationError{Field: "amend", Reason: "need a new quantity or a new price"}
	}
	if req.NewQuantity < 0 {
		return &ValidationError{Field: "newQuantity", Reason: "must be positive"}
	}
	if req.NewPrice.IsNegative() {
		return &ValidationError{Field: "newPrice", Reason: "must be positive"}
	}
	return nil
}

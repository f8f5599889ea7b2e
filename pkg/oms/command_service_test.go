package oms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefront/fixdesk/pkg/oms/ledger"
	"github.com/tradefront/fixdesk/pkg/oms/model"
	riskrule "github.com/tradefront/fixdesk/pkg/oms/risk_rule"
)

// fakeGateway scripts RemoteOrderGateway responses per call.
type fakeGateway struct {
	submitCalls int
	cancelCalls int
	amendCalls  int
	lastSubmit  model.Order

	submitErrs []error // consumed per call, nil entries succeed
	submitAck  *SubmitAck
	cancelErr  error
	amendErr   error

	snaps      []model.OrderSnapshot
	snapsErr   error
	events     []model.ExecutionEvent
	eventsErr  error
	honorAfter bool // filter events by the afterSeq argument
	session    model.SessionInfo
	sessionErr error
	lastAfter  int64
}

func (g *fakeGateway) Submit(_ context.Context, order model.Order) (*SubmitAck, error) {
	g.submitCalls++
	g.lastSubmit = order
	if len(g.submitErrs) > 0 {
		err := g.submitErrs[0]
		g.submitErrs = g.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if g.submitAck != nil {
		return g.submitAck, nil
	}
	return &SubmitAck{}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, _ model.Order) error {
	g.cancelCalls++
	return g.cancelErr
}

func (g *fakeGateway) Amend(_ context.Context, _ model.Order, _ model.AmendOrder) error {
	g.amendCalls++
	return g.amendErr
}

func (g *fakeGateway) FetchOrders(_ context.Context) ([]model.OrderSnapshot, error) {
	return g.snaps, g.snapsErr
}

func (g *fakeGateway) FetchExecutions(_ context.Context, afterSeq int64) ([]model.ExecutionEvent, error) {
	g.lastAfter = afterSeq
	if g.eventsErr != nil {
		return nil, g.eventsErr
	}
	if !g.honorAfter {
		return g.events, nil
	}
	var out []model.ExecutionEvent
	for _, ev := range g.events {
		if ev.SequenceNumber > afterSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (g *fakeGateway) FetchSessionStatus(_ context.Context) (model.SessionInfo, error) {
	return g.session, g.sessionErr
}

func transientErr(op string) error {
	return &GatewayError{Op: op, Transient: true, Err: errors.New("connection refused")}
}

func permanentErr(op string) error {
	return &GatewayError{Op: op, Transient: false, Err: errors.New("status 400: bad request")}
}

func limitBuy(qty int64, price int64) model.SubmitOrder {
	return model.SubmitOrder{
		Symbol:     "aapl",
		Side:       model.OrderSideBuy,
		Type:       model.OrderTypeLimit,
		Quantity:   qty,
		LimitPrice: decimal.NewFromInt(price),
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := NewCommandService(ledger.New(), &fakeGateway{}, time.Second)

	cases := []struct {
		name  string
		req   model.SubmitOrder
		field string
	}{
		{"empty symbol", model.SubmitOrder{Side: model.OrderSideBuy, Type: model.OrderTypeLimit, Quantity: 1, LimitPrice: decimal.NewFromInt(1)}, "symbol"},
		{"bad side", model.SubmitOrder{Symbol: "AAPL", Side: "LONG", Type: model.OrderTypeLimit, Quantity: 1, LimitPrice: decimal.NewFromInt(1)}, "side"},
		{"bad type", model.SubmitOrder{Symbol: "AAPL", Side: model.OrderSideBuy, Type: "STOP", Quantity: 1, LimitPrice: decimal.NewFromInt(1)}, "orderType"},
		{"zero quantity", limitBuy(0, 1), "quantity"},
		{"negative quantity", limitBuy(-5, 1), "quantity"},
		{"limit without price", model.SubmitOrder{Symbol: "AAPL", Side: model.OrderSideBuy, Type: model.OrderTypeLimit, Quantity: 1}, "limitPrice"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, ve.Field)
			}
		})
	}
}

func TestSubmitMarketOrderNeedsNoPrice(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewCommandService(ledger.New(), gw, time.Second)

	o, err := svc.Submit(context.Background(), model.SubmitOrder{
		Symbol: "AAPL", Side: model.OrderSideSell, Type: model.OrderTypeMarket, Quantity: 3,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.Status != model.OrderStatusPendingNew {
		t.Errorf("expected PENDING_NEW, got %s", o.Status)
	}
}

func TestSubmitHappyPath(t *testing.T) {
	gw := &fakeGateway{submitAck: &SubmitAck{ExchangeOrderID: "X1"}}
	l := ledger.New()
	svc := NewCommandService(l, gw, time.Second)

	o, err := svc.Submit(context.Background(), limitBuy(10, 100))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if o.ClientOrderID == "" {
		t.Fatal("no clientOrderId assigned")
	}
	if o.Symbol != "AAPL" {
		t.Errorf("symbol not normalized: %q", o.Symbol)
	}
	if o.ExchangeOrderID != "X1" {
		t.Errorf("ack exchange id not bound: %q", o.ExchangeOrderID)
	}
	if gw.lastSubmit.ClientOrderID != o.ClientOrderID {
		t.Error("gateway did not receive the ledger order")
	}
	if id, ok := l.ResolveExchangeOrderID("X1"); !ok || id != o.ClientOrderID {
		t.Error("exchange id not indexed in ledger")
	}
}

func TestSubmitTransientFailureThenRetry(t *testing.T) {
	gw := &fakeGateway{
		submitErrs: []error{transientErr("submit"), nil},
		submitAck:  &SubmitAck{ExchangeOrderID: "X1"},
	}
	l := ledger.New()
	svc := NewCommandService(l, gw, time.Second)

	o, err := svc.Submit(context.Background(), limitBuy(10, 100))
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if o.Status != model.OrderStatusPendingNew {
		t.Fatalf("order must stay PENDING_NEW, got %s", o.Status)
	}

	// retry reuses the same clientOrderId
	retried, err := svc.Retry(context.Background(), o.ClientOrderID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.ClientOrderID != o.ClientOrderID {
		t.Errorf("retry must keep the idempotency key, got %s", retried.ClientOrderID)
	}
	if gw.submitCalls != 2 {
		t.Errorf("expected 2 submit calls, got %d", gw.submitCalls)
	}
	if retried.ExchangeOrderID != "X1" {
		t.Errorf("ack not bound on retry: %q", retried.ExchangeOrderID)
	}
}

func TestSubmitPermanentFailureRejects(t *testing.T) {
	gw := &fakeGateway{submitErrs: []error{permanentErr("submit")}}
	svc := NewCommandService(ledger.New(), gw, time.Second)

	o, err := svc.Submit(context.Background(), limitBuy(10, 100))
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if o.Status != model.OrderStatusRejected {
		t.Errorf("expected REJECTED, got %s", o.Status)
	}
	if o.RejectReason == "" {
		t.Error("reject reason not recorded")
	}

	// a rejected order cannot be retried
	if _, err := svc.Retry(context.Background(), o.ClientOrderID); err != ErrInvalidOrderStatus {
		t.Errorf("expected ErrInvalidOrderStatus, got %v", err)
	}
}

func TestSubmitRiskRuleRejects(t *testing.T) {
	l := ledger.New()
	svc := NewCommandService(l, &fakeGateway{}, time.Second, &riskrule.MaxQuantityRule{Max: 5})

	_, err := svc.Submit(context.Background(), limitBuy(10, 100))
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "risk" {
		t.Fatalf("expected risk validation error, got %v", err)
	}
	if len(l.Orders()) != 0 {
		t.Error("rejected order must not reach the ledger")
	}
}

func TestRetryUnknownOrder(t *testing.T) {
	svc := NewCommandService(ledger.New(), &fakeGateway{}, time.Second)
	if _, err := svc.Retry(context.Background(), "missing"); err != ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCancelHappyPath(t *testing.T) {
	gw := &fakeGateway{}
	l := ledger.New()
	svc := NewCommandService(l, gw, time.Second)

	o, err := svc.Submit(context.Background(), limitBuy(10, 100))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	l.ApplyEvent(model.ExecutionEvent{SequenceNumber: 1, ClientOrderID: o.ClientOrderID, ExecType: model.ExecTypeNew})

	c, err := svc.Cancel(context.Background(), o.ClientOrderID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c.Status != model.OrderStatusPendingCancel {
		t.Errorf("expected PENDING_CANCEL, got %s", c.Status)
	}
	if gw.cancelCalls != 1 {
		t.Errorf("expected 1 cancel call, got %d", gw.cancelCalls)
	}
}

func TestCancelGuards(t *testing.T) {
	l := ledger.New()
	svc := NewCommandService(l, &fakeGateway{}, time.Second)

	if _, err := svc.Cancel(context.Background(), "missing"); err != ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	o, err := svc.Submit(context.Background(), limitBuy(10, 100))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// no ack yet: PENDING_NEW is not cancellable
	if _, err := svc.Cancel(context.Background(), o.ClientOrderID); err != ErrInvalidOrderStatus {
		t.Fatalf("expected ErrInvalidOrderStatus, got %v", err)
	}

	l.ApplyEvent(model.ExecutionEvent{
		SequenceNumber: 1, ClientOrderID: o.ClientOrderID, ExecType: model.ExecTypeFill,
		FillQuantity: 10, LastPrice: decimal.NewFromInt(100),
	})
	if _, err := svc.Cancel(context.Background(), o.ClientOrderID); err != ErrInvalidOrderStatus {
		t.Fatalf("terminal order must not be cancellable, got %v", err)
	}
}

func TestCancelTransientFailureRetryable(t *testing.T) {
	gw := &fakeGateway{cancelErr: transientErr("cancel")}
	l := ledger.New()
	svc := NewCommandService(l, gw, time.Second)

	o, _ := svc.Submit(context.Background(), limitBuy(10, 100))
	l.ApplyEvent(model.ExecutionEvent{SequenceNumber: 1, ClientOrderID: o.ClientOrderID, ExecType: model.ExecTypeNew})

	c, err := svc.Cancel(context.Background(), o.ClientOrderID)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if c.Status != model.OrderStatusPendingCancel {
		t.Fatalf("order must stay PENDING_CANCEL, got %s", c.Status)
	}

	// second attempt goes through the idempotent transition and calls again
	gw.cancelErr = nil
	if _, err := svc.Cancel(context.Background(), o.ClientOrderID); err != nil {
		t.Fatalf("cancel retry: %v", err)
	}
	if gw.cancelCalls != 2 {
		t.Errorf("expected 2 cancel calls, got %d", gw.cancelCalls)
	}
}

func TestCancelPermanentRefusalTolerated(t *testing.T) {
	gw := &fakeGateway{cancelErr: permanentErr("cancel")}
	l := ledger.New()
	svc := NewCommandService(l, gw, time.Second)

	o, _ := svc.Submit(context.Background(), limitBuy(10, 100))
	l.ApplyEvent(model.ExecutionEvent{SequenceNumber: 1, ClientOrderID: o.ClientOrderID, ExecType: model.ExecTypeNew})

	// remote already resolved the order; reconciliation will surface the truth
	c, err := svc.Cancel(context.Background(), o.ClientOrderID)
	if err != nil {
		t.Fatalf("permanent cancel refusal must be tolerated, got %v", err)
	}
	if c.Status != model.OrderStatusPendingCancel {
		t.Errorf("expected PENDING_CANCEL until reconciled, got %s", c.Status)
	}
}

func TestAmend(t *testing.T) {
	gw := &fakeGateway{}
	l := ledger.New()
	svc := NewCommandService(l, gw, time.Second)

	o, _ := svc.Submit(context.Background(), limitBuy(10, 100))
	l.ApplyEvent(model.ExecutionEvent{SequenceNumber: 1, ClientOrderID: o.ClientOrderID, ExecType: model.ExecTypeNew})

	a, err := svc.Amend(context.Background(), model.AmendOrder{
		ClientOrderID: o.ClientOrderID,
		NewQuantity:   20,
		NewPrice:      decimal.NewFromInt(101),
	})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if a.Status != model.OrderStatusPendingReplace {
		t.Errorf("expected PENDING_REPLACE, got %s", a.Status)
	}
	if gw.amendCalls != 1 {
		t.Errorf("expected 1 amend call, got %d", gw.amendCalls)
	}

	// empty amend is a validation error
	_, err = svc.Amend(context.Background(), model.AmendOrder{ClientOrderID: o.ClientOrderID})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// Package fixclient implements RemoteOrderGateway against the REST API of the
// external fix-client sidecar, which owns the FIX session. This package is
// transport glue only: retry policy and state merging live with the callers.
package fixclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefront/fixdesk/pkg/oms"
	"github.com/tradefront/fixdesk/pkg/oms/model"
)

type Config struct {
	BaseURL string `yaml:"base_url"`
	// TimeoutSeconds bounds each HTTP call; callers add their own context
	// deadlines on top.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type Client struct {
	base string
	hc   *http.Client
}

func New(cfg *Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "http://localhost:8081/api"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: timeout},
	}
}

type orderPayload struct {
	ClOrdID   string           `json:"clOrdId"`
	Symbol    string           `json:"symbol"`
	Side      string           `json:"side"`
	OrderType string           `json:"orderType"`
	Quantity  int64            `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type orderAck struct {
	ClOrdID string `json:"clOrdId"`
	OrderID string `json:"orderId"`
}

type amendPayload struct {
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"`
	NewQuantity int64            `json:"newQuantity,omitempty"`
	NewPrice    *decimal.Decimal `json:"newPrice,omitempty"`
}

type orderRow struct {
	ClOrdID        string          `json:"clOrdId"`
	OrderID        string          `json:"orderId"`
	Status         string          `json:"status"`
	FilledQuantity int64           `json:"filledQuantity"`
	AvgPrice       decimal.Decimal `json:"avgPrice"`
	LastEventSeq   int64           `json:"lastEventSeq"`
}

type executionRow struct {
	SeqNum      int64           `json:"seqNum"`
	ClOrdID     string          `json:"clOrdId"`
	OrderID     string          `json:"orderId"`
	ExecType    string          `json:"execType"`
	LastQty     int64           `json:"lastQty"`
	LastPrice   decimal.Decimal `json:"lastPrice"`
	NewQuantity int64           `json:"newQuantity"`
	NewPrice    decimal.Decimal `json:"newPrice"`
	Text        string          `json:"text"`
	Timestamp   time.Time       `json:"timestamp"`
}

type sessionRow struct {
	LoggedOn     bool   `json:"loggedOn"`
	SenderCompID string `json:"senderCompId"`
	TargetCompID string `json:"targetCompId"`
}

func (c *Client) Submit(ctx context.Context, order model.Order) (*oms.SubmitAck, error) {
	payload := orderPayload{
		ClOrdID:   order.ClientOrderID,
		Symbol:    order.Symbol,
		Side:      string(order.Side),
		OrderType: string(order.Type),
		Quantity:  order.Quantity,
	}
	if order.Type == model.OrderTypeLimit {
		p := order.LimitPrice
		payload.Price = &p
	}

	var ack orderAck
	if err := c.call(ctx, "submit", http.MethodPost, c.base+"/orders", payload, &ack); err != nil {
		return nil, err
	}
	return &oms.SubmitAck{ExchangeOrderID: ack.OrderID}, nil
}

func (c *Client) Cancel(ctx context.Context, order model.Order) error {
	u := fmt.Sprintf("%s/orders/%s?symbol=%s&side=%s",
		c.base, url.PathEscape(order.ClientOrderID),
		url.QueryEscape(order.Symbol), url.QueryEscape(string(order.Side)))
	return c.call(ctx, "cancel", http.MethodDelete, u, nil, nil)
}

func (c *Client) Amend(ctx context.Context, order model.Order, amend model.AmendOrder) error {
	payload := amendPayload{
		Symbol:      order.Symbol,
		Side:        string(order.Side),
		NewQuantity: amend.NewQuantity,
	}
	if amend.NewPrice.IsPositive() {
		p := amend.NewPrice
		payload.NewPrice = &p
	}
	u := fmt.Sprintf("%s/orders/%s", c.base, url.PathEscape(order.ClientOrderID))
	return c.call(ctx, "amend", http.MethodPut, u, payload, nil)
}

func (c *Client) FetchOrders(ctx context.Context) ([]model.OrderSnapshot, error) {
	var rows []orderRow
	if err := c.call(ctx, "fetch_orders", http.MethodGet, c.base+"/orders", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.OrderSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.OrderSnapshot{
			ClientOrderID:   r.ClOrdID,
			ExchangeOrderID: r.OrderID,
			Status:          model.OrderStatus(r.Status),
			FilledQuantity:  r.FilledQuantity,
			AvgPrice:        r.AvgPrice,
			LastEventSeq:    r.LastEventSeq,
		})
	}
	return out, nil
}

func (c *Client) FetchExecutions(ctx context.Context, afterSeq int64) ([]model.ExecutionEvent, error) {
	u := fmt.Sprintf("%s/executions?afterSeq=%d", c.base, afterSeq)
	var rows []executionRow
	if err := c.call(ctx, "fetch_executions", http.MethodGet, u, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.ExecutionEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.ExecutionEvent{
			SequenceNumber:  r.SeqNum,
			ClientOrderID:   r.ClOrdID,
			ExchangeOrderID: r.OrderID,
			ExecType:        model.ExecType(r.ExecType),
			FillQuantity:    r.LastQty,
			LastPrice:       r.LastPrice,
			NewQuantity:     r.NewQuantity,
			NewPrice:        r.NewPrice,
			Text:            r.Text,
			Timestamp:       r.Timestamp,
		})
	}
	return out, nil
}

func (c *Client) FetchSessionStatus(ctx context.Context) (model.SessionInfo, error) {
	var rows []sessionRow
	if err := c.call(ctx, "fetch_session", http.MethodGet, c.base+"/sessions", nil, &rows); err != nil {
		return model.SessionInfo{}, err
	}
	info := model.SessionInfo{Status: model.SessionDisconnected}
	if len(rows) > 0 && rows[0].LoggedOn {
		info.Status = model.SessionConnected
		info.SenderCompID = rows[0].SenderCompID
		info.TargetCompID = rows[0].TargetCompID
	}
	return info, nil
}

// call performs one HTTP round trip and classifies failures: network errors,
// timeouts and 5xx are transient; 4xx is permanent.
func (c *Client) call(ctx context.Context, op, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &oms.GatewayError{Op: op, Transient: false, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &oms.GatewayError{Op: op, Transient: false, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return &oms.GatewayError{Op: op, Transient: true, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		b, _ := io.ReadAll(res.Body)
		return &oms.GatewayError{Op: op, Transient: true,
			Err: fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))}
	}
	if res.StatusCode >= 400 {
		b, _ := io.ReadAll(res.Body)
		return &oms.GatewayError{Op: op, Transient: false,
			Err: fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))}
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return &oms.GatewayError{Op: op, Transient: true, Err: err}
		}
	}
	return nil
}

var _ oms.RemoteOrderGateway = (*Client)(nil)

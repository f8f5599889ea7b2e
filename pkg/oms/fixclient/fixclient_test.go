package fixclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradefront/fixdesk/pkg/oms"
	"github.com/tradefront/fixdesk/pkg/oms/model"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(&Config{BaseURL: srv.URL + "/api"}), srv
}

func testOrder() model.Order {
	return model.Order{
		ClientOrderID: "c1",
		Symbol:        "AAPL",
		Side:          model.OrderSideBuy,
		Type:          model.OrderTypeLimit,
		Quantity:      10,
		LimitPrice:    decimal.NewFromInt(100),
	}
}

func TestSubmit(t *testing.T) {
	var got orderPayload
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(orderAck{ClOrdID: got.ClOrdID, OrderID: "X1"}) // nolint
	}))
	defer srv.Close()

	ack, err := c.Submit(context.Background(), testOrder())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ack.ExchangeOrderID != "X1" {
		t.Errorf("expected orderId X1, got %q", ack.ExchangeOrderID)
	}
	if got.ClOrdID != "c1" || got.Symbol != "AAPL" || got.Side != "BUY" || got.Quantity != 10 {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.Price == nil || !got.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("limit price not sent: %+v", got.Price)
	}
}

func TestSubmitMarketOmitsPrice(t *testing.T) {
	var got orderPayload
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got) // nolint
		json.NewEncoder(w).Encode(orderAck{})
	}))
	defer srv.Close()

	o := testOrder()
	o.Type = model.OrderTypeMarket
	if _, err := c.Submit(context.Background(), o); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Price != nil {
		t.Errorf("market order must not carry a price, got %s", got.Price)
	}
}

func TestCancelRequestShape(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/orders/c1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "AAPL" || r.URL.Query().Get("side") != "BUY" {
			t.Errorf("missing cancel params: %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := c.Cancel(context.Background(), testOrder()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"bad request is permanent", http.StatusBadRequest, false},
		{"not found is permanent", http.StatusNotFound, false},
		{"server error is transient", http.StatusInternalServerError, true},
		{"bad gateway is transient", http.StatusBadGateway, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", tc.status)
			}))
			defer srv.Close()

			err := c.Cancel(context.Background(), testOrder())
			if err == nil {
				t.Fatal("expected error")
			}
			if oms.IsTransient(err) != tc.transient {
				t.Errorf("status %d: expected transient=%v, got %v", tc.status, tc.transient, err)
			}
		})
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := New(&Config{BaseURL: srv.URL + "/api"})
	srv.Close() // connection refused from here on

	err := c.Cancel(context.Background(), testOrder())
	if !oms.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestFetchOrders(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]orderRow{{ // nolint
			ClOrdID:        "c1",
			OrderID:        "X1",
			Status:         "PARTIALLY_FILLED",
			FilledQuantity: 4,
			AvgPrice:       decimal.NewFromInt(100),
			LastEventSeq:   7,
		}})
	}))
	defer srv.Close()

	snaps, err := c.FetchOrders(context.Background())
	if err != nil {
		t.Fatalf("fetch orders: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	s := snaps[0]
	if s.ClientOrderID != "c1" || s.ExchangeOrderID != "X1" ||
		s.Status != model.OrderStatusPartiallyFilled || s.FilledQuantity != 4 || s.LastEventSeq != 7 {
		t.Errorf("unexpected snapshot: %+v", s)
	}
}

func TestFetchExecutions(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("afterSeq"); got != "5" {
			t.Errorf("expected afterSeq=5, got %q", got)
		}
		json.NewEncoder(w).Encode([]executionRow{{ // nolint
			SeqNum:    6,
			ClOrdID:   "c1",
			OrderID:   "X1",
			ExecType:  "PARTIAL_FILL",
			LastQty:   3,
			LastPrice: decimal.NewFromInt(99),
		}})
	}))
	defer srv.Close()

	events, err := c.FetchExecutions(context.Background(), 5)
	if err != nil {
		t.Fatalf("fetch executions: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.SequenceNumber != 6 || ev.ExecType != model.ExecTypePartialFill || ev.FillQuantity != 3 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestFetchSessionStatus(t *testing.T) {
	loggedOn := true
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode([]sessionRow{{ // nolint
			LoggedOn:     loggedOn,
			SenderCompID: "DESK",
			TargetCompID: "VENUE",
		}})
	}))
	defer srv.Close()

	info, err := c.FetchSessionStatus(context.Background())
	if err != nil {
		t.Fatalf("fetch session: %v", err)
	}
	if info.Status != model.SessionConnected || info.SenderCompID != "DESK" {
		t.Errorf("unexpected session info: %+v", info)
	}

	loggedOn = false
	info, err = c.FetchSessionStatus(context.Background())
	if err != nil {
		t.Fatalf("fetch session: %v", err)
	}
	if info.Status != model.SessionDisconnected {
		t.Errorf("expected DISCONNECTED, got %s", info.Status)
	}
}

func TestMalformedBodyIsTransient(t *testing.T) {
	c, srv := testClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json")) // nolint
	}))
	defer srv.Close()

	_, err := c.FetchOrders(context.Background())
	if !oms.IsTransient(err) {
		t.Fatalf("expected transient error on malformed body, got %v", err)
	}
}

// Package api exposes the inbound command surface and the derived read views
// over HTTP. Rendering is someone else's job; every handler returns JSON.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradefront/fixdesk/pkg/logging"
	"github.com/tradefront/fixdesk/pkg/oms"
	"github.com/tradefront/fixdesk/pkg/oms/ledger"
	"github.com/tradefront/fixdesk/pkg/oms/model"
)

type Server struct {
	commands *oms.CommandService
	ledger   *ledger.Ledger
	engine   *oms.Reconciler
	log      *logging.Logger
}

func NewServer(commands *oms.CommandService, l *ledger.Ledger, engine *oms.Reconciler, log *logging.Logger) *Server {
	return &Server{commands: commands, ledger: l, engine: engine, log: log}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", s.handleSubmit)
	mux.HandleFunc("POST /api/orders/{clOrdId}/retry", s.handleRetry)
	mux.HandleFunc("DELETE /api/orders/{clOrdId}", s.handleCancel)
	mux.HandleFunc("PUT /api/orders/{clOrdId}", s.handleAmend)
	mux.HandleFunc("GET /api/orders", s.handleOrders)
	mux.HandleFunc("GET /api/executions", s.handleExecutions)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return s.withRequestID(mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type submitRequest struct {
	Symbol    string           `json:"symbol"`
	Side      string           `json:"side"`
	OrderType string           `json:"orderType"`
	Quantity  int64            `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type amendRequest struct {
	NewQuantity int64            `json:"newQuantity"`
	NewPrice    *decimal.Decimal `json:"newPrice,omitempty"`
}

type orderResponse struct {
	ClOrdID        string           `json:"clOrdId"`
	OrderID        string           `json:"orderId,omitempty"`
	Symbol         string           `json:"symbol"`
	Side           string           `json:"side"`
	OrderType      string           `json:"orderType"`
	Quantity       int64            `json:"quantity"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Status         string           `json:"status"`
	FilledQuantity int64            `json:"filledQuantity"`
	LeavesQuantity int64            `json:"leavesQuantity"`
	AvgPrice       *decimal.Decimal `json:"avgPrice,omitempty"`
	Cancellable    bool             `json:"cancellable"`
	RejectReason   string           `json:"rejectReason,omitempty"`
	Timestamp      int64            `json:"timestamp"`
}

func toOrderResponse(o model.Order, cancellable bool) orderResponse {
	resp := orderResponse{
		ClOrdID:        o.ClientOrderID,
		OrderID:        o.ExchangeOrderID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		OrderType:      string(o.Type),
		Quantity:       o.Quantity,
		Status:         string(o.Status),
		FilledQuantity: o.FilledQuantity,
		LeavesQuantity: o.LeavesQuantity(),
		Cancellable:    cancellable,
		RejectReason:   o.RejectReason,
		Timestamp:      o.UpdatedAt.UnixMilli(),
	}
	if o.LimitPrice.IsPositive() {
		p := o.LimitPrice
		resp.Price = &p
	}
	if o.AvgPrice.IsPositive() {
		p := o.AvgPrice
		resp.AvgPrice = &p
	}
	return resp
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	cmd := model.SubmitOrder{
		Symbol:   req.Symbol,
		Side:     model.OrderSide(strings.ToUpper(req.Side)),
		Type:     model.OrderType(strings.ToUpper(req.OrderType)),
		Quantity: req.Quantity,
	}
	if req.Price != nil {
		cmd.LimitPrice = *req.Price
	}

	order, err := s.commands.Submit(r.Context(), cmd)
	if err != nil && !oms.IsTransient(err) {
		s.writeCommandError(w, r, err)
		return
	}
	// transient submit failure still returns the pending order so the
	// caller can retry with the same clOrdId
	writeJSON(w, http.StatusOK, toOrderResponse(order, order.CanCancel()))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	order, err := s.commands.Retry(r.Context(), r.PathValue("clOrdId"))
	if err != nil && !oms.IsTransient(err) {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, order.CanCancel()))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	order, err := s.commands.Cancel(r.Context(), r.PathValue("clOrdId"))
	if err != nil && !oms.IsTransient(err) {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, order.CanCancel()))
}

func (s *Server) handleAmend(w http.ResponseWriter, r *http.Request) {
	var req amendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	cmd := model.AmendOrder{
		ClientOrderID: r.PathValue("clOrdId"),
		NewQuantity:   req.NewQuantity,
	}
	if req.NewPrice != nil {
		cmd.NewPrice = *req.NewPrice
	}

	order, err := s.commands.Amend(r.Context(), cmd)
	if err != nil && !oms.IsTransient(err) {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order, order.CanCancel()))
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	var views []ledger.View
	if r.URL.Query().Get("filter") == "working" {
		views = s.ledger.OpenOrders()
	} else {
		views = s.ledger.Orders()
	}
	out := make([]orderResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toOrderResponse(v.Order, v.Cancellable))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	type execResponse struct {
		SeqNum    int64            `json:"seqNum"`
		ClOrdID   string           `json:"clOrdId"`
		OrderID   string           `json:"orderId,omitempty"`
		ExecType  string           `json:"execType"`
		LastQty   int64            `json:"lastQty,omitempty"`
		LastPrice *decimal.Decimal `json:"lastPrice,omitempty"`
		Text      string           `json:"text,omitempty"`
		Timestamp int64            `json:"timestamp"`
	}
	events := s.ledger.Executions(limit)
	out := make([]execResponse, 0, len(events))
	for _, ev := range events {
		row := execResponse{
			SeqNum:    ev.SequenceNumber,
			ClOrdID:   ev.ClientOrderID,
			OrderID:   ev.ExchangeOrderID,
			ExecType:  string(ev.ExecType),
			LastQty:   ev.FillQuantity,
			Text:      ev.Text,
			Timestamp: ev.Timestamp.UnixMilli(),
		}
		if ev.LastPrice.IsPositive() {
			p := ev.LastPrice
			row.LastPrice = &p
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	info := s.engine.Session()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       info.Status,
		"senderCompId": info.SenderCompID,
		"targetCompId": info.TargetCompID,
		"updatedAt":    info.UpdatedAt.UnixMilli(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.ledger.Stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"total":           st.Total,
		"working":         st.Working,
		"partiallyFilled": st.PartiallyFilled,
		"filled":          st.Filled,
		"cancelled":       st.Cancelled,
		"rejected":        st.Rejected,
	})
}

func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *oms.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, oms.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, oms.ErrInvalidOrderStatus):
		writeError(w, http.StatusConflict, err.Error())
	case oms.IsPermanent(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error(r.Context(), "command failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

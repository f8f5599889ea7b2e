package oms

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxSubmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_orders_submitted_total",
			Help: "Orders submitted, by side",
		},
		[]string{"side"},
	)

	mtxCancels = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oms_orders_cancel_requests_total",
			Help: "Cancel requests dispatched",
		},
	)

	mtxAmends = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oms_orders_amend_requests_total",
			Help: "Amend (cancel/replace) requests dispatched",
		},
	)

	mtxEventsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_events_applied_total",
			Help: "Execution events applied to the ledger, by exec type",
		},
		[]string{"exec_type"},
	)

	mtxEventsDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "oms_events_discarded_total",
			Help: "Execution events discarded as duplicate, stale, terminal or unknown",
		},
	)

	// result: ok|error|skipped
	mtxTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_reconcile_ticks_total",
			Help: "Reconciliation ticks by result",
		},
		[]string{"result"},
	)

	mtxGatewayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oms_gateway_errors_total",
			Help: "Remote gateway failures by operation and kind",
		},
		[]string{"op", "kind"},
	)
)

func init() {
	prometheus.MustRegister(mtxSubmits, mtxCancels, mtxAmends)
	prometheus.MustRegister(mtxEventsApplied, mtxEventsDiscarded)
	prometheus.MustRegister(mtxTicks, mtxGatewayErrors)
}

func observeGatewayError(op string, err error) {
	kind := "permanent"
	if IsTransient(err) {
		kind = "transient"
	}
	mtxGatewayErrors.WithLabelValues(op, kind).Inc()
}

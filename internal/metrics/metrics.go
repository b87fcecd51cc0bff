// Package metrics счётчики Prometheus для событий LINE и платёжных операций.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	lineEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gebwai",
		Name:      "line_events_total",
		Help:      "LINE webhook events by type.",
	}, []string{"type"})

	billingOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gebwai",
		Name:      "billing_operations_total",
		Help:      "Billing operations by name and result.",
	}, []string{"operation", "result"})
)

// LineEvent учитывает событие LINE.
func LineEvent(eventType string) {
	lineEvents.WithLabelValues(eventType).Inc()
}

// BillingOperation учитывает платёжную операцию с её результатом.
func BillingOperation(operation string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	billingOperations.WithLabelValues(operation, result).Inc()
}

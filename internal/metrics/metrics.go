// Package metrics exposes Prometheus collectors for the money-path
// operations. Everything registers on the default registry and is served on
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconciliationOutcomes counts per-booking reconciliation results,
	// labeled corrected | clean | skipped | failed.
	ReconciliationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_reconciliation_outcomes_total",
		Help: "Per-booking reconciliation outcomes.",
	}, []string{"outcome"})

	// RefundOutcomes counts refund attempts by type and terminal status.
	RefundOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_refund_outcomes_total",
		Help: "Refund attempts by refund type and outcome.",
	}, []string{"type", "outcome"})

	// TransferReversalFailures counts partner-side reversals that need manual
	// handling after the customer refund already went through.
	TransferReversalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_transfer_reversal_failures_total",
		Help: "Partner transfer reversals requiring manual processing.",
	})

	// LedgerCalls counts outbound processor calls by operation and result.
	LedgerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_calls_total",
		Help: "Calls to the external processor API.",
	}, []string{"op", "result"})
)

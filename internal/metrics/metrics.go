package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerPostings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "ledger_postings_total",
		Help:      "Ledger entries posted, by entry kind.",
	}, []string{"kind"})

	LedgerPostingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "ledger_posting_failures_total",
		Help:      "Rejected or failed ledger postings, by error code.",
	}, []string{"code"})

	PinValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "pin_validations_total",
		Help:      "Manager PIN validations, by outcome code.",
	}, []string{"outcome"})

	PinLockouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "pin_lockouts_total",
		Help:      "Staff accounts locked after repeated PIN failures.",
	})

	TokensConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "approval_tokens_consumed_total",
		Help:      "Approval token consume attempts, by result.",
	}, []string{"result"})

	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "side_effect_failures_total",
		Help:      "Secondary postings that failed and were handed to reconciliation.",
	}, []string{"effect"})

	DispatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Name:      "dispatch_results_total",
		Help:      "Offline bridge executions, by source.",
	}, []string{"source"})
)

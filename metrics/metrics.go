// Package metrics exposes the layer's prometheus collectors. The staleness
// window between the two writes of a cross-document mutation has no hard
// upper bound, so conflict and compensation rates are the signals operators
// watch to keep it honest.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CASConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_cas_conflicts_total",
		Help: "Compare-and-swap conflicts observed before a retry, by operation.",
	}, []string{"op"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_compensations_total",
		Help: "Compensating actions run after a partial cross-document failure.",
	}, []string{"op", "outcome"})

	NotificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_notification_outcomes_total",
		Help: "Notification gate decisions by result.",
	}, []string{"result"})

	CheckerMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_checker_mismatches_total",
		Help: "Derived-state mismatches found by the consistency checker, by field.",
	}, []string{"field"})
)

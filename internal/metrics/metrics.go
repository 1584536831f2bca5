package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exported on /metrics. Labels are kept low-cardinality on purpose:
// outcomes and operation names only, never ids.
var (
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_qr_checkins_total",
		Help: "QR check-in attempts by outcome.",
	}, []string{"outcome"}) // success, duplicate, expired, not_found

	QuotaDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_quota_deltas_total",
		Help: "Quota delta applications by result.",
	}, []string{"result"}) // applied, unmatched

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classtrack_reconcile_runs_total",
		Help: "Bulk reconciliation runs by operation.",
	}, []string{"op"}) // recalculate, sanitize, recover
)

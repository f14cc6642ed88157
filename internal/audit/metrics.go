package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Mutation results
const (
	resultCommitted = "committed"
	resultRejected  = "rejected"
	resultFailed    = "failed"
)

var (
	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tribegate_audited_mutations_total",
			Help: "Audited mutations by action and outcome.",
		},
		[]string{"action", "result"},
	)

	notifyFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tribegate_audit_notify_failures_total",
		Help: "Post-commit privileged action notifications that failed.",
	})
)

// RegisterMetrics registers the audit counters with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(mutationsTotal, notifyFailuresTotal)
}

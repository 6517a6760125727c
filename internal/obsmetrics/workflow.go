package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkflowMetrics instruments the change state machine and approval flow.
type WorkflowMetrics struct {
	TransitionsTotal       *prometheus.CounterVec // labels: from, to
	ApprovalDecisionsTotal *prometheus.CounterVec // labels: decision
	ApprovalsPending       prometheus.Gauge
	PolicyBlockedTotal     prometheus.Counter
}

func newWorkflowMetrics(namespace string) *WorkflowMetrics {
	return &WorkflowMetrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "workflow", Name: "transitions_total",
			Help: "Total number of change status transitions.",
		}, []string{"from", "to"}),
		ApprovalDecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "workflow", Name: "approval_decisions_total",
			Help: "Total number of approval decisions recorded, by decision.",
		}, []string{"decision"}),
		ApprovalsPending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "workflow", Name: "approvals_pending",
			Help: "Current number of approval rows awaiting a decision.",
		}),
		PolicyBlockedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "workflow", Name: "policy_blocked_total",
			Help: "Total number of changes rejected by a blocking policy verdict.",
		}),
	}
}

// ObserveTransition records a change status transition.
func (m *WorkflowMetrics) ObserveTransition(from, to string) {
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveApprovalDecision records a decided approval row.
func (m *WorkflowMetrics) ObserveApprovalDecision(decision string) {
	m.ApprovalDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObservePolicyBlocked records a change rejected by a blocking policy verdict.
func (m *WorkflowMetrics) ObservePolicyBlocked() {
	m.PolicyBlockedTotal.Inc()
}

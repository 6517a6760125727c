package obsmetrics

// ControllerMetrics adapts the workflow and risk category metrics into the
// single recorder the workflow controller wants: transition, approval, and
// policy events from WorkflowMetrics, score events from RiskMetrics.
type ControllerMetrics struct {
	workflow *WorkflowMetrics
	risk     *RiskMetrics
}

// Controller builds a ControllerMetrics backed by this registry's Workflow
// and Risk managers.
func (r *Registry) Controller() *ControllerMetrics {
	return &ControllerMetrics{workflow: r.Workflow(), risk: r.Risk()}
}

func (m *ControllerMetrics) ObserveTransition(from, to string) {
	m.workflow.ObserveTransition(from, to)
}

func (m *ControllerMetrics) ObserveApprovalDecision(decision string) {
	m.workflow.ObserveApprovalDecision(decision)
}

func (m *ControllerMetrics) ObserveScore(total float64, factorNames []string) {
	m.risk.ObserveScore(total, factorNames)
}

func (m *ControllerMetrics) ObservePolicyBlocked() {
	m.workflow.ObservePolicyBlocked()
}

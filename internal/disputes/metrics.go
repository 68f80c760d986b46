package disputes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics exports operation outcomes and the latest compliance sweep.
type EngineMetrics struct {
	Operations       *prometheus.CounterVec
	CreditsIssued    prometheus.Counter
	CreditsReversed  prometheus.Counter
	Escalations      *prometheus.CounterVec
	ComplianceRate   prometheus.Gauge
	OverdueDisputes  prometheus.Gauge
	DisputesByStatus *prometheus.GaugeVec
}

// NewEngineMetrics registers the engine's collectors on reg. Tests pass a
// private registry.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)
	return &EngineMetrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispute_engine_operations_total",
			Help: "Engine operations by name and outcome.",
		}, []string{"op", "outcome"}),
		CreditsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispute_engine_provisional_credits_issued_total",
			Help: "Provisional credits applied to cardholder accounts.",
		}),
		CreditsReversed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispute_engine_provisional_credits_reversed_total",
			Help: "Provisional credits reversed against cardholder accounts.",
		}),
		Escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispute_engine_escalations_total",
			Help: "Escalations by trigger.",
		}, []string{"trigger"}),
		ComplianceRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispute_engine_compliance_rate",
			Help: "On-time share of disputes at the last compliance sweep.",
		}),
		OverdueDisputes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispute_engine_overdue_disputes",
			Help: "Disputes past their regulatory deadline at the last sweep.",
		}),
		DisputesByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispute_engine_disputes_by_status",
			Help: "Dispute counts by lifecycle status at the last sweep.",
		}, []string{"status"}),
	}
}

func (m *EngineMetrics) observe(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	promComp "github.com/grand-thief-cash/chaos/outreach/pkg/application/components/prometheus"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
)

// Metrics 协调器业务指标. prometheus 组件未启用时所有方法均为空操作
type Metrics struct {
	*core.BaseComponent
	Prom *promComp.Component `infra:"dep:prometheus?"`

	claims      *prometheus.CounterVec
	claimTime   *prometheus.HistogramVec
	completions *prometheus.CounterVec
	scanned     *prometheus.CounterVec
	gateDenied  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	heartbeats  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{BaseComponent: core.NewBaseComponent(bizConsts.COMP_METRICS, consts.COMPONENT_LOGGING)}
}

// NewWithRegistry is used by tests to observe counters without the component.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := New()
	m.init(func(c prometheus.Collector) { reg.MustRegister(c) })
	return m
}

func (m *Metrics) Start(ctx context.Context) error {
	if err := m.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if m.Prom != nil {
		p := m.Prom
		m.claims = p.NewCounter("claims_total", "Claim requests by result.", []string{"result"})
		m.claimTime = p.NewHistogram("claim_duration_seconds", "Claim latency.", []string{"result"}, nil)
		m.completions = p.NewCounter("completions_total", "Completion reports by outcome and resulting status.", []string{"outcome", "status"})
		m.scanned = p.NewCounter("scanner_rows_total", "Rows moved by periodic scanners.", []string{"scanner"})
		m.gateDenied = p.NewCounter("gate_denials_total", "Permit denials by reason.", []string{"reason"})
		m.transitions = p.NewCounter("breaker_transitions_total", "Circuit breaker state changes.", []string{"breaker", "from", "to"})
		m.heartbeats = p.NewCounter("heartbeats_total", "Runner heartbeats by reported status.", []string{"status"})
	}
	return nil
}

func (m *Metrics) init(register func(prometheus.Collector)) {
	m.claims = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outreach_claims_total"}, []string{"result"})
	m.claimTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "outreach_claim_duration_seconds"}, []string{"result"})
	m.completions = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outreach_completions_total"}, []string{"outcome", "status"})
	m.scanned = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outreach_scanner_rows_total"}, []string{"scanner"})
	m.gateDenied = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outreach_gate_denials_total"}, []string{"reason"})
	m.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outreach_breaker_transitions_total"}, []string{"breaker", "from", "to"})
	m.heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outreach_heartbeats_total"}, []string{"status"})
	for _, c := range []prometheus.Collector{m.claims, m.claimTime, m.completions, m.scanned, m.gateDenied, m.transitions, m.heartbeats} {
		register(c)
	}
}

func (m *Metrics) Claim(result string, took time.Duration) {
	if m == nil || m.claims == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
	m.claimTime.WithLabelValues(result).Observe(took.Seconds())
}

func (m *Metrics) Completion(outcome, status string) {
	if m == nil || m.completions == nil {
		return
	}
	m.completions.WithLabelValues(outcome, status).Inc()
}

func (m *Metrics) Scanned(scanner string, n int64) {
	if m == nil || m.scanned == nil || n <= 0 {
		return
	}
	m.scanned.WithLabelValues(scanner).Add(float64(n))
}

func (m *Metrics) GateDenied(reason string) {
	if m == nil || m.gateDenied == nil {
		return
	}
	m.gateDenied.WithLabelValues(reason).Inc()
}

func (m *Metrics) BreakerTransition(name, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(name, from, to).Inc()
}

func (m *Metrics) Heartbeat(status string) {
	if m == nil || m.heartbeats == nil {
		return
	}
	m.heartbeats.WithLabelValues(status).Inc()
}

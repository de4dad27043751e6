package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the inbound-to-reply flow.
type PipelineMetrics struct {
	webhookTotal   *prometheus.CounterVec
	scheduledTotal prometheus.Counter
	droppedTotal   *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	llmCallsTotal  *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	jobLatency     *prometheus.HistogramVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "ingress",
			Name:      "webhook_events_total",
			Help:      "Total inbound UazAPI webhook deliveries",
		}, []string{"event", "status"}),
		scheduledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "ingress",
			Name:      "scheduled_jobs_total",
			Help:      "Inbound messages handed to the background pipeline",
		}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "pipeline",
			Name:      "dropped_jobs_total",
			Help:      "Inbound messages dropped before a reply was produced",
		}, []string{"reason"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "orchestrator",
			Name:      "tool_calls_total",
			Help:      "Tool invocations requested by the language model",
		}, []string{"tool", "outcome"}),
		llmCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "orchestrator",
			Name:      "llm_calls_total",
			Help:      "Language model completions",
		}, []string{"provider", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "dispatch",
			Name:      "outbound_total",
			Help:      "Outbound WhatsApp sends",
		}, []string{"status"}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "pipeline",
			Name:      "job_latency_seconds",
			Help:      "End-to-end latency of one inbound message",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.scheduledTotal, m.droppedTotal, m.toolCallsTotal,
		m.llmCallsTotal, m.outboundTotal, m.jobLatency)
	return m
}

func (m *PipelineMetrics) ObserveWebhook(event, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(event, status).Inc()
}

func (m *PipelineMetrics) ObserveScheduled() {
	if m == nil {
		return
	}
	m.scheduledTotal.Inc()
}

// ObserveDropped records a message that never reached a reply. Reasons are
// short tokens such as "unmapped_instance", "queue_full" or "duplicate".
func (m *PipelineMetrics) ObserveDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *PipelineMetrics) ObserveLLMCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.llmCallsTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *PipelineMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveJobLatency(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.jobLatency.WithLabelValues(outcome).Observe(seconds)
}

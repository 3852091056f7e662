package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	DispatchPasses = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "followup_dispatch_passes_total", Help: "Dispatch passes run"},
	)
	DispatchRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "followup_dispatch_rows_total", Help: "Per-row dispatch outcomes"},
		[]string{"kind", "result"},
	)
	GatewaySend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whatsapp_send_total", Help: "Gateway send outcomes"},
		[]string{"result"},
	)
	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "whatsapp_send_latency_seconds", Help: "Gateway send latency"},
	)
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "whatsapp_inbound_events_total", Help: "Inbound webhook events by outcome"},
		[]string{"result"},
	)
	AnalysisJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "followup_analysis_jobs_total", Help: "Reply analysis jobs by outcome"},
		[]string{"result"},
	)
	ResendDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "followup_resend_total", Help: "Manual resend decisions"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(DispatchPasses, DispatchRows, GatewaySend, GatewayLatency, InboundEvents, AnalysisJobs, ResendDecisions)
}

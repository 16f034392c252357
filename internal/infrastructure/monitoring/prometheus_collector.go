package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector exports relay activity. It satisfies
// ports.RelayMetrics so it can sit behind the MetricsService.
type PrometheusCollector struct {
	registry *prometheus.Registry

	clientsConnected   *prometheus.GaugeVec
	connectionsTotal   *prometheus.CounterVec
	rejectedTotal      *prometheus.CounterVec
	framesReceived     *prometheus.CounterVec
	framesForwarded    *prometheus.CounterVec
	bytesForwarded     *prometheus.CounterVec
	writeFailures      *prometheus.CounterVec
	protocolViolations *prometheus.CounterVec

	frameSize *prometheus.HistogramVec
}

// NewPrometheusCollector registers the relay metrics on a private registry
// together with the Go and process collectors.
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusCollector{
		registry: reg,

		clientsConnected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexo_relay_clients_connected",
			Help: "Number of clients currently connected to a relay",
		}, []string{"relay"}),

		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexo_relay_connections_total",
			Help: "Total number of clients that completed the handshake",
		}, []string{"relay"}),

		rejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexo_relay_rejected_connections_total",
			Help: "Connections refused by the admission limiter",
		}, []string{"relay"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexo_relay_frames_received_total",
			Help: "Upload frames read from clients",
		}, []string{"relay"}),

		framesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexo_relay_frames_forwarded_total",
			Help: "Relayed frames written to destination clients",
		}, []string{"relay"}),

		bytesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexo_relay_forwarded_bytes_total",
			Help: "Payload bytes written to destination clients",
		}, []string{"relay"}),

		writeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexo_relay_write_failures_total",
			Help: "Destination writes that failed and dropped the client",
		}, []string{"relay"}),

		protocolViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexo_relay_protocol_violations_total",
			Help: "Clients disconnected for malformed framing",
		}, []string{"relay"}),

		frameSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexo_relay_frame_size_bytes",
			Help:    "Size of received upload payloads",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"relay"}),
	}
}

func (p *PrometheusCollector) ClientConnected(relay string) {
	p.clientsConnected.WithLabelValues(relay).Inc()
	p.connectionsTotal.WithLabelValues(relay).Inc()
}

func (p *PrometheusCollector) ClientDisconnected(relay string) {
	p.clientsConnected.WithLabelValues(relay).Dec()
}

func (p *PrometheusCollector) ClientRejected(relay string) {
	p.rejectedTotal.WithLabelValues(relay).Inc()
}

func (p *PrometheusCollector) FrameReceived(relay string, bytes int) {
	p.framesReceived.WithLabelValues(relay).Inc()
	p.frameSize.WithLabelValues(relay).Observe(float64(bytes))
}

func (p *PrometheusCollector) FrameForwarded(relay string, bytes int) {
	p.framesForwarded.WithLabelValues(relay).Inc()
	p.bytesForwarded.WithLabelValues(relay).Add(float64(bytes))
}

func (p *PrometheusCollector) WriteFailed(relay string) {
	p.writeFailures.WithLabelValues(relay).Inc()
}

func (p *PrometheusCollector) ProtocolViolation(relay string) {
	p.protocolViolations.WithLabelValues(relay).Inc()
}

func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

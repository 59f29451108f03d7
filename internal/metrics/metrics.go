// Package metrics exposes Prometheus collectors for the ingestion
// pipeline and the realtime hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the daemon registers.
type Metrics struct {
	PayloadsIngested  prometheus.Counter
	PayloadsDuplicate prometheus.Counter
	PayloadsMalformed prometheus.Counter
	StatusUpdates     prometheus.Counter
	MessagesSent      prometheus.Counter
	ConnectedViewers  prometheus.Gauge
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PayloadsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "wview_payloads_ingested_total",
			Help: "Webhook message payloads stored.",
		}),
		PayloadsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "wview_payloads_duplicate_total",
			Help: "Webhook message payloads skipped as duplicates.",
		}),
		PayloadsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "wview_payloads_malformed_total",
			Help: "Webhook payloads rejected for shape violations.",
		}),
		StatusUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "wview_status_updates_total",
			Help: "Status events applied to stored messages.",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "wview_messages_sent_total",
			Help: "Outgoing messages created through the API.",
		}),
		ConnectedViewers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wview_connected_viewers",
			Help: "WebSocket viewers currently connected.",
		}),
	}
}

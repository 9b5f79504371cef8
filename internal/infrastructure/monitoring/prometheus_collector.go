package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayCollector exposes signaling relay metrics.
type RelayCollector struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	roomsActive       prometheus.Gauge
	eventsRelayed     *prometheus.CounterVec
	eventsRejected    *prometheus.CounterVec
	messageBytes      prometheus.Histogram
}

// NewRelayCollector registers the relay metrics on reg. A nil reg uses the default registerer.
func NewRelayCollector(reg prometheus.Registerer) *RelayCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &RelayCollector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lexmeet_relay_connections_active",
			Help: "Number of open signaling connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lexmeet_relay_connections_total",
			Help: "Total number of accepted signaling connections",
		}),
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lexmeet_relay_rooms_active",
			Help: "Number of rooms with at least one participant",
		}),
		eventsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lexmeet_relay_events_total",
			Help: "Signaling events handled by the relay",
		}, []string{"event"}),
		eventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lexmeet_relay_events_rejected_total",
			Help: "Signaling messages the relay refused",
		}, []string{"reason"}),
		messageBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexmeet_relay_message_bytes",
			Help:    "Size of inbound signaling messages",
			Buckets: prometheus.ExponentialBuckets(64, 4, 7),
		}),
	}
}

func (p *RelayCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *RelayCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *RelayCollector) RoomsActive(n int) {
	p.roomsActive.Set(float64(n))
}

func (p *RelayCollector) EventRelayed(event string, size int) {
	p.eventsRelayed.WithLabelValues(event).Inc()
	p.messageBytes.Observe(float64(size))
}

func (p *RelayCollector) EventRejected(reason string) {
	p.eventsRejected.WithLabelValues(reason).Inc()
}

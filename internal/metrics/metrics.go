package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics счетчики realtime-чата
type Metrics struct {
	Connections    prometheus.Gauge
	Subscriptions  prometheus.Gauge
	MessagesStored prometheus.Counter
	Broadcasts     prometheus.Counter
	DroppedClients prometheus.Counter
	RejectedSends  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "storychat",
			Name:      "ws_connections",
			Help:      "Open WebSocket connections.",
		}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "storychat",
			Name:      "room_subscriptions",
			Help:      "Connection-to-room subscriptions currently held by the hub.",
		}),
		MessagesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: "storychat",
			Name:      "messages_stored_total",
			Help:      "Chat messages durably stored.",
		}),
		Broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "storychat",
			Name:      "broadcasts_total",
			Help:      "Room broadcasts fanned out.",
		}),
		DroppedClients: f.NewCounter(prometheus.CounterOpts{
			Namespace: "storychat",
			Name:      "dropped_clients_total",
			Help:      "Connections dropped because their send queue was full.",
		}),
		RejectedSends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storychat",
			Name:      "rejected_sends_total",
			Help:      "Rejected chat sends by error code.",
		}, []string{"code"}),
	}
}

// Discard метрики без регистрации, для тестов
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

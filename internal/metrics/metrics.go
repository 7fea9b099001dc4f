// Package metrics exports signaling activity to Prometheus.
package metrics

import (
	"github.com/mossy-p/airtext/internal/rooms"
	"github.com/mossy-p/airtext/internal/signaling"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "airtext"

// Metrics implements signaling.Observer.
type Metrics struct {
	roomsOpened prometheus.Counter
	roomsPaired prometheus.Counter
	roomsClosed *prometheus.CounterVec
	relayed     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

// Gauges supplies the live values sampled at scrape time.
type Gauges struct {
	Rooms    func() int
	Sessions func() int
}

// New registers the collectors on reg. Nil gauge functions are skipped.
func New(reg prometheus.Registerer, g Gauges) (*Metrics, error) {
	m := &Metrics{
		roomsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_opened_total",
			Help:      "Rooms created.",
		}),
		roomsPaired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_paired_total",
			Help:      "Rooms that gained a joiner.",
		}),
		roomsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_closed_total",
			Help:      "Rooms removed, by reason.",
		}, []string{"reason"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_total",
			Help:      "Negotiation messages forwarded between participants.",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Rejected requests, by operation and error code.",
		}, []string{"op", "code"}),
	}

	collectors := []prometheus.Collector{m.roomsOpened, m.roomsPaired, m.roomsClosed, m.relayed, m.rejected}
	if g.Rooms != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_live",
			Help:      "Rooms currently held by the registry.",
		}, func() float64 { return float64(g.Rooms()) }))
	}
	if g.Sessions != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_live",
			Help:      "Attached control channel sessions.",
		}, func() float64 { return float64(g.Sessions()) }))
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RoomOpened(rooms.Room) { m.roomsOpened.Inc() }

func (m *Metrics) RoomPaired(rooms.Room) { m.roomsPaired.Inc() }

func (m *Metrics) RoomClosed(_ string, reason signaling.CloseReason) {
	m.roomsClosed.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) Relayed(kind signaling.EventType) {
	m.relayed.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) Rejected(op string, err error) {
	m.rejected.WithLabelValues(op, signaling.ErrorCode(err)).Inc()
}

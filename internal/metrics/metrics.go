// Package metrics exports poll and send activity to Prometheus and, when
// configured, DogStatsD.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adarcie/CustomSmartThermostat/internal/datadog"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
	"github.com/adarcie/CustomSmartThermostat/internal/poller"
	"github.com/adarcie/CustomSmartThermostat/internal/sender"
)

var statuses = []model.Status{model.StatusPending, model.StatusWaiting, model.StatusLive}

// Recorder implements poller.Observer and sender.Observer.
type Recorder struct {
	registry *prometheus.Registry

	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	sends        *prometheus.CounterVec
	sendDuration prometheus.Histogram
	cardStatus   *prometheus.GaugeVec
	temperature  *prometheus.GaugeVec
	setpoint     *prometheus.GaugeVec
	pendingCards prometheus.GaugeFunc

	mu      sync.Mutex
	pending func() int
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermostat_panel_polls_total",
				Help: "State polls by result",
			},
			[]string{"result"},
		),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thermostat_panel_poll_duration_seconds",
			Help:    "Time spent fetching and reconciling state",
			Buckets: prometheus.DefBuckets,
		}),
		sends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thermostat_panel_setpoint_sends_total",
				Help: "Setpoint commands by device and result",
			},
			[]string{"device", "result"},
		),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thermostat_panel_send_duration_seconds",
			Help:    "Time spent delivering a setpoint command",
			Buckets: prometheus.DefBuckets,
		}),
		cardStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "thermostat_panel_card_status",
				Help: "1 for the current status of each card",
			},
			[]string{"device", "status"},
		),
		temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "thermostat_panel_temperature",
				Help: "Last reported temperature",
			},
			[]string{"device"},
		),
		setpoint: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "thermostat_panel_setpoint",
				Help: "Last reported authoritative setpoint",
			},
			[]string{"device"},
		),
	}
	r.pendingCards = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "thermostat_panel_pending_cards",
		Help: "Cards with a sent setpoint awaiting confirmation",
	}, func() float64 { return float64(r.pendingCount()) })

	r.registry.MustRegister(
		r.polls,
		r.pollDuration,
		r.sends,
		r.sendDuration,
		r.cardStatus,
		r.temperature,
		r.setpoint,
		r.pendingCards,
	)
	return r
}

// TrackPending makes the pending-cards gauge report count() on every scrape,
// covering every card whether or not it appeared in the last poll.
func (r *Recorder) TrackPending(count func() int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = count
}

func (r *Recorder) pendingCount() int {
	r.mu.Lock()
	count := r.pending
	r.mu.Unlock()
	if count == nil {
		return 0
	}
	return count()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObservePoll(res poller.Result) {
	r.pollDuration.Observe(res.Duration.Seconds())
	if res.Err != nil {
		r.polls.WithLabelValues("error").Inc()
		datadog.Incr("poll.count", "result:error")
		return
	}
	r.polls.WithLabelValues("ok").Inc()
	datadog.Incr("poll.count", "result:ok")

	for _, v := range res.Views {
		for _, st := range statuses {
			val := 0.0
			if v.Status == st {
				val = 1
			}
			r.cardStatus.WithLabelValues(v.ID, string(st)).Set(val)
		}

		ds := res.Snapshot[v.ID]
		r.observeReading(r.temperature, "temperature", v.ID, ds.Temperature)
		r.observeReading(r.setpoint, "setpoint", v.ID, ds.Setpoint)
	}

	if datadog.Enabled() {
		datadog.Gauge("cards.pending", float64(r.pendingCount()))
	}
}

// observeReading sets the device's gauge, or drops it while the reading is
// unknown so a stale value is not scraped.
func (r *Recorder) observeReading(g *prometheus.GaugeVec, name, deviceID string, reading model.OptionalFloat) {
	v, ok := reading.Get()
	if !ok {
		g.DeleteLabelValues(deviceID)
		return
	}
	g.WithLabelValues(deviceID).Set(v)
	datadog.Gauge(name, v, "device:"+deviceID)
}

func (r *Recorder) ObserveSend(o sender.Outcome) {
	r.sends.WithLabelValues(o.DeviceID, string(o.Result)).Inc()
	if o.Result != sender.ResultSkipped {
		r.sendDuration.Observe(o.Duration.Seconds())
	}
	datadog.Incr("setpoint.send", "device:"+o.DeviceID, "result:"+string(o.Result))
}

package api

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vocdoni/ticketvote/ballotbox"
)

// metrics holds the Prometheus collectors of an API instance. Each instance
// owns its registry.
type metrics struct {
	registry *prometheus.Registry
	// failures counts error responses of /verify and /vote by error code.
	failures *prometheus.CounterVec
}

func newMetrics(box *ballotbox.BallotBox) *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	m := &metrics{registry: registry}

	m.failures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketvote_ballot_failures_total",
		Help: "Total number of failed verify and vote requests by error code",
	}, []string{"code"})

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "ticketvote_admissions_total",
		Help: "Total number of credentials admitted since start",
	}, func() float64 {
		admitted, _ := box.Stats()
		return float64(admitted)
	})
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "ticketvote_admission_rejections_total",
		Help: "Total number of credentials rejected by admission since start",
	}, func() float64 {
		_, rejected := box.Stats()
		return float64(rejected)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ticketvote_ballots_counted",
		Help: "Number of ballots accumulated in the epoch tallies",
	}, func() float64 {
		epoch, err := box.Epoch()
		if err != nil {
			return 0
		}
		return float64(epoch.Ballots)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ticketvote_epoch_open",
		Help: "Whether the epoch accepts votes (1) or is closed (0)",
	}, func() float64 {
		if box.IsOpen() {
			return 1
		}
		return 0
	})
	return m
}

func (m *metrics) failure(apiErr Error) {
	m.failures.WithLabelValues(strconv.Itoa(apiErr.Code)).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

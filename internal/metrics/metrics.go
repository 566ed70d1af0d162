// Package metrics exposes Prometheus collectors for the schedule crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page kinds used as label values.
const (
	PageCalendar = "calendar"
	PageSession  = "session"
	PageProfile  = "profile"
)

var (
	pageFetchesTotal         *prometheus.CounterVec
	pageFetchDurationSeconds *prometheus.HistogramVec
	eventsTotal              *prometheus.CounterVec
	speakerObservationsTotal *prometheus.CounterVec
	canonicalSpeakers        prometheus.Gauge
	persistedRecordsTotal    *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schedule_page_fetches_total",
				Help: "Total page fetches, labeled by page kind and outcome.",
			},
			[]string{"page", "outcome"},
		)

		pageFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schedule_page_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by page kind.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"page"},
		)

		eventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schedule_events_total",
				Help: "Events processed, labeled by resolution status.",
			},
			[]string{"status"},
		)

		speakerObservationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schedule_speaker_observations_total",
				Help: "Speaker observations merged, labeled by effect.",
			},
			[]string{"effect"},
		)

		canonicalSpeakers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "schedule_canonical_speakers",
				Help: "Number of canonical speaker records in the current run.",
			},
		)

		persistedRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schedule_persisted_records_total",
				Help: "Records inserted into the store, labeled by collection.",
			},
			[]string{"collection"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Router serves /metrics and a liveness probe while a crawl runs.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", Handler())
	return r
}

// ObservePageFetch records one page load.
func ObservePageFetch(page string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	pageFetchesTotal.WithLabelValues(page, outcome).Inc()
	pageFetchDurationSeconds.WithLabelValues(page).Observe(duration.Seconds())
}

// ObserveEvent records the final state of one event ("resolved", "unresolved", "raw_time").
func ObserveEvent(status string) {
	eventsTotal.WithLabelValues(status).Inc()
}

// ObserveSpeaker records the effect of one reconciler observation.
func ObserveSpeaker(created, enriched bool) {
	switch {
	case created:
		speakerObservationsTotal.WithLabelValues("created").Inc()
	default:
		speakerObservationsTotal.WithLabelValues("merged").Inc()
	}
	if enriched {
		speakerObservationsTotal.WithLabelValues("enriched").Inc()
	}
}

// SetCanonicalSpeakers sets the canonical speaker gauge.
func SetCanonicalSpeakers(n int) {
	canonicalSpeakers.Set(float64(n))
}

// ObservePersisted adds inserted records for a collection.
func ObservePersisted(collection string, n int) {
	persistedRecordsTotal.WithLabelValues(collection).Add(float64(n))
}

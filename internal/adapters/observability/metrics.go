package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"
)

const namespace = "reviewsync"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	SourcePages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "source_pages_total", Help: "Pages fetched per source."},
		[]string{"source"},
	)
	SourceCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "source_candidates_total", Help: "Raw candidates per source."},
		[]string{"source"},
	)
	SourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "source_failures_total", Help: "Retrieval loops ended by a failure."},
		[]string{"source"},
	)
	RejectedCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rejected_candidates_total", Help: "Candidates dropped by the normalizer."},
		[]string{"source"},
	)
	MergeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "merge_outcomes_total", Help: "Merge decisions."},
		[]string{"outcome"}, // inserted|replaced|patched|absorbed
	)
	DeliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "delivery_attempts_total", Help: "Ingest POST attempts by class."},
		[]string{"class"}, // success|retryable|fatal
	)
)

// Serve exposes /metrics on addr in the background; an empty addr disables it.
func Serve(addr string) {
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(InitRegistry()))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		SourcePages, SourceCandidates, SourceFailures, RejectedCandidates, MergeOutcomes, DeliveryAttempts)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Push sends the batch job's metrics to a Prometheus pushgateway. No-op if url is empty.
func Push(url, job string, reg *prometheus.Registry) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(reg).Push()
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveRetrieval(source string, pages, candidates int, failed bool) {
	SourcePages.WithLabelValues(source).Add(float64(pages))
	SourceCandidates.WithLabelValues(source).Add(float64(candidates))
	if failed {
		SourceFailures.WithLabelValues(source).Inc()
	}
}

func ObserveRejected(source string, n int) {
	RejectedCandidates.WithLabelValues(source).Add(float64(n))
}

func ObserveMerge(inserted, replaced, patched, absorbed int) {
	MergeOutcomes.WithLabelValues("inserted").Add(float64(inserted))
	MergeOutcomes.WithLabelValues("replaced").Add(float64(replaced))
	MergeOutcomes.WithLabelValues("patched").Add(float64(patched))
	MergeOutcomes.WithLabelValues("absorbed").Add(float64(absorbed))
}

func ObserveDelivery(class string) {
	DeliveryAttempts.WithLabelValues(class).Inc()
}

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}

package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Deal lifecycle counters.
var (
	contractsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sponsorchain_contracts_created_total",
		Help: "Sponsorship contracts created.",
	})
	paymentsReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sponsorchain_payments_released_total",
			Help: "Milestone payments released, by asset.",
		},
		[]string{"asset"},
	)
	disputesResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sponsorchain_disputes_resolved_total",
			Help: "Disputes resolved, by outcome.",
		},
		[]string{"outcome"},
	)
	tokensMinted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sponsorchain_tokens_minted_total",
		Help: "Deal ownership tokens minted.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		contractsCreated, paymentsReleased, disputesResolved, tokensMinted,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ContractCreated bumps the contract creation counter.
func ContractCreated() { contractsCreated.Inc() }

// PaymentReleased bumps the milestone payment counter for an asset.
func PaymentReleased(asset string) { paymentsReleased.WithLabelValues(asset).Inc() }

// DisputeResolved bumps the dispute counter; outcome is "athlete" or "sponsor".
func DisputeResolved(favorAthlete bool) {
	outcome := "sponsor"
	if favorAthlete {
		outcome = "athlete"
	}
	disputesResolved.WithLabelValues(outcome).Inc()
}

// TokenMinted bumps the token mint counter.
func TokenMinted() { tokensMinted.Inc() }

// CanonicalPath collapses resource identifiers to placeholders so metric
// label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segs := strings.Split(path, "/")
	for i := 1; i < len(segs); i++ {
		switch segs[i-1] {
		case "contracts", "disputes", "tokens", "users", "accounts", "milestones":
			if segs[i] != "" {
				segs[i] = ":id"
			}
		}
	}
	return strings.Join(segs, "/")
}

// Instrument wraps a handler to record RPS, latency and in-flight counts.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE responses stream through.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

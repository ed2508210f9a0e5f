package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videostream_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "videostream_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	videoViews = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videostream_video_views_total",
		Help: "Count of recorded video views",
	})

	toggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videostream_toggles_total",
		Help: "Count of like and subscription toggles by kind and resulting state",
	}, []string{"kind", "state"})

	otpEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videostream_otp_events_total",
		Help: "Count of one-time code sends and verifications by result",
	}, []string{"event", "result"})

	uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videostream_uploads_total",
		Help: "Count of media uploads to object storage by kind and result",
	}, []string{"kind", "result"})
)

// ObserveHTTPRequest records an HTTP request metric.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
}

// ObserveVideoView counts a single recorded view.
func ObserveVideoView() {
	videoViews.Inc()
}

// ObserveToggle records a toggle of kind (like_video, subscription, ...) ending in the on or off state.
func ObserveToggle(kind string, on bool) {
	state := "off"
	if on {
		state = "on"
	}
	toggles.WithLabelValues(kind, state).Inc()
}

// ObserveOTP records an OTP send or verify outcome.
func ObserveOTP(event, result string) {
	otpEvents.WithLabelValues(event, result).Inc()
}

// ObserveUpload records a media upload outcome.
func ObserveUpload(kind string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	uploads.WithLabelValues(kind, result).Inc()
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware records request counts and latencies labelled by the matched chi route pattern,
// which keeps label cardinality bounded regardless of path parameters.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		ObserveHTTPRequest(r.Method, routePattern(r), ww.status, time.Since(start))
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Package metrics provides Prometheus metrics for the connector server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elfinder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "elfinder_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Connector command metrics
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elfinder_commands_total",
			Help: "Total connector commands by outcome",
		},
		[]string{"cmd", "status"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "elfinder_command_duration_seconds",
			Help:    "Connector command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cmd"},
	)

	treeNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elfinder_tree_nodes",
			Help:    "Directories visited per tree build",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	thumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elfinder_thumbnails_generated_total",
			Help: "Thumbnails rendered into the thumbnail store",
		},
		[]string{"status"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elfinder_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCommand records a connector command outcome. Unknown commands are
// folded into a single "unknown" label.
func RecordCommand(cmd string, known, success bool, duration time.Duration) {
	if !known {
		cmd = "unknown"
	}
	status := "success"
	if !success {
		status = "error"
	}
	commandsTotal.WithLabelValues(cmd, status).Inc()
	commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

// RecordTreeBuild records how many directories one tree build visited.
func RecordTreeBuild(nodes int) {
	treeNodes.Observe(float64(nodes))
}

// RecordThumbnail records a thumbnail render.
func RecordThumbnail(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	thumbnailsTotal.WithLabelValues(status).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// OtherPath labels requests that match none of the routes given to
// Middleware.
const OtherPath = "other"

// Middleware returns HTTP middleware that records request metrics. Paths
// under filesPrefix collapse to the prefix, routes keep their exact path and
// anything else is counted as OtherPath.
func Middleware(filesPrefix string, routes []string, next http.Handler) http.Handler {
	known := make(map[string]bool, len(routes))
	for _, r := range routes {
		known[r] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		path := OtherPath
		switch {
		case filesPrefix != "" && strings.HasPrefix(r.URL.Path, filesPrefix):
			path = filesPrefix
		case known[r.URL.Path]:
			path = r.URL.Path
		}
		RecordHTTPRequest(r.Method, path, rw.statusCode, time.Since(start))
	})
}

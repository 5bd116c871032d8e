// Package metrics provides Prometheus metrics for the cloudpilot client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API request metrics
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudpilot_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudpilot_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Listing synchronizer metrics
	listingSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudpilot_listing_syncs_total",
			Help: "Total number of directory listing syncs",
		},
		[]string{"result"},
	)

	listingCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudpilot_listing_coalesced_total",
			Help: "Listing loads coalesced onto an identical in-flight fetch",
		},
	)

	listingSupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudpilot_listing_superseded_total",
			Help: "In-flight listing fetches cancelled by a newer load",
		},
	)

	// Mutation metrics
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudpilot_mutations_total",
			Help: "Total number of mutation operations",
		},
		[]string{"op", "result"},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudpilot_upload_bytes_total",
			Help: "Total bytes uploaded",
		},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudpilot_download_bytes_total",
			Help: "Total bytes downloaded",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudpilot_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"success"},
	)

	identityResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudpilot_identity_resolutions_total",
			Help: "Identity resolutions by source (cache, claims, endpoint)",
		},
		[]string{"source"},
	)
)

// RecordAPIRequest records an API request with its outcome.
func RecordAPIRequest(method, path string, status int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordListingSync records a completed listing sync.
func RecordListingSync(result string) {
	listingSyncsTotal.WithLabelValues(result).Inc()
}

// RecordListingCoalesced records a load coalesced onto an in-flight fetch.
func RecordListingCoalesced() {
	listingCoalescedTotal.Inc()
}

// RecordListingSuperseded records a fetch cancelled by a newer load.
func RecordListingSuperseded() {
	listingSupersededTotal.Inc()
}

// RecordMutation records a mutation operation.
func RecordMutation(op string, success bool) {
	result := "error"
	if success {
		result = "ok"
	}
	mutationsTotal.WithLabelValues(op, result).Inc()
}

// RecordUploadBytes records bytes sent in an upload.
func RecordUploadBytes(n int64) {
	if n > 0 {
		uploadBytesTotal.Add(float64(n))
	}
}

// RecordDownloadBytes records bytes received in a download.
func RecordDownloadBytes(n int64) {
	if n > 0 {
		downloadBytesTotal.Add(float64(n))
	}
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	authAttemptsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// RecordIdentityResolution records how a user identity was resolved.
func RecordIdentityResolution(source string) {
	identityResolutionsTotal.WithLabelValues(source).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics endpoint on addr. Blocks.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}

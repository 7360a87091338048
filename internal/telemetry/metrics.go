package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	UploadsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_uploads_succeeded_total", Help: "Payloads uploaded and checkpointed"})
	UploadsFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_uploads_failed_total", Help: "Upload attempts that failed after retries"})
	UploadsSkipped   = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_uploads_skipped_total", Help: "Items skipped during upload (already done or invalid)"})
	QuotaRejects     = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_quota_rejects_total", Help: "Uploads refused by the daily quota ledger"})
	ScheduleCommits  = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_schedule_commits_total", Help: "Items committed to a publish slot"})
	ScheduleFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "publish_schedule_failures_total", Help: "Schedule update calls that failed"})
	UploadsInFlight  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "publish_uploads_inflight", Help: "Payload transfers currently running"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			UploadsSucceeded,
			UploadsFailed,
			UploadsSkipped,
			QuotaRejects,
			ScheduleCommits,
			ScheduleFailures,
			UploadsInFlight,
		)
	})
	return promhttp.Handler()
}

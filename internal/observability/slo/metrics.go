// Package slo tracks the pipeline's service level objectives. The worker has
// no request path, so the objectives are expressed over job outcomes instead
// of HTTP traffic: how often a crawl job succeeds, how long the slowest jobs
// take, and how reliably new-article notifications get delivered.
package slo

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets for the ingestion worker.
const (
	// JobSuccessSLO is the target ratio of crawl jobs that reach completed
	// without exhausting their retries.
	JobSuccessSLO = 0.99

	// CrawlLatencyP95SLO is the target for 95th percentile job duration in
	// seconds. A feed crawl that needs longer than this is misbehaving.
	CrawlLatencyP95SLO = 120.0

	// NotificationDeliverySLO is the target ratio of articles whose webhook
	// notification was delivered on at least one channel.
	NotificationDeliverySLO = 0.995
)

var (
	// SLOJobSuccess tracks the observed job success ratio (0-1).
	SLOJobSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_job_success_ratio",
			Help: "Observed crawl job success ratio (0-1), target: 0.99",
		},
	)

	// SLOCrawlLatencyP95 tracks the observed p95 job duration in seconds
	// over the recent-job window.
	SLOCrawlLatencyP95 = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_crawl_latency_p95_seconds",
			Help: "Observed p95 crawl job duration in seconds, target: 120",
		},
	)

	// SLONotificationDelivery tracks the observed notification delivery
	// ratio (0-1).
	SLONotificationDelivery = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_notification_delivery_ratio",
			Help: "Observed notification delivery ratio (0-1), target: 0.995",
		},
	)
)

// durationWindow bounds the sample set used for the p95 estimate. Jobs run at
// cron cadence, so a few hundred samples cover days of activity.
const durationWindow = 256

// Tracker accumulates job and notification outcomes and keeps the SLO gauges
// current. Methods are safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	jobsTotal   uint64
	jobsFailed  uint64
	notifyTotal uint64
	notifySent  uint64

	durations []float64
	next      int
	filled    bool
}

// Default is the process-wide tracker feeding the package gauges.
var Default = &Tracker{}

// RecordJob records one terminal job outcome. Retried jobs are not terminal
// and must not be recorded until they complete or exhaust their retries.
func (t *Tracker) RecordJob(success bool, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.jobsTotal++
	if !success {
		t.jobsFailed++
	}
	SLOJobSuccess.Set(float64(t.jobsTotal-t.jobsFailed) / float64(t.jobsTotal))

	if success {
		t.pushDuration(duration.Seconds())
		SLOCrawlLatencyP95.Set(t.p95())
	}
}

// RecordNotification records whether an article's notification reached at
// least one channel.
func (t *Tracker) RecordNotification(delivered bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.notifyTotal++
	if delivered {
		t.notifySent++
	}
	SLONotificationDelivery.Set(float64(t.notifySent) / float64(t.notifyTotal))
}

// pushDuration appends into the fixed ring buffer. Caller holds the lock.
func (t *Tracker) pushDuration(seconds float64) {
	if len(t.durations) < durationWindow {
		t.durations = append(t.durations, seconds)
		return
	}
	t.durations[t.next] = seconds
	t.next = (t.next + 1) % durationWindow
	t.filled = true
}

// p95 computes the 95th percentile over the current window. Caller holds the
// lock.
func (t *Tracker) p95() float64 {
	if len(t.durations) == 0 {
		return 0
	}
	sorted := make([]float64, len(t.durations))
	copy(sorted, t.durations)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// RecordJob records a terminal job outcome on the default tracker.
func RecordJob(success bool, duration time.Duration) {
	Default.RecordJob(success, duration)
}

// RecordNotification records a notification outcome on the default tracker.
func RecordNotification(delivered bool) {
	Default.RecordNotification(delivered)
}

package slo

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTracker_RecordJob(t *testing.T) {
	tr := &Tracker{}

	tr.RecordJob(true, 10*time.Second)
	tr.RecordJob(true, 20*time.Second)
	tr.RecordJob(false, 0)
	tr.RecordJob(true, 30*time.Second)

	assert.InDelta(t, 0.75, testutil.ToFloat64(SLOJobSuccess), 0.0001)

	// Failed jobs contribute no duration sample.
	assert.InDelta(t, 30.0, testutil.ToFloat64(SLOCrawlLatencyP95), 0.0001)
}

func TestTracker_RecordNotification(t *testing.T) {
	tr := &Tracker{}

	for i := 0; i < 9; i++ {
		tr.RecordNotification(true)
	}
	tr.RecordNotification(false)

	assert.InDelta(t, 0.9, testutil.ToFloat64(SLONotificationDelivery), 0.0001)
}

func TestTracker_DurationWindowRolls(t *testing.T) {
	tr := &Tracker{}

	// Fill the window with slow jobs, then overwrite it with fast ones.
	// The p95 must reflect only the retained window.
	for i := 0; i < durationWindow; i++ {
		tr.RecordJob(true, 100*time.Second)
	}
	for i := 0; i < durationWindow; i++ {
		tr.RecordJob(true, 1*time.Second)
	}

	assert.InDelta(t, 1.0, testutil.ToFloat64(SLOCrawlLatencyP95), 0.0001)
	assert.Len(t, tr.durations, durationWindow)
}

func TestTracker_P95Ordering(t *testing.T) {
	tr := &Tracker{}

	// 100 samples 1s..100s: p95 lands at the 95th sorted value.
	for i := 1; i <= 100; i++ {
		tr.RecordJob(true, time.Duration(i)*time.Second)
	}

	assert.InDelta(t, 95.0, testutil.ToFloat64(SLOCrawlLatencyP95), 0.0001)
}

func TestTargets(t *testing.T) {
	assert.Greater(t, JobSuccessSLO, 0.0)
	assert.LessOrEqual(t, JobSuccessSLO, 1.0)
	assert.Greater(t, CrawlLatencyP95SLO, 0.0)
	assert.Greater(t, NotificationDeliverySLO, JobSuccessSLO,
		"notification delivery is held to a tighter target than job success")
}

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAlert(t *testing.T) {
	before := testutil.ToFloat64(alertCounter.WithLabelValues("activity_drop", "high"))
	RecordAlert("activity_drop", "high")
	RecordAlert("activity_drop", "high")
	assert.Equal(t, before+2, testutil.ToFloat64(alertCounter.WithLabelValues("activity_drop", "high")))
}

func TestRecordIngestRequest_StatusClass(t *testing.T) {
	before := testutil.ToFloat64(ingestCounter.WithLabelValues("sleep", "4xx"))
	RecordIngestRequest("sleep", 401)
	assert.Equal(t, before+1, testutil.ToFloat64(ingestCounter.WithLabelValues("sleep", "4xx")))

	assert.Equal(t, "error", statusClass(0))
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "5xx", statusClass(503))
}

func TestRecordSchedulerTick_IgnoresZero(t *testing.T) {
	ts := time.Unix(1747900800, 0)
	RecordSchedulerTick(ts)
	RecordSchedulerTick(time.Time{})
	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastTickGauge))
}

package load

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.keploy.io/testengine/pkg/models"
	"go.uber.org/zap/zaptest"
)

func TestCompareDuration(t *testing.T) {
	tests := []struct {
		val  time.Duration
		cond string
		want bool
	}{
		{400 * time.Millisecond, "<500ms", true},
		{500 * time.Millisecond, "< 500ms", false},
		{500 * time.Millisecond, "<=500ms", true},
		{2 * time.Second, ">1s", true},
		{time.Second, ">=1s", true},
		{time.Second, "=1s", true},
		{time.Second, "", true},
		{time.Second, "~1s", false},
		{time.Second, "<soon", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareDuration(tt.val, tt.cond), "%s %s", tt.val, tt.cond)
	}
}

func TestCompareFloat(t *testing.T) {
	tests := []struct {
		val  float64
		cond string
		want bool
	}{
		{0.5, "<1%", true},
		{1, "<1%", false},
		{120, ">=100/s", true},
		{99.9, ">100", false},
		{3, "=3", true},
		{3, "<lots", false},
		{3, "", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareFloat(tt.val, tt.cond), "%v %s", tt.val, tt.cond)
	}
}

func TestThresholdEvaluator(t *testing.T) {
	res := &models.LoadTestResults{
		P95ResponseTime: 300 * time.Millisecond,
		AvgResponseTime: 120 * time.Millisecond,
		ErrorRate:       2.5,
		Throughput:      42,
	}
	te := NewThresholdEvaluator(zaptest.NewLogger(t), []models.Threshold{
		{Metric: MetricDurationP95, Condition: "<500ms", Severity: "critical"},
		{Metric: MetricDurationAvg, Condition: "<100ms"},
		{Metric: MetricFailedRate, Condition: "<5%"},
		{Metric: MetricThroughput, Condition: ">=50/s"},
		{Metric: "data_received", Condition: "<1MB"},
	})
	got := te.Evaluate(res)
	assert.Equal(t, []models.ThresholdResult{
		{Metric: MetricDurationP95, Condition: "<500ms", Actual: "300ms", Severity: "critical", Passed: true},
		{Metric: MetricDurationAvg, Condition: "<100ms", Actual: "120ms", Passed: false},
		{Metric: MetricFailedRate, Condition: "<5%", Actual: "2.50%", Passed: true},
		{Metric: MetricThroughput, Condition: ">=50/s", Actual: "42.00/s", Passed: false},
	}, got)

	assert.Nil(t, NewThresholdEvaluator(zaptest.NewLogger(t), nil).Evaluate(res))
}

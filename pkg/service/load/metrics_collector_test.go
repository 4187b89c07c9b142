package load

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.keploy.io/testengine/pkg/models"
	"go.uber.org/zap/zaptest"
)

func TestMetricsCollector_SteadyStateOnly(t *testing.T) {
	mc := NewMetricsCollector(zaptest.NewLogger(t))
	t0 := time.Unix(0, 0)
	mc.UserStarted(1, t0)
	mc.UserStarted(2, t0)

	// ramp samples are slow and failing, they must not skew steady figures
	mc.Record(1, models.LoadRampingUp, 5*time.Second, true)
	mc.Record(2, models.LoadRampingDown, 5*time.Second, true)
	for i := 1; i <= 20; i++ {
		user := 1 + i%2
		mc.Record(user, models.LoadSustaining, time.Duration(i)*time.Millisecond, i == 20)
	}
	mc.UserStopped(2, t0.Add(time.Second), true)

	var res models.LoadTestResults
	mc.Summarize(&res, 2*time.Second)

	assert.Equal(t, int64(22), res.TotalRequests)
	assert.Equal(t, int64(3), res.TotalErrors)
	assert.Equal(t, int64(20), res.SteadyRequests)
	assert.InDelta(t, 5.0, res.ErrorRate, 1e-9)
	assert.Equal(t, 10500*time.Microsecond, res.AvgResponseTime)
	assert.Equal(t, 19*time.Millisecond, res.P95ResponseTime)
	assert.InDelta(t, 10.0, res.Throughput, 1e-9)
	assert.Equal(t, 2, res.AchievedUsers)

	assert.Len(t, res.Users, 2)
	assert.Equal(t, 1, res.Users[0].UserID)
	assert.Equal(t, int64(11), res.Users[0].Requests)
	assert.Equal(t, int64(11), res.Users[1].Requests)
	assert.True(t, res.Users[1].BudgetExceed)
	assert.Equal(t, 1, mc.Active())
}

func TestMetricsCollector_OrderIndependent(t *testing.T) {
	latencies := []time.Duration{7, 3, 9, 1, 5}
	summarize := func(order []int) models.LoadTestResults {
		mc := NewMetricsCollector(zaptest.NewLogger(t))
		for _, i := range order {
			mc.Record(1, models.LoadSustaining, latencies[i]*time.Millisecond, i == 2)
		}
		var res models.LoadTestResults
		mc.Summarize(&res, time.Second)
		return res
	}
	a := summarize([]int{0, 1, 2, 3, 4})
	b := summarize([]int{4, 2, 0, 3, 1})
	assert.Equal(t, a.P95ResponseTime, b.P95ResponseTime)
	assert.Equal(t, a.AvgResponseTime, b.AvgResponseTime)
	assert.Equal(t, a.ErrorRate, b.ErrorRate)
	assert.Equal(t, 9*time.Millisecond, a.P95ResponseTime)
}

func TestMetricsCollector_NoSteadySamples(t *testing.T) {
	mc := NewMetricsCollector(zaptest.NewLogger(t))
	mc.Record(1, models.LoadRampingUp, time.Millisecond, false)
	var res models.LoadTestResults
	mc.Summarize(&res, 0)
	assert.Equal(t, int64(1), res.TotalRequests)
	assert.Zero(t, res.SteadyRequests)
	assert.Zero(t, res.Throughput)
	assert.Zero(t, res.P95ResponseTime)
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.95))
	assert.Equal(t, time.Duration(4), percentile([]time.Duration{4}, 0.95))
	values := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		values = append(values, time.Duration(i))
	}
	assert.Equal(t, time.Duration(95), percentile(values, 0.95))
	assert.Equal(t, time.Duration(100), values[0], "input is not reordered")
}

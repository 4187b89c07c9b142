package load

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.keploy.io/testengine/pkg/models"
	"go.uber.org/zap"
)

type sample struct {
	user    int
	phase   models.LoadState
	latency time.Duration
	failed  bool
}

type userStats struct {
	requests     int64
	errors       int64
	total        time.Duration
	startedAt    time.Time
	stoppedAt    time.Time
	budgetExceed bool
}

// MetricsCollector aggregates samples from every virtual user. Aggregation
// is order independent.
type MetricsCollector struct {
	logger *zap.Logger

	mu      sync.Mutex
	samples []sample
	users   map[int]*userStats
	active  int
	peak    int
}

func NewMetricsCollector(logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger: logger,
		users:  make(map[int]*userStats),
	}
}

func (mc *MetricsCollector) UserStarted(id int, at time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.users[id] = &userStats{startedAt: at}
	mc.active++
	if mc.active > mc.peak {
		mc.peak = mc.active
	}
}

func (mc *MetricsCollector) UserStopped(id int, at time.Time, budgetExceeded bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	u, ok := mc.users[id]
	if !ok {
		return
	}
	u.stoppedAt = at
	u.budgetExceed = budgetExceeded
	mc.active--
}

// Record stores one workload invocation tagged with the phase it started in.
func (mc *MetricsCollector) Record(user int, phase models.LoadState, latency time.Duration, failed bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.samples = append(mc.samples, sample{user: user, phase: phase, latency: latency, failed: failed})
	u, ok := mc.users[user]
	if !ok {
		u = &userStats{}
		mc.users[user] = u
	}
	u.requests++
	u.total += latency
	if failed {
		u.errors++
	}
}

func (mc *MetricsCollector) Active() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.active
}

func (mc *MetricsCollector) userCounts(id int) (int64, int64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if u, ok := mc.users[id]; ok {
		return u.requests, u.errors
	}
	return 0, 0
}

// Summarize fills res with totals over every sample and steady-state
// figures over samples that started while sustaining. sustain is the
// length of that window.
func (mc *MetricsCollector) Summarize(res *models.LoadTestResults, sustain time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	var (
		steady     []time.Duration
		steadyErrs int64
		steadySum  time.Duration
	)
	for _, s := range mc.samples {
		res.TotalRequests++
		if s.failed {
			res.TotalErrors++
		}
		if s.phase != models.LoadSustaining {
			continue
		}
		steady = append(steady, s.latency)
		steadySum += s.latency
		if s.failed {
			steadyErrs++
		}
	}

	res.AchievedUsers = mc.peak
	res.SteadyRequests = int64(len(steady))
	if n := len(steady); n > 0 {
		res.ErrorRate = float64(steadyErrs) / float64(n) * 100
		res.AvgResponseTime = steadySum / time.Duration(n)
		res.P95ResponseTime = percentile(steady, 0.95)
		if sustain > 0 {
			res.Throughput = float64(n) / sustain.Seconds()
		}
	}

	ids := make([]int, 0, len(mc.users))
	for id := range mc.users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	res.Users = make([]models.UserMetrics, 0, len(ids))
	for _, id := range ids {
		u := mc.users[id]
		um := models.UserMetrics{
			UserID:       id,
			Requests:     u.requests,
			Errors:       u.errors,
			StartedAt:    u.startedAt,
			StoppedAt:    u.stoppedAt,
			BudgetExceed: u.budgetExceed,
		}
		if u.requests > 0 {
			um.AvgResponse = u.total / time.Duration(u.requests)
		}
		res.Users = append(res.Users, um)
	}

	mc.logger.Debug("load metrics summarized",
		zap.Int64("totalRequests", res.TotalRequests),
		zap.Int64("steadyRequests", res.SteadyRequests),
		zap.Float64("errorRate", res.ErrorRate),
		zap.Duration("p95", res.P95ResponseTime))
}

// percentile uses the nearest-rank method, index ceil(n*p)-1.
func percentile(values []time.Duration, p float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

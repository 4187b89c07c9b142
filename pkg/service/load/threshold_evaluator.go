package load

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.keploy.io/testengine/pkg/models"
	"go.uber.org/zap"
)

const (
	MetricDurationP95 = "http_req_duration_p95"
	MetricDurationAvg = "http_req_duration_avg"
	MetricFailedRate  = "http_req_failed_rate"
	MetricThroughput  = "throughput"
)

var SupportedThresholdMetrics = []string{MetricDurationP95, MetricDurationAvg, MetricFailedRate, MetricThroughput}

type ThresholdEvaluator struct {
	logger     *zap.Logger
	thresholds []models.Threshold
}

func NewThresholdEvaluator(logger *zap.Logger, thresholds []models.Threshold) *ThresholdEvaluator {
	return &ThresholdEvaluator{logger: logger, thresholds: thresholds}
}

// Evaluate checks every threshold against the steady-state figures of res.
// Unknown metrics are skipped with a warning.
func (te *ThresholdEvaluator) Evaluate(res *models.LoadTestResults) []models.ThresholdResult {
	if len(te.thresholds) == 0 {
		return nil
	}
	out := make([]models.ThresholdResult, 0, len(te.thresholds))
	for _, th := range te.thresholds {
		var (
			pass   bool
			actual string
		)
		switch th.Metric {
		case MetricDurationP95:
			pass = compareDuration(res.P95ResponseTime, th.Condition)
			actual = res.P95ResponseTime.String()
		case MetricDurationAvg:
			pass = compareDuration(res.AvgResponseTime, th.Condition)
			actual = res.AvgResponseTime.String()
		case MetricFailedRate:
			pass = compareFloat(res.ErrorRate, th.Condition)
			actual = fmt.Sprintf("%.2f%%", res.ErrorRate)
		case MetricThroughput:
			pass = compareFloat(res.Throughput, th.Condition)
			actual = fmt.Sprintf("%.2f/s", res.Throughput)
		default:
			te.logger.Warn("Unknown threshold metric", zap.String("metric", th.Metric))
			continue
		}
		te.logger.Debug("Threshold check",
			zap.String("metric", th.Metric),
			zap.String("condition", th.Condition),
			zap.String("actual", actual),
			zap.Bool("pass", pass),
			zap.String("severity", th.Severity))
		out = append(out, models.ThresholdResult{
			Metric:    th.Metric,
			Condition: th.Condition,
			Actual:    actual,
			Severity:  th.Severity,
			Passed:    pass,
		})
	}
	return out
}

// splitCondition separates "<= 500ms" into "<=" and "500ms".
func splitCondition(cond string) (string, string, bool) {
	cond = strings.TrimSpace(cond)
	for _, op := range []string{"<=", ">=", "<", ">", "="} {
		if strings.HasPrefix(cond, op) {
			return op, strings.TrimSpace(cond[len(op):]), true
		}
	}
	return "", "", false
}

func compare[T int64 | float64](val, want T, op string) bool {
	switch op {
	case "<":
		return val < want
	case "<=":
		return val <= want
	case ">":
		return val > want
	case ">=":
		return val >= want
	case "=":
		return val == want
	}
	return false
}

// compareDuration reports whether val satisfies a condition such as "<500ms".
// An empty condition always holds.
func compareDuration(val time.Duration, cond string) bool {
	if strings.TrimSpace(cond) == "" {
		return true
	}
	op, rhs, ok := splitCondition(cond)
	if !ok {
		return false
	}
	want, err := time.ParseDuration(rhs)
	if err != nil {
		return false
	}
	return compare(int64(val), int64(want), op)
}

// compareFloat is compareDuration for plain numbers. A trailing % or /s is
// ignored, so "<5%" and ">=100/s" both work.
func compareFloat(val float64, cond string) bool {
	if strings.TrimSpace(cond) == "" {
		return true
	}
	op, rhs, ok := splitCondition(cond)
	if !ok {
		return false
	}
	rhs = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(rhs, "%"), "/s"))
	want, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false
	}
	return compare(val, want, op)
}

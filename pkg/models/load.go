package models

import "time"

type LoadState string

const (
	LoadIdle        LoadState = "IDLE"
	LoadRampingUp   LoadState = "RAMPING_UP"
	LoadSustaining  LoadState = "SUSTAINING"
	LoadRampingDown LoadState = "RAMPING_DOWN"
	LoadCompleted   LoadState = "COMPLETED"
	LoadStopped     LoadState = "STOPPED"
)

func (s LoadState) IsTerminal() bool {
	return s == LoadCompleted || s == LoadStopped
}

type LoadTestConfig struct {
	Users           int           `json:"users" yaml:"users"`
	RampUp          time.Duration `json:"rampUp" yaml:"rampUp"`
	Sustain         time.Duration `json:"sustain" yaml:"sustain"`
	RampDown        time.Duration `json:"rampDown" yaml:"rampDown"`
	ThinkTime       time.Duration `json:"thinkTime" yaml:"thinkTime"`
	CallTimeout     time.Duration `json:"callTimeout" yaml:"callTimeout"`
	MaxRetries      int           `json:"maxRetries" yaml:"maxRetries"`
	HealthInterval  time.Duration `json:"healthInterval" yaml:"healthInterval"`
	MemoryThreshold float64       `json:"memoryThreshold" yaml:"memoryThreshold"`
	LoadThreshold   float64       `json:"loadThreshold" yaml:"loadThreshold"`
	ErrorBudget     int           `json:"errorBudget" yaml:"errorBudget"`
	RPS             int           `json:"rps" yaml:"rps"`
	Thresholds      []Threshold   `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Threshold is a pass condition on a steady-state metric, e.g.
// {http_req_duration_p95, "<500ms"}.
type Threshold struct {
	Metric    string `json:"metric" yaml:"metric"`
	Condition string `json:"condition" yaml:"condition"`
	Severity  string `json:"severity,omitempty" yaml:"severity,omitempty"`
}

type ThresholdResult struct {
	Metric    string `json:"metric"`
	Condition string `json:"condition"`
	Actual    string `json:"actual"`
	Severity  string `json:"severity,omitempty"`
	Passed    bool   `json:"passed"`
}

type UserMetrics struct {
	UserID       int           `json:"userId"`
	Requests     int64         `json:"requests"`
	Errors       int64         `json:"errors"`
	AvgResponse  time.Duration `json:"avgResponse"`
	StartedAt    time.Time     `json:"startedAt"`
	StoppedAt    time.Time     `json:"stoppedAt"`
	BudgetExceed bool          `json:"budgetExceeded"`
}

// HealthSample is one reading of the load generator host. MemoryPercent is
// system memory in use; ResidentBytes is this process's resident set.
type HealthSample struct {
	At            time.Time `json:"at"`
	MemoryPercent float64   `json:"memoryPercent"`
	LoadAverage   float64   `json:"loadAverage"`
	ResidentBytes int64     `json:"residentBytes"`
	Goroutines    int       `json:"goroutines"`
}

// LoadTestResults carries steady-state figures computed from sustain-phase
// samples only. Totals cover every phase.
type LoadTestResults struct {
	State           LoadState         `json:"state"`
	TargetUsers     int               `json:"targetUsers"`
	AchievedUsers   int               `json:"achievedConcurrency"`
	TotalRequests   int64             `json:"totalRequests"`
	TotalErrors     int64             `json:"totalErrors"`
	SteadyRequests  int64             `json:"steadyRequests"`
	ErrorRate       float64           `json:"errorRate"`
	AvgResponseTime time.Duration     `json:"avgResponseTime"`
	P95ResponseTime time.Duration     `json:"p95ResponseTime"`
	Throughput      float64           `json:"throughput"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	Duration        time.Duration     `json:"duration"`
	Users           []UserMetrics     `json:"users"`
	UserStarts      []time.Duration   `json:"userStarts"`
	Health          []HealthSample    `json:"health,omitempty"`
	StressEvents    int               `json:"stressEvents"`
	Thresholds      []ThresholdResult `json:"thresholds,omitempty"`
	DroppedEvents   int64             `json:"droppedEvents"`
}

// ThresholdsPassed is true when no threshold failed.
func (r *LoadTestResults) ThresholdsPassed() bool {
	for _, t := range r.Thresholds {
		if !t.Passed {
			return false
		}
	}
	return true
}

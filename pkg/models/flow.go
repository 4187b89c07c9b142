package models

import "time"

type FlowStatus string

const (
	FlowPassed  FlowStatus = "passed"
	FlowFailed  FlowStatus = "failed"
	FlowTimeout FlowStatus = "timeout"
	FlowErrored FlowStatus = "error"
)

type NetworkIO struct {
	BytesSent      int64         `json:"bytesSent"`
	BytesReceived  int64         `json:"bytesReceived"`
	RequestCount   int           `json:"requestCount"`
	ConnectionTime time.Duration `json:"connectionTime"`
}

type PerformanceMetrics struct {
	ResponseTime time.Duration `json:"responseTime"`
	Throughput   float64       `json:"throughput"`
	ErrorRate    float64       `json:"errorRate"`
	MemoryUsage  float64       `json:"memoryUsage"`
	CPUUsage     float64       `json:"cpuUsage"`
	Network      NetworkIO     `json:"network"`
}

type StepResult struct {
	Order    int           `json:"order"`
	Name     string        `json:"name"`
	Action   string        `json:"action"`
	Status   ResultStatus  `json:"status"`
	Duration time.Duration `json:"duration"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Attempt  int           `json:"attempt"`
}

type FlowError struct {
	Step    int    `json:"step,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FlowResult is the outcome of one scenario run.
type FlowResult struct {
	ID          string             `json:"id"`
	ScenarioID  string             `json:"scenarioId"`
	RunID       string             `json:"runId"`
	Status      FlowStatus         `json:"status"`
	Start       time.Time          `json:"start"`
	End         time.Time          `json:"end"`
	Duration    time.Duration      `json:"duration"`
	Attempts    int                `json:"attempts"`
	Steps       []StepResult       `json:"steps"`
	Outcomes    []AssertionResult  `json:"outcomes,omitempty"`
	Performance PerformanceMetrics `json:"performance"`
	Errors      []FlowError        `json:"errors,omitempty"`
	Artifacts   []string           `json:"artifacts,omitempty"`
	Environment string             `json:"environment,omitempty"`
	Build       string             `json:"build,omitempty"`
}

// Finish stamps End and derives Duration from it.
func (f *FlowResult) Finish(end time.Time) {
	f.End = end
	f.Duration = f.End.Sub(f.Start)
}

package models

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.keploy.io/testengine/utils"
)

type ScenarioType string

const (
	ScenarioE2E         ScenarioType = "e2e"
	ScenarioIntegration ScenarioType = "integration"
	ScenarioAPI         ScenarioType = "api"
	ScenarioLoad        ScenarioType = "load"
	ScenarioRegression  ScenarioType = "regression"
)

// Canonical maps the long spelling "end-to-end" to ScenarioE2E.
func (t ScenarioType) Canonical() ScenarioType {
	if t == "end-to-end" {
		return ScenarioE2E
	}
	return t
}

func (t ScenarioType) IsValid() bool {
	switch t.Canonical() {
	case ScenarioE2E, ScenarioIntegration, ScenarioAPI, ScenarioLoad, ScenarioRegression:
		return true
	}
	return false
}

type ScenarioStatus string

const (
	StatusCreated   ScenarioStatus = "CREATED"
	StatusPending   ScenarioStatus = "PENDING"
	StatusRunning   ScenarioStatus = "RUNNING"
	StatusPassed    ScenarioStatus = "PASSED"
	StatusFailed    ScenarioStatus = "FAILED"
	StatusTimeout   ScenarioStatus = "TIMEOUT"
	StatusCancelled ScenarioStatus = "CANCELLED"
	StatusRetrying  ScenarioStatus = "RETRYING"
)

// Timeout bounds of a scenario.
const (
	MinScenarioTimeout = time.Second
	MaxScenarioTimeout = 20 * time.Minute
)

// Validation rules, in the order they are checked.
const (
	RuleEmptyName          = "empty-name"
	RuleNoSteps            = "no-steps"
	RuleNoOutcomes         = "no-outcomes"
	RuleDuplicateStepOrder = "duplicate-step-order"
	RuleStepsOutOfOrder    = "steps-out-of-order"
	RuleTimeoutOutOfRange  = "timeout-out-of-range"
	RuleUnknownType        = "unknown-type"
)

var transitions = map[ScenarioStatus][]ScenarioStatus{
	StatusCreated:  {StatusPending},
	StatusPending:  {StatusRunning},
	StatusRunning:  {StatusPassed, StatusFailed, StatusTimeout, StatusCancelled},
	StatusFailed:   {StatusRetrying},
	StatusTimeout:  {StatusRetrying},
	StatusRetrying: {StatusRunning},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to ScenarioStatus) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal reports whether no transition leaves s.
func (s ScenarioStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type TestStep struct {
	Order    int            `json:"order" yaml:"order"`
	Name     string         `json:"name" yaml:"name"`
	Action   string         `json:"action" yaml:"action"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Expected any            `json:"expected,omitempty" yaml:"expected,omitempty"`
	Timeout  time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

type TestOutcome struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Assertion   ResponseAssertion `json:"assertion" yaml:"assertion"`
}

type RetryConfig struct {
	MaxAttempts       int              `json:"maxAttempts" yaml:"maxAttempts"`
	Delay             time.Duration    `json:"delay" yaml:"delay"`
	Exponential       bool             `json:"exponential" yaml:"exponential"`
	RetryableStatuses []ScenarioStatus `json:"retryableStatuses,omitempty" yaml:"retryableStatuses,omitempty"`
}

// NextDelay returns the wait before the given retry attempt, counted from 1.
func (r RetryConfig) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if !r.Exponential {
		return r.Delay
	}
	return r.Delay * time.Duration(1<<(attempt-1))
}

// IsRetryable defaults to FAILED and TIMEOUT when no statuses are listed.
func (r RetryConfig) IsRetryable(status ScenarioStatus) bool {
	if len(r.RetryableStatuses) == 0 {
		return status == StatusFailed || status == StatusTimeout
	}
	return slices.Contains(r.RetryableStatuses, status)
}

type ScenarioOptions struct {
	ID           string        `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Type         ScenarioType  `json:"type" yaml:"type"`
	Environment  string        `json:"environment,omitempty" yaml:"environment,omitempty"`
	Steps        []TestStep    `json:"steps" yaml:"steps"`
	Outcomes     []TestOutcome `json:"outcomes" yaml:"outcomes"`
	Tags         []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	Dependencies []string      `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Retry        RetryConfig   `json:"retry" yaml:"retry"`
}

// TestScenario is one multi-step test. Fields must not be written directly once
// the scenario is shared; use the mutators and Snapshot.
type TestScenario struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Type         ScenarioType   `json:"type"`
	Environment  string         `json:"environment,omitempty"`
	Steps        []TestStep     `json:"steps"`
	Outcomes     []TestOutcome  `json:"outcomes"`
	Tags         []string       `json:"tags,omitempty"`
	Timeout      time.Duration  `json:"timeout"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Retry        RetryConfig    `json:"retry"`
	Status       ScenarioStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	mu    sync.Mutex
	clock utils.Clock
}

// NewTestScenario validates opts and returns a scenario in CREATED state. When
// no step carries an order the steps are numbered from 1 in declared order.
func NewTestScenario(opts ScenarioOptions, clock utils.Clock) (*TestScenario, error) {
	if clock == nil {
		clock = utils.RealClock{}
	}
	steps := cloneSteps(opts.Steps)
	if allUnordered(steps) {
		for i := range steps {
			steps[i].Order = i + 1
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := clock.Now()
	s := &TestScenario{
		ID:           id,
		Name:         opts.Name,
		Description:  opts.Description,
		Type:         opts.Type.Canonical(),
		Environment:  opts.Environment,
		Steps:        steps,
		Outcomes:     slices.Clone(opts.Outcomes),
		Tags:         slices.Clone(opts.Tags),
		Timeout:      opts.Timeout,
		Dependencies: slices.Clone(opts.Dependencies),
		Retry:        opts.Retry,
		Status:       StatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
		clock:        clock,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func allUnordered(steps []TestStep) bool {
	for _, st := range steps {
		if st.Order != 0 {
			return false
		}
	}
	return len(steps) > 0
}

// Validate re-checks the scenario and names the first violated rule.
func (s *TestScenario) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validate()
}

func (s *TestScenario) validate() error {
	fail := func(rule, msg string) error {
		return &ValidationError{Entity: "scenario", Rule: rule, Msg: msg}
	}
	if s.Name == "" {
		return fail(RuleEmptyName, "name is required")
	}
	if len(s.Steps) == 0 {
		return fail(RuleNoSteps, "at least one step is required")
	}
	if len(s.Outcomes) == 0 {
		return fail(RuleNoOutcomes, "at least one expected outcome is required")
	}
	seen := make(map[int]bool, len(s.Steps))
	for _, st := range s.Steps {
		if seen[st.Order] {
			return fail(RuleDuplicateStepOrder, fmt.Sprintf("order %d is used more than once", st.Order))
		}
		seen[st.Order] = true
	}
	for i := 1; i < len(s.Steps); i++ {
		if s.Steps[i].Order < s.Steps[i-1].Order {
			return fail(RuleStepsOutOfOrder, fmt.Sprintf("step %q (order %d) is declared after order %d", s.Steps[i].Name, s.Steps[i].Order, s.Steps[i-1].Order))
		}
	}
	if s.Timeout < MinScenarioTimeout || s.Timeout > MaxScenarioTimeout {
		return fail(RuleTimeoutOutOfRange, fmt.Sprintf("timeout %s is outside [%s, %s]", s.Timeout, MinScenarioTimeout, MaxScenarioTimeout))
	}
	if !s.Type.IsValid() {
		return fail(RuleUnknownType, fmt.Sprintf("type %q is not one of e2e, integration, api, load or regression", s.Type))
	}
	return nil
}

// CurrentStatus returns the status under the scenario lock.
func (s *TestScenario) CurrentStatus() ScenarioStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// UpdateStatus moves the scenario along one edge of the lifecycle graph.
func (s *TestScenario) UpdateStatus(next ScenarioStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.Status, next) {
		return &InvalidTransitionError{From: s.Status, To: next}
	}
	s.Status = next
	s.UpdatedAt = s.now()
	return nil
}

// AddStep appends step. An Order of 0 is replaced with the current max order + 1.
func (s *TestScenario) AddStep(step TestStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step.Order == 0 {
		step.Order = s.maxOrder() + 1
	}
	prev := s.Steps
	s.Steps = append(cloneSteps(prev), step)
	return s.commit(func() { s.Steps = prev })
}

// RemoveStep removes the step with the given order.
func (s *TestScenario) RemoveStep(order int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.Steps, func(st TestStep) bool { return st.Order == order })
	if idx < 0 {
		return &NotFoundError{Kind: "step", IDs: []string{fmt.Sprint(order)}}
	}
	prev := s.Steps
	s.Steps = slices.Delete(cloneSteps(prev), idx, idx+1)
	return s.commit(func() { s.Steps = prev })
}

func (s *TestScenario) AddExpectedOutcome(o TestOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.Outcomes
	s.Outcomes = append(slices.Clone(prev), o)
	return s.commit(func() { s.Outcomes = prev })
}

// commit validates the mutated scenario and rolls back on failure.
func (s *TestScenario) commit(rollback func()) error {
	if err := s.validate(); err != nil {
		rollback()
		return err
	}
	s.UpdatedAt = s.now()
	return nil
}

func (s *TestScenario) maxOrder() int {
	highest := 0
	for _, st := range s.Steps {
		highest = max(highest, st.Order)
	}
	return highest
}

func (s *TestScenario) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

// Snapshot returns a deep copy that is safe to read while the scenario runs.
func (s *TestScenario) Snapshot() *TestScenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &TestScenario{
		ID:           s.ID,
		Name:         s.Name,
		Description:  s.Description,
		Type:         s.Type,
		Environment:  s.Environment,
		Steps:        cloneSteps(s.Steps),
		Outcomes:     slices.Clone(s.Outcomes),
		Tags:         slices.Clone(s.Tags),
		Timeout:      s.Timeout,
		Dependencies: slices.Clone(s.Dependencies),
		Retry: RetryConfig{
			MaxAttempts:       s.Retry.MaxAttempts,
			Delay:             s.Retry.Delay,
			Exponential:       s.Retry.Exponential,
			RetryableStatuses: slices.Clone(s.Retry.RetryableStatuses),
		},
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		clock:     s.clock,
	}
}

func cloneSteps(steps []TestStep) []TestStep {
	if steps == nil {
		return nil
	}
	out := make([]TestStep, len(steps))
	for i, st := range steps {
		st.Params = maps.Clone(st.Params)
		out[i] = st
	}
	return out
}

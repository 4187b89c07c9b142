// Package scenario drives a TestScenario through its lifecycle by running
// its steps and checking its expected outcomes.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/service/apitest"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

// FlowError codes.
const (
	CodeUnknownAction = "unknown_action"
	CodeStepError     = "step_error"
	CodeStepFailed    = "step_failed"
	CodeStepTimeout   = "step_timeout"
	CodeOutcomeFailed = "outcome_failed"
	CodeTimeout       = "scenario_timeout"
	CodeCancelled     = "cancelled"
)

type RunOptions struct {
	RunID       string
	Environment string
	Build       string
	BaseURL     string
}

type Runner struct {
	logger  *zap.Logger
	actions *ActionRegistry
	clock   utils.Clock
}

func NewRunner(logger *zap.Logger, actions *ActionRegistry, clock utils.Clock) *Runner {
	if clock == nil {
		clock = utils.RealClock{}
	}
	if actions == nil {
		actions = NewActionRegistry()
	}
	return &Runner{logger: logger, actions: actions, clock: clock}
}

type attemptResult struct {
	status   models.ScenarioStatus
	steps    []models.StepResult
	outcomes []models.AssertionResult
	errors   []models.FlowError
	http     []*models.APIResult
}

// Run executes s, which must be in CREATED state, and leaves it in a
// terminal state. Test failures are reported through the FlowResult; the
// error return is for scenarios that cannot be run at all.
func (r *Runner) Run(ctx context.Context, s *models.TestScenario, opts RunOptions) (*models.FlowResult, error) {
	if s == nil {
		return nil, &models.ValidationError{Entity: "scenario", Rule: "nil-scenario"}
	}
	if err := s.UpdateStatus(models.StatusPending); err != nil {
		return nil, err
	}
	snap := s.Snapshot()
	steps := append([]models.TestStep(nil), snap.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	res := &models.FlowResult{
		ID:          uuid.NewString(),
		ScenarioID:  snap.ID,
		RunID:       opts.RunID,
		Environment: opts.Environment,
		Build:       opts.Build,
		Start:       r.clock.Now(),
	}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	if res.Environment == "" {
		res.Environment = snap.Environment
	}
	logger := r.logger.With(zap.String("scenario", snap.Name), zap.String("runID", res.RunID))

	if err := s.UpdateStatus(models.StatusRunning); err != nil {
		return nil, err
	}
	var last attemptResult
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		last = r.attempt(ctx, snap, steps, attempt, opts.BaseURL)
		if err := s.UpdateStatus(last.status); err != nil {
			return nil, err
		}
		logger.Debug("scenario attempt finished", zap.Int("attempt", attempt), zap.String("status", string(last.status)))

		if !r.shouldRetry(ctx, snap.Retry, last.status, attempt) {
			break
		}
		if err := s.UpdateStatus(models.StatusRetrying); err != nil {
			return nil, err
		}
		delay := snap.Retry.NextDelay(attempt)
		logger.Info("retrying scenario", zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		cancelled := !wait(ctx, delay)
		if err := s.UpdateStatus(models.StatusRunning); err != nil {
			return nil, err
		}
		if cancelled {
			last = attemptResult{
				status: models.StatusCancelled,
				errors: []models.FlowError{{Code: CodeCancelled, Message: ctx.Err().Error()}},
			}
			if err := s.UpdateStatus(models.StatusCancelled); err != nil {
				return nil, err
			}
			break
		}
	}

	res.Steps = last.steps
	res.Outcomes = last.outcomes
	res.Errors = last.errors
	res.Status = flowStatus(last)
	res.Finish(r.clock.Now())
	res.Performance = performance(last.http, res.Duration)

	logger.Info("scenario finished",
		zap.String("status", string(res.Status)),
		zap.Int("attempts", res.Attempts),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (r *Runner) shouldRetry(ctx context.Context, retry models.RetryConfig, status models.ScenarioStatus, attempt int) bool {
	if ctx.Err() != nil {
		return false
	}
	return attempt < retry.MaxAttempts && retry.IsRetryable(status)
}

// attempt runs every step in order and stops at the first one that does
// not pass. The scenario timeout bounds each attempt.
func (r *Runner) attempt(ctx context.Context, snap *models.TestScenario, steps []models.TestStep, attempt int, baseURL string) attemptResult {
	attemptCtx := ctx
	if snap.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, snap.Timeout)
		defer cancel()
	}
	state := &RunState{Vars: map[string]string{}, BaseURL: baseURL}
	out := attemptResult{}
	stepsPassed := true

	for _, step := range steps {
		if attemptCtx.Err() != nil {
			stepsPassed = false
			break
		}
		sr, ferr := r.runStep(attemptCtx, step, state, attempt)
		out.steps = append(out.steps, sr)
		if ferr != nil {
			out.errors = append(out.errors, *ferr)
		}
		if sr.Status != models.ResultPassed {
			stepsPassed = false
			break
		}
	}
	out.http = state.HTTP

	switch {
	case ctx.Err() != nil:
		out.status = models.StatusCancelled
		out.errors = append(out.errors, models.FlowError{Code: CodeCancelled, Message: ctx.Err().Error()})
		return out
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		out.status = models.StatusTimeout
		out.errors = append(out.errors, models.FlowError{Code: CodeTimeout, Message: fmt.Sprintf("scenario timed out after %s", snap.Timeout)})
		return out
	case !stepsPassed:
		out.status = models.StatusFailed
		return out
	}

	out.status = models.StatusPassed
	for i, o := range snap.Outcomes {
		var ar models.AssertionResult
		if state.LastHTTP == nil {
			ar = models.AssertionResult{Assertion: o.Assertion, Message: "no HTTP response to evaluate"}
		} else {
			ar = apitest.EvaluateResult(o.Assertion, state.LastHTTP)
		}
		out.outcomes = append(out.outcomes, ar)
		if !ar.Passed {
			out.status = models.StatusFailed
			name := o.Name
			if name == "" {
				name = fmt.Sprintf("outcome %d", i+1)
			}
			out.errors = append(out.errors, models.FlowError{Code: CodeOutcomeFailed, Message: name + ": " + ar.Message})
		}
	}
	return out
}

func (r *Runner) runStep(ctx context.Context, step models.TestStep, state *RunState, attempt int) (models.StepResult, *models.FlowError) {
	sr := models.StepResult{Order: step.Order, Name: step.Name, Action: step.Action, Attempt: attempt}
	fn, ok := r.actions.Get(step.Action)
	if !ok {
		sr.Status = models.ResultError
		sr.Error = fmt.Sprintf("unknown action %q", step.Action)
		if s := utils.Suggest(step.Action, r.actions.Names(), 3); s != "" {
			sr.Error += fmt.Sprintf(" (did you mean %q?)", s)
		}
		return sr, &models.FlowError{Step: step.Order, Code: CodeUnknownAction, Message: sr.Error}
	}

	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}
	start := time.Now()
	outcome, err := fn(stepCtx, step, state)
	sr.Duration = time.Since(start)
	sr.Output = outcome.Output
	sr.Status = outcome.Status
	if sr.Status == "" {
		sr.Status = models.ResultPassed
	}

	switch {
	case err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		sr.Status = models.ResultError
		sr.Error = fmt.Sprintf("step timed out after %s", step.Timeout)
		return sr, &models.FlowError{Step: step.Order, Code: CodeStepTimeout, Message: sr.Error}
	case err != nil:
		if sr.Status == models.ResultPassed {
			sr.Status = models.ResultError
		}
		sr.Error = err.Error()
		code := CodeStepError
		if sr.Status == models.ResultFailed {
			code = CodeStepFailed
		}
		return sr, &models.FlowError{Step: step.Order, Code: code, Message: sr.Error}
	case sr.Status == models.ResultFailed:
		sr.Error = failureSummary(outcome.Output)
		return sr, &models.FlowError{Step: step.Order, Code: CodeStepFailed, Message: sr.Error}
	}
	return sr, nil
}

func failureSummary(output any) string {
	res, ok := output.(*models.APIResult)
	if !ok {
		return "step failed"
	}
	for _, a := range res.Assertions {
		if !a.Passed {
			return a.Message
		}
	}
	return "step failed"
}

func flowStatus(a attemptResult) models.FlowStatus {
	switch a.status {
	case models.StatusPassed:
		return models.FlowPassed
	case models.StatusTimeout:
		return models.FlowTimeout
	case models.StatusCancelled:
		return models.FlowErrored
	}
	for _, s := range a.steps {
		if s.Status == models.ResultError {
			return models.FlowErrored
		}
	}
	return models.FlowFailed
}

func performance(results []*models.APIResult, total time.Duration) models.PerformanceMetrics {
	var pm models.PerformanceMetrics
	failed := 0
	for _, r := range results {
		pm.ResponseTime += r.ResponseTime
		pm.Network.BytesSent += r.BytesSent
		pm.Network.BytesReceived += r.BytesRecv
		pm.Network.RequestCount++
		if !r.Passed() {
			failed++
		}
	}
	if n := len(results); n > 0 {
		pm.ErrorRate = float64(failed) / float64(n) * 100
		if total > 0 {
			pm.Throughput = float64(n) / total.Seconds()
		}
	}
	return pm
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Workload builds a fresh scenario from opts on every call, which makes it
// safe to share between virtual users. A run that does not pass is an error.
func (r *Runner) Workload(opts models.ScenarioOptions, ro RunOptions) func(ctx context.Context, vu int) error {
	return func(ctx context.Context, vu int) error {
		opts := opts
		opts.ID = ""
		s, err := models.NewTestScenario(opts, r.clock)
		if err != nil {
			return err
		}
		res, err := r.Run(ctx, s, ro)
		if err != nil {
			return err
		}
		if res.Status != models.FlowPassed {
			msg := string(res.Status)
			if len(res.Errors) > 0 {
				msg = res.Errors[0].Message
			}
			return fmt.Errorf("scenario %s %s (vu %d): %s", opts.Name, res.Status, vu, msg)
		}
		return nil
	}
}

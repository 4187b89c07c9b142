package scenario

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/platform/memdb"
	"go.keploy.io/testengine/pkg/service/apitest"
	"go.keploy.io/testengine/pkg/service/mockdata"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	srv    *httptest.Server
	runner *Runner
	flaky  *atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{flaky: &atomic.Int32{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"id":1,"name":"Ada"},{"id":2,"name":"Linus"}],"total":2}`)
	})
	mux.HandleFunc("/hello/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"greeting": "hello " + strings.TrimPrefix(r.URL.Path, "/hello/")})
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"method": r.Method, "body": string(raw)})
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if f.flaky.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	logger := zaptest.NewLogger(t)
	mock := mockdata.New(logger, memdb.New(), mockdata.DefaultTemplates(), mockdata.Options{CacheMaxSize: 1 << 20, CacheMaxAge: time.Minute})
	api := apitest.New(logger, mock, apitest.Options{BaseURL: f.srv.URL, Timeout: 5 * time.Second})
	f.runner = NewRunner(logger, DefaultActions(api, mock), nil)
	return f
}

func httpStep(name string, params map[string]any) models.TestStep {
	return models.TestStep{Name: name, Action: ActionHTTP, Params: params}
}

func bodyOutcome(field string, expected any) models.TestOutcome {
	return models.TestOutcome{
		Name:      field,
		Assertion: models.ResponseAssertion{Kind: models.AssertBody, Field: field, Operator: models.OpEquals, Expected: expected},
	}
}

func newScenario(t *testing.T, steps []models.TestStep, outcomes []models.TestOutcome, mod func(*models.ScenarioOptions)) *models.TestScenario {
	t.Helper()
	opts := models.ScenarioOptions{
		Name:     "checkout",
		Type:     models.ScenarioE2E,
		Steps:    steps,
		Outcomes: outcomes,
		Timeout:  10 * time.Second,
	}
	if mod != nil {
		mod(&opts)
	}
	s, err := models.NewTestScenario(opts, nil)
	require.NoError(t, err)
	return s
}

func TestRun_PassesAndExtractsVariables(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{
			httpStep("list users", map[string]any{
				"path":            "/users",
				"expected_status": 200,
				"extract":         map[string]any{"first": "data.0.name"},
			}),
			httpStep("greet", map[string]any{"path": "/hello/{{first}}"}),
		},
		[]models.TestOutcome{bodyOutcome("greeting", "hello Ada")},
		func(o *models.ScenarioOptions) { o.Environment = "staging" },
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{RunID: "run-1", Build: "42"})
	require.NoError(t, err)

	assert.Equal(t, models.FlowPassed, res.Status)
	assert.Equal(t, models.StatusPassed, s.CurrentStatus())
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "42", res.Build)
	assert.Equal(t, "staging", res.Environment)
	assert.Equal(t, s.ID, res.ScenarioID)
	assert.Equal(t, 1, res.Attempts)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, 1, res.Steps[0].Order)
	assert.Equal(t, 2, res.Steps[1].Order)
	require.Len(t, res.Outcomes, 1)
	assert.True(t, res.Outcomes[0].Passed)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Performance.Network.RequestCount)
	assert.Zero(t, res.Performance.ErrorRate)
	assert.Positive(t, res.Performance.Network.BytesReceived)
	assert.False(t, res.End.Before(res.Start))
}

func TestRun_StopsAtFirstFailingStep(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{
			httpStep("down", map[string]any{"path": "/down", "expected_status": 200}),
			httpStep("never", map[string]any{"path": "/users"}),
		},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		nil,
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.FlowFailed, res.Status)
	assert.Equal(t, models.StatusFailed, s.CurrentStatus())
	require.Len(t, res.Steps, 1)
	assert.Equal(t, models.ResultFailed, res.Steps[0].Status)
	assert.Empty(t, res.Outcomes)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeStepFailed, res.Errors[0].Code)
	assert.Equal(t, 1, res.Errors[0].Step)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, float64(100), res.Performance.ErrorRate)
}

func TestRun_FailedOutcome(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{httpStep("list", map[string]any{"path": "/users"})},
		[]models.TestOutcome{bodyOutcome("total", 3)},
		nil,
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.FlowFailed, res.Status)
	require.Len(t, res.Outcomes, 1)
	assert.False(t, res.Outcomes[0].Passed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeOutcomeFailed, res.Errors[0].Code)
	assert.True(t, strings.HasPrefix(res.Errors[0].Message, "total: "))
}

func TestRun_OutcomeWithoutHTTPResponse(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{{Name: "pause", Action: ActionWait, Params: map[string]any{"duration": "1ms"}}},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		nil,
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.FlowFailed, res.Status)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, "no HTTP response to evaluate", res.Outcomes[0].Message)
}

func TestRun_UnknownActionSuggestsClosest(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{{Name: "typo", Action: "htp"}, httpStep("never", map[string]any{"path": "/users"})},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		nil,
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.FlowErrored, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, models.ResultError, res.Steps[0].Status)
	assert.Equal(t, `unknown action "htp" (did you mean "http"?)`, res.Steps[0].Error)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeUnknownAction, res.Errors[0].Code)
}

func TestRun_StepTimeout(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{{Name: "pause", Action: ActionWait, Timeout: 20 * time.Millisecond, Params: map[string]any{"duration": "2s"}}},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		nil,
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.FlowErrored, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "step timed out after 20ms", res.Steps[0].Error)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeStepTimeout, res.Errors[0].Code)
}

func TestRun_ScenarioTimeout(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{{Name: "pause", Action: ActionWait, Params: map[string]any{"duration": "5s"}}},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		func(o *models.ScenarioOptions) { o.Timeout = time.Second },
	)

	start := time.Now()
	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, models.FlowTimeout, res.Status)
	assert.Equal(t, models.StatusTimeout, s.CurrentStatus())
	codes := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, CodeTimeout)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{{Name: "pause", Action: ActionWait, Params: map[string]any{"duration": "5s"}}},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	res, err := f.runner.Run(ctx, s, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.FlowErrored, res.Status)
	assert.Equal(t, models.StatusCancelled, s.CurrentStatus())
	assert.Equal(t, 1, res.Attempts)
}

func TestRun_RetriesUntilPassing(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{httpStep("flaky", map[string]any{"path": "/flaky", "expected_status": 200})},
		[]models.TestOutcome{{Name: "ok", Assertion: models.ResponseAssertion{Kind: models.AssertStatus, Operator: models.OpEquals, Expected: 200}}},
		func(o *models.ScenarioOptions) {
			o.Retry = models.RetryConfig{MaxAttempts: 3, Delay: 10 * time.Millisecond}
		},
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.FlowPassed, res.Status)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, 2, res.Steps[0].Attempt)
	assert.Equal(t, int32(2), f.flaky.Load())
}

func TestRun_RetriesExhausted(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{httpStep("down", map[string]any{"path": "/down", "expected_status": 200})},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		func(o *models.ScenarioOptions) {
			o.Retry = models.RetryConfig{MaxAttempts: 2, Delay: time.Millisecond, Exponential: true}
		},
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.FlowFailed, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, models.StatusFailed, s.CurrentStatus())
}

func TestRun_NonRetryableStatus(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{httpStep("down", map[string]any{"path": "/down", "expected_status": 200})},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		func(o *models.ScenarioOptions) {
			o.Retry = models.RetryConfig{MaxAttempts: 3, RetryableStatuses: []models.ScenarioStatus{models.StatusTimeout}}
		},
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestRun_RejectsScenarioThatAlreadyRan(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{httpStep("list", map[string]any{"path": "/users"})},
		[]models.TestOutcome{bodyOutcome("total", 2)},
		nil,
	)
	_, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	_, err = f.runner.Run(context.Background(), s, RunOptions{})
	var tErr *models.InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, models.StatusPassed, tErr.From)

	_, err = f.runner.Run(context.Background(), nil, RunOptions{})
	require.Error(t, err)
}

func TestRun_MockDataFeedsRequestBody(t *testing.T) {
	f := newFixture(t)
	s := newScenario(t,
		[]models.TestStep{
			{Name: "profile", Action: ActionMockGenerate, Params: map[string]any{"template": "user-profile-basic", "seed": 7}},
			httpStep("submit", map[string]any{"path": "/echo", "method": "POST", "body": map[string]any{"$mock": "{{profile}}"}}),
		},
		[]models.TestOutcome{bodyOutcome("method", "POST")},
		nil,
	)

	res, err := f.runner.Run(context.Background(), s, RunOptions{})
	require.NoError(t, err)

	require.Equal(t, models.FlowPassed, res.Status, res.Errors)
	out, ok := res.Steps[0].Output.(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, out["id"])
	api, ok := res.Steps[1].Output.(*models.APIResult)
	require.True(t, ok)
	body := api.Body.(map[string]any)["body"].(string)
	assert.NotContains(t, body, "$mock")
}

func TestWorkload(t *testing.T) {
	f := newFixture(t)
	opts := models.ScenarioOptions{
		ID:       "fixed",
		Name:     "browse",
		Type:     models.ScenarioLoad,
		Steps:    []models.TestStep{httpStep("list", map[string]any{"path": "/users"})},
		Outcomes: []models.TestOutcome{bodyOutcome("total", 2)},
		Timeout:  5 * time.Second,
	}
	work := f.runner.Workload(opts, RunOptions{})
	require.NoError(t, work(context.Background(), 1))
	require.NoError(t, work(context.Background(), 2))

	opts.Outcomes = []models.TestOutcome{bodyOutcome("total", 9)}
	err := f.runner.Workload(opts, RunOptions{})(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario browse failed (vu 3): total: ")
}

package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/service/apitest"
	"go.keploy.io/testengine/pkg/service/mockdata"
)

const (
	ActionHTTP         = "http"
	ActionMockGenerate = "mock.generate"
	ActionWait         = "wait"
)

// APIExecutor is the part of the API testing service the http action needs.
type APIExecutor interface {
	ExecuteTestCase(ctx context.Context, tc *models.APITestCase, baseURL string) *models.APIResult
}

// MockGenerator is the part of the mock data service mock.generate needs.
type MockGenerator interface {
	GenerateData(ctx context.Context, opts mockdata.GenerateOptions) (*models.MockDataSet, error)
}

// RunState is shared by the steps of one attempt.
type RunState struct {
	Vars     map[string]string
	BaseURL  string
	LastHTTP *models.APIResult
	HTTP     []*models.APIResult
}

// StepOutcome is what an action reports. An empty Status means passed.
type StepOutcome struct {
	Status models.ResultStatus
	Output any
}

type ActionFunc func(ctx context.Context, step models.TestStep, state *RunState) (StepOutcome, error)

type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]ActionFunc)}
}

// DefaultActions registers http, mock.generate and wait. A nil collaborator
// leaves its action out.
func DefaultActions(api APIExecutor, mock MockGenerator) *ActionRegistry {
	r := NewActionRegistry()
	if api != nil {
		_ = r.Register(ActionHTTP, HTTPAction(api))
	}
	if mock != nil {
		_ = r.Register(ActionMockGenerate, MockGenerateAction(mock))
	}
	_ = r.Register(ActionWait, WaitAction)
	return r
}

func (r *ActionRegistry) Register(name string, fn ActionFunc) error {
	if name == "" || fn == nil {
		return &models.ValidationError{Entity: "action", Rule: "empty-action"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[name]; ok {
		return &models.ValidationError{Entity: "action", Rule: "duplicate-action", Msg: name}
	}
	r.actions[name] = fn
	return nil
}

func (r *ActionRegistry) Get(name string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}

func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for n := range r.actions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HTTPAction sends one request through the API testing service. Params:
// method, path, headers, body, base_url, expected_status, assertions and
// extract (variable name to body path).
func HTTPAction(api APIExecutor) ActionFunc {
	return func(ctx context.Context, step models.TestStep, state *RunState) (StepOutcome, error) {
		p := params(step.Params)
		path := state.interpolate(p.str("path"))
		if path == "" {
			path = state.interpolate(p.str("endpoint"))
		}
		if path == "" {
			return StepOutcome{}, errors.New("http step needs a path")
		}
		expected := p.integer("expected_status")
		if expected == 0 {
			if n, ok := toInt(step.Expected); ok {
				expected = n
			}
		}
		var assertions []models.ResponseAssertion
		if raw, ok := p["assertions"]; ok {
			if err := decode(raw, &assertions); err != nil {
				return StepOutcome{}, fmt.Errorf("invalid assertions: %w", err)
			}
		}
		headers := map[string]string{}
		for k, v := range p.strMap("headers") {
			headers[k] = state.interpolate(v)
		}
		method := p.str("method")
		if method == "" {
			method = http.MethodGet
		}

		tc, err := apitest.NewTestCase(apitest.TestCaseOptions{
			ID:             fmt.Sprintf("step-%d", step.Order),
			Name:           step.Name,
			Endpoint:       path,
			Method:         method,
			Headers:        headers,
			Body:           state.interpolateValue(p["body"]),
			ExpectedStatus: expected,
			Timeout:        step.Timeout,
			Assertions:     assertions,
		})
		if err != nil {
			return StepOutcome{}, err
		}
		baseURL := state.interpolate(p.str("base_url"))
		if baseURL == "" {
			baseURL = state.BaseURL
		}

		res := api.ExecuteTestCase(ctx, tc, baseURL)
		state.LastHTTP = res
		state.HTTP = append(state.HTTP, res)

		switch res.Status {
		case models.ResultError:
			return StepOutcome{Status: models.ResultError, Output: res}, errors.New(strings.Join(res.Errors, "; "))
		case models.ResultFailed:
			return StepOutcome{Status: models.ResultFailed, Output: res}, nil
		}
		for name, field := range p.strMap("extract") {
			v, ok := apitest.ExtractValue(res, field)
			if !ok {
				return StepOutcome{Status: models.ResultFailed, Output: res}, fmt.Errorf("failed to extract %s from %s", name, field)
			}
			state.Vars[name] = scalar(v)
		}
		return StepOutcome{Status: models.ResultPassed, Output: res}, nil
	}
}

// MockGenerateAction generates a data set and stores its id under the
// variable named by "as", or the step name.
func MockGenerateAction(mock MockGenerator) ActionFunc {
	return func(ctx context.Context, step models.TestStep, state *RunState) (StepOutcome, error) {
		p := params(step.Params)
		fields, _ := p["fields"].(map[string]any)
		ds, err := mock.GenerateData(ctx, mockdata.GenerateOptions{
			TemplateID:   p.str("template"),
			Type:         models.DataSetType(p.str("type")),
			Category:     p.str("category"),
			Name:         p.str("name"),
			Seed:         int64(p.integer("seed")),
			Locale:       p.str("locale"),
			CustomFields: fields,
			Count:        p.integer("count"),
		})
		if err != nil {
			return StepOutcome{}, err
		}
		as := p.str("as")
		if as == "" {
			as = step.Name
		}
		state.Vars[as] = ds.ID
		return StepOutcome{Output: map[string]any{"id": ds.ID, "checksum": ds.Checksum, "size": ds.Size}}, nil
	}
}

// WaitAction pauses for params.duration, a Go duration string or a number
// of milliseconds.
func WaitAction(ctx context.Context, step models.TestStep, _ *RunState) (StepOutcome, error) {
	p := params(step.Params)
	var d time.Duration
	switch v := p["duration"].(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return StepOutcome{}, fmt.Errorf("invalid wait duration %q: %w", v, err)
		}
		d = parsed
	case nil:
		return StepOutcome{}, errors.New("wait step needs a duration")
	default:
		ms, ok := toInt(v)
		if !ok {
			return StepOutcome{}, fmt.Errorf("invalid wait duration %v", v)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return StepOutcome{}, ctx.Err()
	case <-t.C:
		return StepOutcome{Output: d.String()}, nil
	}
}

type params map[string]any

func (p params) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p params) integer(key string) int {
	n, _ := toInt(p[key])
	return n
}

func (p params) strMap(key string) map[string]string {
	out := map[string]string{}
	switch m := p[key].(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func decode(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func scalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

var variableRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// interpolate replaces {{name}} with extracted variables. Unknown names are
// left as they are.
func (s *RunState) interpolate(input string) string {
	if len(s.Vars) == 0 || input == "" {
		return input
	}
	return variableRe.ReplaceAllStringFunc(input, func(m string) string {
		if v, ok := s.Vars[m[2:len(m)-2]]; ok {
			return v
		}
		return m
	})
}

func (s *RunState) interpolateValue(v any) any {
	switch t := v.(type) {
	case string:
		return s.interpolate(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = s.interpolateValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = s.interpolateValue(val)
		}
		return out
	}
	return v
}

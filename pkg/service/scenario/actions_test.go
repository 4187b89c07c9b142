package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
)

func TestActionRegistry(t *testing.T) {
	r := DefaultActions(nil, nil)
	assert.Equal(t, []string{ActionWait}, r.Names())

	var vErr *models.ValidationError
	err := r.Register(ActionWait, WaitAction)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "duplicate-action", vErr.Rule)

	err = r.Register("", WaitAction)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "empty-action", vErr.Rule)

	noop := func(context.Context, models.TestStep, *RunState) (StepOutcome, error) { return StepOutcome{}, nil }
	require.NoError(t, r.Register("noop", noop))
	_, ok := r.Get("noop")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"noop", ActionWait}, r.Names())
}

func TestInterpolate(t *testing.T) {
	s := &RunState{Vars: map[string]string{"user": "42", "token": "abc"}}

	assert.Equal(t, "/users/42/orders", s.interpolate("/users/{{user}}/orders"))
	assert.Equal(t, "/users/{{unknown}}", s.interpolate("/users/{{unknown}}"))

	got := s.interpolateValue(map[string]any{
		"auth":  "Bearer {{token}}",
		"ids":   []any{"{{user}}", 7},
		"count": 3,
	})
	assert.Equal(t, map[string]any{
		"auth":  "Bearer abc",
		"ids":   []any{"42", 7},
		"count": 3,
	}, got)
}

func TestWaitAction(t *testing.T) {
	tests := []struct {
		name     string
		duration any
		wantErr  string
		want     string
	}{
		{name: "duration string", duration: "5ms", want: "5ms"},
		{name: "milliseconds", duration: 3, want: "3ms"},
		{name: "float milliseconds", duration: float64(2), want: "2ms"},
		{name: "missing", duration: nil, wantErr: "wait step needs a duration"},
		{name: "garbage", duration: "soon", wantErr: `invalid wait duration "soon"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := models.TestStep{Action: ActionWait, Params: map[string]any{"duration": tt.duration}}
			out, err := WaitAction(context.Background(), step, &RunState{})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Output)
		})
	}
}

func TestWaitAction_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	step := models.TestStep{Action: ActionWait, Params: map[string]any{"duration": "1s"}}
	_, err := WaitAction(ctx, step, &RunState{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPAction_RequiresPath(t *testing.T) {
	_, err := HTTPAction(nil)(context.Background(), models.TestStep{Action: ActionHTTP}, &RunState{})
	assert.EqualError(t, err, "http step needs a path")
}

package load

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.keploy.io/testengine/pkg/models"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeExecutor) ExecuteTestCase(_ context.Context, tc *models.APITestCase, baseURL string) *models.APIResult {
	f.mu.Lock()
	f.calls = append(f.calls, baseURL+tc.Endpoint)
	f.mu.Unlock()
	if f.fail[tc.ID] {
		return &models.APIResult{
			Name:       tc.Name,
			Status:     models.ResultFailed,
			Assertions: []models.AssertionResult{{Passed: false, Message: "expected status to equal 200, got 500"}},
		}
	}
	return &models.APIResult{Name: tc.Name, Status: models.ResultPassed}
}

func TestTestCaseWorkload(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]bool{"bad": true}}
	ok := &models.APITestCase{ID: "ok", Name: "GET /ok", Endpoint: "/ok"}
	bad := &models.APITestCase{ID: "bad", Name: "GET /bad", Endpoint: "/bad"}

	assert.NoError(t, TestCaseWorkload(exec, ok, "http://x")(context.Background(), 1))
	err := TestCaseWorkload(exec, bad, "http://x")(context.Background(), 1)
	assert.EqualError(t, err, "GET /bad: expected status to equal 200, got 500")

	err = SuiteWorkload(exec, []*models.APITestCase{bad, ok, bad}, "http://y")(context.Background(), 2)
	assert.Error(t, err)
	assert.Equal(t, []string{"http://x/ok", "http://x/bad", "http://y/bad", "http://y/ok", "http://y/bad"}, exec.calls)
}

func TestResultError_ErrorStatus(t *testing.T) {
	err := resultError(&models.APIResult{Name: "GET /slow", Status: models.ResultError, Errors: []string{"request timed out after 1s"}})
	assert.EqualError(t, err, "GET /slow: request timed out after 1s")
	assert.EqualError(t, resultError(&models.APIResult{Name: "x", Status: models.ResultFailed}), "x: failed")
}

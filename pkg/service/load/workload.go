package load

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.keploy.io/testengine/pkg/models"
)

// TestCaseExecutor is the part of the API testing service a workload needs.
type TestCaseExecutor interface {
	ExecuteTestCase(ctx context.Context, tc *models.APITestCase, baseURL string) *models.APIResult
}

// TestCaseWorkload executes tc once per iteration. A result that did not
// pass is a failed invocation.
func TestCaseWorkload(exec TestCaseExecutor, tc *models.APITestCase, baseURL string) Workload {
	return func(ctx context.Context, _ int) error {
		return resultError(exec.ExecuteTestCase(ctx, tc, baseURL))
	}
}

// SuiteWorkload executes every case in order per iteration. All cases run
// even when an earlier one fails.
func SuiteWorkload(exec TestCaseExecutor, cases []*models.APITestCase, baseURL string) Workload {
	return func(ctx context.Context, _ int) error {
		var errs []error
		for _, tc := range cases {
			if err := resultError(exec.ExecuteTestCase(ctx, tc, baseURL)); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

func resultError(r *models.APIResult) error {
	if r.Passed() {
		return nil
	}
	var reasons []string
	reasons = append(reasons, r.Errors...)
	for _, a := range r.Assertions {
		if !a.Passed {
			reasons = append(reasons, a.Message)
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, string(r.Status))
	}
	return fmt.Errorf("%s: %s", r.Name, strings.Join(reasons, "; "))
}

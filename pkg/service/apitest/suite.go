package apitest

import (
	"context"
	"time"

	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExecuteTestSuite runs a registered suite. Every member id must resolve
// before anything is sent.
func (t *APITester) ExecuteTestSuite(ctx context.Context, name string, opts SuiteOptions) (*models.SuiteResult, error) {
	t.mu.RLock()
	suite, ok := t.suites[name]
	t.mu.RUnlock()
	if !ok {
		return nil, &models.NotFoundError{
			Kind:       "suite",
			IDs:        []string{name},
			Suggestion: utils.Suggest(name, t.suiteNames(), 3),
		}
	}
	cases, err := t.lookupAll(suite.TestCaseIDs)
	if err != nil {
		return nil, err
	}
	return t.run(ctx, name, cases, opts), nil
}

// ExecuteMultipleTestCases runs an ad hoc batch. Unknown ids are reported
// together in a single NotFoundError.
func (t *APITester) ExecuteMultipleTestCases(ctx context.Context, ids []string, opts SuiteOptions) (*models.SuiteResult, error) {
	cases, err := t.lookupAll(ids)
	if err != nil {
		return nil, err
	}
	return t.run(ctx, "", cases, opts), nil
}

func (t *APITester) lookupAll(ids []string) ([]*models.APITestCase, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cases := make([]*models.APITestCase, 0, len(ids))
	var missing []string
	for _, id := range ids {
		tc, ok := t.cases[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		cases = append(cases, tc)
	}
	if len(missing) > 0 {
		return nil, &models.NotFoundError{Kind: "test case", IDs: missing}
	}
	return cases, nil
}

// run keeps results in declared order whether or not cases run in parallel.
func (t *APITester) run(ctx context.Context, name string, cases []*models.APITestCase, opts SuiteOptions) *models.SuiteResult {
	start := time.Now()
	results := make([]*models.APIResult, len(cases))

	if opts.Parallel && len(cases) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		limit := opts.MaxConcurrency
		if limit <= 0 || limit > len(cases) {
			limit = len(cases)
		}
		g.SetLimit(limit)
		for i, tc := range cases {
			g.Go(func() error {
				results[i] = t.ExecuteTestCase(gctx, tc, opts.BaseURL)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, tc := range cases {
			results[i] = t.ExecuteTestCase(ctx, tc, opts.BaseURL)
		}
	}

	out := &models.SuiteResult{Name: name, Total: len(results), Results: results}
	for _, r := range results {
		switch r.Status {
		case models.ResultPassed:
			out.Passed++
		case models.ResultFailed:
			out.Failed++
		default:
			out.Errored++
		}
	}
	out.Duration = time.Since(start)
	out.SuccessRate = successRate(out.Passed, out.Total)
	t.logger.Info("test run finished",
		zap.String("suite", name),
		zap.Int("total", out.Total),
		zap.Int("passed", out.Passed),
		zap.Int("failed", out.Failed),
		zap.Int("errored", out.Errored),
		zap.Duration("duration", out.Duration))
	return out
}

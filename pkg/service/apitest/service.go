package apitest

import (
	"context"

	"go.keploy.io/testengine/pkg/models"
)

type Service interface {
	RegisterTestCase(tc *models.APITestCase) error
	GetTestCase(id string) (*models.APITestCase, bool)
	ListTestCases() []*models.APITestCase
	RegisterSuite(name string, ids []string) error
	ListSuites() []models.TestSuite
	ExecuteTestCase(ctx context.Context, tc *models.APITestCase, baseURL string) *models.APIResult
	ExecuteTestSuite(ctx context.Context, name string, opts SuiteOptions) (*models.SuiteResult, error)
	ExecuteMultipleTestCases(ctx context.Context, ids []string, opts SuiteOptions) (*models.SuiteResult, error)
	ExecuteCurlCommand(ctx context.Context, text string) *models.APIResult
}

// MockDataReader resolves {"$mock": "<id>"} request bodies.
type MockDataReader interface {
	GetDataSet(ctx context.Context, id string) (*models.MockDataSet, bool, error)
}

package mockdata

import (
	"context"

	"go.keploy.io/testengine/pkg/models"
)

// Service is the mock data surface used by the API testing service and the
// scenario runner.
type Service interface {
	CreateDataSet(ctx context.Context, name string, typ models.DataSetType, payload any, opts CreateOptions) (*models.MockDataSet, error)
	GetDataSet(ctx context.Context, id string) (*models.MockDataSet, bool, error)
	ListDataSets(ctx context.Context, filter Filter) ([]*models.MockDataSet, error)
	UpdateDataSet(ctx context.Context, id string, update Update) (*models.MockDataSet, error)
	DeleteDataSet(ctx context.Context, id string) error
	GenerateData(ctx context.Context, opts GenerateOptions) (*models.MockDataSet, error)
	Export(ctx context.Context, id string, format Format, opts ExportOptions) ([]byte, error)
	Import(ctx context.Context, data []byte, format Format, opts ImportOptions) (*models.MockDataSet, error)
	PurgeExpired(ctx context.Context) (int, error)
}

// Store is the primary store behind the cache.
type Store interface {
	Get(ctx context.Context, id string) (*models.MockDataSet, bool, error)
	Put(ctx context.Context, ds *models.MockDataSet) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.MockDataSet, error)
}

// Package datasetdb stores mock data sets as one YAML document per set.
package datasetdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/platform/yaml"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

const Kind = "MockDataSet"

type DataSetYaml struct {
	Path   string
	logger *zap.Logger
}

func New(logger *zap.Logger, path string) *DataSetYaml {
	return &DataSetYaml{
		Path:   path,
		logger: logger,
	}
}

func (db *DataSetYaml) Get(ctx context.Context, id string) (*models.MockDataSet, bool, error) {
	doc, err := yaml.ReadDoc(ctx, db.logger, db.Path, id)
	if err != nil {
		utils.LogError(db.logger, err, "failed to read the mock data set", zap.String("id", id))
		return nil, false, err
	}
	if doc == nil {
		return nil, false, nil
	}
	ds, err := decode(doc)
	if err != nil {
		utils.LogError(db.logger, err, "failed to decode the mock data set", zap.String("id", id))
		return nil, false, err
	}
	return ds, true, nil
}

func (db *DataSetYaml) Put(ctx context.Context, ds *models.MockDataSet) error {
	doc, err := yaml.NewDoc(Kind, ds.ID, ds)
	if err != nil {
		return err
	}
	if err := yaml.WriteDoc(ctx, db.logger, db.Path, doc); err != nil {
		utils.LogError(db.logger, err, "failed to write the mock data set", zap.String("id", ds.ID))
		return err
	}
	db.logger.Debug("stored mock data set", zap.String("path", db.Path), zap.String("id", ds.ID))
	return nil
}

func (db *DataSetYaml) Delete(ctx context.Context, id string) error {
	return yaml.DeleteFile(ctx, db.logger, db.Path, id)
}

func (db *DataSetYaml) List(ctx context.Context) ([]*models.MockDataSet, error) {
	names, err := yaml.ListNames(db.Path)
	if err != nil {
		utils.LogError(db.logger, err, "failed to list the mock data sets", zap.String("path", db.Path))
		return nil, err
	}
	sets := make([]*models.MockDataSet, 0, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ds, found, err := db.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if !found {
			db.logger.Warn("skipping empty mock data set file", zap.String("name", name))
			continue
		}
		sets = append(sets, ds)
	}
	return sets, nil
}

func decode(doc *yaml.Doc) (*models.MockDataSet, error) {
	if doc.Kind != Kind {
		return nil, fmt.Errorf("unexpected document kind %q", doc.Kind)
	}
	var ds models.MockDataSet
	if err := doc.Spec.Decode(&ds); err != nil {
		return nil, err
	}
	data, err := normalize(ds.Data)
	if err != nil {
		return nil, err
	}
	ds.Data = data
	return &ds, nil
}

// normalize gives decoded YAML values the same Go types JSON decoding produces,
// so payloads compare equal whichever store they came from.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload is not representable as JSON: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

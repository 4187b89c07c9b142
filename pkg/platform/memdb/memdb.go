// Package memdb is the in-memory store for mock data sets.
package memdb

import (
	"context"
	"sort"
	"sync"

	"go.keploy.io/testengine/pkg/models"
)

type DataSetStore struct {
	mu   sync.RWMutex
	sets map[string]*models.MockDataSet
}

func New() *DataSetStore {
	return &DataSetStore{sets: make(map[string]*models.MockDataSet)}
}

func (s *DataSetStore) Get(_ context.Context, id string) (*models.MockDataSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.sets[id]
	if !ok {
		return nil, false, nil
	}
	return ds.Clone(), true, nil
}

func (s *DataSetStore) Put(_ context.Context, ds *models.MockDataSet) error {
	s.mu.Lock()
	s.sets[ds.ID] = ds.Clone()
	s.mu.Unlock()
	return nil
}

func (s *DataSetStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sets, id)
	s.mu.Unlock()
	return nil
}

// List returns the sets ordered by id.
func (s *DataSetStore) List(_ context.Context) ([]*models.MockDataSet, error) {
	s.mu.RLock()
	out := make([]*models.MockDataSet, 0, len(s.sets))
	for _, ds := range s.sets {
		out = append(out, ds.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

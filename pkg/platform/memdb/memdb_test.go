package memdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
)

func TestDataSetStore(t *testing.T) {
	ctx := context.Background()
	store := New()

	ds := &models.MockDataSet{ID: "b", Metadata: models.DataSetMetadata{Tags: []string{"x"}}}
	require.NoError(t, store.Put(ctx, ds))
	require.NoError(t, store.Put(ctx, &models.MockDataSet{ID: "a"}))

	ds.Metadata.Tags[0] = "mutated"
	got, found, err := store.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"x"}, got.Metadata.Tags)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	require.NoError(t, store.Delete(ctx, "b"))
	_, found, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, found)
}

package mockdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
)

func TestInferSchema(t *testing.T) {
	s := InferSchema(map[string]any{
		"id":      float64(1),
		"count":   7,
		"name":    "x",
		"active":  true,
		"deleted": nil,
		"items":   []any{map[string]any{"sku": "a", "note": nil}, "ignored"},
		"empty":   []any{},
		"nested":  map[string]any{"k": "v"},
	})

	require.Equal(t, models.SchemaObject, s.Type)
	assert.Equal(t, []string{"active", "count", "empty", "id", "items", "name", "nested"}, s.Required)
	assert.Equal(t, models.SchemaNumber, s.Properties["id"].Type)
	assert.Equal(t, models.SchemaInteger, s.Properties["count"].Type)
	assert.Equal(t, models.SchemaBoolean, s.Properties["active"].Type)
	assert.Equal(t, models.SchemaNull, s.Properties["deleted"].Type)

	items := s.Properties["items"]
	require.Equal(t, models.SchemaArray, items.Type)
	require.NotNil(t, items.Items)
	assert.Equal(t, models.SchemaObject, items.Items.Type)
	assert.Equal(t, []string{"sku"}, items.Items.Required)
	assert.Nil(t, s.Properties["empty"].Items)
	assert.Equal(t, []string{"k"}, s.Properties["nested"].Required)
}

func TestInferSchema_TypedGoValues(t *testing.T) {
	assert.Equal(t, models.SchemaArray, InferSchema([]string{"a"}).Type)
	assert.Equal(t, models.SchemaString, InferSchema([]string{"a"}).Items.Type)
	assert.Equal(t, models.SchemaObject, InferSchema(map[string]int{"a": 1}).Type)
}

func TestValidateShape(t *testing.T) {
	schema := &models.Schema{
		Type: models.SchemaObject,
		Properties: map[string]*models.Schema{
			"name": {Type: models.SchemaString},
			"tags": {Type: models.SchemaArray, Items: &models.Schema{Type: models.SchemaString}},
		},
		Required: []string{"name"},
	}

	assert.NoError(t, ValidateShape(schema, map[string]any{"name": "a", "tags": []any{"x"}, "extra": 1.0}))
	assert.NoError(t, ValidateShape(nil, "anything"))

	for _, bad := range []any{
		map[string]any{"tags": []any{"x"}},
		map[string]any{"name": 1.0},
		map[string]any{"name": "a", "tags": []any{1.0}},
		[]any{},
	} {
		err := ValidateShape(schema, bad)
		var vErr *models.ValidationError
		require.ErrorAs(t, err, &vErr, "%v", bad)
		assert.Equal(t, "schema-mismatch", vErr.Rule)
	}
}

func TestChecksum_IsPureFunctionOfPayload(t *testing.T) {
	a, sizeA, err := Checksum(map[string]any{"b": 1, "a": []any{true, "x"}})
	require.NoError(t, err)
	b, sizeB, err := Checksum(map[string]any{"a": []any{true, "x"}, "b": 1.0})
	require.NoError(t, err)
	c, _, err := Checksum(map[string]any{"a": []any{true, "y"}, "b": 1.0})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, sizeA, sizeB)
	assert.NotEqual(t, a, c)
}

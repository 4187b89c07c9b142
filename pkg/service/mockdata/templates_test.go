package mockdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
)

func constant(v any) GeneratorFunc {
	return func(context.Context, GeneratorConfig) (any, error) { return v, nil }
}

func TestTemplateRegistry_RegisterAndLookup(t *testing.T) {
	r := NewTemplateRegistry()
	require.NoError(t, r.Register(DataTemplate{ID: "cv-a", Type: models.DataCV, Category: "tech", Generate: constant(1)}))
	require.NoError(t, r.Register(DataTemplate{ID: "cv-b", Type: models.DataCV, Category: "sales", Generate: constant(2)}))

	var vErr *models.ValidationError
	require.ErrorAs(t, r.Register(DataTemplate{ID: "cv-a", Generate: constant(3)}), &vErr)
	assert.Equal(t, "duplicate-id", vErr.Rule)
	require.ErrorAs(t, r.Register(DataTemplate{ID: "no-gen"}), &vErr)
	assert.Equal(t, "no-generator", vErr.Rule)

	got, ok := r.Find(models.DataCV, "")
	require.True(t, ok)
	assert.Equal(t, "cv-a", got.ID)
	got, ok = r.Find(models.DataCV, "sales")
	require.True(t, ok)
	assert.Equal(t, "cv-b", got.ID)
	_, ok = r.Find(models.DataMultimedia, "")
	assert.False(t, ok)

	assert.Equal(t, []string{"cv-a", "cv-b"}, r.IDs())
}

func TestDefaultTemplates_AreIsolated(t *testing.T) {
	a := DefaultTemplates()
	b := DefaultTemplates()
	require.NoError(t, a.Register(DataTemplate{ID: "extra", Type: models.DataOther, Generate: constant(nil)}))

	_, ok := b.Get("extra")
	assert.False(t, ok)
	assert.Equal(t, []string{"cv-basic", "user-profile-basic", "job-description-basic", "ai-response-basic", "multimedia-basic"}, b.IDs())
}

func TestBuiltinGenerators_Deterministic(t *testing.T) {
	for _, tmpl := range DefaultTemplates().List() {
		cfg := GeneratorConfig{Seed: 99, Locale: "de", Index: 2}
		first, err := tmpl.Generate(context.Background(), cfg)
		require.NoError(t, err)
		second, err := tmpl.Generate(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, first, second, tmpl.ID)
	}
}

package mockdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/platform/memdb"
	"go.keploy.io/testengine/pkg/platform/yaml/datasetdb"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (*MockData, *utils.FakeClock) {
	t.Helper()
	clock := utils.NewFakeClock(epoch)
	svc := New(zaptest.NewLogger(t), memdb.New(), DefaultTemplates(), Options{
		CacheMaxSize: 1 << 20,
		CacheMaxAge:  time.Minute,
		Clock:        clock,
	})
	return svc, clock
}

func userPayload() map[string]any {
	return map[string]any{"name": "Ada", "age": 36, "nickname": nil, "tags": []any{"a", "b"}}
}

func TestCreateDataSet_DerivesChecksumSizeAndSchema(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateDataSet(ctx, "users", models.DataUserProfile, userPayload(), CreateOptions{})
	require.NoError(t, err)
	second, err := svc.CreateDataSet(ctx, "users again", models.DataUserProfile, userPayload(), CreateOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Len(t, first.Checksum, 64)
	assert.Equal(t, int64(len(`{"age":36,"name":"Ada","nickname":null,"tags":["a","b"]}`)), first.Size)
	assert.Equal(t, models.SourceManual, first.Metadata.Source)

	require.NotNil(t, first.Schema)
	assert.Equal(t, models.SchemaObject, first.Schema.Type)
	assert.Equal(t, []string{"age", "name", "tags"}, first.Schema.Required)
	assert.Equal(t, models.SchemaString, first.Schema.Properties["tags"].Items.Type)
}

func TestCreateDataSet_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	var vErr *models.ValidationError

	_, err := svc.CreateDataSet(ctx, "", models.DataCV, map[string]any{}, CreateOptions{})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "empty-name", vErr.Rule)

	_, err = svc.CreateDataSet(ctx, "x", "spreadsheet", map[string]any{}, CreateOptions{})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "unknown-type", vErr.Rule)

	_, err = svc.CreateDataSet(ctx, "x", models.DataOther, map[string]any{"fn": func() {}}, CreateOptions{})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "unserializable-payload", vErr.Rule)

	declared := &models.Schema{Type: models.SchemaObject, Properties: map[string]*models.Schema{"age": {Type: models.SchemaNumber}}, Required: []string{"age"}}
	_, err = svc.CreateDataSet(ctx, "x", models.DataOther, map[string]any{"age": "old"}, CreateOptions{Schema: declared})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "schema-mismatch", vErr.Rule)

	ds, err := svc.CreateDataSet(ctx, "x", models.DataOther, map[string]any{"age": 3}, CreateOptions{Schema: declared})
	require.NoError(t, err)
	assert.Same(t, declared, ds.Schema)
}

func TestGetDataSet_CountsEveryRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateDataSet(ctx, "users", models.DataUserProfile, userPayload(), CreateOptions{})
	require.NoError(t, err)

	first, found, err := svc.GetDataSet(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	second, found, err := svc.GetDataSet(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, int64(1), first.Metadata.UsageCount)
	assert.Equal(t, int64(2), second.Metadata.UsageCount)
	assert.Equal(t, first.Data, second.Data)
}

func TestGetDataSet_UnknownIsNotAnError(t *testing.T) {
	svc, _ := newTestService(t)
	ds, found, err := svc.GetDataSet(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, ds)
}

func TestGetDataSet_ExpiredIsDeleted(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateDataSet(ctx, "short lived", models.DataOther, []any{1, 2}, CreateOptions{TTL: time.Second})
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, found, err := svc.GetDataSet(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = svc.store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetDataSet_FallsBackToStoreAfterMaxAge(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateDataSet(ctx, "users", models.DataUserProfile, userPayload(), CreateOptions{})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	ds, found, err := svc.GetDataSet(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), ds.Metadata.UsageCount)
	assert.Equal(t, uint64(1), svc.Stats().Misses)
}

func TestListDataSets_FiltersAndOrdering(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateDataSet(ctx, "a", models.DataCV, map[string]any{"n": 1}, CreateOptions{Category: "tech", Tags: []string{"seed", "cv"}})
	require.NoError(t, err)
	clock.Advance(time.Second)
	b, err := svc.CreateDataSet(ctx, "b", models.DataCV, map[string]any{"n": 2}, CreateOptions{Category: "sales", Tags: []string{"seed"}})
	require.NoError(t, err)
	clock.Advance(time.Second)
	c, err := svc.CreateDataSet(ctx, "c", models.DataUserProfile, map[string]any{"n": 3}, CreateOptions{TTL: time.Second})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = svc.UpdateDataSet(ctx, a.ID, Update{Description: ptr("touched")})
	require.NoError(t, err)
	clock.Advance(time.Second)

	all, err := svc.ListDataSets(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, c.ID, b.ID}, ids(all))

	cvs, err := svc.ListDataSets(ctx, Filter{Type: models.DataCV})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, ids(cvs))

	tagged, err := svc.ListDataSets(ctx, Filter{Tags: []string{"seed", "cv"}})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(tagged))

	sales, err := svc.ListDataSets(ctx, Filter{Type: models.DataCV, Category: "sales"})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(sales))

	expired := true
	gone, err := svc.ListDataSets(ctx, Filter{Expired: &expired})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids(gone))
}

func TestUpdateDataSet_RecomputesDerivedFields(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateDataSet(ctx, "users", models.DataUserProfile, userPayload(), CreateOptions{})
	require.NoError(t, err)
	_, _, err = svc.GetDataSet(ctx, created.ID)
	require.NoError(t, err)

	clock.Advance(time.Minute / 2)
	updated, err := svc.UpdateDataSet(ctx, created.ID, Update{Name: ptr("renamed"), Data: map[string]any{"name": "Grace"}})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Name)
	assert.NotEqual(t, created.Checksum, updated.Checksum)
	assert.Less(t, updated.Size, created.Size)
	assert.Equal(t, []string{"name"}, updated.Schema.Required)
	assert.Equal(t, epoch.Add(time.Minute/2), updated.UpdatedAt)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, int64(1), updated.Metadata.UsageCount)

	got, found, err := svc.GetDataSet(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]any{"name": "Grace"}, got.Data)

	_, err = svc.UpdateDataSet(ctx, "missing", Update{Name: ptr("x")})
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDeleteDataSet_InvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateDataSet(ctx, "users", models.DataUserProfile, userPayload(), CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDataSet(ctx, created.ID))
	assert.Equal(t, 0, svc.Stats().Entries)

	_, found, err := svc.GetDataSet(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found)

	var nf *models.NotFoundError
	require.ErrorAs(t, svc.DeleteDataSet(ctx, created.ID), &nf)
}

func TestPurgeExpired(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateDataSet(ctx, "keep", models.DataOther, 1, CreateOptions{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.CreateDataSet(ctx, "drop", models.DataOther, i, CreateOptions{TTL: time.Second})
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)
	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	left, err := svc.ListDataSets(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestGenerateData_ByTypeIsDeterministic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.GenerateData(ctx, GenerateOptions{Type: models.DataUserProfile, Seed: 42})
	require.NoError(t, err)
	second, err := svc.GenerateData(ctx, GenerateOptions{Type: models.DataUserProfile, Seed: 42})
	require.NoError(t, err)
	other, err := svc.GenerateData(ctx, GenerateOptions{Type: models.DataUserProfile, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, first.Checksum, second.Checksum)
	assert.NotEqual(t, first.Checksum, other.Checksum)
	assert.Equal(t, models.SourceGenerated, first.Metadata.Source)
	assert.Equal(t, "user-profile-basic", first.Metadata.Generator)
	assert.NotNil(t, first.Metadata.GeneratedAt)
	assert.ElementsMatch(t, []string{"generated", "type:user-profile", "template:user-profile-basic"}, first.Metadata.Tags)
}

func TestGenerateData_CountAndCustomFields(t *testing.T) {
	svc, _ := newTestService(t)

	ds, err := svc.GenerateData(context.Background(), GenerateOptions{
		TemplateID:   "cv-basic",
		Seed:         1,
		Count:        3,
		CustomFields: map[string]any{"name": "Fixed Name", "contact.phone": "555-0100"},
		Tags:         []string{"fixture"},
	})
	require.NoError(t, err)

	items, ok := ds.Data.([]any)
	require.True(t, ok)
	require.Len(t, items, 3)
	for _, item := range items {
		obj := item.(map[string]any)
		assert.Equal(t, "Fixed Name", obj["name"])
		assert.Equal(t, map[string]any{"phone": "555-0100"}, obj["contact"])
	}
	assert.Contains(t, ds.Metadata.Tags, "count:3")
	assert.Contains(t, ds.Metadata.Tags, "fixture")
	assert.Equal(t, models.SchemaArray, ds.Schema.Type)
}

func TestGenerateData_CustomFieldBreakingSchema(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GenerateData(context.Background(), GenerateOptions{TemplateID: "user-profile-basic", CustomFields: map[string]any{"age": "unknown"}})
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "schema-mismatch", vErr.Rule)
}

func TestGenerateData_UnknownTemplate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GenerateData(ctx, GenerateOptions{Type: models.DataOther})
	var nf *models.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "no template found for type other", err.Error())

	_, err = svc.GenerateData(ctx, GenerateOptions{TemplateID: "cv-basik"})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "cv-basic", nf.Suggestion)
}

func TestGenerateData_AllBuiltinsMatchTheirSchema(t *testing.T) {
	svc, _ := newTestService(t)
	for _, tmpl := range svc.Templates().List() {
		for _, locale := range []string{"en", "de", "es", "fr"} {
			for seed := int64(0); seed < 10; seed++ {
				_, err := svc.GenerateData(context.Background(), GenerateOptions{TemplateID: tmpl.ID, Seed: seed, Locale: locale})
				require.NoError(t, err, "%s seed %d locale %s", tmpl.ID, seed, locale)
			}
		}
	}
}

func TestMockData_WithYamlStore(t *testing.T) {
	store := datasetdb.New(zaptest.NewLogger(t), t.TempDir())
	svc := New(zaptest.NewLogger(t), store, DefaultTemplates(), Options{CacheMaxSize: 1 << 20})
	ctx := context.Background()

	ds, err := svc.GenerateData(ctx, GenerateOptions{TemplateID: "job-description-basic", Seed: 3})
	require.NoError(t, err)

	// a second service over the same directory sees the set
	other := New(zaptest.NewLogger(t), store, DefaultTemplates(), Options{})
	got, found, err := other.GetDataSet(ctx, ds.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ds.Data, got.Data)
	sum, _, err := Checksum(got.Data)
	require.NoError(t, err)
	assert.Equal(t, ds.Checksum, sum)
}

func ptr[T any](v T) *T { return &v }

func ids(sets []*models.MockDataSet) []string {
	out := make([]string, len(sets))
	for i, ds := range sets {
		out[i] = ds.ID
	}
	return out
}

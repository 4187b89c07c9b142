// Package mockdata generates, stores, caches and converts mock data sets.
package mockdata

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

type Options struct {
	CacheMaxSize int64
	CacheMaxAge  time.Duration
	// DefaultTTL applies to generated and imported sets without their own TTL.
	DefaultTTL time.Duration
	Locale     string
	Clock      utils.Clock
}

type CreateOptions struct {
	ID          string
	Description string
	Category    string
	// Schema is validated against the payload. When nil a schema is inferred.
	Schema    *models.Schema
	TTL       time.Duration
	ExpiresAt *time.Time
	Tags      []string
	Source    string
	Generator string
}

type Filter struct {
	Type     models.DataSetType
	Category string
	// Tags must all be present.
	Tags    []string
	Expired *bool
}

// Update is a partial change. Nil fields are left untouched; a nil Data keeps
// the current payload.
type Update struct {
	Name        *string
	Description *string
	Category    *string
	Data        any
	Schema      *models.Schema
	ExpiresAt   *time.Time
	Tags        []string
}

type GenerateOptions struct {
	TemplateID   string
	Type         models.DataSetType
	Category     string
	Name         string
	Seed         int64
	Locale       string
	CustomFields map[string]any
	Count        int
	TTL          time.Duration
	Tags         []string
}

type MockData struct {
	logger     *zap.Logger
	store      Store
	cache      *Cache
	templates  *TemplateRegistry
	clock      utils.Clock
	defaultTTL time.Duration
	locale     string
	// mu serialises read-modify-write cycles on stored sets.
	mu sync.Mutex
}

func New(logger *zap.Logger, store Store, templates *TemplateRegistry, opts Options) *MockData {
	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}
	if templates == nil {
		templates = NewTemplateRegistry()
	}
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	return &MockData{
		logger:     logger,
		store:      store,
		cache:      NewCache(opts.CacheMaxSize, opts.CacheMaxAge, opts.Clock),
		templates:  templates,
		clock:      opts.Clock,
		defaultTTL: opts.DefaultTTL,
		locale:     opts.Locale,
	}
}

func (m *MockData) Templates() *TemplateRegistry {
	return m.templates
}

func (m *MockData) Stats() CacheStats {
	return m.cache.Stats()
}

func (m *MockData) CreateDataSet(ctx context.Context, name string, typ models.DataSetType, payload any, opts CreateOptions) (*models.MockDataSet, error) {
	if name == "" {
		return nil, &models.ValidationError{Entity: "data set", Rule: "empty-name", Msg: "name is required"}
	}
	if !validType(typ) {
		return nil, &models.ValidationError{Entity: "data set", Rule: "unknown-type", Msg: fmt.Sprintf("type %q is not supported", typ)}
	}
	data, err := m.seal(payload, opts.Schema)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	ds := &models.MockDataSet{
		ID:          opts.ID,
		Name:        name,
		Description: opts.Description,
		Type:        typ,
		Category:    opts.Category,
		Metadata: models.DataSetMetadata{
			Generator: opts.Generator,
			Source:    opts.Source,
			Tags:      dedupe(opts.Tags),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	if ds.Metadata.Source == "" {
		ds.Metadata.Source = models.SourceManual
	}
	if ds.Metadata.Source == models.SourceGenerated {
		ds.Metadata.GeneratedAt = &now
	}
	data.apply(ds)
	switch {
	case opts.ExpiresAt != nil:
		t := *opts.ExpiresAt
		ds.ExpiresAt = &t
	case opts.TTL > 0:
		t := now.Add(opts.TTL)
		ds.ExpiresAt = &t
	}

	if err := m.store.Put(ctx, ds); err != nil {
		utils.LogError(m.logger, err, "failed to store the mock data set", zap.String("name", name))
		return nil, err
	}
	m.cache.Put(ds)
	m.logger.Debug("created mock data set", zap.String("id", ds.ID), zap.String("type", string(typ)), zap.Int64("size", ds.Size))
	return ds.Clone(), nil
}

// GetDataSet reads through the cache. Unknown and expired ids report found as
// false; an expired set is deleted on the way. Every successful read bumps the
// usage counter once.
func (m *MockData) GetDataSet(ctx context.Context, id string) (*models.MockDataSet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, found, err := m.lookup(ctx, id)
	if err != nil || !found {
		return nil, false, err
	}
	ds.Metadata.UsageCount++
	if err := m.store.Put(ctx, ds); err != nil {
		utils.LogError(m.logger, err, "failed to record mock data set usage", zap.String("id", id))
		return nil, false, err
	}
	m.cache.Put(ds)
	return ds.Clone(), true, nil
}

// lookup resolves id without counting it as a read. Callers hold m.mu.
func (m *MockData) lookup(ctx context.Context, id string) (*models.MockDataSet, bool, error) {
	ds, ok := m.cache.Get(id)
	if !ok {
		var err error
		ds, ok, err = m.store.Get(ctx, id)
		if err != nil {
			utils.LogError(m.logger, err, "failed to read the mock data set", zap.String("id", id))
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
	}
	if ds.IsExpired(m.clock.Now()) {
		m.logger.Debug("mock data set expired, deleting it", zap.String("id", id))
		m.cache.Remove(id)
		if err := m.store.Delete(ctx, id); err != nil {
			utils.LogError(m.logger, err, "failed to delete the expired mock data set", zap.String("id", id))
			return nil, false, err
		}
		return nil, false, nil
	}
	return ds, true, nil
}

func (m *MockData) ListDataSets(ctx context.Context, filter Filter) ([]*models.MockDataSet, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	out := make([]*models.MockDataSet, 0, len(all))
	for _, ds := range all {
		if filter.Type != "" && ds.Type != filter.Type {
			continue
		}
		if filter.Category != "" && ds.Category != filter.Category {
			continue
		}
		if !hasAllTags(ds, filter.Tags) {
			continue
		}
		if filter.Expired != nil && ds.IsExpired(now) != *filter.Expired {
			continue
		}
		out = append(out, ds)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MockData) UpdateDataSet(ctx context.Context, id string, update Update) (*models.MockDataSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ds, found, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Kind: "data set", IDs: []string{id}}
	}
	if update.Name != nil {
		if *update.Name == "" {
			return nil, &models.ValidationError{Entity: "data set", Rule: "empty-name", Msg: "name is required"}
		}
		ds.Name = *update.Name
	}
	if update.Description != nil {
		ds.Description = *update.Description
	}
	if update.Category != nil {
		ds.Category = *update.Category
	}
	if update.ExpiresAt != nil {
		t := *update.ExpiresAt
		ds.ExpiresAt = &t
	}
	if update.Tags != nil {
		ds.Metadata.Tags = dedupe(update.Tags)
	}
	if update.Data != nil || update.Schema != nil {
		payload := ds.Data
		if update.Data != nil {
			payload = update.Data
		}
		data, err := m.seal(payload, update.Schema)
		if err != nil {
			return nil, err
		}
		data.apply(ds)
	}
	ds.UpdatedAt = m.clock.Now()

	if err := m.store.Put(ctx, ds); err != nil {
		utils.LogError(m.logger, err, "failed to update the mock data set", zap.String("id", id))
		return nil, err
	}
	m.cache.Remove(id)
	return ds.Clone(), nil
}

func (m *MockData) DeleteDataSet(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Remove(id)
	_, found, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return &models.NotFoundError{Kind: "data set", IDs: []string{id}}
	}
	if err := m.store.Delete(ctx, id); err != nil {
		utils.LogError(m.logger, err, "failed to delete the mock data set", zap.String("id", id))
		return err
	}
	return nil
}

// PurgeExpired deletes every expired set and returns how many were removed.
func (m *MockData) PurgeExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.clock.Now()
	purged := 0
	for _, ds := range all {
		if !ds.IsExpired(now) {
			continue
		}
		m.cache.Remove(ds.ID)
		if err := m.store.Delete(ctx, ds.ID); err != nil {
			return purged, err
		}
		purged++
	}
	if purged > 0 {
		m.logger.Info("purged expired mock data sets", zap.Int("count", purged))
	}
	return purged, nil
}

func (m *MockData) GenerateData(ctx context.Context, opts GenerateOptions) (*models.MockDataSet, error) {
	tmpl, err := m.resolveTemplate(opts)
	if err != nil {
		return nil, err
	}
	count := max(opts.Count, 1)
	locale := opts.Locale
	if locale == "" {
		locale = m.locale
	}

	items := make([]any, 0, count)
	for i := range count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := tmpl.Generate(ctx, GeneratorConfig{
			Seed:         opts.Seed,
			Locale:       locale,
			CustomFields: opts.CustomFields,
			Count:        count,
			Index:        i,
		})
		if err != nil {
			return nil, fmt.Errorf("template %s failed to generate data: %w", tmpl.ID, err)
		}
		item, err = overlay(item, opts.CustomFields)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	var payload any = items[0]
	tags := []string{"generated", "type:" + string(tmpl.Type), "template:" + tmpl.ID}
	if count > 1 {
		payload = items
		tags = append(tags, fmt.Sprintf("count:%d", count))
	}
	name := opts.Name
	if name == "" {
		name = tmpl.Name
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = m.defaultTTL
	}

	schema := tmpl.Schema
	if schema != nil && count > 1 {
		schema = &models.Schema{Type: models.SchemaArray, Items: tmpl.Schema}
	}

	return m.CreateDataSet(ctx, name, tmpl.Type, payload, CreateOptions{
		Category:  tmpl.Category,
		Schema:    schema,
		TTL:       ttl,
		Tags:      append(tags, opts.Tags...),
		Source:    models.SourceGenerated,
		Generator: tmpl.ID,
	})
}

func (m *MockData) resolveTemplate(opts GenerateOptions) (*DataTemplate, error) {
	if opts.TemplateID != "" {
		if t, ok := m.templates.Get(opts.TemplateID); ok {
			return t, nil
		}
		return nil, &models.NotFoundError{
			Kind:       "template",
			IDs:        []string{opts.TemplateID},
			Msg:        "no template found with id " + opts.TemplateID,
			Suggestion: utils.Suggest(opts.TemplateID, m.templates.IDs(), 3),
		}
	}
	if t, ok := m.templates.Find(opts.Type, opts.Category); ok {
		return t, nil
	}
	return nil, &models.NotFoundError{
		Kind: "template",
		IDs:  []string{string(opts.Type)},
		Msg:  "no template found for type " + string(opts.Type),
	}
}

// sealed is a normalised payload with everything derived from it.
type sealed struct {
	data     any
	schema   *models.Schema
	checksum string
	size     int64
}

func (s sealed) apply(ds *models.MockDataSet) {
	ds.Data = s.data
	ds.Schema = s.schema
	ds.Checksum = s.checksum
	ds.Size = s.size
}

func (m *MockData) seal(payload any, declared *models.Schema) (sealed, error) {
	data, _, err := normalize(payload)
	if err != nil {
		return sealed{}, err
	}
	schema := declared
	if schema != nil {
		if err := ValidateShape(schema, data); err != nil {
			return sealed{}, err
		}
	} else {
		schema = InferSchema(data)
	}
	sum, size, err := Checksum(data)
	if err != nil {
		return sealed{}, err
	}
	return sealed{data: data, schema: schema, checksum: sum, size: size}, nil
}

// overlay writes custom fields onto item. Keys are dot paths.
func overlay(item any, fields map[string]any) (any, error) {
	if len(fields) == 0 {
		return item, nil
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err = sjson.SetBytes(raw, k, fields[k])
		if err != nil {
			return nil, fmt.Errorf("failed to apply custom field %q: %w", k, err)
		}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validType(t models.DataSetType) bool {
	switch t {
	case models.DataCV, models.DataUserProfile, models.DataJobDescription,
		models.DataAIResponse, models.DataMultimedia, models.DataOther:
		return true
	}
	return false
}

func hasAllTags(ds *models.MockDataSet, tags []string) bool {
	for _, t := range tags {
		if !ds.HasTag(t) {
			return false
		}
	}
	return true
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

package mockdata

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.keploy.io/testengine/pkg/models"
)

// GeneratorConfig is what a template generator is bound to. Index is the
// position of the item when several are generated at once.
type GeneratorConfig struct {
	Seed         int64
	Locale       string
	CustomFields map[string]any
	Count        int
	Index        int
}

type GeneratorFunc func(ctx context.Context, cfg GeneratorConfig) (any, error)

type DataTemplate struct {
	ID       string
	Name     string
	Type     models.DataSetType
	Category string
	Schema   *models.Schema
	Generate GeneratorFunc
	Examples []any
}

// TemplateRegistry is an explicit set of templates handed to New, so every
// service instance owns its own.
type TemplateRegistry struct {
	mu    sync.RWMutex
	byID  map[string]*DataTemplate
	order []string
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{byID: make(map[string]*DataTemplate)}
}

// DefaultTemplates returns a registry holding the built-in templates.
func DefaultTemplates() *TemplateRegistry {
	r := NewTemplateRegistry()
	for _, t := range builtinTemplates() {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *TemplateRegistry) Register(t DataTemplate) error {
	if t.ID == "" {
		return &models.ValidationError{Entity: "template", Rule: "empty-id"}
	}
	if t.Generate == nil {
		return &models.ValidationError{Entity: "template", Rule: "no-generator", Msg: t.ID}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[t.ID]; ok {
		return &models.ValidationError{Entity: "template", Rule: "duplicate-id", Msg: t.ID}
	}
	r.byID[t.ID] = &t
	r.order = append(r.order, t.ID)
	return nil
}

func (r *TemplateRegistry) Get(id string) (*DataTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

// Find returns the first registered template of typ. An empty category
// matches any category.
func (r *TemplateRegistry) Find(typ models.DataSetType, category string) (*DataTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		t := r.byID[id]
		if t.Type == typ && (category == "" || t.Category == category) {
			return t, true
		}
	}
	return nil, false
}

func (r *TemplateRegistry) List() []DataTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DataTemplate, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

func (r *TemplateRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func newRand(seed int64, index int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(index)+0x9e3779b97f4a7c15))
}

func pick[T any](r *rand.Rand, items []T) T {
	return items[r.IntN(len(items))]
}

type localeData struct {
	firstNames []string
	lastNames  []string
	cities     []string
	domains    []string
}

var locales = map[string]localeData{
	"en": {
		firstNames: []string{"Ada", "Grace", "Alan", "Linus", "Margaret", "Dennis", "Barbara", "Ken"},
		lastNames:  []string{"Lovelace", "Hopper", "Turing", "Torvalds", "Hamilton", "Ritchie", "Liskov", "Thompson"},
		cities:     []string{"London", "New York", "Toronto", "Sydney", "Dublin", "Austin"},
		domains:    []string{"example.com", "mail.test", "corp.example"},
	},
	"de": {
		firstNames: []string{"Anna", "Lukas", "Sophie", "Felix", "Marie", "Jonas"},
		lastNames:  []string{"Müller", "Schmidt", "Schneider", "Fischer", "Weber", "Becker"},
		cities:     []string{"Berlin", "Hamburg", "München", "Köln", "Leipzig"},
		domains:    []string{"beispiel.de", "post.test"},
	},
	"es": {
		firstNames: []string{"Lucía", "Mateo", "Sofía", "Hugo", "Martina", "Pablo"},
		lastNames:  []string{"García", "Fernández", "López", "Martínez", "Sánchez"},
		cities:     []string{"Madrid", "Barcelona", "Sevilla", "Valencia"},
		domains:    []string{"ejemplo.es", "correo.test"},
	},
}

func localeFor(locale string) localeData {
	if l, ok := locales[locale]; ok {
		return l
	}
	return locales["en"]
}

type person struct {
	first, last, email string
}

func newPerson(r *rand.Rand, l localeData) person {
	first, last := pick(r, l.firstNames), pick(r, l.lastNames)
	return person{
		first: first,
		last:  last,
		email: fmt.Sprintf("%s.%s%d@%s", asciiLower(first), asciiLower(last), r.IntN(100), pick(r, l.domains)),
	}
}

// asciiLower keeps only ASCII letters so generated emails stay valid.
func asciiLower(s string) string {
	out := make([]byte, 0, len(s))
	for _, c := range []byte(s) {
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+'a'-'A')
		}
	}
	return string(out)
}

var (
	skills     = []string{"go", "kubernetes", "postgres", "react", "python", "terraform", "grpc", "kafka", "rust", "typescript"}
	companies  = []string{"Initech", "Globex", "Umbrella", "Hooli", "Stark Industries", "Wayne Enterprises"}
	jobTitles  = []string{"Backend Engineer", "Site Reliability Engineer", "Data Engineer", "Frontend Engineer", "Engineering Manager"}
	degrees    = []string{"BSc Computer Science", "MSc Software Engineering", "BEng Electrical Engineering"}
	schools    = []string{"State University", "Institute of Technology", "City College"}
	aiModels   = []string{"assistant-small", "assistant-large", "summarizer-v2"}
	mimeTypes  = []string{"image/png", "image/jpeg", "video/mp4", "audio/mpeg"}
	sentences  = []string{"Builds reliable distributed systems.", "Cares deeply about testing.", "Enjoys mentoring others.", "Ships small changes often.", "Keeps services observable."}
	employment = []string{"full-time", "part-time", "contract"}
)

func sampleN[T any](r *rand.Rand, items []T, n int) []any {
	idx := r.Perm(len(items))
	out := make([]any, 0, n)
	for _, i := range idx[:min(n, len(items))] {
		out = append(out, items[i])
	}
	return out
}

func str() *models.Schema     { return &models.Schema{Type: models.SchemaString} }
func num() *models.Schema     { return &models.Schema{Type: models.SchemaNumber} }
func boolean() *models.Schema { return &models.Schema{Type: models.SchemaBoolean} }
func arr(items *models.Schema) *models.Schema {
	return &models.Schema{Type: models.SchemaArray, Items: items}
}
func obj(props map[string]*models.Schema, required ...string) *models.Schema {
	return &models.Schema{Type: models.SchemaObject, Properties: props, Required: required}
}

func builtinTemplates() []DataTemplate {
	return []DataTemplate{
		{
			ID:       "cv-basic",
			Name:     "Basic CV",
			Type:     models.DataCV,
			Category: "basic",
			Schema: obj(map[string]*models.Schema{
				"name":       str(),
				"email":      str(),
				"summary":    str(),
				"skills":     arr(str()),
				"experience": arr(obj(map[string]*models.Schema{"company": str(), "title": str(), "years": num()}, "company", "title", "years")),
				"education":  arr(obj(map[string]*models.Schema{"institution": str(), "degree": str(), "year": num()}, "degree", "institution", "year")),
			}, "education", "email", "experience", "name", "skills", "summary"),
			Generate: generateCV,
		},
		{
			ID:       "user-profile-basic",
			Name:     "Basic user profile",
			Type:     models.DataUserProfile,
			Category: "basic",
			Schema: obj(map[string]*models.Schema{
				"id":          str(),
				"username":    str(),
				"name":        str(),
				"email":       str(),
				"age":         num(),
				"location":    str(),
				"verified":    boolean(),
				"preferences": obj(map[string]*models.Schema{"theme": str(), "notifications": boolean()}, "notifications", "theme"),
			}, "age", "email", "id", "name", "username"),
			Generate: generateUserProfile,
		},
		{
			ID:       "job-description-basic",
			Name:     "Basic job description",
			Type:     models.DataJobDescription,
			Category: "basic",
			Schema: obj(map[string]*models.Schema{
				"title":            str(),
				"company":          str(),
				"location":         str(),
				"employmentType":   str(),
				"salaryRange":      obj(map[string]*models.Schema{"min": num(), "max": num(), "currency": str()}, "currency", "max", "min"),
				"requirements":     arr(str()),
				"responsibilities": arr(str()),
			}, "company", "requirements", "title"),
			Generate: generateJobDescription,
		},
		{
			ID:       "ai-response-basic",
			Name:     "Basic AI response",
			Type:     models.DataAIResponse,
			Category: "basic",
			Schema: obj(map[string]*models.Schema{
				"model":        str(),
				"prompt":       str(),
				"response":     str(),
				"finishReason": str(),
				"latencyMs":    num(),
				"tokens":       obj(map[string]*models.Schema{"prompt": num(), "completion": num(), "total": num()}, "completion", "prompt", "total"),
			}, "model", "response", "tokens"),
			Generate: generateAIResponse,
		},
		{
			ID:       "multimedia-basic",
			Name:     "Basic multimedia asset",
			Type:     models.DataMultimedia,
			Category: "basic",
			Schema: obj(map[string]*models.Schema{
				"fileName":        str(),
				"mimeType":        str(),
				"sizeBytes":       num(),
				"durationSeconds": num(),
				"width":           num(),
				"height":          num(),
				"url":             str(),
			}, "fileName", "mimeType", "sizeBytes", "url"),
			Generate: generateMultimedia,
		},
	}
}

func generateCV(_ context.Context, cfg GeneratorConfig) (any, error) {
	r := newRand(cfg.Seed, cfg.Index)
	l := localeFor(cfg.Locale)
	p := newPerson(r, l)
	jobs := 1 + r.IntN(3)
	experience := make([]any, 0, jobs)
	for range jobs {
		experience = append(experience, map[string]any{
			"company": pick(r, companies),
			"title":   pick(r, jobTitles),
			"years":   float64(1 + r.IntN(8)),
		})
	}
	return map[string]any{
		"name":       p.first + " " + p.last,
		"email":      p.email,
		"summary":    pick(r, sentences),
		"skills":     sampleN(r, skills, 3+r.IntN(4)),
		"experience": experience,
		"education": []any{map[string]any{
			"institution": pick(r, schools),
			"degree":      pick(r, degrees),
			"year":        float64(2000 + r.IntN(24)),
		}},
	}, nil
}

func generateUserProfile(_ context.Context, cfg GeneratorConfig) (any, error) {
	r := newRand(cfg.Seed, cfg.Index)
	l := localeFor(cfg.Locale)
	p := newPerson(r, l)
	return map[string]any{
		"id":       fmt.Sprintf("usr_%08x", r.Uint32()),
		"username": fmt.Sprintf("%s%d", asciiLower(p.first), r.IntN(1000)),
		"name":     p.first + " " + p.last,
		"email":    p.email,
		"age":      float64(18 + r.IntN(60)),
		"location": pick(r, l.cities),
		"verified": r.IntN(2) == 1,
		"preferences": map[string]any{
			"theme":         pick(r, []string{"light", "dark", "system"}),
			"notifications": r.IntN(2) == 1,
		},
	}, nil
}

func generateJobDescription(_ context.Context, cfg GeneratorConfig) (any, error) {
	r := newRand(cfg.Seed, cfg.Index)
	l := localeFor(cfg.Locale)
	low := float64(40000 + 5000*r.IntN(12))
	return map[string]any{
		"title":          pick(r, jobTitles),
		"company":        pick(r, companies),
		"location":       pick(r, l.cities),
		"employmentType": pick(r, employment),
		"salaryRange": map[string]any{
			"min":      low,
			"max":      low + float64(10000+5000*r.IntN(6)),
			"currency": pick(r, []string{"USD", "EUR", "GBP"}),
		},
		"requirements":     sampleN(r, skills, 3),
		"responsibilities": sampleN(r, sentences, 2),
	}, nil
}

func generateAIResponse(_ context.Context, cfg GeneratorConfig) (any, error) {
	r := newRand(cfg.Seed, cfg.Index)
	promptTokens := 10 + r.IntN(200)
	completionTokens := 20 + r.IntN(400)
	return map[string]any{
		"model":        pick(r, aiModels),
		"prompt":       "Summarize the candidate profile.",
		"response":     pick(r, sentences) + " " + pick(r, sentences),
		"finishReason": pick(r, []string{"stop", "length"}),
		"latencyMs":    float64(50 + r.IntN(1500)),
		"tokens": map[string]any{
			"prompt":     float64(promptTokens),
			"completion": float64(completionTokens),
			"total":      float64(promptTokens + completionTokens),
		},
	}, nil
}

func generateMultimedia(_ context.Context, cfg GeneratorConfig) (any, error) {
	r := newRand(cfg.Seed, cfg.Index)
	mime := pick(r, mimeTypes)
	ext := map[string]string{"image/png": "png", "image/jpeg": "jpg", "video/mp4": "mp4", "audio/mpeg": "mp3"}[mime]
	name := fmt.Sprintf("asset-%06d.%s", r.IntN(1000000), ext)
	out := map[string]any{
		"fileName":  name,
		"mimeType":  mime,
		"sizeBytes": float64(1024 * (1 + r.IntN(50000))),
		"url":       "https://cdn.example.com/media/" + name,
	}
	switch mime {
	case "image/png", "image/jpeg":
		out["width"] = float64(pick(r, []int{640, 1280, 1920}))
		out["height"] = float64(pick(r, []int{480, 720, 1080}))
	default:
		out["durationSeconds"] = float64(5 + r.IntN(600))
	}
	return out, nil
}

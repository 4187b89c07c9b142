package models

import (
	"slices"
	"time"
)

type DataSetType string

const (
	DataCV             DataSetType = "cv"
	DataUserProfile    DataSetType = "user-profile"
	DataJobDescription DataSetType = "job-description"
	DataAIResponse     DataSetType = "ai-response"
	DataMultimedia     DataSetType = "multimedia"
	DataOther          DataSetType = "other"
)

// Provenance values recorded in Metadata.Source.
const (
	SourceManual    = "manual"
	SourceGenerated = "generated"
	SourceImported  = "imported"
)

type DataSetMetadata struct {
	Generator   string     `json:"generator,omitempty" yaml:"generator,omitempty"`
	GeneratedAt *time.Time `json:"generatedAt,omitempty" yaml:"generatedAt,omitempty"`
	UsageCount  int64      `json:"usageCount" yaml:"usageCount"`
	Source      string     `json:"source" yaml:"source"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// MockDataSet is a named fixture payload with integrity metadata.
// Checksum and Size are derived from Data and must not be set by hand.
type MockDataSet struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Type        DataSetType     `json:"type" yaml:"type"`
	Category    string          `json:"category,omitempty" yaml:"category,omitempty"`
	Data        any             `json:"data" yaml:"data"`
	Schema      *Schema         `json:"schema,omitempty" yaml:"schema,omitempty"`
	Size        int64           `json:"size" yaml:"size"`
	Checksum    string          `json:"checksum" yaml:"checksum"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Metadata    DataSetMetadata `json:"metadata" yaml:"metadata"`
	CreatedAt   time.Time       `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt" yaml:"updatedAt"`
}

// IsExpired is true iff an expiry is set and lies before now.
func (d *MockDataSet) IsExpired(now time.Time) bool {
	return d.ExpiresAt != nil && d.ExpiresAt.Before(now)
}

func (d *MockDataSet) HasTag(tag string) bool {
	return slices.Contains(d.Metadata.Tags, tag)
}

// Clone copies the record. Data is shared; it is replaced, never mutated in place.
func (d *MockDataSet) Clone() *MockDataSet {
	if d == nil {
		return nil
	}
	c := *d
	c.Metadata.Tags = slices.Clone(d.Metadata.Tags)
	if d.ExpiresAt != nil {
		t := *d.ExpiresAt
		c.ExpiresAt = &t
	}
	if d.Metadata.GeneratedAt != nil {
		t := *d.Metadata.GeneratedAt
		c.Metadata.GeneratedAt = &t
	}
	return &c
}

package models

// SchemaType is the kind of a value in an inferred or declared shape.
type SchemaType string

const (
	SchemaString  SchemaType = "string"
	SchemaNumber  SchemaType = "number"
	SchemaInteger SchemaType = "integer"
	SchemaBoolean SchemaType = "boolean"
	SchemaNull    SchemaType = "null"
	SchemaArray   SchemaType = "array"
	SchemaObject  SchemaType = "object"
)

// Schema is a JSON-Schema-like field descriptor.
type Schema struct {
	Type       SchemaType         `json:"type" yaml:"type"`
	Items      *Schema            `json:"items,omitempty" yaml:"items,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required   []string           `json:"required,omitempty" yaml:"required,omitempty"`
}

package mockdata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
	"go.keploy.io/testengine/pkg/models"
)

// InferSchema classifies v recursively. Arrays take the shape of their first
// element and every object key holding a non-null value is required.
func InferSchema(v any) *models.Schema {
	switch val := v.(type) {
	case nil:
		return &models.Schema{Type: models.SchemaNull}
	case bool:
		return &models.Schema{Type: models.SchemaBoolean}
	case string:
		return &models.Schema{Type: models.SchemaString}
	case float32, float64, json.Number:
		return &models.Schema{Type: models.SchemaNumber}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return &models.Schema{Type: models.SchemaInteger}
	case []any:
		s := &models.Schema{Type: models.SchemaArray}
		if len(val) > 0 {
			s.Items = InferSchema(val[0])
		}
		return s
	case map[string]any:
		s := &models.Schema{Type: models.SchemaObject, Properties: make(map[string]*models.Schema, len(val))}
		for k, fv := range val {
			s.Properties[k] = InferSchema(fv)
			if fv != nil {
				s.Required = append(s.Required, k)
			}
		}
		sort.Strings(s.Required)
		return s
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		s := &models.Schema{Type: models.SchemaArray}
		if rv.Len() > 0 {
			s.Items = InferSchema(rv.Index(0).Interface())
		}
		return s
	case reflect.Map:
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return InferSchema(m)
	}
	return &models.Schema{Type: models.SchemaString}
}

// toOpenAPI converts a descriptor into the schema kin-openapi validates with.
func toOpenAPI(s *models.Schema) *openapi3.Schema {
	if s == nil {
		return openapi3.NewSchema()
	}
	var out *openapi3.Schema
	switch s.Type {
	case models.SchemaString:
		out = openapi3.NewStringSchema()
	case models.SchemaNumber:
		out = openapi3.NewFloat64Schema()
	case models.SchemaInteger:
		out = openapi3.NewIntegerSchema()
	case models.SchemaBoolean:
		out = openapi3.NewBoolSchema()
	case models.SchemaArray:
		out = openapi3.NewArraySchema()
		if s.Items != nil {
			out.Items = openapi3.NewSchemaRef("", toOpenAPI(s.Items))
		}
	case models.SchemaObject:
		out = openapi3.NewObjectSchema()
		for name, prop := range s.Properties {
			out.WithProperty(name, toOpenAPI(prop))
		}
		out.Required = append([]string(nil), s.Required...)
	default:
		// null fields carry no shape, so they accept anything
		out = openapi3.NewSchema()
		out.Nullable = true
	}
	return out
}

// ValidateShape checks a JSON-decoded value against a descriptor.
func ValidateShape(schema *models.Schema, v any) error {
	if schema == nil {
		return nil
	}
	if err := toOpenAPI(schema).VisitJSON(v); err != nil {
		return &models.ValidationError{Entity: "payload", Rule: "schema-mismatch", Msg: err.Error()}
	}
	return nil
}

// normalize gives v the types encoding/json decodes into and returns the
// canonical encoding of the result. encoding/json sorts map keys, so equal
// payloads always encode to equal bytes.
func normalize(v any) (any, []byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, &models.ValidationError{Entity: "payload", Rule: "unserializable-payload", Msg: err.Error()}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, err
	}
	canonical, err := json.Marshal(out)
	if err != nil {
		return nil, nil, err
	}
	return out, canonical, nil
}

// Checksum returns the SHA-256 hex digest and byte size of the canonical
// encoding of v.
func Checksum(v any) (string, int64, error) {
	_, raw, err := normalize(v)
	if err != nil {
		return "", 0, err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), int64(len(raw)), nil
}

package mockdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatXML  Format = "xml"
)

var SupportedFormats = []Format{FormatJSON, FormatCSV, FormatYAML, FormatXML}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, sf := range SupportedFormats {
		if sf == f {
			return f, nil
		}
	}
	return "", unsupported(s)
}

func unsupported(format string) error {
	names := make([]string, len(SupportedFormats))
	for i, f := range SupportedFormats {
		names[i] = string(f)
	}
	return &models.UnsupportedFormatError{Format: format, Supported: names}
}

type ExportOptions struct {
	// IncludeMetadata wraps JSON output in a {"metadata", "data"} envelope.
	IncludeMetadata bool
}

type ImportOptions struct {
	Name        string
	Type        models.DataSetType
	Category    string
	Description string
	Tags        []string
	TTL         time.Duration
}

type envelope struct {
	Metadata exportMetadata `json:"metadata"`
	Data     any            `json:"data"`
}

type exportMetadata struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Type        models.DataSetType     `json:"type"`
	Category    string                 `json:"category,omitempty"`
	Checksum    string                 `json:"checksum"`
	Size        int64                  `json:"size"`
	Schema      *models.Schema         `json:"schema,omitempty"`
	Info        models.DataSetMetadata `json:"info"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	ExportedAt  time.Time              `json:"exportedAt"`
}

// Export renders the payload of a data set. Exporting does not count as a read.
func (m *MockData) Export(ctx context.Context, id string, format Format, opts ExportOptions) ([]byte, error) {
	m.mu.Lock()
	ds, found, err := m.lookup(ctx, id)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &models.NotFoundError{Kind: "data set", IDs: []string{id}}
	}

	var out []byte
	switch format {
	case FormatJSON:
		out, err = m.exportJSON(ds, opts)
	case FormatCSV:
		out, err = exportCSV(ds.Data)
	case FormatYAML:
		out, err = yaml.Marshal(ds.Data)
	case FormatXML:
		out, err = exportXML(ds)
	default:
		return nil, unsupported(string(format))
	}
	if err != nil {
		utils.LogError(m.logger, err, "failed to export the mock data set", zap.String("id", id), zap.String("format", string(format)))
		return nil, err
	}
	return out, nil
}

// Import decodes data and stores it as a new set tagged "imported".
func (m *MockData) Import(ctx context.Context, data []byte, format Format, opts ImportOptions) (*models.MockDataSet, error) {
	var (
		payload any
		meta    *exportMetadata
		err     error
	)
	switch format {
	case FormatJSON:
		payload, meta, err = importJSON(data)
	case FormatCSV:
		payload, err = importCSV(data)
	case FormatYAML:
		payload, err = importYAML(data)
	case FormatXML:
		payload, meta, err = importXML(data)
	default:
		return nil, unsupported(string(format))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to import %s data: %w", format, err)
	}

	name, typ, category, description := opts.Name, opts.Type, opts.Category, opts.Description
	if meta != nil {
		name = firstNonEmpty(name, meta.Name)
		typ = models.DataSetType(firstNonEmpty(string(typ), string(meta.Type)))
		category = firstNonEmpty(category, meta.Category)
		description = firstNonEmpty(description, meta.Description)
	}
	if typ == "" {
		typ = models.DataOther
	}
	if name == "" {
		name = "imported-" + string(format)
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	return m.CreateDataSet(ctx, name, typ, payload, CreateOptions{
		Description: description,
		Category:    category,
		TTL:         ttl,
		Tags:        append([]string{"imported", "format:" + string(format)}, opts.Tags...),
		Source:      models.SourceImported,
	})
}

func (m *MockData) exportJSON(ds *models.MockDataSet, opts ExportOptions) ([]byte, error) {
	if !opts.IncludeMetadata {
		return json.MarshalIndent(ds.Data, "", "  ")
	}
	return json.MarshalIndent(envelope{
		Metadata: exportMetadata{
			ID:          ds.ID,
			Name:        ds.Name,
			Description: ds.Description,
			Type:        ds.Type,
			Category:    ds.Category,
			Checksum:    ds.Checksum,
			Size:        ds.Size,
			Schema:      ds.Schema,
			Info:        ds.Metadata,
			CreatedAt:   ds.CreatedAt,
			UpdatedAt:   ds.UpdatedAt,
			ExportedAt:  m.clock.Now(),
		},
		Data: ds.Data,
	}, "", "  ")
}

func importJSON(data []byte) (any, *exportMetadata, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, err
	}
	obj, ok := payload.(map[string]any)
	if !ok || len(obj) != 2 {
		return payload, nil, nil
	}
	rawMeta, hasMeta := obj["metadata"]
	inner, hasData := obj["data"]
	if !hasMeta || !hasData {
		return payload, nil, nil
	}
	metaBytes, err := json.Marshal(rawMeta)
	if err != nil {
		return nil, nil, err
	}
	var meta exportMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return payload, nil, nil
	}
	return inner, &meta, nil
}

// CSV header cells are "key:type". Null cells hold csvNull; a string cell that
// starts with a backslash gets one more so it cannot read back as null.
// Object payloads are preceded by csvObjectMarker; anything else imports as an array.
const (
	csvString  = "string"
	csvNumber  = "number"
	csvBoolean = "boolean"
	csvJSON    = "json"

	csvNull         = `\N`
	csvObjectMarker = "#shape:object"
)

// exportCSV flattens one object or a uniform array of objects. Nested values
// and columns of mixed types are written as JSON text.
func exportCSV(data any) ([]byte, error) {
	var rows []map[string]any
	object := false
	switch v := data.(type) {
	case map[string]any:
		rows = []map[string]any{v}
		object = true
	case []any:
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("csv export needs objects, item %d is %T", i, item)
			}
			rows = append(rows, obj)
		}
	default:
		return nil, fmt.Errorf("csv export needs an object or an array of objects, got %T", data)
	}
	if len(rows) == 0 {
		return nil, errors.New("csv export needs at least one object")
	}

	keys := sortedKeys(rows[0])
	if len(keys) == 0 {
		return nil, errors.New("csv export needs objects with at least one field")
	}
	for i, row := range rows[1:] {
		if !sameKeys(keys, row) {
			return nil, fmt.Errorf("csv export needs uniform objects, item %d has different fields", i+1)
		}
	}
	types := make([]string, len(keys))
	header := make([]string, len(keys))
	for i, key := range keys {
		types[i] = csvColumnType(rows, key)
		header[i] = key + ":" + types[i]
	}

	var buf bytes.Buffer
	if object {
		buf.WriteString(csvObjectMarker + "\n")
	}
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := make([]string, len(keys))
		for i, key := range keys {
			cell, err := encodeCSVCell(types[i], row[key])
			if err != nil {
				return nil, err
			}
			record[i] = cell
		}
		// encoding/csv writes a lone empty field as a blank line, which readers skip.
		if len(record) == 1 && record[0] == "" {
			w.Flush()
			buf.WriteString(`""` + "\n")
			continue
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func csvColumnType(rows []map[string]any, key string) string {
	typ := ""
	for _, row := range rows {
		var t string
		switch row[key].(type) {
		case nil:
			continue
		case string:
			t = csvString
		case float64:
			t = csvNumber
		case bool:
			t = csvBoolean
		default:
			return csvJSON
		}
		if typ != "" && typ != t {
			return csvJSON
		}
		typ = t
	}
	if typ == "" {
		return csvString
	}
	return typ
}

func encodeCSVCell(typ string, v any) (string, error) {
	if v == nil {
		return csvNull, nil
	}
	switch typ {
	case csvString:
		s := v.(string)
		if strings.HasPrefix(s, `\`) {
			s = `\` + s
		}
		return s, nil
	case csvNumber, csvBoolean:
		return csvCell(v)
	}
	raw, err := json.Marshal(v)
	return string(raw), err
}

func csvCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		raw, err := json.Marshal(val)
		return string(raw), err
	}
}

// importCSV reads a header row and records. Typed header cells decode their
// column by type; plain header cells fall back to inferScalar.
func importCSV(data []byte) (any, error) {
	object := false
	for _, marker := range []string{csvObjectMarker + "\r\n", csvObjectMarker + "\n"} {
		if bytes.HasPrefix(data, []byte(marker)) {
			data = data[len(marker):]
			object = true
			break
		}
	}

	r := csv.NewReader(bytes.NewReader(data))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read the csv header: %w", err)
	}
	names := make([]string, len(header))
	types := make([]string, len(header))
	for i, cell := range header {
		names[i], types[i] = parseCSVHeader(cell)
	}

	rows := make([]any, 0)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(names))
		for i, name := range names {
			v, err := decodeCSVCell(types[i], record[i])
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", len(rows)+1, name, err)
			}
			row[name] = v
		}
		rows = append(rows, row)
	}
	if object {
		if len(rows) != 1 {
			return nil, fmt.Errorf("csv object export holds %d records, want 1", len(rows))
		}
		return rows[0], nil
	}
	return rows, nil
}

func parseCSVHeader(cell string) (string, string) {
	if i := strings.LastIndex(cell, ":"); i >= 0 {
		switch t := cell[i+1:]; t {
		case csvString, csvNumber, csvBoolean, csvJSON:
			return cell[:i], t
		}
	}
	return cell, ""
}

func decodeCSVCell(typ, cell string) (any, error) {
	if cell == csvNull {
		return nil, nil
	}
	switch typ {
	case csvString:
		return strings.TrimPrefix(cell, `\`), nil
	case csvNumber:
		return strconv.ParseFloat(cell, 64)
	case csvBoolean:
		return strconv.ParseBool(cell)
	case csvJSON:
		var v any
		if err := json.Unmarshal([]byte(cell), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return inferScalar(cell), nil
}

// inferScalar turns untyped cell text back into a bool, a number or a string.
func inferScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) && looksNumeric(s) {
		return f
	}
	if (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) || (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")) {
		var nested any
		if err := json.Unmarshal([]byte(s), &nested); err == nil {
			return nested
		}
	}
	return s
}

// looksNumeric rejects forms ParseFloat accepts that encoding/json never writes.
func looksNumeric(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789-+.eE", c) {
			return false
		}
	}
	return true
}

func importYAML(data []byte) (any, error) {
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	out, _, err := normalize(payload)
	return out, err
}

// exportXML writes the payload under a <dataset> root. Every value element
// carries its JSON type so the document decodes back to the same payload.
func exportXML(ds *models.MockDataSet) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	root := xml.StartElement{Name: xml.Name{Local: "dataset"}, Attr: []xml.Attr{
		{Name: xml.Name{Local: "id"}, Value: ds.ID},
		{Name: xml.Name{Local: "name"}, Value: ds.Name},
		{Name: xml.Name{Local: "dataType"}, Value: string(ds.Type)},
		{Name: xml.Name{Local: "category"}, Value: ds.Category},
		{Name: xml.Name{Local: "checksum"}, Value: ds.Checksum},
	}}
	if err := encodeXMLValue(enc, root, ds.Data); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeXMLValue(enc *xml.Encoder, start xml.StartElement, v any) error {
	typ := string(InferSchema(v).Type)
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: typ})
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	switch val := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(val) {
			field := xml.StartElement{Name: xml.Name{Local: "field"}, Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: k}}}
			if err := encodeXMLValue(enc, field, val[k]); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range val {
			if err := encodeXMLValue(enc, xml.StartElement{Name: xml.Name{Local: "item"}}, item); err != nil {
				return err
			}
		}
	case nil:
	default:
		text, err := csvCell(val)
		if err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

func (n xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func importXML(data []byte) (any, *exportMetadata, error) {
	var root xmlNode
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, nil, err
	}
	if root.XMLName.Local != "dataset" {
		return nil, nil, fmt.Errorf("expected a <dataset> root element, got <%s>", root.XMLName.Local)
	}
	payload, err := decodeXMLValue(root)
	if err != nil {
		return nil, nil, err
	}
	meta := &exportMetadata{
		Name:     root.attr("name"),
		Type:     models.DataSetType(root.attr("dataType")),
		Category: root.attr("category"),
	}
	return payload, meta, nil
}

func decodeXMLValue(n xmlNode) (any, error) {
	switch models.SchemaType(n.attr("type")) {
	case models.SchemaObject:
		obj := make(map[string]any, len(n.Children))
		for _, c := range n.Children {
			v, err := decodeXMLValue(c)
			if err != nil {
				return nil, err
			}
			obj[c.attr("name")] = v
		}
		return obj, nil
	case models.SchemaArray:
		items := make([]any, 0, len(n.Children))
		for _, c := range n.Children {
			v, err := decodeXMLValue(c)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case models.SchemaNull:
		return nil, nil
	case models.SchemaBoolean:
		return strconv.ParseBool(n.Text)
	case models.SchemaNumber, models.SchemaInteger:
		return strconv.ParseFloat(n.Text, 64)
	case models.SchemaString, "":
		return n.Text, nil
	}
	return nil, fmt.Errorf("unknown value type %q in <%s>", n.attr("type"), n.XMLName.Local)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sameKeys(keys []string, m map[string]any) bool {
	if len(keys) != len(m) {
		return false
	}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

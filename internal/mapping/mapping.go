// Package mapping holds index field metadata, the analysis chains bound to
// fields and the field resolver used by the rule compiler.
//
// A Mapping is a flat catalog of dotted field paths. It is loaded either from
// an Elasticsearch-style mapping ({"properties": {...}}) or from a bleve
// index mapping ({"default_mapping": ..., "types": ...}); in the latter case
// the bleve mapping's custom analysis section also feeds the analyzer
// registry.
package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	bmapping "github.com/blevesearch/bleve/v2/mapping"
	"github.com/solatis/intervalq/internal/types"
)

/*
 * Field catalog construction.
 *
 * Mapping JSON is flattened into path -> FieldInfo at load time. Object
 * "properties" and multi-field "fields" both extend the dotted path, so
 * "body.english" resolves the same way whether it is a sub-object or a
 * multi-field. Flattening enforces MaxFieldDepth to bound recursion on
 * hostile input.
 *
 * Text fields index positions unless index_options is docs or freqs.
 * index_prefixes declares the "<field>._index_prefix" sub-field.
 */

// FieldType is the declared type of a field.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeKeyword FieldType = "keyword"
	TypeInteger FieldType = "integer"
	TypeLong    FieldType = "long"
	TypeDouble  FieldType = "double"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
)

// MaxFieldDepth limits nesting of properties/fields in mapping JSON.
const MaxFieldDepth = 16

// PrefixOptions bounds the prefix lengths indexed in a prefix sub-field.
type PrefixOptions struct {
	MinChars int `json:"min_chars"`
	MaxChars int `json:"max_chars"`
}

// FieldInfo describes one indexed field.
type FieldInfo struct {
	Path           string         `json:"-"`
	Type           FieldType      `json:"type"`
	Analyzer       string         `json:"analyzer,omitempty"`
	SearchAnalyzer string         `json:"search_analyzer,omitempty"`
	Positions      bool           `json:"-"`
	Prefixes       *PrefixOptions `json:"index_prefixes,omitempty"`
}

// QueryAnalyzer returns the analyzer applied to query text for this field.
func (f *FieldInfo) QueryAnalyzer() string {
	if f.SearchAnalyzer != "" {
		return f.SearchAnalyzer
	}
	return f.Analyzer
}

// Mapping is the field catalog of one index.
type Mapping struct {
	fields map[string]*FieldInfo
	bleve  *bmapping.IndexMappingImpl

	analyzersOnce sync.Once
	analyzers     *Analyzers
	analyzersErr  error
}

// NewMapping builds a mapping from field definitions.
func NewMapping(fields ...FieldInfo) *Mapping {
	m := &Mapping{fields: make(map[string]*FieldInfo, len(fields))}
	for _, f := range fields {
		m.Add(f)
	}
	return m
}

// Add registers or replaces a field.
func (m *Mapping) Add(f FieldInfo) {
	info := f
	m.fields[f.Path] = &info
}

// Field looks up a field by dotted path.
func (m *Mapping) Field(path string) (*FieldInfo, bool) {
	f, ok := m.fields[path]
	return f, ok
}

// Fields returns all fields ordered by path.
func (m *Mapping) Fields() []FieldInfo {
	out := make([]FieldInfo, 0, len(m.fields))
	for _, f := range m.fields {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Analyzers returns the analyzer registry for this mapping, seeded with the
// bleve custom analysis section when the mapping came from bleve.
func (m *Mapping) Analyzers() (*Analyzers, error) {
	m.analyzersOnce.Do(func() {
		m.analyzers, m.analyzersErr = NewAnalyzers(m.bleve)
	})
	return m.analyzers, m.analyzersErr
}

// fieldJSON is one entry of an Elasticsearch-style mapping.
type fieldJSON struct {
	Type           string               `json:"type"`
	Analyzer       string               `json:"analyzer"`
	SearchAnalyzer string               `json:"search_analyzer"`
	IndexOptions   string               `json:"index_options"`
	Index          *bool                `json:"index"`
	IndexPrefixes  *PrefixOptions       `json:"index_prefixes"`
	Fields         map[string]fieldJSON `json:"fields"`
	Properties     map[string]fieldJSON `json:"properties"`
}

// Parse loads a mapping from JSON. Fields without an analyzer use
// defaultAnalyzer (standard when empty).
func Parse(data []byte, defaultAnalyzer string) (*Mapping, error) {
	if defaultAnalyzer == "" {
		defaultAnalyzer = standard.Name
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("invalid mapping JSON: %w", err)
	}
	if _, ok := top["default_mapping"]; ok {
		return parseBleve(data)
	}
	if _, ok := top["types"]; ok {
		return parseBleve(data)
	}
	if inner, ok := top["mappings"]; ok {
		data = inner
	}

	var root fieldJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("invalid mapping JSON: %w", err)
	}

	m := NewMapping()
	if err := m.flatten("", root.Properties, defaultAnalyzer, 0); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mapping) flatten(prefix string, props map[string]fieldJSON, defaultAnalyzer string, depth int) error {
	if depth > MaxFieldDepth {
		return fmt.Errorf("mapping nesting exceeds maximum depth of %d at [%s]", MaxFieldDepth, prefix)
	}

	for name, def := range props {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		if def.Type != "" && def.Type != "object" && def.Type != "nested" {
			info, err := fieldInfo(path, def, defaultAnalyzer)
			if err != nil {
				return err
			}
			m.Add(info)
		}

		if err := m.flatten(path, def.Properties, defaultAnalyzer, depth+1); err != nil {
			return err
		}
		if err := m.flatten(path, def.Fields, defaultAnalyzer, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func fieldInfo(path string, def fieldJSON, defaultAnalyzer string) (FieldInfo, error) {
	info := FieldInfo{
		Path:           path,
		Type:           FieldType(def.Type),
		Analyzer:       def.Analyzer,
		SearchAnalyzer: def.SearchAnalyzer,
	}

	indexed := def.Index == nil || *def.Index

	if info.Type == TypeText {
		if info.Analyzer == "" {
			info.Analyzer = defaultAnalyzer
		}
		switch def.IndexOptions {
		case "", "positions", "offsets":
			info.Positions = indexed
		case "docs", "freqs":
			info.Positions = false
		default:
			return FieldInfo{}, fmt.Errorf("field [%s]: unknown index_options [%s]", path, def.IndexOptions)
		}
	} else if def.IndexOptions != "" || def.IndexPrefixes != nil || def.Analyzer != "" {
		return FieldInfo{}, fmt.Errorf("field [%s] of type [%s] does not support analysis options", path, def.Type)
	}

	if def.IndexPrefixes != nil {
		p := *def.IndexPrefixes
		if p.MinChars == 0 {
			p.MinChars = types.DefaultPrefixMinChars
		}
		if p.MaxChars == 0 {
			p.MaxChars = types.DefaultPrefixMaxChars
		}
		if p.MinChars < 1 || p.MaxChars > 19 || p.MinChars > p.MaxChars {
			return FieldInfo{}, fmt.Errorf("field [%s]: invalid index_prefixes [%d, %d]", path, p.MinChars, p.MaxChars)
		}
		info.Prefixes = &p
	}

	return info, nil
}

// parseBleve loads a bleve index mapping, keeping it for custom analyzers.
func parseBleve(data []byte) (*Mapping, error) {
	im := bmapping.NewIndexMapping()
	if err := json.Unmarshal(data, im); err != nil {
		return nil, fmt.Errorf("invalid bleve mapping: %w", err)
	}
	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bleve mapping: %w", err)
	}
	return FromBleve(im), nil
}

// FromBleve builds a mapping from a bleve index mapping. Text fields
// carry positions when they index term vectors. Fields of all document
// types are merged; the default mapping wins on conflicts.
func FromBleve(im *bmapping.IndexMappingImpl) *Mapping {
	m := NewMapping()
	m.bleve = im

	typeNames := make([]string, 0, len(im.TypeMapping))
	for name := range im.TypeMapping {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)

	docs := []*bmapping.DocumentMapping{im.DefaultMapping}
	for _, name := range typeNames {
		docs = append(docs, im.TypeMapping[name])
	}
	for _, dm := range docs {
		m.addBleveDocument(nil, dm, im.DefaultAnalyzer)
	}
	return m
}

func (m *Mapping) addBleveDocument(path []string, dm *bmapping.DocumentMapping, analyzer string) {
	if dm == nil || !dm.Enabled || len(path) > MaxFieldDepth {
		return
	}
	if dm.DefaultAnalyzer != "" {
		analyzer = dm.DefaultAnalyzer
	}

	for _, fm := range dm.Fields {
		name := bleveFieldName(path, fm)
		if name == "" {
			continue
		}
		if _, exists := m.fields[name]; exists {
			continue
		}
		info := FieldInfo{Path: name, Type: bleveFieldType(fm.Type)}
		if info.Type == TypeText {
			info.Analyzer = fm.Analyzer
			if info.Analyzer == "" {
				info.Analyzer = analyzer
			}
			info.Positions = fm.Index && fm.IncludeTermVectors
		}
		m.Add(info)
	}

	names := make([]string, 0, len(dm.Properties))
	for name := range dm.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.addBleveDocument(append(append([]string(nil), path...), name), dm.Properties[name], analyzer)
	}
}

// bleveFieldName follows bleve's naming: a named field mapping replaces
// the last path element.
func bleveFieldName(path []string, fm *bmapping.FieldMapping) string {
	if fm.Name == "" {
		return strings.Join(path, ".")
	}
	if len(path) > 1 {
		return strings.Join(path[:len(path)-1], ".") + "." + fm.Name
	}
	return fm.Name
}

func bleveFieldType(t string) FieldType {
	switch t {
	case "text":
		return TypeText
	case "number":
		return TypeDouble
	case "datetime":
		return TypeDate
	case "boolean":
		return TypeBoolean
	default:
		return FieldType(t)
	}
}

// MarshalJSON renders the mapping in flat Elasticsearch style with dotted
// property names, which Parse accepts back.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	props := make(map[string]any, len(m.fields))
	for path, f := range m.fields {
		entry := map[string]any{"type": f.Type}
		if f.Type == TypeText {
			entry["analyzer"] = f.Analyzer
			if f.SearchAnalyzer != "" {
				entry["search_analyzer"] = f.SearchAnalyzer
			}
			if f.Positions {
				entry["index_options"] = "positions"
			} else {
				entry["index_options"] = "freqs"
			}
		}
		if f.Prefixes != nil {
			entry["index_prefixes"] = f.Prefixes
		}
		props[path] = entry
	}
	return json.Marshal(map[string]any{"properties": props})
}

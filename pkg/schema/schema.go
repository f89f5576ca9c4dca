// Package schema builds raw typefence specifications from JSON Schema
// documents and from YAML/JSON example instance documents. The produced
// specifications check values in the JSON-decoded Go model: string,
// float64, bool, nil, []any, map[string]any.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	jptr "github.com/qri-io/jsonpointer"
	qjsonschema "github.com/qri-io/jsonschema"
	"sigs.k8s.io/yaml"

	"github.com/typefence/typefence/pkg/spec"
)

// Number matches the numeric shapes a JSON or YAML decoder can produce.
func Number() any {
	return spec.Union(spec.Of[float64](), spec.Of[int](), spec.Of[int64]())
}

// FromExample derives a raw specification from a YAML (or JSON) example
// instance document: objects become records over the observed fields,
// arrays take their element specification from the first element.
//
// Parameters:
//
//	data []byte: The YAML or JSON example document.
//
// Returns:
//
//	any: The derived raw specification, ready for spec.Parse.
//	error: An error if the document cannot be unmarshaled.
func FromExample(data []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal example document: %w", err)
	}
	return exampleNode(doc), nil
}

// exampleNode recursively derives the specification for one node of the
// example document.
func exampleNode(node any) any {
	switch v := node.(type) {
	case map[string]any:
		fields := make([]string, 0, len(v))
		for k := range v {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		specs := make([]any, 0, len(fields))
		for _, k := range fields {
			specs = append(specs, exampleNode(v[k]))
		}
		return spec.Record(fields, specs)
	case []any:
		if len(v) > 0 {
			return spec.Slice(exampleNode(v[0]))
		}
		return spec.Slice(spec.Any)
	case string:
		return spec.Of[string]()
	case float64, int, int64:
		return Number()
	case bool:
		return spec.Of[bool]()
	case nil:
		return spec.None
	default:
		return spec.Any
	}
}

// FromJSONSchema parses a Draft-07-like subset of JSON Schema and returns
// the corresponding raw specification.
//
// Supported keywords (non-exhaustive): type (string or array of strings),
// properties, items, anyOf/oneOf, enum, const, additionalProperties
// (schema form, for objects without properties). Unrecognized keywords
// are ignored; a schema with no usable keywords matches anything.
//
// Parameters:
//
//	schemaJSON []byte: The JSON bytes of the schema document.
//
// Returns:
//
//	any: The derived raw specification, ready for spec.Parse.
//	error: An error if the schema cannot be parsed.
func FromJSONSchema(schemaJSON []byte) (any, error) {
	rs := &qjsonschema.Schema{}
	if err := json.Unmarshal(schemaJSON, rs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON Schema: %w", err)
	}
	return processSchema(rs), nil
}

// processSchema converts one qri-io/jsonschema node to a raw specification.
func processSchema(rs *qjsonschema.Schema) any {
	if rs == nil {
		return spec.Any
	}

	// enum/const take precedence: they pin the value set exactly.
	if raw, ok := literalFromKeyword(rs, "enum"); ok {
		return raw
	}
	if raw, ok := literalFromKeyword(rs, "const"); ok {
		return raw
	}

	if raw, ok := combinators(rs); ok {
		return raw
	}

	typeNames := typeNamesOf(rs)
	if len(typeNames) == 0 {
		if raw, ok := objectFromProperties(rs); ok {
			return raw
		}
		if raw, ok := arrayFromItems(rs); ok {
			return raw
		}
		// $ref and other unsupported shapes
		return spec.Any
	}
	if len(typeNames) > 1 {
		alts := make([]any, 0, len(typeNames))
		for _, tn := range typeNames {
			alts = append(alts, byTypeName(rs, tn))
		}
		return spec.Union(alts...)
	}
	return byTypeName(rs, typeNames[0])
}

// literalFromKeyword extracts enum/const values by marshaling the keyword
// back to JSON and re-reading it as plain values, which is robust against
// the concrete keyword wrapper type.
func literalFromKeyword(rs *qjsonschema.Schema, keyword string) (any, bool) {
	v := rs.JSONProp(keyword)
	if v == nil {
		return nil, false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	if keyword == "const" {
		var single any
		if err := json.Unmarshal(b, &single); err != nil {
			return nil, false
		}
		return spec.Values(single), true
	}
	var vals []any
	if err := json.Unmarshal(b, &vals); err != nil || len(vals) == 0 {
		return nil, false
	}
	return spec.Values(vals...), true
}

// typeNamesOf returns the JSON Schema type names (e.g. "object", "array"),
// handling both single-string and array representations of the keyword.
func typeNamesOf(rs *qjsonschema.Schema) []string {
	v := rs.JSONProp("type")
	if v == nil {
		return nil
	}
	var t *qjsonschema.Type
	switch tv := v.(type) {
	case *qjsonschema.Type:
		t = tv
	case qjsonschema.Type:
		t = &tv
	case string:
		return []string{tv}
	default:
		return nil
	}
	if t == nil {
		return nil
	}
	b, err := t.MarshalJSON()
	if err != nil || len(b) == 0 {
		s := t.String()
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var single string
	if err := json.Unmarshal(b, &single); err == nil && single != "" {
		return []string{single}
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err == nil && len(arr) > 0 {
		return arr
	}
	return nil
}

// byTypeName builds the specification for a specific "type" keyword value.
func byTypeName(rs *qjsonschema.Schema, typ string) any {
	switch typ {
	case "object":
		if raw, ok := objectFromProperties(rs); ok {
			return raw
		}
		return spec.Map(spec.Of[string](), spec.Any)
	case "array":
		if raw, ok := arrayFromItems(rs); ok {
			return raw
		}
		return spec.Slice(spec.Any)
	case "string":
		return spec.Of[string]()
	case "integer", "number":
		return Number()
	case "boolean":
		return spec.Of[bool]()
	case "null":
		return spec.None
	default:
		return spec.Any
	}
}

// combinators handles anyOf/oneOf: both become unions of their member
// specifications. allOf is merged for records and approximated by a union
// otherwise.
func combinators(rs *qjsonschema.Schema) (any, bool) {
	if list, ok := subschemas(rs.JSONProp("anyOf")); ok && len(list) > 0 {
		return unionOf(list), true
	}
	if list, ok := subschemas(rs.JSONProp("oneOf")); ok && len(list) > 0 {
		return unionOf(list), true
	}
	if list, ok := subschemas(rs.JSONProp("allOf")); ok && len(list) > 0 {
		return mergeAllOf(list), true
	}
	return nil, false
}

// subschemas converts anyOf/oneOf/allOf keyword values to a schema slice.
func subschemas(v any) ([]*qjsonschema.Schema, bool) {
	switch s := v.(type) {
	case *qjsonschema.AnyOf:
		if s == nil {
			return nil, false
		}
		return []*qjsonschema.Schema(*s), true
	case *qjsonschema.OneOf:
		if s == nil {
			return nil, false
		}
		return []*qjsonschema.Schema(*s), true
	case *qjsonschema.AllOf:
		if s == nil {
			return nil, false
		}
		return []*qjsonschema.Schema(*s), true
	default:
		return nil, false
	}
}

func unionOf(list []*qjsonschema.Schema) any {
	alts := make([]any, 0, len(list))
	for _, sub := range list {
		alts = append(alts, processSchema(sub))
	}
	if len(alts) == 1 {
		return alts[0]
	}
	return spec.Union(alts...)
}

// mergeAllOf merges member schemas conjunctively where the record shape
// allows it (union of field sets); other shapes degrade to a union
// approximation.
func mergeAllOf(list []*qjsonschema.Schema) any {
	fields := make(map[string]any)
	records := true
	for _, sub := range list {
		raw := processSchema(sub)
		rec, ok := recordFields(raw)
		if !ok {
			records = false
			break
		}
		for k, v := range rec {
			fields[k] = v
		}
	}
	if records {
		names := make([]string, 0, len(fields))
		for k := range fields {
			names = append(names, k)
		}
		sort.Strings(names)
		specs := make([]any, 0, len(names))
		for _, k := range names {
			specs = append(specs, fields[k])
		}
		return spec.Record(names, specs)
	}
	return unionOf(list)
}

// objectFromProperties builds a record from the "properties" keyword; when
// only additionalProperties carries a schema, a homogeneous map is built
// instead.
func objectFromProperties(rs *qjsonschema.Schema) (any, bool) {
	if rs.HasKeyword("properties") {
		if props, ok := rs.JSONProp("properties").(*qjsonschema.Properties); ok && props != nil {
			names := make([]string, 0, len(*props))
			for k := range *props {
				names = append(names, k)
			}
			sort.Strings(names)
			specs := make([]any, 0, len(names))
			for _, k := range names {
				specs = append(specs, processSchema((*props)[k]))
			}
			return spec.Record(names, specs), true
		}
		return nil, false
	}
	if ap := additionalPropertiesSchema(rs); ap != nil {
		return spec.Map(spec.Of[string](), processSchema(ap)), true
	}
	return nil, false
}

// additionalPropertiesSchema unwraps the additionalProperties keyword to
// its subschema, or nil when absent or boolean-valued.
func additionalPropertiesSchema(rs *qjsonschema.Schema) *qjsonschema.Schema {
	v := rs.JSONProp("additionalProperties")
	if v == nil {
		return nil
	}
	switch ap := v.(type) {
	case *qjsonschema.AdditionalProperties:
		if ap == nil {
			return nil
		}
		sch := ap.Resolve(jptr.Pointer{}, "")
		if sch == nil {
			return nil
		}
		// Boolean forms carry no element constraint.
		if b, err := sch.MarshalJSON(); err == nil && (string(b) == "true" || string(b) == "false") {
			return nil
		}
		return sch
	case *qjsonschema.Schema:
		return ap
	default:
		return nil
	}
}

// arrayFromItems builds a container from the "items" keyword: a single
// item schema yields a homogeneous slice, a schema list yields a tuple.
func arrayFromItems(rs *qjsonschema.Schema) (any, bool) {
	items, ok := rs.JSONProp("items").(*qjsonschema.Items)
	if !ok || items == nil {
		return nil, false
	}
	switch len(items.Schemas) {
	case 0:
		return spec.Slice(spec.Any), true
	case 1:
		return spec.Slice(processSchema(items.Schemas[0])), true
	default:
		elems := make([]any, 0, len(items.Schemas))
		for _, sub := range items.Schemas {
			elems = append(elems, processSchema(sub))
		}
		return spec.Tuple(elems...), true
	}
}

// recordFields unwraps a record marker produced by this package. Markers
// are opaque outside pkg/spec, so the mapping is rebuilt from the public
// constructor arguments we track alongside.
func recordFields(raw any) (map[string]any, bool) {
	rec, ok := raw.(interface {
		RecordFields() ([]string, []any)
	})
	if !ok {
		return nil, false
	}
	names, specs := rec.RecordFields()
	out := make(map[string]any, len(names))
	for i, n := range names {
		out[n] = specs[i]
	}
	return out, true
}

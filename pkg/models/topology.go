package models

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Equal reports whether two topologies are structurally identical,
// field by field. Nil and empty maps compare equal so a decoded document
// matches a freshly built request with no declared sources.
func (t AppDataSource) Equal(other AppDataSource) bool {
	if !filestoreEqual(t.Filestore, other.Filestore) {
		return false
	}
	return datastoreEqual(t.Datastore, other.Datastore)
}

func filestoreEqual(a, b map[string][]FileSource) bool {
	if len(a) != len(b) {
		return false
	}
	for kind, sources := range a {
		others, ok := b[kind]
		if !ok || len(sources) != len(others) {
			return false
		}
		for i := range sources {
			if !reflect.DeepEqual(sources[i], others[i]) {
				return false
			}
		}
	}
	return true
}

func datastoreEqual(a, b map[string][]DbSource) bool {
	if len(a) != len(b) {
		return false
	}
	for kind, sources := range a {
		others, ok := b[kind]
		if !ok || len(sources) != len(others) {
			return false
		}
		for i := range sources {
			if !dbSourceEqual(sources[i], others[i]) {
				return false
			}
		}
	}
	return true
}

func dbSourceEqual(a, b DbSource) bool {
	if len(a.Tables) != len(b.Tables) {
		return false
	}
	for i := range a.Tables {
		if !tableEqual(a.Tables[i], b.Tables[i]) {
			return false
		}
	}
	a.Tables, b.Tables = nil, nil
	return reflect.DeepEqual(a, b)
}

// tableEqual compares schema_json by structure, not by decoded Go type.
// A stored copy comes back from the document store as primitive.D with
// int32/int64 numbers, while a request decodes from JSON as maps with
// float64; the two must still count as the same schema.
func tableEqual(a, b Table) bool {
	if !reflect.DeepEqual(canonicalSchema(a.SchemaJSON), canonicalSchema(b.SchemaJSON)) {
		return false
	}
	a.SchemaJSON, b.SchemaJSON = nil, nil
	return reflect.DeepEqual(a, b)
}

// canonicalSchema rewrites a dynamic schema value into plain maps,
// slices and float64 numbers regardless of which codec produced it.
func canonicalSchema(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = canonicalSchema(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = canonicalSchema(val)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = canonicalSchema(val)
		}
		return m
	case primitive.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = canonicalSchema(val)
		}
		return out
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// Kinds returns the declared source kinds, filestore first.
func (t AppDataSource) Kinds() (filestore, datastore []string) {
	for kind := range t.Filestore {
		filestore = append(filestore, kind)
	}
	for kind := range t.Datastore {
		datastore = append(datastore, kind)
	}
	return filestore, datastore
}

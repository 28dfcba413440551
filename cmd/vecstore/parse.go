package main

import (
	"fmt"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/vecstore/metadata"
)

// parseVector parses a comma-separated list of float components.
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")

	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q", p)
		}
		vec = append(vec, float32(f))
	}

	return vec, nil
}

// parseMetadata parses a JSON object into a typed metadata document.
func parseMetadata(s string) (metadata.Document, error) {
	if s == "" {
		return nil, nil
	}

	var m map[string]any
	if err := gojson.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}

	return metadata.DocumentFromAny(m)
}

// whereClause is the JSON shape of one --where condition.
type whereClause struct {
	Key   string `json:"key"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// parseWhere parses a JSON array of typed filter conditions, e.g.
//
//	[{"key":"score","op":"gt","value":0.5}]
//
// All conditions must match.
func parseWhere(s string) (*metadata.FilterSet, error) {
	if s == "" {
		return nil, nil
	}

	var clauses []whereClause
	if err := gojson.Unmarshal([]byte(s), &clauses); err != nil {
		return nil, fmt.Errorf("invalid where clause: %w", err)
	}

	filters := make([]metadata.Filter, 0, len(clauses))
	for i, c := range clauses {
		if c.Key == "" {
			return nil, fmt.Errorf("where clause %d: key required", i)
		}
		op := metadata.Operator(c.Op)
		switch op {
		case metadata.OpEqual, metadata.OpNotEqual,
			metadata.OpGreaterThan, metadata.OpGreaterEqual,
			metadata.OpLessThan, metadata.OpLessEqual,
			metadata.OpIn, metadata.OpContains:
		default:
			return nil, fmt.Errorf("where clause %d: unknown operator %q", i, c.Op)
		}
		v, err := metadata.FromAny(c.Value)
		if err != nil {
			return nil, fmt.Errorf("where clause %d: %w", i, err)
		}
		filters = append(filters, metadata.Filter{
			Key:      c.Key,
			Operator: op,
			Value:    v,
		})
	}

	return metadata.NewFilterSet(filters...), nil
}

// parseID parses a decimal entry ID.
func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid entry id %q", s)
	}
	return id, nil
}

package metadata

import (
	"math"
	"testing"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"bool", true, Bool(true)},
		{"string", "x", String("x")},
		{"int", 42, Int(42)},
		{"int64", int64(-9), Int(-9)},
		{"uint32", uint32(7), Int(7)},
		{"float64", 1.5, Float(1.5)},
		{"float32", float32(2), Float(2)},
		{"value passthrough", String("v"), String("v")},
		{"string slice", []string{"a", "b"}, Array([]Value{String("a"), String("b")})},
		{"any slice", []any{1, "x"}, Array([]Value{Int(1), String("x")})},
		{"map", map[string]any{"k": 1}, Map(map[string]Value{"k": Int(1)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			if err != nil {
				t.Fatalf("FromAny(%v): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("FromAny(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromAnyErrors(t *testing.T) {
	if _, err := FromAny(uint64(math.MaxUint64)); err == nil {
		t.Error("oversized uint64 accepted")
	}
	if _, err := FromAny(struct{}{}); err == nil {
		t.Error("unsupported type accepted")
	}
	if _, err := FromAny([]any{struct{}{}}); err == nil {
		t.Error("unsupported nested type accepted")
	}
}

func TestDocumentFromAnyRoundTrip(t *testing.T) {
	in := map[string]any{
		"title":  "engineer",
		"level":  3,
		"remote": true,
		"tags":   []any{"go", "db"},
		"loc":    map[string]any{"city": "berlin"},
	}

	doc, err := DocumentFromAny(in)
	if err != nil {
		t.Fatalf("DocumentFromAny: %v", err)
	}

	out := doc.ToAny()
	if out["title"] != "engineer" {
		t.Errorf("title = %v", out["title"])
	}
	if out["level"] != int64(3) {
		t.Errorf("level = %v (%T)", out["level"], out["level"])
	}
	if out["remote"] != true {
		t.Errorf("remote = %v", out["remote"])
	}
	tags, ok := out["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "go" {
		t.Errorf("tags = %v", out["tags"])
	}
	loc, ok := out["loc"].(map[string]any)
	if !ok || loc["city"] != "berlin" {
		t.Errorf("loc = %v", out["loc"])
	}
}

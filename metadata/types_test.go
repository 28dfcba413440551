package metadata

import (
	"encoding/json"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestValueKey(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"null", Null(), "null"},
		{"int", Int(42), "i:42"},
		{"negative int", Int(-7), "i:-7"},
		{"string", String("tech"), "s:tech"},
		{"bool true", Bool(true), "b:1"},
		{"bool false", Bool(false), "b:0"},
		{"empty array", Array(nil), "a:"},
		{"array", Array([]Value{String("a"), Int(1)}), "a:s:a\x1fi:1"},
		{"empty map", Map(nil), "m:"},
		{"map", Map(map[string]Value{"b": Int(2), "a": Int(1)}), "m:a=i:1\x1fb=i:2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Key(); got != tt.want {
				t.Errorf("Value.Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValueKeyFloatStable(t *testing.T) {
	a := Float(1.5).Key()
	b := Float(1.5).Key()
	if a != b {
		t.Errorf("float keys differ: %q vs %q", a, b)
	}
	if a == Float(2.5).Key() {
		t.Error("distinct floats produced the same key")
	}
}

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int eq", Int(5), Int(5), true},
		{"int ne", Int(5), Int(6), false},
		{"int vs float", Int(5), Float(5.0), true},
		{"string eq", String("x"), String("x"), true},
		{"string vs int", String("5"), Int(5), false},
		{"null eq", Null(), Null(), true},
		{"null vs int", Null(), Int(0), false},
		{"array deep", Array([]Value{Int(1), String("a")}), Array([]Value{Int(1), String("a")}), true},
		{"array len", Array([]Value{Int(1)}), Array([]Value{Int(1), Int(2)}), false},
		{"map deep", Map(map[string]Value{"k": Int(1)}), Map(map[string]Value{"k": Int(1)}), true},
		{"map diff value", Map(map[string]Value{"k": Int(1)}), Map(map[string]Value{"k": Int(2)}), false},
		{"map diff key", Map(map[string]Value{"k": Int(1)}), Map(map[string]Value{"j": Int(1)}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDocumentCloneIndependence(t *testing.T) {
	doc := Document{
		"tags":   Array([]Value{String("go")}),
		"nested": Map(map[string]Value{"a": Int(1)}),
	}
	clone := doc.Clone()

	clone["tags"].A[0] = String("rust")
	clone["nested"].M["a"] = Int(2)

	if got := doc["tags"].A[0].StringValue(); got != "go" {
		t.Errorf("clone mutation leaked into original array: %q", got)
	}
	if got, _ := doc["nested"].M["a"].AsInt64(); got != 1 {
		t.Errorf("clone mutation leaked into original map: %d", got)
	}
}

func TestDocumentMerge(t *testing.T) {
	doc := Document{"author": String("A"), "title": String("X")}
	doc.Merge(Document{"author": String("B")})

	if got := doc["author"].StringValue(); got != "B" {
		t.Errorf("author = %q, want B", got)
	}
	if got := doc["title"].StringValue(); got != "X" {
		t.Errorf("title = %q, want X", got)
	}
}

func TestDocumentMatchesEqual(t *testing.T) {
	doc := Document{"type": String("job"), "level": Int(3)}

	if !doc.MatchesEqual(Document{"type": String("job")}) {
		t.Error("exact match rejected")
	}
	if !doc.MatchesEqual(nil) {
		t.Error("empty filters must match")
	}
	if doc.MatchesEqual(Document{"type": String("staking")}) {
		t.Error("mismatched value accepted")
	}
	if doc.MatchesEqual(Document{"missing": String("job")}) {
		t.Error("missing key accepted")
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	in := Document{
		"title":  String("gopher wanted"),
		"level":  Int(3),
		"score":  Float(0.75),
		"remote": Bool(true),
		"none":   Null(),
		"tags":   Array([]Value{String("go"), String("db")}),
		"extra":  Map(map[string]Value{"region": String("eu")}),
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for k, v := range in {
		if !out[k].Equal(v) {
			t.Errorf("key %q: got %v, want %v", k, out[k], v)
		}
	}
	if out["title"].Kind != KindString || out["level"].Kind != KindInt {
		t.Error("kinds not preserved through JSON")
	}
}

func TestValueMsgpackRoundTrip(t *testing.T) {
	in := Document{
		"title": String("gopher wanted"),
		"level": Int(3),
		"tags":  Array([]Value{String("go"), Int(1)}),
		"extra": Map(map[string]Value{"region": String("eu")}),
	}

	data, err := msgpack.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Document
	if err := msgpack.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for k, v := range in {
		if !out[k].Equal(v) {
			t.Errorf("key %q: got %v, want %v", k, out[k], v)
		}
	}
}

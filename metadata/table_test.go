package metadata

import "testing"

func TestTableSetGetDelete(t *testing.T) {
	tbl := NewTable()

	tbl.Set(1, Document{"type": String("job")})
	tbl.Set(2, Document{"type": String("staking")})

	doc, ok := tbl.Get(1)
	if !ok {
		t.Fatal("Get(1) missing")
	}
	if got := doc["type"].StringValue(); got != "job" {
		t.Errorf("type = %q", got)
	}

	if tbl.Len() != 2 {
		t.Errorf("Len = %d, want 2", tbl.Len())
	}

	if !tbl.Delete(1) {
		t.Error("Delete(1) = false")
	}
	if tbl.Delete(1) {
		t.Error("second Delete(1) = true")
	}
	if _, ok := tbl.Get(1); ok {
		t.Error("Get(1) after delete")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len = %d, want 1", tbl.Len())
	}
}

func TestTableGetReturnsCopy(t *testing.T) {
	tbl := NewTable()
	tbl.Set(1, Document{"tags": Array([]Value{String("go")})})

	doc, _ := tbl.Get(1)
	doc["tags"].A[0] = String("rust")

	doc2, _ := tbl.Get(1)
	if got := doc2["tags"].A[0].StringValue(); got != "go" {
		t.Errorf("stored doc mutated through Get copy: %q", got)
	}
}

func TestTableMerge(t *testing.T) {
	tbl := NewTable()
	tbl.Set(1, Document{"author": String("A"), "title": String("X")})

	if !tbl.Merge(1, Document{"author": String("B")}) {
		t.Fatal("Merge = false")
	}
	doc, _ := tbl.Get(1)
	if got := doc["author"].StringValue(); got != "B" {
		t.Errorf("author = %q, want B", got)
	}
	if got := doc["title"].StringValue(); got != "X" {
		t.Errorf("title = %q, want X", got)
	}

	if tbl.Merge(99, Document{"a": Int(1)}) {
		t.Error("Merge on absent id = true")
	}
}

func TestTableCompileFilter(t *testing.T) {
	tbl := NewTable()
	tbl.Set(1, Document{"type": String("job"), "level": Int(1)})
	tbl.Set(2, Document{"type": String("job"), "level": Int(2)})
	tbl.Set(3, Document{"type": String("staking"), "level": Int(2)})

	bm, ok := tbl.CompileFilter(NewFilterSet(
		Filter{Key: "type", Operator: OpEqual, Value: String("job")},
	))
	if !ok {
		t.Fatal("equality filter did not compile")
	}
	if bm.GetCardinality() != 2 || !bm.Contains(1) || !bm.Contains(2) {
		t.Errorf("bitmap = %v", bm.ToArray())
	}

	bm, ok = tbl.CompileFilter(NewFilterSet(
		Filter{Key: "type", Operator: OpEqual, Value: String("job")},
		Filter{Key: "level", Operator: OpEqual, Value: Int(2)},
	))
	if !ok {
		t.Fatal("AND filter did not compile")
	}
	if bm.GetCardinality() != 1 || !bm.Contains(2) {
		t.Errorf("bitmap = %v", bm.ToArray())
	}

	bm, ok = tbl.CompileFilter(NewFilterSet(
		Filter{Key: "level", Operator: OpIn, Value: Array([]Value{Int(1), Int(2)})},
	))
	if !ok {
		t.Fatal("in filter did not compile")
	}
	if bm.GetCardinality() != 3 {
		t.Errorf("in bitmap = %v", bm.ToArray())
	}

	// Range operators cannot be answered from postings.
	if _, ok := tbl.CompileFilter(NewFilterSet(
		Filter{Key: "level", Operator: OpGreaterThan, Value: Int(1)},
	)); ok {
		t.Error("range filter compiled")
	}

	// Unknown value yields an empty, compiled result.
	bm, ok = tbl.CompileFilter(NewFilterSet(
		Filter{Key: "type", Operator: OpEqual, Value: String("nft")},
	))
	if !ok || !bm.IsEmpty() {
		t.Error("unknown value should compile to empty bitmap")
	}
}

func TestTableCreateFilterFunc(t *testing.T) {
	tbl := NewTable()
	tbl.Set(1, Document{"score": Int(10)})
	tbl.Set(2, Document{"score": Int(90)})

	if fn := tbl.CreateFilterFunc(nil); fn != nil {
		t.Error("nil filter set should produce nil func")
	}

	fn := tbl.CreateFilterFunc(NewFilterSet(
		Filter{Key: "score", Operator: OpGreaterThan, Value: Int(50)},
	))
	if fn == nil {
		t.Fatal("filter func is nil")
	}
	if fn(1) || !fn(2) {
		t.Error("scan-backed filter func gave wrong answers")
	}
}

func TestTableLoadRebuildsIndex(t *testing.T) {
	tbl := NewTable()
	tbl.Set(1, Document{"type": String("job")})
	docs := tbl.Documents()

	restored := NewTable()
	restored.Load(docs)

	bm, ok := restored.CompileFilter(NewFilterSet(
		Filter{Key: "type", Operator: OpEqual, Value: String("job")},
	))
	if !ok || !bm.Contains(1) {
		t.Error("inverted index not rebuilt after Load")
	}

	stats := restored.Stats()
	if stats.DocumentCount != 1 || stats.IndexedKeys != 1 || stats.PostingLists != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTableIndexCleanup(t *testing.T) {
	tbl := NewTable()
	tbl.Set(1, Document{"type": String("job")})
	tbl.Delete(1)

	stats := tbl.Stats()
	if stats.IndexedKeys != 0 || stats.PostingLists != 0 {
		t.Errorf("postings not cleaned up: %+v", stats)
	}
}

package metadata

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Table is the id-aligned metadata store: documents keyed by the vector id,
// plus an inverted index (field key → value key → id bitmap) that accelerates
// equality filters without scanning every document.
//
// Thread-safe. The zero value is not usable; call NewTable.
type Table struct {
	mu sync.RWMutex

	documents map[uint64]Document

	// inverted maps field key -> value representation -> posting bitmap.
	inverted map[string]map[string]*roaring64.Bitmap
}

// NewTable creates an empty metadata table.
func NewTable() *Table {
	return &Table{
		documents: make(map[uint64]Document),
		inverted:  make(map[string]map[string]*roaring64.Bitmap),
	}
}

// Set stores a document for the given id, replacing any previous document.
// The document is deep copied.
func (t *Table) Set(id uint64, doc Document) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.documents[id]; ok {
		t.removeFromIndexLocked(id, old)
	}

	clone := doc.Clone()
	if clone == nil {
		clone = Document{}
	}
	t.documents[id] = clone
	t.addToIndexLocked(id, clone)
}

// Get returns a deep copy of the document for the given id.
func (t *Table) Get(id uint64) (Document, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	doc, ok := t.documents[id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// Contains reports whether a document exists for the given id.
func (t *Table) Contains(id uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.documents[id]
	return ok
}

// Merge applies a shallow key-wise merge onto the document for id.
// Returns false if no document exists for id.
func (t *Table) Merge(id uint64, patch Document) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.documents[id]
	if !ok {
		return false
	}

	t.removeFromIndexLocked(id, doc)
	doc.Merge(patch)
	t.addToIndexLocked(id, doc)
	return true
}

// Delete removes the document for the given id.
// Returns false if no document existed.
func (t *Table) Delete(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.documents[id]
	if !ok {
		return false
	}

	t.removeFromIndexLocked(id, doc)
	delete(t.documents, id)
	return true
}

// Len returns the number of documents in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.documents)
}

// Documents returns a deep copy of all documents, for serialization.
func (t *Table) Documents() map[uint64]Document {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[uint64]Document, len(t.documents))
	for id, doc := range t.documents {
		out[id] = doc.Clone()
	}
	return out
}

// Load replaces the table contents with the given documents, rebuilding the
// inverted index. Used when restoring from a snapshot.
func (t *Table) Load(docs map[uint64]Document) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.documents = make(map[uint64]Document, len(docs))
	t.inverted = make(map[string]map[string]*roaring64.Bitmap)
	for id, doc := range docs {
		clone := doc.Clone()
		if clone == nil {
			clone = Document{}
		}
		t.documents[id] = clone
		t.addToIndexLocked(id, clone)
	}
}

func (t *Table) addToIndexLocked(id uint64, doc Document) {
	for key, value := range doc {
		valueKey := value.Key()

		if t.inverted[key] == nil {
			t.inverted[key] = make(map[string]*roaring64.Bitmap)
		}
		bm := t.inverted[key][valueKey]
		if bm == nil {
			bm = roaring64.New()
			t.inverted[key][valueKey] = bm
		}
		bm.Add(id)
	}
}

func (t *Table) removeFromIndexLocked(id uint64, doc Document) {
	for key, value := range doc {
		valueKey := value.Key()

		postings, ok := t.inverted[key]
		if !ok {
			continue
		}
		bm, ok := postings[valueKey]
		if !ok {
			continue
		}
		bm.Remove(id)
		if bm.IsEmpty() {
			delete(postings, valueKey)
			if len(postings) == 0 {
				delete(t.inverted, key)
			}
		}
	}
}

// CompileFilter evaluates a filter set against the inverted index.
//
// Only OpEqual and OpIn filters can be answered from postings; any other
// operator makes compilation fail (ok=false) and callers fall back to
// ScanFilter. The returned bitmap is a fresh copy owned by the caller.
func (t *Table) CompileFilter(fs *FilterSet) (*roaring64.Bitmap, bool) {
	if fs == nil || len(fs.Filters) == 0 {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var result *roaring64.Bitmap
	for i := range fs.Filters {
		f := &fs.Filters[i]

		var bm *roaring64.Bitmap
		switch f.Operator {
		case OpEqual:
			bm = t.lookupLocked(f.Key, f.Value)
		case OpIn:
			items, ok := f.Value.AsArray()
			if !ok {
				return nil, false
			}
			bm = roaring64.New()
			for _, item := range items {
				if pm := t.lookupLocked(f.Key, item); pm != nil {
					bm.Or(pm)
				}
			}
		default:
			return nil, false
		}

		if bm == nil {
			// No postings for this value; the AND result is empty.
			return roaring64.New(), true
		}

		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			return result, true
		}
	}
	return result, true
}

func (t *Table) lookupLocked(key string, value Value) *roaring64.Bitmap {
	postings, ok := t.inverted[key]
	if !ok {
		return nil
	}
	return postings[value.Key()]
}

// ScanFilter evaluates a filter set by scanning every document.
// Slower than CompileFilter but supports every operator.
func (t *Table) ScanFilter(fs *FilterSet) *roaring64.Bitmap {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := roaring64.New()
	if fs == nil {
		for id := range t.documents {
			result.Add(id)
		}
		return result
	}
	for id, doc := range t.documents {
		if fs.Matches(doc) {
			result.Add(id)
		}
	}
	return result
}

// CreateFilterFunc builds an id predicate for the given filter set, using the
// inverted index when possible and a scan otherwise. A nil filter set yields
// a nil func (no filtering).
func (t *Table) CreateFilterFunc(fs *FilterSet) func(uint64) bool {
	if fs == nil || len(fs.Filters) == 0 {
		return nil
	}

	bm, ok := t.CompileFilter(fs)
	if !ok {
		bm = t.ScanFilter(fs)
	}
	return bm.Contains
}

// TableStats describes the table's size, for diagnostics.
type TableStats struct {
	DocumentCount int
	IndexedKeys   int
	PostingLists  int
}

// Stats returns a snapshot of table statistics.
func (t *Table) Stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := TableStats{
		DocumentCount: len(t.documents),
		IndexedKeys:   len(t.inverted),
	}
	for _, postings := range t.inverted {
		stats.PostingLists += len(postings)
	}
	return stats
}

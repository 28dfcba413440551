// Package metadata implements the typed metadata model: documents attached to
// stored vectors, exact and operator-based filters over them, and the
// id-aligned table with a roaring-bitmap inverted index that backs filtered
// search.
package metadata

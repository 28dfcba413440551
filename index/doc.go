// Package index defines the index contract and its error types.
//
// Two implementations exist:
//
//   - index/hnsw: Hierarchical Navigable Small World graph for
//     approximate nearest neighbor search. Deletes are logical
//     (tombstones), which keeps the graph connected and makes
//     deletion O(1).
//
//   - index/flat: exhaustive exact search. Slower per query but
//     exact, useful for small collections and as a recall baseline.
//
// Both persist through the persistence package file format and enforce
// a fixed capacity: IDs are caller-assigned, monotonically increasing,
// and never reused, so capacity bounds total inserts rather than the
// current live count.
package index

// Package resource implements the Controller for global limits on
// background work.
//
// The Controller governs three resource types:
//
//   - Memory: weighted-semaphore accounting for tracked allocations
//     (vectors, metadata). With no limit configured it only tracks.
//   - Workers: a slot semaphore bounding concurrent background jobs
//     such as auto-checkpoints and backup uploads.
//   - IO: a token bucket shaping background read/write throughput so
//     foreground queries are not starved.
//
// All methods are safe for concurrent use and nil-safe: a nil
// *Controller is a no-op, so resource limiting stays optional without
// nil checks at every call site.
package resource

// Package persistence provides the on-disk format and durability helpers
// for vector store files.
//
// A store directory holds two files, rewritten atomically on every
// mutation (or on checkpoint when a WAL is enabled):
//
//	index.bin     binary index payload (flat or HNSW)
//	metadata.bin  codec-encoded documents plus the ID counter
//
// Both files start with a fixed 64-byte FileHeader and end with a CRC32
// trailer covering everything before it. The Manager coordinates atomic
// snapshots, WAL appends, and recovery.
package persistence

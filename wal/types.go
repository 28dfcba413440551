package wal

import (
	"fmt"
	"time"
)

// DurabilityMode defines the fsync behavior for WAL writes.
type DurabilityMode int

const (
	// DurabilityAsync represents asynchronous durability.
	// No fsync, fastest writes but risk of data loss on crash.
	DurabilityAsync DurabilityMode = iota

	// DurabilityGroupCommit represents group commit durability.
	// Batched fsync at regular intervals. Balances throughput and
	// durability by amortizing fsync cost across multiple operations.
	// Recommended for most workloads.
	DurabilityGroupCommit

	// DurabilitySync represents synchronous durability.
	// fsync after every operation. Slowest but strongest guarantee.
	DurabilitySync
)

// Compression selects the per-record block compression for WAL files.
type Compression uint8

const (
	// CompressionNone disables compression.
	CompressionNone Compression = iota
	// CompressionZstd compresses record payloads with zstd.
	CompressionZstd
	// CompressionLZ4 compresses record payloads with lz4.
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as used in config files.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown WAL compression: %q", s)
	}
}

// OperationType represents the type of operation in the WAL.
type OperationType uint8

const (
	// OpAdd records a vector insert.
	OpAdd OperationType = iota + 1
	// OpUpdate records a vector replacement.
	OpUpdate
	// OpDelete records a vector removal.
	OpDelete
	// OpCheckpoint marks a durable snapshot; replay stops here.
	OpCheckpoint
)

// Entry represents a single entry in the WAL.
type Entry struct {
	Op     OperationType
	ID     uint64
	Vector []float32
	Data   []byte // Serialized metadata document
	SeqNum uint64 // Sequence number for ordering, assigned by Append
}

// Options contains configuration for the WAL.
type Options struct {
	// Dir is the directory where the WAL file is stored.
	Dir string

	// Compression selects the per-record compression (none, zstd, lz4).
	// Each record payload is compressed as an independent block, so a
	// torn write at the tail still invalidates only a single record.
	Compression Compression

	// CompressionLevel sets the zstd compression level (1-22).
	// Default (3) provides a good balance. Ignored for lz4.
	CompressionLevel int

	// AutoCheckpointOps triggers the checkpoint callback after N appended
	// operations. Set to 0 to disable operation-based checkpoints.
	AutoCheckpointOps int

	// AutoCheckpointMB triggers the checkpoint callback when the WAL file
	// exceeds N megabytes. Set to 0 to disable size-based checkpoints.
	AutoCheckpointMB int

	// DurabilityMode controls fsync behavior (Async, GroupCommit, Sync).
	DurabilityMode DurabilityMode

	// GroupCommitInterval is the maximum time to wait before fsync in
	// GroupCommit mode.
	GroupCommitInterval time.Duration

	// GroupCommitMaxOps is the maximum operations to batch before fsync
	// in GroupCommit mode.
	GroupCommitMaxOps int
}

// DefaultOptions returns default WAL options.
var DefaultOptions = Options{
	Dir:                 ".",
	Compression:         CompressionNone,
	CompressionLevel:    3,
	AutoCheckpointOps:   10000,
	AutoCheckpointMB:    100,
	DurabilityMode:      DurabilityGroupCommit,
	GroupCommitInterval: 10 * time.Millisecond,
	GroupCommitMaxOps:   100,
}

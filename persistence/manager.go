package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/wal"
)

var (
	// ErrManagerClosed is returned when operations are attempted on a closed manager.
	ErrManagerClosed = errors.New("persistence manager is closed")

	// ErrNoWAL is returned when WAL operations are attempted without WAL configured.
	ErrNoWAL = errors.New("WAL not configured")

	// ErrNoDir is returned when snapshot operations require a directory but none is set.
	ErrNoDir = errors.New("store directory not configured")
)

// SnapshotLoader can load state from a store directory.
type SnapshotLoader interface {
	// LoadSnapshot loads state from the files in dir.
	// The context allows cancellation of long-running load operations.
	LoadSnapshot(ctx context.Context, dir string) error
}

// WALReplayer can replay WAL entries to restore state.
type WALReplayer interface {
	// ReplayEntry applies a single WAL entry to restore state.
	// The context allows cancellation during long replay sequences.
	ReplayEntry(ctx context.Context, entry wal.Entry) error
}

// ManagerOptions configures the persistence manager.
type ManagerOptions struct {
	// Dir is the store directory holding index.bin and metadata.bin.
	Dir string

	// WALDir is the directory for WAL segments (optional, enables WAL if set).
	WALDir string

	// WALOptions are additional options for WAL configuration.
	WALOptions []func(*wal.Options)

	// Codec is used for serializing metadata snapshots.
	Codec codec.Codec

	// AutoCheckpoint truncates the WAL after every successful snapshot.
	AutoCheckpoint bool
}

// Manager coordinates all persistence operations (snapshots, WAL, recovery).
//
// It provides a unified interface for:
//   - Atomic multi-file snapshots with WAL coordination
//   - Unified recovery (snapshot load + WAL replay)
//   - WAL append operations with durability guarantees
//
// The Manager is thread-safe and can be used concurrently.
type Manager struct {
	dir            string
	wal            *wal.WAL
	codec          codec.Codec
	autoCheckpoint bool

	// Lifecycle
	mu     sync.RWMutex
	closed bool
}

// NewManager creates a new persistence manager with the given options.
//
// If WALDir is set, a WAL is opened (or created) there. Snapshots are
// written to Dir.
func NewManager(opts ManagerOptions) (*Manager, error) {
	pm := &Manager{
		dir:            opts.Dir,
		codec:          opts.Codec,
		autoCheckpoint: opts.AutoCheckpoint,
	}

	if pm.codec == nil {
		pm.codec = codec.Default
	}

	if opts.WALDir != "" {
		walOptFns := append([]func(*wal.Options){
			func(o *wal.Options) {
				o.Dir = opts.WALDir
			},
		}, opts.WALOptions...)

		w, err := wal.New(walOptFns...)
		if err != nil {
			return nil, fmt.Errorf("persistence: failed to create WAL: %w", err)
		}
		pm.wal = w
	}

	return pm, nil
}

// WAL returns the underlying WAL instance, or nil if WAL is not configured.
func (pm *Manager) WAL() *wal.WAL {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.wal
}

// Dir returns the configured store directory.
func (pm *Manager) Dir() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.dir
}

// Codec returns the configured codec.
func (pm *Manager) Codec() codec.Codec {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.codec
}

// SnapshotExists reports whether the store directory already holds an
// index file. Used to decide between loading and creating a fresh store.
func (pm *Manager) SnapshotExists() (bool, error) {
	pm.mu.RLock()
	dir := pm.dir
	pm.mu.RUnlock()

	if dir == "" {
		return false, ErrNoDir
	}
	if _, err := os.Stat(filepath.Join(dir, IndexFileName)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Snapshot saves the given files atomically and optionally checkpoints
// the WAL.
//
// All files are written to temp files first and renamed together, so a
// crash never leaves the directory with a partial snapshot. If WAL is
// enabled and AutoCheckpoint is set, the WAL is truncated after a
// successful snapshot.
func (pm *Manager) Snapshot(ctx context.Context, files map[string]func(io.Writer) error) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrManagerClosed
	}
	dir := pm.dir
	w := pm.wal
	autoCheckpoint := pm.autoCheckpoint
	pm.mu.RUnlock()

	if dir == "" {
		return ErrNoDir
	}

	// Check context before starting
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := AtomicSaveToDir(dir, files); err != nil {
		return fmt.Errorf("persistence: snapshot failed: %w", err)
	}

	// Checkpoint WAL (truncate old entries) if enabled
	if w != nil && autoCheckpoint {
		if err := w.Checkpoint(); err != nil {
			return fmt.Errorf("persistence: WAL checkpoint failed: %w", err)
		}
	}

	return nil
}

// SnapshotToDir saves files to a specific directory instead of the
// configured store directory. Used for named backups.
func (pm *Manager) SnapshotToDir(ctx context.Context, dir string, files map[string]func(io.Writer) error) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrManagerClosed
	}
	pm.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := AtomicSaveToDir(dir, files); err != nil {
		return fmt.Errorf("persistence: snapshot to %s failed: %w", dir, err)
	}

	return nil
}

// Recover restores state from a snapshot plus WAL replay.
//
// Recovery order:
//  1. Load the snapshot files (if the store directory holds any)
//  2. Replay WAL entries recorded after the snapshot (if WAL is enabled)
func (pm *Manager) Recover(ctx context.Context, loader SnapshotLoader, replayer WALReplayer) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return ErrManagerClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Step 1: Load snapshot (if exists)
	if pm.dir != "" {
		if _, err := os.Stat(filepath.Join(pm.dir, IndexFileName)); err == nil {
			if err := loader.LoadSnapshot(ctx, pm.dir); err != nil {
				return fmt.Errorf("persistence: snapshot load failed: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("persistence: failed to check snapshot: %w", err)
		}
	}

	// Check context between phases
	if err := ctx.Err(); err != nil {
		return err
	}

	// Step 2: Replay WAL entries after snapshot
	if pm.wal != nil {
		if err := pm.wal.Replay(func(entry wal.Entry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return replayer.ReplayEntry(ctx, entry)
		}); err != nil {
			return fmt.Errorf("persistence: WAL replay failed: %w", err)
		}
	}

	return nil
}

// Append writes an entry to the WAL with the configured durability mode.
func (pm *Manager) Append(entry wal.Entry) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrManagerClosed
	}
	w := pm.wal
	pm.mu.RUnlock()

	if w == nil {
		return ErrNoWAL
	}

	return w.Append(entry)
}

// AppendBatch writes several entries to the WAL with a single sync at
// the end, amortizing the fsync cost over the batch.
func (pm *Manager) AppendBatch(entries []wal.Entry) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrManagerClosed
	}
	w := pm.wal
	pm.mu.RUnlock()

	if w == nil {
		return ErrNoWAL
	}

	return w.AppendBatch(entries)
}

// Checkpoint truncates the WAL. Call after the in-memory state has been
// snapshotted.
func (pm *Manager) Checkpoint() error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrManagerClosed
	}
	w := pm.wal
	pm.mu.RUnlock()

	if w == nil {
		return ErrNoWAL
	}

	return w.Checkpoint()
}

// SetCheckpointCallback sets a callback invoked when the WAL determines
// that a checkpoint should be performed (based on auto-checkpoint
// thresholds).
func (pm *Manager) SetCheckpointCallback(callback func() error) {
	pm.mu.RLock()
	w := pm.wal
	pm.mu.RUnlock()

	if w != nil {
		w.SetCheckpointCallback(callback)
	}
}

// Close shuts down the persistence manager and releases resources.
// This closes the WAL if one was created by the manager.
func (pm *Manager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.closed {
		return nil
	}
	pm.closed = true

	if pm.wal != nil {
		return pm.wal.Close()
	}
	return nil
}

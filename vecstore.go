// Package vecstore implements an embedded vector similarity store.
//
// A Store maps monotonically assigned uint64 IDs to fixed-dimension
// vectors plus a schema-less metadata document. Vectors are indexed for
// approximate nearest-neighbor search (HNSW) or exact exhaustive search
// (flat), always under the cosine metric: stored vectors are
// unit-normalized on insert and search scores are cosine similarity.
//
// Every mutation is made durable before it returns, either by atomically
// rewriting the snapshot files (the default) or by appending to a
// write-ahead log that is folded into the snapshot at checkpoints.
// Stores can be backed up to and restored from blob storage.
//
// A Store is safe for concurrent use.
package vecstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/index/flat"
	"github.com/hupe1980/vecstore/index/hnsw"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/resource"
	"github.com/hupe1980/vecstore/wal"
)

// IndexKind selects the index implementation backing a store.
type IndexKind = index.Kind

const (
	// IndexHNSW selects the approximate HNSW graph index. Default.
	IndexHNSW = index.KindHNSW

	// IndexFlat selects the exact exhaustive-scan index.
	IndexFlat = index.KindFlat
)

// maxMetadataBytes bounds the metadata payload read on load so a
// corrupted length prefix cannot trigger a huge allocation.
const maxMetadataBytes = 1 << 30

// Config holds the required store parameters. Everything else is set
// through Option functions.
type Config struct {
	// Dimension is the vector dimensionality. Required.
	Dimension int

	// Path is the store directory. Required. Created if missing.
	Path string

	// Kind selects the index implementation. Defaults to IndexHNSW.
	Kind IndexKind
}

// Store is an embedded vector similarity store.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	idx     index.Index
	table   *metadata.Table
	nextID  uint64
	pm      *persistence.Manager
	walMode bool
	codec   codec.Codec
	logger  *Logger
	metrics MetricsCollector
	rc      *resource.Controller
	closed  bool

	persistFailures atomic.Uint64
	checkpoints     atomic.Uint64
	checkpointing   atomic.Bool
}

// Open opens the store at cfg.Path, creating it if the directory holds no
// snapshot. An existing snapshot is loaded and, in WAL mode, entries
// recorded after it are replayed.
//
// Opening an existing store with a different dimension or index kind
// fails with *ErrInvalidConfig.
func Open(ctx context.Context, cfg Config, optFns ...Option) (*Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	o := applyOptions(optFns...)

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, &ErrPersist{Op: "open", Path: cfg.Path, cause: err}
	}

	walDir := ""
	if o.walEnabled {
		walDir = o.walDir
		if walDir == "" {
			walDir = cfg.Path
		}
	}

	pm, err := persistence.NewManager(persistence.ManagerOptions{
		Dir:            cfg.Path,
		WALDir:         walDir,
		WALOptions:     o.walOptions,
		Codec:          o.codec,
		AutoCheckpoint: true,
	})
	if err != nil {
		return nil, &ErrPersist{Op: "open", Path: cfg.Path, cause: err}
	}

	idx, err := newIndex(cfg, o)
	if err != nil {
		_ = pm.Close()
		return nil, err
	}

	s := &Store{
		cfg:     cfg,
		idx:     idx,
		table:   metadata.NewTable(),
		pm:      pm,
		walMode: o.walEnabled,
		codec:   o.codec,
		logger:  o.logger,
		metrics: o.metrics,
		rc:      o.controller,
	}

	rec := &storeRecovery{s: s}
	if err := pm.Recover(ctx, rec, rec); err != nil {
		_ = pm.Close()
		s.logger.LogRecovery(ctx, 0, 0, err)
		return nil, err
	}

	if s.walMode {
		pm.SetCheckpointCallback(s.onAutoCheckpoint)
	}

	if rec.loaded || rec.replayed > 0 {
		s.logger.LogRecovery(ctx, s.idx.Len(), rec.replayed, nil)
	}

	return s, nil
}

func validateConfig(cfg Config) error {
	if cfg.Dimension <= 0 {
		return &ErrInvalidConfig{Field: "Dimension", Reason: "must be positive"}
	}
	if cfg.Path == "" {
		return &ErrInvalidConfig{Field: "Path", Reason: "must not be empty"}
	}
	switch cfg.Kind {
	case IndexHNSW, IndexFlat:
	default:
		return &ErrInvalidConfig{Field: "Kind", Reason: fmt.Sprintf("unknown index kind %d", cfg.Kind)}
	}
	return nil
}

// newIndex creates a fresh index. The metric and capacity are pinned by
// the store; user option functions run first so they cannot override.
func newIndex(cfg Config, o options) (index.Index, error) {
	switch cfg.Kind {
	case IndexFlat:
		return flat.New(cfg.Dimension, func(fo *flat.Options) {
			fo.Metric = distance.MetricCosine
			fo.Capacity = o.capacity
		})
	default:
		optFns := append(slices.Clone(o.hnswOptions), func(ho *hnsw.Options) {
			ho.Metric = distance.MetricCosine
			ho.Capacity = o.capacity
		})
		return hnsw.New(cfg.Dimension, optFns...)
	}
}

// Add inserts a vector with optional metadata and returns its assigned
// ID. IDs come from a monotonically increasing counter and are never
// reused, including after deletes.
//
// When persistence fails the entry stays applied in memory, the returned
// ID is valid and the error wraps *ErrPersist.
func (s *Store) Add(ctx context.Context, vector []float32, meta metadata.Metadata) (uint64, error) {
	start := time.Now()

	id, err := s.add(ctx, vector, meta)

	s.metrics.RecordAdd(time.Since(start), err)
	s.logger.LogAdd(ctx, id, len(vector), err)

	return id, err
}

func (s *Store) add(ctx context.Context, vector []float32, meta metadata.Metadata) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var entries []wal.Entry
	if s.walMode {
		data, err := s.encodeDoc(meta)
		if err != nil {
			return 0, err
		}
		entries = []wal.Entry{{Op: wal.OpAdd, ID: s.nextID, Vector: vector, Data: data}}
	}

	id := s.nextID
	if err := s.idx.Insert(id, vector); err != nil {
		return 0, translateError(err)
	}
	s.table.Set(id, meta)
	s.nextID++

	return id, s.persistLocked(ctx, "add", entries)
}

// Update modifies an existing entry. A non-nil Vector replaces the
// stored vector; a non-nil Metadata is shallow-merged key-wise into the
// stored document. Both nil is a no-op.
type Update struct {
	Vector   []float32
	Metadata metadata.Metadata
}

// Update applies u to the entry with the given id. It returns ErrNotFound
// when the id is absent or deleted.
func (s *Store) Update(ctx context.Context, id uint64, u Update) error {
	start := time.Now()

	err := s.update(ctx, id, u)

	s.metrics.RecordUpdate(time.Since(start), err)
	s.logger.LogUpdate(ctx, id, err)

	return err
}

func (s *Store) update(ctx context.Context, id uint64, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.idx.Contains(id) {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if u.Vector == nil && u.Metadata == nil {
		return nil
	}

	var entries []wal.Entry
	if s.walMode {
		data, err := s.encodeDoc(u.Metadata)
		if err != nil {
			return err
		}
		entries = []wal.Entry{{Op: wal.OpUpdate, ID: id, Vector: u.Vector, Data: data}}
	}

	if u.Vector != nil {
		if err := s.idx.Update(id, u.Vector); err != nil {
			return translateError(err)
		}
	}
	if u.Metadata != nil {
		s.table.Merge(id, u.Metadata)
	}

	return s.persistLocked(ctx, "update", entries)
}

// Delete removes the entry with the given id. Deleting an absent or
// already-deleted id is a no-op.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	start := time.Now()

	err := s.delete(ctx, id)

	s.metrics.RecordDelete(time.Since(start), err)
	s.logger.LogDelete(ctx, id, err)

	return err
}

func (s *Store) delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.idx.Contains(id) {
		return nil
	}

	if err := s.idx.Delete(id); err != nil {
		return translateError(err)
	}
	s.table.Delete(id)

	return s.persistLocked(ctx, "delete", []wal.Entry{{Op: wal.OpDelete, ID: id}})
}

// Count returns the number of live entries.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idx.Len()
}

// Dimension returns the configured vector dimensionality.
func (s *Store) Dimension() int {
	return s.cfg.Dimension
}

// Stats is a point-in-time snapshot of store state.
type Stats struct {
	// Count is the number of live entries.
	Count int

	// Deleted is the number of tombstoned entries still held by the index.
	Deleted int

	// Capacity is the lifetime insert limit.
	Capacity int

	Dimension int
	Kind      IndexKind

	// NextID is the ID the next Add will assign.
	NextID uint64

	// PersistFailures counts mutations that were applied in memory but
	// failed to persist.
	PersistFailures uint64

	// Checkpoints counts completed snapshots triggered by Checkpoint or
	// the WAL auto-checkpoint thresholds.
	Checkpoints uint64

	WALEnabled bool
}

// Stats returns current store statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live := s.idx.Len()

	return Stats{
		Count:           live,
		Deleted:         int(s.nextID) - live,
		Capacity:        s.idx.Capacity(),
		Dimension:       s.cfg.Dimension,
		Kind:            s.idx.Kind(),
		NextID:          s.nextID,
		PersistFailures: s.persistFailures.Load(),
		Checkpoints:     s.checkpoints.Load(),
		WALEnabled:      s.walMode,
	}
}

// Checkpoint writes a full snapshot of the current state. In WAL mode
// the log is truncated once the snapshot lands.
func (s *Store) Checkpoint(ctx context.Context) error {
	start := time.Now()

	err := s.checkpoint(ctx)

	s.metrics.RecordPersist(time.Since(start), err)
	s.logger.LogCheckpoint(ctx, time.Since(start), err)

	return err
}

func (s *Store) checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.pm.Snapshot(ctx, s.snapshotFiles()); err != nil {
		s.persistFailures.Add(1)
		return &ErrPersist{Op: "checkpoint", Path: s.cfg.Path, cause: err}
	}
	s.checkpoints.Add(1)

	return nil
}

// onAutoCheckpoint runs when the WAL crosses its auto-checkpoint
// thresholds. The WAL invokes it synchronously on the appending
// goroutine, which still holds the store's write lock, so the snapshot
// itself runs on a background goroutine.
func (s *Store) onAutoCheckpoint() error {
	if !s.checkpointing.CompareAndSwap(false, true) {
		return nil
	}
	if !s.rc.TryAcquireBackground() {
		s.checkpointing.Store(false)
		return nil
	}

	go func() {
		defer s.rc.ReleaseBackground()
		defer s.checkpointing.Store(false)

		ctx := context.Background()
		if err := s.Checkpoint(ctx); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.ErrorContext(ctx, "auto checkpoint failed", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Close releases the store's resources. In WAL mode a final snapshot is
// written first so the next open needs no replay. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error

	if s.walMode {
		if err := s.pm.Snapshot(context.Background(), s.snapshotFiles()); err != nil {
			s.persistFailures.Add(1)
			firstErr = &ErrPersist{Op: "close", Path: s.cfg.Path, cause: err}
		}
	}

	if err := s.pm.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// persistLocked makes the current mutation durable: a WAL append in WAL
// mode, a full snapshot otherwise. Callers hold the write lock.
func (s *Store) persistLocked(ctx context.Context, op string, entries []wal.Entry) error {
	start := time.Now()

	var err error
	if s.walMode {
		if len(entries) == 1 {
			err = s.pm.Append(entries[0])
		} else {
			err = s.pm.AppendBatch(entries)
		}
	} else {
		err = s.pm.Snapshot(ctx, s.snapshotFiles())
		s.logger.LogSnapshot(ctx, s.cfg.Path, err)
	}

	s.metrics.RecordPersist(time.Since(start), err)

	if err != nil {
		s.persistFailures.Add(1)
		return &ErrPersist{Op: op, Path: s.cfg.Path, cause: err}
	}

	return nil
}

func (s *Store) snapshotFiles() map[string]func(io.Writer) error {
	return map[string]func(io.Writer) error{
		persistence.IndexFileName:    s.idx.SaveTo,
		persistence.MetadataFileName: s.saveMetadata,
	}
}

func (s *Store) encodeDoc(doc metadata.Document) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := s.codec.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

// metadataSnapshot is the payload of metadata.bin: the ID counter and
// every live document, encoded with the store's codec.
type metadataSnapshot struct {
	NextID    uint64                       `json:"next_id" msgpack:"next_id"`
	Documents map[uint64]metadata.Document `json:"documents" msgpack:"documents"`
}

// saveMetadata writes the metadata file: a store header, one
// codec-encoded block and a trailing checksum.
func (s *Store) saveMetadata(w io.Writer) error {
	docs := s.table.Documents()

	header := &persistence.FileHeader{
		Kind:      persistence.FileKindMetadata,
		Count:     uint64(len(docs)),
		Dimension: uint32(s.cfg.Dimension),
	}
	if err := header.SetCodec(s.codec.Name()); err != nil {
		return err
	}

	cw := persistence.NewChecksumWriter(w)
	if err := persistence.WriteHeader(cw, header); err != nil {
		return err
	}

	payload, err := s.codec.Marshal(metadataSnapshot{NextID: s.nextID, Documents: docs})
	if err != nil {
		return err
	}

	bw := persistence.NewBinaryWriter(cw)
	if err := bw.WriteBytes(payload); err != nil {
		return err
	}

	return cw.WriteSum()
}

func loadMetadataFile(path string) (*metadata.Table, uint64, error) {
	table := metadata.NewTable()
	var nextID uint64

	err := persistence.LoadFromFile(path, func(r io.Reader) error {
		cr := persistence.NewChecksumReader(r)

		header, err := persistence.ReadHeader(cr)
		if err != nil {
			return err
		}
		if header.Kind != persistence.FileKindMetadata {
			return fmt.Errorf("%w: file kind %d", persistence.ErrInvalidKind, header.Kind)
		}
		c, ok := codec.ByName(header.CodecName())
		if !ok {
			return fmt.Errorf("unknown codec %q", header.CodecName())
		}

		br := persistence.NewBinaryReader(cr)
		payload, err := br.ReadBytes(maxMetadataBytes)
		if err != nil {
			return err
		}

		var snap metadataSnapshot
		if err := c.Unmarshal(payload, &snap); err != nil {
			return err
		}
		if err := cr.VerifySum(); err != nil {
			return err
		}

		table.Load(snap.Documents)
		nextID = snap.NextID

		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, err
		}
		return nil, 0, &ErrCorrupted{File: persistence.MetadataFileName, cause: err}
	}

	return table, nextID, nil
}

func loadIndexFile(path string) (index.Index, error) {
	var idx index.Index

	err := persistence.LoadFromFile(path, func(r io.Reader) error {
		var err error
		idx, err = loadIndex(r)
		return err
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, &ErrCorrupted{File: persistence.IndexFileName, cause: err}
	}

	return idx, nil
}

// loadIndex peeks at the file header's kind byte and dispatches to the
// matching index loader, which validates the full header itself.
func loadIndex(r io.Reader) (index.Index, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(9)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	switch head[8] {
	case persistence.FileKindHNSW:
		return hnsw.Load(br)
	case persistence.FileKindFlat:
		return flat.Load(br)
	default:
		return nil, fmt.Errorf("%w: file kind %d", persistence.ErrInvalidKind, head[8])
	}
}

// storeRecovery adapts the store to the persistence manager's recovery
// interfaces. Replay is idempotent: entries already captured by the
// snapshot are skipped, so a crash between a snapshot landing and the
// WAL checkpoint marker cannot double-apply.
type storeRecovery struct {
	s        *Store
	loaded   bool
	replayed int
}

func (r *storeRecovery) LoadSnapshot(ctx context.Context, dir string) error {
	idx, err := loadIndexFile(filepath.Join(dir, persistence.IndexFileName))
	if err != nil {
		return err
	}

	if got, want := idx.Dimension(), r.s.cfg.Dimension; got != want {
		return &ErrInvalidConfig{
			Field:  "Dimension",
			Reason: fmt.Sprintf("store at %s has dimension %d, config says %d", dir, got, want),
		}
	}
	if got := idx.Kind(); got != r.s.cfg.Kind {
		return &ErrInvalidConfig{
			Field:  "Kind",
			Reason: fmt.Sprintf("store at %s is a %s index, config says %s", dir, got, r.s.cfg.Kind),
		}
	}

	table, nextID, err := loadMetadataFile(filepath.Join(dir, persistence.MetadataFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ErrCorrupted{File: persistence.MetadataFileName, cause: err}
		}
		return err
	}

	r.s.idx = idx
	r.s.table = table
	r.s.nextID = nextID
	r.loaded = true

	return nil
}

func (r *storeRecovery) ReplayEntry(ctx context.Context, entry wal.Entry) error {
	s := r.s

	switch entry.Op {
	case wal.OpAdd:
		if s.idx.Contains(entry.ID) {
			if entry.ID >= s.nextID {
				s.nextID = entry.ID + 1
			}
			return nil
		}
		if err := s.idx.Insert(entry.ID, entry.Vector); err != nil {
			return err
		}
		doc, err := r.decodeDoc(entry.Data)
		if err != nil {
			return err
		}
		s.table.Set(entry.ID, doc)
		if entry.ID >= s.nextID {
			s.nextID = entry.ID + 1
		}
		r.replayed++
		return nil

	case wal.OpUpdate:
		if !s.idx.Contains(entry.ID) {
			return nil
		}
		if entry.Vector != nil {
			if err := s.idx.Update(entry.ID, entry.Vector); err != nil {
				return err
			}
		}
		if len(entry.Data) > 0 {
			doc, err := r.decodeDoc(entry.Data)
			if err != nil {
				return err
			}
			s.table.Merge(entry.ID, doc)
		}
		r.replayed++
		return nil

	case wal.OpDelete:
		if !s.idx.Contains(entry.ID) {
			return nil
		}
		if err := s.idx.Delete(entry.ID); err != nil {
			return err
		}
		s.table.Delete(entry.ID)
		r.replayed++
		return nil

	default:
		return fmt.Errorf("unknown wal op %d", entry.Op)
	}
}

func (r *storeRecovery) decodeDoc(data []byte) (metadata.Document, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc metadata.Document
	if err := r.s.codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return doc, nil
}

package vecstore

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/wal"
)

// BatchItem is one entry of an AddBatch call.
type BatchItem struct {
	Vector   []float32
	Metadata metadata.Metadata
}

// AddBatch inserts several entries and returns their assigned IDs in
// input order. Validation runs before any item is applied, so a rejected
// batch leaves the store unchanged. In WAL mode the whole batch is
// appended with a single sync.
//
// When persistence fails all items stay applied in memory, the returned
// IDs are valid and the error wraps *ErrPersist.
func (s *Store) AddBatch(ctx context.Context, items []BatchItem) ([]uint64, error) {
	start := time.Now()

	ids, err := s.addBatch(ctx, items)

	failed := len(items) - len(ids)
	s.metrics.RecordBatchAdd(len(items), failed, time.Since(start))
	s.logger.LogBatchAdd(ctx, len(items), failed, err)

	return ids, err
}

func (s *Store) addBatch(ctx context.Context, items []BatchItem) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	for i, item := range items {
		if len(item.Vector) != s.cfg.Dimension {
			return nil, fmt.Errorf("item %d: %w", i, &ErrDimensionMismatch{
				Expected: s.cfg.Dimension,
				Actual:   len(item.Vector),
			})
		}
		if distance.Dot(item.Vector, item.Vector) == 0 {
			return nil, fmt.Errorf("item %d: %w: zero vector", i, ErrInvalidVector)
		}
	}
	if capacity := s.idx.Capacity(); int(s.nextID)+len(items) > capacity {
		return nil, &ErrCapacityExceeded{Capacity: capacity}
	}

	var entries []wal.Entry
	if s.walMode {
		entries = make([]wal.Entry, 0, len(items))
		for _, item := range items {
			data, err := s.encodeDoc(item.Metadata)
			if err != nil {
				return nil, err
			}
			entries = append(entries, wal.Entry{Op: wal.OpAdd, Vector: item.Vector, Data: data})
		}
	}

	ids := make([]uint64, 0, len(items))
	for i, item := range items {
		id := s.nextID
		if err := s.idx.Insert(id, item.Vector); err != nil {
			return ids, translateError(err)
		}
		s.table.Set(id, item.Metadata)
		s.nextID++
		ids = append(ids, id)

		if s.walMode {
			entries[i].ID = id
		}
	}

	return ids, s.persistLocked(ctx, "add_batch", entries)
}

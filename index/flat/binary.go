package flat

import (
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/persistence"
)

// flatParams is the fixed-size parameter block following the file header.
type flatParams struct {
	Metric       uint8
	Padding      [7]byte
	Capacity     uint64
	SlotCount    uint64 // len(vectors) on save, restored exactly
	LiveCount    uint64 // Vector records written to the file
	DeletedCount uint64 // Tombstoned IDs appended after the records
}

// SaveTo writes the full index state to w.
//
// Layout: FileHeader, flatParams, LiveCount vector records (NodeHeader,
// vector), DeletedCount deleted IDs, CRC32 trailer.
func (f *Flat) SaveTo(w io.Writer) error {
	cw := persistence.NewChecksumWriter(w)

	header := &persistence.FileHeader{
		Kind:      persistence.FileKindFlat,
		Count:     uint64(f.live),
		Dimension: uint32(f.dimension),
	}
	if err := persistence.WriteHeader(cw, header); err != nil {
		return err
	}

	bw := persistence.NewBinaryWriter(cw)

	deletedIDs := make([]uint64, 0, f.deleted.Count())
	for id := range f.vectors {
		if f.deleted.Test(uint(id)) {
			deletedIDs = append(deletedIDs, uint64(id))
		}
	}

	params := flatParams{
		Metric:       uint8(f.opts.Metric),
		Capacity:     uint64(f.opts.Capacity),
		SlotCount:    uint64(len(f.vectors)),
		LiveCount:    uint64(f.live),
		DeletedCount: uint64(len(deletedIDs)),
	}
	if err := bw.WriteValue(&params); err != nil {
		return err
	}

	for id, vec := range f.vectors {
		if vec == nil {
			continue
		}

		nodeHeader := persistence.NodeHeader{
			ID:     uint64(id),
			VecLen: uint16(f.dimension),
		}
		if err := bw.WriteValue(&nodeHeader); err != nil {
			return err
		}
		if err := bw.WriteFloat32Slice(vec); err != nil {
			return err
		}
	}

	if err := bw.WriteUint64Slice(deletedIDs); err != nil {
		return err
	}

	return cw.WriteSum()
}

// Load reads an index written by SaveTo.
func Load(r io.Reader) (*Flat, error) {
	cr := persistence.NewChecksumReader(r)

	header, err := persistence.ReadHeader(cr)
	if err != nil {
		return nil, err
	}
	if header.Kind != persistence.FileKindFlat {
		return nil, fmt.Errorf("%w: expected flat file, got kind %d", persistence.ErrInvalidKind, header.Kind)
	}

	br := persistence.NewBinaryReader(cr)

	var params flatParams
	if err := br.ReadValue(&params); err != nil {
		return nil, err
	}

	f, err := New(int(header.Dimension), func(o *Options) {
		o.Metric = distance.Metric(params.Metric)
		o.Capacity = int(params.Capacity)
	})
	if err != nil {
		return nil, err
	}

	f.vectors = make([][]float32, params.SlotCount)
	f.deleted = bitset.New(uint(params.SlotCount))

	for i := uint64(0); i < params.LiveCount; i++ {
		var nodeHeader persistence.NodeHeader
		if err := br.ReadValue(&nodeHeader); err != nil {
			return nil, err
		}
		if nodeHeader.ID >= params.SlotCount {
			return nil, fmt.Errorf("flat: node id %d out of range", nodeHeader.ID)
		}
		if int(nodeHeader.VecLen) != f.dimension {
			return nil, &index.ErrDimensionMismatch{Expected: f.dimension, Actual: int(nodeHeader.VecLen)}
		}

		vector, err := br.ReadFloat32Slice(f.dimension)
		if err != nil {
			return nil, err
		}

		f.vectors[nodeHeader.ID] = vector
		f.live++
	}

	deletedIDs, err := br.ReadUint64Slice(int(params.DeletedCount))
	if err != nil {
		return nil, err
	}
	for _, id := range deletedIDs {
		if id >= params.SlotCount {
			return nil, fmt.Errorf("flat: deleted id %d out of range", id)
		}
		f.deleted.Set(uint(id))
	}

	if uint64(f.live) != header.Count {
		return nil, fmt.Errorf("flat: live count %d does not match header %d", f.live, header.Count)
	}

	if err := cr.VerifySum(); err != nil {
		return nil, err
	}

	return f, nil
}

package hnsw

import (
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/persistence"
)

// graphParams is the fixed-size parameter block following the file header.
type graphParams struct {
	M              uint32
	EFConstruction uint32
	EFSearch       uint32
	Metric         uint8
	Heuristic      uint8
	Padding        [2]byte
	Capacity       uint64
	MaxLayer       uint32
	Padding2       [4]byte
	EntryPoint     uint64
	NodeCount      uint64 // Inserted nodes written to the file
	SlotCount      uint64 // len(nodes) on save, restored exactly
}

// SaveTo writes the full graph state to w.
//
// Layout: FileHeader, graphParams, NodeCount node records (NodeHeader,
// vector, per-layer connection lists), CRC32 trailer.
func (h *HNSW) SaveTo(w io.Writer) error {
	cw := persistence.NewChecksumWriter(w)

	header := &persistence.FileHeader{
		Kind:      persistence.FileKindHNSW,
		Count:     uint64(h.live),
		Dimension: uint32(h.dimension),
	}
	if err := persistence.WriteHeader(cw, header); err != nil {
		return err
	}

	bw := persistence.NewBinaryWriter(cw)

	heuristic := uint8(0)
	if h.opts.Heuristic {
		heuristic = 1
	}
	params := graphParams{
		M:              uint32(h.opts.M),
		EFConstruction: uint32(h.opts.EFConstruction),
		EFSearch:       uint32(h.opts.EFSearch),
		Metric:         uint8(h.opts.Metric),
		Heuristic:      heuristic,
		Capacity:       uint64(h.opts.Capacity),
		MaxLayer:       uint32(h.maxLayer),
		EntryPoint:     h.ep,
		NodeCount:      uint64(h.total),
		SlotCount:      uint64(len(h.nodes)),
	}
	if err := bw.WriteValue(&params); err != nil {
		return err
	}

	for id, n := range h.nodes {
		if n == nil {
			continue
		}

		deleted := uint8(0)
		if h.tombstones.Test(uint(id)) {
			deleted = 1
		}
		nodeHeader := persistence.NodeHeader{
			ID:      uint64(id),
			Layer:   uint16(n.layer),
			VecLen:  uint16(h.dimension),
			Deleted: deleted,
		}
		if err := bw.WriteValue(&nodeHeader); err != nil {
			return err
		}
		if err := bw.WriteFloat32Slice(n.vector); err != nil {
			return err
		}

		for level := 0; level <= n.layer; level++ {
			if err := bw.WriteValue(uint32(len(n.conns[level]))); err != nil {
				return err
			}
			if err := bw.WriteUint64Slice(n.conns[level]); err != nil {
				return err
			}
		}
	}

	return cw.WriteSum()
}

// Load reads a graph written by SaveTo.
func Load(r io.Reader) (*HNSW, error) {
	cr := persistence.NewChecksumReader(r)

	header, err := persistence.ReadHeader(cr)
	if err != nil {
		return nil, err
	}
	if header.Kind != persistence.FileKindHNSW {
		return nil, fmt.Errorf("%w: expected HNSW file, got kind %d", persistence.ErrInvalidKind, header.Kind)
	}

	br := persistence.NewBinaryReader(cr)

	var params graphParams
	if err := br.ReadValue(&params); err != nil {
		return nil, err
	}

	h, err := New(int(header.Dimension), func(o *Options) {
		o.M = int(params.M)
		o.EFConstruction = int(params.EFConstruction)
		o.EFSearch = int(params.EFSearch)
		o.Metric = distance.Metric(params.Metric)
		o.Heuristic = params.Heuristic == 1
		o.Capacity = int(params.Capacity)
	})
	if err != nil {
		return nil, err
	}

	h.maxLayer = int(params.MaxLayer)
	h.ep = params.EntryPoint
	h.nodes = make([]*node, params.SlotCount)
	h.tombstones = bitset.New(uint(params.SlotCount))

	deleted := 0
	for i := uint64(0); i < params.NodeCount; i++ {
		var nodeHeader persistence.NodeHeader
		if err := br.ReadValue(&nodeHeader); err != nil {
			return nil, err
		}
		if nodeHeader.ID >= params.SlotCount {
			return nil, fmt.Errorf("hnsw: node id %d out of range", nodeHeader.ID)
		}
		if int(nodeHeader.VecLen) != h.dimension {
			return nil, &index.ErrDimensionMismatch{Expected: h.dimension, Actual: int(nodeHeader.VecLen)}
		}

		vector, err := br.ReadFloat32Slice(h.dimension)
		if err != nil {
			return nil, err
		}

		layer := int(nodeHeader.Layer)
		conns := make([][]uint64, layer+1)
		for level := 0; level <= layer; level++ {
			var count uint32
			if err := br.ReadValue(&count); err != nil {
				return nil, err
			}
			layerConns, err := br.ReadUint64Slice(int(count))
			if err != nil {
				return nil, err
			}
			conns[level] = layerConns
		}

		h.nodes[nodeHeader.ID] = &node{
			vector: vector,
			layer:  layer,
			conns:  conns,
		}
		if nodeHeader.Deleted == 1 {
			h.tombstones.Set(uint(nodeHeader.ID))
			deleted++
		}
	}

	h.total = int(params.NodeCount)
	h.live = h.total - deleted
	if uint64(h.live) != header.Count {
		return nil, fmt.Errorf("hnsw: live count %d does not match header %d", h.live, header.Count)
	}

	if err := cr.VerifySum(); err != nil {
		return nil, err
	}

	return h, nil
}

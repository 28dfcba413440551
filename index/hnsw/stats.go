package hnsw

import "fmt"

// LevelStats describes one layer of the graph.
type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections int
}

// Stats describes the shape of the graph.
type Stats struct {
	Nodes      int // Inserted slots (live + tombstoned)
	Live       int
	Tombstones int
	MaxLayer   int
	Levels     []LevelStats
}

// Stats returns statistics about the HNSW graph.
func (h *HNSW) Stats() Stats {
	levelNodes := make([]int, h.maxLayer+1)
	levelConns := make([]int, h.maxLayer+1)

	for _, n := range h.nodes {
		if n == nil {
			continue
		}
		if n.layer < len(levelNodes) {
			levelNodes[n.layer]++
		}
		for level := 0; level <= n.layer && level < len(levelConns); level++ {
			levelConns[level] += len(n.conns[level])
		}
	}

	levels := make([]LevelStats, h.maxLayer+1)
	cumulative := 0
	for level := h.maxLayer; level >= 0; level-- {
		// Nodes on a level include all nodes with a higher top layer.
		cumulative += levelNodes[level]
		avg := 0
		if cumulative > 0 {
			avg = levelConns[level] / cumulative
		}
		levels[level] = LevelStats{
			Level:          level,
			Nodes:          cumulative,
			Connections:    levelConns[level],
			AvgConnections: avg,
		}
	}

	return Stats{
		Nodes:      h.total,
		Live:       h.live,
		Tombstones: h.total - h.live,
		MaxLayer:   h.maxLayer,
		Levels:     levels,
	}
}

// String returns a string representation of the HNSW index.
func (h *HNSW) String() string {
	return fmt.Sprintf("HNSW(M=%d, EFSearch=%d, Count=%d, Deleted=%d, MaxLayer=%d)",
		h.mmax, h.opts.EFSearch, h.live, h.total-h.live, h.maxLayer)
}

package flat

import "fmt"

// Stats describes the current state of a flat index.
type Stats struct {
	Live    int // Live vectors
	Deleted int // Deleted IDs, never reusable
}

// Stats returns a snapshot of index statistics.
func (f *Flat) Stats() Stats {
	return Stats{
		Live:    f.live,
		Deleted: int(f.deleted.Count()),
	}
}

// String returns a short human-readable summary.
func (f *Flat) String() string {
	return fmt.Sprintf("Flat(Metric=%s, Count=%d, Deleted=%d)", f.opts.Metric, f.live, f.deleted.Count())
}

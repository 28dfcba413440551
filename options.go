package vecstore

import (
	"log/slog"

	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/index/hnsw"
	"github.com/hupe1980/vecstore/resource"
	"github.com/hupe1980/vecstore/wal"
)

// DefaultCapacity is the default lifetime insert capacity of a store.
const DefaultCapacity = 100_000

type options struct {
	codec       codec.Codec
	capacity    int
	logger      *Logger
	metrics     MetricsCollector
	walEnabled  bool
	walDir      string
	walOptions  []func(*wal.Options)
	hnswOptions []func(*hnsw.Options)
	controller  *resource.Controller
}

// Option configures a store at open time.
type Option func(*options)

// WithCodec sets the codec used for metadata snapshots and WAL payloads.
// Passing nil keeps the default codec.
//
// Snapshots record the codec name and decode with whatever they were
// written with. WAL records do not, so a store opened in WAL mode must
// keep the same codec across reopens until its log has been
// checkpointed away.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithCapacity sets the lifetime insert capacity for a newly created
// store. Reopening an existing store keeps the capacity it was created
// with.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLogLevel enables human-readable logging to stderr at the given level.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector sets the metrics collector. The default discards
// all metrics.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

// WithWAL switches durability from snapshot-per-mutation to write-ahead
// logging. dir is the WAL directory; an empty dir places the log inside
// the store directory.
func WithWAL(dir string, optFns ...func(*wal.Options)) Option {
	return func(o *options) {
		o.walEnabled = true
		o.walDir = dir
		o.walOptions = append(o.walOptions, optFns...)
	}
}

// WithHNSW customizes HNSW graph parameters for a newly created store.
// The metric and capacity are owned by the store and override whatever
// the option functions set.
func WithHNSW(optFns ...func(*hnsw.Options)) Option {
	return func(o *options) {
		o.hnswOptions = append(o.hnswOptions, optFns...)
	}
}

// WithController attaches a resource controller that rate-limits backup
// and restore I/O and bounds background checkpoint concurrency.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

func applyOptions(optFns ...Option) options {
	o := options{
		codec:    codec.Default,
		capacity: DefaultCapacity,
		logger:   NoopLogger(),
		metrics:  NoopMetricsCollector{},
	}

	for _, fn := range optFns {
		fn(&o)
	}

	return o
}

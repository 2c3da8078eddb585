package docbase

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/docbase/blobstore"
	"github.com/hupe1980/docbase/codec"
	"github.com/hupe1980/docbase/model"
)

type options struct {
	codec            codec.Codec
	autoID           model.AutoID
	metricsCollector MetricsCollector
	logger           *Logger

	checkpointPath     string
	checkpointStore    blobstore.Store
	compression        Compression
	retainSnapshots    int
	checkpointInterval time.Duration
}

// Option configures Open behavior.
type Option func(*options)

// WithCodec configures the codec used for document payloads.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithAutoID configures the identity type synthesized for documents
// inserted without an identity. The default is AutoIDObjectID.
func WithAutoID(autoID model.AutoID) Option {
	return func(o *options) {
		o.autoID = autoID
	}
}

// WithCheckpointPath configures a directory for snapshot checkpoints.
// On Open, the latest checkpoint in the directory is loaded; Close
// writes a final checkpoint.
func WithCheckpointPath(path string) Option {
	return func(o *options) {
		o.checkpointPath = path
	}
}

// WithCheckpointStore configures an explicit blob store for
// checkpoints instead of a local directory. Useful for tests
// (blobstore.NewMemoryStore) or remote-first deployments.
func WithCheckpointStore(store blobstore.Store) Option {
	return func(o *options) {
		o.checkpointStore = store
	}
}

// WithCompression selects the snapshot compression algorithm. The
// default is CompressionZstd.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithRetainSnapshots configures how many checkpoint snapshots are
// kept before the oldest are pruned. The default is 3.
func WithRetainSnapshots(n int) Option {
	return func(o *options) {
		o.retainSnapshots = n
	}
}

// WithAutoCheckpoint enables write-triggered background checkpoints,
// rate-limited to at most one per interval. Requires a checkpoint
// path or store.
func WithAutoCheckpoint(interval time.Duration) Option {
	return func(o *options) {
		o.checkpointInterval = interval
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		autoID:           model.AutoIDObjectID,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		compression:      CompressionZstd,
		retainSnapshots:  3,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o options) checkpointLimiter() *rate.Limiter {
	if o.checkpointInterval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(o.checkpointInterval), 1)
}

package docbase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/docbase/blobstore"
	"github.com/hupe1980/docbase/internal/pager"
)

// Compression selects the snapshot compression algorithm.
type Compression int

const (
	// CompressionZstd compresses snapshots with zstandard (default).
	CompressionZstd Compression = iota
	// CompressionLZ4 compresses snapshots with lz4.
	CompressionLZ4
	// CompressionNone stores snapshots uncompressed.
	CompressionNone
)

const (
	currentFileName = "CURRENT"
	snapshotPrefix  = "snapshots/"
)

// checkpointer persists page-table snapshots to a blob store and
// tracks the latest one through a CURRENT pointer blob. Snapshot names
// are zero-padded so lexicographic order is creation order.
type checkpointer struct {
	store       blobstore.Store
	compression Compression
	retain      int

	// limiter coalesces write-triggered checkpoints; nil disables
	// auto-checkpointing.
	limiter *rate.Limiter

	mu  sync.Mutex
	seq uint64
}

func newCheckpointer(store blobstore.Store, compression Compression, retain int, limiter *rate.Limiter) *checkpointer {
	if retain < 1 {
		retain = 1
	}
	return &checkpointer{
		store:       store,
		compression: compression,
		retain:      retain,
		limiter:     limiter,
	}
}

// save writes a new snapshot, flips CURRENT to it and prunes old
// snapshots beyond the retention count.
func (c *checkpointer) save(ctx context.Context, p *pager.Pager) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var raw bytes.Buffer
	if err := p.Save(&raw); err != nil {
		return "", err
	}
	data, err := c.compress(raw.Bytes())
	if err != nil {
		return "", err
	}

	c.seq++
	name := fmt.Sprintf("%ssnapshot-%08d.db%s", snapshotPrefix, c.seq, c.ext())
	if err := c.store.Put(ctx, name, data); err != nil {
		return "", err
	}
	if err := c.store.Put(ctx, currentFileName, []byte(name)); err != nil {
		return "", err
	}
	return name, c.prune(ctx)
}

// load restores the pager from the CURRENT snapshot. It reports
// ok=false without error when no checkpoint exists yet.
func (c *checkpointer) load(ctx context.Context) (*pager.Pager, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.store.Open(ctx, currentFileName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	nameBytes, err := io.ReadAll(current)
	current.Close()
	if err != nil {
		return nil, false, err
	}
	name := strings.TrimSpace(string(nameBytes))

	blob, err := c.store.Open(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("open snapshot %q: %w", name, err)
	}
	defer blob.Close()

	compressed, err := io.ReadAll(blob)
	if err != nil {
		return nil, false, err
	}
	raw, err := decompress(name, compressed)
	if err != nil {
		return nil, false, fmt.Errorf("decompress snapshot %q: %w", name, err)
	}
	p, err := pager.Load(bytes.NewReader(raw))
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %q: %w", name, err)
	}

	// Continue numbering after the loaded snapshot.
	var seq uint64
	base := strings.TrimPrefix(name, snapshotPrefix)
	if _, err := fmt.Sscanf(base, "snapshot-%d.db", &seq); err == nil {
		c.seq = seq
	}
	return p, true, nil
}

// prune deletes the oldest snapshots beyond the retention count. The
// caller holds c.mu.
func (c *checkpointer) prune(ctx context.Context) error {
	names, err := c.store.List(ctx, snapshotPrefix)
	if err != nil {
		return err
	}
	for len(names) > c.retain {
		if err := c.store.Delete(ctx, names[0]); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}

// backup copies every checkpoint blob to the target store, snapshots
// concurrently and CURRENT last so a reader of the target never sees a
// pointer to a missing snapshot. It returns the number of blobs
// copied.
func (c *checkpointer) backup(ctx context.Context, target blobstore.Store) (int, error) {
	names, err := c.store.List(ctx, snapshotPrefix)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range names {
		g.Go(func() error {
			return c.copyBlob(gctx, target, name)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := c.copyBlob(ctx, target, currentFileName); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return len(names), nil
		}
		return 0, err
	}
	return len(names) + 1, nil
}

func (c *checkpointer) copyBlob(ctx context.Context, target blobstore.Store, name string) error {
	blob, err := c.store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer blob.Close()

	data, err := io.ReadAll(blob)
	if err != nil {
		return err
	}
	return target.Put(ctx, name, data)
}

// allowAuto reports whether a write-triggered checkpoint may run now.
func (c *checkpointer) allowAuto() bool {
	return c.limiter != nil && c.limiter.Allow()
}

func (c *checkpointer) ext() string {
	switch c.compression {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

func (c *checkpointer) compress(raw []byte) ([]byte, error) {
	switch c.compression {
	case CompressionZstd:
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return raw, nil
	}
}

// decompress picks the algorithm from the snapshot name so a reopened
// database can load checkpoints written with a different configured
// compression.
func decompress(name string, data []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(name, ".zst"):
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r.IOReadCloser())
	case strings.HasSuffix(name, ".lz4"):
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return data, nil
	}
}

package docbase

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/docbase/blobstore"
	"github.com/hupe1980/docbase/internal/engine"
	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/model"
)

// DB is an embedded document database: named collections of schemaless
// documents with a unique primary-key index and optional secondary
// indexes. All methods are safe for concurrent use.
type DB struct {
	opts       options
	engine     *engine.Engine
	checkpoint *checkpointer

	closed atomic.Bool
	// closing orders the closed transition against background
	// checkpoint starts: wg.Add only happens while closed is false
	// under this mutex, so Close never races wg.Wait against an Add.
	closing sync.Mutex
	wg      sync.WaitGroup
}

// Open creates a database. With a checkpoint path (or store)
// configured, the latest snapshot found there is loaded; otherwise the
// database starts empty.
func Open(ctx context.Context, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	db := &DB{opts: opts}

	store := opts.checkpointStore
	if store == nil && opts.checkpointPath != "" {
		local, err := blobstore.NewLocalStore(opts.checkpointPath)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint path: %w", err)
		}
		store = local
	}
	if opts.checkpointInterval > 0 && store == nil {
		return nil, fmt.Errorf("%w: auto-checkpoint requires a checkpoint path or store", ErrInvalidArgument)
	}

	p := pager.New()
	if store != nil {
		db.checkpoint = newCheckpointer(store, opts.compression, opts.retainSnapshots, opts.checkpointLimiter())
		loaded, ok, err := db.checkpoint.load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok {
			p = loaded
			opts.logger.InfoContext(ctx, "checkpoint loaded", "pages", p.PageCount())
		}
	}

	db.engine = engine.New(p, opts.codec, opts.logger.Logger)
	return db, nil
}

// Insert stores the documents in the named collection, creating the
// collection on first use, and returns the number of documents
// inserted. The batch is atomic: any failure leaves nothing behind.
// Documents without an identity get one synthesized per the configured
// auto-id type.
func (db *DB) Insert(ctx context.Context, collection string, docs []model.Document) (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	start := time.Now()
	n, err := db.engine.Insert(collection, docs, db.opts.autoID)
	err = translateError(err)

	db.opts.metricsCollector.RecordInsert(n, time.Since(start), err)
	db.opts.logger.LogInsert(ctx, collection, n, err)
	if err == nil {
		db.maybeCheckpoint()
	}
	return n, err
}

// InsertOne stores a single document and returns its identity.
func (db *DB) InsertOne(ctx context.Context, collection string, doc model.Document) (model.Value, error) {
	if _, err := db.Insert(ctx, collection, []model.Document{doc}); err != nil {
		return model.Null(), err
	}
	id, _ := doc.ID()
	return id, nil
}

// Upsert inserts every document whose identity matches nothing and
// replaces the rest in place. It returns the number of documents
// inserted (not replaced).
func (db *DB) Upsert(ctx context.Context, collection string, docs []model.Document) (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	start := time.Now()
	n, err := db.engine.Upsert(collection, docs, db.opts.autoID)
	err = translateError(err)

	db.opts.metricsCollector.RecordUpsert(n, len(docs), time.Since(start), err)
	db.opts.logger.LogUpsert(ctx, collection, n, len(docs), err)
	if err == nil {
		db.maybeCheckpoint()
	}
	return n, err
}

// FindByID returns the document with the given identity, or nil when
// no document matches.
func (db *DB) FindByID(ctx context.Context, collection string, id model.Value) (model.Document, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	tx := db.engine.Begin()
	defer tx.Rollback()

	col, err := db.engine.Get(tx, collection)
	if err != nil {
		return nil, translateError(err)
	}
	if col == nil {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	doc, err := db.engine.FindByID(tx, col, id)
	return doc, translateError(err)
}

// Count returns the number of documents in the collection.
func (db *DB) Count(ctx context.Context, collection string) (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	tx := db.engine.Begin()
	defer tx.Rollback()

	col, err := db.engine.Get(tx, collection)
	if err != nil {
		return 0, translateError(err)
	}
	if col == nil {
		return 0, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	n, err := db.engine.Count(tx, col)
	return n, translateError(err)
}

// Documents returns a lazy sequence over the collection's documents in
// identity order, against a consistent snapshot taken when iteration
// starts.
func (db *DB) Documents(ctx context.Context, collection string) iter.Seq2[model.Document, error] {
	return func(yield func(model.Document, error) bool) {
		if db.closed.Load() {
			yield(nil, ErrClosed)
			return
		}
		tx := db.engine.Begin()
		defer tx.Rollback()

		col, err := db.engine.Get(tx, collection)
		if err != nil {
			yield(nil, translateError(err))
			return
		}
		if col == nil {
			yield(nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection))
			return
		}
		for doc, err := range db.engine.Documents(tx, col) {
			if err != nil {
				yield(nil, translateError(err))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Collections returns the collection names, sorted.
func (db *DB) Collections(ctx context.Context) ([]string, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	tx := db.engine.Begin()
	defer tx.Rollback()

	var names []string
	for col, err := range db.engine.GetAll(tx) {
		if err != nil {
			return nil, translateError(err)
		}
		names = append(names, col.Name)
	}
	sort.Strings(names)
	return names, nil
}

// CollectionExists reports whether the named collection exists.
func (db *DB) CollectionExists(ctx context.Context, collection string) (bool, error) {
	if db.closed.Load() {
		return false, ErrClosed
	}
	tx := db.engine.Begin()
	defer tx.Rollback()

	col, err := db.engine.Get(tx, collection)
	return col != nil, translateError(err)
}

// DropCollection removes the collection and everything it stores. It
// reports false when the collection does not exist.
func (db *DB) DropCollection(ctx context.Context, collection string) (bool, error) {
	if db.closed.Load() {
		return false, ErrClosed
	}
	start := time.Now()
	dropped, err := db.engine.DropCollection(collection)
	err = translateError(err)

	db.opts.metricsCollector.RecordDrop(time.Since(start), err)
	if dropped || err != nil {
		db.opts.logger.LogDrop(ctx, collection, err)
	}
	if err == nil && dropped {
		db.maybeCheckpoint()
	}
	return dropped, err
}

// RenameCollection renames a collection. The target name must not
// collide with an existing collection in any casing.
func (db *DB) RenameCollection(ctx context.Context, oldName, newName string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	err := translateError(db.engine.RenameCollection(oldName, newName))
	db.opts.logger.LogRename(ctx, oldName, newName, err)
	if err == nil {
		db.maybeCheckpoint()
	}
	return err
}

// EnsureIndex creates a secondary index over the key expression,
// backfilling it from the stored documents. It is idempotent for an
// identical definition. The collection is created when absent.
func (db *DB) EnsureIndex(ctx context.Context, collection, name, expression string, unique bool) error {
	if db.closed.Load() {
		return ErrClosed
	}
	err := translateError(db.engine.CreateIndex(collection, name, expression, unique))
	if err == nil {
		db.maybeCheckpoint()
	}
	return err
}

// DropIndex removes a secondary index. The primary index cannot be
// dropped.
func (db *DB) DropIndex(ctx context.Context, collection, name string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	err := translateError(db.engine.RemoveIndex(collection, name))
	if err == nil {
		db.maybeCheckpoint()
	}
	return err
}

// Checkpoint writes a snapshot of the database to the configured
// checkpoint store.
func (db *DB) Checkpoint(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.checkpointNow(ctx)
}

// Backup copies every checkpoint blob to the target store and returns
// the number of blobs copied. Run Checkpoint first to back up the
// latest state.
func (db *DB) Backup(ctx context.Context, target blobstore.Store) (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	if db.checkpoint == nil {
		return 0, fmt.Errorf("%w: no checkpoint path or store configured", ErrInvalidArgument)
	}
	n, err := db.checkpoint.backup(ctx, target)
	db.opts.logger.LogBackup(ctx, n, err)
	return n, err
}

// Close writes a final checkpoint when checkpointing is configured and
// marks the database closed. Further calls are no-ops.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	db.closing.Lock()
	first := db.closed.CompareAndSwap(false, true)
	db.closing.Unlock()
	if !first {
		return nil
	}
	db.wg.Wait()

	if db.checkpoint != nil {
		return db.checkpointNow(context.Background())
	}
	return nil
}

func (db *DB) checkpointNow(ctx context.Context) error {
	if db.checkpoint == nil {
		return fmt.Errorf("%w: no checkpoint path or store configured", ErrInvalidArgument)
	}
	start := time.Now()
	name, err := db.checkpoint.save(ctx, db.engine.Pager())

	db.opts.metricsCollector.RecordCheckpoint(time.Since(start), err)
	db.opts.logger.LogCheckpoint(ctx, name, err)
	return err
}

// maybeCheckpoint runs a write-triggered background checkpoint when
// auto-checkpointing is enabled and the rate limiter allows it.
func (db *DB) maybeCheckpoint() {
	if db.checkpoint == nil || !db.checkpoint.allowAuto() {
		return
	}
	db.closing.Lock()
	defer db.closing.Unlock()
	if db.closed.Load() {
		return
	}
	db.wg.Add(1)
	go func() {
		defer db.wg.Done()
		_ = db.checkpointNow(context.Background())
	}()
}

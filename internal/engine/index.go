package engine

import (
	"fmt"
	"iter"

	"github.com/hupe1980/docbase/internal/indexstore"
	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
	"github.com/hupe1980/docbase/model"
)

// EnsureIndex creates a secondary index over the key expression,
// backfilling it from every stored document. It is idempotent: an
// existing index with the same expression and uniqueness is returned
// as is; a name collision with a different definition fails.
func (e *Engine) EnsureIndex(tx *txn.Transaction, col *pager.CollectionPage, name, expression string, unique bool) (*pager.IndexDescriptor, error) {
	if name == PrimaryIndexName {
		return nil, fmt.Errorf("%w: %q is the primary index", ErrInvalidArgument, name)
	}
	if existing, ok := col.Index(name); ok {
		if existing.Expression == expression && existing.Unique == unique {
			return existing, nil
		}
		return nil, &ExistsError{Name: name}
	}

	parsed, err := e.expression(expression)
	if err != nil {
		return nil, err
	}

	idx, err := e.index.CreateIndex(tx, col, name, expression, unique)
	if err != nil {
		return nil, err
	}

	// Backfill from the primary index.
	for entry, err := range e.index.FindAll(tx, col.PrimaryIndex(), true) {
		if err != nil {
			return nil, err
		}
		doc, err := e.readDocument(tx, entry.Node.Data)
		if err != nil {
			return nil, err
		}
		keys := parsed.Execute(doc)
		if unique {
			keys = distinct(keys)
		}
		for _, key := range keys {
			if _, err := e.index.AddNode(tx, col, idx, key, entry.Node.Data, entry.Loc); err != nil {
				return nil, err
			}
		}
	}
	return idx, nil
}

// DropIndex removes a secondary index: every entry, both sentinels and
// the descriptor slot. The primary index cannot be dropped.
func (e *Engine) DropIndex(tx *txn.Transaction, col *pager.CollectionPage, name string) error {
	idx, ok := col.Index(name)
	if !ok {
		return fmt.Errorf("%w: no index %q", ErrInvalidArgument, name)
	}
	if idx.Slot == 0 {
		return fmt.Errorf("%w: cannot drop the primary index", ErrInvalidArgument)
	}

	// Index pages are shared across the collection's indexes, so the
	// entries are unlinked one by one rather than freed page-wise.
	var entries []indexstore.Entry
	for entry, err := range e.index.FindAll(tx, idx, true) {
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	for i := range entries {
		if err := e.index.RemoveNode(tx, col, &entries[i]); err != nil {
			return err
		}
	}
	for _, loc := range []model.Location{idx.Head, idx.Tail} {
		if err := e.index.ReleaseSlot(tx, col, loc); err != nil {
			return err
		}
	}

	kept := col.Indexes[:0]
	for _, d := range col.Indexes {
		if d.Name != name {
			d.Slot = uint8(len(kept))
			kept = append(kept, d)
		}
	}
	col.Indexes = kept
	tx.MarkDirty(col.ID())
	return nil
}

// FindByID resolves a document by identity, or nil when absent.
func (e *Engine) FindByID(tx *txn.Transaction, col *pager.CollectionPage, id model.Value) (model.Document, error) {
	entry, err := e.index.Find(tx, col.PrimaryIndex(), id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	return e.readDocument(tx, entry.Node.Data)
}

// Count returns the number of stored documents.
func (e *Engine) Count(tx *txn.Transaction, col *pager.CollectionPage) (int, error) {
	n := 0
	for _, err := range e.index.FindAll(tx, col.PrimaryIndex(), true) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Documents returns a lazy sequence over the stored documents in
// identity order.
func (e *Engine) Documents(tx *txn.Transaction, col *pager.CollectionPage) iter.Seq2[model.Document, error] {
	return func(yield func(model.Document, error) bool) {
		for entry, err := range e.index.FindAll(tx, col.PrimaryIndex(), true) {
			if err != nil {
				yield(nil, err)
				return
			}
			doc, err := e.readDocument(tx, entry.Node.Data)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

func (e *Engine) readDocument(tx *txn.Transaction, loc model.Location) (model.Document, error) {
	data, err := e.data.Read(tx, loc)
	if err != nil {
		return nil, err
	}
	return e.codec.Unmarshal(data)
}

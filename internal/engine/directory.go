package engine

import (
	"iter"
	"regexp"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
	"github.com/hupe1980/docbase/model"
)

// collectionNamePattern is the identifier pattern collection names
// must match.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$-]*$`)

// Get resolves a collection descriptor by name, or nil when no
// collection carries the name in any casing. Names are unique ignoring
// case, so at most one entry can match.
func (e *Engine) Get(tx *txn.Transaction, name string) (*pager.CollectionPage, error) {
	header, err := tx.Header()
	if err != nil {
		return nil, err
	}
	id, ok := header.Get(name)
	if !ok {
		for _, existing := range header.Names() {
			if strings.EqualFold(existing, name) {
				id, ok = header.Get(existing)
				break
			}
		}
	}
	if !ok {
		return nil, nil
	}
	return tx.Collection(id)
}

// GetOrAdd resolves the collection, creating it when absent. Creation
// takes the exclusive header lock — the single serialization point
// preventing two concurrent writers from both creating the same new
// collection. The returned release function must be called after the
// transaction commits or rolls back; it is a no-op when the collection
// already existed.
func (e *Engine) GetOrAdd(tx *txn.Transaction, name string) (*pager.CollectionPage, func(), error) {
	noop := func() {}

	col, err := e.Get(tx, name)
	if err != nil || col != nil {
		return col, noop, err
	}

	unlock := e.locks.LockHeader()

	// Another writer may have created it while we waited: the header
	// lock is released only after its transaction became visible, so
	// re-read the published header.
	tx.Refresh(model.ZeroPageID)
	col, err = e.Get(tx, name)
	if err != nil || col != nil {
		unlock()
		return col, noop, err
	}

	col, err = e.Add(tx, name)
	if err != nil {
		unlock()
		return nil, noop, err
	}
	return col, unlock, nil
}

// Add creates a collection: validates the name, rejects a name any
// existing collection carries in any casing, checks the directory size
// budget, allocates the descriptor page, registers it in the header
// and creates the mandatory unique primary-key index.
func (e *Engine) Add(tx *txn.Transaction, name string) (*pager.CollectionPage, error) {
	if !collectionNamePattern.MatchString(name) {
		return nil, &InvalidNameError{Name: name}
	}

	header, err := tx.Header()
	if err != nil {
		return nil, err
	}
	for _, existing := range header.Names() {
		if strings.EqualFold(existing, name) {
			return nil, &ExistsError{Name: name}
		}
	}

	projected := header.SizeUsed() + len(name) + pager.DirectoryEntryOverhead
	if projected >= pager.MaxDirectorySize {
		return nil, &LimitError{Name: name, Projected: projected, Limit: pager.MaxDirectorySize}
	}

	col, err := tx.NewCollectionPage(name)
	if err != nil {
		return nil, err
	}
	header.Add(name, col.ID())
	tx.MarkDirty(header.ID())

	if _, err := e.index.CreateIndex(tx, col, PrimaryIndexName, PrimaryKeyExpression, true); err != nil {
		return nil, err
	}

	e.logger.Debug("collection created", "collection", name, "page", col.ID())
	return col, nil
}

// GetAll returns a lazy, restartable sequence over the collection
// descriptors, consistent with this transaction's page view.
func (e *Engine) GetAll(tx *txn.Transaction) iter.Seq2[*pager.CollectionPage, error] {
	return func(yield func(*pager.CollectionPage, error) bool) {
		header, err := tx.Header()
		if err != nil {
			yield(nil, err)
			return
		}
		for _, name := range header.Names() {
			col, err := e.Get(tx, name)
			if err != nil {
				yield(nil, err)
				return
			}
			if col == nil {
				continue
			}
			if !yield(col, nil) {
				return
			}
		}
	}
}

// Rename changes the collection's name, failing when any collection
// already carries newName in any casing. Descriptor and header mapping
// are updated together.
func (e *Engine) Rename(tx *txn.Transaction, col *pager.CollectionPage, newName string) error {
	header, err := tx.Header()
	if err != nil {
		return err
	}
	for _, name := range header.Names() {
		if strings.EqualFold(name, newName) {
			return &ExistsError{Name: newName}
		}
	}

	header.Remove(col.Name)
	header.Add(newName, col.ID())
	tx.MarkDirty(header.ID())

	col.Name = newName
	tx.MarkDirty(col.ID())
	return nil
}

// Drop removes the collection: every index entry page, both sentinel
// pages per index, every data page referenced by the primary index
// including chained overflow pages, the directory mapping and the
// descriptor page itself. The page set is deduplicated before release
// since entries share pages.
func (e *Engine) Drop(tx *txn.Transaction, col *pager.CollectionPage) error {
	pages := roaring64.New()

	for _, idx := range col.Indexes {
		for entry, err := range e.index.FindAll(tx, idx, true) {
			if err != nil {
				return err
			}
			pages.Add(uint64(entry.Loc.Page))

			if idx.Slot == 0 && !entry.Node.Data.IsZero() {
				pages.Add(uint64(entry.Node.Data.Page))
				overflow, err := e.data.OverflowPages(tx, entry.Node.Data)
				if err != nil {
					return err
				}
				for _, id := range overflow {
					pages.Add(uint64(id))
				}
			}
		}
		pages.Add(uint64(idx.Head.Page))
		pages.Add(uint64(idx.Tail.Page))
	}

	header, err := tx.Header()
	if err != nil {
		return err
	}
	header.Remove(col.Name)
	tx.MarkDirty(header.ID())

	it := pages.Iterator()
	for it.HasNext() {
		tx.FreePage(model.PageID(it.Next()))
	}
	tx.FreePage(col.ID())

	e.logger.Debug("collection dropped", "collection", col.Name, "pages", pages.GetCardinality()+1)
	return nil
}

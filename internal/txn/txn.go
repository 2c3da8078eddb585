// Package txn provides the transaction boundary over the pager:
// copy-on-write page access, dirty tracking, and atomic
// commit/rollback. An abandoned transaction leaves no page visible.
package txn

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/model"
)

// ErrDone is returned when a finished transaction is used again.
var ErrDone = fmt.Errorf("txn: transaction already committed or rolled back")

// Transaction buffers page mutations until Commit. Not safe for
// concurrent use; writers serialize through the engine lock service.
type Transaction struct {
	pager *pager.Pager

	// pages holds this transaction's working copies.
	pages     map[model.PageID]pager.Page
	dirty     *roaring64.Bitmap
	allocated *roaring64.Bitmap
	freed     *roaring64.Bitmap
	done      bool
}

// Begin opens a transaction against the pager.
func Begin(p *pager.Pager) *Transaction {
	return &Transaction{
		pager:     p,
		pages:     make(map[model.PageID]pager.Page),
		dirty:     roaring64.New(),
		allocated: roaring64.New(),
		freed:     roaring64.New(),
	}
}

// Page returns this transaction's working copy of the page, cloning
// the published version on first access.
func (tx *Transaction) Page(id model.PageID) (pager.Page, error) {
	if tx.done {
		return nil, ErrDone
	}
	if tx.freed.Contains(uint64(id)) {
		return nil, fmt.Errorf("%w: %d is freed in this transaction", pager.ErrPageNotFound, id)
	}
	if page, ok := tx.pages[id]; ok {
		return page, nil
	}
	published, err := tx.pager.Get(id)
	if err != nil {
		return nil, err
	}
	page := published.Clone()
	tx.pages[id] = page
	return page, nil
}

// Header returns the working copy of the header page.
func (tx *Transaction) Header() (*pager.HeaderPage, error) {
	return page[*pager.HeaderPage](tx, model.ZeroPageID)
}

// Collection returns the working copy of a collection descriptor page.
func (tx *Transaction) Collection(id model.PageID) (*pager.CollectionPage, error) {
	return page[*pager.CollectionPage](tx, id)
}

// IndexPage returns the working copy of an index page.
func (tx *Transaction) IndexPage(id model.PageID) (*pager.IndexPage, error) {
	return page[*pager.IndexPage](tx, id)
}

// DataPage returns the working copy of a data page.
func (tx *Transaction) DataPage(id model.PageID) (*pager.DataPage, error) {
	return page[*pager.DataPage](tx, id)
}

func page[P pager.Page](tx *Transaction, id model.PageID) (P, error) {
	var zero P
	p, err := tx.Page(id)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(P)
	if !ok {
		return zero, fmt.Errorf("pager: page %d is a %s page", id, p.Type())
	}
	return typed, nil
}

// NewCollectionPage allocates a zero-initialized, dirty descriptor
// page.
func (tx *Transaction) NewCollectionPage(name string) (*pager.CollectionPage, error) {
	if tx.done {
		return nil, ErrDone
	}
	id := tx.allocate()
	p := pager.NewCollectionPage(id, name)
	tx.adopt(p)
	return p, nil
}

// NewIndexPage allocates a zero-initialized, dirty index page.
func (tx *Transaction) NewIndexPage() (*pager.IndexPage, error) {
	if tx.done {
		return nil, ErrDone
	}
	p := pager.NewIndexPage(tx.allocate())
	tx.adopt(p)
	return p, nil
}

// NewDataPage allocates a zero-initialized, dirty data page.
func (tx *Transaction) NewDataPage() (*pager.DataPage, error) {
	if tx.done {
		return nil, ErrDone
	}
	p := pager.NewDataPage(tx.allocate())
	tx.adopt(p)
	return p, nil
}

func (tx *Transaction) allocate() model.PageID {
	id := tx.pager.Allocate()
	tx.allocated.Add(uint64(id))
	return id
}

func (tx *Transaction) adopt(p pager.Page) {
	tx.pages[p.ID()] = p
	tx.dirty.Add(uint64(p.ID()))
}

// Refresh discards the clean working copy of a page so the next
// access re-clones the published version. Used after acquiring the
// header lock, where a concurrent creator may have published a newer
// header than the one this transaction first saw. Dirty pages are
// never discarded.
func (tx *Transaction) Refresh(id model.PageID) {
	if !tx.dirty.Contains(uint64(id)) {
		delete(tx.pages, id)
	}
}

// MarkDirty records that the working copy of the page was mutated and
// must be published at commit.
func (tx *Transaction) MarkDirty(id model.PageID) {
	tx.dirty.Add(uint64(id))
}

// DeletePage releases a page at commit. With cascadeOverflow set, the
// overflow chain hanging off the page's first block is released too.
func (tx *Transaction) DeletePage(id model.PageID, cascadeOverflow bool) error {
	if tx.done {
		return ErrDone
	}
	if cascadeOverflow {
		for next := id; next != model.ZeroPageID; {
			current := next
			next = model.ZeroPageID
			if page, err := tx.Page(current); err == nil {
				if dp, ok := page.(*pager.DataPage); ok {
					if b, ok := dp.Block(0); ok {
						next = b.Overflow
					}
				}
			}
			tx.freed.Add(uint64(current))
		}
		return nil
	}
	tx.freed.Add(uint64(id))
	return nil
}

// FreePage releases a single page at commit without touching its
// content. Used by drop, which computes the full page set itself.
func (tx *Transaction) FreePage(id model.PageID) {
	tx.freed.Add(uint64(id))
}

// Commit atomically publishes every dirty page and applies the frees.
func (tx *Transaction) Commit() error {
	if tx.done {
		return ErrDone
	}
	tx.done = true

	var publish []pager.Page
	it := tx.dirty.Iterator()
	for it.HasNext() {
		id := model.PageID(it.Next())
		if tx.freed.Contains(uint64(id)) {
			continue
		}
		if page, ok := tx.pages[id]; ok {
			publish = append(publish, page)
		}
	}

	freed := make([]model.PageID, 0, tx.freed.GetCardinality())
	fit := tx.freed.Iterator()
	for fit.HasNext() {
		freed = append(freed, model.PageID(fit.Next()))
	}

	tx.pager.Apply(publish, freed)
	return nil
}

// Rollback abandons the transaction. Page ids allocated here return to
// the free list; nothing becomes visible.
func (tx *Transaction) Rollback() {
	if tx.done {
		return
	}
	tx.done = true

	it := tx.allocated.Iterator()
	for it.HasNext() {
		tx.pager.Unreserve(model.PageID(it.Next()))
	}
}

// Done reports whether the transaction has finished.
func (tx *Transaction) Done() bool { return tx.done }

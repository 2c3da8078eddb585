// Package datastore stores document payloads in data blocks, spilling
// oversized payloads into chained overflow pages.
package datastore

import (
	"fmt"

	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
	"github.com/hupe1980/docbase/model"
)

// ChunkSize is the largest payload slice stored in a single block.
// Payloads beyond it continue in overflow pages, one chunk per page.
const ChunkSize = 4096

// ErrBlockNotFound is returned for a dangling data location.
var ErrBlockNotFound = fmt.Errorf("datastore: block not found")

// Store reads and writes data blocks within a transaction. Stateless;
// all state lives in the pages.
type Store struct{}

// New creates a data store.
func New() *Store { return &Store{} }

// Insert stores the payload for the collection and returns its data
// location. The first chunk lands in a shared data page; continuation
// chunks each occupy their own overflow page.
func (s *Store) Insert(tx *txn.Transaction, col *pager.CollectionPage, data []byte) (model.Location, error) {
	first := data
	if len(first) > ChunkSize {
		first = data[:ChunkSize]
	}
	rest := data[len(first):]

	page, err := s.pageWithRoom(tx, col, len(first))
	if err != nil {
		return model.Location{}, err
	}
	block := &pager.DataBlock{Data: append([]byte(nil), first...)}
	slot, err := page.AddBlock(block)
	if err != nil {
		return model.Location{}, err
	}
	tx.MarkDirty(page.ID())

	// Track the shared page for the next insert while it has room.
	if page.Full() || page.FreeBytes() < ChunkSize/8 {
		col.FreeDataPage = model.ZeroPageID
	} else {
		col.FreeDataPage = page.ID()
	}
	tx.MarkDirty(col.ID())

	// Overflow chain.
	prev := block
	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > ChunkSize {
			chunk = rest[:ChunkSize]
		}
		rest = rest[len(chunk):]

		overflow, err := tx.NewDataPage()
		if err != nil {
			return model.Location{}, err
		}
		ob := &pager.DataBlock{Data: append([]byte(nil), chunk...)}
		if _, err := overflow.AddBlock(ob); err != nil {
			return model.Location{}, err
		}
		prev.Overflow = overflow.ID()
		prev = ob
	}

	return model.Location{Page: page.ID(), Slot: slot}, nil
}

// GetBlock returns the block at the location; its Overflow field
// points at the continuation page (zero for none).
func (s *Store) GetBlock(tx *txn.Transaction, loc model.Location) (*pager.DataBlock, error) {
	page, err := tx.DataPage(loc.Page)
	if err != nil {
		return nil, err
	}
	block, ok := page.Block(loc.Slot)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, loc)
	}
	return block, nil
}

// Read returns the full payload at the location, following the
// overflow chain.
func (s *Store) Read(tx *txn.Transaction, loc model.Location) ([]byte, error) {
	block, err := s.GetBlock(tx, loc)
	if err != nil {
		return nil, err
	}
	data := append([]byte(nil), block.Data...)
	for next := block.Overflow; next != model.ZeroPageID; {
		page, err := tx.DataPage(next)
		if err != nil {
			return nil, err
		}
		b, ok := page.Block(0)
		if !ok {
			return nil, fmt.Errorf("%w: overflow page %d", ErrBlockNotFound, next)
		}
		data = append(data, b.Data...)
		next = b.Overflow
	}
	return data, nil
}

// OverflowPages returns the ids of every overflow page chained to the
// block at the location, in chain order.
func (s *Store) OverflowPages(tx *txn.Transaction, loc model.Location) ([]model.PageID, error) {
	block, err := s.GetBlock(tx, loc)
	if err != nil {
		return nil, err
	}
	var ids []model.PageID
	for next := block.Overflow; next != model.ZeroPageID; {
		ids = append(ids, next)
		page, err := tx.DataPage(next)
		if err != nil {
			return nil, err
		}
		b, ok := page.Block(0)
		if !ok {
			break
		}
		next = b.Overflow
	}
	return ids, nil
}

// Delete removes the block and releases its overflow chain. An
// emptied shared page is released as well.
func (s *Store) Delete(tx *txn.Transaction, col *pager.CollectionPage, loc model.Location) error {
	overflow, err := s.OverflowPages(tx, loc)
	if err != nil {
		return err
	}
	for _, id := range overflow {
		tx.FreePage(id)
	}

	page, err := tx.DataPage(loc.Page)
	if err != nil {
		return err
	}
	page.RemoveBlock(loc.Slot)
	tx.MarkDirty(page.ID())

	if page.Empty() {
		tx.FreePage(page.ID())
		if col.FreeDataPage == page.ID() {
			col.FreeDataPage = model.ZeroPageID
			tx.MarkDirty(col.ID())
		}
	}
	return nil
}

// pageWithRoom returns the collection's shared data page if it can
// take a block of the given size, or a fresh page.
func (s *Store) pageWithRoom(tx *txn.Transaction, col *pager.CollectionPage, size int) (*pager.DataPage, error) {
	if col.FreeDataPage != model.ZeroPageID {
		page, err := tx.DataPage(col.FreeDataPage)
		if err == nil && !page.Full() && page.FreeBytes() >= size {
			return page, nil
		}
	}
	return tx.NewDataPage()
}

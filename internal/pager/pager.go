// Package pager owns the page table: fixed-role in-memory pages,
// allocation and the free list. Transactions buffer their page
// mutations as clones and publish them here atomically at commit.
package pager

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/docbase/model"
)

// ErrPageNotFound is returned when a page id is unknown or released.
var ErrPageNotFound = fmt.Errorf("pager: page not found")

// Pager is the shared page table. Safe for concurrent use; writers
// additionally serialize through the engine's lock service.
type Pager struct {
	mu    sync.RWMutex
	pages map[model.PageID]Page
	free  *roaring64.Bitmap
	next  model.PageID
}

// New creates a pager holding only the header page.
func New() *Pager {
	p := &Pager{
		pages: make(map[model.PageID]Page),
		free:  roaring64.New(),
		next:  1,
	}
	p.pages[model.ZeroPageID] = NewHeaderPage()
	return p
}

// Get returns the published page with the given id. The returned page
// must be treated as immutable; mutate clones inside a transaction.
func (p *Pager) Get(id model.PageID) (Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	page, ok := p.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	if page.Type() == PageEmpty {
		return nil, fmt.Errorf("%w: %d is released", ErrPageNotFound, id)
	}
	return page, nil
}

// Header returns the published header page.
func (p *Pager) Header() *HeaderPage {
	page, _ := p.Get(model.ZeroPageID)
	return page.(*HeaderPage)
}

// Allocate reserves a page id, reusing the free list first. The id is
// owned by the caller until it is published or returned via Unreserve.
func (p *Pager) Allocate() model.PageID {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.free.IsEmpty() {
		id := model.PageID(p.free.Minimum())
		p.free.Remove(uint64(id))
		return id
	}
	id := p.next
	p.next++
	return id
}

// Unreserve returns an allocated-but-never-published id to the free
// list (transaction rollback).
func (p *Pager) Unreserve(id model.PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free.Add(uint64(id))
}

// Apply atomically publishes a transaction's page versions and frees.
// Freed pages are replaced by empty markers and returned to the free
// list.
func (p *Pager) Apply(pages []Page, freed []model.PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, page := range pages {
		p.pages[page.ID()] = page
	}
	for _, id := range freed {
		if id == model.ZeroPageID {
			continue // the header page is never released
		}
		p.pages[id] = NewEmptyPage(id)
		p.free.Add(uint64(id))
	}
}

// PageCount returns the number of live (non-empty) pages.
func (p *Pager) PageCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, page := range p.pages {
		if page.Type() != PageEmpty {
			n++
		}
	}
	return n
}

// FreeCount returns the size of the free list.
func (p *Pager) FreeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int(p.free.GetCardinality())
}

// Allocated reports whether the id refers to a live page.
func (p *Pager) Allocated(id model.PageID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	page, ok := p.pages[id]
	return ok && page.Type() != PageEmpty
}

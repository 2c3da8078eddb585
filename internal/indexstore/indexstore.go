// Package indexstore maintains the ordered skip-list indexes of a
// collection: sentinel-bounded node chains, key-ordered insertion and
// lazy ascending/descending traversal.
package indexstore

import (
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
	"github.com/hupe1980/docbase/model"
)

// MaxLevels is the skip-list height. Sentinel nodes always span every
// level.
const MaxLevels = 32

// ErrNodeNotFound indicates a dangling node reference, a structural
// corruption of the index.
var ErrNodeNotFound = fmt.Errorf("indexstore: node not found")

// DuplicateKeyError is returned when a key is inserted twice into a
// unique index.
type DuplicateKeyError struct {
	Index string
	Key   model.Value
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %s in unique index %q", e.Key, e.Index)
}

// Entry pairs a traversed node with its own address.
type Entry struct {
	Loc  model.Location
	Node *pager.IndexNode
}

// Store maintains skip-list indexes within a transaction. Stateless;
// all state lives in the pages.
type Store struct{}

// New creates an index store.
func New() *Store { return &Store{} }

// CreateIndex appends a new index to the collection descriptor and
// materializes its head/tail sentinel nodes. Slot 0 is the primary
// key index; callers create it first.
func (s *Store) CreateIndex(tx *txn.Transaction, col *pager.CollectionPage, name, expression string, unique bool) (*pager.IndexDescriptor, error) {
	head := &pager.IndexNode{
		Key:  model.MinValue(),
		Next: make([]model.Location, MaxLevels),
		Prev: make([]model.Location, MaxLevels),
	}
	tail := &pager.IndexNode{
		Key:  model.MaxValue(),
		Next: make([]model.Location, MaxLevels),
		Prev: make([]model.Location, MaxLevels),
	}

	headLoc, err := s.placeNode(tx, col, head)
	if err != nil {
		return nil, err
	}
	tailLoc, err := s.placeNode(tx, col, tail)
	if err != nil {
		return nil, err
	}
	for i := 0; i < MaxLevels; i++ {
		head.Next[i] = tailLoc
		tail.Prev[i] = headLoc
	}

	desc := &pager.IndexDescriptor{
		Name:       name,
		Expression: expression,
		Unique:     unique,
		Slot:       uint8(len(col.Indexes)),
		Head:       headLoc,
		Tail:       tailLoc,
	}
	col.Indexes = append(col.Indexes, desc)
	tx.MarkDirty(col.ID())
	return desc, nil
}

// AddNode inserts a key into the index at its ordered position and
// returns the new node's address. back references the primary entry
// when inserting into a secondary index.
func (s *Store) AddNode(tx *txn.Transaction, col *pager.CollectionPage, idx *pager.IndexDescriptor, key model.Value, data model.Location, back model.Location) (model.Location, error) {
	levels := randomLevels()

	prevs, nexts, err := s.findPosition(tx, idx, key)
	if err != nil {
		return model.Location{}, err
	}

	if idx.Unique {
		nextNode, err := s.Node(tx, nexts[0])
		if err != nil {
			return model.Location{}, err
		}
		if !nextNode.Key.IsMaxValue() && nextNode.Key.Equal(key) {
			return model.Location{}, &DuplicateKeyError{Index: idx.Name, Key: key}
		}
	}

	node := &pager.IndexNode{
		Key:  key,
		Data: data,
		Back: back,
		Next: make([]model.Location, levels),
		Prev: make([]model.Location, levels),
	}
	loc, err := s.placeNode(tx, col, node)
	if err != nil {
		return model.Location{}, err
	}

	for l := 0; l < levels; l++ {
		node.Prev[l] = prevs[l]
		node.Next[l] = nexts[l]

		prevNode, err := s.Node(tx, prevs[l])
		if err != nil {
			return model.Location{}, err
		}
		prevNode.Next[l] = loc
		tx.MarkDirty(prevs[l].Page)

		nextNode, err := s.Node(tx, nexts[l])
		if err != nil {
			return model.Location{}, err
		}
		nextNode.Prev[l] = loc
		tx.MarkDirty(nexts[l].Page)
	}

	return loc, nil
}

// Find returns the first node whose key equals the given key, or nil.
func (s *Store) Find(tx *txn.Transaction, idx *pager.IndexDescriptor, key model.Value) (*Entry, error) {
	_, nexts, err := s.findPosition(tx, idx, key)
	if err != nil {
		return nil, err
	}
	node, err := s.Node(tx, nexts[0])
	if err != nil {
		return nil, err
	}
	if node.Key.IsMaxValue() || !node.Key.Equal(key) {
		return nil, nil
	}
	return &Entry{Loc: nexts[0], Node: node}, nil
}

// RemoveNode unlinks the entry from every level of the skip list and
// frees its slot. A page the removal empties is released.
func (s *Store) RemoveNode(tx *txn.Transaction, col *pager.CollectionPage, entry *Entry) error {
	node := entry.Node
	for l := 0; l < node.Levels(); l++ {
		prevNode, err := s.Node(tx, node.Prev[l])
		if err != nil {
			return err
		}
		prevNode.Next[l] = node.Next[l]
		tx.MarkDirty(node.Prev[l].Page)

		nextNode, err := s.Node(tx, node.Next[l])
		if err != nil {
			return err
		}
		nextNode.Prev[l] = node.Prev[l]
		tx.MarkDirty(node.Next[l].Page)
	}

	return s.ReleaseSlot(tx, col, entry.Loc)
}

// ReleaseSlot frees a node slot without touching the skip-list links.
// A page left with no nodes would be unreachable from every index
// traversal, so it is released and detached from the collection's
// spare-slot pointer.
func (s *Store) ReleaseSlot(tx *txn.Transaction, col *pager.CollectionPage, loc model.Location) error {
	page, err := tx.IndexPage(loc.Page)
	if err != nil {
		return err
	}
	page.RemoveNode(loc.Slot)
	tx.MarkDirty(page.ID())

	if page.Empty() {
		if col.FreeIndexPage == page.ID() {
			col.FreeIndexPage = model.ZeroPageID
			tx.MarkDirty(col.ID())
		}
		tx.FreePage(page.ID())
	}
	return nil
}

// FindAll returns a lazy, restartable sequence over the index entries
// in key order, excluding the sentinels. A structural error ends the
// sequence with a non-nil error.
func (s *Store) FindAll(tx *txn.Transaction, idx *pager.IndexDescriptor, ascending bool) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		start, stop := idx.Head, idx.Tail
		if !ascending {
			start, stop = idx.Tail, idx.Head
		}

		node, err := s.Node(tx, start)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for {
			var next model.Location
			if ascending {
				next = node.Next[0]
			} else {
				next = node.Prev[0]
			}
			if next == stop {
				return
			}
			nextNode, err := s.Node(tx, next)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(Entry{Loc: next, Node: nextNode}, nil) {
				return
			}
			node = nextNode
		}
	}
}

// Node resolves a node address within the transaction.
func (s *Store) Node(tx *txn.Transaction, loc model.Location) (*pager.IndexNode, error) {
	page, err := tx.IndexPage(loc.Page)
	if err != nil {
		return nil, err
	}
	node, ok := page.Node(loc.Slot)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, loc)
	}
	return node, nil
}

// findPosition walks the skip list and returns, per level, the
// addresses of the nodes between which a node with the key belongs.
// Equal keys are passed on the left, so the level-0 next node is the
// first entry with key >= key.
func (s *Store) findPosition(tx *txn.Transaction, idx *pager.IndexDescriptor, key model.Value) (prevs, nexts []model.Location, err error) {
	prevs = make([]model.Location, MaxLevels)
	nexts = make([]model.Location, MaxLevels)

	curLoc := idx.Head
	cur, err := s.Node(tx, curLoc)
	if err != nil {
		return nil, nil, err
	}

	for level := MaxLevels - 1; level >= 0; level-- {
		for {
			nextLoc := cur.Next[level]
			nextNode, err := s.Node(tx, nextLoc)
			if err != nil {
				return nil, nil, err
			}
			// The tail sentinel is MaxValue, so the walk always stops.
			if nextNode.Key.Compare(key) >= 0 {
				prevs[level] = curLoc
				nexts[level] = nextLoc
				break
			}
			curLoc, cur = nextLoc, nextNode
		}
	}
	return prevs, nexts, nil
}

// placeNode stores a node on the collection's shared index page,
// allocating a fresh page when none has room.
func (s *Store) placeNode(tx *txn.Transaction, col *pager.CollectionPage, node *pager.IndexNode) (model.Location, error) {
	var page *pager.IndexPage
	if col.FreeIndexPage != model.ZeroPageID {
		if p, err := tx.IndexPage(col.FreeIndexPage); err == nil && !p.Full() {
			page = p
		}
	}
	if page == nil {
		p, err := tx.NewIndexPage()
		if err != nil {
			return model.Location{}, err
		}
		page = p
	}

	slot, err := page.AddNode(node)
	if err != nil {
		return model.Location{}, err
	}
	tx.MarkDirty(page.ID())

	if page.Full() {
		col.FreeIndexPage = model.ZeroPageID
	} else {
		col.FreeIndexPage = page.ID()
	}
	tx.MarkDirty(col.ID())

	return model.Location{Page: page.ID(), Slot: slot}, nil
}

// randomLevels draws the node height: each extra level with
// probability 1/2, capped at MaxLevels.
func randomLevels() int {
	levels := 1
	for levels < MaxLevels && rand.Uint64()&1 == 1 {
		levels++
	}
	return levels
}

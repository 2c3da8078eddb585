package pager

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/docbase/model"
)

// PageType identifies the role of a page.
type PageType uint8

const (
	PageEmpty PageType = iota
	PageHeader
	PageCollection
	PageIndex
	PageData
)

// String returns the name of the page type.
func (t PageType) String() string {
	switch t {
	case PageEmpty:
		return "empty"
	case PageHeader:
		return "header"
	case PageCollection:
		return "collection"
	case PageIndex:
		return "index"
	case PageData:
		return "data"
	default:
		return fmt.Sprintf("pagetype(%d)", uint8(t))
	}
}

const (
	// SlotsPerPage bounds the number of nodes/blocks a page can hold.
	SlotsPerPage = 256

	// DataPageCapacity is the payload budget of a data page in bytes.
	// Blocks larger than this spill into overflow pages.
	DataPageCapacity = 8 * 1024

	// MaxDirectorySize bounds the serialized size of the header
	// directory: sum of name lengths plus DirectoryEntryOverhead per
	// entry must stay below this limit.
	MaxDirectorySize = 3000

	// DirectoryEntryOverhead is the fixed per-entry cost in the header
	// directory size accounting.
	DirectoryEntryOverhead = 8
)

// Page is an in-memory page. Transactions never mutate a published
// page: they work on Clone()s and swap them in at commit.
type Page interface {
	ID() model.PageID
	Type() PageType
	Clone() Page
}

type basePage struct {
	id model.PageID
}

func (p basePage) ID() model.PageID { return p.id }

// HeaderPage is the singleton page 0: the collection directory mapping
// collection name to descriptor page.
type HeaderPage struct {
	basePage
	entries map[string]model.PageID
}

// NewHeaderPage returns an empty header page. It always has id 0.
func NewHeaderPage() *HeaderPage {
	return &HeaderPage{entries: make(map[string]model.PageID)}
}

func (p *HeaderPage) Type() PageType { return PageHeader }

// Get returns the descriptor page registered under the exact name.
func (p *HeaderPage) Get(name string) (model.PageID, bool) {
	id, ok := p.entries[name]
	return id, ok
}

// Add registers a collection. The caller is responsible for name and
// size validation.
func (p *HeaderPage) Add(name string, id model.PageID) {
	p.entries[name] = id
}

// Remove drops a collection mapping.
func (p *HeaderPage) Remove(name string) {
	delete(p.entries, name)
}

// Names returns the registered collection names, unordered.
func (p *HeaderPage) Names() []string {
	out := make([]string, 0, len(p.entries))
	for name := range p.entries {
		out = append(out, name)
	}
	return out
}

// SizeUsed returns the serialized directory size used for the
// MaxDirectorySize budget check.
func (p *HeaderPage) SizeUsed() int {
	size := 0
	for name := range p.entries {
		size += len(name) + DirectoryEntryOverhead
	}
	return size
}

// Clone implements Page.
func (p *HeaderPage) Clone() Page {
	entries := make(map[string]model.PageID, len(p.entries))
	for k, v := range p.entries {
		entries[k] = v
	}
	return &HeaderPage{basePage: p.basePage, entries: entries}
}

// IndexDescriptor describes one index of a collection. Slot 0 is
// always the primary key index.
type IndexDescriptor struct {
	Name       string
	Expression string
	Unique     bool
	Slot       uint8
	Head       model.Location
	Tail       model.Location
}

func (d *IndexDescriptor) clone() *IndexDescriptor {
	c := *d
	return &c
}

// CollectionPage is the descriptor page of a collection: its name, the
// monotonic sequence counter and the index descriptors.
type CollectionPage struct {
	basePage
	Name     string
	Sequence int64
	Indexes  []*IndexDescriptor

	// FreeIndexPage / FreeDataPage point at a page of the collection
	// with spare slots, or zero when a fresh page is needed.
	FreeIndexPage model.PageID
	FreeDataPage  model.PageID
}

// NewCollectionPage returns a descriptor page for the given name.
func NewCollectionPage(id model.PageID, name string) *CollectionPage {
	return &CollectionPage{basePage: basePage{id: id}, Name: name}
}

func (p *CollectionPage) Type() PageType { return PageCollection }

// PrimaryIndex returns the mandatory slot-0 index descriptor.
func (p *CollectionPage) PrimaryIndex() *IndexDescriptor {
	return p.Indexes[0]
}

// SecondaryIndexes returns the descriptors above slot 0, in slot order.
func (p *CollectionPage) SecondaryIndexes() []*IndexDescriptor {
	if len(p.Indexes) <= 1 {
		return nil
	}
	return p.Indexes[1:]
}

// Index returns the descriptor with the given name.
func (p *CollectionPage) Index(name string) (*IndexDescriptor, bool) {
	for _, idx := range p.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return nil, false
}

// Clone implements Page.
func (p *CollectionPage) Clone() Page {
	c := *p
	c.Indexes = make([]*IndexDescriptor, len(p.Indexes))
	for i, idx := range p.Indexes {
		c.Indexes[i] = idx.clone()
	}
	return &c
}

// IndexNode is one entry of a skip-list index. Sentinel nodes carry
// the min/max key sentinels and a zero data location.
type IndexNode struct {
	Key  model.Value
	Data model.Location
	// Back references the primary index entry from a secondary entry.
	Back model.Location
	// Next/Prev link the node per skip-list level; level 0 is the full
	// ordered chain.
	Next []model.Location
	Prev []model.Location
}

// Levels returns the skip-list height of the node.
func (n *IndexNode) Levels() int { return len(n.Next) }

func (n *IndexNode) clone() *IndexNode {
	c := &IndexNode{Key: n.Key, Data: n.Data, Back: n.Back}
	c.Next = append([]model.Location(nil), n.Next...)
	c.Prev = append([]model.Location(nil), n.Prev...)
	return c
}

// IndexPage stores index nodes in slots.
type IndexPage struct {
	basePage
	used  *bitset.BitSet
	nodes map[uint16]*IndexNode
}

// NewIndexPage returns an empty index page.
func NewIndexPage(id model.PageID) *IndexPage {
	return &IndexPage{
		basePage: basePage{id: id},
		used:     bitset.New(SlotsPerPage),
		nodes:    make(map[uint16]*IndexNode),
	}
}

func (p *IndexPage) Type() PageType { return PageIndex }

// AddNode stores a node in the next free slot.
func (p *IndexPage) AddNode(n *IndexNode) (uint16, error) {
	slot, ok := p.used.NextClear(0)
	if !ok || slot >= SlotsPerPage {
		return 0, fmt.Errorf("pager: index page %d is full", p.id)
	}
	p.used.Set(slot)
	p.nodes[uint16(slot)] = n
	return uint16(slot), nil
}

// Node returns the node at the slot.
func (p *IndexPage) Node(slot uint16) (*IndexNode, bool) {
	n, ok := p.nodes[slot]
	return n, ok
}

// RemoveNode frees a slot.
func (p *IndexPage) RemoveNode(slot uint16) {
	delete(p.nodes, slot)
	p.used.Clear(uint(slot))
}

// Full reports whether the page has no free slot left.
func (p *IndexPage) Full() bool {
	return uint(len(p.nodes)) >= SlotsPerPage
}

// Empty reports whether the page holds no nodes at all.
func (p *IndexPage) Empty() bool {
	return len(p.nodes) == 0
}

// Nodes returns the slot-to-node mapping. Callers must not mutate it
// outside a transaction-owned copy.
func (p *IndexPage) Nodes() map[uint16]*IndexNode { return p.nodes }

// Clone implements Page.
func (p *IndexPage) Clone() Page {
	nodes := make(map[uint16]*IndexNode, len(p.nodes))
	for slot, n := range p.nodes {
		nodes[slot] = n.clone()
	}
	return &IndexPage{basePage: p.basePage, used: p.used.Clone(), nodes: nodes}
}

// DataBlock is one stored payload chunk. Overflow points at the page
// holding the continuation, or zero when the block is complete.
type DataBlock struct {
	Data     []byte
	Overflow model.PageID
}

// DataPage stores data blocks in slots.
type DataPage struct {
	basePage
	used   *bitset.BitSet
	blocks map[uint16]*DataBlock
	bytes  int
}

// NewDataPage returns an empty data page.
func NewDataPage(id model.PageID) *DataPage {
	return &DataPage{
		basePage: basePage{id: id},
		used:     bitset.New(SlotsPerPage),
		blocks:   make(map[uint16]*DataBlock),
	}
}

func (p *DataPage) Type() PageType { return PageData }

// AddBlock stores a block in the next free slot.
func (p *DataPage) AddBlock(b *DataBlock) (uint16, error) {
	slot, ok := p.used.NextClear(0)
	if !ok || slot >= SlotsPerPage {
		return 0, fmt.Errorf("pager: data page %d is full", p.id)
	}
	p.used.Set(slot)
	p.blocks[uint16(slot)] = b
	p.bytes += len(b.Data)
	return uint16(slot), nil
}

// Block returns the block at the slot.
func (p *DataPage) Block(slot uint16) (*DataBlock, bool) {
	b, ok := p.blocks[slot]
	return b, ok
}

// RemoveBlock frees a slot.
func (p *DataPage) RemoveBlock(slot uint16) {
	if b, ok := p.blocks[slot]; ok {
		p.bytes -= len(b.Data)
		delete(p.blocks, slot)
		p.used.Clear(uint(slot))
	}
}

// FreeBytes returns the remaining payload budget of the page.
func (p *DataPage) FreeBytes() int { return DataPageCapacity - p.bytes }

// Full reports whether the page has no free slot left.
func (p *DataPage) Full() bool {
	return uint(len(p.blocks)) >= SlotsPerPage
}

// Empty reports whether the page holds no blocks.
func (p *DataPage) Empty() bool { return len(p.blocks) == 0 }

// Blocks returns the slot-to-block mapping. Callers must not mutate it
// outside a transaction-owned copy.
func (p *DataPage) Blocks() map[uint16]*DataBlock { return p.blocks }

// Clone implements Page.
func (p *DataPage) Clone() Page {
	blocks := make(map[uint16]*DataBlock, len(p.blocks))
	for slot, b := range p.blocks {
		c := &DataBlock{Data: append([]byte(nil), b.Data...), Overflow: b.Overflow}
		blocks[slot] = c
	}
	return &DataPage{basePage: p.basePage, used: p.used.Clone(), blocks: blocks, bytes: p.bytes}
}

// EmptyPage marks a released page while it sits on the free list.
type EmptyPage struct {
	basePage
}

// NewEmptyPage returns an empty page marker.
func NewEmptyPage(id model.PageID) *EmptyPage {
	return &EmptyPage{basePage: basePage{id: id}}
}

func (p *EmptyPage) Type() PageType { return PageEmpty }

// Clone implements Page.
func (p *EmptyPage) Clone() Page { return &EmptyPage{basePage: p.basePage} }

package pager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docbase/model"
)

func TestPagerNew(t *testing.T) {
	p := New()

	header := p.Header()
	require.NotNil(t, header)
	assert.Equal(t, model.ZeroPageID, header.ID())
	assert.Equal(t, 1, p.PageCount())
	assert.Equal(t, 0, p.FreeCount())
}

func TestPagerAllocate(t *testing.T) {
	t.Run("monotonic ids", func(t *testing.T) {
		p := New()

		assert.Equal(t, model.PageID(1), p.Allocate())
		assert.Equal(t, model.PageID(2), p.Allocate())
		assert.Equal(t, model.PageID(3), p.Allocate())
	})

	t.Run("free list reused lowest first", func(t *testing.T) {
		p := New()

		a, b, c := p.Allocate(), p.Allocate(), p.Allocate()
		p.Apply([]Page{NewDataPage(a), NewDataPage(b), NewDataPage(c)}, nil)

		p.Apply(nil, []model.PageID{c, a})
		assert.Equal(t, 2, p.FreeCount())

		assert.Equal(t, a, p.Allocate())
		assert.Equal(t, c, p.Allocate())
		assert.Equal(t, model.PageID(4), p.Allocate())
	})

	t.Run("unreserve returns id", func(t *testing.T) {
		p := New()

		id := p.Allocate()
		p.Unreserve(id)
		assert.Equal(t, id, p.Allocate())
	})
}

func TestPagerGet(t *testing.T) {
	p := New()

	id := p.Allocate()
	p.Apply([]Page{NewDataPage(id)}, nil)

	page, err := p.Get(id)
	require.NoError(t, err)
	assert.Equal(t, PageData, page.Type())

	_, err = p.Get(model.PageID(99))
	assert.ErrorIs(t, err, ErrPageNotFound)

	p.Apply(nil, []model.PageID{id})
	_, err = p.Get(id)
	assert.ErrorIs(t, err, ErrPageNotFound)
	assert.False(t, p.Allocated(id))
}

func TestPagerApplyNeverReleasesHeader(t *testing.T) {
	p := New()

	p.Apply(nil, []model.PageID{model.ZeroPageID})
	require.NotNil(t, p.Header())
	assert.Equal(t, 0, p.FreeCount())
}

func TestHeaderPageSizeUsed(t *testing.T) {
	h := NewHeaderPage()
	assert.Equal(t, 0, h.SizeUsed())

	h.Add("orders", 1)
	h.Add("users", 2)
	want := len("orders") + len("users") + 2*DirectoryEntryOverhead
	assert.Equal(t, want, h.SizeUsed())

	h.Remove("orders")
	assert.Equal(t, len("users")+DirectoryEntryOverhead, h.SizeUsed())
}

func TestHeaderPageClone(t *testing.T) {
	h := NewHeaderPage()
	h.Add("orders", 1)

	clone := h.Clone().(*HeaderPage)
	clone.Add("users", 2)

	_, ok := h.Get("users")
	assert.False(t, ok, "clone mutation must not leak into the original")
	_, ok = clone.Get("orders")
	assert.True(t, ok)
}

func TestIndexPageSlots(t *testing.T) {
	p := NewIndexPage(7)

	node := &IndexNode{Key: model.Int32(1)}
	slot, err := p.AddNode(node)
	require.NoError(t, err)

	got, ok := p.Node(slot)
	require.True(t, ok)
	assert.Same(t, node, got)

	p.RemoveNode(slot)
	_, ok = p.Node(slot)
	assert.False(t, ok)

	// The freed slot is reusable.
	again, err := p.AddNode(&IndexNode{Key: model.Int32(2)})
	require.NoError(t, err)
	assert.Equal(t, slot, again)
}

func TestIndexPageFull(t *testing.T) {
	p := NewIndexPage(7)
	for i := 0; i < SlotsPerPage; i++ {
		_, err := p.AddNode(&IndexNode{Key: model.Int32(int32(i))})
		require.NoError(t, err)
	}
	assert.True(t, p.Full())

	_, err := p.AddNode(&IndexNode{Key: model.Int32(-1)})
	assert.Error(t, err)
}

func TestDataPageBytesAccounting(t *testing.T) {
	p := NewDataPage(9)
	free := p.FreeBytes()

	slot, err := p.AddBlock(&DataBlock{Data: make([]byte, 100)})
	require.NoError(t, err)
	assert.Equal(t, free-100, p.FreeBytes())
	assert.False(t, p.Empty())

	p.RemoveBlock(slot)
	assert.Equal(t, free, p.FreeBytes())
	assert.True(t, p.Empty())
}

func TestCollectionPageClone(t *testing.T) {
	col := NewCollectionPage(3, "orders")
	col.Sequence = 41
	col.Indexes = append(col.Indexes, &IndexDescriptor{Name: "_id", Unique: true})

	clone := col.Clone().(*CollectionPage)
	clone.Sequence = 99
	clone.Indexes[0].Name = "changed"

	assert.Equal(t, int64(41), col.Sequence)
	assert.Equal(t, "_id", col.Indexes[0].Name)
}

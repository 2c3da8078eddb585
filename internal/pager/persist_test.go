package pager

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docbase/model"
)

func TestSnapshotRoundTrip(t *testing.T) {
	p := New()

	colID, idxID, dataID := p.Allocate(), p.Allocate(), p.Allocate()

	col := NewCollectionPage(colID, "orders")
	col.Sequence = 42
	col.FreeIndexPage = idxID
	col.FreeDataPage = dataID
	col.Indexes = append(col.Indexes, &IndexDescriptor{
		Name:       "_id",
		Expression: "$._id",
		Unique:     true,
		Head:       model.Location{Page: idxID, Slot: 0},
		Tail:       model.Location{Page: idxID, Slot: 1},
	})

	idx := NewIndexPage(idxID)
	node := &IndexNode{
		Key:  model.Int32(7),
		Data: model.Location{Page: dataID, Slot: 0},
		Back: model.Location{Page: idxID, Slot: 0},
		Next: []model.Location{{Page: idxID, Slot: 1}},
		Prev: []model.Location{{Page: idxID, Slot: 0}},
	}
	_, err := idx.AddNode(node)
	require.NoError(t, err)

	data := NewDataPage(dataID)
	_, err = data.AddBlock(&DataBlock{Data: []byte(`{"_id":7}`), Overflow: 99})
	require.NoError(t, err)

	header := p.Header().Clone().(*HeaderPage)
	header.Add("orders", colID)
	p.Apply([]Page{header, col, idx, data}, nil)

	// A released page exercises the free list.
	ghost := p.Allocate()
	p.Apply([]Page{NewDataPage(ghost)}, nil)
	p.Apply(nil, []model.PageID{ghost})

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))

	restored, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, p.PageCount(), restored.PageCount())
	assert.Equal(t, p.FreeCount(), restored.FreeCount())

	id, ok := restored.Header().Get("orders")
	require.True(t, ok)
	assert.Equal(t, colID, id)

	page, err := restored.Get(colID)
	require.NoError(t, err)
	rcol := page.(*CollectionPage)
	assert.Equal(t, "orders", rcol.Name)
	assert.Equal(t, int64(42), rcol.Sequence)
	assert.Equal(t, idxID, rcol.FreeIndexPage)
	assert.Equal(t, dataID, rcol.FreeDataPage)
	require.Len(t, rcol.Indexes, 1)
	assert.Equal(t, *col.Indexes[0], *rcol.Indexes[0])

	page, err = restored.Get(idxID)
	require.NoError(t, err)
	rnode, ok := page.(*IndexPage).Node(0)
	require.True(t, ok)
	assert.Equal(t, node, rnode)

	page, err = restored.Get(dataID)
	require.NoError(t, err)
	rblock, ok := page.(*DataPage).Block(0)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"_id":7}`), rblock.Data)
	assert.Equal(t, model.PageID(99), rblock.Overflow)

	// The freed id stays reusable after a reload.
	_, err = restored.Get(ghost)
	assert.ErrorIs(t, err, ErrPageNotFound)
	assert.Equal(t, ghost, restored.Allocate())
}

func TestSnapshotValueRoundTrip(t *testing.T) {
	oid := model.NewObjectID()
	guid := model.NewGUID()

	values := []model.Value{
		model.MinValue(),
		model.Null(),
		model.Int32(-5),
		model.Int64(1 << 40),
		model.Double(3.25),
		model.String("héllo"),
		model.Binary([]byte{0, 1, 2}),
		oid,
		guid,
		model.Bool(true),
		model.DateTime(time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)),
		model.Array(model.Int32(1), model.String("x")),
		model.Doc(model.Document{"a": model.Int32(1), "b": model.Null()}),
		model.MaxValue(),
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	for _, v := range values {
		require.NoError(t, writeValue(w, v))
	}
	require.NoError(t, w.Flush())

	r := bufio.NewReader(&buf)
	for _, want := range values {
		got, err := readValue(r)
		require.NoError(t, err)
		assert.Equal(t, want.Type(), got.Type())
		assert.True(t, want.Equal(got), "value %s", want)
	}
}

func TestSnapshotRejectsGarbage(t *testing.T) {
	_, err := Load(bytes.NewReader([]byte("not a snapshot at all")))
	assert.Error(t, err)
}

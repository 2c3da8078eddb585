package datastore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
	"github.com/hupe1980/docbase/model"
)

func newCollection(t *testing.T, tx *txn.Transaction) *pager.CollectionPage {
	t.Helper()
	col, err := tx.NewCollectionPage("orders")
	require.NoError(t, err)
	return col
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	return data
}

func TestStoreInsertAndRead(t *testing.T) {
	s := New()
	p := pager.New()
	tx := txn.Begin(p)
	col := newCollection(t, tx)

	loc, err := s.Insert(tx, col, []byte(`{"_id":1}`))
	require.NoError(t, err)
	assert.False(t, loc.IsZero())

	got, err := s.Read(tx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"_id":1}`), got)
}

func TestStoreSharedPage(t *testing.T) {
	s := New()
	p := pager.New()
	tx := txn.Begin(p)
	col := newCollection(t, tx)

	a, err := s.Insert(tx, col, []byte("first"))
	require.NoError(t, err)
	b, err := s.Insert(tx, col, []byte("second"))
	require.NoError(t, err)

	// Small payloads share one data page.
	assert.Equal(t, a.Page, b.Page)
	assert.NotEqual(t, a.Slot, b.Slot)
	assert.Equal(t, a.Page, col.FreeDataPage)
}

func TestStoreOverflow(t *testing.T) {
	s := New()
	p := pager.New()
	tx := txn.Begin(p)
	col := newCollection(t, tx)

	data := payload(ChunkSize*2 + 500)
	loc, err := s.Insert(tx, col, data)
	require.NoError(t, err)

	overflow, err := s.OverflowPages(tx, loc)
	require.NoError(t, err)
	assert.Len(t, overflow, 2)

	got, err := s.Read(tx, loc)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	// The first block holds exactly one chunk.
	block, err := s.GetBlock(tx, loc)
	require.NoError(t, err)
	assert.Len(t, block.Data, ChunkSize)
	assert.NotEqual(t, model.ZeroPageID, block.Overflow)
}

func TestStoreDelete(t *testing.T) {
	s := New()
	p := pager.New()

	tx := txn.Begin(p)
	col := newCollection(t, tx)
	data := payload(ChunkSize + 100)
	loc, err := s.Insert(tx, col, data)
	require.NoError(t, err)
	overflow, err := s.OverflowPages(tx, loc)
	require.NoError(t, err)
	require.Len(t, overflow, 1)
	require.NoError(t, tx.Commit())

	tx = txn.Begin(p)
	col2, err := tx.Collection(col.ID())
	require.NoError(t, err)
	require.NoError(t, s.Delete(tx, col2, loc))
	require.NoError(t, tx.Commit())

	// Overflow page and the emptied shared page are released.
	assert.False(t, p.Allocated(overflow[0]))
	assert.False(t, p.Allocated(loc.Page))
	assert.Equal(t, model.ZeroPageID, col2.FreeDataPage)
}

func TestStoreDeleteKeepsSharedPage(t *testing.T) {
	s := New()
	p := pager.New()
	tx := txn.Begin(p)
	col := newCollection(t, tx)

	a, err := s.Insert(tx, col, []byte("first"))
	require.NoError(t, err)
	b, err := s.Insert(tx, col, []byte("second"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(tx, col, a))

	// The page still carries the second block and stays live.
	got, err := s.Read(tx, b)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	_, err = s.GetBlock(tx, a)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestStoreReadUnknownLocation(t *testing.T) {
	s := New()
	p := pager.New()
	tx := txn.Begin(p)
	col := newCollection(t, tx)

	loc, err := s.Insert(tx, col, []byte("x"))
	require.NoError(t, err)

	_, err = s.Read(tx, model.Location{Page: loc.Page, Slot: 42})
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

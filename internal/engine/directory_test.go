package engine

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/model"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(pager.New(), nil, nil)
}

func TestAdd(t *testing.T) {
	e := newEngine(t)

	tx := e.Begin()
	col, err := e.Add(tx, "orders")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "orders", col.Name)
	assert.Equal(t, int64(0), col.Sequence)

	// The primary index exists from the start and is unique.
	primary := col.PrimaryIndex()
	assert.Equal(t, PrimaryIndexName, primary.Name)
	assert.Equal(t, PrimaryKeyExpression, primary.Expression)
	assert.True(t, primary.Unique)
	assert.Empty(t, col.SecondaryIndexes())

	tx = e.Begin()
	defer tx.Rollback()
	got, err := e.Get(tx, "orders")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, col.ID(), got.ID())
}

func TestAddInvalidNames(t *testing.T) {
	e := newEngine(t)

	for _, name := range []string{"", "1orders", "or ders", "a.b", "tab\tname", "héllo"} {
		t.Run(fmt.Sprintf("%q", name), func(t *testing.T) {
			tx := e.Begin()
			defer tx.Rollback()

			_, err := e.Add(tx, name)
			var invalid *InvalidNameError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, name, invalid.Name)
		})
	}
}

func TestAddValidNames(t *testing.T) {
	e := newEngine(t)

	tx := e.Begin()
	defer tx.Rollback()
	for _, name := range []string{"orders", "_private", "$sys", "a-b", "A1_$-"} {
		_, err := e.Add(tx, name)
		assert.NoError(t, err, "name %q", name)
	}
}

func TestAddDirectoryLimit(t *testing.T) {
	e := newEngine(t)

	tx := e.Begin()
	defer tx.Rollback()

	// Fill the directory close to the limit, then push one entry over.
	filler := strings.Repeat("x", 200)
	created := 0
	for i := 0; ; i++ {
		_, err := e.Add(tx, fmt.Sprintf("%s%d", filler, i))
		if err != nil {
			var limit *LimitError
			require.ErrorAs(t, err, &limit)
			assert.GreaterOrEqual(t, limit.Projected, limit.Limit)
			break
		}
		created++
		require.Less(t, created, 100, "limit never hit")
	}
	assert.Greater(t, created, 0)
}

func TestGetResolvesAnyCasing(t *testing.T) {
	e := newEngine(t)

	tx := e.Begin()
	defer tx.Rollback()
	_, err := e.Add(tx, "Orders")
	require.NoError(t, err)

	// The stored casing is preserved, but lookups fold case.
	for _, name := range []string{"Orders", "orders", "ORDERS"} {
		col, err := e.Get(tx, name)
		require.NoError(t, err)
		require.NotNil(t, col)
		assert.Equal(t, "Orders", col.Name)
	}

	col, err := e.Get(tx, "order")
	require.NoError(t, err)
	assert.Nil(t, col)
}

func TestAddRejectsAnyCasingDuplicate(t *testing.T) {
	e := newEngine(t)

	tx := e.Begin()
	defer tx.Rollback()
	_, err := e.Add(tx, "Items")
	require.NoError(t, err)

	_, err = e.Add(tx, "items")
	var exists *ExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "items", exists.Name)
}

func TestGetAll(t *testing.T) {
	e := newEngine(t)

	tx := e.Begin()
	for _, name := range []string{"users", "orders", "events"} {
		_, err := e.Add(tx, name)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	tx = e.Begin()
	defer tx.Rollback()
	var names []string
	for col, err := range e.GetAll(tx) {
		require.NoError(t, err)
		names = append(names, col.Name)
	}
	assert.ElementsMatch(t, []string{"users", "orders", "events"}, names)
}

func TestRename(t *testing.T) {
	e := newEngine(t)

	_, err := e.Insert("orders", []model.Document{{"v": model.Int32(1)}}, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "orders")
	require.NoError(t, err)
	require.NoError(t, e.Rename(tx, col, "archive"))
	require.NoError(t, tx.Commit())

	tx = e.Begin()
	defer tx.Rollback()
	gone, err := e.Get(tx, "orders")
	require.NoError(t, err)
	assert.Nil(t, gone)

	renamed, err := e.Get(tx, "archive")
	require.NoError(t, err)
	require.NotNil(t, renamed)
	assert.Equal(t, "archive", renamed.Name)

	// Documents survive the rename.
	n, err := e.Count(tx, renamed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRenameConflictIsCaseInsensitive(t *testing.T) {
	e := newEngine(t)

	tx := e.Begin()
	defer tx.Rollback()
	_, err := e.Add(tx, "orders")
	require.NoError(t, err)
	col, err := e.Add(tx, "users")
	require.NoError(t, err)

	var exists *ExistsError
	assert.ErrorAs(t, e.Rename(tx, col, "ORDERS"), &exists)
	assert.ErrorAs(t, e.Rename(tx, col, "users"), &exists)
}

func TestDropReleasesEveryPage(t *testing.T) {
	e := newEngine(t)

	// Documents large enough to force overflow pages, plus a secondary
	// index so multiple indexes contribute pages.
	big := model.String(strings.Repeat("x", 10_000))
	docs := []model.Document{
		{"note": big, "tag": model.String("a")},
		{"note": big, "tag": model.String("b")},
	}
	_, err := e.Insert("orders", docs, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "orders")
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "tag", "$.tag", false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Greater(t, e.Pager().PageCount(), 1)

	tx = e.Begin()
	col, err = e.Get(tx, "orders")
	require.NoError(t, err)
	require.NoError(t, e.Drop(tx, col))
	require.NoError(t, tx.Commit())

	// Only the header page survives; everything else is reusable.
	assert.Equal(t, 1, e.Pager().PageCount())

	tx = e.Begin()
	defer tx.Rollback()
	gone, err := e.Get(tx, "orders")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDropFreesDirectoryBudget(t *testing.T) {
	e := newEngine(t)

	tx := e.Begin()
	_, err := e.Add(tx, "orders")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx = e.Begin()
	col, err := e.Get(tx, "orders")
	require.NoError(t, err)
	require.NoError(t, e.Drop(tx, col))
	require.NoError(t, tx.Commit())

	header := e.Pager().Header()
	assert.Equal(t, 0, header.SizeUsed())
}

func TestGetOrAddConcurrent(t *testing.T) {
	e := newEngine(t)

	// Concurrent writers targeting the same new collection must agree
	// on a single descriptor page.
	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := model.Document{"worker": model.Int32(int32(i))}
			_, errs[i] = e.Insert("events", []model.Document{doc}, model.AutoIDInt32)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	tx := e.Begin()
	defer tx.Rollback()
	var cols []*pager.CollectionPage
	for col, err := range e.GetAll(tx) {
		require.NoError(t, err)
		cols = append(cols, col)
	}
	require.Len(t, cols, 1)

	n, err := e.Count(tx, cols[0])
	require.NoError(t, err)
	assert.Equal(t, writers, n)
	assert.Equal(t, int64(writers), cols[0].Sequence)
}

func TestConcurrentWritersDistinctCollections(t *testing.T) {
	e := newEngine(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("col%d", i)
			docs := []model.Document{
				{"v": model.Int32(1)},
				{"v": model.Int32(2)},
			}
			_, errs[i] = e.Insert(name, docs, model.AutoIDInt32)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	tx := e.Begin()
	defer tx.Rollback()
	for i := 0; i < writers; i++ {
		col, err := e.Get(tx, fmt.Sprintf("col%d", i))
		require.NoError(t, err)
		require.NotNil(t, col)
		n, err := e.Count(tx, col)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}
}

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docbase/internal/indexstore"
	"github.com/hupe1980/docbase/model"
)

// secondaryKeys collects the committed keys of a secondary index with
// their back-referenced primary identities.
func secondaryKeys(t *testing.T, e *Engine, colName, idxName string) map[string][]model.Value {
	t.Helper()
	tx := e.Begin()
	defer tx.Rollback()

	col, err := e.Get(tx, colName)
	require.NoError(t, err)
	require.NotNil(t, col)
	idx, ok := col.Index(idxName)
	require.True(t, ok)

	out := make(map[string][]model.Value)
	for entry, err := range e.index.FindAll(tx, idx, true) {
		require.NoError(t, err)
		require.False(t, entry.Node.Back.IsZero(), "secondary entries carry a back-reference")

		primary, err := e.index.Node(tx, entry.Node.Back)
		require.NoError(t, err)
		id := primary.Key.String()
		out[id] = append(out[id], entry.Node.Key)

		// Both entries resolve the same stored payload.
		assert.Equal(t, primary.Data, entry.Node.Data)
	}
	return out
}

func TestEnsureIndexBackfill(t *testing.T) {
	e := newEngine(t)

	docs := []model.Document{
		{"_id": model.Int32(1), "city": model.String("berlin")},
		{"_id": model.Int32(2), "city": model.String("amsterdam")},
	}
	_, err := e.Insert("users", docs, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "users")
	require.NoError(t, err)
	idx, err := e.EnsureIndex(tx, col, "city", "$.city", false)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), idx.Slot)
	require.NoError(t, tx.Commit())

	keys := secondaryKeys(t, e, "users", "city")
	assert.Equal(t, []model.Value{model.String("berlin")}, keys[model.Int32(1).String()])
	assert.Equal(t, []model.Value{model.String("amsterdam")}, keys[model.Int32(2).String()])
}

func TestEnsureIndexIdempotent(t *testing.T) {
	e := newEngine(t)

	_, err := e.Insert("users", []model.Document{{"city": model.String("x")}}, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "users")
	require.NoError(t, err)

	first, err := e.EnsureIndex(tx, col, "city", "$.city", false)
	require.NoError(t, err)
	second, err := e.EnsureIndex(tx, col, "city", "$.city", false)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Same name, different definition.
	_, err = e.EnsureIndex(tx, col, "city", "$.city", true)
	var exists *ExistsError
	assert.ErrorAs(t, err, &exists)

	// The primary slot is reserved.
	_, err = e.EnsureIndex(tx, col, PrimaryIndexName, "$.other", false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	tx.Rollback()
}

func TestInsertFansOutMultiKey(t *testing.T) {
	e := newEngine(t)

	// Index first, then insert: fan-out happens at write time.
	_, err := e.Insert("posts", []model.Document{}, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "posts")
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "tags", "$.tags[*]", false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	docs := []model.Document{
		{"_id": model.Int32(1), "tags": model.Array(model.String("go"), model.String("db"))},
		{"_id": model.Int32(2), "tags": model.Array()},
		{"_id": model.Int32(3)},
	}
	_, err = e.Insert("posts", docs, model.AutoIDInt32)
	require.NoError(t, err)

	keys := secondaryKeys(t, e, "posts", "tags")
	// Two entries for the first document, none for the empty array,
	// a single null entry for the missing field.
	assert.ElementsMatch(t, []model.Value{model.String("go"), model.String("db")}, keys[model.Int32(1).String()])
	assert.Empty(t, keys[model.Int32(2).String()])
	assert.Equal(t, []model.Value{model.Null()}, keys[model.Int32(3).String()])
}

func TestInsertUniqueSecondaryDeduplicates(t *testing.T) {
	e := newEngine(t)

	_, err := e.Insert("posts", []model.Document{}, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "posts")
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "codes", "$.codes[*]", true)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// Repeated keys within one document collapse to a single entry.
	doc := model.Document{
		"codes": model.Array(model.Int32(7), model.Int32(7), model.Int32(8)),
	}
	_, err = e.Insert("posts", []model.Document{doc}, model.AutoIDInt32)
	require.NoError(t, err)

	keys := secondaryKeys(t, e, "posts", "codes")
	assert.ElementsMatch(t, []model.Value{model.Int32(7), model.Int32(8)}, keys[model.Int32(1).String()])

	// Across documents the unique constraint still holds.
	_, err = e.Insert("posts", []model.Document{{"codes": model.Array(model.Int32(8))}}, model.AutoIDInt32)
	var dup *indexstore.DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}

func TestUpsertRebuildsSecondaryEntries(t *testing.T) {
	e := newEngine(t)

	_, err := e.Insert("posts", []model.Document{}, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "posts")
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "tags", "$.tags[*]", false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	doc := model.Document{
		"_id":  model.Int32(1),
		"tags": model.Array(model.String("old"), model.String("stale")),
	}
	_, err = e.Insert("posts", []model.Document{doc}, model.AutoIDInt32)
	require.NoError(t, err)

	replacement := model.Document{
		"_id":  model.Int32(1),
		"tags": model.Array(model.String("fresh")),
	}
	n, err := e.Upsert("posts", []model.Document{replacement}, model.AutoIDInt32)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	keys := secondaryKeys(t, e, "posts", "tags")
	assert.Equal(t, []model.Value{model.String("fresh")}, keys[model.Int32(1).String()])
}

func TestDropIndex(t *testing.T) {
	e := newEngine(t)

	docs := []model.Document{
		{"_id": model.Int32(1), "city": model.String("berlin")},
		{"_id": model.Int32(2), "city": model.String("paris")},
	}
	_, err := e.Insert("users", docs, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "users")
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "city", "$.city", false)
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "city2", "$.city", false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx = e.Begin()
	col, err = e.Get(tx, "users")
	require.NoError(t, err)
	require.NoError(t, e.DropIndex(tx, col, "city"))
	require.NoError(t, tx.Commit())

	tx = e.Begin()
	defer tx.Rollback()
	col, err = e.Get(tx, "users")
	require.NoError(t, err)

	_, ok := col.Index("city")
	assert.False(t, ok)

	// Remaining descriptors keep contiguous slots.
	city2, ok := col.Index("city2")
	require.True(t, ok)
	assert.Equal(t, uint8(1), city2.Slot)

	// The surviving indexes are intact.
	n := 0
	for entry, err := range e.index.FindAll(tx, city2, true) {
		require.NoError(t, err)
		require.NotNil(t, entry.Node)
		n++
	}
	assert.Equal(t, 2, n)

	count, err := e.Count(tx, col)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDropIndexGuards(t *testing.T) {
	e := newEngine(t)

	_, err := e.Insert("users", []model.Document{}, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	defer tx.Rollback()
	col, err := e.Get(tx, "users")
	require.NoError(t, err)

	assert.ErrorIs(t, e.DropIndex(tx, col, PrimaryIndexName), ErrInvalidArgument)
	assert.ErrorIs(t, e.DropIndex(tx, col, "nope"), ErrInvalidArgument)
}

// Drop releasing shared index pages must not double-free: several
// indexes of one collection place nodes on the same pages.
func TestDropWithSharedIndexPages(t *testing.T) {
	e := newEngine(t)

	_, err := e.Insert("users", []model.Document{}, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "users")
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "a", "$.a", false)
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "b", "$.b", false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	docs := []model.Document{
		{"a": model.Int32(1), "b": model.Int32(2)},
		{"a": model.Int32(3), "b": model.Int32(4)},
	}
	_, err = e.Insert("users", docs, model.AutoIDInt32)
	require.NoError(t, err)

	tx = e.Begin()
	col, err = e.Get(tx, "users")
	require.NoError(t, err)
	require.NoError(t, e.Drop(tx, col))
	require.NoError(t, tx.Commit())

	assert.Equal(t, 1, e.Pager().PageCount())
}

func TestDropIndexReleasesEmptiedPages(t *testing.T) {
	e := newEngine(t)

	// Enough documents that the secondary entries spill past the pages
	// holding the primary chain onto pages of their own.
	var docs []model.Document
	for i := 0; i < 400; i++ {
		docs = append(docs, model.Document{"n": model.Int32(int32(i))})
	}
	_, err := e.Insert("users", docs, model.AutoIDInt32)
	require.NoError(t, err)

	tx := e.Begin()
	col, err := e.Get(tx, "users")
	require.NoError(t, err)
	_, err = e.EnsureIndex(tx, col, "by_n", "$.n", false)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx = e.Begin()
	col, err = e.Get(tx, "users")
	require.NoError(t, err)
	require.NoError(t, e.DropIndex(tx, col, "by_n"))
	require.NoError(t, e.Drop(tx, col))
	require.NoError(t, tx.Commit())

	// Pages the index drop emptied must not outlive the collection.
	assert.Equal(t, 1, e.Pager().PageCount())
}

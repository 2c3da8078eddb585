package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
	"github.com/hupe1980/docbase/model"
)

// Insert stores the documents in the named collection, creating it on
// first use, and returns the number of documents inserted. The batch
// commits once at the end; any failure abandons the whole transaction
// and nothing is persisted.
func (e *Engine) Insert(name string, docs []model.Document, autoID model.AutoID) (int, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: collection name is blank", ErrInvalidArgument)
	}
	if docs == nil {
		return 0, fmt.Errorf("%w: documents are nil", ErrInvalidArgument)
	}

	return e.write(name, func(tx *txn.Transaction, col *pager.CollectionPage) (int, error) {
		for _, doc := range docs {
			if err := e.insertOne(tx, col, doc, autoID); err != nil {
				return 0, err
			}
		}
		return len(docs), nil
	})
}

// Upsert inserts every document that has no identity or whose identity
// matches nothing, and replaces the rest in place. It returns the
// number of documents inserted (not updated). Batch commit semantics
// are identical to Insert.
func (e *Engine) Upsert(name string, docs []model.Document, autoID model.AutoID) (int, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: collection name is blank", ErrInvalidArgument)
	}
	if docs == nil {
		return 0, fmt.Errorf("%w: documents are nil", ErrInvalidArgument)
	}

	return e.write(name, func(tx *txn.Transaction, col *pager.CollectionPage) (int, error) {
		inserted := 0
		for _, doc := range docs {
			if _, hasID := doc.ID(); hasID {
				updated, err := e.updateByID(tx, col, doc)
				if err != nil {
					return 0, err
				}
				if updated {
					continue
				}
			}
			if err := e.insertOne(tx, col, doc, autoID); err != nil {
				return 0, err
			}
			inserted++
		}
		return inserted, nil
	})
}

// write runs fn inside a fresh transaction holding the collection's
// exclusive writer lock, committing on success and rolling back on
// failure.
func (e *Engine) write(name string, fn func(*txn.Transaction, *pager.CollectionPage) (int, error)) (int, error) {
	unlock := e.locks.LockCollection(name)
	defer unlock()

	tx := e.Begin()
	defer tx.Rollback()

	col, release, err := e.GetOrAdd(tx, name)
	defer release()
	if err != nil {
		return 0, err
	}

	n, err := fn(tx, col)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// insertOne applies the full insertion contract for a single document:
// sequence bump, identity assignment and validation, encoding, data
// block persistence, primary index insertion and secondary fan-out.
func (e *Engine) insertOne(tx *txn.Transaction, col *pager.CollectionPage, doc model.Document, autoID model.AutoID) error {
	col.Sequence++
	tx.MarkDirty(col.ID())

	id, hasID := doc.ID()
	if !hasID {
		var err error
		if id, err = e.newIdentity(col, autoID); err != nil {
			return err
		}
		doc.SetID(id)
	} else if autoID == model.AutoIDInt32 || autoID == model.AutoIDInt64 {
		// Bubble rule: a large explicit id leapfrogs the counter so
		// future autos continue after it; a smaller one must not
		// consume a value, so the increment above is rolled back.
		if current, ok := id.Int(); ok {
			if current >= col.Sequence {
				col.Sequence = current
			} else {
				col.Sequence--
			}
		}
	}

	if id.IsNull() || id.IsMinValue() || id.IsMaxValue() {
		return &InvalidIDError{Type: id.Type()}
	}

	data, err := e.codec.Marshal(doc)
	if err != nil {
		return err
	}
	loc, err := e.data.Insert(tx, col, data)
	if err != nil {
		return err
	}

	primaryLoc, err := e.index.AddNode(tx, col, col.PrimaryIndex(), id, loc, model.Location{})
	if err != nil {
		return err
	}

	return e.insertSecondaries(tx, col, doc, loc, primaryLoc)
}

// insertSecondaries fans the document out over every secondary index:
// one entry per produced key value, each at the same data location and
// back-referencing the primary entry.
func (e *Engine) insertSecondaries(tx *txn.Transaction, col *pager.CollectionPage, doc model.Document, data, primary model.Location) error {
	for _, idx := range col.SecondaryIndexes() {
		parsed, err := e.expression(idx.Expression)
		if err != nil {
			return err
		}
		keys := parsed.Execute(doc)
		if idx.Unique {
			keys = distinct(keys)
		}
		for _, key := range keys {
			if _, err := e.index.AddNode(tx, col, idx, key, data, primary); err != nil {
				return err
			}
		}
	}
	return nil
}

// newIdentity synthesizes an identity per the auto-id mode. The
// sequence counter was already incremented for this document.
func (e *Engine) newIdentity(col *pager.CollectionPage, autoID model.AutoID) (model.Value, error) {
	switch autoID {
	case model.AutoIDObjectID:
		return model.NewObjectID(), nil
	case model.AutoIDGUID:
		return model.NewGUID(), nil
	case model.AutoIDDateTime:
		return model.NowDateTime(), nil
	case model.AutoIDInt32:
		// A truncating cast would wrap into already-minted identities.
		if col.Sequence > math.MaxInt32 {
			return model.Value{}, fmt.Errorf("%w: collection %q passed %d int32 ids", ErrSequenceExhausted, col.Name, math.MaxInt32)
		}
		return model.Int32(int32(col.Sequence)), nil
	case model.AutoIDInt64:
		return model.Int64(col.Sequence), nil
	default:
		// AutoID is a closed set; treat unknown modes as object ids.
		return model.NewObjectID(), nil
	}
}

// distinct deduplicates key values by index-key equality, preserving
// first-seen order.
func distinct(values []model.Value) []model.Value {
	out := values[:0:0]
	for _, v := range values {
		seen := false
		for _, kept := range out {
			if kept.Equal(v) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, v)
		}
	}
	return out
}

package engine

import (
	"github.com/hupe1980/docbase/internal/indexstore"
	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
	"github.com/hupe1980/docbase/model"
)

// updateByID replaces the stored document carrying the same identity.
// It reports false when no document matches, leaving the caller to
// fall back to an insert. The primary entry keeps its address; data
// block and secondary entries are rebuilt.
func (e *Engine) updateByID(tx *txn.Transaction, col *pager.CollectionPage, doc model.Document) (bool, error) {
	id, hasID := doc.ID()
	if !hasID || id.IsNull() {
		return false, nil
	}

	primary, err := e.index.Find(tx, col.PrimaryIndex(), id)
	if err != nil {
		return false, err
	}
	if primary == nil {
		return false, nil
	}

	if err := e.data.Delete(tx, col, primary.Node.Data); err != nil {
		return false, err
	}
	data, err := e.codec.Marshal(doc)
	if err != nil {
		return false, err
	}
	loc, err := e.data.Insert(tx, col, data)
	if err != nil {
		return false, err
	}
	primary.Node.Data = loc
	tx.MarkDirty(primary.Loc.Page)

	// Rebuild the secondary entries of this document: the indexed
	// fields may have changed. Collect before removing; RemoveNode
	// relinks the chain FindAll walks.
	for _, idx := range col.SecondaryIndexes() {
		var stale []indexstore.Entry
		for entry, err := range e.index.FindAll(tx, idx, true) {
			if err != nil {
				return false, err
			}
			if entry.Node.Back == primary.Loc {
				stale = append(stale, entry)
			}
		}
		for i := range stale {
			if err := e.index.RemoveNode(tx, col, &stale[i]); err != nil {
				return false, err
			}
		}
	}

	if err := e.insertSecondaries(tx, col, doc, loc, primary.Loc); err != nil {
		return false, err
	}
	return true, nil
}

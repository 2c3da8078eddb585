package engine

import (
	"fmt"
	"strings"

	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
)

// DropCollection removes the named collection and releases its pages.
// It reports false when the collection does not exist. The header lock
// is held through commit: drop mutates the directory, which must not
// interleave with concurrent creators.
func (e *Engine) DropCollection(name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, fmt.Errorf("%w: collection name is blank", ErrInvalidArgument)
	}

	unlockCol := e.locks.LockCollection(name)
	defer unlockCol()
	unlockHeader := e.locks.LockHeader()
	defer unlockHeader()

	tx := e.Begin()
	defer tx.Rollback()

	col, err := e.Get(tx, name)
	if err != nil || col == nil {
		return false, err
	}
	if err := e.Drop(tx, col); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// RenameCollection renames a collection, failing when the target name
// collides with an existing collection in any casing.
func (e *Engine) RenameCollection(oldName, newName string) error {
	if strings.TrimSpace(oldName) == "" || strings.TrimSpace(newName) == "" {
		return fmt.Errorf("%w: collection name is blank", ErrInvalidArgument)
	}
	if !collectionNamePattern.MatchString(newName) {
		return &InvalidNameError{Name: newName}
	}

	unlockCol := e.locks.LockCollection(oldName)
	defer unlockCol()
	unlockHeader := e.locks.LockHeader()
	defer unlockHeader()

	tx := e.Begin()
	defer tx.Rollback()

	col, err := e.Get(tx, oldName)
	if err != nil {
		return err
	}
	if col == nil {
		return fmt.Errorf("%w: no collection %q", ErrInvalidArgument, oldName)
	}
	if err := e.Rename(tx, col, newName); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateIndex ensures a secondary index on the named collection,
// creating the collection when absent.
func (e *Engine) CreateIndex(collection, name, expression string, unique bool) error {
	if strings.TrimSpace(collection) == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: blank collection or index name", ErrInvalidArgument)
	}

	_, err := e.write(collection, func(tx *txn.Transaction, col *pager.CollectionPage) (int, error) {
		_, err := e.EnsureIndex(tx, col, name, expression, unique)
		return 0, err
	})
	return err
}

// RemoveIndex drops a secondary index from the named collection.
func (e *Engine) RemoveIndex(collection, name string) error {
	if strings.TrimSpace(collection) == "" {
		return fmt.Errorf("%w: collection name is blank", ErrInvalidArgument)
	}

	unlock := e.locks.LockCollection(collection)
	defer unlock()

	tx := e.Begin()
	defer tx.Rollback()

	col, err := e.Get(tx, collection)
	if err != nil {
		return err
	}
	if col == nil {
		return fmt.Errorf("%w: no collection %q", ErrInvalidArgument, collection)
	}
	if err := e.DropIndex(tx, col, name); err != nil {
		return err
	}
	return tx.Commit()
}

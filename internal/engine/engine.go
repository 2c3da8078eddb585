// Package engine is the transactional core of docbase: it manages the
// collection directory and orchestrates document writes, keeping the
// header, collection descriptors, indexes and data blocks mutually
// consistent under concurrent writers.
package engine

import (
	"log/slog"
	"sync"

	"github.com/hupe1980/docbase/codec"
	"github.com/hupe1980/docbase/expr"
	"github.com/hupe1980/docbase/internal/datastore"
	"github.com/hupe1980/docbase/internal/indexstore"
	"github.com/hupe1980/docbase/internal/pager"
	"github.com/hupe1980/docbase/internal/txn"
)

const (
	// PrimaryIndexName is the name of the mandatory slot-0 index.
	PrimaryIndexName = "_id"
	// PrimaryKeyExpression computes the identity key.
	PrimaryKeyExpression = "$._id"
)

// Engine wires the collaborators the core components operate on.
type Engine struct {
	pager *pager.Pager
	locks *txn.LockService
	data  *datastore.Store
	index *indexstore.Store
	codec codec.Codec

	logger *slog.Logger

	// Parsed key expressions, cached per source text.
	exprMu sync.RWMutex
	exprs  map[string]*expr.Expression
}

// New creates an engine over the pager. A nil codec falls back to
// codec.Default; a nil logger discards output.
func New(p *pager.Pager, c codec.Codec, logger *slog.Logger) *Engine {
	if c == nil {
		c = codec.Default
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		pager:  p,
		locks:  txn.NewLockService(),
		data:   datastore.New(),
		index:  indexstore.New(),
		codec:  c,
		logger: logger,
		exprs:  make(map[string]*expr.Expression),
	}
}

// Pager returns the underlying pager.
func (e *Engine) Pager() *pager.Pager { return e.pager }

// Begin opens a transaction.
func (e *Engine) Begin() *txn.Transaction { return txn.Begin(e.pager) }

// expression returns the parsed form of a key expression, cached.
func (e *Engine) expression(source string) (*expr.Expression, error) {
	e.exprMu.RLock()
	parsed, ok := e.exprs[source]
	e.exprMu.RUnlock()
	if ok {
		return parsed, nil
	}

	parsed, err := expr.Parse(source)
	if err != nil {
		return nil, err
	}
	e.exprMu.Lock()
	e.exprs[source] = parsed
	e.exprMu.Unlock()
	return parsed, nil
}

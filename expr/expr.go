// Package expr evaluates index key expressions against documents.
//
// An expression is a path rooted at `$` (the document itself):
//
//	$            the whole document
//	$.name       a top-level field
//	$.a.b        a nested field
//	$.tags[*]    every element of an array field (multi-key fan-out)
//	$.a[*].b     a field of every element
//
// Evaluation yields a sequence of key values. A path that crosses a
// `[*]` segment yields one value per element; a missing field yields
// null, so documents without the field are still indexed.
package expr

import (
	"fmt"
	"strings"

	"github.com/hupe1980/docbase/model"
)

// Expression is a parsed key expression. Safe for concurrent use.
type Expression struct {
	source   string
	segments []segment
}

type segment struct {
	field    string
	wildcard bool // expand arrays after stepping into field
}

// Parse parses a key expression.
func Parse(source string) (*Expression, error) {
	s := strings.TrimSpace(source)
	if s == "" {
		return nil, fmt.Errorf("expr: empty expression")
	}
	if s[0] != '$' {
		return nil, fmt.Errorf("expr: expression must start with '$': %q", source)
	}
	rest := s[1:]
	e := &Expression{source: s}
	for rest != "" {
		if rest[0] != '.' {
			return nil, fmt.Errorf("expr: expected '.' at %q", rest)
		}
		rest = rest[1:]
		end := strings.IndexAny(rest, ".[")
		var field string
		if end < 0 {
			field, rest = rest, ""
		} else {
			field, rest = rest[:end], rest[end:]
		}
		if field == "" {
			return nil, fmt.Errorf("expr: empty field name in %q", source)
		}
		seg := segment{field: field}
		if strings.HasPrefix(rest, "[*]") {
			seg.wildcard = true
			rest = rest[3:]
		} else if strings.HasPrefix(rest, "[") {
			return nil, fmt.Errorf("expr: only [*] indexing is supported: %q", source)
		}
		e.segments = append(e.segments, seg)
	}
	return e, nil
}

// MustParse parses a key expression and panics on error. For constant
// expressions (the primary key path) and tests.
func MustParse(source string) *Expression {
	e, err := Parse(source)
	if err != nil {
		panic(err)
	}
	return e
}

// Source returns the original expression text.
func (e *Expression) Source() string { return e.source }

// String implements fmt.Stringer.
func (e *Expression) String() string { return e.source }

// Execute evaluates the expression against the document and returns
// the produced key values in document order. Missing fields surface as
// null so documents without the field are still indexed; a `[*]` over
// an empty array yields no values at all.
func (e *Expression) Execute(doc model.Document) []model.Value {
	values := []model.Value{model.Doc(doc)}
	for _, seg := range e.segments {
		next := values[:0:0]
		for _, v := range values {
			d, ok := v.Document()
			if !ok {
				next = append(next, model.Null())
				continue
			}
			stepped := d.Get(seg.field)
			if !seg.wildcard {
				next = append(next, stepped)
				continue
			}
			items, ok := stepped.Items()
			if !ok {
				// [*] over a non-array degrades to the single value
				// so scalar and array fields can share one index.
				next = append(next, stepped)
				continue
			}
			next = append(next, items...)
		}
		values = next
	}
	return values
}

// First evaluates the expression and returns only the first produced
// value, or null when the expression yields nothing. Single-valued
// callers (the primary key path) use this.
func (e *Expression) First(doc model.Document) model.Value {
	values := e.Execute(doc)
	if len(values) == 0 {
		return model.Null()
	}
	return values[0]
}

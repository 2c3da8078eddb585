package model

import (
	"fmt"
)

// PageID is the unique identifier for a page owned by the pager.
// Page 0 is always the header page, so 0 doubles as the nil page
// reference in chains and descriptors.
type PageID uint32

// ZeroPageID marks the absence of a page (overflow chains, free lists).
const ZeroPageID PageID = 0

// Location identifies a slot within a page: the address of a data
// block or of an index node.
type Location struct {
	Page PageID
	Slot uint16
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Page == ZeroPageID && l.Slot == 0
}

// String returns a string representation of the Location.
func (l Location) String() string {
	return fmt.Sprintf("Loc(%d:%d)", l.Page, l.Slot)
}

// AutoID selects the generator used for documents inserted without an
// identity field. Handling must be exhaustive over all variants.
type AutoID uint8

const (
	// AutoIDObjectID mints a fresh 12-byte globally-unique id.
	AutoIDObjectID AutoID = iota
	// AutoIDGUID mints a fresh random 128-bit id.
	AutoIDGUID
	// AutoIDDateTime uses the current timestamp.
	AutoIDDateTime
	// AutoIDInt32 uses the collection sequence counter, as int32.
	AutoIDInt32
	// AutoIDInt64 uses the collection sequence counter, as int64.
	AutoIDInt64
)

// String returns the name of the auto-id mode.
func (a AutoID) String() string {
	switch a {
	case AutoIDObjectID:
		return "objectid"
	case AutoIDGUID:
		return "guid"
	case AutoIDDateTime:
		return "datetime"
	case AutoIDInt32:
		return "int32"
	case AutoIDInt64:
		return "int64"
	default:
		return fmt.Sprintf("autoid(%d)", uint8(a))
	}
}

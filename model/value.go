package model

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// Type enumerates the kinds a Value can hold.
type Type uint8

const (
	// TypeMinValue sorts before every other value. Reserved for the
	// head sentinel of an index; never a legal document identity.
	TypeMinValue Type = iota
	TypeNull
	TypeInt32
	TypeInt64
	TypeDouble
	TypeString
	TypeBinary
	TypeObjectID
	TypeGUID
	TypeBool
	TypeDateTime
	TypeArray
	TypeDocument
	// TypeMaxValue sorts after every other value. Reserved for the
	// tail sentinel of an index; never a legal document identity.
	TypeMaxValue
)

// String returns the name of the type.
func (t Type) String() string {
	switch t {
	case TypeMinValue:
		return "minvalue"
	case TypeNull:
		return "null"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	case TypeObjectID:
		return "objectid"
	case TypeGUID:
		return "guid"
	case TypeBool:
		return "bool"
	case TypeDateTime:
		return "datetime"
	case TypeArray:
		return "array"
	case TypeDocument:
		return "document"
	case TypeMaxValue:
		return "maxvalue"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Value is an immutable tagged union over every type a document field
// (and therefore an index key) can hold. The zero Value is Null.
//
// Values of different types are mutually comparable: Compare defines a
// total order so any two index keys can be ordered. The numeric types
// (int32, int64, double) compare by numeric value, not by type.
type Value struct {
	t   Type
	i   int64
	f   float64
	b   bool
	s   string
	raw []byte
	tm  time.Time
	oid xid.ID
	gid uuid.UUID
	arr []Value
	doc Document
}

// The zero Value must be Null, not MinValue; shift the tag by one
// internally so an uninitialized struct reads back as TypeNull.
func (v Value) Type() Type {
	if v.t == 0 {
		return TypeNull
	}
	return v.t - 1
}

func typed(t Type) Value { return Value{t: t + 1} }

// Null returns the null value.
func Null() Value { return Value{} }

// MinValue returns the minimum sentinel value.
func MinValue() Value { return typed(TypeMinValue) }

// MaxValue returns the maximum sentinel value.
func MaxValue() Value { return typed(TypeMaxValue) }

// Int32 returns an int32 value.
func Int32(v int32) Value {
	val := typed(TypeInt32)
	val.i = int64(v)
	return val
}

// Int64 returns an int64 value.
func Int64(v int64) Value {
	val := typed(TypeInt64)
	val.i = v
	return val
}

// Double returns a float64 value.
func Double(v float64) Value {
	val := typed(TypeDouble)
	val.f = v
	return val
}

// String returns a string value.
func String(v string) Value {
	val := typed(TypeString)
	val.s = v
	return val
}

// Bool returns a boolean value.
func Bool(v bool) Value {
	val := typed(TypeBool)
	val.b = v
	return val
}

// DateTime returns a timestamp value, truncated to millisecond
// precision so values survive serialization round-trips.
func DateTime(v time.Time) Value {
	val := typed(TypeDateTime)
	val.tm = v.UTC().Truncate(time.Millisecond)
	return val
}

// ObjectID returns a 12-byte object-id value.
func ObjectID(v xid.ID) Value {
	val := typed(TypeObjectID)
	val.oid = v
	return val
}

// GUID returns a 128-bit guid value.
func GUID(v uuid.UUID) Value {
	val := typed(TypeGUID)
	val.gid = v
	return val
}

// Binary returns a byte-slice value. The slice is not copied.
func Binary(v []byte) Value {
	val := typed(TypeBinary)
	val.raw = v
	return val
}

// Array returns an array value. The slice is not copied.
func Array(items ...Value) Value {
	val := typed(TypeArray)
	val.arr = items
	return val
}

// Doc returns a nested document value.
func Doc(d Document) Value {
	val := typed(TypeDocument)
	val.doc = d
	return val
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.Type() == TypeNull }

// IsMinValue reports whether the value is the minimum sentinel.
func (v Value) IsMinValue() bool { return v.Type() == TypeMinValue }

// IsMaxValue reports whether the value is the maximum sentinel.
func (v Value) IsMaxValue() bool { return v.Type() == TypeMaxValue }

// IsNumber reports whether the value holds one of the numeric types.
func (v Value) IsNumber() bool {
	switch v.Type() {
	case TypeInt32, TypeInt64, TypeDouble:
		return true
	}
	return false
}

// Int returns the value as int64. Doubles are truncated; non-numeric
// values report ok=false.
func (v Value) Int() (int64, bool) {
	switch v.Type() {
	case TypeInt32, TypeInt64:
		return v.i, true
	case TypeDouble:
		return int64(v.f), true
	}
	return 0, false
}

// Float returns the value as float64 for any numeric type.
func (v Value) Float() (float64, bool) {
	switch v.Type() {
	case TypeInt32, TypeInt64:
		return float64(v.i), true
	case TypeDouble:
		return v.f, true
	}
	return 0, false
}

// Str returns the string payload of a string value.
func (v Value) Str() (string, bool) {
	if v.Type() == TypeString {
		return v.s, true
	}
	return "", false
}

// Time returns the payload of a datetime value.
func (v Value) Time() (time.Time, bool) {
	if v.Type() == TypeDateTime {
		return v.tm, true
	}
	return time.Time{}, false
}

// Items returns the elements of an array value.
func (v Value) Items() ([]Value, bool) {
	if v.Type() == TypeArray {
		return v.arr, true
	}
	return nil, false
}

// Document returns the payload of a nested document value.
func (v Value) Document() (Document, bool) {
	if v.Type() == TypeDocument {
		return v.doc, true
	}
	return nil, false
}

// Bytes returns the payload of a binary value.
func (v Value) Bytes() ([]byte, bool) {
	if v.Type() == TypeBinary {
		return v.raw, true
	}
	return nil, false
}

// Boolean returns the payload of a bool value.
func (v Value) Boolean() (bool, bool) {
	if v.Type() == TypeBool {
		return v.b, true
	}
	return false, false
}

// OID returns the payload of an object-id value.
func (v Value) OID() (xid.ID, bool) {
	if v.Type() == TypeObjectID {
		return v.oid, true
	}
	return xid.ID{}, false
}

// UUID returns the payload of a guid value.
func (v Value) UUID() (uuid.UUID, bool) {
	if v.Type() == TypeGUID {
		return v.gid, true
	}
	return uuid.UUID{}, false
}

// order collapses the numeric types into a single rank so that values
// of different numeric types interleave correctly in an index.
func (v Value) order() int {
	switch v.Type() {
	case TypeMinValue:
		return 0
	case TypeNull:
		return 1
	case TypeInt32, TypeInt64, TypeDouble:
		return 2
	case TypeString:
		return 3
	case TypeBinary:
		return 4
	case TypeObjectID:
		return 5
	case TypeGUID:
		return 6
	case TypeBool:
		return 7
	case TypeDateTime:
		return 8
	case TypeArray:
		return 9
	case TypeDocument:
		return 10
	default: // TypeMaxValue
		return 11
	}
}

// Compare defines the total order used by indexes. It returns a
// negative number when v sorts before other, zero when the values are
// equal as index keys, and a positive number otherwise.
func (v Value) Compare(other Value) int {
	vo, oo := v.order(), other.order()
	if vo != oo {
		return cmpInt(int64(vo), int64(oo))
	}

	switch v.Type() {
	case TypeMinValue, TypeNull, TypeMaxValue:
		return 0
	case TypeInt32, TypeInt64, TypeDouble:
		// Same rank but possibly mixed representation.
		if v.Type() != TypeDouble && other.Type() != TypeDouble {
			return cmpInt(v.i, other.i)
		}
		vf, _ := v.Float()
		of, _ := other.Float()
		switch {
		case vf < of:
			return -1
		case vf > of:
			return 1
		default:
			return 0
		}
	case TypeString:
		return cmpString(v.s, other.s)
	case TypeBinary:
		return bytes.Compare(v.raw, other.raw)
	case TypeObjectID:
		return v.oid.Compare(other.oid)
	case TypeGUID:
		return bytes.Compare(v.gid[:], other.gid[:])
	case TypeBool:
		if v.b == other.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	case TypeDateTime:
		return v.tm.Compare(other.tm)
	case TypeArray:
		for i := 0; i < len(v.arr) && i < len(other.arr); i++ {
			if c := v.arr[i].Compare(other.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(v.arr)), int64(len(other.arr)))
	default: // TypeDocument
		return cmpInt(int64(len(v.doc)), int64(len(other.doc)))
	}
}

// Equal reports whether the two values are equal as index keys.
func (v Value) Equal(other Value) bool { return v.Compare(other) == 0 }

// String returns a debugging representation of the value.
func (v Value) String() string {
	switch v.Type() {
	case TypeMinValue:
		return "$minValue"
	case TypeMaxValue:
		return "$maxValue"
	case TypeNull:
		return "null"
	case TypeInt32, TypeInt64:
		return fmt.Sprintf("%d", v.i)
	case TypeDouble:
		return fmt.Sprintf("%g", v.f)
	case TypeString:
		return fmt.Sprintf("%q", v.s)
	case TypeBinary:
		return fmt.Sprintf("bin(%d)", len(v.raw))
	case TypeObjectID:
		return v.oid.String()
	case TypeGUID:
		return v.gid.String()
	case TypeBool:
		return fmt.Sprintf("%t", v.b)
	case TypeDateTime:
		return v.tm.Format(time.RFC3339Nano)
	case TypeArray:
		return fmt.Sprintf("array(%d)", len(v.arr))
	default:
		return fmt.Sprintf("document(%d)", len(v.doc))
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

package model

// IDField is the identity field of every stored document.
const IDField = "_id"

// Document is a set of named fields. Field order is not significant;
// the identity lives under IDField.
type Document map[string]Value

// NewDocument returns an empty document.
func NewDocument() Document { return make(Document) }

// ID returns the document identity and whether it is present.
func (d Document) ID() (Value, bool) {
	v, ok := d[IDField]
	return v, ok
}

// SetID sets the document identity.
func (d Document) SetID(v Value) { d[IDField] = v }

// Get returns the value of a field, or Null if absent.
func (d Document) Get(name string) Value {
	if v, ok := d[name]; ok {
		return v
	}
	return Null()
}

// Set sets a field.
func (d Document) Set(name string, v Value) { d[name] = v }

// Clone returns a shallow copy of the document. Nested arrays and
// documents are shared; Values are immutable so this is safe for
// everything except aliased Binary payloads.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

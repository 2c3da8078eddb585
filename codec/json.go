package codec

import (
	"encoding/json"

	"github.com/hupe1980/docbase/model"
)

// JSON is the standard-library JSON codec.
//
// Documents use a small extended-JSON syntax (see package model) so
// object ids, guids, datetimes and binary fields survive round-trips.
//
// If you need custom encoding (e.g. protobuf/msgpack), implement Codec
// and set it on the database via an option.
type JSON struct{}

// Marshal encodes the document to JSON.
func (JSON) Marshal(doc model.Document) ([]byte, error) {
	return model.Doc(doc).MarshalJSON()
}

// Unmarshal decodes the JSON data into a document.
func (JSON) Unmarshal(data []byte) (model.Document, error) {
	var v model.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	doc, ok := v.Document()
	if !ok {
		return nil, errNotDocument(v)
	}
	return doc, nil
}

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
//
// NOTE: This affects newly-written data blocks. Persisted snapshots are
// self-describing (they store the codec name in their header) and are
// opened by selecting the appropriate codec by name.
var Default Codec = GoJSON{}

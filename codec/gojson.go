package codec

import (
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/docbase/model"
)

// GoJSON is a JSON codec backed by github.com/goccy/go-json.
//
// It produces the same extended-JSON bytes as the JSON codec; the two
// are interchangeable on disk and differ only in speed.
type GoJSON struct{}

// Marshal encodes the document to JSON.
func (GoJSON) Marshal(doc model.Document) ([]byte, error) {
	return gojson.Marshal(model.Doc(doc))
}

// Unmarshal decodes the JSON data into a document.
func (GoJSON) Unmarshal(data []byte) (model.Document, error) {
	var v model.Value
	if err := gojson.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	doc, ok := v.Document()
	if !ok {
		return nil, errNotDocument(v)
	}
	return doc, nil
}

// Name returns the unique name of the codec ("go-json").
func (GoJSON) Name() string { return "go-json" }

func errNotDocument(v model.Value) error {
	return fmt.Errorf("codec: expected a document, decoded %s", v.Type())
}

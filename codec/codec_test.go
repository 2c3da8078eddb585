package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docbase/model"
)

func testDoc() model.Document {
	return model.Document{
		"_id":  model.NewObjectID(),
		"name": model.String("widget"),
		"qty":  model.Int32(3),
		"big":  model.Int64(1 << 40),
		"when": model.DateTime(time.Now()),
		"tags": model.Array(model.String("a"), model.String("b")),
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			doc := testDoc()
			data, err := c.Marshal(doc)
			require.NoError(t, err)

			got, err := c.Unmarshal(data)
			require.NoError(t, err)
			require.Len(t, got, len(doc))
			for k, want := range doc {
				assert.Zero(t, want.Compare(got[k]), "field %s", k)
			}
		})
	}
}

func TestCodecs_Interchangeable(t *testing.T) {
	doc := testDoc()
	data := MustMarshal(JSON{}, doc)

	got, err := GoJSON{}.Unmarshal(data)
	require.NoError(t, err)
	for k, want := range doc {
		assert.Zero(t, want.Compare(got[k]), "field %s", k)
	}
}

func TestCodec_RejectsNonDocument(t *testing.T) {
	_, err := JSON{}.Unmarshal([]byte(`[1,2,3]`))
	require.Error(t, err)
}

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.Equal(t, "go-json", c.Name())

	_, ok = ByName("msgpack")
	assert.False(t, ok)
}

package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// Values round-trip through JSON using a small extended syntax for the
// types plain JSON cannot express:
//
//	{"$oid": "..."}        object id
//	{"$guid": "..."}       guid
//	{"$date": "..."}       datetime (RFC 3339, millisecond precision)
//	{"$binary": "..."}     base64 bytes
//	{"$numberLong": "..."} int64
//	{"$minValue": 1}       minimum sentinel
//	{"$maxValue": 1}       maximum sentinel
//
// Plain JSON numbers decode as int32 when they fit, int64 otherwise,
// and double when they carry a fraction or exponent. A double with an
// integral value therefore normalizes to an integer across a
// round-trip; Compare treats all numeric types alike, so index keys
// and identities are unaffected.

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type() {
	case TypeNull:
		return []byte("null"), nil
	case TypeMinValue:
		return []byte(`{"$minValue":1}`), nil
	case TypeMaxValue:
		return []byte(`{"$maxValue":1}`), nil
	case TypeInt32:
		return strconv.AppendInt(nil, v.i, 10), nil
	case TypeInt64:
		return []byte(fmt.Sprintf(`{"$numberLong":"%d"}`, v.i)), nil
	case TypeDouble:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return nil, fmt.Errorf("model: cannot encode %g as JSON", v.f)
		}
		return json.Marshal(v.f)
	case TypeString:
		return json.Marshal(v.s)
	case TypeBool:
		return strconv.AppendBool(nil, v.b), nil
	case TypeDateTime:
		return []byte(fmt.Sprintf(`{"$date":%q}`, v.tm.Format(time.RFC3339Nano))), nil
	case TypeObjectID:
		return []byte(fmt.Sprintf(`{"$oid":%q}`, v.oid.String())), nil
	case TypeGUID:
		return []byte(fmt.Sprintf(`{"$guid":%q}`, v.gid.String())), nil
	case TypeBinary:
		return []byte(fmt.Sprintf(`{"$binary":%q}`, base64.StdEncoding.EncodeToString(v.raw))), nil
	case TypeArray:
		return json.Marshal(v.arr)
	default: // TypeDocument
		return json.Marshal(v.doc)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := fromJSON(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func fromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return numberValue(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			val, err := fromJSON(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = val
		}
		return Array(items...), nil
	case map[string]any:
		if val, ok, err := extendedValue(x); ok || err != nil {
			return val, err
		}
		doc := make(Document, len(x))
		for k, item := range x {
			val, err := fromJSON(item)
			if err != nil {
				return Value{}, err
			}
			doc[k] = val
		}
		return Doc(doc), nil
	default:
		return Value{}, fmt.Errorf("model: unsupported JSON value %T", raw)
	}
}

// extendedValue decodes the {"$tag": ...} forms. A single-field object
// whose key starts with '$' is always an extended value, never a user
// document.
func extendedValue(m map[string]any) (Value, bool, error) {
	if len(m) != 1 {
		return Value{}, false, nil
	}
	for k, raw := range m {
		if len(k) == 0 || k[0] != '$' {
			return Value{}, false, nil
		}
		switch k {
		case "$minValue":
			return MinValue(), true, nil
		case "$maxValue":
			return MaxValue(), true, nil
		case "$numberLong":
			s, ok := raw.(string)
			if !ok {
				return Value{}, true, fmt.Errorf("model: $numberLong expects a string")
			}
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return Value{}, true, err
			}
			return Int64(i), true, nil
		case "$date":
			s, ok := raw.(string)
			if !ok {
				return Value{}, true, fmt.Errorf("model: $date expects a string")
			}
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return Value{}, true, err
			}
			return DateTime(t), true, nil
		case "$oid":
			s, ok := raw.(string)
			if !ok {
				return Value{}, true, fmt.Errorf("model: $oid expects a string")
			}
			id, err := xid.FromString(s)
			if err != nil {
				return Value{}, true, err
			}
			return ObjectID(id), true, nil
		case "$guid":
			s, ok := raw.(string)
			if !ok {
				return Value{}, true, fmt.Errorf("model: $guid expects a string")
			}
			id, err := uuid.Parse(s)
			if err != nil {
				return Value{}, true, err
			}
			return GUID(id), true, nil
		case "$binary":
			s, ok := raw.(string)
			if !ok {
				return Value{}, true, fmt.Errorf("model: $binary expects a string")
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return Value{}, true, err
			}
			return Binary(b), true, nil
		default:
			return Value{}, true, fmt.Errorf("model: unknown extended value %q", k)
		}
	}
	return Value{}, false, nil
}

func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return Int32(int32(i)), nil
		}
		return Int64(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, err
	}
	return Double(f), nil
}

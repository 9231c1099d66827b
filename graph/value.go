package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindBool
	KindInt
	KindFloat
	KindMap
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a property value: null, string, bool, int, float or a nested
// property map. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	b    bool
	i    int64
	f    float64
	m    *Properties
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Map returns a nested map value. A nil map is null.
func Map(p *Properties) Value {
	if p == nil {
		return Null()
	}
	return Value{kind: KindMap, m: p}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumber reports whether v is an int or a float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns v as a float64 for either numeric kind.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// AsMap returns the nested properties held by v.
func (v Value) AsMap() (*Properties, bool) { return v.m, v.kind == KindMap }

// Equal reports deep equality. Ints and floats compare numerically.
func (v Value) Equal(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		a, _ := v.AsFloat()
		b, _ := o.AsFloat()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.b == o.b
	case KindMap:
		return v.m.Equal(o.m)
	default:
		return false
	}
}

// Interface converts v into plain Go values: nil, string, bool, int64,
// float64 or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindMap:
		return v.m.Interface()
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.s)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindMap:
		data, _ := v.m.MarshalJSON()
		return string(data)
	default:
		return "?"
	}
}

// MarshalJSON implements json.Marshaler. Maps keep insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindMap:
		return v.m.MarshalJSON()
	default:
		return nil, fmt.Errorf("cannot marshal value of kind %s", v.kind)
	}
}

// FromInterface converts decoded configuration data into a Value. Slices are
// not representable and return false.
func FromInterface(x any) (Value, bool) {
	switch t := x.(type) {
	case nil:
		return Null(), true
	case Value:
		return t, true
	case string:
		return String(t), true
	case bool:
		return Bool(t), true
	case int:
		return Int(int64(t)), true
	case int32:
		return Int(int64(t)), true
	case int64:
		return Int(t), true
	case float32:
		return Float(float64(t)), true
	case float64:
		return Float(t), true
	case map[string]any:
		props := NewProperties()
		for _, k := range sortedKeys(t) {
			val, ok := FromInterface(t[k])
			if !ok {
				continue
			}
			props.Set(k, val)
		}
		return Map(props), true
	default:
		return Null(), false
	}
}

// Properties is an insertion-ordered map of field name to Value.
type Properties struct {
	keys   []string
	values map[string]Value
}

// NewProperties creates an empty property map.
func NewProperties() *Properties {
	return &Properties{values: make(map[string]Value)}
}

// Set stores a value. Re-setting a key keeps its original position.
func (p *Properties) Set(key string, v Value) *Properties {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
	return p
}

// Get returns the value for key; a missing key yields null and false.
func (p *Properties) Get(key string) (Value, bool) {
	if p == nil {
		return Null(), false
	}
	v, ok := p.values[key]
	return v, ok
}

// Lookup follows a dotted path through nested maps. Any missing or
// non-map intermediate segment yields null.
func (p *Properties) Lookup(path []string) Value {
	cur := p
	for i, seg := range path {
		v, ok := cur.Get(seg)
		if !ok {
			return Null()
		}
		if i == len(path)-1 {
			return v
		}
		next, ok := v.AsMap()
		if !ok {
			return Null()
		}
		cur = next
	}
	return Map(cur)
}

// Keys returns the field names in insertion order.
func (p *Properties) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Len returns the number of fields.
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Equal reports whether both maps hold the same keys in the same order with
// equal values.
func (p *Properties) Equal(o *Properties) bool {
	if p.Len() != o.Len() {
		return false
	}
	for i, k := range p.keys {
		if o.keys[i] != k || !p.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// Interface converts the map into a map[string]any.
func (p *Properties) Interface() map[string]any {
	out := make(map[string]any, p.Len())
	if p == nil {
		return out
	}
	for _, k := range p.keys {
		out[k] = p.values[k].Interface()
	}
	return out
}

// MarshalJSON implements json.Marshaler preserving key order.
func (p *Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if p != nil {
		for i, k := range p.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			val, err := p.values[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

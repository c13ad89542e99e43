package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
)

// Value is a parsed JSON value. The concrete types are Object, Array,
// String, Number, Bool and Null.
type Value interface {
	isValue()
}

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value Value
}

// Object keeps members in document order.
type Object struct {
	Members []Member
}

// Array is an ordered JSON array.
type Array []Value

// String is a JSON string.
type String string

// Number keeps the literal text of a JSON number.
type Number string

// Bool is a JSON boolean.
type Bool bool

// Null is the JSON null literal.
type Null struct{}

func (Object) isValue() {}
func (Array) isValue()  {}
func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (Null) isValue()   {}

// Get returns the value stored under key. The second result is false when
// the key is absent.
func (o Object) Get(key string) (Value, bool) {
	for _, m := range o.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Without returns a copy of o with every member named key removed.
func (o Object) Without(key string) Object {
	out := Object{Members: make([]Member, 0, len(o.Members))}
	for _, m := range o.Members {
		if m.Key != key {
			out.Members = append(out.Members, m)
		}
	}
	return out
}

// Lookup follows a path of object keys from v.
func Lookup(v Value, path ...string) (Value, bool) {
	cur := v
	for _, key := range path {
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		next, ok := obj.Get(key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// LookupString follows path and returns the string found there, if any.
func LookupString(v Value, path ...string) (string, bool) {
	found, ok := Lookup(v, path...)
	if !ok {
		return "", false
	}
	s, ok := found.(String)
	return string(s), ok
}

// Scalar returns the display text of a scalar value. Objects and arrays
// return false, as do nulls and empty strings.
func Scalar(v Value) (string, bool) {
	switch v := v.(type) {
	case String:
		return string(v), v != ""
	case Number:
		return string(v), v != ""
	case Bool:
		return strconv.FormatBool(bool(v)), true
	}
	return "", false
}

// FromAny converts a value produced by a generic JSON decoder (maps, slices,
// strings, numbers, bools, nil) into a Value. Map keys are sorted so the
// result is deterministic.
func FromAny(v any) Value {
	switch v := v.(type) {
	case nil:
		return Null{}
	case Value:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := Object{Members: make([]Member, 0, len(keys))}
		for _, k := range keys {
			obj.Members = append(obj.Members, Member{Key: k, Value: FromAny(v[k])})
		}
		return obj
	case []any:
		arr := make(Array, 0, len(v))
		for _, e := range v {
			arr = append(arr, FromAny(e))
		}
		return arr
	case string:
		return String(v)
	case bool:
		return Bool(v)
	case float64:
		return Number(strconv.FormatFloat(v, 'f', -1, 64))
	case float32:
		return Number(strconv.FormatFloat(float64(v), 'f', -1, 32))
	case int:
		return Number(strconv.Itoa(v))
	case int64:
		return Number(strconv.FormatInt(v, 10))
	case fmt.Stringer:
		return String(v.String())
	default:
		return String(fmt.Sprint(v))
	}
}

// Encode writes v back out as compact JSON.
func Encode(v Value) []byte {
	var b strings.Builder
	encodeTo(&b, v)
	return []byte(b.String())
}

func encodeTo(b *strings.Builder, v Value) {
	switch v := v.(type) {
	case Object:
		b.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				b.WriteByte(',')
			}
			writeQuoted(b, m.Key)
			b.WriteByte(':')
			encodeTo(b, m.Value)
		}
		b.WriteByte('}')
	case Array:
		b.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeTo(b, e)
		}
		b.WriteByte(']')
	case String:
		writeQuoted(b, string(v))
	case Number:
		b.WriteString(string(v))
	case Bool:
		b.WriteString(strconv.FormatBool(bool(v)))
	default:
		b.WriteString("null")
	}
}

func writeQuoted(b *strings.Builder, s string) {
	quoted, err := json.Marshal(s)
	if err != nil {
		// Invalid UTF-8; fall back to Go quoting which is valid JSON for ASCII.
		b.WriteString(strconv.QuoteToASCII(s))
		return
	}
	b.Write(quoted)
}

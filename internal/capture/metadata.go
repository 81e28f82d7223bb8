package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Documented metadata keys. Other keys are kept as-is.
const (
	MetaTitle       = "title"
	MetaDescription = "description"
	MetaAuthor      = "author"
	MetaWordCount   = "word_count"
	MetaKeywords    = "keywords"
	MetaSiteName    = "site_name"
	MetaTags        = "tags"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueList
)

// Value is a metadata value: a string, number, bool, or list of strings.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []string
}

// String returns a string Value.
func String(s string) Value { return Value{kind: ValueString, str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: ValueNumber, num: n} }

// Int returns a numeric Value from an int.
func Int(n int) Value { return Number(float64(n)) }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }

// List returns a string-list Value.
func List(items ...string) Value {
	return Value{kind: ValueList, list: append([]string(nil), items...)}
}

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// Text renders v as a display string. Lists are comma-joined.
func (v Value) Text() string {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueList:
		var buf bytes.Buffer
		for i, s := range v.list {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(s)
		}
		return buf.String()
	}
	return ""
}

// Strings returns the list items, or a one-element list for a non-empty string.
func (v Value) Strings() []string {
	switch v.kind {
	case ValueList:
		return append([]string(nil), v.list...)
	case ValueString:
		if v.str != "" {
			return []string{v.str}
		}
	}
	return nil
}

// Float returns the numeric value and whether v is a number.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == ValueNumber
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.str)
	case ValueNumber:
		return json.Marshal(v.num)
	case ValueBool:
		return json.Marshal(v.b)
	case ValueList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler.
// Objects and lists containing non-scalar items are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("metadata: empty value")
	}

	switch data[0] {
	case 'n':
		*v = Value{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		for _, item := range raw {
			var elem Value
			if err := elem.UnmarshalJSON(item); err != nil {
				return err
			}
			if elem.kind == ValueList {
				return fmt.Errorf("metadata: nested lists are not supported")
			}
			items = append(items, elem.Text())
		}
		*v = List(items...)
		return nil
	case '{':
		return fmt.Errorf("metadata: nested objects are not supported")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
		return nil
	}
}

// Metadata is an open string-keyed map of scalar or list values.
type Metadata map[string]Value

// GetString returns the text form of key, or "" when absent.
func (m Metadata) GetString(key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	return v.Text()
}

// Has reports whether key is present with a non-null value.
func (m Metadata) Has(key string) bool {
	v, ok := m[key]
	return ok && v.kind != ValueNull
}

// Clone returns a deep copy. A nil map clones to nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		if v.kind == ValueList {
			v = List(v.list...)
		}
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package domain

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
)

// Canonical document keys.
const (
	KeyObjectID           = "objectID"
	KeyLocalID            = "objectLocalID"
	KeyTitle              = "objectTitle"
	KeyClassName          = "objectClassName"
	KeyClassNameHierarchy = "objectClassNameHierarchy"
	KeyLastEdited         = "objectLastEdited"
	KeyCreated            = "objectCreated"
	KeyLink               = "objectLink"
	KeyIndexedTimestamp   = "objectIndexedTimestamp"
	KeyForTemplate        = "objectForTemplate"
	KeySubsiteID          = "objectSubsiteID"
)

// Document is the ordered key/value projection of a record that is sent
// to the remote index. Keys keep their first insertion position; setting
// an existing key replaces its value in place.
type Document struct {
	keys   []string
	values map[string]any
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{values: make(map[string]any)}
}

// Set stores a value under key.
func (d *Document) Set(key string, value any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Delete removes key from the document.
func (d *Document) Delete(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len returns the number of keys.
func (d *Document) Len() int {
	return len(d.keys)
}

// ObjectID returns the document identity.
func (d *Document) ObjectID() string {
	v, _ := d.values[KeyObjectID].(string)
	return v
}

// Merge sets every key of other onto d, in other's order.
func (d *Document) Merge(other *Document) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		d.Set(k, other.values[k])
	}
}

// Map returns a shallow copy of the document as a plain map.
func (d *Document) Map() map[string]any {
	out := make(map[string]any, len(d.keys))
	for _, k := range d.keys {
		out[k] = d.values[k]
	}
	return out
}

// Clone returns a shallow copy that can be modified independently.
func (d *Document) Clone() *Document {
	out := NewDocument()
	out.Merge(d)
	return out
}

// Equal reports whether two documents hold the same keys and values,
// ignoring the given keys.
func (d *Document) Equal(other *Document, ignore ...string) bool {
	a, b := d.Clone(), other.Clone()
	for _, k := range ignore {
		a.Delete(k)
		b.Delete(k)
	}
	if a.Len() != b.Len() {
		return false
	}
	for i, k := range a.keys {
		if b.keys[i] != k {
			return false
		}
		if !reflect.DeepEqual(a.values[k], b.values[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the document as a JSON object preserving key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DocumentFromMap builds a document from a map, ordering keys with the
// canonical keys first and the remainder sorted.
func DocumentFromMap(m map[string]any) *Document {
	d := NewDocument()
	for _, k := range []string{
		KeyObjectID, KeyLocalID, KeyTitle, KeyClassName, KeyClassNameHierarchy,
		KeyLastEdited, KeyCreated, KeyLink,
	} {
		if v, ok := m[k]; ok {
			d.Set(k, v)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !d.Has(k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		d.Set(k, m[k])
	}
	return d
}

// Normalise returns the document as generic JSON values, the form it takes
// after a round trip through the remote index.
func (d *Document) Normalise() (map[string]any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SameContent compares two documents by their JSON content, ignoring key
// order and the given keys. Documents that cannot be encoded never match.
func SameContent(a, b *Document, ignore ...string) bool {
	if a == nil || b == nil {
		return a == b
	}
	na, err := a.Normalise()
	if err != nil {
		return false
	}
	nb, err := b.Normalise()
	if err != nil {
		return false
	}
	for _, k := range ignore {
		delete(na, k)
		delete(nb, k)
	}
	return reflect.DeepEqual(na, nb)
}

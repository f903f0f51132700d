package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FieldKind identifies the storage type of a record field.
// Extraction dispatches on the kind rather than on the Go type of the value.
type FieldKind string

// Field kinds understood by the attribute extractor.
const (
	FieldString     FieldKind = "string"
	FieldStringList FieldKind = "string_list"
	FieldText       FieldKind = "text"
	FieldHTML       FieldKind = "html"
	FieldBool       FieldKind = "bool"
	FieldInt        FieldKind = "int"
	FieldFloat      FieldKind = "float"
	FieldDate       FieldKind = "date"
	FieldDatetime   FieldKind = "datetime"
	FieldForeignKey FieldKind = "foreign_key"
	FieldEnum       FieldKind = "enum"
)

// FieldValue is a typed field value held by a record.
type FieldValue struct {
	Kind  FieldKind `json:"kind"`
	Value any       `json:"value"`
}

// String returns the display form of the value.
func (v FieldValue) String() string {
	switch val := v.Value.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case time.Time:
		if v.Kind == FieldDate {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	case float64:
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprint(val)
	}
}

// IsEmpty reports whether the value carries no content.
// Booleans are never empty so that false is still indexed.
func (v FieldValue) IsEmpty() bool {
	if v.Kind == FieldBool {
		return false
	}
	switch val := v.Value.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case time.Time:
		return val.IsZero()
	}
	return false
}

// Convenience constructors for field values.

func StringValue(s string) FieldValue       { return FieldValue{Kind: FieldString, Value: s} }
func TextValue(s string) FieldValue         { return FieldValue{Kind: FieldText, Value: s} }
func HTMLValue(s string) FieldValue         { return FieldValue{Kind: FieldHTML, Value: s} }
func BoolValue(b bool) FieldValue           { return FieldValue{Kind: FieldBool, Value: b} }
func IntValue(i int64) FieldValue           { return FieldValue{Kind: FieldInt, Value: i} }
func FloatValue(f float64) FieldValue       { return FieldValue{Kind: FieldFloat, Value: f} }
func DateValue(t time.Time) FieldValue      { return FieldValue{Kind: FieldDate, Value: t} }
func DatetimeValue(t time.Time) FieldValue  { return FieldValue{Kind: FieldDatetime, Value: t} }
func StringListValue(s []string) FieldValue { return FieldValue{Kind: FieldStringList, Value: s} }
func ForeignKeyValue(id int64) FieldValue   { return FieldValue{Kind: FieldForeignKey, Value: id} }
func EnumValue(s string) FieldValue         { return FieldValue{Kind: FieldEnum, Value: s} }

// RelationKind describes the cardinality of a relation.
type RelationKind string

// Relation kinds.
const (
	HasOne   RelationKind = "has_one"
	HasMany  RelationKind = "has_many"
	ManyMany RelationKind = "many_many"
)

// Relation points from a record to related records by local id.
type Relation struct {
	Kind        RelationKind `json:"kind"`
	TargetClass string       `json:"target_class"`
	IDs         []int64      `json:"ids"`
}

// IsCollection reports whether the relation yields a list.
func (r Relation) IsCollection() bool {
	return r.Kind == HasMany || r.Kind == ManyMany
}

// IndexingState is the per-record bookkeeping of the indexing pipeline.
type IndexingState struct {
	// SearchUUID is the record's document identity in the remote index.
	SearchUUID string

	// LastIndexedAt is nil when the record is not in the remote index.
	LastIndexedAt *time.Time

	// LastError holds the message of the last failed indexing attempt.
	LastError string

	// IndexedClassName is the class the record had when it was last indexed.
	IndexedClassName string
}

// Record is a content entity owned by the record store.
type Record struct {
	// ID is the local identifier, unique within the store.
	ID int64

	// ClassName is the record's most-derived class.
	ClassName string

	Title string

	// Link is the canonical URL of the record, may carry stage parameters.
	Link string

	// ShowInSearch is nil when the class has no such flag.
	ShowInSearch *bool

	// Versioned records are only indexable once published.
	Versioned bool
	Published bool

	Fields    map[string]FieldValue
	Relations map[string]Relation

	Created    time.Time
	LastEdited time.Time

	State IndexingState
}

// Field returns a field value by name.
func (r *Record) Field(name string) (FieldValue, bool) {
	if r.Fields == nil {
		return FieldValue{}, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Relation returns a relation by name.
func (r *Record) Relation(name string) (Relation, bool) {
	if r.Relations == nil {
		return Relation{}, false
	}
	rel, ok := r.Relations[name]
	return rel, ok
}

// IsLive reports whether the record is visible on the live stage.
func (r *Record) IsLive() bool {
	return !r.Versioned || r.Published
}

// IsIndexed reports whether the record is believed to be in the remote index.
func (r *Record) IsIndexed() bool {
	return r.State.LastIndexedAt != nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	if r.ShowInSearch != nil {
		v := *r.ShowInSearch
		out.ShowInSearch = &v
	}
	if r.Fields != nil {
		out.Fields = make(map[string]FieldValue, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	if r.Relations != nil {
		out.Relations = make(map[string]Relation, len(r.Relations))
		for k, v := range r.Relations {
			v.IDs = append([]int64(nil), v.IDs...)
			out.Relations[k] = v
		}
	}
	if r.State.LastIndexedAt != nil {
		t := *r.State.LastIndexedAt
		out.State.LastIndexedAt = &t
	}
	return &out
}

// StageParam is the query parameter stripped from canonical links.
const StageParam = "stage"

// CanonicalLink strips the stage query parameter from a link. The remaining
// query is re-encoded in key order. Unparseable links are returned as is.
func CanonicalLink(link string) string {
	if !strings.Contains(link, "?") {
		return link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	q := u.Query()
	if !q.Has(StageParam) {
		return link
	}
	q.Del(StageParam)
	u.RawQuery = q.Encode()
	return u.String()
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Filter is a predicate over records. Stores evaluate it with Match on
// loaded records; String renders it back in filter syntax.
type Filter interface {
	Match(rec *Record) bool
	String() string
}

// Operator is a comparison operator.
type Operator string

// Comparison operators.
const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpLt      Operator = "<"
	OpLe      Operator = "<="
	OpGt      Operator = ">"
	OpGe      Operator = ">="
	OpIsNull  Operator = "IS NULL"
	OpNotNull Operator = "IS NOT NULL"
)

// Record attributes addressable by filters besides regular fields.
const (
	AttrID           = "ID"
	AttrClassName    = "ClassName"
	AttrTitle        = "Title"
	AttrLink         = "Link"
	AttrShowInSearch = "ShowInSearch"
	AttrPublished    = "Published"
	AttrCreated      = "Created"
	AttrLastEdited   = "LastEdited"
	AttrLastIndexed  = "LastIndexed"
	AttrLastError    = "LastError"
	AttrSearchUUID   = "SearchUUID"
)

// Condition compares one record attribute with a literal.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// And matches when every child matches. An empty And matches everything.
type And []Filter

// Or matches when any child matches. An empty Or matches nothing.
type Or []Filter

// Match implements Filter.
func (a And) Match(rec *Record) bool {
	for _, f := range a {
		if f != nil && !f.Match(rec) {
			return false
		}
	}
	return true
}

func (a And) String() string { return joinFilters([]Filter(a), " AND ") }

// Match implements Filter.
func (o Or) Match(rec *Record) bool {
	for _, f := range o {
		if f != nil && f.Match(rec) {
			return true
		}
	}
	return false
}

func (o Or) String() string { return joinFilters([]Filter(o), " OR ") }

func joinFilters(fs []Filter, sep string) string {
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		if f == nil {
			continue
		}
		parts = append(parts, "("+f.String()+")")
	}
	return strings.Join(parts, sep)
}

// Combine ands the non-nil filters together.
func Combine(filters ...Filter) Filter {
	var out And
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// StalenessFilter selects records never indexed or indexed before cutoff.
func StalenessFilter(cutoff time.Time) Filter {
	return Or{
		Condition{Field: AttrLastIndexed, Op: OpIsNull},
		Condition{Field: AttrLastIndexed, Op: OpLt, Value: cutoff},
	}
}

func (c Condition) String() string {
	switch c.Op {
	case OpIsNull, OpNotNull:
		return c.Field + " " + string(c.Op)
	}
	switch v := c.Value.(type) {
	case string:
		return fmt.Sprintf("%s %s '%s'", c.Field, c.Op, strings.ReplaceAll(v, "'", "''"))
	case time.Time:
		return fmt.Sprintf("%s %s '%s'", c.Field, c.Op, v.UTC().Format(time.RFC3339))
	default:
		return fmt.Sprintf("%s %s %v", c.Field, c.Op, v)
	}
}

// Match implements Filter. Comparisons against a missing value are false,
// as in SQL.
func (c Condition) Match(rec *Record) bool {
	v := AttributeValue(rec, c.Field)
	switch c.Op {
	case OpIsNull:
		return v == nil
	case OpNotNull:
		return v != nil
	}
	if v == nil || c.Value == nil {
		return false
	}
	cmp, ok := compareValues(v, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

// AttributeValue resolves a filterable attribute of a record. Missing
// values resolve to nil.
func AttributeValue(rec *Record, field string) any {
	switch field {
	case AttrID:
		return rec.ID
	case AttrClassName:
		return rec.ClassName
	case AttrTitle:
		return rec.Title
	case AttrLink:
		return rec.Link
	case AttrShowInSearch:
		if rec.ShowInSearch == nil {
			return nil
		}
		return *rec.ShowInSearch
	case AttrPublished:
		return rec.Published
	case AttrCreated:
		return rec.Created
	case AttrLastEdited:
		return rec.LastEdited
	case AttrLastIndexed:
		if rec.State.LastIndexedAt == nil {
			return nil
		}
		return *rec.State.LastIndexedAt
	case AttrLastError:
		if rec.State.LastError == "" {
			return nil
		}
		return rec.State.LastError
	case AttrSearchUUID:
		if rec.State.SearchUUID == "" {
			return nil
		}
		return rec.State.SearchUUID
	}
	fv, ok := rec.Field(field)
	if !ok {
		return nil
	}
	return fv.Value
}

func compareValues(a, b any) (int, bool) {
	if t, ok := a.(time.Time); ok {
		other, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return t.Compare(other), true
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			if f, isNum := toFloat(b); isNum {
				bb, ok = f != 0, true
			}
		}
		if !ok {
			return 0, false
		}
		if ba == bb {
			return 0, true
		}
		if !ba {
			return -1, true
		}
		return 1, true
	}
	sa := fmt.Sprint(a)
	if list, ok := a.([]string); ok {
		sa = strings.Join(list, ",")
	}
	return strings.Compare(sa, fmt.Sprint(b)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// timeLayouts are accepted for date literals.
var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	case int64:
		return time.Unix(t, 0), true
	case float64:
		return time.Unix(int64(t), 0), true
	}
	return time.Time{}, false
}

// ParseFilter parses a SQL-like predicate such as
//
//	Title != 'X' AND (ExpiryDate IS NULL OR ExpiryDate > '2024-01-01')
//
// AND binds tighter than OR. An empty string yields a nil filter.
func ParseFilter(s string) (Filter, error) {
	toks, err := lexFilter(s)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, nil
	}
	p := &filterParser{toks: toks}
	f, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("%w: unexpected %q in filter", ErrInvalidInput, p.toks[p.pos].text)
	}
	return f, nil
}

// MustParseFilter is ParseFilter for literals known to be valid.
func MustParseFilter(s string) Filter {
	f, err := ParseFilter(s)
	if err != nil {
		panic(err)
	}
	return f
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func lexFilter(s string) ([]token, error) {
	var toks []token
	r := []rune(s)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			var sb strings.Builder
			j := i + 1
			closed := false
			for j < len(r) {
				if r[j] == c {
					if j+1 < len(r) && r[j+1] == c {
						sb.WriteRune(c)
						j += 2
						continue
					}
					closed = true
					break
				}
				sb.WriteRune(r[j])
				j++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated string in filter", ErrInvalidInput)
			}
			toks = append(toks, token{tokString, sb.String()})
			i = j + 1
		case strings.ContainsRune("=!<>", c):
			j := i + 1
			if j < len(r) && (r[j] == '=' || (c == '<' && r[j] == '>')) {
				j++
			}
			op := string(r[i:j])
			switch op {
			case "=", "!=", "<>", "<", "<=", ">", ">=":
			default:
				return nil, fmt.Errorf("%w: bad operator %q in filter", ErrInvalidInput, op)
			}
			if op == "<>" {
				op = "!="
			}
			toks = append(toks, token{tokOp, op})
			i = j
		case c == '-' || unicode.IsDigit(c):
			j := i + 1
			for j < len(r) && (unicode.IsDigit(r[j]) || r[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, string(r[i:j])})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i + 1
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_' || r[j] == '.') {
				j++
			}
			toks = append(toks, token{tokIdent, string(r[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected %q in filter", ErrInvalidInput, c)
		}
	}
	return toks, nil
}

type filterParser struct {
	toks []token
	pos  int
}

func (p *filterParser) peekKeyword(kw string) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].kind == tokIdent && strings.EqualFold(p.toks[p.pos].text, kw)
}

func (p *filterParser) parseOr() (Filter, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	or := Or{left}
	for p.peekKeyword("OR") {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		or = append(or, right)
	}
	if len(or) == 1 {
		return left, nil
	}
	return or, nil
}

func (p *filterParser) parseAnd() (Filter, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	and := And{left}
	for p.peekKeyword("AND") {
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		and = append(and, right)
	}
	if len(and) == 1 {
		return left, nil
	}
	return and, nil
}

func (p *filterParser) parseTerm() (Filter, error) {
	if p.pos >= len(p.toks) {
		return nil, fmt.Errorf("%w: filter ends unexpectedly", ErrInvalidInput)
	}
	tok := p.toks[p.pos]
	if tok.kind == tokLParen {
		p.pos++
		f, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')' in filter", ErrInvalidInput)
		}
		p.pos++
		return f, nil
	}
	if tok.kind != tokIdent {
		return nil, fmt.Errorf("%w: expected field name, got %q", ErrInvalidInput, tok.text)
	}
	field := tok.text
	p.pos++

	if p.peekKeyword("IS") {
		p.pos++
		op := OpIsNull
		if p.peekKeyword("NOT") {
			p.pos++
			op = OpNotNull
		}
		if !p.peekKeyword("NULL") {
			return nil, fmt.Errorf("%w: expected NULL after IS", ErrInvalidInput)
		}
		p.pos++
		return Condition{Field: field, Op: op}, nil
	}

	if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokOp {
		return nil, fmt.Errorf("%w: expected operator after %s", ErrInvalidInput, field)
	}
	op := Operator(p.toks[p.pos].text)
	p.pos++

	if p.pos >= len(p.toks) {
		return nil, fmt.Errorf("%w: expected value after %s %s", ErrInvalidInput, field, op)
	}
	lit := p.toks[p.pos]
	p.pos++
	var value any
	switch lit.kind {
	case tokString:
		value = lit.text
	case tokNumber:
		if n, err := strconv.ParseInt(lit.text, 10, 64); err == nil {
			value = n
		} else if f, err := strconv.ParseFloat(lit.text, 64); err == nil {
			value = f
		} else {
			return nil, fmt.Errorf("%w: bad number %q", ErrInvalidInput, lit.text)
		}
	case tokIdent:
		switch strings.ToUpper(lit.text) {
		case "TRUE":
			value = true
		case "FALSE":
			value = false
		case "NULL":
			if op == OpEq {
				return Condition{Field: field, Op: OpIsNull}, nil
			}
			if op == OpNe {
				return Condition{Field: field, Op: OpNotNull}, nil
			}
			return nil, fmt.Errorf("%w: NULL only compares with = or !=", ErrInvalidInput)
		default:
			return nil, fmt.Errorf("%w: unquoted value %q", ErrInvalidInput, lit.text)
		}
	default:
		return nil, fmt.Errorf("%w: expected value, got %q", ErrInvalidInput, lit.text)
	}
	return Condition{Field: field, Op: op, Value: value}, nil
}

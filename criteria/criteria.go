// Package criteria builds immutable WHERE/HAVING predicate trees and lowers them
// to SQL with named placeholders. Values never appear in the generated SQL.
package criteria

import (
	"reflect"
	"strconv"
	"strings"
)

// Operator is a comparison operator of a simple predicate.
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpLike    Operator = "LIKE"
	OpNotLike Operator = "NOT LIKE"
)

// Logic joins two criteria.
type Logic string

const (
	AND Logic = "AND"
	OR  Logic = "OR"
)

// Criteria is a node of a predicate tree.
type Criteria interface {
	// SQL returns the boolean expression with :name placeholders.
	SQL() string
	// Params returns the values for every placeholder in SQL.
	Params() map[string]any
	And(other Criteria) Criteria
	Or(other Criteria) Criteria

	render(w *writer)
}

// writer renders a tree left to right, allocating placeholder names so that
// two leaves on the same field never share a name.
type writer struct {
	sb     strings.Builder
	params map[string]any
}

func newWriter() *writer {
	return &writer{params: make(map[string]any)}
}

// reserve returns base if unused, else the first free base_<n> with n >= 2.
func (w *writer) reserve(base string) string {
	if _, used := w.params[base]; !used {
		return base
	}
	for n := 2; ; n++ {
		name := base + "_" + strconv.Itoa(n)
		if _, used := w.params[name]; !used {
			return name
		}
	}
}

// reserveGroup finds a base whose every suffixed name is free.
func (w *writer) reserveGroup(base string, suffixes []string) string {
	free := func(b string) bool {
		for _, s := range suffixes {
			if _, used := w.params[b+s]; used {
				return false
			}
		}
		return true
	}
	if free(base) {
		return base
	}
	for n := 2; ; n++ {
		b := base + "_" + strconv.Itoa(n)
		if free(b) {
			return b
		}
	}
}

func (w *writer) bind(name string, v any) {
	w.params[name] = v
	w.sb.WriteByte(':')
	w.sb.WriteString(name)
}

// ParamName flattens a field reference into a placeholder base name: a.b
// becomes a_b, and any other non identifier byte (as in COUNT(id)) becomes _.
func ParamName(field string) string {
	b := []byte(field)
	for i, c := range b {
		if !isIdentByte(c) {
			b[i] = '_'
		}
	}
	return string(b)
}

// RenderAll renders several trees with one placeholder allocator, as the WHERE
// and HAVING of one statement need. A nil tree renders as "".
func RenderAll(cs ...Criteria) ([]string, map[string]any) {
	w := newWriter()
	out := make([]string, len(cs))
	for i, c := range cs {
		if c == nil {
			continue
		}
		w.sb.Reset()
		c.render(w)
		out[i] = w.sb.String()
	}
	return out, w.params
}

type base struct{ self Criteria }

func (b base) SQL() string {
	w := newWriter()
	b.self.render(w)
	return w.sb.String()
}

func (b base) Params() map[string]any {
	w := newWriter()
	b.self.render(w)
	return w.params
}

func (b base) And(other Criteria) Criteria { return join(b.self, AND, other) }
func (b base) Or(other Criteria) Criteria  { return join(b.self, OR, other) }

func join(left Criteria, op Logic, right Criteria) Criteria {
	if right == nil {
		return left
	}
	if left == nil {
		return right
	}
	c := &composite{left: left, op: op, right: right}
	c.base = base{c}
	return c
}

type simple struct {
	base
	field string
	op    Operator
	value any
}

func (c *simple) render(w *writer) {
	w.sb.WriteString(c.field)
	w.sb.WriteByte(' ')
	w.sb.WriteString(string(c.op))
	w.sb.WriteByte(' ')
	w.bind(w.reserve(ParamName(c.field)), c.value)
}

type in struct {
	base
	field  string
	not    bool
	values []any
}

func (c *in) render(w *writer) {
	if len(c.values) == 0 {
		if c.not {
			w.sb.WriteString("1 = 1")
		} else {
			w.sb.WriteString("1 = 0")
		}
		return
	}
	suffixes := make([]string, len(c.values))
	for i := range c.values {
		suffixes[i] = "_" + strconv.Itoa(i)
	}
	name := w.reserveGroup(ParamName(c.field), suffixes)

	w.sb.WriteString(c.field)
	if c.not {
		w.sb.WriteString(" NOT IN (")
	} else {
		w.sb.WriteString(" IN (")
	}
	for i, v := range c.values {
		if i > 0 {
			w.sb.WriteString(", ")
		}
		w.bind(name+suffixes[i], v)
	}
	w.sb.WriteByte(')')
}

type between struct {
	base
	field      string
	start, end any
}

func (c *between) render(w *writer) {
	name := w.reserveGroup(ParamName(c.field), []string{"_start", "_end"})
	w.sb.WriteString(c.field)
	w.sb.WriteString(" BETWEEN ")
	w.bind(name+"_start", c.start)
	w.sb.WriteString(" AND ")
	w.bind(name+"_end", c.end)
}

type null struct {
	base
	field  string
	isNull bool
}

func (c *null) render(w *writer) {
	w.sb.WriteString(c.field)
	if c.isNull {
		w.sb.WriteString(" IS NULL")
	} else {
		w.sb.WriteString(" IS NOT NULL")
	}
}

type composite struct {
	base
	left  Criteria
	op    Logic
	right Criteria
}

func (c *composite) render(w *writer) {
	w.sb.WriteByte('(')
	c.left.render(w)
	w.sb.WriteByte(' ')
	w.sb.WriteString(string(c.op))
	w.sb.WriteByte(' ')
	c.right.render(w)
	w.sb.WriteByte(')')
}

type not struct {
	base
	inner Criteria
}

func (c *not) render(w *writer) {
	w.sb.WriteString("NOT (")
	c.inner.render(w)
	w.sb.WriteByte(')')
}

func newSimple(field string, op Operator, value any) Criteria {
	c := &simple{field: field, op: op, value: value}
	c.base = base{c}
	return c
}

func Eq(field string, value any) Criteria      { return newSimple(field, OpEq, value) }
func Ne(field string, value any) Criteria      { return newSimple(field, OpNe, value) }
func Gt(field string, value any) Criteria      { return newSimple(field, OpGt, value) }
func Gte(field string, value any) Criteria     { return newSimple(field, OpGte, value) }
func Lt(field string, value any) Criteria      { return newSimple(field, OpLt, value) }
func Lte(field string, value any) Criteria     { return newSimple(field, OpLte, value) }
func Like(field string, value any) Criteria    { return newSimple(field, OpLike, value) }
func NotLike(field string, value any) Criteria { return newSimple(field, OpNotLike, value) }

// In matches any of values. An empty list renders an always-false predicate.
func In(field string, values ...any) Criteria {
	c := &in{field: field, values: append([]any(nil), values...)}
	c.base = base{c}
	return c
}

// NotIn matches none of values. An empty list renders an always-true predicate.
func NotIn(field string, values ...any) Criteria {
	c := &in{field: field, not: true, values: append([]any(nil), values...)}
	c.base = base{c}
	return c
}

// InSlice is In for a slice of any element type, order preserved.
func InSlice(field string, slice any) Criteria { return In(field, flatten(slice)...) }

func NotInSlice(field string, slice any) Criteria { return NotIn(field, flatten(slice)...) }

func Between(field string, start, end any) Criteria {
	c := &between{field: field, start: start, end: end}
	c.base = base{c}
	return c
}

func IsNull(field string) Criteria {
	c := &null{field: field, isNull: true}
	c.base = base{c}
	return c
}

func IsNotNull(field string) Criteria {
	c := &null{field: field}
	c.base = base{c}
	return c
}

func Not(inner Criteria) Criteria {
	if inner == nil {
		return nil
	}
	c := &not{inner: inner}
	c.base = base{c}
	return c
}

// AllOf folds cs with AND, skipping nil entries. It returns nil when nothing is left.
func AllOf(cs ...Criteria) Criteria { return fold(AND, cs) }

// AnyOf folds cs with OR, skipping nil entries.
func AnyOf(cs ...Criteria) Criteria { return fold(OR, cs) }

func fold(op Logic, cs []Criteria) Criteria {
	var out Criteria
	for _, c := range cs {
		if c == nil {
			continue
		}
		out = join(out, op, c)
	}
	return out
}

func flatten(slice any) []any {
	rv := reflect.ValueOf(slice)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{slice}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Placeholders lists the :name placeholders of sql in order of appearance.
// A "::" cast is not a placeholder.
func Placeholders(sql string) []string {
	var names []string
	for i := 0; i < len(sql); i++ {
		if sql[i] != ':' {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == ':' {
			i++
			continue
		}
		j := i + 1
		for j < len(sql) && isIdentByte(sql[j]) {
			j++
		}
		if j > i+1 {
			names = append(names, sql[i+1:j])
		}
		i = j - 1
	}
	return names
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

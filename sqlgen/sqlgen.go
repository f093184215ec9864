// Package sqlgen renders SELECT/INSERT/UPDATE/DELETE/COUNT statements for an
// entity using the same :name placeholder convention as package criteria.
package sqlgen

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"gorm/routeorm/criteria"
	"gorm/routeorm/meta"
)

var (
	ErrUnsafeIdentifier = errors.New("sqlgen: unsafe identifier")
	ErrUnsafeDelete     = errors.New("sqlgen: delete without criteria")
	ErrNoColumns        = errors.New("sqlgen: no columns to write")
)

// Statement is a rendered SQL string and the values of its placeholders.
type Statement struct {
	SQL    string
	Params map[string]any
}

type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

type Order struct {
	Field     string
	Direction Direction
}

// SelectOptions describes a SELECT. Zero values mean "absent".
type SelectOptions struct {
	// Table overrides the metadata table, normally the routed physical name.
	Table   string
	Fields  []string
	Where   criteria.Criteria
	GroupBy []string
	Having  criteria.Criteria
	OrderBy []Order
	Limit   int
	Offset  int
}

func Select(m *meta.EntityMetadata, opts SelectOptions) (Statement, error) {
	table, err := tableOf(m, opts.Table)
	if err != nil {
		return Statement{}, err
	}
	cols := "*"
	if len(opts.Fields) > 0 {
		resolved, err := columns(m, opts.Fields)
		if err != nil {
			return Statement{}, err
		}
		cols = strings.Join(resolved, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(table)

	clauses, params := criteria.RenderAll(opts.Where, opts.Having)
	if opts.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(clauses[0])
	}
	if len(opts.GroupBy) > 0 {
		group, err := columns(m, opts.GroupBy)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(group, ", "))
	}
	if opts.Having != nil {
		sb.WriteString(" HAVING ")
		sb.WriteString(clauses[1])
	}
	if len(opts.OrderBy) > 0 {
		parts := make([]string, 0, len(opts.OrderBy))
		for _, o := range opts.OrderBy {
			col := m.Column(o.Field)
			if !IsSafeIdentifier(col) {
				return Statement{}, errors.Wrapf(ErrUnsafeIdentifier, "order by %q", o.Field)
			}
			dir := ASC
			if strings.EqualFold(string(o.Direction), string(DESC)) {
				dir = DESC
			}
			parts = append(parts, col+" "+string(dir))
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(opts.Offset))
	}
	return Statement{SQL: sb.String(), Params: params}, nil
}

// SelectByID selects one row by primary key.
func SelectByID(m *meta.EntityMetadata, table string, id any) (Statement, error) {
	pk, err := m.RequirePrimaryKey()
	if err != nil {
		return Statement{}, err
	}
	return Select(m, SelectOptions{Table: table, Where: criteria.Eq(pk.Column, id)})
}

func Count(m *meta.EntityMetadata, table string, c criteria.Criteria) (Statement, error) {
	table, err := tableOf(m, table)
	if err != nil {
		return Statement{}, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(table)
	params := make(map[string]any)
	where(&sb, " WHERE ", c, params)
	return Statement{SQL: sb.String(), Params: params}, nil
}

// CountSelect counts the rows opts would select. Ordering and paging are
// ignored; a grouped query counts its groups through a derived table.
func CountSelect(m *meta.EntityMetadata, opts SelectOptions) (Statement, error) {
	if len(opts.GroupBy) == 0 && opts.Having == nil {
		return Count(m, opts.Table, opts.Where)
	}
	opts.OrderBy, opts.Limit, opts.Offset = nil, 0, 0
	if len(opts.Fields) == 0 {
		opts.Fields = opts.GroupBy
	}
	inner, err := Select(m, opts)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT COUNT(*) FROM (" + inner.SQL + ") grouped", Params: inner.Params}, nil
}

// Insert writes every non primary key column, the key is left to the database.
func Insert(m *meta.EntityMetadata, table string, entity any) (Statement, error) {
	table, err := tableOf(m, table)
	if err != nil {
		return Statement{}, err
	}
	if _, err := m.RequirePrimaryKey(); err != nil {
		return Statement{}, err
	}
	cols := writable(m)
	if len(cols) == 0 {
		return Statement{}, errors.Wrapf(ErrNoColumns, "%s", m.Type)
	}
	names := make([]string, len(cols))
	holders := make([]string, len(cols))
	params := make(map[string]any, len(cols))
	for i, f := range cols {
		names[i] = f.Column
		holders[i] = ":" + f.Column
		params[f.Column] = f.Value(entity)
	}
	return Statement{
		SQL:    "INSERT INTO " + table + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(holders, ", ") + ")",
		Params: params,
	}, nil
}

// InsertBatch renders one multi-row INSERT, placeholders are suffixed _<row>.
func InsertBatch(m *meta.EntityMetadata, table string, entities []any) (Statement, error) {
	table, err := tableOf(m, table)
	if err != nil {
		return Statement{}, err
	}
	if _, err := m.RequirePrimaryKey(); err != nil {
		return Statement{}, err
	}
	cols := writable(m)
	if len(cols) == 0 || len(entities) == 0 {
		return Statement{}, errors.Wrapf(ErrNoColumns, "%s", m.Type)
	}
	names := make([]string, len(cols))
	for i, f := range cols {
		names[i] = f.Column
	}
	params := make(map[string]any, len(cols)*len(entities))
	rows := make([]string, len(entities))
	for r, e := range entities {
		holders := make([]string, len(cols))
		for i, f := range cols {
			name := f.Column + "_" + strconv.Itoa(r)
			holders[i] = ":" + name
			params[name] = f.Value(e)
		}
		rows[r] = "(" + strings.Join(holders, ", ") + ")"
	}
	return Statement{
		SQL:    "INSERT INTO " + table + " (" + strings.Join(names, ", ") + ") VALUES " + strings.Join(rows, ", "),
		Params: params,
	}, nil
}

// Update sets every non primary key column where the primary key matches.
func Update(m *meta.EntityMetadata, table string, entity any) (Statement, error) {
	table, err := tableOf(m, table)
	if err != nil {
		return Statement{}, err
	}
	pk, err := m.RequirePrimaryKey()
	if err != nil {
		return Statement{}, err
	}
	cols := writable(m)
	if len(cols) == 0 {
		return Statement{}, errors.Wrapf(ErrNoColumns, "%s", m.Type)
	}
	sets := make([]string, len(cols))
	params := make(map[string]any, len(cols)+1)
	for i, f := range cols {
		sets[i] = f.Column + " = :" + f.Column
		params[f.Column] = f.Value(entity)
	}
	params[pk.Column] = pk.Value(entity)
	return Statement{
		SQL:    "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + pk.Column + " = :" + pk.Column,
		Params: params,
	}, nil
}

func DeleteByID(m *meta.EntityMetadata, table string, id any) (Statement, error) {
	pk, err := m.RequirePrimaryKey()
	if err != nil {
		return Statement{}, err
	}
	return Delete(m, table, criteria.Eq(pk.Column, id))
}

// Delete requires criteria, an unconditional delete is never generated.
func Delete(m *meta.EntityMetadata, table string, c criteria.Criteria) (Statement, error) {
	table, err := tableOf(m, table)
	if err != nil {
		return Statement{}, err
	}
	if c == nil {
		return Statement{}, errors.Wrapf(ErrUnsafeDelete, "%s", table)
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(table)
	params := make(map[string]any)
	where(&sb, " WHERE ", c, params)
	return Statement{SQL: sb.String(), Params: params}, nil
}

func where(sb *strings.Builder, keyword string, c criteria.Criteria, params map[string]any) {
	if c == nil {
		return
	}
	sb.WriteString(keyword)
	sb.WriteString(c.SQL())
	for k, v := range c.Params() {
		params[k] = v
	}
}

func writable(m *meta.EntityMetadata) []*meta.FieldMetadata {
	out := make([]*meta.FieldMetadata, 0, len(m.Fields))
	for _, f := range m.Fields {
		if !f.PrimaryKey {
			out = append(out, f)
		}
	}
	return out
}

func columns(m *meta.EntityMetadata, fields []string) ([]string, error) {
	out := make([]string, 0, len(fields))
	for _, name := range fields {
		col := m.Column(name)
		if !IsSafeIdentifier(col) {
			return nil, errors.Wrapf(ErrUnsafeIdentifier, "%q", name)
		}
		out = append(out, col)
	}
	return out, nil
}

func tableOf(m *meta.EntityMetadata, table string) (string, error) {
	if table == "" {
		table = m.Table
	}
	if !IsSafeIdentifier(table) {
		return "", errors.Wrapf(ErrUnsafeIdentifier, "table %q", table)
	}
	return table, nil
}

// IsSafeIdentifier accepts foo, bar_1 and dotted forms such as schema.table.
func IsSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			if i == 0 && !letter {
				return false
			}
			if !letter && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}

// Package mapper converts raw result rows into entity values.
package mapper

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"gorm.io/gorm/logger"

	"gorm/routeorm/meta"
)

var ErrInvalidDestination = errors.New("mapper: destination must be a non-nil pointer to the entity struct")

// Row is one result row, Values aligned with Columns.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of column, matched case-insensitively.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MappingError reports a row that could not be mapped onto Entity.
type MappingError struct {
	Entity string
	Column string
	Err    error
}

func (e *MappingError) Error() string {
	if e.Column == "" {
		return "mapper: map row to " + e.Entity + ": " + e.Err.Error()
	}
	return "mapper: map column " + e.Column + " of " + e.Entity + ": " + e.Err.Error()
}

func (e *MappingError) Cause() error  { return e.Err }
func (e *MappingError) Unwrap() error { return e.Err }

type Option func(*Mapper)

// Strict makes every conversion failure, JSON included, fail the row.
func Strict() Option { return func(m *Mapper) { m.strict = true } }

func WithLogger(l logger.Interface) Option { return func(m *Mapper) { m.logger = l } }

// Mapper caches a column plan per entity type and is safe for concurrent use.
type Mapper struct {
	strict bool
	logger logger.Interface
	plans  sync.Map // reflect.Type -> *plan
	size   atomic.Int64
}

type plan struct {
	fields map[string]*meta.FieldMetadata
}

func New(opts ...Option) *Mapper {
	m := &Mapper{logger: logger.Default.LogMode(logger.Warn)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var Default = New()

func (m *Mapper) Strict() bool { return m.strict }

func (m *Mapper) plan(md *meta.EntityMetadata) *plan {
	if p, ok := m.plans.Load(md.Type); ok {
		return p.(*plan)
	}
	p := &plan{fields: make(map[string]*meta.FieldMetadata, 2*len(md.Fields))}
	for _, f := range md.Fields {
		p.fields[strings.ToLower(f.Name)] = f
	}
	// columns win over field names
	for _, f := range md.Fields {
		p.fields[strings.ToLower(f.Column)] = f
	}
	actual, loaded := m.plans.LoadOrStore(md.Type, p)
	if !loaded {
		m.size.Add(1)
	}
	return actual.(*plan)
}

// Map writes row into dest, a pointer to md's entity. Fields without a
// matching column are left untouched.
func (m *Mapper) Map(md *meta.EntityMetadata, row Row, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Type() != md.Type {
		return &MappingError{Entity: md.Type.String(), Err: errors.Wrapf(ErrInvalidDestination, "got %T", dest)}
	}
	p := m.plan(md)
	for i, col := range row.Columns {
		if i >= len(row.Values) {
			break
		}
		f, ok := p.fields[strings.ToLower(col)]
		if !ok {
			continue
		}
		fv := f.FieldOf(rv)
		if !fv.IsValid() || !fv.CanSet() {
			continue
		}
		if err := m.assign(f, fv, row.Values[i]); err != nil {
			if m.strict {
				return &MappingError{Entity: md.Type.String(), Column: col, Err: err}
			}
			m.logger.Warn(context.Background(), "mapper: %s.%s left unset: %v", md.Type, f.Name, err)
		}
	}
	return nil
}

// MapRow maps row into a new T. A failed row returns the zero T.
func MapRow[T any](m *Mapper, md *meta.EntityMetadata, row Row) (T, error) {
	var out T
	if err := m.Map(md, row, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (m *Mapper) ClearCache() {
	m.plans.Range(func(k, _ any) bool {
		m.plans.Delete(k)
		return true
	})
	m.size.Store(0)
}

func (m *Mapper) CacheSize() int { return int(m.size.Load()) }

package meta

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm/schema"
)

// Registry caches EntityMetadata per struct type.
type Registry struct {
	namer schema.Namer
	cache sync.Map // reflect.Type -> *EntityMetadata
	group singleflight.Group
	size  atomic.Int64
}

type Option func(*Registry)

// WithNamer overrides the naming strategy, the default is snake_case singular tables.
func WithNamer(namer schema.Namer) Option {
	return func(r *Registry) { r.namer = namer }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{namer: schema.NamingStrategy{SingularTable: true}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default is the process-wide registry.
var Default = NewRegistry()

// Of returns the metadata of T.
func Of[T any](r *Registry) (*EntityMetadata, error) {
	return r.MetadataOf(reflect.TypeOf((*T)(nil)).Elem())
}

// Metadata returns the metadata of the entity's type. entity may be a value,
// a pointer, or a reflect.Type.
func (r *Registry) Metadata(entity any) (*EntityMetadata, error) {
	if t, ok := entity.(reflect.Type); ok {
		return r.MetadataOf(t)
	}
	return r.MetadataOf(reflect.TypeOf(entity))
}

// MetadataOf computes the metadata once per type. Concurrent first calls for the
// same type share one computation.
func (r *Registry) MetadataOf(t reflect.Type) (*EntityMetadata, error) {
	if t == nil {
		return nil, ErrNotStruct
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if m, ok := r.cache.Load(t); ok {
		return m.(*EntityMetadata), nil
	}
	v, err, _ := r.group.Do(t.PkgPath()+"|"+t.String(), func() (any, error) {
		if m, ok := r.cache.Load(t); ok {
			return m, nil
		}
		m, err := build(t, r.namer)
		if err != nil {
			return nil, err
		}
		if _, loaded := r.cache.LoadOrStore(t, m); !loaded {
			r.size.Add(1)
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*EntityMetadata), nil
}

func (r *Registry) ClearCache() {
	r.cache.Range(func(k, _ any) bool {
		if _, ok := r.cache.LoadAndDelete(k); ok {
			r.size.Add(-1)
		}
		return true
	})
}

func (r *Registry) CacheSize() int {
	return int(r.size.Load())
}

var timeType = reflect.TypeOf((*interface{ UnixNano() int64 })(nil)).Elem()

func build(t reflect.Type, namer schema.Namer) (*EntityMetadata, error) {
	if t.Kind() != reflect.Struct {
		return nil, errors.Wrapf(ErrNotStruct, "%s", t)
	}
	m := &EntityMetadata{
		Type:     t,
		Table:    tableName(t, namer),
		byName:   make(map[string]*FieldMetadata),
		byColumn: make(map[string]*FieldMetadata),
	}

	var walk func(cur reflect.Type, prefix []int) error
	walk = func(cur reflect.Type, prefix []int) error {
		for i := 0; i < cur.NumField(); i++ {
			sf := cur.Field(i)
			if !sf.IsExported() {
				continue
			}
			settings := tagSettings(sf)
			if _, skip := settings["-"]; skip {
				continue
			}
			index := append(append([]int(nil), prefix...), i)

			ft := sf.Type
			if sf.Anonymous {
				inner := ft
				if inner.Kind() == reflect.Ptr {
					inner = inner.Elem()
				}
				if inner.Kind() == reflect.Struct && !reflect.PtrTo(inner).Implements(timeType) {
					if err := walk(inner, index); err != nil {
						return err
					}
					continue
				}
			}
			switch ft.Kind() {
			case reflect.Func, reflect.Chan, reflect.UnsafePointer:
				continue
			}

			f := &FieldMetadata{Name: sf.Name, Type: ft, index: index}
			if col, ok := settings["COLUMN"]; ok && col != "" {
				f.Column, f.ExplicitColumn = col, true
			} else {
				f.Column = namer.ColumnName(m.Table, sf.Name)
			}
			if _, ok := settings["PRIMARYKEY"]; ok {
				f.PrimaryKey = true
			} else if _, ok := settings["PRIMARY_KEY"]; ok {
				f.PrimaryKey = true
			}
			if _, ok := settings["JSON"]; ok || strings.EqualFold(settings["SERIALIZER"], "json") {
				f.JSON = true
			}
			// the shallower of two fields with one name wins, as in Go selectors
			if prev, dup := m.byName[f.Name]; dup {
				if len(prev.index) <= len(f.index) {
					continue
				}
				m.Fields = removeField(m.Fields, prev)
				delete(m.byColumn, prev.Column)
				if m.PrimaryKey == prev {
					m.PrimaryKey = nil
				}
			}
			if f.PrimaryKey {
				if m.PrimaryKey != nil {
					return errors.Wrapf(ErrMultiplePrimaryKeys, "%s: %s and %s", t, m.PrimaryKey.Name, f.Name)
				}
				m.PrimaryKey = f
			}
			m.Fields = append(m.Fields, f)
			m.byName[f.Name] = f
			m.byColumn[f.Column] = f
		}
		return nil
	}
	if err := walk(t, nil); err != nil {
		return nil, err
	}

	if m.PrimaryKey == nil {
		if f, ok := m.byName["ID"]; ok {
			f.PrimaryKey = true
			m.PrimaryKey = f
		}
	}
	return m, nil
}

func removeField(fields []*FieldMetadata, f *FieldMetadata) []*FieldMetadata {
	out := fields[:0]
	for _, g := range fields {
		if g != f {
			out = append(out, g)
		}
	}
	return out
}

func tableName(t reflect.Type, namer schema.Namer) string {
	if tabler, ok := reflect.New(t).Interface().(schema.Tabler); ok {
		if name := tabler.TableName(); name != "" {
			return name
		}
	}
	return namer.TableName(t.Name())
}

// tagSettings merges the gorm tag with the orm tag, orm wins.
func tagSettings(sf reflect.StructField) map[string]string {
	settings := schema.ParseTagSetting(sf.Tag.Get("gorm"), ";")
	for k, v := range schema.ParseTagSetting(sf.Tag.Get("orm"), ";") {
		settings[k] = v
	}
	if col := strings.TrimSpace(sf.Tag.Get("db")); col != "" && col != "-" {
		if _, ok := settings["COLUMN"]; !ok {
			settings["COLUMN"] = col
		}
	}
	return settings
}

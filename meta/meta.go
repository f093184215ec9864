// Package meta reflects entity structs once into table/column metadata and caches it.
package meta

import (
	"reflect"

	"github.com/pkg/errors"
)

var (
	ErrNoPrimaryKey        = errors.New("meta: entity has no primary key")
	ErrMultiplePrimaryKeys = errors.New("meta: entity declares more than one primary key")
	ErrNotStruct           = errors.New("meta: entity must be a struct")
)

// FieldMetadata describes one mapped field.
type FieldMetadata struct {
	Name           string
	Column         string
	Type           reflect.Type
	PrimaryKey     bool
	ExplicitColumn bool
	// JSON marks a column holding a JSON document.
	JSON bool

	index []int
}

// Value returns the field of entity, which is a struct or pointer to struct.
func (f *FieldMetadata) Value(entity any) any {
	v := f.reflectValue(reflect.ValueOf(entity))
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// IsZero reports whether the field of entity holds its zero value.
func (f *FieldMetadata) IsZero(entity any) bool {
	v := f.reflectValue(reflect.ValueOf(entity))
	return !v.IsValid() || v.IsZero()
}

// Set assigns value to the field of entity, which must be a pointer.
func (f *FieldMetadata) Set(entity any, value any) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("meta: set %s: entity must be a non-nil pointer, got %T", f.Name, entity)
	}
	fv := f.FieldOf(rv)
	if !fv.IsValid() || !fv.CanSet() {
		return errors.Errorf("meta: field %s is not settable", f.Name)
	}
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	val := reflect.ValueOf(value)
	switch {
	case val.Type().AssignableTo(fv.Type()):
		fv.Set(val)
	case val.Type().ConvertibleTo(fv.Type()):
		fv.Set(val.Convert(fv.Type()))
	default:
		return errors.Errorf("meta: cannot assign %T to field %s (%s)", value, f.Name, fv.Type())
	}
	return nil
}

// FieldOf walks v (struct or pointer to struct) to this field, allocating
// nil embedded pointers on the way when v is addressable.
func (f *FieldMetadata) FieldOf(v reflect.Value) reflect.Value {
	for _, i := range f.index {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	return v
}

func (f *FieldMetadata) reflectValue(v reflect.Value) reflect.Value {
	for _, i := range f.index {
		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	return v
}

// EntityMetadata is immutable after construction.
type EntityMetadata struct {
	Type       reflect.Type
	Table      string
	Fields     []*FieldMetadata
	PrimaryKey *FieldMetadata

	byName   map[string]*FieldMetadata
	byColumn map[string]*FieldMetadata
}

// Field looks a field up by its Go name.
func (m *EntityMetadata) Field(name string) (*FieldMetadata, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Lookup finds a field by Go name or column name.
func (m *EntityMetadata) Lookup(nameOrColumn string) (*FieldMetadata, bool) {
	if f, ok := m.byName[nameOrColumn]; ok {
		return f, true
	}
	f, ok := m.byColumn[nameOrColumn]
	return f, ok
}

// Column returns the column for a field name, or the input itself when it is
// not a mapped field.
func (m *EntityMetadata) Column(nameOrColumn string) string {
	if f, ok := m.Lookup(nameOrColumn); ok {
		return f.Column
	}
	return nameOrColumn
}

func (m *EntityMetadata) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// RequirePrimaryKey fails with ErrNoPrimaryKey for types without one.
func (m *EntityMetadata) RequirePrimaryKey() (*FieldMetadata, error) {
	if m.PrimaryKey == nil {
		return nil, errors.Wrapf(ErrNoPrimaryKey, "%s", m.Type)
	}
	return m.PrimaryKey, nil
}

// New returns a pointer to a zero instance of the entity.
func (m *EntityMetadata) New() any {
	return reflect.New(m.Type).Interface()
}

// Equal compares the table/column mapping of two metadata values.
func (m *EntityMetadata) Equal(o *EntityMetadata) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Type != o.Type || m.Table != o.Table || len(m.Fields) != len(o.Fields) {
		return false
	}
	for i, f := range m.Fields {
		g := o.Fields[i]
		if f.Name != g.Name || f.Column != g.Column || f.PrimaryKey != g.PrimaryKey ||
			f.ExplicitColumn != g.ExplicitColumn || f.JSON != g.JSON || f.Type != g.Type {
			return false
		}
	}
	return true
}

package mapper

import (
	"database/sql"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"gorm/routeorm/meta"
)

// Enum is implemented by enumerations stored by name. The position of a name
// is its ordinal, used when the stored value is a number.
type Enum interface {
	EnumValues() []string
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	nullTimeType = reflect.TypeOf(sql.NullTime{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	bytesType    = reflect.TypeOf([]byte(nil))
	anyType      = reflect.TypeOf((*any)(nil)).Elem()
	scannerType  = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	enumType     = reflect.TypeOf((*Enum)(nil)).Elem()
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"15:04:05",
}

func (m *Mapper) assign(f *meta.FieldMetadata, fv reflect.Value, raw any) error {
	if raw == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	if f.JSON {
		return m.assignJSON(fv, raw)
	}
	return m.assignValue(fv, raw)
}

func (m *Mapper) assignValue(fv reflect.Value, raw any) error {
	t := fv.Type()
	switch {
	case t == uuidType:
		id, err := toUUID(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(id))
		return nil
	case t == timeType:
		ts, err := toTime(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(ts))
		return nil
	case t == nullTimeType:
		ts, err := toTime(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(sql.NullTime{Time: ts, Valid: true}))
		return nil
	case reflect.PtrTo(t).Implements(scannerType):
		return fv.Addr().Interface().(sql.Scanner).Scan(raw)
	case t.Kind() == reflect.Ptr:
		elem := reflect.New(t.Elem())
		if err := m.assignValue(elem.Elem(), raw); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	case t.Implements(enumType):
		return assignEnum(fv, raw)
	case t == bytesType:
		switch v := raw.(type) {
		case []byte:
			fv.SetBytes(append([]byte(nil), v...))
		case string:
			fv.SetBytes([]byte(v))
		default:
			return errors.Errorf("cannot use %T as bytes", raw)
		}
		return nil
	case t.Kind() == reflect.Map || (t.Kind() == reflect.Slice && t.Elem() == anyType):
		return m.assignJSON(fv, raw)
	case t.Kind() == reflect.Slice:
		return assignArray(fv, raw)
	}
	return assignScalar(fv, raw)
}

// assignJSON decodes a JSON column. Outside strict mode an undecodable document
// is kept as the raw string in interface fields and leaves typed fields unset.
func (m *Mapper) assignJSON(fv reflect.Value, raw any) error {
	var doc []byte
	switch v := raw.(type) {
	case []byte:
		doc = v
	case string:
		doc = []byte(v)
	case json.RawMessage:
		doc = v
	default:
		rv := reflect.ValueOf(raw)
		if rv.Type().AssignableTo(fv.Type()) {
			fv.Set(rv)
			return nil
		}
		return errors.Errorf("cannot decode %T as JSON", raw)
	}
	target := reflect.New(fv.Type())
	if err := json.Unmarshal(doc, target.Interface()); err != nil {
		if m.strict {
			return errors.Wrap(err, "decode JSON")
		}
		if fv.Type() == anyType {
			fv.Set(reflect.ValueOf(string(doc)))
		}
		return nil
	}
	fv.Set(target.Elem())
	return nil
}

func assignEnum(fv reflect.Value, raw any) error {
	values := reflect.Zero(fv.Type()).Interface().(Enum).EnumValues()
	name := text(raw)
	idx := -1
	for i, v := range values {
		if v == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		n, err := cast.ToIntE(name)
		if err != nil || n < 0 || n >= len(values) {
			return errors.Errorf("unknown %s value %q", fv.Type(), name)
		}
		idx = n
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(values[idx])
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fv.SetInt(int64(idx))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fv.SetUint(uint64(idx))
	default:
		return errors.Errorf("enum %s must be a string or integer kind", fv.Type())
	}
	return nil
}

// assignArray fills string and integer slices from native slices, PostgreSQL
// array literals or JSON arrays.
func assignArray(fv reflect.Value, raw any) error {
	t := fv.Type()
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(t) {
		fv.Set(rv)
		return nil
	}
	var items []any
	switch v := raw.(type) {
	case []byte, string:
		s := strings.TrimSpace(text(v))
		switch {
		case strings.HasPrefix(s, "{"):
			if t.Elem().Kind() == reflect.String {
				var arr pq.StringArray
				if err := arr.Scan(s); err != nil {
					return errors.Wrap(err, "decode array")
				}
				for _, x := range arr {
					items = append(items, x)
				}
			} else {
				var arr pq.Int64Array
				if err := arr.Scan(s); err != nil {
					return errors.Wrap(err, "decode array")
				}
				for _, x := range arr {
					items = append(items, x)
				}
			}
		case strings.HasPrefix(s, "["):
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				return errors.Wrap(err, "decode array")
			}
		default:
			return errors.Errorf("cannot decode %q as %s", s, t)
		}
	default:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return errors.Errorf("cannot use %T as %s", raw, t)
		}
		for i := 0; i < rv.Len(); i++ {
			items = append(items, rv.Index(i).Interface())
		}
	}
	out := reflect.MakeSlice(t, len(items), len(items))
	for i, item := range items {
		if err := assignScalar(out.Index(i), item); err != nil {
			return errors.WithMessagef(err, "element %d", i)
		}
	}
	fv.Set(out)
	return nil
}

func assignScalar(fv reflect.Value, raw any) error {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch fv.Kind() {
	case reflect.String:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return err
		}
		fv.SetString(s)
	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return err
		}
		if fv.OverflowInt(n) {
			return errors.Errorf("%d overflows %s", n, fv.Type())
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(raw)
		if err != nil {
			return err
		}
		if fv.OverflowUint(n) {
			return errors.Errorf("%d overflows %s", n, fv.Type())
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := cast.ToFloat64E(raw)
		if err != nil {
			return err
		}
		fv.SetFloat(n)
	default:
		rv := reflect.ValueOf(raw)
		switch {
		case rv.Type().AssignableTo(fv.Type()):
			fv.Set(rv)
		case rv.Type().ConvertibleTo(fv.Type()):
			fv.Set(rv.Convert(fv.Type()))
		default:
			return errors.Errorf("cannot assign %T to %s", raw, fv.Type())
		}
	}
	return nil
}

func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, nil
		}
		return *v, nil
	case sql.NullTime:
		return v.Time, nil
	case []byte, string:
		s := strings.TrimSpace(text(v))
		for _, layout := range timeLayouts {
			if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return ts, nil
			}
		}
		return cast.ToTimeE(s)
	}
	return cast.ToTimeE(raw)
}

func toUUID(raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	case string:
		return uuid.Parse(v)
	}
	return uuid.Nil, errors.Errorf("cannot use %T as UUID", raw)
}

func text(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	}
	return cast.ToString(v)
}

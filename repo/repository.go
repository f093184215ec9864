package repo

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"gorm/routeorm"
	"gorm/routeorm/criteria"
	"gorm/routeorm/mapper"
	"gorm/routeorm/meta"
	"gorm/routeorm/sqlgen"
)

var ErrNotFound = errors.New("repo: record not found")

// Repository is the data access surface of one entity type.
type Repository[T any] struct {
	tpl        *Template
	md         *meta.EntityMetadata
	middleware []Middleware
}

func NewRepository[T any](tpl *Template, mws ...Middleware) (*Repository[T], error) {
	md, err := meta.Of[T](tpl.metadata)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{tpl: tpl, md: md, middleware: mws}, nil
}

// With returns a copy of r with mws appended.
func (r *Repository[T]) With(mws ...Middleware) *Repository[T] {
	out := *r
	out.middleware = append(append([]Middleware(nil), r.middleware...), mws...)
	return &out
}

func (r *Repository[T]) Metadata() *meta.EntityMetadata { return r.md }

func (r *Repository[T]) op(name string, cmd routeorm.CommandType, params map[string]any, args ...any) *Operation {
	if params == nil {
		params = map[string]any{}
	}
	return &Operation{
		Entity:  r.md.Type.Name(),
		Name:    name,
		Command: cmd,
		Table:   r.md.Table,
		Params:  params,
		Args:    args,
	}
}

// entityParams exposes the column values of entity to routing.
func (r *Repository[T]) entityParams(entity *T) map[string]any {
	params := make(map[string]any, len(r.md.Fields))
	for _, f := range r.md.Fields {
		params[f.Column] = f.Value(entity)
	}
	return params
}

func criteriaParams(c criteria.Criteria) map[string]any {
	if c == nil {
		return map[string]any{}
	}
	return c.Params()
}

// Save inserts entity when its primary key is zero, otherwise updates it. A
// generated key reported by the driver is written back into entity.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	pk, err := r.md.RequirePrimaryKey()
	if err != nil {
		return err
	}
	if entity == nil {
		return errors.Errorf("repo: %s.Save: nil entity", r.md.Type.Name())
	}
	if !pk.IsZero(entity) {
		op := r.op("Save", routeorm.UPDATE, r.entityParams(entity), entity)
		return r.tpl.invoke(ctx, op, r.middleware, func(ctx context.Context, route routeorm.RouteResult) error {
			stmt, err := sqlgen.Update(r.md, route.Table, entity)
			if err != nil {
				return err
			}
			_, err = r.tpl.exec(ctx, op, route, stmt)
			return err
		})
	}
	op := r.op("Save", routeorm.INSERT, r.entityParams(entity), entity)
	return r.tpl.invoke(ctx, op, r.middleware, func(ctx context.Context, route routeorm.RouteResult) error {
		stmt, err := sqlgen.Insert(r.md, route.Table, entity)
		if err != nil {
			return err
		}
		res, err := r.tpl.exec(ctx, op, route, stmt)
		if err != nil {
			return err
		}
		if res.HasLastInsertID {
			return setGeneratedKey(pk, entity, res.LastInsertID)
		}
		return nil
	})
}

type batchKey struct{ dataSource, table string }

// insertBatches routes every entity on its own values, so rows of a sharded
// table land in their own shard, then sends one INSERT per group.
func (r *Repository[T]) insertBatches(ctx context.Context, inserts []any) error {
	var order []batchKey
	groups := map[batchKey][]any{}
	routes := map[batchKey]routeorm.RouteResult{}
	for _, e := range inserts {
		op := r.op("SaveAll", routeorm.BATCH_INSERT, r.entityParams(e.(*T)), e)
		err := r.tpl.invoke(ctx, op, r.middleware, func(ctx context.Context, route routeorm.RouteResult) error {
			key := batchKey{route.DataSource, route.Table}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
				routes[key] = route
			}
			groups[key] = append(groups[key], e)
			return nil
		})
		if err != nil {
			return err
		}
	}
	for _, key := range order {
		rows := groups[key]
		op := r.op("SaveAll", routeorm.BATCH_INSERT, nil, rows...)
		stmt, err := sqlgen.InsertBatch(r.md, key.table, rows)
		if err != nil {
			return err
		}
		if _, err := r.tpl.exec(ctx, op, routes[key], stmt); err != nil {
			return err
		}
	}
	return nil
}

func setGeneratedKey(pk *meta.FieldMetadata, entity any, id int64) error {
	switch pk.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return pk.Set(entity, id)
	case reflect.String:
		return pk.Set(entity, cast.ToString(id))
	}
	return nil
}

// SaveAll inserts new entities with one multi-row INSERT per routed data source
// and table, and updates the others one by one. Generated keys are not written
// back for batches.
func (r *Repository[T]) SaveAll(ctx context.Context, entities []*T) error {
	pk, err := r.md.RequirePrimaryKey()
	if err != nil {
		return err
	}
	var inserts []any
	var updates []*T
	for _, e := range entities {
		if e == nil {
			continue
		}
		if pk.IsZero(e) {
			inserts = append(inserts, e)
		} else {
			updates = append(updates, e)
		}
	}
	if len(inserts) == 1 {
		if err := r.Save(ctx, inserts[0].(*T)); err != nil {
			return err
		}
	} else if len(inserts) > 1 {
		if err := r.insertBatches(ctx, inserts); err != nil {
			return err
		}
	}
	for _, e := range updates {
		op := r.op("SaveAll", routeorm.BATCH_UPDATE, r.entityParams(e), e)
		err := r.tpl.invoke(ctx, op, r.middleware, func(ctx context.Context, route routeorm.RouteResult) error {
			stmt, err := sqlgen.Update(r.md, route.Table, e)
			if err != nil {
				return err
			}
			_, err = r.tpl.exec(ctx, op, route, stmt)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// FindByID returns ErrNotFound when no row matches.
func (r *Repository[T]) FindByID(ctx context.Context, id any) (T, error) {
	var zero T
	pk, err := r.md.RequirePrimaryKey()
	if err != nil {
		return zero, err
	}
	rows, err := r.find(ctx, "FindByID", map[string]any{pk.Column: id}, []any{id}, func(table string) (sqlgen.Statement, error) {
		return sqlgen.SelectByID(r.md, table, id)
	})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, errors.Wrapf(ErrNotFound, "%s %v", r.md.Type.Name(), id)
	}
	return rows[0], nil
}

func (r *Repository[T]) ExistsByID(ctx context.Context, id any) (bool, error) {
	pk, err := r.md.RequirePrimaryKey()
	if err != nil {
		return false, err
	}
	n, err := r.count(ctx, "ExistsByID", criteria.Eq(pk.Column, id))
	return n > 0, err
}

func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.find(ctx, "FindAll", nil, nil, func(table string) (sqlgen.Statement, error) {
		return sqlgen.Select(r.md, sqlgen.SelectOptions{Table: table})
	})
}

// Pageable selects a 1-based page of Size rows in Sort order.
type Pageable struct {
	Page int
	Size int
	Sort []sqlgen.Order
}

func (p Pageable) normalized() Pageable {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = 20
	}
	return p
}

func (p Pageable) Offset() int { p = p.normalized(); return (p.Page - 1) * p.Size }

// FindByCriteria lists matching rows, limited to the first pageable when given.
func (r *Repository[T]) FindByCriteria(ctx context.Context, c criteria.Criteria, pageable ...Pageable) ([]T, error) {
	opts := sqlgen.SelectOptions{Where: c}
	if len(pageable) > 0 {
		p := pageable[0].normalized()
		opts.Limit, opts.Offset, opts.OrderBy = p.Size, p.Offset(), p.Sort
	}
	return r.selectWith(ctx, "FindByCriteria", opts)
}

// FindPage returns one page of matching rows and the total count.
func (r *Repository[T]) FindPage(ctx context.Context, c criteria.Criteria, pageable Pageable) (Page[T], error) {
	p := pageable.normalized()
	total, err := r.count(ctx, "FindPage", c)
	if err != nil {
		return Page[T]{}, err
	}
	content, err := r.selectWith(ctx, "FindPage", sqlgen.SelectOptions{
		Where: c, Limit: p.Size, Offset: p.Offset(), OrderBy: p.Sort,
	})
	if err != nil {
		return Page[T]{}, err
	}
	return newPage(content, total, p), nil
}

func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, "Count", nil)
}

func (r *Repository[T]) CountByCriteria(ctx context.Context, c criteria.Criteria) (int64, error) {
	return r.count(ctx, "CountByCriteria", c)
}

// DeleteByID reports whether a row was deleted.
func (r *Repository[T]) DeleteByID(ctx context.Context, id any) (bool, error) {
	pk, err := r.md.RequirePrimaryKey()
	if err != nil {
		return false, err
	}
	n, err := r.delete(ctx, "DeleteByID", map[string]any{pk.Column: id}, []any{id}, func(table string) (sqlgen.Statement, error) {
		return sqlgen.DeleteByID(r.md, table, id)
	})
	return n > 0, err
}

// Delete removes entity by its primary key.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) (bool, error) {
	pk, err := r.md.RequirePrimaryKey()
	if err != nil {
		return false, err
	}
	if entity == nil {
		return false, errors.Errorf("repo: %s.Delete: nil entity", r.md.Type.Name())
	}
	id := pk.Value(entity)
	n, err := r.delete(ctx, "Delete", r.entityParams(entity), []any{entity}, func(table string) (sqlgen.Statement, error) {
		return sqlgen.DeleteByID(r.md, table, id)
	})
	return n > 0, err
}

// DeleteByCriteria returns the number of deleted rows. A nil criteria is refused.
func (r *Repository[T]) DeleteByCriteria(ctx context.Context, c criteria.Criteria) (int64, error) {
	return r.delete(ctx, "DeleteByCriteria", criteriaParams(c), nil, func(table string) (sqlgen.Statement, error) {
		return sqlgen.Delete(r.md, table, c)
	})
}

// Query starts a fluent query on the entity.
func (r *Repository[T]) Query() *Query[T] {
	return &Query[T]{repo: r}
}

func (r *Repository[T]) selectWith(ctx context.Context, name string, opts sqlgen.SelectOptions) ([]T, error) {
	return r.find(ctx, name, criteriaParams(opts.Where), nil, func(table string) (sqlgen.Statement, error) {
		opts.Table = table
		return sqlgen.Select(r.md, opts)
	})
}

func (r *Repository[T]) find(ctx context.Context, name string, params map[string]any, args []any,
	render func(table string) (sqlgen.Statement, error)) ([]T, error) {
	op := r.op(name, routeorm.SELECT, params, args...)
	var out []T
	err := r.tpl.invoke(ctx, op, r.middleware, func(ctx context.Context, route routeorm.RouteResult) error {
		stmt, err := render(route.Table)
		if err != nil {
			return err
		}
		var rows []T
		err = r.tpl.query(ctx, op, route, stmt, func(row mapper.Row) error {
			v, err := mapper.MapRow[T](r.tpl.mapper, r.md, row)
			if err != nil {
				return err
			}
			rows = append(rows, v)
			return nil
		})
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	return out, err
}

func (r *Repository[T]) count(ctx context.Context, name string, c criteria.Criteria) (int64, error) {
	return r.countWith(ctx, name, sqlgen.SelectOptions{Where: c})
}

func (r *Repository[T]) countWith(ctx context.Context, name string, opts sqlgen.SelectOptions) (int64, error) {
	op := r.op(name, routeorm.SELECT, criteriaParams(opts.Where))
	var total int64
	err := r.tpl.invoke(ctx, op, r.middleware, func(ctx context.Context, route routeorm.RouteResult) error {
		opts.Table = route.Table
		stmt, err := sqlgen.CountSelect(r.md, opts)
		if err != nil {
			return err
		}
		return r.tpl.query(ctx, op, route, stmt, func(row mapper.Row) error {
			if len(row.Values) == 0 {
				return nil
			}
			v := row.Values[0]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			n, err := cast.ToInt64E(v)
			if err != nil {
				return errors.Wrap(err, "scan count")
			}
			total = n
			return nil
		})
	})
	return total, err
}

func (r *Repository[T]) delete(ctx context.Context, name string, params map[string]any, args []any,
	render func(table string) (sqlgen.Statement, error)) (int64, error) {
	op := r.op(name, routeorm.DELETE, params, args...)
	var n int64
	err := r.tpl.invoke(ctx, op, r.middleware, func(ctx context.Context, route routeorm.RouteResult) error {
		stmt, err := render(route.Table)
		if err != nil {
			return err
		}
		res, err := r.tpl.exec(ctx, op, route, stmt)
		n = res.RowsAffected
		return err
	})
	return n, err
}

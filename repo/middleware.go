package repo

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"gorm.io/gorm/logger"

	"gorm/routeorm"
	"gorm/routeorm/dbctx"
	"gorm/routeorm/expr"
	"gorm/routeorm/util/str"
)

var ErrReadOnly = errors.New("repo: write operation under a read-only route")

// Operation describes one repository call on its way to the executor.
type Operation struct {
	Entity  string
	Name    string
	Command routeorm.CommandType
	// Table is the logical table.
	Table  string
	Params map[string]any
	Args   []any
	// ReadOnly routes the operation as a read.
	ReadOnly bool

	log logger.Interface
}

// Logger is the logger of the template running op.
func (op *Operation) Logger() logger.Interface {
	if op.log == nil {
		return logger.Default
	}
	return op.log
}

// Vars exposes the operation to route expressions.
func (op *Operation) Vars() expr.Vars {
	vars := expr.Vars{
		"table":     op.Table,
		"operation": string(op.Command),
		"entity":    op.Entity,
		"method":    op.Name,
	}
	for k, v := range op.Params {
		vars[k] = v
		vars["param."+k] = v
	}
	for i, a := range op.Args {
		vars["arg"+strconv.Itoa(i)] = a
	}
	return vars
}

type Handler func(ctx context.Context, op *Operation) error

// Middleware wraps every repository operation.
type Middleware func(next Handler) Handler

func chain(h Handler, mws []Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RouteSpec declares the routing of an operation. DataSource, Table, the
// values of TableMappings and Condition are ${expression} templates over the
// operation variables.
type RouteSpec struct {
	DataSource string
	// Table replaces the operation's logical table.
	Table         string
	TableMappings map[string]string
	// Condition gates the whole route, blank means always.
	Condition string
	ReadOnly  bool
}

// WithRoute applies the route around each operation using resolver, nil means expr.Default.
func WithRoute(spec RouteSpec, resolver *expr.Resolver) Middleware {
	if resolver == nil {
		resolver = expr.Default
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, op *Operation) error {
			vars := op.Vars()
			if !str.IsBlank(spec.Condition) {
				ok, err := resolver.Bool(unwrap(spec.Condition), vars)
				if err != nil {
					op.Logger().Warn(ctx, "%s.%s: route condition %q failed, route skipped: %v",
						op.Entity, op.Name, spec.Condition, err)
					return next(ctx, op)
				}
				if !ok {
					return next(ctx, op)
				}
			}
			if spec.ReadOnly {
				if !op.Command.IsRead() {
					return errors.Wrapf(ErrReadOnly, "%s.%s", op.Entity, op.Name)
				}
				op.ReadOnly = true
			}

			mappings := make(map[string]string, len(spec.TableMappings)+1)
			for logical, physical := range spec.TableMappings {
				mappings[logical] = resolver.Template(physical, vars)
			}
			if table := resolver.Template(spec.Table, vars); !str.IsBlank(table) {
				mappings[op.Table] = table
			}
			run := func(ctx context.Context) (struct{}, error) { return struct{}{}, next(ctx, op) }
			if len(mappings) > 0 {
				inner := run
				run = func(ctx context.Context) (struct{}, error) {
					return dbctx.ExecuteWithTableMappings(ctx, mappings, inner)
				}
			}
			if ds := resolver.Template(spec.DataSource, vars); !str.IsBlank(ds) {
				_, err := dbctx.ExecuteWithDataSource(ctx, ds, run)
				return err
			}
			_, err := run(ctx)
			return err
		}
	}
}

// unwrap accepts a condition written either bare or as a single ${...} segment.
func unwrap(condition string) string {
	if len(condition) > 3 && condition[:2] == "${" && condition[len(condition)-1] == '}' {
		return condition[2 : len(condition)-1]
	}
	return condition
}

// Package dbctx carries the per call chain routing overrides (current data source
// and logical to physical table mappings) inside a context.Context, and the
// process-wide registry of known data sources and table aliases.
package dbctx

import (
	"context"

	"github.com/pkg/errors"

	"gorm/routeorm/util/str"
)

var (
	ErrInvalidArgument = errors.New("dbctx: invalid argument")
	ErrNoScope         = errors.New("dbctx: context carries no routing scope")
)

type scopeKey struct{}

// Scope holds the overrides of one sequential call chain. It must not be shared
// between goroutines, use Fork for that.
type Scope struct {
	dataSource string
	hasSource  bool
	tables     map[string]string
}

// With returns ctx carrying a fresh scope. If ctx already has one it is returned as is.
func With(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Value(scopeKey{}).(*Scope); ok {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, &Scope{})
}

// Fork copies the current scope into a new one so a spawned goroutine can
// override routing without affecting its parent.
func Fork(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Scope{}
	if cur := scopeOf(ctx); cur != nil {
		s.dataSource, s.hasSource = cur.dataSource, cur.hasSource
		if len(cur.tables) > 0 {
			s.tables = make(map[string]string, len(cur.tables))
			for k, v := range cur.tables {
				s.tables[k] = v
			}
		}
	}
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeOf(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// SetDataSource makes key the data source of subsequent operations in ctx.
func SetDataSource(ctx context.Context, key string) error {
	if str.IsBlank(key) {
		return errors.Wrap(ErrInvalidArgument, "data source key is blank")
	}
	s := scopeOf(ctx)
	if s == nil {
		return ErrNoScope
	}
	s.dataSource, s.hasSource = key, true
	return nil
}

// DataSource returns the data source set in ctx, ok is false when none was set.
func DataSource(ctx context.Context) (string, bool) {
	s := scopeOf(ctx)
	if s == nil || !s.hasSource {
		return "", false
	}
	return s.dataSource, true
}

// Clear removes the data source override and every table mapping.
func Clear(ctx context.Context) {
	if s := scopeOf(ctx); s != nil {
		s.dataSource, s.hasSource = "", false
		s.tables = nil
	}
}

// ClearDataSource removes only the data source override.
func ClearDataSource(ctx context.Context) {
	if s := scopeOf(ctx); s != nil {
		s.dataSource, s.hasSource = "", false
	}
}

// ExecuteWithDataSource runs action with key as the current data source and
// restores the previous state afterwards, whatever action does.
func ExecuteWithDataSource[R any](ctx context.Context, key string, action func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	if str.IsBlank(key) {
		return zero, errors.Wrap(ErrInvalidArgument, "data source key is blank")
	}
	ctx = With(ctx)
	s := scopeOf(ctx)
	prev, had := s.dataSource, s.hasSource
	defer func() {
		s.dataSource, s.hasSource = prev, had
	}()
	s.dataSource, s.hasSource = key, true
	return action(ctx)
}

package dbctx

import (
	"context"

	"github.com/pkg/errors"

	"gorm/routeorm/util/str"
)

// SetTableMapping maps logical to physical for subsequent operations in ctx.
func SetTableMapping(ctx context.Context, logical, physical string) error {
	if str.IsBlank(logical) || str.IsBlank(physical) {
		return errors.Wrapf(ErrInvalidArgument, "table mapping %q -> %q", logical, physical)
	}
	s := scopeOf(ctx)
	if s == nil {
		return ErrNoScope
	}
	if s.tables == nil {
		s.tables = make(map[string]string)
	}
	s.tables[logical] = physical
	return nil
}

// TableMapping resolves logical to its physical name, a table without override
// is its own physical name.
func TableMapping(ctx context.Context, logical string) string {
	if physical, ok := LookupTableMapping(ctx, logical); ok {
		return physical
	}
	return logical
}

func LookupTableMapping(ctx context.Context, logical string) (string, bool) {
	s := scopeOf(ctx)
	if s == nil || s.tables == nil {
		return "", false
	}
	physical, ok := s.tables[logical]
	return physical, ok
}

// TableMappings returns a copy of every mapping active in ctx.
func TableMappings(ctx context.Context) map[string]string {
	s := scopeOf(ctx)
	out := make(map[string]string)
	if s == nil {
		return out
	}
	for k, v := range s.tables {
		out[k] = v
	}
	return out
}

func RemoveTableMapping(ctx context.Context, logical string) {
	if s := scopeOf(ctx); s != nil && s.tables != nil {
		delete(s.tables, logical)
	}
}

func ClearTableMappings(ctx context.Context) {
	if s := scopeOf(ctx); s != nil {
		s.tables = nil
	}
}

func ExecuteWithTableMapping[R any](ctx context.Context, logical, physical string, action func(ctx context.Context) (R, error)) (R, error) {
	return ExecuteWithTableMappings(ctx, map[string]string{logical: physical}, action)
}

// ExecuteWithTableMappings applies every mapping for the duration of action.
// Each previous mapping is restored on return, mappings that did not exist
// before are removed.
func ExecuteWithTableMappings[R any](ctx context.Context, mappings map[string]string, action func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	for logical, physical := range mappings {
		if str.IsBlank(logical) || str.IsBlank(physical) {
			return zero, errors.Wrapf(ErrInvalidArgument, "table mapping %q -> %q", logical, physical)
		}
	}
	ctx = With(ctx)
	s := scopeOf(ctx)

	type saved struct {
		physical string
		existed  bool
	}
	prev := make(map[string]saved, len(mappings))
	if s.tables == nil {
		s.tables = make(map[string]string, len(mappings))
	}
	for logical := range mappings {
		physical, ok := s.tables[logical]
		prev[logical] = saved{physical: physical, existed: ok}
	}
	defer func() {
		if s.tables == nil {
			s.tables = make(map[string]string)
		}
		for logical, p := range prev {
			if p.existed {
				s.tables[logical] = p.physical
			} else {
				delete(s.tables, logical)
			}
		}
	}()

	for logical, physical := range mappings {
		s.tables[logical] = physical
	}
	return action(ctx)
}

// Package repo runs entity operations through the routing engine: every call
// is routed, rendered by sqlgen, executed on the chosen data source and mapped
// back into entities.
package repo

import (
	"context"

	"gorm/routeorm/mapper"
)

// Result of a write.
type Result struct {
	RowsAffected int64
	// LastInsertID is meaningful only when HasLastInsertID is set.
	LastInsertID    int64
	HasLastInsertID bool
}

// Executor runs :name parameterised SQL on a data source.
type Executor interface {
	Exec(ctx context.Context, dataSource, sql string, params map[string]any) (Result, error)
	Query(ctx context.Context, dataSource, sql string, params map[string]any, fn func(mapper.Row) error) error
}

type requestKey struct{}

// Request carries caller metadata consulted by routing rules and tenant resolution.
type Request struct {
	Headers    map[string]string
	UserInfo   any
	Attributes map[string]any
}

func WithRequest(ctx context.Context, req Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

func RequestFrom(ctx context.Context) (Request, bool) {
	req, ok := ctx.Value(requestKey{}).(Request)
	return req, ok
}

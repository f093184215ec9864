package repo

import (
	"context"
	"math"

	"gorm/routeorm/criteria"
	"gorm/routeorm/sqlgen"
)

// Page is one page of a paginated result, Page is 1-based.
type Page[T any] struct {
	Content    []T
	Total      int64
	Page       int
	Size       int
	TotalPages int
}

func newPage[T any](content []T, total int64, p Pageable) Page[T] {
	return Page[T]{
		Content:    content,
		Total:      total,
		Page:       p.Page,
		Size:       p.Size,
		TotalPages: int(math.Ceil(float64(total) / float64(p.Size))),
	}
}

func (p Page[T]) HasNext() bool { return p.Page < p.TotalPages }

// Query is a fluent SELECT builder. It is not safe for concurrent use.
type Query[T any] struct {
	repo *Repository[T]
	opts sqlgen.SelectOptions
}

func (q *Query[T]) Select(fields ...string) *Query[T] {
	q.opts.Fields = append(q.opts.Fields, fields...)
	return q
}

// Where sets the filter, repeated calls are ANDed.
func (q *Query[T]) Where(c criteria.Criteria) *Query[T] {
	if q.opts.Where == nil {
		q.opts.Where = c
	} else if c != nil {
		q.opts.Where = q.opts.Where.And(c)
	}
	return q
}

func (q *Query[T]) OrderBy(field string, dir sqlgen.Direction) *Query[T] {
	q.opts.OrderBy = append(q.opts.OrderBy, sqlgen.Order{Field: field, Direction: dir})
	return q
}

func (q *Query[T]) Limit(n int) *Query[T] {
	q.opts.Limit = n
	return q
}

func (q *Query[T]) Offset(n int) *Query[T] {
	q.opts.Offset = n
	return q
}

func (q *Query[T]) GroupBy(fields ...string) *Query[T] {
	q.opts.GroupBy = append(q.opts.GroupBy, fields...)
	return q
}

func (q *Query[T]) Having(c criteria.Criteria) *Query[T] {
	q.opts.Having = c
	return q
}

func (q *Query[T]) Execute(ctx context.Context) ([]T, error) {
	return q.repo.selectWith(ctx, "Query", q.opts)
}

// First returns ErrNotFound when nothing matches.
func (q *Query[T]) First(ctx context.Context) (T, error) {
	opts := q.opts
	opts.Limit = 1
	rows, err := q.repo.selectWith(ctx, "Query", opts)
	if err != nil || len(rows) == 0 {
		var zero T
		if err == nil {
			err = ErrNotFound
		}
		return zero, err
	}
	return rows[0], nil
}

// Count ignores ordering and paging. A grouped query counts its groups.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	return q.repo.countWith(ctx, "Query", q.opts)
}

// ExecutePage runs the query for a 1-based page, overriding Limit and Offset.
func (q *Query[T]) ExecutePage(ctx context.Context, page, size int) (Page[T], error) {
	p := Pageable{Page: page, Size: size}.normalized()
	total, err := q.Count(ctx)
	if err != nil {
		return Page[T]{}, err
	}
	opts := q.opts
	opts.Limit, opts.Offset = p.Size, p.Offset()
	content, err := q.repo.selectWith(ctx, "Query", opts)
	if err != nil {
		return Page[T]{}, err
	}
	return newPage(content, total, p), nil
}

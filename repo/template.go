package repo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm/logger"

	"gorm/routeorm"
	"gorm/routeorm/mapper"
	"gorm/routeorm/meta"
	"gorm/routeorm/sqlgen"
)

// Template binds the executor, the routing engine and the caches shared by
// every repository created from it.
type Template struct {
	executor Executor
	engine   *routeorm.Engine
	metadata *meta.Registry
	mapper   *mapper.Mapper
	logger   logger.Interface
}

type Option func(*Template)

func WithMetadata(r *meta.Registry) Option { return func(t *Template) { t.metadata = r } }

func WithMapper(m *mapper.Mapper) Option { return func(t *Template) { t.mapper = m } }

func WithLogger(l logger.Interface) Option { return func(t *Template) { t.logger = l } }

func NewTemplate(executor Executor, engine *routeorm.Engine, opts ...Option) *Template {
	t := &Template{
		executor: executor,
		engine:   engine,
		metadata: meta.Default,
		mapper:   mapper.Default,
		logger:   engine.Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Template) Engine() *routeorm.Engine { return t.engine }

// Stats is a diagnostic snapshot.
type Stats struct {
	MetadataCacheSize int
	MapperCacheSize   int
	DataSources       []string
	ReadWriteSplit    bool
	MultiTenant       bool
	Sharding          bool
}

func (t *Template) Stats() Stats {
	return Stats{
		MetadataCacheSize: t.metadata.CacheSize(),
		MapperCacheSize:   t.mapper.CacheSize(),
		DataSources:       t.engine.AvailableDataSources(),
		ReadWriteSplit:    t.engine.IsReadWriteSplitEnabled(),
		MultiTenant:       t.engine.IsMultiTenantEnabled(),
		Sharding:          t.engine.IsShardingEnabled(),
	}
}

// ClearCaches drops the metadata and row plan caches.
func (t *Template) ClearCaches() {
	t.metadata.ClearCache()
	t.mapper.ClearCache()
}

// invoke runs op through mws, routes it and hands the decision to work.
func (t *Template) invoke(ctx context.Context, op *Operation, mws []Middleware,
	work func(ctx context.Context, route routeorm.RouteResult) error) error {
	op.log = t.logger
	final := func(ctx context.Context, op *Operation) error {
		route, err := t.engine.Route(ctx, t.routingContext(ctx, op))
		if err != nil {
			return errors.WithMessagef(err, "%s.%s: route", op.Entity, op.Name)
		}
		return work(ctx, route)
	}
	return chain(final, mws)(ctx, op)
}

func (t *Template) routingContext(ctx context.Context, op *Operation) *routeorm.RoutingContext {
	cmd := op.Command
	if op.ReadOnly {
		cmd = routeorm.SELECT
	}
	b := routeorm.NewRoutingContext(op.Table, cmd).Params(op.Params)
	if req, ok := RequestFrom(ctx); ok {
		b.Headers(req.Headers).UserInfo(req.UserInfo)
		for k, v := range req.Attributes {
			b.Attribute(k, v)
		}
	}
	return b.Build()
}

func (t *Template) exec(ctx context.Context, op *Operation, route routeorm.RouteResult, stmt sqlgen.Statement) (Result, error) {
	begin := time.Now()
	res, err := t.executor.Exec(ctx, route.DataSource, stmt.SQL, stmt.Params)
	t.logger.Trace(ctx, begin, func() (string, int64) {
		return "[" + route.DataSource + "] " + stmt.SQL, res.RowsAffected
	}, err)
	if err != nil {
		return Result{}, errors.Wrapf(err, "%s.%s on %s", op.Entity, op.Name, route.DataSource)
	}
	return res, nil
}

func (t *Template) query(ctx context.Context, op *Operation, route routeorm.RouteResult, stmt sqlgen.Statement,
	fn func(mapper.Row) error) error {
	begin := time.Now()
	var n int64
	err := t.executor.Query(ctx, route.DataSource, stmt.SQL, stmt.Params, func(row mapper.Row) error {
		n++
		return fn(row)
	})
	t.logger.Trace(ctx, begin, func() (string, int64) {
		return "[" + route.DataSource + "] " + stmt.SQL, n
	}, err)
	if err != nil {
		return errors.Wrapf(err, "%s.%s on %s", op.Entity, op.Name, route.DataSource)
	}
	return nil
}

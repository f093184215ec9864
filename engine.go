package routeorm

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm/logger"

	"gorm/routeorm/dbctx"
	"gorm/routeorm/expr"
)

const (
	// Master 主、从
	Master string = "master"
	Slave  string = "slave"
)

var (
	ErrInvalidConfig = errors.New("routeorm: invalid routing configuration")
	ErrNilContext    = errors.New("routeorm: nil routing context")
)

// Engine decides the physical data source and table of every operation.
// It is safe for concurrent use; the only mutable state is the slave rotation.
type Engine struct {
	config   RuleConfig
	rules    []CustomRule
	sharding map[string]DataShardingRuleModel
	resolver *expr.Resolver
	registry *dbctx.Registry
	dbPolicy DbPolicy
	tbPolicy TbPolicy
	logger   logger.Interface
}

type Option func(*Engine)

func WithLogger(l logger.Interface) Option { return func(e *Engine) { e.logger = l } }

func WithResolver(r *expr.Resolver) Option { return func(e *Engine) { e.resolver = r } }

func WithRegistry(r *dbctx.Registry) Option { return func(e *Engine) { e.registry = r } }

// WithTbPolicy replaces the table sharding policy.
func WithTbPolicy(p TbPolicy) Option { return func(e *Engine) { e.tbPolicy = p } }

// WithDbPolicy replaces the slave selection policy derived from the read/write strategy.
func WithDbPolicy(p DbPolicy) Option { return func(e *Engine) { e.dbPolicy = p } }

func NewEngine(cfg RuleConfig, opts ...Option) (*Engine, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	e := &Engine{
		config:   cfg,
		sharding: make(map[string]DataShardingRuleModel, len(cfg.Sharding)),
		resolver: expr.Default,
		registry: dbctx.Default,
		logger:   logger.Default.LogMode(logger.Warn),
	}
	for _, r := range cfg.Rules {
		if r.Enabled {
			e.rules = append(e.rules, r)
		}
	}
	sort.SliceStable(e.rules, func(i, j int) bool { return e.rules[i].Priority > e.rules[j].Priority })
	for _, m := range cfg.Sharding {
		e.sharding[m.Table] = m
	}
	if cfg.ReadWrite != nil {
		e.dbPolicy = newDbPolicy(cfg.ReadWrite.Strategy)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tbPolicy == nil {
		if len(e.sharding) > 0 {
			e.tbPolicy = &TbShardingRoutePolicy{DataShardingRuleModelMap: e.sharding, Resolver: e.resolver}
		} else {
			e.tbPolicy = TbDefaultPolicy{}
		}
	}
	if e.dbPolicy == nil {
		e.dbPolicy = &DbRoundRobinPolicy{}
	}
	return e, nil
}

func validate(cfg RuleConfig) error {
	if cfg.DefaultDataSource == "" {
		return errors.Wrap(ErrInvalidConfig, "default data source is required")
	}
	if rw := cfg.ReadWrite; rw != nil && rw.Enabled {
		if rw.Master == "" {
			return errors.Wrap(ErrInvalidConfig, "read/write split needs a master")
		}
		switch rw.Strategy {
		case "", StrategyRoundRobin, StrategyRandom:
		default:
			return errors.Wrapf(ErrInvalidConfig, "unknown slave strategy %q", rw.Strategy)
		}
	}
	if mt := cfg.MultiTenant; mt != nil && mt.Enabled {
		switch mt.Strategy {
		case "", TenantByDataSource, TenantByTable:
		default:
			return errors.Wrapf(ErrInvalidConfig, "unknown tenant strategy %q", mt.Strategy)
		}
		if mt.TenantKey == "" && mt.Resolver != TenantFromUser {
			return errors.Wrap(ErrInvalidConfig, "multi-tenancy needs a tenant key")
		}
	}
	for _, r := range cfg.Rules {
		if r.Enabled && (r.Condition == "" || r.DataSource == "") {
			return errors.Wrapf(ErrInvalidConfig, "rule %q needs a condition and a data source", r.Name)
		}
	}
	for _, m := range cfg.Sharding {
		if m.Table == "" {
			return errors.Wrap(ErrInvalidConfig, "sharding rule without table")
		}
		switch m.algorithm() {
		case AlgorithmMod, AlgorithmHash:
			if m.ShardCount <= 0 {
				return errors.Wrapf(ErrInvalidConfig, "sharding of %s needs a positive shard count", m.Table)
			}
		case AlgorithmRange:
			if len(m.Ranges) == 0 {
				return errors.Wrapf(ErrInvalidConfig, "range sharding of %s needs ranges", m.Table)
			}
		case AlgorithmExpression:
			if m.TableShardingExpression == "" {
				return errors.Wrapf(ErrInvalidConfig, "expression sharding of %s needs an expression", m.Table)
			}
		default:
			return errors.Wrapf(ErrInvalidConfig, "unknown sharding algorithm %q", m.Algorithm)
		}
	}
	return nil
}

func (e *Engine) IsReadWriteSplitEnabled() bool {
	return e.config.ReadWrite != nil && e.config.ReadWrite.Enabled
}

func (e *Engine) IsMultiTenantEnabled() bool {
	return e.config.MultiTenant != nil && e.config.MultiTenant.Enabled
}

func (e *Engine) IsShardingEnabled() bool { return len(e.sharding) > 0 }

func (e *Engine) Config() RuleConfig { return e.config }

func (e *Engine) Logger() logger.Interface { return e.logger }

// AvailableDataSources lists every data source key known to the registry or
// named by the configuration, sorted.
func (e *Engine) AvailableDataSources() []string {
	seen := map[string]struct{}{}
	add := func(keys ...string) {
		for _, k := range keys {
			if k != "" {
				seen[k] = struct{}{}
			}
		}
	}
	add(e.registry.DataSources()...)
	add(e.config.DefaultDataSource)
	if rw := e.config.ReadWrite; rw != nil {
		add(rw.Master)
		add(rw.Slaves...)
	}
	if mt := e.config.MultiTenant; mt != nil {
		for _, ds := range mt.DataSources {
			add(ds)
		}
	}
	for _, r := range e.config.Rules {
		add(r.DataSource)
	}
	for _, m := range e.config.Sharding {
		add(m.DatabaseDefaultShardingValue)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Route resolves data source and table for rc.
func (e *Engine) Route(ctx context.Context, rc *RoutingContext) (RouteResult, error) {
	if rc == nil {
		return RouteResult{}, ErrNilContext
	}
	var tenant string
	if e.IsMultiTenantEnabled() {
		tenant = resolveTenant(e.config.MultiTenant, rc)
	}
	result, err := e.routeDataSource(ctx, rc, tenant)
	if err != nil {
		return RouteResult{}, err
	}
	result.Table, result.TableReason, err = e.routeTable(ctx, rc, tenant)
	if err != nil {
		return RouteResult{}, err
	}
	if e.config.TraceRouteMode {
		e.logger.Info(ctx, "route %s %s -> %s", rc.Command(), rc.Table(), result)
	}
	return result, nil
}

// RouteDataSource is Route without table resolution.
func (e *Engine) RouteDataSource(ctx context.Context, rc *RoutingContext) (RouteResult, error) {
	if rc == nil {
		return RouteResult{}, ErrNilContext
	}
	var tenant string
	if e.IsMultiTenantEnabled() {
		tenant = resolveTenant(e.config.MultiTenant, rc)
	}
	return e.routeDataSource(ctx, rc, tenant)
}

func (e *Engine) routeDataSource(ctx context.Context, rc *RoutingContext, tenant string) (RouteResult, error) {
	if ds, ok := dbctx.DataSource(ctx); ok {
		return RouteResult{DataSource: ds, Stage: StageContext, Reason: "context override"}, nil
	}

	if len(e.rules) > 0 {
		vars := rc.Vars()
		for _, rule := range e.rules {
			if evalRule(ctx, e.resolver, rule, vars, e.logger) {
				return RouteResult{DataSource: rule.DataSource, Stage: StageCustomRule, Reason: ruleReason(rule)}, nil
			}
		}
	}

	if ds, err := resolveDatabaseSharding(ctx, e.resolver, e.sharding, rc, e.logger); err != nil {
		return RouteResult{}, err
	} else if ds != "" {
		return RouteResult{DataSource: ds, Stage: StageDbSharding, Reason: "database sharding"}, nil
	}

	if e.IsMultiTenantEnabled() && e.config.MultiTenant.Strategy != TenantByTable {
		if ds, ok := tenantDataSource(e.config.MultiTenant, tenant); ok {
			return RouteResult{DataSource: ds, Stage: StageTenant, Reason: fmt.Sprintf("multi-tenant %q", tenant)}, nil
		}
		return RouteResult{
			DataSource: e.config.DefaultDataSource,
			Stage:      StageTenant,
			Reason:     fmt.Sprintf("multi-tenant %q unmapped, default data source", tenant),
		}, nil
	}

	if e.IsReadWriteSplitEnabled() {
		rw := e.config.ReadWrite
		if rc.IsRead() && len(rw.Slaves) > 0 {
			slave := e.dbPolicy.Resolve(ctx, rw.Slaves, rc).Name
			if slave != "" {
				return RouteResult{DataSource: slave, Stage: StageReadWrite, Reason: "read/write split: " + Slave}, nil
			}
		}
		return RouteResult{DataSource: rw.Master, Stage: StageReadWrite, Reason: "read/write split: " + Master}, nil
	}

	return RouteResult{DataSource: e.config.DefaultDataSource, Stage: StageDefault, Reason: "default data source"}, nil
}

// RouteTable resolves only the physical table of rc.
func (e *Engine) RouteTable(ctx context.Context, rc *RoutingContext) (string, error) {
	if rc == nil {
		return "", ErrNilContext
	}
	var tenant string
	if e.IsMultiTenantEnabled() {
		tenant = resolveTenant(e.config.MultiTenant, rc)
	}
	table, _, err := e.routeTable(ctx, rc, tenant)
	return table, err
}

func (e *Engine) routeTable(ctx context.Context, rc *RoutingContext, tenant string) (string, string, error) {
	if physical, ok := dbctx.LookupTableMapping(ctx, rc.Table()); ok {
		return physical, "context table mapping", nil
	}
	res, err := e.tbPolicy.Resolve(ctx, rc, e.logger)
	if err != nil {
		return "", "", err
	}
	if res.ActualTableName != "" {
		return res.ActualTableName, res.Reason, nil
	}
	if e.IsMultiTenantEnabled() && e.config.MultiTenant.Strategy == TenantByTable && tenant != "" {
		return rc.Table() + "_" + tenant, fmt.Sprintf("multi-tenant table %q", tenant), nil
	}
	return rc.Table(), "logical table", nil
}

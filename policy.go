package routeorm

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm/logger"

	"gorm/routeorm/expr"
	"gorm/routeorm/util/str"
)

// resolveDatabaseSharding 分库路由: the data source of a sharded table, or "" when
// the table has no database sharding.
func resolveDatabaseSharding(ctx context.Context, resolver *expr.Resolver, models map[string]DataShardingRuleModel,
	rc *RoutingContext, log logger.Interface) (string, error) {
	model, ok := models[rc.Table()]
	if !ok || !model.shardsDatabase() {
		return "", nil
	}
	if model.DatabaseShardingParameter != "" && model.DatabaseShardingExpression != "" {
		if value, ok := rc.LookupParam(model.DatabaseShardingParameter); ok && value != nil {
			vars := rc.Vars()
			vars[model.DatabaseShardingParameter] = value
			result, err := resolver.Eval(model.DatabaseShardingExpression, vars)
			if err != nil {
				return "", errors.WithMessagef(err, "database sharding of %s", rc.Table())
			}
			name := expr.Format(result)
			if str.IsBlank(name) {
				return "", errors.Errorf("routeorm: database sharding of %s resolved to an empty data source", rc.Table())
			}
			log.Info(ctx, "database sharding: %v", name)
			return name, nil
		}
	}
	if model.DatabaseDefaultShardingValue != "" {
		return model.DatabaseDefaultShardingValue, nil
	}
	return "", errors.Wrapf(ErrMissingShardingKey, "table %s, parameter %q", rc.Table(), model.DatabaseShardingParameter)
}

// evalRule reports whether a custom rule matches. A failing expression counts as
// no match and is logged.
func evalRule(ctx context.Context, resolver *expr.Resolver, rule CustomRule, vars expr.Vars, log logger.Interface) bool {
	ok, err := resolver.Bool(rule.Condition, vars)
	if err != nil {
		log.Warn(ctx, "routing rule %s: %v", rule.Name, err)
		return false
	}
	return ok
}

func ruleReason(rule CustomRule) string {
	return fmt.Sprintf("custom rule %s (priority %d)", rule.Name, rule.Priority)
}

package routeorm

import (
	"context"
	"fmt"
	"hash/crc32"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gorm.io/gorm/logger"

	"gorm/routeorm/expr"
	"gorm/routeorm/util/str"
)

var (
	ErrMissingShardingKey = errors.New("routeorm: sharding parameter missing from routing context")
	ErrNoShardRange       = errors.New("routeorm: sharding value outside every configured range")
	ErrInvalidShardValue  = errors.New("routeorm: invalid sharding value")
)

type ShardingIndexKey string

const ShardingTableIndex ShardingIndexKey = "tableIndex_%s"

// WithTableIndex presets the shard index of table for operations under ctx,
// bypassing the sharding algorithm.
func WithTableIndex(ctx context.Context, table string, index int) context.Context {
	return context.WithValue(ctx, ShardingIndexKey(fmt.Sprintf(string(ShardingTableIndex), table)), index)
}

// TbPolicy Table Routing Policy
type TbPolicy interface {
	Resolve(context.Context, *RoutingContext, logger.Interface) (TbPolicyResult, error)
}

type TbPolicyResult struct {
	// ActualTableName is empty when the policy does not apply.
	ActualTableName string
	Reason          string
}

// TbDefaultPolicy 默认路由，空实现
type TbDefaultPolicy struct {
}

func (TbDefaultPolicy) Resolve(_ context.Context, _ *RoutingContext, _ logger.Interface) (TbPolicyResult, error) {
	return TbPolicyResult{}, nil
}

// TbShardingRoutePolicy 分表路由
type TbShardingRoutePolicy struct {
	// 需要操作分库分表
	DataShardingRuleModelMap map[string]DataShardingRuleModel
	Resolver                 *expr.Resolver
}

func (p *TbShardingRoutePolicy) Resolve(ctx context.Context, rc *RoutingContext, log logger.Interface) (TbPolicyResult, error) {
	tableName := rc.Table()
	model, ok := p.DataShardingRuleModelMap[tableName]
	if !ok || !model.shardsTable() {
		return TbPolicyResult{}, nil
	}
	if tableIndexVal := ctx.Value(ShardingIndexKey(fmt.Sprintf(string(ShardingTableIndex), tableName))); tableIndexVal != nil {
		actualTableName := fmt.Sprintf("%v_%v", tableName, tableIndexVal)
		log.Info(ctx, "table pre_set sharding: %v", actualTableName)
		return TbPolicyResult{ActualTableName: actualTableName, Reason: "preset table index"}, nil
	}

	value, ok := rc.LookupParam(model.TableShardingParameter)
	if !ok || value == nil {
		return TbPolicyResult{}, errors.Wrapf(ErrMissingShardingKey, "table %s, parameter %q", tableName, model.TableShardingParameter)
	}

	var actualTableName string
	switch alg := model.algorithm(); alg {
	case AlgorithmMod:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return TbPolicyResult{}, errors.Wrapf(ErrInvalidShardValue, "%s: %v", model.TableShardingParameter, value)
		}
		idx := n % int64(shardCount(model))
		if idx < 0 {
			idx = -idx
		}
		actualTableName = tableName + suffix(model.ShardCount, int(idx))
	case AlgorithmHash:
		var idx int
		switch v := value.(type) {
		case string:
			idx = int(crc32.ChecksumIEEE([]byte(v)) % uint32(shardCount(model)))
		default:
			idx = str.HashMode(cast.ToString(v), int32(shardCount(model)))
		}
		actualTableName = tableName + suffix(model.ShardCount, idx)
	case AlgorithmRange:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return TbPolicyResult{}, errors.Wrapf(ErrInvalidShardValue, "%s: %v", model.TableShardingParameter, value)
		}
		found := false
		for _, r := range model.Ranges {
			if n >= r.From && n < r.To {
				actualTableName, found = tableName+r.Suffix, true
				break
			}
		}
		if !found {
			return TbPolicyResult{}, errors.Wrapf(ErrNoShardRange, "%s=%d", model.TableShardingParameter, n)
		}
	case AlgorithmExpression:
		vars := rc.Vars()
		vars[model.TableShardingParameter] = value
		result, err := p.resolver().Eval(model.TableShardingExpression, vars)
		if err != nil {
			return TbPolicyResult{}, err
		}
		// 数值结果视为分表下标，字符串结果视为真正的表名
		switch r := result.(type) {
		case string:
			actualTableName = r
		default:
			actualTableName = tableName + "_" + expr.Format(r)
		}
	default:
		return TbPolicyResult{}, errors.Errorf("routeorm: unknown sharding algorithm %q", alg)
	}
	log.Info(ctx, "table sharding: %v", actualTableName)
	return TbPolicyResult{ActualTableName: actualTableName, Reason: fmt.Sprintf("table sharding (%s by %s)", model.algorithm(), model.TableShardingParameter)}, nil
}

func (p *TbShardingRoutePolicy) resolver() *expr.Resolver {
	if p.Resolver != nil {
		return p.Resolver
	}
	return expr.Default
}

func shardCount(m DataShardingRuleModel) int {
	if m.ShardCount <= 0 {
		return 1
	}
	return m.ShardCount
}

// suffix pads the index to the width of the shard count: _1, _01, _001.
func suffix(count, idx int) string {
	switch {
	case count < 10:
		return fmt.Sprintf("_%01d", idx)
	case count < 100:
		return fmt.Sprintf("_%02d", idx)
	case count < 1000:
		return fmt.Sprintf("_%03d", idx)
	default:
		return fmt.Sprintf("_%04d", idx)
	}
}

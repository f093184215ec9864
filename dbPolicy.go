package routeorm

import (
	"context"
	"math/rand"
	"sync/atomic"
)

// DbPolicy picks one data source among candidates, used for slave selection.
type DbPolicy interface {
	Resolve(ctx context.Context, candidates []string, rc *RoutingContext) DbPolicyResult
}

type DbPolicyResult struct {
	Name string
}

// DbRandomPolicy 随机路由
type DbRandomPolicy struct {
}

func (DbRandomPolicy) Resolve(_ context.Context, candidates []string, _ *RoutingContext) DbPolicyResult {
	if len(candidates) == 0 {
		return DbPolicyResult{}
	}
	return DbPolicyResult{Name: candidates[rand.Intn(len(candidates))]}
}

// DbRoundRobinPolicy 轮询路由, safe for concurrent use.
type DbRoundRobinPolicy struct {
	counter atomic.Uint64
}

func (p *DbRoundRobinPolicy) Resolve(_ context.Context, candidates []string, _ *RoutingContext) DbPolicyResult {
	if len(candidates) == 0 {
		return DbPolicyResult{}
	}
	n := p.counter.Add(1) - 1
	return DbPolicyResult{Name: candidates[n%uint64(len(candidates))]}
}

func newDbPolicy(strategy SlaveStrategy) DbPolicy {
	switch strategy {
	case StrategyRandom:
		return DbRandomPolicy{}
	default:
		return &DbRoundRobinPolicy{}
	}
}

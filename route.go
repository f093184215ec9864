package routeorm

import (
	"fmt"

	"gorm/routeorm/expr"
)

// RoutingContext is the operation metadata a routing decision is made from.
// It is built once per call and read-only afterwards.
type RoutingContext struct {
	table      string
	command    CommandType
	params     map[string]any
	headers    map[string]string
	userInfo   any
	attributes map[string]any
	// forces the writer even for SELECT, e.g. locking reads
	write bool
}

func (rc *RoutingContext) Table() string          { return rc.table }
func (rc *RoutingContext) Command() CommandType   { return rc.command }
func (rc *RoutingContext) UserInfo() any          { return rc.userInfo }
func (rc *RoutingContext) IsRead() bool           { return rc.command.IsRead() && !rc.write }
func (rc *RoutingContext) Param(k string) any     { return rc.params[k] }
func (rc *RoutingContext) Header(k string) string { return rc.headers[k] }
func (rc *RoutingContext) Attribute(k string) any { return rc.attributes[k] }

func (rc *RoutingContext) LookupParam(k string) (any, bool) {
	v, ok := rc.params[k]
	return v, ok
}

// Params returns a copy of the parameter bag.
func (rc *RoutingContext) Params() map[string]any {
	out := make(map[string]any, len(rc.params))
	for k, v := range rc.params {
		out[k] = v
	}
	return out
}

func (rc *RoutingContext) Headers() map[string]string {
	out := make(map[string]string, len(rc.headers))
	for k, v := range rc.headers {
		out[k] = v
	}
	return out
}

// Vars exposes the context to expressions: parameters by bare name and as
// [param.x], headers as [header.x], attributes as [attr.x], plus table,
// operation and user.
func (rc *RoutingContext) Vars() expr.Vars {
	vars := make(expr.Vars, 2*len(rc.params)+len(rc.headers)+len(rc.attributes)+3)
	for k, v := range rc.params {
		vars[k] = v
		vars["param."+k] = v
	}
	for k, v := range rc.headers {
		vars["header."+k] = v
	}
	for k, v := range rc.attributes {
		vars["attr."+k] = v
	}
	vars["table"] = rc.table
	vars["operation"] = string(rc.command)
	if rc.userInfo != nil {
		vars["user"] = fmt.Sprint(rc.userInfo)
	} else {
		vars["user"] = ""
	}
	return vars
}

// RoutingContextBuilder builds a RoutingContext.
type RoutingContextBuilder struct {
	rc RoutingContext
}

func NewRoutingContext(table string, command CommandType) *RoutingContextBuilder {
	return &RoutingContextBuilder{rc: RoutingContext{
		table:      table,
		command:    command,
		params:     map[string]any{},
		headers:    map[string]string{},
		attributes: map[string]any{},
	}}
}

func (b *RoutingContextBuilder) Param(k string, v any) *RoutingContextBuilder {
	b.rc.params[k] = v
	return b
}

func (b *RoutingContextBuilder) Params(params map[string]any) *RoutingContextBuilder {
	for k, v := range params {
		b.rc.params[k] = v
	}
	return b
}

func (b *RoutingContextBuilder) Header(k, v string) *RoutingContextBuilder {
	b.rc.headers[k] = v
	return b
}

func (b *RoutingContextBuilder) Headers(headers map[string]string) *RoutingContextBuilder {
	for k, v := range headers {
		b.rc.headers[k] = v
	}
	return b
}

func (b *RoutingContextBuilder) UserInfo(u any) *RoutingContextBuilder {
	b.rc.userInfo = u
	return b
}

func (b *RoutingContextBuilder) Attribute(k string, v any) *RoutingContextBuilder {
	b.rc.attributes[k] = v
	return b
}

// Write routes the operation to a writer regardless of its command.
func (b *RoutingContextBuilder) Write() *RoutingContextBuilder {
	b.rc.write = true
	return b
}

// Build returns an independent copy, the builder may be reused.
func (b *RoutingContextBuilder) Build() *RoutingContext {
	rc := b.rc
	rc.params = make(map[string]any, len(b.rc.params))
	for k, v := range b.rc.params {
		rc.params[k] = v
	}
	rc.headers = make(map[string]string, len(b.rc.headers))
	for k, v := range b.rc.headers {
		rc.headers[k] = v
	}
	rc.attributes = make(map[string]any, len(b.rc.attributes))
	for k, v := range b.rc.attributes {
		rc.attributes[k] = v
	}
	return &rc
}

// Stage names the pipeline step that produced a decision.
type Stage string

const (
	StageContext    Stage = "context"
	StageCustomRule Stage = "custom_rule"
	StageDbSharding Stage = "database_sharding"
	StageTenant     Stage = "multi_tenant"
	StageReadWrite  Stage = "read_write_split"
	StageDefault    Stage = "default"
)

// RouteResult is an explainable routing decision.
type RouteResult struct {
	DataSource  string
	Table       string
	Stage       Stage
	Reason      string
	TableReason string
}

func (r RouteResult) String() string {
	return fmt.Sprintf("%s.%s [%s; %s]", r.DataSource, r.Table, r.Reason, r.TableReason)
}

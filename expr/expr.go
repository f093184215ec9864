// Package expr evaluates routing conditions and ${...} templates with govaluate.
//
// Variables whose names contain dots or dashes must be bracketed inside an
// expression, e.g. [header.X-Tenant-Id] == 'acme'.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"
	"github.com/pkg/errors"

	"gorm/routeorm/util/str"
)

var ErrNotBoolean = errors.New("expr: expression did not evaluate to a boolean")

// Vars is the variable set an expression is evaluated against.
type Vars map[string]any

// Merge returns a copy of v with every entry of o added, o wins.
func (v Vars) Merge(o Vars) Vars {
	out := make(Vars, len(v)+len(o))
	for k, x := range v {
		out[k] = x
	}
	for k, x := range o {
		out[k] = x
	}
	return out
}

// Resolver compiles expressions once and caches them.
type Resolver struct {
	functions map[string]govaluate.ExpressionFunction
	cache     sync.Map // string -> *govaluate.EvaluableExpression
}

func NewResolver() *Resolver {
	return &Resolver{functions: functions()}
}

// Default is shared by components that are not given a resolver.
var Default = NewResolver()

func functions() map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"parse": func(args ...interface{}) (interface{}, error) {
			s := ""
			for _, arg := range args {
				s += fmt.Sprintf("%v", arg)
			}
			return s, nil
		},
		"concat": func(args ...interface{}) (interface{}, error) {
			var sb strings.Builder
			for _, arg := range args {
				sb.WriteString(format(arg))
			}
			return sb.String(), nil
		},
		"hashcode": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, errors.New("hashcode takes one argument")
			}
			return float64(str.Hashcode(format(args[0]))), nil
		},
		"mod": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, errors.New("mod takes two arguments")
			}
			a, err := strconv.ParseInt(format(args[0]), 10, 64)
			if err != nil {
				return nil, errors.Wrap(err, "mod")
			}
			b, err := strconv.ParseInt(format(args[1]), 10, 64)
			if err != nil {
				return nil, errors.Wrap(err, "mod")
			}
			if b == 0 {
				return nil, errors.New("mod by zero")
			}
			r := a % b
			if r < 0 {
				r = -r
			}
			return float64(r), nil
		},
		"lower": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, errors.New("lower takes one argument")
			}
			return strings.ToLower(format(args[0])), nil
		},
		"upper": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, errors.New("upper takes one argument")
			}
			return strings.ToUpper(format(args[0])), nil
		},
	}
}

func (r *Resolver) compile(expression string) (*govaluate.EvaluableExpression, error) {
	if e, ok := r.cache.Load(expression); ok {
		return e.(*govaluate.EvaluableExpression), nil
	}
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expression, r.functions)
	if err != nil {
		return nil, errors.Wrapf(err, "expr: compile %q", expression)
	}
	r.cache.Store(expression, e)
	return e, nil
}

// Eval evaluates expression against vars.
func (r *Resolver) Eval(expression string, vars Vars) (any, error) {
	e, err := r.compile(expression)
	if err != nil {
		return nil, err
	}
	out, err := e.Evaluate(map[string]interface{}(vars))
	if err != nil {
		return nil, errors.Wrapf(err, "expr: evaluate %q", expression)
	}
	return out, nil
}

// Bool evaluates a condition. A blank condition is true.
func (r *Resolver) Bool(expression string, vars Vars) (bool, error) {
	if str.IsBlank(expression) {
		return true, nil
	}
	out, err := r.Eval(expression, vars)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, errors.Wrapf(ErrNotBoolean, "%q returned %T", expression, out)
	}
	return b, nil
}

// Template replaces every ${expression} segment of template with its value.
// Text outside segments is kept literally. On any failure the original template
// is returned unchanged.
func (r *Resolver) Template(template string, vars Vars) string {
	out, err := r.TemplateE(template, vars)
	if err != nil {
		return template
	}
	return out
}

// TemplateE is Template reporting the failure.
func (r *Resolver) TemplateE(template string, vars Vars) (string, error) {
	if !strings.Contains(template, "${") {
		return template, nil
	}
	var sb strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return template, errors.Errorf("expr: unterminated segment in %q", template)
		}
		sb.WriteString(rest[:start])
		v, err := r.Eval(rest[start+2:start+end], vars)
		if err != nil {
			return template, err
		}
		sb.WriteString(format(v))
		rest = rest[start+end+1:]
	}
	return sb.String(), nil
}

// format renders whole floats without a fraction, govaluate works in float64.
func format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return format(float64(x))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Format renders a value the way templates do.
func Format(v any) string { return format(v) }

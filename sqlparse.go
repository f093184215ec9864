package routeorm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xwb1989/sqlparser"
)

var ErrUnsupportedSQL = errors.New("routeorm: unsupported sql statement")

// sqlparser生成的sql中，原sql带有?会被替换成:v+数字
var positionalArg = regexp.MustCompile(`:v\d+`)

// AnalyzeSQL 从sql中取表名和操作类型
func AnalyzeSQL(sql string) (string, CommandType, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return "", "", errors.Wrap(err, "parse sql")
	}
	switch node := stmt.(type) {
	case *sqlparser.Select:
		t, err := firstTable(node.From)
		if err != nil {
			return "", "", err
		}
		return t.Name.String(), SELECT, nil
	case *sqlparser.Insert:
		cmd := INSERT
		if rows, ok := node.Rows.(sqlparser.Values); ok && len(rows) > 1 {
			cmd = BATCH_INSERT
		}
		return node.Table.Name.String(), cmd, nil
	case *sqlparser.Update:
		t, err := firstTable(node.TableExprs)
		if err != nil {
			return "", "", err
		}
		return t.Name.String(), UPDATE, nil
	case *sqlparser.Delete:
		t, err := firstTable(node.TableExprs)
		if err != nil {
			return "", "", err
		}
		return t.Name.String(), DELETE, nil
	}
	return "", "", errors.Wrapf(ErrUnsupportedSQL, "%T", stmt)
}

// RewriteTable 更新sql中的表名, keeping qualifier, alias and bind variables.
func RewriteTable(sql string, physical string) (string, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return "", errors.Wrap(err, "parse sql")
	}
	name := sqlparser.NewTableIdent(physical)
	switch node := stmt.(type) {
	case *sqlparser.Select:
		err = renameFirst(node.From, name)
	case *sqlparser.Insert:
		node.Table.Name = name
	case *sqlparser.Update:
		err = renameFirst(node.TableExprs, name)
	case *sqlparser.Delete:
		err = renameFirst(node.TableExprs, name)
	default:
		err = errors.Wrapf(ErrUnsupportedSQL, "%T", stmt)
	}
	if err != nil {
		return "", err
	}
	out := sqlparser.String(stmt)
	if strings.Contains(sql, "?") {
		out = positionalArg.ReplaceAllString(out, "?")
	}
	return out, nil
}

// ExtractParams 通过解析器遍历取出 where 中 column = value 的值.
// Positional arguments are resolved against vars.
func ExtractParams(sql string, vars ...any) (map[string]any, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, errors.Wrap(err, "parse sql")
	}
	params := map[string]any{}
	var where *sqlparser.Where
	switch node := stmt.(type) {
	case *sqlparser.Select:
		where = node.Where
	case *sqlparser.Update:
		where = node.Where
	case *sqlparser.Delete:
		where = node.Where
	case *sqlparser.Insert:
		rows, ok := node.Rows.(sqlparser.Values)
		if ok && len(rows) > 0 {
			for i, col := range node.Columns {
				if i < len(rows[0]) {
					if v, ok := literal(rows[0][i], vars); ok {
						params[col.CompliantName()] = v
					}
				}
			}
		}
	}
	if where != nil {
		collect(where.Expr, vars, params)
	}
	return params, nil
}

func collect(node sqlparser.Expr, vars []any, params map[string]any) {
	switch n := node.(type) {
	case *sqlparser.AndExpr:
		collect(n.Left, vars, params)
		collect(n.Right, vars, params)
	case *sqlparser.ParenExpr:
		collect(n.Expr, vars, params)
	case *sqlparser.ComparisonExpr:
		if n.Operator != sqlparser.EqualStr {
			return
		}
		col, ok := n.Left.(*sqlparser.ColName)
		if !ok {
			return
		}
		if v, ok := literal(n.Right, vars); ok {
			params[col.Name.CompliantName()] = v
		}
	}
}

func literal(e sqlparser.Expr, vars []any) (any, bool) {
	val, ok := e.(*sqlparser.SQLVal)
	if !ok {
		return nil, false
	}
	switch val.Type {
	case sqlparser.StrVal:
		return string(val.Val), true
	case sqlparser.IntVal:
		v, err := strconv.ParseInt(string(val.Val), 10, 64)
		return v, err == nil
	case sqlparser.FloatVal:
		v, err := strconv.ParseFloat(string(val.Val), 64)
		return v, err == nil
	case sqlparser.ValArg:
		arg := string(val.Val)
		if !positionalArg.MatchString(arg) {
			return nil, false
		}
		i, err := strconv.Atoi(arg[2:])
		if err != nil || i < 1 || i > len(vars) {
			return nil, false
		}
		return vars[i-1], true
	}
	return nil, false
}

func firstTable(exprs sqlparser.TableExprs) (sqlparser.TableName, error) {
	if len(exprs) > 0 {
		if ate, ok := exprs[0].(*sqlparser.AliasedTableExpr); ok {
			if t, ok := ate.Expr.(sqlparser.TableName); ok {
				return t, nil
			}
		}
	}
	return sqlparser.TableName{}, errors.Wrap(ErrUnsupportedSQL, "table_name not found")
}

func renameFirst(exprs sqlparser.TableExprs, name sqlparser.TableIdent) error {
	if len(exprs) > 0 {
		if ate, ok := exprs[0].(*sqlparser.AliasedTableExpr); ok {
			if t, ok := ate.Expr.(sqlparser.TableName); ok {
				t.Name = name
				ate.Expr = t
				return nil
			}
		}
	}
	return errors.Wrap(ErrUnsupportedSQL, "table_name not found")
}

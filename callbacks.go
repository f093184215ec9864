package routeorm

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gorm/routeorm/expand"
)

var ErrUnknownDataSource = errors.New("routeorm: unknown data source")

const callbackName = "gorm:routeorm"

// column = ? conditions written as raw strings
var eqCondition = regexp.MustCompile(`^\s*[` + "`" + `"]?(\w+)[` + "`" + `"]?\s*=\s*\?\s*$`)

func (dr *DBRoute) registerCallbacks(db *gorm.DB) error {
	for _, err := range []error{
		db.Callback().Create().Before("*").Register(callbackName, dr.switchCommand(INSERT)),
		db.Callback().Query().Before("*").Register(callbackName, dr.switchCommand(SELECT)),
		db.Callback().Update().Before("*").Register(callbackName, dr.switchCommand(UPDATE)),
		db.Callback().Delete().Before("*").Register(callbackName, dr.switchCommand(DELETE)),
		db.Callback().Row().Before("*").Register(callbackName, dr.switchCommand(SELECT)),
		db.Callback().Raw().Before("*").Register(callbackName, dr.switchGuess),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (dr *DBRoute) switchCommand(cmd CommandType) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if isTransaction(db.Statement.ConnPool) {
			return
		}
		if db.Statement.SQL.Len() > 0 {
			dr.switchGuess(db)
			return
		}
		command := cmd
		if cmd == INSERT && isBatch(db.Statement.ReflectValue) {
			command = BATCH_INSERT
		}
		dr.routeStatement(db, command)
	}
}

// switchGuess routes raw sql, analysed by the parser or guessed from its prefix.
func (dr *DBRoute) switchGuess(db *gorm.DB) {
	if isTransaction(db.Statement.ConnPool) {
		return
	}
	stmt := db.Statement
	rawSQL := strings.TrimSpace(stmt.SQL.String())
	table, cmd, err := AnalyzeSQL(rawSQL)
	if err != nil {
		table, cmd = "", UPDATE
		if len(rawSQL) > 10 && strings.EqualFold(rawSQL[:6], "select") && !strings.EqualFold(rawSQL[len(rawSQL)-10:], "for update") {
			cmd = SELECT
		}
	}
	b := NewRoutingContext(table, cmd)
	if params, err := ExtractParams(rawSQL, stmt.Vars...); err == nil {
		b.Params(params)
	}
	if forcedWrite(stmt) {
		b.Write()
	}
	result, ok := dr.route(db, b.Build())
	if !ok {
		return
	}
	if table != "" && result.Table != table {
		newSQL, err := RewriteTable(rawSQL, result.Table)
		if err != nil {
			_ = db.AddError(err)
			return
		}
		stmt.SQL.Reset()
		stmt.SQL.WriteString(newSQL)
	}
	dr.switchPool(db, result.DataSource)
}

func (dr *DBRoute) routeStatement(db *gorm.DB, cmd CommandType) {
	stmt := db.Statement
	table := stmt.Table
	if table == "" && stmt.Schema != nil {
		table = stmt.Schema.Table
	}
	b := NewRoutingContext(table, cmd).Params(statementParams(stmt))
	if forcedWrite(stmt) {
		b.Write()
	}
	result, ok := dr.route(db, b.Build())
	if !ok {
		return
	}
	if result.Table != "" && result.Table != table {
		expand.RetargetColumns(stmt, table)
		stmt.Table = result.Table
		if stmt.TableExpr != nil {
			stmt.TableExpr = &clause.Expr{SQL: stmt.Quote(result.Table)}
		}
	}
	dr.switchPool(db, result.DataSource)
}

func (dr *DBRoute) route(db *gorm.DB, rc *RoutingContext) (RouteResult, bool) {
	if ds := forcedDataSource(db.Statement); ds != "" {
		table, err := dr.engine.RouteTable(db.Statement.Context, rc)
		if err != nil {
			_ = db.AddError(err)
			return RouteResult{}, false
		}
		return RouteResult{DataSource: ds, Table: table, Stage: StageContext, Reason: "statement clause"}, true
	}
	result, err := dr.engine.Route(db.Statement.Context, rc)
	if err != nil {
		_ = db.AddError(err)
		return RouteResult{}, false
	}
	return result, true
}

func (dr *DBRoute) switchPool(db *gorm.DB, dataSource string) {
	pool, ok := dr.ConnPool(dataSource)
	if !ok {
		_ = db.AddError(errors.Wrapf(ErrUnknownDataSource, "%q", dataSource))
		return
	}
	db.Statement.ConnPool = pool
	markStmtRouteMode(db.Statement, dataSource)
}

// statementParams collects routing parameters from equality conditions and
// from the values being written.
func statementParams(stmt *gorm.Statement) map[string]any {
	params := map[string]any{}
	if c, ok := stmt.Clauses["WHERE"]; ok {
		if where, ok := c.Expression.(clause.Where); ok {
			for _, e := range where.Exprs {
				switch e := e.(type) {
				case clause.Eq:
					if name := columnName(e.Column); name != "" {
						params[name] = e.Value
					}
				case clause.IN:
					if name := columnName(e.Column); name != "" && len(e.Values) == 1 {
						params[name] = e.Values[0]
					}
				case clause.Expr:
					if m := eqCondition.FindStringSubmatch(e.SQL); m != nil && len(e.Vars) == 1 {
						params[m[1]] = e.Vars[0]
					}
				}
			}
		}
	}
	switch dest := stmt.Dest.(type) {
	case map[string]interface{}:
		for k, v := range dest {
			params[k] = v
		}
	}
	if stmt.Schema != nil && stmt.ReflectValue.IsValid() {
		rv := reflect.Indirect(stmt.ReflectValue)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			if rv.Len() == 0 {
				return params
			}
			rv = reflect.Indirect(rv.Index(0))
		}
		if rv.Kind() == reflect.Struct {
			for _, f := range stmt.Schema.Fields {
				if f.DBName == "" {
					continue
				}
				if _, seen := params[f.DBName]; seen {
					continue
				}
				if v, zero := f.ValueOf(stmt.Context, rv); !zero {
					params[f.DBName] = v
				}
			}
		}
	}
	return params
}

func columnName(c interface{}) string {
	switch col := c.(type) {
	case clause.Column:
		if col.Raw {
			return ""
		}
		return col.Name
	case string:
		return col
	}
	return ""
}

func isBatch(rv reflect.Value) bool {
	if !rv.IsValid() {
		return false
	}
	rv = reflect.Indirect(rv)
	return (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Len() > 1
}

func isTransaction(connPool gorm.ConnPool) bool {
	_, ok := connPool.(gorm.TxCommitter)
	return ok
}

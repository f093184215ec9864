package expand

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetargetColumns
//
//	@Description: where 条件中显式写出逻辑表名的列改为当前表, so that a renamed
//	physical table is used when the clause is built
//	@param stmt
//	@param logical
func RetargetColumns(stmt *gorm.Statement, logical string) {
	cs, ok := stmt.Clauses["WHERE"]
	if !ok {
		return
	}
	whereClause, ok := cs.Expression.(clause.Where)
	if !ok {
		return
	}
	for index, expr := range whereClause.Exprs {
		switch e := expr.(type) {
		case clause.Eq:
			e.Column = retarget(e.Column, logical)
			whereClause.Exprs[index] = e
		case clause.Neq:
			e.Column = retarget(e.Column, logical)
			whereClause.Exprs[index] = e
		case clause.Gt:
			e.Column = retarget(e.Column, logical)
			whereClause.Exprs[index] = e
		case clause.Gte:
			e.Column = retarget(e.Column, logical)
			whereClause.Exprs[index] = e
		case clause.Lt:
			e.Column = retarget(e.Column, logical)
			whereClause.Exprs[index] = e
		case clause.Lte:
			e.Column = retarget(e.Column, logical)
			whereClause.Exprs[index] = e
		case clause.Like:
			e.Column = retarget(e.Column, logical)
			whereClause.Exprs[index] = e
		case clause.IN:
			e.Column = retarget(e.Column, logical)
			whereClause.Exprs[index] = e
		}
	}
	cs.Expression = whereClause
	stmt.Clauses["WHERE"] = cs
}

func retarget(column interface{}, logical string) interface{} {
	col, ok := column.(clause.Column)
	if !ok || col.Table != logical {
		return column
	}
	col.Table = clause.CurrentTable
	return col
}

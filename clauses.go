package routeorm

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	writeName = "gorm:routeorm:write"
	usingName = "gorm:routeorm:using"
)

// UseDataSource forces the statement onto the data source key, bypassing the engine.
func UseDataSource(key string) clause.Expression {
	return using{Use: key}
}

type using struct {
	Use string
}

// ModifyStatement modify operation mode
func (u using) ModifyStatement(stmt *gorm.Statement) {
	stmt.Clauses[usingName] = clause.Clause{Expression: u}
}

// Build implements clause.Expression interface
func (u using) Build(clause.Builder) {
}

// Write routes reads of the statement to a writer.
func Write() clause.Expression {
	return write{}
}

type write struct{}

func (write) ModifyStatement(stmt *gorm.Statement) {
	stmt.Settings.Store(writeName, true)
}

func (write) Build(clause.Builder) {
}

func forcedDataSource(stmt *gorm.Statement) string {
	if c, ok := stmt.Clauses[usingName]; ok {
		if u, ok := c.Expression.(using); ok {
			return u.Use
		}
	}
	return ""
}

func forcedWrite(stmt *gorm.Statement) bool {
	_, ok := stmt.Settings.Load(writeName)
	_, locking := stmt.Clauses["FOR"]
	return ok || locking
}

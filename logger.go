package routeorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type RouteModeKey string

const routeModeKey RouteModeKey = "routeorm:route_mode_key"

type routeModeLogger struct {
	logger.Interface
}

func (l routeModeLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	var splitFn = func() (sql string, rowsAffected int64) {
		sql, rowsAffected = fc()
		if ds, ok := ctx.Value(routeModeKey).(string); ok && ds != "" {
			sql = fmt.Sprintf("[%s] %s", ds, sql)
		}
		// transactions and forced pools are not marked
		return
	}
	l.Interface.Trace(ctx, begin, splitFn, err)
}

func (l routeModeLogger) LogMode(level logger.LogLevel) logger.Interface {
	return routeModeLogger{Interface: l.Interface.LogMode(level)}
}

// NewRouteModeLogger prefixes traced SQL with the data source it was routed to.
func NewRouteModeLogger(l logger.Interface) logger.Interface {
	if _, ok := l.(routeModeLogger); ok {
		return l
	}
	return routeModeLogger{
		Interface: l,
	}
}

func markStmtRouteMode(stmt *gorm.Statement, dataSource string) {
	if _, ok := stmt.Logger.(routeModeLogger); ok {
		stmt.Context = context.WithValue(stmt.Context, routeModeKey, dataSource)
	}
}

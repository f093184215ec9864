// Package gormexec executes :name parameterised SQL on gorm connections, one
// per data source key.
package gormexec

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"gorm/routeorm/mapper"
	"gorm/routeorm/repo"
)

var ErrUnknownDataSource = errors.New("gormexec: unknown data source")

// Executor implements repo.Executor. Statements run on the ConnPool of the
// registered *gorm.DB, a transaction handle therefore runs inside its transaction.
type Executor struct {
	mu  sync.RWMutex
	dbs map[string]*gorm.DB
}

func New() *Executor {
	return &Executor{dbs: map[string]*gorm.DB{}}
}

func (e *Executor) Register(key string, db *gorm.DB) {
	e.mu.Lock()
	e.dbs[key] = db
	e.mu.Unlock()
}

func (e *Executor) DB(key string) (*gorm.DB, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	db, ok := e.dbs[key]
	return db, ok
}

func (e *Executor) Keys() []string {
	e.mu.RLock()
	keys := make([]string, 0, len(e.dbs))
	for k := range e.dbs {
		keys = append(keys, k)
	}
	e.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (e *Executor) db(key string) (*gorm.DB, error) {
	db, ok := e.DB(key)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDataSource, "%q", key)
	}
	return db, nil
}

// Bind rewrites :name placeholders into the bind style of the dialect and
// returns the positional arguments.
func Bind(dialect, query string, params map[string]any) (string, []any, error) {
	if params == nil {
		params = map[string]any{}
	}
	q, args, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, errors.Wrap(err, "gormexec: bind named parameters")
	}
	return sqlx.Rebind(sqlx.BindType(dialect), q), args, nil
}

func (e *Executor) Exec(ctx context.Context, dataSource, query string, params map[string]any) (repo.Result, error) {
	db, err := e.db(dataSource)
	if err != nil {
		return repo.Result{}, err
	}
	q, args, err := Bind(db.Dialector.Name(), query, params)
	if err != nil {
		return repo.Result{}, err
	}
	res, err := db.Statement.ConnPool.ExecContext(ctx, q, args...)
	if err != nil {
		return repo.Result{}, err
	}
	out := repo.Result{}
	if out.RowsAffected, err = res.RowsAffected(); err != nil {
		return repo.Result{}, errors.Wrap(err, "gormexec: rows affected")
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID, out.HasLastInsertID = id, true
	}
	return out, nil
}

func (e *Executor) Query(ctx context.Context, dataSource, query string, params map[string]any, fn func(mapper.Row) error) error {
	db, err := e.db(dataSource)
	if err != nil {
		return err
	}
	q, args, err := Bind(db.Dialector.Name(), query, params)
	if err != nil {
		return err
	}
	rows, err := db.Statement.ConnPool.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scan(rows, fn)
}

func scan(rows *sql.Rows, fn func(mapper.Row) error) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := fn(mapper.Row{Columns: cols, Values: values}); err != nil {
			return err
		}
	}
	return rows.Err()
}

package routeorm

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type tunablePool struct {
	gormPool
	maxOpen, maxIdle   int
	lifetime, idleTime time.Duration
}

func (p *tunablePool) SetMaxOpenConns(n int)              { p.maxOpen = n }
func (p *tunablePool) SetMaxIdleConns(n int)              { p.maxIdle = n }
func (p *tunablePool) SetConnMaxLifetime(d time.Duration) { p.lifetime = d }
func (p *tunablePool) SetConnMaxIdleTime(d time.Duration) { p.idleTime = d }

type gormPool struct{}

func (gormPool) PrepareContext(context.Context, string) (*sql.Stmt, error) { return nil, nil }
func (gormPool) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (gormPool) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (gormPool) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

func TestApplyPoolSettings(t *testing.T) {
	pool := &tunablePool{maxIdle: 2}
	ok := ApplyPoolSettings(pool, DialectorConfig{MaxOpen: 10, MaxLifetime: time.Minute})
	assert.True(t, ok)
	assert.Equal(t, 10, pool.maxOpen)
	assert.Equal(t, 2, pool.maxIdle)
	assert.Equal(t, time.Minute, pool.lifetime)
	assert.Zero(t, pool.idleTime)

	assert.False(t, ApplyPoolSettings(gormPool{}, DialectorConfig{MaxOpen: 10}))
}

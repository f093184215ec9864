package routeorm

import (
	"time"

	"gorm.io/gorm"
)

// DialectorConfig dialector及属性配置
type DialectorConfig struct {
	Dialector    gorm.Dialector
	MaxOpen      int
	MaxIdleConns int
	MaxLifetime  time.Duration
	MaxIdleTime  time.Duration
}

// poolTuner is the pool sizing surface of *sql.DB.
type poolTuner interface {
	SetMaxOpenConns(n int)
	SetMaxIdleConns(n int)
	SetConnMaxLifetime(d time.Duration)
	SetConnMaxIdleTime(d time.Duration)
}

// ApplyPoolSettings 配置连接池参数. Zero values keep the driver defaults; a pool
// that cannot be tuned (a transaction, a test double) is left alone and false
// is returned.
func ApplyPoolSettings(connPool gorm.ConnPool, cfg DialectorConfig) bool {
	pool, ok := connPool.(poolTuner)
	if !ok {
		return false
	}
	if cfg.MaxOpen != 0 {
		pool.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdleConns != 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime != 0 {
		pool.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	if cfg.MaxIdleTime != 0 {
		pool.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}
	return true
}

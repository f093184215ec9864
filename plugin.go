package routeorm

import (
	"sort"
	"sync"

	"gorm.io/gorm"

	"gorm/routeorm/dbctx"
)

// DBRoute is a gorm plugin routing every statement through an Engine.
type DBRoute struct {
	*gorm.DB
	engine  *Engine
	sources map[string]DialectorConfig
	mu      sync.RWMutex
	pools   map[string]gorm.ConnPool
}

// Register builds the plugin; the gorm.DB it is used on serves the engine's
// default data source unless sources names it.
func Register(engine *Engine, sources map[string]DialectorConfig) *DBRoute {
	return &DBRoute{
		engine:  engine,
		sources: sources,
		pools:   map[string]gorm.ConnPool{},
	}
}

func (dr *DBRoute) Name() string {
	return callbackName
}

func (dr *DBRoute) Engine() *Engine { return dr.engine }

func (dr *DBRoute) Initialize(db *gorm.DB) error {
	dr.DB = db
	connPool := db.Config.ConnPool
	if preparedStmtDB, ok := connPool.(*gorm.PreparedStmtDB); ok {
		connPool = preparedStmtDB.ConnPool
	}
	if _, ok := dr.sources[dr.engine.config.DefaultDataSource]; !ok {
		dr.AddConnPool(dr.engine.config.DefaultDataSource, connPool)
	}

	names := make([]string, 0, len(dr.sources))
	for name := range dr.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	config := *db.Config
	for _, name := range names {
		cfg := dr.sources[name]
		opened, err := gorm.Open(cfg.Dialector, &config)
		if err != nil {
			return err
		}
		pool := opened.Config.ConnPool
		if preparedStmtDB, ok := pool.(*gorm.PreparedStmtDB); ok {
			pool = preparedStmtDB.ConnPool
		}
		ApplyPoolSettings(pool, cfg)
		dr.AddConnPool(name, pool)
	}

	if dr.engine.config.TraceRouteMode {
		dr.Logger = NewRouteModeLogger(dr.Logger)
	}
	return dr.registerCallbacks(db)
}

// AddConnPool makes pool the connection of data source name.
func (dr *DBRoute) AddConnPool(name string, pool gorm.ConnPool) {
	dr.mu.Lock()
	dr.pools[name] = pool
	dr.mu.Unlock()
	if _, ok := dr.engine.registry.DataSource(name); !ok {
		_ = dr.engine.registry.RegisterDataSource(dbctx.DataSourceInfo{Key: name})
	}
}

func (dr *DBRoute) ConnPool(name string) (gorm.ConnPool, bool) {
	dr.mu.RLock()
	defer dr.mu.RUnlock()
	pool, ok := dr.pools[name]
	return pool, ok
}

package config

import (
	"log"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"gorm/routeorm"
	"gorm/routeorm/dbctx"
	"gorm/routeorm/gormexec"
	"gorm/routeorm/meta"
	"gorm/routeorm/repo"
)

// Runtime is every component wired from one Config.
type Runtime struct {
	// DB serves the default data source and routes gorm statements with the plugin.
	DB       *gorm.DB
	DBs      map[string]*gorm.DB
	Engine   *routeorm.Engine
	Router   *routeorm.DBRoute
	Executor *gormexec.Executor
	Template *repo.Template
}

// Open connects every data source, registers it in registry and wires the
// routing engine, gorm plugin and repository template.
func Open(cfg *Config, registry *dbctx.Registry) (*Runtime, error) {
	if registry == nil {
		registry = dbctx.Default
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gormConfig := defaultConfig(cfg.ORM)
	engine, err := cfg.NewEngine(routeorm.WithRegistry(registry), routeorm.WithLogger(gormConfig.Logger))
	if err != nil {
		return nil, err
	}

	rt := &Runtime{DBs: map[string]*gorm.DB{}, Engine: engine, Executor: gormexec.New()}
	keys := make([]string, 0, len(cfg.DataSources))
	for key := range cfg.DataSources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		dbCfg := cfg.DataSources[key]
		dialector, err := openDialector(dbCfg)
		if err != nil {
			return nil, errors.Wrapf(err, "data source %s", key)
		}
		db, err := gorm.Open(dialector, defaultConfig(cfg.ORM))
		if err != nil {
			rt.Close()
			return nil, errors.Wrapf(err, "open data source %s", key)
		}
		if cfg.ORM.Debug {
			db = db.Debug()
		}
		if sqlDB, err := db.DB(); err == nil {
			routeorm.ApplyPoolSettings(sqlDB, routeorm.DialectorConfig{
				MaxOpen:      dbCfg.MaxOpenConns,
				MaxIdleConns: dbCfg.MaxIdleConns,
				MaxLifetime:  dbCfg.MaxLifetime,
				MaxIdleTime:  dbCfg.MaxIdleTime,
			})
		}
		props := map[string]string{"db-type": strings.ToLower(dbCfg.DBType)}
		for k, v := range dbCfg.Properties {
			props[k] = v
		}
		if err := registry.RegisterDataSource(dbctx.DataSourceInfo{Key: key, Description: dbCfg.Description, Properties: props}); err != nil {
			rt.Close()
			return nil, err
		}
		rt.DBs[key] = db
		rt.Executor.Register(key, db)
	}

	if primary, ok := rt.DBs[cfg.Routing.DefaultDataSource]; ok {
		rt.Router = routeorm.Register(engine, nil)
		if err := primary.Use(rt.Router); err != nil {
			rt.Close()
			return nil, err
		}
		for key, db := range rt.DBs {
			if key != cfg.Routing.DefaultDataSource {
				pool := db.Config.ConnPool
				if preparedStmtDB, ok := pool.(*gorm.PreparedStmtDB); ok {
					pool = preparedStmtDB.ConnPool
				}
				rt.Router.AddConnPool(key, pool)
			}
		}
		rt.DB = primary
	}

	rt.Template = repo.NewTemplate(rt.Executor, engine,
		repo.WithMetadata(meta.NewRegistry(meta.WithNamer(gormConfig.NamingStrategy))),
		repo.WithLogger(gormConfig.Logger))
	return rt, nil
}

// Close closes every opened connection pool.
func (rt *Runtime) Close() {
	for _, db := range rt.DBs {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func dialect(dbType string) (string, error) {
	switch strings.ToLower(dbType) {
	case "mysql":
		return "mysql", nil
	case "postgres", "postgresql":
		return "postgres", nil
	}
	return "", errors.Errorf("unsupported db type %q", dbType)
}

func openDialector(cfg DBConfig) (gorm.Dialector, error) {
	d, err := dialect(cfg.DBType)
	if err != nil {
		return nil, err
	}
	switch d {
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return mysql.Open(cfg.DSN), nil
	}
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func defaultConfig(ormConfig OrmConfig) (config *gorm.Config) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             ormConfig.SlowThreshold,
			LogLevel:                  logLevel(ormConfig.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   ormConfig.TablePrefix,
			SingularTable: ormConfig.SingularTable,
		},
		Logger:      newLogger,
		PrepareStmt: ormConfig.PrepareStmt,
	}
}

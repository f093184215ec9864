// Package config loads routeorm settings with viper and opens the configured
// data sources.
package config

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"gorm/routeorm"
)

const EnvPrefix = "ROUTEORM"

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the whole configuration file. Viper lowercases map keys, data
// source keys are therefore lowercase.
type Config struct {
	ORM         OrmConfig           `mapstructure:"orm"`
	DataSources map[string]DBConfig `mapstructure:"data-sources"`
	Routing     routeorm.RuleConfig `mapstructure:"routing"`
}

// OrmConfig orm global config
type OrmConfig struct {
	Debug         bool          `mapstructure:"debug"`
	TablePrefix   string        `mapstructure:"table-prefix"`
	SingularTable bool          `mapstructure:"singular-table"`
	PrepareStmt   bool          `mapstructure:"prepare-stmt"`
	LogLevel      string        `mapstructure:"log-level"`
	SlowThreshold time.Duration `mapstructure:"slow-threshold"`
}

// DBConfig database config
type DBConfig struct {
	DBType       string            `mapstructure:"db-type"`
	DSN          string            `mapstructure:"dsn"`
	Description  string            `mapstructure:"description"`
	Properties   map[string]string `mapstructure:"properties"`
	MaxOpenConns int               `mapstructure:"max-open-conns"`
	MaxIdleConns int               `mapstructure:"max-idle-conns"`
	MaxLifetime  time.Duration     `mapstructure:"max-lifetime"`
	MaxIdleTime  time.Duration     `mapstructure:"max-idle-time"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("orm.singular-table", true)
	v.SetDefault("orm.log-level", "warn")
	v.SetDefault("orm.slow-threshold", 200*time.Millisecond)
	return v
}

// Load reads a YAML, JSON or TOML file; ROUTEORM_* environment variables
// override its keys, e.g. ROUTEORM_ROUTING_DEFAULT_DATA_SOURCE.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return decode(v)
}

// LoadReader is Load for an in-memory document of the given format.
func LoadReader(format string, r io.Reader) (*Config, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the data sources; routing rules are checked by the engine.
func (c *Config) Validate() error {
	for key, ds := range c.DataSources {
		if _, err := dialect(ds.DBType); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "data source %s: %v", key, err)
		}
		if strings.TrimSpace(ds.DSN) == "" {
			return errors.Wrapf(ErrInvalidConfig, "data source %s: dsn is required", key)
		}
	}
	if len(c.DataSources) > 0 {
		if _, ok := c.DataSources[c.Routing.DefaultDataSource]; !ok {
			return errors.Wrapf(ErrInvalidConfig, "default data source %q is not configured", c.Routing.DefaultDataSource)
		}
	}
	return nil
}

// NewEngine builds the routing engine of the configuration.
func (c *Config) NewEngine(opts ...routeorm.Option) (*routeorm.Engine, error) {
	return routeorm.NewEngine(c.Routing, opts...)
}

package routeorm

// CommandType 操作类型
type CommandType string

const (
	SELECT       CommandType = "SELECT"
	INSERT       CommandType = "INSERT"
	UPDATE       CommandType = "UPDATE"
	DELETE       CommandType = "DELETE"
	BATCH_INSERT CommandType = "BATCH_INSERT"
	BATCH_UPDATE CommandType = "BATCH_UPDATE"
	BATCH_DELETE CommandType = "BATCH_DELETE"
)

// IsRead SELECT is the only read command, everything else goes to a writer.
func (c CommandType) IsRead() bool { return c == SELECT }

// ShardingAlgorithm 分表算法
type ShardingAlgorithm string

const (
	AlgorithmMod        ShardingAlgorithm = "mod"
	AlgorithmHash       ShardingAlgorithm = "hash"
	AlgorithmRange      ShardingAlgorithm = "range"
	AlgorithmExpression ShardingAlgorithm = "expression"
)

// DataShardingRuleModel 数据分片规则
type DataShardingRuleModel struct {
	Table                        string `json:"table" mapstructure:"table"`
	DatabaseDefaultShardingValue string `json:"database-default-sharding-value" mapstructure:"database-default-sharding-value"`
	DatabaseShardingParameter    string `json:"database-sharding-parameter" mapstructure:"database-sharding-parameter"`
	DatabaseShardingExpression   string `json:"database-sharding-expression" mapstructure:"database-sharding-expression"`
	TableShardingParameter       string `json:"table-sharding-parameter" mapstructure:"table-sharding-parameter"`
	TableShardingExpression      string `json:"table-sharding-expression" mapstructure:"table-sharding-expression"`
	// Algorithm defaults to expression when TableShardingExpression is set, else mod.
	Algorithm  ShardingAlgorithm `json:"algorithm" mapstructure:"algorithm"`
	ShardCount int               `json:"shard-count" mapstructure:"shard-count"`
	Ranges     []ShardRange      `json:"ranges" mapstructure:"ranges"`
}

// ShardRange maps [From, To) to a table suffix.
type ShardRange struct {
	From   int64  `json:"from" mapstructure:"from"`
	To     int64  `json:"to" mapstructure:"to"`
	Suffix string `json:"suffix" mapstructure:"suffix"`
}

func (m DataShardingRuleModel) shardsTable() bool {
	return m.TableShardingParameter != "" || m.TableShardingExpression != ""
}

func (m DataShardingRuleModel) shardsDatabase() bool {
	return m.DatabaseDefaultShardingValue != "" ||
		(m.DatabaseShardingParameter != "" && m.DatabaseShardingExpression != "")
}

func (m DataShardingRuleModel) algorithm() ShardingAlgorithm {
	if m.Algorithm != "" {
		return m.Algorithm
	}
	if m.TableShardingExpression != "" {
		return AlgorithmExpression
	}
	if len(m.Ranges) > 0 {
		return AlgorithmRange
	}
	return AlgorithmMod
}

// SlaveStrategy 从库选择策略
type SlaveStrategy string

const (
	StrategyRoundRobin SlaveStrategy = "round_robin"
	StrategyRandom     SlaveStrategy = "random"
)

// ReadWriteConfig 读写分离
type ReadWriteConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Master   string        `json:"master" mapstructure:"master"`
	Slaves   []string      `json:"slaves" mapstructure:"slaves"`
	Strategy SlaveStrategy `json:"strategy" mapstructure:"strategy"`
}

// TenantStrategy 多租户隔离方式
type TenantStrategy string

const (
	TenantByDataSource TenantStrategy = "datasource"
	TenantByTable      TenantStrategy = "table"
)

// TenantResolverKind 租户标识来源
type TenantResolverKind string

const (
	TenantFromHeader    TenantResolverKind = "header"
	TenantFromParameter TenantResolverKind = "parameter"
	TenantFromAttribute TenantResolverKind = "attribute"
	TenantFromUser      TenantResolverKind = "user"
)

// TenantConfig 多租户
type TenantConfig struct {
	Enabled       bool               `json:"enabled" mapstructure:"enabled"`
	Strategy      TenantStrategy     `json:"strategy" mapstructure:"strategy"`
	Resolver      TenantResolverKind `json:"resolver" mapstructure:"resolver"`
	TenantKey     string             `json:"tenant-key" mapstructure:"tenant-key"`
	DefaultTenant string             `json:"default-tenant" mapstructure:"default-tenant"`
	// DataSources maps tenant id to a physical data source key.
	DataSources map[string]string `json:"data-sources" mapstructure:"data-sources"`
}

// CustomRule 自定义路由规则
type CustomRule struct {
	Name       string `json:"name" mapstructure:"name"`
	Condition  string `json:"condition" mapstructure:"condition"`
	DataSource string `json:"data-source" mapstructure:"data-source"`
	Priority   int    `json:"priority" mapstructure:"priority"`
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
}

// RuleConfig is loaded once at startup and read by every routing decision.
type RuleConfig struct {
	DefaultDataSource string                  `json:"default-data-source" mapstructure:"default-data-source"`
	ReadWrite         *ReadWriteConfig        `json:"read-write" mapstructure:"read-write"`
	MultiTenant       *TenantConfig           `json:"multi-tenant" mapstructure:"multi-tenant"`
	Rules             []CustomRule            `json:"rules" mapstructure:"rules"`
	Sharding          []DataShardingRuleModel `json:"sharding" mapstructure:"sharding"`
	// 打印路由信息
	TraceRouteMode bool `json:"trace-route-mode" mapstructure:"trace-route-mode"`
}

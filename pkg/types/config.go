package types

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty" json:"maxRequestBody,omitempty"`
}

// NotifySinkConfig selects and configures a notification sink.
type NotifySinkConfig struct {
	Type string `yaml:"type"` // "console", "file", or "webhook"
	URL  string `yaml:"url,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// RedisConfig holds Redis/Valkey connection and store settings.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password,omitempty"`
	DB             int    `yaml:"db,omitempty"`
	KeyPrefix      string `yaml:"keyPrefix"`
	ExecutionLimit int64  `yaml:"executionLimit,omitempty"` // per-rule execution index cap, default 500
}

// PostgresConfig configures the background execution archiver.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval,omitempty"` // e.g. "5m"
	DSN      string `yaml:"dsn"`
}

// DispatcherConfig holds trigger dispatcher settings.
type DispatcherConfig struct {
	Workers   int `yaml:"workers,omitempty"`   // default 8
	QueueSize int `yaml:"queueSize,omitempty"` // default 1024
}

// ExecutorConfig holds action executor settings.
type ExecutorConfig struct {
	DefaultTimeout string            `yaml:"defaultTimeout,omitempty"` // per-action, default "10s"
	ActionTimeouts map[string]string `yaml:"actionTimeouts,omitempty"` // per action type overrides
}

// SchedulerConfig holds cron scheduler settings.
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TickInterval string `yaml:"tickInterval,omitempty"` // default "1m", minimum resolution
}

// HealthConfig holds pack health aggregator settings.
type HealthConfig struct {
	Interval        string  `yaml:"interval,omitempty"`        // default "30s"
	TrailingWindow  int     `yaml:"trailingWindow,omitempty"`  // default 20 executions
	ReviewThreshold float64 `yaml:"reviewThreshold,omitempty"` // default 0.5, flags rule for review
}

// ProjectConfig represents the top-level automation.yaml configuration.
type ProjectConfig struct {
	Provider   string             `yaml:"provider"` // "memory" or "redis"
	Redis      *RedisConfig       `yaml:"redis,omitempty"`
	Archiver   *PostgresConfig    `yaml:"archiver,omitempty"`
	Server     *ServerConfig      `yaml:"server,omitempty"`
	Dispatcher *DispatcherConfig  `yaml:"dispatcher,omitempty"`
	Executor   *ExecutorConfig    `yaml:"executor,omitempty"`
	Scheduler  *SchedulerConfig   `yaml:"scheduler,omitempty"`
	Health     *HealthConfig      `yaml:"health,omitempty"`
	Notify     []NotifySinkConfig `yaml:"notify,omitempty"`
	SLA        []SLAPolicy        `yaml:"sla,omitempty"`
	PackDirs   []string           `yaml:"packDirs,omitempty"` // seed packs/rules loaded at startup
}

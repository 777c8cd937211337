package domain

import "time"

// Config holds the complete moim configuration.
// Fields are populated from the environment by internal/config.
type Config struct {
	// Server settings
	Server ServerConfig `envPrefix:"MOIM_SERVER_"`

	// Profile determines which backing services are used
	Profile Profile `env:"MOIM_PROFILE" envDefault:"community"`

	// Component configurations
	Repository RepositoryConfig `envPrefix:"MOIM_DB_"`
	Cache      CacheConfig      `envPrefix:"MOIM_CACHE_"`
	EventBus   EventBusConfig   `envPrefix:"MOIM_BUS_"`

	// Admin authentication
	Auth AuthConfig `envPrefix:"MOIM_AUTH_"`

	// Outbound notifications
	Notify NotifyConfig `envPrefix:"MOIM_NOTIFY_"`

	// Observability
	Logging LoggingConfig `envPrefix:"MOIM_LOG_"`
	Tracing TracingConfig `envPrefix:"MOIM_TRACING_"`
	Metrics MetricsConfig `envPrefix:"MOIM_METRICS_"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `env:"HOST" envDefault:"0.0.0.0"`
	Port         int    `env:"PORT" envDefault:"8080"`
	ReadTimeout  int    `env:"READ_TIMEOUT" envDefault:"30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT" envDefault:"30"` // seconds
}

// AuthConfig holds admin token settings.
type AuthConfig struct {
	// JWTSecret signs and verifies admin bearer tokens (HS256).
	JWTSecret string `env:"JWT_SECRET"`
	Issuer    string `env:"ISSUER" envDefault:"moim"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	SendGridKey string        `env:"SENDGRID_KEY"`
	FromName    string        `env:"FROM_NAME" envDefault:"moim"`
	FromEmail   string        `env:"FROM_EMAIL" envDefault:"noreply@localhost"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay  time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
	Tenants     []string      `env:"TENANTS" envSeparator:","`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`  // debug, info, warn, error
	Format string `env:"FORMAT" envDefault:"json"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"moim"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// Profile represents the deployment profile.
type Profile string

const (
	// ProfileCommunity runs on SQLite + in-memory cache + channel bus
	ProfileCommunity Profile = "community"

	// ProfilePro runs on PostgreSQL + Redis + NATS
	ProfilePro Profile = "pro"
)

// DefaultConfig returns a default configuration for the community profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile: ProfileCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./moim.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Auth: AuthConfig{
			Issuer: "moim",
		},
		Notify: NotifyConfig{
			FromName:    "moim",
			FromEmail:   "noreply@localhost",
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "moim",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// ApplyProProfile switches the backing services to PostgreSQL, Redis and NATS,
// keeping any explicitly configured addresses.
func (c *Config) ApplyProProfile() {
	c.Profile = ProfilePro
	c.Repository.Driver = "postgres"
	if c.Repository.PostgresHost == "" {
		c.Repository.PostgresHost = "localhost"
	}
	if c.Repository.PostgresPort == 0 {
		c.Repository.PostgresPort = 5432
	}
	if c.Repository.PostgresDB == "" {
		c.Repository.PostgresDB = "moim"
	}
	c.Cache.Type = "redis"
	c.Cache.EnableTwoPhase = true
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = "localhost:6379"
	}
	c.EventBus.Type = "nats"
	if c.EventBus.NATSUrl == "" {
		c.EventBus.NATSUrl = "nats://localhost:4222"
	}
	if c.EventBus.NATSMaxReconnects == 0 {
		c.EventBus.NATSMaxReconnects = 10
	}
	if c.EventBus.NATSReconnectWait == 0 {
		c.EventBus.NATSReconnectWait = 5
	}
	c.Tracing.Enabled = true
}

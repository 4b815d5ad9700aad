package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/flexprice/deprovisioner/internal/types"
)

type Configuration struct {
	Deployment     DeploymentConfig     `mapstructure:"deployment"`
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	Temporal       TemporalConfig       `mapstructure:"temporal"`
	PubSub         PubSubConfig         `mapstructure:"pubsub"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Email          EmailConfig          `mapstructure:"email"`
	Plans          PlansConfig          `mapstructure:"plans"`
	Deprovisioning DeprovisioningConfig `mapstructure:"deprovisioning"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
	Sentry         SentryConfig         `mapstructure:"sentry"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Pyroscope      PyroscopeConfig      `mapstructure:"pyroscope"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level          types.LogLevel `mapstructure:"level" validate:"required"`
	FluentdEnabled bool           `mapstructure:"fluentd_enabled"`
	FluentdHost    string         `mapstructure:"fluentd_host"`
	FluentdPort    int            `mapstructure:"fluentd_port"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"required"`
	User                   string `mapstructure:"user" validate:"required"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

type TemporalConfig struct {
	Address   string `mapstructure:"address" validate:"required"`
	Namespace string `mapstructure:"namespace" validate:"required"`
	APIKey    string `mapstructure:"api_key"`
	TLS       bool   `mapstructure:"tls"`
}

type PubSubConfig struct {
	Type                      types.PubSubType `mapstructure:"type" validate:"required"`
	SubscriptionChangesTopic  string           `mapstructure:"subscription_changes_topic" validate:"required"`
	DeprovisioningEventsTopic string           `mapstructure:"deprovisioning_events_topic" validate:"required"`
	MembershipEventsTopic     string           `mapstructure:"membership_events_topic" validate:"required"`
	ConsumerGroup             string           `mapstructure:"consumer_group"`
}

type KafkaConfig struct {
	Brokers       []string             `mapstructure:"brokers"`
	ClientID      string               `mapstructure:"client_id"`
	TLS           bool                 `mapstructure:"tls"`
	UseSASL       bool                 `mapstructure:"use_sasl"`
	SASLMechanism sarama.SASLMechanism `mapstructure:"sasl_mechanism"`
	SASLUser      string               `mapstructure:"sasl_user"`
	SASLPassword  string               `mapstructure:"sasl_password"`
}

type EmailConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	ResendAPIKey    string  `mapstructure:"resend_api_key"`
	FromAddress     string  `mapstructure:"from_address"`
	RateLimitPerSec float64 `mapstructure:"rate_limit_per_sec"`
	MaxRetries      uint64  `mapstructure:"max_retries"`
}

type PlansConfig struct {
	// Limits maps product ids to their allowed member count. Used when BaseURL is empty.
	Limits   map[string]int `mapstructure:"limits"`
	BaseURL  string         `mapstructure:"base_url"`
	APIKey   string         `mapstructure:"api_key"`
	CacheTTL time.Duration  `mapstructure:"cache_ttl"`
}

type DeprovisioningConfig struct {
	GracePeriodDays   int           `mapstructure:"grace_period_days" validate:"min=1"`
	ExtensionDays     int           `mapstructure:"extension_days" validate:"min=1"`
	MinimumAdmins     int           `mapstructure:"minimum_admins" validate:"min=0"`
	ProtectCreator    bool          `mapstructure:"protect_creator"`
	ReminderAfter     time.Duration `mapstructure:"reminder_after" validate:"required"`
	FinalWarningAfter time.Duration `mapstructure:"final_warning_after" validate:"required"`
	ExecutionAfter    time.Duration `mapstructure:"execution_after" validate:"required"`
}

type SchedulerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	ReconcileCron      string `mapstructure:"reconcile_cron"`
	ReconcileBatchSize int    `mapstructure:"reconcile_batch_size"`
	MaxConcurrency     int    `mapstructure:"max_concurrency"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type MetricsConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	ExporterEndpoint string `mapstructure:"exporter_endpoint"`
	ServiceName      string `mapstructure:"service_name"`
}

type PyroscopeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
	AppName       string `mapstructure:"app_name"`
}

// NewConfig loads configuration from config.yaml, .env and DEPROVISIONER_* environment variables.
func NewConfig() (*Configuration, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DEPROVISIONER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct tag validation on the configuration.
func (c *Configuration) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !c.Deployment.Mode.IsValid() {
		return fmt.Errorf("invalid configuration: unknown deployment mode %q", c.Deployment.Mode)
	}
	return nil
}

// GetDefaultConfig returns the configuration used when no config file is available (tests, scripts).
func GetDefaultConfig() *Configuration {
	v := viper.New()
	setDefaults(v)
	var cfg Configuration
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeLocal))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", string(types.LogLevelInfo))

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "deprovisioner")
	v.SetDefault("postgres.dbname", "deprovisioner")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)

	v.SetDefault("temporal.address", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")

	v.SetDefault("pubsub.type", string(types.PubSubTypeMemory))
	v.SetDefault("pubsub.subscription_changes_topic", "subscription_changes")
	v.SetDefault("pubsub.deprovisioning_events_topic", "deprovisioning_events")
	v.SetDefault("pubsub.membership_events_topic", "membership_events")
	v.SetDefault("pubsub.consumer_group", "deprovisioner")

	v.SetDefault("kafka.client_id", "deprovisioner")

	v.SetDefault("email.rate_limit_per_sec", 2.0)
	v.SetDefault("email.max_retries", 3)

	v.SetDefault("plans.cache_ttl", 10*time.Minute)

	v.SetDefault("deprovisioning.grace_period_days", 14)
	v.SetDefault("deprovisioning.extension_days", 14)
	v.SetDefault("deprovisioning.minimum_admins", 1)
	v.SetDefault("deprovisioning.protect_creator", false)
	v.SetDefault("deprovisioning.reminder_after", 7*24*time.Hour)
	v.SetDefault("deprovisioning.final_warning_after", 6*24*time.Hour)
	v.SetDefault("deprovisioning.execution_after", 24*time.Hour)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.reconcile_cron", "0 0 * * * *")
	v.SetDefault("scheduler.reconcile_batch_size", 100)
	v.SetDefault("scheduler.max_concurrency", 4)

	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("metrics.service_name", "deprovisioner")
	v.SetDefault("pyroscope.app_name", "deprovisioner")
}

// DSN returns the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

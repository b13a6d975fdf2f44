// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Push     PushConfig              `mapstructure:"push"`
	NATS     NATSConfig              `mapstructure:"nats"`
	HTTP     HTTPConfig              `mapstructure:"http"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Dispatch DispatchConfig          `mapstructure:"dispatch"`
	Logging  LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// CamundaConfig enables the Zeebe trigger surface when BrokerAddress is set.
type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

func (c CamundaConfig) Enabled() bool { return c.BrokerAddress != "" }

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig is optional; an empty Address disables the profile cache and the duplicate guard.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Enabled() bool { return r.Address != "" }

const (
	PushProviderFCM = "fcm"
	PushProviderSNS = "sns"
)

// PushConfig selects and configures the multicast transport.
type PushConfig struct {
	Provider string `mapstructure:"provider"`
	FCM      struct {
		ProjectID       string `mapstructure:"project_id"`
		CredentialsFile string `mapstructure:"credentials_file"`
	} `mapstructure:"fcm"`
	SNS struct {
		Region      string `mapstructure:"region"`
		Concurrency int    `mapstructure:"concurrency"`
	} `mapstructure:"sns"`
}

// NATSConfig enables the change-feed subscriber when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	QueueGroup    string `mapstructure:"queue_group"`
}

func (n NATSConfig) Enabled() bool { return n.URL != "" }

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

// WorkerConfig holds the settings applicable to every Zeebe worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
}

// DispatchConfig tunes a single lifecycle reaction.
type DispatchConfig struct {
	LookupConcurrency int           `mapstructure:"lookup_concurrency"`
	ReactionTimeout   time.Duration `mapstructure:"reaction_timeout"`
	ProfileCacheTTL   time.Duration `mapstructure:"profile_cache_ttl"`
	DedupEnabled      bool          `mapstructure:"dedup_enabled"`
	DedupTTL          time.Duration `mapstructure:"dedup_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the full runtime configuration for the reconciliation engine.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	AWS     AWSConfig     `mapstructure:"aws"`
	SSO     SSOConfig     `mapstructure:"sso"`
	Store   StoreConfig   `mapstructure:"store"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Waiter  WaiterConfig  `mapstructure:"waiter"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AWSConfig selects credentials and region the way the SDK default chain
// expects; profile wins over static keys, otherwise the default chain is
// used. Endpoint supports LocalStack style testing.
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
	// MaxAttempts is the default client retry budget. AdminMaxAttempts
	// applies to the SSO admin client driven by the provisioner, which
	// sees the highest call volume.
	MaxAttempts      int `mapstructure:"max_attempts"`
	AdminMaxAttempts int `mapstructure:"admin_max_attempts"`
}

type SSOConfig struct {
	Region          string `mapstructure:"region"`
	PayerAccountID  string `mapstructure:"payer_account_id"`
	SupportNestedOU bool   `mapstructure:"support_nested_ou"`
	// DirectoryDomain is appended to principal names on identity store
	// lookups when DomainSuffixing is on (Active Directory backed stores
	// materialize principals as name@domain).
	DomainSuffixing bool   `mapstructure:"domain_suffixing"`
	DirectoryDomain string `mapstructure:"directory_domain"`
	PageSize        int32  `mapstructure:"page_size"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type QueueConfig struct {
	Partitions int `mapstructure:"partitions"`
	BufferSize int `mapstructure:"buffer_size"`
}

type WaiterConfig struct {
	InitialDelay       time.Duration `mapstructure:"initial_delay"`
	CreateInterval     time.Duration `mapstructure:"create_interval"`
	DeleteInterval     time.Duration `mapstructure:"delete_interval"`
	MaxWait            time.Duration `mapstructure:"max_wait"`
	TransportRetries   int           `mapstructure:"transport_retries"`
	TransportBaseDelay time.Duration `mapstructure:"transport_base_delay"`
}

// Load reads configuration from file, environment, and defaults.
func Load(configFile string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: error loading .env file: %v\n", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/grantd")
	if home := os.Getenv("HOME"); len(home) > 0 {
		v.AddConfigPath(home + "/.config/grantd")
	}
	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("GRANTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; defaults and env cover everything.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := setupLogging(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns the configuration defaults without touching the
// filesystem or environment. Used by tests.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("error unmarshaling default config: %v", err))
	}
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.max_attempts", 2)
	v.SetDefault("aws.admin_max_attempts", 5)

	v.SetDefault("sso.region", "us-east-1")
	v.SetDefault("sso.support_nested_ou", false)
	v.SetDefault("sso.domain_suffixing", false)
	v.SetDefault("sso.page_size", 20)

	v.SetDefault("store.path", "grantd.db")

	v.SetDefault("queue.partitions", 10)
	v.SetDefault("queue.buffer_size", 128)

	v.SetDefault("waiter.initial_delay", "5s")
	v.SetDefault("waiter.create_interval", "60s")
	v.SetDefault("waiter.delete_interval", "2s")
	v.SetDefault("waiter.max_wait", "600s")
	v.SetDefault("waiter.transport_retries", 3)
	v.SetDefault("waiter.transport_base_delay", "1s")
}

// Package config loads gateway configuration from YAML and environment
// variables (GATEWAY_ prefix) via spf13/viper. Load watches the file via
// fsnotify (viper.WatchConfig) only when given an onChange callback, and
// then only hands the reloaded Config to that callback; nothing here
// re-applies it to running components.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	ServiceName      string `mapstructure:"service_name"`
	ServiceNamespace string `mapstructure:"service_namespace"`
	ListenAddr       string `mapstructure:"listen_addr"`

	MaxConcurrentConnections int           `mapstructure:"max_concurrent_connections"`
	ConnectionIdleTimeout    time.Duration `mapstructure:"connection_idle_timeout"`

	QueueMaxSize       int64   `mapstructure:"queue_max_size"`
	QueueHighWatermark float64 `mapstructure:"queue_high_watermark"`
	QueueLowWatermark  float64 `mapstructure:"queue_low_watermark"`
	QueueDropThreshold float64 `mapstructure:"queue_drop_threshold"`

	RPCTimeout    time.Duration `mapstructure:"rpc_timeout"`
	RPCMaxRetries int           `mapstructure:"rpc_max_retries"`
	RPCRetryDelay time.Duration `mapstructure:"rpc_retry_delay"`

	CircuitFailureThreshold uint32        `mapstructure:"circuit_failure_threshold"`
	CircuitRecoveryTimeout  time.Duration `mapstructure:"circuit_recovery_timeout"`
	CircuitSuccessThreshold uint32        `mapstructure:"circuit_success_threshold"`

	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	SessionRenewThreshold time.Duration `mapstructure:"session_renew_threshold"`

	DiscoveryBackend string `mapstructure:"discovery_backend"` // "env" | "consul" | "amqp"
	ConsulAddr       string `mapstructure:"consul_addr"`
	AMQPURI          string `mapstructure:"amqp_uri"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("service_name", "arcade-gateway")
	v.SetDefault("service_namespace", "kestrel-games")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("max_concurrent_connections", 8000)
	v.SetDefault("connection_idle_timeout", 300*time.Second)
	v.SetDefault("queue_max_size", 10000)
	v.SetDefault("queue_high_watermark", 0.8)
	v.SetDefault("queue_low_watermark", 0.6)
	v.SetDefault("queue_drop_threshold", 0.95)
	v.SetDefault("rpc_timeout", 3*time.Second)
	v.SetDefault("rpc_max_retries", 3)
	v.SetDefault("rpc_retry_delay", 1*time.Second)
	v.SetDefault("circuit_failure_threshold", 5)
	v.SetDefault("circuit_recovery_timeout", 30*time.Second)
	v.SetDefault("circuit_success_threshold", 3)
	v.SetDefault("session_ttl", 30*time.Minute)
	v.SetDefault("session_renew_threshold", 5*time.Minute)
	v.SetDefault("discovery_backend", "env")
}

// Load reads configPath (if non-empty), environment overrides under the
// GATEWAY_ prefix, and watches configPath for live edits via fsnotify,
// invoking onChange with the reloaded Config.
func Load(configPath string, onChange func(*Config)) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("GATEWAY")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if configPath != "" && onChange != nil {
		v.OnConfigChange(func(_ fsnotify.Event) {
			var reloaded Config
			if err := v.Unmarshal(&reloaded); err == nil {
				onChange(&reloaded)
			}
		})
		v.WatchConfig()
	}

	return &cfg, nil
}

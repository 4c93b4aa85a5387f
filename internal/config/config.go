// Package config loads and watches the engine's process configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete engine process configuration.
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	AddrSpace AddrSpaceConfig `mapstructure:"addrspace"`
}

// ServiceConfig identifies this process in logs and metrics.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig configures the metrics/health HTTP server.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MQTTConfig configures the demo notification sink.
type MQTTConfig struct {
	BrokerURL      string        `mapstructure:"broker_url"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// EngineConfig configures the subscription driver's tick loop.
type EngineConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
	DrainBudget     int           `mapstructure:"drain_budget"`
	BreakerName     string        `mapstructure:"breaker_name"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AddrSpaceConfig locates the demo address-space seed file and whether it
// should be watched for live edits.
type AddrSpaceConfig struct {
	SeedFile string `mapstructure:"seed_file"`
	Watch    bool   `mapstructure:"watch"`
}

// Load reads configuration from path (YAML), applies defaults, and allows
// environment variables prefixed OPCUA_ENGINE to override any key, e.g.
// OPCUA_ENGINE_ENGINE_TICK_INTERVAL overrides engine.tick_interval.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("OPCUA_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "opcua-subscription-engine")
	v.SetDefault("service.environment", "development")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)

	v.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "opcua-subscription-engine")
	v.SetDefault("mqtt.topic_prefix", "nexus/opcua")
	v.SetDefault("mqtt.qos", byte(1))
	v.SetDefault("mqtt.keep_alive", 30*time.Second)
	v.SetDefault("mqtt.reconnect_delay", 5*time.Second)

	v.SetDefault("engine.tick_interval", 100*time.Millisecond)
	v.SetDefault("engine.publish_interval", time.Second)
	v.SetDefault("engine.drain_budget", 0)
	v.SetDefault("engine.breaker_name", "addrspace")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("addrspace.seed_file", "seed.yaml")
	v.SetDefault("addrspace.watch", true)
}

func validate(cfg *Config) error {
	if cfg.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive")
	}
	if cfg.Engine.PublishInterval <= 0 {
		return fmt.Errorf("engine.publish_interval must be positive")
	}
	if cfg.Engine.DrainBudget < 0 {
		return fmt.Errorf("engine.drain_budget must not be negative")
	}
	return nil
}

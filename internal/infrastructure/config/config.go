package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Lumina Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Registry  RegistryConfig  `yaml:"registry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServiceConfig identifies this bridge instance.
type ServiceConfig struct {
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	DefaultModel string `yaml:"default_model"`
	// ExecuteParallelism bounds concurrent device commands per execute request.
	ExecuteParallelism int `yaml:"execute_parallelism"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RegistryConfig selects where device rows are read from.
type RegistryConfig struct {
	// Driver is "sqlite" (the local database) or "postgres" (hosted devices table).
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// SeedFile optionally lists devices to upsert into the sqlite registry at startup.
	SeedFile string `yaml:"seed_file"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled        bool                `yaml:"enabled"`
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	TopicPrefix    string              `yaml:"topic_prefix"`
	PublishTimeout int                 `yaml:"publish_timeout"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
	Telemetry      TelemetryConfig     `yaml:"telemetry"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TelemetryConfig sizes the inbound telemetry pipeline.
type TelemetryConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read    int `yaml:"read"`
	Write   int `yaml:"write"`
	Idle    int `yaml:"idle"`
	Request int `yaml:"request"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains credential settings for the fulfilment endpoint.
type SecurityConfig struct {
	// StaticToken is a long-lived bearer credential accepted in place of an
	// issued access token. Leave empty to disable.
	StaticToken string `yaml:"static_token"`
	// TestOwnerID is the owner the static token resolves to.
	TestOwnerID string `yaml:"test_owner_id"`
	// AssertionSecret verifies the optional identity assertion passed to the
	// authorisation endpoint (HS256).
	AssertionSecret string      `yaml:"assertion_secret"`
	CodeTTL         int         `yaml:"code_ttl"`
	TokenTTL        int         `yaml:"token_ttl"`
	CredentialStore string      `yaml:"credential_store"`
	OAuth           OAuthConfig `yaml:"oauth"`
}

// OAuthConfig restricts which client may obtain codes.
type OAuthConfig struct {
	ClientID     string   `yaml:"client_id"`
	RedirectURIs []string `yaml:"redirect_uris"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values
//  2. YAML file values
//  3. Environment variables (LUMINA_SECTION_KEY)
//
// An empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:               "lumina",
			Manufacturer:       "Lumina",
			DefaultModel:       "switch-1",
			ExecuteParallelism: 8,
		},
		Database: DatabaseConfig{
			Path:        "./data/lumina.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Registry: RegistryConfig{
			Driver: "sqlite",
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lumina-bridge",
			},
			QoS:            1,
			TopicPrefix:    "lumina/devices",
			PublishTimeout: 5,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Telemetry: TelemetryConfig{
				Workers:   4,
				QueueSize: 256,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:    30,
				Write:   30,
				Idle:    60,
				Request: 10,
			},
			MaxBodyBytes: 1 << 20,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			CodeTTL:         300,
			TokenTTL:        3600,
			CredentialStore: "sqlite",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LUMINA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("LUMINA_REGISTRY_DRIVER"); v != "" {
		cfg.Registry.Driver = v
	}
	if v := os.Getenv("LUMINA_REGISTRY_DSN"); v != "" {
		cfg.Registry.DSN = v
	}

	if v := os.Getenv("LUMINA_MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enabled = b
		}
	}
	if v := os.Getenv("LUMINA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LUMINA_MQTT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = p
		}
	}
	if v := os.Getenv("LUMINA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LUMINA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("LUMINA_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LUMINA_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}

	if v := os.Getenv("LUMINA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("LUMINA_STATIC_TOKEN"); v != "" {
		cfg.Security.StaticToken = v
	}
	if v := os.Getenv("LUMINA_TEST_OWNER_ID"); v != "" {
		cfg.Security.TestOwnerID = v
	}
	if v := os.Getenv("LUMINA_ASSERTION_SECRET"); v != "" {
		cfg.Security.AssertionSecret = v
	}
	if v := os.Getenv("LUMINA_OAUTH_CLIENT_ID"); v != "" {
		cfg.Security.OAuth.ClientID = v
	}

	if v := os.Getenv("LUMINA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ExecuteParallelism < 1 {
		errs = append(errs, "service.execute_parallelism must be at least 1")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	switch c.Registry.Driver {
	case "sqlite":
	case "postgres":
		if c.Registry.DSN == "" {
			errs = append(errs, "registry.dsn is required when registry.driver is postgres")
		}
	default:
		errs = append(errs, "registry.driver must be sqlite or postgres")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") || c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix must be non-empty and contain no wildcards")
		}
		if c.MQTT.Telemetry.Workers < 1 {
			errs = append(errs, "mqtt.telemetry.workers must be at least 1")
		}
		if c.MQTT.Telemetry.QueueSize < 1 {
			errs = append(errs, "mqtt.telemetry.queue_size must be at least 1")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Timeouts.Request < 1 {
		errs = append(errs, "api.timeouts.request must be at least 1 second")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Security.StaticToken != "" && c.Security.TestOwnerID == "" {
		errs = append(errs, "security.test_owner_id is required when security.static_token is set")
	}
	if c.Security.CodeTTL < 1 || c.Security.TokenTTL < 1 {
		errs = append(errs, "security.code_ttl and security.token_ttl must be positive")
	}
	switch c.Security.CredentialStore {
	case "memory", "sqlite":
	default:
		errs = append(errs, "security.credential_store must be memory or sqlite")
	}
	for _, raw := range c.Security.OAuth.RedirectURIs {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("security.oauth.redirect_uris: %q is not an absolute URL", raw))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetRequestTimeout bounds a single fulfilment request.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Request) * time.Second
}

// GetCodeTTL returns the authorisation code lifetime.
func (c *Config) GetCodeTTL() time.Duration {
	return time.Duration(c.Security.CodeTTL) * time.Second
}

// GetTokenTTL returns the access token lifetime.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.TokenTTL) * time.Second
}

// GetPublishTimeout returns how long a command publish waits for the broker.
func (c *Config) GetPublishTimeout() time.Duration {
	return time.Duration(c.MQTT.PublishTimeout) * time.Second
}

// Redacted returns a copy with secrets replaced, safe for diagnostics.
func (c *Config) Redacted() Config {
	out := *c
	const mask = "********"
	if out.Security.StaticToken != "" {
		out.Security.StaticToken = mask
	}
	if out.Security.AssertionSecret != "" {
		out.Security.AssertionSecret = mask
	}
	if out.MQTT.Auth.Password != "" {
		out.MQTT.Auth.Password = mask
	}
	if out.InfluxDB.Token != "" {
		out.InfluxDB.Token = mask
	}
	if out.Registry.DSN != "" {
		out.Registry.DSN = mask
	}
	out.Security.OAuth.RedirectURIs = append([]string(nil), c.Security.OAuth.RedirectURIs...)
	return out
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure, shared by every oracle role.
// Each binary only reads the sections it needs.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Database      DatabaseConfig      `yaml:"database"`
	NATS          NATSConfig          `yaml:"nats"`
	Repository    RepositoryConfig    `yaml:"repository"`
	Ethereum      EthereumConfig      `yaml:"ethereum"`
	Auth          AuthConfig          `yaml:"auth"`
	Notifications NotificationsConfig `yaml:"notifications"`
	CORS          CORSConfig          `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedIPs     []string `yaml:"allowed_ips"`     // settlement-repository access list (IPs or CIDRs), localhost always allowed
	TrustedProxies []string `yaml:"trusted_proxies"` // passed to gin so ClientIP honours X-Forwarded-For
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig logrus configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"` // pgx (default) or postgres (lib/pq)
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"` // seconds
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	Stream          string `yaml:"stream"`
	SubjectPrefix   string `yaml:"subject_prefix"`
	Durable         string `yaml:"durable"` // durable consumer name prefix of this process
}

// RepositoryConfig settlement-repository HTTP client configuration
type RepositoryConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds
	Token   string `yaml:"token"`   // bearer token sent to the repository
}

// EthereumConfig EVM ledger configuration
type EthereumConfig struct {
	Enabled          bool   `yaml:"enabled"`
	RPCURL           string `yaml:"rpc_url"`
	WSURL            string `yaml:"ws_url"` // used for log subscriptions, falls back to rpc_url
	ChainID          int64  `yaml:"chain_id"`
	PrivateKey       string `yaml:"private_key"`
	RegistryAddress  string `yaml:"registry_address"`
	GasLimit         uint64 `yaml:"gas_limit"`         // 0 lets the node estimate
	ResubscribeDelay int    `yaml:"resubscribe_delay"` // seconds
}

// AuthConfig bearer token verification
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // empty disables verification
	Issuer    string `yaml:"issuer"`
}

// NotificationsConfig notification fan-out and pending call configuration
type NotificationsConfig struct {
	HeartbeatInterval       int `yaml:"heartbeat_interval"` // seconds, 0 disables
	ConfirmationConcurrency int `yaml:"confirmation_concurrency"`
	PendingCallTimeout      int `yaml:"pending_call_timeout"` // seconds
	SubscriberBuffer        int `yaml:"subscriber_buffer"`
}

// CORSConfig cross-origin configuration of the HTTP APIs
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"` // empty allows every origin
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"` // seconds
}

var AppConfig *Config

// LoadConfig loads configuration
func LoadConfig(configPath string) error {
	// if configuration file path is empty, use default path
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return err
	}
	fmt.Printf("[%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)

	AppConfig = config
	return nil
}

// Parse decodes a yaml document, applies defaults and environment overrides
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	overrideFromEnv(&config)

	if config.Database.Driver != "pgx" && config.Database.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "pgx"
	}
	if config.NATS.Timeout == 0 {
		config.NATS.Timeout = 10
	}
	if config.NATS.ReconnectWait == 0 {
		config.NATS.ReconnectWait = 2
	}
	if config.NATS.MaxReconnects == 0 {
		config.NATS.MaxReconnects = -1
	}
	if config.NATS.Stream == "" {
		config.NATS.Stream = "CAST_NOTIFICATIONS"
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "cast.notifications"
	}
	if config.Repository.Timeout == 0 {
		config.Repository.Timeout = 10
	}
	if config.Ethereum.ResubscribeDelay == 0 {
		config.Ethereum.ResubscribeDelay = 5
	}
	if config.Notifications.ConfirmationConcurrency == 0 {
		config.Notifications.ConfirmationConcurrency = 4
	}
	if config.Notifications.PendingCallTimeout == 0 {
		config.Notifications.PendingCallTimeout = 60
	}
	if config.CORS.MaxAge == 0 {
		config.CORS.MaxAge = 3600
	}
	if config.Notifications.SubscriberBuffer == 0 {
		config.Notifications.SubscriberBuffer = 256
	}
}

// overrideFromEnv Override configuration from environment variables
func overrideFromEnv(config *Config) {
	// server configuration
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if allowed := os.Getenv("ALLOWED_IPS"); allowed != "" {
		config.Server.AllowedIPs = splitList(allowed)
	}
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		config.Server.TrustedProxies = splitList(proxies)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Log.Format = format
	}

	// Database
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}

	// NATS
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}
	if js := os.Getenv("NATS_ENABLE_JETSTREAM"); js != "" {
		config.NATS.EnableJetStream = js == "true"
	}

	// Settlement repository
	if baseURL := os.Getenv("REPOSITORY_BASE_URL"); baseURL != "" {
		config.Repository.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if token := os.Getenv("REPOSITORY_TOKEN"); token != "" {
		config.Repository.Token = token
	}

	// Ethereum
	if enabled := os.Getenv("ETHEREUM_ENABLED"); enabled != "" {
		config.Ethereum.Enabled = enabled == "true"
	}
	if rpcURL := os.Getenv("ETHEREUM_RPC_URL"); rpcURL != "" {
		config.Ethereum.RPCURL = rpcURL
	}
	if wsURL := os.Getenv("ETHEREUM_WS_URL"); wsURL != "" {
		config.Ethereum.WSURL = wsURL
	}
	if chainID := os.Getenv("ETHEREUM_CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseInt(chainID, 10, 64); err == nil {
			config.Ethereum.ChainID = id
		}
	}
	if key := os.Getenv("ETHEREUM_PRIVATE_KEY"); key != "" {
		config.Ethereum.PrivateKey = key
	}
	if registry := os.Getenv("ETHEREUM_REGISTRY_ADDRESS"); registry != "" {
		config.Ethereum.RegistryAddress = registry
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = splitList(origins)
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

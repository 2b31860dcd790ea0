// Package config provides Viper-based configuration loading for the battletanks server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// TransportConfig holds the websocket listener settings.
type TransportConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// Path is the route clients upgrade to a websocket on.
	Path string `mapstructure:"path"`
	// WriteTimeout bounds every websocket frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
	// OutboxSize is the per-connection notification buffer length.
	OutboxSize int `mapstructure:"outbox_size"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TransportConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// BrokerConfig holds MQTT broker settings for the event publisher.
type BrokerConfig struct {
	// Enabled selects the MQTT publisher; when false events are not published.
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// ClientID is the MQTT client identifier presented to the broker.
	ClientID string `mapstructure:"client_id"`
	// TopicPrefix is the first segment of every published topic.
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// PublishTimeout bounds how long a QoS 1/2 acknowledgement is awaited in the background.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// URL returns the tcp:// broker address.
func (b BrokerConfig) URL() string {
	return fmt.Sprintf("tcp://%s:%d", b.Host, b.Port)
}

// CacheConfig holds Redis settings for the per-room event history.
type CacheConfig struct {
	// Enabled selects the Redis history cache; when false history is not recorded.
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// KeyPrefix is the first segment of every history key.
	KeyPrefix string `mapstructure:"key_prefix"`
	// MaxHistory is the maximum number of events retained per room.
	MaxHistory int `mapstructure:"max_history"`
	// TTL is the expiry refreshed on a room's history at every append.
	TTL time.Duration `mapstructure:"ttl"`
	// ReplayCount is the number of recent events sent to a player after joining.
	ReplayCount int           `mapstructure:"replay_count"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// GameConfig holds gameplay coordination tunables.
type GameConfig struct {
	// SpawnProbability is the chance a destroyed tile spawns a power-up.
	SpawnProbability float64 `mapstructure:"spawn_probability"`
	// TileSize is the tile-to-pixel scale applied to destroyed tile coordinates.
	TileSize float64 `mapstructure:"tile_size"`
	// ReconcileTimeout bounds persisted occupancy updates after a player leaves.
	ReconcileTimeout time.Duration `mapstructure:"reconcile_timeout"`
	// RandomSeed seeds spawn decisions; zero selects a crypto/rand source.
	RandomSeed uint64 `mapstructure:"random_seed"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Transport TransportConfig `mapstructure:"transport"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Game      GameConfig      `mapstructure:"game"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTransport(c.Transport); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBroker(c.Broker); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCache(c.Cache); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTransport(t TransportConfig) error {
	var errs []string
	if t.Port < 1 || t.Port > 65535 {
		errs = append(errs, fmt.Sprintf("transport.port must be 1-65535, got %d", t.Port))
	}
	if !strings.HasPrefix(t.Path, "/") {
		errs = append(errs, fmt.Sprintf("transport.path must start with '/', got %q", t.Path))
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "transport.write_timeout must not be negative")
	}
	if t.ReadLimit < 0 {
		errs = append(errs, "transport.read_limit must not be negative")
	}
	if t.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("transport.outbox_size must be >= 1, got %d", t.OutboxSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBroker(b BrokerConfig) error {
	if !b.Enabled {
		return nil
	}
	var errs []string
	if b.Host == "" {
		errs = append(errs, "broker.host must not be empty")
	}
	if b.Port < 1 || b.Port > 65535 {
		errs = append(errs, fmt.Sprintf("broker.port must be 1-65535, got %d", b.Port))
	}
	if b.ClientID == "" {
		errs = append(errs, "broker.client_id must not be empty")
	}
	if b.TopicPrefix == "" || strings.ContainsAny(b.TopicPrefix, "+#") {
		errs = append(errs, fmt.Sprintf("broker.topic_prefix must be non-empty and free of wildcards, got %q", b.TopicPrefix))
	}
	if b.PublishTimeout <= 0 {
		errs = append(errs, "broker.publish_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateCache(c CacheConfig) error {
	if !c.Enabled {
		return nil
	}
	var errs []string
	if c.Addr == "" {
		errs = append(errs, "cache.addr must not be empty")
	}
	if c.KeyPrefix == "" {
		errs = append(errs, "cache.key_prefix must not be empty")
	}
	if c.MaxHistory < 1 {
		errs = append(errs, fmt.Sprintf("cache.max_history must be >= 1, got %d", c.MaxHistory))
	}
	if c.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.ReplayCount < 0 {
		errs = append(errs, fmt.Sprintf("cache.replay_count must be >= 0, got %d", c.ReplayCount))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.SpawnProbability < 0 || g.SpawnProbability > 1 {
		errs = append(errs, fmt.Sprintf("game.spawn_probability must be within [0, 1], got %v", g.SpawnProbability))
	}
	if g.TileSize <= 0 {
		errs = append(errs, fmt.Sprintf("game.tile_size must be positive, got %v", g.TileSize))
	}
	if g.ReconcileTimeout <= 0 {
		errs = append(errs, "game.reconcile_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with BATTLETANKS_ prefix
	v.SetEnvPrefix("BATTLETANKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance carrying only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "battletanks")
	v.SetDefault("database.password", "battletanks")
	v.SetDefault("database.name", "battletanks")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("transport.host", "0.0.0.0")
	v.SetDefault("transport.port", 5000)
	v.SetDefault("transport.path", "/gamehub")
	v.SetDefault("transport.write_timeout", "10s")
	v.SetDefault("transport.read_limit", 64*1024)
	v.SetDefault("transport.outbox_size", 64)

	v.SetDefault("broker.enabled", true)
	v.SetDefault("broker.host", "localhost")
	v.SetDefault("broker.port", 1883)
	v.SetDefault("broker.client_id", "BattleTanks-Backend")
	v.SetDefault("broker.topic_prefix", "battletanks")
	v.SetDefault("broker.keep_alive", "30s")
	v.SetDefault("broker.connect_timeout", "5s")
	v.SetDefault("broker.publish_timeout", "5s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.key_prefix", "battletanks")
	v.SetDefault("cache.max_history", 50)
	v.SetDefault("cache.ttl", "2h")
	v.SetDefault("cache.replay_count", 50)
	v.SetDefault("cache.dial_timeout", "2s")

	v.SetDefault("game.spawn_probability", 0.30)
	v.SetDefault("game.tile_size", 40)
	v.SetDefault("game.reconcile_timeout", "5s")
	v.SetDefault("game.random_seed", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

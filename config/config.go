package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"taskboard/domain"
)

// Gateway backends.
const (
	BackendHTTP  = "http"
	BackendTable = "table"
)

// Config holds every setting of the board service.
type Config struct {
	ListenAddr  string        `yaml:"listen_addr"`
	Debug       bool          `yaml:"debug"`
	MoveTimeout time.Duration `yaml:"move_timeout"`

	Gateway GatewayConfig `yaml:"gateway"`
	Redis   RedisConfig   `yaml:"redis"`
	Events  EventsConfig  `yaml:"events"`
}

// GatewayConfig selects and configures the remote task backend.
type GatewayConfig struct {
	Backend string `yaml:"backend"`
	// TaskAPIURL is the base URL of the REST task API.
	TaskAPIURL string `yaml:"task_api_url"`
	// StatusLabels overrides the wire labels, "todo=Pendiente,...".
	StatusLabels string `yaml:"status_labels"`

	StorageConnectionString string `yaml:"storage_connection_string"`
	TasksTable              string `yaml:"tasks_table"`
	Partition               string `yaml:"partition"`
}

// RedisConfig configures the optional Redis integrations. An empty
// connection string disables caching, the event bridge and idempotency.
type RedisConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	TasksCacheTTL    time.Duration `yaml:"tasks_cache_ttl"`
	IdempotencyTTL   time.Duration `yaml:"idempotency_ttl"`
}

// EventsConfig tunes the Redis event bridge.
type EventsConfig struct {
	Channel        string        `yaml:"channel"`
	Workers        int           `yaml:"publish_workers"`
	Buffer         int           `yaml:"publish_buffer"`
	HandoffTimeout time.Duration `yaml:"publish_handoff"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		ListenAddr:  ":8080",
		MoveTimeout: 10 * time.Second,
		Gateway: GatewayConfig{
			Backend:    BackendHTTP,
			TaskAPIURL: "http://localhost:3000/api",
			TasksTable: "Tasks",
			Partition:  "board",
		},
		Redis: RedisConfig{
			TasksCacheTTL:  30 * time.Second,
			IdempotencyTTL: 24 * time.Hour,
		},
		Events: EventsConfig{
			Channel:        "board-events",
			Workers:        4,
			Buffer:         256,
			HandoffTimeout: 50 * time.Millisecond,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// BOARD_CONFIG (optional) and environment overrides, in that order.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("BOARD_CONFIG"); path != "" {
		if err := loadYAML(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config yaml: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validate: %w", err)
	}
	return cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) error {
	setString(&cfg.Gateway.TaskAPIURL, "TASK_API_URL")
	setString(&cfg.Gateway.Backend, "GATEWAY_BACKEND")
	setString(&cfg.Gateway.StatusLabels, "STATUS_LABELS")
	setString(&cfg.Gateway.StorageConnectionString, "STORAGE_CONNECTION_STRING")
	setString(&cfg.Gateway.TasksTable, "TASKS_TABLE")
	setString(&cfg.Redis.ConnectionString, "REDIS_CONNECTION_STRING")
	setString(&cfg.Events.Channel, "EVENTS_CHANNEL")
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	// Azure Functions custom handlers are told which port to bind.
	if v, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && v != "" {
		cfg.ListenAddr = ":" + v
	}

	return errors.Join(
		setBool(&cfg.Debug, "DEBUG"),
		setDuration(&cfg.MoveTimeout, "MOVE_TIMEOUT"),
		setDuration(&cfg.Redis.TasksCacheTTL, "TASKS_CACHE_TTL"),
		setDuration(&cfg.Redis.IdempotencyTTL, "IDEMPOTENCY_TTL"),
		setDuration(&cfg.Events.HandoffTimeout, "EVENT_PUBLISH_HANDOFF"),
		setInt(&cfg.Events.Workers, "EVENT_PUBLISH_WORKERS"),
		setInt(&cfg.Events.Buffer, "EVENT_PUBLISH_BUFFER"),
	)
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.MoveTimeout <= 0 {
		errs = append(errs, errors.New("move_timeout must be greater than zero"))
	}
	switch c.Gateway.Backend {
	case BackendHTTP:
		if c.Gateway.TaskAPIURL == "" {
			errs = append(errs, errors.New("task_api_url is required for the http backend"))
		}
	case BackendTable:
		if c.Gateway.StorageConnectionString == "" || c.Gateway.TasksTable == "" {
			errs = append(errs, errors.New("storage connection string and tasks table are required for the table backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown gateway backend %q", c.Gateway.Backend))
	}
	if _, err := domain.ParseStatusLabels(c.Gateway.StatusLabels); err != nil {
		errs = append(errs, err)
	}
	if c.Redis.TasksCacheTTL < 0 || c.Redis.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("redis ttls must not be negative and idempotency ttl must be set"))
	}
	if c.Events.Workers <= 0 || c.Events.Buffer <= 0 {
		errs = append(errs, errors.New("event publish workers and buffer must be greater than zero"))
	}
	return errors.Join(errs...)
}

// RedisOptions parses the Redis connection string. Both redis:// URLs and
// the "host:port,password=...,ssl=true" form are accepted.
func (c Config) RedisOptions() (*redis.Options, error) {
	return ParseRedis(c.Redis.ConnectionString)
}

// ParseRedis parses a Redis connection string.
func ParseRedis(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

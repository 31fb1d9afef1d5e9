package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	Redis struct {
		URL      string
		Addr     string
		Password string
		DB       int
		Timeout  time.Duration
	}

	Queue struct {
		KeyPrefix          string
		MinTTL             time.Duration
		DefaultServiceType string
	}

	Session struct {
		TTL           time.Duration
		ActivityScore bool
	}

	// Kafka опциональна: без брокеров события дня и тикетов не отправляются.
	Kafka struct {
		Brokers     string
		TicketTopic string
	}

	Otel struct {
		Endpoint string
		Insecure bool
	}
}

// source ищет ключ сначала в окружении, затем в YAML-файле из CONFIG_FILE.
type source struct {
	file map[string]string
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	src := source{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{
		AppHost:  src.get("APP_HOST", "0.0.0.0"),
		HTTPPort: src.first("APP_PORT", "HTTP_PORT", "8097"),
		AppEnv:   src.get("APP_ENV", "development"),
		LogLevel: src.get("LOG_LEVEL", "info"),
	}

	var err error
	cfg.Redis.URL = src.get("REDIS_URL", "")
	cfg.Redis.Addr = src.get("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = src.get("REDIS_PASSWORD", "")
	if cfg.Redis.DB, err = src.getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.Timeout, err = src.getDuration("REDIS_TIMEOUT_MS", time.Millisecond, 2*time.Second); err != nil {
		return nil, err
	}

	cfg.Queue.KeyPrefix = src.get("QUEUE_KEY_PREFIX", "tickets")
	if cfg.Queue.MinTTL, err = src.getDuration("QUEUE_MIN_TTL_SECONDS", time.Second, time.Hour); err != nil {
		return nil, err
	}
	cfg.Queue.DefaultServiceType = src.get("QUEUE_DEFAULT_SERVICE_TYPE", "")

	if cfg.Session.TTL, err = src.getDuration("SESSION_TTL_SECONDS", time.Second, 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Session.ActivityScore, err = src.getBool("ACTIVITY_SCORE_ENABLED", true); err != nil {
		return nil, err
	}

	cfg.Kafka.Brokers = src.get("KAFKA_BROKERS", "")
	cfg.Kafka.TicketTopic = src.get("KAFKA_TOPIC_TICKET", "ticket-queue.events")

	cfg.Otel.Endpoint = src.get("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if cfg.Otel.Insecure, err = src.getBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Redis.URL == "" && c.Redis.Addr == "" {
		return errors.New("config: REDIS_URL or REDIS_ADDR is required")
	}
	if c.Queue.MinTTL < time.Second {
		return errors.New("config: QUEUE_MIN_TTL_SECONDS must be at least 1")
	}
	if c.Session.TTL < time.Second {
		return errors.New("config: SESSION_TTL_SECONDS must be at least 1")
	}
	if c.AppEnv == "production" && c.Redis.URL == "" && c.Redis.Password == "" {
		return errors.New("config: in production REDIS_PASSWORD is required")
	}
	return nil
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	out := map[string]string{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return out, nil
}

func (s source) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	if v, ok := s.file[key]; ok && v != "" {
		return v, true
	}
	return "", false
}

func (s source) get(key, def string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return def
}

func (s source) first(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v, ok := s.lookup(k); ok {
			return v
		}
	}
	return def
}

func (s source) getInt(key string, def int) (int, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// getDuration читает целое число единиц unit.
func (s source) getDuration(key string, unit, def time.Duration) (time.Duration, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return time.Duration(n) * unit, nil
}

func (s source) getBool(key string, def bool) (bool, error) {
	v, ok := s.lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

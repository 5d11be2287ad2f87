package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	alerts "lab-monitor-bridge/internal/alerts/domain"
)

// Registry backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Push providers. ProviderAuto picks FCM, then webhook, then log, based on what is configured.
const (
	ProviderAuto    = "auto"
	ProviderFCM     = "fcm"
	ProviderWebhook = "webhook"
	ProviderLog     = "log"
)

// Config is the bridge configuration.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Classifier ClassifierConfig `yaml:"classifier"`
	HTTP       HTTPConfig       `yaml:"http"`
	Push       PushConfig       `yaml:"push"`
	Registry   RegistryConfig   `yaml:"registry"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
}

// MQTTConfig defines the broker link and topics.
type MQTTConfig struct {
	Broker            string        `yaml:"broker"`
	Port              int           `yaml:"port"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	ClientIDPrefix    string        `yaml:"client_id_prefix"`
	QoS               int           `yaml:"qos"`
	RawTopic          string        `yaml:"raw_topic"`
	TopicPrefix       string        `yaml:"topic_prefix"`
	ProcessedTopic    string        `yaml:"processed_topic"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
}

// ClassifierConfig defines the remote classifier. An empty URL runs fallback-only.
type ClassifierConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPConfig defines the viewer and API listener.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PushConfig defines notification delivery.
type PushConfig struct {
	Provider           string           `yaml:"provider"`
	FCMCredentialsFile string           `yaml:"fcm_credentials_file"`
	WebhookURL         string           `yaml:"webhook_url"`
	SendTimeout        time.Duration    `yaml:"send_timeout"`
	QueueSize          int              `yaml:"queue_size"`
	TitleTemplate      string           `yaml:"title_template"`
	BodyTemplate       string           `yaml:"body_template"`
	Tiers              alerts.TierTable `yaml:"tiers"`
}

// RegistryConfig selects the endpoint store.
type RegistryConfig struct {
	Backend       string `yaml:"backend"`
	File          string `yaml:"file"`
	DatabaseURL   string `yaml:"database_url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisKey      string `yaml:"redis_key"`
}

// PipelineConfig sizes the in-process queues.
type PipelineConfig struct {
	QueueSize     int `yaml:"queue_size"`
	SessionBuffer int `yaml:"session_buffer"`
}

// AuthConfig enables bearer auth on the registration API when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// LogConfig defines logger output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MQTT: MQTTConfig{
			Broker:            "broker.hivemq.com",
			Port:              1883,
			ClientIDPrefix:    "lab_monitor_bridge",
			QoS:               1,
			RawTopic:          "net4think/lab_monitor/data",
			TopicPrefix:       "net4think/lab_monitor",
			ProcessedTopic:    "net4think/lab_monitor/processed",
			ReconnectInterval: 5 * time.Second,
			PublishTimeout:    10 * time.Second,
		},
		Classifier: ClassifierConfig{
			URL:     "http://127.0.0.1:5000",
			Timeout: 2000 * time.Millisecond,
		},
		HTTP: HTTPConfig{Addr: ":3000"},
		Push: PushConfig{
			Provider:    ProviderAuto,
			SendTimeout: 15 * time.Second,
			QueueSize:   64,
			Tiers:       alerts.DefaultTierTable(),
		},
		Registry: RegistryConfig{
			Backend:  BackendFile,
			File:     "fcm-tokens.json",
			RedisKey: "labmonitor:fcm-tokens",
		},
		Pipeline: PipelineConfig{QueueSize: 256, SessionBuffer: 16},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads defaults, then the YAML file at path (when non-empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.MQTT.Broker = getenvDefault("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.Port = getenvIntDefault("MQTT_PORT", cfg.MQTT.Port)
	cfg.MQTT.Username = getenvDefault("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getenvDefault("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.Classifier.URL = getenvDefault("ML_SERVICE_URL", cfg.Classifier.URL)
	cfg.Classifier.Timeout = getenvDuration("ML_SERVICE_TIMEOUT", cfg.Classifier.Timeout)
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	if origins := splitCSV(os.Getenv("HTTP_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.HTTP.AllowedOrigins = origins
	}
	cfg.Push.Provider = getenvDefault("PUSH_PROVIDER", cfg.Push.Provider)
	cfg.Push.FCMCredentialsFile = getenvDefault("FCM_CREDENTIALS_FILE", cfg.Push.FCMCredentialsFile)
	cfg.Push.WebhookURL = getenvDefault("PUSH_WEBHOOK_URL", cfg.Push.WebhookURL)
	cfg.Registry.Backend = getenvDefault("REGISTRY_BACKEND", cfg.Registry.Backend)
	cfg.Registry.File = getenvDefault("FCM_TOKENS_FILE", cfg.Registry.File)
	cfg.Registry.DatabaseURL = getenvDefault("DATABASE_URL", cfg.Registry.DatabaseURL)
	cfg.Registry.RedisAddr = getenvDefault("REDIS_ADDR", cfg.Registry.RedisAddr)
	cfg.Registry.RedisPassword = getenvDefault("REDIS_PASSWORD", cfg.Registry.RedisPassword)
	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
}

// Validate rejects configurations the bridge cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.MQTT.Broker) == "" {
		errs = append(errs, errors.New("mqtt.broker required"))
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d invalid", c.MQTT.QoS))
	}
	if c.MQTT.RawTopic == "" || c.MQTT.TopicPrefix == "" || c.MQTT.ProcessedTopic == "" {
		errs = append(errs, errors.New("mqtt topics required"))
	}
	if c.MQTT.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("mqtt.reconnect_interval must be positive"))
	}
	if c.Classifier.Timeout <= 0 {
		errs = append(errs, errors.New("classifier.timeout must be positive"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr required"))
	}
	switch c.Push.Provider {
	case ProviderAuto, ProviderLog:
	case ProviderFCM:
		if c.Push.FCMCredentialsFile == "" {
			errs = append(errs, errors.New("push.fcm_credentials_file required for fcm provider"))
		}
	case ProviderWebhook:
		if c.Push.WebhookURL == "" {
			errs = append(errs, errors.New("push.webhook_url required for webhook provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("push.provider %q unknown", c.Push.Provider))
	}
	if err := c.Push.Tiers.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Registry.Backend {
	case BackendFile:
		if c.Registry.File == "" {
			errs = append(errs, errors.New("registry.file required"))
		}
	case BackendPostgres:
		if c.Registry.DatabaseURL == "" {
			errs = append(errs, errors.New("registry.database_url required for postgres backend"))
		}
	case BackendRedis:
		if c.Registry.RedisAddr == "" {
			errs = append(errs, errors.New("registry.redis_addr required for redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("registry.backend %q unknown", c.Registry.Backend))
	}
	if c.Pipeline.QueueSize <= 0 || c.Push.QueueSize <= 0 {
		errs = append(errs, errors.New("queue sizes must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q unknown", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

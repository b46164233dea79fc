package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type AppConfig struct {
	ServiceName string     `mapstructure:"service_name"`
	Env         string     `mapstructure:"env"`
	LogLevel    string     `mapstructure:"log_level"`
	MetricsPath string     `mapstructure:"metrics_path"`
	HTTP        HTTPConfig `mapstructure:"http"`
}

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Config struct {
	App           AppConfig
	DB            DBConfig
	SessionRedis  RedisConfig
	SessionSecret string
	SessionTTL    time.Duration
	EncryptionKey []byte
	Argon2        Argon2Params
	Kafka         KafkaConfig

	// DebugCodes enables logging of generated OTP and 3DS codes. Demo
	// convenience only; never enable outside dev.
	DebugCodes bool
}

// Load reads the app-level config (file + PAYSECURE_* env) and the secret
// material from the environment. Missing DB coordinates, session secret or
// encryption key abort startup rather than failing on first use.
func Load() (*Config, error) {
	appCfg, err := loadApp(os.Getenv("PAYSECURE_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     os.Getenv("POSTGRES_DB"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		SessionRedis: RedisConfig{
			Addr:     envString("PAYSECURE_SESSION_REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("PAYSECURE_SESSION_REDIS_PASSWORD"),
			DB:       envInt("PAYSECURE_SESSION_REDIS_DB", 0),
		},
		SessionSecret: os.Getenv("PAYSECURE_SESSION_SECRET"),
		SessionTTL:    envDuration("PAYSECURE_SESSION_TTL", 30*time.Minute),
		Argon2: Argon2Params{
			Memory:      uint32(envInt("PAYSECURE_ARGON2_MEMORY", 64*1024)),
			Iterations:  uint32(envInt("PAYSECURE_ARGON2_ITERATIONS", 3)),
			Parallelism: uint8(envInt("PAYSECURE_ARGON2_PARALLELISM", 2)),
			SaltLength:  uint32(envInt("PAYSECURE_ARGON2_SALT_LENGTH", 16)),
			KeyLength:   uint32(envInt("PAYSECURE_ARGON2_KEY_LENGTH", 32)),
		},
		Kafka: KafkaConfig{
			Brokers: envList("PAYSECURE_KAFKA_BROKERS"),
			Topic:   envString("PAYSECURE_KAFKA_TOPIC", "payments.events"),
		},
		DebugCodes: os.Getenv("PAYSECURE_DEBUG_CODES") == "1",
	}

	if cfg.DB.Host == "" {
		return nil, fmt.Errorf("POSTGRES_HOST must be set")
	}
	if cfg.DB.Name == "" {
		return nil, fmt.Errorf("POSTGRES_DB must be set")
	}
	if cfg.DB.User == "" {
		return nil, fmt.Errorf("POSTGRES_USER must be set")
	}
	if cfg.DB.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD must be set")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("PAYSECURE_SESSION_SECRET must be set")
	}

	key, err := decodeKey(os.Getenv("PAYSECURE_ENCRYPTION_KEY"))
	if err != nil {
		return nil, err
	}
	cfg.EncryptionKey = key

	return cfg, nil
}

func loadApp(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("PAYSECURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = "config.yaml"
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "pay-secure")
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_path", "/metrics")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "60s")
}

func decodeKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("PAYSECURE_ENCRYPTION_KEY must be set")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("PAYSECURE_ENCRYPTION_KEY: decode base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("PAYSECURE_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

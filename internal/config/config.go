package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type StorageConfig struct {
	// Backend is one of "s3", "minio" or "memory".
	Backend        string `toml:"backend"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	PresignSeconds int    `toml:"presign_seconds"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (s StorageConfig) PresignExpiry() time.Duration {
	return time.Duration(s.PresignSeconds) * time.Second
}

func (s StorageConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type MailConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	From           string `toml:"from"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type Config struct {
	ServiceName string `toml:"service_name"`
	ListenAddr  string `toml:"listen_addr"`
	LogLevel    string `toml:"log_level"`

	DatabaseURL string `toml:"database_url"`

	TokenSecret        string `toml:"token_secret"`
	TokenTTLHours      int    `toml:"token_ttl_hours"`
	TokenLeewaySeconds int    `toml:"token_leeway_seconds"`

	RSAKeyBits int `toml:"rsa_key_bits"`

	Storage StorageConfig `toml:"storage"`
	Mail    MailConfig    `toml:"mail"`

	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c *Config) TokenLeeway() time.Duration {
	return time.Duration(c.TokenLeewaySeconds) * time.Second
}

func Defaults() *Config {
	return &Config{
		ServiceName:        "data_delivery",
		ListenAddr:         ":8080",
		LogLevel:           "info",
		TokenTTLHours:      168,
		TokenLeewaySeconds: 60,
		RSAKeyBits:         4096,
		Storage: StorageConfig{
			Backend:        "s3",
			Region:         "us-east-1",
			PresignSeconds: 3600,
			TimeoutSeconds: 5,
		},
		Mail: MailConfig{
			Port:           587,
			From:           "data-delivery@localhost",
			TimeoutSeconds: 10,
		},
		KafkaTopic: "dds-actions",
	}
}

// Load reads .env, then the TOML file named by DDS_CONFIG_FILE, then
// individual environment variables. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := Defaults()
	if path := os.Getenv("DDS_CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServiceName = EnvDefault("SERVICE_NAME", cfg.ServiceName)
	cfg.ListenAddr = EnvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = EnvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = EnvDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.TokenSecret = EnvDefault("TOKEN_SECRET", cfg.TokenSecret)
	cfg.TokenTTLHours = EnvIntDefault("TOKEN_TTL_HOURS", cfg.TokenTTLHours)
	cfg.TokenLeewaySeconds = EnvIntDefault("TOKEN_LEEWAY_SECONDS", cfg.TokenLeewaySeconds)
	cfg.RSAKeyBits = EnvIntDefault("RSA_KEY_BITS", cfg.RSAKeyBits)

	cfg.Storage.Backend = EnvDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Endpoint = EnvDefault("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Region = EnvDefault("STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.AccessKey = EnvDefault("STORAGE_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = EnvDefault("STORAGE_SECRET_KEY", cfg.Storage.SecretKey)
	cfg.Storage.UseSSL = EnvBoolDefault("STORAGE_USE_SSL", cfg.Storage.UseSSL)
	cfg.Storage.PresignSeconds = EnvIntDefault("STORAGE_PRESIGN_SECONDS", cfg.Storage.PresignSeconds)
	cfg.Storage.TimeoutSeconds = EnvIntDefault("STORAGE_TIMEOUT_SECONDS", cfg.Storage.TimeoutSeconds)

	cfg.Mail.Host = EnvDefault("MAIL_HOST", cfg.Mail.Host)
	cfg.Mail.Port = EnvIntDefault("MAIL_PORT", cfg.Mail.Port)
	cfg.Mail.Username = EnvDefault("MAIL_USERNAME", cfg.Mail.Username)
	cfg.Mail.Password = EnvDefault("MAIL_PASSWORD", cfg.Mail.Password)
	cfg.Mail.From = EnvDefault("MAIL_FROM", cfg.Mail.From)

	if brokers := CSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.KafkaBrokers = brokers
	}
	cfg.KafkaTopic = EnvDefault("KAFKA_TOPIC", cfg.KafkaTopic)
}

func (c *Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "missing required DATABASE_URL")
	}
	if len(c.TokenSecret) < 16 {
		problems = append(problems, "TOKEN_SECRET must be at least 16 characters")
	}
	if c.TokenTTLHours <= 0 {
		problems = append(problems, "TOKEN_TTL_HOURS must be positive")
	}
	if c.RSAKeyBits < 2048 {
		problems = append(problems, "RSA_KEY_BITS must be at least 2048")
	}
	switch c.Storage.Backend {
	case "s3", "minio":
		if c.Storage.Endpoint == "" {
			problems = append(problems, "STORAGE_ENDPOINT is required for the "+c.Storage.Backend+" backend")
		}
	case "memory":
	default:
		problems = append(problems, "unknown STORAGE_BACKEND "+c.Storage.Backend)
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

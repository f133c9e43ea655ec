package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBSchema    string   `mapstructure:"DB_SCHEMA"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthHeader     string `mapstructure:"AUTH_HEADER"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AllowAnonymous bool   `mapstructure:"ALLOW_ANONYMOUS"`

	FilesDir       string `mapstructure:"FILES_DIR"`
	PacketDir      string `mapstructure:"PACKET_DIR"`
	PacketBackend  string `mapstructure:"PACKET_BACKEND"`
	PacketS3Bucket string `mapstructure:"PACKET_S3_BUCKET"`
	PacketS3Prefix string `mapstructure:"PACKET_S3_PREFIX"`

	PatientRegistryDSN   string `mapstructure:"PATIENT_REGISTRY_DSN"`
	PatientStoreWritable bool   `mapstructure:"PATIENT_STORE_WRITABLE"`

	NotifyBackend string   `mapstructure:"NOTIFY_BACKEND"`
	KafkaBrokers  []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic    string   `mapstructure:"KAFKA_TOPIC"`
	SQSQueueURL   string   `mapstructure:"SQS_QUEUE_URL"`

	MetricsEnabled bool          `mapstructure:"METRICS_ENABLED"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"AUTH_HEADER", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY", "ALLOW_ANONYMOUS",
	"FILES_DIR", "PACKET_DIR", "PACKET_BACKEND", "PACKET_S3_BUCKET", "PACKET_S3_PREFIX",
	"PATIENT_REGISTRY_DSN", "PATIENT_STORE_WRITABLE",
	"NOTIFY_BACKEND", "KAFKA_BROKERS", "KAFKA_TOPIC", "SQS_QUEUE_URL",
	"METRICS_ENABLED", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_HEADER", "X-Remote-User")
	v.SetDefault("ALLOW_ANONYMOUS", false)
	v.SetDefault("FILES_DIR", "./files")
	v.SetDefault("PACKET_DIR", "./chartUploads")
	v.SetDefault("PACKET_BACKEND", "dir")
	v.SetDefault("PATIENT_STORE_WRITABLE", false)
	v.SetDefault("NOTIFY_BACKEND", "log")
	v.SetDefault("KAFKA_TOPIC", "mireview.workflow")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env is fine; the environment alone is enough.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList handles comma-separated env values that viper hands back as a
// single element.
func splitList(parsed []string, raw string) []string {
	if len(parsed) > 1 {
		return parsed
	}
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// BearerEnabled reports whether bearer tokens are verified when no trusted
// header is present.
func (c *Config) BearerEnabled() bool {
	return c.AuthIssuer != "" || c.AuthJWKSURL != "" || c.AuthSigningKey != ""
}

// Validate checks cross-field rules that Load cannot express as defaults.
func (c *Config) Validate() error {
	if c.AllowAnonymous && c.IsProduction() {
		return fmt.Errorf("ALLOW_ANONYMOUS cannot be enabled when ENV=production")
	}
	if c.AuthAudience != "" && !c.BearerEnabled() {
		return fmt.Errorf("AUTH_AUDIENCE is set but no AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY is configured")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	if c.AuthSigningKey != "" && c.IsProduction() {
		return fmt.Errorf("AUTH_SIGNING_KEY is for development only; use AUTH_ISSUER or AUTH_JWKS_URL in production")
	}

	switch c.PacketBackend {
	case "dir":
		if c.PacketDir == "" {
			return fmt.Errorf("PACKET_DIR is required when PACKET_BACKEND is \"dir\"")
		}
	case "s3":
		if c.PacketS3Bucket == "" {
			return fmt.Errorf("PACKET_S3_BUCKET is required when PACKET_BACKEND is \"s3\"")
		}
	default:
		return fmt.Errorf("PACKET_BACKEND must be \"dir\" or \"s3\", got %q", c.PacketBackend)
	}

	switch c.NotifyBackend {
	case "log", "":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_BACKEND is \"kafka\"")
		}
	case "sqs":
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when NOTIFY_BACKEND is \"sqs\"")
		}
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be \"log\", \"kafka\", or \"sqs\", got %q", c.NotifyBackend)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	return nil
}

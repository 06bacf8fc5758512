package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// RedisConfig is optional; an empty Host disables the permission cache.
type RedisConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PermissionTTL time.Duration `mapstructure:"permission_ttl"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig is optional; an empty Endpoint disables RFQ document archiving.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WhatsAppConfig struct {
	GatewayURL string        `mapstructure:"gateway_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// WorkflowConfig seeds the lifecycle policy; purchase_settings rows override it at runtime.
type WorkflowConfig struct {
	EvaluationThreshold int           `mapstructure:"evaluation_threshold"`
	TenderThreshold     int           `mapstructure:"tender_threshold"`
	DirectPurchaseLimit int64         `mapstructure:"direct_purchase_limit"`
	DefaultCurrency     string        `mapstructure:"default_currency"`
	MaxRetries          int           `mapstructure:"max_retries"`
	DeliveryTimeout     time.Duration `mapstructure:"delivery_timeout"`
	DeliveryConcurrency int           `mapstructure:"delivery_concurrency"`
	Organization        string        `mapstructure:"organization"`
}

// Policy builds the default lifecycle policy. A zero TenderThreshold keeps tenders on
// the general threshold.
func (w WorkflowConfig) Policy() workflow.Policy {
	p := workflow.DefaultPolicy()
	p.EvaluationThreshold = w.EvaluationThreshold
	p.DirectPurchaseLimit = decimal.NewFromInt(w.DirectPurchaseLimit)
	if w.TenderThreshold > 0 {
		p.ThresholdByType = map[model.PurchaseType]int{model.PurchaseTender: w.TenderThreshold}
	}
	return p
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configs/.env, an optional configs/config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Mode == "release" && (c.JWT.Secret == "" || c.JWT.Secret == devJWTSecret) {
		return errors.New("JWT_SECRET must be set in release mode")
	}
	if c.Workflow.EvaluationThreshold < 1 {
		return fmt.Errorf("workflow.evaluation_threshold must be at least 1, got %d", c.Workflow.EvaluationThreshold)
	}
	if c.Workflow.DirectPurchaseLimit < 0 {
		return errors.New("workflow.direct_purchase_limit must not be negative")
	}
	return nil
}

const devJWTSecret = "default_super_secret_key"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.permission_ttl", 5*time.Minute)

	v.SetDefault("minio.bucket", "rfq-documents")

	v.SetDefault("jwt.secret", devJWTSecret)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("whatsapp.timeout", 15*time.Second)

	v.SetDefault("workflow.evaluation_threshold", 2)
	v.SetDefault("workflow.tender_threshold", 0)
	v.SetDefault("workflow.direct_purchase_limit", 100000)
	v.SetDefault("workflow.default_currency", "CLP")
	v.SetDefault("workflow.max_retries", 3)
	v.SetDefault("workflow.delivery_timeout", 20*time.Second)
	v.SetDefault("workflow.delivery_concurrency", 8)
	v.SetDefault("workflow.organization", "Procurement")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnvVariables(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.mode", "GIN_MODE")

	_ = v.BindEnv("database.host", "DB_HOST")
	_ = v.BindEnv("database.port", "DB_PORT")
	_ = v.BindEnv("database.user", "DB_USER")
	_ = v.BindEnv("database.password", "DB_PASSWORD")
	_ = v.BindEnv("database.dbname", "DB_NAME")
	_ = v.BindEnv("database.sslmode", "DB_SSLMODE")

	_ = v.BindEnv("redis.host", "REDIS_HOST")
	_ = v.BindEnv("redis.port", "REDIS_PORT")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")

	_ = v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	_ = v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	_ = v.BindEnv("minio.bucket", "MINIO_BUCKET")

	_ = v.BindEnv("jwt.secret", "JWT_SECRET")

	_ = v.BindEnv("smtp.host", "SMTP_HOST")
	_ = v.BindEnv("smtp.port", "SMTP_PORT")
	_ = v.BindEnv("smtp.username", "SMTP_USERNAME")
	_ = v.BindEnv("smtp.password", "SMTP_PASSWORD")
	_ = v.BindEnv("smtp.from", "SMTP_FROM")

	_ = v.BindEnv("whatsapp.gateway_url", "WHATSAPP_GATEWAY_URL")
	_ = v.BindEnv("whatsapp.token", "WHATSAPP_TOKEN")

	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

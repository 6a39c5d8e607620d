package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Допустимые значения перечислений
const (
	EnvTest = "test"

	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	QueueMemory = "memory"
	QueueKafka  = "kafka"
	QueueSync   = "sync"

	ProductSourceStripe   = "stripe"
	ProductSourceSnapshot = "snapshot"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port string `mapstructure:"port"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`
	HTTP struct {
		BasePath        string        `mapstructure:"basePath"`
		ReadTimeout     time.Duration `mapstructure:"readTimeout"`
		WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"http"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Database struct {
		DSN      string `mapstructure:"dsn"`
		MaxConns int32  `mapstructure:"maxConns"`
		MinConns int32  `mapstructure:"minConns"`
	} `mapstructure:"database"`
	Storage struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"storage"`
	Redis struct {
		Enabled  bool          `mapstructure:"enabled"`
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`
	Stripe struct {
		APIKey          string        `mapstructure:"apiKey"`
		WebhookSecret   string        `mapstructure:"webhookSecret"`
		MaxRetryElapsed time.Duration `mapstructure:"maxRetryElapsed"`
	} `mapstructure:"stripe"`
	Webhook struct {
		ProductSource   string `mapstructure:"productSource"`
		VerifySignature bool   `mapstructure:"verifySignature"`
		Workers         int    `mapstructure:"workers"`
		QueueSize       int    `mapstructure:"queueSize"`
	} `mapstructure:"webhook"`
	Queue struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"queue"`
	Kafka struct {
		Brokers     []string `mapstructure:"brokers"`
		EventsTopic string   `mapstructure:"eventsTopic"`
		GroupID     string   `mapstructure:"groupId"`
		NotifyTopic string   `mapstructure:"notifyTopic"`
		Notify      bool     `mapstructure:"notify"`
	} `mapstructure:"kafka"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")

	v.SetDefault("http.basePath", "/stripe")
	v.SetDefault("http.readTimeout", 15*time.Second)
	v.SetDefault("http.writeTimeout", 15*time.Second)
	v.SetDefault("http.shutdownTimeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 2)

	v.SetDefault("storage.driver", StorageMemory)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 15*time.Minute)

	v.SetDefault("stripe.apiKey", "")
	v.SetDefault("stripe.webhookSecret", "")
	v.SetDefault("stripe.maxRetryElapsed", 30*time.Second)

	v.SetDefault("webhook.productSource", ProductSourceStripe)
	v.SetDefault("webhook.verifySignature", true)
	v.SetDefault("webhook.workers", 4)
	v.SetDefault("webhook.queueSize", 256)

	v.SetDefault("queue.driver", QueueMemory)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.eventsTopic", "stripe_webhook_events")
	v.SetDefault("kafka.groupId", "billing-sync")
	v.SetDefault("kafka.notifyTopic", "billing_record_changes")
	v.SetDefault("kafka.notify", false)

	v.SetDefault("auth.jwtSecret", "")
}

// legacyEnv короткие имена переменных окружения, которые тоже принимаются
var legacyEnv = map[string][]string{
	"app.port":      {"PORT"},
	"app.env":       {"APP_ENV", "NODE_ENV"},
	"stripe.apiKey": {"STRIPE_SK"},
	"database.dsn":  {"DATABASE_URL"},
}

// LoadConfig загружает конфигурацию: .env (если есть), config.yml (если есть), затем переменные окружения.
// path - каталог с config.yml и .env.
func LoadConfig(path string) (*Config, error) {
	envFile := ".env"
	if path != "" {
		envFile = path + string(os.PathSeparator) + ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key, envName(key)}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// envName имя переменной окружения для ключа: stripe.apiKey -> STRIPE_APIKEY
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// IsTest сообщает, что сервис запущен в тестовом окружении
func (c *Config) IsTest() bool {
	return c.App.Env == EnvTest
}

// Validate проверяет перечисления и обязательные ключи
func (c *Config) Validate() error {
	var errs []error

	if !oneOf(c.Storage.Driver, StorageMemory, StoragePostgres) {
		errs = append(errs, fmt.Errorf("storage.driver %q must be one of %s, %s", c.Storage.Driver, StorageMemory, StoragePostgres))
	}
	if c.Storage.Driver == StoragePostgres && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required for storage.driver=postgres"))
	}
	if !oneOf(c.Queue.Driver, QueueMemory, QueueKafka, QueueSync) {
		errs = append(errs, fmt.Errorf("queue.driver %q must be one of %s, %s, %s", c.Queue.Driver, QueueMemory, QueueKafka, QueueSync))
	}
	if !oneOf(c.Webhook.ProductSource, ProductSourceStripe, ProductSourceSnapshot) {
		errs = append(errs, fmt.Errorf("webhook.productSource %q must be one of %s, %s", c.Webhook.ProductSource, ProductSourceStripe, ProductSourceSnapshot))
	}
	if !oneOf(strings.ToLower(c.Log.Format), "console", "json") {
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}
	if (c.Queue.Driver == QueueKafka || c.Kafka.Notify) && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is used"))
	}
	if c.Webhook.Workers <= 0 || c.Webhook.QueueSize <= 0 {
		errs = append(errs, errors.New("webhook.workers and webhook.queueSize must be positive"))
	}
	if c.Stripe.APIKey == "" && !c.IsTest() {
		errs = append(errs, errors.New("stripe.apiKey is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Ininicializing common application configuration
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Booking  BookingConfig  `mapstructure:"booking"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	AppVersion  string        `mapstructure:"app_version"`
	Host        string        `mapstructure:"host"`
	Port        string        `mapstructure:"port" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	Env         string        `mapstructure:"environment"`
	Mode        string        `mapstructure:"mode" validate:"omitempty,oneof=debug release test"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres memory"`
	Host            string        `mapstructure:"host" validate:"required_if=Driver postgres"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Connection pool settings
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`

	// Notification queue used when RabbitMQ is disabled
	Queue            string `mapstructure:"queue"`
	QueueMaxAttempts int    `mapstructure:"queue_max_attempts" validate:"gte=0"`
}

type BookingConfig struct {
	HoldWindow            time.Duration `mapstructure:"hold_window" validate:"gt=0"`
	MaxNights             int           `mapstructure:"max_nights" validate:"gte=1"`
	TaxRate               float64       `mapstructure:"tax_rate" validate:"gte=0,lt=1"`
	ServiceFeeRate        float64       `mapstructure:"service_fee_rate" validate:"gte=0,lt=1"`
	CommissionRate        float64       `mapstructure:"commission_rate" validate:"gte=0,lt=1"`
	Currency              string        `mapstructure:"currency" validate:"len=3"`
	FreeCancellationHours int           `mapstructure:"free_cancellation_hours" validate:"gte=0"`
}

type WorkerConfig struct {
	ReaperInterval time.Duration `mapstructure:"reaper_interval" validate:"gt=0"`
	BatchSize      int           `mapstructure:"batch_size" validate:"gte=1"`
}

type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"required,url"`
	SecretKey  string        `mapstructure:"secret_key"`
	ReturnURL  string        `mapstructure:"return_url" validate:"required,url"`
	WebsiteURL string        `mapstructure:"website_url" validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
}

type RabbitMQConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url" validate:"required_if=Enabled true"`
	Queue   string `mapstructure:"queue"`
	// Receives notifications that failed twice
	DeadLetterQueue string `mapstructure:"dead_letter_queue"`
}

type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic   string `mapstructure:"topic"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" validate:"required,min=16"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" validate:"required_if=Enabled true"`
	ServiceName    string `mapstructure:"service_name"`
}

type LogConfig struct {
	Level     string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	setDefaults(viperInstance)

	viperInstance.SetEnvPrefix("STAYSEWA")
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	err := viperInstance.ReadInConfig()

	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetServerAddress returns host:port for the HTTP listener
func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.mode", "debug")

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "staysewa")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "staysewa")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.cache_ttl", 5*time.Minute)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.queue", "staysewa:notifications")
	v.SetDefault("redis.queue_max_attempts", 3)

	// Booking defaults
	v.SetDefault("booking.hold_window", 15*time.Minute)
	v.SetDefault("booking.max_nights", 90)
	v.SetDefault("booking.tax_rate", 0.13)
	v.SetDefault("booking.service_fee_rate", 0.0)
	v.SetDefault("booking.commission_rate", 0.10)
	v.SetDefault("booking.currency", "NPR")
	v.SetDefault("booking.free_cancellation_hours", 24)

	// Worker defaults
	v.SetDefault("worker.reaper_interval", time.Minute)
	v.SetDefault("worker.batch_size", 100)

	// Gateway defaults
	v.SetDefault("gateway.base_url", "https://dev.khalti.com/api/v2")
	v.SetDefault("gateway.return_url", "http://localhost:8080/api/v1/payments/callback")
	v.SetDefault("gateway.website_url", "http://localhost:3000")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("gateway.max_retries", 2)

	// Messaging defaults
	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.queue", "notifications")
	v.SetDefault("rabbitmq.dead_letter_queue", "notifications.dead")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "booking-events")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "staysewa-booking")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
}

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

// Config is the application configuration
type Config struct {
	App struct {
		Port     string `mapstructure:"port"`
		Env      string `mapstructure:"env"`
		LogLevel string `mapstructure:"logLevel"`
	} `mapstructure:"app"`
	Database struct {
		DSN     string `mapstructure:"dsn"`
		Migrate bool   `mapstructure:"migrate"`
	} `mapstructure:"database"`
	Storage struct {
		// Driver selects the billing store: "postgres" or "memory".
		Driver string `mapstructure:"driver"`
	} `mapstructure:"storage"`
	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		GrantTTL time.Duration `mapstructure:"grantTTL"`
	} `mapstructure:"redis"`
	Kafka struct {
		// Driver is "kafka-go", "sarama" or "none".
		Driver      string   `mapstructure:"driver"`
		Brokers     []string `mapstructure:"brokers"`
		TopicPrefix string   `mapstructure:"topicPrefix"`
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey        string `mapstructure:"apiKey"`
		WebhookSecret string `mapstructure:"webhookSecret"`
		APIURL        string `mapstructure:"apiURL"`
	} `mapstructure:"stripe"`
	Catalog struct {
		PremiumProductID  string `mapstructure:"premiumProductID"`
		LifetimeProductID string `mapstructure:"lifetimeProductID"`
	} `mapstructure:"catalog"`
	Checkout struct {
		SuccessURL string `mapstructure:"successURL"`
		CancelURL  string `mapstructure:"cancelURL"`
	} `mapstructure:"checkout"`
	Retry struct {
		MaxAttempts int           `mapstructure:"maxAttempts"`
		Step        time.Duration `mapstructure:"step"`
		MaxInterval time.Duration `mapstructure:"maxInterval"`
	} `mapstructure:"retry"`
	Sync struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"sync"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("database.migrate", true)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.grantTTL", time.Minute)
	v.SetDefault("kafka.driver", "kafka-go")
	v.SetDefault("kafka.topicPrefix", "billing")
	v.SetDefault("retry.maxAttempts", 3)
	v.SetDefault("retry.step", 500*time.Millisecond)
	v.SetDefault("retry.maxInterval", 5*time.Second)
	v.SetDefault("sync.timeout", 10*time.Minute)

	// keys without defaults still need to be visible to AutomaticEnv
	for _, key := range []string{
		"database.dsn",
		"redis.addr", "redis.password",
		"kafka.brokers",
		"stripe.apiKey", "stripe.webhookSecret", "stripe.apiURL",
		"catalog.premiumProductID", "catalog.lifetimeProductID",
		"checkout.successURL", "checkout.cancelURL",
		"auth.jwtSecret",
	} {
		_ = v.BindEnv(key)
	}
}

// LoadConfig reads config.yml from dir (if present), the environment and an
// optional .env file. Environment keys use "_" for nesting: STRIPE_APIKEY.
func LoadConfig(dir string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		// .env is optional in development
		if err := godotenv.Load(dir + "/.env"); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: failed to load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that keys without a sane default are set
func (c *Config) Validate() error {
	var missing []string
	if c.Catalog.PremiumProductID == "" {
		missing = append(missing, "catalog.premiumProductID")
	}
	if c.Catalog.LifetimeProductID == "" {
		missing = append(missing, "catalog.lifetimeProductID")
	}
	if c.Storage.Driver == "postgres" && c.Database.DSN == "" {
		missing = append(missing, "database.dsn")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "auth.jwtSecret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
	}
	if c.Storage.Driver != "postgres" && c.Storage.Driver != "memory" {
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.maxAttempts must be >= 1")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

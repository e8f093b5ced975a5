package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from env; a .env file in the working directory is loaded first when present.
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Webhook  WebhookConfig
	Settings SettingsConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// WebhookConfig sizes the delivery worker pool. Retry policy values here are
// process defaults; platform settings may override retries, delay and timeout.
type WebhookConfig struct {
	Workers          int
	QueueSize        int
	Timeout          time.Duration
	MaxRetries       int
	BaseDelay        time.Duration
	FailureThreshold int
	// InflightPerWebhook caps concurrent posts to one endpoint across instances (Redis).
	InflightPerWebhook int
}

type SettingsConfig struct {
	CacheTTL time.Duration
	// SeedFile is an optional YAML file used when no settings row exists yet.
	SeedFile string
}

func Load() (Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	c := Config{}
	var p parseErrs

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = p.num(mustInt("APP_PORT"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = p.num(mustInt("DB_PORT"))
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = p.num(mustInt("REDIS_PORT"))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = p.num(optionalInt("REDIS_DB"))

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = p.dur(optionalDuration("JWT_ACCESS_TTL"))

	c.Webhook.Workers = p.num(optionalInt("WEBHOOK_WORKERS"))
	c.Webhook.QueueSize = p.num(optionalInt("WEBHOOK_QUEUE_SIZE"))
	c.Webhook.Timeout = p.dur(optionalDuration("WEBHOOK_TIMEOUT"))
	c.Webhook.MaxRetries = p.num(optionalInt("WEBHOOK_MAX_RETRIES"))
	c.Webhook.BaseDelay = p.dur(optionalDuration("WEBHOOK_RETRY_DELAY"))
	c.Webhook.FailureThreshold = p.num(optionalInt("WEBHOOK_FAILURE_THRESHOLD"))
	c.Webhook.InflightPerWebhook = p.num(optionalInt("WEBHOOK_INFLIGHT_PER_ENDPOINT"))

	c.Settings.CacheTTL = p.dur(optionalDuration("SETTINGS_CACHE_TTL"))
	c.Settings.SeedFile = strings.TrimSpace(os.Getenv("SETTINGS_SEED_FILE"))

	if err := joinErrors(p); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every configuration problem at once and fills optional defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Webhook.Workers <= 0 {
		c.Webhook.Workers = 4
	}
	if c.Webhook.QueueSize <= 0 {
		c.Webhook.QueueSize = 256
	}
	if c.Webhook.Timeout <= 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Webhook.MaxRetries <= 0 {
		c.Webhook.MaxRetries = 3
	}
	if c.Webhook.BaseDelay <= 0 {
		c.Webhook.BaseDelay = 5 * time.Second
	}
	if c.Webhook.FailureThreshold <= 0 {
		c.Webhook.FailureThreshold = 10
	}
	if c.Webhook.InflightPerWebhook <= 0 {
		c.Webhook.InflightPerWebhook = 2
	}
	if c.Webhook.MaxRetries > 10 {
		errs = append(errs, fmt.Errorf("WEBHOOK_MAX_RETRIES must be at most 10, got %d", c.Webhook.MaxRetries))
	}

	if c.Settings.CacheTTL <= 0 {
		c.Settings.CacheTTL = 60 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// PostgresURL is the URL form golang-migrate expects.
func (c Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}

// parseErrs accumulates env parse failures so Load can report all of them.
type parseErrs []error

func (p *parseErrs) num(n int, err error) int {
	if err != nil {
		*p = append(*p, err)
	}
	return n
}

func (p *parseErrs) dur(d time.Duration, err error) time.Duration {
	if err != nil {
		*p = append(*p, err)
	}
	return d
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

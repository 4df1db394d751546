package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Tenants       []TenantConfig      `mapstructure:"tenants"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Source          string        `mapstructure:"source"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ProcessorConfig carries the upstream payment processor endpoints. The
// base URLs are overridable so tests can point the client at httptest
// servers.
type ProcessorConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SandboxBaseURL string        `mapstructure:"sandbox_base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type WebhookConfig struct {
	// ResolveRetryDelay is the wait before the single category-resolution
	// retry that absorbs store replication lag.
	ResolveRetryDelay time.Duration `mapstructure:"resolve_retry_delay"`
	// SweepAfter is how old a waiting payment or pending withdrawal must
	// be before the sweep command marks it expired.
	SweepAfter time.Duration `mapstructure:"sweep_after"`
}

// TenantConfig is one category's credential set and storage namespace.
// Loaded once at startup, immutable afterwards.
type TenantConfig struct {
	Category             string `mapstructure:"category"`
	APIKey               string `mapstructure:"api_key"`
	IPNSecret            string `mapstructure:"ipn_secret"`
	Sandbox              bool   `mapstructure:"sandbox"`
	PaymentCollection    string `mapstructure:"payment_collection"`
	WithdrawalCollection string `mapstructure:"withdrawal_collection"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds a Config purely from environment variables, for
// container deployments where no config file is mounted. Tenant credentials
// follow the TENANT_<CATEGORY>_* convention.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 5000),
			BaseURL:           getEnv("BASE_URL", "http://localhost:5000"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Source:          getEnv("DB_SOURCE", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Processor: ProcessorConfig{
			BaseURL:        getEnv("PROCESSOR_BASE_URL", "https://api.nowpayments.io/v1"),
			SandboxBaseURL: getEnv("PROCESSOR_SANDBOX_BASE_URL", "https://api-sandbox.nowpayments.io/v1"),
			Timeout:        30 * time.Second,
		},
		Webhook: WebhookConfig{
			ResolveRetryDelay: time.Second,
			SweepAfter:        24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}

	for _, category := range strings.Split(getEnv("TENANT_CATEGORIES", "packages,matrix,lottery"), ",") {
		category = strings.TrimSpace(category)
		if category == "" {
			continue
		}
		prefix := "TENANT_" + strings.ToUpper(category) + "_"
		cfg.Tenants = append(cfg.Tenants, TenantConfig{
			Category:             category,
			APIKey:               getEnv(prefix+"API_KEY", ""),
			IPNSecret:            getEnv(prefix+"IPN_SECRET", ""),
			Sandbox:              getEnvAsBool(prefix+"SANDBOX", false),
			PaymentCollection:    getEnv(prefix+"PAYMENT_COLLECTION", category+"_payments"),
			WithdrawalCollection: getEnv(prefix+"WITHDRAWAL_COLLECTION", category+"_withdrawals"),
		})
	}

	return cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Processor.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("processor config: %v", err))
	}

	if err := c.ValidateTenants(); err != nil {
		errs = append(errs, fmt.Sprintf("tenant config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Driver != "postgres" && c.Driver != "sqlite" {
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *ProcessorConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	return nil
}

// ValidateTenants enforces the tenant-table invariants: at least one
// tenant, no duplicate categories, and no collection shared between
// categories or between the payment and withdrawal namespaces.
func (c *Config) ValidateTenants() error {
	if len(c.Tenants) == 0 {
		return errors.New("at least one tenant is required")
	}

	seenCategory := make(map[string]bool)
	seenCollection := make(map[string]string)
	for _, t := range c.Tenants {
		if t.Category == "" {
			return errors.New("tenant category must not be empty")
		}
		if seenCategory[t.Category] {
			return fmt.Errorf("duplicate tenant category %q", t.Category)
		}
		seenCategory[t.Category] = true

		for _, coll := range []string{t.PaymentCollection, t.WithdrawalCollection} {
			if coll == "" {
				return fmt.Errorf("tenant %q has an empty collection name", t.Category)
			}
			if owner, ok := seenCollection[coll]; ok {
				return fmt.Errorf("collection %q is used by both %q and %q", coll, owner, t.Category)
			}
			seenCollection[coll] = t.Category
		}
	}
	return nil
}

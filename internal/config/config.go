package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Token     TokenConfig     `mapstructure:"token"`
	Email     EmailConfig     `mapstructure:"email"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BaseURL      string        `mapstructure:"base_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// TokenConfig holds approval-token signing configuration
type TokenConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// EmailConfig holds SMTP configuration
type EmailConfig struct {
	SMTPHost    string        `mapstructure:"smtp_host"`
	SMTPPort    int           `mapstructure:"smtp_port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	SenderName  string        `mapstructure:"sender_name"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// ApprovalConfig holds submission and decision policy
type ApprovalConfig struct {
	UrgencyWindow time.Duration `mapstructure:"urgency_window"`
	ExemptRoles   []string      `mapstructure:"exempt_roles"`
	PerKmRate     float64       `mapstructure:"per_km_rate"`
	AdminEmails   []string      `mapstructure:"admin_emails"`
}

// OptimizerConfig holds trip-combination policy
type OptimizerConfig struct {
	DiscountRatio float64 `mapstructure:"discount_ratio"`
}

// SweeperConfig holds the expiry sweeper schedule
type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.base_url", "http://localhost:8080")

	// Database defaults
	viper.SetDefault("database.path", "data/tripflow.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Token defaults: approval links stay valid for two days
	viper.SetDefault("token.ttl", 48*time.Hour)

	// Email defaults
	viper.SetDefault("email.smtp_port", 587)
	viper.SetDefault("email.sender_name", "TripFlow")
	viper.SetDefault("email.send_timeout", 10*time.Second)

	// Approval defaults: trips departing inside a day are urgent
	viper.SetDefault("approval.urgency_window", 24*time.Hour)
	viper.SetDefault("approval.exempt_roles", []string{"EXECUTIVE"})
	viper.SetDefault("approval.per_km_rate", 2.5)

	// Optimizer defaults: combined trips cost 75% of the solo estimate
	viper.SetDefault("optimizer.discount_ratio", 0.75)

	// Sweeper defaults
	viper.SetDefault("sweeper.interval", 5*time.Minute)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("token.secret", "TOKEN_SECRET")
	viper.BindEnv("email.smtp_host", "SMTP_HOST")
	viper.BindEnv("email.smtp_port", "SMTP_PORT")
	viper.BindEnv("email.username", "SMTP_USERNAME")
	viper.BindEnv("email.password", "SMTP_PASSWORD")
	viper.BindEnv("email.from", "SMTP_FROM")
	viper.BindEnv("server.base_url", "BASE_URL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return fmt.Errorf("token.secret is required")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("token.ttl must be positive")
	}

	if c.Email.SMTPHost == "" {
		return fmt.Errorf("email.smtp_host is required")
	}
	if c.Email.From == "" {
		return fmt.Errorf("email.from is required")
	}

	if len(c.Approval.AdminEmails) == 0 {
		return fmt.Errorf("approval.admin_emails is required")
	}
	if c.Approval.UrgencyWindow <= 0 {
		return fmt.Errorf("approval.urgency_window must be positive")
	}

	if c.Optimizer.DiscountRatio <= 0 || c.Optimizer.DiscountRatio >= 1 {
		return fmt.Errorf("optimizer.discount_ratio must be between 0 and 1")
	}

	return nil
}

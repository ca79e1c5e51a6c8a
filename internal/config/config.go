package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	SLA      SLAConfig      `mapstructure:"sla"`
	Email    EmailConfig    `mapstructure:"email"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds sqlite settings
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logging settings
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// SLAConfig holds deadline policy settings. WarningHours and
// EscalationHours are measured from the SLA due date; DedupWindow
// suppresses repeat notifications of the same type for a task.
type SLAConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	WarningHours    int           `mapstructure:"warning_hours"`
	EscalationHours int           `mapstructure:"escalation_hours"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	AutoResolve     bool          `mapstructure:"auto_resolve"`
	SweepSchedule   string        `mapstructure:"sweep_schedule"`
}

// EmailConfig holds SMTP settings for escalation mail
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

// Load reads configuration from the given file plus environment overrides
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Database
	v.SetDefault("database.path", "./data/taskflow.db")
	v.SetDefault("database.migrations_dir", "./migrations")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")

	// Logger
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output_path", "stdout")

	// SLA policy
	v.SetDefault("sla.enabled", true)
	v.SetDefault("sla.warning_hours", 24)
	v.SetDefault("sla.escalation_hours", 48)
	v.SetDefault("sla.dedup_window", "60m")
	v.SetDefault("sla.auto_resolve", true)
	v.SetDefault("sla.sweep_schedule", "0 0 * * * *")

	// Email
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.port", 587)
	v.SetDefault("email.from_name", "TaskFlow")
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("database.path", "DATABASE_PATH")
	v.BindEnv("database.migrations_dir", "DATABASE_MIGRATIONS_DIR")
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("sla.enabled", "SLA_ENABLED")
	v.BindEnv("sla.warning_hours", "SLA_WARNING_HOURS")
	v.BindEnv("sla.escalation_hours", "SLA_ESCALATION_HOURS")
	v.BindEnv("sla.sweep_schedule", "SLA_SWEEP_SCHEDULE")
	v.BindEnv("email.enabled", "EMAIL_ENABLED")
	v.BindEnv("email.host", "EMAIL_HOST")
	v.BindEnv("email.port", "EMAIL_PORT")
	v.BindEnv("email.username", "EMAIL_USERNAME")
	v.BindEnv("email.password", "EMAIL_PASSWORD")
	v.BindEnv("email.from", "EMAIL_FROM")
}

// Validate checks the configuration for obvious mistakes
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SLA.WarningHours <= 0 {
		return fmt.Errorf("sla.warning_hours must be positive, got %d", c.SLA.WarningHours)
	}
	if c.SLA.EscalationHours < c.SLA.WarningHours {
		return fmt.Errorf("sla.escalation_hours (%d) must not be below sla.warning_hours (%d)",
			c.SLA.EscalationHours, c.SLA.WarningHours)
	}
	if c.SLA.DedupWindow < 0 {
		return fmt.Errorf("sla.dedup_window must not be negative")
	}
	if c.Email.Enabled && c.Email.Host == "" {
		return fmt.Errorf("email.host is required when email is enabled")
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

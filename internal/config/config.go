package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the application configuration, making it accessible globally.
var Conf *Config

var (
	mu sync.RWMutex
	v  *viper.Viper
)

// Config struct is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Screening ScreeningConfig `mapstructure:"screening"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port              string `mapstructure:"port"`
	Mode              string `mapstructure:"mode"`
	SessionSecret     string `mapstructure:"session_secret"`
	SecureCookies     bool   `mapstructure:"secure_cookies"`
	RegisterRateLimit uint   `mapstructure:"register_rate_limit"`
}

// DatabaseConfig holds database connection settings. Driver selects between
// a PostgreSQL server and an embedded SQLite file at Path.
type DatabaseConfig struct {
	Driver        string        `mapstructure:"driver"`
	Host          string        `mapstructure:"host"`
	Port          string        `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	DBName        string        `mapstructure:"dbname"`
	Path          string        `mapstructure:"path"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ScreeningConfig holds the test protocol source and the abandonment sweep.
type ScreeningConfig struct {
	ProtocolFile  string        `mapstructure:"protocol_file"`
	AbandonAfter  time.Duration `mapstructure:"abandon_after"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.DBName, d.Port)
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.session_secret", "")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.register_rate_limit", 5) // per minute per IP

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "hearcheck-db")
	v.SetDefault("database.path", "data/hearcheck.db")
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "debug")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	// Screening defaults
	v.SetDefault("screening.protocol_file", "")
	v.SetDefault("screening.abandon_after", 24*time.Hour)
	v.SetDefault("screening.sweep_interval", time.Minute)
}

// Init loads the configuration from <projectRoot>/config/config.yaml,
// defaults and HEARCHECK_* environment variables, and stores it in Conf.
func Init(projectRoot string) error {
	nv := viper.New()

	// Set default values
	setDefaults(nv)

	// --- File Configuration ---
	nv.AddConfigPath(filepath.Join(projectRoot, "config"))
	nv.SetConfigName("config")
	nv.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	nv.SetEnvPrefix("HEARCHECK") // e.g., HEARCHECK_SERVER_PORT
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := nv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	var c Config
	if err := nv.Unmarshal(&c); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	mu.Lock()
	v = nv
	Conf = &c
	mu.Unlock()
	return nil
}

// Get returns the current configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return Conf
}

// Watch reloads Conf whenever the config file changes. Settings consumed at
// startup (ports, database) still need a restart.
func Watch(log *zap.Logger) {
	mu.RLock()
	nv := v
	mu.RUnlock()
	if nv == nil || nv.ConfigFileUsed() == "" {
		return
	}

	nv.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		var c Config
		if err := nv.Unmarshal(&c); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		mu.Lock()
		Conf = &c
		mu.Unlock()
	})
	nv.WatchConfig()
}

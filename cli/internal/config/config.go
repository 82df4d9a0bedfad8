// Package config loads cauldron CLI settings from a YAML file, the
// environment and dotenv files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/cauldron/adapters/rediscache"
	"github.com/satishbabariya/cauldron/adapters/search"
	"github.com/satishbabariya/cauldron/runtime/pool"
)

// AppFs is the filesystem config and dotenv files are read from.
var AppFs = afero.NewOsFs()

const (
	// FileName is the config file name without extension.
	FileName = ".cauldron"
	// EnvPrefix prefixes every environment override, e.g. CAULDRON_DATABASE_HOST.
	EnvPrefix = "CAULDRON"
)

// Config holds the application configuration
type Config struct {
	Database pool.Config
	Cache    rediscache.Config
	Search   search.Config
	Debug    bool

	// File is the config file that was read, empty when none was found.
	File string
}

// Dir returns the per-user config directory.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cauldron"), nil
}

func newViper(home string) *viper.Viper {
	v := viper.New()
	v.SetFs(AppFs)

	// Set config file paths
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "cauldron"))

	// Set environment variable prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	db := pool.DefaultConfig()
	v.SetDefault("database.provider", db.Provider)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.ssl", false)
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.min_size", db.MinSize)
	v.SetDefault("database.max_size", db.MaxSize)
	v.SetDefault("database.keepalives_idle", db.KeepAlivesIdle)
	v.SetDefault("database.keepalives_interval", db.KeepAlivesInterval)
	v.SetDefault("database.refresh_period", 0)
	v.SetDefault("database.connect_timeout", db.ConnectTimeout)
	v.SetDefault("database.use_pool", !db.NoPool)
	v.SetDefault("database.echo", false)

	rc := rediscache.DefaultConfig()
	v.SetDefault("redis.host", rc.Host)
	v.SetDefault("redis.port", rc.Port)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.min_size", rc.MinSize)
	v.SetDefault("redis.max_size", rc.MaxSize)

	sc := search.DefaultConfig()
	v.SetDefault("search.host", sc.Host)
	v.SetDefault("search.port", sc.Port)
	v.SetDefault("search.scheme", sc.Scheme)
	v.SetDefault("search.timeout", sc.Timeout)

	v.SetDefault("debug", false)
	return v
}

// LoadConfig loads configuration from various sources. Environment variables
// override the config file; .env and .env.local only fill the environment.
func LoadConfig() (*Config, error) {
	// Find home directory
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	// Load .env file if it exists
	if err := loadEnvFile(".env", false); err != nil {
		return nil, err
	}
	// Load .env.local if it exists (higher priority)
	if err := loadEnvFile(".env.local", true); err != nil {
		return nil, err
	}

	v := newViper(home)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v), nil
}

// loadEnvFile exports the variables in path. Unless overload is set,
// variables already present in the environment are kept.
func loadEnvFile(path string, overload bool) error {
	f, err := AppFs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for k, val := range vars {
		if _, set := os.LookupEnv(k); set && !overload {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Database: pool.Config{
			Provider:           v.GetString("database.provider"),
			Database:           v.GetString("database.name"),
			User:               v.GetString("database.user"),
			Password:           v.GetString("database.password"),
			Host:               v.GetString("database.host"),
			Port:               v.GetInt("database.port"),
			EnableSSL:          v.GetBool("database.ssl"),
			SSLMode:            v.GetString("database.sslmode"),
			MinSize:            v.GetInt("database.min_size"),
			MaxSize:            v.GetInt("database.max_size"),
			KeepAlivesIdle:     v.GetDuration("database.keepalives_idle"),
			KeepAlivesInterval: v.GetDuration("database.keepalives_interval"),
			RefreshPeriod:      v.GetDuration("database.refresh_period"),
			ConnectTimeout:     v.GetDuration("database.connect_timeout"),
			NoPool:             !v.GetBool("database.use_pool"),
			Echo:               v.GetBool("database.echo"),
			Options:            v.GetStringMapString("database.options"),
		},
		Cache: rediscache.Config{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			MinSize:  v.GetInt("redis.min_size"),
			MaxSize:  v.GetInt("redis.max_size"),
		},
		Search: search.Config{
			Host:    v.GetString("search.host"),
			Port:    v.GetInt("search.port"),
			Scheme:  v.GetString("search.scheme"),
			Timeout: v.GetDuration("search.timeout"),
		},
		Debug: v.GetBool("debug"),
		File:  v.ConfigFileUsed(),
	}
}

// SaveConfig saves configuration to the per-user config directory and
// returns the file written. Passwords are not persisted.
func SaveConfig(cfg *Config) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := AppFs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.Set("database.provider", cfg.Database.Provider)
	v.Set("database.name", cfg.Database.Database)
	v.Set("database.user", cfg.Database.User)
	v.Set("database.host", cfg.Database.Host)
	v.Set("database.port", cfg.Database.Port)
	v.Set("database.ssl", cfg.Database.EnableSSL)
	v.Set("database.min_size", cfg.Database.MinSize)
	v.Set("database.max_size", cfg.Database.MaxSize)
	v.Set("database.use_pool", !cfg.Database.NoPool)
	v.Set("redis.host", cfg.Cache.Host)
	v.Set("redis.port", cfg.Cache.Port)
	v.Set("search.host", cfg.Search.Host)
	v.Set("search.port", cfg.Search.Port)
	v.Set("debug", cfg.Debug)

	file := filepath.Join(dir, FileName+".yaml")
	if err := v.WriteConfigAs(file); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", file, err)
	}
	return file, nil
}

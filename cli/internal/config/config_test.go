package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const home = "/home/tester"

func memFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	prev := AppFs
	AppFs = fs
	t.Cleanup(func() { AppFs = prev })

	homedir.DisableCache = true
	t.Setenv("HOME", home)
	return fs
}

func unsetAfter(t *testing.T, keys ...string) {
	t.Cleanup(func() {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	memFs(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Provider)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 10, cfg.Database.MaxSize)
	assert.Equal(t, 10*time.Second, cfg.Database.ConnectTimeout)
	assert.False(t, cfg.Database.NoPool)
	assert.Equal(t, 6379, cfg.Cache.Port)
	assert.Equal(t, 9200, cfg.Search.Port)
	assert.Empty(t, cfg.File)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	fs := memFs(t)
	yaml := `
database:
  provider: mysql
  name: shop
  user: ann
  host: db.internal
  port: 3306
  refresh_period: 30s
  options:
    charset: utf8mb4
redis:
  host: cache.internal
search:
  port: 9243
debug: true
`
	require.NoError(t, afero.WriteFile(fs, filepath.Join(home, ".cauldron.yaml"), []byte(yaml), 0o644))
	t.Setenv("CAULDRON_DATABASE_HOST", "override.internal")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".cauldron.yaml"), cfg.File)
	assert.Equal(t, "mysql", cfg.Database.Provider)
	assert.Equal(t, "shop", cfg.Database.Database)
	assert.Equal(t, "ann", cfg.Database.User)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, 30*time.Second, cfg.Database.RefreshPeriod)
	assert.Equal(t, map[string]string{"charset": "utf8mb4"}, cfg.Database.Options)
	assert.Equal(t, "cache.internal", cfg.Cache.Host)
	assert.Equal(t, 9243, cfg.Search.Port)
	assert.True(t, cfg.Debug)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	fs := memFs(t)
	unsetAfter(t, "CAULDRON_DATABASE_NAME", "CAULDRON_DATABASE_USER")

	require.NoError(t, afero.WriteFile(fs, ".env", []byte("CAULDRON_DATABASE_NAME=fromenv\nCAULDRON_DATABASE_USER=bob\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, ".env.local", []byte("CAULDRON_DATABASE_USER=local\n"), 0o644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Database.Database)
	assert.Equal(t, "local", cfg.Database.User)
}

func TestLoadConfig_DotEnvKeepsEnvironment(t *testing.T) {
	fs := memFs(t)
	t.Setenv("CAULDRON_DATABASE_NAME", "real")

	require.NoError(t, afero.WriteFile(fs, ".env", []byte("CAULDRON_DATABASE_NAME=fromfile\n"), 0o644))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "real", cfg.Database.Database)
}

func TestLoadConfig_BadFile(t *testing.T) {
	fs := memFs(t)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(home, ".cauldron.yaml"), []byte("database: [unclosed"), 0o644))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	memFs(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.Database.Provider = "sqlite3"
	cfg.Database.Database = "/var/lib/app.db"
	cfg.Database.Password = "secret"
	cfg.Cache.Host = "redis.local"

	file, err := SaveConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "cauldron", ".cauldron.yaml"), file)

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, file, loaded.File)
	assert.Equal(t, "sqlite3", loaded.Database.Provider)
	assert.Equal(t, "/var/lib/app.db", loaded.Database.Database)
	assert.Empty(t, loaded.Database.Password)
	assert.Equal(t, "redis.local", loaded.Cache.Host)
}

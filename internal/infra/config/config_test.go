package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  baseUrl: "https://meals.example.com/api"
  authScheme: Bearer
generation:
  pollInterval: 2s
  timeout: 20s
session:
  store: memory
`), 0o600))
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("GENERATION_TIMEOUT", "45s")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://meals.example.com/api", cfg.API.BaseURL)
	require.Equal(t, "Bearer", cfg.API.AuthScheme)
	require.Equal(t, 2*time.Second, cfg.Generation.PollInterval)
	require.Equal(t, 45*time.Second, cfg.Generation.Timeout)
	require.Equal(t, StoreMemory, cfg.Session.Store)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.AllowedOrigins)
	require.Equal(t, 10*time.Second, cfg.API.Timeout)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("API_AUTH_SCHEME=Bearer\n"), 0o600))
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("API_AUTH_SCHEME", "")
	require.NoError(t, os.Unsetenv("API_AUTH_SCHEME"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Bearer", cfg.API.AuthScheme)
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3*time.Second, cfg.Generation.PollInterval)
	require.Equal(t, 30*time.Second, cfg.Generation.Timeout)
	require.Equal(t, "Token", cfg.API.AuthScheme)
	require.Equal(t, StoreFile, cfg.Session.Store)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown store":            func(c *Config) { c.Session.Store = "sqlite" },
		"valkey without addr":      func(c *Config) { c.Session.Store = StoreValkey },
		"postgres without dsn":     func(c *Config) { c.Session.Store = StorePostgres },
		"zero interval":            func(c *Config) { c.Generation.PollInterval = 0 },
		"timeout below interval":   func(c *Config) { c.Generation.Timeout = time.Second },
		"archive without endpoint": func(c *Config) { c.Archive.Enabled = true },
		"cache without addr":       func(c *Config) { c.Cache.Valkey.Enabled = true },
		"empty base url":           func(c *Config) { c.API.BaseURL = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+): it changes the working directory
// for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

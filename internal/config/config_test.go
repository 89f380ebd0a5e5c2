package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, int64(500), cfg.MaxFileSizeMB)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval.Duration)
	assert.Equal(t, time.Hour, cfg.FileMaxAge.Duration)
	assert.Zero(t, cfg.CompletedJobTTL.Duration)
	assert.Positive(t, cfg.MaxConcurrentJobs)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"API_KEY":             "secret",
		"PORT":                "8080",
		"MAX_FILE_SIZE_MB":    "100",
		"ALLOWED_ORIGINS":     "https://a.example, https://b.example,",
		"MAX_CONCURRENT_JOBS": "3",
		"JOB_TIMEOUT":         "30m",
		"COMPLETED_JOB_TTL":   "10s",
	}))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxUploadBytes())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.MaxConcurrentJobs)
	assert.Equal(t, 30*time.Minute, cfg.JobTimeout.Duration)
	assert.Equal(t, 10*time.Second, cfg.CompletedJobTTL.Duration)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	tests := map[string]string{
		"MAX_FILE_SIZE_MB":    "lots",
		"MAX_CONCURRENT_JOBS": "many",
		"FILE_MAX_AGE":        "an hour",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			assert.Error(t, cfg.applyEnv(envMap(map[string]string{key: val})))
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")

	cfg.APIKey = "k"
	cfg.MaxFileSizeMB = 0
	cfg.MaxConcurrentJobs = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_FILE_SIZE_MB")
	assert.Contains(t, err.Error(), "MAX_CONCURRENT_JOBS")
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapedit.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key = "from-file"
port = "4000"
max_concurrent_jobs = 2
allowed_origins = ["https://app.example"]
cleanup_interval = "5m"
file_max_age = "30m"
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "5000")
	t.Setenv("API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, "5000", cfg.Port, "environment overrides the file")
	assert.Equal(t, 2, cfg.MaxConcurrentJobs)
	assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval.Duration)
	assert.Equal(t, 30*time.Minute, cfg.FileMaxAge.Duration)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapedit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: yaml-key
max_file_size_mb: 50
allowed_origins:
  - https://app.example
job_timeout: 45m
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("API_KEY", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "yaml-key", cfg.APIKey)
	assert.Equal(t, int64(50), cfg.MaxFileSizeMB)
	assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 45*time.Minute, cfg.JobTimeout.Duration)
	assert.Equal(t, "3000", cfg.Port)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapedit.ini")
	require.NoError(t, os.WriteFile(path, []byte("api_key=x"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported")
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.toml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	} {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}

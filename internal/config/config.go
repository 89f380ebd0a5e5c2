package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the server.
type Config struct {
	APIKey            string   `toml:"api_key" yaml:"api_key"`
	Port              string   `toml:"port" yaml:"port"`
	MaxFileSizeMB     int64    `toml:"max_file_size_mb" yaml:"max_file_size_mb"`
	AllowedOrigins    []string `toml:"allowed_origins" yaml:"allowed_origins"`
	TempDir           string   `toml:"temp_dir" yaml:"temp_dir"`
	FFmpegPath        string   `toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	MaxConcurrentJobs int      `toml:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
	LogLevel          string   `toml:"log_level" yaml:"log_level"`

	QueueTimeout    Duration `toml:"queue_timeout" yaml:"queue_timeout"`
	JobTimeout      Duration `toml:"job_timeout" yaml:"job_timeout"`
	CleanupInterval Duration `toml:"cleanup_interval" yaml:"cleanup_interval"`
	FileMaxAge      Duration `toml:"file_max_age" yaml:"file_max_age"`
	CompletedJobTTL Duration `toml:"completed_job_ttl" yaml:"completed_job_ttl"`
}

// Duration decodes strings such as "15m" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:              "3000",
		MaxFileSizeMB:     500,
		AllowedOrigins:    []string{"*"},
		TempDir:           filepath.Join(os.TempDir(), "tapedit"),
		FFmpegPath:        "ffmpeg",
		MaxConcurrentJobs: runtime.GOMAXPROCS(0),
		LogLevel:          "info",
		QueueTimeout:      Duration{30 * time.Second},
		JobTimeout:        Duration{2 * time.Hour},
		CleanupInterval:   Duration{15 * time.Minute},
		FileMaxAge:        Duration{time.Hour},
	}
}

// Load builds the configuration from defaults, the optional TOML or YAML file
// named by CONFIG_FILE, then environment variables, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(file).Decode(c)
	case ".toml", "":
		err = toml.NewDecoder(file).Decode(c)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := getenv("TEMP_DIR"); v != "" {
		c.TempDir = v
	}
	if v := getenv("FFMPEG_PATH"); v != "" {
		c.FFmpegPath = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	if v := getenv("MAX_FILE_SIZE_MB"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_FILE_SIZE_MB: %w", err)
		}
		c.MaxFileSizeMB = n
	}
	if v := getenv("MAX_CONCURRENT_JOBS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_CONCURRENT_JOBS: %w", err)
		}
		c.MaxConcurrentJobs = n
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"QUEUE_TIMEOUT", &c.QueueTimeout},
		{"JOB_TIMEOUT", &c.JobTimeout},
		{"CLEANUP_INTERVAL", &c.CleanupInterval},
		{"FILE_MAX_AGE", &c.FileMaxAge},
		{"COMPLETED_JOB_TTL", &c.CompletedJobTTL},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		if err := d.dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("API_KEY is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.MaxFileSizeMB <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE_MB must be positive"))
	}
	if c.MaxConcurrentJobs <= 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_JOBS must be positive"))
	}
	if c.TempDir == "" {
		errs = append(errs, errors.New("TEMP_DIR is required"))
	}
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("ALLOWED_ORIGINS must list at least one origin"))
	}
	for _, d := range []Duration{c.QueueTimeout, c.JobTimeout, c.CleanupInterval, c.FileMaxAge, c.CompletedJobTTL} {
		if d.Duration < 0 {
			errs = append(errs, errors.New("durations must not be negative"))
			break
		}
	}
	return errors.Join(errs...)
}

// MaxUploadBytes converts the configured limit to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

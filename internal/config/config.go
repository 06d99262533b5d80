// Package config
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cpumon/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Address        string
	AllowedOrigins []string
	DatabaseURL    string
	LogLevel       string
	LogFormat      string

	ScanPeriod    time.Duration
	SliceWindow   time.Duration
	AverageBucket time.Duration

	StaticDir        string
	ImageInstantPath string
	ImageAveragePath string
	InstantXTickStep int
	ChartSizeInches  float64

	Redis RedisConfig
}

type RedisConfig struct {
	Address      string `yaml:"address"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"stream_maxlen"`
}

// fileConfig mirrors Config for the optional YAML file. Zero values leave the
// defaults untouched.
type fileConfig struct {
	Address              string      `yaml:"http_addr"`
	AllowedOrigins       []string    `yaml:"allowed_origins"`
	DatabaseURL          string      `yaml:"database_url"`
	LogLevel             string      `yaml:"log_level"`
	LogFormat            string      `yaml:"log_format"`
	ScanPeriodSeconds    int         `yaml:"scan_period_seconds"`
	SliceWindowMinutes   int         `yaml:"slice_window_minutes"`
	AverageBucketSeconds int         `yaml:"average_bucket_seconds"`
	StaticDir            string      `yaml:"static_dir"`
	ImageInstantPath     string      `yaml:"image_instant_path"`
	ImageAveragePath     string      `yaml:"image_average_path"`
	InstantXTickStep     int         `yaml:"instant_x_tick_step"`
	ChartSizeInches      float64     `yaml:"chart_size_inches"`
	Redis                RedisConfig `yaml:"redis"`
}

const (
	defaultScanPeriod    = 5 * time.Second
	defaultSliceWindow   = 60 * time.Minute
	defaultAverageBucket = 60 * time.Second
)

// Upper bounds shared with the window and bucket query parameters.
const (
	MaxScanPeriod    = time.Hour
	MaxSliceWindow   = 7 * 24 * time.Hour
	MaxAverageBucket = time.Hour
)

// Load builds the configuration from defaults, then the YAML file named by
// CPUMON_CONFIG (if any), then environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CPUMON_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDerived()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Address:          ":5000",
		LogLevel:         "info",
		LogFormat:        "text",
		ScanPeriod:       defaultScanPeriod,
		SliceWindow:      defaultSliceWindow,
		AverageBucket:    defaultAverageBucket,
		StaticDir:        "./static",
		InstantXTickStep: 30,
		ChartSizeInches:  10,
		Redis: RedisConfig{
			Stream:       "cpumon:samples",
			StreamMaxLen: 1000,
		},
	}
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.Address, f.Address)
	setString(&c.DatabaseURL, f.DatabaseURL)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogFormat, f.LogFormat)
	setString(&c.StaticDir, f.StaticDir)
	setString(&c.ImageInstantPath, f.ImageInstantPath)
	setString(&c.ImageAveragePath, f.ImageAveragePath)

	if len(f.AllowedOrigins) > 0 {
		c.AllowedOrigins = f.AllowedOrigins
	}
	if f.ScanPeriodSeconds > 0 {
		c.ScanPeriod = time.Duration(f.ScanPeriodSeconds) * time.Second
	}
	if f.SliceWindowMinutes > 0 {
		c.SliceWindow = time.Duration(f.SliceWindowMinutes) * time.Minute
	}
	if f.AverageBucketSeconds > 0 {
		c.AverageBucket = time.Duration(f.AverageBucketSeconds) * time.Second
	}
	if f.InstantXTickStep > 0 {
		c.InstantXTickStep = f.InstantXTickStep
	}
	if f.ChartSizeInches > 0 {
		c.ChartSizeInches = f.ChartSizeInches
	}

	setString(&c.Redis.Address, f.Redis.Address)
	setString(&c.Redis.Username, f.Redis.Username)
	setString(&c.Redis.Password, f.Redis.Password)
	setString(&c.Redis.Stream, f.Redis.Stream)
	if f.Redis.DB > 0 {
		c.Redis.DB = f.Redis.DB
	}
	if f.Redis.StreamMaxLen > 0 {
		c.Redis.StreamMaxLen = f.Redis.StreamMaxLen
	}

	return nil
}

func (c *Config) applyEnv() error {
	// Logs
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	// HTTP
	c.Address = getEnv("HTTP_ADDR", c.Address)
	if rawOrigins := os.Getenv("ALLOWED_ORIGINS"); rawOrigins != "" {
		var origins []string
		for o := range strings.SplitSeq(rawOrigins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		c.AllowedOrigins = origins
	}

	// Storage
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	// Charts
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.ImageInstantPath = getEnv("IMAGE_INSTANT_PATH", c.ImageInstantPath)
	c.ImageAveragePath = getEnv("IMAGE_AVERAGE_PATH", c.ImageAveragePath)
	if raw := os.Getenv("CHART_SIZE_INCHES"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return &domain.InvalidConfigError{Key: "CHART_SIZE_INCHES", Value: raw, Reason: "not a number"}
		}
		c.ChartSizeInches = v
	}

	// Redis mirror
	c.Redis.Address = getEnv("REDIS_ADDR", c.Redis.Address)
	c.Redis.Username = getEnv("REDIS_USERNAME", c.Redis.Username)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.Stream = getEnv("REDIS_STREAM", c.Redis.Stream)

	ints := []struct {
		key string
		set func(n int)
	}{
		{"SCAN_PERIOD_SECONDS", func(n int) { c.ScanPeriod = time.Duration(n) * time.Second }},
		{"SLICE_WINDOW_MINUTES", func(n int) { c.SliceWindow = time.Duration(n) * time.Minute }},
		{"AVERAGE_BUCKET_SECONDS", func(n int) { c.AverageBucket = time.Duration(n) * time.Second }},
		{"INSTANT_X_TICK_STEP", func(n int) { c.InstantXTickStep = n }},
		{"REDIS_DB", func(n int) { c.Redis.DB = n }},
		{"REDIS_STREAM_MAXLEN", func(n int) { c.Redis.StreamMaxLen = int64(n) }},
	}
	for _, i := range ints {
		n, ok, err := getEnvInt(i.key)
		if err != nil {
			return err
		}
		if ok {
			i.set(n)
		}
	}

	return nil
}

func (c *Config) fillDerived() {
	if c.ImageInstantPath == "" {
		c.ImageInstantPath = filepath.Join(c.StaticDir, "images", "inmoment", "m_load.png")
	}
	if c.ImageAveragePath == "" {
		c.ImageAveragePath = filepath.Join(c.StaticDir, "images", "avg", "av_load.png")
	}
}

func (c *Config) validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"DATABASE_URL", c.DatabaseURL},
		{"HTTP_ADDR", c.Address},
		{"STATIC_DIR", c.StaticDir},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &domain.MissingConfigError{Key: r.key}
		}
	}

	bounds := []struct {
		key        string
		value      time.Duration
		unit       time.Duration
		minV, maxV time.Duration
	}{
		{"SCAN_PERIOD_SECONDS", c.ScanPeriod, time.Second, time.Second, MaxScanPeriod},
		{"SLICE_WINDOW_MINUTES", c.SliceWindow, time.Minute, time.Minute, MaxSliceWindow},
		{"AVERAGE_BUCKET_SECONDS", c.AverageBucket, time.Second, time.Second, MaxAverageBucket},
	}
	for _, b := range bounds {
		if b.value < b.minV || b.value > b.maxV {
			return &domain.InvalidConfigError{
				Key:    b.key,
				Value:  strconv.FormatInt(int64(b.value/b.unit), 10),
				Reason: fmt.Sprintf("must be between %d and %d", b.minV/b.unit, b.maxV/b.unit),
			}
		}
	}

	if c.InstantXTickStep < 0 {
		return &domain.InvalidConfigError{Key: "INSTANT_X_TICK_STEP", Value: strconv.Itoa(c.InstantXTickStep), Reason: "must not be negative"}
	}
	if c.ChartSizeInches <= 0 {
		return &domain.InvalidConfigError{Key: "CHART_SIZE_INCHES", Value: strconv.FormatFloat(c.ChartSizeInches, 'f', -1, 64), Reason: "must be positive"}
	}
	if c.Redis.DB < 0 {
		return &domain.InvalidConfigError{Key: "REDIS_DB", Value: strconv.Itoa(c.Redis.DB), Reason: "must not be negative"}
	}
	if c.Redis.StreamMaxLen <= 0 {
		return &domain.InvalidConfigError{Key: "REDIS_STREAM_MAXLEN", Value: strconv.FormatInt(c.Redis.StreamMaxLen, 10), Reason: "must be positive"}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt reports whether key is set. A value that is not an integer is a
// configuration error.
func getEnvInt(key string) (int, bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, &domain.InvalidConfigError{Key: key, Value: raw, Reason: "not an integer"}
	}
	return n, true, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kerbaras/comicdl/pkg/integrations"
	"github.com/kerbaras/comicdl/pkg/logging"
)

const EnvPrefix = "COMICDL"

type Config struct {
	DataDir     string
	DownloadDir string
	ExportDir   string

	MaxActiveTasks  int // K: tasks downloading at once
	ItemConcurrency int // M: images in flight per task
	ItemRetries     int
	ItemTimeout     time.Duration
	CheckpointEvery int

	PageAttempts     int
	PageTimeout      time.Duration
	ResolveBatchSize int
	AllowedDomains   []string
	UserAgent        string
	MangaDexAPI      string
	MemoryCacheMB    int

	JPEGQuality int
	MaxWidth    int
	MaxHeight   int
	Grayscale   bool
	Device      string // reader profile, see integrations.Devices
	ASCIIPaths  bool

	HTTPAddr string
	Log      logging.Config
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".comicdl"
	}
	return filepath.Join(home, ".comicdl")
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Downloads", "comicdl")
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("download_dir", defaultDownloadDir())
	v.SetDefault("export_dir", "")
	v.SetDefault("max_active_tasks", 1)
	v.SetDefault("item_concurrency", 10)
	v.SetDefault("item_retries", 3)
	v.SetDefault("item_timeout", 30*time.Second)
	v.SetDefault("checkpoint_every", 10)
	v.SetDefault("page_attempts", 5)
	v.SetDefault("page_timeout", 10*time.Second)
	v.SetDefault("resolve_batch_size", 5)
	v.SetDefault("allowed_domains", []string{"antbyw.com", "mangadex.org"})
	v.SetDefault("user_agent", "")
	v.SetDefault("mangadex_api", "https://api.mangadex.org")
	v.SetDefault("memory_cache_mb", 64)
	v.SetDefault("jpeg_quality", 90)
	v.SetDefault("max_width", 0)
	v.SetDefault("max_height", 0)
	v.SetDefault("grayscale", false)
	v.SetDefault("device", "")
	v.SetDefault("ascii_paths", false)
	v.SetDefault("http.addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

// New returns a viper instance with defaults, environment binding and the
// optional config file search paths set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	return v
}

// Load reads .env, the config file and flags into a Config. configFile
// overrides the search; flags may be nil.
func Load(v *viper.Viper, configFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if flags != nil {
		// Flag names use dashes, keys use underscores.
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(v.GetString("data_dir"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		DataDir:          v.GetString("data_dir"),
		DownloadDir:      v.GetString("download_dir"),
		ExportDir:        v.GetString("export_dir"),
		MaxActiveTasks:   v.GetInt("max_active_tasks"),
		ItemConcurrency:  v.GetInt("item_concurrency"),
		ItemRetries:      v.GetInt("item_retries"),
		ItemTimeout:      v.GetDuration("item_timeout"),
		CheckpointEvery:  v.GetInt("checkpoint_every"),
		PageAttempts:     v.GetInt("page_attempts"),
		PageTimeout:      v.GetDuration("page_timeout"),
		ResolveBatchSize: v.GetInt("resolve_batch_size"),
		AllowedDomains:   v.GetStringSlice("allowed_domains"),
		UserAgent:        v.GetString("user_agent"),
		MangaDexAPI:      v.GetString("mangadex_api"),
		MemoryCacheMB:    v.GetInt("memory_cache_mb"),
		JPEGQuality:      v.GetInt("jpeg_quality"),
		MaxWidth:         v.GetInt("max_width"),
		MaxHeight:        v.GetInt("max_height"),
		Grayscale:        v.GetBool("grayscale"),
		Device:           v.GetString("device"),
		ASCIIPaths:       v.GetBool("ascii_paths"),
		HTTPAddr:         v.GetString("http.addr"),
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = cfg.DownloadDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects limits that would stall or disable the engine.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"max_active_tasks":   c.MaxActiveTasks,
		"item_concurrency":   c.ItemConcurrency,
		"item_retries":       c.ItemRetries,
		"checkpoint_every":   c.CheckpointEvery,
		"page_attempts":      c.PageAttempts,
		"resolve_batch_size": c.ResolveBatchSize,
	}
	for key, val := range positive {
		if val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, val))
		}
	}
	if c.ItemTimeout <= 0 {
		errs = append(errs, fmt.Errorf("item_timeout must be positive"))
	}
	if c.PageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("page_timeout must be positive"))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be within 1-100, got %d", c.JPEGQuality))
	}
	if c.MaxWidth < 0 || c.MaxHeight < 0 || c.MemoryCacheMB < 0 {
		errs = append(errs, fmt.Errorf("max_width, max_height and memory_cache_mb cannot be negative"))
	}
	if _, ok := integrations.Devices[c.Device]; c.Device != "" && !ok {
		errs = append(errs, fmt.Errorf("unknown device %q, known: %s", c.Device, strings.Join(integrations.ListDevices(), ", ")))
	}
	if c.DataDir == "" || c.DownloadDir == "" {
		errs = append(errs, fmt.Errorf("data_dir and download_dir are required"))
	}
	return errors.Join(errs...)
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "db", "comicdl.duckdb")
}

func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// DefaultLogFile is where interactive commands log so output does not
// interleave with the terminal UI.
func (c *Config) DefaultLogFile() string {
	return filepath.Join(c.DataDir, "log", "comicdl.log")
}

package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nestlogic/floorwatch/internal/platform/envutil"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

const (
	minDebounce = 250 * time.Millisecond
	maxDebounce = 1500 * time.Millisecond
)

// MachineConfig is one CNC router entry. Rows are upserted into the
// machines table at startup so the repositories and the UI share one view.
type MachineConfig struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	PcIP            string `yaml:"pc_ip"`
	PcPort          int    `yaml:"pc_port"`
	APJobfolder     string `yaml:"ap_jobfolder"`
	NestpickFolder  string `yaml:"nestpick_folder"`
	NestpickEnabled bool   `yaml:"nestpick_enabled"`
}

type Config struct {
	Mode     string `yaml:"mode"`
	HTTPAddr string `yaml:"http_addr"`

	PostgresDSN  string `yaml:"postgres_dsn"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`

	ProcessedJobsRoot string `yaml:"processed_jobs_root"`
	AutoPacCsvDir     string `yaml:"autopac_csv_dir"`
	GrundnerDir       string `yaml:"grundner_dir"`

	UseTestDataMode bool `yaml:"use_test_data_mode"`
	// WatcherDebounce is parsed from the watcher_debounce string ("500ms").
	WatcherDebounce    time.Duration `yaml:"-"`
	WatcherDebounceRaw string        `yaml:"watcher_debounce"`

	AllowedOrigins []string        `yaml:"allowed_origins"`
	Machines       []MachineConfig `yaml:"machines"`
}

// LoadConfig reads the YAML file named by FLOORWATCH_CONFIG (default
// config.yaml), then applies env overrides on top. A missing file is not an
// error: everything has a default or an env var.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Mode:            "development",
		HTTPAddr:        "127.0.0.1:8686",
		RedisChannel:    "ui",
		WatcherDebounce: 500 * time.Millisecond,
	}

	path := envutil.Str("FLOORWATCH_CONFIG", "config.yaml")
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		log.Info("config file loaded", "path", path)
	case os.IsNotExist(err):
		log.Warn("config file missing, using defaults and env", "path", path)
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.Mode = envutil.Str("LOG_MODE", cfg.Mode)
	cfg.HTTPAddr = envutil.Str("FLOORWATCH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.PostgresDSN = envutil.Str("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = envutil.Str("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisChannel = envutil.Str("REDIS_UI_CHANNEL", cfg.RedisChannel)
	cfg.ProcessedJobsRoot = envutil.Str("PROCESSED_JOBS_ROOT", cfg.ProcessedJobsRoot)
	cfg.AutoPacCsvDir = envutil.Str("AUTOPAC_CSV_DIR", cfg.AutoPacCsvDir)
	cfg.GrundnerDir = envutil.Str("GRUNDNER_DIR", cfg.GrundnerDir)
	cfg.UseTestDataMode = envutil.Bool("USE_TEST_DATA_MODE", cfg.UseTestDataMode)
	if cfg.WatcherDebounceRaw != "" {
		d, err := time.ParseDuration(cfg.WatcherDebounceRaw)
		if err != nil {
			return Config{}, fmt.Errorf("watcher_debounce %q: %w", cfg.WatcherDebounceRaw, err)
		}
		cfg.WatcherDebounce = d
	}
	cfg.WatcherDebounce = envutil.Duration("WATCHER_DEBOUNCE", cfg.WatcherDebounce)

	if cfg.WatcherDebounce < minDebounce {
		cfg.WatcherDebounce = minDebounce
	}
	if cfg.WatcherDebounce > maxDebounce {
		cfg.WatcherDebounce = maxDebounce
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("postgres_dsn is required (config file or POSTGRES_DSN)")
	}
	seen := map[int64]bool{}
	for _, m := range cfg.Machines {
		if m.ID <= 0 || m.Name == "" {
			return Config{}, fmt.Errorf("machine entries need a positive id and a name: %+v", m)
		}
		if seen[m.ID] {
			return Config{}, fmt.Errorf("duplicate machine id %d", m.ID)
		}
		seen[m.ID] = true
	}
	return cfg, nil
}

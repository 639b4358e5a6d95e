package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLOORWATCH_CONFIG", path)
}

func TestLoadConfigFileAndDefaults(t *testing.T) {
	writeConfig(t, `
postgres_dsn: postgres://fw:fw@localhost/fw
processed_jobs_root: /srv/jobs
machines:
  - id: 1
    name: WT1
    pc_ip: 10.0.0.5
    pc_port: 9001
    nestpick_enabled: true
`)
	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:8686" || cfg.RedisChannel != "ui" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.WatcherDebounce != 500*time.Millisecond {
		t.Fatalf("debounce default = %v", cfg.WatcherDebounce)
	}
	if len(cfg.Machines) != 1 || cfg.Machines[0].Name != "WT1" || !cfg.Machines[0].NestpickEnabled {
		t.Fatalf("machines = %+v", cfg.Machines)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	writeConfig(t, `
postgres_dsn: postgres://file-dsn
processed_jobs_root: /srv/jobs
http_addr: "127.0.0.1:9999"
`)
	t.Setenv("FLOORWATCH_HTTP_ADDR", "0.0.0.0:8080")
	t.Setenv("POSTGRES_DSN", "postgres://env-dsn")

	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.PostgresDSN != "postgres://env-dsn" {
		t.Fatalf("env did not win: %+v", cfg)
	}
}

func TestLoadConfigClampsDebounce(t *testing.T) {
	writeConfig(t, `
postgres_dsn: postgres://fw
processed_jobs_root: /srv/jobs
watcher_debounce: 50ms
`)
	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WatcherDebounce != minDebounce {
		t.Fatalf("debounce = %v, want clamp to %v", cfg.WatcherDebounce, minDebounce)
	}
}

func TestLoadConfigAllowsMissingDirectories(t *testing.T) {
	writeConfig(t, `postgres_dsn: postgres://fw`)
	cfg, err := LoadConfig(logger.NewNop())
	if err != nil {
		t.Fatalf("config without directories rejected: %v", err)
	}
	if cfg.ProcessedJobsRoot != "" || cfg.AutoPacCsvDir != "" || cfg.GrundnerDir != "" {
		t.Fatalf("unexpected directory defaults: %+v", cfg)
	}
}

func TestLoadConfigRejectsMissingDSN(t *testing.T) {
	writeConfig(t, `processed_jobs_root: /srv/jobs`)
	if _, err := LoadConfig(logger.NewNop()); err == nil {
		t.Fatal("missing postgres_dsn accepted")
	}
}

func TestLoadConfigRejectsDuplicateMachineIDs(t *testing.T) {
	writeConfig(t, `
postgres_dsn: postgres://fw
processed_jobs_root: /srv/jobs
machines:
  - {id: 1, name: WT1}
  - {id: 1, name: WT2}
`)
	if _, err := LoadConfig(logger.NewNop()); err == nil {
		t.Fatal("duplicate machine ids accepted")
	}
}

// Package config loads process settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/wpfleet/wpfleet/internal/catalog"
	"github.com/wpfleet/wpfleet/internal/controller"
	"github.com/wpfleet/wpfleet/internal/gateway"
)

const (
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"

	DefaultListenAddr     = ":8080"
	DefaultReportSchedule = "0 9 * * *"
	DefaultConcurrency    = 4
)

type Config struct {
	DataDir            string
	DBType             string
	DBConnectionString string
	ListenAddr         string

	RequestTimeout     time.Duration
	RefreshConcurrency int
	InstallConcurrency int
	CatalogURL         string

	AutoSync controller.AutoSyncConfig

	ReportsEnabled bool
	ReportSchedule string
	ReportCompany  string
	ReportOutbox   string

	LogLevel  string
	LogFormat string
}

// Load reads envFiles (or ./.env when none are given and it exists) and then
// parses the WPFLEET_* variables. Variables already set in the environment
// win over file values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	return FromEnv()
}

// FromEnv parses configuration from the current environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		DataDir:            env("WPFLEET_DATA_DIR", defaultDataDir()),
		DBType:             strings.ToLower(env("WPFLEET_DB_TYPE", DBTypeSQLite)),
		DBConnectionString: env("WPFLEET_DB_CONNECTION_STRING", ""),
		ListenAddr:         env("WPFLEET_LISTEN_ADDR", DefaultListenAddr),
		CatalogURL:         env("WPFLEET_CATALOG_URL", catalog.DefaultBaseURL),
		ReportSchedule:     env("WPFLEET_REPORT_SCHEDULE", DefaultReportSchedule),
		ReportCompany:      env("WPFLEET_REPORT_COMPANY", "WP Fleet"),
		ReportOutbox:       env("WPFLEET_REPORT_OUTBOX", ""),
		LogLevel:           env("WPFLEET_LOG_LEVEL", "info"),
		LogFormat:          env("WPFLEET_LOG_FORMAT", "json"),
	}

	switch cfg.DBType {
	case DBTypeSQLite:
	case DBTypePostgres:
		if cfg.DBConnectionString == "" {
			return Config{}, fmt.Errorf("WPFLEET_DB_CONNECTION_STRING is required for postgres")
		}
	default:
		return Config{}, fmt.Errorf("invalid WPFLEET_DB_TYPE: %s", cfg.DBType)
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("WPFLEET_REQUEST_TIMEOUT", gateway.DefaultTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RefreshConcurrency, err = positiveIntEnv("WPFLEET_REFRESH_CONCURRENCY", DefaultConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.InstallConcurrency, err = positiveIntEnv("WPFLEET_INSTALL_CONCURRENCY", DefaultConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.ReportsEnabled, err = boolEnv("WPFLEET_REPORTS", true); err != nil {
		return Config{}, err
	}
	if _, err := cron.ParseStandard(cfg.ReportSchedule); err != nil {
		return Config{}, fmt.Errorf("invalid WPFLEET_REPORT_SCHEDULE: %w", err)
	}

	if cfg.AutoSync, err = controller.LoadAutoSyncConfigFromEnv(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func defaultDataDir() string {
	if _, err := os.Stat("/data"); err == nil {
		return "/data"
	}
	// Local development without a mounted volume.
	return "."
}

func env(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, value)
	}
	return parsed, nil
}

func positiveIntEnv(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, value)
	}
	return parsed, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %s", key, value)
}

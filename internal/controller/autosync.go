package controller

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// AutoSyncConfig controls periodic status refreshes of every site.
type AutoSyncConfig struct {
	Enabled  bool
	Interval time.Duration
}

// LoadAutoSyncConfigFromEnv loads auto-sync config from environment variables.
func LoadAutoSyncConfigFromEnv() (AutoSyncConfig, error) {
	enabled := true
	if value := strings.TrimSpace(os.Getenv("WPFLEET_AUTO_SYNC")); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			enabled = true
		case "false", "0", "no", "off":
			enabled = false
		default:
			return AutoSyncConfig{}, fmt.Errorf("invalid WPFLEET_AUTO_SYNC: %s", value)
		}
	}

	interval := 30 * time.Minute
	if value := strings.TrimSpace(os.Getenv("WPFLEET_SYNC_INTERVAL")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return AutoSyncConfig{}, fmt.Errorf("invalid WPFLEET_SYNC_INTERVAL: %s", value)
		}
		if parsed > 0 {
			interval = parsed
		}
	}

	return AutoSyncConfig{Enabled: enabled, Interval: interval}, nil
}

// AutoSyncer refreshes every site on a fixed interval.
type AutoSyncer struct {
	Registry *Registry
	Logger   *slog.Logger
	Config   AutoSyncConfig

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

func NewAutoSyncer(registry *Registry, logger *slog.Logger, cfg AutoSyncConfig) *AutoSyncer {
	return &AutoSyncer{
		Registry: registry,
		Logger:   logger,
		Config:   cfg,
	}
}

// Start runs the loop in a goroutine. Wait blocks until it has returned.
func (a *AutoSyncer) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Run(ctx)
	}()
}

// Wait blocks until a loop started with Start has returned, including any
// pass still writing results.
func (a *AutoSyncer) Wait() {
	a.wg.Wait()
}

// Run refreshes once immediately and then on every tick until ctx ends.
func (a *AutoSyncer) Run(ctx context.Context) {
	if !a.Config.Enabled {
		if a.Logger != nil {
			a.Logger.Info("Auto-sync disabled")
		}
		return
	}

	a.SyncOnce(ctx)

	ticker := time.NewTicker(a.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if a.Logger != nil {
				a.Logger.Info("Auto-sync stopped")
			}
			return
		case <-ticker.C:
			a.SyncOnce(ctx)
		}
	}
}

// SyncOnce refreshes all sites unless a previous pass is still running. It
// reports whether a pass ran.
func (a *AutoSyncer) SyncOnce(ctx context.Context) bool {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		if a.Logger != nil {
			a.Logger.Debug("Skipping auto-sync; previous pass still running")
		}
		return false
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	started := time.Now()
	sites := a.Registry.RefreshAll(ctx)
	if a.Logger != nil {
		a.Logger.Info("Auto-sync pass finished", "sites", len(sites), "duration", time.Since(started).String())
	}
	return true
}

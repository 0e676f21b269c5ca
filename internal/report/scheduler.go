package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wpfleet/wpfleet/internal/api"
)

// Sites is the registry surface the scheduler reads and writes.
type Sites interface {
	List() []api.Site
	Get(id string) (api.Site, bool)
	Update(ctx context.Context, id string, patch api.SitePatch) (api.Site, bool, error)
}

// StatsSource fetches live content counters for a site.
type StatsSource interface {
	Stats(ctx context.Context, siteID string) (api.SiteStats, error)
}

type Config struct {
	// Schedule is a standard 5-field cron spec for the due-report check.
	Schedule string
	Company  string
	Template Template
}

// Result is the outcome of one report attempt.
type Result struct {
	SiteID string
	Sent   bool
	Err    error
}

// Scheduler sends each opted-in client one report per month, on or after
// their report day.
type Scheduler struct {
	sites  Sites
	stats  StatsSource
	sender Sender
	logger *slog.Logger
	config Config
	cron   *cron.Cron
	now    func() time.Time

	mu sync.Mutex
	// failed maps a site id to the month ("2006-01") of its last failed send.
	// A failed report is not retried until the next month.
	failed map[string]string
}

func NewScheduler(sites Sites, stats StatsSource, sender Sender, logger *slog.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Template.Subject == "" && cfg.Template.Body == "" {
		cfg.Template = DefaultTemplate
	}
	return &Scheduler{
		sites:  sites,
		stats:  stats,
		sender: sender,
		logger: logger.With("component", "reports"),
		config: cfg,
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		now:    time.Now,
		failed: make(map[string]string),
	}
}

// Start registers the check on the cron schedule and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule reports: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Report scheduler started", "schedule", s.config.Schedule)
	return nil
}

// Stop halts the cron loop and waits for a running check to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Due reports whether site should get a report at now.
func Due(site api.Site, now time.Time) bool {
	client := site.Client
	if client == nil || !client.SendReports || client.Email == "" {
		return false
	}
	day := client.ReportDay
	if day <= 0 {
		day = 1
	}
	if now.Day() < day {
		return false
	}
	if client.LastReportSent == nil {
		return true
	}
	last := client.LastReportSent.In(now.Location())
	return last.Year() != now.Year() || last.Month() != now.Month()
}

// RunOnce sends every due report. A failure for one site does not stop the
// others.
func (s *Scheduler) RunOnce(ctx context.Context) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	month := now.Format("2006-01")
	var results []Result
	for _, site := range s.sites.List() {
		if !Due(site, now) || s.failed[site.ID] == month {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		err := s.sendOne(ctx, site, now)
		if err != nil {
			s.failed[site.ID] = month
			s.logger.Warn("Failed to send client report", "site_id", site.ID, "error", err)
		} else {
			delete(s.failed, site.ID)
			s.logger.Info("Client report sent", "site_id", site.ID, "to", site.Client.Email)
		}
		results = append(results, Result{SiteID: site.ID, Sent: err == nil, Err: err})
	}
	return results
}

func (s *Scheduler) sendOne(ctx context.Context, site api.Site, now time.Time) error {
	var stats *api.SiteStats
	if s.stats != nil && site.Status == api.StatusOnline {
		fetched, err := s.stats.Stats(ctx, site.ID)
		if err != nil {
			s.logger.Debug("Report stats unavailable", "site_id", site.ID, "error", err)
		} else {
			stats = &fetched
		}
	}

	vars := Variables(site, stats, s.config.Company, now)
	msg := Message{
		SiteID:  site.ID,
		To:      site.Client.Email,
		Subject: Render(s.config.Template.Subject, vars),
		Body:    Render(s.config.Template.Body, vars),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	// Re-read so edits made while the report was sending are kept.
	current, ok := s.sites.Get(site.ID)
	if !ok || current.Client == nil {
		s.logger.Warn("Site or client removed before report was recorded", "site_id", site.ID)
		return nil
	}
	client := current.Client.Clone()
	sent := now.UTC().Truncate(time.Microsecond)
	client.LastReportSent = &sent
	if _, ok, err := s.sites.Update(ctx, site.ID, api.SitePatch{Client: &client}); err != nil {
		return fmt.Errorf("record report: %w", err)
	} else if !ok {
		s.logger.Warn("Site removed before report was recorded", "site_id", site.ID)
	}
	return nil
}

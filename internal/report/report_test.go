package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wpfleet/wpfleet/internal/api"
)

type memorySites struct {
	mu    sync.Mutex
	sites []api.Site
}

func (m *memorySites) List() []api.Site {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.Site, 0, len(m.sites))
	for _, site := range m.sites {
		out = append(out, site.Clone())
	}
	return out
}

func (m *memorySites) Get(id string) (api.Site, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, site := range m.sites {
		if site.ID == id {
			return site.Clone(), true
		}
	}
	return api.Site{}, false
}

func (m *memorySites) Update(ctx context.Context, id string, patch api.SitePatch) (api.Site, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sites {
		if m.sites[i].ID == id {
			m.sites[i] = patch.Apply(m.sites[i])
			return m.sites[i].Clone(), true, nil
		}
	}
	return api.Site{}, false, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]bool
}

func (r *recordingSender) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.SiteID] {
		return errors.New("smtp unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

type fixedStats map[string]api.SiteStats

func (f fixedStats) Stats(ctx context.Context, siteID string) (api.SiteStats, error) {
	stats, ok := f[siteID]
	if !ok {
		return api.SiteStats{}, errors.New("no stats")
	}
	return stats, nil
}

func reportingSite(id string, day int, last *time.Time) api.Site {
	return api.Site{
		ID:     id,
		Name:   "Site " + id,
		URL:    "https://" + id + ".example.com",
		Status: api.StatusOnline,
		Meta:   &api.SiteMeta{WPVersion: "6.5.2", PluginCount: 7, Updates: api.UpdateSummary{Plugins: 2}},
		Client: &api.ClientInfo{
			Name:           "Client " + id,
			Email:          id + "@example.com",
			SendReports:    true,
			ReportDay:      day,
			LastReportSent: last,
		},
	}
}

func TestRender(t *testing.T) {
	out := Render("Hi {{client_name}}, {{month}} {{unknown}} {{ spaced }}", map[string]string{
		"client_name": "Ada",
		"month":       "May",
	})
	assert.Equal(t, "Hi Ada, May {{unknown}} {{ spaced }}", out)
}

func TestVariables(t *testing.T) {
	now := time.Date(2026, time.January, 20, 10, 30, 0, 0, time.UTC)
	site := reportingSite("a", 1, nil)
	site.LastSync = &now

	vars := Variables(site, &api.SiteStats{TotalPosts: 45, DBSize: "25.5 MB"}, "Agency", now)
	assert.Equal(t, "Client a", vars["client_name"])
	assert.Equal(t, "January", vars["month"])
	assert.Equal(t, "2026", vars["year"])
	assert.Equal(t, "January 20, 2026", vars["report_date"])
	assert.Equal(t, "January 20, 2026 at 10:30 AM", vars["last_sync"])
	assert.Equal(t, "7", vars["plugin_count"])
	assert.Equal(t, "2", vars["plugins_pending"])
	assert.Equal(t, "45", vars["total_posts"])
	assert.Equal(t, "25.5 MB", vars["db_size"])
	assert.Equal(t, "n/a", vars["php_version"])
	assert.Equal(t, "Online", vars["site_status"])

	bare := Variables(api.Site{Name: "bare", Status: api.StatusOffline}, nil, "", now)
	assert.Equal(t, "n/a", bare["total_posts"])
	assert.Equal(t, "n/a", bare["wp_version"])
	assert.Equal(t, "0", bare["plugin_count"])
}

func TestDue(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, time.February, 10, 9, 0, 0, 0, time.UTC)
	thisMonth := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	assert.True(t, Due(reportingSite("a", 5, nil), now))
	assert.True(t, Due(reportingSite("a", 10, &lastMonth), now))
	assert.True(t, Due(reportingSite("a", 0, nil), now))
	assert.False(t, Due(reportingSite("a", 11, nil), now))
	assert.False(t, Due(reportingSite("a", 1, &thisMonth), now))

	optedOut := reportingSite("a", 1, nil)
	optedOut.Client.SendReports = false
	assert.False(t, Due(optedOut, now))

	noEmail := reportingSite("a", 1, nil)
	noEmail.Client.Email = ""
	assert.False(t, Due(noEmail, now))

	assert.False(t, Due(api.Site{ID: "none"}, now))
}

func TestRunOnceSendsDueReportsAndRecordsThem(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	sent := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	sites := &memorySites{sites: []api.Site{
		reportingSite("due", 1, nil),
		reportingSite("later", 20, nil),
		reportingSite("done", 1, &sent),
		reportingSite("broken", 1, nil),
	}}
	sender := &recordingSender{fail: map[string]bool{"broken": true}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(sites, fixedStats{"due": {TotalPosts: 3}}, sender, logger, Config{Schedule: "0 9 * * *", Company: "Agency"})
	s.now = func() time.Time { return now }

	results := s.RunOnce(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, Result{SiteID: "due", Sent: true}, results[0])
	assert.Equal(t, "broken", results[1].SiteID)
	assert.False(t, results[1].Sent)
	assert.Error(t, results[1].Err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "due@example.com", msg.To)
	assert.Equal(t, "[Monthly Report] Site due - March 2026", msg.Subject)
	assert.Contains(t, msg.Body, "Dear Client due,")
	assert.Contains(t, msg.Body, "Published Posts:    3")
	assert.Contains(t, msg.Body, "Agency")

	for _, site := range sites.List() {
		switch site.ID {
		case "due":
			require.NotNil(t, site.Client.LastReportSent)
			assert.True(t, site.Client.LastReportSent.Equal(now))
		case "broken", "later":
			assert.Nil(t, site.Client.LastReportSent)
		}
	}

	assert.Empty(t, s.RunOnce(context.Background()))
	require.Len(t, sender.sent, 1)
}

func TestRunOnceRetriesFailedReportNextMonth(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	sites := &memorySites{sites: []api.Site{reportingSite("flaky", 1, nil)}}
	sender := &recordingSender{fail: map[string]bool{"flaky": true}}
	s := NewScheduler(sites, nil, sender, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Schedule: "0 9 * * *"})
	s.now = func() time.Time { return now }

	results := s.RunOnce(context.Background())
	require.Len(t, results, 1)
	assert.False(t, results[0].Sent)

	sender.mu.Lock()
	sender.fail = nil
	sender.mu.Unlock()

	now = now.AddDate(0, 0, 5)
	assert.Empty(t, s.RunOnce(context.Background()))

	now = time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	results = s.RunOnce(context.Background())
	require.Len(t, results, 1)
	assert.True(t, results[0].Sent)
	require.Len(t, sender.sent, 1)
}

// editingSender changes the client record while the report is in flight.
type editingSender struct {
	sites *memorySites
}

func (e editingSender) Send(ctx context.Context, msg Message) error {
	e.sites.mu.Lock()
	defer e.sites.mu.Unlock()
	e.sites.sites[0].Client.Phone = "+1 555 0100"
	return nil
}

func TestRunOnceKeepsClientEditsMadeDuringSend(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	sites := &memorySites{sites: []api.Site{reportingSite("edited", 1, nil)}}
	s := NewScheduler(sites, nil, editingSender{sites: sites}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Schedule: "0 9 * * *"})
	s.now = func() time.Time { return now }

	results := s.RunOnce(context.Background())
	require.Len(t, results, 1)
	require.True(t, results[0].Sent)

	site, ok := sites.Get("edited")
	require.True(t, ok)
	assert.Equal(t, "+1 555 0100", site.Client.Phone)
	require.NotNil(t, site.Client.LastReportSent)
	assert.True(t, site.Client.LastReportSent.Equal(now))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&memorySites{}, nil, &recordingSender{}, nil, Config{Schedule: "whenever"})
	assert.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	s := NewScheduler(&memorySites{}, nil, &recordingSender{}, nil, Config{Schedule: "0 9 * * *"})
	require.NoError(t, s.Start())
	s.Stop()
}

func TestFileOutbox(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	outbox := NewFileOutbox(dir)
	outbox.now = func() time.Time { return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC) }

	err := outbox.Send(context.Background(), Message{SiteID: "site/1", To: "a@example.com", Subject: "Report", Body: "hello"})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "20260310T090000-site_1.eml", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "To: a@example.com\r\n")
	assert.Contains(t, string(data), "Subject: Report\r\n")
	assert.Contains(t, string(data), "\r\n\r\nhello")
}

func TestFileOutboxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewFileOutbox(t.TempDir()).Send(ctx, Message{}), context.Canceled)
}

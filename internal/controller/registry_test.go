package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/status"
	"github.com/wpfleet/wpfleet/internal/wptest"
)

func TestAddThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	fake := wptest.New(t)
	fake.SetMeta(api.SiteMeta{WPVersion: "6.5.2", PluginCount: 5, Updates: api.UpdateSummary{Plugins: 2}})

	reg := newTestRegistry(t, repo, nil, RegistryConfig{})
	draft := fake.Credentials("Shop")
	draft.Client = &api.ClientInfo{Name: "Acme", Email: "ops@acme.test", SendReports: true, ReportDay: 3}
	added, err := reg.Add(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, api.StatusPending, added.Status)
	assert.NotEmpty(t, added.ID)
	reg.Wait()

	before, ok := reg.Get(added.ID)
	require.True(t, ok)
	require.Equal(t, api.StatusOnline, before.Status)

	reloaded := newTestRegistry(t, repo, nil, RegistryConfig{})
	sites := reloaded.List()
	require.Len(t, sites, 1)
	after := sites[0]
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, before.URL, after.URL)
	assert.Equal(t, fake.Key, after.APIKey)
	assert.Equal(t, fake.Secret, after.APISecret)
	assert.Equal(t, api.StatusOnline, after.Status)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
	require.NotNil(t, after.LastSync)
	assert.True(t, before.LastSync.Equal(*after.LastSync))
	require.NotNil(t, after.Meta)
	assert.Equal(t, 5, after.Meta.PluginCount)
	assert.Equal(t, 2, after.Meta.Updates.Plugins)
	require.NotNil(t, after.Client)
	assert.Equal(t, "Acme", after.Client.Name)
	assert.Equal(t, 3, after.Client.ReportDay)
}

func TestTimestampsKeepMicrosecondPrecision(t *testing.T) {
	repo := newTestRepo(t)
	clock := time.Date(2026, time.March, 10, 9, 0, 0, 123456789, time.UTC)
	resolver := resolverFunc(func(ctx context.Context, site api.Site) status.Outcome {
		return status.Outcome{Status: api.StatusNoPlugin}
	})
	reg := newTestRegistry(t, repo, resolver, RegistryConfig{})
	reg.now = func() time.Time { return clock }

	added, err := reg.Add(context.Background(), api.SiteDraft{Name: "Precise", URL: "https://precise.example.com", APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	reg.Wait()

	want := time.Date(2026, time.March, 10, 9, 0, 0, 123456000, time.UTC)
	assert.True(t, added.CreatedAt.Equal(want), "created at %s", added.CreatedAt)
	site, ok := reg.Get(added.ID)
	require.True(t, ok)
	require.NotNil(t, site.LastSync)
	assert.True(t, site.LastSync.Equal(want), "last sync %s", site.LastSync)
}

func TestAddNormalizesURL(t *testing.T) {
	fake := wptest.New(t)
	reg := newTestRegistry(t, nil, nil, RegistryConfig{})

	draft := fake.Credentials(" Blog ")
	draft.URL = fake.URL() + "/"
	site, err := reg.Add(context.Background(), draft)
	require.NoError(t, err)
	reg.Wait()

	assert.Equal(t, fake.URL(), site.URL)
	assert.Equal(t, "Blog", site.Name)
}

func TestAddRejectsInvalidDrafts(t *testing.T) {
	reg := newTestRegistry(t, nil, nil, RegistryConfig{})

	cases := map[string]api.SiteDraft{
		"missing name":   {URL: "https://a.example.com", APIKey: "k", APISecret: "s"},
		"missing key":    {Name: "A", URL: "https://a.example.com", APISecret: "s"},
		"missing secret": {Name: "A", URL: "https://a.example.com", APIKey: "k"},
		"bad scheme":     {Name: "A", URL: "ftp://a.example.com", APIKey: "k", APISecret: "s"},
		"bad report day": {
			Name: "A", URL: "https://a.example.com", APIKey: "k", APISecret: "s",
			Client: &api.ClientInfo{Name: "C", Email: "c@example.com", SendReports: true, ReportDay: 31},
		},
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Add(context.Background(), draft)
			assert.ErrorIs(t, err, ErrInvalidSite)
		})
	}
	assert.Empty(t, reg.List())
}

func TestUpdateUnknownSiteIsNoop(t *testing.T) {
	reg := newTestRegistry(t, nil, nil, RegistryConfig{})

	name := "Renamed"
	_, ok, err := reg.Update(context.Background(), "missing", api.SitePatch{Name: &name})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, reg.List())
}

func TestUpdatePersistsAndKeepsCredentials(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seed(t, repo, seededSite("a", api.StatusOnline, &api.SiteMeta{PluginCount: 3}))
	reg := newTestRegistry(t, repo, nil, RegistryConfig{})

	name := "Renamed"
	updated, ok, err := reg.Update(ctx, "a", api.SitePatch{Name: &name})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "secret", updated.APISecret)
	require.NotNil(t, updated.Meta)
	assert.Equal(t, 3, updated.Meta.PluginCount)

	persisted, err := repo.LoadSites(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "Renamed", persisted[0].Name)
}

func TestDeleteIsIdempotentAndClearsSelection(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seed(t, repo, seededSite("a", api.StatusOnline, nil), seededSite("b", api.StatusOffline, nil))
	reg := newTestRegistry(t, repo, nil, RegistryConfig{})

	require.NoError(t, reg.Select("a"))
	selected, ok := reg.Selected()
	require.True(t, ok)
	assert.Equal(t, "a", selected.ID)

	removed, err := reg.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok = reg.Selected()
	assert.False(t, ok)

	removed, err = reg.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, removed)

	sites := reg.List()
	require.Len(t, sites, 1)
	assert.Equal(t, "b", sites[0].ID)

	persisted, err := repo.LoadSites(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
}

func TestSelectUnknownSite(t *testing.T) {
	reg := newTestRegistry(t, nil, nil, RegistryConfig{})
	assert.ErrorIs(t, reg.Select("missing"), ErrSiteNotFound)
	assert.NoError(t, reg.Select(""))
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	reg := NewRegistry(brokenRepo{}, liveResolver(), quietLogger(), RegistryConfig{})
	defer reg.Close()

	reg.Load(context.Background())
	assert.Empty(t, reg.List())
	assert.NotNil(t, reg.Views())
}

func TestListReturnsCopies(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo, seededSite("a", api.StatusOnline, &api.SiteMeta{PluginCount: 1}))
	reg := newTestRegistry(t, repo, nil, RegistryConfig{})

	sites := reg.List()
	sites[0].Name = "mutated"
	sites[0].Meta.PluginCount = 99

	fresh, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Site a", fresh.Name)
	assert.Equal(t, 1, fresh.Meta.PluginCount)
}

func TestSummaryCountsOnlineUpdates(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo,
		seededSite("a", api.StatusOnline, &api.SiteMeta{Updates: api.UpdateSummary{Plugins: 2, Themes: 1}}),
		seededSite("b", api.StatusOnline, &api.SiteMeta{Updates: api.UpdateSummary{Plugins: 1, Core: true}}),
		seededSite("c", api.StatusNoPlugin, &api.SiteMeta{Updates: api.UpdateSummary{Plugins: 7}}),
		seededSite("d", api.StatusOffline, nil),
	)
	reg := newTestRegistry(t, repo, nil, RegistryConfig{})

	summary := reg.Summary()
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Counts[api.StatusOnline])
	assert.Equal(t, 1, summary.Counts[api.StatusNoPlugin])
	assert.Equal(t, 1, summary.Counts[api.StatusOffline])
	assert.Equal(t, 3, summary.Updates.Plugins)
	assert.Equal(t, 1, summary.Updates.Themes)
	assert.True(t, summary.Updates.Core)
}

func TestAddPublishesEvents(t *testing.T) {
	fake := wptest.New(t)
	hub := NewEventHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	reg := newTestRegistry(t, nil, nil, RegistryConfig{Events: hub})
	site, err := reg.Add(context.Background(), fake.Credentials("Events"))
	require.NoError(t, err)
	reg.Wait()

	var types []string
	timeout := time.After(2 * time.Second)
	for len(types) < 4 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
			if ev.Type != EventSnapshot {
				assert.Equal(t, site.ID, ev.SiteID)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", types)
		}
	}
	// snapshot from Load, added, pending, resolved
	assert.Equal(t, []string{EventSnapshot, EventSiteAdded, EventSiteUpdated, EventSiteUpdated}, types)
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wpfleet/wpfleet/internal/api"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "wpfleet.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteStoreSiteRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 30, 0, 123456789, time.UTC)
	synced := created.Add(time.Minute)
	site := &api.Site{
		ID:        "site-1",
		Name:      "Blog",
		URL:       "https://blog.example.com",
		Status:    api.StatusOnline,
		CreatedAt: created,
		LastSync:  &synced,
		Meta: &api.SiteMeta{
			WPVersion:   "6.5.2",
			PluginCount: 5,
			Updates:     api.UpdateSummary{Plugins: 2, Core: true},
		},
		Client: &api.ClientInfo{Name: "Ada", Email: "ada@example.com", SendReports: true, ReportDay: 3},
	}
	require.NoError(t, s.CreateSite(ctx, site))

	got, err := s.GetSite(ctx, "site-1")
	require.NoError(t, err)
	assert.Equal(t, site.Name, got.Name)
	assert.Equal(t, site.URL, got.URL)
	assert.Equal(t, api.StatusOnline, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.LastSync)
	assert.True(t, synced.Equal(*got.LastSync))
	assert.Equal(t, site.Meta, got.Meta)
	assert.Equal(t, site.Client, got.Client)
	assert.Empty(t, got.APIKey, "site rows never carry credentials")
}

func TestSQLiteStoreNullableColumns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSite(ctx, &api.Site{
		ID:        "bare",
		Name:      "Bare",
		URL:       "https://bare.example.com",
		Status:    api.StatusPending,
		CreatedAt: time.Now(),
	}))

	got, err := s.GetSite(ctx, "bare")
	require.NoError(t, err)
	assert.Nil(t, got.LastSync)
	assert.Nil(t, got.Meta)
	assert.Nil(t, got.Client)
}

func TestSQLiteStoreListOrdersByCreation(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.CreateSite(ctx, &api.Site{
			ID:        id,
			Name:      id,
			URL:       "https://" + id + ".example.com",
			Status:    api.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	sites, err := s.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 3)
	assert.Equal(t, "c", sites[0].ID)
	assert.Equal(t, "a", sites[1].ID)
	assert.Equal(t, "b", sites[2].ID)
}

func TestSQLiteStoreReplaceAndDeleteUnknown(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	err := s.ReplaceSite(ctx, &api.Site{ID: "missing", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrSiteNotFound)

	err = s.DeleteSite(ctx, "missing")
	assert.ErrorIs(t, err, ErrSiteNotFound)

	_, err = s.GetSite(ctx, "missing")
	assert.ErrorIs(t, err, ErrSiteNotFound)

	_, err = s.GetSiteCredential(ctx, "missing")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestSQLiteStoreDeleteRemovesCredential(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateSite(ctx, &api.Site{
		ID:        "site",
		Name:      "Site",
		URL:       "https://site.example.com",
		Status:    api.StatusPending,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, s.UpsertSiteCredential(ctx, &SiteCredential{SiteID: "site", Ciphertext: []byte{1}, Nonce: []byte{2}}))
	require.NoError(t, s.UpsertSiteCredential(ctx, &SiteCredential{SiteID: "site", Ciphertext: []byte{3}, Nonce: []byte{4}}))

	credential, err := s.GetSiteCredential(ctx, "site")
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, credential.Ciphertext)

	require.NoError(t, s.DeleteSite(ctx, "site"))
	_, err = s.GetSiteCredential(ctx, "site")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestSQLiteStoreReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wpfleet.db")
	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.CreateSite(context.Background(), &api.Site{
		ID:        "kept",
		Name:      "Kept",
		URL:       "https://kept.example.com",
		Status:    api.StatusOffline,
		CreatedAt: time.Now(),
	}))
	first.Close()

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetSite(context.Background(), "kept")
	require.NoError(t, err)
	assert.Equal(t, api.StatusOffline, got.Status)
}

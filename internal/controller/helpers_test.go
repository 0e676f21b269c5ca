package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/credentials"
	"github.com/wpfleet/wpfleet/internal/gateway"
	"github.com/wpfleet/wpfleet/internal/status"
	"github.com/wpfleet/wpfleet/internal/store"
	"github.com/wpfleet/wpfleet/internal/wpapi"
	"github.com/wpfleet/wpfleet/internal/wptest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T) store.SiteRepository {
	t.Helper()
	backend, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "wpfleet.db"))
	require.NoError(t, err)
	t.Cleanup(backend.Close)

	svc, err := credentials.NewServiceFromKey(bytes.Repeat([]byte{5}, 32))
	require.NoError(t, err)
	return store.NewSealedRepository(backend, svc, quietLogger())
}

func companionClient() *wpapi.Client {
	return wpapi.New(gateway.New(2*time.Second, quietLogger()))
}

func liveResolver() Resolver {
	return status.NewResolver(companionClient(), quietLogger())
}

func newTestRegistry(t *testing.T, repo store.SiteRepository, resolver Resolver, cfg RegistryConfig) *Registry {
	t.Helper()
	if repo == nil {
		repo = newTestRepo(t)
	}
	if resolver == nil {
		resolver = liveResolver()
	}
	reg := NewRegistry(repo, resolver, quietLogger(), cfg)
	reg.Load(context.Background())
	t.Cleanup(reg.Close)
	return reg
}

// addAndSettle adds a site for fake and waits for its first refresh.
func addAndSettle(t *testing.T, reg *Registry, fake *wptest.Site, name string) api.Site {
	t.Helper()
	site, err := reg.Add(context.Background(), fake.Credentials(name))
	require.NoError(t, err)
	reg.Wait()
	settled, ok := reg.Get(site.ID)
	require.True(t, ok)
	return settled
}

// seed persists sites directly so no background refresh is scheduled.
func seed(t *testing.T, repo store.SiteRepository, sites ...api.Site) {
	t.Helper()
	for _, site := range sites {
		_, err := repo.SaveSite(context.Background(), site)
		require.NoError(t, err)
	}
}

func seededSite(id string, status api.SiteStatus, meta *api.SiteMeta) api.Site {
	return api.Site{
		ID:        id,
		Name:      "Site " + id,
		URL:       "https://" + id + ".example.com",
		APIKey:    "key",
		APISecret: "secret",
		Status:    status,
		CreatedAt: time.Now().UTC(),
		Meta:      meta,
	}
}

type resolverFunc func(ctx context.Context, site api.Site) status.Outcome

func (f resolverFunc) Resolve(ctx context.Context, site api.Site) status.Outcome {
	return f(ctx, site)
}

// flakyRepo fails UpdateSite on demand.
type flakyRepo struct {
	store.SiteRepository
	failUpdates atomic.Bool
}

func (f *flakyRepo) UpdateSite(ctx context.Context, id string, patch api.SitePatch) (*api.Site, error) {
	if f.failUpdates.Load() {
		return nil, errors.New("disk full")
	}
	return f.SiteRepository.UpdateSite(ctx, id, patch)
}

type brokenRepo struct {
	store.SiteRepository
}

func (brokenRepo) LoadSites(ctx context.Context) ([]api.Site, error) {
	return nil, errors.New("database is locked")
}

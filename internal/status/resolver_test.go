package status

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/gateway"
	"github.com/wpfleet/wpfleet/internal/wpapi"
	"github.com/wpfleet/wpfleet/internal/wptest"
)

func newResolver() *Resolver {
	return NewResolver(wpapi.New(gateway.New(0, nil)), nil)
}

func siteFor(fake *wptest.Site) api.Site {
	return api.Site{ID: "s", URL: fake.URL(), APIKey: fake.Key, APISecret: fake.Secret}
}

func TestResolveOnline(t *testing.T) {
	fake := wptest.New(t)
	fake.SetMeta(api.SiteMeta{WPVersion: "6.5", PluginCount: 5})

	out := newResolver().Resolve(context.Background(), siteFor(fake))
	assert.Equal(t, api.StatusOnline, out.Status)
	require.NotNil(t, out.Meta)
	assert.Equal(t, 5, out.Meta.PluginCount)
}

func TestResolveOfflineWhenRefused(t *testing.T) {
	fake := wptest.New(t)
	site := siteFor(fake)
	fake.Close()

	out := newResolver().Resolve(context.Background(), site)
	assert.Equal(t, api.StatusOffline, out.Status)
	assert.Nil(t, out.Meta)
	assert.Equal(t, 0, out.HTTPStatus)
	assert.Zero(t, fake.Calls("GET /wp-json/wp-manager/v1/status"))
}

func TestResolveOfflineWhenIndexFails(t *testing.T) {
	fake := wptest.New(t)
	fake.SetDiscoveryStatus(http.StatusServiceUnavailable)

	out := newResolver().Resolve(context.Background(), siteFor(fake))
	assert.Equal(t, api.StatusOffline, out.Status)
	assert.Nil(t, out.Meta)
	assert.Zero(t, fake.Calls("GET /wp-json/wp-manager/v1/status"), "second probe must not run")
}

func TestResolveProbeTwoStatuses(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		secret string
		want   api.SiteStatus
	}{
		{name: "not found", code: http.StatusNotFound, want: api.StatusNoPlugin},
		{name: "forbidden", code: http.StatusForbidden, want: api.StatusError},
		{name: "bad credentials", secret: "wrong", want: api.StatusError},
		{name: "server error", code: http.StatusInternalServerError, want: api.StatusNoPlugin},
		{name: "unauthorized", code: http.StatusUnauthorized, want: api.StatusNoPlugin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := wptest.New(t)
			fake.SetStatusCode(tt.code)
			site := siteFor(fake)
			if tt.secret != "" {
				site.APISecret = tt.secret
			}

			out := newResolver().Resolve(context.Background(), site)
			assert.Equal(t, tt.want, out.Status)
			assert.Nil(t, out.Meta)
			if tt.want == api.StatusNoPlugin {
				assert.True(t, strings.HasPrefix(out.Detail, "Test Site: "), out.Detail)
			}
		})
	}
}

func TestResolveKeepsOtherStatusInDetail(t *testing.T) {
	fake := wptest.New(t)
	fake.SetStatusCode(http.StatusBadGateway)

	out := newResolver().Resolve(context.Background(), siteFor(fake))
	assert.Equal(t, api.StatusNoPlugin, out.Status)
	assert.Equal(t, http.StatusBadGateway, out.HTTPStatus)
	assert.Contains(t, out.Detail, "Bad Gateway")
}

func TestResolveNoPluginDescribesHost(t *testing.T) {
	fake := wptest.New(t)
	fake.SetStatusCode(http.StatusNotFound)

	out := newResolver().Resolve(context.Background(), siteFor(fake))
	assert.Equal(t, api.StatusNoPlugin, out.Status)
	assert.Equal(t, "Test Site: companion plugin not installed", out.Detail)
}

func TestResolveNoPluginWithRegisteredNamespace(t *testing.T) {
	prober := staticProber{
		discovery: wpapi.Discovery{Name: "Blog", Namespaces: []string{"wp/v2", "wp-manager/v1"}},
		status:    gateway.Result{Status: http.StatusNotFound},
	}

	out := NewResolver(prober, nil).Resolve(context.Background(), api.Site{ID: "a"})
	assert.Equal(t, api.StatusNoPlugin, out.Status)
	assert.Equal(t, "Blog: companion plugin registered but its status endpoint is missing", out.Detail)
}

type staticProber struct {
	discovery wpapi.Discovery
	status    gateway.Result
}

func (p staticProber) Discover(ctx context.Context, siteURL string) (wpapi.Discovery, gateway.Result) {
	return p.discovery, gateway.Result{OK: true, Status: http.StatusOK}
}

func (p staticProber) Status(ctx context.Context, site api.Site) (api.SiteMeta, gateway.Result) {
	return api.SiteMeta{}, p.status
}

type panickingProber struct{}

func (panickingProber) Discover(ctx context.Context, siteURL string) (wpapi.Discovery, gateway.Result) {
	return wpapi.Discovery{}, gateway.Result{OK: true, Status: http.StatusOK}
}

func (panickingProber) Status(ctx context.Context, site api.Site) (api.SiteMeta, gateway.Result) {
	panic("boom")
}

func TestResolveRecoversPanic(t *testing.T) {
	out := NewResolver(panickingProber{}, nil).Resolve(context.Background(), api.Site{ID: "p"})
	assert.Equal(t, api.StatusOffline, out.Status)
	assert.Nil(t, out.Meta)
}

func TestResolveCancelledContextIsOffline(t *testing.T) {
	fake := wptest.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newResolver().Resolve(ctx, siteFor(fake))
	assert.Equal(t, api.StatusOffline, out.Status)
}

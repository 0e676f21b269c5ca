package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/wptest"
)

type stubCatalog struct {
	plugins []api.CatalogPlugin
	err     error
}

func (s stubCatalog) SearchPlugins(ctx context.Context, query string) ([]api.CatalogPlugin, error) {
	return s.plugins, s.err
}

func (s stubCatalog) SearchThemes(ctx context.Context, query string) ([]api.CatalogTheme, error) {
	return []api.CatalogTheme{}, s.err
}

type testAPI struct {
	server   *httptest.Server
	registry *Registry
}

func newTestAPI(t *testing.T, catalog CatalogSearcher) *testAPI {
	t.Helper()
	hub := NewEventHub()
	reg := newTestRegistry(t, nil, nil, RegistryConfig{Events: hub})
	coord := NewCoordinator(reg, companionClient(), quietLogger(), CoordinatorConfig{})
	if catalog == nil {
		catalog = stubCatalog{}
	}
	h := NewHandler(reg, coord, catalog, hub, quietLogger())
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, registry: reg}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*http.Response, api.APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out api.APIResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestSiteLifecycleOverHTTP(t *testing.T) {
	a := newTestAPI(t, nil)
	fake := wptest.New(t)

	body := `{"name":"Shop","url":"` + fake.URL() + `/","api_key":"` + fake.Key + `","api_secret":"` + fake.Secret + `"}`
	resp, out := a.do(t, http.MethodPost, "/sites", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Site added successfully", out.Message)
	created := out.Data.(map[string]any)
	id := created["id"].(string)
	assert.Equal(t, "pending", created["status"])
	assert.NotContains(t, created, "api_secret")
	a.registry.Wait()

	resp, out = a.do(t, http.MethodGet, "/sites", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sites := out.Data.([]any)
	require.Len(t, sites, 1)
	assert.Equal(t, "online", sites[0].(map[string]any)["status"])

	resp, out = a.do(t, http.MethodPatch, "/sites/"+id, `{"name":"Storefront"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Storefront", out.Data.(map[string]any)["name"])

	resp, _ = a.do(t, http.MethodPost, "/sites/"+id+"/refresh", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/sites/"+id+"/select", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, out = a.do(t, http.MethodGet, "/sites/selected", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, out.Data.(map[string]any)["id"])

	resp, out = a.do(t, http.MethodDelete, "/sites/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Site deleted successfully", out.Message)
	resp, out = a.do(t, http.MethodDelete, "/sites/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Site already absent", out.Message)

	resp, _ = a.do(t, http.MethodGet, "/sites/selected", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSiteErrorsOverHTTP(t *testing.T) {
	a := newTestAPI(t, nil)

	resp, _ := a.do(t, http.MethodPost, "/sites", `{"name":"","url":"https://a.example.com"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/sites", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, http.MethodGet, "/sites/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPatch, "/sites/missing", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/sites/missing/refresh", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.do(t, http.MethodPost, "/sites/missing/select", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = a.do(t, http.MethodGet, "/plugins?site=missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInstallOverHTTP(t *testing.T) {
	a := newTestAPI(t, nil)
	fake := wptest.New(t)
	site := addAndSettle(t, a.registry, fake, "Install")

	resp, _ := a.do(t, http.MethodPost, "/plugins/install", `{"slug":" ","site_ids":["x"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = a.do(t, http.MethodPost, "/plugins/install", `{"slug":"akismet","site_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out := a.do(t, http.MethodPost, "/themes/install", `{"slug":"astra","site_ids":["`+site.ID+`","missing"]}`)
	a.registry.Wait()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := out.Data.([]any)
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0].(map[string]any)["success"])
	assert.Equal(t, MsgSiteNotFound, results[1].(map[string]any)["message"])
	assert.Equal(t, []string{"astra"}, fake.Installed())
}

func TestPluginActionsOverHTTP(t *testing.T) {
	a := newTestAPI(t, nil)
	fake := wptest.New(t)
	fake.SetPlugins([]api.PluginInfo{plugin("akismet", true)})
	site := addAndSettle(t, a.registry, fake, "Plugins")

	resp, out := a.do(t, http.MethodGet, "/plugins", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := out.Data.(map[string]any)
	require.Len(t, list["plugins"].([]any), 1)

	resp, _ = a.do(t, http.MethodPost, "/plugins/update", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = a.do(t, http.MethodPost, "/plugins/update", `{"items":[{"site_id":"`+site.ID+`","slug":"akismet"}]}`)
	a.registry.Wait()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := out.Data.(map[string]any)
	assert.Equal(t, true, report["results"].([]any)[0].(map[string]any)["success"])
	assert.Equal(t, false, report["plugins"].([]any)[0].(map[string]any)["updateAvailable"])

	resp, _ = a.do(t, http.MethodPost, "/plugins/akismet/deactivate?site="+site.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = a.do(t, http.MethodPost, "/plugins/unknown/activate?site="+site.ID, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	fake.Close()
	resp, _ = a.do(t, http.MethodGet, "/sites/"+site.ID+"/users", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestCatalogOverHTTP(t *testing.T) {
	a := newTestAPI(t, stubCatalog{plugins: []api.CatalogPlugin{{Name: "Akismet", Slug: "akismet"}}})
	resp, out := a.do(t, http.MethodGet, "/catalog/plugins?q=spam", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Data.([]any), 1)

	broken := newTestAPI(t, stubCatalog{err: errors.New("directory unavailable")})
	resp, _ = broken.do(t, http.MethodGet, "/catalog/themes?q=astra", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSummaryOverHTTP(t *testing.T) {
	a := newTestAPI(t, nil)
	fake := wptest.New(t)
	fake.SetMeta(api.SiteMeta{Updates: api.UpdateSummary{Plugins: 3}})
	addAndSettle(t, a.registry, fake, "Summary")

	resp, out := a.do(t, http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := out.Data.(map[string]any)
	assert.Equal(t, float64(1), summary["total"])
	assert.Equal(t, float64(3), summary["updates_available"].(map[string]any)["plugins"])
}

func TestEventStream(t *testing.T) {
	a := newTestAPI(t, nil)
	fake := wptest.New(t)

	wsURL := "ws" + strings.TrimPrefix(a.server.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snapshot SiteEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, EventSnapshot, snapshot.Type)
	assert.Empty(t, snapshot.Sites)

	site, err := a.registry.Add(context.Background(), fake.Credentials("Streamed"))
	require.NoError(t, err)

	var added SiteEvent
	require.NoError(t, conn.ReadJSON(&added))
	assert.Equal(t, EventSiteAdded, added.Type)
	assert.Equal(t, site.ID, added.SiteID)
	require.NotNil(t, added.Site)
	assert.Equal(t, "Streamed", added.Site.Name)

	a.registry.Wait()
}

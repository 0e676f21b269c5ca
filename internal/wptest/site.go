// Package wptest runs a scriptable fake WordPress site exposing the REST
// index and the companion plugin namespace.
package wptest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wpfleet/wpfleet/internal/api"
)

const (
	DefaultKey    = "test-key"
	DefaultSecret = "test-secret"
)

// Site is a fake WordPress host. All setters are safe for concurrent use
// with in-flight requests.
type Site struct {
	Server *httptest.Server
	Key    string
	Secret string

	mu              sync.Mutex
	discoveryStatus int
	statusCode      int
	meta            api.SiteMeta
	plugins         []api.PluginInfo
	themes          []api.ThemeInfo
	users           []api.SiteUser
	stats           api.SiteStats
	failUpdates     map[string]int
	installStatus   int
	installed       []string
	gate            chan struct{}
	calls           map[string]int
}

// New starts a fake site that is closed when the test ends.
func New(t testing.TB) *Site {
	t.Helper()
	s := &Site{
		Key:         DefaultKey,
		Secret:      DefaultSecret,
		meta:        api.SiteMeta{WPVersion: "6.5.2", PHPVersion: "8.2.0", ActiveTheme: "Twenty Twenty-Four"},
		failUpdates: map[string]int{},
		calls:       map[string]int{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Site) URL() string { return s.Server.URL }

// Close stops the server. Later requests see a refused connection.
func (s *Site) Close() { s.Server.Close() }

// Credentials returns a site record pointing at this fake.
func (s *Site) Credentials(name string) api.SiteDraft {
	return api.SiteDraft{Name: name, URL: s.URL(), APIKey: s.Key, APISecret: s.Secret}
}

// SetDiscoveryStatus makes GET /wp-json/ answer with code.
func (s *Site) SetDiscoveryStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveryStatus = code
}

// SetStatusCode forces GET /status to fail with code. Zero restores success.
func (s *Site) SetStatusCode(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCode = code
}

func (s *Site) SetMeta(meta api.SiteMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
}

func (s *Site) SetPlugins(plugins []api.PluginInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plugins = append([]api.PluginInfo(nil), plugins...)
}

func (s *Site) SetThemes(themes []api.ThemeInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.themes = append([]api.ThemeInfo(nil), themes...)
}

func (s *Site) SetUsers(users []api.SiteUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
}

func (s *Site) SetStats(stats api.SiteStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

// FailUpdate makes the per-item update of slug answer with code.
func (s *Site) FailUpdate(slug string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates[slug] = code
}

// FailInstall makes every install answer with code.
func (s *Site) FailInstall(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installStatus = code
}

// Hold blocks GET /status until the returned release func is called or the
// request is cancelled.
func (s *Site) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls counts requests by "METHOD /path".
func (s *Site) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *Site) Plugins() []api.PluginInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.PluginInfo(nil), s.plugins...)
}

func (s *Site) Themes() []api.ThemeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.ThemeInfo(nil), s.themes...)
}

func (s *Site) Installed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.installed...)
}

func (s *Site) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Get("/wp-json/", s.handleDiscovery)
	r.Get("/wp-json", s.handleDiscovery)

	r.Route("/wp-json/wp-manager/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/status", s.handleStatus)
		r.Get("/users", s.handleUsers)
		r.Get("/stats", s.handleStats)
		r.Post("/admin-login", s.handleAdminLogin)

		r.Get("/plugins", s.handlePlugins)
		r.Post("/plugins/update-all", s.handleUpdateAll(api.KindPlugin))
		r.Post("/plugins/install", s.handleInstall(api.KindPlugin))
		r.Post("/plugins/{slug}/update", s.handleUpdate(api.KindPlugin))
		r.Post("/plugins/{slug}/activate", s.handlePluginActive(true))
		r.Post("/plugins/{slug}/deactivate", s.handlePluginActive(false))

		r.Get("/themes", s.handleThemes)
		r.Post("/themes/update-all", s.handleUpdateAll(api.KindTheme))
		r.Post("/themes/install", s.handleInstall(api.KindTheme))
		r.Post("/themes/{slug}/update", s.handleUpdate(api.KindTheme))
		r.Post("/themes/{slug}/activate", s.handleThemeActivate)
	})
	return r
}

func (s *Site) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Site) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-WP-Manager-Key") != s.Key || r.Header.Get("X-WP-Manager-Secret") != s.Secret {
			writeError(w, http.StatusForbidden, "rest_forbidden", "Invalid API credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Site) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	code := s.discoveryStatus
	pluginMissing := s.statusCode == http.StatusNotFound
	s.mu.Unlock()
	if code != 0 && code != http.StatusOK {
		writeError(w, code, "unavailable", http.StatusText(code))
		return
	}
	namespaces := []string{"oembed/1.0", "wp-manager/v1", "wp/v2"}
	if pluginMissing {
		namespaces = []string{"oembed/1.0", "wp/v2"}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "Test Site",
		"description": "Just another WordPress site",
		"url":         s.URL(),
		"home":        s.URL(),
		"namespaces":  namespaces,
	})
}

func (s *Site) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	gate := s.gate
	code := s.statusCode
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	meta := s.meta
	meta.PluginCount = len(s.plugins)
	if meta.PluginCount == 0 {
		meta.PluginCount = s.meta.PluginCount
	}
	meta.ThemeCount = len(s.themes)
	if meta.ThemeCount == 0 {
		meta.ThemeCount = s.meta.ThemeCount
	}
	s.mu.Unlock()

	if code != 0 {
		writeError(w, code, "rest_no_route", http.StatusText(code))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Site) handlePlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Plugins())
}

func (s *Site) handleThemes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Themes())
}

func (s *Site) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := s.users
	s.mu.Unlock()
	if users == nil {
		users = []api.SiteUser{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Site) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

func (s *Site) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"login_url":  s.URL() + "/wp-login.php?wpm_token=one-time",
		"expires_in": 60,
	})
}

func (s *Site) handleUpdate(kind api.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		s.mu.Lock()
		defer s.mu.Unlock()

		if code, ok := s.failUpdates[slug]; ok {
			writeError(w, code, "update_failed", "Update failed")
			return
		}
		if !s.upgradeLocked(kind, slug) {
			writeError(w, http.StatusNotFound, string(kind)+"_not_found", "Not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, string(kind): slug})
	}
}

func (s *Site) handleUpdateAll(kind api.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		result := api.BulkUpdateResult{Updated: []string{}, Failed: []string{}}
		for _, slug := range s.pendingLocked(kind) {
			if _, failing := s.failUpdates[slug]; failing {
				result.Failed = append(result.Failed, slug)
				continue
			}
			s.upgradeLocked(kind, slug)
			result.Updated = append(result.Updated, slug)
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Site) handleInstall(kind api.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Slug string `json:"slug"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Slug == "" {
			writeError(w, http.StatusBadRequest, "missing_slug", "Slug is required")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.installStatus != 0 {
			writeError(w, s.installStatus, "install_failed", "Installation failed")
			return
		}
		s.installed = append(s.installed, body.Slug)
		if kind == api.KindTheme {
			s.themes = append(s.themes, api.ThemeInfo{Name: body.Slug, Slug: body.Slug, Version: "1.0.0", Status: "inactive"})
		} else {
			s.plugins = append(s.plugins, api.PluginInfo{Name: body.Slug, Slug: body.Slug, Version: "1.0.0", Status: "inactive"})
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Installed successfully"})
	}
}

func (s *Site) handlePluginActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.plugins {
			if s.plugins[i].Slug == slug {
				s.plugins[i].Status = "inactive"
				if active {
					s.plugins[i].Status = "active"
				}
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "plugin": slug})
				return
			}
		}
		writeError(w, http.StatusNotFound, "plugin_not_found", "Plugin not found")
	}
}

func (s *Site) handleThemeActivate(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.themes {
		if s.themes[i].Slug == slug {
			found = true
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "theme_not_found", "Theme not found")
		return
	}
	for i := range s.themes {
		s.themes[i].Status = "inactive"
		if s.themes[i].Slug == slug {
			s.themes[i].Status = "active"
			s.meta.ActiveTheme = s.themes[i].Name
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "theme": slug})
}

func (s *Site) upgradeLocked(kind api.ItemKind, slug string) bool {
	if kind == api.KindTheme {
		for i := range s.themes {
			if s.themes[i].Slug == slug {
				if s.themes[i].UpdateAvailable {
					s.themes[i].Version = s.themes[i].LatestVersion
				}
				s.themes[i].UpdateAvailable = false
				return true
			}
		}
		return false
	}
	for i := range s.plugins {
		if s.plugins[i].Slug == slug {
			if s.plugins[i].UpdateAvailable {
				s.plugins[i].Version = s.plugins[i].LatestVersion
			}
			s.plugins[i].UpdateAvailable = false
			return true
		}
	}
	return false
}

func (s *Site) pendingLocked(kind api.ItemKind) []string {
	var slugs []string
	if kind == api.KindTheme {
		for _, theme := range s.themes {
			if theme.UpdateAvailable {
				slugs = append(slugs, theme.Slug)
			}
		}
		return slugs
	}
	for _, plugin := range s.plugins {
		if plugin.UpdateAvailable {
			slugs = append(slugs, plugin.Slug)
		}
	}
	return slugs
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, message string) {
	writeJSON(w, code, map[string]any{
		"code":    errCode,
		"message": message,
		"data":    map[string]int{"status": code},
	})
}

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/wpfleet/wpfleet/internal/api"
)

// CatalogSearcher looks up items in the public plugin and theme directories.
type CatalogSearcher interface {
	SearchPlugins(ctx context.Context, query string) ([]api.CatalogPlugin, error)
	SearchThemes(ctx context.Context, query string) ([]api.CatalogTheme, error)
}

// Handler handles HTTP requests for the controller.
type Handler struct {
	Registry    *Registry
	Coordinator *Coordinator
	Catalog     CatalogSearcher
	Events      *EventHub
	Logger      *slog.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates a new controller handler.
func NewHandler(registry *Registry, coordinator *Coordinator, catalog CatalogSearcher, events *EventHub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Registry:    registry,
		Coordinator: coordinator,
		Catalog:     catalog,
		Events:      events,
		Logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes returns the /api/v1 router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/summary", h.Summary)
	r.Get("/events", h.StreamEvents)

	r.Route("/sites", func(r chi.Router) {
		r.Get("/", h.ListSites)
		r.Post("/", h.AddSite)
		r.Post("/refresh", h.RefreshAll)
		r.Get("/selected", h.GetSelected)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSite)
			r.Patch("/", h.UpdateSite)
			r.Delete("/", h.DeleteSite)
			r.Post("/refresh", h.RefreshSite)
			r.Post("/select", h.SelectSite)
			r.Get("/users", h.SiteUsers)
			r.Get("/stats", h.SiteStats)
			r.Post("/admin-login", h.AdminLogin)
			r.Post("/plugins/update-all", h.UpdateAllOnSite(api.KindPlugin))
			r.Post("/themes/update-all", h.UpdateAllOnSite(api.KindTheme))
		})
	})

	r.Route("/plugins", func(r chi.Router) {
		r.Get("/", h.ListPlugins)
		r.Post("/update", h.UpdateItems(api.KindPlugin))
		r.Post("/install", h.Install(api.KindPlugin))
		r.Post("/{slug}/activate", h.SetPluginActive(true))
		r.Post("/{slug}/deactivate", h.SetPluginActive(false))
	})

	r.Route("/themes", func(r chi.Router) {
		r.Get("/", h.ListThemes)
		r.Post("/update", h.UpdateItems(api.KindTheme))
		r.Post("/install", h.Install(api.KindTheme))
		r.Post("/{slug}/activate", h.ActivateTheme)
	})

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/plugins", h.SearchPlugins)
		r.Get("/themes", h.SearchThemes)
	})

	return r
}

// sitePatchRequest is the user-editable subset of a site.
type sitePatchRequest struct {
	Name      *string         `json:"name"`
	URL       *string         `json:"url"`
	APIKey    *string         `json:"api_key"`
	APISecret *string         `json:"api_secret"`
	Client    *api.ClientInfo `json:"client"`
}

type itemsRequest struct {
	Items []api.ItemRef `json:"items"`
}

type installRequest struct {
	Slug    string   `json:"slug"`
	SiteIDs []string `json:"site_ids"`
}

// AddSite handles POST /api/v1/sites
func (h *Handler) AddSite(w http.ResponseWriter, r *http.Request) {
	var draft api.SiteDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	site, err := h.Registry.Add(r.Context(), draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, "Site added successfully", site.View())
}

// ListSites handles GET /api/v1/sites
func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "", h.Registry.Views())
}

// GetSite handles GET /api/v1/sites/{id}
func (h *Handler) GetSite(w http.ResponseWriter, r *http.Request) {
	site, ok := h.Registry.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, ErrSiteNotFound.Error(), http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, "", site.View())
}

// UpdateSite handles PATCH /api/v1/sites/{id}
func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	var req sitePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	site, ok, err := h.Registry.Update(r.Context(), chi.URLParam(r, "id"), api.SitePatch{
		Name:      req.Name,
		URL:       req.URL,
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
		Client:    req.Client,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		http.Error(w, ErrSiteNotFound.Error(), http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, "Site updated successfully", site.View())
}

// DeleteSite handles DELETE /api/v1/sites/{id}
func (h *Handler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Registry.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	message := "Site deleted successfully"
	if !removed {
		message = "Site already absent"
	}
	respond(w, http.StatusOK, message, nil)
}

// RefreshSite handles POST /api/v1/sites/{id}/refresh
func (h *Handler) RefreshSite(w http.ResponseWriter, r *http.Request) {
	site, err := h.Registry.RefreshSiteStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, "Site refreshed", site.View())
}

// RefreshAll handles POST /api/v1/sites/refresh
func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	sites := h.Registry.RefreshAll(r.Context())
	views := make([]api.SiteView, 0, len(sites))
	for _, site := range sites {
		views = append(views, site.View())
	}
	respond(w, http.StatusOK, "All sites refreshed", views)
}

// SelectSite handles POST /api/v1/sites/{id}/select
func (h *Handler) SelectSite(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Select(chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, "Site selected", nil)
}

// GetSelected handles GET /api/v1/sites/selected
func (h *Handler) GetSelected(w http.ResponseWriter, r *http.Request) {
	site, ok := h.Registry.Selected()
	if !ok {
		http.Error(w, "no site selected", http.StatusNotFound)
		return
	}
	respond(w, http.StatusOK, "", site.View())
}

// Summary handles GET /api/v1/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "", h.Registry.Summary())
}

// SiteUsers handles GET /api/v1/sites/{id}/users
func (h *Handler) SiteUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Coordinator.Users(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, "", users)
}

// SiteStats handles GET /api/v1/sites/{id}/stats
func (h *Handler) SiteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Coordinator.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, "", stats)
}

// AdminLogin handles POST /api/v1/sites/{id}/admin-login
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	loginURL, err := h.Coordinator.AdminLogin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, "Login link expires in about a minute", map[string]string{"login_url": loginURL})
}

// UpdateAllOnSite handles POST /api/v1/sites/{id}/{plugins|themes}/update-all
func (h *Handler) UpdateAllOnSite(kind api.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h.Coordinator.UpdateAllOnSite(r.Context(), chi.URLParam(r, "id"), kind)
		if err != nil {
			h.fail(w, err)
			return
		}
		respond(w, http.StatusOK, "", result)
	}
}

// ListPlugins handles GET /api/v1/plugins?site=
func (h *Handler) ListPlugins(w http.ResponseWriter, r *http.Request) {
	list, err := h.Coordinator.ListPlugins(r.Context(), r.URL.Query().Get("site"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, "", list)
}

// ListThemes handles GET /api/v1/themes?site=
func (h *Handler) ListThemes(w http.ResponseWriter, r *http.Request) {
	list, err := h.Coordinator.ListThemes(r.Context(), r.URL.Query().Get("site"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, "", list)
}

// UpdateItems handles POST /api/v1/{plugins|themes}/update
func (h *Handler) UpdateItems(kind api.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req itemsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Items) == 0 {
			http.Error(w, "items are required", http.StatusBadRequest)
			return
		}
		if kind == api.KindTheme {
			respond(w, http.StatusOK, "", h.Coordinator.UpdateThemes(r.Context(), req.Items))
			return
		}
		respond(w, http.StatusOK, "", h.Coordinator.UpdatePlugins(r.Context(), req.Items))
	}
}

// Install handles POST /api/v1/{plugins|themes}/install
func (h *Handler) Install(kind api.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req installRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		req.Slug = strings.TrimSpace(req.Slug)
		if req.Slug == "" || len(req.SiteIDs) == 0 {
			http.Error(w, "slug and site_ids are required", http.StatusBadRequest)
			return
		}
		respond(w, http.StatusOK, "", h.Coordinator.Install(r.Context(), kind, req.Slug, req.SiteIDs))
	}
}

// SetPluginActive handles POST /api/v1/plugins/{slug}/{activate|deactivate}?site=
func (h *Handler) SetPluginActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := h.Coordinator.SetPluginActive(r.Context(), r.URL.Query().Get("site"), chi.URLParam(r, "slug"), active)
		if err != nil {
			h.fail(w, err)
			return
		}
		respondOutcome(w, outcome)
	}
}

// ActivateTheme handles POST /api/v1/themes/{slug}/activate?site=
func (h *Handler) ActivateTheme(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.Coordinator.ActivateTheme(r.Context(), r.URL.Query().Get("site"), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondOutcome(w, outcome)
}

// SearchPlugins handles GET /api/v1/catalog/plugins?q=
func (h *Handler) SearchPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := h.Catalog.SearchPlugins(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.Logger.Warn("Catalog search failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	respond(w, http.StatusOK, "", plugins)
}

// SearchThemes handles GET /api/v1/catalog/themes?q=
func (h *Handler) SearchThemes(w http.ResponseWriter, r *http.Request) {
	themes, err := h.Catalog.SearchThemes(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.Logger.Warn("Catalog search failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	respond(w, http.StatusOK, "", themes)
}

// StreamEvents handles GET /api/v1/events. It sends a snapshot, then every
// site change until the client goes away.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("Failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.Events.Subscribe()
	defer unsubscribe()

	if err := conn.WriteJSON(SiteEvent{Type: EventSnapshot, Sites: h.Registry.Views(), At: time.Now().UTC()}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	var remote *RemoteError
	switch {
	case errors.Is(err, ErrInvalidSite):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSiteNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &remote):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, context.Canceled):
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		h.Logger.Error("Request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respond(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(api.APIResponse{
		Message: message,
		Data:    data,
	})
}

func respondOutcome(w http.ResponseWriter, outcome api.ItemOutcome) {
	code := http.StatusOK
	if !outcome.Success {
		code = http.StatusBadGateway
	}
	respond(w, code, outcome.Message, outcome)
}

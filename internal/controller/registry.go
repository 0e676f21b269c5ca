package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/status"
	"github.com/wpfleet/wpfleet/internal/store"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidSite  = errors.New("invalid site")
	ErrSiteNotFound = errors.New("site not found")
)

// Resolver classifies a site's connectivity.
type Resolver interface {
	Resolve(ctx context.Context, site api.Site) status.Outcome
}

// RegistryConfig tunes the registry.
type RegistryConfig struct {
	// RefreshConcurrency bounds RefreshAll. 1 refreshes sequentially in list order.
	RefreshConcurrency int
	Events             *EventHub
}

// Registry is the authoritative in-memory list of managed sites, kept in
// sync with a persistence collaborator.
type Registry struct {
	repo     store.SiteRepository
	resolver Resolver
	logger   *slog.Logger
	events   *EventHub
	config   RegistryConfig
	now      func() time.Time

	mu       sync.RWMutex
	sites    []api.Site
	selected string

	// writeMu orders persist-then-replace sequences so memory matches the store.
	writeMu sync.Mutex

	inflight   singleflight.Group
	background sync.WaitGroup
	baseCtx    context.Context
	cancel     context.CancelFunc
}

// NewRegistry creates a registry. Call Load to populate it.
func NewRegistry(repo store.SiteRepository, resolver Resolver, logger *slog.Logger, cfg RegistryConfig) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		repo:     repo,
		resolver: resolver,
		logger:   logger,
		events:   cfg.Events,
		config:   cfg,
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Load replaces the in-memory list with the persisted one. A persistence
// error leaves an empty list and is only logged.
func (r *Registry) Load(ctx context.Context) {
	sites, err := r.repo.LoadSites(ctx)
	if err != nil {
		r.logger.Error("Failed to load sites; starting with an empty list", "error", err)
		sites = nil
	}

	r.mu.Lock()
	r.sites = make([]api.Site, 0, len(sites))
	for _, site := range sites {
		r.sites = append(r.sites, site.Clone())
	}
	if r.indexLocked(r.selected) < 0 {
		r.selected = ""
	}
	snapshot := r.viewsLocked()
	r.mu.Unlock()

	r.logger.Info("Loaded sites", "count", len(snapshot))
	r.events.Publish(SiteEvent{Type: EventSnapshot, Sites: snapshot})
}

// Add persists a new site and schedules its first status refresh without
// waiting for it.
func (r *Registry) Add(ctx context.Context, draft api.SiteDraft) (api.Site, error) {
	draft, err := validateDraft(draft)
	if err != nil {
		return api.Site{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return api.Site{}, fmt.Errorf("generate site id: %w", err)
	}

	site := api.Site{
		ID:        id.String(),
		Name:      draft.Name,
		URL:       draft.URL,
		APIKey:    draft.APIKey,
		APISecret: draft.APISecret,
		Status:    api.StatusPending,
		CreatedAt: r.now().UTC().Truncate(time.Microsecond),
	}
	if draft.Client != nil {
		client := draft.Client.Clone()
		site.Client = &client
	}

	r.writeMu.Lock()
	saved, err := r.repo.SaveSite(ctx, site)
	if err != nil {
		r.writeMu.Unlock()
		return api.Site{}, fmt.Errorf("save site: %w", err)
	}
	r.mu.Lock()
	r.sites = append(r.sites, saved.Clone())
	r.mu.Unlock()
	r.writeMu.Unlock()

	r.logger.Info("Site added", "site_id", saved.ID, "url", saved.URL)
	r.events.Publish(siteEvent(EventSiteAdded, saved))
	r.refreshInBackground(saved.ID)
	return saved.Clone(), nil
}

// Update merges patch into the site, persists it and replaces the in-memory
// record. An unknown id is a logged no-op reported as false.
func (r *Registry) Update(ctx context.Context, id string, patch api.SitePatch) (api.Site, bool, error) {
	patch, err := validatePatch(patch)
	if err != nil {
		return api.Site{}, false, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, ok := r.Get(id); !ok {
		r.logger.Warn("Ignoring update of unknown site", "site_id", id)
		return api.Site{}, false, nil
	}
	if patch.Empty() {
		site, _ := r.Get(id)
		return site, true, nil
	}

	updated, err := r.repo.UpdateSite(ctx, id, patch)
	if err != nil {
		return api.Site{}, false, fmt.Errorf("update site: %w", err)
	}
	if updated == nil {
		r.logger.Warn("Ignoring update of site missing from storage", "site_id", id)
		return api.Site{}, false, nil
	}

	site, ok := r.replace(id, func(api.Site) api.Site { return *updated })
	if !ok {
		return api.Site{}, false, nil
	}
	return site, true, nil
}

// Delete removes the site from storage and memory. Deleting an unknown id is
// a no-op reported as false.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	removed, err := r.repo.DeleteSite(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete site: %w", err)
	}

	r.mu.Lock()
	if idx := r.indexLocked(id); idx >= 0 {
		r.sites = append(r.sites[:idx:idx], r.sites[idx+1:]...)
		removed = true
	}
	if r.selected == id {
		r.selected = ""
	}
	r.mu.Unlock()

	if removed {
		r.logger.Info("Site deleted", "site_id", id)
		r.events.Publish(SiteEvent{Type: EventSiteDeleted, SiteID: id})
	}
	return removed, nil
}

// Select marks a site as the current one. An empty id clears the selection.
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "" && r.indexLocked(id) < 0 {
		return ErrSiteNotFound
	}
	r.selected = id
	return nil
}

// Selected returns the current site, if any.
func (r *Registry) Selected() (api.Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx := r.indexLocked(r.selected); idx >= 0 {
		return r.sites[idx].Clone(), true
	}
	return api.Site{}, false
}

// Get returns a copy of the site with the given id.
func (r *Registry) Get(id string) (api.Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx := r.indexLocked(id); idx >= 0 {
		return r.sites[idx].Clone(), true
	}
	return api.Site{}, false
}

// List returns copies of all sites in insertion order.
func (r *Registry) List() []api.Site {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.Site, 0, len(r.sites))
	for _, site := range r.sites {
		out = append(out, site.Clone())
	}
	return out
}

// Views returns the credential-free form of List.
func (r *Registry) Views() []api.SiteView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewsLocked()
}

// Summary counts sites per status and sums pending updates of online sites.
func (r *Registry) Summary() api.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := api.Summary{Total: len(r.sites), Counts: map[api.SiteStatus]int{}}
	for _, site := range r.sites {
		summary.Counts[site.Status]++
		if site.Status == api.StatusOnline && site.Meta != nil {
			summary.Updates.Plugins += site.Meta.Updates.Plugins
			summary.Updates.Themes += site.Meta.Updates.Themes
			summary.Updates.Core = summary.Updates.Core || site.Meta.Updates.Core
		}
	}
	return summary
}

// Wait blocks until background refreshes scheduled so far have finished.
func (r *Registry) Wait() {
	r.background.Wait()
}

// Close cancels background refreshes and waits for them.
func (r *Registry) Close() {
	r.cancel()
	r.background.Wait()
}

func (r *Registry) refreshInBackground(id string) {
	if r.baseCtx.Err() != nil {
		return
	}
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		if _, err := r.RefreshSiteStatus(r.baseCtx, id); err != nil && !errors.Is(err, ErrSiteNotFound) {
			r.logger.Warn("Initial status refresh did not complete", "site_id", id, "error", err)
		}
	}()
}

// replace swaps the record with id for fn's result and publishes it.
func (r *Registry) replace(id string, fn func(api.Site) api.Site) (api.Site, bool) {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return api.Site{}, false
	}
	next := fn(r.sites[idx].Clone())
	next.ID = id
	r.sites[idx] = next.Clone()
	r.mu.Unlock()

	r.events.Publish(siteEvent(EventSiteUpdated, next))
	return next, true
}

func (r *Registry) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range r.sites {
		if r.sites[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) viewsLocked() []api.SiteView {
	out := make([]api.SiteView, 0, len(r.sites))
	for _, site := range r.sites {
		out = append(out, site.View())
	}
	return out
}

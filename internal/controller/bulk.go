package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/gateway"
	"github.com/wpfleet/wpfleet/internal/wpapi"
	"golang.org/x/sync/errgroup"
)

// Install result messages.
const (
	MsgInstalled     = "Installed successfully"
	MsgInstallFailed = "Installation failed"
	MsgInstallError  = "Installation error"
	MsgSiteNotFound  = "Site not found"
)

// CompanionClient is the companion plugin API used by the coordinator.
type CompanionClient interface {
	Plugins(ctx context.Context, site api.Site) ([]api.PluginInfo, gateway.Result)
	Themes(ctx context.Context, site api.Site) ([]api.ThemeInfo, gateway.Result)
	Users(ctx context.Context, site api.Site) ([]api.SiteUser, gateway.Result)
	Stats(ctx context.Context, site api.Site) (api.SiteStats, gateway.Result)
	UpdateItem(ctx context.Context, site api.Site, kind api.ItemKind, slug string) (wpapi.ActionResult, gateway.Result)
	SetPluginActive(ctx context.Context, site api.Site, slug string, active bool) (wpapi.ActionResult, gateway.Result)
	ActivateTheme(ctx context.Context, site api.Site, slug string) (wpapi.ActionResult, gateway.Result)
	Install(ctx context.Context, site api.Site, kind api.ItemKind, slug string) (wpapi.ActionResult, gateway.Result)
	UpdateAll(ctx context.Context, site api.Site, kind api.ItemKind) (api.BulkUpdateResult, gateway.Result)
	AdminLogin(ctx context.Context, site api.Site) (string, gateway.Result)
}

// RemoteError reports a failed call to one site.
type RemoteError struct {
	SiteID     string
	HTTPStatus int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("site %s: %s", e.SiteID, e.Message)
}

func remoteError(siteID string, res gateway.Result) *RemoteError {
	return &RemoteError{SiteID: siteID, HTTPStatus: res.Status, Message: gateway.Message(res)}
}

// PluginList is a plugin inventory across sites.
type PluginList struct {
	Plugins []api.SitePlugin `json:"plugins"`
	Errors  []api.SiteError  `json:"errors,omitempty"`
}

// ThemeList is a theme inventory across sites.
type ThemeList struct {
	Themes []api.SiteTheme `json:"themes"`
	Errors []api.SiteError `json:"errors,omitempty"`
}

// PluginUpdateReport is the outcome of a batch of plugin updates followed by
// a fresh inventory of the sites involved.
type PluginUpdateReport struct {
	Results []api.ItemOutcome `json:"results"`
	PluginList
}

type ThemeUpdateReport struct {
	Results []api.ItemOutcome `json:"results"`
	ThemeList
}

type CoordinatorConfig struct {
	// Concurrency bounds fan-out of inventory reads and installs.
	Concurrency int
}

// Coordinator drives plugin and theme operations across many sites.
type Coordinator struct {
	registry *Registry
	client   CompanionClient
	logger   *slog.Logger
	config   CoordinatorConfig
}

func NewCoordinator(registry *Registry, client CompanionClient, logger *slog.Logger, cfg CoordinatorConfig) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Coordinator{registry: registry, client: client, logger: logger, config: cfg}
}

// ListPlugins aggregates plugins of one site, or of every online site when
// siteID is empty. Per-site failures are reported, not returned.
func (c *Coordinator) ListPlugins(ctx context.Context, siteID string) (PluginList, error) {
	sites, err := c.targets(siteID)
	if err != nil {
		return PluginList{}, err
	}
	return c.listPlugins(ctx, sites), nil
}

func (c *Coordinator) ListThemes(ctx context.Context, siteID string) (ThemeList, error) {
	sites, err := c.targets(siteID)
	if err != nil {
		return ThemeList{}, err
	}
	return c.listThemes(ctx, sites), nil
}

// UpdatePlugins updates each referenced plugin in order, then re-reads the
// aggregate inventory (every online site plus the sites involved) so update
// flags reflect the sites.
func (c *Coordinator) UpdatePlugins(ctx context.Context, refs []api.ItemRef) PluginUpdateReport {
	results, involved := c.updateItems(ctx, api.KindPlugin, refs)
	report := PluginUpdateReport{Results: results, PluginList: c.listPlugins(ctx, c.refetchScope(involved))}
	c.refreshSites(involved)
	return report
}

func (c *Coordinator) UpdateThemes(ctx context.Context, refs []api.ItemRef) ThemeUpdateReport {
	results, involved := c.updateItems(ctx, api.KindTheme, refs)
	report := ThemeUpdateReport{Results: results, ThemeList: c.listThemes(ctx, c.refetchScope(involved))}
	c.refreshSites(involved)
	return report
}

// UpdateItem updates a single plugin or theme.
func (c *Coordinator) UpdateItem(ctx context.Context, kind api.ItemKind, siteID, slug string) (api.ItemOutcome, error) {
	site, ok := c.registry.Get(siteID)
	if !ok {
		return api.ItemOutcome{}, ErrSiteNotFound
	}
	outcome := itemOutcome(site, slug)(c.client.UpdateItem(ctx, site, kind, slug))
	if outcome.Success {
		c.registry.refreshInBackground(siteID)
	}
	return outcome, nil
}

// UpdateAllOnSite runs the site's own bulk update endpoint.
func (c *Coordinator) UpdateAllOnSite(ctx context.Context, siteID string, kind api.ItemKind) (api.BulkUpdateResult, error) {
	site, ok := c.registry.Get(siteID)
	if !ok {
		return api.BulkUpdateResult{}, ErrSiteNotFound
	}
	result, res := c.client.UpdateAll(ctx, site, kind)
	if !res.OK {
		return api.BulkUpdateResult{}, remoteError(siteID, res)
	}
	c.logger.Info("Bulk update finished", "site_id", siteID, "kind", kind, "updated", len(result.Updated), "failed", len(result.Failed))
	c.registry.refreshInBackground(siteID)
	return result, nil
}

func (c *Coordinator) SetPluginActive(ctx context.Context, siteID, slug string, active bool) (api.ItemOutcome, error) {
	site, ok := c.registry.Get(siteID)
	if !ok {
		return api.ItemOutcome{}, ErrSiteNotFound
	}
	return itemOutcome(site, slug)(c.client.SetPluginActive(ctx, site, slug, active)), nil
}

func (c *Coordinator) ActivateTheme(ctx context.Context, siteID, slug string) (api.ItemOutcome, error) {
	site, ok := c.registry.Get(siteID)
	if !ok {
		return api.ItemOutcome{}, ErrSiteNotFound
	}
	outcome := itemOutcome(site, slug)(c.client.ActivateTheme(ctx, site, slug))
	if outcome.Success {
		c.registry.refreshInBackground(siteID)
	}
	return outcome, nil
}

// Install installs one directory item on every target independently. The
// result holds one entry per distinct target, in the order given.
func (c *Coordinator) Install(ctx context.Context, kind api.ItemKind, slug string, siteIDs []string) []api.InstallResult {
	targets := dedupe(siteIDs)
	results := make([]api.InstallResult, len(targets))

	var g errgroup.Group
	g.SetLimit(c.config.Concurrency)
	for i, siteID := range targets {
		i, siteID := i, siteID
		g.Go(func() error {
			results[i] = c.installOne(ctx, kind, slug, siteID)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, result := range results {
		if result.Success {
			succeeded++
		}
	}
	c.logger.Info("Install finished", "kind", kind, "slug", slug, "targets", len(results), "succeeded", succeeded)
	return results
}

func (c *Coordinator) installOne(ctx context.Context, kind api.ItemKind, slug, siteID string) (result api.InstallResult) {
	result = api.InstallResult{SiteID: siteID, Message: MsgInstallError}
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("Recovered panic during install", "site_id", siteID, "panic", fmt.Sprint(rec))
			result.Success = false
			result.Message = MsgInstallError
		}
	}()

	site, ok := c.registry.Get(siteID)
	if !ok {
		result.Message = MsgSiteNotFound
		return result
	}
	result.SiteName = site.Name

	action, res := c.client.Install(ctx, site, kind, slug)
	switch {
	case res.OK && action.Success:
		result.Success = true
		result.Message = MsgInstalled
		c.registry.refreshInBackground(siteID)
	case res.Failed():
		result.Message = MsgInstallError
	default:
		result.Message = MsgInstallFailed
	}
	return result
}

// AdminLogin returns a one-time wp-admin login URL for the site.
func (c *Coordinator) AdminLogin(ctx context.Context, siteID string) (string, error) {
	site, ok := c.registry.Get(siteID)
	if !ok {
		return "", ErrSiteNotFound
	}
	loginURL, res := c.client.AdminLogin(ctx, site)
	if !res.OK {
		return "", remoteError(siteID, res)
	}
	return loginURL, nil
}

func (c *Coordinator) Users(ctx context.Context, siteID string) ([]api.SiteUser, error) {
	site, ok := c.registry.Get(siteID)
	if !ok {
		return nil, ErrSiteNotFound
	}
	users, res := c.client.Users(ctx, site)
	if !res.OK {
		return nil, remoteError(siteID, res)
	}
	return users, nil
}

func (c *Coordinator) Stats(ctx context.Context, siteID string) (api.SiteStats, error) {
	site, ok := c.registry.Get(siteID)
	if !ok {
		return api.SiteStats{}, ErrSiteNotFound
	}
	stats, res := c.client.Stats(ctx, site)
	if !res.OK {
		return api.SiteStats{}, remoteError(siteID, res)
	}
	return stats, nil
}

// updateItems runs the updates and returns the ids of the sites touched, in
// first-seen order.
func (c *Coordinator) updateItems(ctx context.Context, kind api.ItemKind, refs []api.ItemRef) ([]api.ItemOutcome, []string) {
	results := make([]api.ItemOutcome, 0, len(refs))
	var involved []string
	seen := map[string]bool{}

	for _, ref := range refs {
		site, ok := c.registry.Get(ref.SiteID)
		if !ok {
			results = append(results, api.ItemOutcome{SiteID: ref.SiteID, Slug: ref.Slug, Message: MsgSiteNotFound})
			continue
		}
		if !seen[site.ID] {
			seen[site.ID] = true
			involved = append(involved, site.ID)
		}

		outcome := itemOutcome(site, ref.Slug)(c.client.UpdateItem(ctx, site, kind, ref.Slug))
		if !outcome.Success {
			c.logger.Warn("Item update failed", "site_id", site.ID, "kind", kind, "slug", ref.Slug, "http_status", outcome.HTTPStatus)
		}
		results = append(results, outcome)
	}
	return results, involved
}

// refetchScope lists every online site plus the given ones, in registry
// order. It must run before the involved sites are marked pending.
func (c *Coordinator) refetchScope(ids []string) []api.Site {
	involved := make(map[string]bool, len(ids))
	for _, id := range ids {
		involved[id] = true
	}
	var sites []api.Site
	for _, site := range c.registry.List() {
		if site.Status == api.StatusOnline || involved[site.ID] {
			sites = append(sites, site)
		}
	}
	return sites
}

func (c *Coordinator) refreshSites(ids []string) {
	for _, id := range ids {
		c.registry.refreshInBackground(id)
	}
}

func (c *Coordinator) listPlugins(ctx context.Context, sites []api.Site) PluginList {
	perSite := make([][]api.SitePlugin, len(sites))
	failures := make([]*api.SiteError, len(sites))

	c.fanOut(sites, func(i int, site api.Site) {
		plugins, res := c.client.Plugins(ctx, site)
		if !res.OK {
			failures[i] = siteError(site, res)
			return
		}
		for _, plugin := range plugins {
			perSite[i] = append(perSite[i], api.SitePlugin{PluginInfo: plugin, SiteID: site.ID, SiteName: site.Name})
		}
	})

	list := PluginList{Plugins: []api.SitePlugin{}}
	for i := range sites {
		list.Plugins = append(list.Plugins, perSite[i]...)
		if failures[i] != nil {
			list.Errors = append(list.Errors, *failures[i])
		}
	}
	return list
}

func (c *Coordinator) listThemes(ctx context.Context, sites []api.Site) ThemeList {
	perSite := make([][]api.SiteTheme, len(sites))
	failures := make([]*api.SiteError, len(sites))

	c.fanOut(sites, func(i int, site api.Site) {
		themes, res := c.client.Themes(ctx, site)
		if !res.OK {
			failures[i] = siteError(site, res)
			return
		}
		for _, theme := range themes {
			perSite[i] = append(perSite[i], api.SiteTheme{ThemeInfo: theme, SiteID: site.ID, SiteName: site.Name})
		}
	})

	list := ThemeList{Themes: []api.SiteTheme{}}
	for i := range sites {
		list.Themes = append(list.Themes, perSite[i]...)
		if failures[i] != nil {
			list.Errors = append(list.Errors, *failures[i])
		}
	}
	return list
}

func (c *Coordinator) fanOut(sites []api.Site, fn func(i int, site api.Site)) {
	var g errgroup.Group
	g.SetLimit(c.config.Concurrency)
	for i, site := range sites {
		i, site := i, site
		g.Go(func() error {
			fn(i, site)
			return nil
		})
	}
	_ = g.Wait()
}

// targets resolves one site, or all online sites when siteID is empty.
func (c *Coordinator) targets(siteID string) ([]api.Site, error) {
	if siteID != "" {
		site, ok := c.registry.Get(siteID)
		if !ok {
			return nil, ErrSiteNotFound
		}
		return []api.Site{site}, nil
	}
	var online []api.Site
	for _, site := range c.registry.List() {
		if site.Status == api.StatusOnline {
			online = append(online, site)
		}
	}
	return online, nil
}

func itemOutcome(site api.Site, slug string) func(wpapi.ActionResult, gateway.Result) api.ItemOutcome {
	return func(action wpapi.ActionResult, res gateway.Result) api.ItemOutcome {
		outcome := api.ItemOutcome{
			SiteID:     site.ID,
			SiteName:   site.Name,
			Slug:       slug,
			HTTPStatus: res.Status,
			Success:    res.OK && action.Success,
			Message:    action.Message,
		}
		if res.OK && !action.Success && outcome.Message == "" {
			outcome.Message = "site reported failure"
		}
		return outcome
	}
}

func siteError(site api.Site, res gateway.Result) *api.SiteError {
	return &api.SiteError{SiteID: site.ID, SiteName: site.Name, HTTPStatus: res.Status, Message: gateway.Message(res)}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

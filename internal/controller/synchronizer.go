package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/status"
	"golang.org/x/sync/errgroup"
)

// RefreshSiteStatus marks the site pending, resolves its status and stores
// the outcome. Concurrent calls for the same id share one resolution. The
// site never stays pending: a cancelled refresh restores the previous state.
func (r *Registry) RefreshSiteStatus(ctx context.Context, id string) (api.Site, error) {
	result, err, _ := r.inflight.Do(id, func() (any, error) {
		return r.refresh(ctx, id)
	})
	site, _ := result.(api.Site)
	return site, err
}

// RefreshAll refreshes every site with bounded parallelism. One site's
// failure never affects another's result.
func (r *Registry) RefreshAll(ctx context.Context) []api.Site {
	ids := r.ids()

	var g errgroup.Group
	g.SetLimit(r.config.RefreshConcurrency)
	for _, id := range ids {
		id := id
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := r.RefreshSiteStatus(ctx, id); err != nil && !errors.Is(err, ErrSiteNotFound) {
				r.logger.Warn("Site refresh did not complete", "site_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("Refreshed all sites", "count", len(ids))
	return r.List()
}

func (r *Registry) refresh(ctx context.Context, id string) (api.Site, error) {
	previous, ok := r.markPending(id)
	if !ok {
		return api.Site{}, ErrSiteNotFound
	}

	outcome := r.resolve(ctx, previous)
	if err := ctx.Err(); err != nil {
		return r.restore(ctx, id, previous), err
	}
	if !outcome.Status.Terminal() {
		r.logger.Error("Resolver returned a non-resting status", "site_id", id, "status", outcome.Status)
		outcome = status.Outcome{Status: api.StatusOffline, Detail: fmt.Sprintf("invalid status %q", outcome.Status)}
	}

	site, ok := r.applySync(ctx, id, syncPatch(outcome, r.now().UTC().Truncate(time.Microsecond)))
	if !ok {
		r.logger.Info("Site deleted during status check", "site_id", id)
		return api.Site{}, ErrSiteNotFound
	}
	r.logger.Info("Site status resolved",
		"site_id", id,
		"status", outcome.Status,
		"http_status", outcome.HTTPStatus,
		"detail", outcome.Detail,
	)
	return site, nil
}

func (r *Registry) resolve(ctx context.Context, site api.Site) (out status.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered panic during status refresh", "site_id", site.ID, "panic", fmt.Sprint(rec))
			out = status.Outcome{Status: api.StatusOffline, Detail: "status check failed unexpectedly"}
		}
	}()
	return r.resolver.Resolve(ctx, site)
}

// syncPatch applies the metadata rule: online overwrites, offline and error
// clear, no-plugin keeps what was cached.
func syncPatch(outcome status.Outcome, at time.Time) api.SitePatch {
	resolved := outcome.Status
	detail := outcome.Detail
	lastSync := at
	patch := api.SitePatch{Status: &resolved, StatusDetail: &detail, LastSync: &lastSync}
	switch resolved {
	case api.StatusOnline:
		if outcome.Meta != nil {
			meta := *outcome.Meta
			patch.Meta = &meta
		} else {
			patch.ClearMeta = true
		}
	case api.StatusOffline, api.StatusError:
		patch.ClearMeta = true
	}
	return patch
}

// markPending flips the in-memory status to pending. It is never persisted.
func (r *Registry) markPending(id string) (api.Site, bool) {
	var previous api.Site
	_, ok := r.replace(id, func(site api.Site) api.Site {
		previous = site.Clone()
		site.Status = api.StatusPending
		return site
	})
	return previous, ok
}

// restore undoes markPending after cancellation. A site that never had a
// resting status becomes offline.
func (r *Registry) restore(ctx context.Context, id string, previous api.Site) api.Site {
	if !previous.Status.Terminal() {
		offline := api.StatusOffline
		detail := "status check cancelled"
		site, _ := r.applySync(ctx, id, api.SitePatch{Status: &offline, StatusDetail: &detail, ClearMeta: true})
		return site
	}
	site, _ := r.replace(id, func(site api.Site) api.Site {
		if site.Status != api.StatusPending {
			return site
		}
		site.Status = previous.Status
		site.StatusDetail = previous.StatusDetail
		site.Meta = previous.Clone().Meta
		return site
	})
	return site
}

// applySync persists a synchronizer patch. When persistence fails the
// in-memory transition still happens so the site cannot stick at pending.
func (r *Registry) applySync(ctx context.Context, id string, patch api.SitePatch) (api.Site, bool) {
	writeCtx := context.WithoutCancel(ctx)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, ok := r.Get(id); !ok {
		// Deleted while the probe was running.
		return api.Site{}, false
	}

	persisted, err := r.repo.UpdateSite(writeCtx, id, patch)
	if err != nil {
		r.logger.Error("Failed to persist site status; keeping in-memory state", "site_id", id, "error", err)
	}
	if err == nil && persisted == nil {
		r.logger.Warn("Site vanished from storage during refresh", "site_id", id)
	}

	return r.replace(id, func(site api.Site) api.Site {
		// Credentials and user fields in memory stay authoritative.
		return patch.Apply(site)
	})
}

func (r *Registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sites))
	for _, site := range r.sites {
		ids = append(ids, site.ID)
	}
	return ids
}

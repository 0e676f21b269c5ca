// Package status classifies a site into one of the resting statuses with a
// two-step probe: the public REST index, then the companion status endpoint.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/gateway"
	"github.com/wpfleet/wpfleet/internal/wpapi"
)

// Prober is the subset of the companion client used for probing.
type Prober interface {
	Discover(ctx context.Context, siteURL string) (wpapi.Discovery, gateway.Result)
	Status(ctx context.Context, site api.Site) (api.SiteMeta, gateway.Result)
}

// Outcome is the result of one resolution. Status is never pending.
type Outcome struct {
	Status api.SiteStatus
	// Meta is set only for online sites.
	Meta       *api.SiteMeta
	HTTPStatus int
	Detail     string
}

type Resolver struct {
	prober Prober
	logger *slog.Logger
}

func NewResolver(prober Prober, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{prober: prober, logger: logger}
}

// Resolve probes site and maps the answers to a status. A panic anywhere in
// the probes yields offline.
func (r *Resolver) Resolve(ctx context.Context, site api.Site) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered panic while resolving site status", "site_id", site.ID, "panic", fmt.Sprint(rec))
			out = Outcome{Status: api.StatusOffline, Detail: "status check failed unexpectedly"}
		}
	}()

	discovery, base := r.prober.Discover(ctx, site.URL)
	if !base.OK {
		detail := "site unreachable"
		if !base.Failed() {
			detail = fmt.Sprintf("REST index returned HTTP %d", base.Status)
		}
		return Outcome{Status: api.StatusOffline, HTTPStatus: base.Status, Detail: detail}
	}

	meta, probe := r.prober.Status(ctx, site)
	switch {
	case probe.OK:
		return Outcome{Status: api.StatusOnline, Meta: &meta, HTTPStatus: probe.Status}
	case probe.Status == http.StatusNotFound:
		detail := "companion plugin not installed"
		if discovery.HasCompanion() {
			detail = "companion plugin registered but its status endpoint is missing"
		}
		return Outcome{Status: api.StatusNoPlugin, HTTPStatus: probe.Status, Detail: hostDetail(discovery, detail)}
	case probe.Status == http.StatusForbidden:
		return Outcome{Status: api.StatusError, HTTPStatus: probe.Status, Detail: "API credentials rejected"}
	default:
		// Anything else collapses into no-plugin; the code is kept for diagnosis.
		detail := "companion endpoint unusable: " + gateway.Message(probe)
		return Outcome{Status: api.StatusNoPlugin, HTTPStatus: probe.Status, Detail: hostDetail(discovery, detail)}
	}
}

// hostDetail prefixes detail with the site title from the REST index.
func hostDetail(discovery wpapi.Discovery, detail string) string {
	if discovery.Name == "" {
		return detail
	}
	return fmt.Sprintf("%s: %s", discovery.Name, detail)
}

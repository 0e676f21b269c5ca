// Package wpapi speaks the REST contract of the WP Manager Connector plugin.
// Every method returns the decoded payload together with the gateway Result
// so callers can branch on HTTP status without handling errors.
package wpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/gateway"
)

const (
	Namespace    = "/wp-json/wp-manager/v1"
	HeaderKey    = "X-WP-Manager-Key"
	HeaderSecret = "X-WP-Manager-Secret"
)

// ActionResult is the body of single-item mutations.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Plugin  string `json:"plugin,omitempty"`
	Theme   string `json:"theme,omitempty"`
}

// Discovery is the subset of the WordPress REST index used to describe a
// host that lacks the companion plugin.
type Discovery struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Home        string   `json:"home"`
	Namespaces  []string `json:"namespaces"`
}

// HasCompanion reports whether the REST index advertises the plugin namespace.
func (d Discovery) HasCompanion() bool {
	for _, ns := range d.Namespaces {
		if ns == "wp-manager/v1" {
			return true
		}
	}
	return false
}

type Client struct {
	gateway *gateway.Client
}

func New(gw *gateway.Client) *Client {
	return &Client{gateway: gw}
}

// Endpoint joins a site base URL with a path under the plugin namespace.
func Endpoint(siteURL, path string) string {
	return strings.TrimRight(siteURL, "/") + Namespace + "/" + strings.TrimLeft(path, "/")
}

// DiscoveryURL is the uncredentialed REST index of a site.
func DiscoveryURL(siteURL string) string {
	return strings.TrimRight(siteURL, "/") + "/wp-json/"
}

// CredentialHeaders carries the site's key/secret pair.
func CredentialHeaders(site api.Site) http.Header {
	headers := http.Header{}
	headers.Set(HeaderKey, site.APIKey)
	headers.Set(HeaderSecret, site.APISecret)
	return headers
}

// Discover probes the REST index without credentials.
func (c *Client) Discover(ctx context.Context, siteURL string) (Discovery, gateway.Result) {
	res := c.gateway.Do(ctx, &gateway.Request{Method: http.MethodGet, URL: DiscoveryURL(siteURL)})
	var out Discovery
	if res.OK {
		// The index is only used descriptively; a non-JSON body still means reachable.
		_ = gateway.Decode(res, &out)
	}
	return out, res
}

func (c *Client) Status(ctx context.Context, site api.Site) (api.SiteMeta, gateway.Result) {
	var out api.SiteMeta
	res := c.get(ctx, site, "status", &out)
	return out, res
}

func (c *Client) Plugins(ctx context.Context, site api.Site) ([]api.PluginInfo, gateway.Result) {
	var out []api.PluginInfo
	res := c.get(ctx, site, "plugins", &out)
	return out, res
}

func (c *Client) Themes(ctx context.Context, site api.Site) ([]api.ThemeInfo, gateway.Result) {
	var out []api.ThemeInfo
	res := c.get(ctx, site, "themes", &out)
	return out, res
}

func (c *Client) Users(ctx context.Context, site api.Site) ([]api.SiteUser, gateway.Result) {
	var out []api.SiteUser
	res := c.get(ctx, site, "users", &out)
	return out, res
}

func (c *Client) Stats(ctx context.Context, site api.Site) (api.SiteStats, gateway.Result) {
	var out api.SiteStats
	res := c.get(ctx, site, "stats", &out)
	return out, res
}

// UpdateItem runs the per-item update endpoint for a plugin or theme.
func (c *Client) UpdateItem(ctx context.Context, site api.Site, kind api.ItemKind, slug string) (ActionResult, gateway.Result) {
	return c.action(ctx, site, collection(kind)+"/"+url.PathEscape(slug)+"/update", nil)
}

// SetPluginActive activates or deactivates a plugin.
func (c *Client) SetPluginActive(ctx context.Context, site api.Site, slug string, active bool) (ActionResult, gateway.Result) {
	verb := "deactivate"
	if active {
		verb = "activate"
	}
	return c.action(ctx, site, "plugins/"+url.PathEscape(slug)+"/"+verb, nil)
}

func (c *Client) ActivateTheme(ctx context.Context, site api.Site, slug string) (ActionResult, gateway.Result) {
	return c.action(ctx, site, "themes/"+url.PathEscape(slug)+"/activate", nil)
}

// Install asks the site to install a directory item by slug.
func (c *Client) Install(ctx context.Context, site api.Site, kind api.ItemKind, slug string) (ActionResult, gateway.Result) {
	return c.action(ctx, site, collection(kind)+"/install", map[string]string{"slug": slug})
}

// UpdateAll runs the remote bulk update for every plugin or theme of a site.
func (c *Client) UpdateAll(ctx context.Context, site api.Site, kind api.ItemKind) (api.BulkUpdateResult, gateway.Result) {
	var out api.BulkUpdateResult
	res := c.post(ctx, site, collection(kind)+"/update-all", nil, &out)
	return out, res
}

// AdminLogin returns a single-use wp-admin login URL.
func (c *Client) AdminLogin(ctx context.Context, site api.Site) (string, gateway.Result) {
	var out struct {
		LoginURL string `json:"login_url"`
	}
	res := c.post(ctx, site, "admin-login", nil, &out)
	if res.OK && out.LoginURL == "" {
		res.OK = false
	}
	return out.LoginURL, res
}

func (c *Client) action(ctx context.Context, site api.Site, path string, body any) (ActionResult, gateway.Result) {
	var out ActionResult
	res := c.post(ctx, site, path, body, &out)
	if !res.OK {
		out.Message = gateway.Message(res)
	}
	return out, res
}

func (c *Client) get(ctx context.Context, site api.Site, path string, out any) gateway.Result {
	return c.call(ctx, site, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, site api.Site, path string, body, out any) gateway.Result {
	return c.call(ctx, site, http.MethodPost, path, body, out)
}

func (c *Client) call(ctx context.Context, site api.Site, method, path string, body, out any) gateway.Result {
	res := c.gateway.Do(ctx, &gateway.Request{
		Method:  method,
		URL:     Endpoint(site.URL, path),
		Headers: CredentialHeaders(site),
		Body:    body,
	})
	if res.OK && out != nil {
		// A 2xx we cannot understand is a failed call with its real status kept.
		if err := gateway.Decode(res, out); err != nil {
			res.OK = false
		}
	}
	return res
}

func collection(kind api.ItemKind) string {
	if kind == api.KindTheme {
		return "themes"
	}
	return "plugins"
}

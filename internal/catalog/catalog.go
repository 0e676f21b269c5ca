// Package catalog searches the public WordPress.org plugin and theme
// directories. Results are never cached.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/gateway"
)

const (
	DefaultBaseURL = "https://api.wordpress.org"
	PageSize       = 20
)

type Client struct {
	gateway *gateway.Client
	baseURL string
}

func New(gw *gateway.Client, baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{gateway: gw, baseURL: baseURL}
}

// SearchPlugins returns the first page of plugins matching query.
func (c *Client) SearchPlugins(ctx context.Context, query string) ([]api.CatalogPlugin, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []api.CatalogPlugin{}, nil
	}

	var body struct {
		Plugins []api.CatalogPlugin `json:"plugins"`
	}
	if err := c.query(ctx, "plugins", "query_plugins", query, &body); err != nil {
		return nil, err
	}
	if body.Plugins == nil {
		body.Plugins = []api.CatalogPlugin{}
	}
	return body.Plugins, nil
}

// SearchThemes returns the first page of themes matching query.
func (c *Client) SearchThemes(ctx context.Context, query string) ([]api.CatalogTheme, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []api.CatalogTheme{}, nil
	}

	var body struct {
		Themes []api.CatalogTheme `json:"themes"`
	}
	if err := c.query(ctx, "themes", "query_themes", query, &body); err != nil {
		return nil, err
	}
	if body.Themes == nil {
		body.Themes = []api.CatalogTheme{}
	}
	for i := range body.Themes {
		if strings.HasPrefix(body.Themes[i].ScreenshotURL, "//") {
			body.Themes[i].ScreenshotURL = "https:" + body.Themes[i].ScreenshotURL
		}
	}
	return body.Themes, nil
}

// SearchURL builds the directory query URL for a collection.
func (c *Client) SearchURL(collection, action, query string) string {
	values := url.Values{}
	values.Set("action", action)
	values.Set("request[search]", query)
	values.Set("request[per_page]", strconv.Itoa(PageSize))
	return fmt.Sprintf("%s/%s/info/1.2/?%s", c.baseURL, collection, values.Encode())
}

func (c *Client) query(ctx context.Context, collection, action, query string, out any) error {
	res := c.gateway.Do(ctx, &gateway.Request{
		Method: http.MethodGet,
		URL:    c.SearchURL(collection, action, query),
	})
	if !res.OK {
		return fmt.Errorf("%s search failed: %s", collection, gateway.Message(res))
	}
	if err := gateway.Decode(res, out); err != nil {
		return fmt.Errorf("%s search: %w", collection, err)
	}
	return nil
}

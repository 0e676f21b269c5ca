// Package report renders and dispatches the monthly client reports.
package report

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/wpfleet/wpfleet/internal/api"
)

// Template is a report email with {{variable}} placeholders.
type Template struct {
	Subject string
	Body    string
}

var DefaultTemplate = Template{
	Subject: "[Monthly Report] {{site_name}} - {{month}} {{year}}",
	Body: `Dear {{client_name}},

Please find below your website's monthly maintenance and performance report for {{month}} {{year}}.

WEBSITE OVERVIEW
----------------
Website:        {{site_name}}
URL:            {{site_url}}
Status:         {{site_status}}
Last Monitored: {{last_sync}}

TECHNICAL SPECIFICATIONS
------------------------
WordPress Version:  {{wp_version}}
PHP Version:        {{php_version}}
Active Theme:       {{active_theme}}

MAINTENANCE SUMMARY
-------------------
Plugins installed:  {{plugin_count}}
Plugin updates:     {{plugins_pending}} pending
Themes installed:   {{theme_count}}
Theme updates:      {{themes_pending}} pending

CONTENT STATISTICS
------------------
Published Posts:    {{total_posts}}
Published Pages:    {{total_pages}}
Approved Comments:  {{total_comments}}

STORAGE & DATABASE
------------------
Database Size:      {{db_size}}
Media Library:      {{file_count}} files
Uploads Folder:     {{uploads_size}}

If you have any questions about this report, please reach out.

Best regards,

{{company_name}}
Website Management Team

This report was automatically generated on {{report_date}}
`,
}

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes known variables. Unknown placeholders are left as is.
func Render(text string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
}

const notAvailable = "n/a"

// Variables builds the placeholder values for one site. stats may be nil
// when the site could not be asked for them.
func Variables(site api.Site, stats *api.SiteStats, company string, now time.Time) map[string]string {
	vars := map[string]string{
		"site_name":    site.Name,
		"site_url":     site.URL,
		"site_status":  statusLabel(site.Status),
		"month":        now.Month().String(),
		"year":         strconv.Itoa(now.Year()),
		"report_date":  now.Format("January 2, 2006"),
		"company_name": company,
		"last_sync":    notAvailable,
	}
	if site.Client != nil {
		vars["client_name"] = site.Client.Name
	}
	if site.LastSync != nil {
		vars["last_sync"] = site.LastSync.In(now.Location()).Format("January 2, 2006 at 3:04 PM")
	}

	meta := api.SiteMeta{}
	if site.Meta != nil {
		meta = *site.Meta
	}
	vars["wp_version"] = orNA(meta.WPVersion)
	vars["php_version"] = orNA(meta.PHPVersion)
	vars["active_theme"] = orNA(meta.ActiveTheme)
	vars["plugin_count"] = strconv.Itoa(meta.PluginCount)
	vars["theme_count"] = strconv.Itoa(meta.ThemeCount)
	vars["plugins_pending"] = strconv.Itoa(meta.Updates.Plugins)
	vars["themes_pending"] = strconv.Itoa(meta.Updates.Themes)

	for _, key := range []string{"total_posts", "total_pages", "total_comments", "db_size", "file_count", "uploads_size"} {
		vars[key] = notAvailable
	}
	if stats != nil {
		vars["total_posts"] = strconv.Itoa(stats.TotalPosts)
		vars["total_pages"] = strconv.Itoa(stats.TotalPages)
		vars["total_comments"] = strconv.Itoa(stats.TotalComments)
		vars["db_size"] = orNA(stats.DBSize)
		vars["file_count"] = strconv.Itoa(stats.FileCount)
		vars["uploads_size"] = orNA(stats.UploadsSize)
	}
	return vars
}

func statusLabel(status api.SiteStatus) string {
	switch status {
	case api.StatusOnline:
		return "Online"
	case api.StatusOffline:
		return "Offline"
	case api.StatusNoPlugin:
		return "Connector plugin missing"
	case api.StatusError:
		return "Connection error"
	case api.StatusPending:
		return "Checking"
	}
	return fmt.Sprintf("Unknown (%s)", status)
}

func orNA(value string) string {
	if value == "" {
		return notAvailable
	}
	return value
}

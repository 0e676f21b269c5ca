package api

import "time"

// SiteStatus is the connectivity/capability state of a managed site.
type SiteStatus string

const (
	StatusOnline   SiteStatus = "online"
	StatusOffline  SiteStatus = "offline"
	StatusPending  SiteStatus = "pending"
	StatusError    SiteStatus = "error"
	StatusNoPlugin SiteStatus = "no-plugin"
)

// Valid reports whether s is one of the five known statuses.
func (s SiteStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusPending, StatusError, StatusNoPlugin:
		return true
	}
	return false
}

// Terminal reports whether s is a resting status (anything but pending).
func (s SiteStatus) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// Site is a WordPress site managed through the companion plugin.
type Site struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	URL          string      `json:"url"`
	APIKey       string      `json:"api_key"`
	APISecret    string      `json:"api_secret"`
	Status       SiteStatus  `json:"status"`
	StatusDetail string      `json:"status_detail,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	LastSync     *time.Time  `json:"last_sync,omitempty"`
	Meta         *SiteMeta   `json:"metadata,omitempty"`
	Client       *ClientInfo `json:"client,omitempty"`
}

// Clone returns a deep copy so callers never share pointers with the registry.
func (s Site) Clone() Site {
	out := s
	if s.LastSync != nil {
		t := *s.LastSync
		out.LastSync = &t
	}
	if s.Meta != nil {
		m := *s.Meta
		out.Meta = &m
	}
	if s.Client != nil {
		c := s.Client.Clone()
		out.Client = &c
	}
	return out
}

// View strips credentials for output over the API.
func (s Site) View() SiteView {
	c := s.Clone()
	return SiteView{
		ID:           c.ID,
		Name:         c.Name,
		URL:          c.URL,
		Status:       c.Status,
		StatusDetail: c.StatusDetail,
		CreatedAt:    c.CreatedAt,
		LastSync:     c.LastSync,
		Meta:         c.Meta,
		Client:       c.Client,
	}
}

// SiteView is the credential-free representation of a Site.
type SiteView struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	URL          string      `json:"url"`
	Status       SiteStatus  `json:"status"`
	StatusDetail string      `json:"status_detail,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	LastSync     *time.Time  `json:"last_sync,omitempty"`
	Meta         *SiteMeta   `json:"metadata,omitempty"`
	Client       *ClientInfo `json:"client,omitempty"`
}

// SiteMeta is remote metadata cached from the last successful status probe.
type SiteMeta struct {
	WPVersion   string        `json:"wp_version,omitempty"`
	PHPVersion  string        `json:"php_version,omitempty"`
	PluginCount int           `json:"plugin_count"`
	ThemeCount  int           `json:"theme_count"`
	ActiveTheme string        `json:"active_theme,omitempty"`
	Updates     UpdateSummary `json:"updates_available"`
}

// UpdateSummary counts pending updates reported by a site.
type UpdateSummary struct {
	Plugins int  `json:"plugins"`
	Themes  int  `json:"themes"`
	Core    bool `json:"core"`
}

// ClientInfo holds the contact a site reports to.
type ClientInfo struct {
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Company        string     `json:"company,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	SendReports    bool       `json:"send_reports"`
	ReportDay      int        `json:"report_day,omitempty"`
	LastReportSent *time.Time `json:"last_report_sent,omitempty"`
}

func (c ClientInfo) Clone() ClientInfo {
	out := c
	if c.LastReportSent != nil {
		t := *c.LastReportSent
		out.LastReportSent = &t
	}
	return out
}

// SiteDraft is the user input for a new site.
type SiteDraft struct {
	Name      string      `json:"name"`
	URL       string      `json:"url"`
	APIKey    string      `json:"api_key"`
	APISecret string      `json:"api_secret"`
	Client    *ClientInfo `json:"client,omitempty"`
}

// SitePatch is a partial update. Nil fields are left unchanged.
type SitePatch struct {
	Name         *string     `json:"name,omitempty"`
	URL          *string     `json:"url,omitempty"`
	APIKey       *string     `json:"api_key,omitempty"`
	APISecret    *string     `json:"api_secret,omitempty"`
	Status       *SiteStatus `json:"status,omitempty"`
	StatusDetail *string     `json:"status_detail,omitempty"`
	LastSync     *time.Time  `json:"last_sync,omitempty"`
	Meta         *SiteMeta   `json:"metadata,omitempty"`
	Client       *ClientInfo `json:"client,omitempty"`

	// ClearMeta drops cached metadata. It wins over Meta.
	ClearMeta bool `json:"-"`
}

// Empty reports whether the patch changes nothing.
func (p SitePatch) Empty() bool {
	return p.Name == nil && p.URL == nil && p.APIKey == nil && p.APISecret == nil &&
		p.Status == nil && p.StatusDetail == nil && p.LastSync == nil &&
		p.Meta == nil && p.Client == nil && !p.ClearMeta
}

// Apply merges the patch into a copy of s.
func (p SitePatch) Apply(s Site) Site {
	out := s.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.URL != nil {
		out.URL = *p.URL
	}
	if p.APIKey != nil {
		out.APIKey = *p.APIKey
	}
	if p.APISecret != nil {
		out.APISecret = *p.APISecret
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.StatusDetail != nil {
		out.StatusDetail = *p.StatusDetail
	}
	if p.LastSync != nil {
		t := *p.LastSync
		out.LastSync = &t
	}
	if p.Meta != nil {
		m := *p.Meta
		out.Meta = &m
	}
	if p.ClearMeta {
		out.Meta = nil
	}
	if p.Client != nil {
		c := p.Client.Clone()
		out.Client = &c
	}
	return out
}

// PluginInfo is a plugin as reported by the companion plugin.
type PluginInfo struct {
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	File            string `json:"file,omitempty"`
	Version         string `json:"version"`
	Status          string `json:"status"`
	UpdateAvailable bool   `json:"updateAvailable"`
	LatestVersion   string `json:"latestVersion,omitempty"`
	Author          string `json:"author,omitempty"`
	Description     string `json:"description,omitempty"`
}

// ThemeInfo is a theme as reported by the companion plugin.
type ThemeInfo struct {
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	Version         string `json:"version"`
	Status          string `json:"status"`
	UpdateAvailable bool   `json:"updateAvailable"`
	LatestVersion   string `json:"latestVersion,omitempty"`
	Screenshot      string `json:"screenshot,omitempty"`
}

// SitePlugin is a plugin tagged with the site it came from. Slugs are only
// unique per site.
type SitePlugin struct {
	PluginInfo
	SiteID   string `json:"site_id"`
	SiteName string `json:"site_name"`
}

// SiteTheme is a theme tagged with the site it came from.
type SiteTheme struct {
	ThemeInfo
	SiteID   string `json:"site_id"`
	SiteName string `json:"site_name"`
}

// SiteUser is a WordPress user on a managed site.
type SiteUser struct {
	ID          int      `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	Registered  string   `json:"registered"`
}

// SiteStats are size/content counters reported by a site.
type SiteStats struct {
	FileCount     int    `json:"file_count"`
	DBSize        string `json:"db_size"`
	UploadsSize   string `json:"uploads_size"`
	TotalPosts    int    `json:"total_posts"`
	TotalPages    int    `json:"total_pages"`
	TotalComments int    `json:"total_comments"`
}

// BulkUpdateResult is the response of a remote update-all endpoint.
type BulkUpdateResult struct {
	Updated []string `json:"updated"`
	Failed  []string `json:"failed"`
}

// ItemKind distinguishes plugin and theme operations.
type ItemKind string

const (
	KindPlugin ItemKind = "plugin"
	KindTheme  ItemKind = "theme"
)

// ItemRef addresses one plugin or theme on one site.
type ItemRef struct {
	SiteID string `json:"site_id"`
	Slug   string `json:"slug"`
}

// ItemOutcome is the per-item result of a bulk operation.
type ItemOutcome struct {
	SiteID     string `json:"site_id"`
	SiteName   string `json:"site_name"`
	Slug       string `json:"slug"`
	Success    bool   `json:"success"`
	HTTPStatus int    `json:"http_status"`
	Message    string `json:"message,omitempty"`
}

// InstallResult is one row of an install-on-many audit trail.
type InstallResult struct {
	SiteID   string `json:"site_id"`
	SiteName string `json:"site_name"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// SiteError records a per-site failure inside an aggregate read.
type SiteError struct {
	SiteID     string `json:"site_id"`
	SiteName   string `json:"site_name"`
	HTTPStatus int    `json:"http_status"`
	Message    string `json:"message"`
}

// CatalogPlugin is a WordPress.org plugin directory entry.
type CatalogPlugin struct {
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	Version          string            `json:"version"`
	Author           string            `json:"author,omitempty"`
	Rating           float64           `json:"rating"`
	NumRatings       int               `json:"num_ratings"`
	ActiveInstalls   int               `json:"active_installs"`
	ShortDescription string            `json:"short_description,omitempty"`
	Icons            map[string]string `json:"icons,omitempty"`
}

// CatalogTheme is a WordPress.org theme directory entry.
type CatalogTheme struct {
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	Version       string  `json:"version"`
	Rating        float64 `json:"rating"`
	NumRatings    int     `json:"num_ratings"`
	ScreenshotURL string  `json:"screenshot_url,omitempty"`
	Description   string  `json:"description,omitempty"`
}

// Summary counts sites per status for dashboards.
type Summary struct {
	Total   int                `json:"total"`
	Counts  map[SiteStatus]int `json:"counts"`
	Updates UpdateSummary      `json:"updates_available"`
}

// APIResponse is a standard wrapper for API responses.
type APIResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

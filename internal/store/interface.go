package store

import (
	"context"
	"errors"

	"github.com/wpfleet/wpfleet/internal/api"
)

var (
	ErrSiteNotFound       = errors.New("site not found")
	ErrCredentialNotFound = errors.New("site credential not found")
)

// Store defines the interface for data persistence. Site rows never carry
// credentials; those live encrypted in SiteCredential.
type Store interface {
	CreateSite(ctx context.Context, site *api.Site) error
	GetSite(ctx context.Context, id string) (*api.Site, error)
	ListSites(ctx context.Context) ([]*api.Site, error)
	ReplaceSite(ctx context.Context, site *api.Site) error
	DeleteSite(ctx context.Context, id string) error
	UpsertSiteCredential(ctx context.Context, credential *SiteCredential) error
	GetSiteCredential(ctx context.Context, id string) (*SiteCredential, error)
	Close()
}

// SiteCredential stores the encrypted API key/secret pair of a site.
type SiteCredential struct {
	SiteID     string
	Ciphertext []byte
	Nonce      []byte
}

// SiteRepository is the persistence collaborator the registry talks to.
// Credentials cross this boundary in plaintext and are sealed below it.
type SiteRepository interface {
	LoadSites(ctx context.Context) ([]api.Site, error)
	SaveSite(ctx context.Context, site api.Site) (api.Site, error)
	// UpdateSite returns nil without error when id is unknown.
	UpdateSite(ctx context.Context, id string, patch api.SitePatch) (*api.Site, error)
	// DeleteSite reports whether a record was removed.
	DeleteSite(ctx context.Context, id string) (bool, error)
}

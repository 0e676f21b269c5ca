package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wpfleet/wpfleet/internal/api"
	"github.com/wpfleet/wpfleet/internal/credentials"
)

// SealedRepository implements SiteRepository on top of a Store, keeping the
// API key and secret encrypted in the credentials table.
type SealedRepository struct {
	backend     Store
	credentials *credentials.Service
	logger      *slog.Logger

	// mu serializes read-modify-write cycles of UpdateSite.
	mu sync.Mutex
}

func NewSealedRepository(backend Store, credentialService *credentials.Service, logger *slog.Logger) *SealedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SealedRepository{
		backend:     backend,
		credentials: credentialService,
		logger:      logger,
	}
}

func (r *SealedRepository) LoadSites(ctx context.Context) ([]api.Site, error) {
	rows, err := r.backend.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	sites := make([]api.Site, 0, len(rows))
	for _, row := range rows {
		site := *row
		pair, err := r.openCredentials(ctx, site.ID)
		if err != nil {
			// The site stays manageable; its probes will fail until credentials are re-entered.
			r.logger.Error("Failed to open site credentials", "site_id", site.ID, "error", err)
		}
		site.APIKey = pair.Key
		site.APISecret = pair.Secret
		sites = append(sites, site)
	}
	return sites, nil
}

func (r *SealedRepository) SaveSite(ctx context.Context, site api.Site) (api.Site, error) {
	stored := site.Clone()
	if err := r.backend.CreateSite(ctx, &stored); err != nil {
		return api.Site{}, fmt.Errorf("create site: %w", err)
	}

	if err := r.sealCredentials(ctx, stored.ID, credentials.Pair{Key: stored.APIKey, Secret: stored.APISecret}); err != nil {
		if delErr := r.backend.DeleteSite(ctx, stored.ID); delErr != nil {
			r.logger.Error("Failed to roll back site after credential error", "site_id", stored.ID, "error", delErr)
		}
		return api.Site{}, err
	}
	return stored, nil
}

func (r *SealedRepository) UpdateSite(ctx context.Context, id string, patch api.SitePatch) (*api.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.backend.GetSite(ctx, id)
	if errors.Is(err, ErrSiteNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}

	pair, err := r.openCredentials(ctx, id)
	if err != nil {
		r.logger.Error("Failed to open site credentials", "site_id", id, "error", err)
	}
	current.APIKey = pair.Key
	current.APISecret = pair.Secret

	updated := patch.Apply(*current)
	updated.ID = id
	if err := r.backend.ReplaceSite(ctx, &updated); err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("replace site: %w", err)
	}

	if patch.APIKey != nil || patch.APISecret != nil {
		if err := r.sealCredentials(ctx, id, credentials.Pair{Key: updated.APIKey, Secret: updated.APISecret}); err != nil {
			return nil, err
		}
	}
	return &updated, nil
}

func (r *SealedRepository) DeleteSite(ctx context.Context, id string) (bool, error) {
	if err := r.backend.DeleteSite(ctx, id); err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete site: %w", err)
	}
	return true, nil
}

func (r *SealedRepository) sealCredentials(ctx context.Context, siteID string, pair credentials.Pair) error {
	ciphertext, nonce, err := r.credentials.SealPair(pair)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}
	if err := r.backend.UpsertSiteCredential(ctx, &SiteCredential{
		SiteID:     siteID,
		Ciphertext: ciphertext,
		Nonce:      nonce,
	}); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

func (r *SealedRepository) openCredentials(ctx context.Context, siteID string) (credentials.Pair, error) {
	credential, err := r.backend.GetSiteCredential(ctx, siteID)
	if err != nil {
		return credentials.Pair{}, err
	}
	return r.credentials.OpenPair(credential.Ciphertext, credential.Nonce)
}

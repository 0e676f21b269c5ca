package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wpfleet/wpfleet/internal/api"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL,
		last_sync TIMESTAMPTZ,
		metadata JSONB,
		client JSONB
	);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `ALTER TABLE sites ADD COLUMN IF NOT EXISTS status_detail TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}

	credentialsQuery := `
	CREATE TABLE IF NOT EXISTS site_credentials (
		site_id TEXT PRIMARY KEY REFERENCES sites(id) ON DELETE CASCADE,
		ciphertext BYTEA NOT NULL,
		nonce BYTEA NOT NULL
	);
	`
	if _, err := s.pool.Exec(ctx, credentialsQuery); err != nil {
		return err
	}

	return nil
}

func (s *PostgresStore) CreateSite(ctx context.Context, site *api.Site) error {
	meta, client, err := jsonbArgs(site)
	if err != nil {
		return err
	}
	query := `
	INSERT INTO sites (` + siteColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.pool.Exec(
		ctx,
		query,
		site.ID,
		site.Name,
		site.URL,
		string(site.Status),
		site.StatusDetail,
		site.CreatedAt.UTC(),
		site.LastSync,
		meta,
		client,
	)
	return err
}

func (s *PostgresStore) GetSite(ctx context.Context, id string) (*api.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1`
	site, err := scanPostgresSite(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSiteNotFound
	}
	return site, err
}

func (s *PostgresStore) ListSites(ctx context.Context) ([]*api.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*api.Site
	for rows.Next() {
		site, err := scanPostgresSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (s *PostgresStore) ReplaceSite(ctx context.Context, site *api.Site) error {
	meta, client, err := jsonbArgs(site)
	if err != nil {
		return err
	}
	query := `
	UPDATE sites
	SET
		name = $1,
		url = $2,
		status = $3,
		status_detail = $4,
		created_at = $5,
		last_sync = $6,
		metadata = $7,
		client = $8
	WHERE id = $9
	`
	ct, err := s.pool.Exec(
		ctx,
		query,
		site.Name,
		site.URL,
		string(site.Status),
		site.StatusDetail,
		site.CreatedAt.UTC(),
		site.LastSync,
		meta,
		client,
		site.ID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrSiteNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSite(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM site_credentials WHERE site_id = $1`, id); err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrSiteNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertSiteCredential(ctx context.Context, credential *SiteCredential) error {
	query := `
	INSERT INTO site_credentials (site_id, ciphertext, nonce)
	VALUES ($1, $2, $3)
	ON CONFLICT (site_id) DO UPDATE SET
		ciphertext = EXCLUDED.ciphertext,
		nonce = EXCLUDED.nonce
	`
	_, err := s.pool.Exec(ctx, query, credential.SiteID, credential.Ciphertext, credential.Nonce)
	return err
}

func (s *PostgresStore) GetSiteCredential(ctx context.Context, id string) (*SiteCredential, error) {
	query := `SELECT site_id, ciphertext, nonce FROM site_credentials WHERE site_id = $1`
	row := s.pool.QueryRow(ctx, query, id)

	credential := &SiteCredential{}
	if err := row.Scan(&credential.SiteID, &credential.Ciphertext, &credential.Nonce); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return credential, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func jsonbArgs(site *api.Site) (meta, client []byte, err error) {
	encoded, err := encodeJSON(site.Meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	if encoded.Valid {
		meta = []byte(encoded.String)
	}
	encoded, err = encodeJSON(site.Client)
	if err != nil {
		return nil, nil, fmt.Errorf("encode client: %w", err)
	}
	if encoded.Valid {
		client = []byte(encoded.String)
	}
	return meta, client, nil
}

func scanPostgresSite(row pgx.Row) (*api.Site, error) {
	var (
		site     api.Site
		status   string
		lastSync *time.Time
		meta     []byte
		client   []byte
	)
	if err := row.Scan(&site.ID, &site.Name, &site.URL, &status, &site.StatusDetail, &site.CreatedAt, &lastSync, &meta, &client); err != nil {
		return nil, err
	}
	site.Status = api.SiteStatus(status)
	site.CreatedAt = site.CreatedAt.UTC()
	if lastSync != nil {
		t := lastSync.UTC()
		site.LastSync = &t
	}

	var err error
	if site.Meta, err = decodeMeta(sql.NullString{String: string(meta), Valid: meta != nil}); err != nil {
		return nil, err
	}
	if site.Client, err = decodeClient(sql.NullString{String: string(client), Valid: client != nil}); err != nil {
		return nil, err
	}
	return &site, nil
}

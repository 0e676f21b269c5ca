package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wpfleet/wpfleet/internal/api"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

const siteColumns = `id, name, url, status, status_detail, created_at, last_sync, metadata, client`

// NewSQLiteStore initializes the SQLite database and creates necessary tables.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writers are serialized by SQLite anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		last_sync TEXT,
		metadata TEXT,
		client TEXT
	);
	`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sites table: %w", err)
	}

	if err := addSQLiteColumnIfMissing(db, "sites", "status_detail TEXT NOT NULL DEFAULT ''"); err != nil {
		db.Close()
		return nil, err
	}

	credentialsQuery := `
	CREATE TABLE IF NOT EXISTS site_credentials (
		site_id TEXT PRIMARY KEY,
		ciphertext BLOB NOT NULL,
		nonce BLOB NOT NULL,
		FOREIGN KEY(site_id) REFERENCES sites(id) ON DELETE CASCADE
	);
	`
	if _, err := db.Exec(credentialsQuery); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create site_credentials table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSite(ctx context.Context, site *api.Site) error {
	args, err := siteArgs(site)
	if err != nil {
		return err
	}
	query := `INSERT INTO sites (` + siteColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) GetSite(ctx context.Context, id string) (*api.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = ?`
	site, err := scanSite(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSiteNotFound
	}
	return site, err
}

func (s *SQLiteStore) ListSites(ctx context.Context) ([]*api.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*api.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (s *SQLiteStore) ReplaceSite(ctx context.Context, site *api.Site) error {
	args, err := siteArgs(site)
	if err != nil {
		return err
	}
	query := `
	UPDATE sites
	SET name = ?, url = ?, status = ?, status_detail = ?, created_at = ?, last_sync = ?, metadata = ?, client = ?
	WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, append(args[1:], args[0])...)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSiteNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteSite(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM site_credentials WHERE site_id = ?`, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSiteNotFound
	}

	return tx.Commit()
}

func (s *SQLiteStore) UpsertSiteCredential(ctx context.Context, credential *SiteCredential) error {
	query := `
	INSERT INTO site_credentials (site_id, ciphertext, nonce)
	VALUES (?, ?, ?)
	ON CONFLICT(site_id) DO UPDATE SET
		ciphertext = excluded.ciphertext,
		nonce = excluded.nonce
	`
	_, err := s.db.ExecContext(ctx, query, credential.SiteID, credential.Ciphertext, credential.Nonce)
	return err
}

func (s *SQLiteStore) GetSiteCredential(ctx context.Context, id string) (*SiteCredential, error) {
	query := `SELECT site_id, ciphertext, nonce FROM site_credentials WHERE site_id = ?`
	row := s.db.QueryRowContext(ctx, query, id)

	credential := &SiteCredential{}
	if err := row.Scan(&credential.SiteID, &credential.Ciphertext, &credential.Nonce); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return credential, nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func siteArgs(site *api.Site) ([]any, error) {
	meta, err := encodeJSON(site.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	client, err := encodeJSON(site.Client)
	if err != nil {
		return nil, fmt.Errorf("encode client: %w", err)
	}
	return []any{
		site.ID,
		site.Name,
		site.URL,
		string(site.Status),
		site.StatusDetail,
		formatTime(site.CreatedAt),
		nullableTime(site.LastSync),
		meta,
		client,
	}, nil
}

func scanSite(row rowScanner) (*api.Site, error) {
	var (
		site      api.Site
		status    string
		createdAt string
		lastSync  sql.NullString
		meta      sql.NullString
		client    sql.NullString
	)
	if err := row.Scan(&site.ID, &site.Name, &site.URL, &status, &site.StatusDetail, &createdAt, &lastSync, &meta, &client); err != nil {
		return nil, err
	}
	site.Status = api.SiteStatus(status)

	var err error
	if site.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if site.LastSync, err = scanNullableTime(lastSync); err != nil {
		return nil, err
	}
	if site.Meta, err = decodeMeta(meta); err != nil {
		return nil, err
	}
	if site.Client, err = decodeClient(client); err != nil {
		return nil, err
	}
	return &site, nil
}

func addSQLiteColumnIfMissing(db *sql.DB, tableName, columnDDL string) error {
	query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tableName, columnDDL)
	if _, err := db.Exec(query); err != nil {
		errText := strings.ToLower(err.Error())
		if strings.Contains(errText, "duplicate column name") {
			return nil
		}
		return fmt.Errorf("failed to alter %s table: %w", tableName, err)
	}
	return nil
}

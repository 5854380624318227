package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/birdcdn/cdn-console/backend/internal/models"
)

// PostgresStore handles account, API key, file and traffic records.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS account (
			username      VARCHAR(100) PRIMARY KEY,
			password_hash VARCHAR(255) NOT NULL,
			created_at    TIMESTAMPTZ  DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS api_keys (
			id           UUID PRIMARY KEY,
			name         VARCHAR(255) NOT NULL,
			key_hash     VARCHAR(64)  UNIQUE NOT NULL,
			key_prefix   VARCHAR(16)  NOT NULL,
			is_active    BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			expires_at   TIMESTAMPTZ,
			last_used_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS uploaded_files (
			id                UUID PRIMARY KEY,
			filename          VARCHAR(255) NOT NULL,
			original_filename VARCHAR(255) NOT NULL,
			bucket            VARCHAR(100) NOT NULL,
			path              VARCHAR(500) UNIQUE NOT NULL,
			size              BIGINT       NOT NULL,
			mime_type         VARCHAR(100),
			file_type         VARCHAR(20),
			cdn_url           VARCHAR(500),
			download_count    BIGINT       NOT NULL DEFAULT 0,
			bandwidth_used    BIGINT       NOT NULL DEFAULT 0,
			is_active         BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			last_accessed     TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS cache_purge_logs (
			id           UUID PRIMARY KEY,
			purge_type   VARCHAR(50)  NOT NULL,
			target       VARCHAR(500),
			files_purged INTEGER      NOT NULL DEFAULT 0,
			bytes_freed  BIGINT       NOT NULL DEFAULT 0,
			triggered_by VARCHAR(100),
			reason       TEXT,
			success      BOOLEAN      NOT NULL DEFAULT TRUE,
			error        TEXT,
			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS bandwidth_logs (
			hour         TIMESTAMPTZ PRIMARY KEY,
			requests     BIGINT NOT NULL DEFAULT 0,
			bytes_sent   BIGINT NOT NULL DEFAULT 0,
			cache_hits   BIGINT NOT NULL DEFAULT 0,
			cache_misses BIGINT NOT NULL DEFAULT 0,
			status_200   BIGINT NOT NULL DEFAULT 0,
			status_206   BIGINT NOT NULL DEFAULT 0,
			status_304   BIGINT NOT NULL DEFAULT 0,
			status_404   BIGINT NOT NULL DEFAULT 0,
			status_5xx   BIGINT NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Bootstrap inserts the default admin account when none exists yet.
func (s *PostgresStore) Bootstrap(ctx context.Context, username, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account (username, password_hash)
		SELECT $1, $2
		WHERE NOT EXISTS (SELECT 1 FROM account)`,
		username, passwordHash,
	)
	return err
}

// ---------------------------------------------------------------------------
// Account
// ---------------------------------------------------------------------------

func (s *PostgresStore) GetAccount(ctx context.Context) (*models.Account, error) {
	var a models.Account
	err := s.pool.QueryRow(ctx,
		`SELECT username, password_hash, created_at FROM account LIMIT 1`,
	).Scan(&a.Username, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) UpdateUsername(ctx context.Context, username string) error {
	_, err := s.pool.Exec(ctx, `UPDATE account SET username = $1`, username)
	return err
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE account SET password_hash = $1`, passwordHash)
	return err
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, is_active, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.Prefix, key.IsActive, key.CreatedAt, key.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, is_active, created_at, expires_at, last_used_at
		 FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.Prefix,
			&k.IsActive, &k.CreatedAt, &k.ExpiresAt, &k.LastUsedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, key_hash, key_prefix, is_active, created_at, expires_at, last_used_at
		 FROM api_keys WHERE key_hash = $1`, keyHash,
	).Scan(&k.ID, &k.Name, &k.KeyHash, &k.Prefix,
		&k.IsActive, &k.CreatedAt, &k.ExpiresAt, &k.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ToggleAPIKey flips is_active in a single statement so racing toggles
// serialize at the row instead of reading stale state.
func (s *PostgresStore) ToggleAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	var k models.APIKey
	err := s.pool.QueryRow(ctx,
		`UPDATE api_keys SET is_active = NOT is_active WHERE id = $1
		 RETURNING id, name, key_hash, key_prefix, is_active, created_at, expires_at, last_used_at`,
		id,
	).Scan(&k.ID, &k.Name, &k.KeyHash, &k.Prefix,
		&k.IsActive, &k.CreatedAt, &k.ExpiresAt, &k.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, usedAt)
	return err
}

// ---------------------------------------------------------------------------
// Uploaded files
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreateFile(ctx context.Context, f *models.UploadedFile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO uploaded_files
		 (id, filename, original_filename, bucket, path, size, mime_type, file_type, cdn_url, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10)`,
		f.ID, f.Filename, f.OriginalFilename, f.Bucket, f.Path,
		f.Size, f.MimeType, f.FileType, f.CDNURL, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, bucket, fileType string, limit, offset int) ([]models.UploadedFile, int, error) {
	where := `WHERE is_active = TRUE`
	args := []any{}
	if bucket != "" {
		args = append(args, bucket)
		where += fmt.Sprintf(` AND bucket = $%d`, len(args))
	}
	if fileType != "" {
		args = append(args, fileType)
		where += fmt.Sprintf(` AND file_type = $%d`, len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM uploaded_files `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, filename, original_filename, bucket, path, size, mime_type, file_type,
		        cdn_url, download_count, bandwidth_used, is_active, created_at, last_accessed
		 FROM uploaded_files %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var files []models.UploadedFile
	for rows.Next() {
		var f models.UploadedFile
		if err := rows.Scan(&f.ID, &f.Filename, &f.OriginalFilename, &f.Bucket, &f.Path,
			&f.Size, &f.MimeType, &f.FileType, &f.CDNURL,
			&f.DownloadCount, &f.BandwidthUsed, &f.IsActive, &f.CreatedAt, &f.LastAccessed); err != nil {
			return nil, 0, err
		}
		files = append(files, f)
	}
	return files, total, rows.Err()
}

func (s *PostgresStore) GetFile(ctx context.Context, id string) (*models.UploadedFile, error) {
	var f models.UploadedFile
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, original_filename, bucket, path, size, mime_type, file_type,
		        cdn_url, download_count, bandwidth_used, is_active, created_at, last_accessed
		 FROM uploaded_files WHERE id = $1`, id,
	).Scan(&f.ID, &f.Filename, &f.OriginalFilename, &f.Bucket, &f.Path,
		&f.Size, &f.MimeType, &f.FileType, &f.CDNURL,
		&f.DownloadCount, &f.BandwidthUsed, &f.IsActive, &f.CreatedAt, &f.LastAccessed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) DeactivateFile(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE uploaded_files SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordDownload(ctx context.Context, id string, bytesSent int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE uploaded_files
		 SET download_count = download_count + 1,
		     bandwidth_used = bandwidth_used + $2,
		     last_accessed  = NOW()
		 WHERE id = $1`, id, bytesSent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FileTotals returns active file counts by type and total storage used.
func (s *PostgresStore) FileTotals(ctx context.Context) (total, images, videos int64, storageBytes int64, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE file_type = 'image'),
		       COUNT(*) FILTER (WHERE file_type = 'video'),
		       COALESCE(SUM(size), 0)
		FROM uploaded_files WHERE is_active = TRUE`,
	).Scan(&total, &images, &videos, &storageBytes)
	return
}

func (s *PostgresStore) TopFiles(ctx context.Context, limit int) ([]models.UploadedFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, original_filename, bucket, path, size, mime_type, file_type,
		        cdn_url, download_count, bandwidth_used, is_active, created_at, last_accessed
		 FROM uploaded_files WHERE is_active = TRUE
		 ORDER BY download_count DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.UploadedFile
	for rows.Next() {
		var f models.UploadedFile
		if err := rows.Scan(&f.ID, &f.Filename, &f.OriginalFilename, &f.Bucket, &f.Path,
			&f.Size, &f.MimeType, &f.FileType, &f.CDNURL,
			&f.DownloadCount, &f.BandwidthUsed, &f.IsActive, &f.CreatedAt, &f.LastAccessed); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ---------------------------------------------------------------------------
// Purge logs
// ---------------------------------------------------------------------------

func (s *PostgresStore) CreatePurgeLog(ctx context.Context, l *models.PurgeLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache_purge_logs
		 (id, purge_type, target, files_purged, bytes_freed, triggered_by, reason, success, error, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.PurgeType, l.Target, l.FilesPurged, l.BytesFreed,
		l.TriggeredBy, l.Reason, l.Success, l.Error, l.CreatedAt, l.CompletedAt,
	)
	return err
}

func (s *PostgresStore) ListPurgeLogs(ctx context.Context, limit int) ([]models.PurgeLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, purge_type, target, files_purged, bytes_freed, triggered_by,
		        COALESCE(reason, ''), success, COALESCE(error, ''), created_at, completed_at
		 FROM cache_purge_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.PurgeLog
	for rows.Next() {
		var l models.PurgeLog
		if err := rows.Scan(&l.ID, &l.PurgeType, &l.Target, &l.FilesPurged, &l.BytesFreed,
			&l.TriggeredBy, &l.Reason, &l.Success, &l.Error, &l.CreatedAt, &l.CompletedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// ---------------------------------------------------------------------------
// Bandwidth
// ---------------------------------------------------------------------------

// AddBandwidth merges an hourly delta into the bandwidth_logs row.
func (s *PostgresStore) AddBandwidth(ctx context.Context, l *models.BandwidthLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bandwidth_logs
		 (hour, requests, bytes_sent, cache_hits, cache_misses, status_200, status_206, status_304, status_404, status_5xx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hour) DO UPDATE SET
		 requests     = bandwidth_logs.requests     + EXCLUDED.requests,
		 bytes_sent   = bandwidth_logs.bytes_sent   + EXCLUDED.bytes_sent,
		 cache_hits   = bandwidth_logs.cache_hits   + EXCLUDED.cache_hits,
		 cache_misses = bandwidth_logs.cache_misses + EXCLUDED.cache_misses,
		 status_200   = bandwidth_logs.status_200   + EXCLUDED.status_200,
		 status_206   = bandwidth_logs.status_206   + EXCLUDED.status_206,
		 status_304   = bandwidth_logs.status_304   + EXCLUDED.status_304,
		 status_404   = bandwidth_logs.status_404   + EXCLUDED.status_404,
		 status_5xx   = bandwidth_logs.status_5xx   + EXCLUDED.status_5xx`,
		l.Hour, l.Requests, l.BytesSent, l.CacheHits, l.CacheMisses,
		l.Status200, l.Status206, l.Status304, l.Status404, l.Status5xx,
	)
	return err
}

func (s *PostgresStore) ListBandwidth(ctx context.Context, since time.Time) ([]models.BandwidthLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT hour, requests, bytes_sent, cache_hits, cache_misses,
		        status_200, status_206, status_304, status_404, status_5xx
		 FROM bandwidth_logs WHERE hour >= $1 ORDER BY hour`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.BandwidthLog
	for rows.Next() {
		var l models.BandwidthLog
		if err := rows.Scan(&l.Hour, &l.Requests, &l.BytesSent, &l.CacheHits, &l.CacheMisses,
			&l.Status200, &l.Status206, &l.Status304, &l.Status404, &l.Status5xx); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SumBandwidth returns total bytes sent since the given instant.
func (s *PostgresStore) SumBandwidth(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(bytes_sent), 0) FROM bandwidth_logs WHERE hour >= $1`, since,
	).Scan(&total)
	return total, err
}

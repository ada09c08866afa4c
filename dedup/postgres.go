package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/zombar/imagefinder/models"
)

// Config contains database configuration.
type Config struct {
	DSN string // PostgreSQL connection string
}

// PostgresStore is the durable Store used in production.
type PostgresStore struct {
	conn *sql.DB
}

// NewPostgres opens the database, verifies connectivity and runs migrations.
// An unreachable store is fatal to the whole service, not to one article.
func NewPostgres(config Config) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{conn: conn}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}

// DB returns the underlying connection for metrics collection.
func (s *PostgresStore) DB() *sql.DB {
	return s.conn
}

// FindByContentHash returns the record for a byte-content hash, or nil.
func (s *PostgresStore) FindByContentHash(ctx context.Context, hash string) (*models.DedupRecord, error) {
	return s.findBy(ctx, "content_hash", hash)
}

// FindByURLHash returns the record for a normalized-URL hash, or nil.
func (s *PostgresStore) FindByURLHash(ctx context.Context, hash string) (*models.DedupRecord, error) {
	return s.findBy(ctx, "url_hash", hash)
}

func (s *PostgresStore) findBy(ctx context.Context, column, value string) (*models.DedupRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, content_hash, url_hash, perceptual_hash, source_url, article_url, archive_key, accepted_at
		FROM dedup_records WHERE %s = $1 LIMIT 1
	`, column)

	var (
		rec        models.DedupRecord
		phash      int64
		articleURL sql.NullString
		archiveKey sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, query, value).Scan(
		&rec.ID, &rec.ContentHash, &rec.URLHash, &phash,
		&rec.SourceURL, &articleURL, &archiveKey, &rec.AcceptedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dedup record: %w", err)
	}

	rec.PerceptualHash = uint64(phash)
	if articleURL.Valid {
		rec.ArticleURL = articleURL.String
	}
	if archiveKey.Valid {
		rec.ArchiveKey = archiveKey.String
	}
	return &rec, nil
}

// Insert persists a record. The unique index on content_hash makes the
// insert itself the atomic uniqueness check: whichever racing worker loses
// gets a duplicate error, never a second accepted image.
func (s *PostgresStore) Insert(ctx context.Context, rec *models.DedupRecord) error {
	query := `
		INSERT INTO dedup_records (id, content_hash, url_hash, perceptual_hash, source_url, article_url, archive_key, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.conn.ExecContext(ctx, query,
		rec.ID,
		rec.ContentHash,
		rec.URLHash,
		int64(rec.PerceptualHash),
		rec.SourceURL,
		nullable(rec.ArticleURL),
		nullable(rec.ArchiveKey),
		rec.AcceptedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return NewDuplicateError(rec.ContentHash)
		}
		return fmt.Errorf("failed to insert dedup record: %w", err)
	}
	return nil
}

// RecentFingerprints returns up to limit most recent fingerprints. The
// near-duplicate check scans these in memory; bounding the window keeps the
// scan cheap without giving up protection for the images that matter (the
// recent ones articles keep re-publishing).
func (s *PostgresStore) RecentFingerprints(ctx context.Context, limit int) ([]Fingerprint, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT content_hash, perceptual_hash
		FROM dedup_records
		ORDER BY accepted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []Fingerprint
	for rows.Next() {
		var (
			fp    Fingerprint
			phash int64
		)
		if err := rows.Scan(&fp.ContentHash, &phash); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fp.PerceptualHash = uint64(phash)
		fps = append(fps, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fingerprints: %w", err)
	}
	return fps, nil
}

// Count returns the total number of dedup records.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM dedup_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dedup records: %w", err)
	}
	return count, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

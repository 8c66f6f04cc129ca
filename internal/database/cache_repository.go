package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/phonicsbot/internal/cache"
	"github.com/example/phonicsbot/pkg/models"
)

// CacheRepository persists response-cache entries for cross-session reuse.
// The write-through is best-effort: the in-memory cache never depends on
// these rows being present.
type CacheRepository struct{}

// NewCacheRepository creates a new repository instance
func NewCacheRepository() *CacheRepository {
	return &CacheRepository{}
}

// Save stores or replaces a cache entry
func (r *CacheRepository) Save(ctx context.Context, e cache.PersistedEntry) error {
	if DB.DriverName() == "postgres" {
		query := `
			INSERT INTO cache_entries (fingerprint, payload_text, payload_audio, created_at, expires_at, size_hint)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (fingerprint) DO UPDATE SET
				payload_text = EXCLUDED.payload_text,
				payload_audio = EXCLUDED.payload_audio,
				created_at = EXCLUDED.created_at,
				expires_at = EXCLUDED.expires_at,
				size_hint = EXCLUDED.size_hint
		`
		_, err := DB.ExecContext(ctx, query,
			e.Fingerprint, e.Content.Text, e.Content.Audio, e.CreatedAt, e.ExpiresAt, e.Content.SizeHint())
		if err != nil {
			return fmt.Errorf("failed to save cache entry: %v", err)
		}
		return nil
	}

	query := `
		INSERT INTO cache_entries (fingerprint, payload_text, payload_audio, created_at, expires_at, size_hint)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			payload_text = excluded.payload_text,
			payload_audio = excluded.payload_audio,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			size_hint = excluded.size_hint
	`
	_, err := DB.ExecContext(ctx, query,
		e.Fingerprint, e.Content.Text, e.Content.Audio, e.CreatedAt, e.ExpiresAt, e.Content.SizeHint())
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %v", err)
	}
	return nil
}

// LoadLive returns all entries that have not yet expired as of now
func (r *CacheRepository) LoadLive(ctx context.Context, now time.Time) ([]cache.PersistedEntry, error) {
	query := "SELECT fingerprint, payload_text, payload_audio, created_at, expires_at FROM cache_entries WHERE expires_at > ?"
	if DB.DriverName() == "postgres" {
		query = strings.Replace(query, "?", "$1", 1)
	}

	rows, err := DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entries: %v", err)
	}
	defer rows.Close()

	var entries []cache.PersistedEntry
	for rows.Next() {
		var e cache.PersistedEntry
		var content models.GeneratedContent
		if err := rows.Scan(&e.Fingerprint, &content.Text, &content.Audio, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %v", err)
		}
		e.Content = content
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// DeleteExpired removes entries whose TTL has elapsed
func (r *CacheRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	query := "DELETE FROM cache_entries WHERE expires_at <= ?"
	if DB.DriverName() == "postgres" {
		query = strings.Replace(query, "?", "$1", 1)
	}

	_, err := DB.ExecContext(ctx, query, now)
	if err != nil {
		return fmt.Errorf("failed to delete expired cache entries: %v", err)
	}
	return nil
}

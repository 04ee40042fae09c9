// Package store persists extraction results keyed by company+report identity.
// Postgres is the primary store with a JSON file fallback for local use; the
// read path is the fast path for repeated queries.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"bundesanzeiger_insight/pkg/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS report_cache (
	cache_key     TEXT PRIMARY KEY,
	company_name  TEXT NOT NULL,
	report_name   TEXT NOT NULL,
	report_date   TEXT,
	record        JSONB NOT NULL,
	fetched_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_accessed TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Cache is the durable extraction-result store. At most one computation per
// key runs at a time: concurrent callers for the same key share the in-flight
// result through the singleflight group.
type Cache struct {
	pool    *pgxpool.Pool
	fileDir string
	ttl     time.Duration // 0 disables time-based expiry
	group   singleflight.Group
	log     *logrus.Logger
}

// NewCache creates a cache. If pool is nil a file-based store under fileDir
// is used; if fileDir is also empty it defaults to .cache/reports.
func NewCache(pool *pgxpool.Pool, fileDir string, ttl time.Duration, log *logrus.Logger) *Cache {
	if pool == nil && fileDir == "" {
		fileDir = filepath.Join(".cache", "reports")
	}
	if fileDir != "" {
		if err := os.MkdirAll(fileDir, 0755); err != nil && log != nil {
			log.Warnf("cache dir unavailable: %v", err)
		}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{pool: pool, fileDir: fileDir, ttl: ttl, log: log}
}

// EnsureSchema creates the cache table when a database is configured.
func (c *Cache) EnsureSchema(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	if _, err := c.pool.Exec(ctx, schemaSQL); err != nil {
		return &models.CacheError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Get returns the entry for key, or nil on a miss. A stale entry (TTL
// configured and exceeded) counts as a miss. Store failures surface as
// CacheError so callers can degrade to direct fetch-and-extract.
func (c *Cache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	entry, err := c.load(ctx, key)
	if err != nil || entry == nil {
		return nil, err
	}
	if c.ttl > 0 && time.Since(entry.FetchedAt) > c.ttl {
		c.log.WithField("key", key).Debug("cache entry stale, treating as miss")
		return nil, nil
	}
	c.touch(ctx, key)
	return entry, nil
}

// Put stores an entry, overwriting any previous value for the same key.
func (c *Cache) Put(ctx context.Context, entry *models.CacheEntry) error {
	entry.FetchedAt = time.Now().UTC()
	entry.LastAccessed = entry.FetchedAt

	if c.pool != nil {
		recordJSON, err := json.Marshal(entry.Record)
		if err != nil {
			return &models.CacheError{Op: "marshal record", Err: err}
		}
		_, err = c.pool.Exec(ctx, `
			INSERT INTO report_cache (cache_key, company_name, report_name, report_date, record, fetched_at, last_accessed)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (cache_key) DO UPDATE SET
				record = EXCLUDED.record,
				fetched_at = EXCLUDED.fetched_at,
				last_accessed = EXCLUDED.last_accessed`,
			entry.Key, entry.CompanyName, entry.ReportName, entry.ReportDate, recordJSON, entry.FetchedAt)
		if err != nil {
			return &models.CacheError{Op: "put", Err: err}
		}
		return nil
	}

	if c.fileDir != "" {
		fileBytes, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return &models.CacheError{Op: "marshal entry", Err: err}
		}
		if err := os.WriteFile(c.filePath(entry.Key), fileBytes, 0644); err != nil {
			return &models.CacheError{Op: "put file", Err: err}
		}
	}
	return nil
}

// Invalidate drops the entry for key, if any.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c.pool != nil {
		if _, err := c.pool.Exec(ctx, `DELETE FROM report_cache WHERE cache_key = $1`, key); err != nil {
			return &models.CacheError{Op: "invalidate", Err: err}
		}
		return nil
	}
	if c.fileDir != "" {
		if err := os.Remove(c.filePath(key)); err != nil && !os.IsNotExist(err) {
			return &models.CacheError{Op: "invalidate file", Err: err}
		}
	}
	return nil
}

// GetOrCompute returns the cached entry for key, or runs compute exactly once
// across concurrent callers and stores its result. The second caller for the
// same in-flight key waits for and reuses the first's result. A failing store
// never blocks computation (fail-open): the result is returned uncached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func() (*models.CacheEntry, error)) (*models.CacheEntry, bool, error) {
	if entry, err := c.Get(ctx, key); entry != nil {
		return entry, true, nil
	} else if err != nil {
		c.log.Warnf("cache read degraded: %v", err)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check: another caller may have finished between Get and Do.
		if entry, err := c.Get(ctx, key); entry != nil && err == nil {
			return entry, nil
		}
		entry, err := compute()
		if err != nil {
			return nil, err
		}
		if entry.Record.HasData() {
			if putErr := c.Put(ctx, entry); putErr != nil {
				c.log.Warnf("cache write degraded: %v", putErr)
			}
		} else {
			// All-null extractions are not worth persisting; a re-analysis
			// should get a fresh chance at the report.
			c.log.WithField("key", key).Info("skipping cache write: no financial data extracted")
		}
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*models.CacheEntry), false, nil
}

// FindByCompany returns the most recently fetched, still-fresh entry for a
// company, matched on the normalized name. This is the query-level fast path
// for repeated analyses that carry no explicit report selector.
func (c *Cache) FindByCompany(ctx context.Context, companyName string) (*models.CacheEntry, error) {
	normalized := models.NormalizeCompanyName(companyName)

	if c.pool != nil {
		var (
			entry      models.CacheEntry
			recordJSON []byte
		)
		err := c.pool.QueryRow(ctx, `
			SELECT cache_key, company_name, report_name, report_date, record, fetched_at, last_accessed
			FROM report_cache
			WHERE LOWER(company_name) = $1
			ORDER BY fetched_at DESC
			LIMIT 1`, normalized).
			Scan(&entry.Key, &entry.CompanyName, &entry.ReportName, &entry.ReportDate, &recordJSON, &entry.FetchedAt, &entry.LastAccessed)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, &models.CacheError{Op: "find by company", Err: err}
		}
		if err := json.Unmarshal(recordJSON, &entry.Record); err != nil {
			return nil, &models.CacheError{Op: "decode record", Err: err}
		}
		if c.ttl > 0 && time.Since(entry.FetchedAt) > c.ttl {
			return nil, nil
		}
		c.touch(ctx, entry.Key)
		return &entry, nil
	}

	if c.fileDir != "" {
		files, err := os.ReadDir(c.fileDir)
		if err != nil {
			return nil, nil
		}
		var best *models.CacheEntry
		for _, f := range files {
			if filepath.Ext(f.Name()) != ".json" {
				continue
			}
			fileBytes, err := os.ReadFile(filepath.Join(c.fileDir, f.Name()))
			if err != nil {
				continue
			}
			var entry models.CacheEntry
			if err := json.Unmarshal(fileBytes, &entry); err != nil {
				continue
			}
			if models.NormalizeCompanyName(entry.CompanyName) != normalized {
				continue
			}
			if c.ttl > 0 && time.Since(entry.FetchedAt) > c.ttl {
				continue
			}
			if best == nil || entry.FetchedAt.After(best.FetchedAt) {
				e := entry
				best = &e
			}
		}
		return best, nil
	}

	return nil, nil
}

func (c *Cache) load(ctx context.Context, key string) (*models.CacheEntry, error) {
	if c.pool != nil {
		var (
			entry      models.CacheEntry
			recordJSON []byte
		)
		err := c.pool.QueryRow(ctx, `
			SELECT cache_key, company_name, report_name, report_date, record, fetched_at, last_accessed
			FROM report_cache WHERE cache_key = $1`, key).
			Scan(&entry.Key, &entry.CompanyName, &entry.ReportName, &entry.ReportDate, &recordJSON, &entry.FetchedAt, &entry.LastAccessed)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, &models.CacheError{Op: "get", Err: err}
		}
		if err := json.Unmarshal(recordJSON, &entry.Record); err != nil {
			return nil, &models.CacheError{Op: "decode record", Err: err}
		}
		return &entry, nil
	}

	if c.fileDir != "" {
		fileBytes, err := os.ReadFile(c.filePath(key))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, &models.CacheError{Op: "get file", Err: err}
		}
		var entry models.CacheEntry
		if err := json.Unmarshal(fileBytes, &entry); err != nil {
			return nil, &models.CacheError{Op: "decode file entry", Err: err}
		}
		return &entry, nil
	}

	return nil, nil
}

// touch updates last_accessed; failures are ignored, the read already
// succeeded.
func (c *Cache) touch(ctx context.Context, key string) {
	if c.pool == nil {
		return
	}
	c.pool.Exec(ctx, `UPDATE report_cache SET last_accessed = NOW() WHERE cache_key = $1`, key)
}

func (c *Cache) filePath(key string) string {
	return filepath.Join(c.fileDir, fmt.Sprintf("%s.json", key))
}

package hub

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clawkit/clawkit/internal/config"
)

// CacheFileName is the registry cache database inside the state dir.
const CacheFileName = "cache.db"

const cacheSchema = `
CREATE TABLE IF NOT EXISTS skills (
	slug         TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	version      TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL DEFAULT '',
	verified     INTEGER NOT NULL DEFAULT 0,
	installs     INTEGER NOT NULL DEFAULT 0,
	rating       REAL NOT NULL DEFAULT 0,
	tags         TEXT NOT NULL DEFAULT '[]',
	published_at INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL DEFAULT 0,
	fetched_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_skills_fetched_at ON skills(fetched_at);
`

// Cache is the local registry cache. Records older than the freshness window
// are treated as misses so callers fall through to the network, but they are
// still readable for offline listings.
type Cache struct {
	db     *sql.DB
	maxAge time.Duration
}

// OpenCache opens (and if needed creates) the cache database in the state
// dir.
func OpenCache(cfg *config.Config) (*Cache, error) {
	state, err := config.StateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(state, 0o700); err != nil {
		return nil, err
	}
	maxAge := 24 * time.Hour
	if cfg != nil {
		maxAge = cfg.CacheMaxAge()
	}
	return OpenCacheAt(filepath.Join(state, CacheFileName), maxAge)
}

// OpenCacheAt opens a cache database at an explicit path.
func OpenCacheAt(path string, maxAge time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Cache{db: db, maxAge: maxAge}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error { return c.db.Close() }

// Put upserts registry records with the current time as fetch time.
func (c *Cache) Put(skills ...Skill) error {
	return c.putAt(time.Now(), skills...)
}

func (c *Cache) putAt(now time.Time, skills ...Skill) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO skills (slug, name, description, version, author, verified,
			installs, rating, tags, published_at, updated_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			author = excluded.author,
			verified = excluded.verified,
			installs = excluded.installs,
			rating = excluded.rating,
			tags = excluded.tags,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range skills {
		if s.Slug == "" {
			continue
		}
		tags, err := json.Marshal(s.Tags)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(s.Slug, s.Name, s.Description, s.Version, s.Author,
			boolToInt(s.Verified), s.Installs, s.Rating, string(tags),
			unixOrZero(s.PublishedAt), unixOrZero(s.UpdatedAt), now.Unix()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get returns the cached record for a slug and whether it is still fresh.
// A missing slug returns (nil, false, nil).
func (c *Cache) Get(slug string) (*Skill, bool, error) {
	row := c.db.QueryRow(`
		SELECT slug, name, description, version, author, verified, installs,
			rating, tags, published_at, updated_at, fetched_at
		FROM skills WHERE slug = ?`, slug)
	skill, fetchedAt, err := scanSkill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	fresh := time.Since(fetchedAt) <= c.maxAge
	return skill, fresh, nil
}

// Search matches cached records against a keyword, freshest first. Only fresh
// records are returned; a stale cache behaves like a miss.
func (c *Cache) Search(keyword string, limit int) ([]Skill, error) {
	if limit <= 0 {
		limit = 20
	}
	cutoff := time.Now().Add(-c.maxAge).Unix()
	rows, err := c.db.Query(`
		SELECT slug, name, description, version, author, verified, installs,
			rating, tags, published_at, updated_at, fetched_at
		FROM skills WHERE fetched_at >= ?
		ORDER BY installs DESC, slug ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var skills []Skill
	for rows.Next() {
		skill, _, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		if !skill.MatchesKeyword(keyword) {
			continue
		}
		skills = append(skills, *skill)
		if len(skills) >= limit {
			break
		}
	}
	return skills, rows.Err()
}

// Prune deletes records past the freshness window and reports how many were
// removed.
func (c *Cache) Prune() (int64, error) {
	cutoff := time.Now().Add(-c.maxAge).Unix()
	res, err := c.db.Exec(`DELETE FROM skills WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats reports the total record count and the age of the freshest record.
func (c *Cache) Stats() (count int, newest time.Time, err error) {
	var fetched sql.NullInt64
	err = c.db.QueryRow(`SELECT COUNT(*), MAX(fetched_at) FROM skills`).Scan(&count, &fetched)
	if err != nil {
		return 0, time.Time{}, err
	}
	if fetched.Valid && fetched.Int64 > 0 {
		newest = time.Unix(fetched.Int64, 0)
	}
	return count, newest, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSkill(row rowScanner) (*Skill, time.Time, error) {
	var (
		s                                 Skill
		verified                          int
		tagsJSON                          string
		publishedAt, updatedAt, fetchedAt int64
	)
	err := row.Scan(&s.Slug, &s.Name, &s.Description, &s.Version, &s.Author,
		&verified, &s.Installs, &s.Rating, &tagsJSON, &publishedAt, &updatedAt, &fetchedAt)
	if err != nil {
		return nil, time.Time{}, err
	}
	s.Verified = verified != 0
	if err := json.Unmarshal([]byte(tagsJSON), &s.Tags); err != nil {
		s.Tags = nil
	}
	if publishedAt > 0 {
		s.PublishedAt = time.Unix(publishedAt, 0).UTC()
	}
	if updatedAt > 0 {
		s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	}
	return &s, time.Unix(fetchedAt, 0), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

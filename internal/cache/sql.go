package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"   // hosted PostgreSQL
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// migration is one schema version. Statements are executed one at a time so
// the same list works for both drivers.
type migration struct {
	version  int
	sqlite   []string
	postgres []string
}

var migrations = []migration{
	{
		version: 1,
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS content_cache (
    cache_key     TEXT NOT NULL,
    owner_id      TEXT NOT NULL,
    content_type  TEXT NOT NULL,
    audio_content BLOB,
    mime_type     TEXT NOT NULL DEFAULT '',
    content_json  TEXT,
    encoding      TEXT NOT NULL DEFAULT '',
    payload_size  INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL,
    accessed_at   INTEGER NOT NULL,
    access_count  INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (cache_key, owner_id)
)`,
			`CREATE INDEX IF NOT EXISTS idx_content_cache_accessed ON content_cache(owner_id, accessed_at)`,
			`CREATE INDEX IF NOT EXISTS idx_content_cache_type ON content_cache(owner_id, content_type)`,
		},
		postgres: []string{
			`CREATE TABLE IF NOT EXISTS content_cache (
    cache_key     TEXT NOT NULL,
    owner_id      TEXT NOT NULL,
    content_type  TEXT NOT NULL,
    audio_content BYTEA,
    mime_type     TEXT NOT NULL DEFAULT '',
    content_json  TEXT,
    encoding      TEXT NOT NULL DEFAULT '',
    payload_size  BIGINT NOT NULL DEFAULT 0,
    created_at    BIGINT NOT NULL,
    accessed_at   BIGINT NOT NULL,
    access_count  BIGINT NOT NULL DEFAULT 1,
    PRIMARY KEY (cache_key, owner_id)
)`,
			`CREATE INDEX IF NOT EXISTS idx_content_cache_accessed ON content_cache(owner_id, accessed_at)`,
			`CREATE INDEX IF NOT EXISTS idx_content_cache_type ON content_cache(owner_id, content_type)`,
		},
	},
}

// SQLConfig selects and tunes the SQL backend.
type SQLConfig struct {
	Driver           string // sqlite or postgres
	DSN              string // postgres connection string or sqlite file path/DSN
	CompressionLevel int    // zstd level for audio blobs, 0 disables
	MaxOpenConns     int
}

// SQLStore is a Backend on a SQL database.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	codec  *codec
}

var _ Backend = (*SQLStore)(nil)

// OpenSQLStore connects to the configured database and applies pending
// schema migrations.
func OpenSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" || driver == "sqlite3" {
		driver = DriverSQLite
	}

	dsn := cfg.DSN
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported cache driver %q", cfg.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// One writer at a time; the busy timeout covers the rest.
		db.SetMaxOpenConns(1)
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s, err := NewSQLStore(ctx, db, cfg.CompressionLevel)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and migrates it.
func NewSQLStore(ctx context.Context, db *sqlx.DB, compressionLevel int) (*SQLStore, error) {
	c, err := newCodec(compressionLevel)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, driver: db.DriverName(), codec: c}
	if err := s.migrate(ctx); err != nil {
		c.close()
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "sprachcache.db"
	}
	if strings.Contains(path, "?") || path == ":memory:" {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

func (s *SQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
    version    INTEGER PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`); err != nil {
		return err
	}

	var current int
	if err := s.db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_versions`); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		stmts := m.sqlite
		if s.driver == DriverPostgres {
			stmts = m.postgres
		}

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)`),
			m.version, time.Now().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

type cacheRow struct {
	CacheKey     string         `db:"cache_key"`
	OwnerID      string         `db:"owner_id"`
	ContentType  string         `db:"content_type"`
	AudioContent []byte         `db:"audio_content"`
	MimeType     string         `db:"mime_type"`
	ContentJSON  sql.NullString `db:"content_json"`
	Encoding     string         `db:"encoding"`
	PayloadSize  int64          `db:"payload_size"`
	CreatedAt    int64          `db:"created_at"`
	AccessedAt   int64          `db:"accessed_at"`
	AccessCount  int64          `db:"access_count"`
}

const selectColumns = `cache_key, owner_id, content_type, audio_content, mime_type, content_json,
       encoding, payload_size, created_at, accessed_at, access_count`

// Get returns the matching entry with its payload decoded.
func (s *SQLStore) Get(ctx context.Context, ownerID string, ct ContentType, key string) (*Entry, error) {
	var row cacheRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+selectColumns+`
FROM content_cache
WHERE cache_key = ? AND owner_id = ? AND content_type = ?`), key, ownerID, string(ct))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	audio, err := s.codec.decode(row.AudioContent, row.Encoding)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Key:         row.CacheKey,
		OwnerID:     row.OwnerID,
		ContentType: ContentType(row.ContentType),
		Payload:     Payload{MimeType: row.MimeType},
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
		AccessedAt:  time.UnixMilli(row.AccessedAt).UTC(),
		AccessCount: row.AccessCount,
	}
	if len(audio) > 0 {
		e.Payload.Audio = audio
	}
	if row.ContentJSON.Valid {
		e.Payload.JSON = []byte(row.ContentJSON.String)
	}
	return e, nil
}

// Upsert writes e, replacing any entry stored under (Key, OwnerID).
func (s *SQLStore) Upsert(ctx context.Context, e *Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	var audio []byte
	encoding := encodingRaw
	if e.Payload.IsAudio() {
		audio, encoding = s.codec.encode(e.Payload.Audio)
	}
	var content sql.NullString
	if len(e.Payload.JSON) > 0 {
		content = sql.NullString{String: string(e.Payload.JSON), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
INSERT INTO content_cache (cache_key, owner_id, content_type, audio_content, mime_type, content_json,
                           encoding, payload_size, created_at, accessed_at, access_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (cache_key, owner_id) DO UPDATE SET
    content_type  = excluded.content_type,
    audio_content = excluded.audio_content,
    mime_type     = excluded.mime_type,
    content_json  = excluded.content_json,
    encoding      = excluded.encoding,
    payload_size  = excluded.payload_size,
    accessed_at   = excluded.accessed_at,
    access_count  = excluded.access_count`),
		e.Key, e.OwnerID, string(e.ContentType), audio, e.Payload.MimeType, content,
		encoding, e.Payload.Size(), e.CreatedAt.UnixMilli(), e.AccessedAt.UnixMilli(), e.AccessCount,
	)
	return err
}

// Touch increments the access count in a single statement.
func (s *SQLStore) Touch(ctx context.Context, ownerID string, ct ContentType, key string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
UPDATE content_cache
SET access_count = access_count + 1, accessed_at = ?
WHERE cache_key = ? AND owner_id = ? AND content_type = ?`),
		at.UnixMilli(), key, ownerID, string(ct))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCacheMiss
	}
	return nil
}

// Counts aggregates the entries of one owner.
func (s *SQLStore) Counts(ctx context.Context, ownerID string, ct ContentType) (Counts, error) {
	query := `SELECT COUNT(*) AS entries,
       COALESCE(SUM(access_count), 0) AS accesses,
       COALESCE(SUM(payload_size), 0) AS bytes
FROM content_cache
WHERE owner_id = ?`
	args := []interface{}{ownerID}
	if ct != "" {
		query += ` AND content_type = ?`
		args = append(args, string(ct))
	}

	var row struct {
		Entries  int64 `db:"entries"`
		Accesses int64 `db:"accesses"`
		Bytes    int64 `db:"bytes"`
	}
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), args...); err != nil {
		return Counts{}, err
	}
	return Counts{Entries: row.Entries, Accesses: row.Accesses, Bytes: row.Bytes}, nil
}

// DeleteOlderThan removes entries last accessed before cutoff.
func (s *SQLStore) DeleteOlderThan(ctx context.Context, ownerID string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM content_cache WHERE accessed_at < ?`
	args := []interface{}{cutoff.UnixMilli()}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	return s.exec(ctx, query, args...)
}

// Purge removes all entries of one owner.
func (s *SQLStore) Purge(ctx context.Context, ownerID string, ct ContentType) (int64, error) {
	query := `DELETE FROM content_cache WHERE owner_id = ?`
	args := []interface{}{ownerID}
	if ct != "" {
		query += ` AND content_type = ?`
		args = append(args, string(ct))
	}
	return s.exec(ctx, query, args...)
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	s.codec.close()
	return s.db.Close()
}

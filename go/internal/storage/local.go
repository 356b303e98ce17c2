package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver.
	_ "github.com/lib/pq"              // postgres driver.
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/mcdev12/splitkeeper/go/internal/splits"
	"github.com/mcdev12/splitkeeper/go/internal/sqlutil"
)

// LocalConfig selects the SQL driver and data source of the local tier.
type LocalConfig struct {
	Driver string
	DSN    string
}

type dialect struct {
	driver   string
	blobType string
	numbered bool
}

var dialects = map[string]dialect{
	"sqlite":   {driver: "sqlite", blobType: "BLOB"},
	"postgres": {driver: "postgres", blobType: "BYTEA", numbered: true},
	"pgx":      {driver: "pgx", blobType: "BYTEA", numbered: true},
}

func (d dialect) bind(query string) string {
	if d.numbered {
		return sqlutil.Rebind(query)
	}
	return query
}

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  BIGINT NOT NULL,
			description TEXT
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS splits_data (
			split_key TEXT PRIMARY KEY,
			data      %s NOT NULL
		)`, d.blobType),
		`CREATE TABLE IF NOT EXISTS splits_info (
			split_key TEXT PRIMARY KEY,
			game      TEXT NOT NULL,
			category  TEXT NOT NULL,
			real_time DOUBLE PRECISION,
			game_time DOUBLE PRECISION
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS settings (
			name  TEXT PRIMARY KEY,
			value %s
		)`, d.blobType),
	}
}

// LocalStore is the versioned SQL tier.
type LocalStore struct {
	db      *sql.DB
	dialect dialect
	version int
}

var _ Tier = (*LocalStore)(nil)

// OpenLocal opens the configured database, creates the schema and applies
// pending migrations.
func OpenLocal(ctx context.Context, cfg LocalConfig, legacy LegacyArea) (*LocalStore, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	if d.driver == "sqlite" && !isMemoryDSN(cfg.DSN) {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := NewLocalStore(ctx, db, cfg.Driver, legacy)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewLocalStore prepares an already open database.
func NewLocalStore(ctx context.Context, db *sql.DB, driver string, legacy LegacyArea) (*LocalStore, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if d.driver == "sqlite" {
		// A single connection keeps in-memory databases alive and
		// serializes writers.
		db.SetMaxOpenConns(1)
	}

	s := &LocalStore{db: db, dialect: d}
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if err := s.migrate(ctx, legacy); err != nil {
		return nil, err
	}
	return s, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Version returns the schema version of the store.
func (s *LocalStore) Version() int {
	return s.version
}

func (s *LocalStore) newQueries(tx *sql.Tx) *queries {
	return &queries{db: tx, d: s.dialect}
}

func (s *LocalStore) reader() *queries {
	return &queries{db: s.db, d: s.dialect}
}

func (s *LocalStore) migrate(ctx context.Context, legacy LegacyArea) error {
	current, err := s.reader().currentVersion(ctx)
	if err != nil {
		return err
	}
	s.version = current
	if current >= LatestVersion() {
		return nil
	}

	snap, err := s.reader().loadSnapshot(ctx)
	if err != nil {
		return err
	}
	if current == 0 && legacy != nil {
		if snap.Legacy, err = legacy.Load(); err != nil {
			return err
		}
	}

	migrated, applied, err := Migrate(snap, current)
	if err != nil {
		return err
	}

	err = sqlutil.Run(ctx, s.db, s.newQueries, func(q *queries) error {
		if err := q.replaceSnapshot(ctx, migrated); err != nil {
			return err
		}
		now := time.Now().UnixNano()
		for _, m := range applied {
			if err := q.recordMigration(ctx, m, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}

	for _, m := range applied {
		log.Info().Int("version", m.Version).Str("description", m.Description).Msg("applied storage migration")
	}
	s.version = LatestVersion()

	if migrated.LegacyConsumed && legacy != nil {
		if err := legacy.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear legacy area")
		}
	}
	return nil
}

// Snapshot returns the full content of the store.
func (s *LocalStore) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.reader().loadSnapshot(ctx)
}

func (s *LocalStore) PutSplits(ctx context.Context, key string, blob []byte, info splits.Info) error {
	return sqlutil.Run(ctx, s.db, s.newQueries, func(q *queries) error {
		if err := q.upsertData(ctx, key, blob); err != nil {
			return err
		}
		return q.upsertInfo(ctx, key, info)
	})
}

func (s *LocalStore) GetSplits(ctx context.Context, key string) ([]byte, error) {
	return s.reader().getData(ctx, key)
}

func (s *LocalStore) GetInfo(ctx context.Context, key string) (splits.Info, error) {
	return s.reader().getInfo(ctx, key)
}

func (s *LocalStore) PutInfo(ctx context.Context, key string, info splits.Info) error {
	return s.reader().upsertInfo(ctx, key, info)
}

func (s *LocalStore) ListInfos(ctx context.Context) ([]splits.KeyedInfo, error) {
	return s.reader().listInfos(ctx)
}

func (s *LocalStore) ListKeys(ctx context.Context) ([]string, error) {
	return s.reader().listKeys(ctx)
}

func (s *LocalStore) DeleteSplits(ctx context.Context, key string) error {
	return sqlutil.Run(ctx, s.db, s.newQueries, func(q *queries) error {
		if err := q.deleteInfo(ctx, key); err != nil {
			return err
		}
		return q.deleteData(ctx, key)
	})
}

func (s *LocalStore) CopySplits(ctx context.Context, from, to string) error {
	return sqlutil.Run(ctx, s.db, s.newQueries, func(q *queries) error {
		blob, err := q.getData(ctx, from)
		if err != nil {
			return err
		}
		info, err := q.getInfo(ctx, from)
		if errors.Is(err, ErrNotFound) {
			var ok bool
			if info, ok = splits.ParseAndExtract(blob); !ok {
				return fmt.Errorf("splits %s: %w", from, ErrNotFound)
			}
		} else if err != nil {
			return err
		}
		if err := q.upsertData(ctx, to, blob); err != nil {
			return err
		}
		return q.upsertInfo(ctx, to, info)
	})
}

func (s *LocalStore) PutSetting(ctx context.Context, name Setting, value []byte) error {
	return s.reader().upsertSetting(ctx, string(name), value)
}

func (s *LocalStore) GetSetting(ctx context.Context, name Setting) ([]byte, error) {
	return s.reader().getSetting(ctx, string(name))
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries binds the store's statements to a connection or transaction.
type queries struct {
	db dbtx
	d  dialect
}

func (q *queries) exec(ctx context.Context, query string, args ...any) error {
	_, err := q.db.ExecContext(ctx, q.d.bind(query), args...)
	return err
}

func (q *queries) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := q.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

func (q *queries) recordMigration(ctx context.Context, m Migration, appliedAt int64) error {
	err := q.exec(ctx,
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, appliedAt, m.Description)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	return nil
}

func (q *queries) upsertData(ctx context.Context, key string, blob []byte) error {
	err := q.exec(ctx,
		`INSERT INTO splits_data (split_key, data) VALUES (?, ?)
		 ON CONFLICT (split_key) DO UPDATE SET data = excluded.data`,
		key, blob)
	if err != nil {
		return fmt.Errorf("failed to write splits %s: %w", key, err)
	}
	return nil
}

func (q *queries) upsertInfo(ctx context.Context, key string, info splits.Info) error {
	err := q.exec(ctx,
		`INSERT INTO splits_info (split_key, game, category, real_time, game_time) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (split_key) DO UPDATE SET
			game = excluded.game,
			category = excluded.category,
			real_time = excluded.real_time,
			game_time = excluded.game_time`,
		key, info.Game, info.Category,
		sqlutil.ToNullFloat64(info.RealTime), sqlutil.ToNullFloat64(info.GameTime))
	if err != nil {
		return fmt.Errorf("failed to write splits info %s: %w", key, err)
	}
	return nil
}

func (q *queries) getData(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := q.db.QueryRowContext(ctx, q.d.bind("SELECT data FROM splits_data WHERE split_key = ?"), key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("splits %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read splits %s: %w", key, err)
	}
	return blob, nil
}

func (q *queries) getInfo(ctx context.Context, key string) (splits.Info, error) {
	row := q.db.QueryRowContext(ctx,
		q.d.bind("SELECT game, category, real_time, game_time FROM splits_info WHERE split_key = ?"), key)
	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return splits.Info{}, fmt.Errorf("splits info %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return splits.Info{}, fmt.Errorf("failed to read splits info %s: %w", key, err)
	}
	return info, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner, prefix ...any) (splits.Info, error) {
	var (
		info               splits.Info
		realTime, gameTime sql.NullFloat64
	)
	dest := append(prefix, &info.Game, &info.Category, &realTime, &gameTime)
	if err := row.Scan(dest...); err != nil {
		return splits.Info{}, err
	}
	info.RealTime = sqlutil.FromNullFloat64(realTime)
	info.GameTime = sqlutil.FromNullFloat64(gameTime)
	return info, nil
}

func (q *queries) listInfos(ctx context.Context) ([]splits.KeyedInfo, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT split_key, game, category, real_time, game_time FROM splits_info ORDER BY split_key")
	if err != nil {
		return nil, fmt.Errorf("failed to list splits info: %w", err)
	}
	defer rows.Close()

	var out []splits.KeyedInfo
	for rows.Next() {
		var key string
		info, err := scanInfo(rows, &key)
		if err != nil {
			return nil, fmt.Errorf("failed to scan splits info: %w", err)
		}
		out = append(out, splits.KeyedInfo{Key: key, Info: info})
	}
	return out, rows.Err()
}

func (q *queries) listKeys(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT split_key FROM splits_data ORDER BY split_key")
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan splits key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (q *queries) deleteData(ctx context.Context, key string) error {
	if err := q.exec(ctx, "DELETE FROM splits_data WHERE split_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete splits %s: %w", key, err)
	}
	return nil
}

func (q *queries) deleteInfo(ctx context.Context, key string) error {
	if err := q.exec(ctx, "DELETE FROM splits_info WHERE split_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete splits info %s: %w", key, err)
	}
	return nil
}

func (q *queries) upsertSetting(ctx context.Context, name string, value []byte) error {
	err := q.exec(ctx,
		`INSERT INTO settings (name, value) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		name, pqtype.NullRawMessage{RawMessage: value, Valid: value != nil})
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", name, err)
	}
	return nil
}

func (q *queries) getSetting(ctx context.Context, name string) ([]byte, error) {
	var value pqtype.NullRawMessage
	err := q.db.QueryRowContext(ctx, q.d.bind("SELECT value FROM settings WHERE name = ?"), name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !value.Valid) {
		return nil, fmt.Errorf("setting %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read setting %s: %w", name, err)
	}
	return bytes.Clone(value.RawMessage), nil
}

func (q *queries) loadSnapshot(ctx context.Context) (Snapshot, error) {
	snap := NewSnapshot()

	rows, err := q.db.QueryContext(ctx, "SELECT split_key, data FROM splits_data")
	if err != nil {
		return snap, fmt.Errorf("failed to load splits: %w", err)
	}
	for rows.Next() {
		var (
			key  string
			blob []byte
		)
		if err := rows.Scan(&key, &blob); err != nil {
			rows.Close()
			return snap, fmt.Errorf("failed to scan splits: %w", err)
		}
		snap.SplitsData[key] = bytes.Clone(blob)
	}
	rows.Close()

	infos, err := q.listInfos(ctx)
	if err != nil {
		return snap, err
	}
	for _, ki := range infos {
		snap.SplitsInfo[ki.Key] = ki.Info
	}

	rows, err = q.db.QueryContext(ctx, "SELECT name, value FROM settings")
	if err != nil {
		return snap, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name  string
			value pqtype.NullRawMessage
		)
		if err := rows.Scan(&name, &value); err != nil {
			return snap, fmt.Errorf("failed to scan setting: %w", err)
		}
		if value.Valid {
			snap.Settings[name] = bytes.Clone(value.RawMessage)
		}
	}
	return snap, rows.Err()
}

func (q *queries) replaceSnapshot(ctx context.Context, snap Snapshot) error {
	for _, table := range []string{"splits_data", "splits_info", "settings"} {
		if err := q.exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	for _, key := range sortedKeys(snap.SplitsData) {
		if err := q.upsertData(ctx, key, snap.SplitsData[key]); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(snap.SplitsInfo) {
		if err := q.upsertInfo(ctx, key, snap.SplitsInfo[key]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(snap.Settings) {
		if err := q.upsertSetting(ctx, name, snap.Settings[name]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Схема ведётся парными embedded-миграциями: <версия>_<имя>.up.sql и
// <версия>_<имя>.down.sql. Применение сериализуется advisory-lock'ом,
// несколько стартующих реплик не мешают друг другу.

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "sql/migrations"

	// Ключ advisory-lock этого сервиса; у соседних сервисов на общем
	// кластере ключи свои.
	schemaLockKey = int64(10829203)
)

const versionsTableDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type migrationPair struct {
	version int64
	name    string
	up      string
	down    string
}

// MigrateUp применяет недостающие up-миграции. steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		pairs, err := readMigrationPairs(migrationsFS)
		if err != nil {
			return err
		}
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		done := 0
		for _, pair := range pairs {
			if applied[pair.version] {
				continue
			}
			if steps > 0 && done >= steps {
				break
			}
			record := recordStmt{
				query: "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				args:  []interface{}{pair.version, pair.name},
			}
			if err := runInTx(ctx, conn, pair.up, record); err != nil {
				return fmt.Errorf("apply migration %d_%s: %w", pair.version, pair.name, err)
			}
			done++
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций. steps=0 откатывает одну:
// полный down базы не бывает нужен случайно.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		pairs, err := readMigrationPairs(migrationsFS)
		if err != nil {
			return err
		}
		byVersion := make(map[int64]migrationPair, len(pairs))
		for _, pair := range pairs {
			byVersion[pair.version] = pair
		}

		latest, err := latestAppliedVersions(ctx, conn, steps)
		if err != nil {
			return err
		}
		for _, version := range latest {
			pair, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("no migration files for applied version %d", version)
			}
			record := recordStmt{
				query: "DELETE FROM schema_migrations WHERE version = $1",
				args:  []interface{}{version},
			}
			if err := runInTx(ctx, conn, pair.down, record); err != nil {
				return fmt.Errorf("revert migration %d_%s: %w", pair.version, pair.name, err)
			}
		}
		return nil
	})
}

// MigrationStatus возвращает последнюю применённую версию и число
// неприменённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (current int64, pending int, err error) {
	err = s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		pairs, err := readMigrationPairs(migrationsFS)
		if err != nil {
			return err
		}
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		for _, pair := range pairs {
			if applied[pair.version] {
				if pair.version > current {
					current = pair.version
				}
				continue
			}
			pending++
		}
		return nil
	})
	return current, pending, err
}

// withSchemaLock выполняет fn на выделенном соединении под advisory-lock,
// предварительно гарантируя наличие таблицы версий.
func (s *Store) withSchemaLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", schemaLockKey)
	}()

	if _, err := conn.ExecContext(ctx, versionsTableDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	return fn(conn)
}

// recordStmt — запись в таблицу версий, выполняемая той же транзакцией,
// что и тело миграции.
type recordStmt struct {
	query string
	args  []interface{}
}

// runInTx выполняет тело миграции и запись в таблицу версий одной
// транзакцией: полуприменённая миграция не остаётся незамеченной.
func runInTx(ctx context.Context, conn *sql.Conn, body string, record recordStmt) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, record.query, record.args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func latestAppliedVersions(ctx context.Context, conn *sql.Conn, limit int) ([]int64, error) {
	rows, err := conn.QueryContext(ctx,
		"SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("read latest versions: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// readMigrationPairs читает и валидирует embedded-миграции. Каждая версия
// обязана иметь ровно одну пару up/down с совпадающим именем.
func readMigrationPairs(fsys fs.FS) ([]migrationPair, error) {
	entries, err := fs.Glob(fsys, path.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("no migration files embedded")
	}

	pairs := make(map[int64]*migrationPair)
	for _, entry := range entries {
		version, name, direction, err := parseMigrationName(path.Base(entry))
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, entry)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", entry)
		}

		pair := pairs[version]
		if pair == nil {
			pair = &migrationPair{version: version, name: name}
			pairs[version] = pair
		} else if pair.name != name {
			return nil, fmt.Errorf("version %d has conflicting names %q and %q", version, pair.name, name)
		}

		switch direction {
		case "up":
			if pair.up != "" {
				return nil, fmt.Errorf("duplicate up migration for version %d", version)
			}
			pair.up = body
		case "down":
			if pair.down != "" {
				return nil, fmt.Errorf("duplicate down migration for version %d", version)
			}
			pair.down = body
		}
	}

	result := make([]migrationPair, 0, len(pairs))
	for _, pair := range pairs {
		if pair.up == "" || pair.down == "" {
			return nil, fmt.Errorf("migration %d_%s is missing its up or down file", pair.version, pair.name)
		}
		result = append(result, *pair)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].version < result[j].version })
	return result, nil
}

// parseMigrationName разбирает "<версия>_<имя>.<up|down>.sql".
func parseMigrationName(base string) (version int64, name, direction string, err error) {
	versionPart, rest, ok := strings.Cut(base, "_")
	if !ok {
		return 0, "", "", fmt.Errorf("migration file %q: want <version>_<name>.<up|down>.sql", base)
	}
	version, err = strconv.ParseInt(versionPart, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("migration file %q: bad version %q", base, versionPart)
	}

	name, suffix, ok := strings.Cut(rest, ".")
	if !ok || name == "" {
		return 0, "", "", fmt.Errorf("migration file %q: missing name", base)
	}
	switch suffix {
	case "up.sql":
		direction = "up"
	case "down.sql":
		direction = "down"
	default:
		return 0, "", "", fmt.Errorf("migration file %q: want .up.sql or .down.sql", base)
	}
	return version, name, direction, nil
}

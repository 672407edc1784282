package database

import (
	"context"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations are forward-only and applied in slice order; versions must
// stay contiguous from 1.
var migrations = []migration{
	{1, "calendars", migrationV1Calendars},
	{2, "festival_dates", migrationV2FestivalDates},
}

const createSchemaMigrations = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// Migrate applies pending migrations in one transaction and returns how
// many it applied.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	count := 0
	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, createSchemaMigrations); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}

		for _, m := range migrations {
			if applied[m.version] {
				continue
			}
			db.log.Info().Int("version", m.version).Str("name", m.name).Msg("Applying migration")

			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	db.log.Info().Int("applied", count).Int("total", len(migrations)).Msg("Migrations complete")
	return count, nil
}

func appliedVersions(ctx context.Context, tx *Tx) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// migrationV1Calendars stores one computed year per (city, year,
// ayanamsha, rules hash). The payload is the encoded year including its
// padding days; the rules hash changes whenever the rule library does, so
// a stale calendar is never served for new rules.
const migrationV1Calendars = `
CREATE TABLE IF NOT EXISTS calendars (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    build_id TEXT NOT NULL,

    city TEXT NOT NULL,
    year INTEGER NOT NULL,
    ayanamsha TEXT NOT NULL,
    rules_hash TEXT NOT NULL,

    payload BLOB NOT NULL,
    days INTEGER NOT NULL,
    build_ms INTEGER NOT NULL DEFAULT 0,

    computed_at TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE (city, year, ayanamsha, rules_hash)
);

CREATE INDEX IF NOT EXISTS idx_calendars_city_year
    ON calendars(city, year);
`

// migrationV2FestivalDates indexes festival assignments so a festival's
// dates can be listed without decoding the payload.
const migrationV2FestivalDates = `
CREATE TABLE IF NOT EXISTS festival_dates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    calendar_id INTEGER NOT NULL REFERENCES calendars(id) ON DELETE CASCADE,
    festival_id TEXT NOT NULL,
    date TEXT NOT NULL,
    source TEXT NOT NULL,

    UNIQUE (calendar_id, festival_id, date)
);

CREATE INDEX IF NOT EXISTS idx_festival_dates_festival
    ON festival_dates(calendar_id, festival_id);

CREATE INDEX IF NOT EXISTS idx_festival_dates_date
    ON festival_dates(calendar_id, date);
`

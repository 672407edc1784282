package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Helper Functions
// =============================================================================

// parseTimestamp parses a timestamp from SQLite TEXT format.
// Tries multiple formats and returns nil if parsing fails.
func parseTimestamp(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t
		}
	}
	return nil
}

// =============================================================================
// Calendar Queries
// =============================================================================

// SaveCalendar stores c and its festival dates, replacing any calendar with
// the same key. It sets c.ID.
func (db *DB) SaveCalendar(ctx context.Context, c *Calendar, festivals []FestivalDate) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM calendars
			WHERE city = ? AND year = ? AND ayanamsha = ? AND rules_hash = ?
		`, c.Key.City, c.Key.Year, c.Key.Ayanamsha, c.Key.RulesHash)
		if err != nil {
			return fmt.Errorf("delete previous calendar: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO calendars (build_id, city, year, ayanamsha, rules_hash, payload, days, build_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.BuildID, c.Key.City, c.Key.Year, c.Key.Ayanamsha, c.Key.RulesHash,
			c.Payload, c.Days, c.Build.Milliseconds())
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert calendar: %w", err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("calendar id: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO festival_dates (calendar_id, festival_id, date, source)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare festival insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range festivals {
			if _, err := stmt.ExecContext(ctx, c.ID, f.FestivalID, f.Date, f.Source); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("festival %s on %s: %w", f.FestivalID, f.Date, ErrDuplicate)
				}
				return fmt.Errorf("insert festival %s: %w", f.FestivalID, err)
			}
		}

		db.log.Debug().
			Str("city", c.Key.City).
			Int("year", c.Key.Year).
			Int("festivals", len(festivals)).
			Msg("Saved calendar")
		return nil
	})
}

// GetCalendar returns the calendar stored under key.
// Returns ErrNotFound if there is none.
func (db *DB) GetCalendar(ctx context.Context, key CalendarKey) (*Calendar, error) {
	query := `
		SELECT id, build_id, payload, days, build_ms, computed_at
		FROM calendars
		WHERE city = ? AND year = ? AND ayanamsha = ? AND rules_hash = ?
	`

	c := Calendar{Key: key}
	var buildMS int64
	var computedAt sql.NullString

	err := db.QueryRowContext(ctx, query, key.City, key.Year, key.Ayanamsha, key.RulesHash).Scan(
		&c.ID,
		&c.BuildID,
		&c.Payload,
		&c.Days,
		&buildMS,
		&computedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	c.Build = time.Duration(buildMS) * time.Millisecond
	if t := parseTimestamp(computedAt); t != nil {
		c.ComputedAt = *t
	}
	return &c, nil
}

// GetFestivalDates returns the dates of festivalID in the calendar stored
// under key, in order. Returns ErrNotFound if no such calendar is stored.
func (db *DB) GetFestivalDates(ctx context.Context, key CalendarKey, festivalID string) ([]FestivalDate, error) {
	id, err := db.calendarID(ctx, key)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT festival_id, date, source
		FROM festival_dates
		WHERE calendar_id = ? AND festival_id = ?
		ORDER BY date ASC
	`, id, festivalID)
	if err != nil {
		return nil, fmt.Errorf("query festival dates: %w", err)
	}
	defer rows.Close()

	return scanFestivalDates(rows)
}

func scanFestivalDates(rows *sql.Rows) ([]FestivalDate, error) {
	out := []FestivalDate{}
	for rows.Next() {
		var f FestivalDate
		if err := rows.Scan(&f.FestivalID, &f.Date, &f.Source); err != nil {
			return nil, fmt.Errorf("scan festival date: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate festival dates: %w", err)
	}
	return out, nil
}

func (db *DB) calendarID(ctx context.Context, key CalendarKey) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `
		SELECT id FROM calendars
		WHERE city = ? AND year = ? AND ayanamsha = ? AND rules_hash = ?
	`, key.City, key.Year, key.Ayanamsha, key.RulesHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query calendar id: %w", err)
	}
	return id, nil
}

// ListCalendars summarizes every stored calendar, newest year first.
func (db *DB) ListCalendars(ctx context.Context) ([]CalendarSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.build_id, c.city, c.year, c.ayanamsha, c.rules_hash, c.days, c.computed_at,
		       (SELECT COUNT(*) FROM festival_dates f WHERE f.calendar_id = c.id)
		FROM calendars c
		ORDER BY c.year DESC, c.city ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query calendars: %w", err)
	}
	defer rows.Close()

	out := []CalendarSummary{}
	for rows.Next() {
		var s CalendarSummary
		var computedAt sql.NullString
		if err := rows.Scan(&s.BuildID, &s.Key.City, &s.Key.Year, &s.Key.Ayanamsha, &s.Key.RulesHash,
			&s.Days, &computedAt, &s.Festivals); err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		if t := parseTimestamp(computedAt); t != nil {
			s.ComputedAt = *t
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendars: %w", err)
	}
	return out, nil
}

// DeleteStale removes the calendars of a city and year that were computed
// with rules other than rulesHash. Returns the number removed.
func (db *DB) DeleteStale(ctx context.Context, city string, year int, rulesHash string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM calendars
		WHERE city = ? AND year = ? AND rules_hash != ?
	`, city, year, rulesHash)
	if err != nil {
		return 0, fmt.Errorf("delete stale calendars: %w", err)
	}
	return res.RowsAffected()
}

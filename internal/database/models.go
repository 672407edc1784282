package database

import (
	"time"
)

// CalendarKey identifies a computed year.
type CalendarKey struct {
	City      string `json:"city"`
	Year      int    `json:"year"`
	Ayanamsha string `json:"ayanamsha"`
	RulesHash string `json:"rules_hash"`
}

// Calendar is a stored computed year.
type Calendar struct {
	ID      int64       `json:"id"`
	BuildID string      `json:"build_id"`
	Key     CalendarKey `json:"key"`

	Payload []byte        `json:"-"`
	Days    int           `json:"days"`
	Build   time.Duration `json:"build_ms"`

	ComputedAt time.Time `json:"computed_at"`
}

// FestivalDate is one festival assignment of a stored calendar.
type FestivalDate struct {
	FestivalID string `json:"festival_id"`
	Date       string `json:"date"`
	Source     string `json:"source"`
}

// CalendarSummary lists a stored calendar without its payload.
type CalendarSummary struct {
	BuildID    string      `json:"build_id"`
	Key        CalendarKey `json:"key"`
	Days       int         `json:"days"`
	Festivals  int         `json:"festivals"`
	ComputedAt time.Time   `json:"computed_at"`
}

// Package rules holds festival rule records, the TOML file tree they are
// stored in and the lookup tree the festival resolver queries.
package rules

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
)

// MonthType is the month reckoning a rule is keyed on.
type MonthType string

const (
	LunarMonth         MonthType = "lunar_month"
	SiderealSolarMonth MonthType = "sidereal_solar_month"
	TropicalMonth      MonthType = "tropical_month"
)

// AngaType is the anga a rule is keyed on. AngaDay keys on the day count
// within a solar or tropical month.
type AngaType string

const (
	AngaTithi     AngaType = "tithi"
	AngaNakshatra AngaType = "nakshatra"
	AngaYoga      AngaType = "yoga"
	AngaDay       AngaType = "day"
)

// Kind returns the anga kind measured by t; AngaDay has none.
func (t AngaType) Kind() (anga.Kind, bool) {
	switch t {
	case AngaTithi:
		return anga.Tithi, true
	case AngaNakshatra:
		return anga.Nakshatra, true
	case AngaYoga:
		return anga.Yoga, true
	}
	return 0, false
}

func (t AngaType) max() int {
	if k, ok := t.Kind(); ok {
		return k.Cycle()
	}
	return 32
}

// Priority decides which of the days an anga touches gets the festival.
type Priority string

const (
	// Puurvaviddha prefers the earliest day the anga is present at the
	// rule's kaala.
	Puurvaviddha Priority = "puurvaviddha"
	// Paraviddha prefers the latest such day.
	Paraviddha Priority = "paraviddha"
	// Vyaapti prefers the day on which the anga covers most of the kaala.
	Vyaapti Priority = "vyaapti"
)

// MonthNumber is a month key read from TOML as 3, 3.5 or "03.5". Index 0
// matches every month.
type MonthNumber struct {
	anga.LunarMonth
}

// UnmarshalTOML implements toml.Unmarshaler.
func (m *MonthNumber) UnmarshalTOML(v any) error {
	var s string
	switch x := v.(type) {
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		s = x
	default:
		return fmt.Errorf("month_number: unsupported value %v (%T)", v, v)
	}
	lm, err := anga.ParseMonthKey(s)
	if err != nil {
		return fmt.Errorf("month_number: %w", err)
	}
	m.LunarMonth = lm
	return nil
}

// MarshalText writes the month key, so encoded rules read back unchanged.
func (m MonthNumber) MarshalText() ([]byte, error) {
	return []byte(m.Key()), nil
}

// Timing is where in the calendar a rule falls.
type Timing struct {
	MonthType   MonthType   `toml:"month_type,omitempty" json:"month_type,omitempty"`
	MonthNumber MonthNumber `toml:"month_number" json:"month_number"`
	AngaType    AngaType    `toml:"anga_type,omitempty" json:"anga_type,omitempty"`
	AngaNumber  int         `toml:"anga_number,omitempty" json:"anga_number,omitempty"`
	Kaala       string      `toml:"kaala,omitempty" json:"kaala,omitempty"`
	Priority    Priority    `toml:"priority,omitempty" json:"priority,omitempty"`
	YearStart   int         `toml:"year_start,omitempty" json:"year_start,omitempty"`

	AnchorFestivalID string `toml:"anchor_festival_id,omitempty" json:"anchor_festival_id,omitempty"`
	Offset           int    `toml:"offset,omitempty" json:"offset,omitempty"`
}

// Rule is one festival definition. Rules without timing carry only
// descriptive text.
type Rule struct {
	ID     string  `toml:"id" json:"id"`
	Timing *Timing `toml:"timing,omitempty" json:"timing,omitempty"`

	Tags                []string            `toml:"tags,omitempty" json:"tags,omitempty"`
	Names               map[string][]string `toml:"names,omitempty" json:"names,omitempty"`
	Description         map[string]string   `toml:"description,omitempty" json:"description,omitempty"`
	Comments            string              `toml:"comments,omitempty" json:"comments,omitempty"`
	Image               string              `toml:"image,omitempty" json:"image,omitempty"`
	Shlokas             string              `toml:"shlokas,omitempty" json:"shlokas,omitempty"`
	ReferencesPrimary   []string            `toml:"references_primary,omitempty" json:"references_primary,omitempty"`
	ReferencesSecondary []string            `toml:"references_secondary,omitempty" json:"references_secondary,omitempty"`

	// SourcePath is the file the rule was loaded from, if any.
	SourcePath string `toml:"-" json:"-"`
}

// IsRelative reports whether the rule is defined by an anchor and offset.
func (r *Rule) IsRelative() bool {
	return r.Timing != nil && r.Timing.AnchorFestivalID != ""
}

// IsDescriptionOnly reports whether the rule has no timing.
func (r *Rule) IsDescriptionOnly() bool {
	return r.Timing == nil
}

// Branch returns the tree branch of an anga-keyed rule.
func (r *Rule) Branch() Branch {
	return Branch{MonthType: r.Timing.MonthType, AngaType: r.Timing.AngaType}
}

// ApplyDefaults fills the kaala and priority when they are unset.
func (r *Rule) ApplyDefaults() {
	if r.Timing == nil || r.IsRelative() {
		return
	}
	if r.Timing.Kaala == "" {
		r.Timing.Kaala = panchaanga.KaalaSunrise
	}
	if r.Timing.Priority == "" {
		r.Timing.Priority = Puurvaviddha
	}
}

// Validate checks the rule's fields.
func (r *Rule) Validate() error {
	var errs []error
	if strings.TrimSpace(r.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if r.Timing == nil || r.IsRelative() {
		return errors.Join(errs...)
	}

	t := r.Timing
	switch t.MonthType {
	case LunarMonth, SiderealSolarMonth, TropicalMonth:
	default:
		errs = append(errs, fmt.Errorf("month_type must be one of: lunar_month, sidereal_solar_month, tropical_month; got %q", t.MonthType))
	}
	switch t.AngaType {
	case AngaTithi, AngaNakshatra, AngaYoga, AngaDay:
	default:
		errs = append(errs, fmt.Errorf("anga_type must be one of: tithi, nakshatra, yoga, day; got %q", t.AngaType))
	}
	if t.AngaNumber < 1 || t.AngaNumber > t.AngaType.max() {
		errs = append(errs, fmt.Errorf("anga_number %d out of range for %s", t.AngaNumber, t.AngaType))
	}
	if t.MonthNumber.Adhika && t.MonthType != LunarMonth {
		errs = append(errs, fmt.Errorf("adhika month %s only exists for lunar_month", t.MonthNumber.Key()))
	}
	if t.AngaType == AngaDay && t.MonthType == LunarMonth {
		errs = append(errs, errors.New("anga_type day needs a solar or tropical month_type"))
	}
	if !panchaanga.IsKaala(t.Kaala) {
		errs = append(errs, fmt.Errorf("unknown kaala %q", t.Kaala))
	}
	switch t.Priority {
	case Puurvaviddha, Paraviddha, Vyaapti:
	default:
		errs = append(errs, fmt.Errorf("priority must be one of: puurvaviddha, paraviddha, vyaapti; got %q", t.Priority))
	}
	return errors.Join(errs...)
}

// FileID turns a rule id into a file-name-safe stem.
func FileID(id string) string {
	return strings.ReplaceAll(id, "/", "__")
}

// StoragePath returns the rule's canonical path relative to a rules
// directory.
func (r *Rule) StoragePath() string {
	file := FileID(r.ID) + "__info.toml"
	switch {
	case r.Timing == nil:
		return path.Join("description_only", file)
	case r.IsRelative():
		return path.Join("relative_event", FileID(r.Timing.AnchorFestivalID),
			fmt.Sprintf("offset__%02d", r.Timing.Offset), file)
	default:
		t := r.Timing
		return path.Join(string(t.MonthType), string(t.AngaType), t.MonthNumber.Key(),
			fmt.Sprintf("%02d", t.AngaNumber), file)
	}
}

// Title returns the rule's first name in the given script, falling back to
// the id.
func (r *Rule) Title(script string) string {
	if names := r.Names[script]; len(names) > 0 {
		return names[0]
	}
	scripts := make([]string, 0, len(r.Names))
	for s := range r.Names {
		scripts = append(scripts, s)
	}
	sort.Strings(scripts)
	for _, s := range scripts {
		if names := r.Names[s]; len(names) > 0 {
			return names[0]
		}
	}
	return r.ID
}

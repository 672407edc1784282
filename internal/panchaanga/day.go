// Package panchaanga assembles the daily panchaanga for every day of a year:
// sunrise and sunset, the spans of every anga kind, named kaalas, the solar,
// tropical and lunar months and eclipses. Festivals are attached afterwards
// by the festival resolver.
package panchaanga

import (
	"sort"
	"time"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

// EclipseKind distinguishes solar from lunar eclipses.
type EclipseKind string

const (
	SolarEclipse EclipseKind = "solar"
	LunarEclipse EclipseKind = "lunar"
)

// Eclipse is an eclipse whose maximum falls within a day.
type Eclipse struct {
	Kind EclipseKind `json:"kind"`
	ephemeris.EclipseWindow
}

// Day is one civil day's panchaanga. The day's anga window runs from its
// sunrise to the next day's sunrise.
type Day struct {
	Date    string       `json:"date"`
	Weekday time.Weekday `json:"weekday"`
	// JulianStart is local midnight.
	JulianStart julian.Day `json:"julian_start"`

	Sunrise     julian.Day  `json:"sunrise"`
	Sunset      julian.Day  `json:"sunset"`
	NextSunrise julian.Day  `json:"next_sunrise"`
	Moonrise    *julian.Day `json:"moonrise,omitempty"`
	Moonset     *julian.Day `json:"moonset,omitempty"`

	Angas  map[anga.Kind]anga.DaySpans `json:"angas"`
	Kaalas map[string]Interval         `json:"kaalas"`

	// Months are taken at sunset.
	SolarMonth       int             `json:"solar_month"`
	SolarMonthDay    int             `json:"solar_month_day"`
	Sankranti        *julian.Day     `json:"sankranti,omitempty"`
	TropicalMonth    int             `json:"tropical_month"`
	TropicalMonthDay int             `json:"tropical_month_day"`
	LunarMonth       anga.LunarMonth `json:"lunar_month"`

	Eclipses  []Eclipse `json:"eclipses,omitempty"`
	Festivals []string  `json:"festivals"`
}

// Window returns the day's anga window, sunrise to next sunrise.
func (d *Day) Window() Interval {
	return Interval{Start: d.Sunrise, End: d.NextSunrise}
}

// Spans returns the day's spans of kind.
func (d *Day) Spans(kind anga.Kind) []anga.Span {
	return d.Angas[kind].Spans
}

// Kaala returns the named kaala. Sunrise, sunset, moonrise and moonset are
// returned as instants; moonrise and moonset are absent on days the Moon
// does not rise or set.
func (d *Day) Kaala(name string) (Interval, bool) {
	instant := func(jd julian.Day) (Interval, bool) { return Interval{jd, jd}, true }
	switch name {
	case KaalaSunrise:
		return instant(d.Sunrise)
	case KaalaSunset:
		return instant(d.Sunset)
	case KaalaMoonrise:
		if d.Moonrise == nil {
			return Interval{}, false
		}
		return instant(*d.Moonrise)
	case KaalaMoonset:
		if d.Moonset == nil {
			return Interval{}, false
		}
		return instant(*d.Moonset)
	}
	in, ok := d.Kaalas[name]
	return in, ok
}

// HasFestival reports whether id is attached to the day.
func (d *Day) HasFestival(id string) bool {
	i := sort.SearchStrings(d.Festivals, id)
	return i < len(d.Festivals) && d.Festivals[i] == id
}

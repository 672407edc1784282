// Package ics exports the festivals of a panchaanga year as an iCalendar
// feed of all-day events.
package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/zapponejosh/panchaanga-api/internal/festival"
	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
	"github.com/zapponejosh/panchaanga-api/internal/rules"
)

// RuleSource looks rules up by id; *rules.Tree satisfies it.
type RuleSource interface {
	Rule(id string) (*rules.Rule, bool)
}

// Options control the feed's presentation.
type Options struct {
	// Script selects the festival names, e.g. "en" or "sa".
	Script string
	// Stamp is written as every event's DTSTAMP. Zero means now.
	Stamp time.Time
	// Include, when set, limits the feed to these festival ids.
	Include map[string]bool
}

var builtinTitles = map[string]string{
	festival.SolarEclipseID: "Solar eclipse",
	festival.LunarEclipseID: "Lunar eclipse",
}

// Calendar builds the feed for y. Festivals without a rule are kept under
// their id.
func Calendar(y *panchaanga.Year, src RuleSource, opts Options) *ical.Calendar {
	if opts.Script == "" {
		opts.Script = "en"
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//panchaanga-api//festivals//EN")
	cal.SetXWRCalName(fmt.Sprintf("Festivals %d, %s", y.Year, y.City.Name))
	cal.SetXWRTimezone(y.City.Timezone)

	for _, d := range y.Real() {
		date, err := time.Parse(time.DateOnly, d.Date)
		if err != nil {
			continue
		}
		for _, id := range d.Festivals {
			if opts.Include != nil && !opts.Include[id] {
				continue
			}
			addEvent(cal, y, src, opts, id, date)
		}
	}
	return cal
}

func addEvent(cal *ical.Calendar, y *panchaanga.Year, src RuleSource, opts Options, id string, date time.Time) {
	ev := cal.AddEvent(fmt.Sprintf("%s-%s-%s@panchaanga", rules.FileID(id), date.Format("20060102"), y.City.Key))
	ev.SetDtStampTime(opts.Stamp)
	ev.SetAllDayStartAt(date)
	ev.SetAllDayEndAt(date.AddDate(0, 0, 1))
	ev.SetLocation(y.City.Name)

	title, ok := builtinTitles[id]
	if !ok {
		title = id
	}
	if r, found := src.Rule(id); found {
		title = r.Title(opts.Script)
		if desc := r.Description[opts.Script]; desc != "" {
			ev.SetDescription(desc)
		}
		if len(r.Tags) > 0 {
			ev.AddProperty(ical.ComponentPropertyCategories, strings.Join(r.Tags, ","))
		}
	}
	ev.SetSummary(title)
}

// Write serializes the feed for y to w.
func Write(w io.Writer, y *panchaanga.Year, src RuleSource, opts Options) error {
	return Calendar(y, src, opts).SerializeTo(w)
}

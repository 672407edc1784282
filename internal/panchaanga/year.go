package panchaanga

import (
	"sort"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/julian"
	"github.com/zapponejosh/panchaanga-api/internal/location"
)

// System names the month reckoning used by the builder.
const System = "amaanta"

// Year is the panchaanga of one Gregorian year for one city. Days[0] is the
// last day of the previous year and Days[len(Days)-1] the first day of the
// next, so lookups one day either side never leave the slice.
type Year struct {
	City      location.City       `json:"city"`
	Year      int                 `json:"year"`
	Ayanamsha ephemeris.Ayanamsha `json:"ayanamsha"`
	System    string              `json:"system"`
	Days      []*Day              `json:"days"`
}

// Real returns the days that belong to the year, without padding.
func (y *Year) Real() []*Day {
	if len(y.Days) < 2 {
		return nil
	}
	return y.Days[1 : len(y.Days)-1]
}

// IsReal reports whether index i is a day of the year rather than padding.
func (y *Year) IsReal(i int) bool {
	return i > 0 && i < len(y.Days)-1
}

// Index returns the slice index of the day with the given date.
func (y *Year) Index(date string) (int, bool) {
	i := sort.Search(len(y.Days), func(i int) bool { return y.Days[i].Date >= date })
	if i < len(y.Days) && y.Days[i].Date == date {
		return i, true
	}
	return 0, false
}

// Day returns the day with the given date.
func (y *Year) Day(date string) (*Day, bool) {
	i, ok := y.Index(date)
	if !ok {
		return nil, false
	}
	return y.Days[i], true
}

// AngaAt returns the anga of kind in progress at jd, starting the search at
// day i and looking back through earlier days when day i has no span
// covering jd.
func (y *Year) AngaAt(i int, kind anga.Kind, jd julian.Day) (anga.Anga, bool) {
	for d := i; d >= 0; d-- {
		spans := y.Days[d].Spans(kind)
		for j := len(spans) - 1; j >= 0; j-- {
			s := spans[j]
			if s.Start > jd {
				continue
			}
			if s.End == nil || jd < *s.End {
				return s.Anga, true
			}
			return anga.Anga{}, false
		}
	}
	return anga.Anga{}, false
}

// SunriseAnga returns the anga of kind in progress at day i's sunrise.
func (y *Year) SunriseAnga(i int, kind anga.Kind) (anga.Anga, bool) {
	return y.AngaAt(i, kind, y.Days[i].Sunrise)
}

// SetFestivals replaces the festival sets of the real days with byDay,
// keyed by index into Days. Each set is stored sorted and deduplicated, so
// applying the same result twice leaves the year unchanged.
func (y *Year) SetFestivals(byDay map[int][]string) {
	for i, d := range y.Days {
		if !y.IsReal(i) {
			d.Festivals = nil
			continue
		}
		d.Festivals = normalizeSet(byDay[i])
	}
}

func normalizeSet(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// FestivalDays returns the dates on which id falls.
func (y *Year) FestivalDays(id string) []string {
	var dates []string
	for _, d := range y.Real() {
		if d.HasFestival(id) {
			dates = append(dates, d.Date)
		}
	}
	return dates
}

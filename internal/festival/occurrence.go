package festival

import (
	"math"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
	"github.com/zapponejosh/panchaanga-api/internal/julian"
	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
)

// occurrence is one anga instance stitched together from the per-day spans
// it appears in. first and last are the indices of the days whose
// sunrise-to-sunrise windows it touches.
type occurrence struct {
	anga        anga.Anga
	start, end  julian.Day
	month       *anga.LunarMonth
	first, last int
}

var openEnd = julian.Day(math.Inf(1))

// occurrences lists every instance of kind in the year in order. An
// instance still running at the end of the year gets an infinite end.
func occurrences(y *panchaanga.Year, kind anga.Kind) []occurrence {
	var out []occurrence
	open := -1

	for i, d := range y.Days {
		for _, s := range d.Spans(kind) {
			if open >= 0 && out[open].anga == s.Anga {
				if s.End != nil {
					out[open].end = *s.End
					open = -1
				}
				continue
			}

			o := occurrence{anga: s.Anga, start: s.Start, end: openEnd, month: s.LunarMonth, first: i}
			if s.End != nil {
				o.end = *s.End
			}
			out = append(out, o)
			if s.End == nil {
				open = len(out) - 1
			} else {
				open = -1
			}
		}
	}

	for i := range out {
		out[i].last = lastTouched(y, out[i])
	}
	return out
}

// lastTouched returns the last day whose window contains an instant of o.
// An instance ending exactly at a sunrise does not touch that day.
func lastTouched(y *panchaanga.Year, o occurrence) int {
	j := o.first
	for j < len(y.Days)-1 && y.Days[j].NextSunrise < o.end {
		j++
	}
	return j
}

// presentAt reports whether o is in progress at the day's kaala. For an
// instant the anga must contain it; for a window they must overlap.
func (o occurrence) presentAt(d *panchaanga.Day, kaala string) bool {
	k, ok := d.Kaala(kaala)
	if !ok {
		return false
	}
	if k.IsInstant() {
		return o.start <= k.Start && k.Start < o.end
	}
	return o.start < k.End && o.end > k.Start
}

// overlap returns the length in days that o shares with the day's kaala.
func (o occurrence) overlap(d *panchaanga.Day, kaala string) float64 {
	k, ok := d.Kaala(kaala)
	if !ok || k.IsInstant() {
		return 0
	}
	lo, hi := math.Max(float64(o.start), float64(k.Start)), math.Min(float64(o.end), float64(k.End))
	return math.Max(0, hi-lo)
}

// containsEnd reports whether the day's window holds o's end.
func (o occurrence) containsEnd(d *panchaanga.Day) bool {
	return o.end >= d.Sunrise && o.end < d.NextSunrise
}

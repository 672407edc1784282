package anga

import (
	"fmt"
	"math"
	"sync"

	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

// maxUnitDays is the longest time, in days, one anga of each kind can last.
var maxUnitDays = map[Kind]float64{
	Tithi:         1.2,
	Nakshatra:     1.25,
	Yoga:          1.1,
	Karana:        0.65,
	SolarMonth:    32.5,
	MoonRashi:     2.8,
	TropicalMonth: 32.5,
}

// Span is one anga occurrence clipped to a day's window. End is nil when
// the anga continues past the window.
type Span struct {
	Anga  Anga        `json:"anga"`
	Start julian.Day  `json:"start"`
	End   *julian.Day `json:"end,omitempty"`
	// LunarMonth is set on tithi spans.
	LunarMonth *LunarMonth `json:"lunar_month,omitempty"`
}

// Contains reports whether jd falls inside the span. An open span contains
// every instant from its start on.
func (s Span) Contains(jd julian.Day) bool {
	return jd >= s.Start && (s.End == nil || jd < *s.End)
}

// DaySpans is the ordered list of spans of one kind within
// [sunrise, nextSunrise). An empty list means the anga in progress at
// sunrise began on an earlier day and continues past the window.
type DaySpans struct {
	Kind  Kind   `json:"kind"`
	Spans []Span `json:"spans"`
	// NextPreview names the anga following the last span that ends within
	// the day. Only yoga and karana carry it.
	NextPreview *Anga `json:"next_preview,omitempty"`
}

// Calculator evaluates angas against an ephemeris.
type Calculator struct {
	eph       ephemeris.Adapter
	ayanamsha ephemeris.Ayanamsha

	mu        sync.Mutex
	lunations []lunation
}

// NewCalculator returns a calculator over eph using the given zodiac for
// sidereal kinds.
func NewCalculator(eph ephemeris.Adapter, ayanamsha ephemeris.Ayanamsha) *Calculator {
	return &Calculator{eph: eph, ayanamsha: ayanamsha}
}

// Ayanamsha returns the zodiac the calculator was built with.
func (c *Calculator) Ayanamsha() ephemeris.Ayanamsha {
	return c.ayanamsha
}

func (c *Calculator) degrees(kind Kind, jd julian.Day) (float64, error) {
	sun, err := c.eph.Longitude(jd, ephemeris.Sun)
	if err != nil {
		return 0, err
	}
	if kind == SolarMonth || kind == TropicalMonth {
		if kind == SolarMonth {
			sun = c.ayanamsha.Sidereal(jd, sun)
		}
		return sun, nil
	}

	moon, err := c.eph.Longitude(jd, ephemeris.Moon)
	if err != nil {
		return 0, err
	}

	switch kind {
	case Tithi, Karana:
		return moon - sun, nil
	case Nakshatra, MoonRashi:
		return c.ayanamsha.Sidereal(jd, moon), nil
	case Yoga:
		return c.ayanamsha.Sidereal(jd, moon) + c.ayanamsha.Sidereal(jd, sun), nil
	default:
		return 0, fmt.Errorf("unknown anga kind %d", int(kind))
	}
}

// Value returns kind's angular function at jd in anga units, in
// [0, cycle).
func (c *Calculator) Value(kind Kind, jd julian.Day) (float64, error) {
	deg, err := c.degrees(kind, jd)
	if err != nil {
		return 0, err
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	v := deg / kind.Span()
	if v >= float64(kind.Cycle()) {
		v = 0
	}
	return v, nil
}

// AngleFunc binds Value to kind.
func (c *Calculator) AngleFunc(kind Kind) AngleFunc {
	return func(jd julian.Day) (float64, error) {
		return c.Value(kind, jd)
	}
}

// IndexAt returns the anga of kind in progress at jd.
func (c *Calculator) IndexAt(kind Kind, jd julian.Day) (Anga, error) {
	v, err := c.Value(kind, jd)
	if err != nil {
		return Anga{}, err
	}
	return Anga{Kind: kind, Index: int(math.Floor(v)) + 1}, nil
}

// endTarget is the value at which a ends.
func endTarget(a Anga) float64 {
	return float64(a.Index % a.Kind.Cycle())
}

// EndTime returns the instant in [lo, hi] at which a ends.
func (c *Calculator) EndTime(a Anga, lo, hi julian.Day) (julian.Day, error) {
	return FindCrossing(c.AngleFunc(a.Kind), endTarget(a), float64(a.Kind.Cycle()), lo, hi)
}

// StartOf returns the instant at which the anga of kind in progress at jd
// began.
func (c *Calculator) StartOf(kind Kind, jd julian.Day) (julian.Day, error) {
	v, err := c.Value(kind, jd)
	if err != nil {
		return 0, err
	}
	idx := math.Floor(v)
	back := (v-idx)*maxUnitDays[kind] + maxUnitDays[kind]/10
	return FindCrossing(c.AngleFunc(kind), idx, float64(kind.Cycle()), jd.Add(-back), jd)
}

// DaySpans lays kind's angas over [sunrise, nextSunrise).
func (c *Calculator) DaySpans(kind Kind, sunrise, nextSunrise julian.Day) (DaySpans, error) {
	out := DaySpans{Kind: kind}
	fn := c.AngleFunc(kind)
	cycle := float64(kind.Cycle())

	v, err := fn(sunrise)
	if err != nil {
		return out, err
	}
	cur := Anga{Kind: kind, Index: int(math.Floor(v)) + 1}
	startedBefore := v > math.Floor(v)

	start := sunrise
	for {
		r, err := residual(fn, nextSunrise, endTarget(cur), cycle)
		if err != nil {
			return out, err
		}
		if r < 0 {
			if len(out.Spans) == 0 && startedBefore {
				break
			}
			out.Spans = append(out.Spans, Span{Anga: cur, Start: start})
			break
		}

		end, err := FindCrossing(fn, endTarget(cur), cycle, start, nextSunrise)
		if err != nil {
			return out, fmt.Errorf("end of %s: %w", cur, err)
		}
		e := end
		out.Spans = append(out.Spans, Span{Anga: cur, Start: start, End: &e})
		if end >= nextSunrise {
			break
		}
		cur = cur.Next()
		start = end
	}

	if kind == Tithi {
		for i := range out.Spans {
			s := &out.Spans[i]
			probe := s.Start.Add(1e-3)
			if s.End != nil {
				probe = s.Start + (*s.End-s.Start)/2
			}
			m, err := c.LunarMonthAt(probe)
			if err != nil {
				return out, fmt.Errorf("lunar month of %s: %w", s.Anga, err)
			}
			s.LunarMonth = &m
		}
	}

	if kind == Yoga || kind == Karana {
		for i := len(out.Spans) - 1; i >= 0; i-- {
			if out.Spans[i].End != nil {
				next := out.Spans[i].Anga.Next()
				out.NextPreview = &next
				break
			}
		}
	}

	return out, nil
}

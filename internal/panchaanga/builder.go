package panchaanga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/julian"
	"github.com/zapponejosh/panchaanga-api/internal/location"
)

// Builder computes a Year. It keeps no state between builds; every call
// gets its own ephemeris cache and calculator.
type Builder struct {
	eph       ephemeris.Adapter
	ayanamsha ephemeris.Ayanamsha
	log       zerolog.Logger

	observe func(hits, misses int)
}

// NewBuilder creates a builder over eph.
func NewBuilder(eph ephemeris.Adapter, ayanamsha ephemeris.Ayanamsha, log zerolog.Logger) *Builder {
	return &Builder{
		eph:       eph,
		ayanamsha: ayanamsha,
		log:       log.With().Str("component", "panchaanga_builder").Logger(),
	}
}

// ObserveCache registers fn to receive the ephemeris cache counts at the
// end of every successful build.
func (b *Builder) ObserveCache(fn func(hits, misses int)) *Builder {
	b.observe = fn
	return b
}

// solarDay holds the rise and set instants of one civil date.
type solarDay struct {
	date    time.Time
	start   julian.Day
	sunrise julian.Day
	sunset  julian.Day
}

// Build computes every day of year for city plus one padding day on each
// side. Any engine error aborts the build.
func (b *Builder) Build(ctx context.Context, city location.City, year int) (*Year, error) {
	started := time.Now()

	loc, err := city.Location()
	if err != nil {
		return nil, err
	}

	cache := ephemeris.NewCache(b.eph)
	calc := anga.NewCalculator(cache, b.ayanamsha)

	// Padding days plus one more on each side for the previous night of
	// the first day and the next sunrise of the last.
	first := time.Date(year, time.January, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -2)
	last := time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	var sky []solarDay
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		start := julian.FromTime(d)
		sunrise, err := cache.RiseTime(start, ephemeris.Sun, city.Latitude, city.Longitude)
		if err != nil {
			return nil, fmt.Errorf("sunrise on %s: %w", d.Format(time.DateOnly), err)
		}
		sunset, err := cache.SetTime(sunrise, ephemeris.Sun, city.Latitude, city.Longitude)
		if err != nil {
			return nil, fmt.Errorf("sunset on %s: %w", d.Format(time.DateOnly), err)
		}
		sky = append(sky, solarDay{date: d, start: start, sunrise: sunrise, sunset: sunset})
	}

	y := &Year{
		City:      city,
		Year:      year,
		Ayanamsha: b.ayanamsha,
		System:    System,
		Days:      make([]*Day, 0, len(sky)-2),
	}

	r := &run{city: city, eph: cache, calc: calc, months: monthTracker{
		calc: calc,
		eph:  cache,
		lat:  city.Latitude,
		lon:  city.Longitude,
	}}
	for i := 1; i < len(sky)-1; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day, err := b.buildDay(r, sky[i-1], sky[i], sky[i+1])
		if err != nil {
			return nil, fmt.Errorf("build %s for %s: %w", sky[i].date.Format(time.DateOnly), city.Key, err)
		}
		y.Days = append(y.Days, day)
	}

	if err := b.attachEclipses(cache, y); err != nil {
		return nil, fmt.Errorf("eclipses for %d: %w", year, err)
	}

	hits, misses := cache.Stats()
	if b.observe != nil {
		b.observe(hits, misses)
	}
	b.log.Debug().
		Str("city", city.Key).
		Int("year", year).
		Int("days", len(y.Days)).
		Int("cache_hits", hits).
		Int("cache_misses", misses).
		Dur("elapsed", time.Since(started)).
		Msg("Built panchaanga year")

	return y, nil
}

// run is the state of one Build call.
type run struct {
	city   location.City
	eph    ephemeris.Adapter
	calc   *anga.Calculator
	months monthTracker
}

func (b *Builder) buildDay(r *run, prev, cur, next solarDay) (*Day, error) {
	day := &Day{
		Date:        cur.date.Format(time.DateOnly),
		Weekday:     cur.date.Weekday(),
		JulianStart: cur.start,
		Sunrise:     cur.sunrise,
		Sunset:      cur.sunset,
		NextSunrise: next.sunrise,
		Angas:       make(map[anga.Kind]anga.DaySpans, len(anga.Kinds)),
	}

	end := cur.start.Add(1)
	if rise, err := r.moonEvent(cur.start, true); err != nil {
		return nil, err
	} else if rise != nil && *rise < end {
		day.Moonrise = rise
	}
	if set, err := r.moonEvent(cur.start, false); err != nil {
		return nil, err
	} else if set != nil && *set < end {
		day.Moonset = set
	}

	for _, kind := range anga.Kinds {
		spans, err := r.calc.DaySpans(kind, cur.sunrise, next.sunrise)
		if err != nil {
			return nil, fmt.Errorf("%s spans: %w", kind, err)
		}
		day.Angas[kind] = spans
	}

	day.Kaalas = computeKaalas(day.Weekday,
		Interval{Start: prev.sunset, End: cur.sunrise},
		Interval{Start: cur.sunrise, End: cur.sunset},
		Interval{Start: cur.sunset, End: next.sunrise},
	)

	for _, s := range day.Spans(anga.SolarMonth) {
		if s.End != nil {
			sankranti := *s.End
			day.Sankranti = &sankranti
			break
		}
	}

	var err error
	if day.SolarMonth, day.SolarMonthDay, err = r.months.at(anga.SolarMonth, cur.sunset); err != nil {
		return nil, err
	}
	if day.TropicalMonth, day.TropicalMonthDay, err = r.months.at(anga.TropicalMonth, cur.sunset); err != nil {
		return nil, err
	}
	if day.LunarMonth, err = r.calc.LunarMonthAt(cur.sunset); err != nil {
		return nil, fmt.Errorf("lunar month: %w", err)
	}

	return day, nil
}

// moonEvent returns nil when the Moon does not rise or set near the day.
func (r *run) moonEvent(start julian.Day, rise bool) (*julian.Day, error) {
	var (
		jd  julian.Day
		err error
	)
	if rise {
		jd, err = r.eph.RiseTime(start, ephemeris.Moon, r.city.Latitude, r.city.Longitude)
	} else {
		jd, err = r.eph.SetTime(start, ephemeris.Moon, r.city.Latitude, r.city.Longitude)
	}
	if errors.Is(err, ephemeris.ErrNoRiseSet) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("moon event: %w", err)
	}
	return &jd, nil
}

// monthTracker counts sunsets since the start of the current solar and
// tropical month. A day whose sunset falls in a new month is day 1; every
// later day adds one, so no day is counted twice or skipped however the
// sunset drifts against the sankranti.
type monthTracker struct {
	calc     *anga.Calculator
	eph      ephemeris.Adapter
	lat, lon float64
	last     map[anga.Kind]monthDay
}

type monthDay struct {
	index int
	day   int
}

// maxMonthDays bounds the backwards sunset walk of the first call.
const maxMonthDays = 40

// at returns the month of kind in progress at sunset and its 1-based day
// count. Calls must come in consecutive sunset order.
func (m *monthTracker) at(kind anga.Kind, sunset julian.Day) (int, int, error) {
	a, err := m.calc.IndexAt(kind, sunset)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", kind, err)
	}
	if m.last == nil {
		m.last = make(map[anga.Kind]monthDay)
	}
	cur := monthDay{index: a.Index, day: 1}
	if last, ok := m.last[kind]; ok {
		if last.index == a.Index {
			cur.day = last.day + 1
		}
	} else if cur.day, err = m.sunsetsSince(kind, sunset); err != nil {
		return 0, 0, err
	}
	m.last[kind] = cur
	return cur.index, cur.day, nil
}

// sunsetsSince counts the sunsets from the start of the month in progress
// at sunset up to and including sunset itself.
func (m *monthTracker) sunsetsSince(kind anga.Kind, sunset julian.Day) (int, error) {
	start, err := m.calc.StartOf(kind, sunset)
	if err != nil {
		return 0, fmt.Errorf("%s start: %w", kind, err)
	}
	count := 1
	for s := sunset; count < maxMonthDays; count++ {
		prev, err := m.eph.SetTime(s.Add(-1.25), ephemeris.Sun, m.lat, m.lon)
		if err != nil {
			return 0, fmt.Errorf("sunset before %v: %w", s, err)
		}
		if prev <= start || prev >= s {
			break
		}
		s = prev
	}
	return count, nil
}

// attachEclipses adds the eclipses visible from the city to the day on
// which their local maximum falls.
func (b *Builder) attachEclipses(eph ephemeris.Adapter, y *Year) error {
	if len(y.Days) == 0 {
		return nil
	}
	from := y.Days[0].Sunrise
	until := y.Days[len(y.Days)-1].NextSunrise

	search := []struct {
		kind EclipseKind
		body ephemeris.Body
		next func(julian.Day) (ephemeris.EclipseWindow, error)
	}{
		{SolarEclipse, ephemeris.Sun, eph.SolarEclipse},
		{LunarEclipse, ephemeris.Moon, eph.LunarEclipse},
	}

	for _, s := range search {
		for jd := from; jd < until; {
			w, err := s.next(jd)
			if errors.Is(err, ephemeris.ErrNoEclipse) {
				break
			}
			if err != nil {
				return err
			}
			if w.Max >= until {
				break
			}
			jd = w.Max.Add(1)

			local, ok, err := eph.LocalEclipse(w, s.body, y.City.Latitude, y.City.Longitude)
			if err != nil {
				return err
			}
			if !ok {
				b.log.Debug().
					Str("city", y.City.Key).
					Str("kind", string(s.kind)).
					Time("max", w.Max.Time()).
					Msg("Eclipse not visible from city")
				continue
			}
			for _, d := range y.Days {
				if local.Max >= d.Sunrise && local.Max < d.NextSunrise {
					d.Eclipses = append(d.Eclipses, Eclipse{Kind: s.kind, EclipseWindow: local})
					break
				}
			}
		}
	}
	return nil
}

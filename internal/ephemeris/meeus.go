package ephemeris

import (
	"fmt"
	"math"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

// Meeus computes positions with the algorithms of Jean Meeus
// (Astronomical Algorithms, 2nd ed.). Sunrise and sunset come from
// go-sunrise; moonrise and moonset are found by bisecting the Moon's
// altitude against the standard horizon.
type Meeus struct {
	// Step is the scan step used when bracketing moonrise and moonset.
	Step time.Duration
}

// NewMeeus returns a Meeus adapter with an hourly moon scan.
func NewMeeus() *Meeus {
	return &Meeus{Step: time.Hour}
}

var _ Adapter = (*Meeus)(nil)

// Longitude returns the apparent tropical longitude of body at jd.
func (m *Meeus) Longitude(jd julian.Day, body Body) (float64, error) {
	jde := jd.TT()
	switch body {
	case Sun:
		return normDeg(solar.ApparentLongitude(base.J2000Century(jde)).Deg()), nil
	case Moon:
		lon, _, _ := moonposition.Position(jde)
		dpsi, _ := nutation.Nutation(jde)
		return normDeg((lon + dpsi).Deg()), nil
	default:
		return 0, fmt.Errorf("longitude: unsupported body %s", body)
	}
}

// RiseTime returns the first rise of body at or after jdStart.
func (m *Meeus) RiseTime(jdStart julian.Day, body Body, lat, lon float64) (julian.Day, error) {
	switch body {
	case Sun:
		return m.sunEvent(jdStart, lat, lon, true)
	case Moon:
		return m.moonEvent(jdStart, lat, lon, true)
	default:
		return 0, fmt.Errorf("rise time: unsupported body %s", body)
	}
}

// SetTime returns the first set of body at or after jdStart.
func (m *Meeus) SetTime(jdStart julian.Day, body Body, lat, lon float64) (julian.Day, error) {
	switch body {
	case Sun:
		return m.sunEvent(jdStart, lat, lon, false)
	case Moon:
		return m.moonEvent(jdStart, lat, lon, false)
	default:
		return 0, fmt.Errorf("set time: unsupported body %s", body)
	}
}

// sunEvent asks go-sunrise for the event on the observer's local solar
// date and steps forward a date at a time until the event is not earlier
// than jdStart.
func (m *Meeus) sunEvent(jdStart julian.Day, lat, lon float64, rise bool) (julian.Day, error) {
	local := jdStart.Time().Add(time.Duration(lon / 15 * float64(time.Hour)))
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	for i := -1; i < 3; i++ {
		d := date.AddDate(0, 0, i)
		sr, ss := sunrise.SunriseSunset(lat, lon, d.Year(), d.Month(), d.Day())
		event := ss
		if rise {
			event = sr
		}
		if event.IsZero() {
			return 0, fmt.Errorf("sun at %.3f,%.3f on %s: %w", lat, lon, d.Format(time.DateOnly), ErrNoRiseSet)
		}
		if jd := julian.FromTime(event); jd >= jdStart {
			return jd, nil
		}
	}
	return 0, fmt.Errorf("sun at %.3f,%.3f after %s: %w", lat, lon, jdStart.Time().Format(time.RFC3339), ErrNoRiseSet)
}

// moonEvent scans forward for the altitude crossing and bisects it.
func (m *Meeus) moonEvent(jdStart julian.Day, lat, lon float64, rise bool) (julian.Day, error) {
	step := m.Step.Hours() / 24
	if step <= 0 {
		step = 1.0 / 24
	}

	f := func(jd julian.Day) float64 {
		alt, h0 := moonAltitude(jd, lat, lon)
		return alt - h0
	}

	prev := f(jdStart)
	for t := jdStart.Add(step); t <= jdStart.Add(2); t = t.Add(step) {
		cur := f(t)
		crossed := prev < 0 && cur >= 0
		if !rise {
			crossed = prev > 0 && cur <= 0
		}
		if crossed {
			lo, hi := t.Add(-step), t
			for i := 0; i < 40; i++ {
				mid := lo + (hi-lo)/2
				v := f(mid)
				if (rise && v < 0) || (!rise && v > 0) {
					lo = mid
				} else {
					hi = mid
				}
			}
			return hi, nil
		}
		prev = cur
	}
	return 0, fmt.Errorf("moon at %.3f,%.3f after %s: %w", lat, lon, jdStart.Time().Format(time.RFC3339), ErrNoRiseSet)
}

// moonAltitude returns the geocentric altitude of the Moon in degrees and
// the standard altitude h0 for its rise or set (Meeus 15.1 with 0.7275π).
func moonAltitude(jd julian.Day, lat, lon float64) (alt, h0 float64) {
	jde := jd.TT()
	lambda, beta, dist := moonposition.Position(jde)
	dpsi, deps := nutation.Nutation(jde)
	eps := nutation.MeanObliquity(jde) + deps
	lambda += dpsi

	sl, cl := math.Sincos(lambda.Rad())
	se, ce := math.Sincos(eps.Rad())
	sb, cb := math.Sincos(beta.Rad())

	ra := math.Atan2(sl*ce-(sb/cb)*se, cl)
	dec := math.Asin(sb*ce + cb*se*sl)

	gmst := float64(sidereal.Mean(float64(jd))) / 240
	ha := unit.AngleFromDeg(gmst + lon).Rad() - ra

	phi := unit.AngleFromDeg(lat).Rad()
	alt = math.Asin(math.Sin(phi)*math.Sin(dec)+math.Cos(phi)*math.Cos(dec)*math.Cos(ha)) * 180 / math.Pi

	parallax := math.Asin(6378.14/dist) * 180 / math.Pi
	return alt, 0.7275*parallax - 34.0/60
}

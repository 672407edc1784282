// Package julian provides the Julian Day time scale used by the calendar
// engine. All instants are Universal Time; one day is 1.0.
package julian

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/deltat"
)

// Day is a Julian Day number in UT.
type Day float64

// unixEpoch is the Julian Day of 1970-01-01T00:00:00Z.
const unixEpoch Day = 2440587.5

const secondsPerDay = 86400.0

// FromTime converts a civil time to a Julian Day.
func FromTime(t time.Time) Day {
	return unixEpoch + Day(float64(t.UnixNano())/1e9/secondsPerDay)
}

// FromDate returns the Julian Day of local midnight for the given date in loc.
func FromDate(year int, month time.Month, day int, loc *time.Location) Day {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, loc))
}

// Time converts the Julian Day back to a UTC time, rounded to the millisecond.
func (d Day) Time() time.Time {
	ms := math.Round(float64(d-unixEpoch) * secondsPerDay * 1000)
	return time.UnixMilli(int64(ms)).UTC()
}

// In converts the Julian Day to a time in loc.
func (d Day) In(loc *time.Location) time.Time {
	return d.Time().In(loc)
}

// Add returns d shifted by the given number of days.
func (d Day) Add(days float64) Day {
	return d + Day(days)
}

// Sub returns d - o in days.
func (d Day) Sub(o Day) float64 {
	return float64(d - o)
}

// Before reports whether d is earlier than o.
func (d Day) Before(o Day) bool { return d < o }

// After reports whether d is later than o.
func (d Day) After(o Day) bool { return d > o }

// Float returns the raw Julian Day value.
func (d Day) Float() float64 { return float64(d) }

// J2000 is the Julian Day of 2000-01-01T12:00 TT.
const J2000 Day = 2451545.0

// Range of the ΔT table observed by Meeus (table 10.A).
const (
	deltaTTableFirst = 1620.0
	deltaTTableLast  = 2010.0
)

var (
	deltaTTableEnd = float64(deltat.Interp10A(float64(yearStart(deltaTTableLast))))
	// Seconds per year over the table's last decade.
	deltaTTrend = (deltaTTableEnd - float64(deltat.Interp10A(float64(yearStart(deltaTTableLast-10))))) / 10
)

// DeltaT returns TT - UT in seconds at d. Table 10.A covers 1620-2010;
// later years continue the table's final trend, which stays within a
// couple of seconds of the observed values through the 2020s, where the
// book's long-term polynomial is already 30 s high.
func DeltaT(d Day) float64 {
	year := d.Year()
	switch {
	case year < deltaTTableFirst:
		return float64(deltat.Poly948to1600(year))
	case year < deltaTTableLast:
		return float64(deltat.Interp10A(float64(d)))
	default:
		return deltaTTableEnd + deltaTTrend*(year-deltaTTableLast)
	}
}

// Year returns d as a decimal Gregorian year.
func (d Day) Year() float64 {
	return 2000 + float64(d-J2000)/365.2425
}

func yearStart(year float64) Day {
	return FromDate(int(year), time.January, 1, time.UTC)
}

// TT converts a UT Julian Day to Terrestrial (ephemeris) time.
func (d Day) TT() float64 {
	return float64(d) + DeltaT(d)/secondsPerDay
}

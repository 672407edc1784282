// Package ephemeris answers the astronomical questions the calendar engine
// asks: ecliptic longitudes of the Sun and Moon, rise and set instants for
// an observer, and eclipse windows.
//
// Adapter is the boundary. Meeus is the production implementation; Linear
// is a synthetic sky with constant angular rates used by tests. Cache wraps
// any Adapter for the lifetime of one computation run.
package ephemeris

import (
	"errors"
	"fmt"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

// Body is a celestial body the adapter can be asked about.
type Body int

const (
	Sun Body = iota
	Moon
)

func (b Body) String() string {
	switch b {
	case Sun:
		return "sun"
	case Moon:
		return "moon"
	default:
		return fmt.Sprintf("body(%d)", int(b))
	}
}

// EclipseWindow describes one eclipse as seen from the geocentre, or from
// one observer once narrowed by LocalEclipse.
type EclipseWindow struct {
	Start julian.Day `json:"start"`
	Max   julian.Day `json:"max"`
	End   julian.Day `json:"end"`
	// Latitude is the Moon's ecliptic latitude at maximum, in degrees.
	Latitude float64 `json:"latitude"`
}

// Adapter is the ephemeris service consumed by the engine. Longitudes are
// tropical, in degrees within [0, 360). Rise and set return the first event
// at or after jdStart.
type Adapter interface {
	Longitude(jd julian.Day, body Body) (float64, error)
	RiseTime(jdStart julian.Day, body Body, lat, lon float64) (julian.Day, error)
	SetTime(jdStart julian.Day, body Body, lat, lon float64) (julian.Day, error)
	// SolarEclipse returns the first solar eclipse whose maximum is at or
	// after jd. ErrNoEclipse is returned when none is found.
	SolarEclipse(jd julian.Day) (EclipseWindow, error)
	// LunarEclipse is SolarEclipse for lunar eclipses.
	LunarEclipse(jd julian.Day) (EclipseWindow, error)
	// LocalEclipse returns the part of w that an observer at lat, lon can
	// see, with body the eclipsed body: Sun for a solar eclipse, Moon for
	// a lunar one. ok is false when none of it is visible.
	LocalEclipse(w EclipseWindow, body Body, lat, lon float64) (local EclipseWindow, ok bool, err error)
}

var (
	// ErrNoRiseSet is returned when the body does not cross the horizon in
	// the search window (polar day or night).
	ErrNoRiseSet = errors.New("ephemeris: body does not rise or set")

	// ErrNoEclipse is returned when no eclipse is found in the search range.
	ErrNoEclipse = errors.New("ephemeris: no eclipse in search range")
)

// normDeg maps an angle in degrees onto [0, 360).
func normDeg(d float64) float64 {
	for d < 0 {
		d += 360
	}
	for d >= 360 {
		d -= 360
	}
	return d
}

// signedDeg maps an angle in degrees onto [-180, 180).
func signedDeg(d float64) float64 {
	d = normDeg(d)
	if d >= 180 {
		d -= 360
	}
	return d
}

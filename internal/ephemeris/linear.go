package ephemeris

import (
	"math"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

// Linear is a synthetic sky in which both bodies move at constant rates and
// rise and set at fixed fractions of every day counted from Epoch. It makes
// engine behaviour reproducible in tests without an ephemeris.
type Linear struct {
	Epoch julian.Day

	// Longitudes at Epoch (degrees) and rates (degrees per day).
	Sun0, SunRate   float64
	Moon0, MoonRate float64

	// Fractions of a day after Epoch at which the bodies rise and set.
	SunRise, SunSet   float64
	MoonRise, MoonSet float64

	Solar, Lunar []EclipseWindow
}

// NewLinear returns a sky with mean solar and lunar rates, sunrise at
// 06:00 and sunset at 18:00 after epoch.
func NewLinear(epoch julian.Day) *Linear {
	return &Linear{
		Epoch:    epoch,
		SunRate:  0.9856473,
		MoonRate: 13.176358,
		SunRise:  0.25,
		SunSet:   0.75,
		MoonRise: 0.40,
		MoonSet:  0.90,
	}
}

var _ Adapter = (*Linear)(nil)

func (l *Linear) Longitude(jd julian.Day, body Body) (float64, error) {
	dt := jd.Sub(l.Epoch)
	if body == Moon {
		return normDeg(l.Moon0 + l.MoonRate*dt), nil
	}
	return normDeg(l.Sun0 + l.SunRate*dt), nil
}

func (l *Linear) RiseTime(jdStart julian.Day, body Body, _, _ float64) (julian.Day, error) {
	if body == Moon {
		return l.next(jdStart, l.MoonRise), nil
	}
	return l.next(jdStart, l.SunRise), nil
}

func (l *Linear) SetTime(jdStart julian.Day, body Body, _, _ float64) (julian.Day, error) {
	if body == Moon {
		return l.next(jdStart, l.MoonSet), nil
	}
	return l.next(jdStart, l.SunSet), nil
}

func (l *Linear) next(jdStart julian.Day, frac float64) julian.Day {
	n := math.Ceil(jdStart.Sub(l.Epoch) - frac)
	return l.Epoch.Add(n + frac)
}

func (l *Linear) SolarEclipse(jd julian.Day) (EclipseWindow, error) {
	return firstWindow(l.Solar, jd)
}

func (l *Linear) LunarEclipse(jd julian.Day) (EclipseWindow, error) {
	return firstWindow(l.Lunar, jd)
}

// LocalEclipse keeps the part of w during which body is above the horizon.
func (l *Linear) LocalEclipse(w EclipseWindow, body Body, lat, lon float64) (EclipseWindow, bool, error) {
	return clipWindow(w, func(jd julian.Day) (bool, error) {
		return isUp(l, jd, body, lat, lon)
	})
}

func firstWindow(windows []EclipseWindow, jd julian.Day) (EclipseWindow, error) {
	for _, w := range windows {
		if w.Max >= jd {
			return w, nil
		}
	}
	return EclipseWindow{}, ErrNoEclipse
}

package ephemeris

import (
	"fmt"
	"math"

	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/parallax"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

const (
	synodicMonth = 29.530588853
	// Mean rate of the Moon-Sun elongation, degrees per day.
	elongationRate = 360 / synodicMonth

	// Largest lunar latitude at syzygy for which an eclipse is reported.
	solarEclipseLimit = 1.4
	lunarEclipseLimit = 1.0

	// Contact radii in degrees: Moon plus penumbra at the Moon's distance,
	// and the mean hourly motion of the Moon against the shadow axis.
	solarContactRadius = 1.57
	lunarContactRadius = 1.52
	shadowRate         = 0.5

	// Lunations searched before giving up.
	eclipseSearchLunations = 14

	// Sampling step of local visibility, days.
	eclipseStep = 2.0 / 60 / 24

	// Apparent altitude of the Sun's centre at rise and set, degrees.
	sunHorizon = -50.0 / 60

	kmPerAU = 149597870.7
)

// SolarEclipse returns the first new moon at or after jd whose lunar
// latitude is within the solar eclipse limit.
func (m *Meeus) SolarEclipse(jd julian.Day) (EclipseWindow, error) {
	return m.eclipse(jd, 0, solarEclipseLimit, solarContactRadius)
}

// LunarEclipse returns the first full moon at or after jd whose lunar
// latitude is within the lunar eclipse limit.
func (m *Meeus) LunarEclipse(jd julian.Day) (EclipseWindow, error) {
	return m.eclipse(jd, 180, lunarEclipseLimit, lunarContactRadius)
}

func (m *Meeus) eclipse(jd julian.Day, elongation, limit, radius float64) (EclipseWindow, error) {
	t := jd
	for i := 0; i < eclipseSearchLunations; i++ {
		syzygy, err := m.nextSyzygy(t, elongation)
		if err != nil {
			return EclipseWindow{}, err
		}
		_, beta, _ := moonposition.Position(syzygy.TT())
		lat := beta.Deg()
		if math.Abs(lat) < limit {
			half := math.Sqrt(radius*radius-lat*lat) / shadowRate / 24
			return EclipseWindow{
				Start:    syzygy.Add(-half),
				Max:      syzygy,
				End:      syzygy.Add(half),
				Latitude: lat,
			}, nil
		}
		t = syzygy.Add(1)
	}
	return EclipseWindow{}, ErrNoEclipse
}

// LocalEclipse narrows w to what the observer sees. A lunar eclipse needs
// the Moon above the horizon. A solar eclipse also needs the topocentric
// discs of the Sun and Moon to overlap, since the penumbra covers only
// part of the day side.
func (m *Meeus) LocalEclipse(w EclipseWindow, body Body, lat, lon float64) (EclipseWindow, bool, error) {
	switch body {
	case Moon:
		return clipWindow(w, func(jd julian.Day) (bool, error) {
			alt, h0 := moonAltitude(jd, lat, lon)
			return alt > h0, nil
		})
	case Sun:
		o := newObserver(lat, lon)
		return clipWindow(w, func(jd julian.Day) (bool, error) {
			return o.sunAltitude(jd) > sunHorizon && o.discsOverlap(jd), nil
		})
	default:
		return EclipseWindow{}, false, fmt.Errorf("local eclipse: unsupported body %s", body)
	}
}

// observer is a point on the Earth76 ellipsoid at sea level.
type observer struct {
	lat            unit.Angle
	west           unit.Angle // longitude, positive west
	rhoSin, rhoCos float64
}

func newObserver(lat, lon float64) observer {
	phi := unit.AngleFromDeg(lat)
	s, c := globe.Earth76.ParallaxConstants(phi, 0)
	return observer{lat: phi, west: unit.AngleFromDeg(-lon), rhoSin: s, rhoCos: c}
}

// sunAltitude returns the geometric altitude of the Sun in degrees.
func (o observer) sunAltitude(jd julian.Day) float64 {
	ra, dec := solar.ApparentEquatorial(jd.TT())
	_, h := coord.EqToHz(ra, dec, o.lat, o.west, sidereal.Apparent(float64(jd)))
	return h.Deg()
}

// discsOverlap reports whether the Moon covers part of the Sun as seen by
// the observer.
func (o observer) discsOverlap(jd julian.Day) bool {
	jde := jd.TT()
	sunRA, sunDec := solar.ApparentEquatorial(jde)

	lambda, beta, dist := moonposition.Position(jde)
	dpsi, deps := nutation.Nutation(jde)
	se, ce := (nutation.MeanObliquity(jde) + deps).Sincos()
	moonRA, moonDec := coord.EclToEq(lambda+dpsi, beta, se, ce)
	moonRA, moonDec = parallax.Topocentric(moonRA, moonDec, dist/kmPerAU, o.rhoSin, o.rhoCos, o.west, jde)

	sep := angle.Sep(sunRA.Angle(), sunDec, moonRA.Angle(), moonDec).Sec()
	// Semidiameters in arcseconds (Meeus ch. 55).
	sunSD := 959.63 / solar.Radius(base.J2000Century(jde))
	moonSD := 358473400 / dist
	return sep < sunSD+moonSD
}

// clipWindow returns the part of w during which seen holds, sampled every
// eclipseStep. Max stays at w.Max when that instant is seen and otherwise
// moves to the seen sample nearest to it.
func clipWindow(w EclipseWindow, seen func(julian.Day) (bool, error)) (EclipseWindow, bool, error) {
	out := EclipseWindow{Latitude: w.Latitude}
	found := false
	for t := w.Start; ; t = t.Add(eclipseStep) {
		if t > w.End {
			t = w.End
		}
		ok, err := seen(t)
		if err != nil {
			return EclipseWindow{}, false, err
		}
		if ok {
			if !found {
				out.Start, out.Max = t, t
				found = true
			}
			out.End = t
			if math.Abs(t.Sub(w.Max)) < math.Abs(out.Max.Sub(w.Max)) {
				out.Max = t
			}
		}
		if t >= w.End {
			break
		}
	}
	if !found {
		return EclipseWindow{}, false, nil
	}
	if w.Max >= out.Start && w.Max <= out.End {
		ok, err := seen(w.Max)
		if err != nil {
			return EclipseWindow{}, false, err
		}
		if ok {
			out.Max = w.Max
		}
	}
	return out, true, nil
}

// isUp reports whether body is above the horizon at jd: its next event is
// a set, not a rise.
func isUp(a Adapter, jd julian.Day, body Body, lat, lon float64) (bool, error) {
	rise, err := a.RiseTime(jd, body, lat, lon)
	if err != nil {
		return false, err
	}
	set, err := a.SetTime(jd, body, lat, lon)
	if err != nil {
		return false, err
	}
	return set < rise, nil
}

// nextSyzygy returns the first instant at or after jd at which the
// Moon-Sun elongation equals target.
func (m *Meeus) nextSyzygy(jd julian.Day, target float64) (julian.Day, error) {
	e, err := m.elongation(jd)
	if err != nil {
		return 0, err
	}
	t := jd.Add(normDeg(target-e) / elongationRate)
	for i := 0; i < 30; i++ {
		e, err = m.elongation(t)
		if err != nil {
			return 0, err
		}
		delta := signedDeg(target - e)
		t = t.Add(delta / elongationRate)
		if math.Abs(delta) < 1e-6 {
			break
		}
	}
	if t < jd {
		return m.nextSyzygy(jd.Add(synodicMonth/2), target)
	}
	return t, nil
}

func (m *Meeus) elongation(jd julian.Day) (float64, error) {
	sun, err := m.Longitude(jd, Sun)
	if err != nil {
		return 0, err
	}
	moon, err := m.Longitude(jd, Moon)
	if err != nil {
		return 0, err
	}
	return normDeg(moon - sun), nil
}

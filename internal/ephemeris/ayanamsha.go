package ephemeris

import (
	"fmt"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

// Ayanamsha names a sidereal zodiac. Offset is subtracted from tropical
// longitudes to obtain sidereal ones.
type Ayanamsha string

const (
	// ChitraAt180 fixes the star Chitra (Spica) at sidereal 180 degrees.
	ChitraAt180 Ayanamsha = "chitra_at_180"
	// Tropical applies no correction.
	Tropical Ayanamsha = "tropical"
)

// Tropical longitude of Spica at J2000.0, degrees.
const spicaJ2000 = 203.8411

// ParseAyanamsha validates an ayanamsha name.
func ParseAyanamsha(s string) (Ayanamsha, error) {
	switch a := Ayanamsha(s); a {
	case ChitraAt180, Tropical:
		return a, nil
	default:
		return "", fmt.Errorf("unknown ayanamsha %q", s)
	}
}

// Offset returns the ayanamsha in degrees at jd.
func (a Ayanamsha) Offset(jd julian.Day) float64 {
	switch a {
	case ChitraAt180:
		t := float64(jd-2451545.0) / 36525
		precession := (5029.0966*t + 1.11113*t*t) / 3600
		return spicaJ2000 + precession - 180
	default:
		return 0
	}
}

// Sidereal converts a tropical longitude at jd to this zodiac.
func (a Ayanamsha) Sidereal(jd julian.Day, tropical float64) float64 {
	return normDeg(tropical - a.Offset(jd))
}

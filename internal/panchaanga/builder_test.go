package panchaanga

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/julian"
	"github.com/zapponejosh/panchaanga-api/internal/location"
)

var utcCity = location.City{Key: "null-island", Name: "Null Island", Timezone: "UTC"}

// linearSky starts at 2023-01-01T00:00Z with a new moon at epoch.
func linearSky() *ephemeris.Linear {
	sky := ephemeris.NewLinear(julian.FromDate(2023, time.January, 1, time.UTC))
	sky.Sun0, sky.Moon0 = 280, 280
	return sky
}

func buildLinear(t *testing.T, sky ephemeris.Adapter) *Year {
	t.Helper()
	b := NewBuilder(sky, ephemeris.Tropical, zerolog.Nop())
	y, err := b.Build(context.Background(), utcCity, 2023)
	require.NoError(t, err)
	return y
}

func TestBuildLayout(t *testing.T) {
	y := buildLinear(t, linearSky())

	require.Len(t, y.Days, 365+2)
	assert.Equal(t, "2022-12-31", y.Days[0].Date)
	assert.Equal(t, "2023-01-01", y.Days[1].Date)
	assert.Equal(t, "2024-01-01", y.Days[len(y.Days)-1].Date)
	assert.Len(t, y.Real(), 365)
	assert.False(t, y.IsReal(0))
	assert.True(t, y.IsReal(1))
	assert.Equal(t, time.Sunday, y.Days[1].Weekday)

	i, ok := y.Index("2023-03-01")
	require.True(t, ok)
	assert.Equal(t, 60, i)
	_, ok = y.Index("2025-01-01")
	assert.False(t, ok)

	for _, d := range y.Days {
		assert.LessOrEqual(t, float64(d.Sunrise), float64(d.Sunset), d.Date)
		assert.LessOrEqual(t, float64(d.Sunset), float64(d.NextSunrise), d.Date)
		assert.InDelta(t, 0.25, d.Sunrise.Sub(d.JulianStart), 1e-6, d.Date)
		require.NotNil(t, d.Moonrise, d.Date)
	}
}

func TestBuildSpansContiguous(t *testing.T) {
	y := buildLinear(t, linearSky())

	for _, kind := range anga.Kinds {
		t.Run(kind.String(), func(t *testing.T) {
			var last *anga.Span
			for _, d := range y.Days {
				spans := d.Spans(kind)
				for i := range spans {
					s := spans[i]
					if last != nil {
						if last.End == nil {
							assert.Equal(t, last.Anga, s.Anga, d.Date)
						} else {
							assert.Equal(t, *last.End, s.Start, d.Date)
							assert.Equal(t, last.Anga.Next(), s.Anga, d.Date)
						}
					}
					last = &s
				}
			}
		})
	}
}

func TestAngaAtLooksBack(t *testing.T) {
	y := buildLinear(t, linearSky())

	// Find a day whose solar month covers it completely, after the first
	// sankranti so the month's span is inside the year.
	seen := false
	for i := range y.Days {
		if len(y.Days[i].Spans(anga.SolarMonth)) != 0 {
			seen = true
			continue
		}
		if !seen {
			continue
		}
		a, ok := y.SunriseAnga(i, anga.SolarMonth)
		require.True(t, ok)
		assert.Equal(t, y.Days[i].SolarMonth, a.Index)
		return
	}
	t.Fatal("no zero-span day found")
}

func TestKaalas(t *testing.T) {
	y := buildLinear(t, linearSky())
	d := y.Days[1] // Sunday, sunrise 06:00, sunset 18:00

	tests := []struct {
		name       string
		start, end float64 // hours after midnight
	}{
		{KaalaSunrise, 6, 6},
		{KaalaPraatah, 6, 8.4},
		{KaalaMadhyaahna, 10.8, 13.2},
		{KaalaAparaahna, 13.2, 15.6},
		{KaalaRahu, 16.5, 18},
		{KaalaYama, 12, 13.5},
		{KaalaGulika, 15, 16.5},
		{KaalaPradosha, 18, 20.4},
		{KaalaBraahma, 4.4, 5.2},
		// Previous night runs 18:00 to 06:00, so 14/15 of it is 05:12.
		{KaalaPraatahSandhyaa, 5.2, 9.2},
		{KaalaMaadhyaahnika, 10, 16.4},
		{KaalaSaayamSandhyaa, 17.2, 18.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, ok := d.Kaala(tt.name)
			require.True(t, ok)
			assert.InDelta(t, tt.start/24, k.Start.Sub(d.JulianStart), 1e-6)
			assert.InDelta(t, tt.end/24, k.End.Sub(d.JulianStart), 1e-6)
		})
	}

	_, ok := d.Kaala("no-such-kaala")
	assert.False(t, ok)
	for _, name := range KaalaNames() {
		assert.True(t, IsKaala(name), name)
	}
}

func TestMonthsAndSankranti(t *testing.T) {
	y := buildLinear(t, linearSky())

	// Sun starts at 280 degrees: makara (10) begins at 270, so the first
	// sankranti of the year is into kumbha about 20 days in.
	first := y.Days[1]
	assert.Equal(t, 10, first.SolarMonth)
	assert.Equal(t, 10, first.TropicalMonth)

	var sankrantiDay int
	for i, d := range y.Days {
		if d.Sankranti != nil {
			sankrantiDay = i
			break
		}
	}
	require.NotZero(t, sankrantiDay)
	d := y.Days[sankrantiDay]
	assert.Equal(t, 11, d.SolarMonth)
	assert.Equal(t, 1, d.SolarMonthDay)
	assert.Equal(t, 2, y.Days[sankrantiDay+1].SolarMonthDay)
	assert.Greater(t, y.Days[sankrantiDay-1].SolarMonthDay, 28)

	// The lunation opening at epoch closes 29.1 degrees later with the Sun
	// in kumbha.
	assert.Equal(t, anga.LunarMonth{Index: 11}, first.LunarMonth)
	assert.Equal(t, anga.LunarMonth{Index: 10}, y.Days[0].LunarMonth)
}

// driftSky moves every sunset Drift days earlier than the one before.
type driftSky struct {
	*ephemeris.Linear
	Drift float64
}

func (s driftSky) SetTime(jdStart julian.Day, body ephemeris.Body, lat, lon float64) (julian.Day, error) {
	if body != ephemeris.Sun {
		return s.Linear.SetTime(jdStart, body, lat, lon)
	}
	period := 1 - s.Drift
	k := math.Ceil((jdStart.Sub(s.Epoch) - s.SunSet) / period)
	return s.Epoch.Add(k*period + s.SunSet), nil
}

func TestMonthDayCountsSunsets(t *testing.T) {
	tests := []struct {
		name   string
		drift  float64
		offset float64 // sankranti relative to the sunset of 2023-01-21, days
		first  string
	}{
		{"sunsets earlier, sankranti a minute before", 0.001, -1.0 / 1440, "2023-01-21"},
		{"sunsets later, sankranti a minute after", -0.001, 1.0 / 1440, "2023-01-22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sky := linearSky()
			sankranti := 20*(1-tt.drift) + sky.SunSet + tt.offset
			sky.Sun0 = 300 - sky.SunRate*sankranti

			y := buildLinear(t, driftSky{Linear: sky, Drift: tt.drift})

			i, ok := y.Index(tt.first)
			require.True(t, ok)
			assert.Equal(t, 10, y.Days[i-1].SolarMonth)
			assert.Equal(t, 11, y.Days[i].SolarMonth)
			assert.Equal(t, 1, y.Days[i].SolarMonthDay)
			assert.Equal(t, 2, y.Days[i+1].SolarMonthDay)
			assert.Equal(t, 3, y.Days[i+2].SolarMonthDay)

			for j := 1; j < len(y.Days); j++ {
				prev, cur := y.Days[j-1], y.Days[j]
				if cur.SolarMonth != prev.SolarMonth {
					assert.Equal(t, 1, cur.SolarMonthDay, cur.Date)
				} else {
					assert.Equal(t, prev.SolarMonthDay+1, cur.SolarMonthDay, cur.Date)
				}
				if cur.TropicalMonth != prev.TropicalMonth {
					assert.Equal(t, 1, cur.TropicalMonthDay, cur.Date)
				} else {
					assert.Equal(t, prev.TropicalMonthDay+1, cur.TropicalMonthDay, cur.Date)
				}
			}
		})
	}
}

func TestBuildAttachesEclipses(t *testing.T) {
	sky := linearSky()
	max := julian.FromTime(time.Date(2023, time.March, 7, 12, 0, 0, 0, time.UTC))
	sky.Lunar = []ephemeris.EclipseWindow{{Start: max.Add(-0.1), Max: max, End: max.Add(0.1)}}
	// Before sunrise: the Sun is below the horizon for the whole window.
	dawn := julian.FromTime(time.Date(2023, time.August, 16, 3, 0, 0, 0, time.UTC))
	sky.Solar = []ephemeris.EclipseWindow{{Start: dawn.Add(-0.05), Max: dawn, End: dawn.Add(0.05)}}

	y := buildLinear(t, sky)

	d, ok := y.Day("2023-03-07")
	require.True(t, ok)
	require.Len(t, d.Eclipses, 1)
	assert.Equal(t, LunarEclipse, d.Eclipses[0].Kind)
	assert.Equal(t, max, d.Eclipses[0].Max)

	for _, other := range y.Days {
		if other != d {
			assert.Empty(t, other.Eclipses, other.Date)
		}
	}
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(linearSky(), ephemeris.Tropical, zerolog.Nop())
	_, err := b.Build(ctx, utcCity, 2023)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetFestivalsIdempotent(t *testing.T) {
	y := buildLinear(t, linearSky())
	byDay := map[int][]string{
		0:  {"padding-only"},
		1:  {"b", "a", "b"},
		10: {"c"},
	}

	y.SetFestivals(byDay)
	first := make([][]string, len(y.Days))
	for i, d := range y.Days {
		first[i] = d.Festivals
	}
	y.SetFestivals(byDay)

	for i, d := range y.Days {
		assert.Equal(t, first[i], d.Festivals)
	}
	assert.Nil(t, y.Days[0].Festivals)
	assert.Equal(t, []string{"a", "b"}, y.Days[1].Festivals)
	assert.True(t, y.Days[10].HasFestival("c"))
	assert.Equal(t, []string{y.Days[10].Date}, y.FestivalDays("c"))
}

func TestBuildBengaluru2023(t *testing.T) {
	if testing.Short() {
		t.Skip("full-year ephemeris build")
	}

	city, ok := location.Default().Lookup("bengaluru")
	require.True(t, ok)

	b := NewBuilder(ephemeris.NewMeeus(), ephemeris.ChitraAt180, zerolog.Nop())
	y, err := b.Build(context.Background(), city, 2023)
	require.NoError(t, err)

	d, ok := y.Day("2023-01-01")
	require.True(t, ok)

	spans := d.Spans(anga.Tithi)
	require.NotEmpty(t, spans)
	assert.Equal(t, d.Sunrise, spans[0].Start)

	// Published: shukla dashamii at sunrise, ekaadashii from the evening
	// (Vaikuntha Ekaadashii on 2 January).
	tithi, ok := y.SunriseAnga(1, anga.Tithi)
	require.True(t, ok)
	assert.Equal(t, 10, tithi.Index)
	assert.Equal(t, "dashamii", tithi.Name())

	ist, err := city.Location()
	require.NoError(t, err)
	assert.Equal(t, 6, d.Sunrise.In(ist).Hour())

	// Pausha, sun in dhanus.
	assert.Equal(t, 9, d.SolarMonth)
	assert.Equal(t, 10, d.LunarMonth.Index)
	assert.False(t, d.LunarMonth.Adhika)

	// 2023 carried an adhika shraavana (between aashaadha and shraavana).
	var adhika bool
	for _, day := range y.Real() {
		if day.LunarMonth.Adhika {
			adhika = true
			assert.Equal(t, 4, day.LunarMonth.Index, day.Date)
		}
	}
	assert.True(t, adhika)

	// Both 2023 solar eclipses are geocentric hits but neither is seen
	// from India. The partial lunar eclipse of 28 October is.
	var lunar []string
	for _, day := range y.Real() {
		for _, e := range day.Eclipses {
			assert.NotEqual(t, SolarEclipse, e.Kind, day.Date)
			if e.Kind == LunarEclipse {
				lunar = append(lunar, day.Date)
			}
		}
	}
	assert.Contains(t, lunar, "2023-10-28")
}

package calendar

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
	"github.com/zapponejosh/panchaanga-api/internal/database"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/festival"
	"github.com/zapponejosh/panchaanga-api/internal/julian"
	"github.com/zapponejosh/panchaanga-api/internal/location"
	"github.com/zapponejosh/panchaanga-api/internal/metrics"
	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
	"github.com/zapponejosh/panchaanga-api/internal/rules"
)

const testCities = `
cities:
  - key: null-island
    name: Null Island
    latitude: 0
    longitude: 0
    timezone: UTC
`

// linearSky has a new moon at 2023-01-01T00:00Z and sunrise at 06:00 UTC.
func linearSky() *ephemeris.Linear {
	sky := ephemeris.NewLinear(julian.FromDate(2023, time.January, 1, time.UTC))
	sky.Sun0, sky.Moon0 = 280, 280
	return sky
}

type staticRules struct{ tree *rules.Tree }

func (s staticRules) Tree(...string) (*rules.Tree, error) { return s.tree, nil }

func testTree(t *testing.T) *rules.Tree {
	t.Helper()
	ekaadashii := &rules.Rule{
		ID:    "ekaadashii",
		Names: map[string][]string{"en": {"Ekadashi"}},
		Tags:  []string{"vrata"},
		Timing: &rules.Timing{
			MonthType:  rules.LunarMonth,
			AngaType:   rules.AngaTithi,
			AngaNumber: 11,
		},
	}
	ekaadashii.ApplyDefaults()
	paarana := &rules.Rule{ID: "paarana", Timing: &rules.Timing{AnchorFestivalID: "ekaadashii", Offset: 1}}

	tree, err := rules.Build([]*rules.Rule{ekaadashii, paarana})
	require.NoError(t, err)
	return tree
}

type fixture struct {
	svc     *Service
	db      *database.DB
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, eph ephemeris.Adapter, withStore bool) fixture {
	t.Helper()
	cities, err := location.Parse([]byte(testCities))
	require.NoError(t, err)

	f := fixture{metrics: metrics.New(prometheus.NewRegistry())}
	cfg := Config{
		Cities:    cities,
		Ephemeris: eph,
		Ayanamsha: ephemeris.Tropical,
		Rules:     staticRules{testTree(t)},
		Metrics:   f.metrics,
	}
	if withStore {
		f.db, err = database.Open(database.DefaultConfig(":memory:"), zerolog.Nop())
		require.NoError(t, err)
		_, err = f.db.Migrate(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { f.db.Close() })
		cfg.Store = f.db
	}
	f.svc = NewService(cfg, zerolog.Nop())
	return f
}

func TestYearBuildsThenServesFromStore(t *testing.T) {
	f := newFixture(t, linearSky(), true)
	ctx := context.Background()

	first, err := f.svc.Year(ctx, "Null-Island", 2023)
	require.NoError(t, err)
	require.Len(t, first.Days, 367)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StoreLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BuildsTotal.WithLabelValues("ok")))
	assert.Positive(t, testutil.ToFloat64(f.metrics.EphemerisCache.WithLabelValues("miss")))

	second, err := f.svc.Year(ctx, "null-island", 2023)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StoreLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BuildsTotal.WithLabelValues("ok")), "no second build")

	assert.Equal(t, first.FestivalDays("ekaadashii"), second.FestivalDays("ekaadashii"))
	assert.Equal(t, first.FestivalDays("paarana"), second.FestivalDays("paarana"))

	list, err := f.db.ListCalendars(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tropical", list[0].Key.Ayanamsha)
	assert.Equal(t, testTree(t).Fingerprint(), list[0].Key.RulesHash)
	assert.NotEmpty(t, list[0].BuildID)

	stored, err := f.db.GetFestivalDates(ctx, list[0].Key, "ekaadashii")
	require.NoError(t, err)
	var dates []string
	for _, d := range stored {
		dates = append(dates, d.Date)
		assert.Equal(t, string(festival.FromAnga), d.Source)
	}
	assert.Equal(t, first.FestivalDays("ekaadashii"), dates)
}

func TestCodecRoundTrip(t *testing.T) {
	f := newFixture(t, linearSky(), false)
	y, err := f.svc.Year(context.Background(), "null-island", 2023)
	require.NoError(t, err)

	payload, err := encodeYear(y)
	require.NoError(t, err)
	got, err := decodeYear(payload)
	require.NoError(t, err)

	assert.Equal(t, y.City, got.City)
	assert.Equal(t, y.Year, got.Year)
	assert.Equal(t, y.Ayanamsha, got.Ayanamsha)
	require.Len(t, got.Days, len(y.Days))
	for i, want := range y.Days {
		d := got.Days[i]
		assert.Equal(t, want.Date, d.Date)
		assert.Equal(t, want.Weekday, d.Weekday)
		assert.Equal(t, want.Sunrise, d.Sunrise)
		assert.Equal(t, want.NextSunrise, d.NextSunrise)
		assert.Equal(t, want.Moonrise, d.Moonrise)
		assert.Equal(t, want.LunarMonth, d.LunarMonth)
		assert.Equal(t, want.SolarMonthDay, d.SolarMonthDay)
		assert.Equal(t, want.Kaalas, d.Kaalas)
		assert.ElementsMatch(t, want.Festivals, d.Festivals)
		for _, kind := range anga.Kinds {
			require.Len(t, d.Spans(kind), len(want.Spans(kind)), "%s %s", want.Date, kind)
			for j, s := range want.Spans(kind) {
				assert.Equal(t, s, d.Spans(kind)[j])
			}
			assert.Equal(t, want.Angas[kind].NextPreview, d.Angas[kind].NextPreview)
		}
	}
}

// gatedSky holds every sunrise query until release is closed.
type gatedSky struct {
	*ephemeris.Linear
	release chan struct{}
}

func (g gatedSky) RiseTime(jd julian.Day, body ephemeris.Body, lat, lon float64) (julian.Day, error) {
	<-g.release
	return g.Linear.RiseTime(jd, body, lat, lon)
}

func TestConcurrentRequestsShareOneBuild(t *testing.T) {
	sky := gatedSky{Linear: linearSky(), release: make(chan struct{})}
	f := newFixture(t, sky, false)

	const callers = 5
	years := make([]*panchaanga.Year, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			y, err := f.svc.Year(context.Background(), "null-island", 2023)
			assert.NoError(t, err)
			years[i] = y
		}(i)
	}

	time.Sleep(200 * time.Millisecond)
	close(sky.release)
	wg.Wait()

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BuildsTotal.WithLabelValues("ok")))
	for _, y := range years[1:] {
		assert.Same(t, years[0], y)
	}
}

func TestYearCallerCancelled(t *testing.T) {
	sky := gatedSky{Linear: linearSky(), release: make(chan struct{})}
	defer close(sky.release)
	f := newFixture(t, sky, false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.svc.Year(ctx, "null-island", 2023)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t, linearSky(), false)
	ctx := context.Background()

	_, err := f.svc.Year(ctx, "atlantis", 2023)
	assert.ErrorIs(t, err, ErrUnknownCity)

	_, err = f.svc.Year(ctx, "null-island", 1500)
	assert.ErrorIs(t, err, ErrYearOutOfRange)

	_, err = f.svc.Day(ctx, "null-island", "2023-13-01")
	assert.ErrorIs(t, err, ErrBadDate)

	_, err = f.svc.FestivalDates(ctx, "null-island", 2023, "no-such-festival")
	assert.ErrorIs(t, err, ErrUnknownFestival)

	_, err = f.svc.YearFor(ctx, location.City{Key: "bad", Timezone: "Mars/Olympus"}, 2023)
	assert.Error(t, err)
}

func TestDayAndFestivals(t *testing.T) {
	f := newFixture(t, linearSky(), false)
	ctx := context.Background()

	d, err := f.svc.Day(ctx, "null-island", "2023-01-11")
	require.NoError(t, err)
	assert.Equal(t, "2023-01-11", d.Date)
	assert.True(t, d.HasFestival("ekaadashii"))

	list, err := f.svc.Festivals(ctx, "null-island", 2023, "en")
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, Festival{ID: "ekaadashii", Date: "2023-01-11", Title: "Ekadashi", Tags: []string{"vrata"}}, list[0])
	for i := 1; i < len(list); i++ {
		assert.LessOrEqual(t, list[i-1].Date, list[i].Date)
	}

	dates, err := f.svc.FestivalDates(ctx, "null-island", 2023, "paarana")
	require.NoError(t, err)
	assert.Equal(t, "2023-01-12", dates[0])

	none, err := f.svc.FestivalDates(ctx, "null-island", 2023, festival.SolarEclipseID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPrecompute(t *testing.T) {
	f := newFixture(t, linearSky(), true)
	ctx := context.Background()

	require.NoError(t, f.svc.Precompute(ctx, []string{"null-island"}, []int{2023, 2024}))

	list, err := f.db.ListCalendars(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	err = f.svc.Precompute(ctx, []string{"atlantis"}, []int{2023})
	assert.ErrorIs(t, err, ErrUnknownCity)
}

func TestRulesChangeReplacesStoredYear(t *testing.T) {
	f := newFixture(t, linearSky(), true)
	ctx := context.Background()

	_, err := f.svc.Year(ctx, "null-island", 2023)
	require.NoError(t, err)

	paarana := &rules.Rule{ID: "paarana", Timing: &rules.Timing{AnchorFestivalID: "ekaadashii", Offset: 2}}
	edited, err := rules.Build(append(testTree(t).Rules()[:1:1], paarana))
	require.NoError(t, err)
	require.NotEqual(t, testTree(t).Fingerprint(), edited.Fingerprint())
	f.svc.rules = staticRules{edited}

	y, err := f.svc.Year(ctx, "null-island", 2023)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-13", y.FestivalDays("paarana")[0])

	list, err := f.svc.Stored(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, edited.Fingerprint(), list[0].Key.RulesHash)
}

func TestFestivalDatesServedFromIndex(t *testing.T) {
	f := newFixture(t, linearSky(), true)
	ctx := context.Background()

	y, err := f.svc.Year(ctx, "null-island", 2023)
	require.NoError(t, err)

	// A second service over the same store answers without decoding or
	// building the year.
	m := metrics.New(prometheus.NewRegistry())
	other := NewService(Config{
		Cities:    f.svc.cities,
		Ephemeris: linearSky(),
		Ayanamsha: ephemeris.Tropical,
		Rules:     staticRules{testTree(t)},
		Store:     f.db,
		Metrics:   m,
	}, zerolog.Nop())

	dates, err := other.FestivalDates(ctx, "null-island", 2023, "ekaadashii")
	require.NoError(t, err)
	assert.Equal(t, y.FestivalDays("ekaadashii"), dates)
	assert.Zero(t, testutil.ToFloat64(m.StoreLookups.WithLabelValues("hit")))
	assert.Zero(t, testutil.ToFloat64(m.BuildsTotal.WithLabelValues("ok")))

	none, err := other.FestivalDates(ctx, "null-island", 2023, festival.SolarEclipseID)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = other.FestivalDates(ctx, "null-island", 2023, "no-such-festival")
	assert.ErrorIs(t, err, ErrUnknownFestival)

	// Years not in the store fall back to a build.
	_, err = other.FestivalDates(ctx, "null-island", 2024, "ekaadashii")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues("ok")))
}

func TestStoredWithoutStore(t *testing.T) {
	f := newFixture(t, linearSky(), false)
	list, err := f.svc.Stored(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReloadRulesPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("lunar_month/tithi/00/11/ekaadashii__info.toml", `
id = "ekaadashii"

[timing]
month_type = "lunar_month"
month_number = 0
anga_type = "tithi"
anga_number = 11
`)

	cities, err := location.Parse([]byte(testCities))
	require.NoError(t, err)
	svc := NewService(Config{
		Cities:    cities,
		Ephemeris: linearSky(),
		Ayanamsha: ephemeris.Tropical,
		Rules:     rules.NewCache(rules.NewLoader(zerolog.Nop())),
		RulesDirs: []string{dir},
	}, zerolog.Nop())
	ctx := context.Background()

	y, err := svc.Year(ctx, "null-island", 2023)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-11", y.FestivalDays("ekaadashii")[0])
	assert.Empty(t, y.FestivalDays("paarana"))

	write("relative_event/ekaadashii/offset__01/paarana__info.toml", `
[timing]
anchor_festival_id = "ekaadashii"
offset = 1
`)
	before, err := svc.Rules()
	require.NoError(t, err)
	assert.Equal(t, 1, before.Len(), "cached until reloaded")

	tree, err := svc.ReloadRules()
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Len())
	assert.NotEqual(t, before.Fingerprint(), tree.Fingerprint())

	y, err = svc.Year(ctx, "null-island", 2023)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-12", y.FestivalDays("paarana")[0])
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapponejosh/panchaanga-api/internal/calendar"
	"github.com/zapponejosh/panchaanga-api/internal/database"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/julian"
	"github.com/zapponejosh/panchaanga-api/internal/location"
	"github.com/zapponejosh/panchaanga-api/internal/metrics"
	"github.com/zapponejosh/panchaanga-api/internal/rules"
)

// =============================================================================
// TEST SETUP HELPERS
// =============================================================================

type staticRules struct{ tree *rules.Tree }

func (s staticRules) Tree(...string) (*rules.Tree, error) { return s.tree, nil }

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }

type testEnv struct {
	server  *Server
	metrics *metrics.Metrics
}

// setupTest serves a synthetic sky whose new moon falls at 2023-01-01
// 00:00 UTC, so ekaadashii lands on 2023-01-11.
func setupTest(t *testing.T, health HealthChecker) *testEnv {
	t.Helper()

	cities, err := location.Parse([]byte(`
cities:
  - key: null-island
    name: Null Island
    latitude: 0
    longitude: 0
    timezone: UTC
`))
	require.NoError(t, err)

	sky := ephemeris.NewLinear(julian.FromDate(2023, time.January, 1, time.UTC))
	sky.Sun0, sky.Moon0 = 280, 280

	ekaadashii := &rules.Rule{
		ID:    "ekaadashii",
		Names: map[string][]string{"en": {"Ekadashi"}, "sa": {"एकादशी"}},
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

	db, err := database.Open(database.DefaultConfig(":memory:"), zerolog.Nop())
	require.NoError(t, err)
	_, err = db.Migrate(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New(prometheus.NewRegistry())
	svc := calendar.NewService(calendar.Config{
		Cities:    cities,
		Ephemeris: sky,
		Ayanamsha: ephemeris.Tropical,
		Rules:     staticRules{tree},
		Store:     db,
		Metrics:   m,
	}, zerolog.Nop())

	return &testEnv{
		server: New(Config{
			Port:     8080,
			Log:      zerolog.Nop(),
			Calendar: svc,
			Health:   health,
			Metrics:  m,
			DevMode:  true,
		}),
		metrics: m,
	}
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

// =============================================================================
// HEALTH & METRICS
// =============================================================================

func TestHealthCheck(t *testing.T) {
	env := setupTest(t, nil)
	rr := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)

	var data map[string]string
	res := decode(t, rr, &data)
	assert.True(t, res.Success)
	assert.Equal(t, "healthy", data["status"])

	env = setupTest(t, fakeHealth{err: errors.New("disk full")})
	rr = env.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	res = decode(t, rr, nil)
	assert.False(t, res.Success)
	assert.Equal(t, "HEALTH_CHECK_FAILED", res.Error.Code)
}

func TestMetricsRecordRoutePattern(t *testing.T) {
	env := setupTest(t, nil)
	require.Equal(t, http.StatusOK, env.get(t, "/api/v1/cities").Code)

	rr := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `panchaanga_http_requests_total{route="/api/v1/cities",status="OK"} 1`)
	assert.Contains(t, body, "panchaanga_rules_loaded")
}

func TestRequestIDAndCORS(t *testing.T) {
	env := setupTest(t, nil)
	rr := env.get(t, "/api/v1/cities")
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cities", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

// =============================================================================
// CALENDAR ENDPOINTS
// =============================================================================

func TestListCities(t *testing.T) {
	env := setupTest(t, nil)
	var cities []location.City
	decode(t, env.get(t, "/api/v1/cities"), &cities)
	require.Len(t, cities, 1)
	assert.Equal(t, "null-island", cities[0].Key)
}

func TestGetYear(t *testing.T) {
	env := setupTest(t, nil)
	rr := env.get(t, "/api/v1/panchaanga/null-island/2023")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var data struct {
		Year int `json:"year"`
		Days []struct {
			Date      string   `json:"date"`
			Festivals []string `json:"festivals"`
		} `json:"days"`
	}
	decode(t, rr, &data)
	assert.Equal(t, 2023, data.Year)
	require.Len(t, data.Days, 365)
	assert.Equal(t, "2023-01-01", data.Days[0].Date)
	assert.Equal(t, "2023-12-31", data.Days[364].Date)
	assert.Contains(t, data.Days[10].Festivals, "ekaadashii")
}

func TestListCalendars(t *testing.T) {
	env := setupTest(t, nil)

	var list []database.CalendarSummary
	rr := env.get(t, "/api/v1/calendars")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &list)
	assert.Empty(t, list)

	require.Equal(t, http.StatusOK, env.get(t, "/api/v1/panchaanga/null-island/2023").Code)

	rr = env.get(t, "/api/v1/calendars")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "null-island", list[0].Key.City)
	assert.Equal(t, 2023, list[0].Key.Year)
	assert.Equal(t, 367, list[0].Days)
	assert.Positive(t, list[0].Festivals)
}

func TestGetYearErrors(t *testing.T) {
	env := setupTest(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"non-numeric year", "/api/v1/panchaanga/null-island/abc", http.StatusBadRequest, "BAD_REQUEST"},
		{"year out of range", "/api/v1/panchaanga/null-island/1500", http.StatusBadRequest, "YEAR_OUT_OF_RANGE"},
		{"unknown city", "/api/v1/panchaanga/atlantis/2023", http.StatusNotFound, "UNKNOWN_CITY"},
		{"bad date", "/api/v1/panchaanga/null-island/date/2023-02-30", http.StatusBadRequest, "BAD_DATE"},
		{"unknown festival", "/api/v1/festivals/null-island/2023/no-such", http.StatusNotFound, "UNKNOWN_FESTIVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.get(t, tt.path)
			assert.Equal(t, tt.wantStatus, rr.Code)
			res := decode(t, rr, nil)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.wantCode, res.Error.Code)
		})
	}
}

func TestGetDay(t *testing.T) {
	env := setupTest(t, nil)
	rr := env.get(t, "/api/v1/panchaanga/null-island/date/2023-01-12")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var day struct {
		Date      string                     `json:"date"`
		Festivals []string                   `json:"festivals"`
		Kaalas    map[string]json.RawMessage `json:"kaalas"`
	}
	decode(t, rr, &day)
	assert.Equal(t, "2023-01-12", day.Date)
	assert.Contains(t, day.Festivals, "paarana")
	assert.Contains(t, day.Kaalas, "sunrise")
}

func TestListFestivals(t *testing.T) {
	env := setupTest(t, nil)

	var data struct {
		Festivals []calendar.Festival `json:"festivals"`
	}
	decode(t, env.get(t, "/api/v1/festivals/null-island/2023?script=sa"), &data)
	require.NotEmpty(t, data.Festivals)
	assert.Equal(t, "ekaadashii", data.Festivals[0].ID)
	assert.Equal(t, "2023-01-11", data.Festivals[0].Date)
	assert.Equal(t, "एकादशी", data.Festivals[0].Title)
}

func TestGetFestivalDates(t *testing.T) {
	env := setupTest(t, nil)

	var data struct {
		ID    string   `json:"id"`
		Dates []string `json:"dates"`
	}
	decode(t, env.get(t, "/api/v1/festivals/null-island/2023/paarana"), &data)
	assert.Equal(t, "paarana", data.ID)
	require.NotEmpty(t, data.Dates)
	assert.Equal(t, "2023-01-12", data.Dates[0])
}

func TestGetFestivalFeed(t *testing.T) {
	env := setupTest(t, nil)
	rr := env.get(t, "/api/v1/festivals/null-island/2023/ics?id=ekaadashii")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/calendar"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "null-island-2023.ics")
	body := rr.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Ekadashi")
	assert.NotContains(t, body, "paarana")
}

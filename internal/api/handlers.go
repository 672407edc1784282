package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zapponejosh/panchaanga-api/internal/calendar"
	"github.com/zapponejosh/panchaanga-api/internal/database"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/ics"
	"github.com/zapponejosh/panchaanga-api/internal/location"
	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
	"github.com/zapponejosh/panchaanga-api/internal/rules"
)

// Calendar is the calendar service as the handlers use it.
type Calendar interface {
	Cities() *location.Catalogue
	Rules() (*rules.Tree, error)
	Year(ctx context.Context, cityKey string, year int) (*panchaanga.Year, error)
	Day(ctx context.Context, cityKey, date string) (*panchaanga.Day, error)
	Festivals(ctx context.Context, cityKey string, year int, script string) ([]calendar.Festival, error)
	FestivalDates(ctx context.Context, cityKey string, year int, id string) ([]string, error)
	Stored(ctx context.Context) ([]database.CalendarSummary, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	cal    Calendar
	health HealthChecker
	log    zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cal Calendar, health HealthChecker, log zerolog.Logger) *Handlers {
	return &Handlers{
		cal:    cal,
		health: health,
		log:    log.With().Str("component", "api").Logger(),
	}
}

// yearView is a computed year without its padding days.
type yearView struct {
	City      location.City       `json:"city"`
	Year      int                 `json:"year"`
	Ayanamsha ephemeris.Ayanamsha `json:"ayanamsha"`
	System    string              `json:"system"`
	Days      []*panchaanga.Day   `json:"days"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Health(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			WriteError(w, http.StatusServiceUnavailable, "Database unhealthy", "HEALTH_CHECK_FAILED")
			return
		}
	}

	WriteSuccess(w, map[string]string{
		"status": "healthy",
	})
}

// ListCities handles GET /api/v1/cities
func (h *Handlers) ListCities(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.cal.Cities().List())
}

// ListCalendars handles GET /api/v1/calendars
func (h *Handlers) ListCalendars(w http.ResponseWriter, r *http.Request) {
	list, err := h.cal.Stored(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteSuccess(w, list)
}

// GetYear handles GET /api/v1/panchaanga/{city}/{year}
func (h *Handlers) GetYear(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	y, err := h.cal.Year(r.Context(), chi.URLParam(r, "city"), year)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, yearView{
		City:      y.City,
		Year:      y.Year,
		Ayanamsha: y.Ayanamsha,
		System:    y.System,
		Days:      y.Real(),
	})
}

// GetDay handles GET /api/v1/panchaanga/{city}/date/{YYYY-MM-DD}
func (h *Handlers) GetDay(w http.ResponseWriter, r *http.Request) {
	d, err := h.cal.Day(r.Context(), chi.URLParam(r, "city"), chi.URLParam(r, "date"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteSuccess(w, d)
}

// ListFestivals handles GET /api/v1/festivals/{city}/{year}?script=en
func (h *Handlers) ListFestivals(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	list, err := h.cal.Festivals(r.Context(), chi.URLParam(r, "city"), year, script(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, map[string]any{
		"year":      year,
		"festivals": list,
	})
}

// GetFestivalDates handles GET /api/v1/festivals/{city}/{year}/{id}
func (h *Handlers) GetFestivalDates(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	dates, err := h.cal.FestivalDates(r.Context(), chi.URLParam(r, "city"), year, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteSuccess(w, map[string]any{
		"id":    id,
		"year":  year,
		"dates": dates,
	})
}

// GetFestivalFeed handles GET /api/v1/festivals/{city}/{year}/ics
//
// The optional id parameter is a comma-separated list of festivals to keep.
func (h *Handlers) GetFestivalFeed(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}

	y, err := h.cal.Year(r.Context(), chi.URLParam(r, "city"), year)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	tree, err := h.cal.Rules()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	opts := ics.Options{Script: script(r)}
	if ids := r.URL.Query().Get("id"); ids != "" {
		opts.Include = map[string]bool{}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				opts.Include[id] = true
			}
		}
	}

	var buf bytes.Buffer
	if err := ics.Write(&buf, y, tree, opts); err != nil {
		writeServiceError(w, r, fmt.Errorf("write ics: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%d.ics", y.City.Key, year)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "year")
	year, err := strconv.Atoi(raw)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("Invalid year: %s", raw))
		return 0, false
	}
	return year, true
}

func script(r *http.Request) string {
	if s := r.URL.Query().Get("script"); s != "" {
		return s
	}
	return "en"
}

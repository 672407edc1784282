// Package calendar serves computed panchaanga years. A year is looked up
// in the store first and otherwise built, resolved against the current
// rule tree and saved.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/zapponejosh/panchaanga-api/internal/database"
	"github.com/zapponejosh/panchaanga-api/internal/ephemeris"
	"github.com/zapponejosh/panchaanga-api/internal/festival"
	"github.com/zapponejosh/panchaanga-api/internal/location"
	"github.com/zapponejosh/panchaanga-api/internal/metrics"
	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
	"github.com/zapponejosh/panchaanga-api/internal/rules"
)

// Supported year range.
const (
	MinYear = 1800
	MaxYear = 2200
)

var (
	ErrUnknownCity     = errors.New("unknown city")
	ErrYearOutOfRange  = fmt.Errorf("year must be between %d and %d", MinYear, MaxYear)
	ErrUnknownFestival = errors.New("unknown festival")
	ErrBadDate         = errors.New("date must be YYYY-MM-DD")
)

// Store persists computed years. *database.DB satisfies it.
type Store interface {
	GetCalendar(ctx context.Context, key database.CalendarKey) (*database.Calendar, error)
	GetFestivalDates(ctx context.Context, key database.CalendarKey, festivalID string) ([]database.FestivalDate, error)
	SaveCalendar(ctx context.Context, c *database.Calendar, festivals []database.FestivalDate) error
	DeleteStale(ctx context.Context, city string, year int, rulesHash string) (int64, error)
	ListCalendars(ctx context.Context) ([]database.CalendarSummary, error)
}

// RuleTrees returns the rule tree for a set of directories. *rules.Cache
// satisfies it.
type RuleTrees interface {
	Tree(dirs ...string) (*rules.Tree, error)
}

// Config wires a Service.
type Config struct {
	Cities    *location.Catalogue
	Ephemeris ephemeris.Adapter
	Ayanamsha ephemeris.Ayanamsha
	Rules     RuleTrees
	RulesDirs []string

	// Store is optional; without it every request builds.
	Store   Store
	Metrics *metrics.Metrics
}

// Service computes and serves calendar years. It is safe for concurrent
// use; concurrent requests for the same year share one build.
type Service struct {
	cities    *location.Catalogue
	builder   *panchaanga.Builder
	ayanamsha ephemeris.Ayanamsha
	rules     RuleTrees
	rulesDirs []string
	store     Store
	metrics   *metrics.Metrics

	group singleflight.Group
	base  zerolog.Logger
	log   zerolog.Logger
}

// NewService creates a service from cfg.
func NewService(cfg Config, log zerolog.Logger) *Service {
	s := &Service{
		cities:    cfg.Cities,
		ayanamsha: cfg.Ayanamsha,
		rules:     cfg.Rules,
		rulesDirs: cfg.RulesDirs,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		base:      log,
		log:       log.With().Str("component", "calendar").Logger(),
	}
	s.builder = panchaanga.NewBuilder(cfg.Ephemeris, cfg.Ayanamsha, log)
	if s.metrics != nil {
		s.builder.ObserveCache(func(hits, misses int) {
			s.metrics.EphemerisCache.WithLabelValues("hit").Add(float64(hits))
			s.metrics.EphemerisCache.WithLabelValues("miss").Add(float64(misses))
		})
	}
	return s
}

// Cities returns the city catalogue.
func (s *Service) Cities() *location.Catalogue { return s.cities }

// Rules returns the current rule tree.
func (s *Service) Rules() (*rules.Tree, error) {
	tree, err := s.rules.Tree(s.rulesDirs...)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RulesLoaded.Set(float64(tree.Len()))
	}
	return tree, nil
}

// ReloadRules drops the cached rule tree, when the rule source caches, and
// loads the rule directories again. Stored years computed with other rules
// are rebuilt on their next request.
func (s *Service) ReloadRules() (*rules.Tree, error) {
	if c, ok := s.rules.(interface{ Invalidate(dirs ...string) }); ok {
		c.Invalidate(s.rulesDirs...)
	}
	tree, err := s.Rules()
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Int("rules", tree.Len()).
		Str("fingerprint", tree.Fingerprint()).
		Msg("Reloaded festival rules")
	return tree, nil
}

// City looks a catalogue city up by key.
func (s *Service) City(key string) (location.City, error) {
	c, ok := s.cities.Lookup(key)
	if !ok {
		return location.City{}, fmt.Errorf("%w: %q", ErrUnknownCity, key)
	}
	return c, nil
}

// Year returns the computed year for a catalogue city.
func (s *Service) Year(ctx context.Context, cityKey string, year int) (*panchaanga.Year, error) {
	city, err := s.City(cityKey)
	if err != nil {
		return nil, err
	}
	return s.YearFor(ctx, city, year)
}

// YearFor returns the computed year for any city, including ones outside
// the catalogue.
func (s *Service) YearFor(ctx context.Context, city location.City, year int) (*panchaanga.Year, error) {
	if year < MinYear || year > MaxYear {
		return nil, ErrYearOutOfRange
	}
	if err := city.Validate(); err != nil {
		return nil, err
	}

	tree, err := s.Rules()
	if err != nil {
		return nil, err
	}
	key := s.key(city.Key, year, tree)

	if y, ok := s.lookup(ctx, key); ok {
		return y, nil
	}

	flight := fmt.Sprintf("%s|%.4f|%.4f|%s|%d|%s", city.Key, city.Latitude, city.Longitude, city.Timezone, year, key.RulesHash)
	ch := s.group.DoChan(flight, func() (any, error) {
		// Other callers may be waiting on this build, so it must outlive
		// the caller that started it.
		return s.compute(context.WithoutCancel(ctx), city, year, tree, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared && s.metrics != nil {
			s.metrics.BuildsShared.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*panchaanga.Year), nil
	}
}

func (s *Service) key(city string, year int, tree *rules.Tree) database.CalendarKey {
	return database.CalendarKey{
		City:      city,
		Year:      year,
		Ayanamsha: string(s.ayanamsha),
		RulesHash: tree.Fingerprint(),
	}
}

func (s *Service) lookup(ctx context.Context, key database.CalendarKey) (*panchaanga.Year, bool) {
	if s.store == nil {
		return nil, false
	}
	c, err := s.store.GetCalendar(ctx, key)
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.countLookup("miss")
		return nil, false
	case err != nil:
		s.countLookup("error")
		s.log.Warn().Err(err).Str("city", key.City).Int("year", key.Year).Msg("Calendar lookup failed, rebuilding")
		return nil, false
	}

	y, err := decodeYear(c.Payload)
	if err != nil {
		s.countLookup("error")
		s.log.Warn().Err(err).Str("build_id", c.BuildID).Msg("Stored calendar is unreadable, rebuilding")
		return nil, false
	}
	s.countLookup("hit")
	return y, true
}

func (s *Service) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.StoreLookups.WithLabelValues(result).Inc()
	}
}

func (s *Service) compute(ctx context.Context, city location.City, year int, tree *rules.Tree, key database.CalendarKey) (*panchaanga.Year, error) {
	started := time.Now()
	buildID := uuid.NewString()
	log := s.log.With().Str("build_id", buildID).Str("city", city.Key).Int("year", year).Logger()

	y, err := s.builder.Build(ctx, city, year)
	if err != nil {
		s.observeBuild(err, started)
		return nil, fmt.Errorf("build %s %d: %w", city.Key, year, err)
	}

	resolver := festival.NewResolver(tree, s.base.With().Str("build_id", buildID).Logger())
	res, err := resolver.Apply(ctx, y)
	if err != nil {
		s.observeBuild(err, started)
		return nil, err
	}
	elapsed := time.Since(started)
	s.observeBuild(nil, started)

	var festivals []database.FestivalDate
	for _, a := range res.Assignments {
		if a.Date == "" {
			continue
		}
		if s.metrics != nil {
			s.metrics.FestivalAssignments.WithLabelValues(string(a.Source)).Inc()
		}
		festivals = append(festivals, database.FestivalDate{FestivalID: a.RuleID, Date: a.Date, Source: string(a.Source)})
	}

	log.Info().
		Int("festivals", len(festivals)).
		Dur("elapsed", elapsed).
		Msg("Computed calendar year")

	if s.store != nil {
		if err := s.save(ctx, y, buildID, key, elapsed, festivals); err != nil {
			log.Error().Err(err).Msg("Failed to store calendar year")
		}
	}
	return y, nil
}

func (s *Service) save(ctx context.Context, y *panchaanga.Year, buildID string, key database.CalendarKey, elapsed time.Duration, festivals []database.FestivalDate) error {
	payload, err := encodeYear(y)
	if err != nil {
		return err
	}
	err = s.store.SaveCalendar(ctx, &database.Calendar{
		BuildID: buildID,
		Key:     key,
		Payload: payload,
		Days:    len(y.Days),
		Build:   elapsed,
	}, festivals)
	if err != nil {
		return err
	}

	// Years computed under an earlier rule tree can no longer be served.
	n, err := s.store.DeleteStale(ctx, key.City, key.Year, key.RulesHash)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info().
			Str("city", key.City).
			Int("year", key.Year).
			Int64("removed", n).
			Msg("Removed calendars computed with older rules")
	}
	return nil
}

func (s *Service) observeBuild(err error, started time.Time) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "cancelled"
	case err != nil:
		result = "error"
	}
	s.metrics.ObserveBuild(result, time.Since(started))
}

// Day returns one day of a catalogue city's calendar.
func (s *Service) Day(ctx context.Context, cityKey, date string) (*panchaanga.Day, error) {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadDate, date)
	}
	y, err := s.Year(ctx, cityKey, t.Year())
	if err != nil {
		return nil, err
	}
	d, ok := y.Day(date)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBadDate, date)
	}
	return d, nil
}

// Festival is one festival occurrence with its display data.
type Festival struct {
	ID    string   `json:"id"`
	Date  string   `json:"date"`
	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
}

// Festivals lists the festivals of a catalogue city's year in date order.
func (s *Service) Festivals(ctx context.Context, cityKey string, year int, script string) ([]Festival, error) {
	y, err := s.Year(ctx, cityKey, year)
	if err != nil {
		return nil, err
	}
	tree, err := s.Rules()
	if err != nil {
		return nil, err
	}

	out := []Festival{}
	for _, d := range y.Real() {
		for _, id := range d.Festivals {
			f := Festival{ID: id, Date: d.Date, Title: id}
			if r, ok := tree.Rule(id); ok {
				f.Title = r.Title(script)
				f.Tags = r.Tags
			}
			out = append(out, f)
		}
	}
	return out, nil
}

// FestivalDates returns the dates of one festival in a catalogue city's
// year. Ids that are neither rules nor built-in fail with
// ErrUnknownFestival.
func (s *Service) FestivalDates(ctx context.Context, cityKey string, year int, id string) ([]string, error) {
	tree, err := s.Rules()
	if err != nil {
		return nil, err
	}
	if _, ok := tree.Rule(id); !ok && id != festival.SolarEclipseID && id != festival.LunarEclipseID {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFestival, id)
	}

	if dates, ok := s.storedDates(ctx, cityKey, year, tree, id); ok {
		return dates, nil
	}

	y, err := s.Year(ctx, cityKey, year)
	if err != nil {
		return nil, err
	}
	dates := y.FestivalDays(id)
	if dates == nil {
		dates = []string{}
	}
	return dates, nil
}

// storedDates answers from the festival index of a stored year without
// decoding it.
func (s *Service) storedDates(ctx context.Context, cityKey string, year int, tree *rules.Tree, id string) ([]string, bool) {
	if s.store == nil || year < MinYear || year > MaxYear {
		return nil, false
	}
	if _, err := s.City(cityKey); err != nil {
		return nil, false
	}
	rows, err := s.store.GetFestivalDates(ctx, s.key(cityKey, year, tree), id)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.log.Warn().Err(err).Str("city", cityKey).Int("year", year).Msg("Festival index lookup failed")
		}
		return nil, false
	}
	dates := make([]string, 0, len(rows))
	for _, r := range rows {
		dates = append(dates, r.Date)
	}
	return dates, true
}

// Stored summarizes the calendars held by the store, newest year first.
func (s *Service) Stored(ctx context.Context) ([]database.CalendarSummary, error) {
	if s.store == nil {
		return []database.CalendarSummary{}, nil
	}
	return s.store.ListCalendars(ctx)
}

// Precompute makes sure the given years are computed and stored for each
// city. It stops at the first error.
func (s *Service) Precompute(ctx context.Context, cityKeys []string, years []int) error {
	for _, key := range cityKeys {
		for _, year := range years {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := s.Year(ctx, key, year); err != nil {
				return fmt.Errorf("precompute %s %d: %w", key, year, err)
			}
		}
	}
	return nil
}

// Package festival attaches festivals to the days of a built panchaanga
// year according to a rule tree.
package festival

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/zapponejosh/panchaanga-api/internal/anga"
	"github.com/zapponejosh/panchaanga-api/internal/panchaanga"
	"github.com/zapponejosh/panchaanga-api/internal/rules"
)

// Built-in ids attached by the eclipse pass.
const (
	SolarEclipseID = "sUrya-grahaNam"
	LunarEclipseID = "chandra-grahaNam"
)

// Status is the outcome of evaluating one rule against one candidate.
type Status int

const (
	NotEvaluated Status = iota
	Matched
	Rejected
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case Rejected:
		return "rejected"
	default:
		return "not_evaluated"
	}
}

// Source records which pass produced an assignment.
type Source string

const (
	FromAnga    Source = "anga"
	FromDay     Source = "day"
	FromAnchor  Source = "anchor"
	FromEclipse Source = "eclipse"
)

// Evaluation is the record of one rule checked against one candidate
// instance. Day is -1 unless the rule matched.
type Evaluation struct {
	RuleID string
	Anga   *anga.Anga
	Status Status
	Day    int
	Reason string
}

// Assignment places a festival on a day of the year, by index into Days.
type Assignment struct {
	RuleID string `json:"id"`
	Day    int    `json:"-"`
	Date   string `json:"date"`
	Source Source `json:"source"`
}

// Result is the outcome of resolving one year. ByDay holds only real days
// of the year; Assignments may include padding days.
type Result struct {
	ByDay       map[int][]string
	Assignments []Assignment
	Evaluations []Evaluation
}

// Dates returns the dates of the real days id was assigned to, in order.
func (r *Result) Dates(id string) []string {
	var dates []string
	for _, a := range r.Assignments {
		if a.RuleID == id && a.Date != "" {
			dates = append(dates, a.Date)
		}
	}
	return dates
}

// Resolver evaluates a rule tree against built years. It keeps no state
// between years and may be shared.
type Resolver struct {
	tree *rules.Tree
	log  zerolog.Logger
}

// NewResolver returns a resolver for tree.
func NewResolver(tree *rules.Tree, log zerolog.Logger) *Resolver {
	return &Resolver{
		tree: tree,
		log:  log.With().Str("component", "festival").Logger(),
	}
}

// ErrShortYear is returned for a year without its padding days.
var ErrShortYear = errors.New("year has no padding days")

// Resolve computes the festivals of y without modifying it.
func (r *Resolver) Resolve(ctx context.Context, y *panchaanga.Year) (*Result, error) {
	if len(y.Days) < 3 {
		return nil, ErrShortYear
	}

	st := &state{year: y, byRule: make(map[string][]int)}

	for _, b := range r.tree.Branches() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind, ok := b.AngaType.Kind()
		if !ok {
			r.resolveDays(st, b)
			continue
		}
		for _, o := range occurrences(y, kind) {
			r.resolveOccurrence(st, b, o)
		}
	}

	for _, rule := range r.tree.Relative() {
		r.resolveAnchored(st, rule)
	}
	resolveEclipses(st)

	res := st.result()
	r.log.Debug().
		Str("city", y.City.Key).
		Int("year", y.Year).
		Int("assignments", len(res.Assignments)).
		Int("evaluations", len(res.Evaluations)).
		Msg("Resolved festivals")
	return res, nil
}

// Apply resolves y and stores the festival sets on its days. Applying the
// same tree twice leaves the year unchanged.
func (r *Resolver) Apply(ctx context.Context, y *panchaanga.Year) (*Result, error) {
	res, err := r.Resolve(ctx, y)
	if err != nil {
		return nil, fmt.Errorf("resolve festivals for %s %d: %w", y.City.Key, y.Year, err)
	}
	y.SetFestivals(res.ByDay)
	return res, nil
}

type state struct {
	year        *panchaanga.Year
	byRule      map[string][]int
	assignments []Assignment
	evals       []Evaluation
}

func (s *state) assign(id string, day int, src Source) {
	for _, d := range s.byRule[id] {
		if d == day {
			return
		}
	}
	s.byRule[id] = append(s.byRule[id], day)
	a := Assignment{RuleID: id, Day: day, Source: src}
	if s.year.IsReal(day) {
		a.Date = s.year.Days[day].Date
	}
	s.assignments = append(s.assignments, a)
}

func (s *state) reject(id string, a *anga.Anga, reason string) {
	s.evals = append(s.evals, Evaluation{RuleID: id, Anga: a, Status: Rejected, Day: -1, Reason: reason})
}

func (s *state) match(id string, a *anga.Anga, day int, src Source) {
	s.evals = append(s.evals, Evaluation{RuleID: id, Anga: a, Status: Matched, Day: day})
	s.assign(id, day, src)
}

func (s *state) result() *Result {
	sort.SliceStable(s.assignments, func(i, j int) bool {
		if s.assignments[i].Day != s.assignments[j].Day {
			return s.assignments[i].Day < s.assignments[j].Day
		}
		return s.assignments[i].RuleID < s.assignments[j].RuleID
	})
	byDay := make(map[int][]string)
	for _, a := range s.assignments {
		if s.year.IsReal(a.Day) {
			byDay[a.Day] = append(byDay[a.Day], a.RuleID)
		}
	}
	return &Result{ByDay: byDay, Assignments: s.assignments, Evaluations: s.evals}
}

// monthOf returns the month a day counts in for a rule of monthType. A
// tithi carries its own lunar month so both days it touches agree.
func monthOf(d *panchaanga.Day, mt rules.MonthType, o *occurrence) anga.LunarMonth {
	switch mt {
	case rules.SiderealSolarMonth:
		return anga.LunarMonth{Index: d.SolarMonth}
	case rules.TropicalMonth:
		return anga.LunarMonth{Index: d.TropicalMonth}
	}
	if o != nil && o.month != nil {
		return *o.month
	}
	return d.LunarMonth
}

func (r *Resolver) resolveOccurrence(st *state, b rules.Branch, o occurrence) {
	y := st.year
	seen := make(map[string]bool)
	var candidates []*rules.Rule
	for d := o.first; d <= o.last; d++ {
		m := monthOf(y.Days[d], b.MonthType, &o)
		for _, c := range r.tree.Candidates(b.MonthType, b.AngaType, m, o.anga.Index) {
			if !seen[c.ID] {
				seen[c.ID] = true
				candidates = append(candidates, c)
			}
		}
	}

	for _, c := range candidates {
		a := o.anga
		if c.Timing.YearStart > y.Year {
			st.reject(c.ID, &a, fmt.Sprintf("starts in %d", c.Timing.YearStart))
			continue
		}
		var eligible []int
		for d := o.first; d <= o.last; d++ {
			if c.Timing.MonthNumber.Key() == rules.WildcardMonth ||
				monthOf(y.Days[d], b.MonthType, &o) == c.Timing.MonthNumber.LunarMonth {
				eligible = append(eligible, d)
			}
		}
		if len(eligible) == 0 {
			st.reject(c.ID, &a, "month does not match")
			continue
		}
		st.match(c.ID, &a, pickDay(y, o, eligible, c.Timing), FromAnga)
	}
}

// pickDay chooses among the eligible days of o by the rule's priority.
func pickDay(y *panchaanga.Year, o occurrence, eligible []int, t *rules.Timing) int {
	switch t.Priority {
	case rules.Paraviddha:
		for i := len(eligible) - 1; i >= 0; i-- {
			if o.presentAt(y.Days[eligible[i]], t.Kaala) {
				return eligible[i]
			}
		}
		for _, d := range eligible {
			if o.containsEnd(y.Days[d]) {
				return d
			}
		}
		return eligible[len(eligible)-1]
	case rules.Vyaapti:
		best, bestOverlap := -1, 0.0
		for _, d := range eligible {
			if ov := o.overlap(y.Days[d], t.Kaala); ov > bestOverlap {
				best, bestOverlap = d, ov
			}
		}
		if best >= 0 {
			return best
		}
	}
	for _, d := range eligible {
		if o.presentAt(y.Days[d], t.Kaala) {
			return d
		}
	}
	return eligible[0]
}

// resolveDays matches rules keyed by the day count within a solar or
// tropical month.
func (r *Resolver) resolveDays(st *state, b rules.Branch) {
	for i, d := range st.year.Days {
		n := d.SolarMonthDay
		if b.MonthType == rules.TropicalMonth {
			n = d.TropicalMonthDay
		}
		for _, c := range r.tree.Candidates(b.MonthType, b.AngaType, monthOf(d, b.MonthType, nil), n) {
			if c.Timing.YearStart > st.year.Year {
				st.reject(c.ID, nil, fmt.Sprintf("starts in %d", c.Timing.YearStart))
				continue
			}
			st.match(c.ID, nil, i, FromDay)
		}
	}
}

// resolveAnchored places a relative rule offset days from every day its
// anchor landed on, padding days included. Anchors resolve first because
// the tree orders relative rules topologically.
func (r *Resolver) resolveAnchored(st *state, rule *rules.Rule) {
	t := rule.Timing
	if t.YearStart > st.year.Year {
		st.reject(rule.ID, nil, fmt.Sprintf("starts in %d", t.YearStart))
		return
	}
	days := append([]int(nil), st.byRule[t.AnchorFestivalID]...)
	if len(days) == 0 {
		st.reject(rule.ID, nil, "anchor "+t.AnchorFestivalID+" not in year")
		return
	}
	for _, d := range days {
		target := d + t.Offset
		if target < 0 || target >= len(st.year.Days) {
			continue
		}
		st.match(rule.ID, nil, target, FromAnchor)
	}
}

func resolveEclipses(st *state) {
	for i, d := range st.year.Days {
		for _, e := range d.Eclipses {
			switch e.Kind {
			case panchaanga.SolarEclipse:
				st.assign(SolarEclipseID, i, FromEclipse)
			case panchaanga.LunarEclipse:
				st.assign(LunarEclipseID, i, FromEclipse)
			}
		}
	}
}

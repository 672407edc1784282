package anga

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

const synodicMonth = 29.530588853

// LunarMonth is an amaanta lunar month. Index is the sidereal rashi the Sun
// occupies at the new moon that ends the month. An adhika month has no
// sankranti; it sits between nija months Index and Index+1.
type LunarMonth struct {
	Index  int  `json:"index"`
	Adhika bool `json:"adhika"`
}

// Value returns Index, plus one half for adhika months.
func (m LunarMonth) Value() float64 {
	if m.Adhika {
		return float64(m.Index) + 0.5
	}
	return float64(m.Index)
}

// Key returns the storage key, "03" or "03.5".
func (m LunarMonth) Key() string {
	if m.Adhika {
		return fmt.Sprintf("%02d.5", m.Index)
	}
	return fmt.Sprintf("%02d", m.Index)
}

func (m LunarMonth) String() string { return m.Key() }

// Name returns the month's name. An adhika month borrows the name of the
// nija month that follows it.
func (m LunarMonth) Name() string {
	if m.Index < 1 || m.Index > 12 {
		return "month#" + m.Key()
	}
	if m.Adhika {
		return "adhika-" + lunarMonthNames[Normalize(m.Index+1, 12)-1]
	}
	return lunarMonthNames[m.Index-1]
}

// ParseMonthKey accepts "3", "03", "03.5" and "3.5". "0" is the wildcard
// month.
func ParseMonthKey(s string) (LunarMonth, error) {
	s = strings.TrimSpace(s)
	adhika := false
	if strings.HasSuffix(s, ".5") {
		adhika = true
		s = strings.TrimSuffix(s, ".5")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 12 || (adhika && n == 0) {
		return LunarMonth{}, fmt.Errorf("invalid month key %q", s)
	}
	return LunarMonth{Index: n, Adhika: adhika}, nil
}

type lunation struct {
	start, end julian.Day
	month      LunarMonth
}

// LunarMonthAt returns the lunar month in progress at jd.
func (c *Calculator) LunarMonthAt(jd julian.Day) (LunarMonth, error) {
	c.mu.Lock()
	for _, l := range c.lunations {
		if jd >= l.start && jd < l.end {
			c.mu.Unlock()
			return l.month, nil
		}
	}
	c.mu.Unlock()

	prev, next, err := c.NewMoons(jd)
	if err != nil {
		return LunarMonth{}, err
	}

	before, err := c.IndexAt(SolarMonth, prev)
	if err != nil {
		return LunarMonth{}, err
	}
	after, err := c.IndexAt(SolarMonth, next)
	if err != nil {
		return LunarMonth{}, err
	}
	m := LunarMonth{Index: after.Index, Adhika: before.Index == after.Index}

	c.mu.Lock()
	c.lunations = append(c.lunations, lunation{start: prev, end: next, month: m})
	c.mu.Unlock()
	return m, nil
}

// NewMoons returns the new moons on either side of jd: prev <= jd < next.
func (c *Calculator) NewMoons(jd julian.Day) (prev, next julian.Day, err error) {
	v, err := c.Value(Tithi, jd)
	if err != nil {
		return 0, 0, err
	}
	unit := synodicMonth / 30

	prev, err = c.newMoonNear(jd.Add(-v * unit))
	if err != nil {
		return 0, 0, err
	}
	next, err = c.newMoonNear(jd.Add((30 - v) * unit))
	if err != nil {
		return 0, 0, err
	}

	if prev > jd {
		next = prev
		if prev, err = c.newMoonNear(prev.Add(-synodicMonth)); err != nil {
			return 0, 0, err
		}
	}
	if next <= jd {
		prev = next
		if next, err = c.newMoonNear(next.Add(synodicMonth)); err != nil {
			return 0, 0, err
		}
	}
	return prev, next, nil
}

func (c *Calculator) newMoonNear(estimate julian.Day) (julian.Day, error) {
	jd, err := FindCrossing(c.AngleFunc(Tithi), 0, 30, estimate.Add(-4), estimate.Add(4))
	if err != nil {
		return 0, fmt.Errorf("new moon near %.4f: %w", float64(estimate), err)
	}
	return jd, nil
}

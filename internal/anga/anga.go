// Package anga computes the limbs of the panchaanga: tithi, nakshatra, yoga,
// karana and the solar and lunar rashis, together with the instants at which
// they change.
//
// Every kind measures an angle that grows monotonically modulo 360 degrees.
// Dividing that angle by 360/cycle gives a value in [0, cycle); the anga
// index is that value's floor plus one. FindCrossing locates the instant at
// which the value reaches a boundary; Calculator lays the resulting spans
// over a solar day.
package anga

import (
	"fmt"
	"strings"
)

// Kind is the tagged variant of anga families.
type Kind int

const (
	Tithi Kind = iota + 1
	Nakshatra
	Yoga
	Karana
	// SolarMonth is the sidereal rashi of the Sun.
	SolarMonth
	// MoonRashi is the sidereal rashi of the Moon.
	MoonRashi
	// TropicalMonth is the tropical sign of the Sun.
	TropicalMonth
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{Tithi, Nakshatra, Yoga, Karana, SolarMonth, MoonRashi, TropicalMonth}

var kindInfo = map[Kind]struct {
	name  string
	cycle int
}{
	Tithi:         {"tithi", 30},
	Nakshatra:     {"nakshatra", 27},
	Yoga:          {"yoga", 27},
	Karana:        {"karana", 60},
	SolarMonth:    {"solar_month", 12},
	MoonRashi:     {"moon_rashi", 12},
	TropicalMonth: {"tropical_month", 12},
}

// Cycle returns the number of angas in one revolution.
func (k Kind) Cycle() int {
	return kindInfo[k].cycle
}

// Span returns the width of one anga in degrees.
func (k Kind) Span() float64 {
	return 360 / float64(k.Cycle())
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindInfo[k]
	return ok
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown anga kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Normalize maps any integer onto the 1-based range [1, cycle].
func Normalize(index, cycle int) int {
	return ((index-1)%cycle+cycle)%cycle + 1
}

// Anga is one member of a kind's cycle. Index is 1-based; zero is invalid.
type Anga struct {
	Kind  Kind `json:"kind"`
	Index int  `json:"index"`
}

// New validates index against kind's cycle.
func New(kind Kind, index int) (Anga, error) {
	if !kind.Valid() {
		return Anga{}, fmt.Errorf("unknown anga kind %d", int(kind))
	}
	if index < 1 || index > kind.Cycle() {
		return Anga{}, fmt.Errorf("%s index %d out of range [1, %d]", kind, index, kind.Cycle())
	}
	return Anga{Kind: kind, Index: index}, nil
}

// Add returns the anga n steps later in the cycle; n may be negative.
func (a Anga) Add(n int) Anga {
	return Anga{Kind: a.Kind, Index: Normalize(a.Index+n, a.Kind.Cycle())}
}

// Next returns the following anga.
func (a Anga) Next() Anga { return a.Add(1) }

// Name returns the conventional name of the anga.
func (a Anga) Name() string {
	return Name(a.Kind, a.Index)
}

func (a Anga) String() string {
	return fmt.Sprintf("%s:%d", a.Kind, a.Index)
}

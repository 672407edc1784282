// Package location holds the places a calendar can be computed for and the
// YAML catalogue they are loaded from.
package location

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// City is an observer location.
type City struct {
	// Key is the URL-safe identifier, e.g. "bengaluru".
	Key       string  `yaml:"key" json:"key"`
	Name      string  `yaml:"name" json:"name"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	// Timezone is an IANA zone name such as "Asia/Kolkata".
	Timezone string `yaml:"timezone" json:"timezone"`
}

// Location loads the city's time zone.
func (c City) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("city %s: %w", c.Key, err)
	}
	return loc, nil
}

// Validate checks coordinates and the time zone.
func (c City) Validate() error {
	var errs []error
	if c.Key == "" {
		errs = append(errs, errors.New("key is required"))
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		errs = append(errs, fmt.Errorf("latitude %.4f out of range", c.Latitude))
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		errs = append(errs, fmt.Errorf("longitude %.4f out of range", c.Longitude))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		errs = append(errs, fmt.Errorf("invalid timezone %q", c.Timezone))
	}
	if len(errs) > 0 {
		return fmt.Errorf("city %q: %w", c.Key, errors.Join(errs...))
	}
	return nil
}

// Catalogue is a read-only set of cities keyed by City.Key.
type Catalogue struct {
	cities map[string]City
}

type catalogueFile struct {
	Cities []City `yaml:"cities"`
}

//go:embed cities.yaml
var defaultCities []byte

// Default returns the built-in catalogue.
func Default() *Catalogue {
	c, err := Parse(defaultCities)
	if err != nil {
		panic(fmt.Sprintf("location: embedded catalogue: %v", err))
	}
	return c
}

// Load reads a catalogue from a YAML file. An empty path yields Default.
func Load(path string) (*Catalogue, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read city catalogue: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalogue, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse city catalogue: %w", err)
	}

	c := &Catalogue{cities: make(map[string]City, len(f.Cities))}
	for _, city := range f.Cities {
		city.Key = strings.ToLower(strings.TrimSpace(city.Key))
		if err := city.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.cities[city.Key]; dup {
			return nil, fmt.Errorf("duplicate city %q", city.Key)
		}
		c.cities[city.Key] = city
	}
	return c, nil
}

// Lookup finds a city by key, ignoring case.
func (c *Catalogue) Lookup(key string) (City, bool) {
	city, ok := c.cities[strings.ToLower(key)]
	return city, ok
}

// List returns every city sorted by key.
func (c *Catalogue) List() []City {
	out := make([]City, 0, len(c.cities))
	for _, city := range c.cities {
		out = append(out, city)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of cities.
func (c *Catalogue) Len() int { return len(c.cities) }

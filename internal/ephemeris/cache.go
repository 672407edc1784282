package ephemeris

import (
	"sync"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

type longitudeKey struct {
	jd   julian.Day
	body Body
}

type eventKey struct {
	jd       julian.Day
	body     Body
	lat, lon float64
	rise     bool
}

// Cache memoizes an Adapter for the duration of one computation run. The
// root finder evaluates the same instants repeatedly while bracketing, so
// the hit rate is high. A Cache is safe for concurrent use but should not
// outlive the run it was created for.
type Cache struct {
	adapter Adapter

	mu         sync.Mutex
	longitudes map[longitudeKey]float64
	events     map[eventKey]julian.Day
	hits       int
	misses     int
}

// NewCache wraps adapter.
func NewCache(adapter Adapter) *Cache {
	return &Cache{
		adapter:    adapter,
		longitudes: make(map[longitudeKey]float64),
		events:     make(map[eventKey]julian.Day),
	}
}

var _ Adapter = (*Cache)(nil)

func (c *Cache) Longitude(jd julian.Day, body Body) (float64, error) {
	key := longitudeKey{jd, body}
	c.mu.Lock()
	if v, ok := c.longitudes[key]; ok {
		c.hits++
		c.mu.Unlock()
		return v, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err := c.adapter.Longitude(jd, body)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.longitudes[key] = v
	c.mu.Unlock()
	return v, nil
}

func (c *Cache) RiseTime(jdStart julian.Day, body Body, lat, lon float64) (julian.Day, error) {
	return c.event(eventKey{jdStart, body, lat, lon, true}, c.adapter.RiseTime)
}

func (c *Cache) SetTime(jdStart julian.Day, body Body, lat, lon float64) (julian.Day, error) {
	return c.event(eventKey{jdStart, body, lat, lon, false}, c.adapter.SetTime)
}

func (c *Cache) event(key eventKey, fn func(julian.Day, Body, float64, float64) (julian.Day, error)) (julian.Day, error) {
	c.mu.Lock()
	if v, ok := c.events[key]; ok {
		c.hits++
		c.mu.Unlock()
		return v, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err := fn(key.jd, key.body, key.lat, key.lon)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.events[key] = v
	c.mu.Unlock()
	return v, nil
}

// Eclipse searches are rare and not cached.
func (c *Cache) SolarEclipse(jd julian.Day) (EclipseWindow, error) {
	return c.adapter.SolarEclipse(jd)
}

func (c *Cache) LunarEclipse(jd julian.Day) (EclipseWindow, error) {
	return c.adapter.LunarEclipse(jd)
}

func (c *Cache) LocalEclipse(w EclipseWindow, body Body, lat, lon float64) (EclipseWindow, bool, error) {
	return c.adapter.LocalEclipse(w, body, lat, lon)
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

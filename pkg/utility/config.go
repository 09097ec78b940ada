package utility

import (
	"fmt"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/powerwall-tou/pkg/types"
)

const (
	SourceGlobird = "globird"
	SourceAmber   = "amber"
)

// Configured sets up the price sources based on flags and returns a Map.
func Configured() *Map {
	m := NewMap()

	resolution := lflag.Int("resolution", 5, "Price interval resolution in minutes (5 or 30)")
	timezone := lflag.String("timezone", "", "IANA time zone of the site (defaults to the local time zone)")

	g := &Globird{now: time.Now}
	a := configuredAmber()

	lflag.Do(func() {
		if err := types.ValidateResolution(*resolution); err != nil {
			panic(fmt.Sprintf("invalid resolution: %v", err))
		}
		loc, err := loadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("invalid timezone: %v", err))
		}

		m.mu.Lock()
		m.resolution = *resolution
		m.location = loc
		m.mu.Unlock()

		g.resolution = *resolution
		g.location = loc
		a.resolution = *resolution
		a.location = loc
		if err := a.Validate(); err != nil {
			panic(fmt.Sprintf("amber validation failed: %v", err))
		}
	})

	m.SetSource(SourceGlobird, g)
	m.SetSource(SourceAmber, a)
	return m
}

// Map manages the price sources along with the resolution and location they
// were configured with.
type Map struct {
	mu         sync.Mutex
	sources    map[string]Source
	resolution int
	location   *time.Location
}

// NewMap creates a new Map using the 5 minute resolution and local time zone.
func NewMap() *Map {
	return &Map{
		sources:    make(map[string]Source),
		resolution: 5,
		location:   time.Local,
	}
}

// Source returns the source for the given name.
func (m *Map) Source(name string) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sources[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("unknown price source: %s", name)
}

// SetSource sets the source for the given name. This is primarily used for testing.
func (m *Map) SetSource(name string, source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[name] = source
}

// Resolution returns the configured resolution in minutes.
func (m *Map) Resolution() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolution
}

// Location returns the configured site location.
func (m *Map) Location() *time.Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location
}

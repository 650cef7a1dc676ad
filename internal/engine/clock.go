package engine

import (
	"fmt"
	"strings"
	"time"
)

// Clock supplies the current instant. Injecting it keeps the recurrence math
// testable with fixed times.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by time.Now.
func System() Clock { return systemClock{} }

// ZoneClock pairs a Clock with the single configured IANA zone. All wall-clock
// weekday/time arithmetic goes through this zone, never the process-local one.
type ZoneClock struct {
	clock Clock
	loc   *time.Location
}

// NewZoneClock resolves the zone name via time.LoadLocation.
// An empty zone means UTC. A nil clock defaults to System().
func NewZoneClock(clock Clock, zone string) (*ZoneClock, error) {
	if clock == nil {
		clock = System()
	}
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return &ZoneClock{clock: clock, loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", zone, err)
	}
	return &ZoneClock{clock: clock, loc: loc}, nil
}

func (c *ZoneClock) Now() time.Time           { return c.clock.Now() }
func (c *ZoneClock) Location() *time.Location { return c.loc }

// Local returns the current instant converted to the configured zone.
func (c *ZoneClock) Local() time.Time { return c.clock.Now().In(c.loc) }

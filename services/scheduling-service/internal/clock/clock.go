// Package clock converts instants to the clinic's civil time. The whole system
// runs on a single configured zone.
package clock

import (
	"fmt"
	"time"
)

const DefaultZone = "America/Sao_Paulo"

type Zone struct {
	loc *time.Location
	now func() time.Time
}

// Load resolves an IANA zone name. The tz database is embedded in the binaries
// via time/tzdata, so this does not depend on the host.
func Load(name string) (*Zone, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Zone{loc: loc, now: time.Now}, nil
}

// Fixed returns a zone whose Now always reports t. Tests use it to pin the clock.
func Fixed(loc *time.Location, t time.Time) *Zone {
	return &Zone{loc: loc, now: func() time.Time { return t }}
}

func (z *Zone) Location() *time.Location { return z.loc }

func (z *Zone) Now() time.Time { return z.now() }

// LocalHourMinute returns the wall-clock hour and minute of t in the clinic zone.
func (z *Zone) LocalHourMinute(t time.Time) (hour, minute int) {
	local := t.In(z.loc)
	return local.Hour(), local.Minute()
}

// MinutesOfDay returns minutes since local midnight.
func (z *Zone) MinutesOfDay(t time.Time) int {
	h, m := z.LocalHourMinute(t)
	return h*60 + m
}

// LocalDate truncates t to local midnight.
func (z *Zone) LocalDate(t time.Time) time.Time {
	local := t.In(z.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.loc)
}

// At builds the instant for a local calendar day and minutes since midnight.
func (z *Zone) At(day time.Time, minutes int) time.Time {
	d := z.LocalDate(day)
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, z.loc)
}

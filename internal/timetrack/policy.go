// Package timetrack holds the pure work-session rules: validation of clock
// actions, projection of session totals and the per-action gate.
//
// Nothing in this package reads the wall clock; every function receives the
// instant it evaluates.
package timetrack

import (
	"math"
	"time"
)

// DefaultTimezone is the zone used when a policy does not name one.
const DefaultTimezone = "America/Santiago"

// Policy holds the business limits evaluated against clock actions.
type Policy struct {
	Location *time.Location

	MinRest          time.Duration
	LunchWindowStart int // local hour, inclusive
	LunchWindowEnd   int // local hour, exclusive
	MaxLunch         time.Duration
	MaxDailyWork     time.Duration
	MaxWeeklyWork    time.Duration

	// StrictGate makes the gate run the cap rules before enabling an action.
	StrictGate bool
}

// DefaultPolicy returns the limits used by the source deployment.
func DefaultPolicy() Policy {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return Policy{
		Location:         loc,
		MinRest:          60 * time.Minute,
		LunchWindowStart: 12,
		LunchWindowEnd:   20,
		MaxLunch:         120 * time.Minute,
		MaxDailyWork:     600 * time.Minute,
		MaxWeeklyWork:    2700 * time.Minute,
		StrictGate:       true,
	}
}

// WithDefaults fills unset fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	def := DefaultPolicy()
	if p.Location == nil {
		p.Location = def.Location
	}
	if p.MinRest <= 0 {
		p.MinRest = def.MinRest
	}
	if p.LunchWindowEnd <= p.LunchWindowStart {
		p.LunchWindowStart = def.LunchWindowStart
		p.LunchWindowEnd = def.LunchWindowEnd
	}
	if p.MaxLunch <= 0 {
		p.MaxLunch = def.MaxLunch
	}
	if p.MaxDailyWork <= 0 {
		p.MaxDailyWork = def.MaxDailyWork
	}
	if p.MaxWeeklyWork <= 0 {
		p.MaxWeeklyWork = def.MaxWeeklyWork
	}
	return p
}

// Local converts t into the policy zone.
func (p Policy) Local(t time.Time) time.Time {
	if p.Location == nil {
		return t
	}
	return t.In(p.Location)
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}

func ceilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

func hours(minutes int) float64 {
	return float64(minutes) / 60
}

// Package timepolicy maps instants onto the community's calendar: one fixed
// civil timezone, weeks starting on Monday
package timepolicy

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/leettogether/leetstreak/internal/domain"
)

// DefaultZone is used when no zone is configured
const DefaultZone = "Asia/Kolkata"

// Policy converts instants to calendar days in a single location
type Policy struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Policy for the named IANA zone
func New(zone string) (*Policy, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", zone, err)
	}
	return &Policy{loc: loc, now: time.Now}, nil
}

// WithClock returns a copy of p that reads the current time from now
func (p *Policy) WithClock(now func() time.Time) *Policy {
	return &Policy{loc: p.loc, now: now}
}

// Location returns the policy's zone
func (p *Policy) Location() *time.Location {
	return p.loc
}

// Now returns the current instant in the policy's zone
func (p *Policy) Now() time.Time {
	return p.now().In(p.loc)
}

// Today returns the calendar day containing t. Local midnight belongs to
// the day it starts
func (p *Policy) Today(t time.Time) domain.Date {
	return domain.DateOf(t.In(p.loc))
}

// CurrentDate returns the calendar day of Now
func (p *Policy) CurrentDate() domain.Date {
	return p.Today(p.now())
}

// WeekStart returns the Monday on or before d
func (p *Policy) WeekStart(d domain.Date) domain.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// CurrentWeekStart returns the Monday of the week containing Now
func (p *Policy) CurrentWeekStart() domain.Date {
	return p.WeekStart(p.CurrentDate())
}

// StartOf returns the instant the given day begins
func (p *Policy) StartOf(d domain.Date) time.Time {
	return d.In(p.loc)
}

// SameDay reports whether t falls on d
func (p *Policy) SameDay(t time.Time, d domain.Date) bool {
	return p.Today(t) == d
}

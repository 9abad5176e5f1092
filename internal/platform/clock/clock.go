// Package clock provides the time source used by the executor and the
// retention schedulers. Local time is always expressed in a configured zone,
// never in the host's zone.
package clock

import (
	"fmt"
	"sync"
	"time"

	"log-inspection/internal/shared"
)

// DateLayout is the calendar-date format used for cutoffs and the
// created_date_only column.
const DateLayout = "2006-01-02"

// Clock supplies the current instant in UTC and in the configured zone.
type Clock interface {
	Now() time.Time
	UTCNow() time.Time
	Location() *time.Location
}

// LoadLocation resolves an IANA zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("time zone %q: %w", name, err), shared.KindConfig)
	}
	return loc, nil
}

// Today returns the local calendar date of c at midnight in c's zone.
func Today(c Clock) time.Time {
	return DateOf(c.Now())
}

// DateOf truncates t to midnight of its own calendar date, keeping its zone.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// System reads the wall clock.
type System struct {
	loc *time.Location
}

// New returns a wall clock reporting local time in loc. A nil loc means UTC.
func New(loc *time.Location) *System {
	if loc == nil {
		loc = time.UTC
	}
	return &System{loc: loc}
}

func (s *System) Now() time.Time           { return time.Now().In(s.loc) }
func (s *System) UTCNow() time.Time        { return time.Now().UTC() }
func (s *System) Location() *time.Location { return s.loc }

// Fixed is a manually driven clock for tests.
type Fixed struct {
	mu  sync.RWMutex
	now time.Time
	loc *time.Location
}

// NewFixed returns a clock frozen at t, reporting local time in loc.
func NewFixed(t time.Time, loc *time.Location) *Fixed {
	if loc == nil {
		loc = time.UTC
	}
	return &Fixed{now: t, loc: loc}
}

func (f *Fixed) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now.In(f.loc)
}

func (f *Fixed) UTCNow() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now.UTC()
}

func (f *Fixed) Location() *time.Location { return f.loc }

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Add advances the clock by d.
func (f *Fixed) Add(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

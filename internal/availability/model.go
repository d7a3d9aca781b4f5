package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type VerificationStatus string

const (
	VerificationPending   VerificationStatus = "pending"
	VerificationVerified  VerificationStatus = "verified"
	VerificationSuspended VerificationStatus = "suspended"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrInvalidWindow    = errors.New("invalid availability window")
	ErrNoAvailability   = errors.New("no availability in the requested range")
)

// Provider owns one calendar. SlotDuration and BufferMinutes may change over
// time; existing appointments keep the duration they were booked with.
type Provider struct {
	ID                   uuid.UUID
	DisplayName          string
	SlotDuration         int // minutes
	BufferMinutes        int // gap between consecutive generated slots
	MaxDailyAppointments int // advisory, 0 means no cap
	Verification         VerificationStatus
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (p *Provider) Bookable() bool {
	return p.Verification == VerificationVerified
}

// TimeOfDay is a wall-clock time expressed as minutes since local midnight.
// 24:00 (1440) is allowed as a window end.
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

func Clock(h, m int) TimeOfDay {
	return TimeOfDay(h*60 + m)
}

// ParseTimeOfDay accepts "HH:MM" (and "HH.MM").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("time of day %q: expected HH:MM", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q: out of range", s)
	}
	return Clock(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// On returns the wall-clock instant of t on the calendar day of date, in loc.
// EndOfDay maps to the following midnight.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, mo, dd := date.In(loc).Date()
	if t >= EndOfDay {
		return time.Date(y, mo, dd+1, 0, 0, 0, 0, loc)
	}
	return time.Date(y, mo, dd, t.Hour(), t.Minute(), 0, 0, loc)
}

// Window is a recurring weekly open interval [Start, End) on DayOfWeek.
type Window struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	DayOfWeek  time.Weekday // 0 = Sunday
	Start      TimeOfDay
	End        TimeOfDay
	Location   string
	IsActive   bool
}

func (w Window) Validate() error {
	if w.DayOfWeek < time.Sunday || w.DayOfWeek > time.Saturday {
		return fmt.Errorf("%w: day_of_week %d out of range", ErrInvalidWindow, w.DayOfWeek)
	}
	if w.Start < 0 || w.End > EndOfDay {
		return fmt.Errorf("%w: %s-%s outside the day", ErrInvalidWindow, w.Start, w.End)
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// BlockedDate closes a provider's calendar for one whole day.
type BlockedDate struct {
	ProviderID uuid.UUID
	Date       time.Time // midnight of the blocked day
	Reason     string
}

// Interval is a half-open [Start, End) span of absolute time.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && iv.End.After(o.Start)
}

// DateOf truncates t to midnight of its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	y, m, dd := d.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, loc)
}

// DayBounds returns [midnight, next midnight) of the calendar day of date in loc.
func DayBounds(date time.Time, loc *time.Location) Interval {
	start := DateOf(date, loc)
	return Interval{Start: start, End: start.AddDate(0, 0, 1)}
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

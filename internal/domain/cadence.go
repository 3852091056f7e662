package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type CadenceUnit string

const (
	UnitHour  CadenceUnit = "hour"
	UnitDay   CadenceUnit = "day"
	UnitWeek  CadenceUnit = "week"
	UnitMonth CadenceUnit = "month"
)

// Cadence describes how a recurring follow-up repeats: every N units,
// optionally only on some weekdays and optionally until an end date.
type Cadence struct {
	Every    int            `json:"every" validate:"min=1"`
	Unit     CadenceUnit    `json:"unit" validate:"oneof=hour day week month"`
	Weekdays []time.Weekday `json:"weekdays,omitempty" validate:"dive,min=0,max=6"`
	EndsAt   *time.Time     `json:"endsAt,omitempty"`
}

func (c Cadence) Validate() error {
	if c.Every < 1 {
		return fmt.Errorf("%w: every must be at least 1", ErrInvalidCadence)
	}

	switch c.Unit {
	case UnitHour, UnitDay, UnitWeek, UnitMonth:
	default:
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidCadence, c.Unit)
	}

	for _, d := range c.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidCadence, d)
		}
	}

	return nil
}

// NextOccurrence returns the first occurrence strictly after lastRun.
// ok is false when the cadence has ended (or is invalid), which leaves the
// row without a due time.
func NextOccurrence(c Cadence, lastRun time.Time) (next time.Time, ok bool) {
	if c.Validate() != nil {
		return time.Time{}, false
	}

	switch c.Unit {
	case UnitHour:
		next = lastRun.Add(time.Duration(c.Every) * time.Hour)
	case UnitDay:
		next = lastRun.AddDate(0, 0, c.Every)
	case UnitWeek:
		next = lastRun.AddDate(0, 0, 7*c.Every)
	case UnitMonth:
		next = addMonthsClamped(lastRun, c.Every)
	}

	if len(c.Weekdays) > 0 {
		allowed := make(map[time.Weekday]bool, len(c.Weekdays))
		for _, d := range c.Weekdays {
			allowed[d] = true
		}
		for i := 0; i < 7 && !allowed[next.Weekday()]; i++ {
			next = next.AddDate(0, 0, 1)
		}
	}

	if c.EndsAt != nil && next.After(*c.EndsAt) {
		return time.Time{}, false
	}

	return next, true
}

// addMonthsClamped keeps the day of month when possible and otherwise lands
// on the last day of the target month (Jan 31 + 1 month = Feb 28/29).
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return firstOfTarget.AddDate(0, 0, day-1)
}

// Value stores the cadence in a JSON column.
func (c Cadence) Value() (driver.Value, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cadence: %w", err)
	}
	return string(data), nil
}

func (c *Cadence) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported cadence column type %T", src)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to unmarshal cadence: %w", err)
	}
	return nil
}

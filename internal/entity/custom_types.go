package entity

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Date is a calendar date in UTC without a time of day.
type Date struct {
	time.Time
}

const DateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, s)
	}
	return Date{t}, nil
}

func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of nights between d and other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("%w: malformed date", ErrValidation)
	}
	parsed, err := ParseDate(string(b[1 : len(b)-1])) // Remove quotes
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d Date) Value() (driver.Value, error) {
	return d.Time, nil
}

func (d *Date) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		*d = DateOf(v)
	case []byte:
		parsed, err := ParseDate(string(v[:min(len(v), len(DateLayout))]))
		if err != nil {
			return err
		}
		*d = parsed
	case string:
		parsed, err := ParseDate(v[:min(len(v), len(DateLayout))])
		if err != nil {
			return err
		}
		*d = parsed
	default:
		return fmt.Errorf("cannot scan type %T into Date", value)
	}
	return nil
}

// Stay is a half-open range of nights [CheckIn, CheckOut).
type Stay struct {
	CheckIn  Date
	CheckOut Date
}

func (s Stay) Validate() error {
	if s.CheckIn.IsZero() || s.CheckOut.IsZero() {
		return fmt.Errorf("%w: check-in and check-out are required", ErrInvalidDateRange)
	}
	if !s.CheckOut.After(s.CheckIn) {
		return fmt.Errorf("%w: check-out %s must be after check-in %s", ErrInvalidDateRange, s.CheckOut, s.CheckIn)
	}
	return nil
}

func (s Stay) Nights() int {
	return s.CheckIn.DaysUntil(s.CheckOut)
}

// Dates lists every night of the stay in order.
func (s Stay) Dates() []Date {
	n := s.Nights()
	if n <= 0 {
		return nil
	}
	dates := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, s.CheckIn.AddDays(i))
	}
	return dates
}

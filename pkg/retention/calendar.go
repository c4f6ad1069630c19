package retention

import (
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday resolves an English weekday name, ignoring case and
// surrounding whitespace.
func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, invalid("week_begins", name, "not a weekday name")
	}
	return wd, nil
}

// Calendar holds the boundaries that start a week and a month. It carries the
// first day of the week explicitly; nothing here touches process-wide state.
type Calendar struct {
	weekBegins  time.Weekday
	monthBegins int
}

// NewCalendar validates and canonicalises the configured boundaries.
// monthBegins may be 1 through 31; days past the end of a short month are
// clamped to that month's last day when evaluated.
func NewCalendar(weekBegins string, monthBegins int) (Calendar, error) {
	wd, err := ParseWeekday(weekBegins)
	if err != nil {
		return Calendar{}, err
	}
	if monthBegins <= 0 {
		return Calendar{}, invalid("month_begins", monthBegins, "must be at least 1")
	}
	if monthBegins > 31 {
		return Calendar{}, invalid("month_begins", monthBegins, "must be at most 31")
	}
	return Calendar{weekBegins: wd, monthBegins: monthBegins}, nil
}

func (c Calendar) WeekBegins() time.Weekday { return c.weekBegins }

// MonthBegins returns the configured, unclamped day of month.
func (c Calendar) MonthBegins() int { return c.monthBegins }

// EffectiveMonthDay returns the day that starts the given month: the
// configured day, or the month's last day if the month is shorter.
func (c Calendar) EffectiveMonthDay(year int, month time.Month) int {
	if last := DaysIn(year, month); c.monthBegins > last {
		return last
	}
	return c.monthBegins
}

func (c Calendar) IsWeekBoundary(today Date) bool {
	return today.Weekday() == c.weekBegins
}

func (c Calendar) IsMonthBoundary(today Date) bool {
	return today.Day == c.EffectiveMonthDay(today.Year, today.Month)
}

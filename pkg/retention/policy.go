package retention

import (
	"fmt"
	"strings"
)

// Mode selects how retention counts and prune triggers are chosen.
type Mode int

const (
	// ModeBasic keeps BasicCounts and prunes only on calendar boundaries.
	ModeBasic Mode = iota
	// ModeCustom keeps caller-supplied counts and prunes on every evaluation.
	ModeCustom
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return ModeBasic, nil
	case "custom":
		return ModeCustom, nil
	default:
		return 0, invalid("mode", s, `must be "basic" or "custom"`)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeBasic:
		return "basic"
	case ModeCustom:
		return "custom"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Tier is one retention category.
type Tier int

const (
	Daily Tier = iota
	Weekly
	Monthly
)

// Tiers returns every tier, finest granularity first.
func Tiers() []Tier {
	return []Tier{Daily, Weekly, Monthly}
}

func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

func (t Tier) Valid() bool {
	return t >= Daily && t <= Monthly
}

func (t Tier) String() string {
	switch t {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Counts is the number of periods kept per tier: days for Daily, weeks for
// Weekly and months for Monthly.
type Counts struct {
	Daily   int `json:"daily"`
	Weekly  int `json:"weekly"`
	Monthly int `json:"monthly"`
}

// BasicCounts is the fixed rotation used in ModeBasic.
var BasicCounts = Counts{Daily: 7, Weekly: 4, Monthly: 3}

func (c Counts) For(tier Tier) (int, error) {
	switch tier {
	case Daily:
		return c.Daily, nil
	case Weekly:
		return c.Weekly, nil
	case Monthly:
		return c.Monthly, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
}

// Options is the raw input to NewPolicy.
type Options struct {
	Mode        Mode
	Counts      Counts // ignored in ModeBasic
	WeekBegins  string
	MonthBegins int
}

// Policy is a validated, immutable retention configuration.
type Policy struct {
	mode     Mode
	counts   Counts
	calendar Calendar
}

// NewPolicy validates opts. Invalid weekday names, month days and, in
// ModeCustom, non-positive counts fail with ErrInvalidConfiguration.
func NewPolicy(opts Options) (*Policy, error) {
	cal, err := NewCalendar(opts.WeekBegins, opts.MonthBegins)
	if err != nil {
		return nil, err
	}

	var counts Counts
	switch opts.Mode {
	case ModeBasic:
		counts = BasicCounts
	case ModeCustom:
		counts = opts.Counts
		for _, tier := range Tiers() {
			n, _ := counts.For(tier)
			if n <= 0 {
				return nil, invalid("retention."+tier.String(), n, "must be a positive count")
			}
		}
	default:
		return nil, invalid("mode", opts.Mode, "unknown mode")
	}

	return &Policy{mode: opts.Mode, counts: counts, calendar: cal}, nil
}

func (p *Policy) Mode() Mode { return p.mode }
func (p *Policy) Counts() Counts { return p.counts }
func (p *Policy) Calendar() Calendar { return p.calendar }

// AgeThreshold returns the cutoff for tier evaluated on today. Snapshots
// created strictly before the cutoff are expired.
func (p *Policy) AgeThreshold(tier Tier, today Date) (Date, error) {
	n, err := p.counts.For(tier)
	if err != nil {
		return Date{}, err
	}
	switch tier {
	case Daily:
		return today.AddDays(-n), nil
	case Weekly:
		return today.AddDays(-7 * n), nil
	default:
		return today.AddMonths(-n), nil
	}
}

// ShouldPrune reports whether today triggers the pruning pass for tier.
// In ModeBasic the daily and weekly tiers are pruned at the start of a week
// and the monthly tier at the start of a month. ModeCustom prunes every tier
// on every call.
func (p *Policy) ShouldPrune(tier Tier, today Date) (bool, error) {
	if !tier.Valid() {
		return false, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	if p.mode == ModeCustom {
		return true, nil
	}
	if tier == Monthly {
		return p.calendar.IsMonthBoundary(today), nil
	}
	return p.calendar.IsWeekBoundary(today), nil
}

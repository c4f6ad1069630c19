package retention

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basicPolicy(t *testing.T, weekBegins string, monthBegins int) *Policy {
	t.Helper()
	p, err := NewPolicy(Options{Mode: ModeBasic, WeekBegins: weekBegins, MonthBegins: monthBegins})
	require.NoError(t, err)
	return p
}

func TestNewPolicyBasicIgnoresCounts(t *testing.T) {
	p, err := NewPolicy(Options{
		Mode:        ModeBasic,
		Counts:      Counts{Daily: 30, Weekly: 0, Monthly: -1},
		WeekBegins:  "monday",
		MonthBegins: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, BasicCounts, p.Counts())
	assert.Equal(t, ModeBasic, p.Mode())
}

func TestNewPolicyCustomRequiresPositiveCounts(t *testing.T) {
	tests := []struct {
		name   string
		counts Counts
		field  string
	}{
		{"zero daily", Counts{Daily: 0, Weekly: 4, Monthly: 3}, "retention.daily"},
		{"negative weekly", Counts{Daily: 7, Weekly: -2, Monthly: 3}, "retention.weekly"},
		{"zero monthly", Counts{Daily: 7, Weekly: 4, Monthly: 0}, "retention.monthly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(Options{Mode: ModeCustom, Counts: tt.counts, WeekBegins: "monday", MonthBegins: 1})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	p, err := NewPolicy(Options{Mode: ModeCustom, Counts: Counts{Daily: 14, Weekly: 8, Monthly: 12}, WeekBegins: "sunday", MonthBegins: 15})
	require.NoError(t, err)
	assert.Equal(t, Counts{Daily: 14, Weekly: 8, Monthly: 12}, p.Counts())
}

func TestNewPolicyRejectsBadCalendar(t *testing.T) {
	_, err := NewPolicy(Options{Mode: ModeBasic, WeekBegins: "someday", MonthBegins: 1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "someday")

	_, err = NewPolicy(Options{Mode: ModeBasic, WeekBegins: "monday", MonthBegins: 0})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewPolicy(Options{Mode: Mode(9), WeekBegins: "monday", MonthBegins: 1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestAgeThreshold(t *testing.T) {
	p := basicPolicy(t, "monday", 1)
	today := date(t, "2024-03-10")

	daily, err := p.AgeThreshold(Daily, today)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-03", daily.String())

	weekly, err := p.AgeThreshold(Weekly, today)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-11", weekly.String())

	monthly, err := p.AgeThreshold(Monthly, date(t, "2024-03-31"))
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31", monthly.String())

	monthly, err = p.AgeThreshold(Monthly, date(t, "2024-05-31"))
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", monthly.String())

	_, err = p.AgeThreshold(Tier(7), today)
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestAgeThresholdCustomCounts(t *testing.T) {
	p, err := NewPolicy(Options{Mode: ModeCustom, Counts: Counts{Daily: 1, Weekly: 2, Monthly: 14}, WeekBegins: "monday", MonthBegins: 1})
	require.NoError(t, err)
	today := date(t, "2024-03-01")

	got, err := p.AgeThreshold(Daily, today)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", got.String())

	got, err = p.AgeThreshold(Weekly, today)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-16", got.String())

	got, err = p.AgeThreshold(Monthly, today)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01", got.String())
}

func TestShouldPruneBasicWeekBoundary(t *testing.T) {
	p := basicPolicy(t, "monday", 1)

	for _, tier := range []Tier{Daily, Weekly} {
		ok, err := p.ShouldPrune(tier, date(t, "2024-03-13"))
		require.NoError(t, err)
		assert.False(t, ok, "%s on a wednesday", tier)

		ok, err = p.ShouldPrune(tier, date(t, "2024-03-11"))
		require.NoError(t, err)
		assert.True(t, ok, "%s on a monday", tier)
	}
}

func TestShouldPruneBasicMonthBoundary(t *testing.T) {
	p := basicPolicy(t, "monday", 1)

	for _, today := range []string{"2024-01-01", "2024-02-01", "2024-06-01", "2025-12-01"} {
		ok, err := p.ShouldPrune(Monthly, date(t, today))
		require.NoError(t, err)
		assert.True(t, ok, today)
	}
	for _, today := range []string{"2024-01-02", "2024-02-29", "2024-04-08"} {
		ok, err := p.ShouldPrune(Monthly, date(t, today))
		require.NoError(t, err)
		assert.False(t, ok, today)
	}
}

func TestShouldPruneCustomAlwaysTriggers(t *testing.T) {
	p, err := NewPolicy(Options{Mode: ModeCustom, Counts: BasicCounts, WeekBegins: "monday", MonthBegins: 1})
	require.NoError(t, err)

	start := date(t, "2024-03-01")
	for i := 0; i < 40; i++ {
		for _, tier := range Tiers() {
			ok, err := p.ShouldPrune(tier, start.AddDays(i))
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}

	_, err = p.ShouldPrune(Tier(-1), start)
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestParseModeAndTier(t *testing.T) {
	m, err := ParseMode(" Custom ")
	require.NoError(t, err)
	assert.Equal(t, ModeCustom, m)

	_, err = ParseMode("gfs")
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	for _, tier := range Tiers() {
		parsed, err := ParseTier(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, parsed)
	}
	_, err = ParseTier("hourly")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

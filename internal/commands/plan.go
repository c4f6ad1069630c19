package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bit2swaz/sfg-rotate/internal/config"
	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

func newPlanCommand(root *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which tiers prune on a date and their cutoffs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			today, err := resolveDate(cfg, date, time.Now())
			if err != nil {
				return err
			}
			policy, err := cfg.Policy()
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), policy.Evaluate(today))
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "evaluate as of YYYY-MM-DD instead of today")
	return cmd
}

// resolveDate parses flag, or returns the date of now in the configured
// time zone when flag is empty.
func resolveDate(cfg *config.Config, flag string, now time.Time) (retention.Date, error) {
	if strings.TrimSpace(flag) != "" {
		d, err := retention.ParseDate(strings.TrimSpace(flag))
		if err != nil {
			return retention.Date{}, fmt.Errorf("--date: %w", err)
		}
		return d, nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return retention.Date{}, err
	}
	return retention.DateOf(now.In(loc)), nil
}

func printPlan(out io.Writer, eval retention.Evaluation) error {
	policy := eval.Policy()
	cal := policy.Calendar()
	today := eval.Today()

	logInfo(out, fmt.Sprintf("%s mode, %s (%s), week begins %s, month begins on day %d",
		policy.Mode(), today, today.Weekday(), cal.WeekBegins(), cal.MonthBegins()))

	// tabwriter counts escape bytes as width, so the table stays uncoloured
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tPRUNE\tKEEP\tEXPIRES BEFORE")
	for _, d := range eval.Decisions() {
		due := "no"
		if d.Triggered {
			due = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.Tier, due, d.Count, d.Threshold)
	}
	return tw.Flush()
}

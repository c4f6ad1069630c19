package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bit2swaz/sfg-rotate/internal/config"
	"github.com/bit2swaz/sfg-rotate/internal/engine"
	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

type pruneOptions struct {
	date   string
	dryRun bool
	yes    bool
	tiers  []string
}

// stdinIsTerminal is swapped out in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func newPruneCommand(root *rootOptions) *cobra.Command {
	opts := &pruneOptions{}
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots that fall outside the retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.date, "date", "", "evaluate as of YYYY-MM-DD instead of today")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "list what would be deleted without deleting")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "delete without asking for confirmation")
	cmd.Flags().StringSliceVar(&opts.tiers, "tier", nil, "only prune these tiers (daily, weekly, monthly)")
	return cmd
}

func runPrune(cmd *cobra.Command, root *rootOptions, opts *pruneOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	cfg, err := config.Load(root.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	today, err := resolveDate(cfg, opts.date, time.Now())
	if err != nil {
		return err
	}

	runner, err := engine.FromConfig(ctx, cfg, engine.Options{Logger: slog.Default()})
	if err != nil {
		return err
	}
	if runner, err = filterTiers(runner, opts.tiers); err != nil {
		return err
	}

	preview, previewErr := runner.WithDryRun(true).Run(ctx, today)
	printReport(out, preview)

	if opts.dryRun {
		logInfo(out, fmt.Sprintf("dry run: %d snapshot(s) would be deleted", preview.Expired()))
		return finish(ctx, cmd, cfg, preview, previewErr)
	}
	if previewErr != nil {
		logFailure(errOut, "LISTING FAILED.", previewErr)
	}
	if preview.Expired() == 0 {
		logInfo(out, "nothing to delete")
		return finish(ctx, cmd, cfg, preview, previewErr)
	}

	if !opts.yes {
		if !stdinIsTerminal() {
			return errors.New("refusing to delete without --yes when stdin is not a terminal")
		}
		ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete %d expired snapshot(s)?", preview.Expired()))
		if err != nil {
			return err
		}
		if !ok {
			logInfo(out, "aborted")
			return nil
		}
	}

	report, runErr := runner.Apply(ctx, preview)
	logInfo(out, fmt.Sprintf("deleted %d snapshot(s) in %s",
		report.Deleted(), humanDuration(report.FinishedAt.Sub(report.StartedAt))))
	return finish(ctx, cmd, cfg, report, runErr)
}

// finish runs the post-prune hook and maps the run outcome to an exit code.
// A run with failures exits 2 even when the hook succeeds.
func finish(ctx context.Context, cmd *cobra.Command, cfg *config.Config, report *engine.Report, runErr error) error {
	hookErr := runHook(ctx, cfg, report, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if runErr != nil {
		logFailure(cmd.ErrOrStderr(), "PRUNE INCOMPLETE.", runErr)
		return newExitError(exitPartialFailure, runErr)
	}
	return hookErr
}

// filterTiers narrows runner to the named tiers. No names keeps every target.
func filterTiers(runner *engine.Runner, names []string) (*engine.Runner, error) {
	if len(names) == 0 {
		return runner, nil
	}
	want := make(map[retention.Tier]bool, len(names))
	for _, name := range names {
		tier, err := retention.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("--tier: %w", err)
		}
		want[tier] = true
	}

	var targets []engine.Target
	for _, target := range runner.Targets() {
		if want[target.Tier] {
			targets = append(targets, target)
		}
	}
	return runner.WithTargets(targets), nil
}

func printReport(out io.Writer, report *engine.Report) {
	for _, tr := range report.Targets {
		header := fmt.Sprintf("%s %s:%s", tr.Tier, tr.Kind, tr.Location)
		switch {
		case tr.Error != "":
			fmt.Fprintf(out, "%s %s %s\n", prefix(), errorStyle.Sprint("ERROR"), infoStyle.Sprintf("%s: %s", header, tr.Error))
			continue
		case !tr.Triggered:
			fmt.Fprintf(out, "%s %s\n", prefix(), subtleStyle.Sprintf("%s: not due", header))
			continue
		}

		fmt.Fprintf(out, "%s %s %s\n", prefix(), infoStyle.Sprint(header),
			subtleStyle.Sprintf("(expires before %s, keeping %d)", tr.Threshold, len(tr.Retained)))
		for _, snap := range tr.Expired {
			fmt.Fprintf(out, "    %s %s %s\n", expireStyle.Sprint("-"), snap.ID,
				subtleStyle.Sprintf("%s %s", snap.Created, humanBytes(snap.Size)))
		}
	}
}

func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s %s [y/N] ", prefix(), keepStyle.Sprint(question))
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func runHook(ctx context.Context, cfg *config.Config, report *engine.Report, out, errOut io.Writer) error {
	command := strings.TrimSpace(cfg.Hooks.PostPrune)
	if command == "" {
		return nil
	}
	code, err := engine.RunHook(ctx, command, report, out, errOut)
	if err != nil {
		logWarning(errOut, fmt.Sprintf("post-prune hook failed (exit code %d): %v", code, err))
		if code <= 0 {
			code = 1
		}
		return newExitError(code, err)
	}
	return nil
}

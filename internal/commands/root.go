package commands

import (
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bit2swaz/sfg-rotate/internal/config"
)

type rootOptions struct {
	configPath string
	noColor    bool
	verbose    bool
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sfg",
		Short:         "Son-father-grandfather backup rotation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to sfg.yml")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every decision to stderr")

	root.AddCommand(newInitCommand(opts))
	root.AddCommand(newPlanCommand(opts))
	root.AddCommand(newPruneCommand(opts))

	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}

package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sfgrotate "github.com/bit2swaz/sfg-rotate"
	"github.com/bit2swaz/sfg-rotate/internal/config"
)

type initOptions struct {
	example     bool
	force       bool
	root        string
	mode        string
	weekBegins  string
	monthBegins int
}

func newInitCommand(root *rootOptions) *cobra.Command {
	opts := &initOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate an sfg.yml configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, root.configPath, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.example, "example", false, "write the fully commented example instead")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite an existing file")
	cmd.Flags().StringVar(&opts.root, "root", "/var/backups", "directory holding the daily, weekly and monthly folders")
	cmd.Flags().StringVar(&opts.mode, "mode", "basic", "retention mode: basic or custom")
	cmd.Flags().StringVar(&opts.weekBegins, "week-begins", "monday", "first day of the week")
	cmd.Flags().IntVar(&opts.monthBegins, "month-begins", 1, "day of the month a month begins")
	return cmd
}

func runInit(cmd *cobra.Command, targetPath string, opts *initOptions) error {
	if targetPath == "" {
		targetPath = config.DefaultPath
	}
	if _, err := os.Stat(targetPath); err == nil && !opts.force {
		return fmt.Errorf("%s already exists", targetPath)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", targetPath, err)
	}

	if opts.example {
		if err := os.WriteFile(targetPath, sfgrotate.ConfigTemplate(), 0o644); err != nil {
			return err
		}
		cmd.Printf("Generated %s\n", filepath.Base(targetPath))
		return nil
	}

	cfg := config.Default()
	cfg.Mode = opts.mode
	cfg.WeekBegins = opts.weekBegins
	cfg.MonthBegins = opts.monthBegins
	cfg.Tiers.Daily.Local = filepath.Join(opts.root, "daily")
	cfg.Tiers.Weekly.Local = filepath.Join(opts.root, "weekly")
	cfg.Tiers.Monthly.Local = filepath.Join(opts.root, "monthly")
	if err := cfg.Validate(); err != nil {
		return err
	}
	return writeYaml(cmd, targetPath, cfg)
}

func writeYaml(cmd *cobra.Command, path string, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	cmd.Printf("Generated %s\n", filepath.Base(path))
	return nil
}

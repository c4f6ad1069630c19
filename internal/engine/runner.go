package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lucsky/cuid"

	"github.com/bit2swaz/sfg-rotate/pkg/observability"
	"github.com/bit2swaz/sfg-rotate/pkg/retention"
	"github.com/bit2swaz/sfg-rotate/pkg/storage"
)

// Target is one place a tier's snapshots live.
type Target struct {
	Tier     retention.Tier
	Location string
	Kind     string // driver name in logs and reports: "local" or "s3"
	Driver   storage.Driver
}

// TargetReport records what a run decided and did for one target.
type TargetReport struct {
	Tier      retention.Tier       `json:"tier"`
	Kind      string               `json:"kind"`
	Location  string               `json:"location"`
	Triggered bool                 `json:"triggered"`
	Threshold retention.Date       `json:"threshold"`
	Retained  []retention.Snapshot `json:"retained"`
	Expired   []retention.Snapshot `json:"expired"`
	Deleted   []retention.Snapshot `json:"deleted"`
	Failed    []FailedDelete       `json:"failed,omitempty"`
	Error     string               `json:"error,omitempty"`
}

type FailedDelete struct {
	Snapshot retention.Snapshot `json:"snapshot"`
	Error    string             `json:"error"`
}

// Report summarises a run across all targets.
type Report struct {
	ID         string         `json:"id"`
	Today      retention.Date `json:"today"`
	DryRun     bool           `json:"dry_run"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Targets    []TargetReport `json:"targets"`
}

func (r *Report) Expired() int {
	n := 0
	for _, t := range r.Targets {
		n += len(t.Expired)
	}
	return n
}

func (r *Report) Deleted() int {
	n := 0
	for _, t := range r.Targets {
		n += len(t.Deleted)
	}
	return n
}

func (r *Report) Failed() int {
	n := 0
	for _, t := range r.Targets {
		n += len(t.Failed)
		if t.Error != "" {
			n++
		}
	}
	return n
}

// Options tune a Runner. The zero value deletes for real, logs through
// slog.Default and records no metrics.
type Options struct {
	DryRun  bool
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Runner executes the deletions a retention policy decides on.
type Runner struct {
	policy  *retention.Policy
	targets []Target
	dryRun  bool
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewRunner(policy *retention.Policy, targets []Target, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		policy:  policy,
		targets: targets,
		dryRun:  opts.DryRun,
		logger:  logger.With("component", "engine.runner"),
		metrics: opts.Metrics,
	}
}

func (r *Runner) Policy() *retention.Policy { return r.policy }
func (r *Runner) Targets() []Target { return r.targets }

// WithDryRun returns a copy of r that classifies without deleting.
func (r *Runner) WithDryRun(dryRun bool) *Runner {
	clone := *r
	clone.dryRun = dryRun
	return &clone
}

// WithTargets returns a copy of r operating on targets.
func (r *Runner) WithTargets(targets []Target) *Runner {
	clone := *r
	clone.targets = targets
	return &clone
}

// Run evaluates every target against today. A listing or deletion failure
// on one target does not stop the others; all failures are joined into the
// returned error, and the report is always returned.
func (r *Runner) Run(ctx context.Context, today retention.Date) (*Report, error) {
	eval := r.policy.Evaluate(today)
	report, logger := r.start(eval.Today(), r.dryRun)
	logger.Info("prune run started", "targets", len(r.targets), "mode", r.policy.Mode().String())

	var errs []error
	for _, target := range r.targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		tr, err := r.runTarget(ctx, eval, target, logger)
		report.Targets = append(report.Targets, tr)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return r.finish(report, logger, errs)
}

// Apply deletes exactly the snapshots preview lists as expired, without
// listing again. preview is normally the report of a dry run; snapshots that
// appeared since are left alone. Targets that failed or were not due in
// preview are carried over untouched.
func (r *Runner) Apply(ctx context.Context, preview *Report) (*Report, error) {
	report, logger := r.start(preview.Today, false)
	logger.Info("applying preview", "preview_id", preview.ID, "expired", preview.Expired())

	var errs []error
	for _, planned := range preview.Targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		tr := planned
		tr.Deleted = nil
		tr.Failed = nil

		target, ok := r.target(planned.Tier, planned.Kind, planned.Location)
		if !ok {
			tr.Error = "target is not configured"
			errs = append(errs, fmt.Errorf("apply %s %s:%s: target is not configured", planned.Tier, planned.Kind, planned.Location))
			report.Targets = append(report.Targets, tr)
			continue
		}
		if planned.Error != "" {
			r.count(target.Tier, "failed")
			errs = append(errs, fmt.Errorf("%s %s: %s", target.Tier, target.Location, planned.Error))
			report.Targets = append(report.Targets, tr)
			continue
		}
		if !planned.Triggered {
			r.count(target.Tier, "skipped")
			report.Targets = append(report.Targets, tr)
			continue
		}

		tlog := logger.With("tier", target.Tier.String(), "kind", target.Kind, "location", target.Location)
		if err := r.deleteExpired(ctx, target, &tr, tlog); err != nil {
			errs = append(errs, err)
		}
		report.Targets = append(report.Targets, tr)
	}

	return r.finish(report, logger, errs)
}

func (r *Runner) start(today retention.Date, dryRun bool) (*Report, *slog.Logger) {
	report := &Report{
		ID:        cuid.New(),
		Today:     today,
		DryRun:    dryRun,
		StartedAt: time.Now(),
	}
	logger := r.logger.With("run_id", report.ID, "today", report.Today.String(), "dry_run", dryRun)
	return report, logger
}

func (r *Runner) finish(report *Report, logger *slog.Logger, errs []error) (*Report, error) {
	report.FinishedAt = time.Now()
	if r.metrics != nil {
		r.metrics.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}

	logger.Info("prune run finished",
		"expired", report.Expired(),
		"deleted", report.Deleted(),
		"failed", report.Failed(),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, errors.Join(errs...)
}

func (r *Runner) target(tier retention.Tier, kind, location string) (Target, bool) {
	for _, t := range r.targets {
		if t.Tier == tier && t.Kind == kind && t.Location == location {
			return t, true
		}
	}
	return Target{}, false
}

func (r *Runner) runTarget(ctx context.Context, eval retention.Evaluation, target Target, logger *slog.Logger) (TargetReport, error) {
	logger = logger.With("tier", target.Tier.String(), "kind", target.Kind, "location", target.Location)
	tr := TargetReport{Tier: target.Tier, Kind: target.Kind, Location: target.Location}

	// decide before listing so tiers that are not due cost no I/O
	decision, err := eval.Decide(target.Tier)
	if err != nil {
		tr.Error = err.Error()
		r.count(target.Tier, "failed")
		return tr, fmt.Errorf("decide %s: %w", target.Tier, err)
	}
	tr.Triggered = decision.Triggered
	tr.Threshold = decision.Threshold

	if !decision.Triggered {
		logger.Debug("not a trigger date, skipping")
		r.count(target.Tier, "skipped")
		return tr, nil
	}

	snapshots, err := target.Driver.List(ctx, target.Location)
	if err != nil {
		tr.Error = err.Error()
		r.count(target.Tier, "failed")
		logger.Error("list snapshots failed", "error", err)
		return tr, fmt.Errorf("list %s %s: %w", target.Tier, target.Location, err)
	}

	_, result, err := eval.Classify(target.Tier, snapshots)
	if err != nil {
		tr.Error = err.Error()
		r.count(target.Tier, "failed")
		return tr, fmt.Errorf("classify %s: %w", target.Tier, err)
	}
	tr.Retained = result.Retain
	tr.Expired = result.Expire
	tr.Deleted = []retention.Snapshot{}

	logger.Info("classified snapshots",
		"threshold", decision.Threshold.String(),
		"retained", len(result.Retain),
		"expired", len(result.Expire),
	)
	if r.metrics != nil {
		r.metrics.SnapshotsExpired.WithLabelValues(target.Tier.String()).Add(float64(len(result.Expire)))
		r.metrics.SnapshotsKept.WithLabelValues(target.Tier.String()).Set(float64(len(result.Retain)))
	}

	if r.dryRun {
		r.count(target.Tier, "pruned")
		return tr, nil
	}

	return tr, r.deleteExpired(ctx, target, &tr, logger)
}

// deleteExpired removes every snapshot in tr.Expired, recording each
// outcome in tr.
func (r *Runner) deleteExpired(ctx context.Context, target Target, tr *TargetReport, logger *slog.Logger) error {
	tr.Deleted = []retention.Snapshot{}

	var errs []error
	for _, snap := range tr.Expired {
		if err := target.Driver.Delete(ctx, snap); err != nil {
			tr.Failed = append(tr.Failed, FailedDelete{Snapshot: snap, Error: err.Error()})
			errs = append(errs, err)
			logger.Error("delete snapshot failed", "snapshot", snap.ID, "error", err)
			if r.metrics != nil {
				r.metrics.DeleteFailures.WithLabelValues(target.Tier.String()).Inc()
			}
			continue
		}
		tr.Deleted = append(tr.Deleted, snap)
		logger.Info("deleted expired snapshot", "snapshot", snap.ID, "created", snap.Created.String())
		if r.metrics != nil {
			r.metrics.SnapshotsDeleted.WithLabelValues(target.Tier.String()).Inc()
		}
	}

	if len(errs) > 0 {
		r.count(target.Tier, "failed")
		return fmt.Errorf("prune %s %s: %w", target.Tier, target.Location, errors.Join(errs...))
	}
	r.count(target.Tier, "pruned")
	return nil
}

func (r *Runner) count(tier retention.Tier, result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Runs.WithLabelValues(tier.String(), result).Inc()
}

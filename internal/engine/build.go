package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/bit2swaz/sfg-rotate/internal/config"
	"github.com/bit2swaz/sfg-rotate/pkg/retention"
	"github.com/bit2swaz/sfg-rotate/pkg/storage/local"
	s3driver "github.com/bit2swaz/sfg-rotate/pkg/storage/s3"
)

// FromConfig builds a Runner with one local target per tier, plus a
// remote target for every tier that names an S3 prefix.
func FromConfig(ctx context.Context, cfg *config.Config, opts Options) (*Runner, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	localDriver, err := local.New(
		local.WithPattern(cfg.Storage.Pattern),
		local.WithPinFile(cfg.Storage.PinFile),
		local.WithLocation(loc),
	)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}

	var remote *s3driver.S3Driver
	var targets []Target
	for _, tier := range retention.Tiers() {
		tc := cfg.Tier(tier)
		if dir := strings.TrimSpace(tc.Local); dir != "" {
			targets = append(targets, Target{Tier: tier, Location: dir, Kind: "local", Driver: localDriver})
		}

		prefix := strings.TrimSpace(tc.Remote)
		if prefix == "" {
			continue
		}
		if remote == nil {
			s3cfg := cfg.Storage.S3
			remote, err = s3driver.New(ctx, s3driver.Config{
				Bucket:          s3cfg.Bucket,
				Region:          s3cfg.Region,
				Endpoint:        s3cfg.Endpoint,
				AccessKeyID:     s3cfg.AccessKeyID,
				SecretAccessKey: s3cfg.SecretAccessKey,
				Pattern:         cfg.Storage.Pattern,
				Location:        loc,
			})
			if err != nil {
				return nil, fmt.Errorf("s3 storage: %w", err)
			}
		}
		targets = append(targets, Target{Tier: tier, Location: prefix, Kind: "s3", Driver: remote})
	}

	return NewRunner(policy, targets, opts), nil
}

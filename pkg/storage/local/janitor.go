package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

// Delete removes an expired snapshot. A snapshot that is already gone is not
// an error.
func (d *LocalDriver) Delete(ctx context.Context, snapshot retention.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkContained(snapshot); err != nil {
		return err
	}

	info, err := os.Lstat(snapshot.ID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete snapshot stat %s: %w", snapshot.ID, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("delete snapshot %s is not a regular file", snapshot.ID)
	}

	if err := os.Remove(snapshot.ID); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// checkContained refuses to remove anything outside the directory the
// snapshot was listed from.
func checkContained(snapshot retention.Snapshot) error {
	if snapshot.Location == "" {
		return nil
	}
	rel, err := filepath.Rel(filepath.Clean(snapshot.Location), filepath.Clean(snapshot.ID))
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", snapshot.ID, err)
	}
	if rel == "." || filepath.Dir(rel) != "." {
		return fmt.Errorf("delete snapshot %s is not a direct child of %s", snapshot.ID, snapshot.Location)
	}
	return nil
}

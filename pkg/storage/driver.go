package storage

import (
	"context"

	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

// Driver lists and removes snapshots in one kind of backing store. A location
// is opaque to callers: a directory for the local driver, a key prefix for
// the S3 driver.
type Driver interface {
	List(ctx context.Context, location string) ([]retention.Snapshot, error)
	Delete(ctx context.Context, snapshot retention.Snapshot) error
}

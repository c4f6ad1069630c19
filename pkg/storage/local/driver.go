package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

// DefaultPinFile is the per-directory file listing snapshots that must never
// be pruned, in .gitignore syntax.
const DefaultPinFile = ".sfgkeep"

// LocalDriver implements storage.Driver for snapshot directories on the
// local filesystem.
type LocalDriver struct {
	pattern  string
	pinFile  string
	location *time.Location
}

type Option func(*LocalDriver)

// WithPattern restricts listings to file names matching a doublestar pattern.
func WithPattern(pattern string) Option {
	return func(d *LocalDriver) { d.pattern = pattern }
}

// WithPinFile overrides DefaultPinFile. An empty name disables pinning.
func WithPinFile(name string) Option {
	return func(d *LocalDriver) { d.pinFile = name }
}

// WithLocation sets the time zone used to turn modification times into dates.
func WithLocation(loc *time.Location) Option {
	return func(d *LocalDriver) { d.location = loc }
}

// New creates a new LocalDriver.
func New(opts ...Option) (*LocalDriver, error) {
	d := &LocalDriver{pinFile: DefaultPinFile, location: time.Local}
	for _, opt := range opts {
		opt(d)
	}
	if d.pattern != "" && !doublestar.ValidatePattern(d.pattern) {
		return nil, fmt.Errorf("invalid snapshot pattern %q", d.pattern)
	}
	if d.location == nil {
		d.location = time.Local
	}
	return d, nil
}

// List returns the regular files directly inside dir, sorted by name. A
// missing directory holds no snapshots.
func (d *LocalDriver) List(ctx context.Context, dir string) ([]retention.Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots read dir %s: %w", dir, err)
	}

	pins, err := d.loadPins(dir)
	if err != nil {
		return nil, err
	}

	snapshots := make([]retention.Snapshot, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		if d.pinFile != "" && name == d.pinFile {
			continue
		}
		if d.pattern != "" {
			ok, err := doublestar.Match(d.pattern, name)
			if err != nil {
				return nil, fmt.Errorf("match snapshot pattern %q: %w", d.pattern, err)
			}
			if !ok {
				continue
			}
		}
		if pins != nil && pins.MatchesPath(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("list snapshots stat %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}

		snapshots = append(snapshots, retention.Snapshot{
			ID:       filepath.Join(dir, name),
			Location: dir,
			Created:  retention.DateOf(info.ModTime().In(d.location)),
			Size:     info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })
	return snapshots, nil
}

func (d *LocalDriver) loadPins(dir string) (*ignore.GitIgnore, error) {
	if d.pinFile == "" {
		return nil, nil
	}
	path := filepath.Join(dir, d.pinFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat pin file %s: %w", path, err)
	}
	pins, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse pin file %s: %w", path, err)
	}
	return pins, nil
}

package processors

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// PruneByAge removes rotated files last modified before now minus MaxAge.
type PruneByAge struct {
	MaxAge time.Duration
	Clock  clock.Clock // nil uses the wall clock
}

func (p *PruneByAge) Name() string {
	return "prune_age"
}

func (p *PruneByAge) Process(ctx context.Context, f *File) error {
	if p.MaxAge <= 0 {
		return nil
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	cutoff := clk.Now().Add(-p.MaxAge)

	files, err := f.Siblings()
	if err != nil {
		return err
	}
	var all error
	for _, info := range files {
		if err := ctx.Err(); err != nil {
			return multierr.Append(all, err)
		}
		if info.ModTime().Before(cutoff) {
			all = multierr.Append(all, remove(f.Dir, info.Name()))
		}
	}
	return all
}

// PruneByCount keeps the newest Keep rotated files and removes the rest.
type PruneByCount struct {
	Keep int
}

func (p *PruneByCount) Name() string {
	return "prune_count"
}

func (p *PruneByCount) Process(ctx context.Context, f *File) error {
	if p.Keep <= 0 {
		return nil
	}
	files, err := f.Siblings()
	if err != nil {
		return err
	}
	if len(files) <= p.Keep {
		return nil
	}
	var all error
	for _, info := range files[p.Keep:] {
		if err := ctx.Err(); err != nil {
			return multierr.Append(all, err)
		}
		all = multierr.Append(all, remove(f.Dir, info.Name()))
	}
	return all
}

func remove(dir, name string) error {
	err := os.Remove(filepath.Join(dir, name))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", name)
}

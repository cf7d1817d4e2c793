// Package processors holds the actions run on a file after a target stops
// writing to it: compression, pruning, notification and user callbacks.
package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// File describes a closed file handed to a chain. Processors that replace the
// file (Compress) update Path, Base and Size so later entries see the result.
type File struct {
	Path      string
	Dir       string
	Base      string
	Size      int64
	Target    string // application name of the owning target
	TargetID  string
	Active    string // path the target is writing to; never touched
	Match     func(base string) bool
	RotatedAt time.Time
	Startup   bool // the file was found on disk when the target started
}

// NewFile fills Dir and Base from path.
func NewFile(path string) File {
	return File{Path: path, Dir: filepath.Dir(path), Base: filepath.Base(path)}
}

// Siblings lists the other rotated files of the same target, active file
// excluded, newest first.
func (f *File) Siblings() ([]os.FileInfo, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", f.Dir)
	}
	active := filepath.Base(f.Active)
	var out []os.FileInfo
	for _, e := range entries {
		if e.IsDir() || e.Name() == active {
			continue
		}
		if f.Match != nil && !f.Match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed meanwhile
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime().Equal(out[j].ModTime()) {
			return out[i].ModTime().After(out[j].ModTime())
		}
		return out[i].Name() > out[j].Name()
	})
	return out, nil
}

// Processor is one post-rotation action.
type Processor interface {
	Name() string
	Process(ctx context.Context, f *File) error
}

// Entry is a chain slot.
type Entry struct {
	Processor     Processor
	RunsOnStartup bool
}

// ProcessorError records the failure of one chain entry.
type ProcessorError struct {
	Processor string
	Path      string
	Err       error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor %s on %s: %v", e.Processor, e.Path, e.Err)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives chain failures. source is the processor name.
type ErrorHandler func(source, path, msg string, err error)

// Chain runs its entries in order. A failing entry never stops the ones after it.
type Chain struct {
	entries      []Entry
	errorHandler ErrorHandler
	runHandler   func(name string, err error)
}

// NewChain returns a chain over entries.
func NewChain(entries ...Entry) *Chain {
	return &Chain{entries: entries}
}

// SetErrorHandler sets the function told about each failing entry.
func (c *Chain) SetErrorHandler(h ErrorHandler) {
	c.errorHandler = h
}

// SetRunHandler sets a function called after every entry run, for metrics.
func (c *Chain) SetRunHandler(h func(name string, err error)) {
	c.runHandler = h
}

// Add appends an entry.
func (c *Chain) Add(e Entry) {
	c.entries = append(c.entries, e)
}

// Len returns the number of entries.
func (c *Chain) Len() int {
	return len(c.entries)
}

// HasStartup reports whether any entry runs on startup.
func (c *Chain) HasStartup() bool {
	for _, e := range c.entries {
		if e.RunsOnStartup {
			return true
		}
	}
	return false
}

// Run executes the chain on f. With f.Startup set only entries flagged
// RunsOnStartup are run. The returned error combines every entry failure.
func (c *Chain) Run(ctx context.Context, f File) error {
	var all error
	for _, e := range c.entries {
		if f.Startup && !e.RunsOnStartup {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(all, err)
		}
		name := e.Processor.Name()
		err := safeProcess(ctx, e.Processor, &f)
		if c.runHandler != nil {
			c.runHandler(name, err)
		}
		if err == nil {
			continue
		}
		perr := &ProcessorError{Processor: name, Path: f.Path, Err: err}
		if c.errorHandler != nil {
			c.errorHandler(name, f.Path, "processor failed", perr)
		}
		all = multierr.Append(all, perr)
	}
	return all
}

func safeProcess(ctx context.Context, p Processor, f *File) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return p.Process(ctx, f)
}

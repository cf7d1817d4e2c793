package backends

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DefaultBufferSize for file operations
const DefaultBufferSize = 32 * 1024

// Writer is the active-file sink of a target. Implementations are used from a
// single goroutine.
type Writer interface {
	io.Writer
	Flush() error
	Close() error
	// Reopen closes and reopens the same path in append mode. Bytes that
	// were buffered but never reached the old handle are written again.
	Reopen() error
	Size() int64
	Path() string
}

// Opener creates the Writer for a path.
type Opener func(path string) (Writer, error)

// OpenFile is the default Opener.
func OpenFile(path string) (Writer, error) {
	return NewFileBackend(path, DefaultBufferSize)
}

// FileBackend appends to a file through a buffered writer.
type FileBackend struct {
	file    *os.File
	writer  *bufio.Writer
	path    string
	size    int64
	bufSize int
	// pending is the tail of the stream still held by writer
	pending []byte
}

// NewFileBackend opens path for appending, creating missing directories.
func NewFileBackend(path string, bufSize int) (*FileBackend, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	fb := &FileBackend{path: filepath.Clean(path), bufSize: bufSize}
	if err := fb.open(); err != nil {
		return nil, err
	}
	return fb, nil
}

func (fb *FileBackend) open() error {
	// #nosec G301 - log directories need to be accessible by other processes
	if err := os.MkdirAll(filepath.Dir(fb.path), 0o755); err != nil {
		return errors.Wrap(err, "create directory")
	}
	file, err := os.OpenFile(fb.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) // #nosec G302 - log files need to be readable
	if err != nil {
		return errors.Wrap(err, "open file")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return errors.Wrap(err, "stat file")
	}
	fb.file = file
	fb.writer = bufio.NewWriterSize(file, fb.bufSize)
	fb.size = info.Size()
	return nil
}

// Write buffers p. Size counts bytes accepted by the buffer. A failed write
// is forgotten entirely so a retry after Reopen does not repeat part of p.
func (fb *FileBackend) Write(p []byte) (int, error) {
	if fb.writer == nil {
		return 0, os.ErrClosed
	}
	n, err := fb.writer.Write(p)
	fb.track(p[:n])
	if err != nil {
		fb.pending = fb.pending[:len(fb.pending)-min(n, len(fb.pending))]
		return n, err
	}
	fb.size += int64(n)
	return n, nil
}

// track keeps pending equal to the bytes writer still buffers, which are
// always the last Buffered() bytes handed to it.
func (fb *FileBackend) track(p []byte) {
	fb.pending = append(fb.pending, p...)
	if b := fb.writer.Buffered(); b < len(fb.pending) {
		fb.pending = append(fb.pending[:0], fb.pending[len(fb.pending)-b:]...)
	}
}

// Flush flushes buffered data to the file.
func (fb *FileBackend) Flush() error {
	if fb.writer == nil {
		return nil
	}
	err := fb.writer.Flush()
	fb.track(nil)
	return err
}

// Sync flushes and fsyncs.
func (fb *FileBackend) Sync() error {
	if err := fb.Flush(); err != nil {
		return err
	}
	if fb.file == nil {
		return nil
	}
	return fb.file.Sync()
}

// Close flushes and closes the file. It is safe to call twice.
func (fb *FileBackend) Close() error {
	if fb.file == nil {
		return nil
	}
	var err error
	if ferr := fb.Flush(); ferr != nil {
		err = multierr.Append(err, errors.Wrap(ferr, "flush"))
	}
	if cerr := fb.file.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrap(cerr, "close file"))
	}
	fb.file = nil
	fb.writer = nil
	fb.pending = nil
	return err
}

// Reopen drops the current handle, opens the path again and buffers what the
// old handle never wrote. A failed open loses those bytes.
func (fb *FileBackend) Reopen() error {
	keep := fb.pending
	fb.pending = nil
	if fb.file != nil {
		_ = fb.file.Close()
	}
	fb.file = nil
	fb.writer = nil
	if err := fb.open(); err != nil {
		return err
	}
	if len(keep) == 0 {
		return nil
	}
	_, err := fb.Write(keep)
	return errors.Wrap(err, "rewrite buffered data")
}

// Buffered returns the number of bytes not yet handed to the file.
func (fb *FileBackend) Buffered() int {
	return len(fb.pending)
}

// Size returns the file size including buffered bytes.
func (fb *FileBackend) Size() int64 {
	return fb.size
}

// Path returns the file path.
func (fb *FileBackend) Path() string {
	return fb.path
}

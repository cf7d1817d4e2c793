package processors

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/omnitarget/pkg/rotation"
)

// Algorithm is a compression format.
type Algorithm int

const (
	AlgorithmGzip Algorithm = iota
	AlgorithmZstd
)

// Ext returns the file extension of the format.
func (a Algorithm) Ext() string {
	if a == AlgorithmZstd {
		return ".zst"
	}
	return ".gz"
}

func (a Algorithm) String() string {
	if a == AlgorithmZstd {
		return "zstd"
	}
	return "gzip"
}

// ParseAlgorithm accepts "gzip", "gz", "zstd", "zst" or "" (gzip).
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gzip", "gz":
		return AlgorithmGzip, nil
	case "zstd", "zst":
		return AlgorithmZstd, nil
	}
	return AlgorithmGzip, errors.Errorf("unsupported compression algorithm: %s", s)
}

// Compress replaces a rotated file with a compressed copy. The source is
// removed only after the artifact is written, read back and found complete.
// Cancelling ctx stops a compression part way and leaves the source alone.
type Compress struct {
	Algorithm Algorithm
	Level     int // 0 uses the library default
}

func (c *Compress) Name() string {
	return "compress"
}

func (c *Compress) Process(ctx context.Context, f *File) error {
	if rotation.IsCompressed(f.Base) {
		return nil
	}
	src := filepath.Clean(f.Path)
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return nil // pruned or already handled
	}
	if err != nil {
		return errors.Wrap(err, "stat source")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := src + c.Algorithm.Ext()
	tmp := dst + ".tmp"

	n, err := c.write(ctx, src, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if n != info.Size() {
		_ = os.Remove(tmp)
		return errors.Errorf("read %d bytes of %d from %s", n, info.Size(), src)
	}
	size, err := c.verify(ctx, tmp, n)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "renaming compressed file")
	}
	if err := os.Remove(src); err != nil {
		return errors.Wrap(err, "removing original file after compression")
	}

	f.Path = dst
	f.Base = filepath.Base(dst)
	f.Size = size
	return nil
}

func (c *Compress) write(ctx context.Context, src, tmp string) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "opening source file for compression")
	}
	defer in.Close()

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) // #nosec G302 - compressed log files
	if err != nil {
		return 0, errors.Wrap(err, "creating compressed file")
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing compressed file")
		}
	}()

	w, err := c.encoder(out)
	if err != nil {
		return 0, err
	}
	n, err = io.Copy(w, ctxReader{ctx: ctx, r: in})
	if err != nil {
		_ = w.Close()
		return n, errors.Wrap(err, "compressing file")
	}
	if err = w.Close(); err != nil {
		return n, errors.Wrap(err, "closing compressor")
	}
	return n, out.Sync()
}

func (c *Compress) encoder(w io.Writer) (io.WriteCloser, error) {
	switch c.Algorithm {
	case AlgorithmZstd:
		opts := []zstd.EOption{}
		if c.Level != 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.Level)))
		}
		enc, err := zstd.NewWriter(w, opts...)
		return enc, errors.Wrap(err, "creating zstd writer")
	default:
		level := c.Level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		gw, err := gzip.NewWriterLevel(w, level)
		return gw, errors.Wrap(err, "creating gzip writer")
	}
}

// verify decompresses path and checks it yields want bytes. It returns the
// size of the compressed file.
func (c *Compress) verify(ctx context.Context, path string, want int64) (int64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "opening compressed file for verification")
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat compressed file")
	}
	if info.Size() == 0 {
		return 0, errors.New("compressed file is empty")
	}

	var r io.Reader
	switch c.Algorithm {
	case AlgorithmZstd:
		dec, err := zstd.NewReader(fh)
		if err != nil {
			return 0, errors.Wrap(err, "creating zstd reader")
		}
		defer dec.Close()
		r = dec
	default:
		gr, err := gzip.NewReader(fh)
		if err != nil {
			return 0, errors.Wrap(err, "creating gzip reader")
		}
		defer gr.Close()
		r = gr
	}
	got, err := io.Copy(io.Discard, ctxReader{ctx: ctx, r: r})
	if err != nil {
		return 0, errors.Wrap(err, "verifying compressed file")
	}
	if got != want {
		return 0, errors.Errorf("compressed file holds %d bytes, want %d", got, want)
	}
	return info.Size(), nil
}

// ctxReader ends a copy with ctx's error once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

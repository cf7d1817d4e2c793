package backends

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "app.log")

	fb, err := NewFileBackend(path, 0)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	if fb.Path() != path {
		t.Errorf("Path = %q", fb.Path())
	}
	if _, err := fb.Write([]byte("one\n")); err != nil {
		t.Fatal(err)
	}
	if fb.Size() != 4 {
		t.Errorf("Size = %d, want 4", fb.Size())
	}
	if err := fb.Close(); err != nil {
		t.Fatal(err)
	}
	if err := fb.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := fb.Write([]byte("x")); err == nil {
		t.Error("Write after Close succeeded")
	}

	// reopening appends and picks up the existing size
	fb, err = NewFileBackend(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if fb.Size() != 4 {
		t.Errorf("Size after reopen = %d, want 4", fb.Size())
	}
	_, _ = fb.Write([]byte("two\n"))
	if err := fb.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("content = %q", data)
	}
}

func TestFileBackendReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("kept\n"))
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := w.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if w.Size() != 0 {
		t.Errorf("Size after reopen of removed file = %d", w.Size())
	}
	_, _ = w.Write([]byte("again\n"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "again\n" {
		t.Errorf("content = %q", data)
	}
}

func TestFileBackendReopenKeepsBuffered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	fb, err := NewFileBackend(path, 16)
	if err != nil {
		t.Fatal(err)
	}
	// the second write pushes the first 16 bytes out and buffers the rest
	_, _ = fb.Write([]byte("0123456789\n"))
	_, _ = fb.Write([]byte("abcdefghij\n"))
	if fb.Buffered() != 6 {
		t.Fatalf("Buffered = %d, want 6", fb.Buffered())
	}

	if err := fb.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if fb.Size() != 22 {
		t.Errorf("Size = %d, want 22", fb.Size())
	}
	if err := fb.Close(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "0123456789\nabcdefghij\n" {
		t.Errorf("content = %q", data)
	}
}

func TestFileBackendFullDevice(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full")
	}
	fb, err := NewFileBackend("/dev/full", 64)
	if err != nil {
		t.Fatal(err)
	}
	defer fb.Close()

	_, _ = fb.Write([]byte("x\n"))
	if err := fb.Flush(); err == nil {
		t.Fatal("Flush to a full device succeeded")
	}
	if fb.Buffered() != 2 {
		t.Fatalf("Buffered after failed flush = %d", fb.Buffered())
	}
	if err := fb.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if fb.Buffered() != 2 {
		t.Errorf("Reopen dropped buffered bytes: %d left", fb.Buffered())
	}
	if err := fb.Flush(); err == nil {
		t.Error("second Flush succeeded")
	}
}

func TestLock(t *testing.T) {
	dir := t.TempDir()
	l, err := AcquireLock(dir, "app")
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if l.Path() != filepath.Join(dir, "app.lock") {
		t.Errorf("Path = %q", l.Path())
	}

	if _, err := AcquireLock(dir, "app"); !errors.Is(err, ErrLocked) {
		t.Fatalf("second AcquireLock = %v, want ErrLocked", err)
	}
	other, err := AcquireLock(dir, "other")
	if err != nil {
		t.Fatalf("lock for another app: %v", err)
	}
	_ = other.Release()

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	again, err := AcquireLock(dir, "app")
	if err != nil {
		t.Fatalf("AcquireLock after Release: %v", err)
	}
	_ = again.Release()
}

func TestConsolePlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	if err := c.WriteLine(types.SeverityFail, []byte("[FAIL] x\n"), true); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "[FAIL] x\n" {
		t.Errorf("got %q", buf.String())
	}
}

func TestConsoleForcedColor(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.ForceColor(true)

	_ = c.WriteLine(types.SeverityWarning, []byte("careful\n"), true)
	out := buf.String()
	if !strings.Contains(out, "\x1b[33m") || !strings.HasSuffix(out, "\n") {
		t.Errorf("expected yellow escape, got %q", out)
	}
	if strings.Index(out, "\n") != len(out)-1 {
		t.Errorf("newline inside colored span: %q", out)
	}

	buf.Reset()
	_ = c.WriteLine(types.SeverityWarning, []byte("plain\n"), false)
	if buf.String() != "plain\n" {
		t.Errorf("colored=false gave %q", buf.String())
	}

	buf.Reset()
	_ = c.WriteLine(types.SeverityNone, []byte("none\n"), true)
	if buf.String() != "none\n" {
		t.Errorf("severity without color gave %q", buf.String())
	}
}

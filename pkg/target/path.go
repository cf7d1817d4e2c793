package target

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// BasePathMode says what a relative BasePath is relative to.
type BasePathMode uint8

const (
	// Absolute requires BasePath to be absolute.
	Absolute BasePathMode = iota
	// RelativeToExecutable resolves against the directory of the running binary.
	RelativeToExecutable
	// RelativeToCurrentDir resolves against the working directory at New.
	RelativeToCurrentDir
)

func (m BasePathMode) String() string {
	switch m {
	case Absolute:
		return "absolute"
	case RelativeToExecutable:
		return "executable"
	}
	return "cwd"
}

// ParseBasePathMode accepts "absolute", "executable", "cwd" or "".
func ParseBasePathMode(name string) (BasePathMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "absolute":
		return Absolute, nil
	case "executable", "exe":
		return RelativeToExecutable, nil
	case "", "cwd", "current":
		return RelativeToCurrentDir, nil
	}
	return RelativeToCurrentDir, errors.Errorf("unknown base path mode %q", name)
}

// replaced in tests
var executable = os.Executable

// ResolveBasePath returns the absolute directory a target writes to.
// An absolute path is used as is in every mode.
func ResolveBasePath(mode BasePathMode, path string) (string, error) {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	switch mode {
	case Absolute:
		return "", errors.Errorf("base path %q is not absolute", path)
	case RelativeToExecutable:
		exe, err := executable()
		if err != nil {
			return "", errors.Wrap(err, "locating executable")
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Join(filepath.Dir(exe), path), nil
	default:
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", errors.Wrap(err, "resolving base path")
		}
		return abs, nil
	}
}

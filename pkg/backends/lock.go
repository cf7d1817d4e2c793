package backends

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrLocked is returned when another process or target holds the lock.
var ErrLocked = errors.New("target files are locked by another owner")

// Lock is the advisory lock a target holds on <dir>/<app>.lock for its
// whole lifetime, so two targets never rotate the same set of files.
type Lock struct {
	fl *flock.Flock
}

// LockPath returns the lock file of an application in dir.
func LockPath(dir, app string) string {
	return filepath.Join(dir, app+".lock")
}

// AcquireLock takes the lock without waiting.
func AcquireLock(dir, app string) (*Lock, error) {
	// #nosec G301 - log directories need to be accessible by other processes
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create directory")
	}
	fl := flock.New(LockPath(dir, app))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "acquire lock")
	}
	if !ok {
		return nil, errors.Wrap(ErrLocked, fl.Path())
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks. The lock file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return errors.Wrap(l.fl.Unlock(), "unlock")
}

//go:build linux

package priority

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// replaced in tests
var (
	setpriority = unix.Setpriority
	gettid      = unix.Gettid
)

// Supported reports whether Apply changes anything on this platform.
const Supported = true

// Apply sets the nice value of the calling OS thread. The goroutine must be
// locked to its thread with runtime.LockOSThread, otherwise the change leaks
// to whatever goroutine runs on the thread next. Raising priority above
// normal needs CAP_SYS_NICE and fails with EPERM otherwise.
func Apply(p types.Priority) error {
	if err := setpriority(unix.PRIO_PROCESS, gettid(), Nice(p)); err != nil {
		return errors.Wrapf(err, "setpriority %s", p)
	}
	return nil
}

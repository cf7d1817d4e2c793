//go:build !linux

package priority

import "github.com/wayneeseguin/omnitarget/pkg/types"

// Supported reports whether Apply changes anything on this platform.
const Supported = false

// Apply is a no-op outside Linux.
func Apply(types.Priority) error {
	return nil
}
